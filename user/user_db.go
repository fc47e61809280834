package user

import (
	"encoding/json"
	"errors"
	"os"
)

// UserDB is an in-memory, JSON-file-backed user directory.
type UserDB struct {
	Users map[string]User
}

// UserExists checks if a user exists in the DB.
func (db *UserDB) UserExists(name string) bool {
	_, found := db.Users[name]
	return found
}

// Get looks a user up by name.
func (db *UserDB) Get(name string) (*User, error) {
	if !db.UserExists(name) {
		return nil, errors.New("user not found")
	}
	user := db.Users[name]
	return &user, nil
}

// Add adds a user to the database.
func (db *UserDB) Add(user User) error {
	if db.Users == nil {
		db.Users = make(map[string]User)
	}
	if db.UserExists(user.Name) {
		return errors.New("user already exists")
	}
	db.Users[user.Name] = user
	return nil
}

// SaveDB writes the database to file as indented JSON.
func (db *UserDB) SaveDB(file string) error {
	output, err := json.MarshalIndent(db, "", "\t")
	if err != nil {
		return err
	}
	return os.WriteFile(file, output, 0644)
}

// LoadDB reads a database previously written by SaveDB.
func LoadDB(file string) (*UserDB, error) {
	input, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	db := UserDB{}
	if err := json.Unmarshal(input, &db); err != nil {
		return nil, err
	}
	return &db, nil
}
