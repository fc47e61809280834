// Package user is the reference credential store backing cmd/smtpd's AUTH
// PLAIN/LOGIN wiring.
package user

import "golang.org/x/crypto/bcrypt"

// User is one mailbox account known to this server.
type User struct {
	Name         string
	Email        string
	PasswordHash string
}

// NewUser hashes password with bcrypt rather than storing or comparing
// it in the clear.
func NewUser(name, email, password string) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	return User{Name: name, Email: email, PasswordHash: string(hash)}, nil
}

// CheckPassword reports whether password matches the stored hash.
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}
