// Command smtpd is a reference server wiring every collaborator and
// domain dependency the engine supports: JSON configuration, logrus
// logging, a maildir-backed onData, a bcrypt-checked user database behind
// AUTH PLAIN/LOGIN, and real reverse DNS.
package main

import (
	"crypto/tls"
	"flag"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/sloonz/go-maildir"

	"github.com/gopistolet/smtpd/internal/config"
	"github.com/gopistolet/smtpd/internal/rdns"
	"github.com/gopistolet/smtpd/smtp"
	"github.com/gopistolet/smtpd/user"
)

func main() {
	configPath := flag.String("config", "smtpd.json", "path to JSON configuration")
	usersPath := flag.String("users", "users.json", "path to the user database")
	maildirPath := flag.String("maildir", "./maildir", "Maildir root for accepted messages")
	certFile := flag.String("cert", "", "TLS certificate file (enables STARTTLS)")
	keyFile := flag.String("key", "", "TLS key file (enables STARTTLS)")
	listen := flag.String("listen", ":2525", "listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Warn("using default configuration")
		cfg = smtp.DefaultConfig()
	}

	users, err := user.LoadDB(*usersPath)
	if err != nil {
		logrus.WithError(err).Warn("starting with an empty user database")
		users = &user.UserDB{}
	}

	md := maildir.Dir(*maildirPath)

	var certStore smtp.CertStore
	if *certFile != "" && *keyFile != "" {
		certStore, err = newFileCertStore(*certFile, *keyFile)
		if err != nil {
			logrus.WithError(err).Fatal("failed to load TLS certificate")
		}
	}

	collab := smtp.Collaborators{
		OnConnect: func(session *smtp.Session) error {
			logrus.WithField("id", session.ID).Info("connection accepted")
			return nil
		},
		OnMailFrom: func(rec smtp.AddressRecord, session *smtp.Session) error {
			return nil
		},
		OnRcptTo: func(rec smtp.AddressRecord, session *smtp.Session) error {
			return nil
		},
		OnData:       maildirDelivery(md),
		Authenticate: userDBAuthenticator(users),
	}

	resolver := &rdns.Client{}

	server := smtp.NewServer(cfg, collab, certStore, resolver)
	logrus.WithField("addr", *listen).Info("starting smtpd")
	if err := server.ListenAndServe(*listen); err != nil {
		logrus.WithError(err).Fatal("server stopped")
	}
}

// maildirDelivery returns an onData collaborator that streams the message
// into a Maildir using github.com/sloonz/go-maildir.
func maildirDelivery(md maildir.Dir) func(io.Reader, *smtp.Session) (string, error) {
	return func(r io.Reader, session *smtp.Session) (string, error) {
		delivery, err := md.NewDelivery()
		if err != nil {
			return "", smtp.NewError(452, "Error: could not open maildir: %v", err)
		}
		if _, err := io.Copy(delivery, r); err != nil {
			delivery.Abort()
			return "", smtp.NewError(452, "Error: could not write message: %v", err)
		}
		if err := delivery.Close(); err != nil {
			return "", smtp.NewError(452, "Error: could not finalize message: %v", err)
		}
		return fmt.Sprintf("OK: message queued as %s", delivery.Key()), nil
	}
}

// userDBAuthenticator adapts user.UserDB into a smtp.Authenticator for
// PLAIN and LOGIN, checking passwords with bcrypt via user.User.CheckPassword.
func userDBAuthenticator(db *user.UserDB) smtp.Authenticator {
	return func(mechanism, identity, username, password string) (*smtp.AuthenticatedUser, error) {
		u, err := db.Get(username)
		if err != nil || !u.CheckPassword(password) {
			return nil, smtp.NewError(535, "Authentication failed")
		}
		return &smtp.AuthenticatedUser{Username: u.Name, Extra: map[string]string{"email": u.Email}}, nil
	}
}

// fileCertStore is the simplest possible smtp.CertStore: a single
// certificate served for every SNI name, including "default".
type fileCertStore struct {
	cfg *tls.Config
}

func newFileCertStore(certFile, keyFile string) (*fileCertStore, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, err
	}
	return &fileCertStore{cfg: &tls.Config{Certificates: []tls.Certificate{cert}}}, nil
}

func (s *fileCertStore) Get(name string) (*tls.Config, error) {
	return s.cfg, nil
}
