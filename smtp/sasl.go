package smtp

import (
	"encoding/base64"
	"strings"

	gosasl "github.com/emersion/go-sasl"
)

// Authenticator is the external credential-checking collaborator invoked
// by the AUTH handler (RFC 4954). It returns the AuthenticatedUser on
// success or an error (optionally a *Error to control the response code).
type Authenticator func(mechanism, identity, username, password string) (*AuthenticatedUser, error)

// pendingAuth captures the user a gosasl.Server authenticated, since the
// upstream callback shape (github.com/emersion/go-sasl) only returns an
// error, not the authenticated identity.
type pendingAuth struct {
	user *AuthenticatedUser
}

func newMechanism(name string, auth Authenticator, pending *pendingAuth) gosasl.Server {
	switch strings.ToUpper(name) {
	case gosasl.Plain:
		return gosasl.NewPlainServer(func(identity, username, password string) error {
			user, err := auth(gosasl.Plain, identity, username, password)
			if err != nil {
				return err
			}
			pending.user = user
			return nil
		})
	case gosasl.Login:
		return gosasl.NewLoginServer(func(username, password string) error {
			user, err := auth(gosasl.Login, "", username, password)
			if err != nil {
				return err
			}
			pending.user = user
			return nil
		})
	default:
		return nil
	}
}

// saslExchange drives one AUTH mechanism to completion (RFC 4954),
// writing 334 challenges and registering nextHandler continuations as
// needed.
type saslExchange struct {
	conn    *Connection
	server  gosasl.Server
	pending *pendingAuth
}

func (c *Connection) beginAuth(mechanism string, initialResponse []byte) {
	pending := &pendingAuth{}
	server := newMechanism(mechanism, c.server.collab.Authenticate, pending)
	if server == nil {
		c.reply(Answer{StatusAuthMechanism, "Mechanism not supported"})
		return
	}
	ex := &saslExchange{conn: c, server: server, pending: pending}
	ex.step(initialResponse)
}

func (ex *saslExchange) step(response []byte) {
	c := ex.conn
	challenge, done, err := ex.server.Next(response)
	if err != nil {
		code, msg := 535, "Authentication failed"
		if se, ok := err.(*Error); ok {
			code, msg = codeOrDefault(se, 535)
		}
		c.reply(Answer{StatusCode(code), msg})
		return
	}
	if done {
		c.session.User = ex.pending.user
		c.reply(Answer{StatusAuthSuccess, "OK"})
		return
	}

	c.reply(Answer{StatusAuthContinue, base64.StdEncoding.EncodeToString(challenge)})
	c.nextHandler = func(line string) {
		if line == "*" {
			c.reply(Answer{StatusSyntaxErrParam, "Authentication cancelled"})
			return
		}
		decoded, derr := base64.StdEncoding.DecodeString(line)
		if derr != nil {
			c.reply(Answer{StatusSyntaxError, "Invalid base64"})
			return
		}
		ex.step(decoded)
	}
}
