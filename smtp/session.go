package smtp

import "strings"

// AuthenticatedUser is whatever a SASL mechanism hands back on success: a
// presence-tested pointer plus a free-form extras map so a mechanism
// (PLAIN, LOGIN, or a collaborator-supplied one) can stash anything it
// authenticated with.
type AuthenticatedUser struct {
	Username string
	Extra    map[string]string
}

// Envelope is the protocol-level sender/recipient list (RFC 5321 §2.3.1),
// distinct from the header fields carried inside the message body.
type Envelope struct {
	MailFrom *AddressRecord
	RcptTo   []AddressRecord
}

func (e *Envelope) addRcpt(rec AddressRecord) {
	for i := range e.RcptTo {
		if strings.EqualFold(e.RcptTo[i].Address, rec.Address) {
			e.RcptTo[i] = rec
			return
		}
	}
	e.RcptTo = append(e.RcptTo, rec)
}

// Session is the per-transaction envelope and identity carried across
// commands. A new *Session replaces the old one wholesale on
// EHLO/HELO/RSET/after a completed DATA; it is never mutated by more than
// one handler at a time, and ownership of mutation belongs exclusively to
// the Connection driver.
type Session struct {
	ID                string
	RemoteAddress     string
	ClientHostname    string
	HostNameAppearsAs string

	User *AuthenticatedUser

	Envelope Envelope

	Transaction int

	// IsWizard is set by the WIZ parody stub, preserved for bug-for-bug
	// compatibility with historical sendmail behavior. Not
	// security-relevant.
	IsWizard bool
}

// newSession snapshots the identity fields of a Connection into a fresh
// Session, carrying the authenticated user forward (authentication is
// connection-scoped, not transaction-scoped).
func newSession(c *Connection) *Session {
	var user *AuthenticatedUser
	if c.session != nil {
		user = c.session.User
	}
	return &Session{
		ID:                c.id,
		RemoteAddress:     c.remoteAddress,
		ClientHostname:    c.clientHostname,
		HostNameAppearsAs: c.hostNameAppearsAs,
		User:              user,
		Transaction:       c.transactionCounter + 1,
	}
}
