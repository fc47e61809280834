// Package connlog wires github.com/sirupsen/logrus into a per-connection
// logger, carrying the connection's correlation id (and, once known, the
// remote address/client hostname) on every line.
package connlog

import "github.com/sirupsen/logrus"

// New returns a *logrus.Entry scoped to one connection.
func New(id string) *logrus.Entry {
	return logrus.WithField("id", id)
}

// WithPeer augments a connection's entry once the peer identity is known.
func WithPeer(entry *logrus.Entry, remoteAddress, clientHostname string) *logrus.Entry {
	return entry.WithFields(logrus.Fields{
		"remoteAddress":  remoteAddress,
		"clientHostname": clientHostname,
	})
}
