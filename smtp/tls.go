package smtp

import (
	"crypto/tls"
	"fmt"
	"net"
)

// CertStore is the TLS context store collaborator: certificate selection
// by SNI name, with a "default" entry always present.
type CertStore interface {
	Get(name string) (*tls.Config, error)
}

// TLSOptions are the server options applied to the upgraded stream.
// STARTTLS and implicit TLS both pass the zero value.
type TLSOptions struct {
	RequestCert        bool
	RejectUnauthorized bool
	NextProtos         []string // ALPN/NPN protocol list
}

// upgradeToTLS performs the in-place STARTTLS upgrade (RFC 3207):
// certificate selection is by SNI lookup against the collaborator-provided
// CertStore, falling back to "default". crypto/tls is used directly:
// certificate *acquisition* (e.g. via ACME) is the TLS context store's
// job, out of this engine's scope, and is a separate concern from the
// in-place server-side handshake upgrade performed here.
func (c *Connection) upgradeToTLS(opts TLSOptions) error {
	base, err := c.server.certStore.Get("default")
	if err != nil {
		return fmt.Errorf("tls: no default certificate: %w", err)
	}

	cfg := base.Clone()
	cfg.GetConfigForClient = func(hello *tls.ClientHelloInfo) (*tls.Config, error) {
		name := hello.ServerName
		if name == "" {
			name = "default"
		}
		specific, err := c.server.certStore.Get(name)
		if err != nil {
			specific = base
		}
		// The returned config replaces cfg for this handshake, so the
		// options applied to cfg below are carried over onto it.
		out := specific.Clone()
		out.ClientAuth = cfg.ClientAuth
		if len(opts.NextProtos) > 0 {
			out.NextProtos = opts.NextProtos
		}
		return out, nil
	}
	cfg.ClientAuth = tls.NoClientCert
	if opts.RequestCert {
		if opts.RejectUnauthorized {
			cfg.ClientAuth = tls.RequireAndVerifyClientCert
		} else {
			cfg.ClientAuth = tls.RequestClientCert
		}
	}
	if len(opts.NextProtos) > 0 {
		cfg.NextProtos = opts.NextProtos
	}

	conn, ok := c.transport.(net.Conn)
	if !ok {
		return fmt.Errorf("tls: transport is not a net.Conn")
	}
	tlsConn := tls.Server(conn, cfg)
	if err := tlsConn.Handshake(); err != nil {
		return fmt.Errorf("tls: handshake failed: %w", err)
	}

	c.transport = tlsConn
	c.secure = true
	c.upgrading = false
	c.parser.rebind(tlsConn)
	return nil
}
