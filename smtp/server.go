package smtp

import (
	"io"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/gopistolet/smtpd/internal/rdns"
	"github.com/gopistolet/smtpd/internal/registry"
)

// Collaborators are the application-level decision hooks a Server calls
// out to. OnConnect, OnMailFrom, OnRcptTo and OnData are optional; a nil
// one is treated as "always succeed". Authenticate is not checked for nil:
// it must be set whenever AuthMethods lists PLAIN or LOGIN.
type Collaborators struct {
	OnConnect    func(session *Session) error
	OnMailFrom   func(rec AddressRecord, session *Session) error
	OnRcptTo     func(rec AddressRecord, session *Session) error
	OnData       func(r io.Reader, session *Session) (string, error)
	Authenticate Authenticator
}

// Server owns the process-wide, read-mostly state shared by every
// Connection: configuration, collaborators, the TLS context store, the
// DNS resolver, the connection registry, and the (built-once) handler
// table. There is no cross-connection shared mutable state beyond the
// registry and the TLS context store.
type Server struct {
	config    Config
	collab    Collaborators
	certStore CertStore
	resolver  rdns.Resolver
	registry  *registry.Registry
	handlers  map[string]handlerFunc
}

// NewServer builds a Server ready to Serve connections.
func NewServer(cfg Config, collab Collaborators, certStore CertStore, resolver rdns.Resolver) *Server {
	return &Server{
		config:    cfg,
		collab:    collab,
		certStore: certStore,
		resolver:  resolver,
		registry:  registry.New(cfg.MaxClients),
		handlers:  buildHandlerTable(cfg.DisabledCommands),
	}
}

// ListenAndServe opens a TCP listener on addr and serves it.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections from ln until it returns an error, spawning
// one goroutine per Connection — each is logically single-threaded, but
// distinct connections run fully independently.
func (s *Server) Serve(ln net.Listener) error {
	defer ln.Close()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				logrus.WithError(err).Warn("temporary accept error")
				continue
			}
			return err
		}
		c := newConnection(s, conn)
		go c.serveWithOnConnect()
	}
}

// serveWithOnConnect runs the onConnect gate before the main loop: on
// error, reply with the error's response code (554 by default) and
// close the connection without ever entering the command loop.
func (c *Connection) serveWithOnConnect() {
	if c.server.collab.OnConnect != nil {
		if err := c.server.collab.OnConnect(c.session); err != nil {
			code, msg := codeOrDefault(err, int(StatusNoValidRcpt))
			c.reply(Answer{StatusCode(code), msg})
			c.close()
			return
		}
	}
	c.serve()
}
