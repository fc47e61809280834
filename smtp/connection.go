package smtp

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gopistolet/smtpd/internal/connid"
	"github.com/gopistolet/smtpd/internal/connlog"
	"github.com/gopistolet/smtpd/internal/proxyheader"
)

// transport is the byte-stream contract a Connection runs over, widened
// with the bits it needs beyond plain read/write: closing and idle
// deadlines. Both net.Conn and *tls.Conn satisfy it, which is what lets
// STARTTLS (RFC 3207) swap one for the other in place.
type transport interface {
	io.Reader
	io.Writer
	Close() error
	SetDeadline(t time.Time) error
}

// Connection is one accepted transport connection's protocol state. All
// fields are owned exclusively by the single goroutine running serve(),
// except where noted.
type Connection struct {
	id string

	remoteAddress     string
	clientHostname    string
	hostNameAppearsAs string

	secure    bool
	ready     bool
	upgrading bool

	unrecognizedCount    int
	unauthenticatedCount int

	// xclient: presence of a key means XCLIENT already set it. ADDR
	// present disables further XCLIENT.
	xclient map[string]string

	closing bool
	closed  bool

	session            *Session
	transactionCounter int

	transport transport
	parser    *LineParser
	server    *Server
	log       *logrus.Entry

	// nextHandler is a one-shot continuation consumed by the next command
	// line (used by multi-step SASL mechanisms).
	nextHandler func(line string)

	readyMu sync.Mutex
}

func newConnection(server *Server, conn net.Conn) *Connection {
	id := connid.New()
	c := &Connection{
		id:            id,
		remoteAddress: conn.RemoteAddr().String(),
		transport:     conn,
		server:        server,
		log:           connlog.New(id),
		xclient:       make(map[string]string),
	}
	c.clientHostname = fmt.Sprintf("[%s]", c.hostOnly())
	c.session = newSession(c)
	c.parser = newLineParser(conn)
	return c
}

func (c *Connection) hostOnly() string {
	host, _, err := net.SplitHostPort(c.remoteAddress)
	if err != nil {
		return c.remoteAddress
	}
	return host
}

// connectionReady flips ready, unblocking dispatch. Safe to call from the
// grace timer's goroutine concurrently with the serve loop.
func (c *Connection) connectionReady() {
	c.readyMu.Lock()
	c.ready = true
	c.readyMu.Unlock()
}

func (c *Connection) isReady() bool {
	c.readyMu.Lock()
	defer c.readyMu.Unlock()
	return c.ready
}

// serve drives the connection to completion: admission, optional implicit
// TLS, reverse DNS, then the PROXY header (or the grace timer), banner,
// then the command-mode loop.
func (c *Connection) serve() {
	defer c.close()

	if !c.server.registry.TryAdmit(c.id) {
		c.reply(Answer{StatusShuttingDown, fmt.Sprintf("%s Too many connections", c.server.config.Name)})
		return
	}
	defer c.server.registry.Remove(c.id)

	if c.server.config.Secure {
		if err := c.upgradeToTLS(TLSOptions{}); err != nil {
			c.log.WithError(err).Error("implicit TLS handshake failed")
			return
		}
	}

	c.resolveClientHostname()

	if c.server.config.UseProxy {
		if !c.awaitProxyHeader() {
			return
		}
	} else {
		time.AfterFunc(100*time.Millisecond, c.connectionReady)
	}

	c.log = connlog.WithPeer(c.log, c.remoteAddress, c.clientHostname)
	c.writeGreeting()

	for {
		c.setIdleDeadline()
		line, err := c.parser.readCommandLine()
		if err != nil {
			c.handleReadError(err)
			return
		}
		if c.closing {
			return
		}
		c.dispatch(line)
		if c.closing {
			return
		}
	}
}

func (c *Connection) setIdleDeadline() {
	timeout := time.Duration(c.server.config.SocketTimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	_ = c.transport.SetDeadline(time.Now().Add(timeout))
}

func (c *Connection) handleReadError(err error) {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		// The expired deadline also covers writes; extend it so the 451
		// can still be sent.
		c.setIdleDeadline()
		c.reply(Answer{StatusTimeout, "Timeout - closing connection"})
		return
	}
	if strings.Contains(err.Error(), "connection reset") {
		return
	}
	if err == io.EOF {
		return
	}
	c.log.WithError(err).Debug("connection read error")
}

// awaitProxyHeader implements PROXY protocol v1 handling: the first line
// must begin with PROXY; the source address field that follows the
// protocol field, when present, replaces remoteAddress. On
// success, connectionReady runs as if the grace timer had fired.
func (c *Connection) awaitProxyHeader() bool {
	line, err := c.parser.readCommandLine()
	if err != nil {
		return false
	}
	hdr, err := proxyheader.Parse(line)
	if err != nil {
		c.reply(Answer{StatusSyntaxError, "Invalid PROXY header"})
		return false
	}
	if hdr.SourceAddress != "" {
		c.remoteAddress = hdr.SourceAddress
	}
	c.connectionReady()
	return true
}

func (c *Connection) resolveClientHostname() {
	if c.server.resolver == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	names, err := c.server.resolver.Reverse(ctx, c.hostOnly())
	if err != nil || len(names) == 0 {
		return
	}
	c.clientHostname = strings.TrimSuffix(names[0], ".")
}

func (c *Connection) writeGreeting() {
	text := c.server.config.Name
	if c.server.config.Banner != "" {
		text += " " + c.server.config.Banner
	}
	c.reply(Answer{StatusReady, text})
}

// reply writes a response, ignoring write errors beyond logging — the
// read loop will observe the broken transport on its next read.
func (c *Connection) reply(a fmt.Stringer) {
	if _, err := fmt.Fprintf(c.transport, "%s\r\n", a); err != nil {
		c.log.WithError(err).Debug("write error")
	}
}

// closeNow marks the connection for shutdown after the current dispatch
// returns; the serve loop checks c.closing after every line.
func (c *Connection) closeNow() {
	c.closing = true
}

// close is idempotent and logged once.
func (c *Connection) close() {
	if c.closed {
		return
	}
	c.closed = true
	c.closing = true
	_ = c.transport.Close()
	c.log.Debug("connection closed")
}
