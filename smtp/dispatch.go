package smtp

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	unrecognizedLimit    = 10
	unauthenticatedLimit = 10
)

var httpRequestTrap = regexp.MustCompile(`(?i)^(OPTIONS|GET|HEAD|POST|PUT|DELETE|TRACE|CONNECT) /.* HTTP/\d\.\d$`)

var requireHostname = map[string]bool{"MAIL": true, "RCPT": true, "DATA": true, "AUTH": true}
var requireAuth = map[string]bool{"MAIL": true, "RCPT": true, "DATA": true}

// handlerFunc handles one fully-validated command line.
type handlerFunc func(c *Connection, line string)

// buildHandlerTable constructs the verb -> handler dispatch table once,
// removing any disabled command before the first line is ever dispatched.
func buildHandlerTable(disabled []string) map[string]handlerFunc {
	all := map[string]handlerFunc{
		"EHLO":     handleGreeting,
		"HELO":     handleGreeting,
		"MAIL":     handleMAIL,
		"RCPT":     handleRCPT,
		"DATA":     handleDATA,
		"RSET":     handleRSET,
		"NOOP":     handleNOOP,
		"HELP":     handleHELP,
		"VRFY":     handleVRFY,
		"QUIT":     handleQUIT,
		"AUTH":     handleAUTH,
		"STARTTLS": handleSTARTTLS,
		"XCLIENT":  handleXCLIENT,
		"WIZ":      handleWIZ,
		"SHELL":    handleSHELL,
		"KILL":     handleKILL,
	}
	for _, d := range disabled {
		delete(all, strings.ToUpper(d))
	}
	return all
}

func verbOf(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

// dispatch runs a fixed chain of ordered checks, invoking a handler only
// once every gate passes.
func (c *Connection) dispatch(line string) {
	verb := verbOf(line)

	// 1: proxy mode, not ready, and this isn't the PROXY line itself.
	if !c.isReady() && c.server.config.UseProxy && verb != "PROXY" {
		c.reply(Answer{StatusSyntaxError, "Invalid PROXY header"})
		c.closeNow()
		return
	}

	// 2: non-proxy mode, still within the grace window.
	if !c.isReady() && !c.server.config.UseProxy {
		c.reply(Answer{StatusShuttingDown, fmt.Sprintf("%s You talk too soon", c.server.config.Name)})
		c.closeNow()
		return
	}

	// 3: HTTP verb trap.
	if httpRequestTrap.MatchString(line) {
		c.reply(Answer{StatusNoValidRcpt, "HTTP requests not allowed"})
		c.closeNow()
		return
	}

	// 4: mid-STARTTLS-upgrade, discard silently.
	if c.upgrading {
		return
	}

	// 5: a queued one-shot continuation (SASL continuation, etc).
	if c.nextHandler != nil {
		next := c.nextHandler
		c.nextHandler = nil
		next(line)
		return
	}

	handler, known := c.server.handlers[verb]
	// 6: unknown or disabled verb.
	if !known {
		c.reply(Answer{StatusSyntaxError, "Error: command not recognized"})
		c.unrecognizedCount++
		if c.unrecognizedCount >= unrecognizedLimit {
			c.reply(Answer{StatusNoValidRcpt, "Error: too many errors"})
			c.closeNow()
		}
		return
	}

	// 7: count unauthenticated attempts; this only gates disconnection via
	// unauthenticatedLimit below, not dispatch itself — step 9 is the
	// actual authentication gate.
	if c.authSupported() && verb != "AUTH" && c.session.User == nil {
		c.unauthenticatedCount++
		if c.unauthenticatedCount >= unauthenticatedLimit {
			c.reply(Answer{StatusNoValidRcpt, "Error: too many errors"})
			c.closeNow()
			return
		}
	}

	// 8: HELO/EHLO required before these verbs.
	if requireHostname[verb] && c.hostNameAppearsAs == "" {
		c.reply(Answer{StatusBadSequence, "Error: send HELO/EHLO first"})
		return
	}

	// 9: authentication required before MAIL/RCPT/DATA.
	if requireAuth[verb] && c.authSupported() && c.session.User == nil {
		c.reply(Answer{StatusAuthRequired, "Error: authentication Required"})
		return
	}

	// 10.
	handler(c, line)
}

func (c *Connection) authSupported() bool {
	return len(c.server.config.AuthMethods) > 0
}
