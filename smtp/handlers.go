package smtp

import (
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// handleGreeting implements EHLO/HELO (RFC 5321 §4.1.1.1). Both verbs share
// the same argument validation and session-reset behavior; only the reply
// shape differs.
func handleGreeting(c *Connection, line string) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		c.reply(Answer{StatusSyntaxErrParam, "Syntax: HELO/EHLO hostname"})
		return
	}

	verb := strings.ToUpper(fields[0])
	c.hostNameAppearsAs = strings.ToLower(fields[1])
	c.session = newSession(c)

	if verb == "HELO" {
		c.reply(Answer{StatusOK, fmt.Sprintf("%s Hello %s", c.server.config.Name, c.clientHostname)})
		return
	}

	lines := []string{
		fmt.Sprintf("OK: Nice to meet you %s", c.clientHostname),
		"PIPELINING",
		"8BITMIME",
		"SMTPUTF8",
	}
	if c.authSupported() {
		lines = append(lines, "AUTH "+strings.Join(c.server.config.AuthMethods, " "))
	}
	if c.starttlsOffered() {
		lines = append(lines, "STARTTLS")
	}
	if c.server.config.Size > 0 {
		lines = append(lines, fmt.Sprintf("SIZE %d", c.server.config.Size))
	}
	if c.xclientAdvertisable() {
		lines = append(lines, "XCLIENT NAME ADDR PORT PROTO HELO LOGIN")
	}
	c.reply(MultiAnswer{StatusOK, lines})
}

func (c *Connection) starttlsOffered() bool {
	return !c.secure && !c.server.config.HideSTARTTLS && c.server.certStore != nil
}

func (c *Connection) xclientAdvertisable() bool {
	if !c.server.config.UseXClient {
		return false
	}
	_, hasADDR := c.xclient["ADDR"]
	return !hasADDR
}

// handleMAIL implements MAIL FROM (RFC 5321 §4.1.1.2).
func handleMAIL(c *Connection, line string) {
	rec, err := parseAddressCommand(line, "mail from")
	if err != nil {
		c.reply(Answer{StatusSyntaxErrParam, "Syntax error in MAIL command"})
		return
	}
	if c.session.Envelope.MailFrom != nil {
		c.reply(Answer{StatusBadSequence, "Error: nested MAIL command"})
		return
	}
	if c.server.config.Size > 0 {
		if sizeStr, ok := rec.Args["SIZE"]; ok {
			if sz, serr := strconv.ParseInt(sizeStr, 10, 64); serr == nil && sz > c.server.config.Size {
				c.reply(Answer{StatusAbortMail, "Error: message exceeds fixed maximum message size"})
				return
			}
		}
	}
	if c.server.collab.OnMailFrom != nil {
		if err := c.server.collab.OnMailFrom(*rec, c.session); err != nil {
			code, msg := codeOrDefault(err, 550)
			c.reply(Answer{StatusCode(code), msg})
			return
		}
	}
	c.session.Envelope.MailFrom = rec
	c.reply(Answer{StatusOK, "Accepted"})
}

// handleRCPT implements RCPT TO (RFC 5321 §4.1.1.3).
func handleRCPT(c *Connection, line string) {
	rec, err := parseAddressCommand(line, "rcpt to")
	if err != nil || rec.Address == "" {
		c.reply(Answer{StatusSyntaxErrParam, "Syntax error in RCPT command"})
		return
	}
	if c.session.Envelope.MailFrom == nil {
		c.reply(Answer{StatusBadSequence, "Error: need MAIL command"})
		return
	}
	if c.server.collab.OnRcptTo != nil {
		if err := c.server.collab.OnRcptTo(*rec, c.session); err != nil {
			code, msg := codeOrDefault(err, 550)
			c.reply(Answer{StatusCode(code), msg})
			return
		}
	}
	c.session.Envelope.addRcpt(*rec)
	c.reply(Answer{StatusOK, "Accepted"})
}

// handleDATA implements DATA (RFC 5321 §4.1.1.4): it enters DATA mode,
// hands the sink to onData, and waits for both the sink to reach
// end-of-stream and the collaborator to return before sending a single
// final response.
func handleDATA(c *Connection, line string) {
	if len(c.session.Envelope.RcptTo) == 0 {
		c.reply(Answer{StatusBadSequence, "Error: need RCPT command"})
		return
	}

	sink, done := c.parser.startDataMode(c.server.config.Size)
	c.reply(Answer{StatusStartData, "End data with <CR><LF>.<CR><LF>"})

	type outcome struct {
		message string
		err     error
	}
	results := make(chan outcome, 1)
	go func() {
		defer sink.Close()
		if c.server.collab.OnData == nil {
			_, _ = io.Copy(io.Discard, sink)
			results <- outcome{}
			return
		}
		msg, err := c.server.collab.OnData(sink, c.session)
		results <- outcome{message: msg, err: err}
	}()

	feed := <-done
	res := <-results

	switch {
	case feed.sizeExceeded:
		c.reply(Answer{StatusAbortMail, "Error: message exceeds fixed maximum message size"})
	case res.err != nil:
		code, msg := codeOrDefault(res.err, int(StatusNoValidRcpt))
		c.reply(Answer{StatusCode(code), msg})
	default:
		msg := res.message
		if msg == "" {
			msg = "OK: message queued"
		}
		c.reply(Answer{StatusOK, msg})
	}

	c.transactionCounter++
	c.unrecognizedCount = 0
	c.session = newSession(c)
}

func handleRSET(c *Connection, line string) {
	c.session = newSession(c)
	c.reply(Answer{StatusOK, "Flushed"})
}

func handleNOOP(c *Connection, line string) {
	c.reply(Answer{StatusOK, "OK"})
}

func handleQUIT(c *Connection, line string) {
	c.reply(Answer{StatusClosing, "Bye"})
	c.closeNow()
}

func handleVRFY(c *Connection, line string) {
	c.reply(Answer{StatusVerifyNo, "Try to send something. No promises though"})
}

func handleHELP(c *Connection, line string) {
	c.reply(Answer{StatusHelp, "See https://tools.ietf.org/html/rfc5321 for details"})
}

// handleSTARTTLS implements STARTTLS (RFC 3207).
func handleSTARTTLS(c *Connection, line string) {
	if c.secure {
		c.reply(Answer{StatusNoValidRcpt, "Error: TLS already active"})
		return
	}
	if c.server.certStore == nil || c.server.config.HideSTARTTLS {
		c.reply(Answer{StatusNotImplemented, "Error: command not implemented"})
		return
	}

	c.reply(Answer{StatusReady, "Ready to start TLS"})
	c.upgrading = true
	if err := c.upgradeToTLS(TLSOptions{}); err != nil {
		c.log.WithError(err).Error("STARTTLS failed")
		c.upgrading = false
		c.closeNow()
	}
}

// handleAUTH implements AUTH (RFC 4954).
func handleAUTH(c *Connection, line string) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		c.reply(Answer{StatusSyntaxErrParam, "Syntax: AUTH mechanism"})
		return
	}

	mechanism := strings.ToUpper(fields[1])
	if c.starttlsRequiredForAuth() {
		c.reply(Answer{StatusTLSRequired, "Error: Must issue a STARTTLS command first"})
		return
	}
	if c.session.User != nil {
		c.reply(Answer{StatusBadSequence, "Error: already authenticated"})
		return
	}
	if !contains(c.server.config.AuthMethods, mechanism) {
		c.reply(Answer{StatusAuthMechanism, "Error: unrecognized authentication type"})
		return
	}

	var initial []byte
	if len(fields) > 2 {
		decoded, err := base64.StdEncoding.DecodeString(fields[2])
		if err != nil {
			c.reply(Answer{StatusSyntaxError, "Invalid base64"})
			return
		}
		initial = decoded
	}
	c.beginAuth(mechanism, initial)
}

func (c *Connection) starttlsRequiredForAuth() bool {
	return !c.server.config.HideSTARTTLS && c.server.certStore != nil && !c.secure
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

var xclientAllowedKeys = map[string]bool{
	"NAME": true, "ADDR": true, "PORT": true, "PROTO": true, "HELO": true, "LOGIN": true,
}

// handleXCLIENT implements the Postfix XCLIENT extension: it validates
// every KEY=VALUE token in the command before applying any of them, so a
// single malformed attribute cannot leave the connection half-updated.
func handleXCLIENT(c *Connection, line string) {
	if !c.server.config.UseXClient {
		c.reply(Answer{StatusNoValidRcpt, "Error: XCLIENT not supported"})
		return
	}
	if _, set := c.xclient["ADDR"]; set {
		c.reply(Answer{StatusNoValidRcpt, "Error: XCLIENT already set"})
		return
	}
	if c.session.Envelope.MailFrom != nil {
		c.reply(Answer{StatusBadSequence, "Error: MAIL transaction in progress"})
		return
	}

	type kv struct{ key, value string }
	var parsed []kv
	for _, tok := range strings.Fields(line)[1:] {
		key, value, found := strings.Cut(tok, "=")
		if !found {
			c.reply(Answer{StatusSyntaxErrParam, "Error: malformed XCLIENT parameter"})
			return
		}
		key = strings.ToUpper(key)
		if !xclientAllowedKeys[key] {
			c.reply(Answer{StatusSyntaxErrParam, "Error: unrecognized XCLIENT attribute " + key})
			return
		}
		if value == "[UNAVAILABLE]" || value == "[TEMPUNAVAIL]" {
			value = ""
		}
		parsed = append(parsed, kv{key, value})
	}

	for _, p := range parsed {
		c.xclient[p.key] = p.value
		switch p.key {
		case "LOGIN":
			if p.value == "" {
				c.session.User = nil
			} else {
				c.session.User = &AuthenticatedUser{Username: p.value}
			}
		case "ADDR":
			c.remoteAddress = p.value
			c.hostNameAppearsAs = ""
		case "NAME":
			if p.value == "" {
				c.clientHostname = fmt.Sprintf("[%s]", c.remoteAddress)
			} else {
				c.clientHostname = p.value
			}
		}
	}

	c.writeGreeting()
}

// handleWIZ, handleSHELL, handleKILL are parody stubs preserved for
// bug-for-bug compatibility with historical sendmail behavior; they are
// not security-relevant.
func handleWIZ(c *Connection, line string) {
	c.session.IsWizard = true
	c.reply(Answer{StatusOK, "Please pass, oh mighty wizard"})
}

func handleSHELL(c *Connection, line string) {
	c.log.Warn("SHELL command attempted")
	c.reply(Answer{StatusNotImplemented, "Error: command not implemented"})
}

func handleKILL(c *Connection, line string) {
	c.reply(Answer{StatusNotImplemented, "Error: command not implemented"})
}
