package smtp

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestHandleGreeting(t *testing.T) {
	Convey("Given a bare connection with no extensions configured", t, func() {
		c, replies := newTestConnection(testConfig(), Collaborators{})

		Convey("EHLO replies with the base feature set only", func() {
			c.dispatch("EHLO client.example.com")
			So(<-replies, ShouldEqual, "250-OK: Nice to meet you [pipe]")
			So(<-replies, ShouldEqual, "250-PIPELINING")
			So(<-replies, ShouldEqual, "250-8BITMIME")
			So(<-replies, ShouldEqual, "250 SMTPUTF8")
			So(c.hostNameAppearsAs, ShouldEqual, "client.example.com")
		})

		Convey("HELO replies with a single line", func() {
			c.dispatch("HELO client.example.com")
			So(<-replies, ShouldEqual, "250 localhost Hello [pipe]")
		})

		Convey("A malformed HELO is rejected", func() {
			c.dispatch("HELO")
			So(<-replies, ShouldEqual, "501 Syntax: HELO/EHLO hostname")
		})
	})

	Convey("Given a connection with AUTH and SIZE configured", t, func() {
		cfg := testConfig()
		cfg.AuthMethods = []string{"PLAIN", "LOGIN"}
		cfg.Size = 1024
		c, replies := newTestConnection(cfg, Collaborators{})

		Convey("EHLO advertises AUTH and SIZE in order after the base set", func() {
			c.dispatch("EHLO client.example.com")
			<-replies // greeting line
			<-replies // PIPELINING
			<-replies // 8BITMIME
			<-replies // SMTPUTF8
			So(<-replies, ShouldEqual, "250-AUTH PLAIN LOGIN")
			So(<-replies, ShouldEqual, "250 SIZE 1024")
		})
	})
}

func TestHandleXCLIENT(t *testing.T) {
	Convey("Given a connection with XCLIENT enabled", t, func() {
		cfg := testConfig()
		cfg.UseXClient = true
		c, replies := newTestConnection(cfg, Collaborators{})

		Convey("A fully valid XCLIENT line applies every attribute", func() {
			c.dispatch("XCLIENT NAME=mail.example.com ADDR=10.0.0.5 PORT=25 LOGIN=alice")
			So(<-replies, ShouldEqual, "220 localhost")
			So(c.clientHostname, ShouldEqual, "mail.example.com")
			So(c.remoteAddress, ShouldEqual, "10.0.0.5")
			So(c.xclient["PORT"], ShouldEqual, "25")
			So(c.session.User.Username, ShouldEqual, "alice")
		})

		Convey("An XCLIENT line with one invalid key applies no attribute at all", func() {
			before := c.clientHostname
			c.dispatch("XCLIENT NAME=mail.example.com BOGUS=1")
			So(<-replies, ShouldEqual, "501 Error: unrecognized XCLIENT attribute BOGUS")
			So(c.clientHostname, ShouldEqual, before)
			So(len(c.xclient), ShouldEqual, 0)
		})

		Convey("XCLIENT is refused once ADDR has already been set", func() {
			c.dispatch("XCLIENT ADDR=10.0.0.5")
			<-replies
			c.dispatch("XCLIENT ADDR=10.0.0.6")
			So(<-replies, ShouldEqual, "554 Error: XCLIENT already set")
		})

		Convey("XCLIENT is refused while a MAIL transaction is in progress", func() {
			c.hostNameAppearsAs = "client.example.com"
			c.dispatch("MAIL FROM:<a@example.com>")
			<-replies
			c.dispatch("XCLIENT ADDR=10.0.0.5")
			So(<-replies, ShouldEqual, "503 Error: MAIL transaction in progress")
		})
	})

	Convey("Given a connection with XCLIENT disabled", t, func() {
		c, replies := newTestConnection(testConfig(), Collaborators{})
		Convey("XCLIENT is rejected outright", func() {
			c.dispatch("XCLIENT ADDR=10.0.0.5")
			So(<-replies, ShouldEqual, "554 Error: XCLIENT not supported")
		})
	})
}

func TestHandleMailAndRcpt(t *testing.T) {
	Convey("Given a connection past HELO", t, func() {
		c, replies := newTestConnection(testConfig(), Collaborators{})
		c.hostNameAppearsAs = "client.example.com"

		Convey("MAIL FROM then RCPT TO both succeed", func() {
			c.dispatch("MAIL FROM:<a@example.com>")
			So(<-replies, ShouldEqual, "250 Accepted")

			c.dispatch("RCPT TO:<b@example.com>")
			So(<-replies, ShouldEqual, "250 Accepted")
			So(len(c.session.Envelope.RcptTo), ShouldEqual, 1)
		})

		Convey("A second MAIL FROM without RSET is a nested command error", func() {
			c.dispatch("MAIL FROM:<a@example.com>")
			<-replies
			c.dispatch("MAIL FROM:<c@example.com>")
			So(<-replies, ShouldEqual, "503 Error: nested MAIL command")
		})

		Convey("RCPT before MAIL is rejected", func() {
			c.dispatch("RCPT TO:<b@example.com>")
			So(<-replies, ShouldEqual, "503 Error: need MAIL command")
		})

		Convey("A collaborator rejecting RCPT surfaces its own code and message", func() {
			c2, replies2 := newTestConnection(testConfig(), Collaborators{
				OnRcptTo: func(rec AddressRecord, s *Session) error {
					return NewError(550, "Error: mailbox unavailable")
				},
			})
			c2.hostNameAppearsAs = "client.example.com"
			c2.dispatch("MAIL FROM:<a@example.com>")
			<-replies2
			c2.dispatch("RCPT TO:<b@example.com>")
			So(<-replies2, ShouldEqual, "550 Error: mailbox unavailable")
		})
	})
}
