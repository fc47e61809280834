package smtp

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestEnvelopeAddRcpt(t *testing.T) {
	Convey("Given an envelope with one recipient", t, func() {
		e := Envelope{}
		e.addRcpt(AddressRecord{Address: "alice@example.com"})

		Convey("Adding a recipient with different casing replaces the existing entry in place", func() {
			e.addRcpt(AddressRecord{Address: "Alice@Example.com", Args: map[string]string{"NOTIFY": "SUCCESS"}})
			So(len(e.RcptTo), ShouldEqual, 1)
			So(e.RcptTo[0].Address, ShouldEqual, "Alice@Example.com")
			So(e.RcptTo[0].Args["NOTIFY"], ShouldEqual, "SUCCESS")
		})

		Convey("Adding a genuinely new recipient appends", func() {
			e.addRcpt(AddressRecord{Address: "bob@example.com"})
			So(len(e.RcptTo), ShouldEqual, 2)
		})
	})
}

func TestNewSession(t *testing.T) {
	Convey("Given a Connection with no transactions yet", t, func() {
		c, _ := newTestConnection(testConfig(), Collaborators{})

		Convey("A fresh Session carries Transaction = transactionCounter + 1 without mutating the counter", func() {
			s := newSession(c)
			So(s.Transaction, ShouldEqual, 1)
			So(c.transactionCounter, ShouldEqual, 0)

			s2 := newSession(c)
			So(s2.Transaction, ShouldEqual, 1)
		})

		Convey("An authenticated user is carried forward across a new Session", func() {
			c.session.User = &AuthenticatedUser{Username: "mathias"}
			s := newSession(c)
			So(s.User, ShouldNotEqual, nil)
			So(s.User.Username, ShouldEqual, "mathias")
		})
	})
}
