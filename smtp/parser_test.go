package smtp

import (
	"bytes"
	"io"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

// loopbackStream is an in-memory byteStream: writes accumulate in Out,
// reads are served from In.
type loopbackStream struct {
	In  *bytes.Buffer
	Out *bytes.Buffer
}

func (s *loopbackStream) Read(p []byte) (int, error)  { return s.In.Read(p) }
func (s *loopbackStream) Write(p []byte) (int, error) { return s.Out.Write(p) }

func newLoopback(input string) *loopbackStream {
	return &loopbackStream{In: bytes.NewBufferString(input), Out: &bytes.Buffer{}}
}

func TestReadCommandLine(t *testing.T) {
	Convey("Given a LineParser over a fixed input", t, func() {
		stream := newLoopback("EHLO client.example.com\r\nQUIT\r\n")
		p := newLineParser(stream)

		Convey("It reads each CRLF-terminated line with the terminator stripped", func() {
			line, err := p.readCommandLine()
			So(err, ShouldEqual, nil)
			So(line, ShouldEqual, "EHLO client.example.com")

			line, err = p.readCommandLine()
			So(err, ShouldEqual, nil)
			So(line, ShouldEqual, "QUIT")
		})

		Convey("A final read past the input returns an error", func() {
			p.readCommandLine()
			p.readCommandLine()
			_, err := p.readCommandLine()
			So(err, ShouldNotEqual, nil)
		})
	})

	Convey("A line exceeding the maximum length is rejected", t, func() {
		huge := bytes.Repeat([]byte("a"), maxCommandLine+10)
		stream := newLoopback(string(huge) + "\r\n")
		p := newLineParser(stream)
		_, err := p.readCommandLine()
		So(err, ShouldEqual, ErrLineTooLong)
	})
}

func TestDataMode(t *testing.T) {
	Convey("Given a LineParser in DATA mode", t, func() {
		Convey("A message terminates at the bare dot and is delivered intact", func() {
			stream := newLoopback("Subject: hi\r\nBody line.\r\n.\r\n")
			p := newLineParser(stream)
			sink, done := p.startDataMode(0)

			body, err := io.ReadAll(sink)
			So(err, ShouldEqual, nil)
			So(string(body), ShouldEqual, "Subject: hi\r\nBody line.\r\n")

			result := <-done
			So(result.sizeExceeded, ShouldEqual, false)
		})

		Convey("A leading double dot is unstuffed to a single dot", func() {
			stream := newLoopback("..this line started with a dot\r\n.\r\n")
			p := newLineParser(stream)
			sink, done := p.startDataMode(0)

			body, _ := io.ReadAll(sink)
			So(string(body), ShouldEqual, ".this line started with a dot\r\n")
			<-done
		})

		Convey("A message over the size limit is drained fully and reported as exceeded", func() {
			stream := newLoopback("0123456789\r\n0123456789\r\n.\r\n")
			p := newLineParser(stream)
			sink, done := p.startDataMode(5)

			io.ReadAll(sink)
			result := <-done
			So(result.sizeExceeded, ShouldEqual, true)
		})
	})
}

func TestIsDataTerminator(t *testing.T) {
	Convey("isDataTerminator matches only the bare dot line", t, func() {
		So(isDataTerminator([]byte(".\r\n")), ShouldEqual, true)
		So(isDataTerminator([]byte("..\r\n")), ShouldEqual, false)
		So(isDataTerminator([]byte("hello\r\n")), ShouldEqual, false)
	})
}
