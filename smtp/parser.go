package smtp

import (
	"bufio"
	"bytes"
	"io"
)

// byteStream is the transport contract a LineParser runs over: a reliable
// ordered bidirectional byte stream, replaceable in-place by a
// TLS-wrapping stream sharing the same peer identity.
type byteStream interface {
	io.Reader
	io.Writer
}

// LineParser turns a raw byte stream into either one command line at a
// time (COMMAND mode) or a byte sink (DATA mode), and can be rebound onto
// a new stream in place for STARTTLS.
//
// There is no explicit continuation callback: a Connection drives this
// from a single goroutine, so the next readCommandLine call already
// blocks until the previous handler finished using the line it was
// given.
type LineParser struct {
	stream byteStream
	br     *bufio.Reader
}

// maxCommandLine caps a command line's length; RFC 5321 §4.5.3.1.4
// requires 512 octets, extensions may raise it, but the engine caps
// generously to bound memory from a misbehaving client.
const maxCommandLine = 8192

func newLineParser(stream byteStream) *LineParser {
	return &LineParser{stream: stream, br: bufio.NewReaderSize(stream, 4096)}
}

// rebind atomically swaps the underlying stream (and buffered reader),
// discarding only what had not yet been consumed — used by STARTTLS (RFC
// 3207) to re-pipe onto the TLS-wrapped connection without losing or
// duplicating input. Must be called between command lines, never
// mid-read.
func (p *LineParser) rebind(stream byteStream) {
	p.stream = stream
	p.br = bufio.NewReaderSize(stream, 4096)
}

// readCommandLine reads bytes up to and including "<CR><LF>" and returns
// the line with the terminator stripped. A lone CR or LF that isn't
// immediately followed by its counterpart is tolerated as ordinary line
// content.
func (p *LineParser) readCommandLine() (string, error) {
	var buf []byte
	for {
		b, err := p.br.ReadByte()
		if err != nil {
			return "", err
		}
		buf = append(buf, b)
		if len(buf) >= 2 && buf[len(buf)-2] == '\r' && buf[len(buf)-1] == '\n' {
			return string(buf[:len(buf)-2]), nil
		}
		if len(buf) > maxCommandLine {
			return "", ErrLineTooLong
		}
	}
}

// DataSink is the readable byte sink handed to the onData collaborator
// while the parser is in DATA mode. It is an io.Reader; once the
// terminator is seen, Reads return io.EOF.
type DataSink struct {
	pr *io.PipeReader
}

func (d *DataSink) Read(p []byte) (int, error) {
	return d.pr.Read(p)
}

// Close unblocks feedData if the collaborator returned without reading
// the sink to EOF: an io.Pipe's Write blocks until something reads, so a
// collaborator that stops early would otherwise leave feedData's pw.Write
// parked forever. handleDATA calls this once onData returns, regardless
// of outcome.
func (d *DataSink) Close() error {
	return d.pr.CloseWithError(io.ErrClosedPipe)
}

// dataResult reports what happened while feeding a DataSink.
type dataResult struct {
	bytes        int64 // pre-unstuffing byte count, for logging/limits
	sizeExceeded bool
	err          error
}

// startDataMode enters DATA mode (RFC 5321 §4.1.1.4): it returns a
// DataSink the caller hands to onData, plus a channel that receives
// exactly one dataResult once
// the terminator has been read (or an I/O error aborts the feed). The feed
// runs on its own goroutine because the sink's reader end is drained by the
// application concurrently with bytes still arriving from the network;
// readCommandLine is never called again until that goroutine finishes, so
// there is still only one active consumer of the underlying stream.
func (p *LineParser) startDataMode(maxSize int64) (*DataSink, <-chan dataResult) {
	pr, pw := io.Pipe()
	done := make(chan dataResult, 1)

	go p.feedData(pw, maxSize, done)

	return &DataSink{pr: pr}, done
}

// feedData reads CRLF-terminated lines from the underlying stream,
// dot-unstuffs them, and writes them to pw until it sees the bare "."
// terminator line. It always drains the full message even past maxSize,
// since the size error is a policy decision made by handleDATA, not a
// reason to desynchronize the stream.
func (p *LineParser) feedData(pw *io.PipeWriter, maxSize int64, done chan<- dataResult) {
	var total int64
	var sizeExceeded bool

	for {
		line, err := p.readRawDataLine()
		if err != nil {
			pw.CloseWithError(err)
			done <- dataResult{bytes: total, sizeExceeded: sizeExceeded, err: err}
			return
		}

		total += int64(len(line))
		if maxSize > 0 && total > maxSize {
			sizeExceeded = true
		}

		if isDataTerminator(line) {
			pw.Close()
			done <- dataResult{bytes: total, sizeExceeded: sizeExceeded}
			return
		}

		unstuffed := unstuffDot(line)
		if !sizeExceeded {
			if _, werr := pw.Write(unstuffed); werr != nil {
				// Application stopped reading; keep draining the
				// socket so the protocol state machine stays in sync.
				continue
			}
		}
	}
}

// readRawDataLine reads one CRLF-terminated line in DATA mode, returned
// with its terminator intact (dot-unstuffing/terminator-detection need to
// see it).
func (p *LineParser) readRawDataLine() ([]byte, error) {
	var buf []byte
	for {
		b, err := p.br.ReadByte()
		if err != nil {
			return nil, err
		}
		buf = append(buf, b)
		if len(buf) >= 2 && buf[len(buf)-2] == '\r' && buf[len(buf)-1] == '\n' {
			return buf, nil
		}
	}
}

// isDataTerminator reports whether line is exactly "<CR><LF>.<CR><LF>"'s
// per-line form, i.e. the bare single dot.
func isDataTerminator(line []byte) bool {
	return bytes.Equal(line, []byte(".\r\n"))
}

// unstuffDot removes one leading dot from a line that starts with "..",
// per RFC 5321 §4.5.2's transparency rule.
func unstuffDot(line []byte) []byte {
	if bytes.HasPrefix(line, []byte("..")) {
		return line[1:]
	}
	return line
}
