package smtp

import (
	"bufio"
	"net"
	"strings"
)

// newTestConnection builds a ready, ready-for-dispatch Connection backed by
// an in-memory net.Pipe, with cfg and collab wired through a fresh Server.
// replies delivers every line the Connection writes back, trimmed of its
// CRLF terminator; a background goroutine keeps the pipe drained for the
// lifetime of the test (net.Pipe is unbuffered, so dispatch's c.reply would
// otherwise deadlock with nothing on the other end to read it).
func newTestConnection(cfg Config, collab Collaborators) (c *Connection, replies <-chan string) {
	server := NewServer(cfg, collab, nil, nil)
	local, peer := net.Pipe()
	c = newConnection(server, local)
	c.connectionReady()

	out := make(chan string, 64)
	go func() {
		scanner := bufio.NewScanner(peer)
		for scanner.Scan() {
			out <- strings.TrimSuffix(scanner.Text(), "\r")
		}
		close(out)
	}()
	return c, out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxClients = 10
	return cfg
}

// newUnreadyTestConnection is newTestConnection without the connectionReady
// call, for exercising dispatch's not-ready gates.
func newUnreadyTestConnection(cfg Config, collab Collaborators) (c *Connection, replies <-chan string) {
	server := NewServer(cfg, collab, nil, nil)
	local, peer := net.Pipe()
	c = newConnection(server, local)

	out := make(chan string, 64)
	go func() {
		scanner := bufio.NewScanner(peer)
		for scanner.Scan() {
			out <- strings.TrimSuffix(scanner.Text(), "\r")
		}
		close(out)
	}()
	return c, out
}
