// Package proxyheader parses the single-line PROXY protocol v1 header
// expected before the greeting when the server runs behind a proxy. The
// textual v1 header is five whitespace-separated fields, so it's parsed
// directly with stdlib strings rather than pulling in a general-purpose
// PROXY protocol library built for the full binary-capable v1/v2 spec.
package proxyheader

import (
	"fmt"
	"strings"
)

// Header is the parsed form of a PROXY v1 line. Only SourceAddress is
// consumed (it replaces Connection.remoteAddress, lowercased); the
// remaining fields are kept for completeness/logging.
type Header struct {
	Protocol      string
	SourceAddress string
	DestAddress   string
	SourcePort    string
	DestPort      string
}

// Parse validates that line begins with "PROXY" and splits the remaining
// fields positionally. The field after "PROXY" is the protocol; the one
// after that, when present, is the source address, which is lowercased.
func Parse(line string) (*Header, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || !strings.EqualFold(fields[0], "PROXY") {
		return nil, fmt.Errorf("proxyheader: invalid PROXY header")
	}

	h := &Header{}
	if len(fields) > 1 {
		h.Protocol = fields[1]
	}
	if len(fields) > 2 {
		h.SourceAddress = strings.ToLower(fields[2])
	}
	if len(fields) > 3 {
		h.DestAddress = fields[3]
	}
	if len(fields) > 4 {
		h.SourcePort = fields[4]
	}
	if len(fields) > 5 {
		h.DestPort = fields[5]
	}
	return h, nil
}
