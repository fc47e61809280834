// Package connid generates the opaque per-connection correlation tag used
// for log correlation across a connection's lifetime.
package connid

import "github.com/google/uuid"

// New returns a fresh 12-character hex tag, using github.com/google/uuid
// as the random source: uuid.New() isn't itself 12 characters long, so
// only the first 6 random bytes of a v4 UUID are hex-encoded.
func New() string {
	id := uuid.New()
	const hextable = "0123456789abcdef"
	buf := make([]byte, 12)
	for i := 0; i < 6; i++ {
		b := id[i]
		buf[i*2] = hextable[b>>4]
		buf[i*2+1] = hextable[b&0x0f]
	}
	return string(buf)
}
