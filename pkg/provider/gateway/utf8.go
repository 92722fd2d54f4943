package gateway

import "unicode/utf8"

// utf8Coalescer buffers incoming bytes and releases only complete UTF-8
// sequences, so a multi-byte character split across two SSE events is never
// emitted as replacement runes.
type utf8Coalescer struct {
	pending []byte
}

// Write appends b and returns the longest prefix of the buffer that ends on
// a rune boundary. Incomplete trailing bytes stay buffered for the next call.
func (c *utf8Coalescer) Write(b []byte) string {
	c.pending = append(c.pending, b...)

	n := len(c.pending)
	cut := n
	// Look back at most three bytes for the start of an incomplete rune.
	// Anything older is either complete or plain garbage, which passes
	// through so a bad byte cannot stall the stream.
	for back := 1; back < utf8.UTFMax && back <= n; back++ {
		i := n - back
		if c.pending[i] < 0x80 {
			break
		}
		if utf8.RuneStart(c.pending[i]) {
			if !utf8.FullRune(c.pending[i:]) {
				cut = i
			}
			break
		}
	}

	out := string(c.pending[:cut])
	c.pending = append(c.pending[:0], c.pending[cut:]...)
	return out
}

// Flush returns everything still buffered, complete or not.
func (c *utf8Coalescer) Flush() string {
	out := string(c.pending)
	c.pending = c.pending[:0]
	return out
}
