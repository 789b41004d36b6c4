package mapping

// reader.go provides a tolerant decoding wrapper for uploaded files.
// Spreadsheet exports routinely carry a UTF-8 BOM and the occasional
// broken byte from a legacy encoding; both would otherwise abort the
// CSV parse mid-file.

import (
	"io"
	"unicode/utf8"
)

// NewCleanReader wraps r so that a leading UTF-8 BOM is dropped and any
// invalid UTF-8 byte is replaced with '?'. The wrapper streams: memory
// use is bounded by the read buffer, not the file size.
func NewCleanReader(r io.Reader) io.Reader {
	return &cleanReader{src: r}
}

type cleanReader struct {
	src        io.Reader
	bomChecked bool

	// carry holds bytes held back from the previous chunk: either the
	// first bytes of the stream until the BOM check has enough of them,
	// or the prefix of a multi-byte rune split across chunk boundaries.
	carry []byte
}

func (c *cleanReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	n := copy(p, c.carry)
	c.carry = c.carry[:0]

	m, err := c.src.Read(p[n:])
	n += m

	if !c.bomChecked {
		if n < 3 && err == nil {
			// Not enough bytes to decide on the BOM yet; hold them back.
			c.carry = append(c.carry, p[:n]...)
			return 0, nil
		}
		c.bomChecked = true
		if n >= 3 && p[0] == 0xEF && p[1] == 0xBB && p[2] == 0xBF {
			n = copy(p, p[3:n])
		}
	}

	if n == 0 {
		return 0, err
	}

	// Hold back a trailing incomplete rune so it is not misread as
	// invalid when its continuation bytes arrive in the next chunk.
	if err == nil {
		if keep := incompleteTail(p[:n]); keep > 0 {
			c.carry = append(c.carry, p[n-keep:n]...)
			n -= keep
		}
	}

	sanitize(p[:n])
	return n, err
}

// incompleteTail returns how many bytes at the end of data form the
// start of a rune whose remaining bytes have not arrived yet.
func incompleteTail(data []byte) int {
	end := len(data)
	for back := 1; back <= utf8.UTFMax && back <= end; back++ {
		b := data[end-back]
		if b < 0x80 {
			return 0 // ASCII, sequence complete
		}
		if b >= 0xC0 {
			// Lead byte: incomplete if its sequence extends past the end.
			if seqLen(b) > back {
				return back
			}
			return 0
		}
		// Continuation byte, keep scanning backwards for the lead.
	}
	return 0
}

func seqLen(lead byte) int {
	switch {
	case lead < 0xC0:
		return 1
	case lead < 0xE0:
		return 2
	case lead < 0xF0:
		return 3
	default:
		return 4
	}
}

// sanitize replaces every invalid UTF-8 byte in data with '?', in place.
// Valid runes pass through untouched, so the data never grows.
func sanitize(data []byte) {
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			data[i] = '?'
			i++
			continue
		}
		i += size
	}
}
