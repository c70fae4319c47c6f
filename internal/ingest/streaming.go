package ingest

// streaming.go provides io.Reader wrappers applied in front of the CSV
// reader so that whole files never need to be held in memory:
//
//   - bomSkippingReader: removes a UTF-8 BOM (0xEF 0xBB 0xBF) that Windows
//     tools commonly prepend to exported CSV files
//   - utf8SanitizingReader: replaces invalid UTF-8 bytes with '?' on the fly
//
// WrapForStreaming applies both in the correct order.

import (
	"io"
	"unicode/utf8"
)

// WrapForStreaming wraps r with BOM skipping and UTF-8 sanitization.
// BOM stripping must run first so the sanitizer never sees a partial BOM.
func WrapForStreaming(r io.Reader) io.Reader {
	return newUTF8SanitizingReader(newBOMSkippingReader(r))
}

// bomSkippingReader skips a leading UTF-8 BOM if present.
type bomSkippingReader struct {
	reader  io.Reader
	checked bool
	held    []byte
}

func newBOMSkippingReader(r io.Reader) *bomSkippingReader {
	return &bomSkippingReader{reader: r}
}

func (r *bomSkippingReader) Read(p []byte) (int, error) {
	if !r.checked {
		r.checked = true

		var head [3]byte
		n, err := io.ReadFull(r.reader, head[:])
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		if n > 0 {
			if n == 3 && head[0] == 0xEF && head[1] == 0xBB && head[2] == 0xBF {
				// BOM found, drop it
			} else {
				r.held = append(r.held, head[:n]...)
			}
		}
		if err != nil && err != io.EOF {
			return 0, err
		}
	}

	if len(r.held) > 0 {
		n := copy(p, r.held)
		r.held = r.held[n:]
		return n, nil
	}

	return r.reader.Read(p)
}

// utf8SanitizingReader replaces invalid UTF-8 sequences with '?' as data
// streams through. A single-byte replacement keeps the output no larger than
// the input, so sanitization happens in place in the caller's buffer.
type utf8SanitizingReader struct {
	reader io.Reader

	// Trailing bytes from the previous read that may start a multi-byte
	// sequence completed by the next read.
	pending []byte
}

func newUTF8SanitizingReader(r io.Reader) *utf8SanitizingReader {
	return &utf8SanitizingReader{
		reader:  r,
		pending: make([]byte, 0, utf8.UTFMax),
	}
}

func (s *utf8SanitizingReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	offset := 0
	if len(s.pending) > 0 {
		offset = copy(p, s.pending)
		s.pending = s.pending[:0]
	}

	n, err := s.reader.Read(p[offset:])
	n += offset
	if n == 0 {
		return 0, err
	}

	// Fast path: CSV exports are overwhelmingly ASCII.
	if allASCII(p[:n]) {
		return n, err
	}

	return s.sanitize(p[:n], err == io.EOF), err
}

func allASCII(data []byte) bool {
	for _, b := range data {
		if b >= 0x80 {
			return false
		}
	}
	return true
}

// sanitize rewrites data in place and returns the number of valid bytes.
// When not at EOF, an incomplete trailing sequence is carried over to the
// next read instead of being judged invalid early.
func (s *utf8SanitizingReader) sanitize(data []byte, atEOF bool) int {
	write := 0
	for read := 0; read < len(data); {
		r, size := utf8.DecodeRune(data[read:])

		if !atEOF && incompleteRune(data[read:]) {
			s.pending = append(s.pending, data[read:]...)
			return write
		}

		if r == utf8.RuneError && size == 1 {
			data[write] = '?'
			write++
			read++
			continue
		}

		copy(data[write:], data[read:read+size])
		write += size
		read += size
	}
	return write
}

// incompleteRune reports whether data holds only the prefix of a multi-byte
// UTF-8 sequence.
func incompleteRune(data []byte) bool {
	if len(data) == 0 || data[0] < 0xC0 {
		return false
	}
	var want int
	switch {
	case data[0] < 0xE0:
		want = 2
	case data[0] < 0xF0:
		want = 3
	default:
		want = 4
	}
	return len(data) < want
}
