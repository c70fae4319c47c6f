package ingest

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestBOMSkippingReader(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "file with BOM",
			input:    append([]byte{0xEF, 0xBB, 0xBF}, []byte("hello,world")...),
			expected: "hello,world",
		},
		{
			name:     "file without BOM",
			input:    []byte("hello,world"),
			expected: "hello,world",
		},
		{
			name:     "empty file",
			input:    []byte{},
			expected: "",
		},
		{
			name:     "only BOM",
			input:    []byte{0xEF, 0xBB, 0xBF},
			expected: "",
		},
		{
			name:     "partial BOM at start",
			input:    []byte{0xEF, 0xBB, 'a', 'b', 'c'},
			expected: string([]byte{0xEF, 0xBB, 'a', 'b', 'c'}),
		},
		{
			name:     "input shorter than BOM",
			input:    []byte{'h', 'i'},
			expected: "hi",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := io.ReadAll(newBOMSkippingReader(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(result) != tt.expected {
				t.Errorf("got %q, want %q", string(result), tt.expected)
			}
		})
	}
}

func TestUTF8SanitizingReader(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "ascii unchanged",
			input:    []byte("plain ascii text"),
			expected: "plain ascii text",
		},
		{
			name:     "valid multibyte unchanged",
			input:    []byte("caf\xc3\xa9"),
			expected: "caf\xc3\xa9",
		},
		{
			name:     "invalid byte replaced",
			input:    []byte("abc\x80def"),
			expected: "abc?def",
		},
		{
			name:     "windows-1252 smart quotes replaced",
			input:    []byte("say \x93hi\x94"),
			expected: "say ?hi?",
		},
		{
			name:     "truncated sequence at end",
			input:    []byte("abc\xc3"),
			expected: "abc?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := io.ReadAll(newUTF8SanitizingReader(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(result) != tt.expected {
				t.Errorf("got %q, want %q", string(result), tt.expected)
			}
		})
	}
}

// TestUTF8SanitizingReader_SplitAcrossReads ensures a multi-byte sequence
// straddling a read boundary is not mangled.
func TestUTF8SanitizingReader_SplitAcrossReads(t *testing.T) {
	input := []byte("aa\xc3\xa9bb") // "aaébb"
	r := newUTF8SanitizingReader(&chunkReader{data: input, chunk: 3})

	result, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result) != "aa\xc3\xa9bb" {
		t.Errorf("got %q, want %q", string(result), "aa\xc3\xa9bb")
	}
}

func TestWrapForStreaming(t *testing.T) {
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte("col\x80umn")...)

	result, err := io.ReadAll(WrapForStreaming(bytes.NewReader(input)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result) != "col?umn" {
		t.Errorf("got %q, want %q", string(result), "col?umn")
	}
}

func TestWrapForStreaming_LargeASCII(t *testing.T) {
	input := strings.Repeat("2344,22/04/2019 09:24,1002\n", 1000)

	result, err := io.ReadAll(WrapForStreaming(strings.NewReader(input)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result) != input {
		t.Error("ASCII input should pass through unchanged")
	}
}

// chunkReader reads at most chunk bytes per call, to exercise boundary
// handling.
type chunkReader struct {
	data  []byte
	chunk int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := r.chunk
	if n > len(p) {
		n = len(p)
	}
	if n > len(r.data) {
		n = len(r.data)
	}
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}
