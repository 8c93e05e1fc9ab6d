// Package fingerprint computes the content identity of ingested bytes: a hex
// SHA-256 digest streamed in bounded chunks.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// DefaultChunkSize bounds the read buffer used by Sum.
const DefaultChunkSize = 32 * 1024

// Digest is the fingerprint of a byte stream together with its length.
type Digest struct {
	Hex  string
	Size int64
}

// Sum hashes r until EOF using DefaultChunkSize reads.
func Sum(r io.Reader) (Digest, error) {
	return SumWithChunkSize(r, DefaultChunkSize)
}

// SumWithChunkSize hashes r reading at most n bytes at a time. The digest does
// not depend on n.
func SumWithChunkSize(r io.Reader, n int) (Digest, error) {
	if n <= 0 {
		n = DefaultChunkSize
	}

	h := sha256.New()
	buf := make([]byte, n)
	size, err := io.CopyBuffer(h, onlyReader{r}, buf)
	if err != nil {
		return Digest{}, fmt.Errorf("fingerprint: %w", err)
	}

	return Digest{Hex: hex.EncodeToString(h.Sum(nil)), Size: size}, nil
}

// File fingerprints the file at path.
func File(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("fingerprint: %w", err)
	}
	defer f.Close()
	return Sum(f)
}

// Bytes fingerprints an in-memory buffer.
func Bytes(b []byte) Digest {
	d, _ := Sum(bytes.NewReader(b))
	return d
}

// onlyReader hides WriterTo so io.CopyBuffer honours the chunk size.
type onlyReader struct{ r io.Reader }

func (o onlyReader) Read(p []byte) (int, error) { return o.r.Read(p) }
