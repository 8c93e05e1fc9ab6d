package fingerprint

import (
	"bytes"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helloSHA256 = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

func TestBytes_KnownDigest(t *testing.T) {
	d := Bytes([]byte("hello"))
	assert.Equal(t, helloSHA256, d.Hex)
	assert.Equal(t, int64(5), d.Size)
}

func TestSum_ChunkSizeDoesNotChangeDigest(t *testing.T) {
	data := make([]byte, 100_003)
	_, err := rand.Read(data)
	require.NoError(t, err)

	want := Bytes(data)
	for _, n := range []int{1, 7, 4096, DefaultChunkSize, 1 << 20, 0} {
		got, err := SumWithChunkSize(bytes.NewReader(data), n)
		require.NoError(t, err)
		assert.Equal(t, want, got, "chunk size %d", n)
	}
}

func TestSum_Empty(t *testing.T) {
	d, err := Sum(bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", d.Hex)
	assert.Zero(t, d.Size)
}

func TestFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(p, []byte("hello"), 0o600))

	d, err := File(p)
	require.NoError(t, err)
	assert.Equal(t, helloSHA256, d.Hex)

	_, err = File(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, os.ErrClosed }

func TestSum_ReadError(t *testing.T) {
	_, err := Sum(failingReader{})
	require.ErrorIs(t, err, os.ErrClosed)
}
