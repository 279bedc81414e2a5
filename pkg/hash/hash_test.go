package hash

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSHA256KnownDigest(t *testing.T) {
	h, err := New(SHA256)
	require.NoError(t, err)

	digest := h.Calculate([]byte("abc"))
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", digest)
	assert.True(t, h.Verify([]byte("abc"), digest))
	assert.False(t, h.Verify([]byte("abd"), digest))

	fromReader, err := h.CalculateReader(strings.NewReader("abc"))
	require.NoError(t, err)
	assert.Equal(t, digest, fromReader)
}

func TestUnsupportedAlgorithm(t *testing.T) {
	_, err := New("md4")
	assert.Error(t, err)
}

func TestMustNew(t *testing.T) {
	assert.Equal(t, SHA256, MustNew(SHA256).Algorithm())
	assert.Panics(t, func() { MustNew("md4") })
}
