package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

type Algorithm string

const (
	SHA256 Algorithm = "sha256"
)

// Hasher computes hex digests for evidence blobs.
type Hasher struct {
	algorithm Algorithm
}

func New(algorithm Algorithm) (*Hasher, error) {
	if _, err := newHash(algorithm); err != nil {
		return nil, err
	}
	return &Hasher{algorithm: algorithm}, nil
}

// MustNew is New for algorithms fixed at compile time. It panics on an
// unsupported algorithm.
func MustNew(algorithm Algorithm) *Hasher {
	h, err := New(algorithm)
	if err != nil {
		panic(err)
	}
	return h
}

func (h *Hasher) Algorithm() Algorithm {
	return h.algorithm
}

func (h *Hasher) Calculate(data []byte) string {
	hasher, _ := newHash(h.algorithm)
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil))
}

func (h *Hasher) CalculateReader(reader io.Reader) (string, error) {
	hasher, _ := newHash(h.algorithm)
	if _, err := io.Copy(hasher, reader); err != nil {
		return "", fmt.Errorf("failed to read data: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func (h *Hasher) Verify(data []byte, expected string) bool {
	return h.Calculate(data) == expected
}

func newHash(algorithm Algorithm) (hash.Hash, error) {
	switch algorithm {
	case SHA256:
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", algorithm)
	}
}
