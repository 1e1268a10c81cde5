package hashes

import (
	"crypto/sha256"
	"hash"

	"github.com/jet-cloud/constellation/domain/consensus/model/externalapi"
)

// HashWriter incrementally hashes written bytes into a single
// externalapi.Hash. It exists so callers can build up a hash from several
// disjoint fields (e.g. a block's content minus its signatures) without
// concatenating them into one intermediate buffer first.
type HashWriter struct {
	inner hash.Hash
}

// NewHashWriter returns a HashWriter ready to accept Write calls.
func NewHashWriter() *HashWriter {
	return &HashWriter{inner: sha256.New()}
}

// Write implements io.Writer. It never returns an error; sha256's Write
// is specified to always succeed.
func (w *HashWriter) Write(p []byte) (int, error) {
	return w.inner.Write(p)
}

// Finalize returns the digest of everything written so far.
func (w *HashWriter) Finalize() *externalapi.Hash {
	var result externalapi.Hash
	w.inner.Sum(result[:0])
	return &result
}

// HashBytes is a convenience one-shot hash of a single byte slice.
func HashBytes(data []byte) *externalapi.Hash {
	w := NewHashWriter()
	_, _ = w.Write(data)
	return w.Finalize()
}
