// Package crypto provides the default implementations of the narrow
// model.Signer/model.Verifier collaborators. spec.md §1 scopes
// "key/signature primitives" out of the consensus core's concern;
// signing is the one primitive the core must still exercise concretely
// to compute a HashSignature, and none of the pack's bespoke curve
// libraries (go-secp256k1, bls, kzg) is a drop-in substitute for a
// generic sign/verify contract, so this one component is built directly
// on stdlib crypto/ed25519 rather than forcing an unrelated library into
// the role (see DESIGN.md).
package crypto

import (
	"crypto/ed25519"

	"github.com/jet-cloud/constellation/domain/consensus/model/externalapi"
	"github.com/pkg/errors"
)

// Ed25519Signer signs base hashes with a fixed private key.
type Ed25519Signer struct {
	id         *externalapi.Id
	privateKey ed25519.PrivateKey
}

// NewEd25519Signer wraps a private key as a Signer, deriving the node's
// Id from the corresponding public key.
func NewEd25519Signer(privateKey ed25519.PrivateKey) *Ed25519Signer {
	publicKey := privateKey.Public().(ed25519.PublicKey)
	return &Ed25519Signer{id: externalapi.NewId(publicKey), privateKey: privateKey}
}

// Id returns the signer's node identity.
func (s *Ed25519Signer) Id() *externalapi.Id { return s.id }

// Sign implements model.Signer.
func (s *Ed25519Signer) Sign(baseHash externalapi.Hash) (*externalapi.HashSignature, error) {
	sig := ed25519.Sign(s.privateKey, baseHash[:])
	return &externalapi.HashSignature{SignerId: s.id.Clone(), Signature: sig}, nil
}

// Ed25519Verifier verifies signatures against the claimed signer's
// embedded public key.
type Ed25519Verifier struct{}

// NewEd25519Verifier returns a stateless Verifier.
func NewEd25519Verifier() *Ed25519Verifier { return &Ed25519Verifier{} }

// Verify implements model.Verifier.
func (v *Ed25519Verifier) Verify(baseHash externalapi.Hash, sig *externalapi.HashSignature) bool {
	if sig == nil || sig.SignerId == nil {
		return false
	}
	publicKey := ed25519.PublicKey(sig.SignerId.Bytes())
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(publicKey, baseHash[:], sig.Signature)
}

// GenerateKey is a thin convenience wrapper so callers (tests, cmd/)
// don't need to import crypto/ed25519/rand directly. It returns only the
// private key: NewEd25519Signer derives the public key (and node Id) from
// it, so callers never need the public half on its own.
func GenerateKey() (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate ed25519 key")
	}
	return priv, nil
}
