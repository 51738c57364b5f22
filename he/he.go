// Package he defines the boundary to the homomorphic-encryption
// substrate. The overlap protocol consumes only this interface; any
// scheme supporting encrypted-by-plaintext multiplication over {0,1}
// slot vectors can be substituted, including the in-process plaintext
// double used by tests.
package he

import "errors"

var (
	// ErrKeyGeneration indicates the substrate failed to produce a key pair.
	ErrKeyGeneration = errors.New("he: key generation failed")
	// ErrNoiseBudgetExhausted indicates a ciphertext can no longer be
	// multiplied or reliably decrypted. Fatal to the session; retrying
	// with the same ciphertext cannot help.
	ErrNoiseBudgetExhausted = errors.New("he: noise budget exhausted")
	// ErrVectorTooWide indicates the bit vector exceeds the scheme's slot capacity.
	ErrVectorTooWide = errors.New("he: bit vector exceeds slot capacity")
	// ErrVectorLength indicates operand vectors of different lengths.
	ErrVectorLength = errors.New("he: operand vector length mismatch")
	// ErrContextMismatch indicates a ciphertext produced under a different context.
	ErrContextMismatch = errors.New("he: ciphertext context mismatch")
	// ErrKeyDestroyed indicates use of key material after session termination.
	ErrKeyDestroyed = errors.New("he: private key destroyed")
)

// PublicContext identifies the public half of a key pair. It travels
// with ciphertexts so the far side can verify provenance.
type PublicContext interface {
	// Slots is the scheme's supported vector width; must be >= the
	// Bloom filter length m.
	Slots() int
	// ID tags ciphertexts produced under this context.
	ID() string
}

// PrivateKey is exclusively owned by the initiator's session and is
// never serialized to the far side.
type PrivateKey interface {
	// Destroy releases key material. The key is unusable afterwards.
	Destroy()
}

// Ciphertext is an opaque encrypted {0,1} vector.
type Ciphertext interface {
	// ContextID returns the ID of the context it was produced under.
	ContextID() string
	// CanMultiply reports whether the remaining noise budget admits one
	// more plaintext multiplication.
	CanMultiply() bool
}

// Capability is the two-party protocol's sole view of the cryptosystem.
type Capability interface {
	GenerateKeys() (PublicContext, PrivateKey, error)
	// Encrypt encrypts an ordered {0,1} slot vector.
	Encrypt(pc PublicContext, bits []uint64) (Ciphertext, error)
	// MultiplyPlain multiplies a ciphertext element-wise by a plaintext
	// {0,1} vector: slot-wise logical AND under encryption.
	MultiplyPlain(ct Ciphertext, bits []uint64) (Ciphertext, error)
	// Decrypt recovers the slot vector. Fails with
	// ErrNoiseBudgetExhausted instead of returning corrupt bits.
	Decrypt(sk PrivateKey, ct Ciphertext) ([]uint64, error)
}

// Codec serializes the artifacts a transport may move between parties:
// the public context and ciphertexts. Private keys deliberately have no
// codec representation.
type Codec interface {
	MarshalPublicContext(pc PublicContext) ([]byte, error)
	UnmarshalPublicContext(data []byte) (PublicContext, error)
	MarshalCiphertext(ct Ciphertext) ([]byte, error)
	UnmarshalCiphertext(data []byte) (Ciphertext, error)
}
