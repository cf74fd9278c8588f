// Package cryptoprim implements the small set of cryptographic
// primitives the session state machine depends on (spec.md section 6):
// SHA-256, HMAC-SHA-256, single-block AES-256-CBC, and a CSPRNG. The
// wrapper shape follows other_examples's occlude PAKE implementation,
// which builds its handshake out of the same stdlib quartet
// (crypto/aes, crypto/cipher, crypto/hmac, crypto/sha256) rather than a
// third-party crypto library — there is no better-fit ecosystem library
// for primitives this close to the standard ones.
package cryptoprim

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
)

// BlockSize is the AES block size in bytes, and also the wire protocol's
// block granularity (spec.md section 4.2).
const BlockSize = aes.BlockSize // 16

// Primitives is the abstract crypto dependency spec.md section 6
// requires. Failures here are treated as unrecoverable programming
// errors per spec.md section 7 and panic rather than return an error —
// a malformed key or nonzero-length mismatch is a caller bug, not a
// runtime condition the protocol can recover from.
type Primitives interface {
	// SHA256 returns the 32-byte digest of data.
	SHA256(data []byte) [32]byte
	// HMACSHA256 returns HMAC-SHA-256(key, data).
	HMACSHA256(key, data []byte) [32]byte
	// RandomBytes fills and returns n cryptographically random bytes.
	RandomBytes(n int) []byte
	// NewCipher returns a keyed AES-256 block cipher, usable for both
	// encryption and decryption.
	NewCipher(key [32]byte) cipher.Block
}

// Std is the standard-library-backed implementation of Primitives.
type Std struct{}

func (Std) SHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

func (Std) HMACSHA256(key, data []byte) [32]byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out
}

func (Std) RandomBytes(n int) []byte {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("cryptoprim: CSPRNG failure: %v", err))
	}
	return buf
}

func (Std) NewCipher(key [32]byte) cipher.Block {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		panic(fmt.Sprintf("cryptoprim: AES key schedule failure: %v", err))
	}
	return block
}

// CBCEncryptBlock encrypts one 16-byte block under block with iv as the
// chaining input, returning the ciphertext and the next iv (== the
// ciphertext produced), per spec.md section 4.2's "CBC across the whole
// session, not per-message" requirement: callers must feed the returned
// iv into the next call rather than resetting it.
func CBCEncryptBlock(block cipher.Block, iv [BlockSize]byte, plaintext [BlockSize]byte) (ciphertext, nextIV [BlockSize]byte) {
	mode := cipher.NewCBCEncrypter(block, iv[:])
	mode.CryptBlocks(ciphertext[:], plaintext[:])
	nextIV = ciphertext
	return
}

// CBCDecryptBlock decrypts one 16-byte block, returning the plaintext
// and the next iv (== the ciphertext just consumed).
func CBCDecryptBlock(block cipher.Block, iv [BlockSize]byte, ciphertext [BlockSize]byte) (plaintext, nextIV [BlockSize]byte) {
	mode := cipher.NewCBCDecrypter(block, iv[:])
	mode.CryptBlocks(plaintext[:], ciphertext[:])
	nextIV = ciphertext
	return
}
