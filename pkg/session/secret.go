package session

import (
	"sync"

	"github.com/kclauber/pico-wifi-settings/pkg/cryptoprim"
	"github.com/kclauber/pico-wifi-settings/pkg/wire"
)

// SecretDigest holds the 32-byte shared-secret digest derived from the
// settings file's update_secret value (spec.md section 3): iterated
// SHA-256 over 4096 rounds, each round hashing the previous digest
// concatenated with the raw secret. It also tracks whether a usable
// secret is currently loaded.
//
// Per spec.md section 5, a reload must never run in the middle of a
// handshake; apart from the initial load at daemon startup (before any
// session runs), Reload is driven by pkg/settings.Store's OnSaved hook,
// which fires at the very end of a handler dispatch that rewrote the
// settings file — by construction never mid-handshake, since dispatch
// and handshake never interleave on a single session.
type SecretDigest struct {
	mu     sync.RWMutex
	prim   cryptoprim.Primitives
	digest [32]byte
	valid  bool
}

// NewSecretDigest returns an unloaded digest holder.
func NewSecretDigest(prim cryptoprim.Primitives) *SecretDigest {
	return &SecretDigest{prim: prim}
}

// Reload recomputes the digest from raw (the current update_secret
// value). present must reflect whether update_secret exists in the
// settings file; an absent secret clears validity.
func (s *SecretDigest) Reload(raw string, present bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !present {
		s.valid = false
		return
	}
	s.digest = hashSecret(s.prim, []byte(raw))
	s.valid = true
}

// hashSecret implements spec.md section 3's iterated-hash construction.
func hashSecret(prim cryptoprim.Primitives, secret []byte) [32]byte {
	var digest [32]byte
	buf := make([]byte, 0, len(digest)+len(secret))
	for i := 0; i < wire.SecretHashRounds; i++ {
		buf = buf[:0]
		buf = append(buf, digest[:]...)
		buf = append(buf, secret...)
		digest = prim.SHA256(buf)
	}
	return digest
}

// Current returns the loaded digest and whether it is valid.
func (s *SecretDigest) Current() ([32]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.digest, s.valid
}
