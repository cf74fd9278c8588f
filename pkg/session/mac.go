package session

import (
	"github.com/kclauber/pico-wifi-settings/pkg/cryptoprim"
	"github.com/kclauber/pico-wifi-settings/pkg/wire"
)

// mac computes HMAC-SHA-256(key=digest, msg=clientChallenge||serverChallenge||tag),
// truncated to n bytes — spec.md section 4.2's MAC(tag2) construction,
// shared by both the authentication tags (n = wire.AuthTagLen) and the
// session key derivation tags (n = wire.KeyDerivationLen).
func mac(prim cryptoprim.Primitives, digest [32]byte, clientChallenge, serverChallenge [wire.ChallengeLen]byte, tag string, n int) []byte {
	msg := make([]byte, 0, 2*wire.ChallengeLen+len(tag))
	msg = append(msg, clientChallenge[:]...)
	msg = append(msg, serverChallenge[:]...)
	msg = append(msg, tag...)
	full := prim.HMACSHA256(digest[:], msg)
	return full[:n]
}

// deriveSessionKeys computes the encrypt (server->client) and decrypt
// (client->server) AES-256 keys from the shared-secret digest and both
// challenges (spec.md section 4.2).
func deriveSessionKeys(prim cryptoprim.Primitives, digest [32]byte, clientChallenge, serverChallenge [wire.ChallengeLen]byte) (encryptKey, decryptKey [32]byte) {
	copy(encryptKey[:], mac(prim, digest, clientChallenge, serverChallenge, wire.TagSessionKey, wire.KeyDerivationLen))
	copy(decryptKey[:], mac(prim, digest, clientChallenge, serverChallenge, wire.TagDecryptKey, wire.KeyDerivationLen))
	return
}
