package client

import (
	"fmt"

	"github.com/kclauber/pico-wifi-settings/pkg/cryptoprim"
	"github.com/kclauber/pico-wifi-settings/pkg/wire"
)

// hashSecret mirrors pkg/session's iterated-hash construction (spec.md
// section 3) so the client can derive the same digest the server holds
// without depending on pkg/session.
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

// macTag mirrors pkg/session's mac(): HMAC-SHA-256(digest, clientChallenge||serverChallenge||tag),
// truncated to n bytes.
func macTag(prim cryptoprim.Primitives, digest [32]byte, clientChallenge, serverChallenge [wire.ChallengeLen]byte, tag string, n int) []byte {
	msg := make([]byte, 0, 2*wire.ChallengeLen+len(tag))
	msg = append(msg, clientChallenge[:]...)
	msg = append(msg, serverChallenge[:]...)
	msg = append(msg, tag...)
	full := prim.HMACSHA256(digest[:], msg)
	return full[:n]
}

// deriveSessionKeys mirrors pkg/session's key derivation and returns the
// keys named from the server's point of view (encryptKey is server->client,
// decryptKey is client->server); Handshake swaps them for the client.
func deriveSessionKeys(prim cryptoprim.Primitives, digest [32]byte, clientChallenge, serverChallenge [wire.ChallengeLen]byte) (encryptKey, decryptKey [32]byte) {
	copy(encryptKey[:], macTag(prim, digest, clientChallenge, serverChallenge, wire.TagSessionKey, wire.KeyDerivationLen))
	copy(decryptKey[:], macTag(prim, digest, clientChallenge, serverChallenge, wire.TagDecryptKey, wire.KeyDerivationLen))
	return
}

// dataHash mirrors pkg/session's computeDataHash: the first 7 bytes of
// SHA-256(header's first 9 bytes || payload).
func dataHash(prim cryptoprim.Primitives, block [wire.BlockSize]byte, payload []byte) [7]byte {
	msg := make([]byte, 0, 9+len(payload))
	msg = append(msg, block[:9]...)
	msg = append(msg, payload...)
	full := prim.SHA256(msg)
	var out [7]byte
	copy(out[:], full[:7])
	return out
}

// sessionErrorCode describes one of the protocol-level error message
// type bytes (spec.md section 7) received from the server.
type sessionErrorCode byte

var errorDescriptions = map[byte]string{
	wire.IDAuthError:       "authentication MAC mismatch",
	wire.IDVersionError:    "protocol version mismatch",
	wire.IDBadMsgError:     "unexpected message tag during handshake",
	wire.IDBadParamError:   "data_size exceeds MaxDataSize",
	wire.IDBadHandlerError: "msg_type has no registered handler",
	wire.IDNoSecretError:   "no usable shared secret loaded",
	wire.IDCorruptError:    "decrypted payload hash mismatch",
}

func (e sessionErrorCode) Error() string {
	if s, ok := errorDescriptions[byte(e)]; ok {
		return fmt.Sprintf("server reported %s (code %d)", s, byte(e))
	}
	return fmt.Sprintf("server reported unknown error code %d", byte(e))
}
