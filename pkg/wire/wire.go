// Package wire holds the wire-format constants shared by pkg/session,
// pkg/handler and pkg/client: the spec.md section 4.2 message type byte
// values, block and buffer sizes, and the reserved handler slot range.
// It has no dependencies so that packages on both sides of a dispatch
// (the state machine and the handler registry) can share these values
// without an import cycle.
package wire

// BlockSize is the AES-256-CBC block size and the wire protocol's
// framing granularity (spec.md section 4.2).
const BlockSize = 16

// MaxDataSize is the largest payload a single encrypted request or reply
// may carry (spec.md section 3).
const MaxDataSize = 4096

// ProtocolVersion is the single byte sent in the greeting (spec.md
// section 4.2).
const ProtocolVersion byte = 1

// ListenPort is the well-known TCP/UDP port (spec.md section 4.3).
const ListenPort = 1404

// ChallengeLen is the length in bytes of each handshake challenge.
const ChallengeLen = 15

// Handshake and error message type bytes (spec.md sections 4.2 and 7).
const (
	IDGreeting       byte = 70
	IDRequest        byte = 71
	IDChallenge      byte = 72
	IDAuthentication byte = 73
	IDResponse       byte = 74
	IDAcknowledge    byte = 75
	IDOK             byte = 76
	IDAuthError      byte = 77
	IDVersionError   byte = 78
	IDBadMsgError    byte = 79
	IDBadParamError  byte = 80
	IDBadHandlerError byte = 81
	IDNoSecretError  byte = 82
	IDCorruptError   byte = 83
)

// FirstHandlerID and LastUserHandlerID bound the handler registry's slot
// range (spec.md section 4.4): msg_type - FirstHandlerID indexes the
// table.
const (
	FirstHandlerID    byte = 120
	LastUserHandlerID byte = 127
	NumHandlerSlots        = int(LastUserHandlerID-FirstHandlerID) + 1
)

// Reserved handler slots pre-registered by the core (spec.md section
// 4.4). Numbered to match the original firmware's msg_type_t: 122
// (read) and 125/126/127 (write-flash, reserved, OTA firmware update)
// are reserved for out-of-scope handlers and deliberately left
// unregistered here.
const (
	MsgTypePicoInfo     byte = FirstHandlerID     // 120
	MsgTypeUpdate       byte = FirstHandlerID + 1 // 121
	MsgTypeUpdateReboot byte = FirstHandlerID + 4 // 124
)

// MAC tags used in HMAC-SHA-256 key derivation and authentication
// (spec.md section 4.2).
const (
	TagClientAuth  = "CA"
	TagServerAuth  = "SA"
	TagSessionKey  = "SK" // server->client encrypt key
	TagDecryptKey  = "CK" // client->server decrypt key
)

// AuthTagLen and KeyDerivationLen are the truncation lengths applied to
// the 32-byte HMAC-SHA-256 output (spec.md section 4.2).
const (
	AuthTagLen       = ChallengeLen // 15
	KeyDerivationLen = 32
)

// SecretHashRounds is the number of iterated SHA-256 rounds used to
// derive the hashed secret digest from update_secret (spec.md section
// 3).
const SecretHashRounds = 4096
