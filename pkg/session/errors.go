package session

import (
	"errors"
	"fmt"

	"github.com/kclauber/pico-wifi-settings/pkg/wire"
)

// ErrorCode is one of the seven protocol-level error message types of
// spec.md section 4.2/7, sent as exactly one block and followed by
// disconnection. Modeled as a typed byte implementing error, the same
// shape as the teacher's CANopenError (driver.go): a code plus a
// description lookup table.
type ErrorCode byte

const (
	ErrAuth        ErrorCode = ErrorCode(wire.IDAuthError)
	ErrVersion     ErrorCode = ErrorCode(wire.IDVersionError)
	ErrBadMsg      ErrorCode = ErrorCode(wire.IDBadMsgError)
	ErrBadParam    ErrorCode = ErrorCode(wire.IDBadParamError)
	ErrBadHandler  ErrorCode = ErrorCode(wire.IDBadHandlerError)
	ErrNoSecret    ErrorCode = ErrorCode(wire.IDNoSecretError)
	ErrCorruptData ErrorCode = ErrorCode(wire.IDCorruptError)
)

var errorDescriptions = map[ErrorCode]string{
	ErrAuth:        "authentication MAC mismatch",
	ErrVersion:     "protocol version mismatch",
	ErrBadMsg:      "unexpected message tag during handshake",
	ErrBadParam:    "data_size exceeds MAX_DATA_SIZE",
	ErrBadHandler:  "msg_type has no registered handler",
	ErrNoSecret:    "no usable shared secret loaded",
	ErrCorruptData: "decrypted payload hash mismatch",
}

func (e ErrorCode) Error() string {
	if s, ok := errorDescriptions[e]; ok {
		return fmt.Sprintf("session: %s (code %d)", s, byte(e))
	}
	return fmt.Sprintf("session: unknown error code %d", byte(e))
}

// ErrDisconnected is returned by Run when the peer closed the connection
// or a transport error occurred, with no protocol error frame sent.
var ErrDisconnected = errors.New("session: disconnected")
