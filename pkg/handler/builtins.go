package handler

import (
	"errors"
	"log/slog"

	"github.com/kclauber/pico-wifi-settings/pkg/settings"
	"github.com/kclauber/pico-wifi-settings/pkg/storage"
	"github.com/kclauber/pico-wifi-settings/pkg/wire"
)

// BoardInfo is the static identity PicoInfo reports back to a client.
// Populated from pkg/boardconfig at startup.
type BoardInfo struct {
	BoardIDHex string
	Version    string
}

// picoInfoArg is the opaque argument wired to the PicoInfo slot.
type picoInfoArg struct {
	info *BoardInfo
}

// PicoInfo is a phase-1-only handler: it ignores its input and fills buf
// with "<board-id-hex>\npico-wifi-settings version <ver>\n", reporting
// the written length via outSize. Grounded on spec.md section 4.4's
// description of the reserved PicoInfo slot.
func PicoInfo(msgType byte, buf []byte, inSize uint32, inParam int32, outSize *uint32, arg any) int32 {
	a := arg.(*picoInfoArg)
	text := a.info.BoardIDHex + "\npico-wifi-settings version " + a.info.Version + "\n"
	n := copy(buf, text)
	*outSize = uint32(n)
	return 0
}

// RegisterPicoInfo installs the PicoInfo slot on r.
func RegisterPicoInfo(r *Registry, info *BoardInfo) error {
	return r.Register(wire.MsgTypePicoInfo, PicoInfo, nil, &picoInfoArg{info: info})
}

// updateArg is the opaque argument wired to the Update slot.
type updateArg struct {
	store  *settings.Store
	logger *slog.Logger
}

// Update is the authenticated remote update handler (spec.md section 1's
// namesake in-scope feature, alongside the store itself): the request
// payload is an entire replacement settings file, atomically written
// into the settings sector via storage.Backend.AtomicReplace — exactly
// spec.md section 4.1's atomic_replace operation, not a single key=value
// edit. Grounded on wifi_settings_update_handler plus
// wifi_settings_update_flash_unsafe in the original firmware: the
// handler rejects a non-zero parameter, then hands the bytes to
// Store.ReplaceFile (which keeps only the bytes before the first EOF
// sentinel) and returns the request payload length, inSize, on success. OTA firmware reflash itself (a distinct handler
// in the original) remains out of scope per spec.md section 1.
func Update(msgType byte, buf []byte, inSize uint32, inParam int32, outSize *uint32, arg any) int32 {
	a := arg.(*updateArg)
	*outSize = 0
	if inParam != 0 {
		return -3
	}
	if err := a.store.ReplaceFile(buf[:inSize]); err != nil {
		a.logger.Warn("update handler: replace failed", "err", err)
		switch {
		case errors.Is(err, storage.ErrInvalidArg):
			return -3
		case errors.Is(err, storage.ErrCorrupt):
			return -4
		default:
			return -4
		}
	}
	return int32(inSize)
}

// RegisterUpdate installs the Update slot on r.
func RegisterUpdate(r *Registry, store *settings.Store, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	return r.Register(wire.MsgTypeUpdate, Update, nil, &updateArg{store: store, logger: logger.With("handler", "update")})
}

// rebootArg is the opaque argument wired to the UpdateReboot slot.
type rebootArg struct {
	reboot func()
	logger *slog.Logger
}

// UpdateReboot is a phase-2-only handler (spec.md section 4.4): the
// reply header (parameter = inParam, data_size = 0) has already been
// sent and the connection closed by the time this runs. It invokes the
// injected reboot hook, matching the glossary's "phase-2 handler...
// used exclusively for offline-inducing operations".
func UpdateReboot(msgType byte, buf []byte, inSize uint32, inParam int32, arg any) {
	a := arg.(*rebootArg)
	a.logger.Info("reboot requested", "parameter", inParam)
	if a.reboot != nil {
		a.reboot()
	}
}

// RegisterUpdateReboot installs the UpdateReboot slot on r. reboot is
// invoked with no arguments once the client has been acknowledged and
// disconnected; a nil reboot is a no-op, useful in tests (spec.md
// scenario S6).
func RegisterUpdateReboot(r *Registry, reboot func(), logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	return r.Register(wire.MsgTypeUpdateReboot, nil, UpdateReboot, &rebootArg{reboot: reboot, logger: logger.With("handler", "update_reboot")})
}
