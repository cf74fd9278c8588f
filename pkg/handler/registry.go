// Package handler implements the fixed-size dispatch table of spec.md
// section 4.4: a slot per msg_type, each holding an optional phase-1
// and/or phase-2 callable plus an opaque argument. Grounded on the
// Extension{Read, Write} callback-pair pattern in pkg/od/extensions.go
// of the teacher repo, generalized from per-variable Read/Write to
// per-message-type Phase1/Phase2.
package handler

import (
	"errors"

	"github.com/kclauber/pico-wifi-settings/pkg/wire"
)

// ErrInvalidArg is returned by Register when msg_type falls outside
// [wire.FirstHandlerID, wire.LastUserHandlerID].
var ErrInvalidArg = errors.New("handler: msg_type out of range")

// Phase1Func is the contract of spec.md section 6's phase-1 callable: it
// may rewrite buf in place (up to cap) and must report the number of
// bytes of buf that are meaningful on return via *outSize (initialised
// by the caller to wire.MaxDataSize). Its return value becomes the
// reply's parameter field.
type Phase1Func func(msgType byte, buf []byte, inSize uint32, inParam int32, outSize *uint32, arg any) int32

// Phase2Func is the contract of spec.md section 6's phase-2 callable,
// invoked only after the reply has been sent and the connection closed.
// Its return value, if any, and any rewrite of buf are discarded.
type Phase2Func func(msgType byte, buf []byte, inSize uint32, inParam int32, arg any)

// Slot is one entry of the dispatch table.
type Slot struct {
	Phase1 Phase1Func
	Phase2 Phase2Func
	Arg    any
}

// Registered reports whether at least one callable is set.
func (s Slot) Registered() bool {
	return s.Phase1 != nil || s.Phase2 != nil
}

// Registry is the fixed-size handler table, mutated only from the
// networking task per spec.md section 4.4 — there is no internal lock.
type Registry struct {
	slots [wire.NumHandlerSlots]Slot
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register installs phase1 and/or phase2 (either may be nil, but not
// both) at msgType, with arg passed through to every invocation.
func (r *Registry) Register(msgType byte, phase1 Phase1Func, phase2 Phase2Func, arg any) error {
	if msgType < wire.FirstHandlerID || msgType > wire.LastUserHandlerID {
		return ErrInvalidArg
	}
	r.slots[msgType-wire.FirstHandlerID] = Slot{Phase1: phase1, Phase2: phase2, Arg: arg}
	return nil
}

// Lookup returns the slot for msgType and whether it is in range and
// registered.
func (r *Registry) Lookup(msgType byte) (Slot, bool) {
	if msgType < wire.FirstHandlerID || msgType > wire.LastUserHandlerID {
		return Slot{}, false
	}
	slot := r.slots[msgType-wire.FirstHandlerID]
	return slot, slot.Registered()
}
