package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kclauber/pico-wifi-settings/pkg/wire"
)

func TestRegisterOutOfRange(t *testing.T) {
	r := NewRegistry()
	err := r.Register(0, func(byte, []byte, uint32, int32, *uint32, any) int32 { return 0 }, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidArg)
}

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	called := false
	p1 := func(msgType byte, buf []byte, inSize uint32, inParam int32, outSize *uint32, arg any) int32 {
		called = true
		return 42
	}
	require.NoError(t, r.Register(wire.FirstHandlerID, p1, nil, nil))

	slot, ok := r.Lookup(wire.FirstHandlerID)
	require.True(t, ok)
	var out uint32
	result := slot.Phase1(wire.FirstHandlerID, nil, 0, 0, &out, slot.Arg)
	assert.True(t, called)
	assert.Equal(t, int32(42), result)
}

func TestLookupUnregisteredSlot(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Lookup(wire.FirstHandlerID + 3)
	assert.False(t, ok)
}

func TestLookupOutOfRange(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Lookup(10)
	assert.False(t, ok)
}
