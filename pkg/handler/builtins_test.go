package handler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kclauber/pico-wifi-settings/pkg/settings"
	"github.com/kclauber/pico-wifi-settings/pkg/storage"
	_ "github.com/kclauber/pico-wifi-settings/pkg/storage/virtual"
	"github.com/kclauber/pico-wifi-settings/pkg/wire"
)

func TestPicoInfoReportsBoardID(t *testing.T) {
	r := NewRegistry()
	info := &BoardInfo{BoardIDHex: "deadbeef", Version: "1.2.3"}
	require.NoError(t, RegisterPicoInfo(r, info))

	slot, ok := r.Lookup(wire.MsgTypePicoInfo)
	require.True(t, ok)

	buf := make([]byte, wire.MaxDataSize)
	var out uint32 = wire.MaxDataSize
	res := slot.Phase1(wire.MsgTypePicoInfo, buf, 0, 0, &out, slot.Arg)
	assert.Equal(t, int32(0), res)
	assert.True(t, strings.HasPrefix(string(buf[:out]), "deadbeef\n"))
	assert.Contains(t, string(buf[:out]), "1.2.3")
}

func TestUpdateHandlerReplacesWholeFileAndPersists(t *testing.T) {
	backend, err := storage.New("virtual", "", 4096, 256)
	require.NoError(t, err)
	store := settings.NewStore(backend, 4096, nil)
	require.NoError(t, store.Load())
	require.NoError(t, store.Set("stale", "gone"))
	require.NoError(t, store.Save())

	r := NewRegistry()
	require.NoError(t, RegisterUpdate(r, store, nil))
	slot, ok := r.Lookup(wire.MsgTypeUpdate)
	require.True(t, ok)

	buf := make([]byte, wire.MaxDataSize)
	payload := []byte("name=kitchen-pico\nupdate_secret=hunter2\n")
	copy(buf, payload)
	var out uint32 = wire.MaxDataSize
	res := slot.Phase1(wire.MsgTypeUpdate, buf, uint32(len(payload)), 0, &out, slot.Arg)
	assert.Equal(t, int32(len(payload)), res)

	v, err := store.Get("name")
	require.NoError(t, err)
	assert.Equal(t, "kitchen-pico", v)

	// The old key is gone: Update replaces the entire file, it does not
	// merge into the existing one.
	_, err = store.Get("stale")
	assert.ErrorIs(t, err, settings.ErrNotFound)

	reloaded := settings.NewStore(backend, 4096, nil)
	require.NoError(t, reloaded.Load())
	v, err = reloaded.Get("name")
	require.NoError(t, err)
	assert.Equal(t, "kitchen-pico", v)
}

func TestUpdateHandlerRejectsNonZeroParameter(t *testing.T) {
	backend, _ := storage.New("virtual", "", 4096, 256)
	store := settings.NewStore(backend, 4096, nil)
	require.NoError(t, store.Load())

	r := NewRegistry()
	require.NoError(t, RegisterUpdate(r, store, nil))
	slot, _ := r.Lookup(wire.MsgTypeUpdate)

	buf := make([]byte, wire.MaxDataSize)
	payload := []byte("name=kitchen-pico\n")
	copy(buf, payload)
	var out uint32
	res := slot.Phase1(wire.MsgTypeUpdate, buf, uint32(len(payload)), 1, &out, slot.Arg)
	assert.Equal(t, int32(-3), res)

	_, err := store.Get("name")
	assert.ErrorIs(t, err, settings.ErrNotFound)
}

func TestUpdateHandlerRejectsOversizedFile(t *testing.T) {
	backend, _ := storage.New("virtual", "", 64, 16)
	store := settings.NewStore(backend, 64, nil)
	require.NoError(t, store.Load())

	r := NewRegistry()
	require.NoError(t, RegisterUpdate(r, store, nil))
	slot, _ := r.Lookup(wire.MsgTypeUpdate)

	buf := make([]byte, wire.MaxDataSize)
	payload := make([]byte, 100)
	for i := range payload {
		payload[i] = 'a'
	}
	copy(buf, payload)
	var out uint32
	res := slot.Phase1(wire.MsgTypeUpdate, buf, uint32(len(payload)), 0, &out, slot.Arg)
	assert.Equal(t, int32(-3), res)
}

func TestUpdateRebootInvokesHook(t *testing.T) {
	r := NewRegistry()
	called := false
	require.NoError(t, RegisterUpdateReboot(r, func() { called = true }, nil))
	slot, ok := r.Lookup(wire.MsgTypeUpdateReboot)
	require.True(t, ok)
	assert.Nil(t, slot.Phase1)
	slot.Phase2(wire.MsgTypeUpdateReboot, nil, 0, 7, slot.Arg)
	assert.True(t, called)
}
