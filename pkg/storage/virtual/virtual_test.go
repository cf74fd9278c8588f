package virtual

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kclauber/pico-wifi-settings/pkg/storage"
)

func TestVirtualBackendStartsErased(t *testing.T) {
	b, err := New("", 4096, 256)
	require.NoError(t, err)

	buf := make([]byte, 16)
	require.NoError(t, b.Read(0, buf))
	for _, bb := range buf {
		assert.Equal(t, byte(0xFF), bb)
	}
}

func TestVirtualBackendAtomicReplace(t *testing.T) {
	b, err := New("", 4096, 256)
	require.NoError(t, err)

	require.NoError(t, b.AtomicReplace([]byte("a=1\n")))
	buf := make([]byte, 5)
	require.NoError(t, b.Read(0, buf))
	assert.Equal(t, "a=1\n", string(buf[:4]))
	assert.Equal(t, byte(0xFF), buf[4])
}

func TestVirtualBackendInvalidArg(t *testing.T) {
	b, err := New("", 4096, 256)
	require.NoError(t, err)
	big := make([]byte, 4097)
	assert.ErrorIs(t, b.AtomicReplace(big), storage.ErrInvalidArg)
}

func TestVirtualBackendCorrupt(t *testing.T) {
	b, err := New("", 4096, 256)
	require.NoError(t, err)
	vb := b.(*Backend)
	vb.CorruptAt = 10
	assert.ErrorIs(t, vb.AtomicReplace([]byte("a=1\n")), storage.ErrCorrupt)
}
