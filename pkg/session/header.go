package session

import (
	"encoding/binary"

	"github.com/kclauber/pico-wifi-settings/pkg/cryptoprim"
	"github.com/kclauber/pico-wifi-settings/pkg/wire"
)

// requestHeader is the decrypted form of one encrypted-phase header
// block (spec.md section 4.2): 4 bytes data_size, 4 bytes parameter, 1
// byte msg_type, 7 bytes truncated data hash — exactly 16 bytes.
type requestHeader struct {
	DataSize  uint32
	Parameter int32
	MsgType   byte
	DataHash  [7]byte
}

func decodeHeader(block [wire.BlockSize]byte) requestHeader {
	var h requestHeader
	h.DataSize = binary.LittleEndian.Uint32(block[0:4])
	h.Parameter = int32(binary.LittleEndian.Uint32(block[4:8]))
	h.MsgType = block[8]
	copy(h.DataHash[:], block[9:16])
	return h
}

func encodeHeader(h requestHeader) [wire.BlockSize]byte {
	var block [wire.BlockSize]byte
	binary.LittleEndian.PutUint32(block[0:4], h.DataSize)
	binary.LittleEndian.PutUint32(block[4:8], uint32(h.Parameter))
	block[8] = h.MsgType
	copy(block[9:16], h.DataHash[:])
	return block
}

// computeDataHash implements spec.md section 4.2's data hash: the first
// 7 bytes of SHA-256(header's first 9 bytes || payload bytes actually
// meaningful, i.e. data_size bytes, not the trailing block padding).
func computeDataHash(prim cryptoprim.Primitives, block [wire.BlockSize]byte, payload []byte) [7]byte {
	msg := make([]byte, 0, 9+len(payload))
	msg = append(msg, block[:9]...)
	msg = append(msg, payload...)
	full := prim.SHA256(msg)
	var out [7]byte
	copy(out[:], full[:7])
	return out
}
