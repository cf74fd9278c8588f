// Package session implements the per-connection Mealy state machine of
// spec.md section 4.2: a plaintext HMAC challenge-response handshake
// followed by an AES-256-CBC encrypted request/reply loop dispatched
// through a pkg/handler.Registry. Grounded on pkg/sdo/server.go in the
// teacher repo — the closest analogue to a block-oriented stateful
// protocol responder, generalized from CAN-frame block transfer to
// 16-byte AES-CBC blocks over a net.Conn.
//
// Per spec.md section 5 the original design is a single-threaded,
// callback-driven Mealy machine with no internal suspension points; in
// Go, one goroutine per connection performing blocking net.Conn reads
// and writes is the idiomatic equivalent — it serializes exactly the
// same way, without reintroducing a callback pump. Run drives every
// state in sequence for a single connection; the listener is
// responsible for only ever running one Session at a time.
package session

import (
	"crypto/cipher"
	"crypto/subtle"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/kclauber/pico-wifi-settings/internal/blockbuf"
	"github.com/kclauber/pico-wifi-settings/pkg/cryptoprim"
	"github.com/kclauber/pico-wifi-settings/pkg/handler"
	"github.com/kclauber/pico-wifi-settings/pkg/wire"
)

// Info is the greeting identity text (spec.md section 4.2).
type Info struct {
	BoardIDHex string
	Version    string
}

// Session is one connection's worth of state (spec.md section 3).
type Session struct {
	conn     net.Conn
	prim     cryptoprim.Primitives
	secret   *SecretDigest
	registry *handler.Registry
	info     Info
	logger   *slog.Logger

	clientChallenge [wire.ChallengeLen]byte
	serverChallenge [wire.ChallengeLen]byte

	sendIV [wire.BlockSize]byte // server->client CBC chaining state
	recvIV [wire.BlockSize]byte // client->server CBC chaining state
	encryptCipher cipher.Block  // server->client
	decryptCipher cipher.Block  // client->server

	state   State
	payload *blockbuf.Buffer
}

// New returns a Session ready to run over conn.
func New(conn net.Conn, prim cryptoprim.Primitives, secret *SecretDigest, registry *handler.Registry, info Info, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		conn:     conn,
		prim:     prim,
		secret:   secret,
		registry: registry,
		info:     info,
		logger:   logger.With("component", "session", "remote", conn.RemoteAddr()),
		payload:  blockbuf.New(wire.MaxDataSize),
	}
}

// State returns the session's current state, for logging/tests.
func (s *Session) State() State { return s.state }

// Run drives the session to completion: handshake, then the encrypted
// request loop, until the peer disconnects, a transport error occurs,
// or a protocol error is sent. It always closes conn before returning,
// except when a two-phase handler's reply has already closed it.
func (s *Session) Run() error {
	defer s.conn.Close()

	s.state = StateSendGreeting
	if err := s.sendGreeting(); err != nil {
		return err
	}

	s.state = StateExpectRequest
	if err := s.expectRequest(); err != nil {
		return err
	}

	s.state = StateSendChallenge
	if err := s.sendChallenge(); err != nil {
		return err
	}

	s.state = StateExpectAuthentication
	if err := s.expectAuthentication(); err != nil {
		return err
	}

	s.state = StateSendAuthentication
	if err := s.sendServerAuth(); err != nil {
		return err
	}

	s.state = StateExpectAcknowledge
	if err := s.expectAcknowledge(); err != nil {
		return err
	}

	s.state = StateExpectEncReqHeader
	for {
		done, err := s.handleOneRequest()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// readPlainBlock reads one 16-byte plaintext block.
func (s *Session) readPlainBlock() ([wire.BlockSize]byte, error) {
	var block [wire.BlockSize]byte
	if _, err := io.ReadFull(s.conn, block[:]); err != nil {
		return block, fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	return block, nil
}

func (s *Session) writePlainBlock(block [wire.BlockSize]byte) error {
	if _, err := s.conn.Write(block[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	return nil
}

// sendError writes a single plaintext error block (byte 0 = code, rest
// zero) and disconnects, per spec.md section 7. It returns the
// ErrorCode itself, so callers can `return s.sendError(...)`.
func (s *Session) sendError(code ErrorCode) error {
	var block [wire.BlockSize]byte
	block[0] = byte(code)
	_ = s.writePlainBlock(block) // best-effort; disconnect regardless
	s.logger.Warn("sending handshake error", "code", code)
	return code
}

// sendEncryptedError encrypts and writes a single error header block
// during the encrypted phase, then disconnects.
func (s *Session) sendEncryptedError(code ErrorCode) error {
	h := requestHeader{DataSize: 0, Parameter: 0, MsgType: byte(code)}
	block := encodeHeader(h)
	block9 := block
	h.DataHash = computeDataHash(s.prim, block9, nil)
	block = encodeHeader(h)
	_ = s.writeEncryptedBlock(block)
	s.logger.Warn("sending encrypted-phase error", "code", code)
	return code
}

func (s *Session) sendGreeting() error {
	text := s.info.BoardIDHex + "\r" + "pico-wifi-settings version " + s.info.Version + "\r\n"
	payload := make([]byte, 0, 3+len(text))
	payload = append(payload, wire.IDGreeting, wire.ProtocolVersion, 0)
	payload = append(payload, text...)

	nBlocks := (len(payload) + wire.BlockSize - 1) / wire.BlockSize
	padded := make([]byte, nBlocks*wire.BlockSize)
	copy(padded, payload)
	padded[2] = byte(nBlocks)

	for i := 0; i < nBlocks; i++ {
		var block [wire.BlockSize]byte
		copy(block[:], padded[i*wire.BlockSize:(i+1)*wire.BlockSize])
		if err := s.writePlainBlock(block); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) expectRequest() error {
	block, err := s.readPlainBlock()
	if err != nil {
		return err
	}
	if block[0] != wire.IDRequest {
		return s.sendError(ErrBadMsg)
	}
	copy(s.clientChallenge[:], block[1:1+wire.ChallengeLen])

	if _, valid := s.secret.Current(); !valid {
		return s.sendError(ErrNoSecret)
	}
	return nil
}

func (s *Session) sendChallenge() error {
	copy(s.serverChallenge[:], s.prim.RandomBytes(wire.ChallengeLen))
	var block [wire.BlockSize]byte
	block[0] = wire.IDChallenge
	copy(block[1:1+wire.ChallengeLen], s.serverChallenge[:])
	return s.writePlainBlock(block)
}

func (s *Session) expectAuthentication() error {
	block, err := s.readPlainBlock()
	if err != nil {
		return err
	}
	if block[0] != wire.IDAuthentication {
		return s.sendError(ErrBadMsg)
	}
	digest, _ := s.secret.Current()
	expected := mac(s.prim, digest, s.clientChallenge, s.serverChallenge, wire.TagClientAuth, wire.AuthTagLen)
	if subtle.ConstantTimeCompare(expected, block[1:1+wire.AuthTagLen]) != 1 {
		return s.sendError(ErrAuth)
	}
	return nil
}

func (s *Session) sendServerAuth() error {
	digest, _ := s.secret.Current()
	tag := mac(s.prim, digest, s.clientChallenge, s.serverChallenge, wire.TagServerAuth, wire.AuthTagLen)
	var block [wire.BlockSize]byte
	block[0] = wire.IDResponse
	copy(block[1:1+wire.AuthTagLen], tag)
	return s.writePlainBlock(block)
}

func (s *Session) expectAcknowledge() error {
	block, err := s.readPlainBlock()
	if err != nil {
		return err
	}
	if block[0] != wire.IDAcknowledge {
		return s.sendError(ErrBadMsg)
	}

	digest, _ := s.secret.Current()
	encryptKey, decryptKey := deriveSessionKeys(s.prim, digest, s.clientChallenge, s.serverChallenge)
	s.encryptCipher = s.prim.NewCipher(encryptKey)
	s.decryptCipher = s.prim.NewCipher(decryptKey)
	s.sendIV = [wire.BlockSize]byte{}
	s.recvIV = [wire.BlockSize]byte{}
	return nil
}

func (s *Session) readEncryptedBlock() ([wire.BlockSize]byte, error) {
	cipherBlock, err := s.readPlainBlock()
	if err != nil {
		return cipherBlock, err
	}
	plain, nextIV := cryptoprim.CBCDecryptBlock(s.decryptCipher, s.recvIV, cipherBlock)
	s.recvIV = nextIV
	return plain, nil
}

func (s *Session) writeEncryptedBlock(plainBlock [wire.BlockSize]byte) error {
	cipherBlock, nextIV := cryptoprim.CBCEncryptBlock(s.encryptCipher, s.sendIV, plainBlock)
	s.sendIV = nextIV
	return s.writePlainBlock(cipherBlock)
}

// handleOneRequest runs one full request/reply cycle (spec.md section
// 4.2's numbered flow). done is true once the session has terminated
// (either a two-phase reply closed the connection, or an error was
// sent).
func (s *Session) handleOneRequest() (done bool, err error) {
	s.state = StateExpectEncReqHeader
	headerBlock, err := s.readEncryptedBlock()
	if err != nil {
		return true, err
	}
	header := decodeHeader(headerBlock)

	slot, ok := s.registry.Lookup(header.MsgType)
	if !ok {
		s.state = StateSendBadHandlerError
		return true, s.sendEncryptedError(ErrBadHandler)
	}
	if header.DataSize > wire.MaxDataSize {
		s.state = StateSendBadParamError
		return true, s.sendEncryptedError(ErrBadParam)
	}

	s.payload.Reset()
	if header.DataSize > 0 {
		s.state = StateExpectEncReqPayload
		nBlocks := (int(header.DataSize) + wire.BlockSize - 1) / wire.BlockSize
		for i := 0; i < nBlocks; i++ {
			block, err := s.readEncryptedBlock()
			if err != nil {
				return true, err
			}
			s.payload.Write(block[:])
		}
	}

	gotHash := computeDataHash(s.prim, headerBlock, s.payload.Bytes()[:header.DataSize])
	if gotHash != header.DataHash {
		s.state = StateSendCorruptError
		return true, s.sendEncryptedError(ErrCorruptData)
	}

	var result int32
	var outSize uint32
	if slot.Phase1 != nil {
		outSize = wire.MaxDataSize
		buf := s.payload.Raw()
		result = slot.Phase1(header.MsgType, buf, header.DataSize, header.Parameter, &outSize, slot.Arg)
		if outSize > wire.MaxDataSize {
			outSize = wire.MaxDataSize
		}
	} else {
		result = header.Parameter
		outSize = header.DataSize
	}
	s.payload.SetLen(int(outSize))

	if slot.Phase2 != nil {
		s.state = StateSendEncReplyHeaderWithPhase2
		reply := requestHeader{DataSize: 0, Parameter: result, MsgType: wire.IDOK}
		replyBlock := encodeHeader(reply)
		reply.DataHash = computeDataHash(s.prim, replyBlock, nil)
		replyBlock = encodeHeader(reply)
		if err := s.writeEncryptedBlock(replyBlock); err != nil {
			return true, err
		}

		s.conn.Close()
		s.state = StateExecutePhase2
		phase2Buf := s.payload.Bytes()
		slot.Phase2(header.MsgType, phase2Buf, outSize, result, slot.Arg)
		s.state = StateDisconnect
		return true, nil
	}

	s.state = StateSendEncReplyHeader
	reply := requestHeader{DataSize: outSize, Parameter: result, MsgType: wire.IDOK}
	replyBlock := encodeHeader(reply)
	reply.DataHash = computeDataHash(s.prim, replyBlock, s.payload.Bytes())
	replyBlock = encodeHeader(reply)
	if err := s.writeEncryptedBlock(replyBlock); err != nil {
		return true, err
	}

	if outSize > 0 {
		s.state = StateSendEncReplyPayload
		nBlocks := (int(outSize) + wire.BlockSize - 1) / wire.BlockSize
		payloadBytes := s.payload.Raw()
		for i := 0; i < nBlocks; i++ {
			var block [wire.BlockSize]byte
			copy(block[:], payloadBytes[i*wire.BlockSize:(i+1)*wire.BlockSize])
			if err := s.writeEncryptedBlock(block); err != nil {
				return true, err
			}
		}
	}

	return false, nil
}
