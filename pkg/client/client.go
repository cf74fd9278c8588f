// Package client implements the client side of the remote control
// protocol (spec.md section 4.2), used by cmd/pwsctl and by integration
// tests that need to drive a real pkg/pwsnet listener end to end.
// Grounded on pkg/sdo/client.go in the teacher repo (a hand-rolled
// client library paired with a thin CLI front-end in cmd/sdo_client).
package client

import (
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/kclauber/pico-wifi-settings/pkg/cryptoprim"
	"github.com/kclauber/pico-wifi-settings/pkg/wire"
)

// Greeting is the parsed contents of the server's greeting frame.
type Greeting struct {
	ProtocolVersion byte
	Text            string
}

// Client drives one connection's worth of the protocol from the
// initiating side.
type Client struct {
	conn   net.Conn
	prim   cryptoprim.Primitives
	logger *slog.Logger

	clientChallenge [wire.ChallengeLen]byte
	serverChallenge [wire.ChallengeLen]byte

	encryptCipher cipher.Block // client->server
	decryptCipher cipher.Block // server->client
	sendIV        [wire.BlockSize]byte
	recvIV        [wire.BlockSize]byte
}

// Dial connects to addr (host:port) over TCP and returns a Client
// positioned right after the transport connects, before any protocol
// bytes have been exchanged.
func Dial(addr string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	return New(conn, cryptoprim.Std{}, logger), nil
}

// New wraps an already-connected net.Conn.
func New(conn net.Conn, prim cryptoprim.Primitives, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{conn: conn, prim: prim, logger: logger.With("component", "client")}
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) readBlock() ([wire.BlockSize]byte, error) {
	var block [wire.BlockSize]byte
	if _, err := io.ReadFull(c.conn, block[:]); err != nil {
		return block, fmt.Errorf("client: read: %w", err)
	}
	return block, nil
}

func (c *Client) writeBlock(block [wire.BlockSize]byte) error {
	if _, err := c.conn.Write(block[:]); err != nil {
		return fmt.Errorf("client: write: %w", err)
	}
	return nil
}

// Handshake runs the full plaintext handshake (spec.md section 4.2) and
// derives the session keys. secret is the raw update_secret value (not
// the hashed digest) — Handshake hashes it itself, matching what the
// server derives from its settings store.
func (c *Client) Handshake(secret string) (Greeting, error) {
	greeting, err := c.readGreeting()
	if err != nil {
		return greeting, err
	}

	copy(c.clientChallenge[:], c.prim.RandomBytes(wire.ChallengeLen))
	var req [wire.BlockSize]byte
	req[0] = wire.IDRequest
	copy(req[1:1+wire.ChallengeLen], c.clientChallenge[:])
	if err := c.writeBlock(req); err != nil {
		return greeting, err
	}

	challengeBlock, err := c.readBlock()
	if err != nil {
		return greeting, err
	}
	if err := checkTag(challengeBlock, wire.IDChallenge); err != nil {
		return greeting, err
	}
	copy(c.serverChallenge[:], challengeBlock[1:1+wire.ChallengeLen])

	digest := hashSecret(c.prim, []byte(secret))

	caTag := macTag(c.prim, digest, c.clientChallenge, c.serverChallenge, wire.TagClientAuth, wire.AuthTagLen)
	var authBlock [wire.BlockSize]byte
	authBlock[0] = wire.IDAuthentication
	copy(authBlock[1:1+wire.AuthTagLen], caTag)
	if err := c.writeBlock(authBlock); err != nil {
		return greeting, err
	}

	saBlock, err := c.readBlock()
	if err != nil {
		return greeting, err
	}
	if err := checkTag(saBlock, wire.IDResponse); err != nil {
		return greeting, err
	}
	expectedSA := macTag(c.prim, digest, c.clientChallenge, c.serverChallenge, wire.TagServerAuth, wire.AuthTagLen)
	if subtle.ConstantTimeCompare(expectedSA, saBlock[1:1+wire.AuthTagLen]) != 1 {
		return greeting, fmt.Errorf("client: server failed to prove knowledge of shared secret")
	}

	var ack [wire.BlockSize]byte
	ack[0] = wire.IDAcknowledge
	if err := c.writeBlock(ack); err != nil {
		return greeting, err
	}

	encryptKey, decryptKey := deriveSessionKeys(c.prim, digest, c.clientChallenge, c.serverChallenge)
	// Mirrors the server: what the server calls its decrypt key is what
	// the client encrypts with, and vice versa.
	c.encryptCipher = c.prim.NewCipher(decryptKey)
	c.decryptCipher = c.prim.NewCipher(encryptKey)
	return greeting, nil
}

func checkTag(block [wire.BlockSize]byte, want byte) error {
	if block[0] == wire.IDAuthError {
		return fmt.Errorf("client: %w", sessionErrorCode(block[0]))
	}
	if block[0] != want {
		return fmt.Errorf("client: unexpected message tag %d, want %d", block[0], want)
	}
	return nil
}

func (c *Client) readGreeting() (Greeting, error) {
	first, err := c.readBlock()
	if err != nil {
		return Greeting{}, err
	}
	if first[0] != wire.IDGreeting {
		return Greeting{}, fmt.Errorf("client: not a greeting, got tag %d", first[0])
	}
	nBlocks := int(first[2])
	all := make([]byte, 0, nBlocks*wire.BlockSize)
	all = append(all, first[:]...)
	for i := 1; i < nBlocks; i++ {
		block, err := c.readBlock()
		if err != nil {
			return Greeting{}, err
		}
		all = append(all, block[:]...)
	}
	text := string(all[3:])
	for i, b := range text {
		if b == 0 {
			text = text[:i]
			break
		}
	}
	return Greeting{ProtocolVersion: first[1], Text: text}, nil
}

func (c *Client) sendEncrypted(block [wire.BlockSize]byte) error {
	cipherBlock, nextIV := cryptoprim.CBCEncryptBlock(c.encryptCipher, c.sendIV, block)
	c.sendIV = nextIV
	return c.writeBlock(cipherBlock)
}

func (c *Client) recvEncrypted() ([wire.BlockSize]byte, error) {
	cipherBlock, err := c.readBlock()
	if err != nil {
		return cipherBlock, err
	}
	plain, nextIV := cryptoprim.CBCDecryptBlock(c.decryptCipher, c.recvIV, cipherBlock)
	c.recvIV = nextIV
	return plain, nil
}

// Call sends one encrypted request and returns the decoded reply. It
// does not itself handle the two-phase case specially: when the server
// replies and then closes the connection (spec.md section 4.2 step 7),
// the reply is still delivered normally; only a subsequent Call on the
// same Client would observe the closed connection.
func (c *Client) Call(msgType byte, parameter int32, payload []byte) (replyParameter int32, replyPayload []byte, err error) {
	if len(payload) > wire.MaxDataSize {
		return 0, nil, fmt.Errorf("client: payload exceeds MaxDataSize")
	}

	var headerBlock [wire.BlockSize]byte
	binary.LittleEndian.PutUint32(headerBlock[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(headerBlock[4:8], uint32(parameter))
	headerBlock[8] = msgType
	hash := dataHash(c.prim, headerBlock, payload)
	copy(headerBlock[9:16], hash[:])
	if err := c.sendEncrypted(headerBlock); err != nil {
		return 0, nil, err
	}

	for off := 0; off < len(payload); off += wire.BlockSize {
		var block [wire.BlockSize]byte
		end := off + wire.BlockSize
		if end > len(payload) {
			end = len(payload)
		}
		copy(block[:], payload[off:end])
		if err := c.sendEncrypted(block); err != nil {
			return 0, nil, err
		}
	}

	replyHeader, err := c.recvEncrypted()
	if err != nil {
		return 0, nil, err
	}
	dataSize := binary.LittleEndian.Uint32(replyHeader[0:4])
	replyParameter = int32(binary.LittleEndian.Uint32(replyHeader[4:8]))
	replyMsgType := replyHeader[8]

	nBlocks := (int(dataSize) + wire.BlockSize - 1) / wire.BlockSize
	buf := make([]byte, 0, nBlocks*wire.BlockSize)
	for i := 0; i < nBlocks; i++ {
		block, err := c.recvEncrypted()
		if err != nil {
			return 0, nil, err
		}
		buf = append(buf, block[:]...)
	}
	replyPayload = buf[:dataSize]

	if replyMsgType != wire.IDOK {
		return replyParameter, replyPayload, fmt.Errorf("client: %w", sessionErrorCode(replyMsgType))
	}
	return replyParameter, replyPayload, nil
}
