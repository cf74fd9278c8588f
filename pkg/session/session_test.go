package session

import (
	"crypto/cipher"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kclauber/pico-wifi-settings/pkg/cryptoprim"
	"github.com/kclauber/pico-wifi-settings/pkg/handler"
	"github.com/kclauber/pico-wifi-settings/pkg/wire"
)

// testClient is a minimal, test-only client-side driver of the protocol,
// independent of pkg/client, used to exercise pkg/session in isolation.
type testClient struct {
	conn            net.Conn
	prim            cryptoprim.Primitives
	clientChallenge [wire.ChallengeLen]byte
	serverChallenge [wire.ChallengeLen]byte
	encryptCipher   cipher.Block // client->server
	decryptCipher   cipher.Block // server->client
	sendIV          [wire.BlockSize]byte
	recvIV          [wire.BlockSize]byte
}

func newTestClient(conn net.Conn) *testClient {
	return &testClient{conn: conn, prim: cryptoprim.Std{}}
}

func (c *testClient) readBlock() [wire.BlockSize]byte {
	var block [wire.BlockSize]byte
	_, err := conn_ReadFull(c.conn, block[:])
	if err != nil {
		panic(err)
	}
	return block
}

func conn_ReadFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (c *testClient) writeBlock(block [wire.BlockSize]byte) {
	if _, err := c.conn.Write(block[:]); err != nil {
		panic(err)
	}
}

// doHandshake drives S3's happy-path handshake from the client side and
// leaves the client ready for the encrypted phase.
func (c *testClient) doHandshake(digest [32]byte) {
	// Read (and discard) the greeting: first block tells us block count.
	first := c.readBlock()
	nBlocks := int(first[2])
	for i := 1; i < nBlocks; i++ {
		c.readBlock()
	}

	copy(c.clientChallenge[:], c.prim.RandomBytes(wire.ChallengeLen))
	var req [wire.BlockSize]byte
	req[0] = wire.IDRequest
	copy(req[1:1+wire.ChallengeLen], c.clientChallenge[:])
	c.writeBlock(req)

	challengeBlock := c.readBlock()
	if challengeBlock[0] != wire.IDChallenge {
		panic("expected challenge")
	}
	copy(c.serverChallenge[:], challengeBlock[1:1+wire.ChallengeLen])

	caTag := mac(c.prim, digest, c.clientChallenge, c.serverChallenge, wire.TagClientAuth, wire.AuthTagLen)
	var authBlock [wire.BlockSize]byte
	authBlock[0] = wire.IDAuthentication
	copy(authBlock[1:1+wire.AuthTagLen], caTag)
	c.writeBlock(authBlock)

	saBlock := c.readBlock()
	if saBlock[0] != wire.IDResponse {
		panic("expected server auth response")
	}

	ack := [wire.BlockSize]byte{}
	ack[0] = wire.IDAcknowledge
	c.writeBlock(ack)

	encryptKey, decryptKey := deriveSessionKeys(c.prim, digest, c.clientChallenge, c.serverChallenge)
	// Client encrypts with what the server calls its decrypt key, and
	// decrypts with what the server calls its encrypt key.
	c.encryptCipher = c.prim.NewCipher(decryptKey)
	c.decryptCipher = c.prim.NewCipher(encryptKey)
}

func (c *testClient) sendEncrypted(block [wire.BlockSize]byte) {
	cipherBlock, nextIV := cryptoprim.CBCEncryptBlock(c.encryptCipher, c.sendIV, block)
	c.sendIV = nextIV
	c.writeBlock(cipherBlock)
}

func (c *testClient) recvEncrypted() [wire.BlockSize]byte {
	cipherBlock := c.readBlock()
	plain, nextIV := cryptoprim.CBCDecryptBlock(c.decryptCipher, c.recvIV, cipherBlock)
	c.recvIV = nextIV
	return plain
}

func (c *testClient) sendRequest(msgType byte, param int32, payload []byte) {
	var headerBlock [wire.BlockSize]byte
	binary.LittleEndian.PutUint32(headerBlock[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(headerBlock[4:8], uint32(param))
	headerBlock[8] = msgType
	hash := computeDataHash(c.prim, headerBlock, payload)
	copy(headerBlock[9:16], hash[:])
	c.sendEncrypted(headerBlock)

	for off := 0; off < len(payload); off += wire.BlockSize {
		var block [wire.BlockSize]byte
		end := off + wire.BlockSize
		if end > len(payload) {
			end = len(payload)
		}
		copy(block[:], payload[off:end])
		c.sendEncrypted(block)
	}
}

func (c *testClient) recvReply() (msgType byte, param int32, payload []byte) {
	headerBlock := c.recvEncrypted()
	dataSize := binary.LittleEndian.Uint32(headerBlock[0:4])
	param = int32(binary.LittleEndian.Uint32(headerBlock[4:8]))
	msgType = headerBlock[8]
	nBlocks := (int(dataSize) + wire.BlockSize - 1) / wire.BlockSize
	buf := make([]byte, 0, nBlocks*wire.BlockSize)
	for i := 0; i < nBlocks; i++ {
		block := c.recvEncrypted()
		buf = append(buf, block[:]...)
	}
	return msgType, param, buf[:dataSize]
}

func newTestSecret(t *testing.T, value string) *SecretDigest {
	t.Helper()
	sd := NewSecretDigest(cryptoprim.Std{})
	sd.Reload(value, true)
	return sd
}

func TestHandshakeHappyPathS3(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	secret := newTestSecret(t, "hunter2")
	digest, _ := secret.Current()
	registry := handler.NewRegistry()

	sess := New(serverConn, cryptoprim.Std{}, secret, registry, Info{BoardIDHex: "deadbeef", Version: "1"}, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- sess.Run() }()

	client := newTestClient(clientConn)
	client.doHandshake(digest)

	require.NoError(t, RegisterEcho(registry))
	client.sendRequest(echoMsgType, 7, []byte("hi"))
	msgType, param, payload := client.recvReply()
	assert.Equal(t, wire.IDOK, msgType)
	assert.Equal(t, int32(7), param)
	assert.Equal(t, "hi", string(payload))

	clientConn.Close()
	select {
	case <-errCh:
	case <-time.After(time.Second):
		t.Fatal("server did not exit after client closed")
	}
}

func TestBadAuthenticationS4(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	secret := newTestSecret(t, "hunter2")
	registry := handler.NewRegistry()
	sess := New(serverConn, cryptoprim.Std{}, secret, registry, Info{BoardIDHex: "ab", Version: "1"}, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- sess.Run() }()

	client := newTestClient(clientConn)
	first := client.readBlock()
	nBlocks := int(first[2])
	for i := 1; i < nBlocks; i++ {
		client.readBlock()
	}
	copy(client.clientChallenge[:], client.prim.RandomBytes(wire.ChallengeLen))
	var req [wire.BlockSize]byte
	req[0] = wire.IDRequest
	copy(req[1:1+wire.ChallengeLen], client.clientChallenge[:])
	client.writeBlock(req)

	challengeBlock := client.readBlock()
	copy(client.serverChallenge[:], challengeBlock[1:1+wire.ChallengeLen])

	var badAuth [wire.BlockSize]byte
	badAuth[0] = wire.IDAuthentication // all-zero tag, definitely wrong
	client.writeBlock(badAuth)

	errBlock := client.readBlock()
	assert.Equal(t, wire.IDAuthError, errBlock[0])

	err := <-errCh
	assert.ErrorIs(t, err, ErrAuth)
}

func TestUnknownHandlerS5(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	secret := newTestSecret(t, "hunter2")
	digest, _ := secret.Current()
	registry := handler.NewRegistry()
	sess := New(serverConn, cryptoprim.Std{}, secret, registry, Info{BoardIDHex: "ab", Version: "1"}, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- sess.Run() }()

	client := newTestClient(clientConn)
	client.doHandshake(digest)

	client.sendRequest(0, 0, nil)
	msgType, _, _ := client.recvReply()
	assert.Equal(t, wire.IDBadHandlerError, msgType)

	err := <-errCh
	assert.ErrorIs(t, err, ErrBadHandler)
}

func TestCorruptDataHash(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	secret := newTestSecret(t, "hunter2")
	digest, _ := secret.Current()
	registry := handler.NewRegistry()
	require.NoError(t, RegisterEcho(registry))
	sess := New(serverConn, cryptoprim.Std{}, secret, registry, Info{BoardIDHex: "ab", Version: "1"}, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- sess.Run() }()

	client := newTestClient(clientConn)
	client.doHandshake(digest)

	payload := []byte("hello")
	var headerBlock [wire.BlockSize]byte
	binary.LittleEndian.PutUint32(headerBlock[0:4], uint32(len(payload)))
	headerBlock[8] = echoMsgType
	hash := computeDataHash(client.prim, headerBlock, payload)
	copy(headerBlock[9:16], hash[:])
	client.sendEncrypted(headerBlock)

	var block [wire.BlockSize]byte
	copy(block[:], payload)
	block[0] ^= 0xFF // flip every bit of the first payload byte before encrypting
	client.sendEncrypted(block)

	msgType, _, _ := client.recvReply()
	assert.Equal(t, wire.IDCorruptError, msgType)

	err := <-errCh
	assert.ErrorIs(t, err, ErrCorruptData)
}

func TestTwoPhaseOrderingS6(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	secret := newTestSecret(t, "hunter2")
	digest, _ := secret.Current()
	registry := handler.NewRegistry()

	phase2Called := make(chan int32, 1)
	require.NoError(t, registry.Register(wire.FirstHandlerID+5, nil,
		func(msgType byte, buf []byte, inSize uint32, inParam int32, arg any) {
			phase2Called <- inParam
		}, nil))

	sess := New(serverConn, cryptoprim.Std{}, secret, registry, Info{BoardIDHex: "ab", Version: "1"}, nil)
	errCh := make(chan error, 1)
	go func() { errCh <- sess.Run() }()

	client := newTestClient(clientConn)
	client.doHandshake(digest)
	client.sendRequest(wire.FirstHandlerID+5, 99, nil)

	msgType, param, _ := client.recvReply()
	assert.Equal(t, wire.IDOK, msgType)
	assert.Equal(t, int32(99), param)

	select {
	case got := <-phase2Called:
		assert.Equal(t, int32(99), got)
	case <-time.After(time.Second):
		t.Fatal("phase2 was not invoked")
	}
	<-errCh
}

// echoMsgType is a test-only handler slot that returns its input
// unchanged, used to exercise the single-phase reply path.
const echoMsgType = wire.LastUserHandlerID

func RegisterEcho(r *handler.Registry) error {
	return r.Register(echoMsgType, func(msgType byte, buf []byte, inSize uint32, inParam int32, outSize *uint32, arg any) int32 {
		*outSize = inSize
		return inParam
	}, nil, nil)
}
