package pwsnet_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kclauber/pico-wifi-settings/pkg/client"
	"github.com/kclauber/pico-wifi-settings/pkg/cryptoprim"
	"github.com/kclauber/pico-wifi-settings/pkg/handler"
	"github.com/kclauber/pico-wifi-settings/pkg/pwsnet"
	"github.com/kclauber/pico-wifi-settings/pkg/session"
	"github.com/kclauber/pico-wifi-settings/pkg/wire"
)

func TestServeAcceptsSequentialSessions(t *testing.T) {
	secret := session.NewSecretDigest(cryptoprim.Std{})
	secret.Reload("hunter2", true)
	reg := handler.NewRegistry()
	require.NoError(t, reg.Register(wire.LastUserHandlerID,
		func(msgType byte, buf []byte, inSize uint32, inParam int32, outSize *uint32, arg any) int32 {
			*outSize = inSize
			return inParam
		}, nil, nil))

	l, err := pwsnet.Listen("127.0.0.1:0", "", cryptoprim.Std{}, secret, reg, session.Info{BoardIDHex: "ab", Version: "1"}, nil)
	require.NoError(t, err)
	defer l.Close()

	go l.Serve()

	for i := 0; i < 2; i++ {
		conn, err := net.DialTimeout("tcp", l.Addr().String(), time.Second)
		require.NoError(t, err)
		c := client.New(conn, cryptoprim.Std{}, nil)
		_, err = c.Handshake("hunter2")
		require.NoError(t, err)
		param, payload, err := c.Call(wire.LastUserHandlerID, int32(i), []byte("x"))
		require.NoError(t, err)
		assert.Equal(t, int32(i), param)
		assert.Equal(t, "x", string(payload))
		conn.Close()
	}
}

func TestDiscoveryRespondsToPing(t *testing.T) {
	secret := session.NewSecretDigest(cryptoprim.Std{})
	reg := handler.NewRegistry()
	l, err := pwsnet.Listen("127.0.0.1:0", "127.0.0.1:0", cryptoprim.Std{}, secret, reg, session.Info{BoardIDHex: "feedface", Version: "1"}, nil)
	require.NoError(t, err)
	defer l.Close()

	go l.ServeDiscovery()

	clientConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer clientConn.Close()

	_, err = clientConn.WriteTo([]byte(pwsnet.DiscoveryRequest), l.UDPAddr())
	require.NoError(t, err)

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, _, err := clientConn.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, pwsnet.DiscoveryReplyPrefix+"feedface", string(buf[:n]))
}

func TestDiscoveryRespondsToMatchingHexPrefix(t *testing.T) {
	secret := session.NewSecretDigest(cryptoprim.Std{})
	reg := handler.NewRegistry()
	l, err := pwsnet.Listen("127.0.0.1:0", "127.0.0.1:0", cryptoprim.Std{}, secret, reg, session.Info{BoardIDHex: "feedface", Version: "1"}, nil)
	require.NoError(t, err)
	defer l.Close()

	go l.ServeDiscovery()

	clientConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer clientConn.Close()

	_, err = clientConn.WriteTo([]byte(pwsnet.DiscoveryRequest+"feed"), l.UDPAddr())
	require.NoError(t, err)

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, _, err := clientConn.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, pwsnet.DiscoveryReplyPrefix+"feedface", string(buf[:n]))
}

func TestDiscoveryIgnoresNonMatchingHexPrefix(t *testing.T) {
	secret := session.NewSecretDigest(cryptoprim.Std{})
	reg := handler.NewRegistry()
	l, err := pwsnet.Listen("127.0.0.1:0", "127.0.0.1:0", cryptoprim.Std{}, secret, reg, session.Info{BoardIDHex: "feedface", Version: "1"}, nil)
	require.NoError(t, err)
	defer l.Close()

	go l.ServeDiscovery()

	clientConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer clientConn.Close()

	_, err = clientConn.WriteTo([]byte(pwsnet.DiscoveryRequest+"dead"), l.UDPAddr())
	require.NoError(t, err)

	clientConn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	buf := make([]byte, 64)
	_, _, err = clientConn.ReadFrom(buf)
	assert.Error(t, err)
}
