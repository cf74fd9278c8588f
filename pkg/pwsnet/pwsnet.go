// Package pwsnet binds the protocol to real sockets: a TCP listener that
// runs exactly one session.Session at a time (spec.md section 4.3 — the
// embedded target has no resources for concurrent sessions) and a UDP
// discovery responder for board lookup on the local network. Grounded
// on the teacher's pkg/network/network.go (accept loop shape) and
// pkg/can/virtual/virtual.go (a minimal, self-contained transport
// binding used as a template for a small, focused net package).
package pwsnet

import (
	"errors"
	"log/slog"
	"net"
	"strings"

	"github.com/kclauber/pico-wifi-settings/pkg/cryptoprim"
	"github.com/kclauber/pico-wifi-settings/pkg/handler"
	"github.com/kclauber/pico-wifi-settings/pkg/session"
	"github.com/kclauber/pico-wifi-settings/pkg/wire"
)

// DiscoveryRequest and DiscoveryReplyPrefix are the 4-byte magic values of
// spec.md section 4.3's UDP discovery packet: {4-byte magic, up to
// (2*BOARD_ID_LEN+1) ASCII hex bytes}. A request carries a hex prefix of
// the board id being looked for; a board replies only when that prefix
// matches the start of its own board id hex, with its full id.
const (
	DiscoveryRequest     = "PWS?"
	DiscoveryReplyPrefix = "PWS:"
	discoveryMagicLen    = 4
)

// Listener owns the single-connection TCP accept loop and, optionally,
// the UDP discovery responder.
type Listener struct {
	tcp    net.Listener
	udp    net.PacketConn
	info   session.Info
	prim   cryptoprim.Primitives
	secret *session.SecretDigest
	reg    *handler.Registry
	logger *slog.Logger
}

// Listen binds addr (host:port, typically ":1404") for TCP. If
// udpAddr is non-empty, it also binds a UDP discovery responder there.
func Listen(addr, udpAddr string, prim cryptoprim.Primitives, secret *session.SecretDigest, reg *handler.Registry, info session.Info, logger *slog.Logger) (*Listener, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tcp, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	l := &Listener{tcp: tcp, info: info, prim: prim, secret: secret, reg: reg, logger: logger.With("component", "pwsnet")}
	if udpAddr != "" {
		udp, err := net.ListenPacket("udp", udpAddr)
		if err != nil {
			tcp.Close()
			return nil, err
		}
		l.udp = udp
	}
	return l, nil
}

// Addr returns the bound TCP address.
func (l *Listener) Addr() net.Addr { return l.tcp.Addr() }

// UDPAddr returns the bound UDP discovery address, or nil if none was
// bound.
func (l *Listener) UDPAddr() net.Addr {
	if l.udp == nil {
		return nil
	}
	return l.udp.LocalAddr()
}

// Close closes both sockets.
func (l *Listener) Close() error {
	var firstErr error
	if err := l.tcp.Close(); err != nil {
		firstErr = err
	}
	if l.udp != nil {
		if err := l.udp.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ServeDiscovery answers UDP discovery pings until the socket is
// closed. Run it in its own goroutine alongside Serve.
func (l *Listener) ServeDiscovery() error {
	if l.udp == nil {
		return errors.New("pwsnet: no UDP socket bound")
	}
	buf := make([]byte, discoveryMagicLen+2*len(l.info.BoardIDHex)+1)
	reply := []byte(DiscoveryReplyPrefix + l.info.BoardIDHex)
	for {
		n, addr, err := l.udp.ReadFrom(buf)
		if err != nil {
			return err
		}
		if n < discoveryMagicLen || string(buf[:discoveryMagicLen]) != DiscoveryRequest {
			continue
		}
		hexPrefix := string(buf[discoveryMagicLen:n])
		if !strings.HasPrefix(l.info.BoardIDHex, hexPrefix) {
			continue
		}
		if _, err := l.udp.WriteTo(reply, addr); err != nil {
			l.logger.Warn("discovery reply failed", "peer", addr, "err", err)
		}
	}
}

// Serve accepts connections one at a time: the spec's single-threaded
// execution model (section 5) means a second connecting client must
// simply wait its turn at accept() rather than be handled concurrently.
// Serve blocks until the listener is closed.
func (l *Listener) Serve() error {
	for {
		conn, err := l.tcp.Accept()
		if err != nil {
			return err
		}
		l.logger.Info("session starting", "remote", conn.RemoteAddr())
		sess := session.New(conn, l.prim, l.secret, l.reg, l.info, l.logger)
		if err := sess.Run(); err != nil {
			l.logger.Info("session ended", "remote", conn.RemoteAddr(), "err", err)
		}
	}
}
