// Command pwsctl is a CLI client for the wifi settings remote control
// protocol: it dials a board, authenticates with the shared secret, and
// invokes one handler. Grounded on the teacher's cmd/sdo_client/main.go,
// a thin flag-driven CLI wrapped around a protocol client library.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kclauber/pico-wifi-settings/pkg/client"
	"github.com/kclauber/pico-wifi-settings/pkg/wire"
)

func main() {
	addr := flag.String("addr", "", "board address, host:port (required)")
	secret := flag.String("secret", "", "shared update secret (required)")
	msgType := flag.Uint("msg-type", uint(wire.MsgTypePicoInfo), "handler msg_type to invoke")
	parameter := flag.Int("parameter", 0, "request parameter")
	payload := flag.String("payload", "", "request payload, sent verbatim")
	timeout := flag.Duration("timeout", 5*time.Second, "connect timeout")
	flag.Parse()

	if *addr == "" || *secret == "" {
		fmt.Fprintln(os.Stderr, "pwsctl: -addr and -secret are required")
		flag.Usage()
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := run(*addr, *secret, byte(*msgType), int32(*parameter), *payload, *timeout, logger); err != nil {
		fmt.Fprintln(os.Stderr, "pwsctl:", err)
		os.Exit(1)
	}
}

func run(addr, secret string, msgType byte, parameter int32, payload string, timeout time.Duration, logger *slog.Logger) error {
	c, err := client.Dial(addr, timeout, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	greeting, err := c.Handshake(secret)
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	fmt.Printf("connected: %s\n", strings.TrimSpace(greeting.Text))

	replyParam, replyPayload, err := c.Call(msgType, parameter, []byte(payload))
	if err != nil {
		return fmt.Errorf("call: %w", err)
	}
	fmt.Printf("reply: parameter=%d payload=%q\n", replyParam, string(replyPayload))
	return nil
}
