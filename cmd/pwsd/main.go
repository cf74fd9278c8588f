// Command pwsd is the wifi settings daemon: it loads a board descriptor,
// opens the settings sector, and serves the remote control protocol
// over TCP/UDP. Grounded on the teacher's cmd/canopen/main.go, which
// wires a flag-parsed config path into a long-running network service
// the same way.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kclauber/pico-wifi-settings/pkg/boardconfig"
	"github.com/kclauber/pico-wifi-settings/pkg/cryptoprim"
	"github.com/kclauber/pico-wifi-settings/pkg/handler"
	"github.com/kclauber/pico-wifi-settings/pkg/pwsnet"
	"github.com/kclauber/pico-wifi-settings/pkg/session"
	"github.com/kclauber/pico-wifi-settings/pkg/settings"
	"github.com/kclauber/pico-wifi-settings/pkg/storage"

	_ "github.com/kclauber/pico-wifi-settings/pkg/storage/filebackend"
	_ "github.com/kclauber/pico-wifi-settings/pkg/storage/virtual"
)

func main() {
	configPath := flag.String("config", "/etc/pwsd/board.ini", "path to the board descriptor INI file")
	udpDiscovery := flag.Bool("discovery", true, "answer UDP discovery pings on the same port")
	flag.Parse()

	cfg, err := boardconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "pwsd:", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)

	if err := run(cfg, *udpDiscovery, logger); err != nil {
		logger.Error("pwsd exiting", "err", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func run(cfg boardconfig.Config, udpDiscovery bool, logger *slog.Logger) error {
	backend, err := storage.New(cfg.StorageBackend, cfg.StorageChannel, cfg.SectorSize, cfg.PageSize)
	if err != nil {
		return fmt.Errorf("opening storage backend: %w", err)
	}

	store := settings.NewStore(backend, cfg.SectorSize, logger)
	if err := store.Load(); err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	prim := cryptoprim.Std{}
	secret := session.NewSecretDigest(prim)
	rawSecret, err := store.Get(settings.UpdateSecretKey)
	secret.Reload(rawSecret, err == nil)
	store.OnSaved = secret.Reload

	registry := handler.NewRegistry()
	info := handler.BoardInfo{BoardIDHex: cfg.BoardIDHex, Version: cfg.Version}
	if err := handler.RegisterPicoInfo(registry, &info); err != nil {
		return fmt.Errorf("registering PicoInfo: %w", err)
	}
	if err := handler.RegisterUpdate(registry, store, logger); err != nil {
		return fmt.Errorf("registering Update: %w", err)
	}
	if err := handler.RegisterUpdateReboot(registry, rebootHook(logger), logger); err != nil {
		return fmt.Errorf("registering UpdateReboot: %w", err)
	}

	udpAddr := ""
	if udpDiscovery {
		udpAddr = cfg.ListenAddress
	}
	listener, err := pwsnet.Listen(cfg.ListenAddress, udpAddr, prim, secret,
		registry, session.Info{BoardIDHex: cfg.BoardIDHex, Version: cfg.Version}, logger)
	if err != nil {
		return fmt.Errorf("binding listener: %w", err)
	}
	defer listener.Close()

	logger.Info("pwsd listening", "addr", listener.Addr())

	errCh := make(chan error, 2)
	go func() { errCh <- listener.Serve() }()
	if udpDiscovery {
		go func() { errCh <- listener.ServeDiscovery() }()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig)
		return nil
	}
}

// rebootHook is the process-level effect of a successful UpdateReboot
// request (spec.md section 4.4): the real board reboots; pwsd exits so
// a supervisor (systemd, etc.) restarts the process against the
// freshly written settings.
func rebootHook(logger *slog.Logger) func() {
	return func() {
		logger.Info("reboot handler invoked, exiting for supervisor restart")
		os.Exit(0)
	}
}
