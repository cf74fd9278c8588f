// Package boardconfig parses the static per-board descriptor file read by
// cmd/pwsd at startup: board identity, network listen address, and
// settings-sector storage geometry. This is ambient configuration for
// the daemon process itself, distinct from the wifi settings the
// protocol edits at runtime (spec.md section 6), so it is free to use a
// conventional INI format rather than the sector's bespoke byte layout.
// Grounded on the teacher's gopkg.in/ini.v1 usage for its own config
// file parsing.
package boardconfig

import (
	"fmt"

	"gopkg.in/ini.v1"
)

// Config is the parsed descriptor.
type Config struct {
	// BoardIDHex is the board's identity string reported in the
	// protocol greeting and by the PicoInfo handler (spec.md section
	// 4.2/4.4).
	BoardIDHex string
	// Version is the firmware/daemon version string reported alongside
	// BoardIDHex.
	Version string
	// ListenAddress is the host:port pwsnet.Listener binds to; defaults
	// to ":1404" (wire.ListenPort) when empty.
	ListenAddress string
	// StorageBackend names a registered pkg/storage driver ("file" or
	// "virtual").
	StorageBackend string
	// StorageChannel is the driver-specific channel string (e.g. a file
	// path for the "file" backend).
	StorageChannel string
	// SectorSize and PageSize are the settings sector's erase/program
	// granularity (spec.md section 6).
	SectorSize int
	PageSize   int
	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string
}

const (
	defaultListenAddress = ":1404"
	defaultSectorSize    = 4096
	defaultPageSize      = 256
	defaultLogLevel      = "info"
)

// Load parses an INI-format board descriptor from path.
//
// Example:
//
//	[board]
//	id = cafebabe01020304
//	version = 1.0.0
//
//	[network]
//	listen = :1404
//
//	[storage]
//	backend = file
//	channel = /var/lib/pwsd/settings.bin
//	sector_size = 4096
//	page_size = 256
//
//	[log]
//	level = info
func Load(path string) (Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return Config{}, fmt.Errorf("boardconfig: load %s: %w", path, err)
	}
	return fromFile(f)
}

func fromFile(f *ini.File) (Config, error) {
	board := f.Section("board")
	network := f.Section("network")
	storageSec := f.Section("storage")
	logSec := f.Section("log")

	cfg := Config{
		BoardIDHex:     board.Key("id").String(),
		Version:        board.Key("version").MustString("0.0.0"),
		ListenAddress:  network.Key("listen").MustString(defaultListenAddress),
		StorageBackend: storageSec.Key("backend").MustString("file"),
		StorageChannel: storageSec.Key("channel").String(),
		SectorSize:     storageSec.Key("sector_size").MustInt(defaultSectorSize),
		PageSize:       storageSec.Key("page_size").MustInt(defaultPageSize),
		LogLevel:       logSec.Key("level").MustString(defaultLogLevel),
	}
	if cfg.BoardIDHex == "" {
		return Config{}, fmt.Errorf("boardconfig: [board] id is required")
	}
	if cfg.StorageChannel == "" && cfg.StorageBackend == "file" {
		return Config{}, fmt.Errorf("boardconfig: [storage] channel is required for backend %q", cfg.StorageBackend)
	}
	return cfg, nil
}
