package settings

import (
	"fmt"
	"log/slog"

	"github.com/kclauber/pico-wifi-settings/pkg/storage"
)

// UpdateSecretKey is the reserved key (spec.md section 6) holding the raw
// bytes the session's shared-secret digest is derived from.
const UpdateSecretKey = "update_secret"

// Store owns the in-RAM mirror of the settings sector and persists it by
// atomic sector replacement through a storage.Backend. Per spec.md
// section 5, the execution model is single-threaded cooperative: Store
// carries no internal locking, and a caller must not interleave Load/
// edit/Save calls across concurrent goroutines.
type Store struct {
	backend  storage.Backend
	fileSize int
	logger   *slog.Logger
	image    *Image

	// OnSaved, if set, fires synchronously at the end of a successful
	// Save with the current value of UpdateSecretKey (and whether it is
	// present). Wired by the embedding program to the session package's
	// secret-digest reload, matching spec.md section 3's "recomputed
	// whenever the settings file is rewritten" rule — and section 5's
	// requirement that a reload never runs mid-handshake, since it only
	// ever fires at the end of the handler dispatch that called Save.
	OnSaved func(updateSecret string, present bool)
}

// NewStore binds a Store to backend, whose SectorSize() must equal
// fileSize.
func NewStore(backend storage.Backend, fileSize int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend:  backend,
		fileSize: fileSize,
		logger:   logger.With("component", "settings"),
		image:    NewImage(fileSize),
	}
}

// Load replaces the in-RAM mirror with a fresh full-sector read from the
// backend.
func (s *Store) Load() error {
	raw := make([]byte, s.fileSize)
	if err := s.backend.Read(0, raw); err != nil {
		return fmt.Errorf("settings: load: %w", err)
	}
	s.image = NewImageFromRaw(s.fileSize, raw)
	s.logger.Debug("loaded settings sector", "bytes", len(s.image.buf))
	return nil
}

// Save persists the current in-RAM mirror via atomic sector replacement,
// then invokes OnSaved if set.
func (s *Store) Save() error {
	if err := s.backend.AtomicReplace(s.image.Bytes()); err != nil {
		return err
	}
	if s.OnSaved != nil {
		secret, err := s.image.Get(UpdateSecretKey)
		s.OnSaved(secret, err == nil)
	}
	return nil
}

// ReplaceFile replaces the entire in-RAM mirror with raw (a full new
// settings file, as received by the Update handler: spec.md section 1's
// "authenticated remote update" feature writes and atomically replaces
// the whole sector, not individual keys) and persists it with Save.
func (s *Store) ReplaceFile(raw []byte) error {
	s.image = NewImageFromRaw(s.fileSize, raw)
	return s.Save()
}

func (s *Store) Get(key string) (string, error)          { return s.image.Get(key) }
func (s *Store) Set(key, value string) error              { return s.image.Set(key, value) }
func (s *Store) Discard(key string)                       { s.image.Discard(key) }
func (s *Store) Enumerate(cursor int) (string, string, int, error) {
	return s.image.Enumerate(cursor)
}

// Image exposes the underlying in-RAM mirror directly, for callers (e.g.
// built-in handlers) that need to batch several edits before a single
// Save.
func (s *Store) Image() *Image { return s.image }
