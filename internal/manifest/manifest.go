package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kpauljoseph/studyguide/pkg/logger"
)

// Manifest records which source keys have already been handled.
type Manifest map[string]bool

func (m Manifest) Processed(key string) bool {
	return m[key]
}

// Mark sets key as processed. There is deliberately no way to unmark.
func (m Manifest) Mark(key string) {
	m[key] = true
}

func (m Manifest) Len() int {
	return len(m)
}

// CorruptError means the manifest file exists but could not be decoded.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("manifest %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

// Store persists a Manifest as a flat JSON object. It does no locking:
// one writer per file at a time.
type Store struct {
	path         string
	resetCorrupt bool
	logger       *logger.Logger
}

type Option func(*Store)

// WithResetOnCorrupt makes Load return an empty manifest (with a warning)
// instead of a CorruptError.
func WithResetOnCorrupt(reset bool) Option {
	return func(s *Store) {
		s.resetCorrupt = reset
	}
}

func NewStore(path string, log *logger.Logger, options ...Option) *Store {
	if log == nil {
		log = logger.Discard()
	}
	s := &Store{path: path, logger: log}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Load() (Manifest, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Debug("No manifest at %s, starting empty", s.path)
			return Manifest{}, nil
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	m := Manifest{}
	if err := json.Unmarshal(data, &m); err != nil {
		corrupt := &CorruptError{Path: s.path, Err: err}
		if s.resetCorrupt {
			s.logger.Warn("%v; continuing with an empty manifest, every file will be processed again", corrupt)
			return Manifest{}, nil
		}
		return nil, corrupt
	}
	if m == nil {
		// a literal "null" decodes to a nil map
		m = Manifest{}
	}

	s.logger.Debug("Loaded manifest %s with %d entries", s.path, len(m))
	return m, nil
}

// Save writes to a temp file next to the target and renames it into place,
// so a failed write never clobbers the previous manifest.
func (s *Store) Save(m Manifest) error {
	if m == nil {
		m = Manifest{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".manifest-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp manifest: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp manifest: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace manifest: %w", err)
	}

	s.logger.Debug("Saved manifest %s with %d entries", s.path, len(m))
	return nil
}
