// Package configstore persists the relay's JSON config documents on the local filesystem.
package configstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/diegocamara89/meu-venom-bot/internal/apperror"
)

// Document names.
const (
	Whitelist = "whitelist.json"
	Webhooks  = "webhooks.json"
)

// Documents lists every config document, in snapshot order.
var Documents = []string{Whitelist, Webhooks}

const backupSubdir = "backup"

// Store reads and writes config documents under a single directory.
// It does not serialize writers; callers hold their own per-document lock.
type Store struct {
	dir string
	log *zap.Logger
	now func() time.Time
}

// New creates the config directory if needed and returns a Store rooted at it.
func New(dir string, log *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating config dir: %w", apperror.ErrIO, err)
	}
	return &Store{dir: dir, log: log, now: time.Now}, nil
}

// Dir returns the directory holding the live documents.
func (s *Store) Dir() string { return s.dir }

// Path returns the on-disk location of a document.
func (s *Store) Path(name string) string { return filepath.Join(s.dir, name) }

// Read decodes a document into v. It reports false, with no error, when the
// document has never been written.
func (s *Store) Read(name string, v any) (bool, error) {
	data, ok, err := s.ReadRaw(name)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("%w: decoding %s: %w", apperror.ErrIO, name, err)
	}
	return true, nil
}

// ReadRaw returns a document's bytes, or false when it does not exist.
func (s *Store) ReadRaw(name string) ([]byte, bool, error) {
	if err := validateName(name); err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(s.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: reading %s: %w", apperror.ErrIO, name, err)
	}
	return data, true, nil
}

// Write encodes v as indented JSON and publishes it atomically.
func (s *Store) Write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %w", apperror.ErrIO, name, err)
	}
	return s.WriteRaw(name, data)
}

// WriteRaw writes data to a temp file in the same directory and renames it over
// the document, so readers see either the old or the new content.
func (s *Store) WriteRaw(name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp file for %s: %w", apperror.ErrIO, name, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: writing %s: %w", apperror.ErrIO, name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: syncing %s: %w", apperror.ErrIO, name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %w", apperror.ErrIO, name, err)
	}
	if err := os.Rename(tmpName, s.Path(name)); err != nil {
		return fmt.Errorf("%w: publishing %s: %w", apperror.ErrIO, name, err)
	}
	return nil
}

// Backup copies the current document to backup/<name>.<timestamp>.backup.
// A document that does not exist yet has nothing to back up.
func (s *Store) Backup(name string) error {
	dir := filepath.Join(s.dir, backupSubdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating backup dir: %w", apperror.ErrIO, err)
	}
	dst := filepath.Join(dir, fmt.Sprintf("%s.%s.backup", name, Timestamp(s.now())))
	_, err := s.copyTo(name, dst)
	return err
}

// Preserve copies the current document next to itself as <name>.<timestamp>.bak
// and returns the sidecar path. It returns "" when the document does not exist.
func (s *Store) Preserve(name string) (string, error) {
	dst := s.Path(name) + "." + Timestamp(s.now()) + ".bak"
	ok, err := s.copyTo(name, dst)
	if err != nil || !ok {
		return "", err
	}
	return dst, nil
}

func (s *Store) copyTo(name, dst string) (bool, error) {
	if err := validateName(name); err != nil {
		return false, err
	}
	src, err := os.Open(s.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: opening %s: %w", apperror.ErrIO, name, err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return false, fmt.Errorf("%w: creating %s: %w", apperror.ErrIO, filepath.Base(dst), err)
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return false, fmt.Errorf("%w: copying %s: %w", apperror.ErrIO, name, err)
	}
	if err := out.Close(); err != nil {
		return false, fmt.Errorf("%w: closing %s: %w", apperror.ErrIO, filepath.Base(dst), err)
	}

	s.log.Debug("config document copied", zap.String("document", name), zap.String("dest", dst))
	return true, nil
}

// Timestamp renders t as a filename-safe UTC timestamp, e.g. 2024-05-01T10-20-30-123Z.
func Timestamp(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s-%03dZ", t.Format("2006-01-02T15-04-05"), t.Nanosecond()/int(time.Millisecond))
}

func validateName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: document name %q", apperror.ErrInvalidIdentifier, name)
	}
	return nil
}
