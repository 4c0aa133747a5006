// Package backup snapshots the config documents into hash-verified directories
// and restores them.
package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/diegocamara89/meu-venom-bot/internal/apperror"
	"github.com/diegocamara89/meu-venom-bot/internal/configstore"
	"github.com/diegocamara89/meu-venom-bot/internal/metrics"
)

const (
	// Version tags every manifest this package writes.
	Version = "1.0.0"

	dirPrefix    = "backup-"
	manifestFile = "metadata.json"
	hashSuffix   = ".hash"

	maxCollisions = 100
)

// Source is the live document store snapshots are taken from. Documents
// without an Owner are restored straight into it.
type Source interface {
	ReadRaw(name string) ([]byte, bool, error)
	WriteRaw(name string, data []byte) error
	Preserve(name string) (string, error)
}

// Owner holds a live document in memory. Replace must persist data and reload
// from it under the same lock the owner's own writers take.
type Owner interface {
	Replace(data []byte) error
}

// Metadata is the manifest stored as metadata.json inside a snapshot.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	Files     []string  `json:"files"`
	Version   string    `json:"version"`
}

// Snapshot describes one snapshot directory.
type Snapshot struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	Metadata
}

// Manager creates, lists and restores snapshots under a single directory.
type Manager struct {
	source Source
	owners map[string]Owner
	dir    string
	log    *zap.Logger
	now    func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithOwner restores document name through o instead of writing it directly.
func WithOwner(name string, o Owner) Option {
	return func(m *Manager) { m.owners[name] = o }
}

func New(source Source, dir string, log *zap.Logger, opts ...Option) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating backup dir: %w", apperror.ErrIO, err)
	}
	m := &Manager{source: source, owners: make(map[string]Owner), dir: dir, log: log, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Create copies every existing config document into a new snapshot.
func (m *Manager) Create() (Snapshot, error) {
	snap, err := m.create()
	metrics.RecordBackup("create", err)
	if err != nil {
		m.log.Error("backup failed", zap.Error(err))
		return Snapshot{}, err
	}
	m.log.Info("backup created", zap.String("id", snap.ID), zap.Strings("files", snap.Files))
	return snap, nil
}

func (m *Manager) create() (Snapshot, error) {
	now := m.now().UTC()
	id, path, err := m.mkdir(dirPrefix + configstore.Timestamp(now))
	if err != nil {
		return Snapshot{}, err
	}

	meta := Metadata{Timestamp: now, Files: []string{}, Version: Version}
	for _, name := range configstore.Documents {
		data, ok, err := m.source.ReadRaw(name)
		if err != nil {
			return Snapshot{}, err
		}
		if !ok {
			continue
		}
		if err := writeFile(filepath.Join(path, name), data); err != nil {
			return Snapshot{}, err
		}
		if err := writeFile(filepath.Join(path, name+hashSuffix), []byte(contentHash(data))); err != nil {
			return Snapshot{}, err
		}
		meta.Files = append(meta.Files, name)
	}

	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return Snapshot{}, fmt.Errorf("encoding manifest: %w", err)
	}
	if err := writeFile(filepath.Join(path, manifestFile), raw); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{ID: id, Path: path, Metadata: meta}, nil
}

// mkdir creates the snapshot directory, suffixing base when a snapshot taken
// in the same millisecond already holds it.
func (m *Manager) mkdir(base string) (string, string, error) {
	id := base
	for i := 1; ; i++ {
		path := filepath.Join(m.dir, id)
		err := os.Mkdir(path, 0o755)
		if err == nil {
			return id, path, nil
		}
		if !errors.Is(err, fs.ErrExist) || i > maxCollisions {
			return "", "", fmt.Errorf("%w: creating snapshot %s: %w", apperror.ErrIO, id, err)
		}
		id = fmt.Sprintf("%s-%d", base, i)
	}
}

// Restore verifies every file of snapshot id and then overwrites the live
// documents, keeping each previous version as a .bak sidecar. Nothing is
// written when any file fails verification.
func (m *Manager) Restore(id string) (Metadata, error) {
	meta, err := m.restore(id)
	metrics.RecordBackup("restore", err)
	if err != nil {
		m.log.Error("restore failed", zap.String("id", id), zap.Error(err))
		return Metadata{}, err
	}
	m.log.Info("backup restored", zap.String("id", id), zap.Strings("files", meta.Files))
	return meta, nil
}

func (m *Manager) restore(id string) (Metadata, error) {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return Metadata{}, fmt.Errorf("%w: backup %q", apperror.ErrNotFound, id)
	}
	path := filepath.Join(m.dir, id)
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		return Metadata{}, fmt.Errorf("%w: backup %q", apperror.ErrNotFound, id)
	}

	meta, err := readManifest(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %s: %w", apperror.ErrIntegrity, id, err)
	}

	contents := make(map[string][]byte, len(meta.Files))
	for _, name := range meta.Files {
		data, err := verify(path, name)
		if err != nil {
			return Metadata{}, fmt.Errorf("%w: %s: %w", apperror.ErrIntegrity, id, err)
		}
		if !json.Valid(data) {
			return Metadata{}, fmt.Errorf("%w: %s: %s is not valid JSON", apperror.ErrIntegrity, id, name)
		}
		contents[name] = data
	}

	for _, name := range meta.Files {
		if err := m.put(name, contents[name]); err != nil {
			return Metadata{}, fmt.Errorf("restoring %s: %w", name, err)
		}
	}
	return meta, nil
}

func (m *Manager) put(name string, data []byte) error {
	if o, ok := m.owners[name]; ok {
		return o.Replace(data)
	}

	bak, err := m.source.Preserve(name)
	if err != nil {
		return err
	}
	if bak != "" {
		m.log.Debug("live document preserved", zap.String("document", name), zap.String("path", bak))
	}
	return m.source.WriteRaw(name, data)
}

// List returns every readable snapshot, newest first. Directories with a
// missing or corrupt manifest are skipped.
func (m *Manager) List() ([]Snapshot, error) {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: listing backups: %w", apperror.ErrIO, err)
	}

	snapshots := make([]Snapshot, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(m.dir, e.Name())
		meta, err := readManifest(path)
		if err != nil {
			m.log.Debug("skipping unreadable backup", zap.String("id", e.Name()), zap.Error(err))
			continue
		}
		snapshots = append(snapshots, Snapshot{ID: e.Name(), Path: path, Metadata: meta})
	}

	sort.SliceStable(snapshots, func(i, j int) bool {
		return snapshots[i].Timestamp.After(snapshots[j].Timestamp)
	})
	return snapshots, nil
}

func readManifest(dir string) (Metadata, error) {
	raw, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return Metadata{}, fmt.Errorf("reading manifest: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Metadata{}, fmt.Errorf("decoding manifest: %w", err)
	}
	for _, name := range meta.Files {
		if name != filepath.Base(name) || !slices.Contains(configstore.Documents, name) {
			return Metadata{}, fmt.Errorf("manifest lists unknown document %q", name)
		}
	}
	return meta, nil
}

// verify returns the content of name when it matches its hash sidecar.
func verify(dir, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	stored, err := os.ReadFile(filepath.Join(dir, name+hashSuffix))
	if err != nil {
		return nil, fmt.Errorf("reading hash of %s: %w", name, err)
	}
	if strings.TrimSpace(string(stored)) != contentHash(data) {
		return nil, fmt.Errorf("hash mismatch for %s", name)
	}
	return data, nil
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: writing %s: %w", apperror.ErrIO, filepath.Base(path), err)
	}
	return nil
}
