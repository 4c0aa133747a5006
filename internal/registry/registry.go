// Package registry keeps the ordered list of webhook subscribers.
package registry

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/diegocamara89/meu-venom-bot/internal/apperror"
	"github.com/diegocamara89/meu-venom-bot/internal/configstore"
	"github.com/diegocamara89/meu-venom-bot/internal/model"
)

// Store is the persistence the registry writes through to.
type Store interface {
	Read(name string, v any) (bool, error)
	Write(name string, v any) error
	Backup(name string) error
	WriteRaw(name string, data []byte) error
	Preserve(name string) (string, error)
}

// Registry holds webhook entries in insertion order.
type Registry struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
	newID func() (string, error)

	mu      sync.RWMutex
	entries []model.WebhookEntry
}

// New returns an empty registry. Call Load to read the persisted document.
func New(store Store, log *zap.Logger) *Registry {
	return &Registry{
		store: store,
		log:   log,
		now:   time.Now,
		newID: newTimeOrderedID,
	}
}

// ValidateURL accepts absolute http(s) URLs with a host.
func ValidateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%w: url is empty", apperror.ErrInvalidURL)
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", apperror.ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", apperror.ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: %q has no host", apperror.ErrInvalidURL, raw)
	}
	return nil
}

// Load replaces the in-memory list with the persisted document.
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var doc model.WebhooksDocument
	if _, err := r.store.Read(configstore.Webhooks, &doc); err != nil {
		return fmt.Errorf("loading webhooks: %w", err)
	}

	r.entries = r.dedupe(doc.Webhooks)

	r.log.Info("webhooks loaded", zap.Int("webhooks", len(r.entries)))
	return nil
}

// Replace swaps the persisted document for data and reloads from it. The
// previous document is kept as a .bak sidecar.
func (r *Registry) Replace(data []byte) error {
	var doc model.WebhooksDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: decoding webhooks: %w", apperror.ErrIntegrity, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	bak, err := r.store.Preserve(configstore.Webhooks)
	if err != nil {
		return err
	}
	if err := r.store.WriteRaw(configstore.Webhooks, data); err != nil {
		return fmt.Errorf("replacing webhooks: %w", err)
	}
	r.entries = r.dedupe(doc.Webhooks)

	r.log.Info("webhooks replaced", zap.Int("webhooks", len(r.entries)), zap.String("previous", bak))
	return nil
}

func (r *Registry) dedupe(in []model.WebhookEntry) []model.WebhookEntry {
	entries := make([]model.WebhookEntry, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, e := range in {
		if _, dup := seen[e.ID]; dup || e.ID == "" {
			r.log.Warn("skipping webhook with missing or duplicate id", zap.String("id", e.ID), zap.String("url", e.URL))
			continue
		}
		seen[e.ID] = struct{}{}
		entries = append(entries, e)
	}
	return entries
}

// Add registers a new endpoint and returns the stored entry.
func (r *Registry) Add(rawURL, description string) (model.WebhookEntry, error) {
	if err := ValidateURL(rawURL); err != nil {
		return model.WebhookEntry{}, err
	}
	id, err := r.newID()
	if err != nil {
		return model.WebhookEntry{}, fmt.Errorf("generating webhook id: %w", err)
	}

	entry := model.WebhookEntry{
		ID:          id,
		URL:         rawURL,
		Description: description,
		CreatedAt:   r.now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := append(append(make([]model.WebhookEntry, 0, len(r.entries)+1), r.entries...), entry)
	if err := r.persist(next); err != nil {
		return model.WebhookEntry{}, err
	}
	r.entries = next
	return entry, nil
}

// Remove deletes the entry with id and reports whether it existed.
func (r *Registry) Remove(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make([]model.WebhookEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.ID != id {
			next = append(next, e)
		}
	}
	if len(next) == len(r.entries) {
		return false, nil
	}

	if err := r.persist(next); err != nil {
		return false, err
	}
	r.entries = next
	return true, nil
}

// List returns a snapshot of the entries in insertion order.
func (r *Registry) List() []model.WebhookEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.WebhookEntry{}, r.entries...)
}

// Len returns the number of registered webhooks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// persist must be called with r.mu held.
func (r *Registry) persist(entries []model.WebhookEntry) error {
	if err := r.store.Backup(configstore.Webhooks); err != nil {
		r.log.Warn("webhooks backup failed", zap.Error(err))
	}
	if err := r.store.Write(configstore.Webhooks, model.WebhooksDocument{Webhooks: entries}); err != nil {
		return fmt.Errorf("saving webhooks: %w", err)
	}
	return nil
}

// newTimeOrderedID returns a UUIDv7, whose leading bits encode the creation time.
func newTimeOrderedID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
