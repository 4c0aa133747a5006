// Package whitelist keeps the set of sender numbers allowed to trigger webhook dispatch.
package whitelist

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/diegocamara89/meu-venom-bot/internal/apperror"
	"github.com/diegocamara89/meu-venom-bot/internal/configstore"
	"github.com/diegocamara89/meu-venom-bot/internal/model"
)

// Store is the persistence the whitelist writes through to.
type Store interface {
	Read(name string, v any) (bool, error)
	Write(name string, v any) error
	Backup(name string) error
	WriteRaw(name string, data []byte) error
	Preserve(name string) (string, error)
}

// Whitelist is an insertion-ordered set of digit-only numbers.
type Whitelist struct {
	store Store
	log   *zap.Logger

	mu      sync.RWMutex
	numbers []string
	index   map[string]struct{}
}

// New returns an empty whitelist. Call Load to read the persisted document.
func New(store Store, log *zap.Logger) *Whitelist {
	return &Whitelist{
		store: store,
		log:   log,
		index: make(map[string]struct{}),
	}
}

// Normalize strips every non-digit character from raw.
func Normalize(raw string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	if digits == "" {
		return "", fmt.Errorf("%w: %q has no digits", apperror.ErrInvalidIdentifier, raw)
	}
	return digits, nil
}

// Load replaces the in-memory set with the persisted document. A missing
// document leaves the whitelist empty.
func (w *Whitelist) Load() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var doc model.WhitelistDocument
	if _, err := w.store.Read(configstore.Whitelist, &doc); err != nil {
		return fmt.Errorf("loading whitelist: %w", err)
	}

	w.numbers, w.index = w.build(doc.Numbers)

	w.log.Info("whitelist loaded", zap.Int("numbers", len(w.numbers)))
	return nil
}

// Replace swaps the persisted document for data and reloads from it. The
// previous document is kept as a .bak sidecar.
func (w *Whitelist) Replace(data []byte) error {
	var doc model.WhitelistDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: decoding whitelist: %w", apperror.ErrIntegrity, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	bak, err := w.store.Preserve(configstore.Whitelist)
	if err != nil {
		return err
	}
	if err := w.store.WriteRaw(configstore.Whitelist, data); err != nil {
		return fmt.Errorf("replacing whitelist: %w", err)
	}
	w.numbers, w.index = w.build(doc.Numbers)

	w.log.Info("whitelist replaced", zap.Int("numbers", len(w.numbers)), zap.String("previous", bak))
	return nil
}

func (w *Whitelist) build(raw []string) ([]string, map[string]struct{}) {
	numbers := make([]string, 0, len(raw))
	index := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		n, err := Normalize(r)
		if err != nil {
			w.log.Warn("skipping invalid whitelist entry", zap.String("entry", r))
			continue
		}
		if _, dup := index[n]; dup {
			continue
		}
		index[n] = struct{}{}
		numbers = append(numbers, n)
	}
	return numbers, index
}

// Add inserts raw after normalizing it and returns the stored form. Adding a
// number that is already present succeeds without writing.
func (w *Whitelist) Add(raw string) (string, error) {
	n, err := Normalize(raw)
	if err != nil {
		return "", err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.index[n]; ok {
		return n, nil
	}

	next := append(append(make([]string, 0, len(w.numbers)+1), w.numbers...), n)
	if err := w.persist(next); err != nil {
		return "", err
	}
	w.numbers = next
	w.index[n] = struct{}{}
	return n, nil
}

// Remove deletes raw from the set and reports whether it was present. raw
// without digits is an ErrInvalidIdentifier.
func (w *Whitelist) Remove(raw string) (bool, error) {
	n, err := Normalize(raw)
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.index[n]; !ok {
		return false, nil
	}

	next := make([]string, 0, len(w.numbers))
	for _, existing := range w.numbers {
		if existing != n {
			next = append(next, existing)
		}
	}
	if err := w.persist(next); err != nil {
		return false, err
	}
	w.numbers = next
	delete(w.index, n)
	return true, nil
}

// Prune removes every number that does not match pattern and returns the
// removed numbers.
func (w *Whitelist) Prune(pattern *regexp.Regexp) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var (
		kept    = make([]string, 0, len(w.numbers))
		removed []string
	)
	for _, n := range w.numbers {
		if pattern.MatchString(n) {
			kept = append(kept, n)
		} else {
			removed = append(removed, n)
		}
	}
	if len(removed) == 0 {
		return nil, nil
	}

	if err := w.persist(kept); err != nil {
		return nil, err
	}
	w.numbers = kept
	for _, n := range removed {
		delete(w.index, n)
	}
	return removed, nil
}

// IsAuthorized reports whether raw, once normalized, is in the set.
func (w *Whitelist) IsAuthorized(raw string) bool {
	n, err := Normalize(raw)
	if err != nil {
		return false
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.index[n]
	return ok
}

// List returns a copy of the numbers in insertion order.
func (w *Whitelist) List() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]string{}, w.numbers...)
}

// Len returns the number of whitelisted numbers.
func (w *Whitelist) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.numbers)
}

// persist must be called with w.mu held.
func (w *Whitelist) persist(numbers []string) error {
	if err := w.store.Backup(configstore.Whitelist); err != nil {
		w.log.Warn("whitelist backup failed", zap.Error(err))
	}
	if err := w.store.Write(configstore.Whitelist, model.WhitelistDocument{Numbers: numbers}); err != nil {
		return fmt.Errorf("saving whitelist: %w", err)
	}
	return nil
}
