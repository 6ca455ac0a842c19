package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"dofaline/internal/repo"
)

// Entity is anything addressable by a string id.
type Entity interface {
	GetID() string
}

// Persister saves and restores the serialized collection under a fixed key.
type Persister interface {
	GetState(ctx context.Context, key string) ([]byte, error)
	PutState(ctx context.Context, key string, value []byte) error
}

// Store is an ordered in-memory collection kept in step with local persistence.
// A mutation becomes visible only after the new collection has been saved.
type Store[T Entity] struct {
	key string
	p   Persister
	log *zap.Logger

	mu       sync.RWMutex
	items    []T
	onChange func([]T)
}

func New[T Entity](key string, p Persister, logger *zap.Logger) *Store[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store[T]{key: key, p: p, log: logger.Named("store").With(zap.String("key", key))}
}

func (s *Store[T]) Key() string { return s.key }

// OnChange registers the listener called with a snapshot after every
// successful Add, Update, Modify or Delete.
func (s *Store[T]) OnChange(fn func(items []T)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Load restores the collection from persistence. Missing or corrupt state
// leaves the collection empty.
func (s *Store[T]) Load(ctx context.Context) {
	items := []T{}
	data, err := s.p.GetState(ctx, s.key)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		s.log.Debug("no persisted state")
	case err != nil:
		s.log.Warn("read persisted state", zap.Error(err))
	default:
		if err := json.Unmarshal(data, &items); err != nil {
			s.log.Warn("parse persisted state", zap.Error(err))
			items = []T{}
		}
		if items == nil {
			items = []T{}
		}
	}
	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
	s.log.Info("loaded", zap.Int("count", len(items)))
}

func (s *Store[T]) List() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.items)
}

func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Store[T]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return clone(s.items[i]), true
	}
	var zero T
	return zero, false
}

// Add appends item to the collection.
func (s *Store[T]) Add(ctx context.Context, item T) error {
	s.mu.Lock()
	next := make([]T, 0, len(s.items)+1)
	next = append(next, s.items...)
	next = append(next, clone(item))
	if err := s.commit(ctx, next); err != nil {
		s.mu.Unlock()
		return err
	}
	snap, fn := cloneAll(next), s.onChange
	s.mu.Unlock()
	notify(fn, snap)
	return nil
}

// Update replaces the item with the same id in place. It reports false and
// changes nothing when no such item exists.
func (s *Store[T]) Update(ctx context.Context, item T) (bool, error) {
	s.mu.Lock()
	i := s.indexOf(item.GetID())
	if i < 0 {
		s.mu.Unlock()
		return false, nil
	}
	next := make([]T, len(s.items))
	copy(next, s.items)
	next[i] = clone(item)
	if err := s.commit(ctx, next); err != nil {
		s.mu.Unlock()
		return false, err
	}
	snap, fn := cloneAll(next), s.onChange
	s.mu.Unlock()
	notify(fn, snap)
	return true, nil
}

// Modify applies fn to the item with id and saves the result while holding
// the store lock, so concurrent read-modify-write cycles cannot interleave.
// It reports false when no such item exists. An error from fn aborts the
// change and is returned as is.
func (s *Store[T]) Modify(ctx context.Context, id string, fn func(T) (T, error)) (bool, error) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return false, nil
	}
	item, err := fn(clone(s.items[i]))
	if err != nil {
		s.mu.Unlock()
		return true, err
	}
	if item.GetID() != id {
		s.mu.Unlock()
		return true, fmt.Errorf("modify %s: id changed from %q to %q", s.key, id, item.GetID())
	}
	next := make([]T, len(s.items))
	copy(next, s.items)
	next[i] = clone(item)
	if err := s.commit(ctx, next); err != nil {
		s.mu.Unlock()
		return true, err
	}
	snap, listener := cloneAll(next), s.onChange
	s.mu.Unlock()
	notify(listener, snap)
	return true, nil
}

// Delete removes the item with id, reporting whether it was present.
func (s *Store[T]) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return false, nil
	}
	next := make([]T, 0, len(s.items)-1)
	next = append(next, s.items[:i]...)
	next = append(next, s.items[i+1:]...)
	if err := s.commit(ctx, next); err != nil {
		s.mu.Unlock()
		return false, err
	}
	snap, fn := cloneAll(next), s.onChange
	s.mu.Unlock()
	notify(fn, snap)
	return true, nil
}

// Replace swaps the whole collection. The change listener is not called.
func (s *Store[T]) Replace(ctx context.Context, items []T) error {
	next := cloneAll(items)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(ctx, next)
}

// commit persists next and installs it. Callers hold mu.
func (s *Store[T]) commit(ctx context.Context, next []T) error {
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", s.key, err)
	}
	if err := s.p.PutState(ctx, s.key, data); err != nil {
		return fmt.Errorf("persist %s: %w", s.key, err)
	}
	s.items = next
	return nil
}

func (s *Store[T]) indexOf(id string) int {
	for i, it := range s.items {
		if it.GetID() == id {
			return i
		}
	}
	return -1
}

func notify[T any](fn func([]T), items []T) {
	if fn != nil {
		fn(items)
	}
}

type cloner[T any] interface {
	Clone() T
}

func clone[T any](v T) T {
	if c, ok := any(v).(cloner[T]); ok {
		return c.Clone()
	}
	return v
}

func cloneAll[T any](items []T) []T {
	out := make([]T, len(items))
	for i, it := range items {
		out[i] = clone(it)
	}
	return out
}
