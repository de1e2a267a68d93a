// Package memstore is the in-process Store: a per-key lock table over an
// in-memory map. It backs single-process deployments and every test.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/zlin234/DxBux/internal/store"
)

type Store struct {
	lockMu sync.Mutex
	locks  map[store.Key]*sync.Mutex

	dataMu sync.RWMutex
	data   map[store.Key]json.RawMessage
}

func New() *Store {
	return &Store{
		locks: make(map[store.Key]*sync.Mutex),
		data:  make(map[store.Key]json.RawMessage),
	}
}

func (s *Store) lockFor(k store.Key) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	mu, ok := s.locks[k]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[k] = mu
	}
	return mu
}

// Update acquires the keys in the global lock order, runs fn against a
// staging area, and applies all staged writes only when fn succeeds.
func (s *Store) Update(ctx context.Context, keys []store.Key, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	keys = store.NormalizeKeys(keys)
	for _, k := range keys {
		s.lockFor(k).Lock()
	}
	defer func() {
		for i := len(keys) - 1; i >= 0; i-- {
			s.lockFor(keys[i]).Unlock()
		}
	}()

	locked := make(map[store.Key]struct{}, len(keys))
	for _, k := range keys {
		locked[k] = struct{}{}
	}
	tx := &memTx{s: s, locked: locked, staged: make(map[store.Key]json.RawMessage)}
	if err := fn(tx); err != nil {
		return err
	}

	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	for k, raw := range tx.staged {
		if raw == nil {
			delete(s.data, k)
			continue
		}
		s.data[k] = raw
	}
	return nil
}

func (s *Store) Get(ctx context.Context, kind, id string, out any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.dataMu.RLock()
	raw, ok := s.data[store.Key{Kind: kind, ID: id}]
	s.dataMu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, out)
}

func (s *Store) List(ctx context.Context, kind string) (map[string]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	out := make(map[string]json.RawMessage)
	for k, raw := range s.data {
		if k.Kind != kind {
			continue
		}
		cp := make(json.RawMessage, len(raw))
		copy(cp, raw)
		out[k.ID] = cp
	}
	return out, nil
}

// memTx stages writes so a failed callback leaves the store untouched.
// nil staged value marks a delete.
type memTx struct {
	s      *Store
	locked map[store.Key]struct{}
	staged map[store.Key]json.RawMessage
}

func (tx *memTx) check(kind, id string) (store.Key, error) {
	k := store.Key{Kind: kind, ID: id}
	if _, ok := tx.locked[k]; !ok {
		return k, fmt.Errorf("%w: %s/%s", store.ErrKeyNotLocked, kind, id)
	}
	return k, nil
}

func (tx *memTx) Get(kind, id string, out any) (bool, error) {
	k, err := tx.check(kind, id)
	if err != nil {
		return false, err
	}
	if raw, ok := tx.staged[k]; ok {
		if raw == nil {
			return false, nil
		}
		return true, json.Unmarshal(raw, out)
	}
	tx.s.dataMu.RLock()
	raw, ok := tx.s.data[k]
	tx.s.dataMu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, out)
}

func (tx *memTx) Put(kind, id string, v any) error {
	k, err := tx.check(kind, id)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	tx.staged[k] = raw
	return nil
}

func (tx *memTx) Delete(kind, id string) error {
	k, err := tx.check(kind, id)
	if err != nil {
		return err
	}
	tx.staged[k] = nil
	return nil
}
