// Package store defines the record store every economy component persists
// through: one logical table per entity kind, JSON-encoded records, and
// per-key transactional read-modify-write.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
)

// Record kinds. One durable collection per entity kind.
const (
	KindAccounts    = "accounts"
	KindBank        = "bank"
	KindLoans       = "loans"
	KindMarket      = "market"
	KindInventories = "inventories"
	KindProtection  = "protection"
	KindRobberyLog  = "robbery_log"
	KindCooldowns   = "cooldowns"
)

var (
	// ErrUnavailable wraps persistence I/O failures. Callers may retry;
	// a failed Update never leaves a partial write behind.
	ErrUnavailable = errors.New("record store unavailable")

	// ErrKeyNotLocked is returned when a transaction touches a key that
	// was not declared in the Update call that opened it.
	ErrKeyNotLocked = errors.New("key not locked by transaction")
)

// Key identifies one record: an entity kind plus an entity id
// (user id, or currency symbol for market records).
type Key struct {
	Kind string
	ID   string
}

// Tx is the handle an Update callback mutates records through. Get, Put and
// Delete may only touch keys declared when the transaction was opened.
type Tx interface {
	// Get decodes the record into out and reports whether it exists.
	Get(kind, id string, out any) (bool, error)
	Put(kind, id string, v any) error
	Delete(kind, id string) error
}

// Store is the shared mutable resource of the economy core.
//
// Update serializes read-modify-write per key: all listed keys are acquired
// in a single global order before fn runs, and every write staged by fn is
// applied atomically iff fn returns nil. Two concurrent Updates over
// overlapping key sets never interleave and never deadlock.
//
// Get and List are unlocked snapshot reads for read-only projections.
type Store interface {
	Update(ctx context.Context, keys []Key, fn func(tx Tx) error) error
	Get(ctx context.Context, kind, id string, out any) (bool, error)
	List(ctx context.Context, kind string) (map[string]json.RawMessage, error)
}

// NormalizeKeys returns the deduplicated keys in the global lock order
// (kind, then id). Every Store implementation acquires keys in this order.
func NormalizeKeys(keys []Key) []Key {
	seen := make(map[Key]struct{}, len(keys))
	out := make([]Key, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].ID < out[j].ID
	})
	return out
}
