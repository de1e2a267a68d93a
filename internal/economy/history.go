package economy

import (
	"context"
	"encoding/json"
	"time"

	"github.com/zlin234/DxBux/internal/store"
)

// HistoryStore keeps the short-lived robbery log behind retaliation
// lookups. Entries are keyed by robber and only need to survive the
// retaliation window.
type HistoryStore interface {
	Record(ctx context.Context, ev RobberyEvent) error
	// RecentByVictim returns events at or after since whose victim matches.
	RecentByVictim(ctx context.Context, victim string, since time.Time) ([]RobberyEvent, error)
}

// storeHistory keeps the log in the record store and prunes stale entries
// at read time.
type storeHistory struct {
	store store.Store
}

func NewStoreHistory(st store.Store) HistoryStore {
	return &storeHistory{store: st}
}

func (h *storeHistory) Record(ctx context.Context, ev RobberyEvent) error {
	return h.store.Update(ctx, []store.Key{{Kind: store.KindRobberyLog, ID: ev.Robber}}, func(tx store.Tx) error {
		return tx.Put(store.KindRobberyLog, ev.Robber, &ev)
	})
}

func (h *storeHistory) RecentByVictim(ctx context.Context, victim string, since time.Time) ([]RobberyEvent, error) {
	raw, err := h.store.List(ctx, store.KindRobberyLog)
	if err != nil {
		return nil, err
	}
	var out []RobberyEvent
	var stale []string
	for id, data := range raw {
		var ev RobberyEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		if ev.At.Before(since) {
			stale = append(stale, id)
			continue
		}
		if ev.Victim == victim {
			out = append(out, ev)
		}
	}
	// Best-effort prune; the entries are advisory and expire anyway. The
	// re-read guards against deleting an entry refreshed since the snapshot.
	for _, id := range stale {
		_ = h.store.Update(ctx, []store.Key{{Kind: store.KindRobberyLog, ID: id}}, func(tx store.Tx) error {
			var ev RobberyEvent
			ok, err := tx.Get(store.KindRobberyLog, id, &ev)
			if err != nil || !ok || !ev.At.Before(since) {
				return err
			}
			return tx.Delete(store.KindRobberyLog, id)
		})
	}
	return out, nil
}
