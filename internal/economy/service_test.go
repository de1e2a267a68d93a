package economy

import (
	"context"
	"io"
	"log/slog"
	mathrand "math/rand"
	"testing"
	"time"

	"github.com/zlin234/DxBux/internal/store"
	"github.com/zlin234/DxBux/internal/store/memstore"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	now time.Time
}

func (c *testClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T) (*Service, *testClock) {
	t.Helper()
	clk := &testClock{now: testEpoch}
	svc := NewService(memstore.New(), DefaultCatalog(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return clk.now }
	svc.rand = mathrand.New(mathrand.NewSource(7))
	return svc, clk
}

func seedRecord(t *testing.T, svc *Service, kind, id string, v any) {
	t.Helper()
	err := svc.store.Update(context.Background(), []store.Key{{Kind: kind, ID: id}}, func(tx store.Tx) error {
		return tx.Put(kind, id, v)
	})
	if err != nil {
		t.Fatalf("seed %s/%s: %v", kind, id, err)
	}
}

func mustBalance(t *testing.T, svc *Service, userID string) int64 {
	t.Helper()
	balance, err := svc.GetBalance(context.Background(), userID)
	if err != nil {
		t.Fatalf("balance %s: %v", userID, err)
	}
	return balance
}
