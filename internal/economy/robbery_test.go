package economy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zlin234/DxBux/internal/store"
)

func TestRobInvalidTargets(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Rob(ctx, "alice", "alice"); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("self rob: expected ErrInvalidTarget, got %v", err)
	}
	if _, err := svc.Rob(ctx, "alice", "dxbux"); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("reserved target: expected ErrInvalidTarget, got %v", err)
	}
}

func TestRobTransfersWithinBounds(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	out, err := svc.Rob(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("rob: %v", err)
	}
	if out.Blocked {
		t.Fatalf("unexpected block")
	}
	// Victim starts at 1000; at most 40% can be taken.
	if out.Amount < 1 || out.Amount > 400 {
		t.Fatalf("amount = %d, want within [1, 400]", out.Amount)
	}
	if out.RobberBalance != 1000+out.Amount {
		t.Fatalf("robber = %d, want %d", out.RobberBalance, 1000+out.Amount)
	}
	if out.VictimBalance != 1000-out.Amount {
		t.Fatalf("victim = %d, want %d", out.VictimBalance, 1000-out.Amount)
	}
	if out.RobberBalance+out.VictimBalance != 2000 {
		t.Fatalf("funds not conserved: %d", out.RobberBalance+out.VictimBalance)
	}
}

func TestRobCooldown(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Rob(ctx, "alice", "bob"); err != nil {
		t.Fatalf("rob: %v", err)
	}

	clk.advance(30 * time.Second)
	_, err := svc.Rob(ctx, "alice", "carol")
	if !errors.Is(err, ErrCooldownActive) {
		t.Fatalf("expected ErrCooldownActive, got %v", err)
	}
	var cd *CooldownError
	if !errors.As(err, &cd) {
		t.Fatalf("expected *CooldownError, got %T", err)
	}
	if cd.Remaining != 30*time.Second {
		t.Fatalf("remaining = %v, want 30s", cd.Remaining)
	}

	clk.advance(30 * time.Second)
	if _, err := svc.Rob(ctx, "alice", "carol"); err != nil {
		t.Fatalf("rob after cooldown: %v", err)
	}
}

func TestRobNothingToSteal(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	seedRecord(t, svc, store.KindAccounts, "pauper", Account{UserID: "pauper", Wallet: 0, CreatedAt: testEpoch})

	if _, err := svc.Rob(ctx, "alice", "pauper"); !errors.Is(err, ErrNothingToSteal) {
		t.Fatalf("expected ErrNothingToSteal, got %v", err)
	}

	// A wallet too small for a single coin at 40% is also empty-handed.
	seedRecord(t, svc, store.KindAccounts, "nearbroke", Account{UserID: "nearbroke", Wallet: 2, CreatedAt: testEpoch})
	if _, err := svc.Rob(ctx, "alice", "nearbroke"); !errors.Is(err, ErrNothingToSteal) {
		t.Fatalf("expected ErrNothingToSteal, got %v", err)
	}
}

func TestRobConsumesProtection(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()
	seedRecord(t, svc, store.KindProtection, "bob", Protection{UserID: "bob", Blocks: 2})

	for i := 0; i < 2; i++ {
		out, err := svc.Rob(ctx, "alice", "bob")
		if err != nil {
			t.Fatalf("rob %d: %v", i, err)
		}
		if !out.Blocked || out.Amount != 0 {
			t.Fatalf("rob %d = %+v, want blocked with no funds moved", i, out)
		}
		clk.advance(time.Minute)
	}
	if got := mustBalance(t, svc, "bob"); got != 1000 {
		t.Fatalf("victim = %d after blocked attempts, want 1000", got)
	}

	out, err := svc.Rob(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("rob after blocks exhausted: %v", err)
	}
	if out.Blocked || out.Amount < 1 {
		t.Fatalf("rob = %+v, want successful steal", out)
	}
}

func TestBlockedRobStartsCooldown(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	seedRecord(t, svc, store.KindProtection, "bob", Protection{UserID: "bob", Blocks: 1})

	out, err := svc.Rob(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("rob: %v", err)
	}
	if !out.Blocked {
		t.Fatalf("expected block")
	}
	if _, err := svc.Rob(ctx, "alice", "carol"); !errors.Is(err, ErrCooldownActive) {
		t.Fatalf("expected ErrCooldownActive after blocked attempt, got %v", err)
	}
}
