package economy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zlin234/DxBux/internal/store"
)

func TestBuyItem(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	out, err := svc.BuyItem(ctx, "alice", "shield", 1)
	if err != nil {
		t.Fatalf("buy item: %v", err)
	}
	if out.Cost != 750 || out.NewBalance != 250 || out.Held != 1 {
		t.Fatalf("purchase = %+v", out)
	}

	inv, err := svc.GetInventory(ctx, "alice")
	if err != nil {
		t.Fatalf("inventory: %v", err)
	}
	if len(inv.Holdings) != 1 || inv.Holdings[0].Effect != EffectProtection {
		t.Fatalf("inventory = %+v, want one protection item", inv.Holdings)
	}
}

func TestBuyItemRejections(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.BuyItem(ctx, "alice", "bazooka", 1); !errors.Is(err, ErrUnknownItem) {
		t.Fatalf("expected ErrUnknownItem, got %v", err)
	}
	if _, err := svc.BuyItem(ctx, "alice", "shield", 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := svc.BuyItem(ctx, "alice", "tripwire", 1); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestBuyItemStackLimit(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Credit(ctx, "alice", 20000); err != nil {
		t.Fatalf("credit: %v", err)
	}

	if _, err := svc.BuyItem(ctx, "alice", "shield", 10); err != nil {
		t.Fatalf("buy to limit: %v", err)
	}
	if _, err := svc.BuyItem(ctx, "alice", "shield", 1); !errors.Is(err, ErrStackLimit) {
		t.Fatalf("expected ErrStackLimit, got %v", err)
	}
}

func TestBuyItemAvailabilityWindow(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	item := svc.catalog.Items["shield"]
	item.AvailableUntil = testEpoch.Add(time.Hour)
	svc.catalog.Items["shield"] = item

	if _, err := svc.BuyItem(ctx, "alice", "shield", 1); err != nil {
		t.Fatalf("buy inside window: %v", err)
	}
	clk.advance(2 * time.Hour)
	if _, err := svc.BuyItem(ctx, "alice", "shield", 1); !errors.Is(err, ErrItemUnavailable) {
		t.Fatalf("expected ErrItemUnavailable, got %v", err)
	}
}

func TestUseProtectionItem(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Credit(ctx, "alice", 2000); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := svc.BuyItem(ctx, "alice", "shield", 2); err != nil {
		t.Fatalf("buy: %v", err)
	}

	out, err := svc.UseProtectionItem(ctx, "alice", 2)
	if err != nil {
		t.Fatalf("use: %v", err)
	}
	if out.Consumed != 2 || out.Blocks != 10 {
		t.Fatalf("protection = %+v, want 10 blocks from 2 tokens", out)
	}

	inv, err := svc.GetInventory(ctx, "alice")
	if err != nil {
		t.Fatalf("inventory: %v", err)
	}
	if len(inv.Holdings) != 0 {
		t.Fatalf("inventory = %+v, want tokens consumed", inv.Holdings)
	}

	if _, err := svc.UseProtectionItem(ctx, "alice", 1); !errors.Is(err, ErrInsufficientItems) {
		t.Fatalf("expected ErrInsufficientItems, got %v", err)
	}
}

func TestUseRetaliationItem(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	// Two robbers hit the victim inside the window, one long before it.
	if _, err := svc.Rob(ctx, "mallory", "victim"); err != nil {
		t.Fatalf("rob: %v", err)
	}
	seedRecord(t, svc, store.KindRobberyLog, "oldtimer", RobberyEvent{
		Robber: "oldtimer", Victim: "victim", At: testEpoch.Add(-time.Hour),
	})
	clk.advance(time.Minute)
	if _, err := svc.Rob(ctx, "trudy", "victim"); err != nil {
		t.Fatalf("rob: %v", err)
	}

	if _, err := svc.Credit(ctx, "victim", 2000); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := svc.BuyItem(ctx, "victim", "tripwire", 1); err != nil {
		t.Fatalf("buy: %v", err)
	}

	before := mustBalance(t, svc, "victim")
	out, err := svc.UseRetaliationItem(ctx, "victim")
	if err != nil {
		t.Fatalf("retaliate: %v", err)
	}
	if out.Hits != 2 {
		t.Fatalf("hits = %d, want 2 (stale entry excluded)", out.Hits)
	}
	if out.Recovered != 500 {
		t.Fatalf("recovered = %d, want 2 fines of 250", out.Recovered)
	}
	if got := mustBalance(t, svc, "victim"); got != before+500 {
		t.Fatalf("victim = %d, want %d", got, before+500)
	}

	// The token is gone; a second use needs another purchase.
	if _, err := svc.UseRetaliationItem(ctx, "victim"); !errors.Is(err, ErrInsufficientItems) {
		t.Fatalf("expected ErrInsufficientItems, got %v", err)
	}
}
