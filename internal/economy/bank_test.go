package economy

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"
)

func TestDepositRequiresPlan(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.Deposit(context.Background(), "alice", 500); !errors.Is(err, ErrNoPlanSelected) {
		t.Fatalf("expected ErrNoPlanSelected, got %v", err)
	}
}

func TestSelectPlanUnknown(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.SelectPlan(context.Background(), "alice", Plan("platinum")); !errors.Is(err, ErrNoPlanSelected) {
		t.Fatalf("expected ErrNoPlanSelected, got %v", err)
	}
}

func TestFirstDepositMinimums(t *testing.T) {
	tests := []struct {
		plan   Plan
		amount int64
		funds  int64
		wantOK bool
	}{
		{plan: PlanBasic, amount: 499, funds: 1000, wantOK: false},
		{plan: PlanBasic, amount: 500, funds: 1000, wantOK: true},
		{plan: PlanVIP, amount: 14999, funds: 20000, wantOK: false},
		{plan: PlanVIP, amount: 15000, funds: 20000, wantOK: true},
	}
	for _, tc := range tests {
		svc, _ := newTestService(t)
		ctx := context.Background()
		if tc.funds > 1000 {
			if _, err := svc.Credit(ctx, "alice", tc.funds-1000); err != nil {
				t.Fatalf("credit: %v", err)
			}
		}
		if err := svc.SelectPlan(ctx, "alice", tc.plan); err != nil {
			t.Fatalf("select plan: %v", err)
		}
		err := svc.Deposit(ctx, "alice", tc.amount)
		if tc.wantOK && err != nil {
			t.Fatalf("%s deposit %d: %v", tc.plan, tc.amount, err)
		}
		if !tc.wantOK && !errors.Is(err, ErrBelowMinimum) {
			t.Fatalf("%s deposit %d: expected ErrBelowMinimum, got %v", tc.plan, tc.amount, err)
		}
	}
}

func TestDepositInsufficientFunds(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if err := svc.SelectPlan(ctx, "alice", PlanBasic); err != nil {
		t.Fatalf("select plan: %v", err)
	}
	if err := svc.Deposit(ctx, "alice", 1001); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestWithdrawRules(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if err := svc.SelectPlan(ctx, "alice", PlanBasic); err != nil {
		t.Fatalf("select plan: %v", err)
	}
	if err := svc.Deposit(ctx, "alice", 800); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// Partial withdrawal may not drop the deposit below the plan minimum.
	if err := svc.Withdraw(ctx, "alice", 301); !errors.Is(err, ErrBelowMinimum) {
		t.Fatalf("expected ErrBelowMinimum, got %v", err)
	}
	if err := svc.Withdraw(ctx, "alice", 300); err != nil {
		t.Fatalf("partial withdraw: %v", err)
	}
	if got := mustBalance(t, svc, "alice"); got != 500 {
		t.Fatalf("wallet = %d after partial withdraw, want 500", got)
	}

	// Withdrawing everything bypasses the minimum and clears the record.
	if err := svc.Withdraw(ctx, "alice", 500); err != nil {
		t.Fatalf("full withdraw: %v", err)
	}
	if got := mustBalance(t, svc, "alice"); got != 1000 {
		t.Fatalf("wallet = %d after full withdraw, want 1000", got)
	}
	status, err := svc.GetBankStatus(ctx, "alice")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Deposited != 0 {
		t.Fatalf("deposited = %v after full withdraw, want 0", status.Deposited)
	}

	if err := svc.Withdraw(ctx, "alice", 10); !errors.Is(err, ErrNothingDeposited) {
		t.Fatalf("expected ErrNothingDeposited, got %v", err)
	}
}

func TestInterestCompoundsDaily(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()
	if err := svc.SelectPlan(ctx, "alice", PlanBasic); err != nil {
		t.Fatalf("select plan: %v", err)
	}
	if err := svc.Deposit(ctx, "alice", 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	clk.advance(72 * time.Hour)
	out, err := svc.AccrueInterest(ctx, "alice")
	if err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if out.DaysApplied != 3 {
		t.Fatalf("days = %d, want 3", out.DaysApplied)
	}
	// 1000 * 1.01^3, day by day.
	if math.Abs(out.Deposited-1030.301) > 1e-9 {
		t.Fatalf("deposited = %v, want 1030.301", out.Deposited)
	}
	if math.Abs(out.InterestPaid-30.301) > 1e-9 {
		t.Fatalf("interest = %v, want 30.301", out.InterestPaid)
	}
}

func TestInterestTooSoon(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()
	if err := svc.SelectPlan(ctx, "alice", PlanBasic); err != nil {
		t.Fatalf("select plan: %v", err)
	}
	if err := svc.Deposit(ctx, "alice", 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	clk.advance(6 * time.Hour)
	_, err := svc.AccrueInterest(ctx, "alice")
	if !errors.Is(err, ErrTooSoon) {
		t.Fatalf("expected ErrTooSoon, got %v", err)
	}
	var tooSoon *TooSoonError
	if !errors.As(err, &tooSoon) {
		t.Fatalf("expected *TooSoonError, got %T", err)
	}
	if tooSoon.Remaining != 18*time.Hour {
		t.Fatalf("remaining = %v, want 18h", tooSoon.Remaining)
	}
}

func TestInterestDaysClamped(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()
	if err := svc.SelectPlan(ctx, "alice", PlanBasic); err != nil {
		t.Fatalf("select plan: %v", err)
	}
	if err := svc.Deposit(ctx, "alice", 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	clk.advance(90 * 24 * time.Hour)
	out, err := svc.AccrueInterest(ctx, "alice")
	if err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if out.DaysApplied != 30 {
		t.Fatalf("days = %d, want clamp at 30", out.DaysApplied)
	}
}

func TestInterestNeverClaimedLegacyRecord(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// A funded record with no claim stamp earns exactly one day.
	seedRecord(t, svc, "bank", "alice", BankAccount{UserID: "alice", Plan: PlanBasic, Deposited: 500})
	out, err := svc.AccrueInterest(ctx, "alice")
	if err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if out.DaysApplied != 1 {
		t.Fatalf("days = %d, want 1", out.DaysApplied)
	}
	if math.Abs(out.Deposited-505) > 1e-9 {
		t.Fatalf("deposited = %v, want 505", out.Deposited)
	}
}

func TestPlanSwitchRefundsDeposit(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if err := svc.SelectPlan(ctx, "alice", PlanBasic); err != nil {
		t.Fatalf("select plan: %v", err)
	}
	if err := svc.Deposit(ctx, "alice", 800); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if err := svc.SelectPlan(ctx, "alice", PlanPremium); err != nil {
		t.Fatalf("switch plan: %v", err)
	}
	if got := mustBalance(t, svc, "alice"); got != 1000 {
		t.Fatalf("wallet = %d after switch refund, want 1000", got)
	}
	status, err := svc.GetBankStatus(ctx, "alice")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Plan != PlanPremium || status.Deposited != 0 {
		t.Fatalf("status = %+v, want premium with nothing deposited", status)
	}
}

func TestBankLifecycle(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	if err := svc.SelectPlan(ctx, "u1", PlanBasic); err != nil {
		t.Fatalf("select plan: %v", err)
	}
	if err := svc.Deposit(ctx, "u1", 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if got := mustBalance(t, svc, "u1"); got != 0 {
		t.Fatalf("wallet = %d after deposit, want 0", got)
	}

	clk.advance(25 * time.Hour)
	out, err := svc.AccrueInterest(ctx, "u1")
	if err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if out.DaysApplied != 1 || math.Abs(out.InterestPaid-10) > 1e-9 {
		t.Fatalf("interest = %+v, want 10 over 1 day", out)
	}
	if math.Abs(out.Deposited-1010) > 1e-9 {
		t.Fatalf("deposited = %v, want 1010", out.Deposited)
	}

	// Repeat claims inside the interval always fail.
	if _, err := svc.AccrueInterest(ctx, "u1"); !errors.Is(err, ErrTooSoon) {
		t.Fatalf("expected ErrTooSoon, got %v", err)
	}

	if err := svc.Withdraw(ctx, "u1", 1010); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := mustBalance(t, svc, "u1"); got != 1010 {
		t.Fatalf("wallet = %d, want 1010", got)
	}
	status, err := svc.GetBankStatus(ctx, "u1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Deposited != 0 {
		t.Fatalf("deposited = %v after full withdraw, want 0", status.Deposited)
	}
}

func TestConcurrentDeposits(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Credit(ctx, "alice", 1000); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := svc.SelectPlan(ctx, "alice", PlanBasic); err != nil {
		t.Fatalf("select plan: %v", err)
	}
	if err := svc.Deposit(ctx, "alice", 1000); err != nil {
		t.Fatalf("first deposit: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.Deposit(ctx, "alice", 10); err != nil {
				t.Errorf("deposit: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := mustBalance(t, svc, "alice"); got != 0 {
		t.Fatalf("wallet = %d, want 0", got)
	}
	status, err := svc.GetBankStatus(ctx, "alice")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Deposited != 2000 {
		t.Fatalf("deposited = %v, want 2000", status.Deposited)
	}
}
