package economy

import (
	"context"
	"math"
	"time"

	"github.com/zlin234/DxBux/internal/events"
	"github.com/zlin234/DxBux/internal/store"
)

// SelectPlan switches the user's bank plan. A positive deposit under a
// different plan is refunded to the wallet in full before the switch; the
// new plan starts with nothing deposited.
func (s *Service) SelectPlan(ctx context.Context, userID string, plan Plan) error {
	if _, ok := s.catalog.plan(plan); !ok {
		return ErrNoPlanSelected
	}
	var refunded int64
	err := s.store.Update(ctx, []store.Key{accountKey(userID), bankKey(userID)}, func(tx store.Tx) error {
		bank, err := getOrCreateBank(tx, userID)
		if err != nil {
			return err
		}
		if bank.Plan == plan {
			return tx.Put(store.KindBank, userID, &bank)
		}
		if bank.Deposited > 0 {
			acct, err := s.getOrCreateAccount(tx, userID)
			if err != nil {
				return err
			}
			refunded = int64(math.Floor(bank.Deposited))
			acct.Wallet += refunded
			if err := tx.Put(store.KindAccounts, userID, &acct); err != nil {
				return err
			}
		}
		bank.Plan = plan
		bank.Deposited = 0
		bank.LastInterestClaim = time.Time{}
		return tx.Put(store.KindBank, userID, &bank)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, events.New("bank_plan", userID, map[string]any{"plan": plan, "refunded": refunded}))
	return nil
}

// Deposit moves whole coins from the wallet into the bank. A deposit into
// an empty account must clear the plan minimum on its own.
func (s *Service) Deposit(ctx context.Context, userID string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	err := s.store.Update(ctx, []store.Key{accountKey(userID), bankKey(userID)}, func(tx store.Tx) error {
		bank, err := getOrCreateBank(tx, userID)
		if err != nil {
			return err
		}
		spec, ok := s.catalog.plan(bank.Plan)
		if !ok {
			return ErrNoPlanSelected
		}
		acct, err := s.getOrCreateAccount(tx, userID)
		if err != nil {
			return err
		}
		if amount > acct.Wallet {
			return ErrInsufficientFunds
		}
		if bank.Deposited == 0 {
			if amount < spec.MinDeposit {
				return ErrBelowMinimum
			}
			// The interest clock starts when an empty account is funded.
			bank.LastInterestClaim = s.now().UTC()
		}
		acct.Wallet -= amount
		bank.Deposited += float64(amount)
		if err := tx.Put(store.KindAccounts, userID, &acct); err != nil {
			return err
		}
		return tx.Put(store.KindBank, userID, &bank)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, events.New("bank_deposit", userID, map[string]any{"amount": amount}))
	return nil
}

// Withdraw moves whole coins back to the wallet. Withdrawing everything
// (amount equal to the whole-coin deposit) always succeeds and zeroes the
// record, flushing sub-coin interest dust; a partial withdrawal may not
// leave the deposit below the plan minimum.
func (s *Service) Withdraw(ctx context.Context, userID string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	var credited int64
	err := s.store.Update(ctx, []store.Key{accountKey(userID), bankKey(userID)}, func(tx store.Tx) error {
		bank, err := getOrCreateBank(tx, userID)
		if err != nil {
			return err
		}
		if bank.Deposited <= 0 {
			return ErrNothingDeposited
		}
		whole := int64(math.Floor(bank.Deposited))
		if amount > whole {
			return ErrInsufficientFunds
		}
		acct, err := s.getOrCreateAccount(tx, userID)
		if err != nil {
			return err
		}
		if amount == whole {
			credited = whole
			bank.Deposited = 0
			bank.LastInterestClaim = time.Time{}
		} else {
			spec, ok := s.catalog.plan(bank.Plan)
			if ok && bank.Deposited-float64(amount) < float64(spec.MinDeposit) {
				return ErrBelowMinimum
			}
			credited = amount
			bank.Deposited -= float64(amount)
		}
		acct.Wallet += credited
		if err := tx.Put(store.KindAccounts, userID, &acct); err != nil {
			return err
		}
		return tx.Put(store.KindBank, userID, &bank)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, events.New("bank_withdraw", userID, map[string]any{"amount": credited}))
	return nil
}

// AccrueInterest applies daily compounding to the deposit. Days elapsed
// since the last claim are clamped to [1, max]; a never-claimed account
// earns exactly one day. Claims within the interval fail with a
// TooSoonError carrying the remaining wait.
//
// Compounding is iterative on purpose: each day's interest joins the
// principal before the next day is computed, so the stored balance matches
// day-by-day accrual exactly.
func (s *Service) AccrueInterest(ctx context.Context, userID string) (InterestResult, error) {
	var out InterestResult
	now := s.now().UTC()
	err := s.store.Update(ctx, []store.Key{bankKey(userID)}, func(tx store.Tx) error {
		bank, err := getOrCreateBank(tx, userID)
		if err != nil {
			return err
		}
		spec, ok := s.catalog.plan(bank.Plan)
		if !ok {
			return ErrNoPlanSelected
		}
		if bank.Deposited <= 0 {
			return ErrNothingDeposited
		}

		days := 1
		if !bank.LastInterestClaim.IsZero() {
			elapsed := now.Sub(bank.LastInterestClaim)
			if elapsed < s.catalog.Bank.ClaimInterval {
				return &TooSoonError{Remaining: s.catalog.Bank.ClaimInterval - elapsed}
			}
			days = int(elapsed / (24 * time.Hour))
			if days < 1 {
				days = 1
			}
			if days > s.catalog.Bank.MaxInterestDays {
				days = s.catalog.Bank.MaxInterestDays
			}
		}

		principal := bank.Deposited
		for d := 0; d < days; d++ {
			principal += principal * spec.DailyRate
		}
		out = InterestResult{
			InterestPaid: principal - bank.Deposited,
			DaysApplied:  days,
			Deposited:    principal,
		}
		bank.Deposited = principal
		bank.LastInterestClaim = now
		return tx.Put(store.KindBank, userID, &bank)
	})
	if err != nil {
		return InterestResult{}, err
	}
	s.publish(ctx, events.New("bank_interest", userID, map[string]any{
		"interest": out.InterestPaid,
		"days":     out.DaysApplied,
	}))
	return out, nil
}

// GetBankStatus is a read-only projection; no side effects.
func (s *Service) GetBankStatus(ctx context.Context, userID string) (BankStatus, error) {
	var bank BankAccount
	ok, err := s.store.Get(ctx, store.KindBank, userID, &bank)
	if err != nil {
		return BankStatus{}, err
	}
	if !ok {
		return BankStatus{Plan: PlanNone}, nil
	}
	out := BankStatus{
		Plan:              bank.Plan,
		Deposited:         bank.Deposited,
		LastInterestClaim: bank.LastInterestClaim,
	}
	if spec, ok := s.catalog.plan(bank.Plan); ok {
		out.MinDeposit = spec.MinDeposit
		out.DailyRate = spec.DailyRate
	}
	if !bank.LastInterestClaim.IsZero() {
		if wait := s.catalog.Bank.ClaimInterval - s.now().UTC().Sub(bank.LastInterestClaim); wait > 0 {
			out.NextClaimIn = wait.Round(time.Second).String()
		}
	}
	return out, nil
}
