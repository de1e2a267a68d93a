package economy

import (
	"context"
	"math"
	"time"

	"github.com/zlin234/DxBux/internal/events"
	"github.com/zlin234/DxBux/internal/store"
)

// grossOwed is principal plus fixed interest, with the overdue penalty
// layered on top when the due date has passed. It is recomputed at each
// repayment, never stored.
func (s *Service) grossOwed(loan Loan, now time.Time) int64 {
	owed := int64(math.Round(float64(loan.Principal) * (1 + loan.InterestRate)))
	if now.After(loan.DueAt) {
		owed += int64(math.Round(float64(owed) * s.catalog.Loan.OverduePenalty))
	}
	return owed
}

// IssueLoan records a new loan and credits the wallet. At most one
// outstanding loan per user.
func (s *Service) IssueLoan(ctx context.Context, userID string, amount int64) (LoanStatus, error) {
	if amount <= 0 || amount > s.catalog.Loan.Ceiling {
		return LoanStatus{}, ErrInvalidAmount
	}
	now := s.now().UTC()
	var out LoanStatus
	err := s.store.Update(ctx, []store.Key{accountKey(userID), loanKey(userID)}, func(tx store.Tx) error {
		var existing Loan
		ok, err := tx.Get(store.KindLoans, userID, &existing)
		if err != nil {
			return err
		}
		if ok && !existing.Closed {
			return ErrLoanOutstanding
		}
		loan := Loan{
			UserID:       userID,
			Principal:    amount,
			InterestRate: s.catalog.Loan.InterestRate,
			CreatedAt:    now,
			DueAt:        now.Add(s.catalog.Loan.Term),
		}
		acct, err := s.getOrCreateAccount(tx, userID)
		if err != nil {
			return err
		}
		acct.Wallet += amount
		if err := tx.Put(store.KindAccounts, userID, &acct); err != nil {
			return err
		}
		if err := tx.Put(store.KindLoans, userID, &loan); err != nil {
			return err
		}
		out = LoanStatus{
			Active:    true,
			Principal: loan.Principal,
			Remaining: s.grossOwed(loan, now),
			DueAt:     loan.DueAt,
		}
		return nil
	})
	if err != nil {
		return LoanStatus{}, err
	}
	s.publish(ctx, events.New("loan_issued", userID, map[string]any{"principal": amount}))
	return out, nil
}

// RepayLoan pays down the outstanding loan. Partial repayments accumulate
// in the running repaid total; the loan closes when the owed amount
// (including any overdue penalty, recomputed now) is fully covered.
func (s *Service) RepayLoan(ctx context.Context, userID string, amount int64) (RepayResult, error) {
	if amount <= 0 {
		return RepayResult{}, ErrInvalidAmount
	}
	now := s.now().UTC()
	var out RepayResult
	err := s.store.Update(ctx, []store.Key{accountKey(userID), loanKey(userID)}, func(tx store.Tx) error {
		var loan Loan
		ok, err := tx.Get(store.KindLoans, userID, &loan)
		if err != nil {
			return err
		}
		if !ok || loan.Closed {
			return ErrNoActiveLoan
		}
		remaining := s.grossOwed(loan, now) - loan.RepaidTotal
		if remaining < 0 {
			remaining = 0
		}
		if amount > remaining {
			return ErrOverpayment
		}
		acct, err := s.getOrCreateAccount(tx, userID)
		if err != nil {
			return err
		}
		if amount > acct.Wallet {
			return ErrInsufficientFunds
		}
		acct.Wallet -= amount
		loan.RepaidTotal += amount
		remaining -= amount
		if remaining == 0 {
			loan.Closed = true
		}
		if err := tx.Put(store.KindAccounts, userID, &acct); err != nil {
			return err
		}
		if err := tx.Put(store.KindLoans, userID, &loan); err != nil {
			return err
		}
		out = RepayResult{Paid: amount, Remaining: remaining, Closed: loan.Closed}
		return nil
	})
	if err != nil {
		return RepayResult{}, err
	}
	s.publish(ctx, events.New("loan_repaid", userID, map[string]any{
		"paid":   out.Paid,
		"closed": out.Closed,
	}))
	return out, nil
}

// GetLoanStatus is a read-only projection; overdue is derived, not stored.
func (s *Service) GetLoanStatus(ctx context.Context, userID string) (LoanStatus, error) {
	var loan Loan
	ok, err := s.store.Get(ctx, store.KindLoans, userID, &loan)
	if err != nil {
		return LoanStatus{}, err
	}
	if !ok || loan.Closed {
		return LoanStatus{Active: false}, nil
	}
	now := s.now().UTC()
	remaining := s.grossOwed(loan, now) - loan.RepaidTotal
	if remaining < 0 {
		remaining = 0
	}
	return LoanStatus{
		Active:      true,
		Principal:   loan.Principal,
		RepaidTotal: loan.RepaidTotal,
		Remaining:   remaining,
		DueAt:       loan.DueAt,
		Overdue:     now.After(loan.DueAt),
	}, nil
}
