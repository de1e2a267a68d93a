package economy

import (
	"context"

	"github.com/zlin234/DxBux/internal/events"
	"github.com/zlin234/DxBux/internal/store"
)

// GetBalance returns the user's wallet balance, materializing a
// default-funded account on first sight.
func (s *Service) GetBalance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := s.store.Update(ctx, []store.Key{accountKey(userID)}, func(tx store.Tx) error {
		acct, err := s.getOrCreateAccount(tx, userID)
		if err != nil {
			return err
		}
		balance = acct.Wallet
		return nil
	})
	return balance, err
}

// Credit adds funds to the wallet and returns the new balance.
func (s *Service) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	var balance int64
	err := s.store.Update(ctx, []store.Key{accountKey(userID)}, func(tx store.Tx) error {
		acct, err := s.getOrCreateAccount(tx, userID)
		if err != nil {
			return err
		}
		acct.Wallet += amount
		balance = acct.Wallet
		return tx.Put(store.KindAccounts, userID, &acct)
	})
	if err != nil {
		return 0, err
	}
	s.publish(ctx, events.New("credit", userID, map[string]any{"amount": amount, "balance": balance}))
	return balance, nil
}

// Debit removes funds from the wallet. The balance never goes negative.
func (s *Service) Debit(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	var balance int64
	err := s.store.Update(ctx, []store.Key{accountKey(userID)}, func(tx store.Tx) error {
		acct, err := s.getOrCreateAccount(tx, userID)
		if err != nil {
			return err
		}
		if amount > acct.Wallet {
			return ErrInsufficientFunds
		}
		acct.Wallet -= amount
		balance = acct.Wallet
		return tx.Put(store.KindAccounts, userID, &acct)
	})
	if err != nil {
		return 0, err
	}
	s.publish(ctx, events.New("debit", userID, map[string]any{"amount": amount, "balance": balance}))
	return balance, nil
}

// Transfer moves funds between two wallets as one atomic unit: a failed
// debit leaves both accounts untouched.
func (s *Service) Transfer(ctx context.Context, from, to string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if from == to || s.catalog.reserved(to) {
		return ErrInvalidRecipient
	}
	err := s.store.Update(ctx, []store.Key{accountKey(from), accountKey(to)}, func(tx store.Tx) error {
		src, err := s.getOrCreateAccount(tx, from)
		if err != nil {
			return err
		}
		dst, err := s.getOrCreateAccount(tx, to)
		if err != nil {
			return err
		}
		if amount > src.Wallet {
			return ErrInsufficientFunds
		}
		src.Wallet -= amount
		dst.Wallet += amount
		if err := tx.Put(store.KindAccounts, from, &src); err != nil {
			return err
		}
		return tx.Put(store.KindAccounts, to, &dst)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, events.New("transfer", from, map[string]any{"to": to, "amount": amount}))
	return nil
}
