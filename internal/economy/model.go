package economy

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInvalidRecipient     = errors.New("invalid transfer recipient")
	ErrNoPlanSelected       = errors.New("no bank plan selected")
	ErrBelowMinimum         = errors.New("deposit below plan minimum")
	ErrNothingDeposited     = errors.New("nothing deposited")
	ErrTooSoon              = errors.New("interest claim interval not elapsed")
	ErrLoanOutstanding      = errors.New("a loan is already outstanding")
	ErrNoActiveLoan         = errors.New("no active loan")
	ErrOverpayment          = errors.New("repayment exceeds amount owed")
	ErrUnknownCurrency      = errors.New("unknown market currency")
	ErrInsufficientStock    = errors.New("insufficient market stock")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrUnknownItem          = errors.New("unknown item")
	ErrItemUnavailable      = errors.New("item not currently available")
	ErrStackLimit           = errors.New("item stack limit reached")
	ErrInsufficientItems    = errors.New("not enough items")
	ErrInvalidTarget        = errors.New("invalid robbery target")
	ErrNothingToSteal       = errors.New("target has nothing to steal")
	ErrCooldownActive       = errors.New("robbery cooldown active")
)

// TooSoonError carries the time remaining until the next interest claim.
// errors.Is(err, ErrTooSoon) matches it.
type TooSoonError struct {
	Remaining time.Duration
}

func (e *TooSoonError) Error() string {
	return fmt.Sprintf("interest claim too soon: %s remaining", e.Remaining.Round(time.Second))
}

func (e *TooSoonError) Is(target error) bool { return target == ErrTooSoon }

// CooldownError carries the time remaining on a robbery cooldown.
// errors.Is(err, ErrCooldownActive) matches it.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("robbery cooldown: %s remaining", e.Remaining.Round(time.Second))
}

func (e *CooldownError) Is(target error) bool { return target == ErrCooldownActive }

// Account is a user's spendable wallet. Materialized with the starting
// balance on first access, never deleted.
type Account struct {
	UserID    string    `json:"user_id"`
	Wallet    int64     `json:"wallet"`
	CreatedAt time.Time `json:"created_at"`
}

// BankAccount holds plan selection and the interest-bearing deposit.
// Deposited is a real number: daily compounding produces sub-coin fractions
// that only collapse to whole coins when funds move back to the wallet.
type BankAccount struct {
	UserID            string    `json:"user_id"`
	Plan              Plan      `json:"plan"`
	Deposited         float64   `json:"deposited"`
	LastInterestClaim time.Time `json:"last_interest_claim"`
}

// Loan is the single outstanding loan a user may hold. RepaidTotal tracks
// partial repayments; the loan closes when the owed amount is fully covered.
type Loan struct {
	UserID       string    `json:"user_id"`
	Principal    int64     `json:"principal"`
	InterestRate float64   `json:"interest_rate"`
	CreatedAt    time.Time `json:"created_at"`
	DueAt        time.Time `json:"due_at"`
	RepaidTotal  int64     `json:"repaid_total"`
	Closed       bool      `json:"closed"`
}

// MarketCurrency is the per-symbol price/stock state, mutated only by
// trades and restock.
type MarketCurrency struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Stock  int64   `json:"stock"`
}

// Inventory maps item id (or currency symbol) to held quantity.
type Inventory struct {
	UserID string           `json:"user_id"`
	Items  map[string]int64 `json:"items"`
}

// Protection is the per-user stock of robbery blocks.
type Protection struct {
	UserID string `json:"user_id"`
	Blocks int64  `json:"blocks"`
}

// RobberyEvent is the short-lived record supporting retaliation lookups,
// keyed by robber: one entry per robber, overwritten on each robbery.
type RobberyEvent struct {
	Robber string    `json:"robber"`
	Victim string    `json:"victim"`
	At     time.Time `json:"at"`
}

// robCooldown is the stored per-robber rate limit.
type robCooldown struct {
	LastRobAt time.Time `json:"last_rob_at"`
}
