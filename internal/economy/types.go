package economy

import "time"

type BankStatus struct {
	Plan              Plan      `json:"plan"`
	MinDeposit        int64     `json:"min_deposit"`
	DailyRate         float64   `json:"daily_rate"`
	Deposited         float64   `json:"deposited"`
	LastInterestClaim time.Time `json:"last_interest_claim"`
	NextClaimIn       string    `json:"next_claim_in,omitempty"`
}

type InterestResult struct {
	InterestPaid float64 `json:"interest_paid"`
	DaysApplied  int     `json:"days_applied"`
	Deposited    float64 `json:"deposited"`
}

type LoanStatus struct {
	Active      bool      `json:"active"`
	Principal   int64     `json:"principal,omitempty"`
	RepaidTotal int64     `json:"repaid_total,omitempty"`
	Remaining   int64     `json:"remaining,omitempty"`
	DueAt       time.Time `json:"due_at"`
	Overdue     bool      `json:"overdue,omitempty"`
}

type RepayResult struct {
	Paid      int64 `json:"paid"`
	Remaining int64 `json:"remaining"`
	Closed    bool  `json:"closed"`
}

type QuoteView struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Stock  int64   `json:"stock"`
}

type TradeResult struct {
	Symbol     string  `json:"symbol"`
	Quantity   int64   `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CashMoved  int64   `json:"cash_moved"`
	NewBalance int64   `json:"new_balance"`
	NewPrice   float64 `json:"new_price"`
	Stock      int64   `json:"stock"`
}

type ItemHolding struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Quantity int64      `json:"quantity"`
	Effect   ItemEffect `json:"effect,omitempty"`
}

type InventoryView struct {
	UserID   string        `json:"user_id"`
	Holdings []ItemHolding `json:"holdings"`
}

type PurchaseResult struct {
	ItemID     string `json:"item_id"`
	Quantity   int64  `json:"quantity"`
	Cost       int64  `json:"cost"`
	NewBalance int64  `json:"new_balance"`
	Held       int64  `json:"held"`
}

type ProtectionResult struct {
	Consumed int64 `json:"consumed"`
	Blocks   int64 `json:"blocks"`
}

type RetaliationResult struct {
	Hits      int   `json:"hits"`
	Recovered int64 `json:"recovered"`
}

// RobResult reports either a blocked attempt (Blocked=true, no funds moved)
// or a completed robbery. A block is a valid outcome, not an error.
type RobResult struct {
	Blocked       bool  `json:"blocked"`
	Amount        int64 `json:"amount"`
	RobberBalance int64 `json:"robber_balance"`
	VictimBalance int64 `json:"victim_balance"`
}
