package economy

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Plan is a bank tier. PlanNone is the lazily-created default.
type Plan string

const (
	PlanNone    Plan = ""
	PlanBasic   Plan = "basic"
	PlanPremium Plan = "premium"
	PlanVIP     Plan = "vip"
)

// ItemEffect is the closed set of behaviors a discrete item can carry.
// The robbery workflow dispatches on the variant, never on item names.
type ItemEffect string

const (
	EffectNone        ItemEffect = "none"
	EffectProtection  ItemEffect = "protection"
	EffectRetaliation ItemEffect = "retaliation"
)

type PlanSpec struct {
	MinDeposit int64   `yaml:"min_deposit"`
	DailyRate  float64 `yaml:"daily_rate"`
}

// ItemSpec is one shop catalog entry. A zero AvailableUntil means the item
// never rotates out.
type ItemSpec struct {
	ID             string     `yaml:"id"`
	Name           string     `yaml:"name"`
	Price          int64      `yaml:"price"`
	StackLimit     int64      `yaml:"stack_limit"`
	Effect         ItemEffect `yaml:"effect"`
	AvailableFrom  time.Time  `yaml:"available_from"`
	AvailableUntil time.Time  `yaml:"available_until"`
}

func (it ItemSpec) availableAt(now time.Time) bool {
	if !it.AvailableFrom.IsZero() && now.Before(it.AvailableFrom) {
		return false
	}
	if !it.AvailableUntil.IsZero() && now.After(it.AvailableUntil) {
		return false
	}
	return true
}

type CurrencySpec struct {
	Symbol        string  `yaml:"symbol"`
	BasePrice     float64 `yaml:"base_price"`
	InitialStock  int64   `yaml:"initial_stock"`
	MaxStock      int64   `yaml:"max_stock"`
	RestockAmount int64   `yaml:"restock_amount"`
}

type LoanTerms struct {
	Ceiling        int64         `yaml:"ceiling"`
	InterestRate   float64       `yaml:"interest_rate"`
	Term           time.Duration `yaml:"-"`
	OverduePenalty float64       `yaml:"overdue_penalty"`
}

// UnmarshalYAML overlays non-zero fields onto the defaults already in
// place; durations are written "168h" style.
func (lt *LoanTerms) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Ceiling        int64   `yaml:"ceiling"`
		InterestRate   float64 `yaml:"interest_rate"`
		Term           string  `yaml:"term"`
		OverduePenalty float64 `yaml:"overdue_penalty"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Ceiling != 0 {
		lt.Ceiling = raw.Ceiling
	}
	if raw.InterestRate != 0 {
		lt.InterestRate = raw.InterestRate
	}
	if raw.OverduePenalty != 0 {
		lt.OverduePenalty = raw.OverduePenalty
	}
	if raw.Term != "" {
		d, err := time.ParseDuration(raw.Term)
		if err != nil {
			return fmt.Errorf("loan term: %w", err)
		}
		lt.Term = d
	}
	return nil
}

type BankTerms struct {
	ClaimInterval   time.Duration `yaml:"-"`
	MaxInterestDays int           `yaml:"max_interest_days"`
}

func (bt *BankTerms) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		ClaimInterval   string `yaml:"claim_interval"`
		MaxInterestDays int    `yaml:"max_interest_days"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.MaxInterestDays != 0 {
		bt.MaxInterestDays = raw.MaxInterestDays
	}
	if raw.ClaimInterval != "" {
		d, err := time.ParseDuration(raw.ClaimInterval)
		if err != nil {
			return fmt.Errorf("claim_interval: %w", err)
		}
		bt.ClaimInterval = d
	}
	return nil
}

type RobberyTerms struct {
	StealFraction      float64       `yaml:"steal_fraction"`
	Cooldown           time.Duration `yaml:"-"`
	RetaliationWindow  time.Duration `yaml:"-"`
	RetaliationFine    int64         `yaml:"retaliation_fine"`
	ProtectionPerToken int64         `yaml:"protection_per_token"`
}

func (rt *RobberyTerms) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		StealFraction      float64 `yaml:"steal_fraction"`
		Cooldown           string  `yaml:"cooldown"`
		RetaliationWindow  string  `yaml:"retaliation_window"`
		RetaliationFine    int64   `yaml:"retaliation_fine"`
		ProtectionPerToken int64   `yaml:"protection_per_token"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.StealFraction != 0 {
		rt.StealFraction = raw.StealFraction
	}
	if raw.RetaliationFine != 0 {
		rt.RetaliationFine = raw.RetaliationFine
	}
	if raw.ProtectionPerToken != 0 {
		rt.ProtectionPerToken = raw.ProtectionPerToken
	}
	if raw.Cooldown != "" {
		d, err := time.ParseDuration(raw.Cooldown)
		if err != nil {
			return fmt.Errorf("robbery cooldown: %w", err)
		}
		rt.Cooldown = d
	}
	if raw.RetaliationWindow != "" {
		d, err := time.ParseDuration(raw.RetaliationWindow)
		if err != nil {
			return fmt.Errorf("retaliation_window: %w", err)
		}
		rt.RetaliationWindow = d
	}
	return nil
}

// Catalog bundles every tunable the economy runs on. Defaults are baked in;
// a YAML file overlays them for deployments that want different numbers.
type Catalog struct {
	StartingWallet   int64                   `yaml:"starting_wallet"`
	ReservedAccounts []string                `yaml:"reserved_accounts"`
	Plans            map[Plan]PlanSpec       `yaml:"plans"`
	Bank             BankTerms               `yaml:"bank"`
	Loan             LoanTerms               `yaml:"loan"`
	Robbery          RobberyTerms            `yaml:"robbery"`
	Currencies       map[string]CurrencySpec `yaml:"currencies"`
	Items            map[string]ItemSpec     `yaml:"items"`
}

func DefaultCatalog() *Catalog {
	return &Catalog{
		StartingWallet:   1000,
		ReservedAccounts: []string{"dxbux"},
		Plans: map[Plan]PlanSpec{
			PlanBasic:   {MinDeposit: 500, DailyRate: 0.01},
			PlanPremium: {MinDeposit: 5000, DailyRate: 0.015},
			PlanVIP:     {MinDeposit: 15000, DailyRate: 0.02},
		},
		Bank: BankTerms{
			ClaimInterval:   24 * time.Hour,
			MaxInterestDays: 30,
		},
		Loan: LoanTerms{
			Ceiling:        50000,
			InterestRate:   0.10,
			Term:           7 * 24 * time.Hour,
			OverduePenalty: 0.20,
		},
		Robbery: RobberyTerms{
			StealFraction:      0.40,
			Cooldown:           60 * time.Second,
			RetaliationWindow:  5 * time.Minute,
			RetaliationFine:    250,
			ProtectionPerToken: 5,
		},
		Currencies: map[string]CurrencySpec{
			"GOLD": {Symbol: "GOLD", BasePrice: 50, InitialStock: 500, MaxStock: 1000, RestockAmount: 50},
			"SLVR": {Symbol: "SLVR", BasePrice: 20, InitialStock: 800, MaxStock: 2000, RestockAmount: 100},
			"CRYS": {Symbol: "CRYS", BasePrice: 120, InitialStock: 250, MaxStock: 500, RestockAmount: 25},
		},
		Items: map[string]ItemSpec{
			"shield": {
				ID: "shield", Name: "Guard Shield", Price: 750,
				StackLimit: 10, Effect: EffectProtection,
			},
			"tripwire": {
				ID: "tripwire", Name: "Tripwire Kit", Price: 1200,
				StackLimit: 5, Effect: EffectRetaliation,
			},
		},
	}
}

// LoadCatalog overlays the YAML file at path onto the defaults. A missing
// file is not an error: defaults apply.
func LoadCatalog(path string) (*Catalog, error) {
	cat := DefaultCatalog()
	if path == "" {
		return cat, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cat, nil
		}
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cat); err != nil {
			return nil, fmt.Errorf("parse catalog: %w", err)
		}
	}
	if err := cat.validate(); err != nil {
		return nil, err
	}
	return cat, nil
}

func (c *Catalog) validate() error {
	if c.StartingWallet < 0 {
		return fmt.Errorf("starting_wallet must be >= 0")
	}
	for plan, spec := range c.Plans {
		if spec.MinDeposit < 0 || spec.DailyRate < 0 {
			return fmt.Errorf("plan %s: negative minimum or rate", plan)
		}
	}
	for sym, cur := range c.Currencies {
		if cur.BasePrice < 1 || cur.MaxStock < 0 || cur.InitialStock > cur.MaxStock {
			return fmt.Errorf("currency %s: invalid price or stock bounds", sym)
		}
	}
	for id, it := range c.Items {
		switch it.Effect {
		case EffectNone, EffectProtection, EffectRetaliation:
		default:
			return fmt.Errorf("item %s: unknown effect %q", id, it.Effect)
		}
		if it.Price < 0 || it.StackLimit < 0 {
			return fmt.Errorf("item %s: negative price or stack limit", id)
		}
	}
	return nil
}

func (c *Catalog) plan(p Plan) (PlanSpec, bool) {
	spec, ok := c.Plans[p]
	return spec, ok
}

func (c *Catalog) reserved(userID string) bool {
	for _, id := range c.ReservedAccounts {
		if id == userID {
			return true
		}
	}
	return false
}

// itemByEffect finds the catalog entry carrying the given effect variant.
func (c *Catalog) itemByEffect(effect ItemEffect) (ItemSpec, bool) {
	for _, it := range c.Items {
		if it.Effect == effect {
			return it, true
		}
	}
	return ItemSpec{}, false
}
