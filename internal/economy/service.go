// Package economy is the ledger and market simulation core: wallets, bank
// deposits with compounding interest, loans, a price-responsive currency
// market, item effects and the robbery workflow. Every operation is one
// atomic read-modify-write against the record store.
package economy

import (
	"context"
	"log/slog"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/zlin234/DxBux/internal/events"
	"github.com/zlin234/DxBux/internal/store"
)

type Service struct {
	store   store.Store
	catalog *Catalog
	log     *slog.Logger
	events  events.Publisher
	history HistoryStore

	mu   sync.Mutex
	rand *mathrand.Rand

	now func() time.Time
}

func NewService(st store.Store, catalog *Catalog, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Service{
		store:   st,
		catalog: catalog,
		log:     logger,
		events:  events.Noop{},
		history: NewStoreHistory(st),
		rand:    mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
	}
}

// SetPublisher replaces the no-op event publisher.
func (s *Service) SetPublisher(pub events.Publisher) {
	if pub != nil {
		s.events = pub
	}
}

// SetHistoryStore replaces the store-backed robbery history, e.g. with the
// Redis TTL backend.
func (s *Service) SetHistoryStore(h HistoryStore) {
	if h != nil {
		s.history = h
	}
}

func (s *Service) Catalog() *Catalog { return s.catalog }

func (s *Service) publish(ctx context.Context, ev events.Event) {
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("event publish failed", "type", ev.Type, "err", err)
	}
}

// randInt63n guards the shared rand; returns a value in [0, n).
func (s *Service) randInt63n(n int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Int63n(n)
}

// getOrCreateAccount is the explicit lazy-default factory: unknown users
// materialize with the catalog's starting wallet.
func (s *Service) getOrCreateAccount(tx store.Tx, userID string) (Account, error) {
	var acct Account
	ok, err := tx.Get(store.KindAccounts, userID, &acct)
	if err != nil {
		return Account{}, err
	}
	if ok {
		return acct, nil
	}
	acct = Account{
		UserID:    userID,
		Wallet:    s.catalog.StartingWallet,
		CreatedAt: s.now().UTC(),
	}
	if err := tx.Put(store.KindAccounts, userID, &acct); err != nil {
		return Account{}, err
	}
	return acct, nil
}

func getOrCreateBank(tx store.Tx, userID string) (BankAccount, error) {
	var bank BankAccount
	ok, err := tx.Get(store.KindBank, userID, &bank)
	if err != nil {
		return BankAccount{}, err
	}
	if !ok {
		bank = BankAccount{UserID: userID, Plan: PlanNone}
	}
	return bank, nil
}

func getOrCreateInventory(tx store.Tx, userID string) (Inventory, error) {
	var inv Inventory
	ok, err := tx.Get(store.KindInventories, userID, &inv)
	if err != nil {
		return Inventory{}, err
	}
	if !ok {
		inv = Inventory{UserID: userID}
	}
	if inv.Items == nil {
		inv.Items = make(map[string]int64)
	}
	return inv, nil
}

func accountKey(userID string) store.Key {
	return store.Key{Kind: store.KindAccounts, ID: userID}
}

func bankKey(userID string) store.Key {
	return store.Key{Kind: store.KindBank, ID: userID}
}

func loanKey(userID string) store.Key {
	return store.Key{Kind: store.KindLoans, ID: userID}
}

func marketKey(symbol string) store.Key {
	return store.Key{Kind: store.KindMarket, ID: symbol}
}

func inventoryKey(userID string) store.Key {
	return store.Key{Kind: store.KindInventories, ID: userID}
}

func protectionKey(userID string) store.Key {
	return store.Key{Kind: store.KindProtection, ID: userID}
}

func cooldownKey(userID string) store.Key {
	return store.Key{Kind: store.KindCooldowns, ID: userID}
}
