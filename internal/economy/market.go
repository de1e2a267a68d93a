package economy

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/zlin234/DxBux/internal/events"
	"github.com/zlin234/DxBux/internal/store"
)

// Pricing regime: stock-bounded price impact. A trade moves the price by
// half its share of the stock that was available before the trade, bounded
// to [1%, 20%] on buys and [1%, 15%] on sells, and the price never drops
// below one coin.
const (
	buyImpactCap   = 20.0
	sellImpactCap  = 15.0
	impactFloor    = 1.0
	minUnitPrice   = 1.0
	impactFraction = 0.5
)

func tradeImpactPct(qty, stockBefore int64, cap float64) float64 {
	base := float64(stockBefore)
	if base < 1 {
		base = 1
	}
	pct := impactFraction * (float64(qty) / base) * 100
	if pct < impactFloor {
		pct = impactFloor
	}
	if pct > cap {
		pct = cap
	}
	return pct
}

// cashValue is the whole-coin value of qty units at the current price.
func cashValue(price float64, qty int64) int64 {
	return int64(math.Round(price * float64(qty)))
}

func (s *Service) currencySpec(symbol string) (CurrencySpec, bool) {
	spec, ok := s.catalog.Currencies[strings.ToUpper(strings.TrimSpace(symbol))]
	return spec, ok
}

// getOrCreateCurrency materializes a currency record at its catalog base
// price and initial stock.
func getOrCreateCurrency(tx store.Tx, spec CurrencySpec) (MarketCurrency, error) {
	var cur MarketCurrency
	ok, err := tx.Get(store.KindMarket, spec.Symbol, &cur)
	if err != nil {
		return MarketCurrency{}, err
	}
	if !ok {
		cur = MarketCurrency{Symbol: spec.Symbol, Price: spec.BasePrice, Stock: spec.InitialStock}
		if err := tx.Put(store.KindMarket, spec.Symbol, &cur); err != nil {
			return MarketCurrency{}, err
		}
	}
	return cur, nil
}

// EnsureMarket materializes every catalog currency. Called at startup.
func (s *Service) EnsureMarket(ctx context.Context) error {
	for _, spec := range s.catalog.Currencies {
		spec := spec
		err := s.store.Update(ctx, []store.Key{marketKey(spec.Symbol)}, func(tx store.Tx) error {
			_, err := getOrCreateCurrency(tx, spec)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Quote returns the current price and stock for one currency.
func (s *Service) Quote(ctx context.Context, symbol string) (QuoteView, error) {
	spec, ok := s.currencySpec(symbol)
	if !ok {
		return QuoteView{}, ErrUnknownCurrency
	}
	var out QuoteView
	err := s.store.Update(ctx, []store.Key{marketKey(spec.Symbol)}, func(tx store.Tx) error {
		cur, err := getOrCreateCurrency(tx, spec)
		if err != nil {
			return err
		}
		out = QuoteView{Symbol: cur.Symbol, Price: cur.Price, Stock: cur.Stock}
		return nil
	})
	return out, err
}

// ListQuotes returns all catalog currencies, sorted by symbol.
func (s *Service) ListQuotes(ctx context.Context) ([]QuoteView, error) {
	out := make([]QuoteView, 0, len(s.catalog.Currencies))
	for sym := range s.catalog.Currencies {
		q, err := s.Quote(ctx, sym)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// Buy executes a market purchase: debit wallet, credit inventory, drain
// stock, then push the price up by the trade's impact.
func (s *Service) Buy(ctx context.Context, userID, symbol string, qty int64) (TradeResult, error) {
	if qty <= 0 {
		return TradeResult{}, ErrInvalidAmount
	}
	spec, ok := s.currencySpec(symbol)
	if !ok {
		return TradeResult{}, ErrUnknownCurrency
	}
	var out TradeResult
	keys := []store.Key{accountKey(userID), inventoryKey(userID), marketKey(spec.Symbol)}
	err := s.store.Update(ctx, keys, func(tx store.Tx) error {
		cur, err := getOrCreateCurrency(tx, spec)
		if err != nil {
			return err
		}
		if qty > cur.Stock {
			return ErrInsufficientStock
		}
		cost := cashValue(cur.Price, qty)
		acct, err := s.getOrCreateAccount(tx, userID)
		if err != nil {
			return err
		}
		if cost > acct.Wallet {
			return ErrInsufficientFunds
		}
		inv, err := getOrCreateInventory(tx, userID)
		if err != nil {
			return err
		}

		stockBefore := cur.Stock
		unit := cur.Price
		acct.Wallet -= cost
		inv.Items[cur.Symbol] += qty
		cur.Stock -= qty
		cur.Price *= 1 + tradeImpactPct(qty, stockBefore, buyImpactCap)/100
		if cur.Price < minUnitPrice {
			cur.Price = minUnitPrice
		}

		if err := tx.Put(store.KindAccounts, userID, &acct); err != nil {
			return err
		}
		if err := tx.Put(store.KindInventories, userID, &inv); err != nil {
			return err
		}
		if err := tx.Put(store.KindMarket, cur.Symbol, &cur); err != nil {
			return err
		}
		out = TradeResult{
			Symbol:     cur.Symbol,
			Quantity:   qty,
			UnitPrice:  unit,
			CashMoved:  cost,
			NewBalance: acct.Wallet,
			NewPrice:   cur.Price,
			Stock:      cur.Stock,
		}
		return nil
	})
	if err != nil {
		return TradeResult{}, err
	}
	s.publish(ctx, events.New("trade", userID, map[string]any{
		"side": "buy", "symbol": out.Symbol, "qty": qty, "cost": out.CashMoved,
	}))
	return out, nil
}

// Sell executes a market sale: debit inventory, credit wallet, return
// stock to the pool (capped), then push the price down.
func (s *Service) Sell(ctx context.Context, userID, symbol string, qty int64) (TradeResult, error) {
	if qty <= 0 {
		return TradeResult{}, ErrInvalidAmount
	}
	spec, ok := s.currencySpec(symbol)
	if !ok {
		return TradeResult{}, ErrUnknownCurrency
	}
	var out TradeResult
	keys := []store.Key{accountKey(userID), inventoryKey(userID), marketKey(spec.Symbol)}
	err := s.store.Update(ctx, keys, func(tx store.Tx) error {
		inv, err := getOrCreateInventory(tx, userID)
		if err != nil {
			return err
		}
		if inv.Items[spec.Symbol] < qty {
			return ErrInsufficientHoldings
		}
		cur, err := getOrCreateCurrency(tx, spec)
		if err != nil {
			return err
		}
		acct, err := s.getOrCreateAccount(tx, userID)
		if err != nil {
			return err
		}

		stockBefore := cur.Stock
		unit := cur.Price
		proceeds := cashValue(cur.Price, qty)
		inv.Items[spec.Symbol] -= qty
		if inv.Items[spec.Symbol] == 0 {
			delete(inv.Items, spec.Symbol)
		}
		acct.Wallet += proceeds
		cur.Stock += qty
		if cur.Stock > spec.MaxStock {
			cur.Stock = spec.MaxStock
		}
		cur.Price *= 1 - tradeImpactPct(qty, stockBefore, sellImpactCap)/100
		if cur.Price < minUnitPrice {
			cur.Price = minUnitPrice
		}

		if err := tx.Put(store.KindAccounts, userID, &acct); err != nil {
			return err
		}
		if err := tx.Put(store.KindInventories, userID, &inv); err != nil {
			return err
		}
		if err := tx.Put(store.KindMarket, cur.Symbol, &cur); err != nil {
			return err
		}
		out = TradeResult{
			Symbol:     cur.Symbol,
			Quantity:   qty,
			UnitPrice:  unit,
			CashMoved:  proceeds,
			NewBalance: acct.Wallet,
			NewPrice:   cur.Price,
			Stock:      cur.Stock,
		}
		return nil
	})
	if err != nil {
		return TradeResult{}, err
	}
	s.publish(ctx, events.New("trade", userID, map[string]any{
		"side": "sell", "symbol": out.Symbol, "qty": qty, "proceeds": out.CashMoved,
	}))
	return out, nil
}

// Restock tops up every currency by its catalog amount, capped at max
// stock. Each currency is its own atomic unit, so a restock racing a trade
// serializes per symbol; repeated runs never exceed the cap.
func (s *Service) Restock(ctx context.Context) error {
	for _, spec := range s.catalog.Currencies {
		spec := spec
		err := s.store.Update(ctx, []store.Key{marketKey(spec.Symbol)}, func(tx store.Tx) error {
			cur, err := getOrCreateCurrency(tx, spec)
			if err != nil {
				return err
			}
			cur.Stock += spec.RestockAmount
			if cur.Stock > spec.MaxStock {
				cur.Stock = spec.MaxStock
			}
			return tx.Put(store.KindMarket, cur.Symbol, &cur)
		})
		if err != nil {
			return err
		}
		s.log.Debug("restocked", "symbol", spec.Symbol, "amount", spec.RestockAmount)
	}
	return nil
}
