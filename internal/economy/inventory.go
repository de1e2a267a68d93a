package economy

import (
	"context"
	"sort"

	"github.com/zlin234/DxBux/internal/events"
	"github.com/zlin234/DxBux/internal/store"
)

// GetInventory returns everything the user holds: tradable currencies and
// discrete items alike.
func (s *Service) GetInventory(ctx context.Context, userID string) (InventoryView, error) {
	var inv Inventory
	ok, err := s.store.Get(ctx, store.KindInventories, userID, &inv)
	out := InventoryView{UserID: userID, Holdings: []ItemHolding{}}
	if err != nil || !ok {
		return out, err
	}
	for id, qty := range inv.Items {
		if qty <= 0 {
			continue
		}
		h := ItemHolding{ID: id, Name: id, Quantity: qty}
		if it, ok := s.catalog.Items[id]; ok {
			h.Name = it.Name
			h.Effect = it.Effect
		}
		out.Holdings = append(out.Holdings, h)
	}
	sort.Slice(out.Holdings, func(i, j int) bool { return out.Holdings[i].ID < out.Holdings[j].ID })
	return out, nil
}

// BuyItem purchases a discrete catalog item at its listed price, honoring
// stack limits and availability windows.
func (s *Service) BuyItem(ctx context.Context, userID, itemID string, qty int64) (PurchaseResult, error) {
	if qty <= 0 {
		return PurchaseResult{}, ErrInvalidAmount
	}
	item, ok := s.catalog.Items[itemID]
	if !ok {
		return PurchaseResult{}, ErrUnknownItem
	}
	if !item.availableAt(s.now().UTC()) {
		return PurchaseResult{}, ErrItemUnavailable
	}
	var out PurchaseResult
	err := s.store.Update(ctx, []store.Key{accountKey(userID), inventoryKey(userID)}, func(tx store.Tx) error {
		inv, err := getOrCreateInventory(tx, userID)
		if err != nil {
			return err
		}
		if item.StackLimit > 0 && inv.Items[item.ID]+qty > item.StackLimit {
			return ErrStackLimit
		}
		cost := item.Price * qty
		acct, err := s.getOrCreateAccount(tx, userID)
		if err != nil {
			return err
		}
		if cost > acct.Wallet {
			return ErrInsufficientFunds
		}
		acct.Wallet -= cost
		inv.Items[item.ID] += qty
		if err := tx.Put(store.KindAccounts, userID, &acct); err != nil {
			return err
		}
		if err := tx.Put(store.KindInventories, userID, &inv); err != nil {
			return err
		}
		out = PurchaseResult{
			ItemID:     item.ID,
			Quantity:   qty,
			Cost:       cost,
			NewBalance: acct.Wallet,
			Held:       inv.Items[item.ID],
		}
		return nil
	})
	if err != nil {
		return PurchaseResult{}, err
	}
	s.publish(ctx, events.New("item_purchase", userID, map[string]any{
		"item": item.ID, "qty": qty, "cost": out.Cost,
	}))
	return out, nil
}

// UseProtectionItem consumes protection tokens and converts them into
// robbery blocks.
func (s *Service) UseProtectionItem(ctx context.Context, userID string, qty int64) (ProtectionResult, error) {
	if qty <= 0 {
		return ProtectionResult{}, ErrInvalidAmount
	}
	item, ok := s.catalog.itemByEffect(EffectProtection)
	if !ok {
		return ProtectionResult{}, ErrUnknownItem
	}
	var out ProtectionResult
	err := s.store.Update(ctx, []store.Key{inventoryKey(userID), protectionKey(userID)}, func(tx store.Tx) error {
		inv, err := getOrCreateInventory(tx, userID)
		if err != nil {
			return err
		}
		if inv.Items[item.ID] < qty {
			return ErrInsufficientItems
		}
		inv.Items[item.ID] -= qty
		if inv.Items[item.ID] == 0 {
			delete(inv.Items, item.ID)
		}

		var prot Protection
		if _, err := tx.Get(store.KindProtection, userID, &prot); err != nil {
			return err
		}
		prot.UserID = userID
		prot.Blocks += s.catalog.Robbery.ProtectionPerToken * qty

		if err := tx.Put(store.KindInventories, userID, &inv); err != nil {
			return err
		}
		if err := tx.Put(store.KindProtection, userID, &prot); err != nil {
			return err
		}
		out = ProtectionResult{Consumed: qty, Blocks: prot.Blocks}
		return nil
	})
	if err != nil {
		return ProtectionResult{}, err
	}
	s.publish(ctx, events.New("protection_armed", userID, map[string]any{"blocks": out.Blocks}))
	return out, nil
}

// UseRetaliationItem consumes one retaliation token, then fines every
// robber who hit this user inside the retaliation window. Each fine is its
// own atomic robber-to-victim transfer; zero hits is a valid outcome.
func (s *Service) UseRetaliationItem(ctx context.Context, userID string) (RetaliationResult, error) {
	item, ok := s.catalog.itemByEffect(EffectRetaliation)
	if !ok {
		return RetaliationResult{}, ErrUnknownItem
	}
	err := s.store.Update(ctx, []store.Key{inventoryKey(userID)}, func(tx store.Tx) error {
		inv, err := getOrCreateInventory(tx, userID)
		if err != nil {
			return err
		}
		if inv.Items[item.ID] < 1 {
			return ErrInsufficientItems
		}
		inv.Items[item.ID]--
		if inv.Items[item.ID] == 0 {
			delete(inv.Items, item.ID)
		}
		return tx.Put(store.KindInventories, userID, &inv)
	})
	if err != nil {
		return RetaliationResult{}, err
	}

	now := s.now().UTC()
	hits, err := s.history.RecentByVictim(ctx, userID, now.Add(-s.catalog.Robbery.RetaliationWindow))
	if err != nil {
		return RetaliationResult{}, err
	}

	var out RetaliationResult
	for _, ev := range hits {
		robber := ev.Robber
		var fined int64
		err := s.store.Update(ctx, []store.Key{accountKey(robber), accountKey(userID)}, func(tx store.Tx) error {
			src, err := s.getOrCreateAccount(tx, robber)
			if err != nil {
				return err
			}
			dst, err := s.getOrCreateAccount(tx, userID)
			if err != nil {
				return err
			}
			fined = s.catalog.Robbery.RetaliationFine
			if fined > src.Wallet {
				fined = src.Wallet
			}
			if fined == 0 {
				return nil
			}
			src.Wallet -= fined
			dst.Wallet += fined
			if err := tx.Put(store.KindAccounts, robber, &src); err != nil {
				return err
			}
			return tx.Put(store.KindAccounts, userID, &dst)
		})
		if err != nil {
			return out, err
		}
		if fined > 0 {
			out.Hits++
			out.Recovered += fined
		}
	}
	s.publish(ctx, events.New("retaliation", userID, map[string]any{
		"hits": out.Hits, "recovered": out.Recovered,
	}))
	return out, nil
}
