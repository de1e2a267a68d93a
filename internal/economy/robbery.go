package economy

import (
	"context"
	"math"

	"github.com/zlin234/DxBux/internal/events"
	"github.com/zlin234/DxBux/internal/store"
)

// Rob attempts a player-vs-player steal. The cooldown check, protection
// consumption and fund transfer are one atomic unit over the robber's and
// victim's records; a blocked attempt consumes one protection block, moves
// no funds and still starts the cooldown.
func (s *Service) Rob(ctx context.Context, robberID, victimID string) (RobResult, error) {
	if robberID == victimID || s.catalog.reserved(victimID) {
		return RobResult{}, ErrInvalidTarget
	}
	now := s.now().UTC()
	var out RobResult
	keys := []store.Key{
		accountKey(robberID),
		accountKey(victimID),
		protectionKey(victimID),
		cooldownKey(robberID),
	}
	err := s.store.Update(ctx, keys, func(tx store.Tx) error {
		var cd robCooldown
		if _, err := tx.Get(store.KindCooldowns, robberID, &cd); err != nil {
			return err
		}
		if !cd.LastRobAt.IsZero() {
			if elapsed := now.Sub(cd.LastRobAt); elapsed < s.catalog.Robbery.Cooldown {
				return &CooldownError{Remaining: s.catalog.Robbery.Cooldown - elapsed}
			}
		}

		var prot Protection
		if _, err := tx.Get(store.KindProtection, victimID, &prot); err != nil {
			return err
		}
		if prot.Blocks > 0 {
			prot.Blocks--
			prot.UserID = victimID
			if err := tx.Put(store.KindProtection, victimID, &prot); err != nil {
				return err
			}
			if err := tx.Put(store.KindCooldowns, robberID, &robCooldown{LastRobAt: now}); err != nil {
				return err
			}
			out = RobResult{Blocked: true}
			return nil
		}

		robber, err := s.getOrCreateAccount(tx, robberID)
		if err != nil {
			return err
		}
		victim, err := s.getOrCreateAccount(tx, victimID)
		if err != nil {
			return err
		}
		maxSteal := int64(math.Floor(float64(victim.Wallet) * s.catalog.Robbery.StealFraction))
		if victim.Wallet == 0 || maxSteal < 1 {
			return ErrNothingToSteal
		}
		amount := 1 + s.randInt63n(maxSteal)

		victim.Wallet -= amount
		robber.Wallet += amount
		if err := tx.Put(store.KindAccounts, robberID, &robber); err != nil {
			return err
		}
		if err := tx.Put(store.KindAccounts, victimID, &victim); err != nil {
			return err
		}
		if err := tx.Put(store.KindCooldowns, robberID, &robCooldown{LastRobAt: now}); err != nil {
			return err
		}
		out = RobResult{
			Amount:        amount,
			RobberBalance: robber.Wallet,
			VictimBalance: victim.Wallet,
		}
		return nil
	})
	if err != nil {
		return RobResult{}, err
	}

	if out.Blocked {
		s.publish(ctx, events.New("rob_blocked", robberID, map[string]any{"victim": victimID}))
		return out, nil
	}
	if err := s.history.Record(ctx, RobberyEvent{Robber: robberID, Victim: victimID, At: now}); err != nil {
		s.log.Warn("robbery log write failed", "robber", robberID, "err", err)
	}
	s.publish(ctx, events.New("rob", robberID, map[string]any{
		"victim": victimID, "amount": out.Amount,
	}))
	return out, nil
}
