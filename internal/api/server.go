// Package api is the thin HTTP surface over the economy core. The chat
// command layer (or any other frontend) calls these endpoints; all
// validation and invariants live in the core.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zlin234/DxBux/internal/config"
	"github.com/zlin234/DxBux/internal/economy"
	"github.com/zlin234/DxBux/internal/store"
)

type contextKey string

const userContextKey contextKey = "user"

type Server struct {
	cfg config.Config
	log *slog.Logger
	eco *economy.Service
	mux *chi.Mux
}

func New(cfg config.Config, logger *slog.Logger, eco *economy.Service) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg: cfg,
		log: logger,
		eco: eco,
		mux: chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.userMiddleware)

		r.Get("/balance", s.handleBalance)
		r.Post("/balance/credit", s.handleCredit)
		r.Post("/balance/debit", s.handleDebit)
		r.Post("/transfer", s.handleTransfer)

		r.Get("/bank", s.handleBankStatus)
		r.Post("/bank/plan", s.handleSelectPlan)
		r.Post("/bank/deposit", s.handleDeposit)
		r.Post("/bank/withdraw", s.handleWithdraw)
		r.Post("/bank/interest", s.handleAccrueInterest)

		r.Get("/loan", s.handleLoanStatus)
		r.Post("/loan/issue", s.handleIssueLoan)
		r.Post("/loan/repay", s.handleRepayLoan)

		r.Get("/market", s.handleQuotes)
		r.Get("/market/{symbol}", s.handleQuote)
		r.Post("/market/{symbol}/buy", s.handleBuy)
		r.Post("/market/{symbol}/sell", s.handleSell)
		r.Post("/market/restock", s.handleRestock)

		r.Get("/inventory", s.handleInventory)
		r.Post("/items/{id}/buy", s.handleBuyItem)
		r.Post("/items/protection/use", s.handleUseProtection)
		r.Post("/items/retaliation/use", s.handleUseRetaliation)

		r.Post("/rob", s.handleRob)
	})
}

// userMiddleware trusts the X-User-ID header: platform authentication is
// the frontend's concern, not the core's.
func (s *Server) userMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(userContextKey).(string)
	return userID
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.eco.GetBalance(r.Context(), userFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balance": balance})
}

func (s *Server) handleCredit(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Amount int64 `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	balance, err := s.eco.Credit(r.Context(), userFromContext(r.Context()), in.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balance": balance})
}

func (s *Server) handleDebit(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Amount int64 `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	balance, err := s.eco.Debit(r.Context(), userFromContext(r.Context()), in.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balance": balance})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var in struct {
		To     string `json:"to"`
		Amount int64  `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.eco.Transfer(r.Context(), userFromContext(r.Context()), strings.TrimSpace(in.To), in.Amount); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleBankStatus(w http.ResponseWriter, r *http.Request) {
	out, err := s.eco.GetBankStatus(r.Context(), userFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSelectPlan(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Plan string `json:"plan"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	plan := economy.Plan(strings.ToLower(strings.TrimSpace(in.Plan)))
	if err := s.eco.SelectPlan(r.Context(), userFromContext(r.Context()), plan); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "plan": plan})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Amount int64 `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.eco.Deposit(r.Context(), userFromContext(r.Context()), in.Amount); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Amount int64 `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.eco.Withdraw(r.Context(), userFromContext(r.Context()), in.Amount); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleAccrueInterest(w http.ResponseWriter, r *http.Request) {
	out, err := s.eco.AccrueInterest(r.Context(), userFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLoanStatus(w http.ResponseWriter, r *http.Request) {
	out, err := s.eco.GetLoanStatus(r.Context(), userFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleIssueLoan(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Amount int64 `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.eco.IssueLoan(r.Context(), userFromContext(r.Context()), in.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRepayLoan(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Amount int64 `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.eco.RepayLoan(r.Context(), userFromContext(r.Context()), in.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	out, err := s.eco.ListQuotes(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"currencies": out})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	out, err := s.eco.Quote(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Quantity int64 `json:"quantity"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.eco.Buy(r.Context(), userFromContext(r.Context()), chi.URLParam(r, "symbol"), in.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Quantity int64 `json:"quantity"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.eco.Sell(r.Context(), userFromContext(r.Context()), chi.URLParam(r, "symbol"), in.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRestock(w http.ResponseWriter, r *http.Request) {
	if err := s.eco.Restock(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request) {
	out, err := s.eco.GetInventory(r.Context(), userFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBuyItem(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Quantity int64 `json:"quantity"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.eco.BuyItem(r.Context(), userFromContext(r.Context()), chi.URLParam(r, "id"), in.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUseProtection(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Quantity int64 `json:"quantity"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.eco.UseProtectionItem(r.Context(), userFromContext(r.Context()), in.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUseRetaliation(w http.ResponseWriter, r *http.Request) {
	out, err := s.eco.UseRetaliationItem(r.Context(), userFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRob(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Victim string `json:"victim"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.eco.Rob(r.Context(), userFromContext(r.Context()), strings.TrimSpace(in.Victim))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, economy.ErrTooSoon), errors.Is(err, economy.ErrCooldownActive):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, economy.ErrUnknownCurrency), errors.Is(err, economy.ErrUnknownItem):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, economy.ErrInvalidAmount),
		errors.Is(err, economy.ErrInsufficientFunds),
		errors.Is(err, economy.ErrInsufficientHoldings),
		errors.Is(err, economy.ErrInsufficientStock),
		errors.Is(err, economy.ErrInsufficientItems),
		errors.Is(err, economy.ErrInvalidRecipient),
		errors.Is(err, economy.ErrInvalidTarget),
		errors.Is(err, economy.ErrNothingToSteal),
		errors.Is(err, economy.ErrNoPlanSelected),
		errors.Is(err, economy.ErrBelowMinimum),
		errors.Is(err, economy.ErrNothingDeposited),
		errors.Is(err, economy.ErrLoanOutstanding),
		errors.Is(err, economy.ErrNoActiveLoan),
		errors.Is(err, economy.ErrOverpayment),
		errors.Is(err, economy.ErrItemUnavailable),
		errors.Is(err, economy.ErrStackLimit):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}
