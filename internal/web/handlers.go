package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"mocktrader/internal/domain"
	"mocktrader/internal/services/auth"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type orderRequest struct {
	Symbol   string      `json:"symbol"`
	Quantity json.Number `json:"quantity"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Missing username, email, or password"})
		return
	}

	token, err := s.Auth.Register(r.Context(), req.Username, req.Email, req.Password)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrEmailTaken):
		writeJSON(w, http.StatusConflict, map[string]any{"message": "Email already exists"})
		return
	case errors.Is(err, auth.ErrUsernameTaken):
		writeJSON(w, http.StatusConflict, map[string]any{"message": "Username already exists"})
		return
	case errors.Is(err, auth.ErrMissingField):
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Missing username, email, or password"})
		return
	default:
		s.serverError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message":      "User registered successfully",
		"access_token": token,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Missing email or password"})
		return
	}
	if req.Email == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Missing email or password"})
		return
	}

	token, err := s.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Invalid credentials"})
			return
		}
		s.serverError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"access_token": token})
}

// withAuth resolves the bearer token into a user id before calling next.
func (s *Server) withAuth(next func(http.ResponseWriter, *http.Request, int64)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"msg": "Missing Authorization Header"})
			return
		}
		userID, err := s.Auth.ParseUserID(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"msg": "Invalid token"})
			return
		}
		next(w, r, userID)
	}
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request, userID int64) {
	p, err := s.Ledger.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrPortfolioNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "Portfolio not found"})
			return
		}
		s.serverError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"cash":            p.Cash,
		"stocks":          nonNilHoldings(p.Holdings),
		"stock_purchases": nonNilLots(p.Lots),
		"transactions":    nonNilTransactions(p.Transactions),
	})
}

// handlePortfolioByID serves the public per-user view. The stocks and
// transactions fields are JSON-encoded strings, matching the wire format
// clients of the legacy API already parse.
func (s *Server) handlePortfolioByID(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "User not found."})
		return
	}

	p, err := s.Ledger.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrPortfolioNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "User not found."})
			return
		}
		s.serverError(w, r, err)
		return
	}

	stocks, err := json.Marshal(nonNilHoldings(p.Holdings))
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	transactions, err := json.Marshal(nonNilTransactions(p.Transactions))
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"cash":         p.Cash,
		"stocks":       string(stocks),
		"transactions": string(transactions),
	})
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request, userID int64) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Internal Server Error."})
		return
	}

	quantity, err := buyQuantity(req.Quantity)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Internal Server Error."})
		return
	}

	settlement, err := s.Trades.Buy(r.Context(), userID, req.Symbol, quantity)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidQuantity):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Quantity must be greater than zero."})
		return
	case errors.Is(err, domain.ErrPortfolioNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Portfolio not found."})
		return
	case errors.Is(err, domain.ErrPriceUnavailable):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "No stock price data available."})
		return
	case errors.Is(err, domain.ErrInsufficientFunds):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Insufficient funds to buy stock."})
		return
	default:
		s.serverError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, settlementResponse("Stock bought successfully.", settlement))
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request, userID int64) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Symbol and quantity are required."})
		return
	}
	if req.Symbol == "" || req.Quantity == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Symbol and quantity are required."})
		return
	}

	quantity, err := req.Quantity.Int64()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Quantity must be an integer."})
		return
	}

	settlement, err := s.Trades.Sell(r.Context(), userID, req.Symbol, quantity)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidQuantity):
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Quantity must be greater than zero."})
		return
	case errors.Is(err, domain.ErrPortfolioNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Portfolio not found."})
		return
	case errors.Is(err, domain.ErrInsufficientHoldings):
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Insufficient stocks to sell."})
		return
	case errors.Is(err, domain.ErrPriceUnavailable):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "No stock price data available."})
		return
	default:
		s.serverError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, settlementResponse("Stock sold successfully.", settlement))
}

func (s *Server) handleStockPrices(w http.ResponseWriter, r *http.Request) {
	snapshot, rotatedAt, ok := s.Trades.Quotes()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"prices":    domain.PriceSnapshot{},
			"timestamp": rotatedAt.Unix(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"prices":    snapshot,
		"timestamp": rotatedAt.Unix(),
	})
}

func (s *Server) handleCurrentTimestamp(w http.ResponseWriter, r *http.Request) {
	_, rotatedAt, _ := s.Trades.Quotes()
	writeJSON(w, http.StatusOK, map[string]any{"timestamp": rotatedAt.Unix()})
}

// buyQuantity truncates fractional quantities instead of rejecting them.
// Sell orders go through the stricter integer check in handleSell.
func buyQuantity(raw json.Number) (int64, error) {
	if quantity, err := raw.Int64(); err == nil {
		return quantity, nil
	}
	f, err := raw.Float64()
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

func settlementResponse(message string, settlement *domain.Settlement) map[string]any {
	return map[string]any{
		"message":         message,
		"balance":         settlement.Cash,
		"stocks":          nonNilHoldings(settlement.Holdings),
		"stock_purchases": nonNilLots(settlement.Lots),
		"price":           settlement.Price,
		"transactions":    nonNilTransactions(settlement.Transactions),
	}
}

func nonNilHoldings(holdings map[string]int64) map[string]int64 {
	if holdings == nil {
		return map[string]int64{}
	}
	return holdings
}

func nonNilLots(lots map[string][]domain.Lot) map[string][]domain.Lot {
	if lots == nil {
		return map[string][]domain.Lot{}
	}
	return lots
}

func nonNilTransactions(transactions []domain.Transaction) []domain.Transaction {
	if transactions == nil {
		return []domain.Transaction{}
	}
	return transactions
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Internal Server Error"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
