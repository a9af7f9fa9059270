package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"mocktrader/internal/services/auth"
	"mocktrader/internal/services/ledger"
	"mocktrader/internal/services/trade"
	"mocktrader/internal/storage/tradelog"
)

const tradePollInterval = 2 * time.Second

type tradeEventReader interface {
	EventsAfter(index uint64) ([]tradelog.Entry, error)
}

// Server exposes the JSON API and an SSE stream of executed trades.
type Server struct {
	Addr     string
	Trades   *trade.Engine
	Ledger   *ledger.Service
	Auth     *auth.Service
	TradeLog tradeEventReader

	logger *zap.Logger
}

// NewServer creates a new web server instance.
func NewServer(addr string, trades *trade.Engine, ledgerSvc *ledger.Service, authSvc *auth.Service, tradeLog tradeEventReader, logger *zap.Logger) *Server {
	return &Server{Addr: addr, Trades: trades, Ledger: ledgerSvc, Auth: authSvc, TradeLog: tradeLog, logger: logger}
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("GET /api/portfolio", s.withAuth(s.handlePortfolio))
	mux.HandleFunc("GET /api/portfolio/{id}", s.handlePortfolioByID)
	mux.HandleFunc("POST /api/buy", s.withAuth(s.handleBuy))
	mux.HandleFunc("POST /api/sell", s.withAuth(s.handleSell))
	mux.HandleFunc("GET /api/stock_prices", s.handleStockPrices)
	mux.HandleFunc("GET /api/current_timestamp", s.handleCurrentTimestamp)
	mux.HandleFunc("GET /api/trades/stream", s.handleTradeStream)
	return mux
}
