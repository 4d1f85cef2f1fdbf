package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Den-m1985/wallet/internal/metrics"
	"github.com/Den-m1985/wallet/internal/models"
	"github.com/Den-m1985/wallet/internal/wallet"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Engine is the slice of the ledger engine the request layer needs.
type Engine interface {
	ApplyOperation(ctx context.Context, accountID uuid.UUID, kind models.OperationKind, amount decimal.Decimal) (decimal.Decimal, error)
	Transfer(ctx context.Context, fromID, toID uuid.UUID, amount decimal.Decimal) error
	GetBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)
	Entries(ctx context.Context, accountID uuid.UUID) ([]models.LedgerEntry, error)
}

// Config holds HTTP server settings.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns settings suitable for local development.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Server exposes the ledger engine over HTTP and owns the mapping from the
// engine's error taxonomy to response codes.
type Server struct {
	engine Engine
	log    *zap.Logger
	server *http.Server
	router *mux.Router
}

func New(engine Engine, log *zap.Logger, cfg Config) *Server {
	s := &Server{
		engine: engine,
		log:    log,
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1/wallets").Subrouter()
	api.HandleFunc("", s.handleOperation).Methods(http.MethodPost)
	api.HandleFunc("/transfer", s.handleTransfer).Methods(http.MethodPost)
	api.HandleFunc("/{walletId}", s.handleBalance).Methods(http.MethodGet)
	api.HandleFunc("/{walletId}/transactions", s.handleEntries).Methods(http.MethodGet)

	s.router = r
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ListenAndServe() error {
	s.log.Info("http server listening", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type operationRequest struct {
	WalletID      uuid.UUID       `json:"wallet_id"`
	OperationType string          `json:"operation_type"`
	Amount        decimal.Decimal `json:"amount"`
}

type transferRequest struct {
	FromWalletID uuid.UUID       `json:"from_wallet_id"`
	ToWalletID   uuid.UUID       `json:"to_wallet_id"`
	Amount       decimal.Decimal `json:"amount"`
}

type balanceResponse struct {
	WalletID uuid.UUID       `json:"wallet_id"`
	Balance  decimal.Decimal `json:"balance"`
}

type entryResponse struct {
	ID        uuid.UUID       `json:"id"`
	AccountID uuid.UUID       `json:"account_id"`
	Kind      string          `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request) {
	var req operationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeProblem(w, http.StatusBadRequest, "Invalid request payload.", err.Error())
		return
	}
	if req.WalletID == uuid.Nil {
		s.writeProblem(w, http.StatusBadRequest, "Invalid request payload.", "wallet_id is required")
		return
	}
	kind := models.OperationKind(req.OperationType)
	if !kind.Valid() {
		s.writeProblem(w, http.StatusBadRequest, "Invalid request payload.",
			"operation_type must be DEPOSIT or WITHDRAW")
		return
	}

	balance, err := s.engine.ApplyOperation(r.Context(), req.WalletID, kind, req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{WalletID: req.WalletID, Balance: balance})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeProblem(w, http.StatusBadRequest, "Invalid request payload.", err.Error())
		return
	}
	if req.FromWalletID == uuid.Nil || req.ToWalletID == uuid.Nil {
		s.writeProblem(w, http.StatusBadRequest, "Invalid request payload.",
			"from_wallet_id and to_wallet_id are required")
		return
	}

	if err := s.engine.Transfer(r.Context(), req.FromWalletID, req.ToWalletID, req.Amount); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	walletID, ok := s.walletID(w, r)
	if !ok {
		return
	}

	balance, err := s.engine.GetBalance(r.Context(), walletID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{WalletID: walletID, Balance: balance})
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	walletID, ok := s.walletID(w, r)
	if !ok {
		return
	}

	entries, err := s.engine.Entries(r.Context(), walletID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, entryResponse{
			ID:        e.ID,
			AccountID: e.AccountID,
			Kind:      string(e.Kind),
			Amount:    e.Amount,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) walletID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["walletId"])
	if err != nil {
		s.writeProblem(w, http.StatusBadRequest, "Invalid request payload.", "walletId must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// writeError maps the engine's error taxonomy to response codes. The engine
// never sees HTTP; this is the only place status decisions live.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var insufficient *wallet.InsufficientFundsError
	switch {
	case errors.Is(err, wallet.ErrNotFound):
		s.log.Warn("wallet not found", zap.Error(err))
		s.writeProblem(w, http.StatusNotFound, "The requested wallet was not found.", err.Error())
	case errors.As(err, &insufficient):
		s.log.Warn("insufficient funds", zap.Error(err))
		s.writeProblem(w, http.StatusBadRequest, "Insufficient balance for the requested operation.", err.Error())
	case errors.Is(err, wallet.ErrSameAccount):
		s.log.Warn("same wallet transfer", zap.Error(err))
		s.writeProblem(w, http.StatusBadRequest, "Source and destination wallets are the same.", err.Error())
	case errors.Is(err, wallet.ErrInvalidAmount):
		s.log.Warn("invalid amount", zap.Error(err))
		s.writeProblem(w, http.StatusBadRequest, "Invalid amount.", err.Error())
	case errors.Is(err, wallet.ErrConflict):
		s.log.Warn("operation conflict", zap.Error(err))
		s.writeProblem(w, http.StatusConflict,
			"A concurrent operation prevented your request from completing. Please retry.", err.Error())
	default:
		s.log.Error("internal error", zap.Error(err))
		s.writeProblem(w, http.StatusInternalServerError,
			"An unexpected internal server error occurred.", "")
	}
}

type problem struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) writeProblem(w http.ResponseWriter, status int, title, detail string) {
	writeJSON(w, status, problem{Status: status, Title: title, Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
