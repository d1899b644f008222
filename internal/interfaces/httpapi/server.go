package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"paysync/internal/application"
	"paysync/internal/config"
	"paysync/internal/domain"
)

type RPCStatus interface {
	Ping(ctx context.Context) error
}

type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

type Server struct {
	cfg       config.Config
	store     application.PaymentQueryStore
	rpc       RPCStatus
	metrics   http.Handler
	buildInfo BuildInfo
}

// NewServer builds the read-only payment API. metrics may be nil, in which
// case /metrics is not mounted.
func NewServer(cfg config.Config, store application.PaymentQueryStore, rpc RPCStatus, metrics http.Handler, buildInfo BuildInfo) (*Server, error) {
	if store == nil || rpc == nil {
		return nil, errors.New("http server dependencies must not be nil")
	}
	return &Server{cfg: cfg, store: store, rpc: rpc, metrics: metrics, buildInfo: buildInfo}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/payments", s.handlePayments)
	mux.HandleFunc("/state", s.handleState)
	mux.HandleFunc("/version", s.handleVersion)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
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

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, "db not ready")
		return
	}
	if err := s.rpc.Ping(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, "rpc not ready")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handlePayments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	filter, err := parsePaymentFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	payments, err := s.store.QueryPayments(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if payments == nil {
		payments = []domain.Payment{}
	}
	respondJSON(w, http.StatusOK, payments)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	point, err := application.Resume(r.Context(), s.store)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "state read failed")
		return
	}
	count, err := s.store.CountPayments(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "count failed")
		return
	}
	response := map[string]any{
		"last_ledger_index": point.LastIndex,
		"has_payments":      !point.Genesis(),
		"next_ledger_min":   point.MinLedger(),
		"stored_payments":   count,
		"config": map[string]any{
			"rpc_url":        s.cfg.RPCURL,
			"account":        s.cfg.SyncAccount(),
			"currency_code":  s.cfg.CurrencyCode,
			"issuer_address": s.cfg.IssuerAddress,
			"page_size":      s.cfg.PageSize,
			"store_driver":   s.cfg.StoreDriver,
			"payments_table": s.cfg.PaymentsTable,
		},
	}
	respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.buildInfo)
}

func parsePaymentFilter(r *http.Request) (application.PaymentQueryFilter, error) {
	limit, err := parseLimit(r)
	if err != nil {
		return application.PaymentQueryFilter{}, err
	}
	from, err := parseLedgerParam(r, "from_ledger")
	if err != nil {
		return application.PaymentQueryFilter{}, err
	}
	to, err := parseLedgerParam(r, "to_ledger")
	if err != nil {
		return application.PaymentQueryFilter{}, err
	}
	if from != nil && to != nil && *from > *to {
		return application.PaymentQueryFilter{}, errors.New("from_ledger is after to_ledger")
	}

	query := r.URL.Query()
	return application.PaymentQueryFilter{
		Address:    strings.TrimSpace(query.Get("address")),
		Hash:       strings.ToUpper(strings.TrimSpace(query.Get("hash"))),
		FromLedger: from,
		ToLedger:   to,
		Limit:      limit,
	}, nil
}

func parseLimit(r *http.Request) (int, error) {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			return 0, errors.New("invalid limit")
		}
		return value, nil
	}
	return application.DefaultQueryLimit, nil
}

func parseLedgerParam(r *http.Request, key string) (*int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		return nil, errors.New("invalid " + key)
	}
	return &value, nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
