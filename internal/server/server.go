// Package server exposes the operator HTTP API: trigger a publishing pass,
// inspect the schedule, and read or adjust ledger balances.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"optobot/internal/ledger"
	"optobot/internal/pipeline"
	"optobot/internal/scheduler"
	logx "optobot/pkg/logx"
)

// Config controls the API server.
//
// Security:
//   - Prefer binding to localhost (default).
//   - Set Token when binding to a non-loopback address.
type Config struct {
	Enabled bool
	Addr    string
	Token   string
}

// PassRunner triggers one publishing pass.
type PassRunner interface {
	Run(ctx context.Context) (pipeline.Report, error)
}

// ScheduleReader exposes the current job queue.
type ScheduleReader interface {
	Snapshot() scheduler.Snapshot
}

type Service struct {
	mu  sync.Mutex
	log logx.Logger
	cfg Config

	runner   PassRunner
	schedule ScheduleReader
	balances ledger.Store // nil when the ledger is disabled

	ln  net.Listener
	srv *http.Server
}

func New(cfg Config, runner PassRunner, schedule ScheduleReader, balances ledger.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, runner: runner, schedule: schedule, balances: balances, log: log}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled || s.srv != nil {
		return nil
	}

	addr := strings.TrimSpace(s.cfg.Addr)
	if addr == "" {
		addr = "127.0.0.1:8080"
	}
	if s.cfg.Token == "" && !isLoopbackAddr(addr) {
		return errors.New("api refused to start: non-loopback addr requires a token")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.ln = ln
	s.srv = srv

	go func() {
		s.log.Info("api started", logx.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("api server exited", logx.Err(err))
		}
	}()
	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	ln := s.ln
	s.srv = nil
	s.ln = nil
	s.mu.Unlock()

	if srv != nil {
		_ = srv.Shutdown(ctx)
		_ = srv.Close()
	}
	if ln != nil {
		_ = ln.Close()
	}
}

// Handler builds the route table. Exposed for tests.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	wrap := func(h http.HandlerFunc) http.HandlerFunc { return s.withAuth(s.cfg.Token, h) }

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("POST /v1/pass", wrap(s.handlePass))
	mux.HandleFunc("GET /v1/status", wrap(s.handleStatus))

	mux.HandleFunc("GET /v1/balances/{user}", wrap(s.handleUserBalances))
	mux.HandleFunc("DELETE /v1/balances/{user}", wrap(s.handleDeleteUser))
	mux.HandleFunc("GET /v1/balances/{user}/{symbol}", wrap(s.handleGetBalance))
	mux.HandleFunc("PUT /v1/balances/{user}/{symbol}", wrap(s.handleSetBalance))
	mux.HandleFunc("POST /v1/balances/{user}/{symbol}", wrap(s.handleAdjustBalance))
	mux.HandleFunc("DELETE /v1/balances/{user}/{symbol}", wrap(s.handleDeleteBalance))

	return mux
}

func (s *Service) handlePass(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		http.Error(w, "pipeline unavailable", http.StatusServiceUnavailable)
		return
	}
	rep, err := s.runner.Run(r.Context())
	if err != nil {
		s.log.Warn("manual pass failed", logx.Err(err))
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"collected": rep.Collected,
		"eligible":  rep.Eligible,
		"composed":  rep.Composed,
		"failed":    rep.Failed,
		"scheduled": len(rep.Jobs),
	})
}

type jobView struct {
	ID     string    `json:"id"`
	Token  string    `json:"token,omitempty"`
	DueAt  time.Time `json:"due_at"`
	State  string    `json:"state"`
	Reason string    `json:"reason,omitempty"`
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.schedule == nil {
		http.Error(w, "scheduler unavailable", http.StatusServiceUnavailable)
		return
	}
	snap := s.schedule.Snapshot()
	jobs := make([]jobView, 0, len(snap.Jobs))
	for _, j := range snap.Jobs {
		v := jobView{ID: j.ID, DueAt: j.DueAt, State: j.State.String(), Reason: j.Reason}
		if j.Payload != nil {
			v.Token = j.Payload.TokenLabel
		}
		jobs = append(jobs, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pending":   snap.Pending,
		"posted":    snap.Posted,
		"throttled": snap.Throttled,
		"failed":    snap.Failed,
		"jobs":      jobs,
	})
}

func (s *Service) ledgerOr503(w http.ResponseWriter) ledger.Store {
	if s.balances == nil {
		http.Error(w, "ledger disabled", http.StatusServiceUnavailable)
		return nil
	}
	return s.balances
}

func (s *Service) handleUserBalances(w http.ResponseWriter, r *http.Request) {
	st := s.ledgerOr503(w)
	if st == nil {
		return
	}
	all, err := st.All(r.Context(), r.PathValue("user"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (s *Service) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	st := s.ledgerOr503(w)
	if st == nil {
		return
	}
	if err := st.DeleteAll(r.Context(), r.PathValue("user")); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	st := s.ledgerOr503(w)
	if st == nil {
		return
	}
	v, ok, err := st.Get(r.Context(), r.PathValue("user"), r.PathValue("symbol"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"balance": v})
}

func (s *Service) handleSetBalance(w http.ResponseWriter, r *http.Request) {
	st := s.ledgerOr503(w)
	if st == nil {
		return
	}
	var body struct {
		Balance float64 `json:"balance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err := st.Set(r.Context(), r.PathValue("user"), r.PathValue("symbol"), body.Balance); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"balance": body.Balance})
}

func (s *Service) handleAdjustBalance(w http.ResponseWriter, r *http.Request) {
	st := s.ledgerOr503(w)
	if st == nil {
		return
	}
	var body struct {
		Op    string  `json:"op"`
		Delta float64 `json:"delta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var (
		next float64
		err  error
	)
	switch body.Op {
	case "increment":
		next, err = st.Increment(r.Context(), r.PathValue("user"), r.PathValue("symbol"), body.Delta)
	case "decrement":
		next, err = st.Decrement(r.Context(), r.PathValue("user"), r.PathValue("symbol"), body.Delta)
	default:
		http.Error(w, "op must be increment or decrement", http.StatusBadRequest)
		return
	}
	if errors.Is(err, ledger.ErrInsufficientFunds) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"balance": next})
}

func (s *Service) handleDeleteBalance(w http.ResponseWriter, r *http.Request) {
	st := s.ledgerOr503(w)
	if st == nil {
		return
	}
	if err := st.Delete(r.Context(), r.PathValue("user"), r.PathValue("symbol")); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Service) withAuth(token string, h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if ah := r.Header.Get("Authorization"); ah != "" {
			const p = "Bearer "
			if strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
				h(w, r)
				return
			}
		}
		w.Header().Set("WWW-Authenticate", "Bearer")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}
