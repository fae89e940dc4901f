package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"stakelend/core"
	"stakelend/core/types"
	"stakelend/crypto"
	"stakelend/gateway/middleware"
	"stakelend/native/lending"
	"stakelend/services/lending/index"
)

const (
	maxTxBodyBytes      = 64 << 10
	defaultHistoryLimit = 50

	// Rate limit groups.
	GroupRead   = "read"
	GroupWrite  = "write"
	GroupStream = "stream"

	// WriteScope is the token scope required to submit transactions.
	WriteScope = "lending:write"
)

// ReadPaths are the route prefixes that serve protocol state without
// mutating it. Authenticators may list them as optional paths to allow
// anonymous reads.
var ReadPaths = []string{
	"/v1/protocol",
	"/v1/accounts/",
	"/v1/loans/",
	"/v1/balances/",
	"/v1/history/",
	"/v1/events/",
}

// Backend is the protocol state the API serves. *core.Node satisfies it.
type Backend interface {
	SubmitTransaction(ctx context.Context, tx *types.Transaction) (*core.Receipt, error)
	GlobalState() (*lending.GlobalState, error)
	UserState(addr crypto.Address) (*lending.UserState, error)
	Loan(id lending.LoanID) (*lending.Loan, error)
	Loans(borrower crypto.Address) ([]*lending.Loan, error)
	Account(addr crypto.Address) (*types.Account, error)
	Now() time.Time
}

// History serves the indexed activity of an address. *index.Store
// satisfies it.
type History interface {
	Activity(ctx context.Context, address string, limit int) ([]index.Activity, error)
}

// Options wires the optional collaborators of a Server. Nil members disable
// the corresponding feature.
type Options struct {
	Logger         *slog.Logger
	Auth           *middleware.Authenticator
	Limiter        *middleware.RateLimiter
	Observability  *middleware.Observability
	CORS           *middleware.CORSConfig
	Hub            *Hub
	OriginPatterns []string
}

// Server exposes the lending protocol over HTTP JSON.
type Server struct {
	backend        Backend
	history        History
	logger         *slog.Logger
	auth           *middleware.Authenticator
	limiter        *middleware.RateLimiter
	obs            *middleware.Observability
	cors           *middleware.CORSConfig
	hub            *Hub
	originPatterns []string
}

var errBackendRequired = errors.New("server: backend required")

// New constructs a Server over backend. history may be nil when no index is
// configured.
func New(backend Backend, history History, opts Options) (*Server, error) {
	if backend == nil {
		return nil, errBackendRequired
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		backend:        backend,
		history:        history,
		logger:         logger.With("component", "lending-api"),
		auth:           opts.Auth,
		limiter:        opts.Limiter,
		obs:            opts.Observability,
		cors:           opts.CORS,
		hub:            opts.Hub,
		originPatterns: opts.OriginPatterns,
	}, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestIDs)
	r.Use(s.recoverer)
	if s.cors != nil {
		r.Use(middleware.CORS(*s.cors))
	}

	r.Get("/healthz", s.handleHealth)
	if s.obs != nil {
		r.Method(http.MethodGet, "/metrics", s.obs.MetricsHandler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.With(s.chain("tx", GroupWrite, WriteScope)...).Post("/tx", s.handleSubmit)

		r.Group(func(r chi.Router) {
			r.Use(s.chain("read", GroupRead, "")...)
			r.Get("/protocol", s.handleProtocol)
			r.Get("/accounts/{address}", s.handleAccount)
			r.Get("/accounts/{address}/loans", s.handleLoans)
			r.Get("/loans/{address}/{index}", s.handleLoan)
			r.Get("/balances/{address}", s.handleBalance)
			r.Get("/history/{address}", s.handleHistory)
		})

		r.With(s.chain("events", GroupStream, "")...).Get("/events/ws", s.handleEventStream)
	})
	return r
}

// chain assembles the per-route middleware: observability, rate limiting and
// authentication. An empty scope only requires a valid token.
func (s *Server) chain(route, group, scope string) []func(http.Handler) http.Handler {
	var mws []func(http.Handler) http.Handler
	if s.obs != nil {
		mws = append(mws, s.obs.Middleware(route))
	}
	if s.limiter != nil {
		mws = append(mws, s.limiter.Middleware(group))
	}
	if s.auth != nil {
		if scope != "" {
			mws = append(mws, s.auth.Middleware(scope))
		} else {
			mws = append(mws, s.auth.Middleware())
		}
	}
	return mws
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic in handler",
					"path", r.URL.Path,
					"requestid", middleware.RequestID(r.Context()),
					"panic", fmt.Sprint(rec))
				writeError(w, http.StatusInternalServerError, "Internal", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxTxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	var tx types.Transaction
	if err := dec.Decode(&tx); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "malformed transaction body")
		return
	}
	receipt, err := s.backend.SubmitTransaction(r.Context(), &tx)
	if err != nil {
		status, code := txStatus(err)
		if code == codeInternal {
			s.logger.Error("transaction failed",
				"type", tx.Type.String(),
				"requestid", middleware.RequestID(r.Context()),
				"error", err)
			writeError(w, status, code, "internal error")
			return
		}
		writeError(w, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, receiptView(receipt, s.backend.Now()))
}

func (s *Server) handleProtocol(w http.ResponseWriter, r *http.Request) {
	global, err := s.backend.GlobalState()
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, protocolView(global))
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r)
	if !ok {
		return
	}
	account, err := s.backend.UserState(addr)
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accountView(account))
}

func (s *Server) handleLoans(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r)
	if !ok {
		return
	}
	loans, err := s.backend.Loans(addr)
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	now := s.backend.Now()
	views := make([]LoanView, 0, len(loans))
	for _, loan := range loans {
		views = append(views, loanView(loan, now))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleLoan(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r)
	if !ok {
		return
	}
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidArgument", "loan index must be an unsigned integer")
		return
	}
	loan, err := s.backend.Loan(lending.LoanID{Borrower: addr, Index: index})
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loanView(loan, s.backend.Now()))
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r)
	if !ok {
		return
	}
	account, err := s.backend.Account(addr)
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceView(addr, account))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "Unavailable", "history index not configured")
		return
	}
	addr, ok := addressParam(w, r)
	if !ok {
		return
	}
	limit := defaultHistoryLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "InvalidArgument", "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	rows, err := s.history.Activity(r.Context(), addr.String(), limit)
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, activityViews(rows))
}

func (s *Server) writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := queryStatus(err)
	if code == codeInternal {
		s.logger.Error("query failed",
			"path", r.URL.Path,
			"requestid", middleware.RequestID(r.Context()),
			"error", err)
		writeError(w, status, code, "internal error")
		return
	}
	writeError(w, status, code, err.Error())
}

func addressParam(w http.ResponseWriter, r *http.Request) (crypto.Address, bool) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidArgument", err.Error())
		return crypto.Address{}, false
	}
	return addr, true
}

func parseAddress(raw string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("invalid address: %w", err)
	}
	return addr, nil
}
