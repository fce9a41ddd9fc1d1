// Package httpapi exposes the orchestrator over HTTP. Handlers are thin
// adapters, 1:1 with the engine and identity operations; all flow logic stays
// in the core packages.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nimbuswallet/walletauth"
	"github.com/nimbuswallet/walletauth/identity"
)

// Server routes HTTP requests to the engine and the identity service.
type Server struct {
	engine   *walletauth.Engine
	identity *identity.Service
	logger   *slog.Logger

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New returns a Server. reg may be nil to skip request metrics.
func New(engine *walletauth.Engine, idsvc *identity.Service, logger *slog.Logger, reg prometheus.Registerer) *Server {
	s := &Server{engine: engine, identity: idsvc, logger: logger}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if reg != nil {
		factory := promauto.With(reg)
		s.requests = factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "walletauth",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"route", "status"})
		s.duration = factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "walletauth",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"})
	}
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/login/phone", s.instrument("/auth/login/phone", s.handleStartPhoneLogin))
	mux.HandleFunc("POST /auth/login/phone/verify", s.instrument("/auth/login/phone/verify", s.handleVerifyPhoneOTP))
	mux.HandleFunc("POST /auth/login/email", s.instrument("/auth/login/email", s.handleStartEmailLogin))
	mux.HandleFunc("POST /auth/login/email/verify", s.instrument("/auth/login/email/verify", s.handleVerifyEmailOTP))
	mux.HandleFunc("POST /auth/login/complete", s.instrument("/auth/login/complete", s.handleCompleteLogin))

	mux.HandleFunc("POST /auth/phone/change/start", s.instrument("/auth/phone/change/start", s.authenticated(s.handleStartPhoneChange)))
	mux.HandleFunc("POST /auth/phone/change/verify-old", s.instrument("/auth/phone/change/verify-old", s.authenticated(s.handleVerifyCurrentPhone)))
	mux.HandleFunc("POST /auth/phone/change/verify-new", s.instrument("/auth/phone/change/verify-new", s.authenticated(s.handleVerifyNewPhone)))

	mux.HandleFunc("POST /auth/refresh", s.instrument("/auth/refresh", s.handleRefresh))
	mux.HandleFunc("POST /auth/logout", s.instrument("/auth/logout", s.handleLogout))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return mux
}

// statusWriter captures the response code for metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next(sw, r)
		if s.requests != nil {
			s.requests.WithLabelValues(route, strconv.Itoa(sw.status)).Inc()
			s.duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	}
}

type authedHandler func(w http.ResponseWriter, r *http.Request, userID string)

// authenticated resolves the bearer token to a live durable session before
// running the handler.
func (s *Server) authenticated(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.writeError(w, identity.ErrAccessInvalid)
			return
		}
		userID, err := s.identity.Authenticate(r.Context(), token)
		if err != nil {
			s.writeError(w, err)
			return
		}
		next(w, r, userID)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
	// Retryable tells the client whether the same step may be retried with
	// the session intact, or the whole flow must restart.
	Retryable bool `json:"retryable"`
}

func (s *Server) writeBadRequest(w http.ResponseWriter, msg string) {
	s.writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// writeError maps the package error taxonomy onto HTTP statuses. Matching is
// by errors.Is against the sentinels, never by message.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, walletauth.ErrInvalidPhone),
		errors.Is(err, walletauth.ErrInvalidEmail),
		errors.Is(err, walletauth.ErrSamePhone):
		status = http.StatusBadRequest
	case errors.Is(err, walletauth.ErrInvalidCode),
		errors.Is(err, identity.ErrRefreshInvalid),
		errors.Is(err, identity.ErrAccessInvalid):
		status = http.StatusUnauthorized
	case errors.Is(err, walletauth.ErrOwnershipMismatch),
		errors.Is(err, walletauth.ErrMaxAttemptsExceeded):
		status = http.StatusForbidden
	case errors.Is(err, walletauth.ErrSessionNotFound),
		errors.Is(err, walletauth.ErrUserNotFound):
		status = http.StatusNotFound
	case errors.Is(err, walletauth.ErrInvalidStep),
		errors.Is(err, walletauth.ErrPhoneInUse):
		status = http.StatusConflict
	case errors.Is(err, walletauth.ErrSessionExpired),
		errors.Is(err, walletauth.ErrChallengeExpired):
		status = http.StatusGone
	case errors.Is(err, walletauth.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, walletauth.ErrProviderUnavailable),
		errors.Is(err, walletauth.ErrLoginCompletionFailed),
		errors.Is(err, walletauth.ErrPhoneChangeFailed):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("internal error", "err", err)
		s.writeJSON(w, status, errorBody{Error: "internal error"})
		return
	}
	s.writeJSON(w, status, errorBody{Error: err.Error(), Retryable: walletauth.Retryable(err)})
}
