package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/propsproject/props-protocol-sub000/core"
	nativecommon "github.com/propsproject/props-protocol-sub000/native/common"
	"github.com/propsproject/props-protocol-sub000/observability"
	"github.com/propsproject/props-protocol-sub000/observability/logging"
)

const maxRequestBytes = 1 << 20

// Config tunes the HTTP API.
type Config struct {
	Auth              AuthConfig
	RequestsPerSecond float64
	Burst             int
	ReadTimeout       time.Duration
	// Idempotency is optional. Without it Idempotency-Key headers are ignored.
	Idempotency *IdempotencyStore
}

// Server exposes the node over HTTP+JSON.
type Server struct {
	node    *core.Node
	cfg     Config
	logger  *slog.Logger
	metrics *observability.StakingMetrics
	auth    *Authenticator
	limiter *RateLimiter
	router  chi.Router
}

func NewServer(node *core.Node, cfg Config, logger *slog.Logger, metrics *observability.StakingMetrics) (*Server, error) {
	if node == nil {
		return nil, errors.New("rpc: node required")
	}
	if len(cfg.Auth.Secret) == 0 {
		return nil, errNoSecret
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	s := &Server{
		node:    node,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		auth:    NewAuthenticator(cfg.Auth),
		limiter: NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst, metrics),
	}
	s.router = s.buildRouter()
	return s, nil
}

// Handler returns the traced router.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "stakingd.rpc")
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("rpc server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("rpc shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(public chi.Router) {
			public.Use(s.limiter.Middleware)
			public.Get("/status", s.handleStatus)
			public.Get("/protocol", s.handleProtocol)
			public.Get("/accounts/{address}", s.handleAccount)
			public.Get("/apps", s.handleApps)
			public.Get("/apps/{address}", s.handleApp)
			public.Get("/pools/{address}", s.handlePool)
			public.Get("/tokens/{token}/accounts/{owner}", s.handleTokenAccount)
			public.Get("/events/ws", s.handleEventsWS)
		})

		v1.Group(func(protected chi.Router) {
			protected.Use(s.auth.Middleware)
			protected.Use(s.limiter.Middleware)
			if s.cfg.Idempotency != nil {
				protected.Use(s.cfg.Idempotency.Middleware(s.metrics))
			}

			protected.Post("/tokens/{token}/transfer", s.handleTransfer)
			protected.Post("/tokens/{token}/approve", s.handleApprove)
			protected.Post("/tokens/{token}/permit", s.handlePermit)
			protected.Post("/pools/{address}/fund", s.handleFundPool)

			protected.Post("/apps", s.handleDeployApp)
			protected.Post("/apps/{address}/whitelist", s.handleWhitelist)
			protected.Post("/apps/{address}/blacklist", s.handleBlacklist)
			protected.Post("/apps/{address}/claim", s.handleClaimAppRewards)
			protected.Post("/apps/{address}/claim-protocol", s.handleClaimAppProtocolRewards)

			protected.Post("/stake", s.handleStake)
			protected.Post("/stake/on-behalf", s.handleStakeOnBehalf)
			protected.Post("/stake/as-delegate", s.handleStakeAsDelegate)
			protected.Post("/stake/rewards", s.handleStakeRewards)
			protected.Post("/stake/reallocate", s.handleReallocate)
			protected.Post("/unstake", s.handleUnstake)

			protected.Post("/rewards/claim", s.handleClaimProtocolRewards)
			protected.Post("/rewards/claim-and-stake", s.handleClaimAndStake)
			protected.Post("/rewards/unlock", s.handleUnlockRewards)
			protected.Post("/delegate", s.handleDelegate)

			protected.Post("/admin/pause", s.handlePause)
			protected.Post("/admin/unpause", s.handleUnpause)
			protected.Post("/admin/escrow-cooldown", s.handleEscrowCooldown)
		})
	})
	return r
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFailure(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}

// writeError maps an engine failure onto its status and stable code. Errors
// outside the taxonomy are logged and reported without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := nativecommon.Code(err)
	if code == nativecommon.CodeInternal {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeFailure(w, http.StatusInternalServerError, string(code), "internal error")
		return
	}
	writeFailure(w, nativecommon.HTTPStatus(err), string(code), err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		writeFailure(w, http.StatusBadRequest, string(nativecommon.CodeInvalidInput), "invalid request body: "+err.Error())
		return false
	}
	return true
}
