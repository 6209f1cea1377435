package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"cdpchain/config"
	"cdpchain/core"
	"cdpchain/mempool"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// Server exposes read access to the risk core and accepts transactions into
// the mempool.
type Server struct {
	proc    *core.Processor
	pool    *mempool.Pool
	cfg     config.RPC
	logger  *slog.Logger
	limiter *rateLimiter
	auth    *authenticator
	httpSrv *http.Server
}

// NewServer builds the API server.
func NewServer(proc *core.Processor, pool *mempool.Pool, cfg config.RPC, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.Auth.HMACSecret) == "" {
		logger.Warn("api auth secret not configured, transaction submission disabled")
	}
	return &Server{
		proc:    proc,
		pool:    pool,
		cfg:     cfg,
		logger:  logger,
		limiter: newRateLimiter(cfg.TxRatePerSecond, cfg.TxBurst),
		auth:    newAuthenticator(cfg.Auth, logger),
	}
}

// Handler returns the routed HTTP handler, traced through otelhttp.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.With(observe("chain", "head")).Get("/head", s.head)
		v1.With(observe("cdp", "position")).Get("/positions/{asset}/{owner}", s.position)
		v1.With(observe("cdp", "params")).Get("/params/{asset}", s.params)
		v1.With(observe("treasury", "pools")).Get("/treasury", s.treasury)
		v1.With(observe("treasury", "custody")).Get("/treasury/collaterals/{asset}", s.custody)
		v1.With(observe("dex", "pool")).Get("/pools/{a}/{b}", s.liquidityPool)
		v1.With(observe("auction", "list")).Get("/auctions", s.auctions)
		v1.With(observe("auction", "get")).Get("/auctions/{id}", s.auction)
		v1.With(observe("shutdown", "status")).Get("/shutdown", s.shutdownStatus)
		v1.With(s.limiter.middleware("tx"), s.auth.middleware("tx"), observe("tx", "submit")).Post("/tx", s.submitTx)
	})
	return otelhttp.NewHandler(r, "cdp.api", otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
		return r.Method + " " + r.URL.Path
	}))
}

// Start serves on the configured address until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	timeout := time.Duration(s.cfg.ReadTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s.httpSrv = &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: timeout,
		ReadTimeout:       timeout,
		WriteTimeout:      timeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", slog.String("addr", s.cfg.ListenAddress))
		errCh <- s.httpSrv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, RequestID: RequestIDFrom(r.Context())})
}
