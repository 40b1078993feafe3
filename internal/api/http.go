package api

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/subhajitdharMS/ErrorDecodeAI/internal/config"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/engine"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/models"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/notifier"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/repo"
)

const (
	// APIKeyHeader carries the shared secret on HTTP requests.
	APIKeyHeader = "X-API-Key"

	maxRequestBytes = 1 << 20
)

// Notifier is the orchestrator surface the transports call.
type Notifier interface {
	Handle(ctx context.Context, report models.FailureReport, analysisOnly bool) (models.Result, error)
	Config() *config.Config
	Reload() (*config.Config, error)
}

// Pinger probes the inference deployment.
type Pinger interface {
	Ping(ctx context.Context, d repo.Deployment) (repo.PingResult, error)
}

// HTTPServer serves the REST API.
type HTTPServer struct {
	server   *http.Server
	listener net.Listener
}

// NewHTTPServer builds the REST API bound to cfg.HTTPAddress.
func NewHTTPServer(cfg config.ServerConfig, n Notifier, pinger Pinger, logger *slog.Logger) (*HTTPServer, error) {
	lis, err := net.Listen("tcp", cfg.HTTPAddress)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.HTTPAddress, err)
	}
	return &HTTPServer{
		server: &http.Server{
			Handler:           NewRouter(n, pinger, NewLimiter(cfg.RateLimit, cfg.RateBurst), logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener: lis,
	}, nil
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Address exposes the bound listener address.
func (s *HTTPServer) Address() string {
	return s.listener.Addr().String()
}

// NewLimiter returns a token bucket, or nil when rps is not positive.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

type router struct {
	logger   *slog.Logger
	notifier Notifier
	pinger   Pinger
	limiter  *rate.Limiter
}

// NewRouter wires the REST routes. A nil limiter disables throttling.
func NewRouter(n Notifier, pinger Pinger, limiter *rate.Limiter, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &router{logger: logger, notifier: n, pinger: pinger, limiter: limiter}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/notify", rt.auth(rt.throttle(rt.handleNotify)))
	mux.HandleFunc("GET /healthz", rt.handleHealth)
	mux.HandleFunc("GET /diagnostics/openai", rt.auth(rt.handleDiagnostics))
	mux.HandleFunc("POST /diagnostics/reload-settings", rt.auth(rt.throttle(rt.handleReload)))
	return rt.recoverPanics(cors(mux))
}

func (rt *router) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !validKey(rt.notifier.Config().Server.APIKey, r.Header.Get(APIKeyHeader)) {
			writeDetail(w, http.StatusUnauthorized, "Invalid API key")
			return
		}
		next(w, r)
	}
}

// validKey rejects every request when no key is configured.
func validKey(want, got string) bool {
	if want == "" || got == "" {
		return false
	}
	gotHash := sha256.Sum256([]byte(got))
	wantHash := sha256.Sum256([]byte(want))
	return subtle.ConstantTimeCompare(gotHash[:], wantHash[:]) == 1
}

func (rt *router) throttle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rt.limiter != nil && !rt.limiter.Allow() {
			writeDetail(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next(w, r)
	}
}

func (rt *router) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				rt.logger.Error("unhandled panic", slog.String("path", r.URL.Path), slog.Any("panic", v))
				writeDetail(w, http.StatusInternalServerError, fmt.Sprint(v))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "*")
		h.Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rt *router) handleNotify(w http.ResponseWriter, r *http.Request) {
	analysisOnly := false
	if v := r.URL.Query().Get("return_only"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeDetail(w, http.StatusBadRequest, "return_only must be a boolean")
			return
		}
		analysisOnly = parsed
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		writeDetail(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	report, err := DecodeReport(body)
	if err != nil {
		rt.writeError(w, err)
		return
	}

	ctx := r.Context()
	if timeout := rt.notifier.Config().Server.RequestTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := rt.notifier.Handle(ctx, report, analysisOnly)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"openai_configured": rt.notifier.Config().Inference.Configured(),
	})
}

func (rt *router) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	cfg := rt.notifier.Config().Inference
	if !cfg.Configured() || cfg.Deployment == "" || rt.pinger == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"configured": false,
			"reason":     "Missing one of endpoint/deployment/api key",
		})
		return
	}

	ctx := r.Context()
	if cfg.PingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.PingTimeout)
		defer cancel()
	}
	res, err := rt.pinger.Ping(ctx, repo.Deployment{
		Endpoint:   cfg.Endpoint,
		Name:       cfg.Deployment,
		APIVersion: cfg.APIVersion,
		APIKey:     cfg.APIKey,
	})
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"configured":    true,
			"network_error": engine.ErrorClass(err),
			"detail":        err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"configured":  true,
		"status_code": res.StatusCode,
		"ok":          res.OK,
		"body_start":  res.BodyStart,
	})
}

func (rt *router) handleReload(w http.ResponseWriter, _ *http.Request) {
	cfg, err := rt.notifier.Reload()
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "reload failed: "+err.Error())
		return
	}
	backend := cfg.LogSink.ActiveBackend()
	resp := map[string]any{
		"reloaded":              true,
		"log_sink":              backend,
		"log_location_hint":     logLocationHint(cfg.LogSink),
		"enable_csv_logging":    backend == config.SinkFile,
		"disable_notifications": cfg.Notifications.Disabled,
	}
	if backend == config.SinkFile {
		resp["csv_log_path"] = cfg.LogSink.ResolvedFilePath()
	}
	writeJSON(w, http.StatusOK, resp)
}

func logLocationHint(cfg config.LogSinkConfig) string {
	switch cfg.ActiveBackend() {
	case config.SinkFile:
		return cfg.ResolvedFilePath()
	case config.SinkBlob:
		return cfg.Blob.Container + "/" + cfg.Blob.BlobName
	case config.SinkSQL:
		return cfg.SQL.Driver + ":" + cfg.SQL.Table
	default:
		return ""
	}
}

func (rt *router) writeError(w http.ResponseWriter, err error) {
	var (
		validation *models.ValidationError
		dispatch   *notifier.DispatchError
	)
	switch {
	case errors.As(err, &validation):
		writeDetail(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &dispatch):
		writeDetail(w, http.StatusBadGateway, err.Error())
	default:
		rt.logger.Error("request failed", slog.Any("error", err))
		writeDetail(w, http.StatusInternalServerError, err.Error())
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
