package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/subhajitdharMS/ErrorDecodeAI/internal/config"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/metrics"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/models"
)

// Backend persists one analysis row and reports where it went.
type Backend interface {
	Name() string
	Append(ctx context.Context, rec models.NotificationRecord) (string, error)
}

// Sink is the best-effort front of a Backend. Append never fails; backend
// errors are logged, counted and reported as an empty location.
type Sink struct {
	logger  *slog.Logger
	backend Backend
	timeout time.Duration
}

// New wraps backend. A nil backend behaves like the none backend.
func New(logger *slog.Logger, backend Backend, timeout time.Duration) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	if backend == nil {
		backend = noneBackend{}
	}
	return &Sink{logger: logger, backend: backend, timeout: timeout}
}

// FromConfig builds the sink selected by cfg. Construction problems are
// deferred to Append so they surface as ordinary sink failures.
func FromConfig(cfg config.LogSinkConfig, logger *slog.Logger) *Sink {
	var backend Backend
	switch cfg.ActiveBackend() {
	case config.SinkFile:
		backend = NewFileBackend(cfg.ResolvedFilePath())
	case config.SinkBlob:
		store, err := newAzblobStore(cfg.Blob)
		if err != nil {
			backend = brokenBackend{name: config.SinkBlob, err: err}
		} else {
			backend = NewBlobBackend(store, cfg.Blob.Container, cfg.Blob.BlobName)
		}
	case config.SinkSQL:
		backend = NewSQLBackend(cfg.SQL.Driver, cfg.SQL.DSN, cfg.SQL.Table)
	default:
		backend = noneBackend{}
	}
	return New(logger, backend, cfg.Timeout)
}

// Backend returns the name of the active backend.
func (s *Sink) Backend() string {
	return s.backend.Name()
}

// Append writes rec and returns its location, or "" when nothing was written.
func (s *Sink) Append(ctx context.Context, rec models.NotificationRecord) (location string) {
	name := s.backend.Name()
	if name == config.SinkNone {
		return ""
	}

	ctx, span := otel.Tracer("errordecode/sink").Start(ctx, "sink.Append")
	span.SetAttributes(attribute.String("sink.backend", name))
	defer span.End()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			s.fail(name, rec, fmt.Errorf("panic: %v", r))
			location = ""
		}
	}()

	loc, err := s.backend.Append(ctx, rec)
	if err != nil {
		s.fail(name, rec, err)
		return ""
	}
	metrics.ObserveLogSink(name, metrics.OutcomeSuccess)
	return loc
}

func (s *Sink) fail(name string, rec models.NotificationRecord, err error) {
	metrics.ObserveLogSink(name, metrics.OutcomeError)
	s.logger.Warn("analysis log append failed",
		slog.String("backend", name),
		slog.String("pipeline", rec.PipelineName),
		slog.Any("error", err),
	)
}

type noneBackend struct{}

func (noneBackend) Name() string { return config.SinkNone }

func (noneBackend) Append(context.Context, models.NotificationRecord) (string, error) {
	return "", nil
}

type brokenBackend struct {
	name string
	err  error
}

func (b brokenBackend) Name() string { return b.name }

func (b brokenBackend) Append(context.Context, models.NotificationRecord) (string, error) {
	return "", b.err
}
