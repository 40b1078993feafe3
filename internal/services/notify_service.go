package services

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/subhajitdharMS/ErrorDecodeAI/internal/config"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/metrics"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/models"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/notifier"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/sink"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/utils"
)

// Metric status labels for requests that do not produce a Result.
const (
	statusInvalid       = "invalid"
	statusDispatchError = "dispatch_error"
)

// Analyzer produces a Diagnosis and never fails.
type Analyzer interface {
	Analyze(ctx context.Context, report models.FailureReport, cfg config.InferenceConfig) models.Diagnosis
}

// LogSink appends a record best-effort and returns its location or "".
type LogSink interface {
	Append(ctx context.Context, rec models.NotificationRecord) string
}

// SinkFactory builds the log sink for one configuration snapshot.
type SinkFactory func(cfg *config.Config) LogSink

// ChannelFactory builds the ordered channel list for one configuration snapshot.
type ChannelFactory func(cfg *config.Config) []notifier.Dispatcher

// DefaultSinkFactory selects the backend named by the snapshot.
func DefaultSinkFactory(logger *slog.Logger) SinkFactory {
	return func(cfg *config.Config) LogSink {
		return sink.FromConfig(cfg.LogSink, logger)
	}
}

// DefaultChannelFactory builds the Teams and email channels.
func DefaultChannelFactory(httpClient *http.Client, redactor notifier.Redactor) ChannelFactory {
	return func(cfg *config.Config) []notifier.Dispatcher {
		return notifier.FromConfig(cfg, httpClient, redactor)
	}
}

type sinkEntry struct {
	cfg  *config.Config
	sink LogSink
}

// NotifyService sequences analysis, logging and channel delivery for one report.
type NotifyService struct {
	logger    *slog.Logger
	holder    *config.Holder
	analyzer  Analyzer
	sinks     SinkFactory
	channels  ChannelFactory
	latencies *utils.LatencyTracker
	tracer    trace.Tracer

	sinkMu sync.Mutex
	cached sinkEntry

	now   func() time.Time
	newID func() string
}

// NewNotifyService constructs the orchestrator. Nil factories fall back to no
// sink and no channels.
func NewNotifyService(logger *slog.Logger, holder *config.Holder, analyzer Analyzer, sinks SinkFactory, channels ChannelFactory) *NotifyService {
	if logger == nil {
		logger = slog.Default()
	}
	if sinks == nil {
		sinks = func(*config.Config) LogSink { return sink.New(logger, nil, 0) }
	}
	if channels == nil {
		channels = func(*config.Config) []notifier.Dispatcher { return nil }
	}
	return &NotifyService{
		logger:    logger,
		holder:    holder,
		analyzer:  analyzer,
		sinks:     sinks,
		channels:  channels,
		latencies: utils.NewLatencyTracker(1024),
		tracer:    otel.Tracer("errordecode/services"),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// Config returns the snapshot new requests will use.
func (s *NotifyService) Config() *config.Config {
	return s.holder.Current()
}

// Reload re-reads configuration. Requests already running keep their snapshot.
func (s *NotifyService) Reload() (*config.Config, error) {
	cfg, err := s.holder.Reload()
	if err != nil {
		metrics.ObserveConfigReload(metrics.OutcomeError)
		s.logger.Warn("configuration reload failed", slog.Any("error", err))
		return nil, err
	}
	metrics.ObserveConfigReload(metrics.OutcomeSuccess)
	s.logger.Info("configuration reloaded",
		slog.String("log_sink", cfg.LogSink.ActiveBackend()),
		slog.Bool("notifications_disabled", cfg.Notifications.Disabled),
	)
	return cfg, nil
}

// Handle processes one report. A validation failure is returned as
// *models.ValidationError before analysis; after that the only error is a
// *notifier.DispatchError from the first channel that failed.
func (s *NotifyService) Handle(ctx context.Context, report models.FailureReport, analysisOnly bool) (models.Result, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "services.Handle")
	defer span.End()

	if err := report.Validate(); err != nil {
		metrics.ObserveNotification(time.Since(start), statusInvalid)
		span.SetStatus(codes.Error, err.Error())
		return models.Result{}, err
	}
	report = report.Normalized()

	cfg := s.holder.Current()
	requestID := s.newID()
	span.SetAttributes(
		attribute.String("request.id", requestID),
		attribute.String("pipeline.name", report.PipelineName),
		attribute.Bool("analysis_only", analysisOnly),
	)
	logger := s.logger.With(slog.String("request_id", requestID), slog.String("pipeline", report.PipelineName))

	diagnosis := s.analyzer.Analyze(ctx, report, cfg.Inference)
	rec := models.NewNotificationRecord(report, diagnosis, s.now())
	location := s.appendLog(ctx, logger, cfg, rec)

	result := models.Result{
		Metadata:  models.MetadataFor(requestID, rec, location),
		Diagnosis: diagnosis,
	}

	if analysisOnly || cfg.Notifications.Disabled {
		result.Status = models.StatusAnalysisOnly
		s.finish(logger, start, string(result.Status))
		return result, nil
	}

	if err := notifier.Dispatch(ctx, s.channels(cfg), rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("notification dispatch failed", slog.Any("error", err))
		s.finish(logger, start, statusDispatchError)
		return models.Result{}, err
	}

	result.Status = models.StatusSent
	s.finish(logger, start, string(result.Status))
	return result, nil
}

func (s *NotifyService) appendLog(ctx context.Context, logger *slog.Logger, cfg *config.Config, rec models.NotificationRecord) (location string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("analysis log append panicked", slog.Any("panic", r))
			location = ""
		}
	}()
	return s.sinkFor(cfg).Append(ctx, rec)
}

// sinkFor reuses the sink built for the current snapshot and rebuilds it after a reload.
func (s *NotifyService) sinkFor(cfg *config.Config) LogSink {
	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()
	if s.cached.cfg != cfg || s.cached.sink == nil {
		s.cached = sinkEntry{cfg: cfg, sink: s.sinks(cfg)}
	}
	return s.cached.sink
}

func (s *NotifyService) finish(logger *slog.Logger, start time.Time, status string) {
	duration := time.Since(start)
	metrics.ObserveNotification(duration, status)
	logger.Info("report handled", slog.String("status", status), slog.Duration("duration", duration))
	if count := s.latencies.Observe(duration); count%20 == 0 {
		summary := s.latencies.Summary()
		s.logger.Info("notification latency",
			slog.Duration("p50", summary.P50),
			slog.Duration("p95", summary.P95),
			slog.Int("samples", summary.Samples),
		)
	}
}
