package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/subhajitdharMS/ErrorDecodeAI/internal/config"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/metrics"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/repo"
)

// Pinger issues a reachability probe against an inference deployment.
type Pinger interface {
	Ping(ctx context.Context, d repo.Deployment) (repo.PingResult, error)
}

// Prober pings the deployment named by the current snapshot on a cron schedule
// and exports the outcome as the inference_probe_up gauge.
type Prober struct {
	logger *slog.Logger
	holder *config.Holder
	pinger Pinger
	parser cron.Parser
	c      *cron.Cron
}

// NewProber constructs an idle prober.
func NewProber(logger *slog.Logger, holder *config.Holder, pinger Pinger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		logger: logger,
		holder: holder,
		pinger: pinger,
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Start schedules probes. Overlapping runs are skipped.
func (p *Prober) Start(schedule string) error {
	if _, err := p.parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid probe schedule %q: %w", schedule, err)
	}
	c := cron.New(
		cron.WithParser(p.parser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(schedule, func() { p.ProbeOnce(context.Background()) }); err != nil {
		return fmt.Errorf("schedule probe: %w", err)
	}
	c.Start()
	p.c = c
	p.logger.Info("inference probe scheduled", slog.String("schedule", schedule))
	return nil
}

// Stop waits for a running probe to finish.
func (p *Prober) Stop() {
	if p.c == nil {
		return
	}
	<-p.c.Stop().Done()
	p.c = nil
}

// ProbeOnce pings the deployment once and reports whether it answered below HTTP 400.
func (p *Prober) ProbeOnce(ctx context.Context) bool {
	cfg := p.holder.Current().Inference
	if !cfg.Configured() || cfg.Deployment == "" {
		metrics.SetInferenceUp(false)
		p.logger.Debug("inference probe skipped, deployment not configured")
		return false
	}

	if cfg.PingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.PingTimeout)
		defer cancel()
	}
	res, err := p.pinger.Ping(ctx, repo.Deployment{
		Endpoint:   cfg.Endpoint,
		Name:       cfg.Deployment,
		APIVersion: cfg.APIVersion,
		APIKey:     cfg.APIKey,
	})
	if err != nil {
		metrics.SetInferenceUp(false)
		p.logger.Warn("inference probe failed", slog.Any("error", err))
		return false
	}

	metrics.SetInferenceUp(res.OK)
	if !res.OK {
		p.logger.Warn("inference probe returned error status",
			slog.Int("status_code", res.StatusCode),
			slog.String("body_start", res.BodyStart),
		)
		return false
	}
	p.logger.Debug("inference probe ok", slog.Int("status_code", res.StatusCode))
	return true
}
