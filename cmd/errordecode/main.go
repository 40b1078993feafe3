package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/subhajitdharMS/ErrorDecodeAI/internal/api"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/config"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/engine"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/metrics"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/repo"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/services"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/tracing"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/utils"
)

var version = "dev"

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	holder, err := config.NewHolder(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}
	cfg := holder.Current()

	logger := utils.NewLogger(utils.LogOptions{
		Level:      cfg.Logging.Level,
		JSON:       cfg.Logging.JSON,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	slog.SetDefault(logger)
	logger.Info("starting errordecode",
		slog.String("version", version),
		slog.String("http_address", cfg.Server.HTTPAddress),
		slog.String("grpc_address", cfg.Server.GRPCAddress),
		slog.String("log_sink", cfg.LogSink.ActiveBackend()),
		slog.Bool("inference_configured", cfg.Inference.Configured()),
	)
	if cfg.Server.APIKey == "" {
		logger.Warn("API_KEY is not set; every notify request will be rejected")
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	shutdownTracing, err := tracing.Setup(cfg.Tracing, version, logger)
	if err != nil {
		logger.Error("failed to initialise tracing", slog.Any("error", err))
		os.Exit(1)
	}

	redactor, err := engine.LoadRedactor(cfg.Redaction.RulesPath, logger)
	if err != nil {
		logger.Error("failed to load redaction rules", slog.Any("error", err))
		os.Exit(1)
	}

	httpClient := &http.Client{}
	inference := repo.NewInferenceClient(httpClient)
	analyzer := engine.NewAnalyzer(logger, inference, redactor)

	notifyService := services.NewNotifyService(
		logger,
		holder,
		analyzer,
		services.DefaultSinkFactory(logger),
		services.DefaultChannelFactory(httpClient, redactor),
	)

	httpServer, err := api.NewHTTPServer(cfg.Server, notifyService, inference, logger)
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	var grpcServer *api.Server
	if cfg.Server.GRPCAddress != "" {
		grpcServer, err = api.NewServer(cfg.Server, api.NewNotifierService(logger, notifyService), func() string {
			return notifyService.Config().Server.APIKey
		})
		if err != nil {
			logger.Error("failed to create gRPC server", slog.Any("error", err))
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	var prober *services.Prober
	if cfg.Inference.ProbeSchedule != "" {
		prober = services.NewProber(logger, holder, inference)
		if err := prober.Start(cfg.Inference.ProbeSchedule); err != nil {
			logger.Error("failed to schedule inference probe", slog.Any("error", err))
			os.Exit(1)
		}
	}

	go func() {
		logger.Info("HTTP server listening", slog.String("address", httpServer.Address()))
		if serveErr := httpServer.Start(); serveErr != nil {
			logger.Error("HTTP server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	if grpcServer != nil {
		go func() {
			logger.Info("gRPC server listening", slog.String("address", grpcServer.Address()))
			if serveErr := grpcServer.Start(); serveErr != nil {
				logger.Error("gRPC server exited", slog.Any("error", serveErr))
				stop()
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown", slog.Any("error", err))
	}
	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	if prober != nil {
		prober.Stop()
	}

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	tracingCtx, cancelTracing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := shutdownTracing(tracingCtx); err != nil {
		logger.Warn("tracing shutdown", slog.Any("error", err))
	}
	cancelTracing()

	logger.Info("errordecode stopped")
}
