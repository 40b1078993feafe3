package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"reflect"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/subhajitdharMS/ErrorDecodeAI/internal/config"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/metrics"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/models"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/repo"
)

// Ladder outcomes, also used as metric labels.
const (
	OutcomeAI         = "ai"
	OutcomeHeuristic  = "heuristic"
	OutcomeNetwork    = "network"
	OutcomeHTTPStatus = "http_status"
	OutcomeParse      = "parse"
)

const simplifiedLimit = 180

// Fixed guidance used by the fallback tiers.
const (
	HeuristicReason = "Heuristic: check connectivity / credentials / resource limits."
	HeuristicFix    = "Validate linked service creds, network access, and activity configuration."
	NetworkFix      = "Verify endpoint DNS, firewall, and that deployment name is correct."
	HTTPStatusFix   = "Confirm deployment name, rotate key, verify model availability in region."
	ParseFix        = "Inspect raw response, adjust response_format or deployment model."
)

// Completer sends one chat-completions request.
type Completer interface {
	Complete(ctx context.Context, d repo.Deployment, req repo.CompletionRequest) (string, error)
}

// Analyzer turns a FailureReport into a Diagnosis. It never fails: every
// backend problem resolves to a fallback Diagnosis whose probable_reason
// names the tier that produced it.
type Analyzer struct {
	logger   *slog.Logger
	client   Completer
	redactor *Redactor
	tracer   trace.Tracer
}

// NewAnalyzer constructs an Analyzer. A nil redactor uses the built-in rules.
func NewAnalyzer(logger *slog.Logger, client Completer, redactor *Redactor) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if redactor == nil {
		redactor = NewRedactor()
	}
	return &Analyzer{
		logger:   logger,
		client:   client,
		redactor: redactor,
		tracer:   otel.Tracer("errordecode/engine"),
	}
}

// Analyze runs the decision ladder against the supplied inference settings.
func (a *Analyzer) Analyze(ctx context.Context, report models.FailureReport, cfg config.InferenceConfig) models.Diagnosis {
	ctx, span := a.tracer.Start(ctx, "engine.Analyze")
	defer span.End()

	diagnosis, outcome := a.analyze(ctx, report, cfg)
	span.SetAttributes(attribute.String("analysis.outcome", outcome))
	metrics.ObserveAnalysis(outcome)
	return diagnosis
}

func (a *Analyzer) analyze(ctx context.Context, report models.FailureReport, cfg config.InferenceConfig) (models.Diagnosis, string) {
	confidence := defaultConfidence(cfg)

	if !cfg.Configured() || a.client == nil {
		return fallback(report, HeuristicReason, HeuristicFix, confidence), OutcomeHeuristic
	}

	callCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	content, err := a.client.Complete(callCtx, repo.Deployment{
		Endpoint:   cfg.Endpoint,
		Name:       cfg.Deployment,
		APIVersion: cfg.APIVersion,
		APIKey:     cfg.APIKey,
	}, repo.CompletionRequest{
		System:      SystemInstruction,
		User:        BuildPrompt(report, a.redactor),
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		JSONMode:    true,
	})
	if err != nil {
		return a.degrade(report, err, confidence)
	}

	diagnosis, err := parseDiagnosis(content, confidence)
	if err != nil {
		return a.degrade(report, &repo.DecodeError{Err: err}, confidence)
	}
	return diagnosis, OutcomeAI
}

func (a *Analyzer) degrade(report models.FailureReport, err error, confidence float64) (models.Diagnosis, string) {
	var (
		statusErr *repo.StatusError
		decodeErr *repo.DecodeError
		diagnosis models.Diagnosis
		outcome   string
	)
	switch {
	case errors.As(err, &statusErr):
		outcome = OutcomeHTTPStatus
		diagnosis = fallback(report,
			fmt.Sprintf("Azure OpenAI HTTP %d - possibly bad deployment or key.", statusErr.StatusCode),
			HTTPStatusFix, confidence)
	case errors.As(err, &decodeErr):
		outcome = OutcomeParse
		diagnosis = fallback(report,
			fmt.Sprintf("Failed to parse AI response: %s", ErrorClass(decodeErr.Err)),
			ParseFix, confidence)
	default:
		outcome = OutcomeNetwork
		diagnosis = fallback(report,
			fmt.Sprintf("Network error calling Azure OpenAI: %s", ErrorClass(err)),
			NetworkFix, confidence)
	}

	a.logger.Warn("analysis degraded",
		slog.String("outcome", outcome),
		slog.String("pipeline", report.PipelineName),
		slog.Any("error", err),
	)
	return diagnosis, outcome
}

// aiDiagnosis mirrors the backend JSON. Pointers distinguish missing fields.
type aiDiagnosis struct {
	SimplifiedError *string  `json:"simplified_error"`
	ProbableReason  *string  `json:"probable_reason"`
	ProbableFix     *string  `json:"probable_fix"`
	Confidence      *float64 `json:"confidence"`
}

// MissingFieldError reports a required key absent from the backend JSON.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string { return fmt.Sprintf("missing field %s", e.Field) }

func parseDiagnosis(content string, confidence float64) (models.Diagnosis, error) {
	var parsed aiDiagnosis
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return models.Diagnosis{}, err
	}
	switch {
	case parsed.SimplifiedError == nil:
		return models.Diagnosis{}, &MissingFieldError{Field: "simplified_error"}
	case parsed.ProbableReason == nil:
		return models.Diagnosis{}, &MissingFieldError{Field: "probable_reason"}
	case parsed.ProbableFix == nil:
		return models.Diagnosis{}, &MissingFieldError{Field: "probable_fix"}
	}
	if parsed.Confidence != nil {
		confidence = models.ClampConfidence(*parsed.Confidence)
	}
	return models.Diagnosis{
		SimplifiedError: *parsed.SimplifiedError,
		ProbableReason:  *parsed.ProbableReason,
		ProbableFix:     *parsed.ProbableFix,
		Confidence:      confidence,
	}, nil
}

func fallback(report models.FailureReport, reason, fix string, confidence float64) models.Diagnosis {
	return models.Diagnosis{
		SimplifiedError: Simplify(report.ErrorMessage),
		ProbableReason:  reason,
		ProbableFix:     fix,
		Confidence:      confidence,
	}
}

// Simplify truncates msg to 180 characters, appending "..." when it was cut.
func Simplify(msg string) string {
	runes := []rune(msg)
	if len(runes) <= simplifiedLimit {
		return msg
	}
	return string(runes[:simplifiedLimit]) + "..."
}

// defaultConfidence falls back to the package default for a zero value config.
// Loaded configuration never carries zero; Validate rejects it.
func defaultConfidence(cfg config.InferenceConfig) float64 {
	if cfg.DefaultConfidence <= 0 {
		return models.DefaultConfidence
	}
	return models.ClampConfidence(cfg.DefaultConfidence)
}

// ErrorClass names the most specific cause of err, e.g. "Timeout" or "net.OpError".
func ErrorClass(err error) string {
	if err == nil {
		return "UnknownError"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "Canceled"
	}
	var missing *MissingFieldError
	if errors.As(err, &missing) {
		return "MissingField(" + missing.Field + ")"
	}
	var transport *repo.TransportError
	if errors.As(err, &transport) && transport.Err != nil {
		err = transport.Err
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	name := reflect.TypeOf(err).String()
	return strings.TrimPrefix(name, "*")
}
