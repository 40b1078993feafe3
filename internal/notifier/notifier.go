package notifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/subhajitdharMS/ErrorDecodeAI/internal/config"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/metrics"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/models"
)

const (
	// ChannelTeams names the chat webhook channel.
	ChannelTeams = "teams"
	// ChannelEmail names the mail channel.
	ChannelEmail = "email"

	maxResponseBytes = 1 << 16
)

// Dispatcher delivers one NotificationRecord to an external surface.
// Send returns nil without doing anything when the channel is not configured.
type Dispatcher interface {
	Name() string
	Send(ctx context.Context, rec models.NotificationRecord) error
}

// Redactor scrubs free text before it is embedded in a message.
type Redactor interface {
	Redact(text string) string
}

// DispatchError is the terminal failure of one channel.
type DispatchError struct {
	Channel    string
	StatusCode int
	Body       string
	Msg        string
	Err        error
}

func (e *DispatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *DispatchError) Unwrap() error { return e.Err }

// FromConfig builds the channels for one snapshot in delivery order: teams, then email.
func FromConfig(cfg *config.Config, httpClient *http.Client, redactor Redactor) []Dispatcher {
	email := NewEmailDispatcher(cfg.Email, httpClient)
	if cfg.Notifications.RedactRawError && redactor != nil {
		email.WithRedactor(redactor)
	}
	return []Dispatcher{
		NewTeamsDispatcher(cfg.Teams, httpClient),
		email,
	}
}

// Dispatch calls each dispatcher in order and stops at the first failure.
// The returned error is always a *DispatchError.
func Dispatch(ctx context.Context, dispatchers []Dispatcher, rec models.NotificationRecord) error {
	for _, d := range dispatchers {
		if err := instrumentedSend(ctx, d, rec); err != nil {
			var de *DispatchError
			if errors.As(err, &de) {
				return de
			}
			return &DispatchError{Channel: d.Name(), Msg: d.Name() + " dispatch failed", Err: err}
		}
	}
	return nil
}

type configurable interface {
	Configured() bool
}

func instrumentedSend(ctx context.Context, d Dispatcher, rec models.NotificationRecord) error {
	if c, ok := d.(configurable); ok && !c.Configured() {
		metrics.ObserveDispatch(d.Name(), metrics.OutcomeSkipped)
		return nil
	}

	ctx, span := otel.Tracer("errordecode/notifier").Start(ctx, "notifier.Send")
	span.SetAttributes(attribute.String("channel", d.Name()))
	defer span.End()

	if err := d.Send(ctx, rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.ObserveDispatch(d.Name(), metrics.OutcomeError)
		return err
	}
	metrics.ObserveDispatch(d.Name(), metrics.OutcomeSuccess)
	return nil
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func readBody(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	return strings.TrimSpace(string(data))
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}

func defaultClient(c *http.Client) *http.Client {
	if c == nil {
		return &http.Client{}
	}
	return c
}
