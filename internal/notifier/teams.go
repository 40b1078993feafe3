package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/subhajitdharMS/ErrorDecodeAI/internal/config"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/models"
)

const teamsThemeColor = "EA4300"

// MessageCard is the legacy connector card accepted by Teams incoming webhooks.
type MessageCard struct {
	Type       string        `json:"@type"`
	Context    string        `json:"@context"`
	ThemeColor string        `json:"themeColor"`
	Title      string        `json:"title"`
	Summary    string        `json:"summary"`
	Sections   []CardSection `json:"sections"`
}

// CardSection groups facts and markdown text.
type CardSection struct {
	Facts []CardFact `json:"facts"`
	Text  string     `json:"text"`
}

// CardFact is one name/value row.
type CardFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// TeamsDispatcher posts a MessageCard to an incoming webhook.
type TeamsDispatcher struct {
	cfg        config.TeamsConfig
	httpClient *http.Client
}

// NewTeamsDispatcher constructs the webhook channel. A nil httpClient uses a default client.
func NewTeamsDispatcher(cfg config.TeamsConfig, httpClient *http.Client) *TeamsDispatcher {
	return &TeamsDispatcher{cfg: cfg, httpClient: defaultClient(httpClient)}
}

func (d *TeamsDispatcher) Name() string { return ChannelTeams }

// Configured reports whether a webhook URL is set.
func (d *TeamsDispatcher) Configured() bool {
	return strings.TrimSpace(d.cfg.WebhookURL) != ""
}

// Send posts the card for rec.
func (d *TeamsDispatcher) Send(ctx context.Context, rec models.NotificationRecord) error {
	if !d.Configured() {
		return nil
	}

	body, err := json.Marshal(BuildCard(rec))
	if err != nil {
		return &DispatchError{Channel: ChannelTeams, Msg: "encode Teams card", Err: err}
	}

	ctx, cancel := withTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return &DispatchError{Channel: ChannelTeams, Msg: "build Teams request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return &DispatchError{Channel: ChannelTeams, Msg: "Teams webhook request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		text := readBody(resp)
		return &DispatchError{
			Channel:    ChannelTeams,
			StatusCode: resp.StatusCode,
			Body:       text,
			Msg:        fmt.Sprintf("Teams webhook error %d: %s", resp.StatusCode, text),
		}
	}
	return nil
}

// BuildCard renders rec as a MessageCard. Absent fields show as "-".
func BuildCard(rec models.NotificationRecord) MessageCard {
	title := "Pipeline Failure: " + rec.PipelineName
	facts := []CardFact{
		{Name: "Run Id", Value: orDash(rec.RunID)},
		{Name: "Activity", Value: orDash(rec.ActivityName)},
		{Name: "Error Code", Value: orDash(rec.ErrorCode)},
		{Name: "Environment", Value: orDash(rec.Environment)},
		{Name: "Source", Value: orDash(rec.Source)},
		{Name: "Component", Value: orDash(rec.Component)},
		{Name: "Severity", Value: orDash(rec.Severity)},
		{Name: "Correlation Id", Value: orDash(rec.CorrelationID)},
		{Name: "Region", Value: orDash(rec.Region)},
		{Name: "Tags", Value: orDash(strings.Join(rec.Tags, ", "))},
		{Name: "Link", Value: orDash(rec.ResourceURL)},
	}
	text := fmt.Sprintf("**Simplified:** %s\n\n**Reason:** %s\n\n**Fix:** %s",
		rec.Diagnosis.SimplifiedError, rec.Diagnosis.ProbableReason, rec.Diagnosis.ProbableFix)

	return MessageCard{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		ThemeColor: teamsThemeColor,
		Title:      title,
		Summary:    title,
		Sections:   []CardSection{{Facts: facts, Text: text}},
	}
}
