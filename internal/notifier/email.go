package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/subhajitdharMS/ErrorDecodeAI/internal/config"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/models"
)

const rawErrorLimit = 4000

var emailBody = template.Must(template.New("email").Parse(`
<h3>Pipeline Failure: {{.PipelineName}}</h3>
<p>
  <b>Run Id:</b> {{.RunID}}<br/>
  <b>Activity:</b> {{.ActivityName}}<br/>
  <b>Error Code:</b> {{.ErrorCode}}<br/>
  <b>Environment:</b> {{.Environment}}<br/>
  <b>Source:</b> {{.Source}}<br/>
  <b>Component:</b> {{.Component}}<br/>
  <b>Severity:</b> {{.Severity}}<br/>
  <b>Correlation Id:</b> {{.CorrelationID}}<br/>
  <b>Region:</b> {{.Region}}<br/>
  <b>Tags:</b> {{.Tags}}<br/>
  <b>Link:</b> <a href="{{.Link}}">Open</a>
</p>
<p><b>Simplified:</b> {{.Simplified}}</p>
<p><b>Probable Reason:</b> {{.Reason}}</p>
<p><b>Probable Fix:</b> {{.Fix}}</p>
<p><b>Confidence:</b> {{.Confidence}}</p>
<details><summary>Raw Error</summary><pre>{{.RawError}}</pre></details>
`))

type emailView struct {
	PipelineName  string
	RunID         string
	ActivityName  string
	ErrorCode     string
	Environment   string
	Source        string
	Component     string
	Severity      string
	CorrelationID string
	Region        string
	Tags          string
	Link          string
	Simplified    string
	Reason        string
	Fix           string
	Confidence    string
	RawError      string
}

type graphMessage struct {
	Message         graphMail `json:"message"`
	SaveToSentItems string    `json:"saveToSentItems"`
}

type graphMail struct {
	Subject      string           `json:"subject"`
	Body         graphBody        `json:"body"`
	ToRecipients []graphRecipient `json:"toRecipients"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphRecipient struct {
	EmailAddress struct {
		Address string `json:"address"`
	} `json:"emailAddress"`
}

// EmailDispatcher sends an HTML alert through Microsoft Graph using an
// app-only token from the client-credential flow.
type EmailDispatcher struct {
	cfg        config.EmailConfig
	httpClient *http.Client
	redactor   Redactor
}

// NewEmailDispatcher constructs the mail channel. A nil httpClient uses a default client.
func NewEmailDispatcher(cfg config.EmailConfig, httpClient *http.Client) *EmailDispatcher {
	return &EmailDispatcher{cfg: cfg, httpClient: defaultClient(httpClient)}
}

// WithRedactor scrubs the raw error before it is embedded in the body.
func (d *EmailDispatcher) WithRedactor(r Redactor) *EmailDispatcher {
	d.redactor = r
	return d
}

func (d *EmailDispatcher) Name() string { return ChannelEmail }

// Configured reports whether recipients and identity credentials are present.
func (d *EmailDispatcher) Configured() bool { return d.cfg.Configured() }

// Send acquires a token and posts one message to every recipient.
// The configured timeout covers both calls.
func (d *EmailDispatcher) Send(ctx context.Context, rec models.NotificationRecord) error {
	if !d.Configured() {
		return nil
	}

	ctx, cancel := withTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	token, err := d.token(ctx)
	if err != nil {
		return err
	}

	content, err := d.RenderBody(rec)
	if err != nil {
		return &DispatchError{Channel: ChannelEmail, Msg: "render email body", Err: err}
	}

	msg := graphMessage{
		Message: graphMail{
			Subject:      Subject(rec),
			Body:         graphBody{ContentType: "HTML", Content: content},
			ToRecipients: make([]graphRecipient, 0, len(d.cfg.Recipients)),
		},
		SaveToSentItems: "false",
	}
	for _, addr := range d.cfg.Recipients {
		var r graphRecipient
		r.EmailAddress.Address = addr
		msg.Message.ToRecipients = append(msg.Message.ToRecipients, r)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return &DispatchError{Channel: ChannelEmail, Msg: "encode sendMail request", Err: err}
	}

	endpoint := fmt.Sprintf("%s/v1.0/users/%s/sendMail",
		strings.TrimRight(d.cfg.GraphBaseURL, "/"), url.PathEscape(d.cfg.SenderAddress()))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return &DispatchError{Channel: ChannelEmail, Msg: "build sendMail request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return &DispatchError{Channel: ChannelEmail, Msg: "Graph sendMail request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		text := readBody(resp)
		return &DispatchError{
			Channel:    ChannelEmail,
			StatusCode: resp.StatusCode,
			Body:       text,
			Msg:        fmt.Sprintf("Graph sendMail error %d: %s", resp.StatusCode, text),
		}
	}
	return nil
}

func (d *EmailDispatcher) token(ctx context.Context) (string, error) {
	form := url.Values{
		"client_id":     {d.cfg.ClientID},
		"client_secret": {d.cfg.ClientSecret},
		"scope":         {d.cfg.Scope},
		"grant_type":    {"client_credentials"},
	}
	endpoint := fmt.Sprintf("%s/%s/oauth2/v2.0/token",
		strings.TrimRight(d.cfg.AuthorityHost, "/"), url.PathEscape(d.cfg.TenantID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &DispatchError{Channel: ChannelEmail, Msg: "build token request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", &DispatchError{Channel: ChannelEmail, Msg: "token request failed", Err: err}
	}
	defer resp.Body.Close()

	text := readBody(resp)
	if resp.StatusCode >= http.StatusBadRequest {
		return "", &DispatchError{
			Channel:    ChannelEmail,
			StatusCode: resp.StatusCode,
			Body:       text,
			Msg:        "Auth fail: " + text,
		}
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal([]byte(text), &body); err != nil || body.AccessToken == "" {
		return "", &DispatchError{Channel: ChannelEmail, StatusCode: resp.StatusCode, Msg: "No access token returned"}
	}
	return body.AccessToken, nil
}

// Subject renders the mail subject for rec.
func Subject(rec models.NotificationRecord) string {
	return fmt.Sprintf("[Failure] %s (%s)", rec.PipelineName, orDash(rec.Environment))
}

// RenderBody renders the HTML body for rec.
func (d *EmailDispatcher) RenderBody(rec models.NotificationRecord) (string, error) {
	raw := rec.RawError
	if d.redactor != nil {
		raw = d.redactor.Redact(raw)
	}
	var quoted bytes.Buffer
	enc := json.NewEncoder(&quoted)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(raw); err != nil {
		return "", err
	}

	link := rec.ResourceURL
	if link == "" {
		link = "#"
	}
	tags := "-"
	if len(rec.Tags) > 0 {
		tags = strings.Join(rec.Tags, ", ")
	}

	view := emailView{
		PipelineName:  rec.PipelineName,
		RunID:         orDash(rec.RunID),
		ActivityName:  orDash(rec.ActivityName),
		ErrorCode:     orDash(rec.ErrorCode),
		Environment:   orDash(rec.Environment),
		Source:        orDash(rec.Source),
		Component:     orDash(rec.Component),
		Severity:      orDash(rec.Severity),
		CorrelationID: orDash(rec.CorrelationID),
		Region:        orDash(rec.Region),
		Tags:          tags,
		Link:          link,
		Simplified:    rec.Diagnosis.SimplifiedError,
		Reason:        rec.Diagnosis.ProbableReason,
		Fix:           rec.Diagnosis.ProbableFix,
		Confidence:    fmt.Sprintf("%.2f", rec.Diagnosis.Confidence),
		RawError:      truncateRunes(strings.TrimSuffix(quoted.String(), "\n"), rawErrorLimit),
	}

	var buf bytes.Buffer
	if err := emailBody.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
