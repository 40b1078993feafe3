package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
)

const (
	maxResponseBytes = 1 << 20
	statusBodyLimit  = 512
)

// Deployment addresses one chat-completions model deployment.
type Deployment struct {
	Endpoint   string
	Name       string
	APIVersion string
	APIKey     string
}

// CompletionRequest is a single system+user exchange.
type CompletionRequest struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	JSONMode    bool
}

// PingResult is the outcome of a one-token reachability probe.
type PingResult struct {
	StatusCode int
	OK         bool
	BodyStart  string
}

// TransportError reports that no HTTP response was received.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("inference transport: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// StatusError reports an HTTP status >= 400 from the backend.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inference backend returned HTTP %d: %s", e.StatusCode, e.Body)
}

// DecodeError reports a response envelope that could not be decoded.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode inference response: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// ErrNoChoices is wrapped in a DecodeError when the envelope carries no message.
var ErrNoChoices = errors.New("response has no choices")

// InferenceClient talks to an Azure OpenAI style chat-completions API.
// Deadlines come from the caller's context so one client serves every snapshot.
type InferenceClient struct {
	httpClient *http.Client
}

// NewInferenceClient constructs a client. A nil httpClient uses a fresh default client.
func NewInferenceClient(httpClient *http.Client) *InferenceClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &InferenceClient{httpClient: httpClient}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends req and returns the first choice's message content.
func (c *InferenceClient) Complete(ctx context.Context, d Deployment, req CompletionRequest) (string, error) {
	temperature := req.Temperature
	payload := chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Temperature: &temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONMode {
		payload.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	status, body, err := c.postJSON(ctx, d, payload)
	if err != nil {
		return "", err
	}
	if status >= http.StatusBadRequest {
		return "", &StatusError{StatusCode: status, Body: truncate(string(body), statusBodyLimit)}
	}

	var envelope chatResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", &DecodeError{Err: err}
	}
	if len(envelope.Choices) == 0 {
		return "", &DecodeError{Err: ErrNoChoices}
	}
	return envelope.Choices[0].Message.Content, nil
}

// Ping issues a one-token request to check that the deployment answers.
// Only transport failures are returned as errors; HTTP errors are reported in the result.
func (c *InferenceClient) Ping(ctx context.Context, d Deployment) (PingResult, error) {
	payload := chatRequest{
		Messages:  []chatMessage{{Role: "user", Content: "Ping"}},
		MaxTokens: 1,
	}
	status, body, err := c.postJSON(ctx, d, payload)
	if err != nil {
		return PingResult{}, err
	}
	return PingResult{
		StatusCode: status,
		OK:         status < http.StatusBadRequest,
		BodyStart:  truncate(string(body), 180),
	}, nil
}

func (c *InferenceClient) postJSON(ctx context.Context, d Deployment, payload any) (int, []byte, error) {
	endpoint := completionsURL(d)
	if endpoint == "" {
		return 0, nil, &TransportError{Err: fmt.Errorf("empty endpoint")}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", d.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, &TransportError{Err: err}
	}
	return resp.StatusCode, data, nil
}

func completionsURL(d Deployment) string {
	base := strings.TrimSpace(d.Endpoint)
	if base == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return ""
	}
	u.Path = path.Join("/", u.Path, "openai", "deployments", d.Name, "chat", "completions")
	q := u.Query()
	q.Set("api-version", d.APIVersion)
	u.RawQuery = q.Encode()
	return u.String()
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
