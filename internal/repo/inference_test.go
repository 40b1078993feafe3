package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
)

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

var testDeployment = Deployment{
	Endpoint:   "https://contoso.openai.azure.com/",
	Name:       "gpt-4o",
	APIVersion: "2024-02-15-preview",
	APIKey:     "k-123",
}

func TestCompleteBuildsAzureRequest(t *testing.T) {
	client := NewInferenceClient(newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/openai/deployments/gpt-4o/chat/completions" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		if req.URL.Query().Get("api-version") != "2024-02-15-preview" {
			t.Fatalf("unexpected api-version: %s", req.URL.RawQuery)
		}
		if req.Header.Get("api-key") != "k-123" {
			t.Fatalf("api-key header missing")
		}
		var body map[string]any
		data, _ := io.ReadAll(req.Body)
		if err := json.Unmarshal(data, &body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body["max_tokens"].(float64) != 400 || body["temperature"].(float64) != 0.2 {
			t.Fatalf("unexpected sampling controls: %v", body)
		}
		if rf, ok := body["response_format"].(map[string]any); !ok || rf["type"] != "json_object" {
			t.Fatalf("json mode not requested: %v", body)
		}
		msgs := body["messages"].([]any)
		if msgs[0].(map[string]any)["content"] != "You output only JSON." {
			t.Fatalf("unexpected system message: %v", msgs[0])
		}
		return jsonResponse(http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"{\"simplified_error\":\"s\"}"}}]}`), nil
	})))

	content, err := client.Complete(context.Background(), testDeployment, CompletionRequest{
		System:      "You output only JSON.",
		User:        "prompt",
		Temperature: 0.2,
		MaxTokens:   400,
		JSONMode:    true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content != `{"simplified_error":"s"}` {
		t.Fatalf("unexpected content: %s", content)
	}
}

func TestCompleteEndpointWithoutTrailingSlash(t *testing.T) {
	d := testDeployment
	d.Endpoint = "https://contoso.openai.azure.com"
	if got := completionsURL(d); !strings.HasPrefix(got, "https://contoso.openai.azure.com/openai/deployments/gpt-4o/chat/completions?") {
		t.Fatalf("unexpected url: %s", got)
	}
}

func TestCompleteErrorKinds(t *testing.T) {
	cases := []struct {
		name  string
		rt    roundTripFunc
		check func(error) bool
	}{
		{
			name: "transport",
			rt: func(*http.Request) (*http.Response, error) {
				return nil, &net.OpError{Op: "dial", Err: errors.New("connection refused")}
			},
			check: func(err error) bool { var e *TransportError; return errors.As(err, &e) },
		},
		{
			name: "status",
			rt: func(*http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusInternalServerError, `{"error":"boom"}`), nil
			},
			check: func(err error) bool {
				var e *StatusError
				return errors.As(err, &e) && e.StatusCode == 500 && strings.Contains(e.Body, "boom")
			},
		},
		{
			name: "envelope",
			rt: func(*http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK, `not json`), nil
			},
			check: func(err error) bool { var e *DecodeError; return errors.As(err, &e) },
		},
		{
			name: "no choices",
			rt: func(*http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK, `{"choices":[]}`), nil
			},
			check: func(err error) bool { return errors.Is(err, ErrNoChoices) },
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := NewInferenceClient(newTestClient(tc.rt))
			_, err := client.Complete(context.Background(), testDeployment, CompletionRequest{User: "x"})
			if err == nil || !tc.check(err) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestPing(t *testing.T) {
	long := bytes.Repeat([]byte("a"), 400)
	client := NewInferenceClient(newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		data, _ := io.ReadAll(req.Body)
		if !bytes.Contains(data, []byte(`"max_tokens":1`)) {
			t.Fatalf("ping must request a single token: %s", data)
		}
		return jsonResponse(http.StatusUnauthorized, string(long)), nil
	})))

	res, err := client.Ping(context.Background(), testDeployment)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OK || res.StatusCode != http.StatusUnauthorized || len(res.BodyStart) != 180 {
		t.Fatalf("unexpected ping result: %+v", res)
	}
}
