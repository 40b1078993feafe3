package models

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultEnvironment is applied when a report omits the environment.
	DefaultEnvironment = "prod"
	// DefaultSeverity is applied when a report omits the severity.
	DefaultSeverity = "error"
)

// FailureReport is the inbound description of a pipeline or service failure.
// Empty strings mean the optional field was not supplied.
type FailureReport struct {
	PipelineName  string     `json:"pipelineName"`
	RunID         string     `json:"runId,omitempty"`
	ActivityName  string     `json:"activityName,omitempty"`
	ErrorMessage  string     `json:"errorMessage"`
	ErrorCode     string     `json:"errorCode,omitempty"`
	Timestamp     *time.Time `json:"timestamp,omitempty"`
	Environment   string     `json:"environment,omitempty"`
	Source        string     `json:"source,omitempty"`
	ResourceURL   string     `json:"resourceUrl,omitempty"`
	Component     string     `json:"component,omitempty"`
	Severity      string     `json:"severity,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
	CorrelationID string     `json:"correlationId,omitempty"`
	Region        string     `json:"region,omitempty"`
}

// ValidationError reports a malformed or incomplete FailureReport.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validate checks the required fields and the resource URL shape.
func (r FailureReport) Validate() error {
	if strings.TrimSpace(r.PipelineName) == "" {
		return &ValidationError{Field: "pipelineName", Reason: "must not be empty"}
	}
	if strings.TrimSpace(r.ErrorMessage) == "" {
		return &ValidationError{Field: "errorMessage", Reason: "must not be empty"}
	}
	if r.ResourceURL != "" {
		u, err := url.Parse(r.ResourceURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return &ValidationError{Field: "resourceUrl", Reason: "must be an absolute http(s) URL"}
		}
	}
	return nil
}

// Normalized returns a copy with defaults applied and duplicate tags removed.
func (r FailureReport) Normalized() FailureReport {
	out := r
	if out.Environment == "" {
		out.Environment = DefaultEnvironment
	}
	if out.Severity == "" {
		out.Severity = DefaultSeverity
	}
	out.Tags = dedupeTags(r.Tags)
	return out
}

func dedupeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
