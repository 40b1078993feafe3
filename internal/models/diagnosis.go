package models

import "time"

// DefaultConfidence is used when neither the backend nor configuration supplies one.
const DefaultConfidence = 0.6

// Diagnosis explains a failure, produced by the inference backend or a fallback.
type Diagnosis struct {
	SimplifiedError string  `json:"simplified_error"`
	ProbableReason  string  `json:"probable_reason"`
	ProbableFix     string  `json:"probable_fix"`
	Confidence      float64 `json:"confidence"`
}

// ClampConfidence bounds c to [0,1].
func ClampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

// NotificationRecord pairs the routing context of a report with its Diagnosis.
// It is the unit handed to the log sink and every channel.
type NotificationRecord struct {
	PipelineName  string
	RunID         string
	ActivityName  string
	ErrorCode     string
	Environment   string
	Source        string
	ResourceURL   string
	Component     string
	Severity      string
	Tags          []string
	CorrelationID string
	Region        string
	RawError      string
	Diagnosis     Diagnosis
	ReceivedAt    time.Time
}

// NewNotificationRecord builds the record for a normalized report.
func NewNotificationRecord(report FailureReport, diagnosis Diagnosis, receivedAt time.Time) NotificationRecord {
	return NotificationRecord{
		PipelineName:  report.PipelineName,
		RunID:         report.RunID,
		ActivityName:  report.ActivityName,
		ErrorCode:     report.ErrorCode,
		Environment:   report.Environment,
		Source:        report.Source,
		ResourceURL:   report.ResourceURL,
		Component:     report.Component,
		Severity:      report.Severity,
		Tags:          append([]string(nil), report.Tags...),
		CorrelationID: report.CorrelationID,
		Region:        report.Region,
		RawError:      report.ErrorMessage,
		Diagnosis:     diagnosis,
		ReceivedAt:    receivedAt,
	}
}
