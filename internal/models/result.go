package models

// Status is the outcome reported for a handled FailureReport.
type Status string

const (
	// StatusAnalysisOnly means no channel was contacted.
	StatusAnalysisOnly Status = "analysis_only"
	// StatusSent means every configured channel accepted the notification.
	StatusSent Status = "sent"
)

// Metadata echoes the routing fields of the handled report.
type Metadata struct {
	RequestID     string   `json:"requestId"`
	PipelineName  string   `json:"pipelineName"`
	RunID         string   `json:"runId,omitempty"`
	ActivityName  string   `json:"activityName,omitempty"`
	ErrorCode     string   `json:"errorCode,omitempty"`
	Environment   string   `json:"environment,omitempty"`
	Source        string   `json:"source,omitempty"`
	ResourceURL   string   `json:"resourceUrl,omitempty"`
	Component     string   `json:"component,omitempty"`
	Severity      string   `json:"severity,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	CorrelationID string   `json:"correlationId,omitempty"`
	Region        string   `json:"region,omitempty"`
	LogLocation   string   `json:"logLocation,omitempty"`
}

// Result is returned for every successfully handled report.
type Result struct {
	Status    Status    `json:"status"`
	Metadata  Metadata  `json:"metadata"`
	Diagnosis Diagnosis `json:"analysis"`
}

// MetadataFor copies the routing fields of rec.
func MetadataFor(requestID string, rec NotificationRecord, logLocation string) Metadata {
	return Metadata{
		RequestID:     requestID,
		PipelineName:  rec.PipelineName,
		RunID:         rec.RunID,
		ActivityName:  rec.ActivityName,
		ErrorCode:     rec.ErrorCode,
		Environment:   rec.Environment,
		Source:        rec.Source,
		ResourceURL:   rec.ResourceURL,
		Component:     rec.Component,
		Severity:      rec.Severity,
		Tags:          append([]string(nil), rec.Tags...),
		CorrelationID: rec.CorrelationID,
		Region:        rec.Region,
		LogLocation:   logLocation,
	}
}
