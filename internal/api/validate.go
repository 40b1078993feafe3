package api

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/subhajitdharMS/ErrorDecodeAI/internal/models"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/utils"
)

//go:embed schema/failure_report.schema.json
var failureReportSchema []byte

const failureReportSchemaURL = "mem://errordecode/failure_report.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func reportSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(failureReportSchema))
		if err != nil {
			schemaErr = fmt.Errorf("parse report schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(failureReportSchemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("add report schema: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(failureReportSchemaURL)
	})
	return compiledSchema, schemaErr
}

// reportPayload is the wire shape of a FailureReport. JSON null leaves a field empty.
type reportPayload struct {
	PipelineName  string   `json:"pipelineName"`
	RunID         string   `json:"runId"`
	ActivityName  string   `json:"activityName"`
	ErrorMessage  string   `json:"errorMessage"`
	ErrorCode     string   `json:"errorCode"`
	Timestamp     string   `json:"timestamp"`
	Environment   string   `json:"environment"`
	Source        string   `json:"source"`
	ResourceURL   string   `json:"resourceUrl"`
	Component     string   `json:"component"`
	Severity      string   `json:"severity"`
	Tags          []string `json:"tags"`
	CorrelationID string   `json:"correlationId"`
	Region        string   `json:"region"`
}

// DecodeReport validates data against the FailureReport schema and the
// field rules, returning *models.ValidationError on any problem.
func DecodeReport(data []byte) (models.FailureReport, error) {
	sch, err := reportSchema()
	if err != nil {
		return models.FailureReport{}, err
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return models.FailureReport{}, &models.ValidationError{Field: "body", Reason: "malformed JSON"}
	}
	if err := sch.Validate(doc); err != nil {
		return models.FailureReport{}, &models.ValidationError{Field: "body", Reason: schemaReason(err)}
	}

	var payload reportPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return models.FailureReport{}, &models.ValidationError{Field: "body", Reason: err.Error()}
	}

	report := models.FailureReport{
		PipelineName:  payload.PipelineName,
		RunID:         payload.RunID,
		ActivityName:  payload.ActivityName,
		ErrorMessage:  payload.ErrorMessage,
		ErrorCode:     payload.ErrorCode,
		Environment:   payload.Environment,
		Source:        payload.Source,
		ResourceURL:   payload.ResourceURL,
		Component:     payload.Component,
		Severity:      payload.Severity,
		Tags:          payload.Tags,
		CorrelationID: payload.CorrelationID,
		Region:        payload.Region,
	}
	if payload.Timestamp != "" {
		ts, err := utils.ParseRFC3339(payload.Timestamp)
		if err != nil {
			return models.FailureReport{}, &models.ValidationError{Field: "timestamp", Reason: "must be an RFC3339 date-time"}
		}
		report.Timestamp = &ts
	}
	if err := report.Validate(); err != nil {
		return models.FailureReport{}, err
	}
	return report, nil
}

func schemaReason(err error) string {
	lines := strings.Split(strings.TrimSpace(err.Error()), "\n")
	causes := make([]string, 0, len(lines))
	for _, line := range lines[1:] {
		if line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-")); line != "" {
			causes = append(causes, line)
		}
	}
	if len(causes) == 0 {
		return lines[0]
	}
	return strings.Join(causes, "; ")
}
