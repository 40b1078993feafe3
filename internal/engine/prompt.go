package engine

import (
	"strings"
	"text/template"

	"github.com/subhajitdharMS/ErrorDecodeAI/internal/models"
)

// SystemInstruction is sent with every diagnosis request.
const SystemInstruction = "You output only JSON."

const notApplicable = "N/A"

var promptTemplate = template.Must(template.New("prompt").Parse(`You are an assistant that analyzes failure messages across Azure Data Factory, Synapse, Fabric, Databricks, Spark, Kubernetes, generic apps and services.
Return a concise JSON with keys: simplified_error, probable_reason, probable_fix.
Add a numeric field 'confidence' between 0 and 1 indicating how confident you are in the analysis.
Keep each value under 400 characters, no markdown, no extra keys.

Context:
Pipeline Name: {{.Pipeline}}
Activity: {{.Activity}}
Error Code: {{.ErrorCode}}
Environment: {{.Environment}}
Source: {{.Source}}
Component: {{.Component}}
Severity: {{.Severity}}
Correlation Id: {{.CorrelationID}}
Region: {{.Region}}
Resource URL: {{.ResourceURL}}
Raw Error: {{.Error}}
`))

type promptData struct {
	Pipeline      string
	Activity      string
	ErrorCode     string
	Environment   string
	Source        string
	Component     string
	Severity      string
	CorrelationID string
	Region        string
	ResourceURL   string
	Error         string
}

// BuildPrompt renders the user prompt for report. The raw error is redacted
// and absent optional fields are rendered as N/A.
func BuildPrompt(report models.FailureReport, redactor *Redactor) string {
	data := promptData{
		Pipeline:      report.PipelineName,
		Activity:      orNA(report.ActivityName),
		ErrorCode:     orNA(report.ErrorCode),
		Environment:   orNA(report.Environment),
		Source:        orNA(report.Source),
		Component:     orNA(report.Component),
		Severity:      orNA(report.Severity),
		CorrelationID: orNA(report.CorrelationID),
		Region:        orNA(report.Region),
		ResourceURL:   orNA(report.ResourceURL),
		Error:         redactor.Redact(report.ErrorMessage),
	}
	var b strings.Builder
	_ = promptTemplate.Execute(&b, data)
	return b.String()
}

func orNA(v string) string {
	if strings.TrimSpace(v) == "" {
		return notApplicable
	}
	return v
}
