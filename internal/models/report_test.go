package models

import (
	"errors"
	"testing"
	"time"
)

func TestFailureReportValidate(t *testing.T) {
	cases := []struct {
		name   string
		report FailureReport
		field  string
	}{
		{name: "ok", report: FailureReport{PipelineName: "Pipe", ErrorMessage: "boom"}},
		{name: "missing pipeline", report: FailureReport{PipelineName: "  ", ErrorMessage: "boom"}, field: "pipelineName"},
		{name: "missing error", report: FailureReport{PipelineName: "Pipe"}, field: "errorMessage"},
		{name: "relative url", report: FailureReport{PipelineName: "Pipe", ErrorMessage: "boom", ResourceURL: "/runs/1"}, field: "resourceUrl"},
		{name: "ftp url", report: FailureReport{PipelineName: "Pipe", ErrorMessage: "boom", ResourceURL: "ftp://host/run"}, field: "resourceUrl"},
		{name: "https url", report: FailureReport{PipelineName: "Pipe", ErrorMessage: "boom", ResourceURL: "https://adf.example.com/runs/1"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.report.Validate()
			if tc.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("expected field %s, got %s", tc.field, verr.Field)
			}
		})
	}
}

func TestFailureReportNormalized(t *testing.T) {
	report := FailureReport{PipelineName: "Pipe", ErrorMessage: "boom", Tags: []string{"a", "b", "a", "c", "b"}}
	out := report.Normalized()

	if out.Environment != DefaultEnvironment || out.Severity != DefaultSeverity {
		t.Fatalf("defaults not applied: %+v", out)
	}
	want := []string{"a", "b", "c"}
	if len(out.Tags) != len(want) {
		t.Fatalf("expected tags %v, got %v", want, out.Tags)
	}
	for i := range want {
		if out.Tags[i] != want[i] {
			t.Fatalf("expected tags %v, got %v", want, out.Tags)
		}
	}
	if len(report.Tags) != 5 {
		t.Fatalf("original report mutated: %v", report.Tags)
	}
}

func TestNewNotificationRecordCopiesTags(t *testing.T) {
	report := FailureReport{PipelineName: "Pipe", ErrorMessage: "boom", Tags: []string{"etl"}}
	rec := NewNotificationRecord(report, Diagnosis{SimplifiedError: "s"}, time.Now())
	report.Tags[0] = "changed"

	if rec.Tags[0] != "etl" {
		t.Fatalf("record aliases report tags: %v", rec.Tags)
	}
	if rec.RawError != "boom" || rec.Diagnosis.SimplifiedError != "s" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestClampConfidence(t *testing.T) {
	for in, want := range map[float64]float64{-0.5: 0, 0: 0, 0.42: 0.42, 1: 1, 7: 1} {
		if got := ClampConfidence(in); got != want {
			t.Fatalf("ClampConfidence(%v) = %v, want %v", in, got, want)
		}
	}
}
