package api

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/subhajitdharMS/ErrorDecodeAI/internal/models"
)

// Field names of the Notify request envelope.
const (
	fieldReport       = "report"
	fieldAnalysisOnly = "analysisOnly"
)

// FromStructNotifyRequest maps the gRPC envelope into a validated report and
// the analysis-only flag.
func FromStructNotifyRequest(req *structpb.Struct) (models.FailureReport, bool, error) {
	if req == nil {
		return models.FailureReport{}, false, fmt.Errorf("request is nil")
	}
	fields := req.GetFields()
	report := fields[fieldReport].GetStructValue()
	if report == nil {
		return models.FailureReport{}, false, &models.ValidationError{Field: fieldReport, Reason: "must be an object"}
	}

	data, err := protojson.Marshal(report)
	if err != nil {
		return models.FailureReport{}, false, fmt.Errorf("encode report: %w", err)
	}
	decoded, err := DecodeReport(data)
	if err != nil {
		return models.FailureReport{}, false, err
	}
	analysisOnly, err := boolField(fields, fieldAnalysisOnly)
	if err != nil {
		return models.FailureReport{}, false, err
	}
	return decoded, analysisOnly, nil
}

// boolField reads an optional bool. Null or absent is false; any other kind is rejected.
func boolField(fields map[string]*structpb.Value, name string) (bool, error) {
	v, ok := fields[name]
	if !ok || v == nil {
		return false, nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_BoolValue:
		return kind.BoolValue, nil
	case *structpb.Value_NullValue:
		return false, nil
	default:
		return false, &models.ValidationError{Field: name, Reason: "must be a boolean"}
	}
}

// ToStructNotifyRequest builds the envelope a client sends.
func ToStructNotifyRequest(report models.FailureReport, analysisOnly bool) (*structpb.Struct, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return structpb.NewStruct(map[string]any{
		fieldReport:       body,
		fieldAnalysisOnly: analysisOnly,
	})
}

// ToStructResult renders a Result with the same field names as the REST response.
func ToStructResult(res models.Result) (*structpb.Struct, error) {
	data, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("convert result: %w", err)
	}
	return out, nil
}

// FromStructResult is the client side of ToStructResult.
func FromStructResult(s *structpb.Struct) (models.Result, error) {
	if s == nil {
		return models.Result{}, fmt.Errorf("response is nil")
	}
	data, err := protojson.Marshal(s)
	if err != nil {
		return models.Result{}, fmt.Errorf("encode response: %w", err)
	}
	var res models.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return models.Result{}, fmt.Errorf("decode response: %w", err)
	}
	return res, nil
}
