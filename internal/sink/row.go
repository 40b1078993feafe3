package sink

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/subhajitdharMS/ErrorDecodeAI/internal/models"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/utils"
)

// MaxFieldLength caps every string column of a log row.
const MaxFieldLength = 4000

// Headers is the column order shared by every backend.
var Headers = []string{
	"timestamp",
	"pipelineName",
	"runId",
	"activityName",
	"errorCode",
	"environment",
	"source",
	"component",
	"severity",
	"correlationId",
	"region",
	"resourceUrl",
	"simplified_error",
	"probable_reason",
	"probable_fix",
	"confidence",
}

var newlineReplacer = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// Row renders rec in Headers order. Newlines are flattened and long values capped.
func Row(rec models.NotificationRecord) []string {
	return []string{
		utils.ISOTimestamp(rec.ReceivedAt),
		clean(rec.PipelineName),
		clean(rec.RunID),
		clean(rec.ActivityName),
		clean(rec.ErrorCode),
		clean(rec.Environment),
		clean(rec.Source),
		clean(rec.Component),
		clean(rec.Severity),
		clean(rec.CorrelationID),
		clean(rec.Region),
		clean(rec.ResourceURL),
		clean(rec.Diagnosis.SimplifiedError),
		clean(rec.Diagnosis.ProbableReason),
		clean(rec.Diagnosis.ProbableFix),
		fmt.Sprintf("%.2f", rec.Diagnosis.Confidence),
	}
}

func clean(v string) string {
	v = newlineReplacer.Replace(v)
	runes := []rune(v)
	if len(runes) > MaxFieldLength {
		return string(runes[:MaxFieldLength])
	}
	return v
}

// encodeCSV renders rows as RFC 4180 lines terminated by \r\n.
func encodeCSV(rows ...[]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = true
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
