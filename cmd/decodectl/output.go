package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/subhajitdharMS/ErrorDecodeAI/internal/models"
)

func printResult(w io.Writer, result models.Result) error {
	switch outputFmt {
	case "json", "yaml":
		return printStructured(w, result)
	case "table":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "STATUS\t%s\n", result.Status)
		fmt.Fprintf(tw, "REQUEST ID\t%s\n", result.Metadata.RequestID)
		fmt.Fprintf(tw, "PIPELINE\t%s\n", result.Metadata.PipelineName)
		fmt.Fprintf(tw, "SIMPLIFIED\t%s\n", result.Diagnosis.SimplifiedError)
		fmt.Fprintf(tw, "REASON\t%s\n", result.Diagnosis.ProbableReason)
		fmt.Fprintf(tw, "FIX\t%s\n", result.Diagnosis.ProbableFix)
		fmt.Fprintf(tw, "CONFIDENCE\t%.2f\n", result.Diagnosis.Confidence)
		if result.Metadata.LogLocation != "" {
			fmt.Fprintf(tw, "LOGGED TO\t%s\n", result.Metadata.LogLocation)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q", outputFmt)
	}
}

func printMap(w io.Writer, m map[string]any) error {
	switch outputFmt {
	case "json", "yaml":
		return printStructured(w, m)
	case "table":
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, k := range keys {
			fmt.Fprintf(tw, "%s\t%v\n", strings.ToUpper(k), m[k])
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q", outputFmt)
	}
}

// printStructured goes through JSON first so YAML keys match the API field names.
func printStructured(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if outputFmt == "json" {
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}
	out, err := yaml.Marshal(generic)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}
