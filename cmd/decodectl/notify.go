package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/subhajitdharMS/ErrorDecodeAI/internal/api"
	"github.com/subhajitdharMS/ErrorDecodeAI/internal/models"
)

func notifyCmd() *cobra.Command {
	var (
		file         string
		analysisOnly bool
		useGRPC      bool
	)

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Submit a failure report",
		Long: `Submit a FailureReport JSON document and print the diagnosis.

The report is validated locally before it is sent.

Examples:
  # Diagnose and notify Teams and email
  decodectl notify -f report.json

  # Diagnose only, over gRPC
  decodectl notify -f report.json --analysis-only --grpc

  # Read the report from stdin
  cat report.json | decodectl notify -f -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readReport(cmd, file)
			if err != nil {
				return err
			}
			report, err := api.DecodeReport(data)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			var result models.Result
			if useGRPC {
				result, err = notifyGRPC(ctx, report, analysisOnly)
			} else {
				result, err = notifyREST(ctx, data, analysisOnly)
			}
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to the report JSON, or - for stdin (required)")
	cmd.Flags().BoolVar(&analysisOnly, "analysis-only", false, "Return the diagnosis without contacting any channel")
	cmd.Flags().BoolVar(&useGRPC, "grpc", false, "Use the gRPC API instead of REST")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func readReport(cmd *cobra.Command, file string) ([]byte, error) {
	if file == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	return data, nil
}

func notifyREST(ctx context.Context, body []byte, analysisOnly bool) (models.Result, error) {
	query := url.Values{}
	if analysisOnly {
		query.Set("return_only", strconv.FormatBool(true))
	}
	var result models.Result
	err := newRESTClient().do(ctx, "POST", "/api/v1/notify", query, body, &result)
	return result, err
}

func notifyGRPC(ctx context.Context, report models.FailureReport, analysisOnly bool) (models.Result, error) {
	conn, err := grpc.NewClient(grpcAddress, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return models.Result{}, fmt.Errorf("dial %s: %w", grpcAddress, err)
	}
	defer conn.Close()

	req, err := api.ToStructNotifyRequest(report, analysisOnly)
	if err != nil {
		return models.Result{}, err
	}
	resp, err := api.NewNotifierClient(conn).Notify(api.WithAPIKey(ctx, apiKey), req)
	if err != nil {
		return models.Result{}, fmt.Errorf("notify: %w", err)
	}
	return api.FromStructResult(resp)
}
