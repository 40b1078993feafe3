// decodectl is a CLI for the errordecode service.
//
// Usage:
//
//	decodectl notify -f report.json
//	decodectl notify -f report.json --analysis-only --grpc
//	decodectl health
//	decodectl diagnose
//	decodectl reload
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	version     = "dev"
	serverURL   string
	grpcAddress string
	apiKey      string
	outputFmt   string
	timeout     time.Duration
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "decodectl",
		Short: "Send failure reports to errordecode and inspect the service",
		Long: `decodectl talks to a running errordecode service.

It submits FailureReport documents over REST or gRPC and prints the
diagnosis, and it exposes the health, diagnostics and reload endpoints.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("ERRORDECODE_URL", "http://localhost:8080"), "Base URL of the REST API")
	rootCmd.PersistentFlags().StringVar(&grpcAddress, "grpc-address", envOr("ERRORDECODE_GRPC_ADDRESS", "localhost:50051"), "gRPC address of the service")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("API_KEY"), "Shared API key")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 60*time.Second, "Request timeout")

	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(diagnoseCmd())
	rootCmd.AddCommand(reloadCmd())
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
