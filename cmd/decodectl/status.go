package main

import (
	"context"

	"github.com/spf13/cobra"
)

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show service health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatusCall(cmd, "GET", "/healthz")
		},
	}
}

func diagnoseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Probe the inference deployment through the service",
		Long: `Ask the service to send a one-token request to its inference
deployment and report the outcome.

Examples:
  decodectl diagnose -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatusCall(cmd, "GET", "/diagnostics/openai")
		},
	}
}

func reloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload service configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatusCall(cmd, "POST", "/diagnostics/reload-settings")
		},
	}
}

func runStatusCall(cmd *cobra.Command, method, path string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	var out map[string]any
	if err := newRESTClient().do(ctx, method, path, nil, nil, &out); err != nil {
		return err
	}
	return printMap(cmd.OutOrStdout(), out)
}
