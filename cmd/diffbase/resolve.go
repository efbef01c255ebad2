package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/izavyalov-dev/diffbase/resolver"
)

func newResolveCmd(flags *rootFlags) *cobra.Command {
	resolveCmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a diff base and print it as JSON",
	}

	operations := []struct {
		operation string
		short     string
	}{
		{resolver.OperationGolden, "Resolve the golden base (CI revision, else the configured base)"},
		{resolver.OperationSnapshot, "Resolve the snapshot base (CI revision, else HEAD)"},
		{resolver.OperationMaster, "Resolve the branch the golden base's pull request targets"},
	}
	for _, op := range operations {
		operation := op.operation
		resolveCmd.AddCommand(&cobra.Command{
			Use:   operation,
			Short: op.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runResolve(cmd, flags, operation, "")
			},
		})
	}
	resolveCmd.AddCommand(&cobra.Command{
		Use:   "ref <specifier>",
		Short: "Resolve an explicit specifier (URL, manifest path or ref[:path])",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, flags, resolver.OperationRef, args[0])
		},
	})
	return resolveCmd
}

func runResolve(cmd *cobra.Command, flags *rootFlags, operation, raw string) error {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg, os.Environ(), false)
	if err != nil {
		return err
	}
	defer a.Close()
	defer a.writeMetrics()

	base, err := resolver.Dispatch(ctx, a.service, operation, raw)
	if err != nil {
		a.logger.Error("resolve failed", "event", "resolve_failed", "operation", operation, "error", err)
		return err
	}
	a.record(ctx, operation, base)

	output, err := json.MarshalIndent(base, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(output))
	return nil
}
