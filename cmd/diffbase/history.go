package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/izavyalov-dev/diffbase/internal/observability"
	"github.com/izavyalov-dev/diffbase/state"
)

func newHistoryCmd(flags *rootFlags) *cobra.Command {
	var (
		limit     int
		operation string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently recorded diff bases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("database-url or DATABASE_URL required")
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			db, err := state.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			store := state.NewStore(db)
			if err := store.ApplyMigrations(ctx); err != nil {
				return err
			}
			resolutions, err := store.ListResolutions(ctx, operation, limit)
			if err != nil {
				return err
			}
			return printHistory(cmd, resolutions)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", state.DefaultHistoryLimit, "Maximum number of records")
	cmd.Flags().StringVar(&operation, "operation", "", "Only list this operation")
	return cmd
}

func printHistory(cmd *cobra.Command, resolutions []state.Resolution) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tOPERATION\tTYPE\tCOMMIT\tPR\tINPUT")
	for _, r := range resolutions {
		commit, pr := "-", "-"
		if r.CommitSHA != nil {
			commit = observability.ShortCommit(*r.CommitSHA)
		}
		if r.PRNumber != nil {
			pr = fmt.Sprintf("#%d", *r.PRNumber)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"), r.Operation, r.Type, commit, pr, r.InputString)
	}
	return w.Flush()
}
