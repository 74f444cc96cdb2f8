package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"avatarforge/internal/staging"
)

func newStagingCommand(ctx *commandContext) *cobra.Command {
	stagingCmd := &cobra.Command{
		Use:   "staging",
		Short: "Manage render workspaces under the results directory",
	}
	stagingCmd.AddCommand(newStagingCleanCommand(ctx))
	return stagingCmd
}

func newStagingCleanCommand(ctx *commandContext) *cobra.Command {
	var maxAge time.Duration
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove workspaces left behind by crashed renders",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.cliLogger(cfg)
			if err != nil {
				return err
			}
			age := maxAge
			if age <= 0 {
				age = cfg.StaleWorkspaceAge()
			}
			manager, err := staging.NewManager(cfg.Paths.ResultsDir, logger)
			if err != nil {
				return err
			}

			result := manager.CleanStale(cmd.Context(), age)
			out := cmd.OutOrStdout()
			for _, path := range result.Removed {
				fmt.Fprintf(out, "removed %s\n", path)
			}
			fmt.Fprintf(out, "Removed %d workspaces older than %s\n", len(result.Removed), age)
			if len(result.Errors) > 0 {
				for _, failure := range result.Errors {
					fmt.Fprintf(cmd.ErrOrStderr(), "failed to remove %s: %v\n", failure.Path, failure.Error)
				}
				return fmt.Errorf("%d workspaces could not be removed", len(result.Errors))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Only remove workspaces older than this (default job.stale_workspace_hours)")
	return cmd
}
