package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"avatarforge/internal/app"
	"avatarforge/internal/jobstate"
	"avatarforge/internal/workflow"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current render job",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(runCtx context.Context, a *app.App) error {
				status := a.Manager.Status(runCtx)
				if asJSON {
					return writeStatusJSON(cmd.OutOrStdout(), status)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderJobStatus(status, shouldColorize(cmd.OutOrStdout())))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the status record as JSON")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the running render job",
		Long: "Cancel the running render job. Cancelling a chatbot job discards both\n" +
			"of its videos, so it requires --yes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(runCtx context.Context, a *app.App) error {
				out := cmd.OutOrStdout()
				result, err := a.Manager.RequestCancel(runCtx, confirm)
				if errors.Is(err, workflow.ErrConfirmationRequired) {
					return fmt.Errorf("job %s renders %s; rerun with --yes to cancel it", result.JobID, joinRefs(result.Targets))
				}
				if err != nil {
					return err
				}
				switch {
				case result.JobID == "":
					fmt.Fprintln(out, "No render job is running")
				case result.Requested:
					fmt.Fprintf(out, "Cancellation requested for job %s (%s)\n", result.JobID, joinRefs(result.Targets))
				case result.Degraded:
					return fmt.Errorf("job %s could not be flagged: the status database is unreachable", result.JobID)
				default:
					fmt.Fprintf(out, "Job %s could not be flagged for cancellation\n", result.JobID)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&confirm, "yes", "y", false, "Confirm cancelling a chatbot job")
	return cmd
}

// writeStatusJSON prints the record in the shape GET /api/render/status
// serves, so scripts can switch between the CLI and the daemon.
func writeStatusJSON(w io.Writer, status jobstate.JobStatus) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(status)
}
