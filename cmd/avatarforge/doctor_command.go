package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"avatarforge/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, render tools and the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			results := preflight.RunAll(cmd.Context(), cfg)
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				rows = append(rows, []string{r.Name, checkLabel(r, colorize), r.Detail})
			}
			fmt.Fprintf(out, "Config: %s\n", ctx.configPath)
			fmt.Fprintln(out, renderTable([]string{"Check", "Result", "Detail"}, rows))

			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d of %d checks failed", len(failed), len(results))
			}
			fmt.Fprintf(out, "All required checks passed (%s)\n", time.Now().Format(time.DateTime))
			return nil
		},
	}
}

func checkLabel(r preflight.Result, colorize bool) string {
	label, color := "OK", ansiGreen
	switch {
	case r.Passed:
	case r.Optional:
		label, color = "SKIP", ansiYellow
	default:
		label, color = "FAIL", ansiRed
	}
	if colorize {
		return color + label + ansiReset
	}
	return label
}
