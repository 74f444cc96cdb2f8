package main

import (
	"github.com/spf13/cobra"

	"avatarforge/internal/daemon"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the render API and job runner in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemon.Run(cmd.Context(), cfg)
		},
	}
}
