package main

import (
	"github.com/spf13/cobra"

	"github.com/genbatch/pipeline/internal/app"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the coordinator's HTTP API in-process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run(cmd.Context())
		},
	}
}
