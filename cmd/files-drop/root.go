package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "files-drop",
		Short:         "A minimal network file store",
		Long:          "files-drop stores uploaded files in one directory and serves them back over HTTP.\nConfiguration is read from FILES_DROP_* environment variables and an optional .env file.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCmd(), newLsCmd(), newRmCmd())

	return cmd
}
