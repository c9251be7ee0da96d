package main

import (
	"errors"
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pavel-fokin/files-drop/internal/files"
	"github.com/pavel-fokin/files-drop/internal/fs"
	"github.com/pavel-fokin/files-drop/internal/server"
)

func openStorage() (*fs.Storage, error) {
	cfg, err := server.LoadConfig()
	if err != nil {
		return nil, err
	}
	return server.NewStorage(cfg)
}

func newLsCmd() *cobra.Command {
	var long bool

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List stored files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			storage, err := openStorage()
			if err != nil {
				return err
			}

			names, err := storage.List()
			if err != nil {
				return err
			}
			slices.Sort(names)

			if !long {
				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, name := range names {
				file, err := storage.Stat(name)
				if errors.Is(err, files.ErrNotFound) {
					// Removed since the listing, or not a regular file.
					continue
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", humanize.IBytes(uint64(file.Size)), file.ModTime.Format("2006-01-02 15:04:05"), file.Name)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVarP(&long, "long", "l", false, "show size and modification time")

	return cmd
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm NAME...",
		Short: "Remove stored files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			storage, err := openStorage()
			if err != nil {
				return err
			}

			for _, name := range args {
				if err := storage.Remove(name); err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", name)
			}
			return nil
		},
	}
}
