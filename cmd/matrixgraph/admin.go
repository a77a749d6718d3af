package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/orneryd/matrixgraph/pkg/config"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored graphs",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			names, err := s.List()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newDropCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "drop [graph]",
		Short: "Delete a stored graph",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := a.cfg.Database.Graph
			if len(args) == 1 {
				name = args[0]
			}
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Delete(name); err != nil {
				return err
			}
			a.logger.Info("graph dropped", "graph", name)
			return nil
		},
	}
}

func newBackupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backup <file>",
		Short: "Write a full backup of the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Backup(args[0]); err != nil {
				return err
			}
			fi, err := os.Stat(args[0])
			if err != nil {
				return err
			}
			size := config.FormatMemorySize(fi.Size())
			a.logger.Info("backup written", "file", args[0], "size", size)
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", args[0], size)
			return nil
		},
	}
}

func newRestoreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <file>",
		Short: "Load a backup into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Restore(args[0]); err != nil {
				return err
			}
			a.logger.Info("backup restored", "file", args[0])
			return nil
		},
	}
}
