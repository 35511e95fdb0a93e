package main

import (
	"github.com/spf13/cobra"
)

// newRootCmd builds the command tree. Running without a subcommand is the same
// as "run".
func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "event-ingest",
		Short:         "Ingest the remote event stream into PostgreSQL",
		Version:       version + " (" + commit + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), cfgFile)
		},
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML); INGEST_ env vars override it")

	root.AddCommand(
		newRunCmd(&cfgFile),
		newMigrateCmd(&cfgFile),
		newStatusCmd(&cfgFile),
		newExportIDsCmd(&cfgFile),
	)
	return root
}

func newRunCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Ingest until the target event count is reached",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), *cfgFile)
		},
	}
}

func newMigrateCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and create the checkpoint record",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), *cfgFile)
		},
	}
}

func newStatusCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the checkpoint and the number of stored events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), *cfgFile, cmd.OutOrStdout())
		},
	}
}

func newExportIDsCmd(cfgFile *string) *cobra.Command {
	var (
		out      string
		pageSize int
	)

	cmd := &cobra.Command{
		Use:   "export-ids",
		Short: "Write every stored event id, one per line",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExportIDs(cmd.Context(), *cfgFile, out, pageSize, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().IntVar(&pageSize, "page-size", 10000, "ids read per query")
	return cmd
}
