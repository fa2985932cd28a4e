package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/macprof-analysis/internal/analyzer"
	"github.com/macprof-analysis/internal/repository"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List analysis runs recorded in the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Database.Enabled {
			return fmt.Errorf("database is not enabled in the configuration")
		}
		db, err := repository.Open(&cfg.Database, cfg.Telemetry.Enabled)
		if err != nil {
			return err
		}
		defer repository.Close(db)
		if err := repository.Migrate(db); err != nil {
			return err
		}

		runs, err := repository.NewGormRunRepository(db).ListRuns(cmd.Context(), runsLimit)
		if err != nil {
			return err
		}

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"Run", "Analyzed", "Model", "Backend", "Usable", "Unusable"})
		table.SetBorder(false)
		for _, r := range runs {
			table.Append([]string{
				r.RunID,
				humanize.Time(r.AnalyzedAt),
				r.Model,
				string(r.Backend),
				humanize.Comma(int64(r.UsableStacks)),
				humanize.Comma(int64(r.UnusableStacks)),
			})
		}
		table.Render()
		return nil
	},
}

var backendsCmd = &cobra.Command{
	Use:                "backends",
	Short:              "List symbolization backends",
	Args:               cobra.NoArgs,
	PersistentPreRunE:  func(*cobra.Command, []string) error { return nil },
	PersistentPostRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		for _, b := range analyzer.AllBackends() {
			fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n%-10s uses %s\n", b.Backend, b.Description, "", b.Tools)
		}
	},
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Maximum number of runs to list (0 for all)")
	rootCmd.AddCommand(runsCmd, backendsCmd)
}
