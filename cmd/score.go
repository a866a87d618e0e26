package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gooze.dev/pkg/mutrun/internal/adapter"
	"gooze.dev/pkg/mutrun/internal/controller"
	"gooze.dev/pkg/mutrun/internal/domain"
	m "gooze.dev/pkg/mutrun/internal/model"
)

// scoreCmd represents the score command.
var scoreCmd = newScoreCmd()

func newScoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Aggregate kill and coverage scores over the whole catalog",
		Long: `Walk every mutation in the store with its recorded result and write
class-scores.csv and method-scores.csv (plus summary.txt) to the output
directory.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, closer, err := openMutationStore()
			if err != nil {
				return fmt.Errorf("open mutation store: %w", err)
			}
			defer closeQuietly("mutation store", closer)

			return writeScores(cmd.Context(), cmd, store, nil)
		},
	}

	cmd.Flags().Bool(scoreSummaryFlagName, viper.GetBool(scoreSummaryKey), "also write the condensed text summary")
	bindFlagToConfig(cmd.Flags().Lookup(scoreSummaryFlagName), scoreSummaryKey)

	return cmd
}

func init() {
	rootCmd.AddCommand(scoreCmd)
}

// writeScores aggregates the catalog, overlaying collected results, and
// writes the score artifacts. Failing to write them is fatal.
func writeScores(ctx context.Context, cmd *cobra.Command, store adapter.MutationStore, collector *domain.ResultCollector) error {
	if ctx == nil {
		ctx = context.Background()
	}

	table, err := domain.Aggregate(ctx, store, collector)
	if err != nil {
		return err
	}

	dir := m.Path(viper.GetString(outputFlagName))

	if err := scoreReportStore.SaveScores(dir, table); err != nil {
		slog.Error("Failed to write score reports", "dir", dir, "error", err)
		return fmt.Errorf("write score reports: %w", err)
	}

	if viper.GetBool(scoreSummaryKey) {
		if err := scoreReportStore.SaveSummary(dir, controller.RenderScoreSummary(table)); err != nil {
			return err
		}
	}

	newUI(cmd).DisplayScores(ctx, table)

	return nil
}
