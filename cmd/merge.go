package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gooze.dev/pkg/mutrun/internal/domain"
	m "gooze.dev/pkg/mutrun/internal/model"
)

// mergeCmd represents the merge command.
var mergeCmd = newMergeCmd()

func newMergeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge [DIR...]",
		Short: "Record result artifacts from kept task directories",
		Long: `Walk the given directories (default: the configured work directory) for
result artifacts left by runs with --persist-results=false or by remote
dispatchers, and record them in the mutation store.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			roots := make([]m.Path, 0, len(args))
			for _, arg := range args {
				roots = append(roots, m.Path(arg))
			}

			if len(roots) == 0 {
				roots = append(roots, m.Path(viper.GetString(workDirKey)))
			}

			store, closer, err := openMutationStore()
			if err != nil {
				return fmt.Errorf("open mutation store: %w", err)
			}
			defer closeQuietly("mutation store", closer)

			summary, err := domain.ImportResults(cmd.Context(), store, roots...)
			if err != nil {
				return err
			}

			cmd.Printf("imported %d of %d result artifact(s)\n", summary.Imported, summary.Found)

			for _, path := range summary.Skipped {
				cmd.Printf("  skipped %s\n", path)
			}

			return nil
		},
	}

	return cmd
}

func init() {
	rootCmd.AddCommand(mergeCmd)
}
