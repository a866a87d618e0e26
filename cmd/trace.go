package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gooze.dev/pkg/mutrun/internal/domain"
	m "gooze.dev/pkg/mutrun/internal/model"
)

// traceCmd represents the trace command group.
var traceCmd = newTraceCmd()

func newTraceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Compare execution traces between runs",
		Long: `Compare per-test execution traces recorded by workers. Traces live under
<trace-dir>/<mode>/<run-id>.yaml; mode is control (hit counts) or data
(captured values).`,
	}

	cmd.PersistentFlags().String(traceDirFlagName, viper.GetString(traceDirKey), "directory holding recorded traces")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(traceDirFlagName), traceDirKey)

	cmd.PersistentFlags().String(traceModeFlagName, viper.GetString(traceModeKey), "comparison mode: control, data or both")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(traceModeFlagName), traceModeKey)

	cmd.AddCommand(newTraceDiffCmd(), newTraceArchiveCmd())

	for _, sub := range cmd.Commands() {
		sub.PreRunE = func(cmd *cobra.Command, _ []string) error {
			return rebindSharedFlag(cmd, traceDirFlagName, traceDirKey)
		}
	}

	return cmd
}

func init() {
	rootCmd.AddCommand(traceCmd)
}

func newTraceDiffCmd() *cobra.Command {
	var explain []string

	cmd := &cobra.Command{
		Use:   "diff RUN_A RUN_B",
		Short: "List classes whose traces differ between two runs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			modes, err := m.ParseTraceModes(viper.GetString(traceModeKey))
			if err != nil {
				return err
			}

			differ := domain.NewTraceDiffer(openTraceStore())

			comparison, err := differ.Compare(cmd.Context(), modes, args[0], args[1])
			if err != nil {
				return err
			}

			newUI(cmd).DisplayTraceComparison(cmd.Context(), comparison)

			// --explain TEST/CLASS prints the observation diff of one class.
			for _, target := range explain {
				test, class, ok := splitExplainTarget(target)
				if !ok {
					return fmt.Errorf("invalid --%s value %q, want TEST/CLASS", traceExplainFlagName, target)
				}

				for _, mode := range modes {
					text, err := differ.Explain(cmd.Context(), mode, args[0], args[1], test, class)
					if err != nil {
						return err
					}

					cmd.Printf("\n%s %s/%s\n%s", mode, test, class, text)
				}
			}

			return nil
		},
	}

	cmd.Flags().StringArrayVar(&explain, traceExplainFlagName, nil, "show the observation diff for TEST/CLASS (repeatable)")

	return cmd
}

func newTraceArchiveCmd() *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "archive BASELINE",
		Short: "Compare a baseline against every archived run",
		Long: `Compare the baseline run against every other recorded run and add the
differing classes to the cumulative difference set (differences.yaml). A
non-empty set for repeated runs of the same program signals non-determinism.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			modes, err := m.ParseTraceModes(viper.GetString(traceModeKey))
			if err != nil {
				return err
			}

			differ := domain.NewTraceDiffer(openTraceStore())

			archive, err := differ.CompareArchive(cmd.Context(), modes, args[0], reset)
			if err != nil {
				return err
			}

			ui := newUI(cmd)
			for _, comparison := range archive.Runs {
				ui.DisplayTraceComparison(cmd.Context(), comparison)
			}

			cmd.Printf("\n%d run(s) compared against %s, %d class(es) in the cumulative set (%d new)\n",
				len(archive.Runs), archive.Baseline, len(archive.Cumulative), len(archive.NewlyMarked))

			for _, class := range archive.NewlyMarked {
				cmd.Printf("  + %s\n", class)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&reset, traceResetFlagName, false, "discard the previously persisted difference set")

	return cmd
}

func splitExplainTarget(target string) (string, string, bool) {
	for i := len(target) - 1; i >= 0; i-- {
		if target[i] == '/' {
			test, class := target[:i], target[i+1:]
			return test, class, test != "" && class != ""
		}
	}

	return "", "", false
}
