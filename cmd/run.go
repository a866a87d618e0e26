package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gooze.dev/pkg/mutrun/internal/domain"
	m "gooze.dev/pkg/mutrun/internal/model"
)

const runLongDescription = `Select pending mutations (or the ids listed in the work-items file) and run
each one in its own worker process.

The worker is started as
  <command> [args...] -result=<file> -task=<file> -port=<n> <instance>
inside a fresh per-task directory. Workers that exceed the mutation timeout are
terminated, killed out of band and their instance is returned to the pool.`

var errNoWorkerCommand = errors.New("no worker command configured (set run.command or pass it after --)")

// runCmd represents the run command.
var runCmd = newRunCmd()

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [-- command args...]",
		Short: "Dispatch mutations to worker processes",
		Long:  runLongDescription,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return rebindSharedFlag(cmd, traceDirFlagName, traceDirKey)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runArgs, err := runArgsFromConfig(args)
			if err != nil {
				return err
			}

			return runMutations(ctx, cmd, runArgs)
		},
	}

	configureRunFlags(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func configureRunFlags(cmd *cobra.Command) {
	cmd.Flags().IntP(runParallelFlagName, "p", viper.GetInt(runParallelConfigKey), "maximum concurrent tasks (0: bounded by the instance pool only)")
	bindFlagToConfig(cmd.Flags().Lookup(runParallelFlagName), runParallelConfigKey)

	cmd.Flags().String(mutationTimeoutFlagName, viper.GetString(mutationTimeoutKey), "destroy a worker that runs longer than this")
	bindFlagToConfig(cmd.Flags().Lookup(mutationTimeoutFlagName), mutationTimeoutKey)

	cmd.Flags().IntP(mutationsPerRunFlagName, "n", viper.GetInt(mutationsPerRunKey), "maximum pending mutations selected per run (0: all)")
	bindFlagToConfig(cmd.Flags().Lookup(mutationsPerRunFlagName), mutationsPerRunKey)

	cmd.Flags().String(workItemsFlagName, viper.GetString(workItemsKey), "file of mutation ids to run instead of pending selection")
	bindFlagToConfig(cmd.Flags().Lookup(workItemsFlagName), workItemsKey)

	cmd.Flags().String(workDirFlagName, viper.GetString(workDirKey), "root directory for per-task working directories")
	bindFlagToConfig(cmd.Flags().Lookup(workDirFlagName), workDirKey)

	cmd.Flags().String(templateDirFlagName, viper.GetString(templateDirKey), "directory copied into every task directory")
	bindFlagToConfig(cmd.Flags().Lookup(templateDirFlagName), templateDirKey)

	cmd.Flags().Bool(keepWorkDirsFlagName, viper.GetBool(keepWorkDirsKey), "keep task directories after the run")
	bindFlagToConfig(cmd.Flags().Lookup(keepWorkDirsFlagName), keepWorkDirsKey)

	cmd.Flags().Bool(persistResultsFlagName, viper.GetBool(persistResultsKey), "record results in the mutation store")
	bindFlagToConfig(cmd.Flags().Lookup(persistResultsFlagName), persistResultsKey)

	cmd.Flags().StringSlice(instancesFlagName, viper.GetStringSlice(poolInstancesKey), "execution environment identifiers")
	bindFlagToConfig(cmd.Flags().Lookup(instancesFlagName), poolInstancesKey)

	cmd.Flags().String(pollIntervalFlagName, viper.GetString(poolPollIntervalKey), "how often a waiting task polls for a free instance")
	bindFlagToConfig(cmd.Flags().Lookup(pollIntervalFlagName), poolPollIntervalKey)

	cmd.Flags().String(redisAddrFlagName, viper.GetString(poolRedisAddrKey), "share the instance pool through redis at this address")
	bindFlagToConfig(cmd.Flags().Lookup(redisAddrFlagName), poolRedisAddrKey)

	cmd.Flags().Int(controlPortBaseFlagName, viper.GetInt(controlPortBaseKey), "control port of task N is base+N")
	bindFlagToConfig(cmd.Flags().Lookup(controlPortBaseFlagName), controlPortBaseKey)

	cmd.Flags().String(killHelperFlagName, viper.GetString(killHelperKey), "command invoked with a task id to kill its processes")
	bindFlagToConfig(cmd.Flags().Lookup(killHelperFlagName), killHelperKey)

	cmd.Flags().String(pipeJoinTimeoutFlagName, viper.GetString(pipeJoinTimeoutKey), "how long to wait for worker output streams to close")
	bindFlagToConfig(cmd.Flags().Lookup(pipeJoinTimeoutFlagName), pipeJoinTimeoutKey)

	cmd.Flags().String(watchIntervalFlagName, viper.GetString(watchIntervalKey), "how often running tasks are checked against the timeout")
	bindFlagToConfig(cmd.Flags().Lookup(watchIntervalFlagName), watchIntervalKey)

	cmd.Flags().String(traceDirFlagName, viper.GetString(traceDirKey), "directory workers write traces to")
	bindFlagToConfig(cmd.Flags().Lookup(traceDirFlagName), traceDirKey)

	cmd.Flags().Bool(scoreAfterRunFlagName, viper.GetBool(scoreAfterRunKey), "aggregate and write scores when the run finishes")
	bindFlagToConfig(cmd.Flags().Lookup(scoreAfterRunFlagName), scoreAfterRunKey)

	cmd.Flags().String(runIDFlagName, "", "run identifier (default: a random UUID)")
}

// runArgsFromConfig resolves the dispatch settings. Positional arguments, when
// present, replace the configured worker command and its arguments.
func runArgsFromConfig(positional []string) (domain.RunArgs, error) {
	command := viper.GetString(runCommandKey)
	args := viper.GetStringSlice(runArgsKey)

	if len(positional) > 0 {
		command, args = positional[0], positional[1:]
	}

	if command == "" {
		return domain.RunArgs{}, errNoWorkerCommand
	}

	output := viper.GetString(outputFlagName)

	return domain.RunArgs{
		RunID:           uuid.NewString(),
		Command:         command,
		Args:            args,
		Env:             viper.GetStringSlice(runEnvKey),
		WorkRoot:        m.Path(viper.GetString(workDirKey)),
		Template:        m.Path(viper.GetString(templateDirKey)),
		OutputDir:       m.Path(filepath.Join(output, "output")),
		TraceDir:        m.Path(viper.GetString(traceDirKey)),
		Parallel:        viper.GetInt(runParallelConfigKey),
		MutationTimeout: durationSetting(mutationTimeoutKey, defaultMutationTimeout),
		WatchInterval:   durationSetting(watchIntervalKey, defaultWatchInterval),
		PipeJoinTimeout: durationSetting(pipeJoinTimeoutKey, defaultPipeJoinTimeout),
		ControlPortBase: viper.GetInt(controlPortBaseKey),
		KeepWorkDirs:    viper.GetBool(keepWorkDirsKey),
		PersistResults:  viper.GetBool(persistResultsKey),
	}, nil
}

func runMutations(ctx context.Context, cmd *cobra.Command, args domain.RunArgs) error {
	if runID, _ := cmd.Flags().GetString(runIDFlagName); runID != "" {
		args.RunID = runID
	}

	store, storeCloser, err := openMutationStore()
	if err != nil {
		return fmt.Errorf("open mutation store: %w", err)
	}
	defer closeQuietly("mutation store", storeCloser)

	pool, poolCloser, err := openResourcePool(ctx)
	if err != nil {
		return fmt.Errorf("open instance pool: %w", err)
	}
	defer closeQuietly("instance pool", poolCloser)

	selector := domain.NewSelector(store, domain.SelectorOptions{
		MaxCount:     viper.GetInt(mutationsPerRunKey),
		OverrideFile: m.Path(viper.GetString(workItemsKey)),
	})

	dispatcher := domain.NewDispatcher(selector, pool, processLauncher, newKiller(), workspaceFS, store, newUI(cmd))

	summary, err := dispatcher.Run(ctx, args)
	if err != nil {
		return err
	}

	defer func() {
		if err := summary.Results.Remove(); err != nil {
			slog.Warn("Failed to remove result spill", "path", summary.Results.Path(), "error", err)
		}
	}()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run %s interrupted: %w", args.RunID, err)
	}

	if !viper.GetBool(scoreAfterRunKey) {
		return nil
	}

	collector, err := domain.CollectFromSpill(summary.Results)
	if err != nil {
		return err
	}

	return writeScores(ctx, cmd, store, collector)
}
