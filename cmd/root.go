// Package cmd provides the root command and CLI setup for mutrun.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"gooze.dev/pkg/mutrun/internal/adapter"
	"gooze.dev/pkg/mutrun/internal/controller"
	"gooze.dev/pkg/mutrun/internal/domain"
	m "gooze.dev/pkg/mutrun/internal/model"
)

// Shared dependencies. Tests replace them before executing a command.
var (
	workspaceFS      adapter.WorkspaceFS      = adapter.NewLocalWorkspaceFS()
	processLauncher  adapter.ProcessLauncher  = adapter.NewLocalProcessLauncher()
	scoreReportStore adapter.ScoreReportStore = adapter.NewCSVScoreReportStore()

	openMutationStore = defaultOpenMutationStore
	openTraceStore    = defaultOpenTraceStore
	openResourcePool  = defaultOpenResourcePool
	newKiller         = defaultNewKiller
	newUI             = defaultNewUI
)

// reportsOutputDirFlag is a root-level flag shared by commands that write reports.
var reportsOutputDirFlag string

var verboseFlag bool

const rootLongDescription = `mutrun executes mutation-testing work: it selects pending mutations,
runs each one in an isolated worker process bounded by a pool of execution
environments, collects the per-mutation results, aggregates kill and coverage
scores and compares execution traces between runs.`

// rootCmd represents the base command when called without any subcommands.
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "mutrun",
		Short:         "Mutation execution, scoring and trace comparison",
		Long:          rootLongDescription,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			configureLogger("", viper.GetBool(logVerboseKey))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	configureRootFlags(cmd)

	return cmd
}

func configureRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().
		StringVarP(
			&reportsOutputDirFlag, outputFlagName, "o",
			viper.GetString(outputFlagName),
			"output directory for score reports and worker output",
		)
	bindFlagToConfig(cmd.PersistentFlags().Lookup(outputFlagName), outputFlagName)

	cmd.PersistentFlags().BoolVarP(&verboseFlag, verboseFlagName, "v", viper.GetBool(logVerboseKey), "log at debug level")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(verboseFlagName), logVerboseKey)

	cmd.PersistentFlags().String(storeDriverFlagName, viper.GetString(storeDriverKey), "mutation store: yaml, mysql or postgres")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(storeDriverFlagName), storeDriverKey)

	cmd.PersistentFlags().String(storeCatalogFlagName, viper.GetString(storeCatalogKey), "catalog file for the yaml store")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(storeCatalogFlagName), storeCatalogKey)

	cmd.PersistentFlags().String(storeDSNFlagName, viper.GetString(storeDSNKey), "database DSN for the mysql and postgres stores")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(storeDSNFlagName), storeDSNKey)
}

// bindFlagToConfig wires a Cobra flag to a Viper key so config/env values feed the flag.
func bindFlagToConfig(flag *pflag.Flag, key string) {
	if flag == nil {
		cobra.CheckErr(fmt.Errorf("flag for config key %q not found", key))
		return
	}

	cobra.CheckErr(viper.BindPFlag(key, flag))
}

// rebindSharedFlag points key at the executing command's flag. Several
// commands define the same flag and viper keeps only the last binding.
func rebindSharedFlag(cmd *cobra.Command, name, key string) error {
	flag := cmd.Flag(name)
	if flag == nil {
		return fmt.Errorf("flag %q not found on %s", name, cmd.Name())
	}

	return viper.BindPFlag(key, flag)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// closerFunc adapts a function to io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

var nopCloser io.Closer = closerFunc(func() error { return nil })

func defaultOpenMutationStore() (adapter.MutationStore, io.Closer, error) {
	driver := viper.GetString(storeDriverKey)

	switch driver {
	case storeDriverYAML, "":
		store, err := adapter.NewYAMLMutationStore(m.Path(viper.GetString(storeCatalogKey)))
		if err != nil {
			return nil, nil, err
		}

		return store, nopCloser, nil
	case storeDriverMySQL, storeDriverPostgres:
		store, err := adapter.OpenGormMutationStore(driver, viper.GetString(storeDSNKey))
		if err != nil {
			return nil, nil, err
		}

		return store, store, nil
	}

	return nil, nil, fmt.Errorf("unsupported store driver %q", driver)
}

func defaultOpenTraceStore() adapter.TraceStore {
	return adapter.NewFileTraceStore(m.Path(viper.GetString(traceDirKey)))
}

func configuredInstances() []m.Instance {
	ids := viper.GetStringSlice(poolInstancesKey)

	instances := make([]m.Instance, 0, len(ids))
	for _, id := range ids {
		instances = append(instances, m.Instance{ID: id})
	}

	return instances
}

func defaultOpenResourcePool(ctx context.Context) (*domain.ResourcePool, io.Closer, error) {
	instances := configuredInstances()
	if len(instances) == 0 {
		return nil, nil, fmt.Errorf("no instances configured under %s", poolInstancesKey)
	}

	interval := durationSetting(poolPollIntervalKey, defaultPollInterval)

	addr := viper.GetString(poolRedisAddrKey)
	if addr == "" {
		return domain.NewResourcePool(instances, domain.WithPollInterval(interval)), nopCloser, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		slog.Error("Failed to reach redis", "addr", addr, "error", err)

		return nil, nil, fmt.Errorf("connect to redis %s: %w", addr, err)
	}

	backend := adapter.NewRedisInstanceBackend(client, viper.GetString(poolRedisKeyKey))

	pool, err := openSharedPool(ctx, backend, instances, interval)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	slog.Info("Using shared instance pool", "addr", addr, "key", viper.GetString(poolRedisKeyKey), "instances", len(instances))

	return pool, client, nil
}

// openSharedPool seeds the shared free list on first use only. Other
// dispatchers may have every instance checked out, leaving the list empty.
func openSharedPool(ctx context.Context, backend adapter.SharedInstanceBackend, instances []m.Instance, interval time.Duration) (*domain.ResourcePool, error) {
	seeded, err := backend.SeedOnce(ctx, instances...)
	if err != nil {
		slog.Error("Failed to seed shared instance pool", "error", err)
		return nil, fmt.Errorf("seed shared instance pool: %w", err)
	}

	slog.Debug("Shared instance pool ready", "seededHere", seeded)

	return domain.NewResourcePoolWithBackend(backend, len(instances), domain.WithPollInterval(interval)), nil
}

func defaultNewKiller() adapter.Killer {
	if helper := viper.GetString(killHelperKey); helper != "" {
		return adapter.NewHelperKiller(helper)
	}

	return adapter.NewProcessGroupKiller()
}

func defaultNewUI(cmd *cobra.Command) controller.UI {
	return controller.NewUI(cmd, controller.IsTTY(os.Stdout))
}

func closeQuietly(name string, closer io.Closer) {
	if closer == nil {
		return
	}

	if err := closer.Close(); err != nil {
		slog.Warn("Failed to close resource", "resource", name, "error", err)
	}
}
