package cmd

import (
	"errors"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	configVersionKey     = "version"
	currentConfigVersion = 1

	configBaseName   = "mutrun"
	configFileName   = configBaseName + ".yaml"
	configFolderPath = "."

	envPrefix = "MUTRUN"

	outputFlagName  = "output"
	verboseFlagName = "verbose"

	runParallelFlagName     = "parallel"
	mutationTimeoutFlagName = "mutation-timeout"
	mutationsPerRunFlagName = "max-mutations"
	workItemsFlagName       = "work-items"
	workDirFlagName         = "work-dir"
	keepWorkDirsFlagName    = "keep-work-dirs"
	persistResultsFlagName  = "persist-results"
	instancesFlagName       = "instances"
	storeDriverFlagName     = "store-driver"
	storeCatalogFlagName    = "catalog"
	traceDirFlagName        = "trace-dir"
	traceModeFlagName       = "mode"
	traceResetFlagName      = "reset"
	traceExplainFlagName    = "explain"
	runIDFlagName           = "run-id"
	storeDSNFlagName        = "dsn"
	redisAddrFlagName       = "redis-addr"
	controlPortBaseFlagName = "control-port-base"
	killHelperFlagName      = "kill-helper"
	templateDirFlagName     = "template"
	pollIntervalFlagName    = "poll-interval"
	pipeJoinTimeoutFlagName = "pipe-timeout"
	watchIntervalFlagName   = "watch-interval"
	scoreSummaryFlagName    = "summary"
	scoreAfterRunFlagName   = "score"

	runParallelConfigKey     = "run.parallel"
	mutationTimeoutKey       = "run.mutation_timeout"
	mutationsPerRunKey       = "run.mutations_per_run"
	workItemsKey             = "run.work_items"
	runCommandKey            = "run.command"
	runArgsKey               = "run.args"
	runEnvKey                = "run.env"
	workDirKey               = "run.work_dir"
	templateDirKey           = "run.template"
	keepWorkDirsKey          = "run.keep_work_dirs"
	persistResultsKey        = "run.persist_results"
	controlPortBaseKey       = "run.control_port_base"
	killHelperKey            = "run.kill_helper"
	pipeJoinTimeoutKey       = "run.pipe_timeout"
	watchIntervalKey         = "run.watch_interval"
	poolInstancesKey         = "pool.instances"
	poolPollIntervalKey      = "pool.poll_interval"
	poolRedisAddrKey         = "pool.redis_addr"
	poolRedisKeyKey          = "pool.redis_key"
	storeDriverKey           = "store.driver"
	storeDSNKey              = "store.dsn"
	storeCatalogKey          = "store.catalog"
	traceDirKey              = "trace.dir"
	traceModeKey             = "trace.mode"
	scoreSummaryKey          = "score.summary"
	scoreAfterRunKey         = "score.after_run"
	defaultMutationTimeout   = 2 * time.Minute
	defaultReportsDir        = ".mutrun-reports"
	defaultRunParallel       = 0
	defaultMutationsPerRun   = 0
	defaultWorkDir           = ".mutrun-work"
	defaultControlPortBase   = 1000
	defaultPollInterval      = 100 * time.Millisecond
	defaultPipeJoinTimeout   = 10 * time.Second
	defaultWatchInterval     = time.Second
	defaultStoreDriver       = storeDriverYAML
	defaultStoreCatalog      = "mutations.yaml"
	defaultTraceDir          = ".mutrun-traces"
	defaultTraceMode         = "both"
	defaultRedisKey          = "mutrun:instances"
	storeDriverYAML          = "yaml"
	storeDriverMySQL         = "mysql"
	storeDriverPostgres      = "postgres"
	defaultScoreSummary      = true
	defaultScoreAfterRun     = true
	defaultPersistResults    = true
	defaultKeepWorkDirs      = false
	defaultVerbose           = false
	defaultRunInstancePrefix = "instance-"

	logFilenameKey   = "log.filename"
	logLevelKey      = "log.level"
	logVerboseKey    = "log.verbose"
	logMaxSizeKey    = "log.max_size"
	logMaxBackupsKey = "log.max_backups"
	logMaxAgeKey     = "log.max_age"
	logCompressKey   = "log.compress"

	defaultLogFilename   = ".mutrun.log"
	defaultLogLevel      = "info"
	defaultLogMaxSize    = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAge     = 28
	defaultLogCompress   = true
)

var globalLogger *slog.Logger

func init() {
	viper.SetConfigName(configBaseName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configFolderPath)
	viper.SetConfigFile(filepath.Join(configFolderPath, configFileName))
	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return
		}

		return
	}
}

func setDefaults() {
	viper.SetDefault(configVersionKey, currentConfigVersion)
	viper.SetDefault(outputFlagName, defaultReportsDir)

	viper.SetDefault(runParallelConfigKey, defaultRunParallel)
	viper.SetDefault(mutationTimeoutKey, defaultMutationTimeout.String())
	viper.SetDefault(mutationsPerRunKey, defaultMutationsPerRun)
	viper.SetDefault(workItemsKey, "")
	viper.SetDefault(runCommandKey, "")
	viper.SetDefault(runArgsKey, []string{})
	viper.SetDefault(runEnvKey, []string{})
	viper.SetDefault(workDirKey, defaultWorkDir)
	viper.SetDefault(templateDirKey, "")
	viper.SetDefault(keepWorkDirsKey, defaultKeepWorkDirs)
	viper.SetDefault(persistResultsKey, defaultPersistResults)
	viper.SetDefault(controlPortBaseKey, defaultControlPortBase)
	viper.SetDefault(killHelperKey, "")
	viper.SetDefault(pipeJoinTimeoutKey, defaultPipeJoinTimeout.String())
	viper.SetDefault(watchIntervalKey, defaultWatchInterval.String())

	viper.SetDefault(poolInstancesKey, []string{defaultRunInstancePrefix + "1"})
	viper.SetDefault(poolPollIntervalKey, defaultPollInterval.String())
	viper.SetDefault(poolRedisAddrKey, "")
	viper.SetDefault(poolRedisKeyKey, defaultRedisKey)

	viper.SetDefault(storeDriverKey, defaultStoreDriver)
	viper.SetDefault(storeDSNKey, "")
	viper.SetDefault(storeCatalogKey, defaultStoreCatalog)

	viper.SetDefault(traceDirKey, defaultTraceDir)
	viper.SetDefault(traceModeKey, defaultTraceMode)
	viper.SetDefault(scoreSummaryKey, defaultScoreSummary)
	viper.SetDefault(scoreAfterRunKey, defaultScoreAfterRun)

	// Logging defaults (used by config/env and as fallbacks for flags).
	viper.SetDefault(logFilenameKey, defaultLogFilename)
	viper.SetDefault(logLevelKey, defaultLogLevel)
	viper.SetDefault(logVerboseKey, defaultVerbose)
	viper.SetDefault(logMaxSizeKey, defaultLogMaxSize)
	viper.SetDefault(logMaxBackupsKey, defaultLogMaxBackups)
	viper.SetDefault(logMaxAgeKey, defaultLogMaxAge)
	viper.SetDefault(logCompressKey, defaultLogCompress)
}

func parseSlogLevel(value string, defaultLevel slog.Level) slog.Level {
	level := strings.ToLower(strings.TrimSpace(value))
	if level == "" {
		return defaultLevel
	}

	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	// Allow numeric slog levels as well (e.g. -4 for debug).
	if n, err := strconv.Atoi(level); err == nil {
		return slog.Level(n)
	}

	return defaultLevel
}

// configureLogger configures the global slog logger.
//
// By default it logs at the configured level; if verbose is true it logs at Debug.
func configureLogger(logPath string, verbose bool) {
	if strings.TrimSpace(logPath) == "" {
		logPath = viper.GetString(logFilenameKey)
	}

	if strings.TrimSpace(logPath) == "" {
		logPath = defaultLogFilename
	}

	var logLevel slog.Level
	if verbose {
		logLevel = slog.LevelDebug
	} else {
		logLevel = parseSlogLevel(viper.GetString(logLevelKey), slog.LevelInfo)
	}

	logWriter := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    viper.GetInt(logMaxSizeKey),
		MaxBackups: viper.GetInt(logMaxBackupsKey),
		MaxAge:     viper.GetInt(logMaxAgeKey),
		Compress:   viper.GetBool(logCompressKey),
	}

	handler := slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		AddSource: true,
		Level:     logLevel,
	})

	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)
}

// durationSetting reads a duration key, accepting Go duration strings or a
// bare number of seconds.
func durationSetting(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(viper.GetString(key))
	if raw == "" {
		return fallback
	}

	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}

	if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(seconds * float64(time.Second))
	}

	slog.Warn("Invalid duration in configuration, using default", "key", key, "value", raw, "default", fallback)

	return fallback
}
