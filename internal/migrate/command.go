package migrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/gmig/internal/execshell"
	"github.com/temirov/gmig/internal/gitlabapi"
	"github.com/temirov/gmig/internal/state"
	"github.com/temirov/gmig/internal/utils"
)

const (
	migrateCommandUseConstant                = "migrate"
	migrateCommandShortDescriptionConstant   = "Mirror a group tree between hosting instances"
	migrateCommandLongDescriptionConstant    = "migrate copies every repository beneath the configured source group to the destination instance, recreating subgroups and recording per-repository status."
	unexpectedArgumentsErrorMessageConstant  = "migrate does not accept positional arguments"
	commandExecutionErrorTemplateConstant    = "migrate failed: %w"
	dryRunFlagNameConstant                   = "dry-run"
	dryRunFlagDescriptionConstant            = "List discovered repositories without transferring anything"
	runLoggerCreationErrorTemplateConstant   = "unable to open run log %s: %w"
	errorLoggerCreationErrorTemplateConstant = "unable to open error log %s: %w"
	summaryMessageConstant                   = "Migration summary"
	configurationFileAppliedMessageConstant  = "Configuration file applied"
	configurationFileFieldNameConstant       = "configuration_file"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider returns the current migrate configuration.
type ConfigurationProvider func() CommandConfiguration

// MigrationExecutor runs a complete migration pass.
type MigrationExecutor interface {
	Execute(executionContext context.Context, configuration CommandConfiguration) (RunSummary, error)
}

// ExecutorResolver creates migration executors for the command.
type ExecutorResolver interface {
	Resolve(consoleLogger *zap.Logger, runLogger *zap.Logger, errorLogger *zap.Logger) (MigrationExecutor, error)
}

// FileLoggerProvider opens an append-only structured logger at the given path.
type FileLoggerProvider func(logLevel utils.LogLevel, logFilePath string) (*zap.Logger, error)

// CommandBuilder assembles the migrate command.
type CommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider ConfigurationProvider
	ExecutorResolver      ExecutorResolver
	FileLoggerProvider    FileLoggerProvider
	HTTPClient            gitlabapi.HTTPClient
	CommandRunner         execshell.CommandRunner
	Clock                 state.Clock
	Sleep                 func(waitDuration time.Duration)
}

// Build constructs the migrate command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	migrateCommand := &cobra.Command{
		Use:   migrateCommandUseConstant,
		Short: migrateCommandShortDescriptionConstant,
		Long:  migrateCommandLongDescriptionConstant,
		RunE:  builder.runMigrate,
	}

	migrateCommand.Flags().Bool(dryRunFlagNameConstant, false, dryRunFlagDescriptionConstant)

	return migrateCommand, nil
}

func (builder *CommandBuilder) runMigrate(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errors.New(unexpectedArgumentsErrorMessageConstant)
	}

	configuration, configurationError := builder.resolveCommandConfiguration(command)
	if configurationError != nil {
		return configurationError
	}

	consoleLogger := builder.resolveLogger()

	contextAccessor := utils.NewCommandContextAccessor()

	runLogLevel := utils.LogLevelInfo
	if effectiveLogLevel, logLevelAvailable := contextAccessor.LogLevel(command.Context()); logLevelAvailable {
		runLogLevel = utils.LogLevel(effectiveLogLevel)
	}

	runLogger, runLoggerError := builder.resolveFileLogger(runLogLevel, configuration.RunLogPath)
	if runLoggerError != nil {
		return fmt.Errorf(runLoggerCreationErrorTemplateConstant, configuration.RunLogPath, runLoggerError)
	}
	defer func() {
		_ = runLogger.Sync()
	}()

	if configurationFilePath, configurationFileAvailable := contextAccessor.ConfigurationFilePath(command.Context()); configurationFileAvailable {
		runLogger.Debug(configurationFileAppliedMessageConstant, zap.String(configurationFileFieldNameConstant, configurationFilePath))
	}

	errorLogger, errorLoggerError := builder.resolveFileLogger(utils.LogLevelError, configuration.ErrorLogPath)
	if errorLoggerError != nil {
		return fmt.Errorf(errorLoggerCreationErrorTemplateConstant, configuration.ErrorLogPath, errorLoggerError)
	}
	defer func() {
		_ = errorLogger.Sync()
	}()

	migrationExecutor, executorError := builder.resolveExecutor(consoleLogger, runLogger, errorLogger)
	if executorError != nil {
		return executorError
	}

	summary, executionError := migrationExecutor.Execute(command.Context(), configuration)
	if executionError != nil {
		return fmt.Errorf(commandExecutionErrorTemplateConstant, executionError)
	}

	consoleLogger.Info(summaryMessageConstant,
		zap.Int(discoveredCountFieldNameConstant, summary.Discovered),
		zap.Int(migratedCountFieldNameConstant, summary.Migrated),
		zap.Int(skippedCountFieldNameConstant, summary.Skipped),
		zap.Int(failedCountFieldNameConstant, summary.Failed),
		zap.Bool(dryRunConfigurationKeyConstant, summary.DryRun),
	)

	return nil
}

func (builder *CommandBuilder) resolveCommandConfiguration(command *cobra.Command) (CommandConfiguration, error) {
	configuration := DefaultCommandConfiguration()
	if builder.ConfigurationProvider != nil {
		configuration = builder.ConfigurationProvider()
	}
	configuration = configuration.Sanitize()

	if command.Flags().Changed(dryRunFlagNameConstant) {
		flagDryRunValue, dryRunFlagError := command.Flags().GetBool(dryRunFlagNameConstant)
		if dryRunFlagError != nil {
			return CommandConfiguration{}, dryRunFlagError
		}
		configuration.DryRun = flagDryRunValue
	}

	if validationError := configuration.Validate(); validationError != nil {
		return CommandConfiguration{}, validationError
	}

	return configuration, nil
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}

	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}

	return logger
}

func (builder *CommandBuilder) resolveFileLogger(logLevel utils.LogLevel, logFilePath string) (*zap.Logger, error) {
	if builder.FileLoggerProvider != nil {
		return builder.FileLoggerProvider(logLevel, logFilePath)
	}

	loggerFactory := utils.NewLoggerFactory()
	return loggerFactory.CreateFileLogger(logLevel, logFilePath)
}

func (builder *CommandBuilder) resolveExecutor(consoleLogger *zap.Logger, runLogger *zap.Logger, errorLogger *zap.Logger) (MigrationExecutor, error) {
	if builder.ExecutorResolver != nil {
		return builder.ExecutorResolver.Resolve(consoleLogger, runLogger, errorLogger)
	}

	commandRunner := builder.CommandRunner
	if commandRunner == nil {
		commandRunner = execshell.NewOSCommandRunner()
	}
	shellExecutor, executorError := execshell.NewShellExecutor(runLogger, commandRunner)
	if executorError != nil {
		return nil, executorError
	}

	return NewRunner(RunnerDependencies{
		ConsoleLogger: consoleLogger,
		RunLogger:     runLogger,
		ErrorLogger:   errorLogger,
		InstanceAPI:   gitlabapi.NewClient(builder.HTTPClient),
		GitExecutor:   shellExecutor,
		Clock:         builder.Clock,
		Sleep:         builder.Sleep,
	})
}
