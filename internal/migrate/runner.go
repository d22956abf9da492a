package migrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/gmig/internal/gitlabapi"
	"github.com/temirov/gmig/internal/state"
	"github.com/temirov/gmig/internal/transfer"
)

const (
	instanceAPIMissingMessageConstant     = "instance API not configured"
	gitExecutorMissingMessageConstant     = "git executor not configured"
	sourceProbeErrorTemplateConstant      = "unable to reach source instance: %w"
	destinationProbeErrorTemplateConstant = "unable to reach destination instance: %w"
	stateLoadErrorTemplateConstant        = "unable to load migration state: %w"
	discoveryFailedErrorTemplateConstant  = "repository discovery failed: %w"
	runStartedMessageConstant             = "Migration run started"
	discoveryCompletedMessageConstant     = "Repository discovery completed"
	dryRunRepositoryMessageConstant       = "Repository would be migrated"
	runFailedMessageConstant              = "Migration run failed"
	runCompletedMessageConstant           = "Migration run completed"
	sourceGroupLogFieldConstant           = "source_group"
	destinationGroupLogFieldConstant      = "destination_group"
	discoveredCountFieldNameConstant      = "discovered"
	migratedCountFieldNameConstant        = "migrated"
	skippedCountFieldNameConstant         = "skipped"
	failedCountFieldNameConstant          = "failed"
)

// InstanceAPI combines every hosting instance operation a migration run performs.
type InstanceAPI interface {
	ProbeVersion(executionContext context.Context, instance gitlabapi.Instance) error
	GroupAPI
	ListingAPI
	GroupCreator
	ProjectAPI
}

// RunSummary aggregates the terminal statuses of one migration run.
type RunSummary struct {
	Discovered int
	Migrated   int
	Skipped    int
	Failed     int
	DryRun     bool
}

// RunnerDependencies describes the collaborators a migration run requires.
type RunnerDependencies struct {
	ConsoleLogger *zap.Logger
	RunLogger     *zap.Logger
	ErrorLogger   *zap.Logger
	InstanceAPI   InstanceAPI
	GitExecutor   transfer.GitExecutor
	Clock         state.Clock
	Sleep         func(waitDuration time.Duration)
}

// Runner wires discovery, group replication, and per-repository migration into
// one fail-fast pass over the configured source group tree.
type Runner struct {
	consoleLogger *zap.Logger
	runLogger     *zap.Logger
	errorLogger   *zap.Logger
	instanceAPI   InstanceAPI
	gitExecutor   transfer.GitExecutor
	clock         state.Clock
	sleep         func(waitDuration time.Duration)
}

var (
	errInstanceAPIMissing = errors.New(instanceAPIMissingMessageConstant)
	errGitExecutorMissing = errors.New(gitExecutorMissingMessageConstant)
)

// NewRunner constructs a Runner with the provided dependencies.
func NewRunner(dependencies RunnerDependencies) (*Runner, error) {
	if dependencies.InstanceAPI == nil {
		return nil, errInstanceAPIMissing
	}
	if dependencies.GitExecutor == nil {
		return nil, errGitExecutorMissing
	}

	consoleLogger := dependencies.ConsoleLogger
	if consoleLogger == nil {
		consoleLogger = zap.NewNop()
	}
	runLogger := dependencies.RunLogger
	if runLogger == nil {
		runLogger = zap.NewNop()
	}
	errorLogger := dependencies.ErrorLogger
	if errorLogger == nil {
		errorLogger = zap.NewNop()
	}

	return &Runner{
		consoleLogger: consoleLogger,
		runLogger:     runLogger,
		errorLogger:   errorLogger,
		instanceAPI:   dependencies.InstanceAPI,
		gitExecutor:   dependencies.GitExecutor,
		clock:         dependencies.Clock,
		sleep:         dependencies.Sleep,
	}, nil
}

// Execute performs a full migration run and aborts on the first fatal error.
func (runner *Runner) Execute(executionContext context.Context, configuration CommandConfiguration) (RunSummary, error) {
	summary := RunSummary{DryRun: configuration.DryRun}

	sourceInstance := gitlabapi.Instance{BaseURL: configuration.Source.URL, Token: configuration.Source.Token}
	destinationInstance := gitlabapi.Instance{BaseURL: configuration.Destination.URL, Token: configuration.Destination.Token}

	runner.runLogger.Info(runStartedMessageConstant,
		zap.String(sourceGroupLogFieldConstant, configuration.Source.Group),
		zap.String(destinationGroupLogFieldConstant, configuration.Destination.Group),
		zap.Bool(dryRunConfigurationKeyConstant, configuration.DryRun),
	)

	if probeError := runner.instanceAPI.ProbeVersion(executionContext, sourceInstance); probeError != nil {
		return summary, runner.failRun(fmt.Errorf(sourceProbeErrorTemplateConstant, probeError))
	}
	if probeError := runner.instanceAPI.ProbeVersion(executionContext, destinationInstance); probeError != nil {
		return summary, runner.failRun(fmt.Errorf(destinationProbeErrorTemplateConstant, probeError))
	}

	groupCache := NewGroupCache()
	groupResolver, resolverError := NewGroupResolver(runner.runLogger, runner.instanceAPI, groupCache)
	if resolverError != nil {
		return summary, runner.failRun(resolverError)
	}
	repositoryDiscovery, discoveryError := NewRepositoryDiscovery(runner.runLogger, groupResolver, runner.instanceAPI, groupCache)
	if discoveryError != nil {
		return summary, runner.failRun(discoveryError)
	}

	if _, destinationRootError := groupResolver.Resolve(executionContext, destinationInstance, configuration.Destination.Group); destinationRootError != nil {
		return summary, runner.failRun(destinationRootError)
	}

	discoveryResult, discoverError := repositoryDiscovery.Discover(executionContext, sourceInstance, configuration.Source.Group)
	if discoverError != nil {
		return summary, runner.failRun(fmt.Errorf(discoveryFailedErrorTemplateConstant, discoverError))
	}
	summary.Discovered = len(discoveryResult.Repositories)

	runner.runLogger.Info(discoveryCompletedMessageConstant,
		zap.Int(repositoryCountFieldNameConstant, len(discoveryResult.Repositories)),
		zap.Int(subgroupCountFieldNameConstant, len(discoveryResult.Subgroups)),
	)

	if configuration.DryRun {
		for _, repository := range discoveryResult.Repositories {
			runner.consoleLogger.Info(dryRunRepositoryMessageConstant,
				zap.String(repositoryFieldNameConstant, repository.PathWithNamespace),
			)
		}
		return summary, nil
	}

	statusStore, storeError := state.NewStore(configuration.StateFilePath, runner.clock)
	if storeError != nil {
		return summary, runner.failRun(storeError)
	}
	if _, loadError := statusStore.Load(); loadError != nil {
		return summary, runner.failRun(fmt.Errorf(stateLoadErrorTemplateConstant, loadError))
	}
	for _, repository := range discoveryResult.Repositories {
		statusStore.Upsert(state.Record{
			RepositoryURL:  repository.HTTPURLToRepo,
			RepositoryPath: repository.PathWithNamespace,
			Status:         state.StatusPending,
		})
	}
	if flushError := statusStore.Flush(); flushError != nil {
		return summary, runner.failRun(fmt.Errorf(statePersistErrorTemplateConstant, flushError))
	}

	groupReplicator, replicatorError := NewGroupReplicator(runner.runLogger, groupResolver, runner.instanceAPI, groupCache, GroupReplicatorConfiguration{
		Source:              sourceInstance,
		SourceRootPath:      configuration.Source.Group,
		Destination:         destinationInstance,
		DestinationRootPath: configuration.Destination.Group,
	})
	if replicatorError != nil {
		return summary, runner.failRun(replicatorError)
	}

	mirrorTransferrer, transferrerError := transfer.NewGitMirrorTransferrer(runner.runLogger, runner.gitExecutor)
	if transferrerError != nil {
		return summary, runner.failRun(transferrerError)
	}

	migrationService, serviceError := NewService(
		ServiceDependencies{
			Logger:          runner.runLogger,
			ProjectAPI:      runner.instanceAPI,
			GroupReplicator: groupReplicator,
			Transferrer:     mirrorTransferrer,
			StatusStore:     statusStore,
			Sleep:           runner.sleep,
		},
		ServiceConfiguration{
			Source:              sourceInstance,
			SourceRootPath:      configuration.Source.Group,
			Destination:         destinationInstance,
			DestinationRootPath: configuration.Destination.Group,
			SkipRepositoryNames: configuration.SkipRepositories,
			LegacyPrefix:        configuration.LegacyPrefix,
		},
	)
	if serviceError != nil {
		return summary, runner.failRun(serviceError)
	}

	for _, repository := range discoveryResult.Repositories {
		outcome, migrationError := migrationService.Migrate(executionContext, repository)
		if migrationError != nil {
			summary.Failed++
			return summary, runner.failRun(migrationError)
		}

		switch outcome.Status {
		case state.StatusSkipped:
			summary.Skipped++
		case state.StatusMigrated:
			summary.Migrated++
		}
	}

	runner.runLogger.Info(runCompletedMessageConstant,
		zap.Int(discoveredCountFieldNameConstant, summary.Discovered),
		zap.Int(migratedCountFieldNameConstant, summary.Migrated),
		zap.Int(skippedCountFieldNameConstant, summary.Skipped),
		zap.Int(failedCountFieldNameConstant, summary.Failed),
	)

	return summary, nil
}

func (runner *Runner) failRun(fatalError error) error {
	runner.errorLogger.Error(runFailedMessageConstant, zap.Error(fatalError))
	return fatalError
}
