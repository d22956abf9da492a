package migrate

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/gmig/internal/gitlabapi"
	"github.com/temirov/gmig/internal/state"
	"github.com/temirov/gmig/internal/transfer"
)

const (
	projectAPIMissingMessageConstant        = "project API not configured"
	groupReplicatorMissingMessageConstant   = "group replicator not configured"
	transferrerMissingMessageConstant       = "transferrer not configured"
	statusStoreMissingMessageConstant       = "status store not configured"
	missingIdentifierReasonConstant         = "missing identifier"
	missingNamespacePathReasonConstant      = "missing namespace path"
	repositoryURLParseErrorReasonConstant   = "unparsable clone URL"
	tokenUserNameConstant                   = "oauth2"
	repositorySuffixConstant                = ".git"
	verificationAttemptLimitConstant        = 3
	verificationWaitUnitConstant            = 5 * time.Second
	statePersistErrorTemplateConstant       = "unable to persist migration status: %w"
	repositorySkippedMessageConstant        = "Repository skipped"
	repositoryAlreadyMigratedMessage        = "Repository already present on destination"
	repositoryTransferStartedMessage        = "Repository transfer started"
	repositoryMigratedMessageConstant       = "Repository migrated"
	hiddenRefWarningMessageConstant         = "Transfer rejected hidden refs only"
	descriptionUpdateFailedMessageConstant  = "Destination description update failed"
	verificationAttemptFailedMessage        = "Destination project not visible yet"
	statusFlushFailedMessageConstant        = "Unable to flush migration status after failure"
	repositoryFieldNameConstant             = "repository"
	destinationPathFieldNameConstant        = "destination_path"
	verificationAttemptFieldNameConstant    = "attempt"
	transferDetailFieldNameConstant         = "detail"
)

// ProjectAPI describes the project operations the migrator requires.
type ProjectAPI interface {
	SearchProjects(executionContext context.Context, instance gitlabapi.Instance, nameFragment string) ([]gitlabapi.Project, error)
	UpdateProjectDescription(executionContext context.Context, instance gitlabapi.Instance, projectIdentifier int, description string) error
}

// GroupPathEnsurer describes the destination namespace preparation the migrator requires.
type GroupPathEnsurer interface {
	EnsureGroupPath(executionContext context.Context, relativePath string) (gitlabapi.Group, error)
}

// Transferrer abstracts the opaque bulk copy of a repository's refs.
type Transferrer interface {
	Transfer(executionContext context.Context, sourceURL string, destinationURL string) (transfer.Outcome, error)
}

// StatusStore abstracts durable migration status persistence.
type StatusStore interface {
	Upsert(record state.Record)
	Flush() error
}

// ServiceDependencies describes required collaborators for repository migration.
type ServiceDependencies struct {
	Logger          *zap.Logger
	ProjectAPI      ProjectAPI
	GroupReplicator GroupPathEnsurer
	Transferrer     Transferrer
	StatusStore     StatusStore
	Sleep           func(waitDuration time.Duration)
}

// ServiceConfiguration captures the migration endpoints and policies.
type ServiceConfiguration struct {
	Source              gitlabapi.Instance
	SourceRootPath      string
	Destination         gitlabapi.Instance
	DestinationRootPath string
	SkipRepositoryNames []string
	LegacyPrefix        string
}

// MigrationOutcome captures the observable result of one repository migration.
type MigrationOutcome struct {
	Status          state.Status
	DestinationPath string
	AlreadyPresent  bool
}

// Service drives each repository through the skip/transfer/verify state machine.
type Service struct {
	logger          *zap.Logger
	projectAPI      ProjectAPI
	groupReplicator GroupPathEnsurer
	transferrer     Transferrer
	statusStore     StatusStore
	sleep           func(waitDuration time.Duration)
	configuration   ServiceConfiguration
	skipSet         map[string]struct{}
}

var (
	errProjectAPIMissing      = errors.New(projectAPIMissingMessageConstant)
	errGroupReplicatorMissing = errors.New(groupReplicatorMissingMessageConstant)
	errTransferrerMissing     = errors.New(transferrerMissingMessageConstant)
	errStatusStoreMissing     = errors.New(statusStoreMissingMessageConstant)
)

// NewService constructs a Service with the provided dependencies.
func NewService(dependencies ServiceDependencies, configuration ServiceConfiguration) (*Service, error) {
	if dependencies.ProjectAPI == nil {
		return nil, errProjectAPIMissing
	}
	if dependencies.GroupReplicator == nil {
		return nil, errGroupReplicatorMissing
	}
	if dependencies.Transferrer == nil {
		return nil, errTransferrerMissing
	}
	if dependencies.StatusStore == nil {
		return nil, errStatusStoreMissing
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sleep := dependencies.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	skipSet := make(map[string]struct{}, len(configuration.SkipRepositoryNames))
	for _, skipName := range configuration.SkipRepositoryNames {
		skipSet[skipName] = struct{}{}
	}

	return &Service{
		logger:          logger,
		projectAPI:      dependencies.ProjectAPI,
		groupReplicator: dependencies.GroupReplicator,
		transferrer:     dependencies.Transferrer,
		statusStore:     dependencies.StatusStore,
		sleep:           sleep,
		configuration:   configuration,
		skipSet:         skipSet,
	}, nil
}

// Migrate drives a single repository to a terminal status.
//
// Every returned error is fatal to the run; the repository's record is
// persisted as failed before the error propagates so the status list never
// shows an ambiguous in-progress entry after a controlled abort.
func (service *Service) Migrate(executionContext context.Context, repository gitlabapi.Project) (MigrationOutcome, error) {
	migrationRecord := state.Record{
		RepositoryURL:  repository.HTTPURLToRepo,
		RepositoryPath: repository.PathWithNamespace,
		Status:         state.StatusPending,
	}

	if _, skipRequested := service.skipSet[repository.Name]; skipRequested {
		service.logger.Info(repositorySkippedMessageConstant, zap.String(repositoryFieldNameConstant, repository.PathWithNamespace))
		if persistError := service.persistStatus(&migrationRecord, state.StatusSkipped); persistError != nil {
			return MigrationOutcome{}, persistError
		}
		return MigrationOutcome{Status: state.StatusSkipped}, nil
	}

	if repository.ID == 0 {
		return MigrationOutcome{}, service.failRepository(&migrationRecord, InvalidRepositoryError{RepositoryURL: repository.HTTPURLToRepo, Reason: missingIdentifierReasonConstant})
	}
	if len(strings.TrimSpace(repository.PathWithNamespace)) == 0 {
		return MigrationOutcome{}, service.failRepository(&migrationRecord, InvalidRepositoryError{RepositoryURL: repository.HTTPURLToRepo, Reason: missingNamespacePathReasonConstant})
	}

	relativePath := service.normalizeRelativePath(repository.PathWithNamespace)
	destinationPath := service.configuration.DestinationRootPath + groupPathSeparatorConstant + relativePath

	if strings.Contains(relativePath, groupPathSeparatorConstant) {
		if _, ensureError := service.groupReplicator.EnsureGroupPath(executionContext, parentGroupPath(relativePath)); ensureError != nil {
			return MigrationOutcome{}, service.failRepository(&migrationRecord, ensureError)
		}
	}

	existingProject, projectPresent, existenceError := service.findDestinationProject(executionContext, destinationPath)
	if existenceError != nil {
		return MigrationOutcome{}, service.failRepository(&migrationRecord, existenceError)
	}
	if projectPresent {
		service.logger.Info(
			repositoryAlreadyMigratedMessage,
			zap.String(repositoryFieldNameConstant, repository.PathWithNamespace),
			zap.String(destinationPathFieldNameConstant, destinationPath),
		)
		service.updateDescriptionBestEffort(executionContext, existingProject.ID, repository.Description, destinationPath)
		if persistError := service.persistStatus(&migrationRecord, state.StatusMigrated); persistError != nil {
			return MigrationOutcome{}, persistError
		}
		return MigrationOutcome{Status: state.StatusMigrated, DestinationPath: destinationPath, AlreadyPresent: true}, nil
	}

	if persistError := service.persistStatus(&migrationRecord, state.StatusInProgress); persistError != nil {
		return MigrationOutcome{}, persistError
	}

	sourceURL, sourceURLError := authenticatedCloneURL(repository.HTTPURLToRepo, service.configuration.Source.Token)
	if sourceURLError != nil {
		return MigrationOutcome{}, service.failRepository(&migrationRecord, InvalidRepositoryError{RepositoryURL: repository.HTTPURLToRepo, Reason: repositoryURLParseErrorReasonConstant})
	}
	destinationURL, destinationURLError := destinationCloneURL(service.configuration.Destination, destinationPath)
	if destinationURLError != nil {
		return MigrationOutcome{}, service.failRepository(&migrationRecord, destinationURLError)
	}

	service.logger.Info(
		repositoryTransferStartedMessage,
		zap.String(repositoryFieldNameConstant, repository.PathWithNamespace),
		zap.String(destinationPathFieldNameConstant, destinationPath),
	)

	transferOutcome, transferExecutionError := service.transferrer.Transfer(executionContext, sourceURL, destinationURL)
	if transferExecutionError != nil {
		return MigrationOutcome{}, service.failRepository(&migrationRecord, transferExecutionError)
	}
	if !transferOutcome.OK {
		return MigrationOutcome{}, service.failRepository(&migrationRecord, TransferFailedError{RepositoryPath: repository.PathWithNamespace, Detail: transferOutcome.Detail})
	}
	if transferOutcome.RejectedHiddenRef {
		service.logger.Warn(
			hiddenRefWarningMessageConstant,
			zap.String(repositoryFieldNameConstant, repository.PathWithNamespace),
			zap.String(transferDetailFieldNameConstant, transferOutcome.Detail),
		)
	}

	verifiedProject, verificationError := service.verifyDestinationProject(executionContext, destinationPath)
	if verificationError != nil {
		return MigrationOutcome{}, service.failRepository(&migrationRecord, verificationError)
	}

	service.updateDescriptionBestEffort(executionContext, verifiedProject.ID, repository.Description, destinationPath)

	if persistError := service.persistStatus(&migrationRecord, state.StatusMigrated); persistError != nil {
		return MigrationOutcome{}, persistError
	}

	service.logger.Info(
		repositoryMigratedMessageConstant,
		zap.String(repositoryFieldNameConstant, repository.PathWithNamespace),
		zap.String(destinationPathFieldNameConstant, destinationPath),
	)

	return MigrationOutcome{Status: state.StatusMigrated, DestinationPath: destinationPath}, nil
}

// normalizeRelativePath strips the legacy namespace prefix and the source root
// prefix from the repository path, yielding the path relative to the tree root.
func (service *Service) normalizeRelativePath(namespacePath string) string {
	normalizedPath := namespacePath
	if len(service.configuration.LegacyPrefix) > 0 {
		normalizedPath = strings.TrimPrefix(normalizedPath, service.configuration.LegacyPrefix)
	}
	sourceRootPrefix := service.configuration.SourceRootPath + groupPathSeparatorConstant
	normalizedPath = strings.TrimPrefix(normalizedPath, sourceRootPrefix)
	return normalizedPath
}

func (service *Service) findDestinationProject(executionContext context.Context, destinationPath string) (gitlabapi.Project, bool, error) {
	searchFragment := lastPathSegment(destinationPath)
	matchedProjects, searchError := service.projectAPI.SearchProjects(executionContext, service.configuration.Destination, searchFragment)
	if searchError != nil {
		return gitlabapi.Project{}, false, searchError
	}

	for _, matchedProject := range matchedProjects {
		if matchedProject.PathWithNamespace == destinationPath {
			return matchedProject, true, nil
		}
	}
	return gitlabapi.Project{}, false, nil
}

// verifyDestinationProject polls the destination existence check with linearly
// increasing waits until the transferred project is visible.
func (service *Service) verifyDestinationProject(executionContext context.Context, destinationPath string) (gitlabapi.Project, error) {
	for attemptIndex := 1; attemptIndex <= verificationAttemptLimitConstant; attemptIndex++ {
		service.sleep(time.Duration(attemptIndex) * verificationWaitUnitConstant)

		verifiedProject, projectPresent, existenceError := service.findDestinationProject(executionContext, destinationPath)
		if existenceError != nil {
			return gitlabapi.Project{}, existenceError
		}
		if projectPresent {
			return verifiedProject, nil
		}

		service.logger.Debug(
			verificationAttemptFailedMessage,
			zap.String(destinationPathFieldNameConstant, destinationPath),
			zap.Int(verificationAttemptFieldNameConstant, attemptIndex),
		)
	}

	return gitlabapi.Project{}, VerificationFailedError{TargetPath: destinationPath, Attempts: verificationAttemptLimitConstant}
}

// updateDescriptionBestEffort copies the source description onto the
// destination project; failures are logged and never affect the outcome.
func (service *Service) updateDescriptionBestEffort(executionContext context.Context, projectIdentifier int, description string, destinationPath string) {
	if updateError := service.projectAPI.UpdateProjectDescription(executionContext, service.configuration.Destination, projectIdentifier, description); updateError != nil {
		service.logger.Warn(
			descriptionUpdateFailedMessageConstant,
			zap.String(destinationPathFieldNameConstant, destinationPath),
			zap.Error(updateError),
		)
	}
}

func (service *Service) persistStatus(migrationRecord *state.Record, nextStatus state.Status) error {
	migrationRecord.Status = nextStatus
	service.statusStore.Upsert(*migrationRecord)
	if flushError := service.statusStore.Flush(); flushError != nil {
		return fmt.Errorf(statePersistErrorTemplateConstant, flushError)
	}
	return nil
}

// failRepository persists the failed status before propagating the fatal error.
func (service *Service) failRepository(migrationRecord *state.Record, fatalError error) error {
	migrationRecord.Status = state.StatusFailed
	service.statusStore.Upsert(*migrationRecord)
	if flushError := service.statusStore.Flush(); flushError != nil {
		service.logger.Error(statusFlushFailedMessageConstant, zap.Error(flushError))
	}
	return fatalError
}

func authenticatedCloneURL(cloneURL string, token string) (string, error) {
	parsedURL, parseError := url.Parse(cloneURL)
	if parseError != nil {
		return "", parseError
	}
	parsedURL.User = url.UserPassword(tokenUserNameConstant, token)
	return parsedURL.String(), nil
}

func destinationCloneURL(destination gitlabapi.Instance, destinationPath string) (string, error) {
	parsedURL, parseError := url.Parse(destination.BaseURL)
	if parseError != nil {
		return "", parseError
	}
	parsedURL.User = url.UserPassword(tokenUserNameConstant, destination.Token)
	parsedURL.Path = strings.TrimRight(parsedURL.Path, groupPathSeparatorConstant) + groupPathSeparatorConstant + destinationPath + repositorySuffixConstant
	return parsedURL.String(), nil
}
