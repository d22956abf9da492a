package migrate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/temirov/gmig/internal/gitlabapi"
	"github.com/temirov/gmig/internal/migrate"
	"github.com/temirov/gmig/internal/state"
	"github.com/temirov/gmig/internal/transfer"
)

const (
	testSourceTokenConstant      = "source-token"
	testDestinationTokenConstant = "destination-token"
	testLegacyPrefixConstant     = "legacy/"
)

type descriptionUpdate struct {
	projectIdentifier int
	description       string
}

type sequencedProjectAPI struct {
	searchResponses    [][]gitlabapi.Project
	searchCallCount    int
	searchError        error
	descriptionUpdates []descriptionUpdate
	updateError        error
}

func (projectAPI *sequencedProjectAPI) SearchProjects(_ context.Context, _ gitlabapi.Instance, _ string) ([]gitlabapi.Project, error) {
	if projectAPI.searchError != nil {
		return nil, projectAPI.searchError
	}
	responseIndex := projectAPI.searchCallCount
	projectAPI.searchCallCount++
	if responseIndex >= len(projectAPI.searchResponses) {
		return nil, nil
	}
	return projectAPI.searchResponses[responseIndex], nil
}

func (projectAPI *sequencedProjectAPI) UpdateProjectDescription(_ context.Context, _ gitlabapi.Instance, projectIdentifier int, description string) error {
	projectAPI.descriptionUpdates = append(projectAPI.descriptionUpdates, descriptionUpdate{projectIdentifier: projectIdentifier, description: description})
	return projectAPI.updateError
}

type recordingGroupEnsurer struct {
	ensuredRelativePaths []string
	ensureError          error
}

func (groupEnsurer *recordingGroupEnsurer) EnsureGroupPath(_ context.Context, relativePath string) (gitlabapi.Group, error) {
	groupEnsurer.ensuredRelativePaths = append(groupEnsurer.ensuredRelativePaths, relativePath)
	if groupEnsurer.ensureError != nil {
		return gitlabapi.Group{}, groupEnsurer.ensureError
	}
	return gitlabapi.Group{ID: 99}, nil
}

type recordingTransferrer struct {
	outcome         transfer.Outcome
	transferError   error
	sourceURLs      []string
	destinationURLs []string
}

func (transferrer *recordingTransferrer) Transfer(_ context.Context, sourceURL string, destinationURL string) (transfer.Outcome, error) {
	transferrer.sourceURLs = append(transferrer.sourceURLs, sourceURL)
	transferrer.destinationURLs = append(transferrer.destinationURLs, destinationURL)
	if transferrer.transferError != nil {
		return transfer.Outcome{}, transferrer.transferError
	}
	return transferrer.outcome, nil
}

type recordingStatusStore struct {
	upsertedRecords []state.Record
	flushCallCount  int
	flushError      error
}

func (statusStore *recordingStatusStore) Upsert(record state.Record) {
	statusStore.upsertedRecords = append(statusStore.upsertedRecords, record)
}

func (statusStore *recordingStatusStore) Flush() error {
	statusStore.flushCallCount++
	return statusStore.flushError
}

func (statusStore *recordingStatusStore) lastStatus() state.Status {
	if len(statusStore.upsertedRecords) == 0 {
		return ""
	}
	return statusStore.upsertedRecords[len(statusStore.upsertedRecords)-1].Status
}

type serviceFixture struct {
	projectAPI  *sequencedProjectAPI
	ensurer     *recordingGroupEnsurer
	transferrer *recordingTransferrer
	statusStore *recordingStatusStore
	sleepCalls  []time.Duration
	service     *migrate.Service
}

func newServiceFixture(testInstance *testing.T, projectAPI *sequencedProjectAPI, transferrer *recordingTransferrer, skipNames []string) *serviceFixture {
	testInstance.Helper()

	fixture := &serviceFixture{
		projectAPI:  projectAPI,
		ensurer:     &recordingGroupEnsurer{},
		transferrer: transferrer,
		statusStore: &recordingStatusStore{},
	}

	migrationService, serviceError := migrate.NewService(
		migrate.ServiceDependencies{
			ProjectAPI:      fixture.projectAPI,
			GroupReplicator: fixture.ensurer,
			Transferrer:     fixture.transferrer,
			StatusStore:     fixture.statusStore,
			Sleep: func(waitDuration time.Duration) {
				fixture.sleepCalls = append(fixture.sleepCalls, waitDuration)
			},
		},
		migrate.ServiceConfiguration{
			Source:              gitlabapi.Instance{BaseURL: testSourceInstanceURLConstant, Token: testSourceTokenConstant},
			SourceRootPath:      testRootGroupPathConstant,
			Destination:         gitlabapi.Instance{BaseURL: testDestinationInstanceURLConstant, Token: testDestinationTokenConstant},
			DestinationRootPath: testDestinationRootPathConstant,
			SkipRepositoryNames: skipNames,
			LegacyPrefix:        testLegacyPrefixConstant,
		},
	)
	require.NoError(testInstance, serviceError)
	fixture.service = migrationService

	return fixture
}

func TestServiceSkipsConfiguredRepositories(testInstance *testing.T) {
	testInstance.Parallel()

	fixture := newServiceFixture(testInstance, &sequencedProjectAPI{}, &recordingTransferrer{}, []string{"retired-service"})

	repository := gitlabapi.Project{ID: 30, Name: "retired-service", PathWithNamespace: "org/retired-service", HTTPURLToRepo: "https://source.example.com/org/retired-service.git"}
	outcome, migrationError := fixture.service.Migrate(context.Background(), repository)
	require.NoError(testInstance, migrationError)

	require.Equal(testInstance, state.StatusSkipped, outcome.Status)
	require.Equal(testInstance, state.StatusSkipped, fixture.statusStore.lastStatus())
	require.Empty(testInstance, fixture.transferrer.sourceURLs)
	require.Zero(testInstance, fixture.projectAPI.searchCallCount)
}

func TestServiceRejectsInvalidRepositories(testInstance *testing.T) {
	testInstance.Parallel()

	testCases := []struct {
		name       string
		repository gitlabapi.Project
	}{
		{
			name:       "missing_identifier",
			repository: gitlabapi.Project{Name: "broken", PathWithNamespace: "org/broken", HTTPURLToRepo: "https://source.example.com/org/broken.git"},
		},
		{
			name:       "missing_namespace_path",
			repository: gitlabapi.Project{ID: 31, Name: "broken", HTTPURLToRepo: "https://source.example.com/org/broken.git"},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtestInstance *testing.T) {
			fixture := newServiceFixture(subtestInstance, &sequencedProjectAPI{}, &recordingTransferrer{}, nil)

			_, migrationError := fixture.service.Migrate(context.Background(), testCase.repository)

			var invalidRepositoryError migrate.InvalidRepositoryError
			require.ErrorAs(subtestInstance, migrationError, &invalidRepositoryError)
			require.Equal(subtestInstance, state.StatusFailed, fixture.statusStore.lastStatus())
			require.Empty(subtestInstance, fixture.transferrer.sourceURLs)
		})
	}
}

func TestServiceShortCircuitsWhenDestinationProjectExists(testInstance *testing.T) {
	testInstance.Parallel()

	existingDestinationProject := gitlabapi.Project{ID: 70, Name: "tooling", PathWithNamespace: "mirror/tooling"}
	projectAPI := &sequencedProjectAPI{searchResponses: [][]gitlabapi.Project{{existingDestinationProject}}}
	fixture := newServiceFixture(testInstance, projectAPI, &recordingTransferrer{}, nil)

	repository := gitlabapi.Project{ID: 32, Name: "tooling", PathWithNamespace: "org/tooling", HTTPURLToRepo: "https://source.example.com/org/tooling.git", Description: "Shared tooling"}
	outcome, migrationError := fixture.service.Migrate(context.Background(), repository)
	require.NoError(testInstance, migrationError)

	require.Equal(testInstance, state.StatusMigrated, outcome.Status)
	require.True(testInstance, outcome.AlreadyPresent)
	require.Equal(testInstance, "mirror/tooling", outcome.DestinationPath)
	require.Equal(testInstance, state.StatusMigrated, fixture.statusStore.lastStatus())
	require.Empty(testInstance, fixture.transferrer.sourceURLs)
	require.Empty(testInstance, fixture.ensurer.ensuredRelativePaths)
	require.Equal(testInstance, []descriptionUpdate{{projectIdentifier: 70, description: "Shared tooling"}}, projectAPI.descriptionUpdates)
}

func TestServiceMigratesNestedRepository(testInstance *testing.T) {
	testInstance.Parallel()

	verifiedProject := gitlabapi.Project{ID: 80, Name: "service-one", PathWithNamespace: "mirror/team-alpha/service-one"}
	projectAPI := &sequencedProjectAPI{searchResponses: [][]gitlabapi.Project{
		nil,
		{verifiedProject},
	}}
	transferrer := &recordingTransferrer{outcome: transfer.Outcome{OK: true}}
	fixture := newServiceFixture(testInstance, projectAPI, transferrer, nil)

	repository := gitlabapi.Project{
		ID:                33,
		Name:              "service-one",
		PathWithNamespace: "legacy/org/team-alpha/service-one",
		HTTPURLToRepo:     "https://source.example.com/org/team-alpha/service-one.git",
		Description:       "Alpha service",
	}
	outcome, migrationError := fixture.service.Migrate(context.Background(), repository)
	require.NoError(testInstance, migrationError)

	require.Equal(testInstance, state.StatusMigrated, outcome.Status)
	require.False(testInstance, outcome.AlreadyPresent)
	require.Equal(testInstance, "mirror/team-alpha/service-one", outcome.DestinationPath)

	require.Equal(testInstance, []string{"team-alpha"}, fixture.ensurer.ensuredRelativePaths)
	require.Equal(testInstance,
		[]string{"https://oauth2:" + testSourceTokenConstant + "@source.example.com/org/team-alpha/service-one.git"},
		transferrer.sourceURLs,
	)
	require.Equal(testInstance,
		[]string{"https://oauth2:" + testDestinationTokenConstant + "@destination.example.com/mirror/team-alpha/service-one.git"},
		transferrer.destinationURLs,
	)

	require.Equal(testInstance, []time.Duration{5 * time.Second}, fixture.sleepCalls)
	require.Equal(testInstance, []descriptionUpdate{{projectIdentifier: 80, description: "Alpha service"}}, projectAPI.descriptionUpdates)

	recordedStatuses := make([]state.Status, 0, len(fixture.statusStore.upsertedRecords))
	for _, upsertedRecord := range fixture.statusStore.upsertedRecords {
		recordedStatuses = append(recordedStatuses, upsertedRecord.Status)
	}
	require.Equal(testInstance, []state.Status{state.StatusInProgress, state.StatusMigrated}, recordedStatuses)
}

func TestServiceToleratesHiddenRefRejections(testInstance *testing.T) {
	testInstance.Parallel()

	verifiedProject := gitlabapi.Project{ID: 81, Name: "tooling", PathWithNamespace: "mirror/tooling"}
	projectAPI := &sequencedProjectAPI{searchResponses: [][]gitlabapi.Project{
		nil,
		{verifiedProject},
	}}
	transferrer := &recordingTransferrer{outcome: transfer.Outcome{OK: true, RejectedHiddenRef: true, Detail: "hidden ref rejected"}}
	fixture := newServiceFixture(testInstance, projectAPI, transferrer, nil)

	repository := gitlabapi.Project{ID: 34, Name: "tooling", PathWithNamespace: "org/tooling", HTTPURLToRepo: "https://source.example.com/org/tooling.git"}
	outcome, migrationError := fixture.service.Migrate(context.Background(), repository)
	require.NoError(testInstance, migrationError)

	require.Equal(testInstance, state.StatusMigrated, outcome.Status)
	require.Equal(testInstance, state.StatusMigrated, fixture.statusStore.lastStatus())
}

func TestServiceFailsWhenTransferRejected(testInstance *testing.T) {
	testInstance.Parallel()

	transferrer := &recordingTransferrer{outcome: transfer.Outcome{OK: false, Detail: "authentication failed"}}
	fixture := newServiceFixture(testInstance, &sequencedProjectAPI{}, transferrer, nil)

	repository := gitlabapi.Project{ID: 35, Name: "tooling", PathWithNamespace: "org/tooling", HTTPURLToRepo: "https://source.example.com/org/tooling.git"}
	_, migrationError := fixture.service.Migrate(context.Background(), repository)

	var transferFailedError migrate.TransferFailedError
	require.ErrorAs(testInstance, migrationError, &transferFailedError)
	require.Equal(testInstance, "org/tooling", transferFailedError.RepositoryPath)
	require.Equal(testInstance, state.StatusFailed, fixture.statusStore.lastStatus())
}

func TestServicePropagatesTransferExecutionErrors(testInstance *testing.T) {
	testInstance.Parallel()

	executionFailure := errors.New("git binary missing")
	transferrer := &recordingTransferrer{transferError: executionFailure}
	fixture := newServiceFixture(testInstance, &sequencedProjectAPI{}, transferrer, nil)

	repository := gitlabapi.Project{ID: 36, Name: "tooling", PathWithNamespace: "org/tooling", HTTPURLToRepo: "https://source.example.com/org/tooling.git"}
	_, migrationError := fixture.service.Migrate(context.Background(), repository)

	require.ErrorIs(testInstance, migrationError, executionFailure)
	require.Equal(testInstance, state.StatusFailed, fixture.statusStore.lastStatus())
}

func TestServiceBoundsVerificationAttempts(testInstance *testing.T) {
	testInstance.Parallel()

	transferrer := &recordingTransferrer{outcome: transfer.Outcome{OK: true}}
	fixture := newServiceFixture(testInstance, &sequencedProjectAPI{}, transferrer, nil)

	repository := gitlabapi.Project{ID: 37, Name: "tooling", PathWithNamespace: "org/tooling", HTTPURLToRepo: "https://source.example.com/org/tooling.git"}
	_, migrationError := fixture.service.Migrate(context.Background(), repository)

	var verificationFailedError migrate.VerificationFailedError
	require.ErrorAs(testInstance, migrationError, &verificationFailedError)
	require.Equal(testInstance, 3, verificationFailedError.Attempts)
	require.Equal(testInstance, []time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second}, fixture.sleepCalls)
	require.Equal(testInstance, state.StatusFailed, fixture.statusStore.lastStatus())
}

func TestServiceFailsParentGroupPreparation(testInstance *testing.T) {
	testInstance.Parallel()

	fixture := newServiceFixture(testInstance, &sequencedProjectAPI{}, &recordingTransferrer{}, nil)
	fixture.ensurer.ensureError = migrate.ParentGroupMissingError{ParentPath: "mirror"}

	repository := gitlabapi.Project{ID: 38, Name: "service-one", PathWithNamespace: "org/team-alpha/service-one", HTTPURLToRepo: "https://source.example.com/org/team-alpha/service-one.git"}
	_, migrationError := fixture.service.Migrate(context.Background(), repository)

	var parentMissingError migrate.ParentGroupMissingError
	require.ErrorAs(testInstance, migrationError, &parentMissingError)
	require.Equal(testInstance, state.StatusFailed, fixture.statusStore.lastStatus())
}
