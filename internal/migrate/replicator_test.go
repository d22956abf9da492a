package migrate_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/gmig/internal/gitlabapi"
	"github.com/temirov/gmig/internal/migrate"
)

const (
	testDestinationRootPathConstant = "mirror"
	testRelativeGroupPathConstant   = "team-alpha"
)

type recordingGroupCreator struct {
	receivedPayloads []gitlabapi.GroupCreatePayload
	createdGroup     gitlabapi.Group
	creationError    error
}

func (groupCreator *recordingGroupCreator) CreateGroup(_ context.Context, _ gitlabapi.Instance, payload gitlabapi.GroupCreatePayload) (gitlabapi.Group, error) {
	groupCreator.receivedPayloads = append(groupCreator.receivedPayloads, payload)
	if groupCreator.creationError != nil {
		return gitlabapi.Group{}, groupCreator.creationError
	}
	return groupCreator.createdGroup, nil
}

func newTestGroupReplicator(testInstance *testing.T, groupAPI *stubGroupAPI, groupCreator *recordingGroupCreator, groupCache *migrate.GroupCache) *migrate.GroupReplicator {
	testInstance.Helper()

	groupResolver, resolverError := migrate.NewGroupResolver(nil, groupAPI, groupCache)
	require.NoError(testInstance, resolverError)

	groupReplicator, replicatorError := migrate.NewGroupReplicator(nil, groupResolver, groupCreator, groupCache, migrate.GroupReplicatorConfiguration{
		Source:              gitlabapi.Instance{BaseURL: testSourceInstanceURLConstant},
		SourceRootPath:      testRootGroupPathConstant,
		Destination:         gitlabapi.Instance{BaseURL: testDestinationInstanceURLConstant},
		DestinationRootPath: testDestinationRootPathConstant,
	})
	require.NoError(testInstance, replicatorError)

	return groupReplicator
}

func TestGroupReplicatorReturnsExistingGroupWithoutCreation(testInstance *testing.T) {
	testInstance.Parallel()

	destinationRoot := gitlabapi.Group{ID: 40, Name: "mirror", Path: "mirror", FullPath: testDestinationRootPathConstant}
	existingTarget := gitlabapi.Group{ID: 41, Name: "team-alpha", Path: "team-alpha", FullPath: "mirror/team-alpha", ParentID: intPointer(40)}
	groupAPI := &stubGroupAPI{
		groupsByPath: map[string]gitlabapi.Group{
			destinationRoot.FullPath: destinationRoot,
			existingTarget.FullPath:  existingTarget,
		},
	}
	groupCreator := &recordingGroupCreator{}
	groupReplicator := newTestGroupReplicator(testInstance, groupAPI, groupCreator, migrate.NewGroupCache())

	ensuredGroup, ensureError := groupReplicator.EnsureGroupPath(context.Background(), testRelativeGroupPathConstant)
	require.NoError(testInstance, ensureError)
	require.Equal(testInstance, existingTarget, ensuredGroup)
	require.Empty(testInstance, groupCreator.receivedPayloads)
}

func TestGroupReplicatorRequiresExistingParent(testInstance *testing.T) {
	testInstance.Parallel()

	groupCreator := &recordingGroupCreator{}
	groupReplicator := newTestGroupReplicator(testInstance, &stubGroupAPI{}, groupCreator, migrate.NewGroupCache())

	_, ensureError := groupReplicator.EnsureGroupPath(context.Background(), testRelativeGroupPathConstant)

	var parentMissingError migrate.ParentGroupMissingError
	require.ErrorAs(testInstance, ensureError, &parentMissingError)
	require.Equal(testInstance, testDestinationRootPathConstant, parentMissingError.ParentPath)
	require.Empty(testInstance, groupCreator.receivedPayloads)
}

func TestGroupReplicatorCreationPayloads(testInstance *testing.T) {
	testInstance.Parallel()

	destinationRoot := gitlabapi.Group{ID: 40, Name: "mirror", Path: "mirror", FullPath: testDestinationRootPathConstant}
	sourceGroup := gitlabapi.Group{ID: 5, Name: "Team Alpha", Path: "team-alpha", FullPath: "org/team-alpha", Description: "Alpha team"}

	testCases := []struct {
		name            string
		cacheSource     bool
		expectedPayload gitlabapi.GroupCreatePayload
	}{
		{
			name:        "payload_copies_cached_source_metadata",
			cacheSource: true,
			expectedPayload: gitlabapi.GroupCreatePayload{
				Name:        "Team Alpha",
				Path:        "team-alpha",
				ParentID:    40,
				Description: "Alpha team",
			},
		},
		{
			name:        "payload_derived_from_path_when_source_uncached",
			cacheSource: false,
			expectedPayload: gitlabapi.GroupCreatePayload{
				Name:     "team-alpha",
				Path:     "team-alpha",
				ParentID: 40,
			},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtestInstance *testing.T) {
			groupAPI := &stubGroupAPI{
				groupsByPath: map[string]gitlabapi.Group{
					destinationRoot.FullPath: destinationRoot,
				},
			}
			createdGroup := gitlabapi.Group{ID: 50, Name: testCase.expectedPayload.Name, Path: testCase.expectedPayload.Path, FullPath: "mirror/team-alpha"}
			groupCreator := &recordingGroupCreator{createdGroup: createdGroup}
			groupCache := migrate.NewGroupCache()
			if testCase.cacheSource {
				groupCache.Store(testSourceInstanceURLConstant, sourceGroup.FullPath, sourceGroup)
			}

			groupReplicator := newTestGroupReplicator(subtestInstance, groupAPI, groupCreator, groupCache)

			ensuredGroup, ensureError := groupReplicator.EnsureGroupPath(context.Background(), testRelativeGroupPathConstant)
			require.NoError(subtestInstance, ensureError)
			require.Equal(subtestInstance, createdGroup, ensuredGroup)
			require.Equal(subtestInstance, []gitlabapi.GroupCreatePayload{testCase.expectedPayload}, groupCreator.receivedPayloads)

			cachedGroup, groupCached := groupCache.Lookup(testDestinationInstanceURLConstant, "mirror/team-alpha")
			require.True(subtestInstance, groupCached)
			require.Equal(subtestInstance, createdGroup, cachedGroup)
		})
	}
}

func TestGroupReplicatorWrapsCreationFailures(testInstance *testing.T) {
	testInstance.Parallel()

	destinationRoot := gitlabapi.Group{ID: 40, Name: "mirror", Path: "mirror", FullPath: testDestinationRootPathConstant}
	groupAPI := &stubGroupAPI{
		groupsByPath: map[string]gitlabapi.Group{
			destinationRoot.FullPath: destinationRoot,
		},
	}
	creationFailure := errors.New("name already taken")
	groupCreator := &recordingGroupCreator{creationError: creationFailure}
	groupReplicator := newTestGroupReplicator(testInstance, groupAPI, groupCreator, migrate.NewGroupCache())

	_, ensureError := groupReplicator.EnsureGroupPath(context.Background(), testRelativeGroupPathConstant)

	var createFailedError migrate.GroupCreateFailedError
	require.ErrorAs(testInstance, ensureError, &createFailedError)
	require.Equal(testInstance, "mirror/team-alpha", createFailedError.TargetPath)
	require.ErrorIs(testInstance, ensureError, creationFailure)
}

func intPointer(value int) *int {
	return &value
}
