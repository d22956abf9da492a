package migrate

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/gmig/internal/gitlabapi"
)

const (
	groupCreatorMissingMessageConstant   = "group creation API not configured"
	destinationGroupExistsMessage        = "Destination group already exists"
	destinationGroupCreatedMessage       = "Destination group created"
	destinationGroupPathFieldName        = "destination_group_path"
	sourceMetadataMissingMessageConstant = "Source group metadata not cached, deriving creation payload"
)

// GroupCreator describes the creation operation the replicator requires.
type GroupCreator interface {
	CreateGroup(executionContext context.Context, instance gitlabapi.Instance, payload gitlabapi.GroupCreatePayload) (gitlabapi.Group, error)
}

// GroupReplicator ensures destination group paths exist, copying attributes from the source tree.
type GroupReplicator struct {
	logger              *zap.Logger
	groupResolver       *GroupResolver
	groupCreator        GroupCreator
	groupCache          *GroupCache
	source              gitlabapi.Instance
	sourceRootPath      string
	destination         gitlabapi.Instance
	destinationRootPath string
}

// GroupReplicatorConfiguration captures the instance endpoints the replicator operates between.
type GroupReplicatorConfiguration struct {
	Source              gitlabapi.Instance
	SourceRootPath      string
	Destination         gitlabapi.Instance
	DestinationRootPath string
}

var errGroupCreatorMissing = errors.New(groupCreatorMissingMessageConstant)

// NewGroupReplicator constructs a GroupReplicator with the provided collaborators.
func NewGroupReplicator(logger *zap.Logger, groupResolver *GroupResolver, groupCreator GroupCreator, groupCache *GroupCache, configuration GroupReplicatorConfiguration) (*GroupReplicator, error) {
	if groupResolver == nil {
		return nil, errGroupResolverMissing
	}
	if groupCreator == nil {
		return nil, errGroupCreatorMissing
	}
	if groupCache == nil {
		return nil, errGroupCacheMissing
	}

	resolvedLogger := logger
	if resolvedLogger == nil {
		resolvedLogger = zap.NewNop()
	}

	return &GroupReplicator{
		logger:              resolvedLogger,
		groupResolver:       groupResolver,
		groupCreator:        groupCreator,
		groupCache:          groupCache,
		source:              configuration.Source,
		sourceRootPath:      configuration.SourceRootPath,
		destination:         configuration.Destination,
		destinationRootPath: configuration.DestinationRootPath,
	}, nil
}

// EnsureGroupPath guarantees destinationRoot/relativePath exists on the destination, idempotently.
//
// Pre-existing destination groups are authoritative and returned unchanged
// without attribute reconciliation. The immediate parent must already exist;
// the destination root group is never auto-created.
func (replicator *GroupReplicator) EnsureGroupPath(executionContext context.Context, relativePath string) (gitlabapi.Group, error) {
	targetPath := replicator.destinationRootPath + groupPathSeparatorConstant + relativePath

	parentPath := parentGroupPath(targetPath)
	parentGroup, parentFound, parentLookupError := replicator.groupResolver.Lookup(executionContext, replicator.destination, parentPath)
	if parentLookupError != nil {
		return gitlabapi.Group{}, parentLookupError
	}
	if !parentFound {
		return gitlabapi.Group{}, ParentGroupMissingError{ParentPath: parentPath}
	}

	existingGroup, targetFound, targetLookupError := replicator.groupResolver.Lookup(executionContext, replicator.destination, targetPath)
	if targetLookupError != nil {
		return gitlabapi.Group{}, targetLookupError
	}
	if targetFound {
		replicator.logger.Debug(destinationGroupExistsMessage, zap.String(destinationGroupPathFieldName, targetPath))
		return existingGroup, nil
	}

	creationPayload := replicator.buildCreationPayload(relativePath, parentGroup.ID)

	createdGroup, creationError := replicator.groupCreator.CreateGroup(executionContext, replicator.destination, creationPayload)
	if creationError != nil {
		return gitlabapi.Group{}, GroupCreateFailedError{TargetPath: targetPath, Cause: creationError}
	}

	replicator.groupCache.Store(replicator.destination.BaseURL, targetPath, createdGroup)
	replicator.logger.Info(destinationGroupCreatedMessage, zap.String(destinationGroupPathFieldName, targetPath))

	return createdGroup, nil
}

// buildCreationPayload copies name, path, and description from the analogous
// source group when its record is cached, otherwise derives them from the path.
func (replicator *GroupReplicator) buildCreationPayload(relativePath string, parentIdentifier int) gitlabapi.GroupCreatePayload {
	sourceGroupPath := replicator.sourceRootPath + groupPathSeparatorConstant + relativePath
	if sourceGroup, sourceCached := replicator.groupCache.Lookup(replicator.source.BaseURL, sourceGroupPath); sourceCached {
		return gitlabapi.GroupCreatePayload{
			Name:        sourceGroup.Name,
			Path:        sourceGroup.Path,
			ParentID:    parentIdentifier,
			Description: sourceGroup.Description,
		}
	}

	derivedName := lastPathSegment(relativePath)
	replicator.logger.Debug(sourceMetadataMissingMessageConstant, zap.String(destinationGroupPathFieldName, relativePath))

	return gitlabapi.GroupCreatePayload{
		Name:     derivedName,
		Path:     derivedName,
		ParentID: parentIdentifier,
	}
}

func parentGroupPath(fullPath string) string {
	lastSeparatorIndex := strings.LastIndex(fullPath, groupPathSeparatorConstant)
	if lastSeparatorIndex < 0 {
		return fullPath
	}
	return fullPath[:lastSeparatorIndex]
}
