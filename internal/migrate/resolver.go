package migrate

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/gmig/internal/gitlabapi"
)

const (
	groupPathSeparatorConstant            = "/"
	groupAPIMissingMessageConstant        = "group API not configured"
	groupCacheMissingMessageConstant      = "group cache not configured"
	groupResolvedFromSearchMessage        = "Group resolved via name search"
	groupResolvedFromDirectLookupMessage  = "Group resolved via direct path lookup"
	groupPathFieldNameConstant            = "group_path"
	instanceURLFieldNameConstant          = "instance_url"
)

// GroupAPI describes the lookup operations the resolver requires.
type GroupAPI interface {
	SearchGroups(executionContext context.Context, instance gitlabapi.Instance, nameFragment string) ([]gitlabapi.Group, error)
	GetGroupByPath(executionContext context.Context, instance gitlabapi.Instance, fullPath string) (gitlabapi.Group, bool, error)
}

// GroupResolver resolves group paths to canonical group records with memoization.
type GroupResolver struct {
	logger     *zap.Logger
	groupAPI   GroupAPI
	groupCache *GroupCache
}

var (
	errGroupAPIMissing   = errors.New(groupAPIMissingMessageConstant)
	errGroupCacheMissing = errors.New(groupCacheMissingMessageConstant)
)

// NewGroupResolver constructs a GroupResolver with the provided collaborators.
func NewGroupResolver(logger *zap.Logger, groupAPI GroupAPI, groupCache *GroupCache) (*GroupResolver, error) {
	if groupAPI == nil {
		return nil, errGroupAPIMissing
	}
	if groupCache == nil {
		return nil, errGroupCacheMissing
	}

	resolvedLogger := logger
	if resolvedLogger == nil {
		resolvedLogger = zap.NewNop()
	}

	return &GroupResolver{logger: resolvedLogger, groupAPI: groupAPI, groupCache: groupCache}, nil
}

// Resolve returns the group whose canonical full path equals groupPath.
//
// A group that neither lookup strategy locates yields GroupNotFoundError.
func (resolver *GroupResolver) Resolve(executionContext context.Context, instance gitlabapi.Instance, groupPath string) (gitlabapi.Group, error) {
	resolvedGroup, groupFound, lookupError := resolver.Lookup(executionContext, instance, groupPath)
	if lookupError != nil {
		return gitlabapi.Group{}, lookupError
	}
	if !groupFound {
		return gitlabapi.Group{}, GroupNotFoundError{BaseURL: instance.BaseURL, GroupPath: groupPath}
	}
	return resolvedGroup, nil
}

// Lookup locates a group by full path, reporting absence without an error.
//
// The name search can return false negatives when group names are not unique,
// so a direct path-encoded fetch backs it up; the exact full-path filter on
// search results prevents false positives from partial-name matches.
func (resolver *GroupResolver) Lookup(executionContext context.Context, instance gitlabapi.Instance, groupPath string) (gitlabapi.Group, bool, error) {
	if cachedGroup, cacheHit := resolver.groupCache.Lookup(instance.BaseURL, groupPath); cacheHit {
		return cachedGroup, true, nil
	}

	searchFragment := lastPathSegment(groupPath)
	searchedGroups, searchError := resolver.groupAPI.SearchGroups(executionContext, instance, searchFragment)
	if searchError != nil {
		return gitlabapi.Group{}, false, searchError
	}

	for _, candidateGroup := range searchedGroups {
		if candidateGroup.FullPath != groupPath {
			continue
		}

		resolver.groupCache.Store(instance.BaseURL, groupPath, candidateGroup)
		resolver.logger.Debug(
			groupResolvedFromSearchMessage,
			zap.String(groupPathFieldNameConstant, groupPath),
			zap.String(instanceURLFieldNameConstant, instance.BaseURL),
		)
		return candidateGroup, true, nil
	}

	directGroup, directFound, directError := resolver.groupAPI.GetGroupByPath(executionContext, instance, groupPath)
	if directError != nil {
		return gitlabapi.Group{}, false, directError
	}
	if !directFound {
		return gitlabapi.Group{}, false, nil
	}

	resolver.groupCache.Store(instance.BaseURL, groupPath, directGroup)
	resolver.logger.Debug(
		groupResolvedFromDirectLookupMessage,
		zap.String(groupPathFieldNameConstant, groupPath),
		zap.String(instanceURLFieldNameConstant, instance.BaseURL),
	)
	return directGroup, true, nil
}

func lastPathSegment(groupPath string) string {
	pathSegments := strings.Split(groupPath, groupPathSeparatorConstant)
	return pathSegments[len(pathSegments)-1]
}
