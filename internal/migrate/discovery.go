package migrate

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/temirov/gmig/internal/gitlabapi"
)

const (
	listingAPIMissingMessageConstant     = "listing API not configured"
	groupResolverMissingMessageConstant  = "group resolver not configured"
	repositoriesDiscoveredMessage        = "Repositories discovered"
	subgroupDiscoveredMessageConstant    = "Subgroup discovered"
	rootGroupFieldNameConstant           = "root_group"
	repositoryCountFieldNameConstant     = "repository_count"
	subgroupCountFieldNameConstant       = "subgroup_count"
	subgroupPathFieldNameConstant        = "subgroup_path"
)

// ListingAPI describes the listing operations repository discovery requires.
type ListingAPI interface {
	ListGroupProjects(executionContext context.Context, instance gitlabapi.Instance, groupIdentifier int) ([]gitlabapi.Project, error)
	ListGroupSubgroups(executionContext context.Context, instance gitlabapi.Instance, groupIdentifier int) ([]gitlabapi.Group, error)
}

// DiscoveryResult carries the deduplicated repository work list and the subgroups beneath the root.
type DiscoveryResult struct {
	Repositories []gitlabapi.Project
	Subgroups    []gitlabapi.Group
}

// RepositoryDiscovery walks the source group tree one level deep and collects repositories.
type RepositoryDiscovery struct {
	logger        *zap.Logger
	groupResolver *GroupResolver
	listingAPI    ListingAPI
	groupCache    *GroupCache
}

var (
	errListingAPIMissing    = errors.New(listingAPIMissingMessageConstant)
	errGroupResolverMissing = errors.New(groupResolverMissingMessageConstant)
)

// NewRepositoryDiscovery constructs a RepositoryDiscovery with the provided collaborators.
func NewRepositoryDiscovery(logger *zap.Logger, groupResolver *GroupResolver, listingAPI ListingAPI, groupCache *GroupCache) (*RepositoryDiscovery, error) {
	if groupResolver == nil {
		return nil, errGroupResolverMissing
	}
	if listingAPI == nil {
		return nil, errListingAPIMissing
	}
	if groupCache == nil {
		return nil, errGroupCacheMissing
	}

	resolvedLogger := logger
	if resolvedLogger == nil {
		resolvedLogger = zap.NewNop()
	}

	return &RepositoryDiscovery{
		logger:        resolvedLogger,
		groupResolver: groupResolver,
		listingAPI:    listingAPI,
		groupCache:    groupCache,
	}, nil
}

// Discover lists the repositories under the root group and its direct subgroups.
//
// Subgroups are walked a single level deep; deeper nesting is outside the
// supported tree shape. Repositories are deduplicated by clone URL with the
// later listing winning, and the result preserves insertion order.
func (discovery *RepositoryDiscovery) Discover(executionContext context.Context, instance gitlabapi.Instance, rootGroupPath string) (DiscoveryResult, error) {
	rootGroup, rootResolveError := discovery.groupResolver.Resolve(executionContext, instance, rootGroupPath)
	if rootResolveError != nil {
		return DiscoveryResult{}, rootResolveError
	}

	collectedRepositories := make([]gitlabapi.Project, 0)
	repositoryIndexesByURL := map[string]int{}

	collectRepositories := func(listedProjects []gitlabapi.Project) {
		for _, listedProject := range listedProjects {
			if existingIndex, alreadyCollected := repositoryIndexesByURL[listedProject.HTTPURLToRepo]; alreadyCollected {
				collectedRepositories[existingIndex] = listedProject
				continue
			}
			repositoryIndexesByURL[listedProject.HTTPURLToRepo] = len(collectedRepositories)
			collectedRepositories = append(collectedRepositories, listedProject)
		}
	}

	rootProjects, rootProjectsError := discovery.listingAPI.ListGroupProjects(executionContext, instance, rootGroup.ID)
	if rootProjectsError != nil {
		return DiscoveryResult{}, rootProjectsError
	}
	collectRepositories(rootProjects)

	directSubgroups, subgroupsError := discovery.listingAPI.ListGroupSubgroups(executionContext, instance, rootGroup.ID)
	if subgroupsError != nil {
		return DiscoveryResult{}, subgroupsError
	}

	for _, directSubgroup := range directSubgroups {
		discovery.groupCache.Store(instance.BaseURL, directSubgroup.FullPath, directSubgroup)
		discovery.logger.Debug(
			subgroupDiscoveredMessageConstant,
			zap.String(subgroupPathFieldNameConstant, directSubgroup.FullPath),
		)

		subgroupProjects, subgroupProjectsError := discovery.listingAPI.ListGroupProjects(executionContext, instance, directSubgroup.ID)
		if subgroupProjectsError != nil {
			return DiscoveryResult{}, subgroupProjectsError
		}
		collectRepositories(subgroupProjects)
	}

	discovery.logger.Info(
		repositoriesDiscoveredMessage,
		zap.String(rootGroupFieldNameConstant, rootGroupPath),
		zap.Int(repositoryCountFieldNameConstant, len(collectedRepositories)),
		zap.Int(subgroupCountFieldNameConstant, len(directSubgroups)),
	)

	return DiscoveryResult{Repositories: collectedRepositories, Subgroups: directSubgroups}, nil
}
