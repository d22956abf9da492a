package migrate

import "github.com/temirov/gmig/internal/gitlabapi"

type groupCacheKey struct {
	baseURL  string
	fullPath string
}

// GroupCache memoizes group lookups per hosting instance.
//
// Entries are write-once within a run: the first successful fetch wins and is
// never refreshed, so cached groups are point-in-time snapshots.
type GroupCache struct {
	entries map[groupCacheKey]gitlabapi.Group
}

// NewGroupCache constructs an empty group cache.
func NewGroupCache() *GroupCache {
	return &GroupCache{entries: map[groupCacheKey]gitlabapi.Group{}}
}

// Lookup returns the cached group for the instance URL and full path.
func (cache *GroupCache) Lookup(baseURL string, fullPath string) (gitlabapi.Group, bool) {
	cachedGroup, entryExists := cache.entries[groupCacheKey{baseURL: baseURL, fullPath: fullPath}]
	return cachedGroup, entryExists
}

// Store records the group under the instance URL and full path unless already present.
func (cache *GroupCache) Store(baseURL string, fullPath string, group gitlabapi.Group) {
	cacheKey := groupCacheKey{baseURL: baseURL, fullPath: fullPath}
	if _, entryExists := cache.entries[cacheKey]; entryExists {
		return
	}
	cache.entries[cacheKey] = group
}
