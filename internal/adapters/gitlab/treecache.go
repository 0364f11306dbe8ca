package gitlab

import "sync"

// treeCache holds repository tree listings per project. Tree fetches are
// the most expensive repeated call during indexing, so the result is kept
// until a project-scoped refresh invalidates it.
type treeCache struct {
	mu    sync.RWMutex
	trees map[int][]string
}

func newTreeCache() *treeCache {
	return &treeCache{trees: make(map[int][]string)}
}

func (tc *treeCache) get(projectID int) ([]string, bool) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	paths, ok := tc.trees[projectID]
	return paths, ok
}

func (tc *treeCache) put(projectID int, paths []string) {
	tc.mu.Lock()
	tc.trees[projectID] = paths
	tc.mu.Unlock()
}

func (tc *treeCache) invalidate(projectID int) {
	tc.mu.Lock()
	delete(tc.trees, projectID)
	tc.mu.Unlock()
}
