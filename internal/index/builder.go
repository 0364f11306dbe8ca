package index

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/alekspetrov/concierge/internal/adapters/gitlab"
)

// Indexing limits. Large repositories are sampled rather than exhaustively
// indexed; oversized files are skipped entirely.
const (
	MaxFilesPerProject = 1000
	MaxFileSizeBytes   = 100000

	fetchConcurrency = 10
)

// indexableExtensions is the whitelist of source extensions worth indexing.
var indexableExtensions = map[string]struct{}{
	"rs": {}, "py": {}, "js": {}, "ts": {}, "tsx": {}, "jsx": {},
	"java": {}, "c": {}, "cpp": {}, "h": {}, "hpp": {}, "go": {},
	"rb": {}, "php": {}, "cs": {}, "scala": {}, "kt": {}, "swift": {},
	"sh": {}, "vue": {}, "svelte": {}, "md": {},
}

// ShouldIndexFile reports whether the path ends in a whitelisted source
// extension. The match is case-sensitive on the tail after the last dot.
func ShouldIndexFile(path string) bool {
	idx := strings.LastIndex(path, ".")
	if idx < 0 || idx == len(path)-1 {
		return false
	}
	_, ok := indexableExtensions[path[idx+1:]]
	return ok
}

// Fetcher is the slice of the forge client the builder needs.
type Fetcher interface {
	GetRepositoryTree(ctx context.Context, projectID int) ([]string, error)
	GetFileContent(ctx context.Context, projectID int, path, ref string) (*gitlab.RepositoryFile, error)
}

// Build populates the index from the project's repository tree, fetching
// file contents with bounded concurrency. Individual file failures are
// counted but do not abort the build.
func (ix *Index) Build(ctx context.Context, fetcher Fetcher, projectID int, ref string, logger *slog.Logger) error {
	paths, err := fetcher.GetRepositoryTree(ctx, projectID)
	if err != nil {
		return err
	}

	var candidates []string
	for _, path := range paths {
		if ShouldIndexFile(path) {
			candidates = append(candidates, path)
		}
		if len(candidates) >= MaxFilesPerProject {
			break
		}
	}

	// Drop files that no longer exist in the tree so deleted paths stop
	// turning up in search results.
	current := make(map[string]struct{}, len(candidates))
	for _, path := range candidates {
		current[path] = struct{}{}
	}
	removed := 0
	for _, path := range ix.IndexedPaths() {
		if _, ok := current[path]; !ok {
			ix.RemoveFile(path)
			removed++
		}
	}

	var (
		wg      sync.WaitGroup
		sem     = make(chan struct{}, fetchConcurrency)
		mu      sync.Mutex
		failed  int
		skipped int
	)

	for _, path := range candidates {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			defer func() { <-sem }()

			file, err := fetcher.GetFileContent(ctx, projectID, path, ref)
			if err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			if len(file.Content) > MaxFileSizeBytes {
				mu.Lock()
				skipped++
				mu.Unlock()
				return
			}
			ix.AddFile(path, file.Content)
		}(path)
	}
	wg.Wait()

	ix.markBuilt()

	logger.Info("Index build completed",
		slog.Int("project_id", projectID),
		slog.Int("files", ix.FileCount()),
		slog.Int("failed", failed),
		slog.Int("skipped_oversized", skipped),
	)

	return nil
}
