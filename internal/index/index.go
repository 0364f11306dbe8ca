package index

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Index is the searchable trigram index of a single project. All methods
// are safe for concurrent use.
type Index struct {
	mu        sync.RWMutex
	trigrams  map[string]map[string]struct{} // trigram -> file paths
	hashes    map[string]uint64              // file path -> indexed content hash
	lastBuilt time.Time
	now       func() time.Time
}

// New creates an empty index.
func New() *Index {
	return &Index{
		trigrams: make(map[string]map[string]struct{}),
		hashes:   make(map[string]uint64),
		now:      time.Now,
	}
}

// AddFile indexes a file's content. Unchanged content (same hash as the
// previous add) is a no-op; changed content replaces the file's entries.
func (ix *Index) AddFile(path, content string) {
	hash := ContentHash(content)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if prev, ok := ix.hashes[path]; ok {
		if prev == hash {
			return
		}
		ix.removeLocked(path)
	}

	for _, gram := range Trigrams(content) {
		bucket, ok := ix.trigrams[gram]
		if !ok {
			bucket = make(map[string]struct{})
			ix.trigrams[gram] = bucket
		}
		bucket[path] = struct{}{}
	}
	ix.hashes[path] = hash
}

// RemoveFile drops a file from the index, purging any buckets it empties.
func (ix *Index) RemoveFile(path string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(path)
}

func (ix *Index) removeLocked(path string) {
	for gram, bucket := range ix.trigrams {
		delete(bucket, path)
		if len(bucket) == 0 {
			delete(ix.trigrams, gram)
		}
	}
	delete(ix.hashes, path)
}

// Search returns the paths whose content matches every keyword: per
// keyword, the union over its trigram buckets; across keywords, the
// intersection. An empty keyword list yields no results, and a keyword
// with no indexed trigrams collapses the intersection to empty.
func (ix *Index) Search(keywords []string) []string {
	if len(keywords) == 0 {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var result map[string]struct{}
	for _, keyword := range keywords {
		candidates := ix.candidatesFor(keyword)
		if len(candidates) == 0 {
			return nil
		}
		if result == nil {
			result = candidates
			continue
		}
		for path := range result {
			if _, ok := candidates[path]; !ok {
				delete(result, path)
			}
		}
		if len(result) == 0 {
			return nil
		}
	}

	paths := make([]string, 0, len(result))
	for path := range result {
		paths = append(paths, path)
	}
	return paths
}

// candidatesFor collects the paths that may contain the keyword. Keywords
// of three or more runes look up their sliding trigrams directly; shorter
// keywords have no trigram of their own, so every bucket whose gram
// contains them as a substring contributes instead. Callers hold the lock.
func (ix *Index) candidatesFor(keyword string) map[string]struct{} {
	candidates := make(map[string]struct{})

	lower := strings.ToLower(keyword)
	if utf8.RuneCountInString(lower) < 3 {
		for gram, bucket := range ix.trigrams {
			if !strings.Contains(gram, lower) {
				continue
			}
			for path := range bucket {
				candidates[path] = struct{}{}
			}
		}
		return candidates
	}

	for _, gram := range Trigrams(keyword) {
		for path := range ix.trigrams[gram] {
			candidates[path] = struct{}{}
		}
	}
	return candidates
}

// IndexedPaths returns every path currently in the index.
func (ix *Index) IndexedPaths() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	paths := make([]string, 0, len(ix.hashes))
	for path := range ix.hashes {
		paths = append(paths, path)
	}
	return paths
}

// FileCount returns the number of indexed files.
func (ix *Index) FileCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.hashes)
}

// TrigramCount returns the number of distinct trigrams in the index.
func (ix *Index) TrigramCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.trigrams)
}

// markBuilt records a successful build.
func (ix *Index) markBuilt() {
	ix.mu.Lock()
	ix.lastBuilt = ix.now()
	ix.mu.Unlock()
}

// TimeSinceLastBuild reports how long ago the index was last successfully
// built, and false if it was never built.
func (ix *Index) TimeSinceLastBuild() (time.Duration, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.lastBuilt.IsZero() {
		return 0, false
	}
	return ix.now().Sub(ix.lastBuilt), true
}
