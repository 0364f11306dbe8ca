package index

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alekspetrov/concierge/internal/adapters/gitlab"
)

func TestTrigrams(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"shorter than three runes", "ab", []string{"ab"}},
		{"exactly three", "abc", []string{"abc"}},
		{"sliding windows", "Hello", []string{"hel", "ell", "llo"}},
		{"unicode runes", "héllo", []string{"hél", "éll", "llo"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Trigrams(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("Trigrams(%q) = %v, want %v", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Trigrams(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestTrigramsWindowCount(t *testing.T) {
	// A string of length L >= 3 yields exactly L-2 windows before dedup.
	s := "abcdefghij"
	if got := len(Trigrams(s)); got != len(s)-2 {
		t.Errorf("got %d trigrams, want %d", got, len(s)-2)
	}
}

func TestContentHashEqualInputs(t *testing.T) {
	if ContentHash("fn main()") != ContentHash("fn main()") {
		t.Error("equal inputs must hash equal")
	}
	if ContentHash("a") == ContentHash("b") {
		t.Error("distinct short inputs should not collide")
	}
}

func TestSearchIntersection(t *testing.T) {
	ix := New()
	ix.AddFile("src/main.rs", "fn main(){println!}")
	ix.AddFile("src/lib.rs", "pub fn add")

	got := ix.Search([]string{"main", "println"})
	if len(got) != 1 || got[0] != "src/main.rs" {
		t.Errorf(`Search(["main","println"]) = %v, want [src/main.rs]`, got)
	}

	got = ix.Search([]string{"fn"})
	sort.Strings(got)
	if len(got) != 2 || got[0] != "src/lib.rs" || got[1] != "src/main.rs" {
		t.Errorf(`Search(["fn"]) = %v, want both files`, got)
	}
}

func TestSearchShortKeyword(t *testing.T) {
	ix := New()
	ix.AddFile("src/main.rs", "fn main(){println!}")
	ix.AddFile("src/lib.rs", "pub fn add")

	// Two-rune keywords have no trigram of their own and must match via
	// substring containment against indexed grams.
	got := ix.Search([]string{"fn"})
	sort.Strings(got)
	if len(got) != 2 || got[0] != "src/lib.rs" || got[1] != "src/main.rs" {
		t.Errorf(`Search(["fn"]) = %v, want both files`, got)
	}

	if got := ix.Search([]string{"qz"}); len(got) != 0 {
		t.Errorf(`Search(["qz"]) = %v, want empty`, got)
	}

	// Short keywords still participate in the intersection.
	got = ix.Search([]string{"fn", "println"})
	if len(got) != 1 || got[0] != "src/main.rs" {
		t.Errorf(`Search(["fn","println"]) = %v, want [src/main.rs]`, got)
	}
}

func TestSearchEmptyKeywords(t *testing.T) {
	ix := New()
	ix.AddFile("a.go", "package main")
	if got := ix.Search(nil); got != nil {
		t.Errorf("Search(nil) = %v, want nil", got)
	}
}

func TestSearchUnknownKeywordCollapsesToEmpty(t *testing.T) {
	ix := New()
	ix.AddFile("a.go", "package main")
	if got := ix.Search([]string{"package", "zzzqqq"}); len(got) != 0 {
		t.Errorf("Search with unmatched keyword = %v, want empty", got)
	}
}

func TestAddFileUnchangedContentIsNoop(t *testing.T) {
	ix := New()
	ix.AddFile("a.go", "package main")
	files, grams := ix.FileCount(), ix.TrigramCount()

	ix.AddFile("a.go", "package main")
	if ix.FileCount() != files || ix.TrigramCount() != grams {
		t.Error("re-adding unchanged content must not grow the index")
	}
}

func TestAddFileChangedContentReplacesEntries(t *testing.T) {
	ix := New()
	ix.AddFile("a.go", "alpha")
	ix.AddFile("a.go", "omega")

	if got := ix.Search([]string{"alpha"}); len(got) != 0 {
		t.Errorf("stale content still searchable: %v", got)
	}
	if got := ix.Search([]string{"omega"}); len(got) != 1 || got[0] != "a.go" {
		t.Errorf("new content not searchable: %v", got)
	}
}

func TestRemoveFileNeverReturnedAgain(t *testing.T) {
	ix := New()
	ix.AddFile("a.go", "package main")
	ix.RemoveFile("a.go")

	if got := ix.Search([]string{"package"}); len(got) != 0 {
		t.Errorf("removed file still searchable: %v", got)
	}
	if ix.FileCount() != 0 {
		t.Errorf("FileCount = %d after removal, want 0", ix.FileCount())
	}
	// Every bucket the file occupied alone must be purged.
	if ix.TrigramCount() != 0 {
		t.Errorf("TrigramCount = %d after removal, want 0", ix.TrigramCount())
	}
}

func TestIndexedContentIsSearchableByItsTrigrams(t *testing.T) {
	ix := New()
	content := "func handleMention(note Note) error"
	ix.AddFile("handler.go", content)

	for _, gram := range Trigrams(content) {
		found := false
		for _, path := range ix.Search([]string{gram}) {
			if path == "handler.go" {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("trigram %q of indexed content does not find the file", gram)
		}
	}
}

func TestShortContentIndexedWhole(t *testing.T) {
	ix := New()
	ix.AddFile("t.sh", "ok")
	if got := ix.Search([]string{"ok"}); len(got) != 1 || got[0] != "t.sh" {
		t.Errorf("Search for short content = %v, want [t.sh]", got)
	}
}

func TestShouldIndexFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"src/main.go", true},
		{"src/lib.rs", true},
		{"README.md", true},
		{"web/app.vue", true},
		{"image.png", false},
		{"binary", false},
		{"trailing.", false},
		{"src/Main.GO", false}, // extension match is case-sensitive
	}
	for _, tt := range tests {
		if got := ShouldIndexFile(tt.path); got != tt.want {
			t.Errorf("ShouldIndexFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestTimeSinceLastBuild(t *testing.T) {
	ix := New()
	if _, built := ix.TimeSinceLastBuild(); built {
		t.Error("fresh index should report never built")
	}

	base := time.Now()
	ix.now = func() time.Time { return base }
	ix.markBuilt()
	ix.now = func() time.Time { return base.Add(10 * time.Minute) }

	age, built := ix.TimeSinceLastBuild()
	if !built || age != 10*time.Minute {
		t.Errorf("TimeSinceLastBuild() = %v, %v; want 10m, true", age, built)
	}
}

// fakeFetcher serves an in-memory repository for builder tests.
type fakeFetcher struct {
	mu    sync.Mutex
	tree  []string
	files map[string]string
	fails map[string]bool
	calls int
}

func (f *fakeFetcher) GetRepositoryTree(ctx context.Context, projectID int) ([]string, error) {
	return f.tree, nil
}

func (f *fakeFetcher) GetFileContent(ctx context.Context, projectID int, path, ref string) (*gitlab.RepositoryFile, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fails[path] {
		return nil, fmt.Errorf("fetch failed")
	}
	content, ok := f.files[path]
	if !ok {
		return nil, gitlab.ErrFileNotFound
	}
	return &gitlab.RepositoryFile{FilePath: path, Content: content}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildIndexesSourceFiles(t *testing.T) {
	fetcher := &fakeFetcher{
		tree: []string{"src/main.go", "src/util.go", "logo.png", "notes.txt"},
		files: map[string]string{
			"src/main.go": "package main\nfunc main() {}",
			"src/util.go": "package main\nfunc helper() {}",
		},
	}

	ix := New()
	if err := ix.Build(context.Background(), fetcher, 7, "main", discardLogger()); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if ix.FileCount() != 2 {
		t.Errorf("FileCount = %d, want 2 (non-source files skipped)", ix.FileCount())
	}
	if _, built := ix.TimeSinceLastBuild(); !built {
		t.Error("successful build must mark the index built")
	}
}

func TestBuildSkipsOversizedFiles(t *testing.T) {
	fetcher := &fakeFetcher{
		tree: []string{"big.go", "small.go"},
		files: map[string]string{
			"big.go":   strings.Repeat("x", MaxFileSizeBytes+1),
			"small.go": "package main",
		},
	}

	ix := New()
	if err := ix.Build(context.Background(), fetcher, 7, "main", discardLogger()); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if ix.FileCount() != 1 {
		t.Errorf("FileCount = %d, want 1 (oversized skipped)", ix.FileCount())
	}
}

func TestBuildToleratesFileErrors(t *testing.T) {
	fetcher := &fakeFetcher{
		tree:  []string{"ok.go", "broken.go"},
		files: map[string]string{"ok.go": "package main"},
		fails: map[string]bool{"broken.go": true},
	}

	ix := New()
	if err := ix.Build(context.Background(), fetcher, 7, "main", discardLogger()); err != nil {
		t.Fatalf("Build() should tolerate per-file errors, got %v", err)
	}
	if ix.FileCount() != 1 {
		t.Errorf("FileCount = %d, want 1", ix.FileCount())
	}
}

func TestBuildPrunesDeletedFiles(t *testing.T) {
	fetcher := &fakeFetcher{
		tree: []string{"keep.go", "gone.go"},
		files: map[string]string{
			"keep.go": "package main",
			"gone.go": "func obsolete() {}",
		},
	}

	ix := New()
	if err := ix.Build(context.Background(), fetcher, 7, "main", discardLogger()); err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if ix.FileCount() != 2 {
		t.Fatalf("FileCount = %d after first build, want 2", ix.FileCount())
	}

	fetcher.tree = []string{"keep.go"}
	if err := ix.Build(context.Background(), fetcher, 7, "main", discardLogger()); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if ix.FileCount() != 1 {
		t.Errorf("FileCount = %d after rebuild, want 1", ix.FileCount())
	}
	if got := ix.Search([]string{"obsolete"}); len(got) != 0 {
		t.Errorf("deleted file still searchable: %v", got)
	}
	if got := ix.Search([]string{"package"}); len(got) != 1 || got[0] != "keep.go" {
		t.Errorf("surviving file lost: %v", got)
	}
}

func TestRegistryLazyCreationAndRefresh(t *testing.T) {
	fetcher := &fakeFetcher{
		tree:  []string{"a.go"},
		files: map[string]string{"a.go": "package a"},
	}
	reg := NewRegistry(fetcher, "main", time.Minute)

	ix := reg.Get(7)
	if ix == nil || ix.FileCount() != 0 {
		t.Fatal("Get must lazily create an empty index")
	}
	if reg.Get(7) != ix {
		t.Error("Get must return the same index per project")
	}

	if err := reg.RefreshProject(context.Background(), 7); err != nil {
		t.Fatalf("RefreshProject() error = %v", err)
	}
	if ix.FileCount() != 1 {
		t.Errorf("FileCount = %d after refresh, want 1", ix.FileCount())
	}
}
