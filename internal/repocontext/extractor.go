// Package repocontext selects repository files, sections and diffs to
// ground LLM prompts, bounded by a configured byte budget.
package repocontext

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/alekspetrov/concierge/internal/adapters/gitlab"
	"github.com/alekspetrov/concierge/internal/index"
	"github.com/alekspetrov/concierge/internal/logging"
)

// TruncationMarker is appended when the next piece of context would exceed
// the byte budget.
const TruncationMarker = "\n[... context truncated: size budget reached ...]\n"

// agentsFile is injected verbatim into the prompt when the repo has one.
const agentsFile = "AGENTS.md"

// maxContextFiles caps how many file bodies are included per prompt.
const maxContextFiles = 5

// commitHistoryLimit bounds commits fetched per changed file for MRs.
const commitHistoryLimit = 5

// Forge is the slice of the GitLab client the extractor uses.
type Forge interface {
	GetRepositoryTree(ctx context.Context, projectID int) ([]string, error)
	GetFileContent(ctx context.Context, projectID int, path, ref string) (*gitlab.RepositoryFile, error)
	GetMergeRequestChanges(ctx context.Context, projectID, iid int) ([]*gitlab.Change, error)
	GetFileCommits(ctx context.Context, projectID int, path string, limit int) ([]*gitlab.Commit, error)
}

// Config holds the extractor's prompt-shape knobs.
type Config struct {
	MaxContextSize int
	ContextLines   int
	DefaultBranch  string
}

// Extractor assembles grounding context for issues and merge requests.
type Extractor struct {
	forge   Forge
	indexes *index.Registry
	cfg     Config
	logger  *slog.Logger
}

// New creates an extractor.
func New(forge Forge, indexes *index.Registry, cfg Config) *Extractor {
	return &Extractor{
		forge:   forge,
		indexes: indexes,
		cfg:     cfg,
		logger:  logging.WithComponent("context-extractor"),
	}
}

// budget accumulates context pieces until the byte budget is hit, then
// emits the truncation marker exactly once and drops everything further.
type budget struct {
	b         strings.Builder
	limit     int
	truncated bool
}

func newBudget(limit int) *budget {
	return &budget{limit: limit}
}

// add appends a piece unless it would overflow the budget. Returns false
// once the budget is exhausted.
func (w *budget) add(piece string) bool {
	if w.truncated {
		return false
	}
	if w.b.Len()+len(piece) > w.limit {
		w.b.WriteString(TruncationMarker)
		w.truncated = true
		return false
	}
	w.b.WriteString(piece)
	return true
}

func (w *budget) String() string { return w.b.String() }

// ForIssue builds the repository context string for an issue mention:
// source-file listing, AGENTS.md if present, and the most relevant file
// sections found via the trigram index (or path heuristics as fallback).
func (e *Extractor) ForIssue(ctx context.Context, issue *gitlab.Issue, project *gitlab.Project, contextRepo *gitlab.Project) (string, error) {
	w := newBudget(e.cfg.MaxContextSize)
	keywords := ExtractKeywords(issue.Title, issue.Description)

	e.writeFileListing(ctx, w, project, contextRepo)
	e.writeAgentsFile(ctx, w, project)
	if contextRepo != nil {
		e.writeAgentsFile(ctx, w, contextRepo)
	}
	e.writeRelevantFiles(ctx, w, project, keywords)

	return w.String(), nil
}

// ForMR builds the repository context for a merge request, including its
// diffs, and separately returns a commit-history summary intended for the
// posted comment rather than the prompt.
func (e *Extractor) ForMR(ctx context.Context, mr *gitlab.MergeRequest, project *gitlab.Project, contextRepo *gitlab.Project) (string, string, error) {
	w := newBudget(e.cfg.MaxContextSize)

	e.writeFileListing(ctx, w, project, contextRepo)
	e.writeAgentsFile(ctx, w, project)
	if contextRepo != nil {
		e.writeAgentsFile(ctx, w, contextRepo)
	}

	changes, err := e.forge.GetMergeRequestChanges(ctx, project.ID, mr.IID)
	if err != nil {
		return "", "", fmt.Errorf("failed to fetch MR changes: %w", err)
	}

	for _, change := range changes {
		section := fmt.Sprintf("## Changes in %s\n\n```diff\n%s\n```\n\n", change.NewPath, change.Diff)
		if !w.add(section) {
			break
		}
	}

	history := e.commitHistory(ctx, project.ID, changes)

	return w.String(), history, nil
}

// writeFileListing emits the source-file paths of the project (and the
// optional context repo) under a header.
func (e *Extractor) writeFileListing(ctx context.Context, w *budget, project *gitlab.Project, contextRepo *gitlab.Project) {
	repos := []*gitlab.Project{project}
	if contextRepo != nil {
		repos = append(repos, contextRepo)
	}

	for _, repo := range repos {
		paths, err := e.forge.GetRepositoryTree(ctx, repo.ID)
		if err != nil {
			e.logger.Warn("Failed to list repository tree",
				slog.Int("project_id", repo.ID), slog.Any("error", err))
			continue
		}

		var listing strings.Builder
		fmt.Fprintf(&listing, "## Source files in %s\n\n", repo.PathWithNamespace)
		for _, path := range paths {
			if ScorePath(path, nil) > 0 {
				listing.WriteString("- " + path + "\n")
			}
		}
		listing.WriteString("\n")
		if !w.add(listing.String()) {
			return
		}
	}
}

// writeAgentsFile includes AGENTS.md verbatim when the repo has one at its
// default branch. Absence is routine and not an error.
func (e *Extractor) writeAgentsFile(ctx context.Context, w *budget, project *gitlab.Project) {
	ref := project.DefaultBranch
	if ref == "" {
		ref = e.cfg.DefaultBranch
	}
	file, err := e.forge.GetFileContent(ctx, project.ID, agentsFile, ref)
	if err != nil {
		if !errors.Is(err, gitlab.ErrFileNotFound) {
			e.logger.Warn("Failed to fetch AGENTS.md",
				slog.Int("project_id", project.ID), slog.Any("error", err))
		}
		return
	}
	w.add(fmt.Sprintf("## Repository guidance (%s)\n\n%s\n\n", agentsFile, file.Content))
}

// writeRelevantFiles finds keyword-matching files via the trigram index,
// falling back to path-only scoring when the index has nothing, and emits
// the top files as extracted sections (whole files only when no section
// matches).
func (e *Extractor) writeRelevantFiles(ctx context.Context, w *budget, project *gitlab.Project, keywords []string) {
	if len(keywords) == 0 {
		return
	}

	candidates := e.indexes.Query(project.ID).Search(keywords)
	if len(candidates) == 0 {
		candidates = e.pathFallback(ctx, project.ID, keywords)
	}
	if len(candidates) == 0 {
		return
	}

	ref := project.DefaultBranch
	if ref == "" {
		ref = e.cfg.DefaultBranch
	}

	type scored struct {
		path    string
		content string
		score   int
	}
	var files []scored
	for _, path := range candidates {
		file, err := e.forge.GetFileContent(ctx, project.ID, path, ref)
		if err != nil {
			continue
		}
		files = append(files, scored{
			path:    path,
			content: file.Content,
			score:   index.RelevanceScore(file.Content, keywords),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].score > files[j].score })
	if len(files) > maxContextFiles {
		files = files[:maxContextFiles]
	}

	for _, f := range files {
		sections := index.ExtractSections(f.content, keywords, e.cfg.ContextLines)
		var piece strings.Builder
		fmt.Fprintf(&piece, "## Relevant content from %s\n\n", f.path)
		if len(sections) == 0 {
			fmt.Fprintf(&piece, "```\n%s\n```\n\n", f.content)
		} else {
			for _, s := range sections {
				fmt.Fprintf(&piece, "Lines %d-%d:\n```\n%s\n```\n\n",
					s.StartLine, s.EndLine, strings.Join(s.Lines, "\n"))
			}
		}
		if !w.add(piece.String()) {
			return
		}
	}
}

// pathFallback ranks tree paths by shape when the index yields nothing.
func (e *Extractor) pathFallback(ctx context.Context, projectID int, keywords []string) []string {
	paths, err := e.forge.GetRepositoryTree(ctx, projectID)
	if err != nil {
		return nil
	}

	type scored struct {
		path  string
		score int
	}
	var ranked []scored
	for _, path := range paths {
		if s := ScorePath(path, keywords); s > 0 {
			ranked = append(ranked, scored{path, s})
		}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	n := len(ranked)
	if n > maxContextFiles {
		n = maxContextFiles
	}
	out := make([]string, 0, n)
	for _, r := range ranked[:n] {
		out = append(out, r.path)
	}
	return out
}

// commitHistory builds a short per-file commit summary for the changed
// files of a merge request.
func (e *Extractor) commitHistory(ctx context.Context, projectID int, changes []*gitlab.Change) string {
	var b strings.Builder
	for _, change := range changes {
		commits, err := e.forge.GetFileCommits(ctx, projectID, change.NewPath, commitHistoryLimit)
		if err != nil || len(commits) == 0 {
			continue
		}
		fmt.Fprintf(&b, "**%s**\n", change.NewPath)
		for _, commit := range commits {
			fmt.Fprintf(&b, "- %s %s (%s)\n", commit.ShortID, commit.Title, commit.AuthorName)
		}
		b.WriteString("\n")
	}
	return b.String()
}
