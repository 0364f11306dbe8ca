// Package poller drives the whole bot: a single timer that discovers new
// activity per project, dispatches mentions, and runs housekeeping.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alekspetrov/concierge/internal/adapters/gitlab"
	"github.com/alekspetrov/concierge/internal/config"
	"github.com/alekspetrov/concierge/internal/logging"
	"github.com/alekspetrov/concierge/internal/mention"
)

// initialLookback seeds the watermark at startup so a fresh process picks
// up recent activity without replaying history.
const initialLookback = time.Hour

// warnSuppressionWindow bounds how often identical per-project poll
// failures are logged.
const warnSuppressionWindow = 10 * time.Minute

// Forge is the slice of the GitLab client the engine uses.
type Forge interface {
	GetProjectByPath(ctx context.Context, path string) (*gitlab.Project, error)
	GetIssuesSince(ctx context.Context, projectID int, opts *gitlab.ListIssuesOptions) ([]*gitlab.Issue, error)
	GetMergeRequestsSince(ctx context.Context, projectID int, since time.Time) ([]*gitlab.MergeRequest, error)
	GetIssueNotesSince(ctx context.Context, projectID, iid int, since time.Time) ([]*gitlab.Note, error)
	GetMergeRequestNotesSince(ctx context.Context, projectID, iid int, since time.Time) ([]*gitlab.Note, error)
	IssuesWithNotesSince(ctx context.Context, projectPath string, since time.Time) ([]*gitlab.IssueWithNotes, error)
}

// Processor consumes mention events.
type Processor interface {
	Process(ctx context.Context, event *mention.Event, project *gitlab.Project, contextRepo *gitlab.Project) error
}

// Reaper reconciles stale labels over a project's opened issues.
type Reaper interface {
	Sweep(ctx context.Context, projectID int, issues []*gitlab.Issue)
}

// Triager learns label knowledge and proposes labels for new issues.
type Triager interface {
	Learn(ctx context.Context, projectIDs []int)
	Suggest(ctx context.Context, projectID int, issues []*gitlab.Issue)
}

// Engine owns the polling watermark and the per-tick orchestration.
type Engine struct {
	forge     Forge
	processor Processor
	reaper    Reaper
	triager   Triager
	cfg       *config.Config
	logger    *slog.Logger
	dedup     *logging.Deduplicator
	now       func() time.Time

	mu        sync.Mutex
	watermark time.Time

	projectsMu  sync.Mutex
	projects    map[string]*gitlab.Project
	contextRepo *gitlab.Project
}

// NewEngine creates an engine with the watermark seeded one hour back.
func NewEngine(forge Forge, processor Processor, reaper Reaper, triager Triager, cfg *config.Config) *Engine {
	return &Engine{
		forge:     forge,
		processor: processor,
		reaper:    reaper,
		triager:   triager,
		cfg:       cfg,
		logger:    logging.WithComponent("poller"),
		dedup:     logging.NewDeduplicator(warnSuppressionWindow),
		now:       time.Now,
		watermark: time.Now().Add(-initialLookback),
		projects:  make(map[string]*gitlab.Project),
	}
}

// Run resolves projects, runs label learning once, then polls until the
// context is cancelled. The first tick fires immediately.
func (e *Engine) Run(ctx context.Context) error {
	ids := e.resolveProjects(ctx)
	if len(ids) > 0 {
		e.triager.Learn(ctx, ids)
	}

	interval := time.Duration(e.cfg.PollIntervalSeconds) * time.Second
	e.logger.Info("Polling started",
		slog.Duration("interval", interval),
		slog.Int("projects", len(e.cfg.ReposToPoll)))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Polling stopped")
			return ctx.Err()
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick polls every configured project once and then advances the
// watermark to the tick's start time. Per-project failures never abort
// the tick.
func (e *Engine) Tick(ctx context.Context) {
	tickStart := e.now()
	since := e.lowerBound(tickStart)

	for _, path := range e.cfg.ReposToPoll {
		if err := e.pollProject(ctx, path, since); err != nil {
			if e.dedup.ShouldLog("poll-failed:" + path) {
				e.logger.Warn("Project poll failed",
					slog.String("project", path), slog.Any("error", err))
			}
		}
	}

	e.mu.Lock()
	e.watermark = tickStart
	e.mu.Unlock()
}

// Watermark returns the current watermark.
func (e *Engine) Watermark() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.watermark
}

// lowerBound clamps the lookback so a long pause does not flood the tick
// with old activity.
func (e *Engine) lowerBound(now time.Time) time.Time {
	e.mu.Lock()
	watermark := e.watermark
	e.mu.Unlock()

	oldest := now.Add(-time.Duration(e.cfg.MaxAgeHours) * time.Hour)
	if watermark.Before(oldest) {
		return oldest
	}
	return watermark
}

func (e *Engine) pollProject(ctx context.Context, path string, since time.Time) error {
	project, err := e.resolveProject(ctx, path)
	if err != nil {
		return err
	}
	contextRepo := e.resolveContextRepo(ctx)

	e.dispatchIssueMentions(ctx, project, contextRepo, since)
	e.dispatchMergeRequestMentions(ctx, project, contextRepo, since)

	opened, err := e.forge.GetIssuesSince(ctx, project.ID, &gitlab.ListIssuesOptions{State: gitlab.StateOpened})
	if err != nil {
		return err
	}
	e.reaper.Sweep(ctx, project.ID, opened)
	e.triager.Suggest(ctx, project.ID, opened)

	return nil
}

// dispatchIssueMentions discovers issue notes since the bound and hands
// bot mentions to the processor. The GraphQL batch endpoint is preferred;
// a failure there falls back to per-issue REST note fetches.
func (e *Engine) dispatchIssueMentions(ctx context.Context, project, contextRepo *gitlab.Project, since time.Time) {
	batches, err := e.forge.IssuesWithNotesSince(ctx, project.PathWithNamespace, since)
	if err != nil {
		e.logger.Debug("GraphQL issue fetch failed, falling back to REST",
			slog.String("project", project.PathWithNamespace), slog.Any("error", err))
		batches = e.issuesWithNotesREST(ctx, project, since)
	}

	for _, batch := range batches {
		for _, note := range batch.Notes {
			e.maybeDispatch(ctx, project, contextRepo, note, mention.KindIssue, batch.Issue.IID)
		}
	}
}

func (e *Engine) issuesWithNotesREST(ctx context.Context, project *gitlab.Project, since time.Time) []*gitlab.IssueWithNotes {
	issues, err := e.forge.GetIssuesSince(ctx, project.ID, &gitlab.ListIssuesOptions{UpdatedAfter: since})
	if err != nil {
		e.logger.Warn("Failed to list issues",
			slog.String("project", project.PathWithNamespace), slog.Any("error", err))
		return nil
	}

	var out []*gitlab.IssueWithNotes
	for _, issue := range issues {
		notes, err := e.forge.GetIssueNotesSince(ctx, project.ID, issue.IID, since)
		if err != nil {
			e.logger.Warn("Failed to fetch issue notes",
				slog.Int("iid", issue.IID), slog.Any("error", err))
			continue
		}
		out = append(out, &gitlab.IssueWithNotes{Issue: issue, Notes: notes})
	}
	return out
}

func (e *Engine) dispatchMergeRequestMentions(ctx context.Context, project, contextRepo *gitlab.Project, since time.Time) {
	mrs, err := e.forge.GetMergeRequestsSince(ctx, project.ID, since)
	if err != nil {
		e.logger.Warn("Failed to list merge requests",
			slog.String("project", project.PathWithNamespace), slog.Any("error", err))
		return
	}

	for _, mr := range mrs {
		notes, err := e.forge.GetMergeRequestNotesSince(ctx, project.ID, mr.IID, since)
		if err != nil {
			e.logger.Warn("Failed to fetch merge request notes",
				slog.Int("iid", mr.IID), slog.Any("error", err))
			continue
		}
		for _, note := range notes {
			e.maybeDispatch(ctx, project, contextRepo, note, mention.KindMergeRequest, mr.IID)
		}
	}
}

// maybeDispatch filters one note and hands it to the processor when it is
// a fresh mention addressed to the bot by someone else.
func (e *Engine) maybeDispatch(ctx context.Context, project, contextRepo *gitlab.Project, note *gitlab.Note, kind mention.NoteableKind, iid int) {
	if note.System || note.Author == nil {
		return
	}
	if note.Author.Username == e.cfg.BotUsername {
		return
	}
	if !mention.Mentioned(note.Body, e.cfg.BotUsername) {
		return
	}

	event := &mention.Event{
		NoteID:      note.ID,
		Author:      note.Author.Username,
		Body:        note.Body,
		UpdatedAt:   note.UpdatedAt.Format(time.RFC3339),
		ProjectID:   project.ID,
		Kind:        kind,
		NoteableIID: iid,
	}
	if err := e.processor.Process(ctx, event, project, contextRepo); err != nil {
		e.logger.Warn("Mention processing failed",
			slog.Int("note_id", note.ID),
			slog.String("kind", string(kind)),
			slog.Any("error", err))
	}
}

// resolveProjects resolves every configured path once, returning the IDs
// that resolved. Failures are logged; the paths retry on the next tick.
func (e *Engine) resolveProjects(ctx context.Context) []int {
	var ids []int
	for _, path := range e.cfg.ReposToPoll {
		project, err := e.resolveProject(ctx, path)
		if err != nil {
			e.logger.Warn("Failed to resolve project",
				slog.String("path", path), slog.Any("error", err))
			continue
		}
		ids = append(ids, project.ID)
	}
	return ids
}

func (e *Engine) resolveProject(ctx context.Context, path string) (*gitlab.Project, error) {
	e.projectsMu.Lock()
	if project, ok := e.projects[path]; ok {
		e.projectsMu.Unlock()
		return project, nil
	}
	e.projectsMu.Unlock()

	project, err := e.forge.GetProjectByPath(ctx, path)
	if err != nil {
		return nil, err
	}

	e.projectsMu.Lock()
	e.projects[path] = project
	e.projectsMu.Unlock()
	return project, nil
}

// resolveContextRepo resolves the optional secondary context repository.
// Absence of configuration is normal; resolution failures are logged once
// per suppression window and the mention proceeds without it.
func (e *Engine) resolveContextRepo(ctx context.Context) *gitlab.Project {
	if e.cfg.ContextRepoPath == "" {
		return nil
	}

	e.projectsMu.Lock()
	cached := e.contextRepo
	e.projectsMu.Unlock()
	if cached != nil {
		return cached
	}

	project, err := e.forge.GetProjectByPath(ctx, e.cfg.ContextRepoPath)
	if err != nil {
		e.dedup.Warn(e.logger, "Failed to resolve context repository",
			slog.String("path", e.cfg.ContextRepoPath), slog.Any("error", err))
		return nil
	}

	e.projectsMu.Lock()
	e.contextRepo = project
	e.projectsMu.Unlock()
	return project
}
