// Package stale labels issues nobody has talked about for too long, and
// unlabels them when a human comes back.
package stale

import (
	"context"
	"log/slog"
	"time"

	"github.com/alekspetrov/concierge/internal/adapters/gitlab"
	"github.com/alekspetrov/concierge/internal/logging"
)

// Forge is the slice of the GitLab client the reaper uses.
type Forge interface {
	GetAllIssueNotes(ctx context.Context, projectID, iid int) ([]*gitlab.Note, error)
	AddIssueLabel(ctx context.Context, projectID, iid int, label string) error
	RemoveIssueLabel(ctx context.Context, projectID, iid int, label string) error
}

// Reaper applies and removes the "stale" label based on how long ago a
// human last commented.
type Reaper struct {
	forge       Forge
	botUsername string
	threshold   time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewReaper creates a reaper with the given staleness threshold in days.
func NewReaper(forge Forge, botUsername string, staleDays int) *Reaper {
	return &Reaper{
		forge:       forge,
		botUsername: botUsername,
		threshold:   time.Duration(staleDays) * 24 * time.Hour,
		logger:      logging.WithComponent("stale-reaper"),
		now:         time.Now,
	}
}

// Sweep examines the given issues and reconciles their "stale" label.
// Per-issue failures are logged and do not stop the sweep.
func (r *Reaper) Sweep(ctx context.Context, projectID int, issues []*gitlab.Issue) {
	cutoff := r.now().Add(-r.threshold)

	for _, issue := range issues {
		if issue.State != gitlab.StateOpened {
			continue
		}

		lastHuman, err := r.lastHumanActivity(ctx, projectID, issue)
		if err != nil {
			r.logger.Warn("Failed to inspect issue notes",
				slog.Int("project_id", projectID),
				slog.Int("iid", issue.IID),
				slog.Any("error", err))
			continue
		}

		hasStale := issue.HasLabel(gitlab.LabelStale)
		switch {
		case lastHuman.Before(cutoff) && !hasStale:
			if err := r.forge.AddIssueLabel(ctx, projectID, issue.IID, gitlab.LabelStale); err != nil {
				r.logger.Warn("Failed to add stale label",
					slog.Int("iid", issue.IID), slog.Any("error", err))
				continue
			}
			r.logger.Info("Marked issue stale",
				slog.Int("project_id", projectID),
				slog.Int("iid", issue.IID),
				slog.Time("last_human_activity", lastHuman))
		case !lastHuman.Before(cutoff) && hasStale:
			if err := r.forge.RemoveIssueLabel(ctx, projectID, issue.IID, gitlab.LabelStale); err != nil {
				r.logger.Warn("Failed to remove stale label",
					slog.Int("iid", issue.IID), slog.Any("error", err))
				continue
			}
			r.logger.Info("Cleared stale label",
				slog.Int("project_id", projectID),
				slog.Int("iid", issue.IID))
		}
	}
}

// lastHumanActivity returns the creation time of the most recent note not
// authored by the bot, falling back to the issue's updated_at when no such
// note exists. Bot notes never count as activity.
func (r *Reaper) lastHumanActivity(ctx context.Context, projectID int, issue *gitlab.Issue) (time.Time, error) {
	notes, err := r.forge.GetAllIssueNotes(ctx, projectID, issue.IID)
	if err != nil {
		return time.Time{}, err
	}

	var last time.Time
	found := false
	for _, note := range notes {
		if note.System {
			continue
		}
		if note.Author != nil && note.Author.Username == r.botUsername {
			continue
		}
		if note.CreatedAt.After(last) {
			last = note.CreatedAt
			found = true
		}
	}
	if !found {
		return issue.UpdatedAt, nil
	}
	return last, nil
}
