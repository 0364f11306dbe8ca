package stale

import (
	"context"
	"testing"
	"time"

	"github.com/alekspetrov/concierge/internal/adapters/gitlab"
)

type fakeForge struct {
	notes   map[int][]*gitlab.Note
	added   []int
	removed []int
}

func (f *fakeForge) GetAllIssueNotes(ctx context.Context, projectID, iid int) ([]*gitlab.Note, error) {
	return f.notes[iid], nil
}

func (f *fakeForge) AddIssueLabel(ctx context.Context, projectID, iid int, label string) error {
	f.added = append(f.added, iid)
	return nil
}

func (f *fakeForge) RemoveIssueLabel(ctx context.Context, projectID, iid int, label string) error {
	f.removed = append(f.removed, iid)
	return nil
}

func newReaper(forge *fakeForge, base time.Time) *Reaper {
	r := NewReaper(forge, "bot", 30)
	r.now = func() time.Time { return base }
	return r
}

func daysAgo(base time.Time, days int) time.Time {
	return base.Add(-time.Duration(days) * 24 * time.Hour)
}

func TestSweepMarksQuietIssueStale(t *testing.T) {
	base := time.Now()
	forge := &fakeForge{notes: map[int][]*gitlab.Note{}}
	r := newReaper(forge, base)

	issues := []*gitlab.Issue{{
		IID: 1, State: gitlab.StateOpened, UpdatedAt: daysAgo(base, 35),
	}}
	r.Sweep(context.Background(), 7, issues)

	if len(forge.added) != 1 || forge.added[0] != 1 {
		t.Errorf("added = %v, want [1]", forge.added)
	}
	if len(forge.removed) != 0 {
		t.Errorf("removed = %v, want none", forge.removed)
	}
}

func TestSweepSkipsRecentIssue(t *testing.T) {
	base := time.Now()
	forge := &fakeForge{notes: map[int][]*gitlab.Note{
		1: {{Author: &gitlab.User{Username: "alice"}, CreatedAt: daysAgo(base, 5)}},
	}}
	r := newReaper(forge, base)

	issues := []*gitlab.Issue{{
		IID: 1, State: gitlab.StateOpened, UpdatedAt: daysAgo(base, 40),
	}}
	r.Sweep(context.Background(), 7, issues)

	if len(forge.added) != 0 {
		t.Errorf("added = %v, want none (human commented 5 days ago)", forge.added)
	}
}

func TestSweepRemovesStaleAfterHumanReply(t *testing.T) {
	base := time.Now()
	forge := &fakeForge{notes: map[int][]*gitlab.Note{
		1: {{Author: &gitlab.User{Username: "alice"}, CreatedAt: daysAgo(base, 5)}},
	}}
	r := newReaper(forge, base)

	// updated_at itself is old; the human note alone must rescue it.
	issues := []*gitlab.Issue{{
		IID: 1, State: gitlab.StateOpened, UpdatedAt: daysAgo(base, 60),
		Labels: []string{gitlab.LabelStale},
	}}
	r.Sweep(context.Background(), 7, issues)

	if len(forge.removed) != 1 || forge.removed[0] != 1 {
		t.Errorf("removed = %v, want [1]", forge.removed)
	}
}

func TestSweepBotNotesNeverRescue(t *testing.T) {
	base := time.Now()
	forge := &fakeForge{notes: map[int][]*gitlab.Note{
		1: {
			{Author: &gitlab.User{Username: "alice"}, CreatedAt: daysAgo(base, 45)},
			{Author: &gitlab.User{Username: "bot"}, CreatedAt: daysAgo(base, 1)},
		},
	}}
	r := newReaper(forge, base)

	issues := []*gitlab.Issue{{
		IID: 1, State: gitlab.StateOpened, UpdatedAt: daysAgo(base, 45),
	}}
	r.Sweep(context.Background(), 7, issues)

	if len(forge.added) != 1 {
		t.Errorf("added = %v, want [1] (bot note must not count as activity)", forge.added)
	}
}

func TestSweepIgnoresSystemNotes(t *testing.T) {
	base := time.Now()
	forge := &fakeForge{notes: map[int][]*gitlab.Note{
		1: {{System: true, Author: &gitlab.User{Username: "alice"}, CreatedAt: daysAgo(base, 2)}},
	}}
	r := newReaper(forge, base)

	issues := []*gitlab.Issue{{
		IID: 1, State: gitlab.StateOpened, UpdatedAt: daysAgo(base, 35),
	}}
	r.Sweep(context.Background(), 7, issues)

	if len(forge.added) != 1 {
		t.Errorf("added = %v, want [1] (system note must not count)", forge.added)
	}
}

func TestSweepSkipsClosedIssues(t *testing.T) {
	base := time.Now()
	forge := &fakeForge{notes: map[int][]*gitlab.Note{}}
	r := newReaper(forge, base)

	issues := []*gitlab.Issue{{
		IID: 1, State: gitlab.StateClosed, UpdatedAt: daysAgo(base, 90),
	}}
	r.Sweep(context.Background(), 7, issues)

	if len(forge.added) != 0 {
		t.Errorf("added = %v, want none for closed issues", forge.added)
	}
}

func TestSweepIdempotentOnAlreadyStale(t *testing.T) {
	base := time.Now()
	forge := &fakeForge{notes: map[int][]*gitlab.Note{}}
	r := newReaper(forge, base)

	issues := []*gitlab.Issue{{
		IID: 1, State: gitlab.StateOpened, UpdatedAt: daysAgo(base, 90),
		Labels: []string{gitlab.LabelStale},
	}}
	r.Sweep(context.Background(), 7, issues)

	if len(forge.added) != 0 || len(forge.removed) != 0 {
		t.Errorf("added = %v removed = %v, want no changes", forge.added, forge.removed)
	}
}
