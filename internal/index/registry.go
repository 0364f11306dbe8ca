package index

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alekspetrov/concierge/internal/logging"
)

// Registry holds one index per project, created lazily on first reference
// and rebuilt on a periodic schedule.
type Registry struct {
	fetcher         Fetcher
	ref             string
	refreshInterval time.Duration
	logger          *slog.Logger

	mu      sync.Mutex
	indexes map[int]*Index

	cron *cron.Cron
}

// Invalidator lets the registry drop cached repository trees before a
// rebuild. *gitlab.Client satisfies it.
type Invalidator interface {
	InvalidateTree(projectID int)
}

// NewRegistry creates a registry that builds indexes at the given ref and
// refreshes them every refreshInterval.
func NewRegistry(fetcher Fetcher, ref string, refreshInterval time.Duration) *Registry {
	return &Registry{
		fetcher:         fetcher,
		ref:             ref,
		refreshInterval: refreshInterval,
		logger:          logging.WithComponent("index-registry"),
		indexes:         make(map[int]*Index),
	}
}

// Get returns the project's index, creating an empty one on first use.
func (r *Registry) Get(projectID int) *Index {
	r.mu.Lock()
	defer r.mu.Unlock()
	ix, ok := r.indexes[projectID]
	if !ok {
		ix = New()
		r.indexes[projectID] = ix
	}
	return ix
}

// Query returns the project's index for searching, logging a staleness
// warning when the last successful build is older than twice the refresh
// interval.
func (r *Registry) Query(projectID int) *Index {
	ix := r.Get(projectID)
	if age, built := ix.TimeSinceLastBuild(); built && age > 2*r.refreshInterval {
		r.logger.Warn("Index is stale",
			slog.Int("project_id", projectID),
			slog.Duration("age", age),
			slog.Duration("refresh_interval", r.refreshInterval),
		)
	}
	return ix
}

// RefreshProject rebuilds one project's index, invalidating the cached
// repository tree first so the rebuild sees current state.
func (r *Registry) RefreshProject(ctx context.Context, projectID int) error {
	if inv, ok := r.fetcher.(Invalidator); ok {
		inv.InvalidateTree(projectID)
	}
	return r.Get(projectID).Build(ctx, r.fetcher, projectID, r.ref, r.logger)
}

// RefreshAll rebuilds every registered index. Failures are logged per
// project and retried on the next interval.
func (r *Registry) RefreshAll(ctx context.Context) {
	r.mu.Lock()
	ids := make([]int, 0, len(r.indexes))
	for id := range r.indexes {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		if err := r.RefreshProject(ctx, id); err != nil {
			r.logger.Warn("Index refresh failed",
				slog.Int("project_id", id),
				slog.Any("error", err),
			)
		}
	}
}

// Start schedules periodic refreshes. It returns immediately; the schedule
// stops when the context is cancelled.
func (r *Registry) Start(ctx context.Context) error {
	r.cron = cron.New()
	_, err := r.cron.AddFunc("@every "+r.refreshInterval.String(), func() {
		r.RefreshAll(ctx)
	})
	if err != nil {
		return err
	}
	r.cron.Start()

	go func() {
		<-ctx.Done()
		r.cron.Stop()
	}()

	return nil
}
