// Package triage learns what each project label means from sample issues
// and proposes labels for newly filed unlabeled ones.
package triage

import (
	"strings"
	"sync"

	"github.com/alekspetrov/concierge/internal/adapters/gitlab"
)

// systemLabels are never learned or suggested.
var systemLabels = map[string]struct{}{
	gitlab.LabelStale: {},
	"doing":           {},
	"todo":            {},
	"in progress":     {},
}

// isSystemLabel reports whether a label is managed by workflow tooling
// rather than describing issue content. Labels starting with "To:" are
// routing labels and also excluded.
func isSystemLabel(name string) bool {
	if _, ok := systemLabels[name]; ok {
		return true
	}
	return strings.HasPrefix(name, "To:")
}

// LabelKnowledge is what the service has learned about one label.
type LabelKnowledge struct {
	Name        string
	Description string
	Color       string
	Summary     string
	Samples     []*gitlab.Issue
}

// Store holds learned label knowledge per project.
type Store struct {
	mu       sync.Mutex
	projects map[int]map[string]*LabelKnowledge
}

// NewStore creates an empty knowledge store.
func NewStore() *Store {
	return &Store{projects: make(map[int]map[string]*LabelKnowledge)}
}

// Put records knowledge for one label of a project.
func (s *Store) Put(projectID int, k *LabelKnowledge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	labels, ok := s.projects[projectID]
	if !ok {
		labels = make(map[string]*LabelKnowledge)
		s.projects[projectID] = labels
	}
	labels[k.Name] = k
}

// Get returns the knowledge for one label, or nil.
func (s *Store) Get(projectID int, name string) *LabelKnowledge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projects[projectID][name]
}

// Labels returns all learned labels for a project.
func (s *Store) Labels(projectID int) []*LabelKnowledge {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*LabelKnowledge, 0, len(s.projects[projectID]))
	for _, k := range s.projects[projectID] {
		out = append(out, k)
	}
	return out
}

// Known reports whether a label was learned for the project.
func (s *Store) Known(projectID int, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.projects[projectID][name]
	return ok
}
