package triage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alekspetrov/concierge/internal/adapters/gitlab"
	"github.com/alekspetrov/concierge/internal/config"
	"github.com/alekspetrov/concierge/internal/llm"
	"github.com/alekspetrov/concierge/internal/logging"
)

// Concurrency bounds for learning and suggestion.
const (
	maxConcurrentLabels      = 5
	maxConcurrentProjects    = 3
	maxConcurrentSuggestions = 3
)

// maxDescriptionChars bounds issue descriptions in suggestion prompts.
const maxDescriptionChars = 2000

// Forge is the slice of the GitLab client the triage service uses.
type Forge interface {
	GetLabels(ctx context.Context, projectID int) ([]*gitlab.Label, error)
	GetIssuesSince(ctx context.Context, projectID int, opts *gitlab.ListIssuesOptions) ([]*gitlab.Issue, error)
	AddIssueLabels(ctx context.Context, projectID, iid int, labels []string) error
}

// Model is the chat endpoint surface the service drives.
type Model interface {
	Chat(ctx context.Context, messages []llm.Message, opts *llm.ChatOptions) (*llm.ChatResponse, error)
}

// Service learns label meanings at startup and suggests labels for
// unlabeled issues on every poll.
type Service struct {
	forge  Forge
	model  Model
	store  *Store
	cfg    *config.Config
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires a triage service.
func NewService(forge Forge, model Model, cfg *config.Config) *Service {
	return &Service{
		forge:  forge,
		model:  model,
		store:  NewStore(),
		cfg:    cfg,
		logger: logging.WithComponent("triage"),
		now:    time.Now,
	}
}

// Store exposes the learned knowledge, mainly for inspection in tests.
func (s *Service) Store() *Store { return s.store }

// Learn builds label knowledge for every project, up to three projects at
// a time. Per-project failures are logged and do not stop the others.
func (s *Service) Learn(ctx context.Context, projectIDs []int) {
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrentProjects)

	for _, projectID := range projectIDs {
		sem <- struct{}{}
		wg.Add(1)
		go func(projectID int) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := s.learnProject(ctx, projectID); err != nil {
				s.logger.Warn("Label learning failed",
					slog.Int("project_id", projectID), slog.Any("error", err))
			}
		}(projectID)
	}
	wg.Wait()
}

func (s *Service) learnProject(ctx context.Context, projectID int) error {
	labels, err := s.forge.GetLabels(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to list labels: %w", err)
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrentLabels)

	learned := 0
	for _, label := range labels {
		if isSystemLabel(label.Name) {
			continue
		}
		learned++

		sem <- struct{}{}
		wg.Add(1)
		go func(label *gitlab.Label) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := s.learnLabel(ctx, projectID, label); err != nil {
				s.logger.Warn("Failed to learn label",
					slog.Int("project_id", projectID),
					slog.String("label", label.Name),
					slog.Any("error", err))
			}
		}(label)
	}
	wg.Wait()

	s.logger.Info("Label learning completed",
		slog.Int("project_id", projectID), slog.Int("labels", learned))
	return nil
}

func (s *Service) learnLabel(ctx context.Context, projectID int, label *gitlab.Label) error {
	issues, err := s.forge.GetIssuesSince(ctx, projectID, &gitlab.ListIssuesOptions{
		Labels:  []string{label.Name},
		State:   gitlab.StateOpened,
		OrderBy: "created_at",
		Sort:    "desc",
	})
	if err != nil {
		return fmt.Errorf("failed to fetch sample issues: %w", err)
	}
	if len(issues) > s.cfg.LabelLearningSamples {
		issues = issues[:s.cfg.LabelLearningSamples]
	}

	summary, err := s.summariseLabel(ctx, label, issues)
	if err != nil {
		return err
	}

	s.store.Put(projectID, &LabelKnowledge{
		Name:        label.Name,
		Description: label.Description,
		Color:       label.Color,
		Summary:     summary,
		Samples:     issues,
	})
	return nil
}

func (s *Service) summariseLabel(ctx context.Context, label *gitlab.Label, samples []*gitlab.Issue) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "A project tracker uses the label %q.", label.Name)
	if label.Description != "" {
		fmt.Fprintf(&b, " Its description reads: %q.", label.Description)
	}
	b.WriteString("\n\nRecent issues carrying it:\n")
	if len(samples) == 0 {
		b.WriteString("(none)\n")
	}
	for _, issue := range samples {
		fmt.Fprintf(&b, "- %s\n", issue.Title)
	}
	b.WriteString("\nIn one or two sentences, state when this label applies to a new issue. Reply with the sentences only.")

	resp, err := s.model.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: b.String()}}, nil)
	if err != nil {
		return "", fmt.Errorf("model call failed: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("model returned no summary")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Suggest proposes labels for recently created unlabeled opened issues,
// up to three at a time. Suggestions outside the learned label set are
// discarded before anything is applied.
func (s *Service) Suggest(ctx context.Context, projectID int, issues []*gitlab.Issue) {
	known := s.store.Labels(projectID)
	if len(known) == 0 {
		return
	}

	cutoff := s.now().Add(-time.Duration(s.cfg.TriageLookbackHours) * time.Hour)

	var candidates []*gitlab.Issue
	for _, issue := range issues {
		if issue.State != gitlab.StateOpened || len(issue.Labels) > 0 {
			continue
		}
		if issue.CreatedAt.Before(cutoff) {
			continue
		}
		candidates = append(candidates, issue)
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxConcurrentSuggestions)
	for _, issue := range candidates {
		sem <- struct{}{}
		wg.Add(1)
		go func(issue *gitlab.Issue) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := s.suggestFor(ctx, projectID, issue, known); err != nil {
				s.logger.Warn("Label suggestion failed",
					slog.Int("project_id", projectID),
					slog.Int("iid", issue.IID),
					slog.Any("error", err))
			}
		}(issue)
	}
	wg.Wait()
}

func (s *Service) suggestFor(ctx context.Context, projectID int, issue *gitlab.Issue, known []*LabelKnowledge) error {
	prompt := buildSuggestionPrompt(issue, known)

	resp, err := s.model.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, nil)
	if err != nil {
		return fmt.Errorf("model call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("model returned no choices")
	}

	suggested := parseLabelArray(resp.Choices[0].Message.Content)
	var apply []string
	for _, name := range suggested {
		if s.store.Known(projectID, name) {
			apply = append(apply, name)
		}
	}
	if len(apply) == 0 {
		return nil
	}

	if err := s.forge.AddIssueLabels(ctx, projectID, issue.IID, apply); err != nil {
		return fmt.Errorf("failed to apply labels: %w", err)
	}
	s.logger.Info("Applied suggested labels",
		slog.Int("project_id", projectID),
		slog.Int("iid", issue.IID),
		slog.String("labels", strings.Join(apply, ",")))
	return nil
}

func buildSuggestionPrompt(issue *gitlab.Issue, known []*LabelKnowledge) string {
	sorted := make([]*LabelKnowledge, len(known))
	copy(sorted, known)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var b strings.Builder
	b.WriteString("Pick the labels that apply to a new tracker issue.\n\nAvailable labels:\n")
	for _, k := range sorted {
		fmt.Fprintf(&b, "- %s: %s\n", k.Name, k.Summary)
	}

	description := issue.Description
	if len(description) > maxDescriptionChars {
		description = description[:maxDescriptionChars]
	}
	fmt.Fprintf(&b, "\nIssue title: %s\n", issue.Title)
	if description != "" {
		fmt.Fprintf(&b, "Issue description:\n%s\n", description)
	}
	b.WriteString("\nReply with a JSON array of label names, e.g. [\"bug\"]. Reply with an empty array if none apply.")
	return b.String()
}
