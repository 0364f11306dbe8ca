package mention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/alekspetrov/concierge/internal/adapters/gitlab"
	"github.com/alekspetrov/concierge/internal/config"
	"github.com/alekspetrov/concierge/internal/index"
	"github.com/alekspetrov/concierge/internal/llm"
	"github.com/alekspetrov/concierge/internal/logging"
	"github.com/alekspetrov/concierge/internal/repocontext"
	"github.com/alekspetrov/concierge/internal/tools"
)

// contributingFile is included in MR prompts when the repo carries one.
const contributingFile = "CONTRIBUTING.md"

// commentTruncationSuffix marks a posted comment cut at max_comment_length.
const commentTruncationSuffix = "\n\n[... reply truncated ...]"

// Forge is the slice of the GitLab client the processor uses. It is a
// superset of what the built-in tools need, so the same value serves both.
type Forge interface {
	GetIssue(ctx context.Context, projectID, iid int) (*gitlab.Issue, error)
	GetMergeRequest(ctx context.Context, projectID, iid int) (*gitlab.MergeRequest, error)
	GetIssueNotesSince(ctx context.Context, projectID, iid int, since time.Time) ([]*gitlab.Note, error)
	GetMergeRequestNotesSince(ctx context.Context, projectID, iid int, since time.Time) ([]*gitlab.Note, error)
	PostCommentToIssue(ctx context.Context, projectID, iid int, body string) (*gitlab.Note, error)
	PostCommentToMergeRequest(ctx context.Context, projectID, iid int, body string) (*gitlab.Note, error)
	RemoveIssueLabel(ctx context.Context, projectID, iid int, label string) error
	GetFileContent(ctx context.Context, projectID int, path, ref string) (*gitlab.RepositoryFile, error)
	SearchCode(ctx context.Context, projectID int, query, branch string) ([]*gitlab.SearchBlob, error)
	GetProjectByPath(ctx context.Context, path string) (*gitlab.Project, error)
}

// Model is the chat endpoint surface the processor drives.
type Model interface {
	Chat(ctx context.Context, messages []llm.Message, opts *llm.ChatOptions) (*llm.ChatResponse, error)
}

// Processor handles one mention at a time: duplicate checks, prompt
// assembly, the model conversation, and the posted reply.
type Processor struct {
	forge     Forge
	model     Model
	extractor *repocontext.Extractor
	indexes   *index.Registry
	cache     *Cache
	cfg       *config.Config
	logger    *slog.Logger
}

// NewProcessor wires a processor from shared components.
func NewProcessor(forge Forge, model Model, extractor *repocontext.Extractor, indexes *index.Registry, cache *Cache, cfg *config.Config) *Processor {
	return &Processor{
		forge:     forge,
		model:     model,
		extractor: extractor,
		indexes:   indexes,
		cache:     cache,
		cfg:       cfg,
		logger:    logging.WithComponent("mention-processor"),
	}
}

// Process runs the full pipeline for one mention. A nil return means the
// mention is handled (replied to, confirmed handled, or ignored); the
// cache is only updated on those outcomes.
func (p *Processor) Process(ctx context.Context, event *Event, project *gitlab.Project, contextRepo *gitlab.Project) error {
	logger := p.logger.With(
		slog.String("correlation_id", uuid.NewString()),
		slog.Int("note_id", event.NoteID),
		slog.String("project", project.PathWithNamespace),
	)

	if p.cache.Seen(event.NoteID) {
		logger.Debug("Mention already handled, skipping")
		return nil
	}

	mentionedAt, err := time.Parse(time.RFC3339, event.UpdatedAt)
	if err != nil {
		return &Error{Kind: KindParse, Err: fmt.Errorf("note %d has unparseable timestamp %q: %w", event.NoteID, event.UpdatedAt, err)}
	}

	handled, err := p.alreadyReplied(ctx, event, project.ID, mentionedAt)
	if err != nil {
		return err
	}
	if handled {
		logger.Info("Reply already present on noteable, marking handled")
		p.cache.Add(event.NoteID)
		return nil
	}

	command, hasCommand := ExtractCommand(event.Body, p.cfg.BotUsername)

	var reply, history string
	switch event.Kind {
	case KindIssue:
		if !hasCommand {
			logger.Debug("Mention carries no command, ignoring")
			p.cache.Add(event.NoteID)
			return nil
		}
		reply, err = p.processIssue(ctx, logger, event, project, contextRepo, command)
	case KindMergeRequest:
		reply, history, err = p.processMergeRequest(ctx, logger, event, project, contextRepo, command)
	default:
		return &Error{Kind: KindMissingNoteable, Err: fmt.Errorf("note %d has noteable kind %q", event.NoteID, event.Kind)}
	}
	if err != nil {
		return err
	}

	body := fmt.Sprintf("Hey @%s, here's the information you requested:\n\n---\n\n%s", event.Author, reply)
	if event.Kind == KindMergeRequest && !hasCommand && history != "" {
		body += fmt.Sprintf("\n\n<details>\n<summary>Additional Commit History</summary>\n\n%s\n</details>", history)
	}
	if p.cfg.MaxCommentLength > 0 && len(body) > p.cfg.MaxCommentLength {
		cut := p.cfg.MaxCommentLength - len(commentTruncationSuffix)
		if cut < 0 {
			cut = 0
		}
		// Never split a multi-byte rune at the cut point.
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut] + commentTruncationSuffix
	}

	if err := p.post(ctx, event, project.ID, body); err != nil {
		return &Error{Kind: KindUpstream, Err: fmt.Errorf("failed to post reply: %w", err)}
	}

	p.cache.Add(event.NoteID)
	logger.Info("Reply posted", slog.String("kind", string(event.Kind)), slog.Int("iid", event.NoteableIID))
	return nil
}

// alreadyReplied checks live server state for a bot note created after the
// mention. This is what makes duplicate suppression survive restarts.
func (p *Processor) alreadyReplied(ctx context.Context, event *Event, projectID int, mentionedAt time.Time) (bool, error) {
	var notes []*gitlab.Note
	var err error
	switch event.Kind {
	case KindIssue:
		notes, err = p.forge.GetIssueNotesSince(ctx, projectID, event.NoteableIID, mentionedAt)
	case KindMergeRequest:
		notes, err = p.forge.GetMergeRequestNotesSince(ctx, projectID, event.NoteableIID, mentionedAt)
	default:
		return false, &Error{Kind: KindMissingNoteable, Err: fmt.Errorf("note %d has noteable kind %q", event.NoteID, event.Kind)}
	}
	if err != nil {
		return false, &Error{Kind: KindUpstream, Err: fmt.Errorf("live duplicate check failed: %w", err)}
	}

	for _, note := range notes {
		if note.Author != nil && note.Author.Username == p.cfg.BotUsername {
			return true, nil
		}
	}
	return false, nil
}

func (p *Processor) processIssue(ctx context.Context, logger *slog.Logger, event *Event, project *gitlab.Project, contextRepo *gitlab.Project, command string) (string, error) {
	issue, err := p.forge.GetIssue(ctx, project.ID, event.NoteableIID)
	if err != nil {
		return "", &Error{Kind: KindUpstream, Err: fmt.Errorf("failed to fetch issue: %w", err)}
	}

	// A human talking on a stale issue means it is not stale anymore.
	if issue.HasLabel(gitlab.LabelStale) && event.Author != p.cfg.BotUsername {
		if err := p.forge.RemoveIssueLabel(ctx, project.ID, issue.IID, gitlab.LabelStale); err != nil {
			logger.Warn("Failed to remove stale label", slog.Any("error", err))
		}
	}

	repoContext, err := p.extractor.ForIssue(ctx, issue, project, contextRepo)
	if err != nil {
		return "", &Error{Kind: KindUpstream, Err: fmt.Errorf("context assembly failed: %w", err)}
	}

	prompt := buildIssuePrompt(command, issue, repoContext)
	return p.converse(ctx, logger, prompt, project)
}

func (p *Processor) processMergeRequest(ctx context.Context, logger *slog.Logger, event *Event, project *gitlab.Project, contextRepo *gitlab.Project, command string) (string, string, error) {
	mr, err := p.forge.GetMergeRequest(ctx, project.ID, event.NoteableIID)
	if err != nil {
		return "", "", &Error{Kind: KindUpstream, Err: fmt.Errorf("failed to fetch merge request: %w", err)}
	}

	contributing := p.fetchContributing(ctx, logger, project)

	repoContext, history, err := p.extractor.ForMR(ctx, mr, project, contextRepo)
	if err != nil {
		return "", "", &Error{Kind: KindUpstream, Err: fmt.Errorf("context assembly failed: %w", err)}
	}

	prompt := buildMRPrompt(command, mr, repoContext, contributing)
	reply, err := p.converse(ctx, logger, prompt, project)
	return reply, history, err
}

// fetchContributing fetches CONTRIBUTING.md best-effort; absence is normal.
func (p *Processor) fetchContributing(ctx context.Context, logger *slog.Logger, project *gitlab.Project) string {
	ref := project.DefaultBranch
	if ref == "" {
		ref = p.cfg.DefaultBranch
	}
	file, err := p.forge.GetFileContent(ctx, project.ID, contributingFile, ref)
	if err != nil {
		if !errors.Is(err, gitlab.ErrFileNotFound) {
			logger.Warn("Failed to fetch CONTRIBUTING.md", slog.Any("error", err))
		}
		return ""
	}
	return file.Content
}

// converse runs the chat conversation, dispatching tool calls until the
// model answers with content or the tool budget runs out.
func (p *Processor) converse(ctx context.Context, logger *slog.Logger, prompt string, project *gitlab.Project) (string, error) {
	messages := []llm.Message{{Role: llm.RoleUser, Content: prompt}}

	var opts *llm.ChatOptions
	var registry *tools.Registry
	if p.cfg.ToolsEnabled {
		ref := project.DefaultBranch
		if ref == "" {
			ref = p.cfg.DefaultBranch
		}
		registry = tools.NewBuiltinRegistry(p.forge, p.indexes, project, ref)
		opts = &llm.ChatOptions{Tools: registry.Specs()}
	}

	var lastContent string
	callsUsed := 0
	for {
		resp, err := p.model.Chat(ctx, messages, opts)
		if err != nil {
			return "", &Error{Kind: KindUpstream, Err: fmt.Errorf("model call failed: %w", err)}
		}
		if len(resp.Choices) == 0 {
			return "", &Error{Kind: KindUpstream, Err: fmt.Errorf("model returned no choices")}
		}

		msg := resp.Choices[0].Message
		if msg.Content != "" {
			lastContent = msg.Content
		}

		if len(msg.ToolCalls) == 0 {
			break
		}
		if callsUsed >= p.cfg.MaxToolCalls {
			logger.Warn("Tool budget exhausted, using latest assistant content",
				slog.Int("max_tool_calls", p.cfg.MaxToolCalls))
			break
		}

		messages = append(messages, msg)
		for _, call := range msg.ToolCalls {
			callsUsed++
			result := registry.Dispatch(ctx, call)
			logger.Debug("Tool call completed",
				slog.String("tool", call.Function.Name),
				slog.Int("result_bytes", len(result)))
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	if strings.TrimSpace(lastContent) == "" {
		return "", &Error{Kind: KindUpstream, Err: fmt.Errorf("model returned empty reply")}
	}
	return lastContent, nil
}

func (p *Processor) post(ctx context.Context, event *Event, projectID int, body string) error {
	switch event.Kind {
	case KindIssue:
		_, err := p.forge.PostCommentToIssue(ctx, projectID, event.NoteableIID, body)
		return err
	case KindMergeRequest:
		_, err := p.forge.PostCommentToMergeRequest(ctx, projectID, event.NoteableIID, body)
		return err
	}
	return fmt.Errorf("unsupported noteable kind %q", event.Kind)
}
