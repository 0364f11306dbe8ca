// Package gitlab is a typed client for the GitLab REST and GraphQL APIs,
// covering the surface Concierge needs: issues, merge requests, notes,
// repository files and trees, commits, labels and code search.
package gitlab

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alekspetrov/concierge/internal/logging"
)

const defaultBaseURL = "https://gitlab.com"

// Client is a GitLab API client shared by all components. It is safe for
// concurrent use; the only mutable state is the repository tree cache.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	treeCache  *treeCache
}

// NewClient creates a new GitLab client for the given base URL.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		token:   token,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:    logging.WithComponent("gitlab-client"),
		treeCache: newTreeCache(),
	}
}

// do performs an HTTP request and returns the raw response body and headers.
// Non-2xx responses are returned as *APIError.
func (c *Client) do(ctx context.Context, method, path string, body interface{}) ([]byte, http.Header, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("PRIVATE-TOKEN", c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, resp.Header, nil
}

// doRequest performs an HTTP request and decodes the JSON response into result.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	respBody, _, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// GetProjectByPath resolves a "namespace/project" path to a project.
func (c *Client) GetProjectByPath(ctx context.Context, path string) (*Project, error) {
	c.logger.Debug("Fetching project", slog.String("path", path), slog.String("method", http.MethodGet))
	var project Project
	apiPath := fmt.Sprintf("/api/v4/projects/%s", url.PathEscape(path))
	if err := c.doRequest(ctx, http.MethodGet, apiPath, nil, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// GetIssue fetches an issue by IID (project-scoped issue number).
func (c *Client) GetIssue(ctx context.Context, projectID, iid int) (*Issue, error) {
	c.logger.Debug("Fetching issue",
		slog.Int("project_id", projectID), slog.Int("iid", iid), slog.String("method", http.MethodGet))
	var issue Issue
	path := fmt.Sprintf("/api/v4/projects/%d/issues/%d", projectID, iid)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// GetMergeRequest fetches a merge request by IID.
func (c *Client) GetMergeRequest(ctx context.Context, projectID, iid int) (*MergeRequest, error) {
	c.logger.Debug("Fetching merge request",
		slog.Int("project_id", projectID), slog.Int("iid", iid), slog.String("method", http.MethodGet))
	var mr MergeRequest
	path := fmt.Sprintf("/api/v4/projects/%d/merge_requests/%d", projectID, iid)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &mr); err != nil {
		return nil, err
	}
	return &mr, nil
}

// GetIssuesSince lists issues updated after the given bound, oldest first.
func (c *Client) GetIssuesSince(ctx context.Context, projectID int, opts *ListIssuesOptions) ([]*Issue, error) {
	c.logger.Debug("Listing issues", slog.Int("project_id", projectID), slog.String("method", http.MethodGet))

	params := url.Values{}
	params.Set("per_page", "100")
	params.Set("sort", "asc")
	params.Set("order_by", "updated_at")
	if opts != nil {
		for _, label := range opts.Labels {
			params.Add("labels", label)
		}
		if opts.State != "" {
			params.Set("state", opts.State)
		}
		if opts.Sort != "" {
			params.Set("sort", opts.Sort)
		}
		if opts.OrderBy != "" {
			params.Set("order_by", opts.OrderBy)
		}
		if !opts.UpdatedAfter.IsZero() {
			params.Set("updated_after", opts.UpdatedAfter.Format(time.RFC3339))
		}
		if !opts.CreatedAfter.IsZero() {
			params.Set("created_after", opts.CreatedAfter.Format(time.RFC3339))
		}
	}

	var issues []*Issue
	path := fmt.Sprintf("/api/v4/projects/%d/issues?%s", projectID, params.Encode())
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &issues); err != nil {
		return nil, err
	}
	return issues, nil
}

// GetMergeRequestsSince lists merge requests updated after the given bound.
func (c *Client) GetMergeRequestsSince(ctx context.Context, projectID int, since time.Time) ([]*MergeRequest, error) {
	c.logger.Debug("Listing merge requests", slog.Int("project_id", projectID), slog.String("method", http.MethodGet))

	params := url.Values{}
	params.Set("per_page", "100")
	params.Set("sort", "asc")
	params.Set("order_by", "updated_at")
	if !since.IsZero() {
		params.Set("updated_after", since.Format(time.RFC3339))
	}

	var mrs []*MergeRequest
	path := fmt.Sprintf("/api/v4/projects/%d/merge_requests?%s", projectID, params.Encode())
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &mrs); err != nil {
		return nil, err
	}
	return mrs, nil
}

// GetIssueNotesSince fetches notes on an issue created after the given bound.
// The notes endpoint has no created_after filter, so the newest page is
// fetched and filtered client-side.
func (c *Client) GetIssueNotesSince(ctx context.Context, projectID, iid int, since time.Time) ([]*Note, error) {
	notes, err := c.getNotes(ctx, projectID, "issues", iid, 1)
	if err != nil {
		return nil, err
	}
	return filterNotesSince(notes, since), nil
}

// GetMergeRequestNotesSince fetches notes on a merge request created after
// the given bound.
func (c *Client) GetMergeRequestNotesSince(ctx context.Context, projectID, iid int, since time.Time) ([]*Note, error) {
	notes, err := c.getNotes(ctx, projectID, "merge_requests", iid, 1)
	if err != nil {
		return nil, err
	}
	return filterNotesSince(notes, since), nil
}

// GetAllIssueNotes fetches the full paginated note list of an issue.
func (c *Client) GetAllIssueNotes(ctx context.Context, projectID, iid int) ([]*Note, error) {
	return c.getAllNotes(ctx, projectID, "issues", iid)
}

// GetAllMergeRequestNotes fetches the full paginated note list of a merge request.
func (c *Client) GetAllMergeRequestNotes(ctx context.Context, projectID, iid int) ([]*Note, error) {
	return c.getAllNotes(ctx, projectID, "merge_requests", iid)
}

func (c *Client) getNotes(ctx context.Context, projectID int, noteable string, iid, page int) ([]*Note, error) {
	c.logger.Debug("Fetching notes",
		slog.Int("project_id", projectID), slog.Int("iid", iid),
		slog.String("noteable", noteable), slog.String("method", http.MethodGet))

	params := url.Values{}
	params.Set("per_page", "100")
	params.Set("sort", "desc")
	params.Set("order_by", "created_at")
	params.Set("page", strconv.Itoa(page))

	var notes []*Note
	path := fmt.Sprintf("/api/v4/projects/%d/%s/%d/notes?%s", projectID, noteable, iid, params.Encode())
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

func (c *Client) getAllNotes(ctx context.Context, projectID int, noteable string, iid int) ([]*Note, error) {
	var all []*Note
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("per_page", "100")
		params.Set("sort", "asc")
		params.Set("order_by", "created_at")
		params.Set("page", strconv.Itoa(page))

		path := fmt.Sprintf("/api/v4/projects/%d/%s/%d/notes?%s", projectID, noteable, iid, params.Encode())
		body, header, err := c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}

		var notes []*Note
		if err := json.Unmarshal(body, &notes); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		all = append(all, notes...)

		totalPages, _ := strconv.Atoi(header.Get("X-Total-Pages"))
		if page >= totalPages || len(notes) == 0 {
			break
		}
	}
	return all, nil
}

// filterNotesSince keeps notes created strictly after the bound.
func filterNotesSince(notes []*Note, since time.Time) []*Note {
	if since.IsZero() {
		return notes
	}
	filtered := make([]*Note, 0, len(notes))
	for _, n := range notes {
		if n.CreatedAt.After(since) {
			filtered = append(filtered, n)
		}
	}
	return filtered
}

// PostCommentToIssue posts a comment (note) to an issue.
func (c *Client) PostCommentToIssue(ctx context.Context, projectID, iid int, body string) (*Note, error) {
	c.logger.Debug("Posting issue comment",
		slog.Int("project_id", projectID), slog.Int("iid", iid), slog.String("method", http.MethodPost))
	var note Note
	path := fmt.Sprintf("/api/v4/projects/%d/issues/%d/notes", projectID, iid)
	reqBody := map[string]string{"body": body}
	if err := c.doRequest(ctx, http.MethodPost, path, reqBody, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

// PostCommentToMergeRequest posts a comment to a merge request.
func (c *Client) PostCommentToMergeRequest(ctx context.Context, projectID, iid int, body string) (*Note, error) {
	c.logger.Debug("Posting merge request comment",
		slog.Int("project_id", projectID), slog.Int("iid", iid), slog.String("method", http.MethodPost))
	var note Note
	path := fmt.Sprintf("/api/v4/projects/%d/merge_requests/%d/notes", projectID, iid)
	reqBody := map[string]string{"body": body}
	if err := c.doRequest(ctx, http.MethodPost, path, reqBody, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

// AddIssueLabel adds a single label to an issue. GitLab applies add_labels
// server-side, so no read-merge-write round trip is needed.
func (c *Client) AddIssueLabel(ctx context.Context, projectID, iid int, label string) error {
	return c.AddIssueLabels(ctx, projectID, iid, []string{label})
}

// AddIssueLabels adds labels to an issue.
func (c *Client) AddIssueLabels(ctx context.Context, projectID, iid int, labels []string) error {
	c.logger.Debug("Adding issue labels",
		slog.Int("project_id", projectID), slog.Int("iid", iid), slog.String("method", http.MethodPut))
	path := fmt.Sprintf("/api/v4/projects/%d/issues/%d", projectID, iid)
	reqBody := map[string]string{"add_labels": joinLabels(labels)}
	return c.doRequest(ctx, http.MethodPut, path, reqBody, nil)
}

// RemoveIssueLabel removes a label from an issue.
func (c *Client) RemoveIssueLabel(ctx context.Context, projectID, iid int, label string) error {
	c.logger.Debug("Removing issue label",
		slog.Int("project_id", projectID), slog.Int("iid", iid), slog.String("method", http.MethodPut))
	path := fmt.Sprintf("/api/v4/projects/%d/issues/%d", projectID, iid)
	reqBody := map[string]string{"remove_labels": label}
	return c.doRequest(ctx, http.MethodPut, path, reqBody, nil)
}

func joinLabels(labels []string) string {
	return strings.Join(labels, ",")
}

// GetRepositoryTree lists all blob paths of a project's repository. Results
// are cached in-process until InvalidateTree is called for the project.
func (c *Client) GetRepositoryTree(ctx context.Context, projectID int) ([]string, error) {
	if paths, ok := c.treeCache.get(projectID); ok {
		return paths, nil
	}

	c.logger.Debug("Fetching repository tree",
		slog.Int("project_id", projectID), slog.String("method", http.MethodGet))

	var paths []string
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("recursive", "true")
		params.Set("per_page", "100")
		params.Set("page", strconv.Itoa(page))

		path := fmt.Sprintf("/api/v4/projects/%d/repository/tree?%s", projectID, params.Encode())
		body, header, err := c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}

		var entries []*TreeEntry
		if err := json.Unmarshal(body, &entries); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		for _, e := range entries {
			if e.Type == "blob" {
				paths = append(paths, e.Path)
			}
		}

		totalPages, _ := strconv.Atoi(header.Get("X-Total-Pages"))
		if page >= totalPages || len(entries) == 0 {
			break
		}
	}

	c.treeCache.put(projectID, paths)
	return paths, nil
}

// InvalidateTree drops the cached repository tree for a project. The index
// registry calls this before each scheduled rebuild.
func (c *Client) InvalidateTree(projectID int) {
	c.treeCache.invalidate(projectID)
}

// GetFileContent fetches a file at the given ref and returns its decoded
// content. A 404 is returned as ErrFileNotFound so callers can treat
// optional files (AGENTS.md, CONTRIBUTING.md) as simply absent.
func (c *Client) GetFileContent(ctx context.Context, projectID int, path, ref string) (*RepositoryFile, error) {
	c.logger.Debug("Fetching file content",
		slog.Int("project_id", projectID), slog.String("path", path), slog.String("method", http.MethodGet))

	apiPath := fmt.Sprintf("/api/v4/projects/%d/repository/files/%s?ref=%s",
		projectID, url.PathEscape(path), url.QueryEscape(ref))

	var file RepositoryFile
	if err := c.doRequest(ctx, http.MethodGet, apiPath, nil, &file); err != nil {
		if IsNotFound(err) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}

	if file.Encoding == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(file.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to decode file content: %w", err)
		}
		file.Content = string(decoded)
		file.Encoding = "text"
	}

	return &file, nil
}

// GetMergeRequestChanges returns the changed files of a merge request.
func (c *Client) GetMergeRequestChanges(ctx context.Context, projectID, iid int) ([]*Change, error) {
	c.logger.Debug("Fetching merge request changes",
		slog.Int("project_id", projectID), slog.Int("iid", iid), slog.String("method", http.MethodGet))
	var changes mergeRequestChanges
	path := fmt.Sprintf("/api/v4/projects/%d/merge_requests/%d/changes", projectID, iid)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &changes); err != nil {
		return nil, err
	}
	return changes.Changes, nil
}

// GetFileCommits returns the most recent commits touching a file.
func (c *Client) GetFileCommits(ctx context.Context, projectID int, path string, limit int) ([]*Commit, error) {
	c.logger.Debug("Fetching file commits",
		slog.Int("project_id", projectID), slog.String("path", path), slog.String("method", http.MethodGet))

	params := url.Values{}
	params.Set("path", path)
	if limit > 0 {
		params.Set("per_page", strconv.Itoa(limit))
	}

	var commits []*Commit
	apiPath := fmt.Sprintf("/api/v4/projects/%d/repository/commits?%s", projectID, params.Encode())
	if err := c.doRequest(ctx, http.MethodGet, apiPath, nil, &commits); err != nil {
		return nil, err
	}
	return commits, nil
}

// GetLabels fetches the labels defined on a project.
func (c *Client) GetLabels(ctx context.Context, projectID int) ([]*Label, error) {
	c.logger.Debug("Fetching labels", slog.Int("project_id", projectID), slog.String("method", http.MethodGet))
	var labels []*Label
	path := fmt.Sprintf("/api/v4/projects/%d/labels?per_page=100", projectID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &labels); err != nil {
		return nil, err
	}
	return labels, nil
}

// SearchCode runs a server-side blob search on a project.
func (c *Client) SearchCode(ctx context.Context, projectID int, query, branch string) ([]*SearchBlob, error) {
	c.logger.Debug("Searching code",
		slog.Int("project_id", projectID), slog.String("query", query), slog.String("method", http.MethodGet))

	params := url.Values{}
	params.Set("scope", "blobs")
	params.Set("search", query)
	if branch != "" {
		params.Set("ref", branch)
	}

	var blobs []*SearchBlob
	path := fmt.Sprintf("/api/v4/projects/%d/search?%s", projectID, params.Encode())
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &blobs); err != nil {
		return nil, err
	}
	return blobs, nil
}
