package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/alekspetrov/concierge/internal/adapters/gitlab"
	"github.com/alekspetrov/concierge/internal/index"
)

// defaultSearchLimit caps search_repository_files results when the model
// does not pass a limit.
const defaultSearchLimit = 10

// Forge is the slice of the GitLab client the built-in tools use.
type Forge interface {
	GetIssue(ctx context.Context, projectID, iid int) (*gitlab.Issue, error)
	GetMergeRequest(ctx context.Context, projectID, iid int) (*gitlab.MergeRequest, error)
	SearchCode(ctx context.Context, projectID int, query, branch string) ([]*gitlab.SearchBlob, error)
	GetProjectByPath(ctx context.Context, path string) (*gitlab.Project, error)
	GetFileContent(ctx context.Context, projectID int, path, ref string) (*gitlab.RepositoryFile, error)
}

// NewBuiltinRegistry builds the registry for one mention. File-scoped tools
// are bound to the mention's project and ref, so the model never has to
// guess project identifiers for the repository it was asked about.
func NewBuiltinRegistry(forge Forge, indexes *index.Registry, project *gitlab.Project, ref string) *Registry {
	r := NewRegistry()

	r.Register(&Tool{
		Name:        "get_issue_details",
		Description: "Fetch an issue's title, state, labels and description.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"project_id": {"type": "integer", "description": "Numeric project ID"},
				"issue_iid": {"type": "integer", "description": "Project-scoped issue number"}
			},
			"required": ["project_id", "issue_iid"]
		}`),
		Required: []string{"project_id", "issue_iid"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			projectID, err := intArg(args, "project_id")
			if err != nil {
				return "", err
			}
			iid, err := intArg(args, "issue_iid")
			if err != nil {
				return "", err
			}
			issue, err := forge.GetIssue(ctx, projectID, iid)
			if err != nil {
				return "", err
			}
			return formatIssue(issue), nil
		},
	})

	r.Register(&Tool{
		Name:        "get_merge_request_details",
		Description: "Fetch a merge request's title, state, branches, labels and description.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"project_id": {"type": "integer", "description": "Numeric project ID"},
				"mr_iid": {"type": "integer", "description": "Project-scoped merge request number"}
			},
			"required": ["project_id", "mr_iid"]
		}`),
		Required: []string{"project_id", "mr_iid"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			projectID, err := intArg(args, "project_id")
			if err != nil {
				return "", err
			}
			iid, err := intArg(args, "mr_iid")
			if err != nil {
				return "", err
			}
			mr, err := forge.GetMergeRequest(ctx, projectID, iid)
			if err != nil {
				return "", err
			}
			return formatMergeRequest(mr), nil
		},
	})

	r.Register(&Tool{
		Name:        "search_code",
		Description: "Server-side code search within a project. Returns matching file snippets.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"project_id": {"type": "integer", "description": "Numeric project ID"},
				"query": {"type": "string", "description": "Search term"},
				"branch": {"type": "string", "description": "Branch to search; defaults to the project default"}
			},
			"required": ["project_id", "query"]
		}`),
		Required: []string{"project_id", "query"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			projectID, err := intArg(args, "project_id")
			if err != nil {
				return "", err
			}
			query, err := stringArg(args, "query")
			if err != nil {
				return "", err
			}
			blobs, err := forge.SearchCode(ctx, projectID, query, optionalStringArg(args, "branch"))
			if err != nil {
				return "", err
			}
			if len(blobs) == 0 {
				return "No matches found.", nil
			}
			var b strings.Builder
			for _, blob := range blobs {
				fmt.Fprintf(&b, "%s (line %d):\n%s\n\n", blob.Path, blob.Startline, blob.Data)
			}
			return b.String(), nil
		},
	})

	r.Register(&Tool{
		Name:        "get_project_by_path",
		Description: "Resolve a project path like group/project to its numeric ID and metadata.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"project_path": {"type": "string", "description": "Full path with namespace"}
			},
			"required": ["project_path"]
		}`),
		Required: []string{"project_path"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			path, err := stringArg(args, "project_path")
			if err != nil {
				return "", err
			}
			p, err := forge.GetProjectByPath(ctx, path)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("ID: %d\nPath: %s\nDefault branch: %s\nURL: %s",
				p.ID, p.PathWithNamespace, p.DefaultBranch, p.WebURL), nil
		},
	})

	r.Register(&Tool{
		Name:        "get_file_content",
		Description: "Fetch a file's full content from the current project.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"file_path": {"type": "string", "description": "Path within the repository"}
			},
			"required": ["file_path"]
		}`),
		Required: []string{"file_path"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			path, err := stringArg(args, "file_path")
			if err != nil {
				return "", err
			}
			file, err := forge.GetFileContent(ctx, project.ID, path, ref)
			if err != nil {
				return "", err
			}
			return file.Content, nil
		},
	})

	r.Register(&Tool{
		Name:        "get_file_lines",
		Description: "Fetch a 1-based inclusive line range from a file in the current project.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"file_path": {"type": "string", "description": "Path within the repository"},
				"start_line": {"type": "integer", "description": "First line, 1-based"},
				"end_line": {"type": "integer", "description": "Last line, inclusive"}
			},
			"required": ["file_path", "start_line", "end_line"]
		}`),
		Required: []string{"file_path", "start_line", "end_line"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			path, err := stringArg(args, "file_path")
			if err != nil {
				return "", err
			}
			start, err := intArg(args, "start_line")
			if err != nil {
				return "", err
			}
			end, err := intArg(args, "end_line")
			if err != nil {
				return "", err
			}
			if end < start {
				return "", fmt.Errorf("end_line must not precede start_line")
			}
			file, err := forge.GetFileContent(ctx, project.ID, path, ref)
			if err != nil {
				return "", err
			}
			lines := strings.Split(file.Content, "\n")
			if start > len(lines) {
				return "", fmt.Errorf("start_line %d is past the end of the file (%d lines)", start, len(lines))
			}
			if end > len(lines) {
				end = len(lines)
			}
			return strings.Join(lines[start-1:end], "\n"), nil
		},
	})

	r.Register(&Tool{
		Name:        "search_repository_files",
		Description: "Find files in the current project whose content matches all keywords.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"keywords": {"type": "array", "items": {"type": "string"}, "description": "Keywords that must all appear"},
				"limit": {"type": "integer", "description": "Maximum number of paths to return"}
			},
			"required": ["keywords"]
		}`),
		Required: []string{"keywords"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			keywords, err := stringSliceArg(args, "keywords")
			if err != nil {
				return "", err
			}
			limit := defaultSearchLimit
			if _, ok := args["limit"]; ok {
				if limit, err = intArg(args, "limit"); err != nil {
					return "", err
				}
			}
			paths := indexes.Query(project.ID).Search(keywords)
			if len(paths) == 0 {
				return "No files matched.", nil
			}
			sort.Strings(paths)
			if len(paths) > limit {
				paths = paths[:limit]
			}
			return strings.Join(paths, "\n"), nil
		},
	})

	return r
}

func formatIssue(issue *gitlab.Issue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Issue #%d: %s\n", issue.IID, issue.Title)
	fmt.Fprintf(&b, "State: %s\n", issue.State)
	if len(issue.Labels) > 0 {
		fmt.Fprintf(&b, "Labels: %s\n", strings.Join(issue.Labels, ", "))
	}
	if issue.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", issue.Description)
	}
	return b.String()
}

func formatMergeRequest(mr *gitlab.MergeRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Merge request !%d: %s\n", mr.IID, mr.Title)
	fmt.Fprintf(&b, "State: %s (%s)\n", mr.State, mr.DetailedMergeStatus)
	fmt.Fprintf(&b, "Branches: %s -> %s\n", mr.SourceBranch, mr.TargetBranch)
	if len(mr.Labels) > 0 {
		fmt.Fprintf(&b, "Labels: %s\n", strings.Join(mr.Labels, ", "))
	}
	if mr.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", mr.Description)
	}
	return b.String()
}
