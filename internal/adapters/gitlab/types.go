package gitlab

import "time"

// Issue states (GitLab uses different terminology than GitHub)
const (
	StateOpened = "opened"
	StateClosed = "closed"
	StateMerged = "merged"
)

// LabelStale marks issues whose most recent human activity is older than
// the configured threshold.
const LabelStale = "stale"

// Issue represents a GitLab issue
type Issue struct {
	ID          int       `json:"id"`
	IID         int       `json:"iid"` // Project-scoped ID
	ProjectID   int       `json:"project_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	State       string    `json:"state"` // opened, closed
	Labels      []string  `json:"labels"`
	WebURL      string    `json:"web_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Author      *User     `json:"author,omitempty"`
}

// HasLabel checks if the issue carries a specific label
func (i *Issue) HasLabel(name string) bool {
	for _, label := range i.Labels {
		if label == name {
			return true
		}
	}
	return false
}

// User represents a GitLab user
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	WebURL   string `json:"web_url"`
}

// Project represents a GitLab project
type Project struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	Path              string `json:"path"`
	PathWithNamespace string `json:"path_with_namespace"`
	WebURL            string `json:"web_url"`
	DefaultBranch     string `json:"default_branch"`
}

// MergeRequest represents a GitLab merge request
type MergeRequest struct {
	ID                  int       `json:"id"`
	IID                 int       `json:"iid"` // Project-scoped ID
	ProjectID           int       `json:"project_id"`
	Title               string    `json:"title"`
	Description         string    `json:"description"`
	State               string    `json:"state"` // opened, closed, merged
	SourceBranch        string    `json:"source_branch"`
	TargetBranch        string    `json:"target_branch"`
	WebURL              string    `json:"web_url"`
	DetailedMergeStatus string    `json:"detailed_merge_status"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
	Author              *User     `json:"author,omitempty"`
	Labels              []string  `json:"labels"`
}

// Note represents a GitLab comment (note in GitLab terminology)
type Note struct {
	ID           int       `json:"id"`
	Body         string    `json:"body"`
	Author       *User     `json:"author,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	System       bool      `json:"system"` // True for system-generated notes
	NoteableType string    `json:"noteable_type,omitempty"`
	NoteableIID  int       `json:"noteable_iid,omitempty"`
}

// Label represents a GitLab project label
type Label struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

// TreeEntry is one entry of a repository tree listing
type TreeEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"` // blob, tree
	Path string `json:"path"`
}

// RepositoryFile is a file fetched from the repository at a given ref
type RepositoryFile struct {
	FilePath string `json:"file_path"`
	Size     int    `json:"size"`
	Encoding string `json:"encoding"` // base64 or text
	Content  string `json:"content"`  // decoded text once fetched through the client
	Ref      string `json:"ref"`
}

// Change is one changed file of a merge request
type Change struct {
	OldPath     string `json:"old_path"`
	NewPath     string `json:"new_path"`
	Diff        string `json:"diff"`
	NewFile     bool   `json:"new_file"`
	RenamedFile bool   `json:"renamed_file"`
	DeletedFile bool   `json:"deleted_file"`
}

// mergeRequestChanges is the wire shape of the MR changes endpoint
type mergeRequestChanges struct {
	Changes []*Change `json:"changes"`
}

// Commit represents a repository commit
type Commit struct {
	ID         string    `json:"id"`
	ShortID    string    `json:"short_id"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	AuthorName string    `json:"author_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// SearchBlob is one result of a server-side code search
type SearchBlob struct {
	Path      string `json:"path"`
	Filename  string `json:"filename"`
	Ref       string `json:"ref"`
	Startline int    `json:"startline"`
	Data      string `json:"data"`
	ProjectID int    `json:"project_id"`
}

// ListIssuesOptions holds options for listing issues
type ListIssuesOptions struct {
	Labels       []string
	State        string // opened, closed, all
	Sort         string // asc, desc
	OrderBy      string // created_at, updated_at
	UpdatedAfter time.Time
	CreatedAfter time.Time
}
