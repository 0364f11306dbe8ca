package gitlab

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alekspetrov/concierge/internal/testutil"
)

func TestIssuesWithNotesSince(t *testing.T) {
	response := `{
		"data": {
			"project": {
				"issues": {
					"nodes": [
						{
							"iid": "101",
							"title": "Crash on startup",
							"description": "It crashes",
							"state": "opened",
							"createdAt": "2026-08-01T10:00:00Z",
							"updatedAt": "2026-08-20T10:00:00Z",
							"labels": {"nodes": [{"title": "bug"}]},
							"author": {"username": "alice"},
							"notes": {
								"nodes": [
									{
										"id": "gid://gitlab/Note/987",
										"body": "@concierge please look",
										"createdAt": "2026-08-20T10:00:00Z",
										"updatedAt": "2026-08-20T10:00:00Z",
										"system": false,
										"author": {"username": "alice"}
									}
								]
							}
						}
					]
				}
			}
		}
	}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/graphql" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		_, _ = w.Write([]byte(response))
	}))
	defer server.Close()

	client := NewClient(server.URL, testutil.FakeGitLabToken)
	result, err := client.IssuesWithNotesSince(context.Background(), "group/project", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("IssuesWithNotesSince() error = %v", err)
	}

	if len(result) != 1 {
		t.Fatalf("got %d issues, want 1", len(result))
	}
	issue := result[0].Issue
	if issue.IID != 101 || issue.Title != "Crash on startup" {
		t.Errorf("unexpected issue: %+v", issue)
	}
	if len(issue.Labels) != 1 || issue.Labels[0] != "bug" {
		t.Errorf("unexpected labels: %v", issue.Labels)
	}
	notes := result[0].Notes
	if len(notes) != 1 || notes[0].ID != 987 {
		t.Errorf("unexpected notes: %+v", notes)
	}
	if notes[0].Author == nil || notes[0].Author.Username != "alice" {
		t.Errorf("unexpected note author: %+v", notes[0].Author)
	}
}

func TestIssuesWithNotesSinceProjectMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"project":null}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, testutil.FakeGitLabToken)
	_, err := client.IssuesWithNotesSince(context.Background(), "missing/project", time.Now())
	if err == nil {
		t.Error("expected error for missing project")
	}
}

func TestParseGlobalID(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"gid://gitlab/Note/987", 987},
		{"123", 123},
		{"gid://gitlab/Note/bogus", 0},
	}
	for _, tt := range tests {
		if got := parseGlobalID(tt.in); got != tt.want {
			t.Errorf("parseGlobalID(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
