package gitlab

import (
	"errors"
	"fmt"
)

// ErrFileNotFound is returned by GetFileContent when the repository has no
// file at the requested path. Callers routinely branch on it (AGENTS.md and
// CONTRIBUTING.md are optional), so a 404 there is not surfaced as *APIError.
var ErrFileNotFound = errors.New("file not found")

// APIError is a non-2xx response from the GitLab API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gitlab API error (status %d): %s", e.Status, e.Body)
}

// IsNotFound reports whether err is an *APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == 404
}
