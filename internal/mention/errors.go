package mention

import "fmt"

// ErrorKind classifies terminal mention failures.
type ErrorKind string

const (
	// KindParse marks an unparseable note timestamp.
	KindParse ErrorKind = "parse_error"
	// KindMissingNoteable marks an event without a usable noteable reference.
	KindMissingNoteable ErrorKind = "missing_noteable"
	// KindUpstream marks a forge or model failure.
	KindUpstream ErrorKind = "upstream_error"
)

// Error is a terminal per-mention failure. The mention cache is never
// updated on these, so the next poll retries the mention.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
