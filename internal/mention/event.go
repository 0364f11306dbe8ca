// Package mention turns bot-addressed notes into posted replies: duplicate
// checks, prompt assembly, the model conversation with its tool loop, and
// the final comment.
package mention

// NoteableKind identifies what a note is attached to.
type NoteableKind string

const (
	KindIssue        NoteableKind = "Issue"
	KindMergeRequest NoteableKind = "MergeRequest"
)

// Event is one observed note addressed to the bot, synthesised by the
// polling engine. UpdatedAt stays a raw RFC-3339 string until processing;
// an unparseable timestamp is a terminal failure for the mention.
type Event struct {
	NoteID      int
	Author      string
	Body        string
	UpdatedAt   string
	ProjectID   int
	Kind        NoteableKind
	NoteableIID int
}
