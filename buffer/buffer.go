// Package buffer defines the text-storage collaborator the engine
// consumes (§6) — line access, attachment/size predicates, edit events,
// and the token sinks the scheduler writes into — plus a couple of
// concrete implementations used for testing and for the demo CLI. The
// buffer's own storage, undo history, and rendering are out of this
// engine's scope; only the surface it exposes to the tokenizer matters
// here.
package buffer

import (
	"strings"

	"github.com/charmbracelet/tokline/statecache"
	"github.com/charmbracelet/tokline/tokenizer"
)

// Change describes one incremental edit: the buffer lines in Range were
// replaced by Text.
type Change struct {
	Range statecache.Range
	Text  string
}

// InsertedLineCount returns the number of buffer lines Text puts in place
// of Range: Text split on "\n" (the way Memory.ReplaceLines splits it), so
// one more than the number of newline characters it contains. Range covers
// whole lines, half-open, so this is the count the lifecycle controller
// feeds to Cache.ApplyEdits to keep the cache aligned with the buffer.
func (c Change) InsertedLineCount() int {
	return strings.Count(c.Text, "\n") + 1
}

// LineTokens is one line's worth of tokens, addressed by 1-based buffer
// line number, as handed to the Buffer's SetTokens sink.
type LineTokens struct {
	Line   int
	Tokens []tokenizer.Token
}

// Buffer is the text storage collaborator. Line numbers are 1-based
// throughout, matching the spec's buffer-coordinate convention.
type Buffer interface {
	LineCount() int
	Line(lineNumber int) string

	// LeadingWhitespaceColumn returns the rune-width of lineNumber's
	// leading whitespace, used by viewport mode's indentation heuristic.
	LeadingWhitespaceColumn(lineNumber int) int

	Attached() bool
	TooLarge() bool
	LanguageID() string

	// SetTokens publishes a batch of per-line token results. completed
	// reports whether, with this batch, every line of the buffer is
	// tokenized (the invalid frontier has reached the line count);
	// provisional/"fake" viewport batches always pass false.
	SetTokens(batch []LineTokens, completed bool)
	ClearTokens()

	// OnContentChanged, OnLanguageChanged and OnAttachedChanged register
	// the LifecycleController's subscriptions. Each returns an
	// unsubscribe function, released on engine disposal.
	OnContentChanged(fn func(changes []Change, isFlush bool)) (unsubscribe func())
	OnLanguageChanged(fn func(languageID string)) (unsubscribe func())
	OnAttachedChanged(fn func(attached bool)) (unsubscribe func())
}
