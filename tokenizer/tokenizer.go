// Package tokenizer defines the pluggable, per-language tokenizer contract
// and SafeTokenizer, the wrapper that makes an untrusted external
// tokenizer safe to drive from the scheduler: it clones state, substitutes
// a null tokenization on failure, and normalises end offsets.
package tokenizer

import "github.com/charmbracelet/tokline/beginstate"

// TokenType is the coarse classification attached to a Token. It is the
// fixed vocabulary used by getStandardTokenTypeIfInsertingCharacter
// (§10.3(4)) and by the null tokenizer's fallback token.
type TokenType int

const (
	Other TokenType = iota
	Comment
	String
	Keyword
	Identifier
	Number
)

// Token is one (endOffset, attribute) pair covering a run of a line.
// EndOffset is an absolute offset into the line's text, capped at the
// line's length.
type Token struct {
	EndOffset int
	Type      TokenType
}

// Result is what a Tokenizer produces for one line: its tokens and the
// begin state the next line should be entered with.
type Result struct {
	Tokens   []Token
	EndState beginstate.State
}

// Tokenizer is the external, per-language collaborator. Implementations
// are untrusted: Tokenize may mutate the state value it is given (that's
// why SafeTokenizer always clones before calling in), and may panic or
// return an error, both of which SafeTokenizer absorbs.
type Tokenizer interface {
	// GetInitialState returns the state a line 0 should be entered with.
	GetInitialState() beginstate.State

	// Tokenize produces tokens for text, entering with state. hasEOL
	// hints whether text is a complete, terminated line or a final
	// partial line; some grammars care about the distinction.
	Tokenize(text string, hasEOL bool, state beginstate.State) (Result, error)
}

// LanguageIDCodec encodes a language identifier to an integer.
// SafeTokenizer holds one but does not consult it: a null tokenization
// carries only the Other token type, with no per-language attribute.
type LanguageIDCodec interface {
	Encode(languageID string) int
}

// ErrorSink is a non-fatal error reporter. Every error SafeTokenizer
// absorbs is reported here rather than propagated.
type ErrorSink interface {
	Report(err error)
}
