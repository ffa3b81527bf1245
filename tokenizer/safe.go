package tokenizer

import (
	"fmt"

	"github.com/charmbracelet/tokline/beginstate"
)

// SafeTokenizer wraps an untrusted Tokenizer so the scheduler never has to
// reason about tokenizer failure or state-mutation directly. It holds no
// state of its own — every call is independent.
type SafeTokenizer struct {
	Sink  ErrorSink
	Codec LanguageIDCodec

	// OnNull, if set, is invoked every time a null tokenization is
	// substituted for a failing call — used by the scheduler to keep the
	// Stats.NullTokenizations counter (§10.3(2)) without SafeTokenizer
	// needing to know about Stats.
	OnNull func()
}

// NewSafe returns a SafeTokenizer reporting to sink and holding codec.
// The codec is not consulted when a null tokenization is built.
func NewSafe(sink ErrorSink, codec LanguageIDCodec) SafeTokenizer {
	return SafeTokenizer{Sink: sink, Codec: codec}
}

// Tokenize clones state, invokes tok.Tokenize, and absorbs any failure
// (error return or panic) into a null tokenization: a single token
// covering the whole line with the Other attribute, and endState equal to
// the caller's original (unmutated) state.
func (s SafeTokenizer) Tokenize(tok Tokenizer, languageID, text string, hasEOL bool, state beginstate.State) (result Result) {
	cloned := state
	if cloned != nil {
		cloned = cloned.Clone()
	}

	defer func() {
		if r := recover(); r != nil {
			s.reportFailure(fmt.Errorf("tokenizer panicked for language %q: %v", languageID, r))
			result = s.nullResult(text, state)
		}
	}()

	res, err := tok.Tokenize(text, hasEOL, cloned)
	if err != nil {
		s.reportFailure(fmt.Errorf("tokenizer failed for language %q: %w", languageID, err))
		return s.nullResult(text, state)
	}

	normalizeOffsets(res.Tokens, len(text))
	return res
}

// nullResult is the null tokenization: one token spanning the whole line,
// state unchanged so the caller's state flows through the failure.
func (s SafeTokenizer) nullResult(text string, state beginstate.State) Result {
	_ = s.Codec // reserved for future per-language attribute tagging
	if s.OnNull != nil {
		s.OnNull()
	}
	return Result{
		Tokens:   []Token{{EndOffset: len(text), Type: Other}},
		EndState: state,
	}
}

func (s SafeTokenizer) reportFailure(err error) {
	if s.Sink != nil {
		s.Sink.Report(err)
	}
}

// normalizeOffsets caps every token's end offset at the line length, the
// way the engine stores absolute offsets even if an external tokenizer
// returns something out of range.
func normalizeOffsets(tokens []Token, lineLen int) {
	for i := range tokens {
		if tokens[i].EndOffset > lineLen {
			tokens[i].EndOffset = lineLen
		}
	}
}
