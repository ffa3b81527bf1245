package tokenizer

import (
	"fmt"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/charmbracelet/tokline/beginstate"
)

// chromaState is the BeginState surrogate for ChromaTokenizer. chroma's
// lexers tokenize a whole blob of text at a time and don't expose a
// resumable per-line machine state the way a TextMate grammar does, so the
// surrogate instead tracks the token type the previous line ended on — a
// coarse but clonable, comparable stand-in for the skip-ahead equality
// check. Tokenize does not read the incoming state: every line is lexed on
// its own, so a construct spanning lines (a multi-line string or comment)
// is not carried into the next line's tokens.
type chromaState struct {
	lastType chroma.TokenType
}

func (s chromaState) Clone() beginstate.State { return s }

func (s chromaState) Equals(other beginstate.State) bool {
	o, ok := other.(chromaState)
	return ok && o.lastType == s.lastType
}

// ChromaTokenizer adapts a chroma lexer to the Tokenizer interface.
type ChromaTokenizer struct {
	lexer chroma.Lexer
}

// NewChromaTokenizer resolves languageID (a chroma lexer alias, e.g. "go",
// "python") to a lexer. It falls back to chroma's plaintext lexer if the
// alias isn't recognised, mirroring glow's own graceful-degradation
// approach to unknown code-fence languages.
func NewChromaTokenizer(languageID string) *ChromaTokenizer {
	lexer := lexers.Get(languageID)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	return &ChromaTokenizer{lexer: chroma.Coalesce(lexer)}
}

// GetInitialState returns the zero-value surrogate state: "not inside any
// special run yet".
func (c *ChromaTokenizer) GetInitialState() beginstate.State {
	return chromaState{}
}

// Tokenize runs the line through the chroma lexer in isolation (chroma has
// no incremental API), producing tokens and the derived next-state
// surrogate.
func (c *ChromaTokenizer) Tokenize(text string, hasEOL bool, state beginstate.State) (Result, error) {
	iter, err := c.lexer.Tokenise(nil, text)
	if err != nil {
		return Result{}, fmt.Errorf("chroma tokenise: %w", err)
	}

	var tokens []Token
	var lastType chroma.TokenType
	offset := 0
	for tok := iter(); tok != chroma.EOF; tok = iter() {
		offset += len(tok.Value)
		tokens = append(tokens, Token{
			EndOffset: offset,
			Type:      classify(tok.Type),
		})
		lastType = tok.Type
	}

	if len(tokens) == 0 {
		// An empty line still produces one zero-width token so downstream
		// consumers always have at least one entry to render.
		tokens = append(tokens, Token{EndOffset: 0, Type: Other})
	}

	return Result{
		Tokens:   tokens,
		EndState: chromaState{lastType: lastType},
	}, nil
}

// classify maps chroma's fine-grained token type hierarchy down to the
// engine's small, fixed TokenType vocabulary (§10.3(4)).
func classify(t chroma.TokenType) TokenType {
	switch {
	case t.InCategory(chroma.Comment):
		return Comment
	case t.InSubCategory(chroma.LiteralString):
		return String
	case t.InSubCategory(chroma.LiteralNumber):
		return Number
	case t.InCategory(chroma.Keyword):
		return Keyword
	case t.InCategory(chroma.Name):
		return Identifier
	default:
		return Other
	}
}
