package buffer

import (
	"strings"
	"unicode"

	"github.com/charmbracelet/tokline/statecache"
	"github.com/charmbracelet/tokline/tokenizer"
	"github.com/mattn/go-runewidth"
)

// Memory is an in-memory Buffer test double. It is not meant for
// production use — it exists so the scheduler and engine tests can drive
// the engine against a real, mutable line store without a UI.
type Memory struct {
	lines      []string
	languageID string
	attached   bool
	tooLarge   bool
	tokens     map[int][]tokenizer.Token

	onContentChanged  []func(changes []Change, isFlush bool)
	onLanguageChanged []func(languageID string)
	onAttachedChanged []func(attached bool)
}

// NewMemory returns a Memory buffer seeded with text split on "\n".
func NewMemory(text, languageID string) *Memory {
	return &Memory{
		lines:      strings.Split(text, "\n"),
		languageID: languageID,
		attached:   true,
		tokens:     map[int][]tokenizer.Token{},
	}
}

func (m *Memory) LineCount() int { return len(m.lines) }

func (m *Memory) Line(lineNumber int) string {
	if lineNumber < 1 || lineNumber > len(m.lines) {
		return ""
	}
	return m.lines[lineNumber-1]
}

func (m *Memory) LeadingWhitespaceColumn(lineNumber int) int {
	return leadingWhitespaceColumn(m.Line(lineNumber))
}

func (m *Memory) Attached() bool     { return m.attached }
func (m *Memory) TooLarge() bool     { return m.tooLarge }
func (m *Memory) LanguageID() string { return m.languageID }

func (m *Memory) SetTokens(batch []LineTokens, completed bool) {
	for _, lt := range batch {
		m.tokens[lt.Line] = lt.Tokens
	}
}

func (m *Memory) ClearTokens() {
	m.tokens = map[int][]tokenizer.Token{}
}

func (m *Memory) TokensFor(lineNumber int) []tokenizer.Token {
	return m.tokens[lineNumber]
}

func (m *Memory) OnContentChanged(fn func(changes []Change, isFlush bool)) func() {
	m.onContentChanged = append(m.onContentChanged, fn)
	idx := len(m.onContentChanged) - 1
	return func() { m.onContentChanged[idx] = nil }
}

func (m *Memory) OnLanguageChanged(fn func(languageID string)) func() {
	m.onLanguageChanged = append(m.onLanguageChanged, fn)
	idx := len(m.onLanguageChanged) - 1
	return func() { m.onLanguageChanged[idx] = nil }
}

func (m *Memory) OnAttachedChanged(fn func(attached bool)) func() {
	m.onAttachedChanged = append(m.onAttachedChanged, fn)
	idx := len(m.onAttachedChanged) - 1
	return func() { m.onAttachedChanged[idx] = nil }
}

// SetAttached changes attachment state and fires subscribers.
func (m *Memory) SetAttached(attached bool) {
	m.attached = attached
	for _, fn := range m.onAttachedChanged {
		if fn != nil {
			fn(attached)
		}
	}
}

// SetTooLarge flips the too-large predicate (no event per spec — it's
// only consulted at init/reset time).
func (m *Memory) SetTooLarge(tooLarge bool) { m.tooLarge = tooLarge }

// SetLanguage changes the buffer's language and fires subscribers.
func (m *Memory) SetLanguage(languageID string) {
	m.languageID = languageID
	for _, fn := range m.onLanguageChanged {
		if fn != nil {
			fn(languageID)
		}
	}
}

// ReplaceLines replaces 1-based buffer lines [startLine, endLine) with the
// lines obtained by splitting newText on "\n", firing an incremental
// content-changed event.
func (m *Memory) ReplaceLines(startLine, endLine int, newText string) {
	inserted := strings.Split(newText, "\n")

	lo := startLine - 1
	hi := endLine - 1
	if lo < 0 {
		lo = 0
	}
	if hi > len(m.lines) {
		hi = len(m.lines)
	}
	if hi < lo {
		hi = lo
	}

	tail := append([]string{}, m.lines[hi:]...)
	m.lines = append(m.lines[:lo], inserted...)
	m.lines = append(m.lines, tail...)

	change := Change{
		Range: statecache.Range{StartLine: startLine, EndLine: endLine},
		Text:  newText,
	}
	for _, fn := range m.onContentChanged {
		if fn != nil {
			fn([]Change{change}, false)
		}
	}
}

// Flush replaces the whole buffer content and fires an isFlush=true event.
func (m *Memory) Flush(text string) {
	m.lines = strings.Split(text, "\n")
	for _, fn := range m.onContentChanged {
		if fn != nil {
			fn(nil, true)
		}
	}
}

// leadingWhitespaceColumn is the display-column width of line's leading
// run of spaces/tabs, counting a tab as advancing to the next multiple of
// 4 and measuring every other leading rune with go-runewidth — the same
// library the teacher repo's pager uses for gutter/wrap column math — so
// a line indented with full-width space characters still gets a sane
// synthetic-prefix indentation reading (§4.3.3).
func leadingWhitespaceColumn(line string) int {
	col := 0
	for _, r := range line {
		switch {
		case r == ' ':
			col++
		case r == '\t':
			col += 4 - (col % 4)
		case unicode.IsSpace(r):
			col += runewidth.RuneWidth(r)
		default:
			return col
		}
	}
	return col
}
