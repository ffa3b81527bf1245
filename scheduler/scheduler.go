// Package scheduler drives tokenization work across a StateCache in the
// three modes of §4.3: background (idle-deadline slices with cooperative
// yielding), synchronous ("force up to line N"), and viewport (provisional
// tokenization of a visible window).
package scheduler

import (
	"unicode/utf8"

	"github.com/charmbracelet/tokline/beginstate"
	"github.com/charmbracelet/tokline/buffer"
	"github.com/charmbracelet/tokline/host"
	"github.com/charmbracelet/tokline/statecache"
	"github.com/charmbracelet/tokline/tokenizer"
)

// CheapTokenizeThreshold is the character-length cutoff below which
// synchronously tokenizing a single line is considered cheap (§6,
// isCheapToTokenize).
const CheapTokenizeThreshold = 2048

// sliceBudget is the "tokenize for at least 1ms" burst length (§4.3.1).
// Declared as a variable (not a const) so tests can shrink it to make
// slice boundaries deterministic without sleeping for real milliseconds.
var sliceBudget = 1.0 // ms

// Stats accumulates diagnostics across the scheduler's lifetime, added
// per §10.3(2) so tests and the demo CLI can observe that skip-ahead and
// null-tokenization handling actually fired rather than merely trusting
// the final token output.
type Stats struct {
	LinesTokenized    int
	SkipAheadHits     int
	NullTokenizations int
}

// Scheduler owns the cache and drives SafeTokenizer calls against buf.
// Not safe for concurrent use — exactly one goroutine (the engine's owning
// goroutine) is expected to call into it, matching the engine's
// single-threaded cooperative model (§5).
type Scheduler struct {
	cache *statecache.Cache
	buf   buffer.Buffer
	host  host.Host
	safe  tokenizer.SafeTokenizer

	tok        tokenizer.Tokenizer
	languageID string

	scheduled bool
	disposed  bool

	Stats Stats
}

// New returns a Scheduler over cache/buf/h, reporting tokenizer failures
// through sink.
func New(cache *statecache.Cache, buf buffer.Buffer, h host.Host, sink tokenizer.ErrorSink) *Scheduler {
	s := &Scheduler{cache: cache, buf: buf, host: h}
	s.safe = tokenizer.SafeTokenizer{Sink: sink, OnNull: func() { s.Stats.NullTokenizations++ }}
	return s
}

// SetTokenizer installs (or clears, with tok == nil) the active tokenizer.
func (s *Scheduler) SetTokenizer(tok tokenizer.Tokenizer, languageID string) {
	s.tok = tok
	s.languageID = languageID
}

// Dispose flips the disposed flag observed at every suspension boundary
// (§5 cancellation). In-flight slices check it before each tokenized line
// and before each post-yield resumption.
func (s *Scheduler) Dispose() {
	s.disposed = true
}

// BeginBackground is the background-mode trigger point (§4.3.1): attach,
// buffer edit, language change, and partial-work completion all call
// this. It checks the three gates and, if they pass and no callback is
// already pending, requests one idle window.
func (s *Scheduler) BeginBackground() {
	if s.disposed || s.scheduled {
		return
	}
	if !s.buf.Attached() || s.tok == nil {
		return
	}
	if s.cache.InvalidFrontier() >= s.buf.LineCount() {
		return
	}
	s.scheduled = true
	s.host.RequestIdleCallback(s.onIdle)
}

// onIdle is the idle callback: clear the scheduled bit, compute the idle
// window's end time, and run slices until it's exhausted.
func (s *Scheduler) onIdle(dl host.Deadline) {
	s.scheduled = false
	if !s.stillHasWork() {
		return
	}
	endTime := s.host.Now() + dl.TimeRemaining()
	s.runSlice(endTime)
}

// stillHasWork re-validates disposal/attachment/work-remaining, the
// re-validation the concurrency model requires after every suspension.
func (s *Scheduler) stillHasWork() bool {
	if s.disposed {
		return false
	}
	if !s.buf.Attached() || s.tok == nil {
		return false
	}
	return s.cache.InvalidFrontier() < s.buf.LineCount()
}

// runSlice performs one tokenize-for-at-least-1ms burst, then either
// yields to the host for another burst within the same idle window, or
// (once endTime has passed) requests the next idle window.
func (s *Scheduler) runSlice(endTime float64) {
	s.tokenizeBurst()
	if s.disposed {
		return
	}
	if s.host.Now() < endTime {
		s.host.ScheduleZeroDelay(func() {
			if !s.stillHasWork() {
				return
			}
			s.runSlice(endTime)
		})
		return
	}
	s.BeginBackground()
}

// tokenizeBurst pulls invalid lines one at a time, accumulating tokens
// into a slice-local batch, until more than 1ms has elapsed since the
// burst started (the ">" rather than ">=" threshold defends against
// millisecond-rounding producing zero-length slices) — then flushes once.
// Always flushes at least once when it did any work at all.
func (s *Scheduler) tokenizeBurst() {
	start := s.host.Now()
	var batch []buffer.LineTokens

	for {
		if s.disposed {
			return
		}
		lineCount := s.buf.LineCount()
		frontier := s.cache.InvalidFrontier()
		if frontier >= lineCount {
			break
		}
		batch = append(batch, s.tokenizeLine(frontier+1))
		if s.host.Now()-start > sliceBudget {
			break
		}
	}

	if s.disposed || len(batch) == 0 {
		return
	}
	completed := s.cache.InvalidFrontier() >= s.buf.LineCount()
	s.buf.SetTokens(batch, completed)
}

// tokenizeLine tokenizes buffer line lineNumber (1-based), runs the
// propagation protocol, and updates Stats.
func (s *Scheduler) tokenizeLine(lineNumber int) buffer.LineTokens {
	i := lineNumber - 1
	text := s.buf.Line(lineNumber)
	hasEOL := lineNumber < s.buf.LineCount()

	state := s.cache.GetBeginState(i)
	if state == nil {
		state = s.tok.GetInitialState()
	}

	before := s.cache.InvalidFrontier()
	result := s.safe.Tokenize(s.tok, s.languageID, text, hasEOL, state)
	s.cache.SetEndState(s.buf.LineCount(), i, result.EndState)
	if after := s.cache.InvalidFrontier(); after > before+1 {
		s.Stats.SkipAheadHits++
	}
	s.Stats.LinesTokenized++

	return buffer.LineTokens{Line: lineNumber, Tokens: result.Tokens}
}

// ForceTokenization ensures lines 1..lineNumber are tokenized
// synchronously (§4.3.2). Because the propagation protocol may advance
// invalidFrontier past lineNumber via skip-ahead, the loop re-reads the
// frontier after each step instead of incrementing blindly.
func (s *Scheduler) ForceTokenization(lineNumber int) {
	if s.tok == nil {
		return
	}
	var batch []buffer.LineTokens
	for s.cache.InvalidFrontier() < lineNumber && s.cache.InvalidFrontier() < s.buf.LineCount() {
		batch = append(batch, s.tokenizeLine(s.cache.InvalidFrontier()+1))
	}
	if len(batch) == 0 {
		return
	}
	completed := s.cache.InvalidFrontier() >= s.buf.LineCount()
	s.buf.SetTokens(batch, completed)
}

// TokenizeViewport tokenizes [startLine, endLine] for immediate rendering
// per §4.3.3, degrading to ForceTokenization or doing nothing when the
// frontier already covers (part of) the range.
func (s *Scheduler) TokenizeViewport(startLine, endLine int) {
	if s.tok == nil {
		return
	}
	frontier := s.cache.InvalidFrontier()
	if endLine <= frontier {
		return
	}
	if startLine <= frontier {
		s.ForceTokenization(endLine)
		return
	}

	state, prefixLines := s.buildSyntheticPrefix(startLine)
	for _, ln := range prefixLines {
		text := s.buf.Line(ln)
		result := s.safe.Tokenize(s.tok, s.languageID, text, false, state)
		state = result.EndState
	}

	var batch []buffer.LineTokens
	for ln := startLine; ln <= endLine; ln++ {
		text := s.buf.Line(ln)
		result := s.safe.Tokenize(s.tok, s.languageID, text, true, state)
		batch = append(batch, buffer.LineTokens{Line: ln, Tokens: result.Tokens})
		s.cache.MarkFake(ln - 1)
		state = result.EndState
	}
	if len(batch) > 0 {
		s.buf.SetTokens(batch, false)
	}
}

// buildSyntheticPrefix walks backwards from startLine-1 per §4.3.3,
// returning the anchor begin state to enter the prefix with and the
// collected prefix lines in top-down (ascending) order.
func (s *Scheduler) buildSyntheticPrefix(startLine int) (beginstate.State, []int) {
	anchorIndent := s.buf.LeadingWhitespaceColumn(startLine)

	var collected []int
	var anchorState beginstate.State

	for line := startLine - 1; line >= 1; line-- {
		if cached := s.cache.GetBeginState(line - 1); cached != nil {
			anchorState = cached
			break
		}
		indent := s.buf.LeadingWhitespaceColumn(line)
		if indent == 0 {
			continue
		}
		if indent < anchorIndent {
			collected = append(collected, line)
			anchorIndent = indent
		}
	}

	if anchorState == nil {
		anchorState = s.tok.GetInitialState()
	}

	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}
	return anchorState, collected
}

// IsCheapToTokenize reports whether lineNumber is either already
// tokenized or is the next invalid line and short enough that
// synchronously tokenizing it won't perceptibly stall the UI (§6).
func (s *Scheduler) IsCheapToTokenize(lineNumber int) bool {
	frontier := s.cache.InvalidFrontier()
	if lineNumber <= frontier {
		return true
	}
	if lineNumber == frontier+1 {
		return utf8.RuneCountInString(s.buf.Line(lineNumber)) < CheapTokenizeThreshold
	}
	return false
}

// GetStandardTokenTypeIfInsertingCharacter tokenizes a synthetic version
// of lineNumber with ch spliced in at column (1-based, rune offset) and
// returns the token type covering that offset, without writing results
// back (§6, §8.3.5).
func (s *Scheduler) GetStandardTokenTypeIfInsertingCharacter(lineNumber, column int, ch rune) tokenizer.TokenType {
	if s.tok == nil {
		return tokenizer.Other
	}
	runes := []rune(s.buf.Line(lineNumber))
	col := column - 1
	if col < 0 {
		col = 0
	}
	if col > len(runes) {
		col = len(runes)
	}

	before := string(runes[:col])
	after := string(runes[col:])
	spliced := before + string(ch) + after
	insertedAt := len(before)

	state := s.cache.GetBeginState(lineNumber - 1)
	if state == nil {
		state = s.tok.GetInitialState()
	}

	result := s.safe.Tokenize(s.tok, s.languageID, spliced, true, state)
	return tokenAt(result.Tokens, insertedAt)
}

func tokenAt(tokens []tokenizer.Token, offset int) tokenizer.TokenType {
	for _, t := range tokens {
		if offset < t.EndOffset {
			return t.Type
		}
	}
	if len(tokens) > 0 {
		return tokens[len(tokens)-1].Type
	}
	return tokenizer.Other
}
