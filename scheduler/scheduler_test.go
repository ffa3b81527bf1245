package scheduler

import (
	"strings"
	"testing"

	"github.com/charmbracelet/tokline/beginstate"
	"github.com/charmbracelet/tokline/buffer"
	"github.com/charmbracelet/tokline/host"
	"github.com/charmbracelet/tokline/statecache"
	"github.com/charmbracelet/tokline/tokenizer"
)

// fakeState is a trivial beginstate.State: an int that only changes value
// when a line contains the literal "TOGGLE", letting tests control exactly
// when the propagation protocol's skip-ahead path fires.
type fakeState int

func (s fakeState) Clone() beginstate.State { return s }

func (s fakeState) Equals(other beginstate.State) bool {
	o, ok := other.(fakeState)
	return ok && o == s
}

type fakeTokenizer struct{}

func (fakeTokenizer) GetInitialState() beginstate.State { return fakeState(0) }

func (fakeTokenizer) Tokenize(text string, hasEOL bool, state beginstate.State) (tokenizer.Result, error) {
	st, _ := state.(fakeState)
	end := st
	if strings.Contains(text, "TOGGLE") {
		end++
	}
	typ := tokenizer.Other
	if strings.Contains(text, "KEY") {
		typ = tokenizer.Keyword
	}
	return tokenizer.Result{
		Tokens:   []tokenizer.Token{{EndOffset: len(text), Type: typ}},
		EndState: end,
	}, nil
}

type fakeSink struct{ errs []error }

func (s *fakeSink) Report(err error) { s.errs = append(s.errs, err) }

// fakeDeadline hands out a fixed remaining budget.
type fakeDeadline struct{ remaining float64 }

func (d fakeDeadline) TimeRemaining() float64 { return d.remaining }

// fakeHost is a deterministic host.Host test double: Now() advances a
// fixed step per call (simulating elapsed time without real sleeping),
// and idle/zero-delay callbacks are queued for the test to pump explicitly
// rather than dispatched on a goroutine.
type fakeHost struct {
	now       float64
	step      float64
	idleQueue []func(host.Deadline)
	zeroQueue []func()
}

func newFakeHost(step float64) *fakeHost {
	return &fakeHost{step: step}
}

func (h *fakeHost) RequestIdleCallback(cb func(host.Deadline)) {
	h.idleQueue = append(h.idleQueue, cb)
}

func (h *fakeHost) ScheduleZeroDelay(cb func()) {
	h.zeroQueue = append(h.zeroQueue, cb)
}

func (h *fakeHost) Now() float64 {
	h.now += h.step
	return h.now
}

// pump drains idle and zero-delay callbacks until both queues are empty,
// with a generous iteration cap so a scheduler bug shows up as a test
// failure instead of a hang.
func (h *fakeHost) pump(remaining float64) {
	for i := 0; i < 10000 && (len(h.idleQueue) > 0 || len(h.zeroQueue) > 0); i++ {
		if len(h.idleQueue) > 0 {
			cb := h.idleQueue[0]
			h.idleQueue = h.idleQueue[1:]
			cb(fakeDeadline{remaining: remaining})
			continue
		}
		cb := h.zeroQueue[0]
		h.zeroQueue = h.zeroQueue[1:]
		cb()
	}
}

func withTinySliceBudget(t *testing.T) {
	old := sliceBudget
	sliceBudget = 0.05
	t.Cleanup(func() { sliceBudget = old })
}

func TestBackgroundTokenizesEntireBufferAcrossIdleSlices(t *testing.T) {
	withTinySliceBudget(t)

	buf := buffer.NewMemory("a\nb\nc\nd", "fake")
	cache := statecache.New()
	h := newFakeHost(0.1)
	s := New(cache, buf, h, &fakeSink{})
	s.SetTokenizer(fakeTokenizer{}, "fake")

	s.BeginBackground()
	h.pump(100)

	if got := cache.InvalidFrontier(); got != buf.LineCount() {
		t.Fatalf("InvalidFrontier() = %d, want %d", got, buf.LineCount())
	}
	if s.Stats.LinesTokenized != 4 {
		t.Fatalf("LinesTokenized = %d, want 4", s.Stats.LinesTokenized)
	}
	for i := 1; i <= 4; i++ {
		if buf.TokensFor(i) == nil {
			t.Fatalf("line %d: no tokens published", i)
		}
	}
}

func TestBeginBackgroundNoopWhenNoTokenizerInstalled(t *testing.T) {
	buf := buffer.NewMemory("a\nb", "fake")
	cache := statecache.New()
	h := newFakeHost(0.1)
	s := New(cache, buf, h, &fakeSink{})

	s.BeginBackground()
	if len(h.idleQueue) != 0 {
		t.Fatalf("expected no idle callback requested without a tokenizer")
	}
}

func TestDisposeStopsBackgroundWork(t *testing.T) {
	buf := buffer.NewMemory("a\nb", "fake")
	cache := statecache.New()
	h := newFakeHost(0.1)
	s := New(cache, buf, h, &fakeSink{})
	s.SetTokenizer(fakeTokenizer{}, "fake")

	s.Dispose()
	s.BeginBackground()
	if len(h.idleQueue) != 0 {
		t.Fatalf("expected no idle callback requested once disposed")
	}
}

// TestForceTokenizationSkipAhead mirrors the cache-level skip-ahead
// scenario at the scheduler's own API surface: a single re-tokenized line
// whose end state matches what the next line already expected should fast
// forward the frontier past every line still agreeing downstream, and
// record the hit in Stats.
func TestForceTokenizationSkipAhead(t *testing.T) {
	withTinySliceBudget(t)

	buf := buffer.NewMemory("a\nb\nc\nd", "fake")
	cache := statecache.New()
	h := newFakeHost(0.1)
	s := New(cache, buf, h, &fakeSink{})
	s.SetTokenizer(fakeTokenizer{}, "fake")

	s.ForceTokenization(buf.LineCount())
	if got := cache.InvalidFrontier(); got != buf.LineCount() {
		t.Fatalf("setup: InvalidFrontier() = %d, want %d", got, buf.LineCount())
	}
	baseline := s.Stats.SkipAheadHits

	cache.MarkFake(0)
	if got := cache.InvalidFrontier(); got != 0 {
		t.Fatalf("MarkFake(0): InvalidFrontier() = %d, want 0", got)
	}

	s.ForceTokenization(1)

	if got := cache.InvalidFrontier(); got != buf.LineCount() {
		t.Fatalf("after re-tokenizing line 1: InvalidFrontier() = %d, want %d (skip-ahead)", got, buf.LineCount())
	}
	if s.Stats.SkipAheadHits != baseline+1 {
		t.Fatalf("SkipAheadHits = %d, want %d", s.Stats.SkipAheadHits, baseline+1)
	}
}

func TestForceTokenizationStateChangeStopsAtFrontier(t *testing.T) {
	buf := buffer.NewMemory("a\nb\nc", "fake")
	cache := statecache.New()
	h := newFakeHost(0.1)
	s := New(cache, buf, h, &fakeSink{})
	s.SetTokenizer(fakeTokenizer{}, "fake")

	s.ForceTokenization(buf.LineCount())
	if got := cache.InvalidFrontier(); got != buf.LineCount() {
		t.Fatalf("setup: InvalidFrontier() = %d, want %d", got, buf.LineCount())
	}

	buf.ReplaceLines(1, 2, "TOGGLE a")
	cache.MarkFake(0)

	s.ForceTokenization(1)

	if got := cache.InvalidFrontier(); got != 1 {
		t.Fatalf("InvalidFrontier() = %d, want 1 (no skip-ahead across a state change)", got)
	}
}

func TestTokenizeViewportUsesSyntheticPrefixAndMarksFake(t *testing.T) {
	buf := buffer.NewMemory(strings.Join([]string{
		"func foo() {",
		"    if x {",
		"        y := 1",
		"        z := 2",
		"    }",
		"}",
	}, "\n"), "fake")
	cache := statecache.New()
	h := newFakeHost(0.1)
	s := New(cache, buf, h, &fakeSink{})
	s.SetTokenizer(fakeTokenizer{}, "fake")

	s.TokenizeViewport(4, 5)

	if buf.TokensFor(4) == nil || buf.TokensFor(5) == nil {
		t.Fatalf("expected viewport lines to receive provisional tokens")
	}
	if buf.TokensFor(2) != nil {
		t.Fatalf("prefix line should not be published through SetTokens")
	}
	if got := cache.InvalidFrontier(); got != 0 {
		t.Fatalf("viewport tokenization must not advance the real frontier, got %d", got)
	}
}

func TestTokenizeViewportSkipsWhenAlreadyCovered(t *testing.T) {
	withTinySliceBudget(t)

	buf := buffer.NewMemory("a\nb\nc", "fake")
	cache := statecache.New()
	h := newFakeHost(0.1)
	s := New(cache, buf, h, &fakeSink{})
	s.SetTokenizer(fakeTokenizer{}, "fake")

	s.ForceTokenization(buf.LineCount())
	linesTokenized := s.Stats.LinesTokenized

	s.TokenizeViewport(1, 2)

	if s.Stats.LinesTokenized != linesTokenized {
		t.Fatalf("viewport request fully behind the frontier should not tokenize again")
	}
}

func TestIsCheapToTokenize(t *testing.T) {
	buf := buffer.NewMemory("short\n"+strings.Repeat("x", CheapTokenizeThreshold+1), "fake")
	cache := statecache.New()
	h := newFakeHost(0.1)
	s := New(cache, buf, h, &fakeSink{})
	s.SetTokenizer(fakeTokenizer{}, "fake")

	if !s.IsCheapToTokenize(1) {
		t.Fatalf("short next line should be cheap")
	}
	if s.IsCheapToTokenize(2) {
		t.Fatalf("line 2 is not the immediate frontier successor, should not be cheap")
	}

	s.ForceTokenization(1)
	if s.IsCheapToTokenize(2) {
		t.Fatalf("line 2 is now the frontier successor but too long to be cheap")
	}
}

func TestGetStandardTokenTypeIfInsertingCharacter(t *testing.T) {
	buf := buffer.NewMemory("EY", "fake")
	cache := statecache.New()
	h := newFakeHost(0.1)
	s := New(cache, buf, h, &fakeSink{})
	s.SetTokenizer(fakeTokenizer{}, "fake")

	got := s.GetStandardTokenTypeIfInsertingCharacter(1, 1, 'K')
	if got != tokenizer.Keyword {
		t.Fatalf("GetStandardTokenTypeIfInsertingCharacter() = %v, want Keyword", got)
	}

	if buf.TokensFor(1) != nil {
		t.Fatalf("probe must not write results back to the buffer")
	}
}
