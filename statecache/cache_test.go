package statecache

import (
	"testing"

	"github.com/charmbracelet/tokline/beginstate"
)

// intState is a tiny beginstate.State test double: two int states are
// equal iff their values match.
type intState int

func (s intState) Clone() beginstate.State { return s }

func (s intState) Equals(other beginstate.State) bool {
	o, ok := other.(intState)
	return ok && o == s
}

func seedValid(c *Cache, n int, state beginstate.State) {
	c.Flush(state)
	for i := 0; i < n; i++ {
		c.SetEndState(n, i, state)
	}
}

func TestFlushSeedsInitialState(t *testing.T) {
	c := New()
	c.Flush(intState(0))

	if got := c.GetBeginState(0); got == nil || !got.Equals(intState(0)) {
		t.Fatalf("GetBeginState(0) = %v, want intState(0)", got)
	}
	if c.InvalidFrontier() != 0 {
		t.Fatalf("InvalidFrontier() = %d, want 0", c.InvalidFrontier())
	}
}

func TestGetBeginStateOutOfRangeIsNil(t *testing.T) {
	c := New()
	c.Flush(intState(0))

	if got := c.GetBeginState(5); got != nil {
		t.Fatalf("GetBeginState(5) = %v, want nil", got)
	}
}

func TestFrontierMonotoneOnSuccess(t *testing.T) {
	c := New()
	c.Flush(intState(0))
	c.SetEndState(3, 0, intState(0))

	if c.InvalidFrontier() < 1 {
		t.Fatalf("InvalidFrontier() = %d, want >= 1", c.InvalidFrontier())
	}
}

func TestSkipAheadKeepsDownstreamValid(t *testing.T) {
	c := New()
	seedValid(c, 4, intState(0))
	if c.InvalidFrontier() != 4 {
		t.Fatalf("InvalidFrontier() = %d, want 4 after full tokenize", c.InvalidFrontier())
	}

	// Re-tokenize line 1 (0-based) with the same end state: everything
	// downstream should remain valid and the frontier should jump back to
	// the end rather than stopping at line 2.
	c.MarkFake(1) // simulate an edit having invalidated it
	c.SetEndState(4, 1, intState(0))

	if c.InvalidFrontier() != 4 {
		t.Fatalf("InvalidFrontier() = %d, want 4 (skip-ahead)", c.InvalidFrontier())
	}
}

func TestStateChangePropagatesInsteadOfSkipping(t *testing.T) {
	c := New()
	seedValid(c, 3, intState(0))

	// Re-tokenizing line 0 now yields a different end state (e.g. entering
	// a block comment): the next line must be invalidated, not skipped.
	c.SetEndState(3, 0, intState(1))

	if c.InvalidFrontier() != 1 {
		t.Fatalf("InvalidFrontier() = %d, want 1 (no skip-ahead on state change)", c.InvalidFrontier())
	}
	if got := c.GetBeginState(1); got == nil || !got.Equals(intState(1)) {
		t.Fatalf("GetBeginState(1) = %v, want intState(1)", got)
	}
}

func TestSetEndStateLastLineDoesNotTouchNext(t *testing.T) {
	c := New()
	seedValid(c, 2, intState(0))
	c.MarkFake(1)

	c.SetEndState(2, 1, intState(9))

	if c.InvalidFrontier() != 2 {
		t.Fatalf("InvalidFrontier() = %d, want 2", c.InvalidFrontier())
	}
}

func TestApplyEditsFrontierRegresses(t *testing.T) {
	c := New()
	seedValid(c, 4, intState(0))

	c.ApplyEdits(Range{StartLine: 2, EndLine: 3}, 1)

	if c.InvalidFrontier() > 1 {
		t.Fatalf("InvalidFrontier() = %d, want <= 1 after edit at line 2", c.InvalidFrontier())
	}
}

func TestApplyEditsBeyondLengthIsNoop(t *testing.T) {
	c := New()
	seedValid(c, 2, intState(0))
	before := c.Len()

	c.ApplyEdits(Range{StartLine: 50, EndLine: 51}, 1)

	if c.Len() != before {
		t.Fatalf("Len() = %d, want unchanged %d", c.Len(), before)
	}
}

func TestApplyEditsPureDeletionShrinksCache(t *testing.T) {
	c := New()
	seedValid(c, 3, intState(0))

	c.ApplyEdits(Range{StartLine: 2, EndLine: 3}, 0)

	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 after deleting one line", c.Len())
	}
}

func TestApplyEditsPureInsertionGrowsCacheWithBlankEntries(t *testing.T) {
	c := New()
	seedValid(c, 2, intState(0))

	c.ApplyEdits(Range{StartLine: 2, EndLine: 2}, 2)

	if c.Len() != 4 {
		t.Fatalf("Len() = %d, want 4 after inserting two lines", c.Len())
	}
	if got := c.GetBeginState(1); got != nil {
		t.Fatalf("GetBeginState(1) = %v, want nil for a freshly inserted line", got)
	}
}

func TestFrontierNeverExceedsLength(t *testing.T) {
	c := New()
	seedValid(c, 5, intState(0))

	c.ApplyEdits(Range{StartLine: 4, EndLine: 6}, 0)

	if c.InvalidFrontier() > c.Len() {
		t.Fatalf("InvalidFrontier() = %d > Len() = %d", c.InvalidFrontier(), c.Len())
	}
}

func TestMarkFakeDoesNotTouchBeginState(t *testing.T) {
	c := New()
	seedValid(c, 2, intState(7))

	c.MarkFake(0)

	if got := c.GetBeginState(0); got == nil || !got.Equals(intState(7)) {
		t.Fatalf("GetBeginState(0) = %v, want intState(7) preserved", got)
	}
	if c.InvalidFrontier() != 0 {
		t.Fatalf("InvalidFrontier() = %d, want 0 after marking line 0 fake", c.InvalidFrontier())
	}
}

// TestEditThenFullRetokenizeMatchesFromScratch is the round-trip property
// from §8.1(6): after an edit sequence and a full re-drive of the
// scheduler protocol, the incremental result (frontier and per-line begin
// states) equals tokenizing the edited content from scratch.
func TestEditThenFullRetokenizeMatchesFromScratch(t *testing.T) {
	c := New()
	seedValid(c, 4, intState(0)) // "a\nb\nc\nd", single-state tokenizer

	c.ApplyEdits(Range{StartLine: 2, EndLine: 3}, 1) // edit "b" -> "bb"

	// Drive the cache forward the way a scheduler would: keep tokenizing
	// the frontier until it reaches the buffer's line count.
	const lineCount = 4
	for c.InvalidFrontier() < lineCount {
		i := c.InvalidFrontier()
		c.SetEndState(lineCount, i, intState(0))
	}

	scratch := New()
	seedValid(scratch, lineCount, intState(0))

	if c.InvalidFrontier() != scratch.InvalidFrontier() {
		t.Fatalf("incremental frontier %d != from-scratch frontier %d", c.InvalidFrontier(), scratch.InvalidFrontier())
	}
	for i := 0; i < lineCount; i++ {
		got, want := c.GetBeginState(i), scratch.GetBeginState(i)
		if (got == nil) != (want == nil) {
			t.Fatalf("line %d: begin state presence mismatch: %v vs %v", i, got, want)
		}
		if got != nil && !got.Equals(want) {
			t.Fatalf("line %d: begin state %v != %v", i, got, want)
		}
	}
}
