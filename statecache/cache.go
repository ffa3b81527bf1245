// Package statecache implements the tokenization state cache: a per-line
// array of (begin state, valid) pairs plus an invalid-frontier cursor, the
// data structure that makes background tokenization incremental instead of
// a full re-scan on every edit.
package statecache

import "github.com/charmbracelet/tokline/beginstate"

// Range identifies the buffer lines touched by an edit, in 1-based buffer
// line coordinates, half-open at the end the same way the buffer reports
// it: lines [StartLine, EndLine) were replaced.
type Range struct {
	StartLine int
	EndLine   int
}

// deletedLineCount is the number of buffer lines the edit removed.
func (r Range) deletedLineCount() int {
	return r.EndLine - r.StartLine
}

// entry is the per-line cache record. A nil BeginState means "not set";
// entries beyond the current slice length are conceptually {nil, false}.
type entry struct {
	beginState beginstate.State
	valid      bool
}

// Cache is the ordered sequence of per-line entries plus the invalid
// frontier: the smallest index whose entry is not yet known to be valid.
//
// Cache is not safe for concurrent use. Exactly one goroutine — the
// engine's owning goroutine — is expected to call into it, the same
// single-threaded-cooperative model the rest of the engine assumes.
type Cache struct {
	entries         []entry
	invalidFrontier int
}

// New returns an empty cache. Callers normally follow up with Flush to
// seed LineEntry[0] with the tokenizer's initial state.
func New() *Cache {
	return &Cache{}
}

// Len returns the cache's logical length, which may briefly differ from
// the buffer's line count between an edit and the next scheduler tick.
func (c *Cache) Len() int {
	return len(c.entries)
}

// InvalidFrontier returns the smallest line index (0-based) not yet known
// to be valid.
func (c *Cache) InvalidFrontier() int {
	return c.invalidFrontier
}

// Flush discards all entries. If initial is non-nil, LineEntry[0] is
// seeded with it (still marked invalid — the frontier restarts at 0 so the
// scheduler re-tokenizes line 0 before trusting it).
func (c *Cache) Flush(initial beginstate.State) {
	c.entries = nil
	c.invalidFrontier = 0
	if initial != nil {
		c.entries = append(c.entries, entry{beginState: initial, valid: false})
	}
}

// GetBeginState returns the cached begin state for line i, or nil if i is
// out of range or unset.
func (c *Cache) GetBeginState(i int) beginstate.State {
	if i < 0 || i >= len(c.entries) {
		return nil
	}
	return c.entries[i].beginState
}

// ensureLen grows the entries slice with default {nil, false} records so
// index i is addressable.
func (c *Cache) ensureLen(n int) {
	for len(c.entries) < n {
		c.entries = append(c.entries, entry{})
	}
}

// MarkFake marks line i invalid without touching its begin state. Used by
// viewport tokenization: tokens are rendered now but not claimed as
// authoritative, so the background scheduler will redo the line properly.
func (c *Cache) MarkFake(i int) {
	if i < 0 {
		return
	}
	c.ensureLen(i + 1)
	c.entries[i].valid = false
	if i < c.invalidFrontier {
		c.invalidFrontier = i
	}
}

// SetEndState runs the propagation protocol after successfully tokenizing
// line i with the given end state. bufferLineCount is the buffer's current
// line count, used to detect "i was the last line".
func (c *Cache) SetEndState(bufferLineCount, i int, endState beginstate.State) {
	c.ensureLen(i + 1)
	c.entries[i].valid = true
	c.invalidFrontier = i + 1

	if i == bufferLineCount-1 {
		return
	}

	prev := c.GetBeginState(i + 1)
	if prev == nil || !endState.Equals(prev) {
		c.ensureLen(i + 2)
		c.entries[i+1].beginState = endState
		c.entries[i+1].valid = false
		return
	}

	// Skip-ahead: the re-tokenized line's end state matches what line i+1
	// already expected, so everything downstream that was previously
	// valid is still valid relative to its cached begin state.
	j := i + 1
	for j < len(c.entries) && c.entries[j].valid {
		j++
	}
	c.invalidFrontier = j
}

// invalidate marks index i invalid (if in range) and lowers the frontier
// to it when necessary.
func (c *Cache) invalidate(i int) {
	if i < 0 || i >= len(c.entries) {
		return
	}
	c.entries[i].valid = false
	if i < c.invalidFrontier {
		c.invalidFrontier = i
	}
}

// ApplyEdits patches the cache for a single buffer edit that replaced
// Range with insertedLineCount new lines.
func (c *Cache) ApplyEdits(r Range, insertedLineCount int) {
	deleted := r.deletedLineCount()
	k := deleted
	if insertedLineCount < k {
		k = insertedLineCount
	}

	// 1. Invalidate the touched lines, walking from the bottom of the
	// overlap upward, against pre-edit indices. This always reaches the
	// boundary line above the edit (index startLine-1-1 at j=0), which may
	// now join differently with content below.
	for j := k; j >= 0; j-- {
		idx := r.StartLine - 1 + j - 1
		c.invalidate(idx)
	}

	start := r.StartLine - 1
	if start >= len(c.entries) {
		return
	}

	// 2. Accept deletion.
	if deleted > 0 {
		end := start + deleted
		if end > len(c.entries) {
			end = len(c.entries)
		}
		c.entries = append(c.entries[:start], c.entries[end:]...)
	}

	// 3. Accept insertion.
	if insertedLineCount > 0 {
		ins := make([]entry, insertedLineCount)
		tail := append([]entry{}, c.entries[start:]...)
		c.entries = append(c.entries[:start], ins...)
		c.entries = append(c.entries, tail...)
	}

	if c.invalidFrontier > len(c.entries) {
		c.invalidFrontier = len(c.entries)
	}
}
