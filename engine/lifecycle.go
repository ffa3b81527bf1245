package engine

import (
	"fmt"

	"github.com/charmbracelet/tokline/beginstate"
	"github.com/charmbracelet/tokline/buffer"
	"github.com/charmbracelet/tokline/tokenizer"
)

// subscribe wires the four signals of §4.4 onto the buffer and registry.
func (e *Engine) subscribe() {
	e.unsubscribe = append(e.unsubscribe,
		e.buf.OnContentChanged(e.onContentChanged),
		e.buf.OnLanguageChanged(func(string) { e.Reset() }),
		e.buf.OnAttachedChanged(e.onAttachedChanged),
		e.registry.OnChanged(e.onRegistryChanged),
	)
}

func (e *Engine) onContentChanged(changes []buffer.Change, isFlush bool) {
	if e.disposed {
		return
	}
	if isFlush {
		e.Reset()
		return
	}
	for _, ch := range changes {
		e.cache.ApplyEdits(ch.Range, ch.InsertedLineCount())
	}
	e.sched.BeginBackground()
}

func (e *Engine) onAttachedChanged(attached bool) {
	if e.disposed || !attached {
		return
	}
	e.sched.BeginBackground()
}

// onRegistryChanged re-resolves only if one of the changed languages is
// the buffer's current language — a registration for an unrelated
// language never invalidates this engine's cache.
func (e *Engine) onRegistryChanged(changedLanguageIDs []string) {
	if e.disposed {
		return
	}
	for _, id := range changedLanguageIDs {
		if id == e.languageID {
			e.Reset()
			return
		}
	}
}

// Reset re-resolves the tokenizer for the buffer's current language and
// re-seeds the cache, clearing any previously published tokens, then
// restarts the background pass. Used for registry changes affecting the
// current language, buffer flushes, and language changes (§4.4).
func (e *Engine) Reset() {
	if e.disposed {
		return
	}
	e.buf.ClearTokens()
	e.resolveTokenizer()
}

// resolveTokenizer implements the initial-construction and reset path of
// §4.4: a too-large buffer gets no tokenizer at all; otherwise the
// registry is consulted and the tokenizer's initial state is captured,
// with a panicking getInitialState treated as
// TokenizerInitialisationError (§7) — reported, and the engine left with
// no tokenizer rather than crashing.
func (e *Engine) resolveTokenizer() {
	if e.buf.TooLarge() {
		e.setTokenizer(nil, e.buf.LanguageID())
		return
	}
	languageID := e.buf.LanguageID()
	tok := e.registry.Get(languageID)
	e.setTokenizer(tok, languageID)
}

// setTokenizer installs tok (which may be nil) as the active tokenizer,
// flushing the cache with its initial state.
func (e *Engine) setTokenizer(tok tokenizer.Tokenizer, languageID string) {
	e.tok = tok
	e.languageID = languageID
	e.sched.SetTokenizer(tok, languageID)

	if tok == nil {
		e.cache.Flush(nil)
		return
	}

	initial, ok := safeInitialState(tok)
	if !ok {
		reportInitError(e.sink, fmt.Errorf("tokenizer initialisation failed for language %q", languageID))
		e.tok = nil
		e.sched.SetTokenizer(nil, languageID)
		e.cache.Flush(nil)
		return
	}
	e.cache.Flush(initial)
	e.sched.BeginBackground()
}

// safeInitialState calls tok.GetInitialState, absorbing a panic into a
// TokenizerInitialisationError-equivalent (§7) instead of propagating it.
func safeInitialState(tok tokenizer.Tokenizer) (state beginstate.State, ok bool) {
	defer func() {
		if recover() != nil {
			state, ok = nil, false
		}
	}()
	return tok.GetInitialState(), true
}
