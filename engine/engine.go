// Package engine assembles a StateCache, SafeTokenizer, Scheduler, and
// LifecycleController behind the handful of public operations an editor
// host actually needs (§4.5, §6) — the tokenization engine proper.
package engine

import (
	"context"
	"time"

	"github.com/charmbracelet/tokline/buffer"
	"github.com/charmbracelet/tokline/host"
	"github.com/charmbracelet/tokline/scheduler"
	"github.com/charmbracelet/tokline/statecache"
	"github.com/charmbracelet/tokline/tokenizer"
)

// TokenizerRegistry is the registry collaborator the engine consumes
// (§6). registry.Registry satisfies it.
type TokenizerRegistry interface {
	Get(languageID string) tokenizer.Tokenizer
	OnChanged(fn func(changedLanguageIDs []string)) func()
}

// FatalErrorSink is an optional capability a sink may implement for the
// one error kind that disables the tokenizer entirely
// (TokenizerInitialisationError, §7): a leveled report distinct from the
// per-line runtime failures SafeTokenizer already routes through
// tokenizer.ErrorSink.Report. errsink.Sink implements this; reportInitError
// falls back to plain Report for any sink that doesn't.
type FatalErrorSink interface {
	ReportFatal(err error)
}

// reportInitError reports err at the sink's fatal level if it supports
// FatalErrorSink, otherwise at the sink's ordinary level.
func reportInitError(sink tokenizer.ErrorSink, err error) {
	if fs, ok := sink.(FatalErrorSink); ok {
		fs.ReportFatal(err)
		return
	}
	sink.Report(err)
}

// Engine is the facade a host embeds, mirroring how the teacher's
// ui.model assembles sub-models (stash, pager) behind a single
// tea.Model. Not safe for concurrent use — exactly one goroutine is
// expected to drive it (§5).
type Engine struct {
	cache *statecache.Cache
	sched *scheduler.Scheduler
	sink  tokenizer.ErrorSink

	buf      buffer.Buffer
	registry TokenizerRegistry

	languageID string
	tok        tokenizer.Tokenizer

	unsubscribe []func()
	disposed    bool
}

// New constructs an Engine over buf, resolving an initial tokenizer from
// registry and wiring the background scheduler to h. Errors resolving
// the initial tokenizer are reported through sink, not returned — per
// §7 a TokenizerInitialisationError degrades to "no tokenizer", it never
// fails construction.
func New(buf buffer.Buffer, registry TokenizerRegistry, h host.Host, sink tokenizer.ErrorSink) *Engine {
	cache := statecache.New()
	e := &Engine{
		cache:    cache,
		sched:    scheduler.New(cache, buf, h, sink),
		sink:     sink,
		buf:      buf,
		registry: registry,
	}
	e.subscribe()
	e.resolveTokenizer()
	return e
}

// Close unsubscribes from the buffer and registry, disposes the
// scheduler, and marks the engine unusable. Safe to call more than once.
func (e *Engine) Close() {
	if e.disposed {
		return
	}
	e.disposed = true
	e.sched.Dispose()
	for _, fn := range e.unsubscribe {
		fn()
	}
	e.unsubscribe = nil
}

// LineCount and InvalidFrontier are the diagnostics accessor of §10.3(1).
func (e *Engine) LineCount() int { return e.buf.LineCount() }

func (e *Engine) InvalidFrontier() int { return e.cache.InvalidFrontier() }

// Stats returns the scheduler's running counters (§10.3(2)).
func (e *Engine) Stats() scheduler.Stats { return e.sched.Stats }

// ForceTokenization ensures lines 1..lineNumber are tokenized
// synchronously (§4.3.2, §6).
func (e *Engine) ForceTokenization(lineNumber int) {
	if e.disposed {
		return
	}
	e.sched.ForceTokenization(lineNumber)
}

// TokenizeViewport provisionally tokenizes [startLine, endLine] for
// immediate rendering (§4.3.3, §6).
func (e *Engine) TokenizeViewport(startLine, endLine int) {
	if e.disposed {
		return
	}
	e.sched.TokenizeViewport(startLine, endLine)
}

// IsCheapToTokenize reports whether lineNumber can be tokenized
// synchronously without perceptible cost (§6).
func (e *Engine) IsCheapToTokenize(lineNumber int) bool {
	if e.disposed {
		return false
	}
	return e.sched.IsCheapToTokenize(lineNumber)
}

// GetStandardTokenTypeIfInsertingCharacter probes the token type that
// would cover a synthetic insertion of ch at (lineNumber, column),
// without writing results back (§6, §8.3.5).
func (e *Engine) GetStandardTokenTypeIfInsertingCharacter(lineNumber, column int, ch rune) tokenizer.TokenType {
	if e.disposed {
		return tokenizer.Other
	}
	return e.sched.GetStandardTokenTypeIfInsertingCharacter(lineNumber, column, ch)
}

// WaitIdle blocks until the background pass reaches the buffer's current
// line count, the tokenizer is nil, or ctx is done (§10.3(3)). It does
// not call ForceTokenization — it drives the same background loop the
// Host schedules, so a caller observes the real scheduling behaviour
// instead of bypassing it.
func (e *Engine) WaitIdle(ctx context.Context) error {
	if e.disposed {
		return nil
	}
	e.sched.BeginBackground()
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if e.tok == nil || e.cache.InvalidFrontier() >= e.buf.LineCount() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
