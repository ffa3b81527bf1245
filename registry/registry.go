// Package registry maps a language identifier to a Tokenizer and notifies
// subscribers when a registration changes — the TokenizerRegistry
// collaborator of §6.
package registry

import (
	"sort"
	"strings"

	"github.com/charmbracelet/tokline/tokenizer"
	"github.com/sahilm/fuzzy"
)

// Registry is a concrete TokenizerRegistry backed by chroma lexers. It is
// deliberately tiny: real registries (grammar marketplaces, LSP-backed
// ones) are out of scope per §1; this one exists to exercise the engine
// end-to-end with a real tokenizer.
type Registry struct {
	tokenizers map[string]tokenizer.Tokenizer
	aliases    []string // known language identifiers, for fuzzy guessing

	onChanged []func(changedLanguageIDs []string)
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{tokenizers: map[string]tokenizer.Tokenizer{}}
}

// Register installs (or replaces) the tokenizer for languageID and
// notifies subscribers that languageID changed.
func (r *Registry) Register(languageID string, t tokenizer.Tokenizer) {
	r.tokenizers[languageID] = t
	r.aliases = append(r.aliases, languageID)
	sort.Strings(r.aliases)
	r.fireChanged([]string{languageID})
}

// Get resolves languageID to a Tokenizer, or nil if unregistered.
func (r *Registry) Get(languageID string) tokenizer.Tokenizer {
	return r.tokenizers[languageID]
}

// GuessLanguageID fuzzy-matches filename's extension/basename against the
// registered language identifiers, the same technique the teacher repo's
// stash view uses to fuzzy-filter file lists, returning the best-scoring
// match, or "" if no registered identifier matches.
func (r *Registry) GuessLanguageID(filename string) string {
	if len(r.aliases) == 0 {
		return ""
	}
	ext := strings.TrimPrefix(strings.ToLower(lastExt(filename)), ".")
	matches := fuzzy.Find(ext, r.aliases)
	if len(matches) == 0 {
		return ""
	}
	return r.aliases[matches[0].Index]
}

// OnChanged subscribes to registry-changed notifications and returns an
// unsubscribe function.
func (r *Registry) OnChanged(fn func(changedLanguageIDs []string)) func() {
	r.onChanged = append(r.onChanged, fn)
	idx := len(r.onChanged) - 1
	return func() { r.onChanged[idx] = nil }
}

func (r *Registry) fireChanged(ids []string) {
	for _, fn := range r.onChanged {
		if fn != nil {
			fn(ids)
		}
	}
}

func lastExt(filename string) string {
	i := strings.LastIndexByte(filename, '.')
	if i < 0 {
		return filename
	}
	return filename[i:]
}
