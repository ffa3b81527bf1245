// Package beginstate defines the capability every tokenizer begin-state
// value must satisfy. The cache never inspects a state's contents; it only
// clones it before handing it to a tokenizer and compares it for equality
// to decide whether downstream lines can be skipped.
package beginstate

// State is an opaque tokenizer state handed down from one line to the
// next. Concrete tokenizers supply their own representation; the cache
// stores values behind this interface and never branches on their
// identity.
type State interface {
	// Clone returns a deep copy. The engine clones a state before handing
	// it to a tokenizer so the tokenizer cannot corrupt the cached copy.
	Clone() State

	// Equals reports structural equality with other. Used by the
	// skip-ahead optimisation in the propagation protocol.
	Equals(other State) bool
}
