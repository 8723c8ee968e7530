// Package intern provides a process-wide append-only symbol table mapping
// strings to small integer IDs. The same string always maps to the same
// Symbol for the lifetime of the interner, and IDs are never reused.
package intern

import "sync"

// Symbol is an interned string ID.
type Symbol uint32

// Interner is safe for unbounded concurrent use. It only grows.
type Interner struct {
	mu   sync.RWMutex
	ids  map[string]Symbol
	strs []string
}

// NewInterner returns an empty interner.
func NewInterner() *Interner {
	return &Interner{ids: make(map[string]Symbol)}
}

// Intern returns the Symbol for s, allocating one on first sight.
func (in *Interner) Intern(s string) Symbol {
	in.mu.RLock()
	sym, ok := in.ids[s]
	in.mu.RUnlock()
	if ok {
		return sym
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	// Re-check: another writer may have interned s between the two locks.
	if sym, ok := in.ids[s]; ok {
		return sym
	}
	sym = Symbol(len(in.strs))
	in.strs = append(in.strs, s)
	in.ids[s] = sym
	return sym
}

// Lookup resolves a Symbol back to its string.
func (in *Interner) Lookup(sym Symbol) (string, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if int(sym) >= len(in.strs) {
		return "", false
	}
	return in.strs[sym], true
}

// Len reports how many distinct strings have been interned.
func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.strs)
}
