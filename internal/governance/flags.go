// Package governance wraps the raw proxy with risk classification, policy
// evaluation, receipt emission, and progressive trust.
package governance

import "sync"

// Feature flags understood by the plane.
const (
	FlagConnectors  = "connectors"
	FlagTrustLedger = "trust_ledger"
)

// Flags is a concurrency-safe feature flag set. It satisfies the
// registry's FlagSource.
type Flags struct {
	mu    sync.RWMutex
	flags map[string]bool
}

// NewFlags builds a flag set with the given flags enabled.
func NewFlags(enabled ...string) *Flags {
	f := &Flags{flags: make(map[string]bool)}
	for _, name := range enabled {
		f.flags[name] = true
	}
	return f
}

// Enabled reports whether a flag is on.
func (f *Flags) Enabled(flag string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.flags[flag]
}

// Set turns a flag on or off.
func (f *Flags) Set(flag string, on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags[flag] = on
}

// Snapshot returns a copy of the current flag states.
func (f *Flags) Snapshot() map[string]bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]bool, len(f.flags))
	for k, v := range f.flags {
		out[k] = v
	}
	return out
}
