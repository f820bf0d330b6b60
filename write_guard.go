package akapi

import (
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
)

// DefaultReadSafePatterns lists mutating calls that do not change server
// state. Running a saved report is a POST but only reads.
var DefaultReadSafePatterns = []string{
	`^POST report/run/[a-zA-Z0-9_\-]+/? `,
}

// WriteGuard decides whether a mutating call may reach the network.
// It is safe for concurrent use; AllowWrites may be toggled at any time.
type WriteGuard struct {
	allowWrites atomic.Bool

	mu         sync.RWMutex
	exceptions []*regexp.Regexp
}

// NewWriteGuard compiles the exception patterns, which are matched against
// the request identity ("METHOD path data").
func NewWriteGuard(allowWrites bool, patterns ...string) (*WriteGuard, error) {
	g := &WriteGuard{}
	g.allowWrites.Store(allowWrites)
	for _, p := range patterns {
		if err := g.AddException(p); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// SetAllowWrites toggles the global write policy.
func (g *WriteGuard) SetAllowWrites(allow bool) {
	g.allowWrites.Store(allow)
}

// AllowWrites reports the global write policy.
func (g *WriteGuard) AllowWrites() bool {
	return g.allowWrites.Load()
}

// AddException appends a pattern to the exception table.
func (g *WriteGuard) AddException(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("compile write exception %q: %w", pattern, err)
	}
	g.mu.Lock()
	g.exceptions = append(g.exceptions, re)
	g.mu.Unlock()
	return nil
}

// SetExceptions replaces the exception table. On error the table is left
// unchanged.
func (g *WriteGuard) SetExceptions(patterns ...string) error {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("compile write exception %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	g.mu.Lock()
	g.exceptions = compiled
	g.mu.Unlock()
	return nil
}

// Exceptions returns the exception patterns in table order.
func (g *WriteGuard) Exceptions() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, len(g.exceptions))
	for i, re := range g.exceptions {
		out[i] = re.String()
	}
	return out
}

// Allowed reports whether method may be sent for the given identity key.
func (g *WriteGuard) Allowed(method Method, key string) bool {
	if method.IsReadOnly() || g.allowWrites.Load() {
		return true
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, re := range g.exceptions {
		if re.MatchString(key) {
			return true
		}
	}
	return false
}
