// Package consent holds the user's explicit agreement to send an image for analysis.
package consent

import "sync"

// Gate is a user-controlled boolean. The zero value is a closed gate.
type Gate struct {
	mu    sync.RWMutex
	given bool
}

// Set records the user's choice.
func (g *Gate) Set(given bool) {
	g.mu.Lock()
	g.given = given
	g.mu.Unlock()
}

// Given reports whether the user has consented.
func (g *Gate) Given() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.given
}

// Reset closes the gate.
func (g *Gate) Reset() { g.Set(false) }
