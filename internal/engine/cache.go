// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package engine holds the compiled-template cache: registration of
// template sources by identity, staleness sweeps, batched compilation into
// a shared text/template set and instantiation of single-use units.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Generator is the authoritative registry of entries for one process.
// Its mutex only protects the map; callers that need register, compile
// and instantiate to happen as one step hold their own lock around them.
type Generator struct {
	mu       sync.RWMutex
	entries  map[Identity]*Entry
	compiler Compiler
	now      func() time.Time
}

// NewGenerator creates an empty cache compiling with c.
func NewGenerator(c Compiler) *Generator {
	return &Generator{
		entries:  make(map[Identity]*Entry),
		compiler: c,
		now:      time.Now,
	}
}

// SetClock replaces the time source used for stamping and TTL sweeps.
func (g *Generator) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

// Register records source for id. A new identity gets a fresh entry; an
// existing entry is replaced when modified is newer than its source or it
// was never compiled, and is left untouched otherwise.
func (g *Generator) Register(id Identity, source *string, namespaces []string, modified time.Time) error {
	if source == nil {
		return fmt.Errorf("%w: source text for %s is absent", ErrRegistration, id)
	}
	if id.IsZero() {
		return fmt.Errorf("%w: empty template identity", ErrRegistration)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.entries[id]; ok && existing.Artifact != nil && !modified.After(existing.SourceModified) {
		return nil
	}
	e := newEntry(id, *source, namespaces, modified)
	g.entries[id] = e
	slog.Debug("template registered", "identity", id.String(), "type", e.TypeName, "modified", modified)
	return nil
}

// SweepStale removes compiled entries older than their own source and
// returns the removed identities.
func (g *Generator) SweepStale() []Identity {
	g.mu.Lock()
	defer g.mu.Unlock()

	var removed []Identity
	for id, e := range g.entries {
		if e.Stale() {
			delete(g.entries, id)
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		sortIdentities(removed)
		slog.Debug("stale templates swept", "removed", len(removed), "size", len(g.entries))
	}
	return removed
}

// SweepExpired removes compiled entries stamped more than grace ago and
// returns the removed identities. A non-positive grace disables the sweep.
func (g *Generator) SweepExpired(grace time.Duration) []Identity {
	if grace <= 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := g.now().Add(-grace)
	var removed []Identity
	for id, e := range g.entries {
		if e.Artifact != nil && e.CompiledModified.Before(cutoff) {
			delete(g.entries, id)
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		sortIdentities(removed)
		slog.Debug("expired templates swept", "removed", len(removed), "grace", grace, "size", len(g.entries))
	}
	return removed
}

func sortIdentities(ids []Identity) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}

// Pending returns the entries without an artifact, ordered by identity.
func (g *Generator) Pending() []*Entry {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.pendingLocked()
}

func (g *Generator) pendingLocked() []*Entry {
	var pending []*Entry
	for _, e := range g.entries {
		if e.Artifact == nil {
			pending = append(pending, e)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Identity.String() < pending[j].Identity.String()
	})
	return pending
}

// CompileAll compiles every pending entry as one batch. With nothing
// pending the compiler is not called. On failure the compiler's error is
// returned unchanged and no entry is stamped.
func (g *Generator) CompileAll(references []string) error {
	pending := g.Pending()
	if len(pending) == 0 {
		return nil
	}

	start := time.Now()
	art, err := g.compiler.Compile(pending, references)
	if err != nil {
		return err
	}
	if art == nil {
		return errors.New("compiler returned no artifact")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	stamped := 0
	for _, e := range pending {
		// Entries replaced while compiling stay pending for the next batch.
		if g.entries[e.Identity] != e {
			continue
		}
		e.Artifact = art
		e.CompiledModified = now
		if e.SourceModified.After(now) {
			e.CompiledModified = e.SourceModified
		}
		stamped++
	}
	slog.Info("templates compiled",
		"artifact", art.ID,
		"batch", len(pending),
		"stamped", stamped,
		"warnings", len(art.Warnings),
		"duration", time.Since(start),
	)
	return nil
}

// Instantiate returns a new unit for id.
func (g *Generator) Instantiate(id Identity) (Unit, error) {
	g.mu.RLock()
	if len(g.entries) == 0 {
		g.mu.RUnlock()
		return nil, ErrNothingCompiled
	}
	e, ok := g.entries[id]
	if !ok {
		g.mu.RUnlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	art, typeName := e.Artifact, e.TypeName
	g.mu.RUnlock()

	if art == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotCompiled, id)
	}
	return art.New(typeName)
}

// Remove deletes the entry for id and reports whether one existed.
func (g *Generator) Remove(id Identity) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.entries[id]; !ok {
		return false
	}
	delete(g.entries, id)
	slog.Debug("template evicted", "identity", id.String())
	return true
}

// RemoveAll deletes every listed entry and returns how many existed.
func (g *Generator) RemoveAll(ids ...Identity) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	removed := 0
	for _, id := range ids {
		if _, ok := g.entries[id]; ok {
			delete(g.entries, id)
			removed++
		}
	}
	return removed
}

// Lookup returns a snapshot of the entry for id.
func (g *Generator) Lookup(id Identity) (EntryInfo, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.entries[id]
	if !ok {
		return EntryInfo{}, false
	}
	return e.info(), true
}

// Len returns the number of cached entries.
func (g *Generator) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}

// Snapshot lists every entry ordered by identity.
func (g *Generator) Snapshot() []EntryInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]EntryInfo, 0, len(g.entries))
	for _, e := range g.entries {
		out = append(out, e.info())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Identity.String() < out[j].Identity.String()
	})
	return out
}

// Reset clears the cache.
func (g *Generator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries = make(map[Identity]*Entry)
	slog.Debug("template cache fully cleared")
}
