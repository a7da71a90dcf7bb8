// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package engine

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// countingCompiler is a Compiler stub that records every call and builds
// units writing the entry source verbatim.
type countingCompiler struct {
	mu      sync.Mutex
	calls   int
	batches [][]Identity
	fail    bool
	during  func() // runs inside Compile
}

func (c *countingCompiler) Compile(entries []*Entry, _ []string) (*Artifact, error) {
	c.mu.Lock()
	c.calls++
	ids := make([]Identity, len(entries))
	for i, e := range entries {
		ids[i] = e.Identity
	}
	c.batches = append(c.batches, ids)
	c.mu.Unlock()

	if c.during != nil {
		c.during()
	}
	if c.fail {
		return nil, &CompileError{
			Diagnostics: []Diagnostic{{Severity: SeverityError, Code: CodeSyntax, Message: "broken", Identity: ids[0]}},
			Identities:  ids,
			Failed:      ids[:1],
		}
	}

	factories := make(map[string]Factory, len(entries))
	for _, e := range entries {
		text := e.Source
		factories[e.TypeName] = func() Unit { return &stubUnit{text: text} }
	}
	return NewArtifact("", factories), nil
}

func (c *countingCompiler) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type stubUnit struct {
	Base
	text string
}

func (u *stubUnit) Execute() error {
	u.Write(u.text)
	return nil
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestGenerator(c Compiler) (*Generator, *fakeClock) {
	clock := &fakeClock{t: t0}
	g := NewGenerator(c)
	g.SetClock(clock.Now)
	return g, clock
}

func strPtr(s string) *string { return &s }

func mustRegister(t *testing.T, g *Generator, id Identity, src string, modified time.Time) {
	t.Helper()
	if err := g.Register(id, strPtr(src), nil, modified); err != nil {
		t.Fatalf("Register(%s): %v", id, err)
	}
}

func render(t *testing.T, g *Generator, id Identity) string {
	t.Helper()
	u, err := g.Instantiate(id)
	if err != nil {
		t.Fatalf("Instantiate(%s): %v", id, err)
	}
	u.Initialize(&Context{})
	if err := u.Execute(); err != nil {
		t.Fatalf("Execute(%s): %v", id, err)
	}
	return u.String()
}

// --------------------------------------------------------------------------
// Register
// --------------------------------------------------------------------------

func TestRegister_RejectsAbsentSource(t *testing.T) {
	g, _ := newTestGenerator(&countingCompiler{})
	err := g.Register(NewIdentity(KindComponentTemplate, "1"), nil, nil, t0)
	if !errors.Is(err, ErrRegistration) {
		t.Fatalf("expected ErrRegistration, got %v", err)
	}
	if g.Len() != 0 {
		t.Errorf("nothing should be registered, len=%d", g.Len())
	}
}

func TestRegister_RejectsEmptyIdentity(t *testing.T) {
	g, _ := newTestGenerator(&countingCompiler{})
	if err := g.Register(Identity{Kind: KindPageTemplate}, strPtr("x"), nil, t0); !errors.Is(err, ErrRegistration) {
		t.Fatalf("expected ErrRegistration, got %v", err)
	}
}

func TestRegister_EmptySourceIsAllowed(t *testing.T) {
	g, _ := newTestGenerator(&countingCompiler{})
	mustRegister(t, g, NewIdentity(KindPageTemplate, "1"), "", t0)
	if g.Len() != 1 {
		t.Errorf("expected one entry, got %d", g.Len())
	}
}

func TestRegister_IdentityUniqueness(t *testing.T) {
	c := &countingCompiler{}
	g, _ := newTestGenerator(c)
	id := NewIdentity(KindComponentTemplate, "42")

	times := []time.Time{t0, t0, t0.Add(time.Minute), t0.Add(-time.Hour), t0.Add(time.Hour)}
	for i, ts := range times {
		mustRegister(t, g, id, fmt.Sprintf("v%d", i), ts)
		if i%2 == 0 {
			if err := g.CompileAll(nil); err != nil {
				t.Fatalf("CompileAll: %v", err)
			}
		}
		if g.Len() != 1 {
			t.Fatalf("after registration %d: expected 1 entry, got %d", i, g.Len())
		}
	}
}

func TestRegister_ReplacesUncompiledEntry(t *testing.T) {
	g, _ := newTestGenerator(&countingCompiler{})
	id := NewIdentity(KindComponentTemplate, "7")

	mustRegister(t, g, id, "first", t0)
	before, _ := g.Lookup(id)
	mustRegister(t, g, id, "second", t0)
	after, _ := g.Lookup(id)

	if before.TypeName == after.TypeName {
		t.Error("an uncompiled entry should be replaced with a fresh type name")
	}
	if got := g.entries[id].Source; got != "second" {
		t.Errorf("source: got %q, want %q", got, "second")
	}
}

func TestRegister_OlderSourceKeepsArtifact(t *testing.T) {
	g, _ := newTestGenerator(&countingCompiler{})
	id := NewIdentity(KindComponentTemplate, "7")

	mustRegister(t, g, id, "current", t0)
	if err := g.CompileAll(nil); err != nil {
		t.Fatalf("CompileAll: %v", err)
	}
	mustRegister(t, g, id, "older", t0.Add(-time.Hour))

	if got := render(t, g, id); got != "current" {
		t.Errorf("got %q, want the compiled source to be kept", got)
	}
}

// --------------------------------------------------------------------------
// Idempotence and staleness
// --------------------------------------------------------------------------

func TestIdempotentReRegistration(t *testing.T) {
	c := &countingCompiler{}
	g, _ := newTestGenerator(c)
	id := NewIdentity(KindComponentTemplate, "C")

	mustRegister(t, g, id, "body", t0)
	g.SweepStale()
	if err := g.CompileAll(nil); err != nil {
		t.Fatalf("CompileAll: %v", err)
	}
	first := g.entries[id]
	art, typeName := first.Artifact, first.TypeName

	mustRegister(t, g, id, "body", t0)
	g.SweepStale()
	if err := g.CompileAll(nil); err != nil {
		t.Fatalf("CompileAll: %v", err)
	}

	second := g.entries[id]
	if second.Artifact != art {
		t.Error("artifact should be reference-equal after idempotent re-registration")
	}
	if second.TypeName != typeName {
		t.Errorf("type name changed: %s -> %s", typeName, second.TypeName)
	}
	if c.Calls() != 1 {
		t.Errorf("compiler calls: got %d, want 1", c.Calls())
	}
}

func TestNewerSourceTriggersRecompilation(t *testing.T) {
	c := &countingCompiler{}
	g, clock := newTestGenerator(c)
	id := NewIdentity(KindPageTemplate, "P")

	mustRegister(t, g, id, "old", t0)
	if err := g.CompileAll(nil); err != nil {
		t.Fatalf("CompileAll: %v", err)
	}
	before, _ := g.Lookup(id)

	clock.Advance(time.Minute)
	g.SweepStale()
	mustRegister(t, g, id, "new", before.CompiledModified.Add(time.Second))
	if info, _ := g.Lookup(id); info.Compiled {
		t.Fatal("entry should be pending after a newer registration")
	}
	if err := g.CompileAll(nil); err != nil {
		t.Fatalf("CompileAll: %v", err)
	}

	after, _ := g.Lookup(id)
	if after.TypeName == before.TypeName {
		t.Error("recompilation should use a new type name")
	}
	if after.ArtifactID == before.ArtifactID {
		t.Error("recompilation should produce a new artifact")
	}
	if got := render(t, g, id); got != "new" {
		t.Errorf("got %q, want %q", got, "new")
	}
	if c.Calls() != 2 {
		t.Errorf("compiler calls: got %d, want 2", c.Calls())
	}
}

func TestSweepStale(t *testing.T) {
	g, _ := newTestGenerator(&countingCompiler{})
	fresh := NewIdentity(KindComponentTemplate, "fresh")
	stale := NewIdentity(KindComponentTemplate, "stale")
	pending := NewIdentity(KindComponentTemplate, "pending")

	mustRegister(t, g, fresh, "a", t0)
	mustRegister(t, g, stale, "b", t0)
	if err := g.CompileAll(nil); err != nil {
		t.Fatalf("CompileAll: %v", err)
	}
	mustRegister(t, g, pending, "c", t0)

	// Simulate a source revision recorded after compilation.
	g.entries[stale].SourceModified = g.entries[stale].CompiledModified.Add(time.Second)

	if ids := g.SweepStale(); len(ids) != 1 || ids[0] != stale {
		t.Errorf("removed: got %v, want [%v]", ids, stale)
	}
	if _, ok := g.Lookup(stale); ok {
		t.Error("stale entry should be removed")
	}
	if _, ok := g.Lookup(fresh); !ok {
		t.Error("fresh entry should be kept regardless of age")
	}
	if _, ok := g.Lookup(pending); !ok {
		t.Error("pending entry should be kept")
	}
}

func TestSweepExpired(t *testing.T) {
	g, clock := newTestGenerator(&countingCompiler{})
	id := NewIdentity(KindComponentTemplate, "ttl")
	mustRegister(t, g, id, "a", t0)
	if err := g.CompileAll(nil); err != nil {
		t.Fatalf("CompileAll: %v", err)
	}

	clock.Advance(5 * time.Minute)
	if ids := g.SweepExpired(10 * time.Minute); len(ids) != 0 {
		t.Errorf("young entry swept: %v", ids)
	}
	if ids := g.SweepExpired(0); len(ids) != 0 {
		t.Errorf("zero grace should disable the sweep, removed %v", ids)
	}

	clock.Advance(6 * time.Minute)
	if ids := g.SweepExpired(10 * time.Minute); len(ids) != 1 || ids[0] != id {
		t.Errorf("removed: got %v, want [%v]", ids, id)
	}
	if g.Len() != 0 {
		t.Errorf("cache should be empty, len=%d", g.Len())
	}
}

// --------------------------------------------------------------------------
// CompileAll
// --------------------------------------------------------------------------

func TestCompileAll_NothingPendingSkipsCompiler(t *testing.T) {
	c := &countingCompiler{}
	g, _ := newTestGenerator(c)
	if err := g.CompileAll(nil); err != nil {
		t.Fatalf("CompileAll on empty cache: %v", err)
	}
	if c.Calls() != 0 {
		t.Errorf("compiler should not be called, calls=%d", c.Calls())
	}
}

func TestCompileAll_BatchesEveryPendingEntry(t *testing.T) {
	c := &countingCompiler{}
	g, _ := newTestGenerator(c)
	for _, id := range []string{"3", "1", "2"} {
		mustRegister(t, g, NewIdentity(KindComponentTemplate, id), "t"+id, t0)
	}
	if err := g.CompileAll(nil); err != nil {
		t.Fatalf("CompileAll: %v", err)
	}

	if c.Calls() != 1 {
		t.Fatalf("compiler calls: got %d, want 1", c.Calls())
	}
	if got := len(c.batches[0]); got != 3 {
		t.Fatalf("batch size: got %d, want 3", got)
	}
	if c.batches[0][0].ID != "1" || c.batches[0][2].ID != "3" {
		t.Errorf("batch should be ordered by identity: %v", c.batches[0])
	}

	snap := g.Snapshot()
	for _, info := range snap {
		if info.ArtifactID != snap[0].ArtifactID {
			t.Error("entries of one batch should share the artifact")
		}
	}
}

func TestCompileAll_StampsNoEarlierThanSource(t *testing.T) {
	g, _ := newTestGenerator(&countingCompiler{})
	id := NewIdentity(KindComponentTemplate, "future")
	future := t0.Add(time.Hour)
	mustRegister(t, g, id, "x", future)
	if err := g.CompileAll(nil); err != nil {
		t.Fatalf("CompileAll: %v", err)
	}

	info, _ := g.Lookup(id)
	if info.CompiledModified.Before(info.SourceModified) {
		t.Errorf("compiled %v before source %v", info.CompiledModified, info.SourceModified)
	}
	if len(g.SweepStale()) != 0 {
		t.Error("a freshly compiled entry must not be stale")
	}
}

func TestCompileAll_FailureStampsNothing(t *testing.T) {
	c := &countingCompiler{fail: true}
	g, _ := newTestGenerator(c)
	for i := 0; i < 4; i++ {
		mustRegister(t, g, NewIdentity(KindComponentTemplate, fmt.Sprint(i)), "x", t0)
	}

	err := g.CompileAll(nil)
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CompileError, got %v", err)
	}
	if len(ce.Identities) != 4 {
		t.Errorf("batch identities: got %d, want 4", len(ce.Identities))
	}
	for _, info := range g.Snapshot() {
		if info.Compiled {
			t.Errorf("%s should not be compiled after a failed batch", info.Identity)
		}
	}
}

func TestCompileAll_EntryReplacedDuringCompileStaysPending(t *testing.T) {
	c := &countingCompiler{}
	g, _ := newTestGenerator(c)
	id := NewIdentity(KindComponentTemplate, "race")
	mustRegister(t, g, id, "first", t0)

	c.during = func() {
		c.during = nil
		mustRegister(t, g, id, "second", t0.Add(time.Minute))
	}
	if err := g.CompileAll(nil); err != nil {
		t.Fatalf("CompileAll: %v", err)
	}

	if info, _ := g.Lookup(id); info.Compiled {
		t.Fatal("replacement registered during compilation should stay pending")
	}
	if err := g.CompileAll(nil); err != nil {
		t.Fatalf("CompileAll: %v", err)
	}
	if got := render(t, g, id); got != "second" {
		t.Errorf("got %q, want %q", got, "second")
	}
}

// --------------------------------------------------------------------------
// Instantiate
// --------------------------------------------------------------------------

func TestInstantiate_Errors(t *testing.T) {
	g, _ := newTestGenerator(&countingCompiler{})
	id := NewIdentity(KindComponentTemplate, "1")

	if _, err := g.Instantiate(id); !errors.Is(err, ErrNothingCompiled) {
		t.Errorf("empty cache: expected ErrNothingCompiled, got %v", err)
	}

	mustRegister(t, g, id, "x", t0)
	if _, err := g.Instantiate(id); !errors.Is(err, ErrNotCompiled) {
		t.Errorf("pending entry: expected ErrNotCompiled, got %v", err)
	}

	if err := g.CompileAll(nil); err != nil {
		t.Fatalf("CompileAll: %v", err)
	}
	if _, err := g.Instantiate(NewIdentity(KindComponentTemplate, "missing")); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown identity: expected ErrNotFound, got %v", err)
	}
}

func TestInstantiate_ReturnsIndependentUnits(t *testing.T) {
	g, _ := newTestGenerator(&countingCompiler{})
	id := NewIdentity(KindComponentTemplate, "1")
	mustRegister(t, g, id, "x", t0)
	if err := g.CompileAll(nil); err != nil {
		t.Fatalf("CompileAll: %v", err)
	}

	a, _ := g.Instantiate(id)
	b, _ := g.Instantiate(id)
	if a == b {
		t.Fatal("each Instantiate must return a new unit")
	}
	_ = a.Execute()
	if b.String() != "" {
		t.Error("executing one unit must not write into another")
	}
}

// --------------------------------------------------------------------------
// Remove / Reset / concurrency
// --------------------------------------------------------------------------

func TestRemove(t *testing.T) {
	g, _ := newTestGenerator(&countingCompiler{})
	a := NewIdentity(KindComponentTemplate, "a")
	b := NewIdentity(KindComponentTemplate, "b")
	mustRegister(t, g, a, "x", t0)
	mustRegister(t, g, b, "y", t0)

	if !g.Remove(a) {
		t.Error("Remove should report an existing entry")
	}
	if g.Remove(a) {
		t.Error("second Remove should be a no-op")
	}
	if n := g.RemoveAll(a, b); n != 1 {
		t.Errorf("RemoveAll: got %d, want 1", n)
	}

	mustRegister(t, g, a, "x", t0)
	g.Reset()
	if g.Len() != 0 {
		t.Errorf("Reset should clear the cache, len=%d", g.Len())
	}
}

func TestGenerator_ConcurrentAccess(t *testing.T) {
	g, _ := newTestGenerator(&countingCompiler{})
	var compileMu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := NewIdentity(KindComponentTemplate, fmt.Sprint(i%4))
			src := fmt.Sprint("body", i%4)

			compileMu.Lock()
			defer compileMu.Unlock()
			g.SweepStale()
			if err := g.Register(id, &src, nil, t0); err != nil {
				t.Errorf("Register: %v", err)
				return
			}
			if err := g.CompileAll(nil); err != nil {
				t.Errorf("CompileAll: %v", err)
				return
			}
			if _, err := g.Instantiate(id); err != nil {
				t.Errorf("Instantiate: %v", err)
			}
		}(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.Snapshot()
			_ = g.Len()
		}()
	}
	wg.Wait()

	if g.Len() != 4 {
		t.Errorf("expected 4 entries, got %d", g.Len())
	}
}

// --------------------------------------------------------------------------
// End-to-end with the template compiler
// --------------------------------------------------------------------------

func TestEndToEnd_CompileAndRender(t *testing.T) {
	g, _ := newTestGenerator(NewCompiler(NewModuleRegistry()))
	id := NewIdentity(KindComponentTemplate, "100")

	mustRegister(t, g, id, "Hello", t0)
	if err := g.CompileAll([]string{}); err != nil {
		t.Fatalf("CompileAll: %v", err)
	}
	if got := render(t, g, id); got != "Hello" {
		t.Errorf("got %q, want %q", got, "Hello")
	}
}

func TestEndToEnd_FailedBatchRecovers(t *testing.T) {
	g, _ := newTestGenerator(NewCompiler(NewModuleRegistry()))
	a := NewIdentity(KindComponentTemplate, "A")
	b := NewIdentity(KindComponentTemplate, "B")

	mustRegister(t, g, a, "@if (.X) {unclosed", t0)
	mustRegister(t, g, b, "valid", t0)

	err := g.CompileAll(nil)
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CompileError, got %v", err)
	}
	if len(ce.Failed) != 1 || ce.Failed[0] != a {
		t.Errorf("failed: got %v, want [%s]", ce.Failed, a)
	}
	for _, info := range g.Snapshot() {
		if info.Compiled {
			t.Errorf("%s compiled despite the failed batch", info.Identity)
		}
	}

	// The orchestrator evicts the whole batch.
	g.RemoveAll(ce.Identities...)
	_, err = g.Instantiate(a)
	if !errors.Is(err, ErrNothingCompiled) && !errors.Is(err, ErrNotFound) {
		t.Errorf("instantiate after cleanup: got %v", err)
	}

	mustRegister(t, g, a, "@if (.X) {fixed}", t0)
	if err := g.CompileAll(nil); err != nil {
		t.Fatalf("CompileAll after fix: %v", err)
	}
	u, err := g.Instantiate(a)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	u.Initialize(&Context{Data: map[string]any{"X": true}})
	if err := u.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := u.String(); got != "fixed" {
		t.Errorf("got %q, want %q", got, "fixed")
	}
}

func TestEndToEnd_SameTimestampDoesNotRecompile(t *testing.T) {
	c := &countingCompiler{}
	g, _ := newTestGenerator(c)
	id := NewIdentity(KindComponentTemplate, "C")

	mustRegister(t, g, id, "c", t0)
	if err := g.CompileAll(nil); err != nil {
		t.Fatalf("CompileAll: %v", err)
	}
	render(t, g, id)

	mustRegister(t, g, id, "c", t0)
	g.SweepStale()
	if err := g.CompileAll(nil); err != nil {
		t.Fatalf("CompileAll: %v", err)
	}
	if c.Calls() != 1 {
		t.Errorf("compiler calls: got %d, want 1", c.Calls())
	}
}
