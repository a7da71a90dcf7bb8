// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package mediator is the entry point a publishing host calls to render
// templates: Configure once, then Transform per render. The Handler does
// the cache and lock sequencing; the Mediator adds import inlining, binary
// extraction and the package handshake.
package mediator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alex-klock/razor-mediator-4-tridion/internal/config"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/engine"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/extract"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/imports"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/modules"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/tcm"
)

// OutputName is the package item the rendered output is pushed as.
const OutputName = "Output"

var (
	// ErrNotConfigured is returned by Transform before Configure.
	ErrNotConfigured = errors.New("mediator is not configured")

	// ErrAlreadyConfigured is returned by a second Configure.
	ErrAlreadyConfigured = errors.New("mediator is already configured")
)

// Template is the template a host asks to render.
type Template struct {
	Identity         engine.Identity
	URI              string // tcm URI, optional
	Content          *string
	RevisionDate     time.Time
	WebDavURL        string
	PublicationTitle string
	RenderMode       string // e.g. "publish", "preview"; empty when unknown
}

// Package is the host's render package: input items for the template and
// the place rendered output and binaries are pushed to.
type Package interface {
	// Items returns the data the template renders.
	Items() map[string]any
	// Has reports whether an item with name is present.
	Has(name string) bool
	// Push adds or replaces an item.
	Push(name, contentType string, content []byte)
}

// Dependencies are the host capabilities the mediator uses. Every field is
// optional.
type Dependencies struct {
	Generator *engine.Generator
	Source    imports.Source
	Resolver  extract.Resolver
	Publisher extract.Publisher
	Logger    *slog.Logger
	OnEvict   func(ids ...engine.Identity)
}

// Mediator renders templates for a host.
type Mediator struct {
	mu        sync.RWMutex
	deps      Dependencies
	cfg       config.Mediator
	handler   *Handler
	inliner   *imports.Inliner
	extractor *extract.Extractor
}

// New returns an unconfigured mediator. Without a generator it builds one
// on the template compiler with the built-in modules available.
func New(deps Dependencies) (*Mediator, error) {
	if deps.Generator == nil {
		gen, err := DefaultGenerator()
		if err != nil {
			return nil, err
		}
		deps.Generator = gen
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Mediator{deps: deps}, nil
}

// DefaultGenerator returns a generator compiling with the template
// compiler and the built-in modules loaded, so their namespaces resolve
// without a reference.
func DefaultGenerator() (*engine.Generator, error) {
	reg := engine.NewModuleRegistry()
	if err := modules.Load(reg); err != nil {
		return nil, err
	}
	return engine.NewGenerator(engine.NewCompiler(reg)), nil
}

// Configure applies the mediator configuration. It can be called once.
func (m *Mediator) Configure(cfg config.Mediator) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("mediator config: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handler != nil {
		return ErrAlreadyConfigured
	}

	m.cfg = cfg
	m.inliner = imports.New(m.deps.Source, cfg)
	if cfg.ExtractBinaries {
		m.extractor = extract.New(m.deps.Resolver, m.deps.Publisher)
	}
	m.handler = NewHandler(m.deps.Generator, Options{
		Namespaces:   cfg.Namespaces,
		References:   cfg.AssemblyReferences,
		Preprocessor: PreprocessorFunc(m.inline),
		Logger:       m.deps.Logger,
		OnEvict:      m.deps.OnEvict,
	})

	m.deps.Logger.Info("mediator configured",
		"namespaces", len(cfg.Namespaces),
		"references", len(cfg.AssemblyReferences),
		"imports", len(cfg.Imports),
		"extract_binaries", cfg.ExtractBinaries,
		"cache_grace", cfg.CacheGrace(),
	)
	return nil
}

func (m *Mediator) inline(ctx context.Context, req Request, source string) (string, error) {
	return m.inliner.Inline(ctx, imports.Template{
		ID:               req.URI,
		WebDavURL:        req.WebDavURL,
		PublicationTitle: req.PublicationTitle,
		Content:          source,
	})
}

// Handler returns the configured handler, or nil before Configure.
func (m *Mediator) Handler() *Handler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.handler
}

// Config returns the applied configuration.
func (m *Mediator) Config() config.Mediator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Mediator) configured() (*Handler, *extract.Extractor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.handler == nil {
		return nil, nil, ErrNotConfigured
	}
	return m.handler, m.extractor, nil
}

// Transform renders tmpl with the items of pkg, pushes the output into pkg
// and returns it.
func (m *Mediator) Transform(ctx context.Context, tmpl Template, pkg Package) (string, error) {
	h, x, err := m.configured()
	if err != nil {
		return "", err
	}

	output, err := h.CompileAndExecute(ctx, request(tmpl, pkg.Items()))
	if err != nil {
		return "", err
	}

	if x != nil {
		publication := 0
		if uri, err := tcm.Parse(tmpl.URI); err == nil {
			publication = uri.PublicationID
		}
		var binaries []*extract.Binary
		output, binaries, err = x.Extract(ctx, output, publication)
		if err != nil {
			return "", fmt.Errorf("extract binaries %s: %w", tmpl.Identity, err)
		}
		for _, b := range binaries {
			if b.Filename == "" || pkg.Has(b.Filename) {
				continue
			}
			pkg.Push(b.Filename, b.ContentType, b.Data)
		}
	}

	pkg.Push(OutputName, "text/html", []byte(output))
	return output, nil
}

// Validate compiles tmpl without rendering it. The content is compiled
// under a scratch identity stamped now, so a cached entry for tmpl never
// answers for it, and the scratch entry is dropped afterwards without
// being reported as evicted.
func (m *Mediator) Validate(ctx context.Context, tmpl Template) error {
	h, _, err := m.configured()
	if err != nil {
		return err
	}
	req := request(tmpl, nil)
	req.Identity = engine.NewIdentity(tmpl.Identity.Kind, "validate:"+tmpl.Identity.ID)
	req.Modified = time.Now()
	req.Scratch = true
	err = h.CompileOnly(ctx, req)
	h.Discard(req.Identity)
	return err
}

// PrepareForSave returns the template content as it should be stored:
// relative import paths become absolute when configured.
func (m *Mediator) PrepareForSave(tmpl Template) string {
	if tmpl.Content == nil {
		return ""
	}
	m.mu.RLock()
	in := m.inliner
	m.mu.RUnlock()
	if in == nil {
		return *tmpl.Content
	}
	return in.RewriteRelativePaths(importTemplate(tmpl))
}

// References lists the imports tmpl depends on.
func (m *Mediator) References(tmpl Template) []string {
	m.mu.RLock()
	in := m.inliner
	m.mu.RUnlock()
	if in == nil || tmpl.Content == nil {
		return nil
	}
	return in.References(importTemplate(tmpl))
}

// Sweep runs both cache sweeps with the configured grace period.
func (m *Mediator) Sweep() (stale, expired int, err error) {
	h, _, err := m.configured()
	if err != nil {
		return 0, 0, err
	}
	stale, expired = h.Sweep(m.Config().CacheGrace())
	return stale, expired, nil
}

func request(tmpl Template, data any) Request {
	return Request{
		Identity:         tmpl.Identity,
		Source:           tmpl.Content,
		Modified:         tmpl.RevisionDate,
		Data:             data,
		URI:              tmpl.URI,
		WebDavURL:        tmpl.WebDavURL,
		PublicationTitle: tmpl.PublicationTitle,
		RenderMode:       tmpl.RenderMode,
	}
}

func importTemplate(tmpl Template) imports.Template {
	return imports.Template{
		ID:               tmpl.URI,
		WebDavURL:        tmpl.WebDavURL,
		PublicationTitle: tmpl.PublicationTitle,
		Content:          *tmpl.Content,
	}
}

// PackageItem is one item pushed into a MapPackage.
type PackageItem struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"-"`
}

// MapPackage is an in-memory Package.
type MapPackage struct {
	mu     sync.Mutex
	data   map[string]any
	pushed map[string]PackageItem
}

// NewMapPackage returns a package with data as its input items.
func NewMapPackage(data map[string]any) *MapPackage {
	if data == nil {
		data = make(map[string]any)
	}
	return &MapPackage{data: data, pushed: make(map[string]PackageItem)}
}

func (p *MapPackage) Items() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	items := make(map[string]any, len(p.data))
	for k, v := range p.data {
		items[k] = v
	}
	return items
}

func (p *MapPackage) Has(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, pushed := p.pushed[name]
	_, input := p.data[name]
	return pushed || input
}

func (p *MapPackage) Push(name, contentType string, content []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushed[name] = PackageItem{Name: name, ContentType: contentType, Content: content}
}

// Item returns a pushed item.
func (p *MapPackage) Item(name string) (PackageItem, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	it, ok := p.pushed[name]
	return it, ok
}

// Pushed returns every pushed item sorted by name.
func (p *MapPackage) Pushed() []PackageItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	items := make([]PackageItem, 0, len(p.pushed))
	for _, it := range p.pushed {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items
}
