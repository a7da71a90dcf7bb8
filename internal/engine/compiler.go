// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"text/template"

	"github.com/google/uuid"

	"github.com/alex-klock/razor-mediator-4-tridion/internal/razor"
)

// Compiler turns a batch of pending entries into one artifact. A failed
// batch returns a *CompileError and no artifact.
type Compiler interface {
	Compile(entries []*Entry, references []string) (*Artifact, error)
}

// Translator converts template source into a text/template unit named
// className.
type Translator interface {
	Translate(source, className string, namespaces []string) (*razor.Result, error)
}

// templateExtensions mark a reference as a file of shared definitions.
var templateExtensions = map[string]bool{
	".tmpl":   true,
	".tpl":    true,
	".gotmpl": true,
	".html":   true,
}

var (
	parseErrRe  = regexp.MustCompile(`^template: (.*?):(\d+):(?:(\d+):)? ?(.*)$`)
	undefinedRe = regexp.MustCompile(`function "([^"]+)" not defined`)
	usingDirRe  = regexp.MustCompile(`^\s*@using\s+([^\s;]+)`)
)

// TemplateCompiler compiles batches into a single text/template set.
type TemplateCompiler struct {
	registry   *ModuleRegistry
	translator Translator
}

// NewCompiler returns a compiler resolving references against registry
// and translating sources with the razor front-end.
func NewCompiler(registry *ModuleRegistry) *TemplateCompiler {
	if registry == nil {
		registry = NewModuleRegistry()
	}
	return &TemplateCompiler{
		registry:   registry,
		translator: razor.NewTranslator(Contract),
	}
}

// SetTranslator replaces the source-to-code front-end.
func (c *TemplateCompiler) SetTranslator(t Translator) {
	c.translator = t
}

// Registry returns the module registry the compiler resolves against.
func (c *TemplateCompiler) Registry() *ModuleRegistry {
	return c.registry
}

// unit is one translated entry and its place in the merged source.
type unit struct {
	entry     *Entry
	result    *razor.Result
	startLine int
	lines     int
}

// mergedSource accumulates blocks and tracks the line each one starts on.
type mergedSource struct {
	b    strings.Builder
	line int
}

func (m *mergedSource) add(block string) (start, lines int) {
	if m.line == 0 {
		m.line = 1
	} else {
		m.b.WriteString("\n")
		m.line++
	}
	start = m.line
	m.b.WriteString(block)
	lines = strings.Count(block, "\n") + 1
	m.line += lines - 1
	return start, lines
}

// Compile translates every entry, resolves references, checks each unit
// against the namespaces it imports and parses the whole batch into one
// template set. Any error diagnostic fails the batch.
func (c *TemplateCompiler) Compile(entries []*Entry, references []string) (*Artifact, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyBatch
	}

	modules, diags := c.resolve(references)

	byName := make(map[string]*Module, len(modules))
	union := contractFuncs()
	owner := make(map[string]string)
	for _, m := range modules {
		byName[m.Name] = m
		for name, fn := range m.Funcs {
			if _, exists := union[name]; exists {
				continue
			}
			union[name] = fn
			owner[name] = m.Name
		}
	}

	var src mergedSource
	for _, m := range modules {
		if m.Definitions == "" {
			continue
		}
		start, _ := src.add(m.Definitions)
		if _, err := template.New(m.Name).Funcs(union).Parse(m.Definitions); err != nil {
			d := parseDiagnostic(err, start)
			d.Message = fmt.Sprintf("reference %s: %s", m.Name, d.Message)
			diags = append(diags, d)
		}
	}

	units := make([]unit, 0, len(entries))
	for _, e := range entries {
		namespaces := append(append([]string(nil), BaseNamespaces...), e.Namespaces...)
		res, err := c.translator.Translate(e.Source, e.TypeName, namespaces)
		if err != nil {
			start, _ := src.add(e.Source)
			diags = append(diags, syntaxDiagnostic(err, e.Identity, start))
			continue
		}

		start, lines := src.add(res.Code)
		u := unit{entry: e, result: res, startLine: start, lines: lines}
		units = append(units, u)
		diags = append(diags, c.check(u, byName, owner)...)
	}

	if hasErrors(diags) {
		return nil, &CompileError{
			Diagnostics: diags,
			Source:      src.b.String(),
			Identities:  batchIdentities(entries),
			Failed:      failedIdentities(diags),
		}
	}

	id := uuid.NewString()
	set, err := template.New(id).Funcs(union).Parse(src.b.String())
	if err != nil {
		d := parseDiagnostic(err, 1)
		for _, u := range units {
			if d.Line >= u.startLine && d.Line < u.startLine+u.lines {
				d.Identity = u.entry.Identity
				d.TemplateLine = templateLine(u.result, d.Line-u.startLine+1)
			}
		}
		diags = append(diags, d)
		return nil, &CompileError{
			Diagnostics: diags,
			Source:      src.b.String(),
			Identities:  batchIdentities(entries),
			Failed:      failedIdentities(diags),
		}
	}

	factories := make(map[string]Factory, len(units))
	for _, u := range units {
		factories[u.entry.TypeName] = templateFactory(set, u.entry.TypeName)
	}
	return &Artifact{
		ID:        id,
		Source:    src.b.String(),
		Warnings:  diags,
		factories: factories,
	}, nil
}

// check parses one unit with only the functions its namespaces provide.
func (c *TemplateCompiler) check(u unit, modules map[string]*Module, owner map[string]string) []Diagnostic {
	var diags []Diagnostic
	id := u.entry.Identity

	funcs := contractFuncs()
	for _, ns := range u.result.Namespaces {
		m, ok := modules[ns]
		if !ok {
			line := usingLine(u.entry.Source, ns)
			diags = append(diags, Diagnostic{
				Severity:     SeverityError,
				Code:         CodeUnknownNamespace,
				Message:      fmt.Sprintf("the namespace %q could not be found; is a module reference missing?", ns),
				Line:         u.startLine + line - 1,
				Column:       1,
				Identity:     id,
				TemplateLine: line,
			})
			continue
		}
		for name, fn := range m.Funcs {
			funcs[name] = fn
		}
	}

	_, err := template.New(u.entry.TypeName).Funcs(funcs).Parse(u.result.Code)
	if err == nil {
		return diags
	}

	d := parseDiagnostic(err, u.startLine)
	d.Identity = id
	d.TemplateLine = templateLine(u.result, d.Line-u.startLine+1)
	if m := undefinedRe.FindStringSubmatch(d.Message); m != nil {
		name := m[1]
		d.Code = CodeUndefinedName
		if ns, ok := owner[name]; ok {
			d.Message = fmt.Sprintf("the name %q does not exist in the current context; are you missing @using %s?", name, ns)
		} else {
			d.Message = fmt.Sprintf("the name %q does not exist in the current context", name)
		}
		lines := strings.Split(u.result.Code, "\n")
		if rel := d.Line - u.startLine; rel >= 0 && rel < len(lines) {
			if idx := strings.Index(lines[rel], name); idx >= 0 {
				d.Column = idx + 1
			}
		}
	}
	return append(diags, d)
}

// resolve returns the loaded modules followed by the references, with
// duplicates skipped. Unresolvable references become diagnostics.
func (c *TemplateCompiler) resolve(references []string) ([]*Module, []Diagnostic) {
	var (
		modules []*Module
		diags   []Diagnostic
	)
	seen := make(map[string]bool)
	for _, m := range c.registry.Loaded() {
		if seen[m.Name] {
			continue
		}
		seen[m.Name] = true
		modules = append(modules, m)
	}

	requested := make(map[string]bool)
	for _, ref := range references {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		key := ref
		if isPathReference(ref) {
			key = filepath.Clean(ref)
		}
		if requested[key] {
			diags = append(diags, Diagnostic{
				Severity: SeverityWarning,
				Code:     CodeDuplicateReference,
				Message:  fmt.Sprintf("reference %q is listed more than once", ref),
			})
			continue
		}
		requested[key] = true
		if seen[key] {
			continue
		}

		m, err := c.load(ref, key)
		if err != nil {
			diags = append(diags, Diagnostic{
				Severity: SeverityError,
				Code:     CodeUnresolvedReference,
				Message:  fmt.Sprintf("reference %q could not be resolved: %v", ref, err),
			})
			continue
		}
		seen[key] = true
		modules = append(modules, m)
	}
	return modules, diags
}

func (c *TemplateCompiler) load(ref, key string) (*Module, error) {
	if !isPathReference(ref) {
		return c.registry.Load(ref)
	}
	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, err
	}
	return &Module{Name: key, Path: ref, Definitions: string(data)}, nil
}

// isPathReference reports whether ref names a file rather than a module.
func isPathReference(ref string) bool {
	return strings.ContainsAny(ref, `/\`) || templateExtensions[strings.ToLower(filepath.Ext(ref))]
}

// parseDiagnostic converts a text/template parse error. offset is the
// merged-source line the parsed block starts on.
func parseDiagnostic(err error, offset int) Diagnostic {
	d := Diagnostic{
		Severity: SeverityError,
		Code:     CodeParse,
		Message:  err.Error(),
		Line:     offset,
	}
	m := parseErrRe.FindStringSubmatch(err.Error())
	if m == nil {
		return d
	}
	if line, convErr := strconv.Atoi(m[2]); convErr == nil {
		d.Line = offset + line - 1
	}
	if m[3] != "" {
		d.Column, _ = strconv.Atoi(m[3])
	}
	d.Message = m[4]
	return d
}

func syntaxDiagnostic(err error, id Identity, offset int) Diagnostic {
	d := Diagnostic{
		Severity: SeverityError,
		Code:     CodeSyntax,
		Message:  err.Error(),
		Line:     offset,
		Identity: id,
	}
	var se *razor.SyntaxError
	if errors.As(err, &se) {
		d.Message = se.Msg
		d.Line = offset + se.Line - 1
		d.Column = se.Column
		d.TemplateLine = se.Line
	}
	return d
}

// templateLine maps a line of generated code to its template source line.
func templateLine(res *razor.Result, generated int) int {
	if generated < 1 || generated > len(res.LineMap) {
		return 0
	}
	return res.LineMap[generated-1]
}

// usingLine returns the source line importing ns, or 1.
func usingLine(source, ns string) int {
	for i, line := range strings.Split(source, "\n") {
		if m := usingDirRe.FindStringSubmatch(line); m != nil && m[1] == ns {
			return i + 1
		}
	}
	return 1
}

func hasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// failedIdentities lists the units with errors. Reference failures belong
// to no single unit.
func failedIdentities(diags []Diagnostic) []Identity {
	var out []Identity
	seen := make(map[Identity]bool)
	for _, d := range diags {
		if d.Severity != SeverityError || d.Identity.IsZero() || seen[d.Identity] {
			continue
		}
		seen[d.Identity] = true
		out = append(out, d.Identity)
	}
	return out
}

func batchIdentities(entries []*Entry) []Identity {
	ids := make([]Identity, len(entries))
	for i, e := range entries {
		ids[i] = e.Identity
	}
	return ids
}
