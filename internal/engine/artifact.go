// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package engine

import (
	"fmt"
	"io"
	"sort"
	"text/template"

	"github.com/google/uuid"
)

// Factory creates a fresh unit instance.
type Factory func() Unit

// Artifact is one compiled batch. Every entry compiled in the batch points
// at the same artifact and is told apart by its TypeName.
type Artifact struct {
	ID       string
	Source   string       // merged compilation source
	Warnings []Diagnostic // non-fatal diagnostics of the batch

	factories map[string]Factory
}

// NewArtifact builds an artifact from a factory per unit type name.
func NewArtifact(source string, factories map[string]Factory) *Artifact {
	return &Artifact{
		ID:        uuid.NewString(),
		Source:    source,
		factories: factories,
	}
}

// New returns a new instance of the named unit type.
func (a *Artifact) New(typeName string) (Unit, error) {
	f, ok := a.factories[typeName]
	if !ok {
		return nil, fmt.Errorf("%w: artifact %s has no type %s", ErrNotCompiled, a.ID, typeName)
	}
	return f(), nil
}

// TypeNames lists the unit types the artifact can instantiate.
func (a *Artifact) TypeNames() []string {
	names := make([]string, 0, len(a.factories))
	for name := range a.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// templateUnit executes one {{define}} of a compiled template set.
type templateUnit struct {
	Base
	set      *template.Template
	name     string
	executed bool
}

func templateFactory(set *template.Template, name string) Factory {
	return func() Unit {
		return &templateUnit{set: set, name: name}
	}
}

// Execute binds the contract functions to this instance on a clone of the
// shared set and runs the unit's block. Literal text reaches the buffer
// through WriteLiteral, so output order matches the source.
func (u *templateUnit) Execute() error {
	if u.executed {
		return ErrAlreadyExecuted
	}
	u.executed = true

	t, err := u.set.Clone()
	if err != nil {
		return fmt.Errorf("clone %s: %w", u.name, err)
	}
	w := literalWriter{base: &u.Base}
	t.Funcs(u.funcs(t, w))

	return t.ExecuteTemplate(w, u.name, u.Context().Data)
}

func (u *templateUnit) funcs(t *template.Template, w io.Writer) template.FuncMap {
	return template.FuncMap{
		Contract.Write: func(v any) string {
			u.Write(v)
			return ""
		},
		Contract.WriteLiteral: func(v any) string {
			u.WriteLiteral(v)
			return ""
		},
		Contract.WriteTo: func(dst io.Writer, v any) (string, error) {
			return "", WriteTo(dst, v)
		},
		Contract.WriteLiteralTo: func(dst io.Writer, v any) (string, error) {
			return "", WriteLiteralTo(dst, v)
		},
		Contract.DefineSection: func(name, block string, data any) (string, error) {
			return "", u.DefineSection(name, func() error {
				return t.ExecuteTemplate(w, block, data)
			})
		},
		"log": func(level, msg string, args ...any) string {
			u.Log(level, msg, args...)
			return ""
		},
		"isComponentTemplate": u.IsComponentTemplate,
		"isPageTemplate":      u.IsPageTemplate,
		"renderMode":          u.RenderMode,
		"templateID": func() string {
			return u.Context().Identity.ID
		},
	}
}

// contractFuncs has the signatures of funcs with no behaviour; the set is
// parsed against it and every unit rebinds it before executing.
func contractFuncs() template.FuncMap {
	return template.FuncMap{
		Contract.Write:          func(any) string { return "" },
		Contract.WriteLiteral:   func(any) string { return "" },
		Contract.WriteTo:        func(io.Writer, any) (string, error) { return "", nil },
		Contract.WriteLiteralTo: func(io.Writer, any) (string, error) { return "", nil },
		Contract.DefineSection:  func(string, string, any) (string, error) { return "", nil },
		"log":                   func(string, string, ...any) string { return "" },
		"isComponentTemplate":   func() bool { return false },
		"isPageTemplate":        func() bool { return false },
		"renderMode":            func() string { return "" },
		"templateID":            func() string { return "" },
	}
}

type literalWriter struct {
	base *Base
}

func (w literalWriter) Write(p []byte) (int, error) {
	w.base.WriteLiteral(string(p))
	return len(p), nil
}
