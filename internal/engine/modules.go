// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package engine

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
	"text/template"
)

// CoreNamespace is provided by the core module and imported by every unit.
const CoreNamespace = "core"

// BaseNamespaces are imported by every compiled unit ahead of its own.
var BaseNamespaces = []string{CoreNamespace}

// Module is a named set of template functions and shared definitions.
// A module's name is also the namespace a template imports to use its
// functions.
type Module struct {
	Name        string
	Path        string // set for modules read from disk
	Funcs       template.FuncMap
	Definitions string // text/template {{define}} blocks shared by the set
}

// ModuleRegistry holds the modules the process can load and the ones it
// has loaded. Loaded modules are referenced by every compilation.
type ModuleRegistry struct {
	mu        sync.RWMutex
	available map[string]*Module
	loaded    []*Module
}

// NewModuleRegistry returns a registry with the core module loaded.
func NewModuleRegistry() *ModuleRegistry {
	r := &ModuleRegistry{available: make(map[string]*Module)}
	core := CoreModule()
	r.available[core.Name] = core
	r.loaded = append(r.loaded, core)
	return r
}

// Register makes m loadable by name. Registering a name twice replaces
// the earlier module unless it is already loaded.
func (r *ModuleRegistry) Register(m *Module) error {
	if m == nil || m.Name == "" {
		return fmt.Errorf("module name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.loaded {
		if l.Name == m.Name {
			return fmt.Errorf("module %q is already loaded", m.Name)
		}
	}
	r.available[m.Name] = m
	return nil
}

// Load marks a registered module as loaded and returns it.
func (r *ModuleRegistry) Load(name string) (*Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.loaded {
		if l.Name == name {
			return l, nil
		}
	}
	m, ok := r.available[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	r.loaded = append(r.loaded, m)
	return m, nil
}

// Loaded returns the loaded modules in load order.
func (r *ModuleRegistry) Loaded() []*Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Module(nil), r.loaded...)
}

// Available lists every registered module name.
func (r *ModuleRegistry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.available))
	for name := range r.available {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CoreModule returns the functions every template can use without an
// import.
func CoreModule() *Module {
	return &Module{
		Name: CoreNamespace,
		Funcs: template.FuncMap{
			"default":  defaultValue,
			"coalesce": coalesce,
			"empty":    empty,
			"dict":     dict,
			"list":     list,
		},
	}
}

// defaultValue returns v unless it is empty, in which case def.
func defaultValue(def, v any) any {
	if empty(v) {
		return def
	}
	return v
}

func coalesce(values ...any) any {
	for _, v := range values {
		if !empty(v) {
			return v
		}
	}
	return nil
}

func empty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return rv.IsZero()
}

func dict(pairs ...any) (map[string]any, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("dict: odd number of arguments")
	}
	m := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict: key %v is not a string", pairs[i])
		}
		m[key] = pairs[i+1]
	}
	return m, nil
}

func list(values ...any) []any {
	return values
}
