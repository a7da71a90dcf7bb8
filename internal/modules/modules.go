// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package modules provides the built-in function modules templates can
// import with @using.
package modules

import (
	"fmt"
	"net/url"
	"strings"
	"text/template"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/alex-klock/razor-mediator-4-tridion/internal/engine"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/markdown"
)

// Register makes every built-in module loadable from reg.
func Register(reg *engine.ModuleRegistry) error {
	for _, m := range All() {
		if err := reg.Register(m); err != nil {
			return fmt.Errorf("register module %s: %w", m.Name, err)
		}
	}
	return nil
}

// Load registers every built-in module with reg and loads it, so its
// namespace resolves without a reference.
func Load(reg *engine.ModuleRegistry) error {
	if err := Register(reg); err != nil {
		return err
	}
	for _, m := range All() {
		if _, err := reg.Load(m.Name); err != nil {
			return fmt.Errorf("load module %s: %w", m.Name, err)
		}
	}
	return nil
}

// All returns the built-in modules.
func All() []*engine.Module {
	return []*engine.Module{Strings(), Web(), Markdown(), Time()}
}

// Strings is the "strings" module.
func Strings() *engine.Module {
	return &engine.Module{
		Name: "strings",
		Funcs: template.FuncMap{
			"upper":     strings.ToUpper,
			"lower":     strings.ToLower,
			"trim":      strings.TrimSpace,
			"contains":  func(substr, s string) bool { return strings.Contains(s, substr) },
			"hasPrefix": func(prefix, s string) bool { return strings.HasPrefix(s, prefix) },
			"hasSuffix": func(suffix, s string) bool { return strings.HasSuffix(s, suffix) },
			"replace":   func(old, new, s string) string { return strings.ReplaceAll(s, old, new) },
			"split":     func(sep, s string) []string { return strings.Split(s, sep) },
			"join":      func(sep string, parts []string) string { return strings.Join(parts, sep) },
			"truncate":  truncate,
		},
	}
}

// truncate shortens s to at most n runes, appending "..." when cut.
func truncate(n int, s string) string {
	if n < 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

// Web is the "web" module: HTML and URL encoding helpers.
func Web() *engine.Module {
	return &engine.Module{
		Name: "web",
		Funcs: template.FuncMap{
			"htmlEncode": html.EscapeString,
			"htmlDecode": html.UnescapeString,
			"urlEncode":  url.QueryEscape,
			"urlDecode":  url.QueryUnescape,
			"stripHtml":  stripHTML,
		},
	}
}

// stripHTML returns s without tags and comments. Text is kept as written,
// entities included.
func stripHTML(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(z.Raw())
		}
	}
}

// Markdown is the "markdown" module.
func Markdown() *engine.Module {
	return &engine.Module{
		Name: "markdown",
		Funcs: template.FuncMap{
			"markdown":     markdown.ToHTML,
			"markdownSafe": markdown.ToSafeHTML,
		},
	}
}

// Time is the "time" module. Layouts use Go reference time notation.
func Time() *engine.Module {
	return &engine.Module{
		Name: "time",
		Funcs: template.FuncMap{
			"now":        time.Now,
			"formatTime": func(layout string, t time.Time) string { return t.Format(layout) },
			"parseTime":  time.Parse,
			"year":       func(t time.Time) int { return t.Year() },
			"unixTime":   func(t time.Time) int64 { return t.Unix() },
		},
	}
}
