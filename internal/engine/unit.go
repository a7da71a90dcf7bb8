// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"

	"github.com/alex-klock/razor-mediator-4-tridion/internal/razor"
)

// Contract names the unit members generated code calls back into. The
// translator is configured with exactly these names.
var Contract = razor.Callbacks{
	Execute:        "execute",
	Write:          "write",
	WriteLiteral:   "writeLiteral",
	WriteTo:        "writeTo",
	WriteLiteralTo: "writeLiteralTo",
	DefineSection:  "defineSection",
}

// Unit is one single-use render of a compiled template type.
type Unit interface {
	// Initialize hands the unit its render context. Call before Execute.
	Initialize(ctx *Context)
	// Execute runs the template body once, appending to the unit's buffer.
	Execute() error
	// String returns the buffered output and clears the buffer.
	String() string
}

// Context is what the host passes to a unit for one render.
type Context struct {
	Identity   Identity     // template being rendered
	RenderMode string       // host render mode, e.g. "publish" or "preview"
	Data       any          // root value of the template (the "." of generated code)
	References []string     // references the unit was compiled with
	Logger     *slog.Logger // nil means slog.Default()
}

// Base implements the buffer half of the unit contract. Generated unit
// types embed it.
type Base struct {
	buf strings.Builder
	ctx *Context
}

// Initialize stores the render context.
func (b *Base) Initialize(ctx *Context) {
	b.ctx = ctx
}

// Context returns the render context, or an empty one before Initialize.
func (b *Base) Context() *Context {
	if b.ctx == nil {
		return &Context{}
	}
	return b.ctx
}

// Logger returns the context logger.
func (b *Base) Logger() *slog.Logger {
	if b.ctx == nil || b.ctx.Logger == nil {
		return slog.Default()
	}
	return b.ctx.Logger
}

// Log writes msg to the context logger at level ("debug", "info", "warn"
// or "error"). Unknown levels log at info.
func (b *Base) Log(level, msg string, args ...any) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	ctx := b.Context()
	if !ctx.Identity.IsZero() {
		args = append(args, "identity", ctx.Identity.String())
	}
	b.Logger().Log(context.Background(), l, msg, args...)
}

// IsComponentTemplate reports whether the unit renders a component
// template.
func (b *Base) IsComponentTemplate() bool {
	return b.Context().Identity.Kind == KindComponentTemplate
}

// IsPageTemplate reports whether the unit renders a page template.
func (b *Base) IsPageTemplate() bool {
	return b.Context().Identity.Kind == KindPageTemplate
}

// RenderMode returns the host render mode, empty when the host set none.
func (b *Base) RenderMode() string {
	return b.Context().RenderMode
}

// Execute is the empty body of a unit with no generated code.
func (b *Base) Execute() error {
	return nil
}

// Write appends the textual form of v. A nil value appends nothing.
func (b *Base) Write(v any) {
	if s, ok := text(v); ok {
		b.buf.WriteString(s)
	}
}

// WriteLiteral appends template literal text. A nil value appends nothing.
func (b *Base) WriteLiteral(v any) {
	if s, ok := text(v); ok {
		b.buf.WriteString(s)
	}
}

// DefineSection renders a section body immediately, at the point the
// section is declared.
func (b *Base) DefineSection(name string, body func() error) error {
	if body == nil {
		return nil
	}
	if err := body(); err != nil {
		return fmt.Errorf("section %s: %w", name, err)
	}
	return nil
}

// String returns the buffered output and resets the buffer.
func (b *Base) String() string {
	s := b.buf.String()
	b.buf.Reset()
	return s
}

// WriteTo writes the textual form of v to w. A nil value writes nothing.
func WriteTo(w io.Writer, v any) error {
	s, ok := text(v)
	if !ok || s == "" {
		return nil
	}
	_, err := io.WriteString(w, s)
	return err
}

// WriteLiteralTo writes literal text to w. A nil value writes nothing.
func WriteLiteralTo(w io.Writer, v any) error {
	return WriteTo(w, v)
}

// text converts v for output; ok is false for nil and nil pointers.
func text(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case []byte:
		if x == nil {
			return "", false
		}
		return string(x), true
	case fmt.Stringer:
		if isNil(v) {
			return "", false
		}
		return x.String(), true
	case error:
		if isNil(v) {
			return "", false
		}
		return x.Error(), true
	}
	if isNil(v) {
		return "", false
	}
	return fmt.Sprint(v), true
}

func isNil(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
