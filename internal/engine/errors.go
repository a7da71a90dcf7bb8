// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRegistration is returned by Register for absent source text or an
	// empty identity.
	ErrRegistration = errors.New("invalid template registration")

	// ErrNothingCompiled is returned by Instantiate while the cache is empty.
	ErrNothingCompiled = errors.New("nothing has been compiled yet")

	// ErrNotCompiled is returned when an entry exists but has no artifact,
	// or the artifact does not contain the requested unit type.
	ErrNotCompiled = errors.New("template has not been compiled")

	// ErrNotFound is returned for an identity that was never registered.
	ErrNotFound = errors.New("template not found")

	// ErrEmptyBatch is returned by a Compiler asked to compile nothing.
	ErrEmptyBatch = errors.New("compilation batch is empty")

	// ErrAlreadyExecuted is returned when a unit is executed twice.
	ErrAlreadyExecuted = errors.New("unit has already been executed")

	// ErrModuleNotFound is returned by ModuleRegistry.Load for unknown names.
	ErrModuleNotFound = errors.New("module not found")
)

// Severity grades a Diagnostic.
type Severity int

const (
	SeverityWarning Severity = iota + 1
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	}
	return "unknown"
}

// Diagnostic codes produced by TemplateCompiler.
const (
	CodeUnresolvedReference = "RZR0006"
	CodeUndefinedName       = "RZR0103"
	CodeUnknownNamespace    = "RZR0246"
	CodeSyntax              = "RZR1001"
	CodeParse               = "RZR1002"
	CodeDuplicateReference  = "RZR1701"
)

// Diagnostic is one compiler message. Line and Column are 1-based
// positions in the merged compilation source (zero when unknown);
// TemplateLine is the matching line of the template's own source.
type Diagnostic struct {
	Severity     Severity `json:"severity"`
	Code         string   `json:"code"`
	Message      string   `json:"message"`
	Line         int      `json:"line"`
	Column       int      `json:"column"`
	Identity     Identity `json:"identity"`
	TemplateLine int      `json:"template_line,omitempty"`
}

func (d Diagnostic) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s", d.Severity, d.Code, d.Message)
	if !d.Identity.IsZero() {
		fmt.Fprintf(&b, " (%s", d.Identity)
		if d.TemplateLine > 0 {
			fmt.Fprintf(&b, " line %d", d.TemplateLine)
		}
		b.WriteString(")")
	}
	return b.String()
}

// CompileError reports a failed batch. Nothing in the batch was compiled.
type CompileError struct {
	Diagnostics []Diagnostic
	Source      string     // merged compilation source
	Identities  []Identity // every identity in the batch
	Failed      []Identity // identities with at least one error diagnostic
}

// Errors returns the error-severity diagnostics.
func (e *CompileError) Errors() []Diagnostic {
	var out []Diagnostic
	for _, d := range e.Diagnostics {
		if d.Severity == SeverityError {
			out = append(out, d)
		}
	}
	return out
}

// SourceLine returns line n (1-based) of the merged source, or "" when out
// of range.
func (e *CompileError) SourceLine(n int) string {
	lines := strings.Split(e.Source, "\n")
	if n < 1 || n > len(lines) {
		return ""
	}
	return strings.TrimRight(lines[n-1], "\r")
}

// Context renders the merged source lines around line, marking line itself.
func (e *CompileError) Context(line, radius int) string {
	lines := strings.Split(e.Source, "\n")
	if line < 1 || line > len(lines) {
		return ""
	}
	from := max(1, line-radius)
	to := min(len(lines), line+radius)

	var b strings.Builder
	for n := from; n <= to; n++ {
		marker := "  "
		if n == line {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s%4d | %s\n", marker, n, strings.TrimRight(lines[n-1], "\r"))
	}
	return b.String()
}

func (e *CompileError) Error() string {
	errs := e.Errors()
	if len(errs) == 0 {
		return "template compilation failed"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "template compilation failed with %d error(s)", len(errs))
	for _, d := range errs {
		fmt.Fprintf(&b, "\n%s: %s", d.Code, d.Message)
		if !d.Identity.IsZero() {
			fmt.Fprintf(&b, " [%s]", d.Identity)
		}
		if d.Line > 0 {
			fmt.Fprintf(&b, "\nLine %d Column %d:\n%s", d.Line, d.Column, e.Context(d.Line, 2))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// ExecutionError wraps a failure raised while a unit executed. Partial
// output is never returned alongside it.
type ExecutionError struct {
	Identity Identity
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute %s: %v", e.Identity, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
