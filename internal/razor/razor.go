// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package razor translates Razor-style template markup into Go
// text/template source. Each translated template becomes one named
// {{define}} block whose body calls back into the executable unit through
// the function names in Callbacks, so the compiled set can later be bound
// to a per-render unit instance.
//
// Supported syntax:
//
//	@@                          a literal "@"
//	@* comment *@               dropped
//	@Component.Title            implicit expression (loop variables map to $var)
//	@( pipeline )               explicit text/template pipeline
//	@{ $x := .A; $y := .B }     code block, one statement per line or ";"
//	@if (p) { } else if (p) { } else { }
//	@foreach (var item in p) { }  or  @foreach (p) { }
//	@section Name { }           rendered eagerly where it is declared
//	@using strings              adds a namespace import
//	@importRazor("path")        consumed (imports are inlined before translation)
//
// Generated code keeps a line-for-line correspondence with the source for
// everything outside section bodies; section bodies are hoisted after the
// main block and recorded in Result.LineMap.
//
// A hoisted section body is its own {{define}}, so it sees the data (".")
// but not variables declared outside it. Using such a variable as an
// implicit expression inside a section is a syntax error; variables a
// section declares stay local to it.
package razor

import (
	"fmt"
	"strconv"
	"strings"
)

// Callbacks names the members of the executable unit contract the
// generated code calls back into.
type Callbacks struct {
	Execute        string
	Write          string
	WriteLiteral   string
	WriteTo        string
	WriteLiteralTo string
	DefineSection  string
}

// DefaultCallbacks matches the executable unit contract of the engine.
var DefaultCallbacks = Callbacks{
	Execute:        "execute",
	Write:          "write",
	WriteLiteral:   "writeLiteral",
	WriteTo:        "writeTo",
	WriteLiteralTo: "writeLiteralTo",
	DefineSection:  "defineSection",
}

// Options configures a single translation.
type Options struct {
	ClassName  string   // name of the generated {{define}} block
	Namespaces []string // namespaces imported before any @using directive
	Callbacks  Callbacks
}

// Result is one generated compilation unit.
type Result struct {
	ClassName  string
	Code       string
	Namespaces []string // Options.Namespaces followed by @using additions
	Sections   []string
	// LineMap maps a generated line (index+1) to its source line.
	LineMap []int
}

// SectionTemplate returns the name of the hoisted block for a section.
func SectionTemplate(className, section string) string {
	return className + ":section:" + section
}

// SyntaxError reports malformed template markup.
type SyntaxError struct {
	Line   int
	Column int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("razor: %d:%d: %s", e.Line, e.Column, e.Msg)
}

// Position returns the 1-based line and column of the error.
func (e *SyntaxError) Position() (line, column int) {
	return e.Line, e.Column
}

// Translator adapts Translate to the engine's translator interface.
type Translator struct {
	Callbacks Callbacks
}

// NewTranslator returns a translator calling back into cb.
func NewTranslator(cb Callbacks) *Translator {
	return &Translator{Callbacks: cb}
}

// Translate converts source into a generated unit named className.
func (t *Translator) Translate(source, className string, namespaces []string) (*Result, error) {
	return Translate(source, Options{
		ClassName:  className,
		Namespaces: namespaces,
		Callbacks:  t.Callbacks,
	})
}

type section struct {
	name      string
	startLine int
	code      string
}

// Translate converts Razor-style source into a text/template unit.
func Translate(source string, opts Options) (*Result, error) {
	if opts.ClassName == "" {
		return nil, fmt.Errorf("razor: class name is required")
	}
	if opts.Callbacks == (Callbacks{}) {
		opts.Callbacks = DefaultCallbacks
	}

	p := &parser{
		src:        source,
		opts:       opts,
		out:        &strings.Builder{},
		namespaces: append([]string(nil), opts.Namespaces...),
	}

	p.out.WriteString(`{{define ` + strconv.Quote(opts.ClassName) + `}}`)
	if err := p.parseMarkup(false); err != nil {
		return nil, err
	}
	p.out.WriteString("{{end}}")

	lines := strings.Count(p.out.String(), "\n") + 1
	lineMap := make([]int, 0, lines)
	for i := 1; i <= lines; i++ {
		lineMap = append(lineMap, i)
	}

	res := &Result{
		ClassName:  opts.ClassName,
		Namespaces: p.namespaces,
	}

	var code strings.Builder
	code.WriteString(p.out.String())
	for _, s := range p.sections {
		code.WriteString("\n")
		code.WriteString(s.code)
		n := strings.Count(s.code, "\n") + 1
		for i := 0; i < n; i++ {
			lineMap = append(lineMap, s.startLine+i)
		}
		res.Sections = append(res.Sections, s.name)
	}
	res.Code = code.String()
	res.LineMap = lineMap
	return res, nil
}

type parser struct {
	src        string
	pos        int
	opts       Options
	out        *strings.Builder
	scopes     []map[string]bool // loop variables visible to implicit expressions
	vars       map[string]bool   // variables declared in code blocks
	outerVars  map[string]bool   // variables of the main block, while in a section
	namespaces []string
	sections   []section
	inSection  string // name of the section being parsed
}

func (p *parser) errorf(pos int, format string, args ...any) error {
	line, col := p.lineCol(pos)
	return &SyntaxError{Line: line, Column: col, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) lineCol(pos int) (int, int) {
	if pos > len(p.src) {
		pos = len(p.src)
	}
	line := 1 + strings.Count(p.src[:pos], "\n")
	col := pos - strings.LastIndex(p.src[:pos], "\n")
	return line, col
}

func (p *parser) peek(off int) byte {
	if p.pos+off < len(p.src) {
		return p.src[p.pos+off]
	}
	return 0
}

// newlines emits a comment carrying n newlines so generated lines stay
// aligned with the source without producing output.
func (p *parser) newlines(n int) {
	if n > 0 {
		p.out.WriteString("{{/*" + strings.Repeat("\n", n) + "*/}}")
	}
}

// parseMarkup consumes literal markup and transitions. When inBlock is set
// it stops before the '}' that closes the enclosing block.
func (p *parser) parseMarkup(inBlock bool) error {
	depth := 0
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == '}' && inBlock && depth == 0:
			return nil
		case c == '{' && p.peek(1) == '{':
			depth += 2
			p.out.WriteString(`{{"{{"}}`)
			p.pos += 2
		case c == '{':
			depth++
			p.out.WriteByte(c)
			p.pos++
		case c == '}':
			depth--
			p.out.WriteByte(c)
			p.pos++
		case c == '@':
			if err := p.parseTransition(); err != nil {
				return err
			}
		default:
			p.out.WriteByte(c)
			p.pos++
		}
	}
	if inBlock {
		return p.errorf(p.pos, "unexpected end of template, missing '}'")
	}
	return nil
}

func (p *parser) parseTransition() error {
	start := p.pos
	if start > 0 && isWordByte(p.src[start-1]) {
		// e-mail addresses and similar stay literal.
		p.out.WriteByte('@')
		p.pos++
		return nil
	}

	next := p.peek(1)
	switch {
	case next == '@':
		p.out.WriteByte('@')
		p.pos += 2
		return nil
	case next == '*':
		return p.parseComment()
	case next == '(':
		p.pos++
		expr, err := p.readBalanced('(', ')')
		if err != nil {
			return err
		}
		p.out.WriteString("{{" + p.opts.Callbacks.Write + " (" + strings.TrimSpace(expr) + ")}}")
		return nil
	case next == '{':
		p.pos++
		body, err := p.readBalanced('{', '}')
		if err != nil {
			return err
		}
		return p.emitCode(body)
	case next == '$' || isIdentStart(next):
		p.pos++
		return p.parseIdentifier(start)
	case next == 0:
		return p.errorf(start, "unexpected end of template after '@'")
	default:
		return p.errorf(start, "unexpected %q after '@'", string(next))
	}
}

func (p *parser) parseComment() error {
	start := p.pos
	end := strings.Index(p.src[p.pos+2:], "*@")
	if end < 0 {
		return p.errorf(start, "unterminated comment")
	}
	body := p.src[p.pos+2 : p.pos+2+end]
	p.pos += 2 + end + 2
	p.newlines(strings.Count(body, "\n"))
	return nil
}

func (p *parser) parseIdentifier(at int) error {
	word := p.readIdent()
	switch word {
	case "if":
		return p.parseIf()
	case "foreach":
		return p.parseForeach(at)
	case "section":
		return p.parseSection(at)
	case "using":
		return p.parseUsing(at)
	case "importRazor":
		if p.peek(0) != '(' {
			return p.errorf(at, "expected '(' after @importRazor")
		}
		_, err := p.readBalanced('(', ')')
		return err
	}

	if name := strings.TrimPrefix(word, "$"); p.outerVars[name] && !p.vars[name] && !p.inLoopScope(name) {
		return p.errorf(at, "variable $%s is declared outside section %s and is not visible inside it", name, p.inSection)
	}
	expr := p.resolve(word)
	for p.peek(0) == '.' && isIdentStart(p.peek(1)) {
		p.pos++
		expr += "." + p.readIdent()
	}
	p.out.WriteString("{{" + p.opts.Callbacks.Write + " " + expr + "}}")
	return nil
}

func (p *parser) inLoopScope(name string) bool {
	for _, scope := range p.scopes {
		if scope[name] {
			return true
		}
	}
	return false
}

// resolve maps the head of an implicit expression to a variable or field.
func (p *parser) resolve(word string) string {
	if strings.HasPrefix(word, "$") {
		return word
	}
	for i := len(p.scopes) - 1; i >= 0; i-- {
		if p.scopes[i][word] {
			return "$" + word
		}
	}
	if p.vars[word] {
		return "$" + word
	}
	return "." + word
}

func (p *parser) parseIf() error {
	cond, err := p.readCondition("if")
	if err != nil {
		return err
	}
	p.out.WriteString("{{if " + cond + "}}")
	if err := p.parseBlockBody(); err != nil {
		return err
	}

	for {
		save := p.pos
		skipped := p.skipSpace()
		if !strings.HasPrefix(p.src[p.pos:], "else") || isWordByte(p.peek(4)) {
			p.pos = save
			break
		}
		p.pos += len("else")
		p.newlines(strings.Count(skipped, "\n"))
		ws := p.skipSpace()
		p.newlines(strings.Count(ws, "\n"))

		if strings.HasPrefix(p.src[p.pos:], "if") && !isWordByte(p.peek(2)) {
			p.pos += 2
			cond, err := p.readCondition("else if")
			if err != nil {
				return err
			}
			p.out.WriteString("{{else if " + cond + "}}")
			if err := p.parseBlockBody(); err != nil {
				return err
			}
			continue
		}

		p.out.WriteString("{{else}}")
		if err := p.parseBlockBody(); err != nil {
			return err
		}
		break
	}
	p.out.WriteString("{{end}}")
	return nil
}

func (p *parser) parseForeach(at int) error {
	header, err := p.readCondition("foreach")
	if err != nil {
		return err
	}

	scope := map[string]bool{}
	clause := header
	if names, pipeline, ok := splitForeach(header); ok {
		vars := make([]string, len(names))
		for i, n := range names {
			n = strings.TrimPrefix(n, "$")
			scope[n] = true
			vars[i] = "$" + n
		}
		clause = strings.Join(vars, ", ") + " := " + pipeline
	} else if header == "" {
		return p.errorf(at, "@foreach requires a collection")
	}

	p.out.WriteString("{{range " + clause + "}}")
	p.scopes = append(p.scopes, scope)
	err = p.parseBlockBody()
	p.scopes = p.scopes[:len(p.scopes)-1]
	if err != nil {
		return err
	}
	p.out.WriteString("{{end}}")
	return nil
}

// splitForeach recognises "var item in pipeline" and "i, item in pipeline".
func splitForeach(header string) ([]string, string, bool) {
	idx := strings.Index(header, " in ")
	if idx < 0 {
		return nil, "", false
	}
	left := strings.TrimSpace(header[:idx])
	pipeline := strings.TrimSpace(header[idx+len(" in "):])
	left = strings.TrimSpace(strings.TrimPrefix(left, "var "))
	if pipeline == "" || left == "" {
		return nil, "", false
	}

	parts := strings.Split(left, ",")
	if len(parts) > 2 {
		return nil, "", false
	}
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		name := strings.TrimSpace(part)
		if !isIdent(strings.TrimPrefix(name, "$")) {
			return nil, "", false
		}
		names = append(names, name)
	}
	return names, pipeline, true
}

func (p *parser) parseSection(at int) error {
	if p.inSection != "" || len(p.scopes) > 0 {
		return p.errorf(at, "section blocks cannot be nested")
	}
	ws := p.skipSpace()
	if strings.Contains(ws, "\n") || !isIdentStart(p.peek(0)) {
		return p.errorf(p.pos, "@section requires a name")
	}
	name := p.readIdent()
	for _, s := range p.sections {
		if s.name == name {
			return p.errorf(at, "section %q is already defined", name)
		}
	}
	ws = p.skipSpace()
	if p.peek(0) != '{' {
		return p.errorf(p.pos, "expected '{' after @section %s", name)
	}
	p.pos++

	startLine, _ := p.lineCol(p.pos)
	tmplName := SectionTemplate(p.opts.ClassName, name)

	outer := p.out
	p.out = &strings.Builder{}
	p.inSection = name
	p.outerVars, p.vars = p.vars, nil
	p.out.WriteString(`{{define ` + strconv.Quote(tmplName) + `}}`)
	err := p.parseMarkup(true)
	p.inSection = ""
	p.vars, p.outerVars = p.outerVars, nil
	if err != nil {
		return err
	}
	p.pos++ // closing brace
	p.out.WriteString("{{end}}")
	body := p.out.String()
	p.out = outer

	p.sections = append(p.sections, section{name: name, startLine: startLine, code: body})
	p.out.WriteString("{{" + p.opts.Callbacks.DefineSection + " " + strconv.Quote(name) + " " + strconv.Quote(tmplName) + " .}}")
	p.newlines(strings.Count(ws, "\n") + strings.Count(body, "\n"))
	return nil
}

func (p *parser) parseUsing(at int) error {
	end := strings.IndexByte(p.src[p.pos:], '\n')
	if end < 0 {
		end = len(p.src) - p.pos
	}
	ns := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(p.src[p.pos:p.pos+end]), ";"))
	if ns == "" {
		return p.errorf(at, "@using requires a namespace")
	}
	p.pos += end
	for _, existing := range p.namespaces {
		if existing == ns {
			return nil
		}
	}
	p.namespaces = append(p.namespaces, ns)
	return nil
}

// readCondition reads the parenthesised header of an if/foreach.
func (p *parser) readCondition(keyword string) (string, error) {
	ws := p.skipSpace()
	if p.peek(0) != '(' {
		return "", p.errorf(p.pos, "expected '(' after %s", keyword)
	}
	p.newlines(strings.Count(ws, "\n"))
	cond, err := p.readBalanced('(', ')')
	if err != nil {
		return "", err
	}
	p.newlines(strings.Count(cond, "\n"))
	cond = strings.TrimSpace(strings.NewReplacer("\r", " ", "\n", " ").Replace(cond))
	if keyword != "foreach" && cond == "" {
		return "", p.errorf(p.pos, "empty condition in %s", keyword)
	}
	return cond, nil
}

// parseBlockBody reads "{ markup }" following a control statement.
func (p *parser) parseBlockBody() error {
	ws := p.skipSpace()
	if p.peek(0) != '{' {
		return p.errorf(p.pos, "expected '{'")
	}
	p.newlines(strings.Count(ws, "\n"))
	p.pos++
	if err := p.parseMarkup(true); err != nil {
		return err
	}
	p.pos++
	return nil
}

// readBalanced reads from an opening delimiter at p.pos to its matching
// close, honouring quoted strings, and returns the inner text.
func (p *parser) readBalanced(open, close byte) (string, error) {
	start := p.pos
	if p.peek(0) != open {
		return "", p.errorf(start, "expected %q", string(open))
	}
	depth := 0
	for i := p.pos; i < len(p.src); i++ {
		switch c := p.src[i]; c {
		case '"', '`', '\'':
			j, err := p.skipQuoted(i)
			if err != nil {
				return "", err
			}
			i = j
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				p.pos = i + 1
				return p.src[start+1 : i], nil
			}
		}
	}
	return "", p.errorf(start, "unbalanced %q", string(open))
}

func (p *parser) skipQuoted(i int) (int, error) {
	quote := p.src[i]
	for j := i + 1; j < len(p.src); j++ {
		switch p.src[j] {
		case '\\':
			if quote != '`' {
				j++
			}
		case quote:
			return j, nil
		}
	}
	return 0, p.errorf(i, "unterminated string")
}

// emitCode translates the statements of a code block.
func (p *parser) emitCode(body string) error {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if i > 0 {
			p.newlines(1)
		}
		for _, stmt := range splitStatements(line) {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" || strings.HasPrefix(stmt, "//") {
				continue
			}
			if name, ok := declaredVar(stmt); ok {
				if p.vars == nil {
					p.vars = map[string]bool{}
				}
				p.vars[name] = true
			}
			p.out.WriteString("{{" + stmt + "}}")
		}
	}
	return nil
}

// splitStatements splits on ';' outside quoted strings.
func splitStatements(line string) []string {
	var out []string
	var quote byte
	last := 0
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == '\\' && quote != '`' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '`' || c == '\'':
			quote = c
		case c == ';':
			out = append(out, line[last:i])
			last = i + 1
		}
	}
	return append(out, line[last:])
}

func declaredVar(stmt string) (string, bool) {
	if !strings.HasPrefix(stmt, "$") {
		return "", false
	}
	idx := strings.Index(stmt, ":=")
	if idx < 0 {
		return "", false
	}
	name := strings.TrimSpace(stmt[1:idx])
	if !isIdent(name) {
		return "", false
	}
	return name, true
}

func (p *parser) skipSpace() string {
	start := p.pos
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\r', '\n':
			p.pos++
			continue
		}
		break
	}
	return p.src[start:p.pos]
}

func (p *parser) readIdent() string {
	start := p.pos
	if p.peek(0) == '$' {
		p.pos++
	}
	for p.pos < len(p.src) && isWordByte(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func isIdentStart(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isWordByte(c byte) bool {
	return isIdentStart(c) || ('0' <= c && c <= '9')
}

func isIdent(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isWordByte(s[i]) {
			return false
		}
	}
	return true
}
