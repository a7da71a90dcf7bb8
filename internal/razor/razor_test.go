// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package razor

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"text/template"
)

func TestTranslate_Code(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{
			name:   "plain markup",
			source: "<p>Hello</p>",
			want:   `{{define "T"}}<p>Hello</p>{{end}}`,
		},
		{
			name:   "implicit expression",
			source: "Hello @Name!",
			want:   `{{define "T"}}Hello {{write .Name}}!{{end}}`,
		},
		{
			name:   "implicit member chain stops at trailing dot",
			source: "@Component.Title.",
			want:   `{{define "T"}}{{write .Component.Title}}.{{end}}`,
		},
		{
			name:   "email stays literal",
			source: "mail a@b.com",
			want:   `{{define "T"}}mail a@b.com{{end}}`,
		},
		{
			name:   "escaped at",
			source: "@@x",
			want:   `{{define "T"}}@x{{end}}`,
		},
		{
			name:   "comment dropped",
			source: "a @* note *@b",
			want:   `{{define "T"}}a b{{end}}`,
		},
		{
			name:   "explicit expression",
			source: `@(printf "%d" .Count)`,
			want:   `{{define "T"}}{{write (printf "%d" .Count)}}{{end}}`,
		},
		{
			name:   "code block declares variable",
			source: "@{ $t := .Title }@t",
			want:   `{{define "T"}}{{$t := .Title}}{{write $t}}{{end}}`,
		},
		{
			name:   "code block with several statements",
			source: `@{ $a := 1; $b := "x;y" }`,
			want:   `{{define "T"}}{{$a := 1}}{{$b := "x;y"}}{{end}}`,
		},
		{
			name:   "if else",
			source: "@if (.Show) {yes} else {no}",
			want:   `{{define "T"}}{{if .Show}}yes{{else}}no{{end}}{{end}}`,
		},
		{
			name:   "if else if else",
			source: "@if (.A) {a} else if (.B) {b} else {c}",
			want:   `{{define "T"}}{{if .A}}a{{else if .B}}b{{else}}c{{end}}{{end}}`,
		},
		{
			name:   "if without else keeps trailing whitespace",
			source: "@if (.A) {a} tail",
			want:   `{{define "T"}}{{if .A}}a{{end}} tail{{end}}`,
		},
		{
			name:   "foreach with variable",
			source: "@foreach (var item in .Items) {<li>@item.Name</li>}",
			want:   `{{define "T"}}{{range $item := .Items}}<li>{{write $item.Name}}</li>{{end}}{{end}}`,
		},
		{
			name:   "foreach with index",
			source: "@foreach (i, item in .Items) {@i}",
			want:   `{{define "T"}}{{range $i, $item := .Items}}{{write $i}}{{end}}{{end}}`,
		},
		{
			name:   "foreach over pipeline",
			source: "@foreach (.Items) {@Name}",
			want:   `{{define "T"}}{{range .Items}}{{write .Name}}{{end}}{{end}}`,
		},
		{
			name:   "braces in markup inside block",
			source: "@if (.A) {<style>a{color:red}</style>}",
			want:   `{{define "T"}}{{if .A}}<style>a{color:red}</style>{{end}}{{end}}`,
		},
		{
			name:   "template delimiters are escaped",
			source: "a {{ b }}",
			want:   `{{define "T"}}a {{"{{"}} b }}{{end}}`,
		},
		{
			name:   "section is hoisted",
			source: "@section Head {<title>x</title>}",
			want:   `{{define "T"}}{{defineSection "Head" "T:section:Head" .}}{{end}}` + "\n" + `{{define "T:section:Head"}}<title>x</title>{{end}}`,
		},
		{
			name:   "importRazor is consumed",
			source: `a @importRazor("x.cshtml")b`,
			want:   `{{define "T"}}a b{{end}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Translate(tt.source, Options{ClassName: "T"})
			if err != nil {
				t.Fatalf("Translate: %v", err)
			}
			if res.Code != tt.want {
				t.Errorf("code:\n got: %s\nwant: %s", res.Code, tt.want)
			}
		})
	}
}

func TestTranslate_Using(t *testing.T) {
	res, err := Translate("@using strings\n@using markdown;\nHi", Options{
		ClassName:  "T",
		Namespaces: []string{"core", "strings"},
	})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}

	want := []string{"core", "strings", "markdown"}
	if strings.Join(res.Namespaces, ",") != strings.Join(want, ",") {
		t.Errorf("namespaces: got %v, want %v", res.Namespaces, want)
	}
	if res.Code != "{{define \"T\"}}\n\nHi{{end}}" {
		t.Errorf("unexpected code: %q", res.Code)
	}
}

func TestTranslate_PreservesLines(t *testing.T) {
	source := "line1\n@* a\nb *@\n@(.X)\n@if (.A) {\n  yes\n}\nelse {\n  no\n}\n@{\n $v := 1\n}\nend"
	res, err := Translate(source, Options{ClassName: "T"})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got, want := strings.Count(res.Code, "\n"), strings.Count(source, "\n"); got != want {
		t.Errorf("generated line count: got %d newlines, want %d\n%s", got, want, res.Code)
	}
	if len(res.LineMap) != strings.Count(res.Code, "\n")+1 {
		t.Errorf("line map has %d entries for %d lines", len(res.LineMap), strings.Count(res.Code, "\n")+1)
	}
}

func TestTranslate_SectionLineMap(t *testing.T) {
	source := "a\n@section Foot {\nx\n}\nb"
	res, err := Translate(source, Options{ClassName: "T"})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}

	// Main block: 5 lines mirroring the source, then the hoisted section
	// starting on the line its body starts on.
	want := []int{1, 2, 3, 4, 5, 2, 3, 4}
	if fmt.Sprint(res.LineMap) != fmt.Sprint(want) {
		t.Errorf("line map: got %v, want %v", res.LineMap, want)
	}
	if len(res.Sections) != 1 || res.Sections[0] != "Foot" {
		t.Errorf("sections: got %v", res.Sections)
	}
}

func TestTranslate_SyntaxErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		line   int
		column int
		msg    string
	}{
		{"unbalanced explicit expression", "x @(.A", 1, 4, "unbalanced"},
		{"unclosed block", "@if (.A) {\nopen", 2, 5, "missing '}'"},
		{"dangling at", "a @ b", 1, 3, "after '@'"},
		{"at end of input", "a @", 1, 3, "end of template"},
		{"unterminated comment", "\n@* never", 2, 1, "unterminated comment"},
		{"missing condition paren", "@if .A {x}", 1, 5, "expected '('"},
		{"nested section", "@foreach (.Items) {@section A {x}}", 1, 20, "cannot be nested"},
		{"duplicate section", "@section A {x}@section A {y}", 1, 15, "already defined"},
		{"unterminated string", `@(printf "abc)`, 1, 10, "unterminated string"},
		{"outer variable in section", "@{ $v := .Title }@section S {@v}", 1, 30, "declared outside section S"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Translate(tt.source, Options{ClassName: "T"})
			if err == nil {
				t.Fatal("expected a syntax error")
			}
			var se *SyntaxError
			if !errors.As(err, &se) {
				t.Fatalf("expected *SyntaxError, got %T: %v", err, err)
			}
			if se.Line != tt.line || se.Column != tt.column {
				t.Errorf("position: got %d:%d, want %d:%d (%v)", se.Line, se.Column, tt.line, tt.column, se)
			}
			if !strings.Contains(se.Msg, tt.msg) {
				t.Errorf("message %q should contain %q", se.Msg, tt.msg)
			}
		})
	}
}

func TestTranslate_RequiresClassName(t *testing.T) {
	if _, err := Translate("x", Options{}); err == nil {
		t.Error("expected error for empty class name")
	}
}

// TestTranslate_Executes checks that generated code parses and renders with
// text/template when the callbacks are provided.
func TestTranslate_Executes(t *testing.T) {
	source := `<h1>@Title</h1>@foreach (var p in .Posts) {<li>@p</li>}@if (.Missing) {never} else {<i>none</i>}`
	res, err := Translate(source, Options{ClassName: "page"})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}

	set, err := template.New("set").Funcs(template.FuncMap{
		"write": func(v any) string {
			if v == nil {
				return ""
			}
			return fmt.Sprint(v)
		},
		"defineSection": func(string, string, any) string { return "" },
	}).Parse(res.Code)
	if err != nil {
		t.Fatalf("Parse: %v\n%s", err, res.Code)
	}

	var out strings.Builder
	data := map[string]any{
		"Title": "News",
		"Posts": []string{"a", "b"},
	}
	if err := set.ExecuteTemplate(&out, "page", data); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	want := "<h1>News</h1><li>a</li><li>b</li><i>none</i>"
	if out.String() != want {
		t.Errorf("output: got %q, want %q", out.String(), want)
	}
}

func TestTranslate_SectionVariables(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{
			name:   "section declares its own variable",
			source: "@section S {@{ $w := .A }@w}",
			want:   `{{define "T:section:S"}}{{$w := .A}}{{write $w}}{{end}}`,
		},
		{
			name:   "section variable does not leak",
			source: "@section S {@{ $w := .A }}@w",
			want:   `{{write .w}}`,
		},
		{
			name:   "loop variable shadows an outer one",
			source: "@{ $p := .X }@section S {@foreach (var p in .Items) {@p}}",
			want:   `{{range $p := .Items}}{{write $p}}{{end}}`,
		},
		{
			name:   "main block keeps its variables",
			source: "@{ $v := .Title }@section S {x}@v",
			want:   `{{write $v}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Translate(tt.source, Options{ClassName: "T"})
			if err != nil {
				t.Fatalf("Translate: %v", err)
			}
			if !strings.Contains(res.Code, tt.want) {
				t.Errorf("code %q should contain %q", res.Code, tt.want)
			}
		})
	}
}

func TestTranslator_UsesCallbacks(t *testing.T) {
	tr := NewTranslator(Callbacks{Write: "emit", DefineSection: "sec"})
	res, err := tr.Translate("@A @section S {x}", "C", nil)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if !strings.Contains(res.Code, "{{emit .A}}") {
		t.Errorf("expected custom write callback in %s", res.Code)
	}
	if !strings.Contains(res.Code, `{{sec "S" "C:section:S" .}}`) {
		t.Errorf("expected custom section callback in %s", res.Code)
	}
}
