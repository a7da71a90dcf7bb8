// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// run executes the root command with args and returns its output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("APP_ENV", "testing")
	t.Setenv("RAZOR_CONFIG_FILE", "")

	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// ----- render -----

func TestRenderCommand(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Site/Shared/Footer.cshtml", "<footer>@Year</footer>")
	file := writeFile(t, dir, "Site/Templates/Article.cshtml",
		`<h1>@Title</h1>@foreach (var tag in .Tags) {<i>@tag</i>}@importRazor("../Shared/Footer.cshtml")`)
	data := writeFile(t, dir, "data.yaml", "Title: News\nYear: 2026\nTags:\n  - a\n  - b\n")

	out, err := run(t, "render", file, "--root", dir, "--data", data, "--admin-user", "local", "--log-level", "error")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	want := "<h1>News</h1><i>a</i><i>b</i><footer>2026</footer>\n"
	if out != want {
		t.Errorf("output:\n got: %q\nwant: %q", out, want)
	}
}

func TestRenderCommand_Errors(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "a.cshtml", "@Title")
	broken := writeFile(t, dir, "broken.cshtml", "@if (.A) {")
	badData := writeFile(t, dir, "bad.yaml", "Title: [")

	tests := []struct {
		name string
		args []string
	}{
		{"missing file argument", []string{"render"}},
		{"bad kind", []string{"render", file, "--root", dir, "--kind", "schema"}},
		{"bad data", []string{"render", file, "--root", dir, "--data", badData}},
		{"missing data", []string{"render", file, "--root", dir, "--data", filepath.Join(dir, "none.yaml")}},
		{"outside root", []string{"render", file, "--root", filepath.Join(dir, "sub")}},
		{"compile error", []string{"render", broken, "--root", dir}},
		{"bad log level", []string{"render", file, "--root", dir, "--log-level", "loud"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.name == "outside root" {
				if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
					t.Fatal(err)
				}
			}
			if _, err := run(t, tt.args...); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

// ----- check -----

func TestCheckCommand(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.cshtml", "<p>@Title</p>")
	bad := writeFile(t, dir, "bad.cshtml", "ok\n@(.A")

	out, err := run(t, "check", good, "--root", dir, "--log-level", "error")
	if err != nil {
		t.Fatalf("check good: %v", err)
	}
	if !strings.HasPrefix(out, "ok   ") {
		t.Errorf("output: %q", out)
	}

	out, err = run(t, "check", good, bad, "--root", dir, "--log-level", "error")
	if err == nil || !strings.Contains(err.Error(), "1 of 2") {
		t.Fatalf("expected 1 of 2 failures, got %v", err)
	}
	if !strings.Contains(out, "FAIL "+bad) || !strings.Contains(out, "RZR1001") {
		t.Errorf("output should name the failing file and diagnostic:\n%s", out)
	}
}

// ----- logging -----

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "WARN", "error"} {
		if _, err := newLogger(&bytes.Buffer{}, level); err != nil {
			t.Errorf("%s: %v", level, err)
		}
	}
	if _, err := newLogger(&bytes.Buffer{}, "verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}
