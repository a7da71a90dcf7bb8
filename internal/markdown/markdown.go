// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package markdown converts Markdown fields of content items into HTML for
// templates using goldmark. Rich-text fields often mix Markdown and raw
// HTML, so ToHTML passes raw HTML through; ToSafeHTML drops it.
package markdown

import (
	"bytes"

	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
)

func newConverter(unsafe bool) goldmark.Markdown {
	var rendererOpts []renderer.Option
	if unsafe {
		rendererOpts = append(rendererOpts, html.WithUnsafe())
	}
	return goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Typographer,
			highlighting.NewHighlighting(
				highlighting.WithStyle("monokai"),
				highlighting.WithFormatOptions(),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			rendererOpts...,
		),
	)
}

var (
	unsafeMD = newConverter(true)
	safeMD   = newConverter(false)
)

// ToHTML converts Markdown into HTML, passing embedded raw HTML through.
func ToHTML(source string) (string, error) {
	return convert(unsafeMD, source)
}

// ToSafeHTML converts Markdown into HTML and omits embedded raw HTML.
func ToSafeHTML(source string) (string, error) {
	return convert(safeMD, source)
}

func convert(md goldmark.Markdown, source string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
