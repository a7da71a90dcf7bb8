// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package extract finds links to multimedia items in rendered output,
// collects the binaries they point to and rewrites the links.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/alex-klock/razor-mediator-4-tridion/internal/tcm"
)

// linkRe matches src and href attributes with a quoted value. The value is
// captured by group 2 (double quotes) or group 3 (single quotes).
var linkRe = regexp.MustCompile(`(?i)\b(src|href)\s*=\s*(?:"([^"]*)"|'([^']*)')`)

// Binary is the content of a multimedia item.
type Binary struct {
	URI         string
	Filename    string
	ContentType string
	Data        []byte
}

// Resolver loads the binary behind a tcm URI or /webdav/ path. It returns
// (nil, nil) when ref does not exist or is not a multimedia item.
type Resolver interface {
	ResolveBinary(ctx context.Context, ref string) (*Binary, error)
}

// Publisher makes a binary available and returns the URL to link to.
type Publisher interface {
	PublishBinary(ctx context.Context, b *Binary) (string, error)
}

// Extractor rewrites multimedia links in rendered output.
type Extractor struct {
	resolver  Resolver
	publisher Publisher
}

// New returns an extractor. A nil publisher keeps binaries in the result
// only and rewrites links to the localized item URI.
func New(resolver Resolver, publisher Publisher) *Extractor {
	return &Extractor{resolver: resolver, publisher: publisher}
}

type link struct {
	start, end int // indices of the attribute value
	ref        string
}

// Extract scans html for links to multimedia items, localized to
// publicationID when it is positive. It returns the rewritten output and
// every distinct binary found, in order of first appearance.
func (x *Extractor) Extract(ctx context.Context, html string, publicationID int) (string, []*Binary, error) {
	if x.resolver == nil {
		return html, nil, nil
	}

	matches := linkRe.FindAllStringSubmatchIndex(html, -1)
	if len(matches) == 0 {
		return html, nil, nil
	}

	var links []link
	for _, loc := range matches {
		start, end := loc[4], loc[5]
		if start < 0 {
			start, end = loc[6], loc[7]
		}
		if ref := reference(html[start:end], publicationID); ref != "" {
			links = append(links, link{start: start, end: end, ref: ref})
		}
	}
	if len(links) == 0 {
		return html, nil, nil
	}

	// Resolve and publish each distinct reference once.
	urls := make(map[string]string)
	var binaries []*Binary
	for _, l := range links {
		if _, done := urls[l.ref]; done {
			continue
		}
		b, err := x.resolver.ResolveBinary(ctx, l.ref)
		if err != nil {
			return "", nil, fmt.Errorf("resolve binary %s: %w", l.ref, err)
		}
		if b == nil {
			urls[l.ref] = ""
			continue
		}
		if b.URI == "" {
			b.URI = l.ref
		}

		target := b.URI
		if x.publisher != nil {
			target, err = x.publisher.PublishBinary(ctx, b)
			if err != nil {
				return "", nil, fmt.Errorf("publish binary %s: %w", b.URI, err)
			}
		}
		urls[l.ref] = target
		binaries = append(binaries, b)
		slog.Debug("binary extracted", "ref", l.ref, "filename", b.Filename, "url", target)
	}

	// Build replacement output from back to front so indices stay valid.
	result := html
	for i := len(links) - 1; i >= 0; i-- {
		l := links[i]
		target := urls[l.ref]
		if target == "" {
			continue
		}
		result = result[:l.start] + target + result[l.end:]
	}
	return result, binaries, nil
}

// reference returns the repository reference for a link value, or "" when
// the value does not point into the repository.
func reference(value string, publicationID int) string {
	value = strings.TrimSpace(value)
	if uri, err := tcm.Parse(value); err == nil {
		if publicationID > 0 {
			uri = uri.Localize(publicationID)
		}
		return uri.String()
	}
	if strings.HasPrefix(strings.ToLower(value), "/webdav/") {
		return value
	}
	return ""
}
