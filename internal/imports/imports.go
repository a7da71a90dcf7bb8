// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package imports inlines shared template building blocks into a template
// before it is compiled. Imports come from the mediator configuration
// (optionally per publication) and from @importRazor("path") statements,
// where path is a tcm URI, a /webdav/ path, a path relative to the
// template's own WebDAV location, or a file (file: prefix or a path with
// backslashes).
package imports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/alex-klock/razor-mediator-4-tridion/internal/config"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/tcm"
)

// ErrAdminUserRequired is returned when an import has to be read from the
// repository and no admin user is configured.
var ErrAdminUserRequired = errors.New("mediator adminUser is required to read imported templates")

// Item is an importable template building block.
type Item struct {
	ID        string
	WebDavURL string
	Content   string
}

// Source reads template building blocks from the content repository on
// behalf of user. It returns (nil, nil) when ref does not exist.
type Source interface {
	Lookup(ctx context.Context, user, ref string) (*Item, error)
}

// Sources looks ref up in each source in order and returns the first item
// found. A failing source stops the lookup.
type Sources []Source

func (ss Sources) Lookup(ctx context.Context, user, ref string) (*Item, error) {
	for _, s := range ss {
		item, err := s.Lookup(ctx, user, ref)
		if err != nil || item != nil {
			return item, err
		}
	}
	return nil, nil
}

// Template is the template whose source is being prepared.
type Template struct {
	ID               string
	WebDavURL        string
	PublicationTitle string
	Content          string
}

// Publication returns the template's publication title, derived from its
// WebDAV URL when not set.
func (t Template) Publication() string {
	if t.PublicationTitle != "" {
		return t.PublicationTitle
	}
	return PublicationTitle(t.WebDavURL)
}

// Inliner resolves imports for templates.
type Inliner struct {
	source   Source
	cfg      config.Mediator
	readFile func(string) ([]byte, error)
}

// New returns an inliner reading repository imports from source.
func New(source Source, cfg config.Mediator) *Inliner {
	return &Inliner{source: source, cfg: cfg, readFile: os.ReadFile}
}

// Inline returns t.Content with configured imports prepended and every
// import statement replaced by the imported source. Statements inside
// imported sources are removed rather than followed.
func (in *Inliner) Inline(ctx context.Context, t Template) (string, error) {
	cache := make(map[string]string)
	fetch := func(path string) (string, error) {
		if c, ok := cache[path]; ok {
			return c, nil
		}
		c, err := in.content(ctx, t, path)
		if err != nil {
			return "", err
		}
		cache[path] = c
		return c, nil
	}

	var prefix strings.Builder
	publication := t.Publication()
	for _, imp := range in.cfg.Imports {
		if !imp.AppliesTo(publication) {
			continue
		}
		c, err := fetch(imp.Path)
		if err != nil {
			return "", err
		}
		prefix.WriteString(c)
		prefix.WriteString("\n")
	}
	content := prefix.String() + t.Content

	// Replace from back to front so indices stay valid.
	matches := importRe.FindAllStringSubmatchIndex(content, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		c, err := fetch(content[m[2]:m[3]])
		if err != nil {
			return "", err
		}
		content = content[:m[0]] + c + content[m[1]:]
	}

	return importRe.ReplaceAllString(content, ""), nil
}

// content returns the source of one import.
func (in *Inliner) content(ctx context.Context, t Template, path string) (string, error) {
	if isFilePath(path) {
		data, err := in.readFile(strings.TrimPrefix(path, "file:"))
		if err != nil {
			return "", fmt.Errorf("read import %s: %w", path, err)
		}
		return string(data), nil
	}

	if in.cfg.AdminUser == "" {
		return "", ErrAdminUserRequired
	}
	if in.source == nil {
		slog.Warn("import skipped, no template source configured", "path", path)
		return "", nil
	}

	ref := path
	if !isRepositoryPath(path) {
		ref = RelativePath(t.WebDavURL, path)
	}

	item, err := in.source.Lookup(ctx, in.cfg.AdminUser, ref)
	if err != nil {
		slog.Warn("import lookup failed", "path", ref, "error", err)
		return "", nil
	}
	if item == nil {
		slog.Warn("import not found", "path", ref)
		return "", nil
	}

	self, selfErr := tcm.Parse(t.ID)
	itemURI, itemErr := tcm.Parse(item.ID)
	if selfErr == nil && itemErr == nil && itemURI.PublicationID != self.PublicationID {
		// Prefer the copy of the import in the template's own publication.
		localRef := itemURI.Localize(self.PublicationID).String()
		local, err := in.source.Lookup(ctx, in.cfg.AdminUser, localRef)
		switch {
		case err != nil:
			slog.Warn("local copy of import failed", "import", item.ID, "publication", self.PublicationID, "error", err)
		case local != nil:
			item = local
			itemURI, itemErr = tcm.Parse(item.ID)
		}
	}

	if item.ID == t.ID || (selfErr == nil && itemErr == nil && itemURI.SameItem(self)) {
		return "", nil
	}
	return item.Content, nil
}

// References lists the imports of t as repository paths so the host can
// record them as template dependencies.
func (in *Inliner) References(t Template) []string {
	var refs []string
	seen := make(map[string]bool)
	add := func(path string) {
		if isFilePath(path) {
			return
		}
		ref := in.localize(t, path)
		if ref == "" || seen[ref] {
			return
		}
		seen[ref] = true
		refs = append(refs, ref)
	}

	if in.cfg.ImportSettings.IncludeConfigWhereUsed {
		publication := t.Publication()
		for _, imp := range in.cfg.Imports {
			if imp.AppliesTo(publication) {
				add(imp.Path)
			}
		}
	}
	if in.cfg.ImportSettings.IncludeImportWhereUsed {
		for _, m := range importRe.FindAllStringSubmatch(t.Content, -1) {
			add(m[1])
		}
	}
	return refs
}

// localize rewrites an import path into the template's publication.
func (in *Inliner) localize(t Template, path string) string {
	lower := strings.ToLower(path)
	switch {
	case strings.HasPrefix(lower, "/webdav/"):
		parts := strings.Split(path, "/")
		own := strings.Split(t.WebDavURL, "/")
		if len(parts) > 2 && len(own) > 2 {
			parts[2] = own[2]
		}
		return strings.Join(parts, "/")
	case strings.HasPrefix(lower, "tcm:"):
		uri, err := tcm.Parse(path)
		if err != nil {
			return ""
		}
		if self, err := tcm.Parse(t.ID); err == nil {
			uri = uri.Localize(self.PublicationID)
		}
		return uri.String()
	default:
		return RelativePath(t.WebDavURL, path)
	}
}

// RewriteRelativePaths returns t.Content with relative import statements
// rewritten to absolute WebDAV paths when the setting is enabled.
func (in *Inliner) RewriteRelativePaths(t Template) string {
	if !in.cfg.ImportSettings.ReplaceRelativePaths {
		return t.Content
	}
	return importRe.ReplaceAllStringFunc(t.Content, func(stmt string) string {
		path := importRe.FindStringSubmatch(stmt)[1]
		if isFilePath(path) || isRepositoryPath(path) {
			return stmt
		}
		return `@importRazor("` + RelativePath(t.WebDavURL, path) + `")`
	})
}

// RelativePath resolves path against the folder of the template at
// webDavURL.
func RelativePath(webDavURL, path string) string {
	parts := strings.Split(webDavURL, "/")
	if len(parts) > 0 {
		parts = parts[:len(parts)-1]
	}

	segments := strings.Split(path, "/")
	if len(segments) == 1 {
		return strings.Join(append(parts, path), "/")
	}
	for _, seg := range segments {
		switch {
		case strings.TrimSpace(seg) == "" || seg == ".":
		case seg == "..":
			if len(parts) > 0 {
				parts = parts[:len(parts)-1]
			}
		default:
			parts = append(parts, seg)
		}
	}
	return strings.Join(parts, "/")
}

// PublicationTitle returns the publication segment of a WebDAV URL.
func PublicationTitle(webDavURL string) string {
	parts := strings.Split(webDavURL, "/")
	if len(parts) < 3 {
		return ""
	}
	title, err := url.PathUnescape(parts[2])
	if err != nil {
		return parts[2]
	}
	return title
}

// Statements lists the paths of the import statements in content.
func Statements(content string) []string {
	var paths []string
	for _, m := range importRe.FindAllStringSubmatch(content, -1) {
		paths = append(paths, m[1])
	}
	return paths
}

func isFilePath(path string) bool {
	return strings.Contains(path, `\`) || strings.HasPrefix(path, "file:")
}

func isRepositoryPath(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasPrefix(lower, "tcm:") || strings.HasPrefix(lower, "/webdav/")
}
