// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package filesource serves templates from a directory. Each file is
// addressed by its slash-separated path relative to the root and exposed
// under a /webdav/ URL, so imports between files resolve the same way as
// between repository items. Watch reports changed files so their compiled
// entries can be evicted.
package filesource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/alex-klock/razor-mediator-4-tridion/internal/engine"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/imports"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/mediator"
)

const webdavPrefix = "/webdav/"

// ErrOutsideRoot is returned for paths that leave the template directory.
var ErrOutsideRoot = errors.New("path is outside the template directory")

// Source reads templates below a root directory.
type Source struct {
	root string
}

// New returns a source rooted at dir.
func New(dir string) (*Source, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("template dir %s: %w", dir, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("template dir %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("template dir %s is not a directory", dir)
	}
	return &Source{root: root}, nil
}

// Root returns the absolute root directory.
func (s *Source) Root() string {
	return s.root
}

// Rel returns the slash-separated path of file relative to the root.
func (s *Source) Rel(file string) (string, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", file, ErrOutsideRoot)
	}
	return filepath.ToSlash(rel), nil
}

// path returns the file for a slash-separated relative name.
func (s *Source) path(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(name, "/")))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", fmt.Errorf("%s: %w", name, ErrOutsideRoot)
	}
	return filepath.Join(s.root, clean), nil
}

// WebDavURL returns the /webdav/ URL of a relative name.
func WebDavURL(name string) string {
	parts := strings.Split(strings.Trim(name, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return webdavPrefix + strings.Join(parts, "/")
}

// nameFromWebDav is the inverse of WebDavURL.
func nameFromWebDav(u string) (string, bool) {
	if !strings.HasPrefix(strings.ToLower(u), webdavPrefix) {
		return "", false
	}
	parts := strings.Split(u[len(webdavPrefix):], "/")
	for i, p := range parts {
		dec, err := url.PathUnescape(p)
		if err != nil {
			return "", false
		}
		parts[i] = dec
	}
	return strings.Join(parts, "/"), true
}

// Template loads the template at the relative name. The file's
// modification time is the revision date.
func (s *Source) Template(kind engine.Kind, name string) (mediator.Template, error) {
	name = filepath.ToSlash(strings.TrimPrefix(name, "/"))
	file, err := s.path(name)
	if err != nil {
		return mediator.Template{}, err
	}
	info, err := os.Stat(file)
	if err != nil {
		return mediator.Template{}, fmt.Errorf("template %s: %w", name, err)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return mediator.Template{}, fmt.Errorf("template %s: %w", name, err)
	}

	content := string(data)
	webdav := WebDavURL(name)
	return mediator.Template{
		Identity:     engine.NewIdentity(kind, name),
		URI:          webdav,
		Content:      &content,
		RevisionDate: info.ModTime(),
		WebDavURL:    webdav,
	}, nil
}

// Lookup implements imports.Source for /webdav/ references below the root.
// Other references are not found.
func (s *Source) Lookup(_ context.Context, _ string, ref string) (*imports.Item, error) {
	name, ok := nameFromWebDav(ref)
	if !ok {
		return nil, nil
	}
	file, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(file)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return &imports.Item{ID: WebDavURL(name), WebDavURL: WebDavURL(name), Content: string(data)}, nil
}

// Has reports whether name is a file below the root.
func (s *Source) Has(name string) bool {
	file, err := s.path(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(file)
	return err == nil && !info.IsDir()
}

// Evictor returns a Watch callback for h. A changed file may be imported
// by any other template of the directory, so every cached template loaded
// from the directory is evicted along with the changed one.
func (s *Source) Evictor(h *mediator.Handler) func(name string) {
	return func(name string) {
		evicted := 0
		for _, e := range h.Entries() {
			if e.Identity.ID == name || s.Has(e.Identity.ID) {
				if h.Evict(e.Identity) {
					evicted++
				}
			}
		}
		if evicted > 0 {
			slog.Info("templates evicted after file change", "name", name, "count", evicted)
		}
	}
}

// Watch calls onChange with the relative name of every file created,
// written, removed or renamed below the root until ctx is done. New
// directories are watched as they appear.
func (s *Source) Watch(ctx context.Context, onChange func(name string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch %s: %w", s.root, err)
	}
	defer w.Close()

	if err := s.addRecursive(w, s.root); err != nil {
		return err
	}
	slog.Info("watching templates", "dir", s.root)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := s.addRecursive(w, event.Name); err != nil {
						slog.Warn("watch new directory failed", "dir", event.Name, "error", err)
					}
					continue
				}
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			name, err := s.Rel(event.Name)
			if err != nil {
				continue
			}
			slog.Debug("template file changed", "name", name, "op", event.Op.String())
			onChange(name)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("template watcher error", "error", err)
		}
	}
}

func (s *Source) addRecursive(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
