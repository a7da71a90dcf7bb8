// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"context"
	"errors"
	"io/fs"

	"github.com/alex-klock/razor-mediator-4-tridion/internal/engine"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/filesource"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/imports"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/mediator"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/models"
)

// ErrTemplateNotFound is returned by a Loader that has no such template.
var ErrTemplateNotFound = errors.New("template not found")

// Loader loads a template to render.
type Loader interface {
	Load(ctx context.Context, kind engine.Kind, id string) (mediator.Template, error)
}

// TemplateFinder finds stored templates. *store.TemplateStore implements it.
type TemplateFinder interface {
	FindByRef(kind engine.Kind, ref string) (*models.Template, error)
}

// StoreLoader loads templates from the database.
type StoreLoader struct {
	finder TemplateFinder
}

// NewStoreLoader creates a loader over stored templates.
func NewStoreLoader(finder TemplateFinder) *StoreLoader {
	return &StoreLoader{finder: finder}
}

func (l *StoreLoader) Load(_ context.Context, kind engine.Kind, id string) (mediator.Template, error) {
	t, err := l.finder.FindByRef(kind, id)
	if err != nil {
		return mediator.Template{}, err
	}
	if t == nil {
		return mediator.Template{}, ErrTemplateNotFound
	}
	return FromModel(t), nil
}

// DirLoader loads templates from a template directory.
type DirLoader struct {
	src *filesource.Source
}

// NewDirLoader creates a loader over a template directory.
func NewDirLoader(src *filesource.Source) *DirLoader {
	return &DirLoader{src: src}
}

func (l *DirLoader) Load(_ context.Context, kind engine.Kind, id string) (mediator.Template, error) {
	t, err := l.src.Template(kind, id)
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, filesource.ErrOutsideRoot) {
		return mediator.Template{}, ErrTemplateNotFound
	}
	return t, err
}

// Loaders tries each loader in order and returns the first template found.
type Loaders []Loader

func (ls Loaders) Load(ctx context.Context, kind engine.Kind, id string) (mediator.Template, error) {
	for _, l := range ls {
		t, err := l.Load(ctx, kind, id)
		if errors.Is(err, ErrTemplateNotFound) {
			continue
		}
		return t, err
	}
	return mediator.Template{}, ErrTemplateNotFound
}

// FromModel converts a stored template into a render template. The stored
// reference is the template URI so self-imports are recognized.
func FromModel(t *models.Template) mediator.Template {
	content := t.Content
	publication := t.Publication
	if publication == "" {
		publication = imports.PublicationTitle(t.WebDavURL)
	}
	return mediator.Template{
		Identity:         t.Identity(),
		URI:              t.Ref,
		Content:          &content,
		RevisionDate:     t.UpdatedAt,
		WebDavURL:        t.WebDavURL,
		PublicationTitle: publication,
	}
}
