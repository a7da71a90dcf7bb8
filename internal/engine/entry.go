// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package engine

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entry is the cached record for one Identity: the registered source, its
// timestamps and, once compiled, the artifact that holds its unit type.
// Source, Namespaces and TypeName never change after the entry is created;
// a newer registration replaces the whole entry.
type Entry struct {
	Identity         Identity
	Source           string
	SourceModified   time.Time
	CompiledModified time.Time
	Namespaces       []string
	TypeName         string
	Artifact         *Artifact
}

func newEntry(id Identity, source string, namespaces []string, modified time.Time) *Entry {
	return &Entry{
		Identity:       id,
		Source:         source,
		SourceModified: modified,
		Namespaces:     append([]string(nil), namespaces...),
		TypeName:       generatedTypeName(),
	}
}

// generatedTypeName returns a fresh unit type name. Names are unique per
// entry so several templates can share one compiled set.
func generatedTypeName() string {
	return "Rzr" + strings.ReplaceAll(uuid.NewString(), "-", "") + "Template"
}

// Is reports whether e and other address the same slot.
func (e *Entry) Is(other *Entry) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.Identity == other.Identity
}

// Compiled reports whether the entry has an artifact.
func (e *Entry) Compiled() bool {
	return e.Artifact != nil
}

// Stale reports whether a compiled entry predates its own source.
func (e *Entry) Stale() bool {
	return e.Artifact != nil && e.CompiledModified.Before(e.SourceModified)
}

// EntryInfo is a read-only view of an Entry for listings.
type EntryInfo struct {
	Identity         Identity  `json:"identity"`
	TypeName         string    `json:"type_name"`
	Namespaces       []string  `json:"namespaces,omitempty"`
	SourceModified   time.Time `json:"source_modified"`
	CompiledModified time.Time `json:"compiled_modified,omitempty"`
	Compiled         bool      `json:"compiled"`
	ArtifactID       string    `json:"artifact_id,omitempty"`
}

func (e *Entry) info() EntryInfo {
	info := EntryInfo{
		Identity:         e.Identity,
		TypeName:         e.TypeName,
		Namespaces:       append([]string(nil), e.Namespaces...),
		SourceModified:   e.SourceModified,
		CompiledModified: e.CompiledModified,
		Compiled:         e.Artifact != nil,
	}
	if e.Artifact != nil {
		info.ArtifactID = e.Artifact.ID
	}
	return info
}
