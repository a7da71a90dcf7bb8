// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package engine

import (
	"fmt"
	"strings"
)

// Kind is the template type tag half of an Identity.
type Kind string

const (
	KindComponentTemplate     Kind = "ComponentTemplate"
	KindPageTemplate          Kind = "PageTemplate"
	KindTemplateBuildingBlock Kind = "TemplateBuildingBlock"
)

// Valid reports whether k is one of the known template kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindComponentTemplate, KindPageTemplate, KindTemplateBuildingBlock:
		return true
	}
	return false
}

// ParseKind accepts the full kind name (any case) or its short form:
// "ct", "pt" or "tbb".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "componenttemplate", "component", "ct":
		return KindComponentTemplate, nil
	case "pagetemplate", "page", "pt":
		return KindPageTemplate, nil
	case "templatebuildingblock", "tbb":
		return KindTemplateBuildingBlock, nil
	}
	return "", fmt.Errorf("unknown template kind %q", s)
}

// Identity addresses one cache slot. It is comparable and used directly
// as a map key; source text and generated type names are never part of it.
type Identity struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

// NewIdentity builds an Identity from its parts.
func NewIdentity(kind Kind, id string) Identity {
	return Identity{Kind: kind, ID: id}
}

// IsZero reports whether the identity has no ID.
func (i Identity) IsZero() bool {
	return i.ID == ""
}

func (i Identity) String() string {
	return "RzrTmpl::" + string(i.Kind) + "-" + i.ID
}
