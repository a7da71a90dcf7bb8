// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package tcm parses and rewrites content-manager URIs of the form
// tcm:<publication>-<item>[-<type>][-v<version>].
package tcm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Item types used by the mediator.
const (
	TypePublication           = 1
	TypeComponent             = 16
	TypeComponentTemplate     = 32
	TypePageTemplate          = 128
	TypeTemplateBuildingBlock = 2048
)

var uriRe = regexp.MustCompile(`^tcm:(\d+)-(\d+)(?:-(\d+))?(?:-v(\d+))?$`)

// URI identifies one repository item. ItemType defaults to TypeComponent.
type URI struct {
	PublicationID int
	ItemID        int
	ItemType      int
	Version       int // 0 means versionless
}

// Parse reads a URI, case-insensitively on the scheme.
func Parse(s string) (URI, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 4 && strings.EqualFold(s[:4], "tcm:") {
		s = "tcm:" + s[4:]
	}
	m := uriRe.FindStringSubmatch(s)
	if m == nil {
		return URI{}, fmt.Errorf("invalid tcm uri %q", s)
	}
	u := URI{ItemType: TypeComponent}
	u.PublicationID, _ = strconv.Atoi(m[1])
	u.ItemID, _ = strconv.Atoi(m[2])
	if m[3] != "" {
		u.ItemType, _ = strconv.Atoi(m[3])
	}
	if m[4] != "" {
		u.Version, _ = strconv.Atoi(m[4])
	}
	return u, nil
}

// IsValid reports whether s is a well-formed URI.
func IsValid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

func (u URI) String() string {
	s := fmt.Sprintf("tcm:%d-%d", u.PublicationID, u.ItemID)
	if u.ItemType != TypeComponent && u.ItemType != 0 {
		s += "-" + strconv.Itoa(u.ItemType)
	}
	if u.Version > 0 {
		s += "-v" + strconv.Itoa(u.Version)
	}
	return s
}

// Versionless drops the version part.
func (u URI) Versionless() URI {
	u.Version = 0
	return u
}

// Localize returns the same item addressed in another publication.
func (u URI) Localize(publicationID int) URI {
	u.PublicationID = publicationID
	return u
}

// SameItem reports whether u and other address the same item, ignoring
// versions.
func (u URI) SameItem(other URI) bool {
	return u.Versionless() == other.Versionless()
}
