// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package tcm

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    URI
		str     string
		wantErr bool
	}{
		{in: "tcm:5-100", want: URI{5, 100, TypeComponent, 0}, str: "tcm:5-100"},
		{in: "tcm:5-100-2048", want: URI{5, 100, TypeTemplateBuildingBlock, 0}, str: "tcm:5-100-2048"},
		{in: "TCM:5-100-32-v3", want: URI{5, 100, TypeComponentTemplate, 3}, str: "tcm:5-100-32-v3"},
		{in: "tcm:5-100-v2", want: URI{5, 100, TypeComponent, 2}, str: "tcm:5-100-v2"},
		{in: "tcm:5", wantErr: true},
		{in: "/webdav/Site/a.cshtml", wantErr: true},
		{in: "tcm:a-b", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
			if got.String() != tt.str {
				t.Errorf("String: got %q, want %q", got.String(), tt.str)
			}
		})
	}
}

func TestLocalizeAndSameItem(t *testing.T) {
	u, _ := Parse("tcm:3-120-2048-v4")
	local := u.Localize(7)
	if local.String() != "tcm:7-120-2048-v4" {
		t.Errorf("Localize: got %s", local)
	}
	other, _ := Parse("tcm:3-120-2048")
	if !u.SameItem(other) {
		t.Error("versions should be ignored")
	}
	if u.SameItem(local) {
		t.Error("different publications address different items")
	}
	if !IsValid("tcm:1-2") || IsValid("nope") {
		t.Error("IsValid mismatch")
	}
}
