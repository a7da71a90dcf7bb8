// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package database

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// seedTemplates are installed into an empty templates table so a fresh
// development setup has something to render.
var seedTemplates = []struct {
	kind, ref, webdav, title, content string
}{
	{
		kind:    "TemplateBuildingBlock",
		ref:     "tcm:1-1-2048",
		webdav:  "/webdav/Example/Building%20Blocks/Templates/Helpers.cshtml",
		title:   "Helpers",
		content: "@section Head {<title>@Title</title>}",
	},
	{
		kind:    "ComponentTemplate",
		ref:     "tcm:1-2-32",
		webdav:  "/webdav/Example/Building%20Blocks/Templates/Article.cshtml",
		title:   "Article",
		content: "@importRazor(\"Helpers.cshtml\")\n<article>\n  <h1>@Title</h1>\n  @if (.Summary) {<p>@Summary</p>}\n</article>",
	},
}

// Seed populates an empty database with example templates.
func Seed(db *sql.DB) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM templates").Scan(&count); err != nil {
		return fmt.Errorf("seed check templates: %w", err)
	}

	if count > 0 {
		slog.Info("database already seeded, skipping")
		return nil
	}

	for _, t := range seedTemplates {
		_, err := db.Exec(`
			INSERT INTO templates (kind, ref, webdav_url, publication, title, content)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (kind, ref) DO NOTHING
		`, t.kind, t.ref, t.webdav, "Example", t.title, t.content)
		if err != nil {
			return fmt.Errorf("seed insert %s: %w", t.ref, err)
		}
	}

	slog.Info("database seeded with example templates", "count", len(seedTemplates))
	return nil
}
