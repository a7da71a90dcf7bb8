// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/alex-klock/razor-mediator-4-tridion/internal/config"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/engine"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/filesource"
	"github.com/alex-klock/razor-mediator-4-tridion/internal/mediator"
)

// localOptions are the flags of the commands working on template files.
type localOptions struct {
	kind      string
	root      string
	adminUser string
}

func (o *localOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.kind, "kind", "k", "ct", "template kind (ct, pt, tbb)")
	cmd.Flags().StringVar(&o.root, "root", ".", "template directory; /webdav/ imports resolve below it")
	cmd.Flags().StringVar(&o.adminUser, "admin-user", "", "user imports are read as; overrides the mediator adminUser")
}

// localMediator returns a mediator reading templates and imports from the
// template directory. Binary extraction is off: there is no binary store.
func (o *localOptions) localMediator(cfg *config.Config) (*filesource.Source, *mediator.Mediator, error) {
	src, err := filesource.New(o.root)
	if err != nil {
		return nil, nil, err
	}

	mcfg := cfg.Mediator
	mcfg.ExtractBinaries = false
	if o.adminUser != "" {
		mcfg.AdminUser = o.adminUser
	}

	m, err := mediator.New(mediator.Dependencies{Source: src, Logger: slog.Default()})
	if err != nil {
		return nil, nil, err
	}
	if err := m.Configure(mcfg); err != nil {
		return nil, nil, err
	}
	return src, m, nil
}

// template loads file as a template of the configured kind.
func (o *localOptions) template(src *filesource.Source, file string) (mediator.Template, error) {
	kind, err := engine.ParseKind(o.kind)
	if err != nil {
		return mediator.Template{}, err
	}
	name, err := src.Rel(file)
	if err != nil {
		return mediator.Template{}, err
	}
	return src.Template(kind, name)
}

// readData reads the YAML package data of a render. An empty path is no
// data.
func readData(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read data %s: %w", path, err)
	}
	var data map[string]any
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse data %s: %w", path, err)
	}
	return data, nil
}

func newRenderCmd(g *globalOptions) *cobra.Command {
	o := &localOptions{}
	var dataFile, renderMode string

	cmd := &cobra.Command{
		Use:   "render FILE",
		Short: "Render one template file",
		Long: `Render one template file with package data read from a YAML file and
print the output.

Examples:
  razormediator render Article.cshtml --data article.yaml
  razormediator render pages/Home.cshtml --kind pt --root ./templates`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			data, err := readData(dataFile)
			if err != nil {
				return err
			}
			src, m, err := o.localMediator(cfg)
			if err != nil {
				return err
			}
			tmpl, err := o.template(src, args[0])
			if err != nil {
				return err
			}
			tmpl.RenderMode = renderMode

			out, err := m.Transform(cmd.Context(), tmpl, mediator.NewMapPackage(data))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	o.register(cmd)
	cmd.Flags().StringVarP(&dataFile, "data", "d", "", "YAML file with the package data")
	cmd.Flags().StringVar(&renderMode, "render-mode", "", "render mode templates read with renderMode (publish, preview)")
	return cmd
}

func newCheckCmd(g *globalOptions) *cobra.Command {
	o := &localOptions{}

	cmd := &cobra.Command{
		Use:   "check FILE...",
		Short: "Compile template files without rendering them",
		Long: `Compile each template file and report its diagnostics. The command
fails when any template does not compile.

Examples:
  razormediator check Article.cshtml
  razormediator check --root ./templates templates/pages/*.cshtml --kind pt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			src, m, err := o.localMediator(cfg)
			if err != nil {
				return err
			}
			return check(cmd.Context(), cmd, o, src, m, args)
		},
	}
	o.register(cmd)
	return cmd
}

func check(ctx context.Context, cmd *cobra.Command, o *localOptions, src *filesource.Source, m *mediator.Mediator, files []string) error {
	out := cmd.OutOrStdout()
	failed := 0
	for _, file := range files {
		tmpl, err := o.template(src, file)
		if err == nil {
			err = m.Validate(ctx, tmpl)
		}
		if err != nil {
			failed++
			fmt.Fprintf(out, "FAIL %s\n%v\n", file, err)
			continue
		}
		fmt.Fprintf(out, "ok   %s\n", file)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d templates failed to compile", failed, len(files))
	}
	return nil
}
