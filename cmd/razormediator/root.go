// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/alex-klock/razor-mediator-4-tridion/internal/config"
)

// globalOptions are the flags shared by every command.
type globalOptions struct {
	configFile string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "razormediator",
		Short: "Compile and render Razor-style templates",
		Long: `razormediator compiles Razor-style templates into cached render units
and renders them with package data.

Configuration comes from the environment, with the mediator section
optionally read from a YAML file (--config or RAZOR_CONFIG_FILE).

Examples:
  razormediator serve --templates-dir ./templates
  razormediator render templates/Article.cshtml --kind ct --data article.yaml
  razormediator check templates/*.cshtml
  razormediator migrate`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.configFile, "config", os.Getenv("RAZOR_CONFIG_FILE"), "YAML file with the mediator section")
	root.PersistentFlags().StringVarP(&opts.logLevel, "log-level", "l", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")

	root.AddCommand(
		newServeCmd(opts),
		newRenderCmd(opts),
		newCheckCmd(opts),
		newMigrateCmd(opts),
	)
	return root
}

// load reads the configuration and installs the default logger.
func (o *globalOptions) load(w io.Writer) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configFile != "" {
		cfg, err = config.LoadFile(o.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if o.logLevel != "" {
		level = o.logLevel
	}
	logger, err := newLogger(w, level)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cfg, nil
}

// newLogger returns a text logger writing to w at the named level.
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}
