// Package cli implements the formbuilder command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-formbuilder/internal/config"
	"github.com/goliatone/go-formbuilder/internal/logging"
	"github.com/goliatone/go-formbuilder/pkg/derived"
	"github.com/goliatone/go-formbuilder/pkg/formfile"
	"github.com/goliatone/go-formbuilder/pkg/model"
	"github.com/goliatone/go-formbuilder/pkg/renderers/tui"
	"github.com/goliatone/go-formbuilder/pkg/store"
)

// app carries the state shared by every command of one invocation.
type app struct {
	configPath string
	backend    string
	storePath  string
	logLevel   string
	logFormat  string

	cfg    config.Config
	logger *slog.Logger
	store  store.Store

	stdout io.Writer
	stderr io.Writer

	// promptDriver replaces the survey driver in tests.
	promptDriver tui.PromptDriver
}

// Execute runs the command tree against os.Args and returns the exit code.
func Execute() int {
	cmd := NewRootCommand(os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// NewRootCommand builds the command tree writing to the given streams.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	return newRootCommand(&app{stdout: stdout, stderr: stderr})
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "formbuilder",
		Short: "Manage, preview and evaluate form definitions",
		Long: `formbuilder manages form definitions with derived fields.

Forms live in a store (a JSON document or a sqlite database). Commands that
take a form accept either a stored form id or a path to a JSON/YAML file.

Examples:
  formbuilder forms import ./forms
  formbuilder preview intake --output pretty
  formbuilder eval order.yaml --values values.json
  formbuilder export intake > intake.openapi.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.setup()
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default $"+config.EnvPath+" or the user config dir)")
	flags.StringVar(&a.backend, "store", "", "store backend: file or sqlite")
	flags.StringVar(&a.storePath, "store-path", "", "store file, database or directory")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(
		newFormsCommand(a),
		newPreviewCommand(a),
		newRenderCommand(a),
		newEvalCommand(a),
		newExportCommand(a),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.backend != "" {
		cfg.Store.Backend = a.backend
	}
	if a.storePath != "" {
		cfg.Store.Path = a.storePath
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.New(a.stderr, logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	a.logger = logger
	return nil
}

// openStore opens the configured store on first use.
func (a *app) openStore(ctx context.Context) (store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	s, err := store.Open(ctx, a.cfg.Store.Backend, a.cfg.Store.Path, store.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	a.logger.Debug("store opened",
		slog.String("backend", a.cfg.Store.Backend),
		slog.String("path", a.cfg.Store.Path),
	)
	a.store = s
	return s, nil
}

func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

// resolveForm loads ref as a form file when it names one, otherwise from the
// store. stored reports whether the form came from the store.
func (a *app) resolveForm(ctx context.Context, ref string) (form model.FormDefinition, stored bool, err error) {
	if formfile.IsFormFile(ref) {
		if _, statErr := os.Stat(ref); statErr == nil {
			form, err = formfile.Load(ref)
			return form, false, err
		}
	}
	s, err := a.openStore(ctx)
	if err != nil {
		return model.FormDefinition{}, false, err
	}
	form, err = s.Get(ctx, ref)
	if errors.Is(err, store.ErrNotFound) && filepath.Ext(ref) != "" {
		return model.FormDefinition{}, false, fmt.Errorf("no stored form or readable file named %q", ref)
	}
	return form, err == nil, err
}

func (a *app) engineOptions() []derived.Option {
	opts := []derived.Option{derived.WithLogger(a.logger)}
	if a.cfg.Preview.AllowChains {
		opts = append(opts, derived.WithChains())
	}
	return opts
}
