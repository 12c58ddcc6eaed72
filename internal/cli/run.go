package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	formbuilder "github.com/goliatone/go-formbuilder"
	"github.com/goliatone/go-formbuilder/pkg/export"
	"github.com/goliatone/go-formbuilder/pkg/model"
	"github.com/goliatone/go-formbuilder/pkg/preview"
	"github.com/goliatone/go-formbuilder/pkg/render"
	"github.com/goliatone/go-formbuilder/pkg/renderers/html"
	"github.com/goliatone/go-formbuilder/pkg/renderers/tui"
)

// renderFlags configures the renderers shared by preview and render.
type renderFlags struct {
	renderer     string
	output       string
	noSave       bool
	maxAttempts  int
	outPath      string
	action       string
	method       string
	title        string
	valuesPath   string
	templatesDir string
	hidden       map[string]string
}

func newPreviewCommand(a *app) *cobra.Command {
	flags := &renderFlags{}
	cmd := &cobra.Command{
		Use:   "preview <id|file>",
		Short: "Fill in a form interactively in the terminal",
		Long: `Preview prompts for every editable field, prints derived values as they are
recomputed and writes the submitted values to stdout. Submissions of stored
forms are saved unless --no-save is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRenderer(cmd, args[0], flags)
		},
	}
	cmd.Flags().StringVar(&flags.renderer, "renderer", "tui", "renderer to use: tui or html")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "output format: json, form or pretty (default from config)")
	cmd.Flags().BoolVar(&flags.noSave, "no-save", false, "do not store the submission")
	cmd.Flags().IntVar(&flags.maxAttempts, "max-attempts", 0, "give up after this many invalid answers per field (0 for unlimited)")
	cmd.Flags().StringVar(&flags.valuesPath, "values", "", "JSON file with initial values")
	return cmd
}

func newRenderCommand(a *app) *cobra.Command {
	flags := &renderFlags{noSave: true}
	cmd := &cobra.Command{
		Use:   "render <id|file>",
		Short: "Render a form as static HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRenderer(cmd, args[0], flags)
		},
	}
	cmd.Flags().StringVar(&flags.renderer, "renderer", "html", "renderer to use: html or tui")
	cmd.Flags().StringVar(&flags.outPath, "out", "", "write the output to this file instead of stdout")
	cmd.Flags().StringVar(&flags.action, "action", "", "form action URL")
	cmd.Flags().StringVar(&flags.method, "method", "", "form method (default POST)")
	cmd.Flags().StringVar(&flags.title, "title", "", "heading to use instead of the form name")
	cmd.Flags().StringVar(&flags.valuesPath, "values", "", "JSON file with initial values")
	cmd.Flags().StringVar(&flags.templatesDir, "templates", "", "directory overriding the built-in templates")
	cmd.Flags().StringToStringVar(&flags.hidden, "hidden", nil, "extra hidden input as name=value (repeatable)")
	return cmd
}

// renderers builds the registry of every renderer the CLI can drive.
func (a *app) renderers(cmd *cobra.Command, flags *renderFlags) (*render.Registry, error) {
	output := flags.output
	if output == "" {
		output = a.cfg.Preview.Output
	}
	term, err := tui.New(
		tui.WithOutput(cmd.ErrOrStderr()),
		tui.WithOutputFormat(tui.ParseOutputFormat(output)),
		tui.WithPromptDriver(a.promptDriver),
		tui.WithMaxAttempts(flags.maxAttempts),
	)
	if err != nil {
		return nil, err
	}

	var htmlOpts []html.Option
	if flags.templatesDir != "" {
		htmlOpts = append(htmlOpts, html.WithTemplatesDir(flags.templatesDir))
	}
	page, err := html.New(htmlOpts...)
	if err != nil {
		return nil, err
	}
	return render.NewRegistry(term, page), nil
}

func (a *app) runRenderer(cmd *cobra.Command, ref string, flags *renderFlags) error {
	ctx := cmd.Context()
	form, stored, err := a.resolveForm(ctx, ref)
	if err != nil {
		return err
	}

	registry, err := a.renderers(cmd, flags)
	if err != nil {
		return err
	}
	renderer, err := registry.Get(flags.renderer)
	if err != nil {
		return err
	}

	sessionOpts := a.sessionOptions()
	if stored && !flags.noSave {
		sessionOpts = append(sessionOpts, preview.WithSubmitHandler(a.saveSubmission))
	}
	session, err := preview.New(form, sessionOpts...)
	if err != nil {
		return err
	}
	if flags.valuesPath != "" {
		values, err := readValues(flags.valuesPath)
		if err != nil {
			return err
		}
		if err := applyValues(session, values); err != nil {
			return err
		}
	}

	hidden := []render.HiddenField{render.FormID(form.ID)}
	for name, value := range flags.hidden {
		hidden = append(hidden, render.Hidden(name, value))
	}
	payload, err := renderer.Render(ctx, session, render.RenderOptions{
		Title:        flags.title,
		Action:       flags.action,
		Method:       flags.method,
		HiddenFields: render.MergeHiddenFields(nil, hidden...),
	})
	if err != nil {
		return err
	}
	if flags.outPath != "" {
		if err := os.WriteFile(flags.outPath, payload, 0o644); err != nil {
			return err
		}
		a.logger.Info("form rendered",
			slog.String("form", form.ID),
			slog.String("renderer", renderer.Name()),
			slog.String("path", flags.outPath),
		)
		return nil
	}
	return writePayload(cmd, payload)
}

func newEvalCommand(a *app) *cobra.Command {
	var (
		valuesPath string
		strict     bool
	)
	cmd := &cobra.Command{
		Use:   "eval <id|file>",
		Short: "Compute derived fields and validate a set of values",
		Long: `Eval fills missing inputs with their defaults, computes every derived field,
validates the result and prints it as JSON. Values are read from --values or
from stdin when --values is "-".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			form, _, err := a.resolveForm(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			var values map[string]any
			if valuesPath != "" {
				if values, err = readValues(valuesPath); err != nil {
					return err
				}
			}
			result, err := formbuilder.Evaluate(form, values, a.engineOptions()...)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if strict && !result.Valid() {
				return fmt.Errorf("%d field(s) failed validation", len(result.Errors))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&valuesPath, "values", "", `JSON file with field values ("-" for stdin)`)
	cmd.Flags().BoolVar(&strict, "strict", false, "exit with an error when validation fails")
	return cmd
}

func newExportCommand(a *app) *cobra.Command {
	var (
		path       string
		schemaOnly bool
	)
	cmd := &cobra.Command{
		Use:   "export <id|file>",
		Short: "Export a form as an OpenAPI 3 document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			form, _, err := a.resolveForm(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if schemaOnly {
				schema, err := export.OpenAPISchema(form)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), schema)
			}
			doc, err := export.OpenAPIDocument(form, path)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), doc)
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "submission path (default /forms/{id}/submissions)")
	cmd.Flags().BoolVar(&schemaOnly, "schema", false, "print only the submission schema")
	return cmd
}

func (a *app) sessionOptions() []preview.Option {
	return []preview.Option{
		preview.WithLogger(a.logger),
		preview.WithEngineOptions(a.engineOptions()...),
	}
}

func (a *app) saveSubmission(ctx context.Context, submission model.Submission) error {
	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if err := s.SaveSubmission(ctx, submission); err != nil {
		return err
	}
	a.logger.Info("submission saved", slog.String("form", submission.FormID), slog.String("submission", submission.ID))
	return nil
}

func readValues(path string) (map[string]any, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	var values map[string]any
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("values %s: %w", path, err)
	}
	return values, nil
}

// applyValues feeds values through the session so derived fields and
// validation messages reflect them. Values for derived fields are ignored.
func applyValues(session *preview.Session, values map[string]any) error {
	for _, field := range session.Form().SortedFields() {
		value, ok := values[field.ID]
		if !ok || field.Derived() {
			continue
		}
		if err := session.Change(field.ID, value); err != nil {
			return err
		}
		// Failures are recorded on the session and rendered inline.
		_ = session.Blur(field.ID)
	}
	return nil
}

func writePayload(cmd *cobra.Command, payload []byte) error {
	out := cmd.OutOrStdout()
	if _, err := out.Write(payload); err != nil {
		return err
	}
	if len(payload) > 0 && !strings.HasSuffix(string(payload), "\n") {
		_, err := fmt.Fprintln(out)
		return err
	}
	return nil
}
