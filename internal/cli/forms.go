package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-formbuilder/pkg/formfile"
	"github.com/goliatone/go-formbuilder/pkg/model"
)

func newFormsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forms",
		Short: "Manage stored form definitions",
	}

	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored forms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			forms, err := s.List(cmd.Context())
			if err != nil {
				return err
			}
			return writeForms(cmd.OutOrStdout(), forms, asJSON)
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "print forms as JSON")

	var searchJSON bool
	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Find forms by name or description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			forms, err := s.Search(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeForms(cmd.OutOrStdout(), forms, searchJSON)
		},
	}
	search.Flags().BoolVar(&searchJSON, "json", false, "print forms as JSON")

	show := &cobra.Command{
		Use:   "show <id|file>",
		Short: "Print a form definition as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			form, _, err := a.resolveForm(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), form)
		},
	}

	importCmd := &cobra.Command{
		Use:   "import <file|dir>...",
		Short: "Store forms read from JSON or YAML files",
		Long: `Import reads every form in the given files or directories and stores it
under its own id, replacing a stored form with the same id.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var forms []model.FormDefinition
			for _, arg := range args {
				loaded, err := loadForms(arg)
				if err != nil {
					return err
				}
				forms = append(forms, loaded...)
			}
			s, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			for _, form := range forms {
				stored, err := s.Import(cmd.Context(), form)
				if err != nil {
					return fmt.Errorf("import %q: %w", form.ID, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %s (%d fields)\n", stored.ID, len(stored.Fields))
			}
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a stored form and its submissions",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			if err := s.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}

	duplicate := &cobra.Command{
		Use:   "duplicate <id>",
		Short: "Store a copy of a form under a new id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			copied, err := s.Duplicate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", copied.ID, copied.Name)
			return nil
		},
	}

	submissions := &cobra.Command{
		Use:   "submissions <id>",
		Short: "Print the submissions saved for a form as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			subs, err := s.Submissions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if subs == nil {
				subs = []model.Submission{}
			}
			return writeJSON(cmd.OutOrStdout(), subs)
		},
	}

	cmd.AddCommand(list, search, show, importCmd, deleteCmd, duplicate, submissions)
	return cmd
}

func loadForms(path string) ([]model.FormDefinition, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		forms, err := formfile.LoadDir(os.DirFS(path))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Clean(path), err)
		}
		return forms, nil
	}
	return formfile.LoadFile(path)
}

func writeForms(w io.Writer, forms []model.FormDefinition, asJSON bool) error {
	if asJSON {
		if forms == nil {
			forms = []model.FormDefinition{}
		}
		return writeJSON(w, forms)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tFIELDS\tUPDATED")
	for _, form := range forms {
		updated := "-"
		if !form.UpdatedAt.IsZero() {
			updated = form.UpdatedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", form.ID, form.Name, len(form.Fields), updated)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
