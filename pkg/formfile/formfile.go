// Package formfile reads form definitions from JSON or YAML files. A file may
// hold a single form object or an array of forms, the layout produced by the
// browser builder's export.
package formfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-formbuilder/pkg/model"
)

// ErrNoForms is returned when a file parses but holds no form.
var ErrNoForms = errors.New("formfile: no form definitions found")

// Load reads exactly one form from path.
func Load(path string) (model.FormDefinition, error) {
	forms, err := LoadFile(path)
	if err != nil {
		return model.FormDefinition{}, err
	}
	if len(forms) != 1 {
		return model.FormDefinition{}, fmt.Errorf("formfile: %s holds %d forms, expected one", path, len(forms))
	}
	return forms[0], nil
}

// LoadFile reads every form stored in path.
func LoadFile(path string) ([]model.FormDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("formfile: read %s: %w", path, err)
	}
	return Parse(data, path)
}

// LoadDir walks fsys and parses every .json, .yaml and .yml file. Form ids
// must be unique across the tree.
func LoadDir(fsys fs.FS) ([]model.FormDefinition, error) {
	if fsys == nil {
		return nil, nil
	}

	var forms []model.FormDefinition
	sources := make(map[string]string)
	err := fs.WalkDir(fsys, ".", func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() || !IsFormFile(path) {
			return nil
		}

		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("formfile: read %s: %w", path, err)
		}
		parsed, err := Parse(data, path)
		if err != nil {
			return err
		}
		for _, form := range parsed {
			if previous, exists := sources[form.ID]; exists {
				return fmt.Errorf("formfile: duplicate form id %q (files %s and %s)", form.ID, previous, path)
			}
			sources[form.ID] = path
			forms = append(forms, form)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return forms, nil
}

// Parse decodes data as JSON, falling back to YAML. source names the input in
// errors and supplies the id of a form that omits one.
func Parse(data []byte, source string) ([]model.FormDefinition, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("formfile: file %s is empty", source)
	}

	forms, jsonErr := parseJSON(trimmed)
	if jsonErr != nil {
		var yamlErr error
		forms, yamlErr = parseYAML(trimmed)
		if yamlErr != nil {
			return nil, fmt.Errorf("formfile: parse %s: invalid JSON or YAML: %w", source, yamlErr)
		}
	}
	if len(forms) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoForms, source)
	}

	for i := range forms {
		if err := normalise(&forms[i], source, i, len(forms)); err != nil {
			return nil, err
		}
	}
	return forms, nil
}

// IsFormFile reports whether path has a supported extension.
func IsFormFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func parseJSON(data []byte) ([]model.FormDefinition, error) {
	if data[0] == '[' {
		var forms []model.FormDefinition
		if err := json.Unmarshal(data, &forms); err != nil {
			return nil, err
		}
		return forms, nil
	}
	var form model.FormDefinition
	if err := json.Unmarshal(data, &form); err != nil {
		return nil, err
	}
	return []model.FormDefinition{form}, nil
}

func parseYAML(data []byte) ([]model.FormDefinition, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return nil, nil
	}
	node := root.Content[0]
	switch node.Kind {
	case yaml.SequenceNode:
		var forms []model.FormDefinition
		if err := node.Decode(&forms); err != nil {
			return nil, err
		}
		return forms, nil
	case yaml.MappingNode:
		var form model.FormDefinition
		if err := node.Decode(&form); err != nil {
			return nil, err
		}
		return []model.FormDefinition{form}, nil
	default:
		return nil, fmt.Errorf("expected a mapping or sequence, got %s", node.ShortTag())
	}
}

func normalise(form *model.FormDefinition, source string, index, total int) error {
	form.ID = strings.TrimSpace(form.ID)
	if form.ID == "" {
		stem := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
		if total > 1 {
			stem = fmt.Sprintf("%s-%d", stem, index+1)
		}
		form.ID = stem
	}
	if strings.TrimSpace(form.Name) == "" {
		form.Name = form.ID
	}
	if err := form.Validate(); err != nil {
		return fmt.Errorf("formfile: %s form %q: %w", source, form.ID, err)
	}
	return nil
}
