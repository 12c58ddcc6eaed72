package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/goliatone/go-formbuilder/pkg/model"
)

// DefaultFileName is the document name used when OpenFile receives a
// directory.
const DefaultFileName = "formBuilder_forms.json"

const (
	fileLockTimeout = 5 * time.Second
	fileLockRetry   = 50 * time.Millisecond
)

// document is the on-disk layout. A bare JSON array of forms is also accepted
// on read.
type document struct {
	Forms       []model.FormDefinition `json:"forms"`
	Submissions []model.Submission     `json:"submissions,omitempty"`
}

type fileRepository struct {
	path string
	mu   sync.Mutex
}

// OpenFile returns a store backed by a single JSON document. path may name the
// document or a directory, in which case DefaultFileName is used. The file is
// created on first write.
func OpenFile(path string, options ...Option) (*FormStore, error) {
	if path == "" {
		return nil, errors.New("store: file path is required")
	}
	resolved, err := resolvePath(path, DefaultFileName)
	if err != nil {
		return nil, err
	}
	return newFormStore(&fileRepository{path: resolved}, options...), nil
}

// resolvePath treats an existing directory, or a path without an extension,
// as a directory holding name. Parent directories are created.
func resolvePath(path, name string) (string, error) {
	if info, err := os.Stat(path); (err == nil && info.IsDir()) || (err != nil && filepath.Ext(path) == "") {
		path = filepath.Join(path, name)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("store: create directory: %w", err)
	}
	return path, nil
}

func (r *fileRepository) list(ctx context.Context) ([]model.FormDefinition, error) {
	var forms []model.FormDefinition
	err := r.view(ctx, func(doc *document) error {
		forms = make([]model.FormDefinition, 0, len(doc.Forms))
		for _, form := range doc.Forms {
			forms = append(forms, form.Clone())
		}
		return nil
	})
	return forms, err
}

func (r *fileRepository) get(ctx context.Context, id string) (model.FormDefinition, error) {
	var out model.FormDefinition
	err := r.view(ctx, func(doc *document) error {
		idx := doc.formIndex(id)
		if idx < 0 {
			return notFound(id)
		}
		out = doc.Forms[idx].Clone()
		return nil
	})
	return out, err
}

func (r *fileRepository) insert(ctx context.Context, form model.FormDefinition) error {
	return r.modify(ctx, func(doc *document) error {
		if doc.formIndex(form.ID) >= 0 {
			return fmt.Errorf("store: form %q already exists", form.ID)
		}
		doc.Forms = append(doc.Forms, form.Clone())
		return nil
	})
}

func (r *fileRepository) update(ctx context.Context, id string, fn func(*model.FormDefinition) error) (model.FormDefinition, error) {
	var out model.FormDefinition
	err := r.modify(ctx, func(doc *document) error {
		idx := doc.formIndex(id)
		if idx < 0 {
			return notFound(id)
		}
		form := doc.Forms[idx].Clone()
		if err := fn(&form); err != nil {
			return err
		}
		doc.Forms[idx] = form
		out = form.Clone()
		return nil
	})
	return out, err
}

func (r *fileRepository) remove(ctx context.Context, id string) error {
	return r.modify(ctx, func(doc *document) error {
		idx := doc.formIndex(id)
		if idx < 0 {
			return notFound(id)
		}
		doc.Forms = append(doc.Forms[:idx], doc.Forms[idx+1:]...)
		kept := doc.Submissions[:0]
		for _, submission := range doc.Submissions {
			if submission.FormID != id {
				kept = append(kept, submission)
			}
		}
		doc.Submissions = kept
		return nil
	})
}

func (r *fileRepository) insertSubmission(ctx context.Context, submission model.Submission) error {
	return r.modify(ctx, func(doc *document) error {
		if doc.formIndex(submission.FormID) < 0 {
			return notFound(submission.FormID)
		}
		doc.Submissions = append(doc.Submissions, submission)
		return nil
	})
}

func (r *fileRepository) submissions(ctx context.Context, formID string) ([]model.Submission, error) {
	var out []model.Submission
	err := r.view(ctx, func(doc *document) error {
		if doc.formIndex(formID) < 0 {
			return notFound(formID)
		}
		for _, submission := range doc.Submissions {
			if submission.FormID == formID {
				out = append(out, submission)
			}
		}
		return nil
	})
	return out, err
}

func (r *fileRepository) close() error {
	return nil
}

func (r *fileRepository) view(ctx context.Context, fn func(*document) error) error {
	return r.withLock(ctx, func() error {
		doc, err := r.read()
		if err != nil {
			return err
		}
		return fn(doc)
	})
}

func (r *fileRepository) modify(ctx context.Context, fn func(*document) error) error {
	return r.withLock(ctx, func() error {
		doc, err := r.read()
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
		return r.write(doc)
	})
}

func (r *fileRepository) withLock(ctx context.Context, fn func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	lock := flock.New(r.path + ".lock")
	lockCtx, cancel := context.WithTimeout(ctx, fileLockTimeout)
	defer cancel()

	locked, err := lock.TryLockContext(lockCtx, fileLockRetry)
	if err != nil {
		return fmt.Errorf("store: acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("store: timeout waiting for lock on %s", r.path)
	}
	defer func() { _ = lock.Unlock() }()

	return fn()
}

func (r *fileRepository) read() (*document, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", r.path, err)
	}
	return decodeDocument(data)
}

func (r *fileRepository) write(doc *document) error {
	if doc.Forms == nil {
		doc.Forms = []model.FormDefinition{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode document: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), filepath.Base(r.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("store: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("store: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		cleanup()
		return fmt.Errorf("store: replace %s: %w", r.path, err)
	}
	return nil
}

func decodeDocument(data []byte) (*document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return &document{}, nil
	}
	if trimmed[0] == '[' {
		var forms []model.FormDefinition
		if err := json.Unmarshal(trimmed, &forms); err != nil {
			return nil, fmt.Errorf("store: decode forms: %w", err)
		}
		return &document{Forms: forms}, nil
	}
	var doc document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("store: decode document: %w", err)
	}
	return &doc, nil
}

func (d *document) formIndex(id string) int {
	for idx, form := range d.Forms {
		if form.ID == id {
			return idx
		}
	}
	return -1
}
