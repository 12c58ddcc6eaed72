// Package store persists form definitions and their submissions. Two backends
// are provided: a single JSON document guarded by a file lock, and a sqlite
// database. Both share the form and field operations implemented by FormStore.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-formbuilder/pkg/model"
)

// ErrNotFound is returned when a form or field id is unknown.
var ErrNotFound = errors.New("store: not found")

// Store is the form repository used by the CLI and embedding applications.
type Store interface {
	List(ctx context.Context) ([]model.FormDefinition, error)
	Get(ctx context.Context, id string) (model.FormDefinition, error)
	Create(ctx context.Context, form model.FormDefinition) (model.FormDefinition, error)
	Update(ctx context.Context, form model.FormDefinition) (model.FormDefinition, error)
	Delete(ctx context.Context, id string) error
	Duplicate(ctx context.Context, id string) (model.FormDefinition, error)
	Search(ctx context.Context, query string) ([]model.FormDefinition, error)
	Import(ctx context.Context, form model.FormDefinition) (model.FormDefinition, error)

	AddField(ctx context.Context, formID string, field model.FieldDefinition) (model.FormDefinition, error)
	UpdateField(ctx context.Context, formID string, field model.FieldDefinition) (model.FormDefinition, error)
	DeleteField(ctx context.Context, formID, fieldID string) (model.FormDefinition, error)
	ReorderFields(ctx context.Context, formID string, fieldIDs []string) (model.FormDefinition, error)

	SaveSubmission(ctx context.Context, submission model.Submission) error
	Submissions(ctx context.Context, formID string) ([]model.Submission, error)

	Close() error
}

// repository is the persistence primitive each backend implements. update
// must apply fn and persist the result atomically.
type repository interface {
	list(ctx context.Context) ([]model.FormDefinition, error)
	get(ctx context.Context, id string) (model.FormDefinition, error)
	insert(ctx context.Context, form model.FormDefinition) error
	update(ctx context.Context, id string, fn func(*model.FormDefinition) error) (model.FormDefinition, error)
	remove(ctx context.Context, id string) error
	insertSubmission(ctx context.Context, submission model.Submission) error
	submissions(ctx context.Context, formID string) ([]model.Submission, error)
	close() error
}

// Option customises a FormStore.
type Option func(*FormStore)

// WithClock overrides the timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(s *FormStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithIDGenerator overrides the id source used for forms and fields.
func WithIDGenerator(fn func() string) Option {
	return func(s *FormStore) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithLogger sets the logger used for store events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *FormStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// FormStore implements Store on top of a backend repository.
type FormStore struct {
	repo   repository
	clock  func() time.Time
	newID  func() string
	logger *slog.Logger
}

var _ Store = (*FormStore)(nil)

func newFormStore(repo repository, options ...Option) *FormStore {
	s := &FormStore{
		repo:   repo,
		clock:  time.Now,
		newID:  uuid.NewString,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range options {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// List returns every stored form in creation order.
func (s *FormStore) List(ctx context.Context) ([]model.FormDefinition, error) {
	return s.repo.list(ctx)
}

// Get returns the form with the given id.
func (s *FormStore) Get(ctx context.Context, id string) (model.FormDefinition, error) {
	return s.repo.get(ctx, id)
}

// Create stores a new form. The id and both timestamps are assigned by the
// store; any supplied values are ignored. Fields without an id receive one.
func (s *FormStore) Create(ctx context.Context, form model.FormDefinition) (model.FormDefinition, error) {
	form.ID = ""
	return s.create(ctx, form)
}

// Import stores form under its own id, replacing a stored form with the same
// id. A blank id is assigned like Create does.
func (s *FormStore) Import(ctx context.Context, form model.FormDefinition) (model.FormDefinition, error) {
	if strings.TrimSpace(form.ID) == "" {
		return s.Create(ctx, form)
	}
	if _, err := s.repo.get(ctx, form.ID); err == nil {
		return s.Update(ctx, form)
	} else if !errors.Is(err, ErrNotFound) {
		return model.FormDefinition{}, err
	}
	return s.create(ctx, form)
}

func (s *FormStore) create(ctx context.Context, form model.FormDefinition) (model.FormDefinition, error) {
	created := sanitizeForm(form.Clone())
	if strings.TrimSpace(created.ID) == "" {
		created.ID = s.newID()
	}
	now := s.clock().UTC()
	created.CreatedAt = now
	created.UpdatedAt = now
	for i := range created.Fields {
		if strings.TrimSpace(created.Fields[i].ID) == "" {
			created.Fields[i].ID = s.newID()
		}
	}
	if err := created.Validate(); err != nil {
		return model.FormDefinition{}, fmt.Errorf("store: create form: %w", err)
	}
	if err := s.repo.insert(ctx, created); err != nil {
		return model.FormDefinition{}, err
	}
	s.logger.Info("form created", slog.String("form", created.ID), slog.Int("fields", len(created.Fields)))
	return created, nil
}

// Update replaces a stored form, keeping its creation time and refreshing
// UpdatedAt.
func (s *FormStore) Update(ctx context.Context, form model.FormDefinition) (model.FormDefinition, error) {
	replacement := sanitizeForm(form.Clone())
	if err := replacement.Validate(); err != nil {
		return model.FormDefinition{}, fmt.Errorf("store: update form: %w", err)
	}
	return s.mutate(ctx, form.ID, func(current *model.FormDefinition) error {
		created := current.CreatedAt
		*current = replacement
		current.CreatedAt = created
		return nil
	})
}

// Delete removes a form and its submissions.
func (s *FormStore) Delete(ctx context.Context, id string) error {
	if err := s.repo.remove(ctx, id); err != nil {
		return err
	}
	s.logger.Info("form deleted", slog.String("form", id))
	return nil
}

// Duplicate stores a copy of a form under a new id with " (Copy)" appended
// to its name. Field ids are kept so derived references stay valid.
func (s *FormStore) Duplicate(ctx context.Context, id string) (model.FormDefinition, error) {
	source, err := s.repo.get(ctx, id)
	if err != nil {
		return model.FormDefinition{}, err
	}
	source.Name = source.Name + " (Copy)"
	return s.Create(ctx, source)
}

// Search returns the forms whose name or description contains query,
// compared case-insensitively. An empty query matches every form.
func (s *FormStore) Search(ctx context.Context, query string) ([]model.FormDefinition, error) {
	forms, err := s.repo.list(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return forms, nil
	}
	var out []model.FormDefinition
	for _, form := range forms {
		if strings.Contains(strings.ToLower(form.Name), needle) ||
			strings.Contains(strings.ToLower(form.Description), needle) {
			out = append(out, form)
		}
	}
	return out, nil
}

// AddField appends a field to a form. The store assigns the id when it is
// blank and sets Order to the current field count.
func (s *FormStore) AddField(ctx context.Context, formID string, field model.FieldDefinition) (model.FormDefinition, error) {
	added := sanitizeField(field.Clone())
	if strings.TrimSpace(added.ID) == "" {
		added.ID = s.newID()
	}
	return s.mutate(ctx, formID, func(form *model.FormDefinition) error {
		if _, exists := form.Field(added.ID); exists {
			return fmt.Errorf("store: field %q already exists in form %q", added.ID, formID)
		}
		added.Order = len(form.Fields)
		form.Fields = append(form.Fields, added)
		return form.Validate()
	})
}

// UpdateField replaces the field with the same id.
func (s *FormStore) UpdateField(ctx context.Context, formID string, field model.FieldDefinition) (model.FormDefinition, error) {
	updated := sanitizeField(field.Clone())
	return s.mutate(ctx, formID, func(form *model.FormDefinition) error {
		idx := fieldIndex(form.Fields, updated.ID)
		if idx < 0 {
			return fmt.Errorf("%w: field %q in form %q", ErrNotFound, updated.ID, formID)
		}
		form.Fields[idx] = updated
		return form.Validate()
	})
}

// DeleteField removes a field and renumbers the remaining fields so Order
// matches their position.
func (s *FormStore) DeleteField(ctx context.Context, formID, fieldID string) (model.FormDefinition, error) {
	return s.mutate(ctx, formID, func(form *model.FormDefinition) error {
		idx := fieldIndex(form.Fields, fieldID)
		if idx < 0 {
			return fmt.Errorf("%w: field %q in form %q", ErrNotFound, fieldID, formID)
		}
		form.Fields = append(form.Fields[:idx], form.Fields[idx+1:]...)
		model.Renumber(form.Fields)
		return nil
	})
}

// ReorderFields arranges the fields in the given id order and assigns
// Order = index. fieldIDs must name every field exactly once.
func (s *FormStore) ReorderFields(ctx context.Context, formID string, fieldIDs []string) (model.FormDefinition, error) {
	return s.mutate(ctx, formID, func(form *model.FormDefinition) error {
		if len(fieldIDs) != len(form.Fields) {
			return fmt.Errorf("store: reorder expects %d field ids, got %d", len(form.Fields), len(fieldIDs))
		}
		reordered := make([]model.FieldDefinition, 0, len(fieldIDs))
		seen := make(map[string]struct{}, len(fieldIDs))
		for _, id := range fieldIDs {
			if _, dup := seen[id]; dup {
				return fmt.Errorf("store: reorder lists field %q twice", id)
			}
			seen[id] = struct{}{}
			idx := fieldIndex(form.Fields, id)
			if idx < 0 {
				return fmt.Errorf("%w: field %q in form %q", ErrNotFound, id, formID)
			}
			reordered = append(reordered, form.Fields[idx])
		}
		model.Renumber(reordered)
		form.Fields = reordered
		return nil
	})
}

// SaveSubmission records a submitted value mapping against its form.
func (s *FormStore) SaveSubmission(ctx context.Context, submission model.Submission) error {
	if strings.TrimSpace(submission.ID) == "" {
		submission.ID = s.newID()
	}
	if submission.SubmittedAt.IsZero() {
		submission.SubmittedAt = s.clock()
	}
	submission.SubmittedAt = submission.SubmittedAt.UTC()
	if _, err := s.repo.get(ctx, submission.FormID); err != nil {
		return err
	}
	if err := s.repo.insertSubmission(ctx, submission); err != nil {
		return err
	}
	s.logger.Debug("submission saved", slog.String("form", submission.FormID), slog.String("submission", submission.ID))
	return nil
}

// Submissions returns the submissions recorded for a form, oldest first.
func (s *FormStore) Submissions(ctx context.Context, formID string) ([]model.Submission, error) {
	return s.repo.submissions(ctx, formID)
}

// Close releases the backend.
func (s *FormStore) Close() error {
	return s.repo.close()
}

func (s *FormStore) mutate(ctx context.Context, id string, fn func(*model.FormDefinition) error) (model.FormDefinition, error) {
	now := s.clock().UTC()
	form, err := s.repo.update(ctx, id, func(form *model.FormDefinition) error {
		if err := fn(form); err != nil {
			return err
		}
		form.ID = id
		form.UpdatedAt = now
		return nil
	})
	if err != nil {
		return model.FormDefinition{}, err
	}
	s.logger.Debug("form updated", slog.String("form", id))
	return form, nil
}

func fieldIndex(fields []model.FieldDefinition, id string) int {
	for idx, field := range fields {
		if field.ID == id {
			return idx
		}
	}
	return -1
}

func notFound(id string) error {
	return fmt.Errorf("%w: form %q", ErrNotFound, id)
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Open returns a store for the named backend.
func Open(ctx context.Context, backend, path string, options ...Option) (*FormStore, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendFile:
		return OpenFile(path, options...)
	case BackendSQLite:
		return OpenSQLite(ctx, path, options...)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", backend)
	}
}
