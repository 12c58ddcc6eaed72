// Package preview runs a live form session: it owns the value mapping, keeps
// derived fields settled after every change and validates on blur and submit.
package preview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-formbuilder/pkg/derived"
	"github.com/goliatone/go-formbuilder/pkg/model"
	"github.com/goliatone/go-formbuilder/pkg/validation"
)

// DerivedNote is shown next to computed controls.
const DerivedNote = "This field is automatically calculated"

// ErrUnknownField is returned for ids that are not part of the session's form.
var ErrUnknownField = errors.New("preview: unknown field")

// SubmitHandler receives the resolved values of a valid submission.
type SubmitHandler func(ctx context.Context, submission model.Submission) error

// FieldView is what a rendering collaborator needs to draw one control.
type FieldView struct {
	Field    model.FieldDefinition
	Value    any
	Error    string
	ReadOnly bool
	Note     string
}

// Option customises a Session.
type Option func(*Session)

// WithLogger sets the session logger. It is also handed to the derived engine.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source for submissions and age formulas.
func WithClock(clock func() time.Time) Option {
	return func(s *Session) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithSubmitHandler sets the sink that receives valid submissions.
func WithSubmitHandler(handler SubmitHandler) Option {
	return func(s *Session) {
		s.submit = handler
	}
}

// WithEngineOptions forwards options to the derived engine.
func WithEngineOptions(options ...derived.Option) Option {
	return func(s *Session) {
		s.engineOptions = append(s.engineOptions, options...)
	}
}

// Session is one preview of a form definition.
type Session struct {
	form   model.FormDefinition
	fields []model.FieldDefinition
	byID   map[string]model.FieldDefinition

	engine *derived.Engine
	schema *validation.Schema
	state  *State

	mu     sync.Mutex
	errors map[string]string

	configErrs []error

	submit        SubmitHandler
	engineOptions []derived.Option
	clock         func() time.Time
	logger        *slog.Logger
}

// New validates the form structure, builds the derived engine and validation
// schema, and seeds the value mapping with defaults. Only structural problems
// and, with chains, dependency cycles fail New. A broken derived config or
// validation rule degrades that field alone and is reported by ConfigErrors.
func New(form model.FormDefinition, options ...Option) (*Session, error) {
	s := &Session{
		form:   form.Clone(),
		errors: make(map[string]string),
		clock:  time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(s)
	}

	if err := s.form.Validate(); err != nil {
		return nil, fmt.Errorf("preview: invalid form %q: %w", s.form.ID, err)
	}

	s.configErrs = append(s.configErrs, s.form.DerivedConfigErrors()...)
	s.fields = s.form.SortedFields()
	s.byID = make(map[string]model.FieldDefinition, len(s.fields))
	for _, field := range s.fields {
		s.byID[field.ID] = field
	}

	engineOptions := append([]derived.Option{
		derived.WithLogger(s.logger),
		derived.WithClock(s.clock),
	}, s.engineOptions...)
	engine, err := derived.New(s.fields, engineOptions...)
	if err != nil {
		return nil, fmt.Errorf("preview: %w", err)
	}
	s.engine = engine
	for _, issue := range engine.Issues() {
		s.configErrs = append(s.configErrs, issue)
	}

	schema, err := validation.BuildSchema(s.fields)
	if err != nil {
		ruleErrs := validation.ConfigErrors(err)
		if schema == nil || len(ruleErrs) == 0 {
			return nil, fmt.Errorf("preview: build validation schema: %w", err)
		}
		for _, ruleErr := range ruleErrs {
			s.logger.Warn("validation rule ignored",
				slog.String("form", s.form.ID),
				slog.String("field", ruleErr.FieldID),
				slog.String("rule", string(ruleErr.Rule)),
				slog.String("error", ruleErr.Err.Error()),
			)
			s.configErrs = append(s.configErrs, ruleErr)
		}
	}
	s.schema = schema

	s.state = NewState(s.defaults(), s.readOnlyIDs()...)
	s.state.apply(func(values map[string]any) {
		s.engine.Recompute(values)
	})
	return s, nil
}

// ConfigErrors returns the configuration problems found when the session was
// built: derived fields without a usable config, rejected parent references
// and validation rules that could not be compiled.
func (s *Session) ConfigErrors() []error {
	return append([]error(nil), s.configErrs...)
}

// Form returns the definition the session was built from.
func (s *Session) Form() model.FormDefinition {
	return s.form.Clone()
}

// State returns the session's value mapping.
func (s *Session) State() *State {
	return s.state
}

// Values returns a snapshot of the current values.
func (s *Session) Values() map[string]any {
	return s.state.Snapshot()
}

// Subscribe registers fn for settled changes.
func (s *Session) Subscribe(fn func(Event)) (cancel func()) {
	return s.state.Subscribe(fn)
}

// Change records a user edit and synchronously recomputes the derived fields
// that depend on it. Subscribers run after the pass. A field that already shows
// an error is revalidated.
func (s *Session) Change(id string, value any) error {
	field, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, id)
	}
	if err := s.state.Set(id, value); err != nil {
		return err
	}

	var changed map[string]any
	s.state.apply(func(values map[string]any) {
		changed = s.engine.RecomputeAffected(values, id)
	})
	s.logger.Debug("preview field changed",
		slog.String("form", s.form.ID),
		slog.String("field", field.ID),
		slog.Int("derivedChanged", len(changed)),
	)

	if s.hasError(id) {
		_ = s.Blur(id)
	}
	s.state.notify(Event{FieldID: id, Derived: changed, Values: s.state.Snapshot()})
	return nil
}

// Blur validates one field and records or clears its error. It returns the
// validation failure, if any.
func (s *Session) Blur(id string) error {
	if _, ok := s.byID[id]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, id)
	}
	value, _ := s.state.Get(id)
	err := s.schema.ValidateField(id, value)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.errors[id] = err.Error()
		return err
	}
	delete(s.errors, id)
	return nil
}

// Errors returns the current per-field error messages.
func (s *Session) Errors() validation.FieldErrors {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errors) == 0 {
		return nil
	}
	out := make(validation.FieldErrors, len(s.errors))
	for id, msg := range s.errors {
		out[id] = msg
	}
	return out
}

// Field returns the view of one field.
func (s *Session) Field(id string) (FieldView, bool) {
	field, ok := s.byID[id]
	if !ok {
		return FieldView{}, false
	}
	return s.view(field), true
}

// Fields returns a view of every field, sorted by order.
func (s *Session) Fields() []FieldView {
	out := make([]FieldView, 0, len(s.fields))
	for _, field := range s.fields {
		out = append(out, s.view(field))
	}
	return out
}

// Submit validates every field. When all pass, the handler receives the full
// mapping and the session resets to its defaults. Otherwise the failures are
// recorded and returned as validation.FieldErrors.
func (s *Session) Submit(ctx context.Context) (model.Submission, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return model.Submission{}, err
	}

	var values map[string]any
	s.state.apply(func(live map[string]any) {
		s.engine.Recompute(live)
		values = cloneValues(live)
	})

	if err := s.schema.Validate(values); err != nil {
		var fieldErrs validation.FieldErrors
		if errors.As(err, &fieldErrs) {
			s.mu.Lock()
			s.errors = make(map[string]string, len(fieldErrs))
			for id, msg := range fieldErrs {
				s.errors[id] = msg
			}
			s.mu.Unlock()
		}
		s.logger.Debug("preview submit rejected",
			slog.String("form", s.form.ID),
			slog.Int("errors", len(fieldErrs)),
		)
		return model.Submission{}, err
	}

	submission := model.Submission{
		ID:          uuid.NewString(),
		FormID:      s.form.ID,
		Data:        values,
		SubmittedAt: s.clock(),
	}
	if s.submit != nil {
		if err := s.submit(ctx, submission); err != nil {
			return model.Submission{}, fmt.Errorf("preview: submit handler: %w", err)
		}
	}
	s.logger.Info("preview form submitted",
		slog.String("form", s.form.ID),
		slog.String("submission", submission.ID),
	)
	s.Reset()
	return submission, nil
}

// Reset restores default values, recomputes derived fields and clears errors.
func (s *Session) Reset() {
	s.state.reset(s.defaults())
	var changed map[string]any
	s.state.apply(func(values map[string]any) {
		changed = s.engine.Recompute(values)
	})
	s.mu.Lock()
	s.errors = make(map[string]string)
	s.mu.Unlock()
	s.state.notify(Event{Derived: changed, Values: s.state.Snapshot()})
}

func (s *Session) view(field model.FieldDefinition) FieldView {
	value, _ := s.state.Get(field.ID)
	view := FieldView{
		Field: field.Clone(),
		Value: value,
	}
	if field.IsDerived {
		view.ReadOnly = true
		view.Note = DerivedNote
	}
	s.mu.Lock()
	view.Error = s.errors[field.ID]
	s.mu.Unlock()
	return view
}

func (s *Session) hasError(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.errors[id]
	return ok
}

func (s *Session) defaults() map[string]any {
	values := make(map[string]any, len(s.fields))
	for _, field := range s.fields {
		values[field.ID] = field.InitialValue()
	}
	return values
}

func (s *Session) readOnlyIDs() []string {
	var ids []string
	for _, field := range s.fields {
		if field.IsDerived {
			ids = append(ids, field.ID)
		}
	}
	return ids
}
