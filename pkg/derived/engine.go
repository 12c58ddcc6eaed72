package derived

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"time"

	"github.com/goliatone/go-formbuilder/pkg/model"
)

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides the time source used by age_from_dob.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithLogger routes configuration and evaluation diagnostics to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithEvaluator replaces or adds the evaluator used for a formula kind.
func WithEvaluator(kind model.FormulaType, evaluator Evaluator) Option {
	return func(e *Engine) {
		if evaluator == nil {
			return
		}
		e.evaluators[kind] = evaluator
	}
}

// WithChains allows derived fields to reference other derived fields. Passes
// then run in topological order and New rejects dependency cycles.
func WithChains() Option {
	return func(e *Engine) {
		e.chains = true
	}
}

// Engine recomputes derived field values from the live value mapping. It is
// built once per field set and is safe to reuse across passes; it holds no
// per-session state.
type Engine struct {
	fields     []model.FieldDefinition
	known      map[string]struct{}
	byID       map[string]model.FieldDefinition
	order      []string
	dependents map[string][]string
	blocked    map[string]map[string]struct{}
	issues     []ReferenceError

	evaluators map[model.FormulaType]Evaluator
	clock      func() time.Time
	logger     *slog.Logger
	chains     bool
}

// New builds an Engine for fields. Broken references are logged and recorded
// in Issues; the offending parents resolve to nil during passes. Only a
// dependency cycle, possible when WithChains is set, makes New fail.
func New(fields []model.FieldDefinition, options ...Option) (*Engine, error) {
	e := &Engine{
		evaluators: DefaultEvaluators(),
		clock:      time.Now,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(e)
	}

	e.fields = model.SortFields(fields)
	g := buildGraph(e.fields)
	e.byID = g.fields
	e.dependents = g.dependents
	e.known = make(map[string]struct{}, len(g.fields))
	for id := range g.fields {
		e.known[id] = struct{}{}
	}

	e.issues = CheckReferences(e.fields, e.chains)
	e.blocked = make(map[string]map[string]struct{})
	for _, issue := range e.issues {
		if issue.Kind == ReferenceCycle {
			return nil, fmt.Errorf("derived: build engine: %w", issue)
		}
		e.logger.Warn("derived field reference rejected",
			slog.String("field", issue.FieldID),
			slog.String("parent", issue.ParentID),
			slog.String("kind", string(issue.Kind)),
		)
		if issue.Kind == ReferenceMissing {
			continue
		}
		if e.blocked[issue.FieldID] == nil {
			e.blocked[issue.FieldID] = make(map[string]struct{})
		}
		e.blocked[issue.FieldID][issue.ParentID] = struct{}{}
	}

	if e.chains {
		order, cycle := g.topologicalOrder()
		if cycle != nil {
			return nil, fmt.Errorf("derived: build engine: %w", *cycle)
		}
		e.order = order
	} else {
		for _, field := range g.derived {
			e.order = append(e.order, field.ID)
		}
	}

	for _, field := range e.fields {
		if field.IsDerived && field.DerivedConfig == nil {
			e.logger.Warn("derived field has no config", slog.String("field", field.ID))
		}
	}
	for _, field := range g.derived {
		if _, ok := e.evaluators[field.DerivedConfig.FormulaType]; !ok {
			e.logger.Warn("derived field has no evaluator",
				slog.String("field", field.ID),
				slog.String("formulaType", string(field.DerivedConfig.FormulaType)),
			)
		}
	}

	return e, nil
}

// Issues returns the reference problems found at construction.
func (e *Engine) Issues() []ReferenceError {
	return append([]ReferenceError(nil), e.issues...)
}

// IsDerived reports whether id names a derived field of the engine's form.
func (e *Engine) IsDerived(id string) bool {
	field, ok := e.byID[id]
	return ok && field.Derived()
}

// DerivedIDs returns the derived field ids in evaluation order.
func (e *Engine) DerivedIDs() []string {
	return append([]string(nil), e.order...)
}

// Dependents returns the derived fields that list id as a parent, directly or,
// with chains, transitively. The result follows evaluation order.
func (e *Engine) Dependents(id string) []string {
	affected := e.affected([]string{id})
	out := make([]string, 0, len(affected))
	for _, derivedID := range e.order {
		if _, ok := affected[derivedID]; ok {
			out = append(out, derivedID)
		}
	}
	return out
}

// Compute evaluates one derived field against values without writing it.
// Non-derived fields and unknown formula kinds yield Empty.
func (e *Engine) Compute(id string, values map[string]any) any {
	field, ok := e.byID[id]
	if !ok || !field.Derived() {
		return Empty
	}
	return e.compute(field, values, e.clock())
}

// Recompute runs a full pass: every derived field is evaluated and written into
// values. It returns the derived values that changed. Repeated passes over
// unchanged parent values are no-ops.
func (e *Engine) Recompute(values map[string]any) map[string]any {
	return e.run(values, e.order)
}

// RecomputeAffected evaluates only the derived fields depending on the changed
// ids and returns the derived values that changed.
func (e *Engine) RecomputeAffected(values map[string]any, changed ...string) map[string]any {
	if len(changed) == 0 {
		return nil
	}
	affected := e.affected(changed)
	if len(affected) == 0 {
		return nil
	}
	ids := make([]string, 0, len(affected))
	for _, id := range e.order {
		if _, ok := affected[id]; ok {
			ids = append(ids, id)
		}
	}
	return e.run(values, ids)
}

func (e *Engine) run(values map[string]any, ids []string) map[string]any {
	if values == nil {
		return nil
	}
	now := e.clock()
	var changed map[string]any
	for _, id := range ids {
		field := e.byID[id]
		next := e.compute(field, values, now)
		if previous, ok := values[id]; ok && reflect.DeepEqual(previous, next) {
			continue
		}
		values[id] = next
		if changed == nil {
			changed = make(map[string]any)
		}
		changed[id] = next
	}
	return changed
}

func (e *Engine) compute(field model.FieldDefinition, values map[string]any, now time.Time) (result any) {
	cfg := field.DerivedConfig
	evaluator, ok := e.evaluators[cfg.FormulaType]
	if !ok {
		return Empty
	}

	parents := resolve(cfg.ParentFieldIDs, e.known, values)
	if blocked := e.blocked[field.ID]; len(blocked) > 0 {
		for idx, parentID := range cfg.ParentFieldIDs {
			if _, skip := blocked[parentID]; skip {
				parents[idx] = nil
			}
		}
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			e.logger.Debug("derived evaluator panicked",
				slog.String("field", field.ID),
				slog.Any("panic", recovered),
			)
			result = Empty
		}
	}()

	result = evaluator.Evaluate(Input{
		ParentIDs: append([]string(nil), cfg.ParentFieldIDs...),
		Values:    parents,
		Formula:   cfg.Formula,
		Now:       now,
	})
	if result == Empty && cfg.FormulaType == model.FormulaCustom && cfg.Formula != "" {
		e.logger.Debug("custom formula produced no value",
			slog.String("field", field.ID),
			slog.String("formula", cfg.Formula),
		)
	}
	return result
}

func (e *Engine) affected(changed []string) map[string]struct{} {
	out := make(map[string]struct{})
	queue := append([]string(nil), changed...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dependent := range e.dependents[id] {
			if _, seen := out[dependent]; seen {
				continue
			}
			out[dependent] = struct{}{}
			if e.chains {
				queue = append(queue, dependent)
			}
		}
	}
	return out
}

// ErrUnknownField is returned by helpers that look up a field by id.
var ErrUnknownField = errors.New("derived: unknown field")

// Field returns the definition of id.
func (e *Engine) Field(id string) (model.FieldDefinition, error) {
	field, ok := e.byID[id]
	if !ok {
		return model.FieldDefinition{}, fmt.Errorf("%w: %q", ErrUnknownField, id)
	}
	return field, nil
}
