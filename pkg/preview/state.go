package preview

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrReadOnlyField is returned when a caller other than the recomputation pass
// writes a derived field.
var ErrReadOnlyField = errors.New("preview: field is read-only")

// Event is delivered to subscribers once a change has settled, after derived
// fields were recomputed.
type Event struct {
	// FieldID is the field the user changed; empty for resets.
	FieldID string
	// Derived holds the derived values the pass changed.
	Derived map[string]any
	// Values is a snapshot of the full mapping after the pass.
	Values map[string]any
}

// State is the value mapping of one preview session. User writes go through
// Set and may not target read-only keys; the recomputation pass writes those
// through apply.
type State struct {
	mu          sync.RWMutex
	values      map[string]any
	readOnly    map[string]struct{}
	subscribers map[int]func(Event)
	nextSub     int
}

// NewState seeds the state with a copy of values. Keys listed in readOnly
// reject writes through Set.
func NewState(values map[string]any, readOnly ...string) *State {
	s := &State{
		values:      cloneValues(values),
		readOnly:    make(map[string]struct{}, len(readOnly)),
		subscribers: make(map[int]func(Event)),
	}
	for _, id := range readOnly {
		s.readOnly[id] = struct{}{}
	}
	return s
}

// Get returns the value stored for id.
func (s *State) Get(id string) (any, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[id]
	return deepCopy(value), ok
}

// Set writes a user value.
func (s *State) Set(id string, value any) error {
	if s == nil {
		return fmt.Errorf("preview: state is nil")
	}
	if s.ReadOnly(id) {
		return fmt.Errorf("%w: %q", ErrReadOnlyField, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[id] = deepCopy(value)
	return nil
}

// ReadOnly reports whether id is reserved for computed values.
func (s *State) ReadOnly(id string) bool {
	if s == nil {
		return false
	}
	_, ok := s.readOnly[id]
	return ok
}

// Snapshot returns a deep copy of the mapping.
func (s *State) Snapshot() map[string]any {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneValues(s.values)
}

// Subscribe registers fn for settled changes. The returned function removes
// the subscription.
func (s *State) Subscribe(fn func(Event)) (cancel func()) {
	if s == nil || fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
		})
	}
}

// apply runs fn with exclusive access to the live mapping.
func (s *State) apply(fn func(values map[string]any)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.values)
}

// reset replaces the whole mapping.
func (s *State) reset(values map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = cloneValues(values)
}

func (s *State) notify(event Event) {
	s.mu.RLock()
	ids := make([]int, 0, len(s.subscribers))
	for id := range s.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subscribers[id])
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(event)
	}
}

func cloneValues(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = deepCopy(v)
	}
	return out
}

func deepCopy(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return cloneValues(typed)
	case []any:
		clone := make([]any, len(typed))
		for i, v := range typed {
			clone[i] = deepCopy(v)
		}
		return clone
	case []string:
		return append([]string{}, typed...)
	default:
		return typed
	}
}
