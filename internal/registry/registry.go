package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/specialistvlad/biolockgo/internal/stage"
)

// ErrUnknownStage is returned when an identifier has no registered stage.
var ErrUnknownStage = errors.New("unknown stage")

// Module is the interface that all stage packages must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Entry describes one registered stage.
type Entry struct {
	ID     string
	Branch stage.Branch

	// Implicit stages are inserted by the system and ignored when a user
	// lists them.
	Implicit bool
	// CountsReads stages already report read counts, so no validator is
	// inserted for them.
	CountsReads bool
	// SeqProcessing stages transform raw sequence files.
	SeqProcessing bool
	// Notification marks the stage that reports pipeline outcomes. It is
	// reset on every start and invoked when the pipeline fails.
	Notification bool

	New func() stage.Stage
}

// Registry holds all registered stages for a single application instance.
type Registry struct {
	entries map[string]*Entry
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Register adds a stage. It panics on an empty identifier, a missing
// constructor or a duplicate.
func (r *Registry) Register(e *Entry) {
	if e.ID == "" || e.New == nil {
		panic("registry: stage entry needs an ID and a constructor")
	}
	if _, exists := r.entries[e.ID]; exists {
		panic(fmt.Sprintf("stage with id '%s' already registered", e.ID))
	}
	slog.Debug("Registering stage.", "id", e.ID, "branch", e.Branch)
	r.entries[e.ID] = e
}

// Lookup returns the entry for id.
func (r *Registry) Lookup(id string) (*Entry, error) {
	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownStage, id)
	}
	return e, nil
}

// Instantiate constructs a fresh stage for id.
func (r *Registry) Instantiate(id string) (stage.Stage, error) {
	e, err := r.Lookup(id)
	if err != nil {
		return nil, err
	}
	return e.New(), nil
}

// IDs returns every registered identifier, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len is the number of registered stages.
func (r *Registry) Len() int {
	return len(r.entries)
}
