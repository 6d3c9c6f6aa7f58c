// Package engine defines the contract between the coordinator and the
// per-title rule engines. A snapshot is always a pure function of the player
// names and the ordered action history; nothing here is persisted.
package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownTitle is returned when no engine is registered for a title.
var ErrUnknownTitle = errors.New("engine: unknown game title")

// RuleError is returned by State.Process when the game rules reject an action.
type RuleError struct {
	Reason string
}

func (e *RuleError) Error() string { return e.Reason }

// Violation builds a RuleError with a formatted reason.
func Violation(format string, args ...any) error {
	return &RuleError{Reason: fmt.Sprintf(format, args...)}
}

// IsRuleViolation reports whether err (or anything it wraps) is a RuleError.
func IsRuleViolation(err error) bool {
	var re *RuleError
	return errors.As(err, &re)
}

// State is one immutable engine snapshot.
type State interface {
	Round() string
	Turn() int
	ActionCount() int
	Actions() []Action
	ActivePlayers() []string
	Finished() bool
	Result() map[string]any
	// Process applies one more action and returns the resulting snapshot.
	// The receiver is left untouched.
	Process(action Action) (State, error)
}

// Factory rebuilds a snapshot by replaying actions over the given seats.
type Factory func(players []string, actions []Action) (State, error)

// Registry maps game titles to their engine factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory for title.
func (r *Registry) Register(title string, f Factory) {
	if f == nil {
		panic("engine: nil factory for " + title)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[title] = f
}

func (r *Registry) Has(title string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[title]
	return ok
}

// Titles lists registered titles in lexical order.
func (r *Registry) Titles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	titles := make([]string, 0, len(r.factories))
	for t := range r.factories {
		titles = append(titles, t)
	}
	sort.Strings(titles)
	return titles
}

// Load replays actions for title and returns the current snapshot.
func (r *Registry) Load(title string, players []string, actions []Action) (State, error) {
	r.mu.RLock()
	f, ok := r.factories[title]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTitle, title)
	}
	return f(players, actions)
}

// InitialRound is the round name of an empty game of the given title.
func (r *Registry) InitialRound(title string) (string, error) {
	st, err := r.Load(title, nil, nil)
	if err != nil {
		return "", err
	}
	return st.Round(), nil
}

// Replay folds actions into initial one by one. Engines use it to build
// their factories.
func Replay(initial State, actions []Action) (State, error) {
	st := initial
	for i, a := range actions {
		next, err := st.Process(a)
		if err != nil {
			return nil, fmt.Errorf("engine: replaying action %d: %w", i+1, err)
		}
		st = next
	}
	return st, nil
}
