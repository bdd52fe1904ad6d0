package profile

import (
	"sync"

	"github.com/unkn0wn-root/wscls/internal/vars"
)

// State is the persisted shape of the whole profile tree.
type State struct {
	Configurations        map[string]Configuration `json:"configurations"`
	SelectedConfiguration string                   `json:"selected_configuration"`
	Globals               map[string]string        `json:"globals"`
	Contexts              map[string]Context       `json:"contexts"`
	SelectedContext       string                   `json:"selected_context"`
}

func DefaultState() State {
	return State{
		Configurations:        map[string]Configuration{DefaultName: DefaultConfiguration()},
		SelectedConfiguration: DefaultName,
		Globals:               map[string]string{},
		Contexts:              map[string]Context{DefaultName: DefaultContext()},
		SelectedContext:       DefaultName,
	}
}

// Normalize returns a deep copy of st that satisfies the store invariants:
// non-empty configuration and context sets with valid selections.
func (st State) Normalize() State {
	out := State{
		Configurations:        make(map[string]Configuration, len(st.Configurations)),
		SelectedConfiguration: st.SelectedConfiguration,
		Globals:               cloneStrings(st.Globals),
		Contexts:              make(map[string]Context, len(st.Contexts)),
		SelectedContext:       st.SelectedContext,
	}
	for name, cfg := range st.Configurations {
		out.Configurations[name] = cfg.Normalize()
	}
	for name, ctx := range st.Contexts {
		out.Contexts[name] = ctx.Clone()
	}
	if len(out.Configurations) == 0 {
		out.Configurations[DefaultName] = DefaultConfiguration()
	}
	if len(out.Contexts) == 0 {
		out.Contexts[DefaultName] = DefaultContext()
	}
	if _, ok := out.Configurations[out.SelectedConfiguration]; !ok {
		out.SelectedConfiguration = firstKey(out.Configurations)
	}
	if _, ok := out.Contexts[out.SelectedContext]; !ok {
		out.SelectedContext = firstKey(out.Contexts)
	}
	return out
}

// Store owns the profile tree. All access goes through one mutex; every
// value handed out is a deep copy.
type Store struct {
	mu    sync.RWMutex
	state State
	rev   uint64
}

func NewStore() *Store {
	return &Store{state: DefaultState()}
}

func NewStoreFrom(st State) *Store {
	return &Store{state: st.Normalize()}
}

// State returns a deep copy of the whole tree.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Normalize()
}

// Replace swaps in a new tree, e.g. after a load.
func (s *Store) Replace(st State) {
	s.mu.Lock()
	s.state = st.Normalize()
	s.rev++
	s.mu.Unlock()
}

// Revision increments on every successful mutation.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rev
}

func (s *Store) mutate(fn func(st *State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(&s.state); err != nil {
		return err
	}
	s.rev++
	return nil
}

// mutateActive edits the selected configuration in place.
func (s *Store) mutateActive(fn func(cfg *Configuration) error) error {
	return s.mutate(func(st *State) error {
		cfg := st.Configurations[st.SelectedConfiguration]
		if err := fn(&cfg); err != nil {
			return err
		}
		st.Configurations[st.SelectedConfiguration] = cfg
		return nil
	})
}

func (s *Store) mutateActiveContext(fn func(ctx *Context) error) error {
	return s.mutate(func(st *State) error {
		ctx := st.Contexts[st.SelectedContext]
		if ctx.Variables == nil {
			ctx.Variables = map[string]string{}
		}
		if err := fn(&ctx); err != nil {
			return err
		}
		st.Contexts[st.SelectedContext] = ctx
		return nil
	})
}

// Variables merges globals with the active context's variables.
func (s *Store) Variables() vars.Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return vars.Resolve(s.state.Globals, s.state.Contexts[s.state.SelectedContext].Variables)
}

// Snapshot is a consistent, independent view of everything a connect
// needs, taken under a single read lock.
type Snapshot struct {
	Name          string
	Context       string
	Configuration Configuration
	Body          string
	Variables     vars.Table
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg := s.state.Configurations[s.state.SelectedConfiguration].Clone()
	return Snapshot{
		Name:          s.state.SelectedConfiguration,
		Context:       s.state.SelectedContext,
		Configuration: cfg,
		Body:          cfg.SelectedText().Text,
		Variables: vars.Resolve(
			s.state.Globals,
			s.state.Contexts[s.state.SelectedContext].Variables,
		),
	}
}
