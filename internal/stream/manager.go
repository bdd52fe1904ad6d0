package stream

import (
	"sort"
	"sync"
	"time"
)

// CompletionHook runs once a session has ended, with its buffered events.
type CompletionHook func(summary SessionSummary, events []*Event)

type SessionSummary struct {
	ID        string
	Kind      Kind
	Target    string
	State     State
	Err       error
	StartedAt time.Time
	EndedAt   time.Time
	Stats     Stats
}

// Manager tracks live sessions and fires completion hooks when they end.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*managedSession
	wg       sync.WaitGroup
}

type managedSession struct {
	session *Session
	hooks   []CompletionHook
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*managedSession)}
}

// Register starts watching session. Hooks passed here are attached before
// the watcher starts, so they fire even for a session that is already done.
func (m *Manager) Register(session *Session, hooks ...CompletionHook) SessionSummary {
	if session == nil {
		return SessionSummary{}
	}
	managed := &managedSession{session: session}
	for _, hook := range hooks {
		if hook != nil {
			managed.hooks = append(managed.hooks, hook)
		}
	}

	m.mu.Lock()
	m.sessions[session.ID()] = managed
	m.mu.Unlock()

	m.wg.Add(1)
	go m.watch(managed)
	return summarize(session)
}

func (m *Manager) AddCompletionHook(id string, hook CompletionHook) bool {
	if hook == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	managed, ok := m.sessions[id]
	if ok {
		managed.hooks = append(managed.hooks, hook)
	}
	return ok
}

func (m *Manager) Cancel(id string) bool {
	m.mu.RLock()
	managed := m.sessions[id]
	m.mu.RUnlock()
	if managed == nil {
		return false
	}
	managed.session.Cancel()
	return true
}

// CancelAll cancels every live session.
func (m *Manager) CancelAll() {
	m.mu.RLock()
	live := make([]*Session, 0, len(m.sessions))
	for _, managed := range m.sessions {
		live = append(live, managed.session)
	}
	m.mu.RUnlock()
	for _, s := range live {
		s.Cancel()
	}
}

// List returns live sessions ordered by start time.
func (m *Manager) List() []SessionSummary {
	m.mu.RLock()
	out := make([]SessionSummary, 0, len(m.sessions))
	for _, managed := range m.sessions {
		out = append(out, summarize(managed.session))
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

func (m *Manager) Get(id string) (SessionSummary, bool) {
	m.mu.RLock()
	managed, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return SessionSummary{}, false
	}
	return summarize(managed.session), true
}

// Wait blocks until every registered session has ended and its hooks ran.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) watch(managed *managedSession) {
	defer m.wg.Done()
	session := managed.session
	<-session.Done()

	summary := summarize(session)
	events := session.EventsSnapshot()

	m.mu.Lock()
	hooks := append([]CompletionHook(nil), managed.hooks...)
	delete(m.sessions, session.ID())
	m.mu.Unlock()

	for _, hook := range hooks {
		hook(summary, events)
	}
}

func summarize(s *Session) SessionSummary {
	state, err := s.State()
	stats := s.StatsSnapshot()
	return SessionSummary{
		ID:        s.ID(),
		Kind:      s.Kind(),
		Target:    s.Target(),
		State:     state,
		Err:       err,
		StartedAt: stats.StartedAt,
		EndedAt:   stats.EndedAt,
		Stats:     stats,
	}
}
