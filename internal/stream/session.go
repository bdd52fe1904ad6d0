package stream

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Config struct {
	BufferSize     int
	ListenerBuffer int
	DropPolicy     DropPolicy
}

func (cfg Config) withDefaults() Config {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.ListenerBuffer <= 0 {
		cfg.ListenerBuffer = 64
	}
	switch cfg.DropPolicy {
	case DropNewest, DropOldest, DropListener:
	default:
		cfg.DropPolicy = DropOldest
	}
	return cfg
}

// Session is the frame log of one transport connection. The transport
// publishes frames; the connection manager and history subscribe.
type Session struct {
	id     string
	kind   Kind
	target string

	ctx    context.Context
	cancel context.CancelFunc
	cfg    Config

	mu        sync.RWMutex
	state     State
	err       error
	events    *ringBuffer
	listeners map[int]*listener
	nextLID   int
	stats     Stats

	done     chan struct{}
	doneOnce sync.Once
}

type Stats struct {
	StartedAt  time.Time
	OpenedAt   time.Time
	EndedAt    time.Time
	FramesSent uint64
	FramesRecv uint64
	BytesTotal uint64
	Dropped    uint64
}

func NewSession(parent context.Context, kind Kind, target string, cfg Config) *Session {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		id:        uuid.NewString(),
		kind:      kind,
		target:    target,
		ctx:       ctx,
		cancel:    cancel,
		cfg:       cfg,
		state:     StateConnecting,
		events:    newRingBuffer(cfg.BufferSize),
		listeners: make(map[int]*listener),
		done:      make(chan struct{}),
		stats:     Stats{StartedAt: time.Now()},
	}
}

func (s *Session) ID() string { return s.id }
func (s *Session) Kind() Kind { return s.kind }
func (s *Session) Target() string { return s.target }
func (s *Session) Context() context.Context { return s.ctx }
func (s *Session) Done() <-chan struct{} { return s.done }
func (s *Session) Cancel() { s.cancel() }

func (s *Session) State() (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.err
}

func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *Session) StatsSnapshot() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

func (s *Session) EventsSnapshot() []*Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.events.snapshot()
}

func (s *Session) Subscribe() Listener {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextLID
	s.nextLID++
	l := newListener(s.cfg.ListenerBuffer, s.cfg.DropPolicy)
	closed := s.state == StateClosed || s.state == StateFailed
	if closed {
		l.close()
	} else {
		s.listeners[id] = l
	}

	return Listener{
		C:      l.ch,
		Cancel: func() { s.unsubscribe(id) },
		Snapshot: Snapshot{
			Events: s.events.snapshot(),
			State:  s.state,
			Err:    s.err,
		},
	}
}

func (s *Session) unsubscribe(id int) {
	s.mu.Lock()
	l, ok := s.listeners[id]
	delete(s.listeners, id)
	s.mu.Unlock()
	if ok {
		l.close()
	}
}

func (s *Session) Publish(evt *Event) {
	if evt == nil {
		return
	}
	evt.Sequence = nextSequence()
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	s.mu.Lock()
	s.events.append(evt)
	switch evt.Direction {
	case DirSend:
		s.stats.FramesSent++
	case DirReceive:
		s.stats.FramesRecv++
	}
	s.stats.BytesTotal += uint64(len(evt.Payload))
	targets := make([]*listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		targets = append(targets, l)
	}
	s.mu.Unlock()

	var dropped uint64
	for _, l := range targets {
		if !l.emit(evt) {
			dropped++
		}
	}
	if dropped > 0 {
		s.mu.Lock()
		s.stats.Dropped += dropped
		s.mu.Unlock()
	}
}

func (s *Session) MarkOpen() {
	s.mu.Lock()
	s.state = StateOpen
	s.stats.OpenedAt = time.Now()
	s.mu.Unlock()
}

func (s *Session) MarkClosing() {
	s.mu.Lock()
	if s.state == StateConnecting || s.state == StateOpen {
		s.state = StateClosing
	}
	s.mu.Unlock()
}

// Close ends the session once; err != nil marks it failed. Later calls
// are ignored so the first reason wins.
func (s *Session) Close(err error) {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		if err != nil {
			s.state = StateFailed
			s.err = err
		} else {
			s.state = StateClosed
		}
		s.stats.EndedAt = time.Now()
		targets := make([]*listener, 0, len(s.listeners))
		for id, l := range s.listeners {
			targets = append(targets, l)
			delete(s.listeners, id)
		}
		s.mu.Unlock()

		s.cancel()
		for _, l := range targets {
			l.close()
		}
		close(s.done)
	})
}
