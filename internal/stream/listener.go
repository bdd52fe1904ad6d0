package stream

import (
	"sync"
	"sync/atomic"
)

type DropPolicy int

const (
	DropNewest DropPolicy = iota
	DropOldest
	DropListener
)

type listener struct {
	ch        chan *Event
	policy    DropPolicy
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// Listener is a subscription to a session. Snapshot holds what was buffered
// before the subscription started.
type Listener struct {
	C        <-chan *Event
	Cancel   func()
	Snapshot Snapshot
}

type Snapshot struct {
	Events []*Event
	State  State
	Err    error
}

func newListener(buffer int, policy DropPolicy) *listener {
	return &listener{ch: make(chan *Event, buffer), policy: policy}
}

func (l *listener) close() {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.ch)
	})
}

// emit reports whether evt was delivered.
func (l *listener) emit(evt *Event) (delivered bool) {
	if l.closed.Load() {
		return false
	}
	defer func() {
		// send on a channel closed by a concurrent Cancel
		if r := recover(); r != nil {
			l.closed.Store(true)
			l.dropped.Add(1)
			delivered = false
		}
	}()

	select {
	case l.ch <- evt:
		return true
	default:
	}

	switch l.policy {
	case DropNewest:
		l.dropped.Add(1)
		return false
	case DropListener:
		l.close()
		return false
	default:
		select {
		case <-l.ch:
		default:
		}
		select {
		case l.ch <- evt:
			return true
		default:
			l.dropped.Add(1)
			return false
		}
	}
}
