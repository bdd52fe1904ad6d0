package session

import (
	"sync"
	"time"
)

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateHTTPInFlight
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateHTTPInFlight:
		return "http in flight"
	default:
		return "idle"
	}
}

type EventKind int

const (
	EventStatus EventKind = iota
	EventLog
	EventLabel
)

type Level int

const (
	LevelInfo Level = iota
	LevelSent
	LevelReceived
	LevelWarn
	LevelError
	LevelSuccess
)

func (l Level) String() string {
	switch l {
	case LevelSent:
		return "sent"
	case LevelReceived:
		return "received"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelSuccess:
		return "success"
	default:
		return "info"
	}
}

// Event is what the presentation layer renders: a state change, a log
// line or a new connect-button label.
type Event struct {
	Kind  EventKind
	Level Level
	State State
	Text  string
	Time  time.Time
}

const (
	LabelConnect    = "Connect"
	LabelDisconnect = "Disconnect"
)

const defaultEventBuffer = 256

// eventQueue is a bounded channel that drops the oldest event when full,
// so a stalled renderer never blocks the session loop.
type eventQueue struct {
	mu      sync.Mutex
	ch      chan Event
	dropped uint64
}

func newEventQueue(size int) *eventQueue {
	if size <= 0 {
		size = defaultEventBuffer
	}
	return &eventQueue{ch: make(chan Event, size)}
}

func (q *eventQueue) push(evt Event) {
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		select {
		case q.ch <- evt:
			return
		default:
		}
		select {
		case <-q.ch:
			q.dropped++
		default:
		}
	}
}

func (q *eventQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
