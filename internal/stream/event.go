package stream

import (
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
)

type Kind int

const (
	KindWebSocket Kind = iota
	KindHTTP
)

func (k Kind) String() string {
	switch k {
	case KindWebSocket:
		return "ws"
	case KindHTTP:
		return "http"
	default:
		return "unknown"
	}
}

type Direction int

const (
	DirNA Direction = iota
	DirSend
	DirReceive
)

type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Frame identifies what an Event carries on the wire.
type Frame int

const (
	FrameText Frame = iota
	FrameBinary
	FramePing
	FramePong
	FrameClose
)

func (f Frame) String() string {
	switch f {
	case FrameText:
		return "text"
	case FrameBinary:
		return "binary"
	case FramePing:
		return "ping"
	case FramePong:
		return "pong"
	case FrameClose:
		return "close"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind      Kind
	Direction Direction
	Frame     Frame
	Timestamp time.Time
	Sequence  uint64

	Payload []byte

	// close frames only
	Code   websocket.StatusCode
	Reason string

	// pong frames only; measured from the matching ping
	RTT time.Duration
}

var seqCounter uint64

func nextSequence() uint64 {
	return atomic.AddUint64(&seqCounter, 1)
}
