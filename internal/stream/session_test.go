package stream

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSessionPublishAndSubscribe(t *testing.T) {
	s := NewSession(context.Background(), KindWebSocket, "ws://echo", Config{BufferSize: 4, ListenerBuffer: 2})
	s.MarkOpen()
	listener := s.Subscribe()

	s.Publish(&Event{Kind: KindWebSocket, Direction: DirReceive, Frame: FrameText, Payload: []byte("hello")})

	select {
	case received := <-listener.C:
		if string(received.Payload) != "hello" {
			t.Fatalf("expected payload hello, got %q", string(received.Payload))
		}
		if received.Sequence == 0 || received.Timestamp.IsZero() {
			t.Fatalf("expected sequence and timestamp to be stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	s.Close(nil)
	listener.Cancel()
	if _, ok := <-listener.C; ok {
		t.Fatalf("expected listener channel to be closed")
	}
	if state, err := s.State(); state != StateClosed || err != nil {
		t.Fatalf("expected closed state, got %v %v", state, err)
	}
}

func TestSessionDropNewestPolicy(t *testing.T) {
	s := NewSession(
		context.Background(),
		KindWebSocket,
		"ws://echo",
		Config{ListenerBuffer: 1, DropPolicy: DropNewest},
	)
	s.MarkOpen()
	listener := s.Subscribe()

	s.Publish(&Event{Direction: DirReceive, Payload: []byte("first")})
	s.Publish(&Event{Direction: DirReceive, Payload: []byte("second")})

	select {
	case evt := <-listener.C:
		if string(evt.Payload) != "first" {
			t.Fatalf("expected first event, got %q", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first event")
	}

	select {
	case evt := <-listener.C:
		t.Fatalf("unexpected event %q", evt.Payload)
	default:
	}

	stats := s.StatsSnapshot()
	if stats.Dropped == 0 {
		t.Fatalf("expected dropped counter to increase")
	}
	if stats.FramesRecv != 2 {
		t.Fatalf("expected 2 received frames, got %d", stats.FramesRecv)
	}
	s.Close(nil)
}

func TestSessionDropOldestKeepsLatest(t *testing.T) {
	s := NewSession(context.Background(), KindWebSocket, "", Config{ListenerBuffer: 1})
	listener := s.Subscribe()

	s.Publish(&Event{Payload: []byte("old")})
	s.Publish(&Event{Payload: []byte("new")})

	evt := <-listener.C
	if string(evt.Payload) != "new" {
		t.Fatalf("expected newest event to survive, got %q", evt.Payload)
	}
	s.Close(nil)
}

func TestSessionRingBufferSnapshot(t *testing.T) {
	s := NewSession(context.Background(), KindWebSocket, "", Config{BufferSize: 2})
	for _, p := range []string{"a", "b", "c"} {
		s.Publish(&Event{Payload: []byte(p)})
	}
	events := s.EventsSnapshot()
	if len(events) != 2 || string(events[0].Payload) != "b" || string(events[1].Payload) != "c" {
		t.Fatalf("unexpected snapshot %v", events)
	}

	late := s.Subscribe()
	if len(late.Snapshot.Events) != 2 {
		t.Fatalf("expected late subscriber to see buffered events")
	}
	s.Close(nil)
}

func TestSessionCloseFirstReasonWins(t *testing.T) {
	s := NewSession(context.Background(), KindWebSocket, "", Config{})
	boom := errors.New("boom")
	s.Close(boom)
	s.Close(nil)

	state, err := s.State()
	if state != StateFailed || !errors.Is(err, boom) {
		t.Fatalf("expected failed state with boom, got %v %v", state, err)
	}
	select {
	case <-s.Context().Done():
	default:
		t.Fatalf("expected context to be cancelled")
	}

	sub := s.Subscribe()
	if _, ok := <-sub.C; ok {
		t.Fatalf("expected subscription on a closed session to be closed")
	}
}
