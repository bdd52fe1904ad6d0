package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/unkn0wn-root/wscls/internal/errdef"
	"github.com/unkn0wn-root/wscls/internal/stream"
)

func startEchoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Token") != "secret" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			t.Errorf("websocket accept failed: %v", err)
			return
		}
		defer func() {
			_ = conn.Close(websocket.StatusNormalClosure, "bye")
		}()

		ctx := r.Context()
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if string(data) == "quit" {
				_ = conn.Close(websocket.StatusGoingAway, "server quit")
				return
			}
			if err := conn.Write(ctx, typ, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/echo"
}

func dialEcho(t *testing.T, srv *httptest.Server) *WebSocket {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ws, err := NewClient().DialWebSocket(ctx, Request{
		URL:     wsURL(srv),
		Headers: map[string]string{"X-Token": "secret"},
	}, Options{HandshakeTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("DialWebSocket: %v", err)
	}
	return ws
}

func nextEvent(t *testing.T, ch <-chan *stream.Event, match func(*stream.Event) bool) *stream.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				t.Fatalf("listener closed before expected event")
			}
			if match(evt) {
				return evt
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event")
		}
	}
}

func TestWebSocketEchoAndPing(t *testing.T) {
	srv := startEchoServer(t)
	ws := dialEcho(t, srv)
	listener := ws.Session.Subscribe()
	defer listener.Cancel()

	if ws.Handshake.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("unexpected handshake status %d", ws.Handshake.StatusCode)
	}

	if err := ws.SendText(context.Background(), "hello"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	evt := nextEvent(t, listener.C, func(e *stream.Event) bool {
		return e.Direction == stream.DirReceive && e.Frame == stream.FrameText
	})
	if string(evt.Payload) != "hello" {
		t.Fatalf("expected echo, got %q", evt.Payload)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rtt, err := ws.Ping(ctx)
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	pong := nextEvent(t, listener.C, func(e *stream.Event) bool { return e.Frame == stream.FramePong })
	if pong.RTT != rtt || rtt <= 0 {
		t.Fatalf("expected pong RTT %v to match %v", pong.RTT, rtt)
	}

	if err := ws.Close(websocket.StatusNormalClosure, ""); err != nil {
		t.Fatalf("Close: %v", err)
	}
	state, stateErr := ws.Session.State()
	if state != stream.StateClosed || stateErr != nil {
		t.Fatalf("expected clean close, got %v %v", state, stateErr)
	}
	if ws.CloseCode() != websocket.StatusNormalClosure {
		t.Fatalf("expected close code 1000, got %d", ws.CloseCode())
	}
	if err := ws.SendText(context.Background(), "late"); !errdef.Is(err, errdef.CodeTransport) {
		t.Fatalf("expected transport error after close, got %v", err)
	}
}

func TestWebSocketRemoteClose(t *testing.T) {
	srv := startEchoServer(t)
	ws := dialEcho(t, srv)
	listener := ws.Session.Subscribe()
	defer listener.Cancel()

	if err := ws.SendText(context.Background(), "quit"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	evt := nextEvent(t, listener.C, func(e *stream.Event) bool { return e.Frame == stream.FrameClose })
	if evt.Code != websocket.StatusGoingAway || evt.Reason != "server quit" {
		t.Fatalf("unexpected close event %+v", evt)
	}
	select {
	case <-ws.Session.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("session did not end after remote close")
	}
}

func TestWebSocketCancelInterruptsRead(t *testing.T) {
	srv := startEchoServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	ws, err := NewClient().DialWebSocket(ctx, Request{
		URL:     wsURL(srv),
		Headers: map[string]string{"X-Token": "secret"},
	}, Options{})
	if err != nil {
		t.Fatalf("DialWebSocket: %v", err)
	}
	cancel()
	select {
	case <-ws.Session.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("cancel did not interrupt the read loop")
	}
}

func TestWebSocketHandshakeRejected(t *testing.T) {
	srv := startEchoServer(t)
	_, err := NewClient().DialWebSocket(context.Background(), Request{URL: wsURL(srv)}, Options{})
	if err == nil {
		t.Fatalf("expected handshake failure without token")
	}
	if !errdef.Is(err, errdef.CodeTransport) || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected transport error naming the status, got %v", err)
	}
}

func TestWebSocketRejectsBadURL(t *testing.T) {
	_, err := NewClient().DialWebSocket(context.Background(), Request{URL: "ftp://x"}, Options{})
	if !errdef.Is(err, errdef.CodeTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestWebSocketHonorsHostHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Host != "chat.internal.test" {
			http.Error(w, "wrong host "+r.Host, http.StatusMisdirectedRequest)
			return
		}
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ws, err := NewClient().DialWebSocket(ctx, Request{
		URL:     wsURL(srv),
		Headers: map[string]string{"Host": "chat.internal.test"},
	}, Options{HandshakeTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("DialWebSocket: %v", err)
	}
	cancel()
	<-ws.Session.Done()
}
