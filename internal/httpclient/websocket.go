package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"nhooyr.io/websocket"

	"github.com/unkn0wn-root/wscls/internal/errdef"
	"github.com/unkn0wn-root/wscls/internal/stream"
	"github.com/unkn0wn-root/wscls/internal/telemetry"
)

const defaultWebSocketSendQueue = 32

type wsOutboundKind int

const (
	wsOutboundMessage wsOutboundKind = iota
	wsOutboundClose
)

type wsOutbound struct {
	ctx     context.Context
	kind    wsOutboundKind
	msgType websocket.MessageType
	payload []byte
	code    websocket.StatusCode
	reason  string
	result  chan error
}

// WebSocket is one open connection. Inbound and outbound frames are
// published to Session; the session ends when the connection does.
type WebSocket struct {
	Session   *stream.Session
	Handshake *Response

	conn      *websocket.Conn
	writeCh   chan wsOutbound
	span      telemetry.RequestSpan
	closeCode atomic.Int64
	local     atomic.Bool
	once      sync.Once
}

// DialWebSocket performs the opening handshake and starts the read and
// write loops. Cancelling ctx tears the connection down.
func (c *Client) DialWebSocket(ctx context.Context, req Request, opts Options) (*WebSocket, error) {
	if err := validateURL(req.URL, "ws", "wss", "http", "https"); err != nil {
		return nil, err
	}

	client, err := c.httpFactory(opts)
	if err != nil {
		return nil, err
	}
	client = upgradeClient(client)

	hdr := make(http.Header)
	if host := applyHeaders(hdr, req.Headers); host != "" {
		client = withHost(client, host)
	}

	_, span := c.telemetry.Start(ctx, telemetry.RequestStart{
		Method:        "WS",
		URL:           req.URL,
		Configuration: opts.Configuration,
		WebSocket:     true,
	})

	handshakeCtx, handshakeCancel := ctxWithTimeout(ctx, opts.HandshakeTimeout)
	defer handshakeCancel()

	start := time.Now()
	conn, resp, err := c.wsDial(handshakeCtx, req.URL, &websocket.DialOptions{
		HTTPClient: client,
		HTTPHeader: hdr,
	})
	if err != nil {
		err = handshakeError(err, resp)
		span.End(telemetry.RequestResult{Err: err, StatusCode: statusOf(resp)})
		return nil, err
	}

	session := stream.NewSession(ctx, stream.KindWebSocket, req.URL, stream.Config{})
	session.MarkOpen()

	ws := &WebSocket{
		Session:   session,
		Handshake: handshakeResponse(resp, time.Since(start)),
		conn:      conn,
		writeCh:   make(chan wsOutbound, defaultWebSocketSendQueue),
		span:      span,
	}
	go ws.readLoop()
	go ws.writeLoop()
	go ws.finish()
	return ws, nil
}

// withHost copies client so every request it sends carries host as its
// Host header. The dialer builds the handshake request itself.
func withHost(client *http.Client, host string) *http.Client {
	out := *client
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	out.Transport = hostTransport{base: base, host: host}
	return &out
}

type hostTransport struct {
	base http.RoundTripper
	host string
}

func (t hostTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Host = t.host
	return t.base.RoundTrip(r)
}

// upgradeClient copies client with HTTP/2 disabled; the upgrade handshake
// needs HTTP/1.1.
func upgradeClient(client *http.Client) *http.Client {
	out := *client
	out.Timeout = 0
	if tr, ok := client.Transport.(*http.Transport); ok {
		clone := tr.Clone()
		clone.ForceAttemptHTTP2 = false
		clone.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
		if clone.TLSClientConfig != nil {
			clone.TLSClientConfig.NextProtos = nil
		}
		out.Transport = clone
	}
	return &out
}

func handshakeError(err error, resp *http.Response) error {
	if resp == nil {
		return errdef.Wrap(errdef.CodeTransport, err, "dial websocket")
	}
	if resp.Body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}
	return errdef.Wrap(errdef.CodeTransport, err, "websocket handshake failed with %s", resp.Status)
}

func handshakeResponse(resp *http.Response, d time.Duration) *Response {
	if resp == nil {
		return &Response{Status: "101 Switching Protocols", StatusCode: http.StatusSwitchingProtocols, Duration: d}
	}
	return &Response{
		Status:     resp.Status,
		StatusCode: resp.StatusCode,
		Proto:      resp.Proto,
		Headers:    resp.Header.Clone(),
		Duration:   d,
	}
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

func ctxWithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func (ws *WebSocket) readLoop() {
	session := ws.Session
	ctx := session.Context()
	defer ws.shutdown()

	for {
		msgType, data, err := ws.conn.Read(ctx)
		if err != nil {
			var ce websocket.CloseError
			switch {
			case ws.local.Load():
				session.Close(nil)
			case errors.As(err, &ce):
				ws.closeCode.Store(int64(ce.Code))
				session.Publish(&stream.Event{
					Kind:      stream.KindWebSocket,
					Direction: stream.DirReceive,
					Frame:     stream.FrameClose,
					Code:      ce.Code,
					Reason:    ce.Reason,
				})
				session.Close(nil)
			case ctx.Err() != nil:
				session.Close(nil)
			default:
				session.Close(errdef.Wrap(errdef.CodeTransport, err, "read websocket message"))
			}
			return
		}

		frame := stream.FrameBinary
		if msgType == websocket.MessageText {
			frame = stream.FrameText
		}
		session.Publish(&stream.Event{
			Kind:      stream.KindWebSocket,
			Direction: stream.DirReceive,
			Frame:     frame,
			Payload:   append([]byte(nil), data...),
		})
	}
}

func (ws *WebSocket) writeLoop() {
	ctx := ws.Session.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ws.writeCh:
			err := ws.performWrite(msg)
			if msg.result != nil {
				msg.result <- err
			}
			if err != nil && msg.kind == wsOutboundMessage {
				ws.Session.Close(err)
				return
			}
			if msg.kind == wsOutboundClose {
				return
			}
		}
	}
}

func (ws *WebSocket) performWrite(msg wsOutbound) error {
	ctx := msg.ctx
	if ctx == nil {
		ctx = ws.Session.Context()
	}

	switch msg.kind {
	case wsOutboundMessage:
		if err := ws.conn.Write(ctx, msg.msgType, msg.payload); err != nil {
			return errdef.Wrap(errdef.CodeTransport, err, "send websocket frame")
		}
		frame := stream.FrameBinary
		if msg.msgType == websocket.MessageText {
			frame = stream.FrameText
		}
		ws.Session.Publish(&stream.Event{
			Kind:      stream.KindWebSocket,
			Direction: stream.DirSend,
			Frame:     frame,
			Payload:   append([]byte(nil), msg.payload...),
		})
		return nil
	case wsOutboundClose:
		ws.local.Store(true)
		ws.closeCode.Store(int64(msg.code))
		ws.Session.MarkClosing()
		ws.Session.Publish(&stream.Event{
			Kind:      stream.KindWebSocket,
			Direction: stream.DirSend,
			Frame:     stream.FrameClose,
			Code:      msg.code,
			Reason:    msg.reason,
		})
		err := ws.conn.Close(msg.code, msg.reason)
		ws.Session.Cancel()
		if err != nil && !isClosedErr(err) {
			return errdef.Wrap(errdef.CodeTransport, err, "close websocket")
		}
		return nil
	default:
		return nil
	}
}

func (ws *WebSocket) enqueue(msg wsOutbound) (err error) {
	sessionCtx := ws.Session.Context()
	if msg.ctx == nil {
		msg.ctx = sessionCtx
	}
	if sessionCtx.Err() != nil {
		return errdef.New(errdef.CodeTransport, "websocket session closed")
	}

	select {
	case ws.writeCh <- msg:
	case <-msg.ctx.Done():
		return msg.ctx.Err()
	case <-sessionCtx.Done():
		return errdef.New(errdef.CodeTransport, "websocket session closed")
	}

	select {
	case err = <-msg.result:
		return err
	case <-msg.ctx.Done():
		return msg.ctx.Err()
	case <-sessionCtx.Done():
		// a close finishes by cancelling the session; prefer its result
		select {
		case err = <-msg.result:
			return err
		default:
		}
		if msg.kind == wsOutboundClose {
			return nil
		}
		return errdef.New(errdef.CodeTransport, "websocket session closed")
	}
}

func (ws *WebSocket) SendText(ctx context.Context, text string) error {
	return ws.enqueue(wsOutbound{
		ctx:     ctx,
		kind:    wsOutboundMessage,
		msgType: websocket.MessageText,
		payload: []byte(text),
		result:  make(chan error, 1),
	})
}

func (ws *WebSocket) SendBinary(ctx context.Context, data []byte) error {
	return ws.enqueue(wsOutbound{
		ctx:     ctx,
		kind:    wsOutboundMessage,
		msgType: websocket.MessageBinary,
		payload: append([]byte(nil), data...),
		result:  make(chan error, 1),
	})
}

// Ping sends a ping and waits for the pong. The send time travels in the
// ping event's payload only; the frame on the wire carries the library's
// own payload, and unsolicited pongs are not reported.
func (ws *WebSocket) Ping(ctx context.Context) (time.Duration, error) {
	if ws.Session.Context().Err() != nil {
		return 0, errdef.New(errdef.CodeTransport, "websocket session closed")
	}
	sent := time.Now()
	ws.Session.Publish(&stream.Event{
		Kind:      stream.KindWebSocket,
		Direction: stream.DirSend,
		Frame:     stream.FramePing,
		Timestamp: sent,
		Payload:   []byte(strconv.FormatInt(sent.UnixNano(), 10)),
	})
	if err := ws.conn.Ping(ctx); err != nil {
		return 0, errdef.Wrap(errdef.CodeTransport, err, "ping websocket")
	}
	rtt := time.Since(sent)
	ws.Session.Publish(&stream.Event{
		Kind:      stream.KindWebSocket,
		Direction: stream.DirReceive,
		Frame:     stream.FramePong,
		RTT:       rtt,
	})
	ws.span.Event("wscls.ws.pong", attribute.Int64("wscls.ws.rtt_ms", rtt.Milliseconds()))
	return rtt, nil
}

// Close performs the closing handshake with code and waits for the
// session to end.
func (ws *WebSocket) Close(code websocket.StatusCode, reason string) error {
	err := ws.enqueue(wsOutbound{
		ctx:    context.Background(),
		kind:   wsOutboundClose,
		code:   code,
		reason: reason,
		result: make(chan error, 1),
	})
	<-ws.Session.Done()
	return err
}

func (ws *WebSocket) shutdown() {
	ws.once.Do(func() {
		ws.Session.Cancel()
		_ = ws.conn.Close(websocket.StatusNormalClosure, "")
	})
}

// finish ends the telemetry span once the session is over.
func (ws *WebSocket) finish() {
	<-ws.Session.Done()
	stats := ws.Session.StatsSnapshot()
	ws.span.End(telemetry.RequestResult{
		Err:        ws.Session.Err(),
		StatusCode: ws.Handshake.StatusCode,
		FramesSent: stats.FramesSent,
		FramesRecv: stats.FramesRecv,
		CloseCode:  int(ws.closeCode.Load()),
	})
}

func isClosedErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return true
	}
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return true
	}
	return websocket.CloseStatus(err) != -1
}

// CloseCode returns the close status seen on the wire, or 0.
func (ws *WebSocket) CloseCode() websocket.StatusCode {
	return websocket.StatusCode(ws.closeCode.Load())
}

func (ws *WebSocket) String() string {
	return fmt.Sprintf("websocket %s (%s)", ws.Session.Target(), ws.Session.ID())
}
