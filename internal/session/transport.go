package session

import (
	"context"
	"time"

	"nhooyr.io/websocket"

	"github.com/unkn0wn-root/wscls/internal/httpclient"
	"github.com/unkn0wn-root/wscls/internal/stream"
)

// Target is one resolved request handed to a Transport.
type Target struct {
	Method          string
	URL             string
	Headers         map[string]string
	Body            string
	SSLCheck        bool
	FollowRedirects bool
	Configuration   string
}

// Conn is an open WebSocket. Its frames, including the final close,
// are published on Stream.
type Conn interface {
	Stream() *stream.Session
	SendText(ctx context.Context, text string) error
	Ping(ctx context.Context) (time.Duration, error)
	Close(code websocket.StatusCode, reason string) error
}

type Transport interface {
	Dial(ctx context.Context, target Target) (Conn, error)
	Do(ctx context.Context, target Target) (*httpclient.Response, error)
}

// ClientTransport runs targets through an httpclient.Client. Base carries
// timeouts and TLS files; per-target toggles override Verify and
// FollowRedirects.
type ClientTransport struct {
	Client *httpclient.Client
	Base   httpclient.Options
}

func NewClientTransport(client *httpclient.Client, base httpclient.Options) *ClientTransport {
	if client == nil {
		client = httpclient.NewClient()
	}
	return &ClientTransport{Client: client, Base: base}
}

func (t *ClientTransport) options(target Target) httpclient.Options {
	opts := t.Base
	opts.TLS.RootCAs = append([]string(nil), t.Base.TLS.RootCAs...)
	opts.TLS.Verify = target.SSLCheck
	opts.FollowRedirects = target.FollowRedirects
	opts.Configuration = target.Configuration
	return opts
}

func (t *ClientTransport) request(target Target) httpclient.Request {
	return httpclient.Request{
		Method:  target.Method,
		URL:     target.URL,
		Headers: target.Headers,
		Body:    target.Body,
	}
}

func (t *ClientTransport) Dial(ctx context.Context, target Target) (Conn, error) {
	ws, err := t.Client.DialWebSocket(ctx, t.request(target), t.options(target))
	if err != nil {
		return nil, err
	}
	return wsConn{ws}, nil
}

func (t *ClientTransport) Do(ctx context.Context, target Target) (*httpclient.Response, error) {
	return t.Client.Execute(ctx, t.request(target), t.options(target))
}

type wsConn struct {
	*httpclient.WebSocket
}

func (c wsConn) Stream() *stream.Session { return c.Session }
