package session

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/unkn0wn-root/wscls/internal/errdef"
	"github.com/unkn0wn-root/wscls/internal/history"
	"github.com/unkn0wn-root/wscls/internal/httpclient"
	"github.com/unkn0wn-root/wscls/internal/profile"
	"github.com/unkn0wn-root/wscls/internal/stream"
	"github.com/unkn0wn-root/wscls/internal/vars"
)

type Options struct {
	ReconnectDelay   time.Duration
	AutopingInterval time.Duration
	PingTimeout      time.Duration
	EventBuffer      int

	// Render substitutes placeholders. Defaults to vars.RenderEnv.
	Render func(string, vars.Table) string
	// History records finished exchanges when non-nil.
	History *history.Store
	// Streams tracks open WebSocket sessions when non-nil.
	Streams *stream.Manager
	// OnBaseline runs once, after the first successful connect cycle.
	OnBaseline func()
}

func (o Options) withDefaults() Options {
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = time.Second
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = 10 * time.Second
	}
	if o.Render == nil {
		o.Render = vars.RenderEnv
	}
	return o
}

// Manager is the connection state machine. One session runs at a time;
// the connecting parameters being set is what keeps it alive.
type Manager struct {
	store     *profile.Store
	transport Transport
	opts      Options
	events    *eventQueue

	root       context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup
	baseline   sync.Once

	mu     sync.Mutex
	params *Params
	gen    uint64
	cancel context.CancelFunc
	conn   Conn
	state  State
}

func NewManager(store *profile.Store, transport Transport, opts Options) *Manager {
	root, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:      store,
		transport:  transport,
		opts:       opts.withDefaults(),
		events:     newEventQueue(opts.EventBuffer),
		root:       root,
		rootCancel: cancel,
	}
}

func (m *Manager) Events() <-chan Event { return m.events.ch }

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Params returns a copy of the connecting parameters, if a session is wanted.
func (m *Manager) Params() (Params, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.params == nil {
		return Params{}, false
	}
	return m.params.Clone(), true
}

func (m *Manager) Label() string {
	if _, ok := m.Params(); ok {
		return LabelDisconnect
	}
	return LabelConnect
}

// Toggle connects when idle and cancels otherwise, like the connect button.
func (m *Manager) Toggle() error {
	if _, ok := m.Params(); ok {
		m.Cancel()
		return nil
	}
	return m.Connect()
}

// Connect snapshots the active configuration and starts a WebSocket loop
// or a single HTTP cycle.
func (m *Manager) Connect() error {
	return m.start("")
}

func (m *Manager) start(selection string) error {
	snap := m.store.Snapshot()
	params := m.resolve(snap)
	body := snap.Body
	if selection != "" {
		body = selection
	}
	if !params.IsWebSocket() && snap.Configuration.TemplateData {
		body = m.render("body", body, snap.Variables)
	}

	m.mu.Lock()
	if m.params != nil {
		m.mu.Unlock()
		return errdef.New(errdef.CodeTransport, "a session is already running")
	}
	m.gen++
	gen := m.gen
	ctx, cancel := context.WithCancel(m.root)
	m.params = &params
	m.cancel = cancel
	m.state = StateConnecting
	if !params.IsWebSocket() {
		m.state = StateHTTPInFlight
	}
	state := m.state
	m.mu.Unlock()

	m.emitLabel(LabelDisconnect)
	m.emitState(state)
	m.logf(LevelInfo, "Connecting to: %s", params.URL)

	m.wg.Add(1)
	if params.IsWebSocket() {
		go m.runWebSocket(ctx, gen, params.Clone())
	} else {
		go m.runHTTP(ctx, gen, params.Clone(), body)
	}
	return nil
}

func (m *Manager) resolve(snap profile.Snapshot) Params {
	cfg := snap.Configuration
	p := Params{
		Configuration:   snap.Name,
		Context:         snap.Context,
		URL:             cfg.URL,
		Method:          cfg.Method,
		Headers:         make(map[string]string, len(cfg.Headers)),
		Autoping:        cfg.Autoping,
		AutoReconnect:   cfg.AutoReconnect,
		SSLCheck:        cfg.SSLCheck,
		ShowHeaders:     cfg.ShowHeaders,
		FollowRedirects: cfg.FollowRedirects,
	}
	if cfg.TemplateURL {
		p.URL = m.render("url", p.URL, snap.Variables)
	}
	for name, value := range cfg.Headers {
		if cfg.TemplateHeaders {
			value = m.render("header "+name, value, snap.Variables)
		}
		p.Headers[name] = value
	}
	return p
}

// render applies the template and warns about placeholders it could not fill.
func (m *Manager) render(what, tpl string, table vars.Table) string {
	if _, missing := vars.FromTable(table).Expand(tpl); len(missing) > 0 {
		m.logf(LevelWarn, "Unresolved variables in %s: %s", what, strings.Join(missing, ", "))
	}
	return m.opts.Render(tpl, table)
}

// Cancel clears the connecting parameters and tears down any open
// connection with a normal closure.
func (m *Manager) Cancel() {
	m.mu.Lock()
	if m.params == nil {
		m.mu.Unlock()
		return
	}
	m.params = nil
	cancel := m.cancel
	conn := m.conn
	closing := m.state == StateOpen
	if closing {
		m.state = StateClosing
	}
	m.mu.Unlock()

	m.emitLabel(LabelConnect)
	if closing {
		m.emitState(StateClosing)
	}
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
	if cancel != nil {
		cancel()
	}
}

// Send writes the current body to the open WebSocket. When the active
// configuration is plain HTTP it runs one request cycle instead. A
// non-empty selection replaces the body.
func (m *Manager) Send(selection string) error {
	m.mu.Lock()
	conn := m.conn
	open := m.state == StateOpen
	m.mu.Unlock()

	snap := m.store.Snapshot()
	if !open {
		if !snap.Configuration.Method.IsWebSocket() {
			return m.start(selection)
		}
		m.logf(LevelWarn, "Not connected")
		return errdef.New(errdef.CodeTransport, "not connected")
	}

	text := snap.Body
	if selection != "" {
		text = selection
	}
	if snap.Configuration.TemplateData {
		text = m.render("body", text, snap.Variables)
	}
	if err := conn.SendText(m.root, text); err != nil {
		m.logf(LevelError, "Error: %v", err)
		return err
	}
	return nil
}

// Ping sends a ping on the open WebSocket; without one it does nothing.
func (m *Manager) Ping() {
	m.mu.Lock()
	conn := m.conn
	open := m.state == StateOpen
	m.mu.Unlock()
	if !open || conn == nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.ping(conn)
	}()
}

func (m *Manager) ping(conn Conn) {
	ctx, cancel := context.WithTimeout(conn.Stream().Context(), m.opts.PingTimeout)
	defer cancel()
	if _, err := conn.Ping(ctx); err != nil && conn.Stream().Context().Err() == nil {
		m.logf(LevelWarn, "Ping failed: %v", err)
	}
}

// Shutdown cancels any session and waits for background work to stop.
func (m *Manager) Shutdown() {
	m.Cancel()
	m.rootCancel()
	m.wg.Wait()
	if m.opts.Streams != nil {
		m.opts.Streams.Wait()
	}
}

func (m *Manager) wanted(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.params != nil && m.gen == gen
}

func (m *Manager) setState(gen uint64, state State) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	changed := m.state != state
	m.state = state
	m.mu.Unlock()
	if changed {
		m.emitState(state)
	}
}

// finish ends a run: parameters are cleared and the button reverts.
func (m *Manager) finish(gen uint64) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	wasSet := m.params != nil
	m.params = nil
	m.conn = nil
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.state = StateIdle
	m.mu.Unlock()

	m.emitState(StateIdle)
	if wasSet {
		m.emitLabel(LabelConnect)
	}
}

func (m *Manager) runWebSocket(ctx context.Context, gen uint64, p Params) {
	defer m.wg.Done()
	defer m.finish(gen)

	for attempt := 0; m.wanted(gen); attempt++ {
		if attempt > 0 {
			m.logf(LevelWarn, "Reconnecting to: %s", p.URL)
			m.setState(gen, StateConnecting)
		}

		conn, err := m.transport.Dial(ctx, p.target(""))
		if err != nil {
			if ctx.Err() == nil {
				m.logf(LevelError, "Error: %v", err)
			}
		} else {
			m.serve(ctx, gen, p, conn)
		}

		m.setState(gen, StateIdle)
		m.logGen(gen, LevelError, "Disconnected")

		if !p.AutoReconnect || !m.wanted(gen) {
			return
		}
		timer := time.NewTimer(m.opts.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// serve pumps one open connection until it ends.
func (m *Manager) serve(ctx context.Context, gen uint64, p Params, conn Conn) {
	sess := conn.Stream()

	m.mu.Lock()
	if m.gen != gen || m.params == nil {
		m.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		return
	}
	m.conn = conn
	m.state = StateOpen
	m.mu.Unlock()

	m.emitState(StateOpen)
	m.logf(LevelSuccess, "Connected to: %s", p.URL)
	m.markBaseline()
	if m.opts.Streams != nil {
		m.opts.Streams.Register(sess, m.recordWebSocket(p))
	}

	listener := sess.Subscribe()
	defer listener.Cancel()

	if p.Autoping && m.opts.AutopingInterval > 0 {
		m.wg.Add(1)
		go m.autoping(conn)
	}

	for _, evt := range listener.Snapshot.Events {
		m.handleFrame(evt)
	}
	for evt := range listener.C {
		m.handleFrame(evt)
	}
	<-sess.Done()

	if err := sess.Err(); err != nil && ctx.Err() == nil {
		m.logf(LevelError, "Error: %v", err)
	}

	m.mu.Lock()
	if m.gen == gen {
		m.conn = nil
	}
	m.mu.Unlock()
}

func (m *Manager) autoping(conn Conn) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.opts.AutopingInterval)
	defer ticker.Stop()
	done := conn.Stream().Done()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			m.ping(conn)
		}
	}
}

func (m *Manager) handleFrame(evt *stream.Event) {
	if evt == nil {
		return
	}
	switch evt.Direction {
	case stream.DirReceive:
		switch evt.Frame {
		case stream.FrameText:
			m.logf(LevelReceived, "Received: %s", evt.Payload)
		case stream.FrameBinary:
			m.logf(LevelReceived, "Received: %d bytes (binary)", len(evt.Payload))
		case stream.FramePong:
			m.logf(LevelInfo, "Pong received, RTT: %s ms", formatRTT(evt.RTT))
		case stream.FrameClose:
			m.logf(LevelError, "Closed by remote side with code: %d", evt.Code)
		}
	case stream.DirSend:
		switch evt.Frame {
		case stream.FrameText:
			m.logf(LevelSent, "Sent: %s", evt.Payload)
		case stream.FrameBinary:
			m.logf(LevelSent, "Sent: %d bytes (binary)", len(evt.Payload))
		case stream.FrameClose:
			m.logf(LevelInfo, "Closing with code: %d", evt.Code)
		}
	}
}

func formatRTT(d time.Duration) string {
	return fmt.Sprintf("%.3f", float64(d)/float64(time.Millisecond))
}

func (m *Manager) runHTTP(ctx context.Context, gen uint64, p Params, body string) {
	defer m.wg.Done()
	defer m.finish(gen)

	m.logf(LevelSent, "%s %s", p.Method, p.URL)
	if body != "" {
		m.logf(LevelSent, "%s", body)
	}

	resp, err := m.transport.Do(ctx, p.target(body))
	if err != nil {
		if ctx.Err() == nil {
			m.logf(LevelError, "Error: %v", err)
		}
		m.recordHTTP(p, body, nil, err)
		return
	}
	m.markBaseline()

	level := LevelSuccess
	if resp.StatusCode >= http.StatusBadRequest {
		level = LevelWarn
	}
	m.logf(level, "%s %s (%s)", resp.Proto, resp.Status, resp.Duration.Round(time.Millisecond))
	if p.ShowHeaders {
		for _, line := range httpclient.HeaderLines(resp.Headers) {
			m.logf(LevelReceived, "%s", line)
		}
	}
	if len(resp.Body) > 0 {
		m.logf(LevelReceived, "%s", resp.Body)
	}
	m.recordHTTP(p, body, resp, nil)
}

func (m *Manager) markBaseline() {
	if m.opts.OnBaseline == nil {
		return
	}
	m.baseline.Do(m.opts.OnBaseline)
}

func (m *Manager) recordHTTP(p Params, body string, resp *httpclient.Response, err error) {
	if m.opts.History == nil {
		return
	}
	entry := history.Entry{
		Configuration: p.Configuration,
		Context:       p.Context,
		Method:        string(p.Method),
		URL:           p.URL,
		RequestText:   body,
	}
	if resp != nil {
		entry.Status = resp.Status
		entry.StatusCode = resp.StatusCode
		entry.Duration = resp.Duration
		entry.BodySnippet = string(resp.Body)
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if _, err := m.opts.History.Append(entry); err != nil {
		m.logf(LevelWarn, "History: %v", err)
	}
}

func (m *Manager) recordWebSocket(p Params) stream.CompletionHook {
	if m.opts.History == nil {
		return nil
	}
	store := m.opts.History
	return func(summary stream.SessionSummary, events []*stream.Event) {
		entry := history.Entry{
			ExecutedAt:    summary.StartedAt,
			Configuration: p.Configuration,
			Context:       p.Context,
			Method:        string(p.Method),
			URL:           p.URL,
			Status:        summary.State.String(),
			Duration:      summary.EndedAt.Sub(summary.StartedAt),
			FramesSent:    summary.Stats.FramesSent,
			FramesRecv:    summary.Stats.FramesRecv,
		}
		var sent []string
		for _, evt := range events {
			switch {
			case evt.Frame == stream.FrameClose:
				entry.CloseCode = int(evt.Code)
			case evt.Direction == stream.DirSend && evt.Frame == stream.FrameText:
				sent = append(sent, string(evt.Payload))
			case evt.Direction == stream.DirReceive && evt.Frame == stream.FrameText:
				entry.BodySnippet = string(evt.Payload)
			}
		}
		entry.RequestText = strings.Join(sent, "\n")
		if summary.Err != nil {
			entry.Error = summary.Err.Error()
		}
		if _, err := store.Append(entry); err != nil {
			m.logf(LevelWarn, "History: %v", err)
		}
	}
}

func (m *Manager) emitState(state State) {
	m.events.push(Event{Kind: EventStatus, State: state, Text: state.String()})
}

func (m *Manager) emitLabel(label string) {
	m.events.push(Event{Kind: EventLabel, Text: label})
}

func (m *Manager) logf(level Level, format string, args ...any) {
	m.events.push(Event{Kind: EventLog, Level: level, Text: fmt.Sprintf(format, args...)})
}

// logGen logs only while gen is still the newest run.
func (m *Manager) logGen(gen uint64, level Level, format string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return
	}
	m.logf(level, format, args...)
}
