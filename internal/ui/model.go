package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/unkn0wn-root/wscls/internal/bindings"
	"github.com/unkn0wn-root/wscls/internal/profile"
	"github.com/unkn0wn-root/wscls/internal/session"
	"github.com/unkn0wn-root/wscls/internal/watcher"
)

var _ tea.Model = (*Model)(nil)

type focusArea int

const (
	focusURL focusArea = iota
	focusBody
	focusLog
	focusCommand
)

const (
	maxLogLines = 2000
	bodyHeight  = 6
)

type sessionEventMsg struct {
	event session.Event
}

type fileEventMsg struct {
	event watcher.Event
}

type actionMsg struct {
	err error
}

type statusMsg struct {
	text string
	err  bool
}

type Config struct {
	Store      *profile.Store
	Session    *session.Manager
	Commands   Commands
	// Bindings maps keys to actions; nil uses the defaults.
	Bindings   *bindings.Map
	// Watcher reports outside edits to the files returned by WatchPaths.
	Watcher    *watcher.Watcher
	WatchPaths func() []string
	// Notices are startup problems shown as warnings in the log.
	Notices []string
}

var hintLabels = map[bindings.ActionID]string{
	bindings.ActionToggleConnection: "connect",
	bindings.ActionSend:             "send",
	bindings.ActionPing:             "ping",
	bindings.ActionCopyLastLine:     "copy",
	bindings.ActionCycleFocus:       "focus",
	bindings.ActionOpenCommand:      "command (from log)",
}

// Model is the single screen: status line, URL input, log, body editor
// and command bar.
type Model struct {
	store   *profile.Store
	session *session.Manager
	cmds    Commands
	keys    *bindings.Map
	watch   *watcher.Watcher
	paths   func() []string

	url     textinput.Model
	body    textarea.Model
	log     viewport.Model
	command textinput.Model

	focus     focusArea
	prevFocus focusArea
	lines     []string
	plain     []string
	state     session.State
	label     string
	status    statusMsg
	width     int
	height    int
	color     bool
	styles    styles
	copyFn    func(string) error
}

func New(cfg Config) *Model {
	color := colorEnabled()
	if cfg.Commands.Store == nil {
		cfg.Commands.Store = cfg.Store
	}
	if cfg.Bindings == nil {
		cfg.Bindings = bindings.DefaultMap()
	}

	url := textinput.New()
	url.Prompt = "URL "
	url.Placeholder = "ws://localhost:8080/socket"

	body := textarea.New()
	body.Placeholder = "Message body"
	body.ShowLineNumbers = false

	command := textinput.New()
	command.Prompt = ":"

	m := &Model{
		store:   cfg.Store,
		session: cfg.Session,
		cmds:    cfg.Commands,
		keys:    cfg.Bindings,
		watch:   cfg.Watcher,
		paths:   cfg.WatchPaths,
		url:     url,
		body:    body,
		log:     viewport.New(80, 10),
		command: command,
		label:   session.LabelConnect,
		color:   color,
		styles:  newStyles(color),
		copyFn:  clipboard.WriteAll,
	}
	m.syncFromStore()
	m.syncWatch()
	m.setFocus(focusURL)
	m.setStatus(m.keys.Hint(hintLabels), false)
	for _, notice := range cfg.Notices {
		m.appendLine(session.LevelWarn, notice)
	}
	return m
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForEvent(), m.waitForFileEvent())
}

func (m *Model) waitForFileEvent() tea.Cmd {
	if m.watch == nil {
		return nil
	}
	ch := m.watch.Events()
	return func() tea.Msg {
		evt, ok := <-ch
		if !ok {
			return nil
		}
		return fileEventMsg{event: evt}
	}
}

// syncWatch follows link and import commands so newly linked files are
// watched too.
func (m *Model) syncWatch() {
	if m.watch == nil || m.paths == nil {
		return
	}
	m.watch.Sync(m.paths())
}

func (m *Model) waitForEvent() tea.Cmd {
	if m.session == nil {
		return nil
	}
	ch := m.session.Events()
	return func() tea.Msg {
		return sessionEventMsg{event: <-ch}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil
	case sessionEventMsg:
		m.applyEvent(msg.event)
		return m, m.waitForEvent()
	case fileEventMsg:
		m.appendLine(session.LevelWarn, fmt.Sprintf(
			"%s was %s on disk; saving on exit will ask before overwriting it",
			msg.event.Path, msg.event.Kind))
		return m, m.waitForFileEvent()
	case actionMsg:
		if msg.err != nil {
			m.setStatus(msg.err.Error(), true)
		}
		return m, nil
	case statusMsg:
		m.status = msg
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m.forward(msg)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	action, bound := m.keys.Match(key)
	if bound && action == bindings.ActionQuit {
		return m, tea.Quit
	}
	if m.focus == focusCommand {
		switch key {
		case "esc":
			m.command.SetValue("")
			m.setFocus(m.prevFocus)
			return m, nil
		case "enter":
			line := strings.TrimSpace(m.command.Value())
			m.command.SetValue("")
			m.setFocus(m.prevFocus)
			return m, m.runCommand(line)
		}
		return m.forward(msg)
	}
	if !bound {
		return m.forward(msg)
	}

	switch action {
	case bindings.ActionToggleConnection:
		mgr := m.session
		return m, func() tea.Msg { return actionMsg{err: mgr.Toggle()} }
	case bindings.ActionSend:
		mgr := m.session
		return m, func() tea.Msg { return actionMsg{err: mgr.Send("")} }
	case bindings.ActionPing:
		m.session.Ping()
		return m, nil
	case bindings.ActionCopyLastLine:
		return m, m.copyLastLine()
	case bindings.ActionCycleFocus:
		m.setFocus((m.focus + 1) % focusCommand)
		return m, nil
	case bindings.ActionOpenCommand:
		// The URL and body take ':' as text.
		if m.focus == focusLog {
			m.prevFocus = m.focus
			m.setFocus(focusCommand)
			return m, nil
		}
	}
	return m.forward(msg)
}

// forward hands msg to the focused widget and writes edits back to the store.
func (m *Model) forward(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.focus {
	case focusURL:
		before := m.url.Value()
		m.url, cmd = m.url.Update(msg)
		if after := m.url.Value(); after != before {
			if err := m.store.SetURL(after); err != nil {
				m.setStatus(err.Error(), true)
			}
		}
	case focusBody:
		before := m.body.Value()
		m.body, cmd = m.body.Update(msg)
		if after := m.body.Value(); after != before {
			if err := m.store.SetBody(after); err != nil {
				m.setStatus(err.Error(), true)
			}
		}
	case focusLog:
		m.log, cmd = m.log.Update(msg)
	case focusCommand:
		m.command, cmd = m.command.Update(msg)
	}
	return m, cmd
}

func (m *Model) runCommand(line string) tea.Cmd {
	if line == "" {
		return nil
	}
	if text, ok := strings.CutPrefix(line, "send "); ok {
		mgr := m.session
		return func() tea.Msg { return actionMsg{err: mgr.Send(text)} }
	}
	res, err := m.cmds.Run(line)
	if err != nil {
		m.setStatus(err.Error(), true)
		return nil
	}
	for _, l := range res.Lines {
		m.appendLine(session.LevelInfo, l)
	}
	m.syncFromStore()
	m.syncWatch()
	m.setStatus(res.Status, false)
	return nil
}

func (m *Model) copyLastLine() tea.Cmd {
	if len(m.plain) == 0 {
		m.setStatus("Nothing to copy", false)
		return nil
	}
	text := m.plain[len(m.plain)-1]
	copyFn := m.copyFn
	return func() tea.Msg {
		if err := copyFn(text); err != nil {
			return statusMsg{text: "Clipboard unavailable: " + err.Error(), err: true}
		}
		return statusMsg{text: fmt.Sprintf("Copied %d bytes", len(text))}
	}
}

func (m *Model) applyEvent(evt session.Event) {
	switch evt.Kind {
	case session.EventStatus:
		m.state = evt.State
	case session.EventLabel:
		m.label = evt.Text
	case session.EventLog:
		text := evt.Text
		if evt.Level == session.LevelReceived {
			text = prettyPayload(text, m.color)
		}
		m.appendLineAt(evt.Time, evt.Level, text)
	}
}

func (m *Model) appendLine(level session.Level, text string) {
	m.appendLineAt(time.Now(), level, text)
}

func (m *Model) appendLineAt(at time.Time, level session.Level, text string) {
	line := at.Format("15:04:05") + " " + text
	style, ok := m.styles.levels[level]
	if !ok {
		style = lipgloss.NewStyle()
	}
	m.lines = append(m.lines, style.Render(line))
	m.plain = append(m.plain, plainText(line))
	if len(m.lines) > maxLogLines {
		m.lines = m.lines[len(m.lines)-maxLogLines:]
		m.plain = m.plain[len(m.plain)-maxLogLines:]
	}
	atBottom := m.log.AtBottom()
	m.log.SetContent(strings.Join(m.lines, "\n"))
	if atBottom || m.focus != focusLog {
		m.log.GotoBottom()
	}
}

// syncFromStore reloads the inputs after the active configuration or
// text changed underneath them.
func (m *Model) syncFromStore() {
	snap := m.store.Snapshot()
	if m.url.Value() != snap.Configuration.URL {
		m.url.SetValue(snap.Configuration.URL)
	}
	if m.body.Value() != snap.Body {
		m.body.SetValue(snap.Body)
	}
}

func (m *Model) setFocus(f focusArea) {
	m.focus = f
	m.url.Blur()
	m.body.Blur()
	m.command.Blur()
	switch f {
	case focusURL:
		m.url.Focus()
	case focusBody:
		m.body.Focus()
	case focusCommand:
		m.command.Focus()
	}
}

func (m *Model) setStatus(text string, isErr bool) {
	m.status = statusMsg{text: text, err: isErr}
}

func (m *Model) layout() {
	w := m.width - 2
	if w < 10 {
		w = 10
	}
	m.url.Width = w - len(m.url.Prompt) - 1
	m.body.SetWidth(w)
	m.body.SetHeight(bodyHeight)
	m.command.Width = w

	// status + url box + body box + command line
	used := 1 + 3 + (bodyHeight + 2) + 1 + 2
	logHeight := m.height - used
	if logHeight < 3 {
		logHeight = 3
	}
	m.log.Width = w
	m.log.Height = logHeight
	m.log.SetContent(strings.Join(m.lines, "\n"))
}

func (m *Model) View() string {
	box := func(f focusArea, content string) string {
		style := m.styles.blurred
		if m.focus == f {
			style = m.styles.focused
		}
		return style.Width(m.log.Width).Render(content)
	}

	sections := []string{
		m.statusLine(),
		box(focusURL, m.url.View()),
		box(focusLog, m.log.View()),
		box(focusBody, m.body.View()),
		m.bottomLine(),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) statusLine() string {
	snap := m.store.Snapshot()
	info := fmt.Sprintf("wscls │ config: %s │ context: %s │ text: %s │ %s │ %s",
		snap.Name,
		snap.Context,
		snap.Configuration.TextSelected,
		snap.Configuration.Method,
		m.state,
	)
	label := m.styles.label.Render(m.label)
	room := m.width - lipgloss.Width(label) - 2
	return lipgloss.JoinHorizontal(lipgloss.Top, m.styles.status.Render(truncateWidth(info, room)), label)
}

func (m *Model) bottomLine() string {
	if m.focus == focusCommand {
		return m.command.View()
	}
	style := m.styles.status
	if m.status.err {
		style = m.styles.statusErr
	}
	return style.Render(truncateWidth(m.status.text, m.width-2))
}
