package bindings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/unkn0wn-root/wscls/internal/errdef"
)

// Format identifies the serialization format for shortcut configs.
type Format string

const (
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// Source describes where the bindings config was loaded from.
type Source struct {
	Path   string
	Format Format
}

// ActionID names something a key can trigger.
type ActionID string

const (
	ActionToggleConnection ActionID = "toggle_connection"
	ActionSend             ActionID = "send"
	ActionPing             ActionID = "ping"
	ActionCopyLastLine     ActionID = "copy_last_line"
	ActionCycleFocus       ActionID = "cycle_focus"
	ActionOpenCommand      ActionID = "open_command"
	ActionQuit             ActionID = "quit"
)

type definition struct {
	id       ActionID
	defaults []string
}

var definitions = []definition{
	{id: ActionToggleConnection, defaults: []string{"ctrl+o"}},
	{id: ActionSend, defaults: []string{"ctrl+r"}},
	{id: ActionPing, defaults: []string{"ctrl+p"}},
	{id: ActionCopyLastLine, defaults: []string{"ctrl+y"}},
	{id: ActionCycleFocus, defaults: []string{"tab"}},
	{id: ActionOpenCommand, defaults: []string{":"}},
	{id: ActionQuit, defaults: []string{"ctrl+c"}},
}

func knownAction(id ActionID) bool {
	for _, def := range definitions {
		if def.id == id {
			return true
		}
	}
	return false
}

// Map resolves key strings (as reported by bubbletea) to actions.
type Map struct {
	byKey    map[string]ActionID
	byAction map[ActionID][]string
}

// Load reads bindings.toml or bindings.json from dir. Missing files fall
// back to the defaults; actions absent from the file keep theirs.
func Load(dir string) (*Map, Source, error) {
	candidates := []Source{
		{Path: filepath.Join(dir, "bindings.toml"), Format: FormatTOML},
		{Path: filepath.Join(dir, "bindings.json"), Format: FormatJSON},
	}

	var accumulated error
	for _, candidate := range candidates {
		data, err := os.ReadFile(candidate.Path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			accumulated = errors.Join(
				accumulated,
				errdef.Wrap(errdef.CodeConfig, err, "read bindings %q", candidate.Path),
			)
			continue
		}

		overrides, err := parseConfig(data, candidate.Format)
		if err != nil {
			return nil, Source{}, errdef.Wrap(errdef.CodeConfig, err, "parse bindings %q", candidate.Path)
		}
		built, err := buildMap(overrides)
		if err != nil {
			return nil, Source{}, errdef.Wrap(errdef.CodeConfig, err, "apply bindings %q", candidate.Path)
		}
		return built, candidate, nil
	}

	if accumulated != nil {
		return nil, Source{}, accumulated
	}
	return DefaultMap(), Source{Path: candidates[0].Path, Format: FormatTOML}, nil
}

// DefaultMap builds the built-in bindings without consulting disk.
func DefaultMap() *Map {
	m, err := buildMap(nil)
	if err != nil {
		panic(err)
	}
	return m
}

// Match returns the action bound to key. A nil Map uses the defaults.
func (m *Map) Match(key string) (ActionID, bool) {
	if m == nil {
		m = DefaultMap()
	}
	id, ok := m.byKey[key]
	return id, ok
}

// Keys lists the keys bound to action in configured order.
func (m *Map) Keys(action ActionID) []string {
	if m == nil {
		m = DefaultMap()
	}
	return append([]string(nil), m.byAction[action]...)
}

// Hint renders "key label" pairs for the status line, using the first key
// of each action.
func (m *Map) Hint(labels map[ActionID]string) string {
	parts := make([]string, 0, len(definitions))
	for _, def := range definitions {
		label, ok := labels[def.id]
		if !ok {
			continue
		}
		keys := m.Keys(def.id)
		if len(keys) == 0 {
			continue
		}
		parts = append(parts, keys[0]+" "+label)
	}
	return strings.Join(parts, "  ")
}

type configFile struct {
	Bindings map[string][]string `json:"bindings" toml:"bindings"`
}

func parseConfig(data []byte, format Format) (map[ActionID][]string, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var payload configFile
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
	case FormatJSON:
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}

	overrides := make(map[ActionID][]string, len(payload.Bindings))
	for key, specs := range payload.Bindings {
		id := ActionID(strings.TrimSpace(key))
		if !knownAction(id) {
			return nil, fmt.Errorf("unknown action %q", key)
		}
		keys := make([]string, 0, len(specs))
		for _, spec := range specs {
			k, err := normalizeKey(spec)
			if err != nil {
				return nil, fmt.Errorf("action %q: %w", key, err)
			}
			keys = append(keys, k)
		}
		overrides[id] = keys
	}
	return overrides, nil
}

func buildMap(overrides map[ActionID][]string) (*Map, error) {
	m := &Map{
		byKey:    make(map[string]ActionID),
		byAction: make(map[ActionID][]string, len(definitions)),
	}
	for _, def := range definitions {
		keys := def.defaults
		if custom, ok := overrides[def.id]; ok {
			keys = custom
		}
		m.byAction[def.id] = append([]string(nil), keys...)
	}

	var conflicts []string
	for _, def := range definitions {
		for _, key := range m.byAction[def.id] {
			if other, taken := m.byKey[key]; taken && other != def.id {
				conflicts = append(conflicts, fmt.Sprintf("%q bound to both %s and %s", key, other, def.id))
				continue
			}
			m.byKey[key] = def.id
		}
	}
	if len(conflicts) > 0 {
		sort.Strings(conflicts)
		return nil, fmt.Errorf("conflicting bindings: %s", strings.Join(conflicts, "; "))
	}
	return m, nil
}

// normalizeKey lowercases modifiers and orders them the way bubbletea
// reports them, so "Shift+Ctrl+Up" matches "ctrl+shift+up".
func normalizeKey(spec string) (string, error) {
	trimmed := strings.TrimSpace(spec)
	if trimmed == "" {
		return "", errors.New("empty key")
	}
	if trimmed == "+" || !strings.Contains(trimmed, "+") {
		return strings.ToLower(trimmed), nil
	}
	parts := strings.Split(trimmed, "+")
	base := parts[len(parts)-1]
	if base == "" {
		return "", fmt.Errorf("key %q has no base key", spec)
	}
	var ctrl, alt, shift bool
	for _, p := range parts[:len(parts)-1] {
		switch strings.ToLower(strings.TrimSpace(p)) {
		case "ctrl", "control":
			ctrl = true
		case "alt", "meta", "option":
			alt = true
		case "shift":
			shift = true
		default:
			return "", fmt.Errorf("unknown modifier %q in %q", p, spec)
		}
	}
	var b strings.Builder
	if alt {
		b.WriteString("alt+")
	}
	if ctrl {
		b.WriteString("ctrl+")
	}
	if shift {
		b.WriteString("shift+")
	}
	b.WriteString(strings.ToLower(base))
	return b.String(), nil
}
