package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadSettingsReturnsDefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WSCLS_CONFIG_DIR", dir)

	settings, handle, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings returned error: %v", err)
	}
	expectedPath := filepath.Join(dir, "settings.toml")
	if handle.Path != expectedPath {
		t.Fatalf("expected handle path %q, got %q", expectedPath, handle.Path)
	}
	if handle.Format != SettingsFormatTOML {
		t.Fatalf("expected format %q, got %q", SettingsFormatTOML, handle.Format)
	}
	if settings.ReconnectDelay.Std() != time.Second {
		t.Fatalf("expected 1s reconnect delay, got %v", settings.ReconnectDelay.Std())
	}
	if !settings.HistoryEnabled || settings.HistoryLimit != DefaultHistoryLimit {
		t.Fatalf("unexpected history defaults: %+v", settings)
	}
}

func TestSaveAndLoadSettingsTOML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WSCLS_CONFIG_DIR", dir)

	want := DefaultSettings()
	want.ReconnectDelay = Duration(250 * time.Millisecond)
	want.HistoryEnabled = false
	want.RootCAs = []string{"ca.pem"}
	if err := SaveSettings(want, SettingsHandle{}); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "settings.toml"))
	if err != nil {
		t.Fatalf("read saved settings: %v", err)
	}
	if !strings.Contains(string(data), "250ms") {
		t.Fatalf("expected textual duration in toml, got:\n%s", data)
	}

	got, handle, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if got.ReconnectDelay != want.ReconnectDelay {
		t.Fatalf("expected delay %v, got %v", want.ReconnectDelay.Std(), got.ReconnectDelay.Std())
	}
	if got.HistoryEnabled {
		t.Fatalf("expected history disabled after round trip")
	}
	if len(got.RootCAs) != 1 || got.RootCAs[0] != "ca.pem" {
		t.Fatalf("unexpected root cas %v", got.RootCAs)
	}
	if handle.Format != SettingsFormatTOML {
		t.Fatalf("expected format %q after save, got %q", SettingsFormatTOML, handle.Format)
	}
}

func TestLoadSettingsJSONKeepsDefaultsForMissingKeys(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WSCLS_CONFIG_DIR", dir)

	payload := map[string]any{"request_timeout": "5s", "log_file": ""}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		t.Fatalf("marshal json: %v", err)
	}
	path := filepath.Join(dir, "settings.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write json settings: %v", err)
	}

	got, handle, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if got.RequestTimeout.Std() != 5*time.Second {
		t.Fatalf("expected 5s request timeout, got %v", got.RequestTimeout.Std())
	}
	if got.HandshakeTimeout.Std() != DefaultHandshakeTimeout {
		t.Fatalf("expected default handshake timeout, got %v", got.HandshakeTimeout.Std())
	}
	if got.LogFile != "" {
		t.Fatalf("expected explicit empty log file to be kept, got %q", got.LogFile)
	}
	if handle.Format != SettingsFormatJSON || handle.Path != path {
		t.Fatalf("unexpected handle %+v", handle)
	}
}

func TestLoadSettingsRejectsUnknownJSONKeys(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WSCLS_CONFIG_DIR", dir)

	if err := os.WriteFile(filepath.Join(dir, "settings.json"), []byte(`{"theme":"x"}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := LoadSettings(); err == nil {
		t.Fatalf("expected unknown key to be rejected")
	}
}

func TestLoadSettingsRejectsBadDuration(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WSCLS_CONFIG_DIR", dir)

	if err := os.WriteFile(filepath.Join(dir, "settings.toml"), []byte("reconnect_delay = 'soon'\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	settings, _, err := LoadSettings()
	if err == nil {
		t.Fatalf("expected parse error")
	}
	if settings.ReconnectDelay.Std() != DefaultReconnectDelay {
		t.Fatalf("expected defaults alongside parse error")
	}
}

func TestWriteFileAtomicReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("old"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("new"), 0o600); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "new" {
		t.Fatalf("expected replaced content, got %q", data)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected temp file cleanup, found %d entries", len(entries))
	}
}

func TestPaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WSCLS_CONFIG_DIR", dir)
	t.Setenv("HOME", dir)

	if got := HistoryPath(); got != filepath.Join(dir, "history.db") {
		t.Fatalf("unexpected history path %q", got)
	}
	if got := LogPath("wscls.log"); got != filepath.Join(dir, "wscls.log") {
		t.Fatalf("unexpected log path %q", got)
	}
	if got := LogPath(""); got != "" {
		t.Fatalf("expected empty log path, got %q", got)
	}
	state, err := DefaultStatePath()
	if err != nil {
		t.Fatalf("DefaultStatePath: %v", err)
	}
	if filepath.Base(state) != ".wscls.json" {
		t.Fatalf("unexpected state path %q", state)
	}
}
