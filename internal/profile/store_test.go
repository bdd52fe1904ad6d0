package profile

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/unkn0wn-root/wscls/internal/errdef"
)

func TestDeleteLastConfigurationRecreatesDefault(t *testing.T) {
	s := NewStore()
	if err := s.RenameConfiguration(DefaultName, "prod"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if err := s.SetURL("wss://prod"); err != nil {
		t.Fatalf("set url: %v", err)
	}
	if err := s.DeleteConfiguration("prod"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	names := s.ConfigurationNames()
	if len(names) != 1 || names[0] != DefaultName {
		t.Fatalf("expected only %q, got %v", DefaultName, names)
	}
	if s.ActiveConfigurationName() != DefaultName {
		t.Fatalf("expected active %q, got %q", DefaultName, s.ActiveConfigurationName())
	}
	if got := s.ActiveConfiguration(); !reflect.DeepEqual(got, DefaultConfiguration()) {
		t.Fatalf("expected canonical default, got %+v", got)
	}
}

func TestRenameConfigurationToSelfIsNoop(t *testing.T) {
	s := NewStore()
	if err := s.SetURL("ws://x"); err != nil {
		t.Fatalf("set url: %v", err)
	}
	before := s.State()
	if err := s.RenameConfiguration(DefaultName, DefaultName); err != nil {
		t.Fatalf("rename to self: %v", err)
	}
	if after := s.State(); !reflect.DeepEqual(before, after) {
		t.Fatalf("state changed on self rename:\n%+v\n%+v", before, after)
	}
}

func TestRenameRepointsActive(t *testing.T) {
	s := NewStore()
	mustNil(t, s.CreateConfiguration("b", DefaultConfiguration()))
	mustNil(t, s.RenameConfiguration(DefaultName, " main "))
	if got := s.ActiveConfigurationName(); got != "main" {
		t.Fatalf("expected active to follow rename, got %q", got)
	}
	if e := s.RenameConfiguration("main", "b"); !errors.Is(e, ErrNameTaken) {
		t.Fatalf("expected ErrNameTaken, got %v", e)
	}
	if e := s.RenameConfiguration("missing", "c"); !errdef.Is(e, errdef.CodeValidation) || !errors.Is(e, ErrNotFound) {
		t.Fatalf("expected validation ErrNotFound for missing rename, got %v", e)
	}
}

func TestCreateDuplicateLeavesStoreUnchanged(t *testing.T) {
	s := NewStore()
	if e := s.SetURL("ws://keep"); e != nil {
		t.Fatalf("set url: %v", e)
	}
	before := s.State()
	rev := s.Revision()

	e := s.CreateConfiguration(DefaultName, Configuration{URL: "ws://other"})
	if !errors.Is(e, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", e)
	}
	if !reflect.DeepEqual(before, s.State()) {
		t.Fatalf("store changed after refused create")
	}
	if s.Revision() != rev {
		t.Fatalf("revision moved after refused create")
	}
}

func TestCreateRejectsEmptyName(t *testing.T) {
	s := NewStore()
	if e := s.CreateContext("   ", DefaultContext()); !errors.Is(e, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", e)
	}
}

func TestDeleteActiveMovesToLexicographicFirst(t *testing.T) {
	s := NewStore()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if e := s.CreateContext(name, DefaultContext()); e != nil {
			t.Fatalf("create %s: %v", name, e)
		}
	}
	if e := s.SelectContext("mid"); e != nil {
		t.Fatalf("select: %v", e)
	}
	if e := s.DeleteContext("mid"); e != nil {
		t.Fatalf("delete: %v", e)
	}
	if got := s.ActiveContextName(); got != "alpha" {
		t.Fatalf("expected alpha to become active, got %q", got)
	}
	if e := s.DeleteContext("zeta"); e != nil {
		t.Fatalf("delete inactive: %v", e)
	}
	if got := s.ActiveContextName(); got != "alpha" {
		t.Fatalf("deleting an inactive context moved the pointer to %q", got)
	}
}

func TestDeleteLastTextRecreatesDefault(t *testing.T) {
	s := NewStore()
	if e := s.SetBody("hello"); e != nil {
		t.Fatalf("set body: %v", e)
	}
	if e := s.DeleteText(DefaultName); e != nil {
		t.Fatalf("delete text: %v", e)
	}
	cfg := s.ActiveConfiguration()
	if len(cfg.Texts) != 1 || cfg.TextSelected != DefaultName {
		t.Fatalf("unexpected texts %+v selected %q", cfg.Texts, cfg.TextSelected)
	}
	if cfg.Texts[DefaultName] != DefaultText() {
		t.Fatalf("expected empty default text, got %+v", cfg.Texts[DefaultName])
	}
}

func TestHeadersAndVariablesMayBeEmpty(t *testing.T) {
	s := NewStore()
	if e := s.CreateHeader("Authorization", "Bearer ${token}"); e != nil {
		t.Fatalf("create header: %v", e)
	}
	if e := s.RenameHeader("Authorization", "X-Auth"); e != nil {
		t.Fatalf("rename header: %v", e)
	}
	if e := s.DeleteHeader("X-Auth"); e != nil {
		t.Fatalf("delete header: %v", e)
	}
	if h := s.ActiveConfiguration().Headers; len(h) != 0 {
		t.Fatalf("expected empty headers, got %v", h)
	}
	if e := s.DeleteGlobal("nope"); !errors.Is(e, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", e)
	}
}

func TestVariablesContextOverridesGlobals(t *testing.T) {
	s := NewStore()
	mustNil(t, s.CreateGlobal("host", "global.example"))
	mustNil(t, s.CreateGlobal("token", "g"))
	mustNil(t, s.CreateContextVariable("host", "ctx.example"))

	table := s.Variables()
	if table["host"] != "ctx.example" || table["token"] != "g" {
		t.Fatalf("unexpected table %v", table)
	}

	mustNil(t, s.CreateContext("other", DefaultContext()))
	mustNil(t, s.SelectContext("other"))
	if got := s.Variables()["host"]; got != "global.example" {
		t.Fatalf("expected global after switching context, got %q", got)
	}
}

func TestStickURLToText(t *testing.T) {
	s := NewStore()
	mustNil(t, s.SetFlag(FlagStickURLToText, true))
	mustNil(t, s.SetURL("ws://one"))
	mustNil(t, s.CreateText("second", Text{URL: "http://two", Method: MethodPost}))
	mustNil(t, s.SelectText("second"))

	cfg := s.ActiveConfiguration()
	if cfg.URL != "http://two" || cfg.Method != MethodPost {
		t.Fatalf("expected url/method to follow text, got %q %q", cfg.URL, cfg.Method)
	}
	mustNil(t, s.SelectText(DefaultName))
	cfg = s.ActiveConfiguration()
	if cfg.URL != "ws://one" || cfg.Method != MethodWS {
		t.Fatalf("expected default text target restored, got %q %q", cfg.URL, cfg.Method)
	}
}

func TestStickDisabledKeepsURL(t *testing.T) {
	s := NewStore()
	mustNil(t, s.SetURL("ws://one"))
	mustNil(t, s.CreateText("second", Text{URL: "http://two"}))
	mustNil(t, s.SelectText("second"))
	if got := s.ActiveConfiguration().URL; got != "ws://one" {
		t.Fatalf("expected url unchanged, got %q", got)
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	s := NewStore()
	mustNil(t, s.SetHeader("X-A", "1"))
	mustNil(t, s.SetBody("payload"))
	snap := s.Snapshot()

	mustNil(t, s.SetHeader("X-A", "2"))
	mustNil(t, s.SetBody("changed"))
	snap.Configuration.Headers["X-B"] = "leak"

	if snap.Configuration.Headers["X-A"] != "1" || snap.Body != "payload" {
		t.Fatalf("snapshot observed later mutation: %+v", snap)
	}
	if _, ok := s.ActiveConfiguration().Headers["X-B"]; ok {
		t.Fatalf("snapshot mutation leaked into store")
	}
}

func TestToggleAndParseFlag(t *testing.T) {
	s := NewStore()
	f, e := ParseFlag("auto-reconnect")
	if e != nil || f != FlagAutoReconnect {
		t.Fatalf("ParseFlag: %v %v", f, e)
	}
	on, e := s.ToggleFlag(f)
	if e != nil || on {
		t.Fatalf("expected auto_reconnect toggled off, got %v %v", on, e)
	}
	if _, e := ParseFlag("bogus"); !errors.Is(e, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for unknown flag")
	}
	if _, e := ParseMethod("trace"); e == nil {
		t.Fatalf("expected unknown method to be rejected")
	}
}

func TestConcurrentMutationAndSnapshot(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.SetHeader("X", "v")
				_ = s.DeleteHeader("X")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				snap := s.Snapshot()
				if snap.Configuration.Texts == nil {
					t.Errorf("torn snapshot")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestNormalizeRepairsState(t *testing.T) {
	st := State{
		Configurations:        map[string]Configuration{"b": {URL: "ws://b"}, "a": {}},
		SelectedConfiguration: "gone",
	}
	got := NewStoreFrom(st).State()
	if got.SelectedConfiguration != "a" {
		t.Fatalf("expected fallback to a, got %q", got.SelectedConfiguration)
	}
	if got.SelectedContext != DefaultName || len(got.Contexts) != 1 {
		t.Fatalf("expected default context, got %+v", got.Contexts)
	}
	if got.Configurations["b"].Method != MethodWS || got.Configurations["b"].TextSelected != DefaultName {
		t.Fatalf("expected configuration defaults, got %+v", got.Configurations["b"])
	}
}

func mustNil(t *testing.T, e error) {
	t.Helper()
	if e != nil {
		t.Fatalf("unexpected error: %v", e)
	}
}
