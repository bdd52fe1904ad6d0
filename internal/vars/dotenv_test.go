package vars

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseDotEnv(t *testing.T) {
	t.Setenv("WSCLS_DOTENV_HOST", "from-os")

	src := strings.Join([]string{
		"# comment",
		"export HOST=api.local",
		"URL=ws://${HOST}/socket # trailing",
		`QUOTED="a\tb"`,
		"LITERAL='${HOST}'",
		"OS=$WSCLS_DOTENV_HOST",
		"EMPTY=",
	}, "\n")

	values, err := ParseDotEnv(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParseDotEnv: %v", err)
	}
	want := map[string]string{
		"HOST":    "api.local",
		"URL":     "ws://api.local/socket",
		"QUOTED":  "a\tb",
		"LITERAL": "${HOST}",
		"OS":      "from-os",
		"EMPTY":   "",
	}
	for k, v := range want {
		if values[k] != v {
			t.Fatalf("%s = %q, want %q", k, values[k], v)
		}
	}
}

func TestParseDotEnvErrors(t *testing.T) {
	cases := []string{
		"NOEQUALS",
		"=value",
		`A="unterminated`,
		"A=${UNDEFINED_WSCLS_VAR}",
		`A="x" junk`,
	}
	for _, src := range cases {
		if _, err := ParseDotEnv(strings.NewReader(src)); err == nil {
			t.Fatalf("expected error for %q", src)
		}
	}
}

func TestLoadDotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("TOKEN=abc\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	values, err := LoadDotEnv(path)
	if err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if values["TOKEN"] != "abc" {
		t.Fatalf("unexpected values %v", values)
	}
	if _, err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
