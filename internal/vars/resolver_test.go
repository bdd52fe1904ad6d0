package vars

import (
	"reflect"
	"testing"
)

func TestResolveContextOverridesGlobals(t *testing.T) {
	t.Parallel()

	globals := map[string]string{"host": "global.example", "token": "g-token", "only": "g"}
	ctx := map[string]string{"host": "ctx.example", "extra": "c"}

	table := Resolve(globals, ctx)
	for k, want := range map[string]string{
		"host":  "ctx.example",
		"token": "g-token",
		"only":  "g",
		"extra": "c",
	} {
		if got := table[k]; got != want {
			t.Fatalf("table[%q] = %q, want %q", k, got, want)
		}
	}
	if len(table) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(table))
	}
	if globals["host"] != "global.example" {
		t.Fatalf("Resolve must not mutate its inputs")
	}
}

func TestResolveNilScopes(t *testing.T) {
	t.Parallel()

	if table := Resolve(nil, nil); table == nil || len(table) != 0 {
		t.Fatalf("expected empty non-nil table, got %#v", table)
	}
}

func TestRender(t *testing.T) {
	t.Parallel()

	table := Table{"host": "localhost:8080", "id": "42"}
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "ws://localhost/echo", "ws://localhost/echo"},
		{"known", "ws://${host}/items/${id}", "ws://localhost:8080/items/42"},
		{"missing", "${missing}", "${missing}"},
		{"mixed", "${host}/${nope}", "localhost:8080/${nope}"},
		{"spaces", "${ host }", "localhost:8080"},
		{"other syntax", "{{host}} $host", "{{host}} $host"},
		{"unterminated", "${host", "${host"},
	}
	for _, tc := range cases {
		if got := Render(tc.in, table); got != tc.want {
			t.Fatalf("%s: Render(%q) = %q, want %q", tc.name, tc.in, got, tc.want)
		}
	}
}

func TestRenderEmptyTableLeavesPlaceholders(t *testing.T) {
	t.Parallel()

	if got := Render("${missing}", Table{}); got != "${missing}" {
		t.Fatalf("expected placeholder verbatim, got %q", got)
	}
}

func TestRenderIdempotentWithoutPlaceholders(t *testing.T) {
	t.Parallel()

	in := `{"op":"subscribe","channel":"ticker"}`
	once := Render(in, Table{"op": "x"})
	if once != in || Render(once, Table{"op": "x"}) != in {
		t.Fatalf("expected input without placeholders to be unchanged")
	}
}

func TestPlaceholdersAndMissing(t *testing.T) {
	t.Parallel()

	tpl := "${a}/${b}/${a}/${c}"
	if got := Placeholders(tpl); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("unexpected placeholders %v", got)
	}
	if got := Missing(tpl, Table{"b": "1"}); !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Fatalf("unexpected missing %v", got)
	}
	if got := Missing("none", Table{}); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestResolverChainAndEnv(t *testing.T) {
	t.Setenv("WSCLS_TEST_SECRET", "s3cr3t")

	r := FromTable(Table{"user": "alice"})
	out, missing := r.Expand("${user}:${env:WSCLS_TEST_SECRET}@${host}")
	if out != "alice:s3cr3t@${host}" {
		t.Fatalf("unexpected expansion %q", out)
	}
	if !reflect.DeepEqual(missing, []string{"host"}) {
		t.Fatalf("unexpected missing %v", missing)
	}
}

func TestResolverTableFirstProviderWins(t *testing.T) {
	t.Parallel()

	r := NewResolver(
		NewMapProvider("context", map[string]string{"a": "ctx"}),
		NewMapProvider("globals", map[string]string{"a": "global", "b": "global"}),
	)
	table := r.Table()
	if table["a"] != "ctx" || table["b"] != "global" {
		t.Fatalf("unexpected table %v", table)
	}
	if v, ok := r.Resolve("a"); !ok || v != "ctx" {
		t.Fatalf("expected ctx, got %q", v)
	}
}

func TestRenderEnvReadsEnvironment(t *testing.T) {
	t.Setenv("WSCLS_TEST_TOKEN", "tok")
	got := RenderEnv("Bearer ${env:WSCLS_TEST_TOKEN} ${user} ${env:WSCLS_TEST_UNSET_VAR}", Table{"user": "bob"})
	if got != "Bearer tok bob ${env:WSCLS_TEST_UNSET_VAR}" {
		t.Fatalf("unexpected render %q", got)
	}
	if Render("${env:WSCLS_TEST_TOKEN}", nil) != "${env:WSCLS_TEST_TOKEN}" {
		t.Fatalf("plain Render must not read the environment")
	}
}

func TestExpandReportsMissingOnce(t *testing.T) {
	_, missing := FromTable(nil).Expand("${a}${a}${b}")
	if !reflect.DeepEqual(missing, []string{"a", "b"}) {
		t.Fatalf("unexpected missing %v", missing)
	}
}
