package ui

import (
	"strings"
	"testing"
)

func TestPrettyPayloadIndentsTrailingJSON(t *testing.T) {
	got := prettyPayload(`Received: {"a":1,"b":[true]}`, false)
	want := "Received:\n{\n  \"a\": 1,\n  \"b\": [\n    true\n  ]\n}"
	if got != want {
		t.Fatalf("unexpected output:\n%s", got)
	}
}

func TestPrettyPayloadHighlightStripsToPlainJSON(t *testing.T) {
	got := prettyPayload(`{"a":1}`, true)
	if plainText(got) != "{\n  \"a\": 1\n}" {
		t.Fatalf("unexpected plain text %q", plainText(got))
	}
}

func TestPrettyPayloadLeavesTextAlone(t *testing.T) {
	for _, in := range []string{"Received: hello", "Received: {broken", "", "Pong received, RTT: 1 ms"} {
		if got := prettyPayload(in, false); got != in {
			t.Fatalf("%q changed to %q", in, got)
		}
	}
}

func TestTruncateWidth(t *testing.T) {
	if got := truncateWidth("hello", 10); got != "hello" {
		t.Fatalf("unexpected %q", got)
	}
	got := truncateWidth("héllo wörld", 6)
	if !strings.HasSuffix(got, "…") || len([]rune(got)) != 6 {
		t.Fatalf("unexpected truncation %q", got)
	}
	if truncateWidth("x", 0) != "" {
		t.Fatalf("expected empty for zero width")
	}
}
