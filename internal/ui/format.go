package ui

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/alecthomas/chroma/quick"
	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
)

// prettyPayload indents a JSON payload embedded at the end of a log line
// ("Received: {...}") and highlights it. Other text comes back as is.
func prettyPayload(text string, color bool) string {
	prefix, payload := splitPayload(text)
	if payload == "" {
		return text
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(payload), "", "  "); err != nil {
		return text
	}
	body := buf.String()
	if color {
		if highlighted, ok := highlight(body, "json"); ok {
			body = highlighted
		}
	}
	if prefix == "" {
		return body
	}
	return prefix + "\n" + body
}

// splitPayload finds the JSON object or array that ends the line.
func splitPayload(text string) (string, string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ""
	}
	for i, r := range trimmed {
		if r != '{' && r != '[' {
			continue
		}
		candidate := trimmed[i:]
		if json.Valid([]byte(candidate)) {
			return strings.TrimSpace(trimmed[:i]), candidate
		}
		break
	}
	return "", ""
}

func highlight(content, lexer string) (string, bool) {
	var buf bytes.Buffer
	if err := quick.Highlight(&buf, content, lexer, "terminal256", "monokai"); err != nil {
		return "", false
	}
	return strings.TrimRight(buf.String(), "\n"), true
}

// plainText drops styling so copied text carries no escape codes.
func plainText(s string) string {
	return ansi.Strip(s)
}

func truncateWidth(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}
