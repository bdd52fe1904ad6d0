package rtfmt

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

type failingWriter struct{ calls int }

func (f *failingWriter) Write(p []byte) (int, error) {
	f.calls++
	return 0, errors.New("disk full")
}

func TestWriterPrints(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, nil)
	w.Printf("%s=%d\n", "a", 1)
	w.Println("done")
	if w.Err() != nil {
		t.Fatalf("unexpected error: %v", w.Err())
	}
	if buf.String() != "a=1\ndone\n" {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestWriterStopsAfterFirstError(t *testing.T) {
	fw := &failingWriter{}
	var logged []string
	logf := func(format string, args ...any) { logged = append(logged, fmt.Sprintf(format, args...)) }

	w := NewWriter(fw, LogHandler(logf, "prompt %s: %v", "save"))
	w.Printf("first\n")
	w.Println("second")

	if fw.calls != 1 {
		t.Fatalf("expected writes to stop after failure, got %d calls", fw.calls)
	}
	if w.Err() == nil || len(logged) != 1 || logged[0] != "prompt save: disk full" {
		t.Fatalf("unexpected error reporting %v %v", w.Err(), logged)
	}
}

func TestLogHandlerNil(t *testing.T) {
	if LogHandler(nil, "x") != nil {
		t.Fatalf("expected nil handler without logf")
	}
}
