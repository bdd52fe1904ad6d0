package rtfmt

import (
	"fmt"
	"io"
)

type ErrorHandler func(error)

// Writer prints console lines and keeps the first write error. After a
// failure further writes are skipped, so a block of output can be
// checked once with Err.
type Writer struct {
	w       io.Writer
	handler ErrorHandler
	err     error
}

func NewWriter(w io.Writer, handler ErrorHandler) *Writer {
	return &Writer{w: w, handler: handler}
}

func (w *Writer) Printf(format string, args ...any) {
	if w.err != nil {
		return
	}
	_, err := fmt.Fprintf(w.w, format, args...)
	w.fail(err)
}

func (w *Writer) Println(args ...any) {
	if w.err != nil {
		return
	}
	_, err := fmt.Fprintln(w.w, args...)
	w.fail(err)
}

func (w *Writer) Err() error { return w.err }

func (w *Writer) fail(err error) {
	if err == nil {
		return
	}
	w.err = err
	if w.handler != nil {
		w.handler(err)
	}
}

// LogHandler reports write failures through logf, appending the error
// after the captured arguments.
func LogHandler(logf func(string, ...any), format string, args ...any) ErrorHandler {
	if logf == nil {
		return nil
	}
	captured := append([]any(nil), args...)
	return func(err error) {
		logf(format, append(captured, err)...)
	}
}
