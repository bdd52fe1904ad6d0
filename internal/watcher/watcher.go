package watcher

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

type EventKind int

const (
	EventChanged EventKind = iota
	EventMissing
	EventCreated
)

func (k EventKind) String() string {
	switch k {
	case EventMissing:
		return "removed"
	case EventCreated:
		return "created"
	default:
		return "changed"
	}
}

// Fingerprint is the cheap stat view of a file; content hashing is left
// to the save path, which must be exact.
type Fingerprint struct {
	Exists bool
	Mod    time.Time
	Size   int64
}

type Event struct {
	Path string
	Kind EventKind
	Prev Fingerprint
	Curr Fingerprint
}

type Options struct {
	Interval time.Duration
	Buffer   int
}

// Watcher polls a set of files and reports when they change on disk.
type Watcher struct {
	mu       sync.RWMutex
	entries  map[string]Fingerprint
	out      chan Event
	interval time.Duration
	stop     chan struct{}
	wg       sync.WaitGroup
	started  bool
	closed   bool
}

const (
	defaultInterval = 2 * time.Second
	defaultBuffer   = 16
)

func New(opts Options) *Watcher {
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	buf := opts.Buffer
	if buf <= 0 {
		buf = defaultBuffer
	}
	return &Watcher{
		entries:  make(map[string]Fingerprint),
		out:      make(chan Event, buf),
		interval: interval,
	}
}

// Events is closed by Stop.
func (w *Watcher) Events() <-chan Event {
	return w.out
}

func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started || w.closed {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.stop = make(chan struct{})
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		t := time.NewTicker(w.interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				w.Scan()
			case <-w.stop:
				return
			}
		}
	}()
}

func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	if w.started && w.stop != nil {
		close(w.stop)
	}
	w.mu.Unlock()
	if w.started {
		w.wg.Wait()
	}
	close(w.out)
}

// Sync makes paths the watched set. New paths start from their current
// state; paths no longer listed are dropped.
func (w *Watcher) Sync(paths []string) {
	want := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if clean, ok := cleanPath(p); ok {
			want[clean] = struct{}{}
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	for path := range w.entries {
		if _, ok := want[path]; !ok {
			delete(w.entries, path)
		}
	}
	for path := range want {
		if _, ok := w.entries[path]; !ok {
			w.entries[path] = stat(path)
		}
	}
}

// Paths lists the watched files in order.
func (w *Watcher) Paths() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, 0, len(w.entries))
	for path := range w.entries {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

func (w *Watcher) Scan() {
	for _, path := range w.Paths() {
		if evt, ok := w.check(path); ok {
			w.emit(evt)
		}
	}
}

func (w *Watcher) check(path string) (Event, bool) {
	curr := stat(path)

	w.mu.Lock()
	prev, ok := w.entries[path]
	if !ok || w.closed {
		w.mu.Unlock()
		return Event{}, false
	}
	w.entries[path] = curr
	w.mu.Unlock()

	switch {
	case prev.Exists && !curr.Exists:
		return Event{Path: path, Kind: EventMissing, Prev: prev, Curr: curr}, true
	case !prev.Exists && curr.Exists:
		return Event{Path: path, Kind: EventCreated, Prev: prev, Curr: curr}, true
	case curr.Exists && (!curr.Mod.Equal(prev.Mod) || curr.Size != prev.Size):
		return Event{Path: path, Kind: EventChanged, Prev: prev, Curr: curr}, true
	}
	return Event{}, false
}

func (w *Watcher) emit(evt Event) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}
	select {
	case w.out <- evt:
	default:
	}
}

func stat(path string) Fingerprint {
	info, err := os.Stat(path)
	if err != nil {
		// unreadable counts as missing
		return Fingerprint{}
	}
	return Fingerprint{Exists: true, Mod: info.ModTime(), Size: info.Size()}
}

func cleanPath(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	clean := filepath.Clean(path)
	if clean == "" || clean == "." {
		return "", false
	}
	return clean, true
}
