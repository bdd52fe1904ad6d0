package statefile

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Fingerprint records what a file looked like when it was last read or
// written. Exists=false records that the file was absent.
type Fingerprint struct {
	Exists bool
	Mod    time.Time
	Size   int64
	Hash   string
}

const hashPrefix = "sha256:"

// Changed reports whether cur no longer matches the recorded state. Only
// presence and modification time count; content hashes are informational.
func (fp Fingerprint) Changed(cur Fingerprint) bool {
	if fp.Exists != cur.Exists {
		return true
	}
	return fp.Exists && !fp.Mod.Equal(cur.Mod)
}

// readFile returns the file content and its fingerprint. A missing file
// is not an error.
func readFile(path string) ([]byte, Fingerprint, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, Fingerprint{}, nil
	}
	if err != nil {
		return nil, Fingerprint{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, Fingerprint{}, err
	}
	return data, fingerprintFromStat(info, data), nil
}

func statFile(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Fingerprint{}, nil
	}
	if err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint{Exists: true, Mod: info.ModTime(), Size: info.Size()}, nil
}

func fingerprintFromStat(info fs.FileInfo, data []byte) Fingerprint {
	return Fingerprint{
		Exists: true,
		Mod:    info.ModTime(),
		Size:   int64(len(data)),
		Hash:   hashBytes(data),
	}
}

func hashBytes(data []byte) string {
	if len(data) == 0 {
		return hashPrefix + "0"
	}
	sum := sha256.Sum256(data)
	return hashPrefix + hex.EncodeToString(sum[:])
}

// tracker holds the fingerprint recorded for every file the persister
// has read or written, plus the load error of files whose content could
// not be used.
type tracker struct {
	mu      sync.RWMutex
	entries map[string]Fingerprint
	failed  map[string]error
}

func newTracker() *tracker {
	return &tracker{
		entries: make(map[string]Fingerprint),
		failed:  make(map[string]error),
	}
}

// track records fp and clears any load failure for path.
func (t *tracker) track(path string, fp Fingerprint) {
	clean, ok := cleanPath(path)
	if !ok {
		return
	}
	t.mu.Lock()
	t.entries[clean] = fp
	delete(t.failed, clean)
	t.mu.Unlock()
}

// fail records fp for path and remembers why its content was rejected.
func (t *tracker) fail(path string, fp Fingerprint, err error) {
	clean, ok := cleanPath(path)
	if !ok {
		return
	}
	t.mu.Lock()
	t.entries[clean] = fp
	t.failed[clean] = err
	t.mu.Unlock()
}

func (t *tracker) loadErr(path string) error {
	clean, ok := cleanPath(path)
	if !ok {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.failed[clean]
}

// recorded returns the stored fingerprint; untracked paths count as absent.
func (t *tracker) recorded(path string) Fingerprint {
	clean, ok := cleanPath(path)
	if !ok {
		return Fingerprint{}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.entries[clean]
}

func (t *tracker) forget(path string) {
	clean, ok := cleanPath(path)
	if !ok {
		return
	}
	t.mu.Lock()
	delete(t.entries, clean)
	delete(t.failed, clean)
	t.mu.Unlock()
}

func cleanPath(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	clean := filepath.Clean(path)
	if clean == "." {
		return "", false
	}
	return clean, true
}
