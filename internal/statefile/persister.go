package statefile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/aymanbagabas/go-udiff"

	"github.com/unkn0wn-root/wscls/internal/config"
	"github.com/unkn0wn-root/wscls/internal/errdef"
	"github.com/unkn0wn-root/wscls/internal/profile"
)

var (
	ErrAborted   = errors.New("save aborted")
	ErrNotLoaded = errors.New("state was never loaded")
)

// Choice is the caller's answer to a save conflict.
type Choice int

const (
	Abort Choice = iota
	Overwrite
	Skip
)

func (c Choice) String() string {
	switch c {
	case Overwrite:
		return "overwrite"
	case Skip:
		return "skip"
	default:
		return "abort"
	}
}

// Conflict describes a file that changed on disk since it was last read or
// written, or a linked file whose content could not be loaded. LoadErr is
// set in the second case. Configuration is empty for the primary state file.
type Conflict struct {
	Path          string
	Configuration string
	Recorded      Fingerprint
	Current       Fingerprint
	Diff          string
	LoadErr       error
}

type ConflictFunc func(Conflict) Choice

// Warning is a non-fatal load problem with one linked profile file.
type Warning struct {
	Configuration string
	Path          string
	Err           error
}

func (w *Warning) Error() string {
	return fmt.Sprintf("profile %q (%s): %v", w.Configuration, w.Path, w.Err)
}

func (w *Warning) Unwrap() error { return w.Err }

type Persister struct {
	path  string
	store *profile.Store
	files *tracker

	mu          sync.Mutex
	loaded      bool
	parseFailed bool
}

func New(path string, store *profile.Store) *Persister {
	return &Persister{path: path, store: store, files: newTracker()}
}

func (p *Persister) Path() string { return p.path }

// Paths lists the primary file and every linked profile file, resolved.
func (p *Persister) Paths() []string {
	st := p.store.State()
	out := []string{p.path}
	for _, name := range sortedNames(st.Configurations) {
		if link := st.Configurations[name].ExternalFile; link != "" {
			out = append(out, p.resolve(link))
		}
	}
	return out
}

// Loaded reports whether a save is allowed.
func (p *Persister) Loaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded
}

// Load replaces the store with the primary file and overlays every linked
// profile file. A missing primary file leaves the store at defaults and not
// loaded. Problems with linked files come back as warnings.
func (p *Persister) Load() ([]*Warning, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, fp, err := readFile(p.path)
	if err != nil {
		p.parseFailed = true
		return nil, errdef.Wrap(errdef.CodePersist, err, "read state %s", p.path)
	}
	p.files.track(p.path, fp)
	if !fp.Exists {
		p.store.Replace(profile.DefaultState())
		p.loaded = false
		return nil, nil
	}

	st, err := decodeState(data)
	if err != nil {
		p.parseFailed = true
		p.loaded = false
		return nil, errdef.Wrap(errdef.CodePersist, err, "parse state %s", p.path)
	}

	var warnings []*Warning
	for _, name := range sortedNames(st.Configurations) {
		cfg := st.Configurations[name]
		if cfg.ExternalFile == "" {
			continue
		}
		linked, warn := p.loadExternal(name, cfg.ExternalFile)
		if warn != nil {
			warnings = append(warnings, warn)
			continue
		}
		st.Configurations[name] = linked
	}

	p.store.Replace(st)
	p.loaded = true
	p.parseFailed = false
	return warnings, nil
}

func (p *Persister) loadExternal(name, link string) (profile.Configuration, *Warning) {
	path := p.resolve(link)
	data, fp, err := readFile(path)
	if err != nil {
		p.files.fail(path, fp, err)
		return profile.Configuration{}, &Warning{Configuration: name, Path: path, Err: err}
	}
	p.files.track(path, fp)
	if !fp.Exists {
		return profile.Configuration{}, &Warning{Configuration: name, Path: path, Err: fs.ErrNotExist}
	}
	cfg, err := decodeConfiguration(data, formatFor(path))
	if err != nil {
		p.files.fail(path, fp, err)
		return profile.Configuration{}, &Warning{Configuration: name, Path: path, Err: err}
	}
	cfg.ExternalFile = link
	return cfg, nil
}

// MarkBaseline allows saving a store that started from defaults because
// the state file did not exist. It never overrides a failed parse.
func (p *Persister) MarkBaseline() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loaded || p.parseFailed {
		return false
	}
	p.loaded = true
	return true
}

// Import adds a configuration backed by an existing profile file.
func (p *Persister) Import(path, name string) error {
	resolved := p.resolve(path)
	data, fp, err := readFile(resolved)
	if err == nil && !fp.Exists {
		err = fs.ErrNotExist
	}
	if err != nil {
		return errdef.Wrap(errdef.CodePersist, err, "read profile %s", resolved)
	}
	cfg, err := decodeConfiguration(data, formatFor(resolved))
	if err != nil {
		return errdef.Wrap(errdef.CodePersist, err, "parse profile %s", resolved)
	}
	cfg.ExternalFile = path
	if err := p.store.CreateConfiguration(name, cfg); err != nil {
		return err
	}
	p.files.track(resolved, fp)
	return nil
}

// Export links a configuration to path, or unlinks it when path is empty.
// The file is written on the next save; whatever is at path now becomes
// the recorded baseline.
func (p *Persister) Export(name, path string) error {
	path = strings.TrimSpace(path)
	var (
		resolved string
		fp       Fingerprint
	)
	if path != "" {
		resolved = p.resolve(path)
		var err error
		if fp, err = statFile(resolved); err != nil {
			return errdef.Wrap(errdef.CodePersist, err, "stat profile %s", resolved)
		}
	}

	previous, _ := p.store.Configuration(name)
	if err := p.store.SetExternalFile(name, path); err != nil {
		return err
	}
	if previous.ExternalFile != "" && p.resolve(previous.ExternalFile) != resolved {
		p.files.forget(p.resolve(previous.ExternalFile))
	}
	if path != "" {
		p.files.track(resolved, fp)
	}
	return nil
}

type pendingWrite struct {
	path          string
	configuration string
	data          []byte
	skip          bool
}

// Save writes every linked profile file and then the primary state file.
// All conflicts are decided before anything is written; Abort leaves every
// file untouched. A nil resolve aborts on the first conflict.
func (p *Persister) Save(resolve ConflictFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded {
		return errdef.Wrap(errdef.CodePersist, ErrNotLoaded, "save %s", p.path)
	}

	writes, err := p.plan(p.store.State())
	if err != nil {
		return err
	}

	for i := range writes {
		conflict, ok, err := p.conflict(writes[i])
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		choice := Abort
		if resolve != nil {
			choice = resolve(conflict)
		}
		switch choice {
		case Overwrite:
		case Skip:
			writes[i].skip = true
		default:
			return errdef.Wrap(errdef.CodeConflict, ErrAborted, "%s changed on disk", writes[i].path)
		}
	}

	var errs []error
	for _, w := range writes {
		if w.skip {
			continue
		}
		if err := p.write(w); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Persister) plan(st profile.State) ([]pendingWrite, error) {
	var writes []pendingWrite
	for _, name := range sortedNames(st.Configurations) {
		cfg := st.Configurations[name]
		if cfg.ExternalFile == "" {
			continue
		}
		path := p.resolve(cfg.ExternalFile)
		data, err := encodeExternal(cfg, formatFor(path))
		if err != nil {
			return nil, errdef.Wrap(errdef.CodePersist, err, "encode profile %q", name)
		}
		writes = append(writes, pendingWrite{path: path, configuration: name, data: data})
	}
	data, err := encodeState(st)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodePersist, err, "encode state")
	}
	return append(writes, pendingWrite{path: p.path, data: data}), nil
}

func (p *Persister) conflict(w pendingWrite) (Conflict, bool, error) {
	recorded := p.files.recorded(w.path)
	loadErr := p.files.loadErr(w.path)
	disk, current, err := readFile(w.path)
	if err != nil {
		return Conflict{}, false, errdef.Wrap(errdef.CodePersist, err, "check %s", w.path)
	}
	// A file that failed to load holds content the store never saw.
	if loadErr == nil && !recorded.Changed(current) {
		return Conflict{}, false, nil
	}
	return Conflict{
		Path:          w.path,
		Configuration: w.configuration,
		Recorded:      recorded,
		Current:       current,
		Diff:          udiff.Unified(w.path+" (on disk)", w.path+" (unsaved)", string(disk), string(w.data)),
		LoadErr:       loadErr,
	}, true, nil
}

func (p *Persister) write(w pendingWrite) error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return errdef.Wrap(errdef.CodePersist, err, "create directory for %s", w.path)
	}
	if err := config.WriteFileAtomic(w.path, w.data, 0o600); err != nil {
		return errdef.Wrap(errdef.CodePersist, err, "write %s", w.path)
	}
	fp, err := statFile(w.path)
	if err != nil {
		return errdef.Wrap(errdef.CodePersist, err, "stat %s", w.path)
	}
	fp.Hash = hashBytes(w.data)
	p.files.track(w.path, fp)
	return nil
}

// resolve makes linked paths relative to the state file's directory.
func (p *Persister) resolve(link string) string {
	if strings.HasPrefix(link, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, link[2:])
		}
	}
	if filepath.IsAbs(link) {
		return filepath.Clean(link)
	}
	return filepath.Join(filepath.Dir(p.path), link)
}

func sortedNames(m map[string]profile.Configuration) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
