package profile

import (
	"errors"
	"slices"
	"strings"

	"github.com/unkn0wn-root/wscls/internal/errdef"
)

var (
	ErrExists    = errors.New("already exists")
	ErrNameTaken = errors.New("name taken")
	ErrNotFound  = errors.New("not found")
	ErrInvalid   = errors.New("invalid value")
)

// The helpers below implement the create/rename/delete rules shared by all
// six collections. Callers hold the store lock.

func cleanName(kind, name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", errdef.Wrap(errdef.CodeValidation, ErrInvalid, "%s name is empty", kind)
	}
	return trimmed, nil
}

func createEntry[V any](m map[string]V, kind, name string, value V) (string, error) {
	name, err := cleanName(kind, name)
	if err != nil {
		return "", err
	}
	if _, ok := m[name]; ok {
		return "", errdef.Wrap(errdef.CodeValidation, ErrExists, "%s %q", kind, name)
	}
	m[name] = value
	return name, nil
}

// renameEntry returns the cleaned new name. Renaming to the same name is a
// successful no-op.
func renameEntry[V any](m map[string]V, kind, oldName, newName string) (string, error) {
	newName, err := cleanName(kind, newName)
	if err != nil {
		return "", err
	}
	value, ok := m[oldName]
	if !ok {
		return "", errdef.Wrap(errdef.CodeValidation, ErrNotFound, "%s %q", kind, oldName)
	}
	if newName == oldName {
		return newName, nil
	}
	if _, taken := m[newName]; taken {
		return "", errdef.Wrap(errdef.CodeValidation, ErrNameTaken, "%s %q", kind, newName)
	}
	delete(m, oldName)
	m[newName] = value
	return newName, nil
}

func deleteEntry[V any](m map[string]V, kind, name string) error {
	if _, ok := m[name]; !ok {
		return errdef.Wrap(errdef.CodeValidation, ErrNotFound, "%s %q", kind, name)
	}
	delete(m, name)
	return nil
}

// deleteActive removes name from a collection that carries an active
// pointer. An emptied collection gets a fresh default entry; a deleted
// active entry moves the pointer to the lexicographically first key.
func deleteActive[V any](m map[string]V, active *string, kind, name string, zero func() V) error {
	if err := deleteEntry(m, kind, name); err != nil {
		return err
	}
	if len(m) == 0 {
		m[DefaultName] = zero()
		*active = DefaultName
		return nil
	}
	if *active == name {
		*active = firstKey(m)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func firstKey[V any](m map[string]V) string {
	var (
		first string
		found bool
	)
	for k := range m {
		if !found || k < first {
			first, found = k, true
		}
	}
	return first
}
