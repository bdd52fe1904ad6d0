package vars

import (
	"os"
	"regexp"
	"sort"
	"strings"
)

// Table is the merged substitution table used by Render.
type Table map[string]string

// Resolve merges the global scope with the active context scope.
// Context variables win over globals with the same name.
func Resolve(globals, contextVars map[string]string) Table {
	table := make(Table, len(globals)+len(contextVars))
	for k, v := range globals {
		table[k] = v
	}
	for k, v := range contextVars {
		table[k] = v
	}
	return table
}

var placeholderPattern = regexp.MustCompile(`\$\{([^{}]+)\}`)

// Render replaces every ${name} whose name is present in table.
// Unknown placeholders are left verbatim; rendering never fails.
func Render(template string, table Table) string {
	if !strings.Contains(template, "${") {
		return template
	}
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := placeholderName(match)
		if value, ok := table[name]; ok {
			return value
		}
		return match
	})
}

// RenderEnv is Render with ${env:NAME} placeholders read from the
// process environment.
func RenderEnv(template string, table Table) string {
	out, _ := FromTable(table).Expand(template)
	return out
}

// Placeholders lists placeholder names in order of first appearance.
func Placeholders(template string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(template, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimSpace(m[1])
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// Missing lists the placeholder names Render would leave untouched.
func Missing(template string, table Table) []string {
	var missing []string
	for _, name := range Placeholders(template) {
		if _, ok := table[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

func placeholderName(match string) string {
	return strings.TrimSpace(match[2 : len(match)-1])
}

type Provider interface {
	Resolve(name string) (string, bool)
	Label() string
}

// Resolver chains providers; the first provider that knows a name wins.
type Resolver struct {
	providers []Provider
}

func NewResolver(providers ...Provider) *Resolver {
	return &Resolver{providers: providers}
}

// FromTable builds a resolver over a merged table, with ${env:NAME}
// falling through to the process environment.
func FromTable(table Table) *Resolver {
	return NewResolver(NewMapProvider("vars", table), EnvProvider{})
}

func (r *Resolver) Resolve(name string) (string, bool) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", false
	}
	for _, provider := range r.providers {
		if value, ok := provider.Resolve(trimmed); ok {
			return value, true
		}
	}
	return "", false
}

// Expand renders input against the provider chain and reports the names
// it could not resolve, once each.
func (r *Resolver) Expand(input string) (string, []string) {
	var missing []string
	seen := make(map[string]struct{})
	out := placeholderPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := placeholderName(match)
		if value, ok := r.Resolve(name); ok {
			return value
		}
		if _, dup := seen[name]; !dup {
			seen[name] = struct{}{}
			missing = append(missing, name)
		}
		return match
	})
	return out, missing
}

// Table flattens every map-backed provider, earlier providers winning.
func (r *Resolver) Table() Table {
	out := make(Table)
	for i := len(r.providers) - 1; i >= 0; i-- {
		mp, ok := r.providers[i].(*MapProvider)
		if !ok {
			continue
		}
		for k, v := range mp.values {
			out[k] = v
		}
	}
	return out
}

type MapProvider struct {
	values map[string]string
	label  string
}

func NewMapProvider(label string, values map[string]string) *MapProvider {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &MapProvider{values: copied, label: label}
}

func (p *MapProvider) Resolve(name string) (string, bool) {
	value, ok := p.values[name]
	return value, ok
}

func (p *MapProvider) Label() string {
	return p.label
}

func (p *MapProvider) Names() []string {
	names := make([]string, 0, len(p.values))
	for k := range p.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

const envPrefix = "env:"

// EnvProvider answers ${env:NAME} lookups from the process environment.
type EnvProvider struct{}

func (EnvProvider) Resolve(name string) (string, bool) {
	if !strings.HasPrefix(name, envPrefix) {
		return "", false
	}
	key := strings.TrimSpace(strings.TrimPrefix(name, envPrefix))
	if key == "" {
		return "", false
	}
	return os.LookupEnv(key)
}

func (EnvProvider) Label() string {
	return "env"
}
