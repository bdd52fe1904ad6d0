package ui

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/unkn0wn-root/wscls/internal/errdef"
	"github.com/unkn0wn-root/wscls/internal/history"
	"github.com/unkn0wn-root/wscls/internal/profile"
	"github.com/unkn0wn-root/wscls/internal/statefile"
	"github.com/unkn0wn-root/wscls/internal/vars"
)

// Commands maps command-bar lines onto profile store operations.
type Commands struct {
	Store     *profile.Store
	Persister *statefile.Persister
	History   *history.Store
}

// Result is what a command reports back: a status line and optional
// extra log lines (listings).
type Result struct {
	Status string
	Lines  []string
}

const commandHelp = "config|context|text new|rename|delete|use|list, header|global|var new|set|rename|delete, " +
	"global|var import FILE, method M, toggle FLAG, link PATH|-, import PATH NAME, history [N], send TEXT"

func usage(format string, args ...any) error {
	return errdef.New(errdef.CodeUI, "usage: "+format, args...)
}

// Run executes one command line. Errors leave the store unchanged.
func (c Commands) Run(line string) (Result, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Result{}, usage("%s", commandHelp)
	}
	switch strings.ToLower(fields[0]) {
	case "config", "configuration":
		return c.configuration(fields[1:])
	case "context", "ctx":
		return c.context(fields[1:])
	case "text":
		return c.text(fields[1:])
	case "header":
		return c.pairs("header", fields[1:], rest(line, 3), pairOps{
			create: c.Store.CreateHeader,
			set:    c.Store.SetHeader,
			rename: c.Store.RenameHeader,
			delete: c.Store.DeleteHeader,
		})
	case "global":
		return c.pairs("global", fields[1:], rest(line, 3), pairOps{
			create: c.Store.CreateGlobal,
			set:    c.Store.SetGlobal,
			rename: c.Store.RenameGlobal,
			delete: c.Store.DeleteGlobal,
		})
	case "var":
		return c.pairs("var", fields[1:], rest(line, 3), pairOps{
			create: c.Store.CreateContextVariable,
			set:    c.Store.SetContextVariable,
			rename: c.Store.RenameContextVariable,
			delete: c.Store.DeleteContextVariable,
		})
	case "method":
		if len(fields) != 2 {
			return Result{}, usage("method %s", methodList())
		}
		m, err := profile.ParseMethod(fields[1])
		if err != nil {
			return Result{}, err
		}
		if err := c.Store.SetMethod(m); err != nil {
			return Result{}, err
		}
		return Result{Status: "Method " + string(m)}, nil
	case "toggle":
		if len(fields) != 2 {
			return Result{}, usage("toggle %s", flagList())
		}
		f, err := profile.ParseFlag(fields[1])
		if err != nil {
			return Result{}, err
		}
		on, err := c.Store.ToggleFlag(f)
		if err != nil {
			return Result{}, err
		}
		return Result{Status: fmt.Sprintf("%s %s", f, onOff(on))}, nil
	case "link":
		return c.link(fields[1:])
	case "import":
		if len(fields) != 3 {
			return Result{}, usage("import PATH NAME")
		}
		if c.Persister == nil {
			return Result{}, errdef.New(errdef.CodeUI, "profile files are unavailable")
		}
		if err := c.Persister.Import(fields[1], fields[2]); err != nil {
			return Result{}, err
		}
		return Result{Status: fmt.Sprintf("Imported %s as %s", fields[1], fields[2])}, nil
	case "history":
		return c.history(fields[1:])
	default:
		return Result{}, usage("%s", commandHelp)
	}
}

func (c Commands) configuration(args []string) (Result, error) {
	verb, names := split(args)
	switch {
	case verb == "new" && len(names) == 1:
		if err := c.Store.CreateConfiguration(names[0], profile.DefaultConfiguration()); err != nil {
			return Result{}, err
		}
		return Result{Status: "Created configuration " + names[0]}, nil
	case verb == "rename" && len(names) == 2:
		if err := c.Store.RenameConfiguration(names[0], names[1]); err != nil {
			return Result{}, err
		}
		return Result{Status: fmt.Sprintf("Renamed configuration %s to %s", names[0], names[1])}, nil
	case verb == "delete" && len(names) == 1:
		if err := c.Store.DeleteConfiguration(names[0]); err != nil {
			return Result{}, err
		}
		return Result{Status: "Deleted configuration " + names[0] + ", active: " + c.Store.ActiveConfigurationName()}, nil
	case verb == "use" && len(names) == 1:
		if err := c.Store.SelectConfiguration(names[0]); err != nil {
			return Result{}, err
		}
		return Result{Status: "Using configuration " + names[0]}, nil
	case verb == "list" && len(names) == 0:
		return listing("configurations", c.Store.ConfigurationNames(), c.Store.ActiveConfigurationName()), nil
	}
	return Result{}, usage("config new NAME | rename OLD NEW | delete NAME | use NAME | list")
}

func (c Commands) context(args []string) (Result, error) {
	verb, names := split(args)
	switch {
	case verb == "new" && len(names) == 1:
		if err := c.Store.CreateContext(names[0], profile.DefaultContext()); err != nil {
			return Result{}, err
		}
		return Result{Status: "Created context " + names[0]}, nil
	case verb == "rename" && len(names) == 2:
		if err := c.Store.RenameContext(names[0], names[1]); err != nil {
			return Result{}, err
		}
		return Result{Status: fmt.Sprintf("Renamed context %s to %s", names[0], names[1])}, nil
	case verb == "delete" && len(names) == 1:
		if err := c.Store.DeleteContext(names[0]); err != nil {
			return Result{}, err
		}
		return Result{Status: "Deleted context " + names[0] + ", active: " + c.Store.ActiveContextName()}, nil
	case verb == "use" && len(names) == 1:
		if err := c.Store.SelectContext(names[0]); err != nil {
			return Result{}, err
		}
		return Result{Status: "Using context " + names[0]}, nil
	case verb == "list" && len(names) == 0:
		return listing("contexts", c.Store.ContextNames(), c.Store.ActiveContextName()), nil
	}
	return Result{}, usage("context new NAME | rename OLD NEW | delete NAME | use NAME | list")
}

func (c Commands) text(args []string) (Result, error) {
	verb, names := split(args)
	switch {
	case verb == "new" && len(names) == 1:
		if err := c.Store.CreateText(names[0], profile.DefaultText()); err != nil {
			return Result{}, err
		}
		return Result{Status: "Created text " + names[0]}, nil
	case verb == "rename" && len(names) == 2:
		if err := c.Store.RenameText(names[0], names[1]); err != nil {
			return Result{}, err
		}
		return Result{Status: fmt.Sprintf("Renamed text %s to %s", names[0], names[1])}, nil
	case verb == "delete" && len(names) == 1:
		if err := c.Store.DeleteText(names[0]); err != nil {
			return Result{}, err
		}
		return Result{Status: "Deleted text " + names[0] + ", active: " + c.Store.SelectedTextName()}, nil
	case verb == "use" && len(names) == 1:
		if err := c.Store.SelectText(names[0]); err != nil {
			return Result{}, err
		}
		return Result{Status: "Using text " + names[0]}, nil
	case verb == "list" && len(names) == 0:
		return listing("texts", c.Store.TextNames(), c.Store.SelectedTextName()), nil
	}
	return Result{}, usage("text new NAME | rename OLD NEW | delete NAME | use NAME | list")
}

type pairOps struct {
	create func(name, value string) error
	set    func(name, value string) error
	rename func(oldName, newName string) error
	delete func(name string) error
}

// pairs handles the name/value collections. value is the raw remainder
// of the line after the name, so values may contain spaces.
func (c Commands) pairs(kind string, args []string, value string, ops pairOps) (Result, error) {
	verb, names := split(args)
	switch {
	case (verb == "new" || verb == "set") && len(names) >= 1:
		op := ops.set
		if verb == "new" {
			op = ops.create
		}
		if err := op(names[0], value); err != nil {
			return Result{}, err
		}
		return Result{Status: fmt.Sprintf("%s %s = %s", kind, names[0], value)}, nil
	case verb == "rename" && len(names) == 2:
		if err := ops.rename(names[0], names[1]); err != nil {
			return Result{}, err
		}
		return Result{Status: fmt.Sprintf("Renamed %s %s to %s", kind, names[0], names[1])}, nil
	case verb == "delete" && len(names) == 1:
		if err := ops.delete(names[0]); err != nil {
			return Result{}, err
		}
		return Result{Status: fmt.Sprintf("Deleted %s %s", kind, names[0])}, nil
	case verb == "import" && len(names) == 1 && kind != "header":
		return c.importDotEnv(kind, names[0], ops.set)
	}
	return Result{}, usage("%s new|set NAME VALUE | rename OLD NEW | delete NAME", kind)
}

func (c Commands) importDotEnv(kind, path string, set func(name, value string) error) (Result, error) {
	values, err := vars.LoadDotEnv(path)
	if err != nil {
		return Result{}, err
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := set(name, values[name]); err != nil {
			return Result{}, err
		}
	}
	return Result{Status: fmt.Sprintf("Imported %d %s variables from %s", len(names), kind, path)}, nil
}

func (c Commands) link(args []string) (Result, error) {
	if len(args) != 1 {
		return Result{}, usage("link PATH | link -")
	}
	if c.Persister == nil {
		return Result{}, errdef.New(errdef.CodeUI, "profile files are unavailable")
	}
	name := c.Store.ActiveConfigurationName()
	path := args[0]
	if path == "-" {
		path = ""
	}
	if err := c.Persister.Export(name, path); err != nil {
		return Result{}, err
	}
	if path == "" {
		return Result{Status: "Unlinked " + name}, nil
	}
	return Result{Status: fmt.Sprintf("Linked %s to %s", name, path)}, nil
}

func (c Commands) history(args []string) (Result, error) {
	if c.History == nil {
		return Result{}, errdef.New(errdef.CodeUI, "history is disabled")
	}
	limit := 10
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return Result{}, usage("history [N]")
		}
		limit = n
	}
	entries, err := c.History.Entries()
	if err != nil {
		return Result{}, err
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, historyLine(e))
	}
	return Result{Status: fmt.Sprintf("%d history entries", len(lines)), Lines: lines}, nil
}

func historyLine(e history.Entry) string {
	outcome := e.Status
	if e.CloseCode != 0 {
		outcome = fmt.Sprintf("%s code %d", outcome, e.CloseCode)
	}
	if e.Error != "" {
		outcome = "error: " + e.Error
	}
	return fmt.Sprintf("%s %-6s %s [%s] %s",
		e.ExecutedAt.Format("2006-01-02 15:04:05"), e.Method, e.URL, e.Configuration, outcome)
}

func listing(kind string, names []string, active string) Result {
	lines := make([]string, 0, len(names))
	for _, name := range names {
		marker := "  "
		if name == active {
			marker = "* "
		}
		lines = append(lines, marker+name)
	}
	return Result{Status: fmt.Sprintf("%d %s", len(names), kind), Lines: lines}
}

func split(args []string) (string, []string) {
	if len(args) == 0 {
		return "", nil
	}
	return strings.ToLower(args[0]), args[1:]
}

// rest returns the text after the first n whitespace separated fields.
func rest(line string, n int) string {
	s := strings.TrimSpace(line)
	for i := 0; i < n; i++ {
		idx := strings.IndexFunc(s, isSpace)
		if idx < 0 {
			return ""
		}
		s = strings.TrimLeftFunc(s[idx:], isSpace)
	}
	return s
}

func isSpace(r rune) bool { return r == ' ' || r == '\t' }

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func methodList() string {
	names := make([]string, 0, len(profile.Methods()))
	for _, m := range profile.Methods() {
		names = append(names, string(m))
	}
	return strings.Join(names, "|")
}

func flagList() string {
	names := make([]string, 0, len(profile.Flags()))
	for _, f := range profile.Flags() {
		names = append(names, f.String())
	}
	return strings.Join(names, "|")
}
