package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MakeNowJust/heredoc"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/unkn0wn-root/wscls/internal/bindings"
	"github.com/unkn0wn-root/wscls/internal/config"
	"github.com/unkn0wn-root/wscls/internal/history"
	"github.com/unkn0wn-root/wscls/internal/httpclient"
	"github.com/unkn0wn-root/wscls/internal/profile"
	"github.com/unkn0wn-root/wscls/internal/rtfmt"
	"github.com/unkn0wn-root/wscls/internal/session"
	"github.com/unkn0wn-root/wscls/internal/statefile"
	"github.com/unkn0wn-root/wscls/internal/stream"
	"github.com/unkn0wn-root/wscls/internal/telemetry"
	"github.com/unkn0wn-root/wscls/internal/ui"
	"github.com/unkn0wn-root/wscls/internal/watcher"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		statePath   string
		showVersion bool
	)
	flag.StringVar(&statePath, "config", "", "Path to the state file (default ~/.wscls.json)")
	flag.StringVar(&statePath, "c", "", "Shorthand for -config")
	flag.BoolVar(&showVersion, "version", false, "Show wscls version")
	flag.Usage = func() {
		out := rtfmt.NewWriter(flag.CommandLine.Output(), nil)
		out.Printf("%s", heredoc.Doc(`
			Usage: wscls [-c|-config PATH]

			Interactive WebSocket and HTTP client. Profiles, contexts and
			saved texts are kept in a JSON state file that is written back
			on exit.

			Flags:
		`))
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		out := rtfmt.NewWriter(os.Stdout, rtfmt.LogHandler(log.Printf, "version write failed: %v"))
		out.Printf("wscls %s\n", version)
		out.Printf("  commit: %s\n", commit)
		out.Printf("  built:  %s\n", date)
		return 0
	}

	settings, _, err := config.LoadSettings()
	if err != nil {
		log.Printf("settings load error: %v", err)
		settings = config.DefaultSettings()
	}

	closeLog, err := redirectLog(config.LogPath(settings.LogFile))
	if err != nil {
		log.Printf("log file: %v", err)
	}
	defer closeLog()

	stderr := rtfmt.NewWriter(os.Stderr, rtfmt.LogHandler(log.Printf, "stderr write failed: %v"))
	if statePath == "" {
		statePath, err = config.DefaultStatePath()
		if err != nil {
			log.Printf("state path: %v", err)
			stderr.Printf("state path: %v\n", err)
			return 1
		}
	}

	store := profile.NewStore()
	persister := statefile.New(statePath, store)
	warnings, loadErr := persister.Load()
	if loadErr != nil {
		log.Printf("state load error: %v", loadErr)
	}
	for _, w := range warnings {
		log.Printf("state load warning: %v", w)
	}

	client := httpclient.NewClient()
	telemetryCfg := telemetry.ConfigFromEnv(os.Getenv)
	telemetryCfg.Version = version
	provider, err := telemetry.New(telemetryCfg)
	if err != nil {
		if telemetryCfg.Enabled() {
			log.Printf("telemetry init error: %v", err)
		}
	} else {
		client.SetTelemetry(provider)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if shutdownErr := provider.Shutdown(ctx); shutdownErr != nil {
				log.Printf("telemetry shutdown: %v", shutdownErr)
			}
		}()
	}

	var hist *history.Store
	if settings.HistoryEnabled {
		hist, err = history.NewStore(config.HistoryPath(), settings.HistoryLimit)
		if err != nil {
			log.Printf("history unavailable: %v", err)
			hist = nil
		} else {
			defer func() {
				if closeErr := hist.Close(); closeErr != nil {
					log.Printf("history close: %v", closeErr)
				}
			}()
		}
	}

	transport := session.NewClientTransport(client, httpclient.Options{
		Timeout:          settings.RequestTimeout.Std(),
		HandshakeTimeout: settings.HandshakeTimeout.Std(),
		TLS:              settings.TLSFiles(true),
		BaseDir:          config.Dir(),
	})
	mgr := session.NewManager(store, transport, session.Options{
		ReconnectDelay:   settings.ReconnectDelay.Std(),
		AutopingInterval: settings.AutopingInterval.Std(),
		History:          hist,
		Streams:          stream.NewManager(),
		OnBaseline:       func() { persister.MarkBaseline() },
	})

	keys, _, err := bindings.Load(config.Dir())
	if err != nil {
		log.Printf("bindings load error: %v", err)
		keys = bindings.DefaultMap()
	}

	files := watcher.New(watcher.Options{})
	files.Start()

	model := ui.New(ui.Config{
		Store:      store,
		Session:    mgr,
		Bindings:   keys,
		Watcher:    files,
		WatchPaths: persister.Paths,
		Notices:    loadNotices(warnings, loadErr),
		Commands: ui.Commands{
			Store:     store,
			Persister: persister,
			History:   hist,
		},
	})
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, runErr := program.Run()
	mgr.Shutdown()
	files.Stop()

	status := 0
	if runErr != nil {
		stderr.Printf("error: %v\n", runErr)
		status = 1
	}

	prompt := conflictPrompt(bufio.NewReader(os.Stdin), os.Stdout)
	if err := persister.Save(prompt); err != nil {
		switch {
		case errors.Is(err, statefile.ErrNotLoaded):
			log.Printf("state not saved: %v", err)
		case errors.Is(err, statefile.ErrAborted):
			stderr.Println("Save aborted; nothing was written.")
		default:
			stderr.Printf("save error: %v\n", err)
			status = 1
		}
	}
	return status
}

// loadNotices turns state load problems into lines for the UI log.
func loadNotices(warnings []*statefile.Warning, loadErr error) []string {
	var notices []string
	if loadErr != nil {
		notices = append(notices, fmt.Sprintf("Could not load state: %v. Saving is disabled for this session.", loadErr))
	}
	for _, w := range warnings {
		if errors.Is(w.Err, fs.ErrNotExist) {
			notices = append(notices, fmt.Sprintf("Profile %q: linked file %s is missing; using the copy in the state file. Saving recreates it.", w.Configuration, w.Path))
			continue
		}
		notices = append(notices, fmt.Sprintf("Profile %q: linked file %s could not be loaded (%v); using the copy in the state file.", w.Configuration, w.Path, w.Err))
	}
	return notices
}

// redirectLog points the standard logger at path so it does not draw over
// the terminal UI. An empty path discards log output.
func redirectLog(path string) (func(), error) {
	if path == "" {
		log.SetOutput(io.Discard)
		return func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		log.SetOutput(io.Discard)
		return func() {}, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		log.SetOutput(io.Discard)
		return func() {}, err
	}
	log.SetOutput(f)
	return func() {
		log.SetOutput(os.Stderr)
		_ = f.Close()
	}, nil
}

// conflictPrompt asks on in/out how to handle each file that changed on
// disk. End of input counts as abort.
func conflictPrompt(in *bufio.Reader, out io.Writer) statefile.ConflictFunc {
	w := rtfmt.NewWriter(out, rtfmt.LogHandler(log.Printf, "prompt write failed: %v"))
	return func(c statefile.Conflict) statefile.Choice {
		target := "state file"
		if c.Configuration != "" {
			target = fmt.Sprintf("profile %q", c.Configuration)
		}
		if c.LoadErr != nil {
			w.Printf("%s %s could not be loaded (%v); saving replaces it.\n", target, c.Path, c.LoadErr)
		} else {
			w.Printf("%s %s was modified outside wscls.\n", target, c.Path)
		}
		if c.Diff != "" {
			w.Println(strings.TrimRight(c.Diff, "\n"))
		}
		for {
			w.Printf("[o]verwrite / [s]kip / [a]bort? ")
			line, err := in.ReadString('\n')
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "o", "overwrite":
				return statefile.Overwrite
			case "s", "skip":
				return statefile.Skip
			case "a", "abort":
				return statefile.Abort
			}
			if err != nil {
				w.Println()
				return statefile.Abort
			}
		}
	}
}
