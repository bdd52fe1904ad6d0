package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/unkn0wn-root/wscls/internal/errdef"
	"github.com/unkn0wn-root/wscls/internal/tlsconfig"
)

const (
	SettingsFormatTOML SettingsFormat = "toml"
	SettingsFormatJSON SettingsFormat = "json"
)

const (
	DefaultReconnectDelay   = time.Second
	DefaultHandshakeTimeout = 30 * time.Second
	DefaultRequestTimeout   = 30 * time.Second
	DefaultAutopingInterval = 20 * time.Second
	DefaultHistoryLimit     = 500
	DefaultLogFile          = "wscls.log"
)

// Duration is a time.Duration that reads and writes as "1s", "250ms".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(bytes.TrimSpace(text)))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("negative duration %q", text)
	}
	*d = Duration(parsed)
	return nil
}

type Settings struct {
	ReconnectDelay   Duration `json:"reconnect_delay"   toml:"reconnect_delay"`
	HandshakeTimeout Duration `json:"handshake_timeout" toml:"handshake_timeout"`
	RequestTimeout   Duration `json:"request_timeout"   toml:"request_timeout"`
	AutopingInterval Duration `json:"autoping_interval" toml:"autoping_interval"`
	HistoryEnabled   bool     `json:"history_enabled"   toml:"history_enabled"`
	HistoryLimit     int      `json:"history_limit"     toml:"history_limit"`
	LogFile          string   `json:"log_file"          toml:"log_file"`
	RootCAs          []string `json:"root_cas"          toml:"root_cas"`
	ClientCert       string   `json:"client_cert"       toml:"client_cert"`
	ClientKey        string   `json:"client_key"        toml:"client_key"`
}

type SettingsFormat string
type SettingsHandle struct {
	Path   string
	Format SettingsFormat
}

func DefaultSettings() Settings {
	return Settings{
		ReconnectDelay:   Duration(DefaultReconnectDelay),
		HandshakeTimeout: Duration(DefaultHandshakeTimeout),
		RequestTimeout:   Duration(DefaultRequestTimeout),
		AutopingInterval: Duration(DefaultAutopingInterval),
		HistoryEnabled:   true,
		HistoryLimit:     DefaultHistoryLimit,
		LogFile:          DefaultLogFile,
	}
}

// Normalise replaces zero or out-of-range values with defaults.
func (s Settings) Normalise() Settings {
	def := DefaultSettings()
	if s.ReconnectDelay <= 0 {
		s.ReconnectDelay = def.ReconnectDelay
	}
	if s.HandshakeTimeout <= 0 {
		s.HandshakeTimeout = def.HandshakeTimeout
	}
	if s.RequestTimeout <= 0 {
		s.RequestTimeout = def.RequestTimeout
	}
	if s.AutopingInterval <= 0 {
		s.AutopingInterval = def.AutopingInterval
	}
	if s.HistoryLimit <= 0 {
		s.HistoryLimit = def.HistoryLimit
	}
	return s
}

// TLSFiles maps the certificate settings onto the transport's TLS inputs.
// Verification itself is a per-configuration toggle.
func (s Settings) TLSFiles(verify bool) tlsconfig.Files {
	return tlsconfig.Files{
		RootCAs:    append([]string(nil), s.RootCAs...),
		ClientCert: s.ClientCert,
		ClientKey:  s.ClientKey,
		Verify:     verify,
	}
}

// tries loading TOML first, then JSON, then returns default settings if neither exists.
// parse errors fail immediately but missing files just skip to the next format.
func LoadSettings() (Settings, SettingsHandle, error) {
	dir := Dir()
	candidates := []SettingsHandle{
		{Path: filepath.Join(dir, "settings.toml"), Format: SettingsFormatTOML},
		{Path: filepath.Join(dir, "settings.json"), Format: SettingsFormatJSON},
	}

	var accumulated error
	for _, candidate := range candidates {
		data, err := os.ReadFile(candidate.Path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			accumulated = errors.Join(
				accumulated,
				errdef.Wrap(errdef.CodeConfig, err, "read settings %q", candidate.Path),
			)
			continue
		}

		settings, err := decodeSettings(data, candidate.Format)
		if err != nil {
			return DefaultSettings(), SettingsHandle{}, errdef.Wrap(
				errdef.CodeConfig,
				err,
				"parse settings %q",
				candidate.Path,
			)
		}
		return settings.Normalise(), candidate, nil
	}

	if accumulated != nil {
		return DefaultSettings(), SettingsHandle{}, accumulated
	}

	return DefaultSettings(), SettingsHandle{
		Path:   candidates[0].Path,
		Format: SettingsFormatTOML,
	}, nil
}

// keys absent from the file keep their default values
func decodeSettings(data []byte, format SettingsFormat) (Settings, error) {
	settings := DefaultSettings()
	switch format {
	case SettingsFormatTOML:
		if err := toml.Unmarshal(data, &settings); err != nil {
			return Settings{}, err
		}
	case SettingsFormatJSON:
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&settings); err != nil {
			return Settings{}, err
		}
	default:
		return Settings{}, fmt.Errorf("unsupported settings format %q", format)
	}
	return settings, nil
}

func SaveSettings(settings Settings, handle SettingsHandle) error {
	settings = settings.Normalise()
	path := handle.Path
	format := handle.Format
	if path == "" {
		path = filepath.Join(Dir(), "settings.toml")
	}
	if format == "" {
		format = SettingsFormatTOML
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errdef.Wrap(errdef.CodeConfig, err, "ensure settings directory")
	}

	var (
		data []byte
		err  error
	)

	switch format {
	case SettingsFormatTOML:
		data, err = toml.Marshal(settings)
	case SettingsFormatJSON:
		buffer := &bytes.Buffer{}
		encoder := json.NewEncoder(buffer)
		encoder.SetIndent("", "  ")
		if err = encoder.Encode(settings); err == nil {
			data = buffer.Bytes()
		}
	default:
		return errdef.New(errdef.CodeConfig, "unsupported settings format %q", format)
	}
	if err != nil {
		return errdef.Wrap(errdef.CodeConfig, err, "encode settings")
	}

	if err := WriteFileAtomic(path, data, 0o644); err != nil {
		return errdef.Wrap(errdef.CodeConfig, err, "write settings %q", path)
	}
	return nil
}
