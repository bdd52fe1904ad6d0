package statefile

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/wscls/internal/profile"
)

type format int

const (
	formatJSON format = iota
	formatYAML
)

func formatFor(path string) format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML
	default:
		return formatJSON
	}
}

// diskState mirrors profile.State but keeps configurations raw so each one
// can be decoded over its defaults.
type diskState struct {
	Configurations        map[string]json.RawMessage `json:"configurations"`
	SelectedConfiguration string                     `json:"selected_configuration"`
	Globals               map[string]string          `json:"globals"`
	Contexts              map[string]profile.Context `json:"contexts"`
	SelectedContext       string                     `json:"selected_context"`
}

// legacyFields are keys written by older versions that have no place in
// the current model.
type legacyFields struct {
	Text *string `json:"text" yaml:"text"`
}

func decodeState(data []byte) (profile.State, error) {
	var disk diskState
	if err := json.Unmarshal(data, &disk); err != nil {
		return profile.State{}, err
	}
	st := profile.State{
		Configurations:        make(map[string]profile.Configuration, len(disk.Configurations)),
		SelectedConfiguration: disk.SelectedConfiguration,
		Globals:               disk.Globals,
		Contexts:              disk.Contexts,
		SelectedContext:       disk.SelectedContext,
	}
	for name, raw := range disk.Configurations {
		cfg, err := decodeConfiguration(raw, formatJSON)
		if err != nil {
			return profile.State{}, err
		}
		st.Configurations[name] = cfg
	}
	return st.Normalize(), nil
}

func encodeState(st profile.State) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(st); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeConfiguration decodes over the canonical default so absent keys
// keep their default values. Maps start nil so decoded keys replace the
// defaults instead of merging into them.
func decodeConfiguration(data []byte, f format) (profile.Configuration, error) {
	cfg := profile.DefaultConfiguration()
	cfg.Headers = nil
	cfg.Texts = nil
	cfg.TextSelected = ""

	var legacy legacyFields
	var err error
	switch f {
	case formatYAML:
		if err = yaml.Unmarshal(data, &cfg); err == nil {
			err = yaml.Unmarshal(data, &legacy)
		}
	default:
		if err = json.Unmarshal(data, &cfg); err == nil {
			err = json.Unmarshal(data, &legacy)
		}
	}
	if err != nil {
		return profile.Configuration{}, err
	}

	if cfg.Texts == nil && legacy.Text != nil {
		cfg.Texts = map[string]profile.Text{
			profile.DefaultName: {Text: *legacy.Text, URL: cfg.URL, Method: cfg.Method},
		}
		cfg.TextSelected = profile.DefaultName
	}
	return cfg.Normalize(), nil
}

// encodeExternal writes one configuration without its link.
func encodeExternal(cfg profile.Configuration, f format) ([]byte, error) {
	cfg.ExternalFile = ""
	switch f {
	case formatYAML:
		return yaml.Marshal(cfg)
	default:
		buf := &bytes.Buffer{}
		enc := json.NewEncoder(buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(cfg); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
}
