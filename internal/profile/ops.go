package profile

import (
	"strings"

	"github.com/unkn0wn-root/wscls/internal/errdef"
)

const (
	kindConfiguration = "configuration"
	kindContext       = "context"
	kindText          = "text"
	kindHeader        = "header"
	kindGlobal        = "global"
	kindVariable      = "context variable"
)

// Configurations

func (s *Store) ConfigurationNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.state.Configurations)
}

func (s *Store) ActiveConfigurationName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.SelectedConfiguration
}

func (s *Store) ActiveConfiguration() Configuration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Configurations[s.state.SelectedConfiguration].Clone()
}

func (s *Store) Configuration(name string) (Configuration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.state.Configurations[name]
	if !ok {
		return Configuration{}, false
	}
	return cfg.Clone(), true
}

func (s *Store) CreateConfiguration(name string, initial Configuration) error {
	return s.mutate(func(st *State) error {
		_, err := createEntry(st.Configurations, kindConfiguration, name, initial.Normalize())
		return err
	})
}

func (s *Store) RenameConfiguration(oldName, newName string) error {
	return s.mutate(func(st *State) error {
		renamed, err := renameEntry(st.Configurations, kindConfiguration, oldName, newName)
		if err != nil {
			return err
		}
		if st.SelectedConfiguration == oldName {
			st.SelectedConfiguration = renamed
		}
		return nil
	})
}

func (s *Store) DeleteConfiguration(name string) error {
	return s.mutate(func(st *State) error {
		return deleteActive(
			st.Configurations,
			&st.SelectedConfiguration,
			kindConfiguration,
			name,
			DefaultConfiguration,
		)
	})
}

func (s *Store) SelectConfiguration(name string) error {
	return s.mutate(func(st *State) error {
		if _, ok := st.Configurations[name]; !ok {
			return errdef.Wrap(errdef.CodeValidation, ErrNotFound, "configuration %q", name)
		}
		st.SelectedConfiguration = name
		return nil
	})
}

// Contexts

func (s *Store) ContextNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.state.Contexts)
}

func (s *Store) ActiveContextName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.SelectedContext
}

func (s *Store) Context(name string) (Context, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, ok := s.state.Contexts[name]
	if !ok {
		return Context{}, false
	}
	return ctx.Clone(), true
}

func (s *Store) CreateContext(name string, initial Context) error {
	return s.mutate(func(st *State) error {
		_, err := createEntry(st.Contexts, kindContext, name, initial.Clone())
		return err
	})
}

func (s *Store) RenameContext(oldName, newName string) error {
	return s.mutate(func(st *State) error {
		renamed, err := renameEntry(st.Contexts, kindContext, oldName, newName)
		if err != nil {
			return err
		}
		if st.SelectedContext == oldName {
			st.SelectedContext = renamed
		}
		return nil
	})
}

func (s *Store) DeleteContext(name string) error {
	return s.mutate(func(st *State) error {
		return deleteActive(st.Contexts, &st.SelectedContext, kindContext, name, DefaultContext)
	})
}

func (s *Store) SelectContext(name string) error {
	return s.mutate(func(st *State) error {
		if _, ok := st.Contexts[name]; !ok {
			return errdef.Wrap(errdef.CodeValidation, ErrNotFound, "context %q", name)
		}
		st.SelectedContext = name
		return nil
	})
}

// Texts of the active configuration

func (s *Store) TextNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.state.Configurations[s.state.SelectedConfiguration].Texts)
}

func (s *Store) SelectedTextName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Configurations[s.state.SelectedConfiguration].TextSelected
}

func (s *Store) CreateText(name string, initial Text) error {
	if initial.Method == "" {
		initial.Method = MethodWS
	}
	return s.mutateActive(func(cfg *Configuration) error {
		_, err := createEntry(cfg.Texts, kindText, name, initial)
		return err
	})
}

func (s *Store) RenameText(oldName, newName string) error {
	return s.mutateActive(func(cfg *Configuration) error {
		renamed, err := renameEntry(cfg.Texts, kindText, oldName, newName)
		if err != nil {
			return err
		}
		if cfg.TextSelected == oldName {
			cfg.TextSelected = renamed
		}
		return nil
	})
}

func (s *Store) DeleteText(name string) error {
	return s.mutateActive(func(cfg *Configuration) error {
		return deleteActive(cfg.Texts, &cfg.TextSelected, kindText, name, DefaultText)
	})
}

// SelectText switches the active text. With stick_url_to_text set, the
// configuration's url and method follow the text when it has a url.
func (s *Store) SelectText(name string) error {
	return s.mutateActive(func(cfg *Configuration) error {
		t, ok := cfg.Texts[name]
		if !ok {
			return errdef.Wrap(errdef.CodeValidation, ErrNotFound, "text %q", name)
		}
		cfg.TextSelected = name
		if cfg.StickURLToText && t.URL != "" {
			cfg.URL = t.URL
			if t.Method != "" {
				cfg.Method = t.Method
			}
		}
		return nil
	})
}

// Headers of the active configuration

func (s *Store) CreateHeader(name, value string) error {
	return s.mutateActive(func(cfg *Configuration) error {
		_, err := createEntry(cfg.Headers, kindHeader, name, value)
		return err
	})
}

func (s *Store) RenameHeader(oldName, newName string) error {
	return s.mutateActive(func(cfg *Configuration) error {
		_, err := renameEntry(cfg.Headers, kindHeader, oldName, newName)
		return err
	})
}

func (s *Store) DeleteHeader(name string) error {
	return s.mutateActive(func(cfg *Configuration) error {
		return deleteEntry(cfg.Headers, kindHeader, name)
	})
}

// SetHeader creates or updates a header value.
func (s *Store) SetHeader(name, value string) error {
	return s.mutateActive(func(cfg *Configuration) error {
		return setEntry(cfg.Headers, kindHeader, name, value)
	})
}

// Globals

func (s *Store) Globals() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneStrings(s.state.Globals)
}

func (s *Store) CreateGlobal(name, value string) error {
	return s.mutate(func(st *State) error {
		_, err := createEntry(st.Globals, kindGlobal, name, value)
		return err
	})
}

func (s *Store) RenameGlobal(oldName, newName string) error {
	return s.mutate(func(st *State) error {
		_, err := renameEntry(st.Globals, kindGlobal, oldName, newName)
		return err
	})
}

func (s *Store) DeleteGlobal(name string) error {
	return s.mutate(func(st *State) error {
		return deleteEntry(st.Globals, kindGlobal, name)
	})
}

func (s *Store) SetGlobal(name, value string) error {
	return s.mutate(func(st *State) error {
		return setEntry(st.Globals, kindGlobal, name, value)
	})
}

// Variables of the active context

func (s *Store) CreateContextVariable(name, value string) error {
	return s.mutateActiveContext(func(ctx *Context) error {
		_, err := createEntry(ctx.Variables, kindVariable, name, value)
		return err
	})
}

func (s *Store) RenameContextVariable(oldName, newName string) error {
	return s.mutateActiveContext(func(ctx *Context) error {
		_, err := renameEntry(ctx.Variables, kindVariable, oldName, newName)
		return err
	})
}

func (s *Store) DeleteContextVariable(name string) error {
	return s.mutateActiveContext(func(ctx *Context) error {
		return deleteEntry(ctx.Variables, kindVariable, name)
	})
}

func (s *Store) SetContextVariable(name, value string) error {
	return s.mutateActiveContext(func(ctx *Context) error {
		return setEntry(ctx.Variables, kindVariable, name, value)
	})
}

func setEntry(m map[string]string, kind, name, value string) error {
	name, err := cleanName(kind, name)
	if err != nil {
		return err
	}
	m[name] = value
	return nil
}

// Typed accessors for the active configuration

// SetURL updates the target url; a stuck text follows it.
func (s *Store) SetURL(url string) error {
	url = strings.TrimSpace(url)
	return s.mutateActive(func(cfg *Configuration) error {
		cfg.URL = url
		if cfg.StickURLToText {
			t := cfg.SelectedText()
			t.URL = url
			cfg.Texts[cfg.TextSelected] = t
		}
		return nil
	})
}

func (s *Store) SetMethod(method Method) error {
	m, err := ParseMethod(string(method))
	if err != nil {
		return err
	}
	return s.mutateActive(func(cfg *Configuration) error {
		cfg.Method = m
		if cfg.StickURLToText {
			t := cfg.SelectedText()
			t.Method = m
			cfg.Texts[cfg.TextSelected] = t
		}
		return nil
	})
}

func (s *Store) SetFlag(f Flag, on bool) error {
	if _, ok := flagNames[f]; !ok {
		return errdef.Wrap(errdef.CodeValidation, ErrInvalid, "unknown flag %d", int(f))
	}
	return s.mutateActive(func(cfg *Configuration) error {
		cfg.SetFlag(f, on)
		return nil
	})
}

// ToggleFlag flips f and returns the new value.
func (s *Store) ToggleFlag(f Flag) (bool, error) {
	var value bool
	if _, ok := flagNames[f]; !ok {
		return false, errdef.Wrap(errdef.CodeValidation, ErrInvalid, "unknown flag %d", int(f))
	}
	err := s.mutateActive(func(cfg *Configuration) error {
		value = !cfg.Flag(f)
		cfg.SetFlag(f, value)
		return nil
	})
	return value, err
}

// SetBody replaces the selected text's body.
func (s *Store) SetBody(body string) error {
	return s.mutateActive(func(cfg *Configuration) error {
		t := cfg.SelectedText()
		t.Text = body
		cfg.Texts[cfg.TextSelected] = t
		return nil
	})
}

// SetExternalFile links (or with an empty path unlinks) a configuration to
// its own profile file.
func (s *Store) SetExternalFile(name, path string) error {
	return s.mutate(func(st *State) error {
		cfg, ok := st.Configurations[name]
		if !ok {
			return errdef.Wrap(errdef.CodeValidation, ErrNotFound, "configuration %q", name)
		}
		cfg.ExternalFile = strings.TrimSpace(path)
		st.Configurations[name] = cfg
		return nil
	})
}
