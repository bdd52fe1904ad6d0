package profile

import (
	"maps"
	"strings"

	"github.com/unkn0wn-root/wscls/internal/errdef"
)

const DefaultName = "default"

type Method string

const (
	MethodWS      Method = "WS"
	MethodGet     Method = "GET"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
	MethodPatch   Method = "PATCH"
	MethodOptions Method = "OPTIONS"
	MethodHead    Method = "HEAD"
)

var methods = []Method{
	MethodWS,
	MethodGet,
	MethodPost,
	MethodPut,
	MethodDelete,
	MethodPatch,
	MethodOptions,
	MethodHead,
}

// Methods lists the supported methods in display order.
func Methods() []Method {
	return append([]Method(nil), methods...)
}

func ParseMethod(raw string) (Method, error) {
	candidate := Method(strings.ToUpper(strings.TrimSpace(raw)))
	for _, m := range methods {
		if m == candidate {
			return m, nil
		}
	}
	return "", errdef.Wrap(errdef.CodeValidation, ErrInvalid, "unknown method %q", raw)
}

func (m Method) IsWebSocket() bool {
	return m == MethodWS || m == ""
}

type Text struct {
	Text   string `json:"text"   yaml:"text"`
	URL    string `json:"url"    yaml:"url"`
	Method Method `json:"method" yaml:"method"`
}

func DefaultText() Text {
	return Text{Method: MethodWS}
}

type Context struct {
	Variables map[string]string `json:"context_variables" yaml:"context_variables"`
}

func DefaultContext() Context {
	return Context{Variables: map[string]string{}}
}

func (c Context) Clone() Context {
	return Context{Variables: cloneStrings(c.Variables)}
}

type Configuration struct {
	URL             string            `json:"url"               yaml:"url"`
	Method          Method            `json:"method"            yaml:"method"`
	Headers         map[string]string `json:"headers"           yaml:"headers"`
	Autoping        bool              `json:"autoping"          yaml:"autoping"`
	AutoReconnect   bool              `json:"auto_reconnect"    yaml:"auto_reconnect"`
	SSLCheck        bool              `json:"ssl_check"         yaml:"ssl_check"`
	ShowHeaders     bool              `json:"show_headers"      yaml:"show_headers"`
	FollowRedirects bool              `json:"follow_redirects"  yaml:"follow_redirects"`
	StickURLToText  bool              `json:"stick_url_to_text" yaml:"stick_url_to_text"`
	TemplateURL     bool              `json:"template_url"      yaml:"template_url"`
	TemplateHeaders bool              `json:"template_headers"  yaml:"template_headers"`
	TemplateData    bool              `json:"template_data"     yaml:"template_data"`
	Texts           map[string]Text   `json:"texts"             yaml:"texts"`
	TextSelected    string            `json:"text_selected"     yaml:"text_selected"`
	ExternalFile    string            `json:"filename,omitempty" yaml:"-"`
}

// DefaultConfiguration is the value a fresh or recreated profile starts from.
func DefaultConfiguration() Configuration {
	return Configuration{
		Method:          MethodWS,
		Headers:         map[string]string{},
		AutoReconnect:   true,
		SSLCheck:        true,
		FollowRedirects: true,
		Texts:           map[string]Text{DefaultName: DefaultText()},
		TextSelected:    DefaultName,
	}
}

func (c Configuration) Clone() Configuration {
	out := c
	out.Headers = cloneStrings(c.Headers)
	out.Texts = maps.Clone(c.Texts)
	if out.Texts == nil {
		out.Texts = map[string]Text{}
	}
	return out
}

// SelectedText returns the active text, or the default text if the
// selection is dangling.
func (c Configuration) SelectedText() Text {
	if t, ok := c.Texts[c.TextSelected]; ok {
		return t
	}
	return DefaultText()
}

// Normalize fills nil maps, an empty method and a missing text selection.
func (c Configuration) Normalize() Configuration {
	c = c.Clone()
	if c.Method == "" {
		c.Method = MethodWS
	}
	if len(c.Texts) == 0 {
		c.Texts = map[string]Text{DefaultName: DefaultText()}
	}
	for name, t := range c.Texts {
		if t.Method == "" {
			t.Method = MethodWS
			c.Texts[name] = t
		}
	}
	if _, ok := c.Texts[c.TextSelected]; !ok {
		c.TextSelected = firstKey(c.Texts)
	}
	return c
}

// Flag names a boolean field of a Configuration.
type Flag int

const (
	FlagAutoping Flag = iota
	FlagAutoReconnect
	FlagSSLCheck
	FlagShowHeaders
	FlagFollowRedirects
	FlagStickURLToText
	FlagTemplateURL
	FlagTemplateHeaders
	FlagTemplateData
)

var flagNames = map[Flag]string{
	FlagAutoping:        "autoping",
	FlagAutoReconnect:   "auto_reconnect",
	FlagSSLCheck:        "ssl_check",
	FlagShowHeaders:     "show_headers",
	FlagFollowRedirects: "follow_redirects",
	FlagStickURLToText:  "stick_url_to_text",
	FlagTemplateURL:     "template_url",
	FlagTemplateHeaders: "template_headers",
	FlagTemplateData:    "template_data",
}

func (f Flag) String() string {
	if name, ok := flagNames[f]; ok {
		return name
	}
	return "unknown"
}

func ParseFlag(raw string) (Flag, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "-", "_")
	for f, name := range flagNames {
		if name == key {
			return f, nil
		}
	}
	return 0, errdef.Wrap(errdef.CodeValidation, ErrInvalid, "unknown flag %q", raw)
}

// Flags lists every flag in declaration order.
func Flags() []Flag {
	out := make([]Flag, 0, len(flagNames))
	for f := FlagAutoping; f <= FlagTemplateData; f++ {
		out = append(out, f)
	}
	return out
}

func (c *Configuration) flagField(f Flag) *bool {
	switch f {
	case FlagAutoping:
		return &c.Autoping
	case FlagAutoReconnect:
		return &c.AutoReconnect
	case FlagSSLCheck:
		return &c.SSLCheck
	case FlagShowHeaders:
		return &c.ShowHeaders
	case FlagFollowRedirects:
		return &c.FollowRedirects
	case FlagStickURLToText:
		return &c.StickURLToText
	case FlagTemplateURL:
		return &c.TemplateURL
	case FlagTemplateHeaders:
		return &c.TemplateHeaders
	case FlagTemplateData:
		return &c.TemplateData
	default:
		return nil
	}
}

func (c Configuration) Flag(f Flag) bool {
	if field := c.flagField(f); field != nil {
		return *field
	}
	return false
}

func (c *Configuration) SetFlag(f Flag, on bool) {
	if field := c.flagField(f); field != nil {
		*field = on
	}
}

func cloneStrings(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	maps.Copy(out, in)
	return out
}
