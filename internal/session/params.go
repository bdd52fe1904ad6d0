package session

import (
	"github.com/unkn0wn-root/wscls/internal/profile"
)

// Params are the connecting parameters captured when a connect starts.
// Templates are already applied. They are a deep copy, so later edits
// to the profile store do not reach the running session.
type Params struct {
	Configuration   string
	Context         string
	URL             string
	Method          profile.Method
	Headers         map[string]string
	Autoping        bool
	AutoReconnect   bool
	SSLCheck        bool
	ShowHeaders     bool
	FollowRedirects bool
}

func (p Params) Clone() Params {
	out := p
	if p.Headers != nil {
		out.Headers = make(map[string]string, len(p.Headers))
		for k, v := range p.Headers {
			out.Headers[k] = v
		}
	}
	return out
}

func (p Params) IsWebSocket() bool {
	return p.Method.IsWebSocket()
}

func (p Params) target(body string) Target {
	return Target{
		Method:          string(p.Method),
		URL:             p.URL,
		Headers:         p.Clone().Headers,
		Body:            body,
		SSLCheck:        p.SSLCheck,
		FollowRedirects: p.FollowRedirects,
		Configuration:   p.Configuration,
	}
}
