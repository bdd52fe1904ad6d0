package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"github.com/unkn0wn-root/wscls/internal/errdef"
	"github.com/unkn0wn-root/wscls/internal/telemetry"
	"github.com/unkn0wn-root/wscls/internal/tlsconfig"
)

type Options struct {
	Timeout          time.Duration
	HandshakeTimeout time.Duration
	FollowRedirects  bool
	TLS              tlsconfig.Files
	BaseDir          string
	// Configuration names the profile in telemetry spans.
	Configuration string
}

// Request is a fully resolved target. Templates have already been applied.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
}

type Client struct {
	jar         http.CookieJar
	httpFactory func(Options) (*http.Client, error)
	wsDial      func(context.Context, string, *websocket.DialOptions) (*websocket.Conn, *http.Response, error)
	telemetry   telemetry.Instrumenter
}

func NewClient() *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{jar: jar, telemetry: telemetry.Noop()}
	c.httpFactory = c.buildHTTPClient
	c.wsDial = websocket.Dial
	return c
}

// SetHTTPFactory overrides how http.Client instances are created.
// Passing nil restores the default factory.
func (c *Client) SetHTTPFactory(factory func(Options) (*http.Client, error)) {
	if factory == nil {
		factory = c.buildHTTPClient
	}
	c.httpFactory = factory
}

// SetTelemetry configures span emission. Passing nil restores the no-op implementation.
func (c *Client) SetTelemetry(instr telemetry.Instrumenter) {
	if instr == nil {
		instr = telemetry.Noop()
	}
	c.telemetry = instr
}

type Response struct {
	Status         string
	StatusCode     int
	Proto          string
	Headers        http.Header
	ReqMethod      string
	RequestHeaders http.Header
	Body           []byte
	Duration       time.Duration
	EffectiveURL   string
}

// Execute performs exactly one HTTP exchange.
func (c *Client) Execute(ctx context.Context, req Request, opts Options) (resp *Response, err error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	if err := validateURL(req.URL, "http", "https"); err != nil {
		return nil, err
	}

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeTransport, err, "build request")
	}
	if host := applyHeaders(httpReq.Header, req.Headers); host != "" {
		httpReq.Host = host
	}

	client, err := c.httpFactory(opts)
	if err != nil {
		return nil, err
	}

	spanCtx, span := c.telemetry.Start(httpReq.Context(), telemetry.RequestStart{
		Method:        method,
		URL:           req.URL,
		Configuration: opts.Configuration,
	})
	httpReq = httpReq.WithContext(spanCtx)
	defer func() {
		statusCode := 0
		if resp != nil {
			statusCode = resp.StatusCode
		}
		span.End(telemetry.RequestResult{Err: err, StatusCode: statusCode})
	}()

	start := time.Now()
	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeTransport, err, "perform request")
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil && err == nil {
			err = errdef.Wrap(errdef.CodeTransport, closeErr, "close response body")
		}
	}()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeTransport, err, "read response body")
	}

	return &Response{
		Status:         httpResp.Status,
		StatusCode:     httpResp.StatusCode,
		Proto:          httpResp.Proto,
		Headers:        httpResp.Header.Clone(),
		ReqMethod:      method,
		RequestHeaders: httpReq.Header.Clone(),
		Body:           data,
		Duration:       time.Since(start),
		EffectiveURL:   effectiveURL(httpReq, httpResp),
	}, nil
}

// applyHeaders copies headers into dst. net/http ignores a Host entry in
// the header map, so it is returned for the caller to set on the request.
func applyHeaders(dst http.Header, headers map[string]string) (host string) {
	for name, value := range headers {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if strings.EqualFold(name, "Host") {
			host = strings.TrimSpace(value)
			continue
		}
		dst.Set(name, value)
	}
	return host
}

func validateURL(raw string, schemes ...string) error {
	if strings.TrimSpace(raw) == "" {
		return errdef.New(errdef.CodeTransport, "url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return errdef.Wrap(errdef.CodeTransport, err, "parse url %q", raw)
	}
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) {
			if u.Host == "" {
				return errdef.New(errdef.CodeTransport, "url %q has no host", raw)
			}
			return nil
		}
	}
	return errdef.New(
		errdef.CodeTransport,
		"unsupported scheme %q (want %s)",
		u.Scheme,
		strings.Join(schemes, ", "),
	)
}

func effectiveURL(req *http.Request, resp *http.Response) string {
	if resp != nil && resp.Request != nil && resp.Request.URL != nil {
		return resp.Request.URL.String()
	}
	if req != nil && req.URL != nil {
		return req.URL.String()
	}
	return ""
}

// HeaderLines renders headers as sorted "Name: value" lines.
func HeaderLines(h http.Header) []string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	lines := make([]string, 0, len(names))
	for _, name := range names {
		for _, v := range h[name] {
			lines = append(lines, name+": "+v)
		}
	}
	return lines
}
