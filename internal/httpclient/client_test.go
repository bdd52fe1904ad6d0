package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/unkn0wn-root/wscls/internal/errdef"
	"github.com/unkn0wn-root/wscls/internal/tlsconfig"
)

func TestExecuteSendsMethodHeadersAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Seen-Method", r.Method)
		w.Header().Set("X-Seen-Auth", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("got:" + string(body)))
	}))
	defer srv.Close()

	resp, err := NewClient().Execute(context.Background(), Request{
		Method:  "post",
		URL:     srv.URL + "/items",
		Headers: map[string]string{"Authorization": "Bearer t"},
		Body:    `{"a":1}`,
	}, Options{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if resp.Headers.Get("X-Seen-Method") != "POST" || resp.Headers.Get("X-Seen-Auth") != "Bearer t" {
		t.Fatalf("request not forwarded as expected: %v", resp.Headers)
	}
	if string(resp.Body) != `got:{"a":1}` {
		t.Fatalf("unexpected body %q", resp.Body)
	}
	if resp.ReqMethod != "POST" {
		t.Fatalf("unexpected request method %q", resp.ReqMethod)
	}
}

func TestExecuteHonorsHostHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Host", r.Host)
		w.Header().Set("X-Seen-Header", r.Header.Get("Host"))
	}))
	defer srv.Close()

	resp, err := NewClient().Execute(context.Background(), Request{
		URL:     srv.URL,
		Headers: map[string]string{"host": "api.internal.test"},
	}, Options{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := resp.Headers.Get("X-Seen-Host"); got != "api.internal.test" {
		t.Fatalf("expected Host override, got %q", got)
	}
	if got := resp.Headers.Get("X-Seen-Header"); got != "" {
		t.Fatalf("Host must not be sent as a plain header, got %q", got)
	}
}

func TestExecuteFollowRedirectsToggle(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusFound)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("moved"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient()
	resp, err := client.Execute(context.Background(), Request{Method: "GET", URL: srv.URL + "/old"}, Options{FollowRedirects: false})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected redirect to be returned, got %d", resp.StatusCode)
	}

	resp, err = client.Execute(context.Background(), Request{Method: "GET", URL: srv.URL + "/old"}, Options{FollowRedirects: true})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.StatusCode != http.StatusOK || !strings.HasSuffix(resp.EffectiveURL, "/new") {
		t.Fatalf("expected redirect to be followed, got %d %s", resp.StatusCode, resp.EffectiveURL)
	}
}

func TestExecuteSSLCheckToggle(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client := NewClient()
	_, err := client.Execute(context.Background(), Request{Method: "GET", URL: srv.URL}, Options{TLS: tlsconfig.Files{Verify: true}})
	if !errdef.Is(err, errdef.CodeTransport) {
		t.Fatalf("expected verification failure, got %v", err)
	}

	resp, err := client.Execute(context.Background(), Request{Method: "GET", URL: srv.URL}, Options{TLS: tlsconfig.Files{Verify: false}})
	if err != nil {
		t.Fatalf("Execute without verification: %v", err)
	}
	if string(resp.Body) != "ok" {
		t.Fatalf("unexpected body %q", resp.Body)
	}
}

func TestExecuteRejectsWebSocketURL(t *testing.T) {
	_, err := NewClient().Execute(context.Background(), Request{Method: "GET", URL: "ws://host"}, Options{})
	if !errdef.Is(err, errdef.CodeTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestHeaderLinesSorted(t *testing.T) {
	h := http.Header{}
	h.Set("B", "2")
	h.Add("A", "1")
	h.Add("A", "3")
	got := strings.Join(HeaderLines(h), "|")
	if got != "A: 1|A: 3|B: 2" {
		t.Fatalf("unexpected header lines %q", got)
	}
}
