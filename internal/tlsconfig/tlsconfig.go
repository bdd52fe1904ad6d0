package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"path/filepath"

	"github.com/unkn0wn-root/wscls/internal/errdef"
)

// Files describes the TLS material used by both the HTTP client and the
// WebSocket dialer. Verify mirrors a configuration's ssl_check toggle.
type Files struct {
	RootCAs    []string
	ClientCert string
	ClientKey  string
	Verify     bool
}

// Empty reports whether the default transport TLS settings can be used as is.
func (f Files) Empty() bool {
	return f.Verify && len(f.RootCAs) == 0 && f.ClientCert == "" && f.ClientKey == ""
}

// Build constructs a tls.Config with custom CAs appended to the system pool
// plus any client certificate. Relative paths resolve against baseDir.
func Build(cfg Files, baseDir string) (*tls.Config, error) {
	tc := &tls.Config{InsecureSkipVerify: !cfg.Verify} // nolint:gosec

	if len(cfg.RootCAs) > 0 {
		pool, err := loadRootCAs(cfg.RootCAs, baseDir)
		if err != nil {
			return nil, err
		}
		tc.RootCAs = pool
	}

	if cfg.ClientCert != "" || cfg.ClientKey != "" {
		if cfg.ClientCert == "" || cfg.ClientKey == "" {
			return nil, errdef.New(
				errdef.CodeConfig,
				"client certificate and key are both required",
			)
		}
		cert, err := tls.LoadX509KeyPair(
			resolvePath(cfg.ClientCert, baseDir),
			resolvePath(cfg.ClientKey, baseDir),
		)
		if err != nil {
			return nil, errdef.Wrap(errdef.CodeConfig, err, "load client certificate")
		}
		tc.Certificates = []tls.Certificate{cert}
	}

	return tc, nil
}

func loadRootCAs(paths []string, baseDir string) (*x509.CertPool, error) {
	pool, _ := x509.SystemCertPool()
	if pool == nil {
		pool = x509.NewCertPool()
	}

	for _, p := range paths {
		data, err := os.ReadFile(resolvePath(p, baseDir))
		if err != nil {
			return nil, errdef.Wrap(errdef.CodeConfig, err, "read root ca %s", p)
		}
		if ok := pool.AppendCertsFromPEM(data); !ok {
			return nil, errdef.New(errdef.CodeConfig, "no certificates found in %s", p)
		}
	}
	return pool, nil
}

func resolvePath(path, baseDir string) string {
	if filepath.IsAbs(path) || baseDir == "" {
		return filepath.Clean(path)
	}
	return filepath.Clean(filepath.Join(baseDir, path))
}
