package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	tlsCaCrt = "tls_ca.crt"
	tlsCrt   = "tls.crt"
	tlsKey   = "tls.key"
)

// Config is the [http.tls] section of the control API.
type Config struct {
	Enabled      bool       `mapstructure:"enabled"`
	CertFile     string     `mapstructure:"cert_file"`
	KeyFile      string     `mapstructure:"key_file"`
	Dir          string     `mapstructure:"dir"`
	AutoGenerate bool       `mapstructure:"auto_generate"`
	AutoGen      AutoGenTLS `mapstructure:"auto_gen"`
	MinVersion   string     `mapstructure:"min_version"`
	MaxVersion   string     `mapstructure:"max_version"`
}

// AutoGenTLS controls the self-signed certificate written when
// AutoGenerate is set and Dir holds no certificate yet.
type AutoGenTLS struct {
	CommonName   string   `mapstructure:"common_name"`
	Organization string   `mapstructure:"organization"`
	DNSNames     []string `mapstructure:"dns_names"`
	IPAddresses  []string `mapstructure:"ip_addresses"`
	ValidDays    int      `mapstructure:"valid_days"`
}

// CACertPath is where a generated certificate is also written for clients
// to trust.
func (c Config) CACertPath() string {
	if c.Dir == "" {
		return ""
	}
	return filepath.Join(c.Dir, tlsCaCrt)
}

// parseTLSVersion parses TLS version string and returns the corresponding constant
func parseTLSVersion(ver string) (uint16, bool, error) {
	switch strings.ToLower(ver) {
	case "", "default":
		return 0, false, nil
	case "1.2", "tls1.2":
		return tls.VersionTLS12, true, nil
	case "1.3", "tls1.3":
		return tls.VersionTLS13, true, nil
	default:
		return 0, false, fmt.Errorf("unsupported TLS version %q", ver)
	}
}

// resolveTLSVersions defaults both bounds to 1.3.
func resolveTLSVersions(cfg Config) (min uint16, max uint16, err error) {
	min, max = tls.VersionTLS13, tls.VersionTLS13
	if v, ok, err := parseTLSVersion(cfg.MinVersion); err != nil {
		return 0, 0, err
	} else if ok {
		min = v
	}
	if v, ok, err := parseTLSVersion(cfg.MaxVersion); err != nil {
		return 0, 0, err
	} else if ok {
		max = v
	}
	if min > max {
		return 0, 0, errors.New("TLS min_version is above max_version")
	}
	return min, max, nil
}

// safeReadFile reads file content safely within base directory
func safeReadFile(baseDir, p string) ([]byte, error) {
	clean := filepath.Clean(p)
	if baseDir != "" {
		absBase, _ := filepath.Abs(baseDir)
		absFile, _ := filepath.Abs(clean)
		if !strings.HasPrefix(absFile, absBase+string(filepath.Separator)) && absFile != absBase {
			return nil, errors.New("file path outside of allowed directory")
		}
	}
	return os.ReadFile(clean)
}

// getCertificationFunc reloads the key pair on every handshake so renewed
// certificates are picked up without a restart.
func getCertificationFunc(certFile, keyFile string) func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	baseDir := filepath.Dir(certFile)
	return func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		if readCert, err := safeReadFile(baseDir, certFile); err != nil {
			return nil, err
		} else if readKey, err := safeReadFile(baseDir, keyFile); err != nil {
			return nil, err
		} else {
			certificate, err := tls.X509KeyPair(readCert, readKey)
			return &certificate, err
		}
	}
}

// Setup builds the server TLS config. A nil config and nil error mean TLS
// is disabled. Explicit cert/key files win over Dir.
func Setup(cfg Config) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	minVer, maxVer, err := resolveTLSVersions(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		if !certificatesExist(cfg.CertFile, cfg.KeyFile) {
			return nil, fmt.Errorf("TLS cert_file or key_file not found")
		}
		return createTLSConfig(cfg.CertFile, cfg.KeyFile, minVer, maxVer), nil
	}

	if cfg.Dir != "" {
		keyPath := filepath.Join(cfg.Dir, tlsKey)
		certPath := filepath.Join(cfg.Dir, tlsCrt)
		if !certificatesExist(certPath, keyPath) {
			if !cfg.AutoGenerate {
				return nil, fmt.Errorf("no certificate in %s and auto_generate is off", cfg.Dir)
			}
			if err := generateCertificate(cfg.AutoGen, cfg.Dir); err != nil {
				return nil, fmt.Errorf("certificate generation failed: %w", err)
			}
		}
		return createTLSConfig(certPath, keyPath, minVer, maxVer), nil
	}

	return nil, errors.New("TLS enabled but no valid certificate configuration found")
}

func getOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

func getOrDefaultSlice(value, defaultValue []string) []string {
	if len(value) == 0 {
		return defaultValue
	}
	return value
}

func createTLSConfig(certPath, keyPath string, minVer, maxVer uint16) *tls.Config {
	// #nosec G402 TLS backward compatibility considered
	return &tls.Config{
		GetCertificate: getCertificationFunc(certPath, keyPath),
		MinVersion:     minVer,
		MaxVersion:     maxVer,
	}
}

// certificatesExist checks if both certificate files exist
func certificatesExist(certPath, keyPath string) bool {
	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	return certErr == nil && keyErr == nil
}

func generateCertificate(autoGen AutoGenTLS, destDir string) error {
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	validDays := autoGen.ValidDays
	if validDays <= 0 {
		validDays = 365
	}
	return GenerateSelfSignedCert(CertConfig{
		CommonName:   getOrDefault(autoGen.CommonName, "localhost"),
		Organization: getOrDefault(autoGen.Organization, "everlast"),
		DNSNames:     getOrDefaultSlice(autoGen.DNSNames, []string{"localhost"}),
		IPAddresses:  getOrDefaultSlice(autoGen.IPAddresses, []string{"127.0.0.1"}),
		NotAfter:     time.Now().AddDate(0, 0, validDays),
		CertPath:     filepath.Join(destDir, tlsCrt),
		KeyPath:      filepath.Join(destDir, tlsKey),
		CACertPath:   filepath.Join(destDir, tlsCaCrt),
	})
}
