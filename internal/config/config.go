package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/loykin/everlast/internal/auth"
	"github.com/loykin/everlast/internal/child"
	"github.com/loykin/everlast/internal/env"
	"github.com/loykin/everlast/internal/logger"
	"github.com/loykin/everlast/internal/spawn"
	"github.com/loykin/everlast/internal/strategy"
	"github.com/loykin/everlast/internal/supervisor"
	tlsconf "github.com/loykin/everlast/internal/tls"
)

// EnvPrefix is the prefix of environment variables overriding config keys,
// e.g. EVERLAST_STRATEGY or EVERLAST_HTTP_LISTEN.
const EnvPrefix = "EVERLAST"

// FileConfig represents the top-level config file structure (TOML by default).
type FileConfig struct {
	Strategy    string           `toml:"strategy" mapstructure:"strategy"`
	MaxRestarts int              `toml:"max_restarts" mapstructure:"max_restarts"`
	MaxTime     int64            `toml:"max_time" mapstructure:"max_time"`
	Interpreter string           `toml:"interpreter" mapstructure:"interpreter"`
	Env         []string         `toml:"env" mapstructure:"env"`
	EnvFiles    []string         `toml:"env_files" mapstructure:"env_files"`
	Log         LogConfig        `toml:"log" mapstructure:"log"`
	Stdio       StdioConfig      `toml:"stdio" mapstructure:"stdio"`
	History     HistoryConfig    `toml:"history" mapstructure:"history"`
	Metrics     MetricsConfig    `toml:"metrics" mapstructure:"metrics"`
	HTTP        HTTPConfig       `toml:"http" mapstructure:"http"`
	Children    []map[string]any `toml:"children" mapstructure:"children"`
}

type LogConfig struct {
	Level  string `toml:"level" mapstructure:"level"`
	Format string `toml:"format" mapstructure:"format"`
	Path   string `toml:"path" mapstructure:"path"`
}

// StdioConfig captures child stdout/stderr into rotating files.
type StdioConfig struct {
	Dir        string `toml:"dir" mapstructure:"dir"`
	Stdout     string `toml:"stdout" mapstructure:"stdout"`
	Stderr     string `toml:"stderr" mapstructure:"stderr"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type HistoryConfig struct {
	// DSN lists sink DSNs understood by history/factory.
	DSN []string `toml:"dsn" mapstructure:"dsn"`
}

type MetricsConfig struct {
	Listen string `toml:"listen" mapstructure:"listen"`
}

type HTTPConfig struct {
	Listen   string         `toml:"listen" mapstructure:"listen"`
	BasePath string         `toml:"base_path" mapstructure:"base_path"`
	TLS      tlsconf.Config `toml:"tls" mapstructure:"tls"`
	Auth     auth.Config    `toml:"auth" mapstructure:"auth"`
}

var defaults = map[string]any{
	"strategy":       string(strategy.KindOneForOne),
	"max_restarts":   strategy.DefaultMaxRestarts,
	"max_time":       strategy.DefaultMaxTime,
	"interpreter":    "",
	"log.level":      "info",
	"log.format":     "text",
	"log.path":       "",
	"stdio.dir":      "",
	"metrics.listen": "",
	"http.listen":    "",
	"http.base_path": "/api",
}

func newViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file at path. The format follows the extension;
// files without one are parsed as TOML. An empty path yields the defaults
// (plus environment overrides).
func Load(path string) (*FileConfig, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if filepath.Ext(path) == "" {
			v.SetConfigType("toml")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	if path != "" {
		children, err := rawChildren(path)
		if err != nil {
			return nil, err
		}
		fc.Children = children
	}
	if err := fc.Validate(); err != nil {
		return nil, err
	}
	return &fc, nil
}

// rawChildren decodes the children entries straight from the file. Viper
// lower-cases nested keys, which would rename env variables such as PATH.
func rawChildren(path string) ([]map[string]any, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var doc struct {
		Children []map[string]any `toml:"children" yaml:"children" json:"children"`
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &doc)
	case ".json":
		err = json.Unmarshal(b, &doc)
	default:
		err = toml.Unmarshal(b, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("children: %w", err)
	}
	return doc.Children, nil
}

// Validate checks the scalar settings and the raw child specs. Specs are
// checked as a batch: one bad entry rejects them all.
func (fc *FileConfig) Validate() error {
	if _, err := strategy.ParseKind(fc.Strategy); err != nil {
		return err
	}
	if fc.MaxRestarts < 0 {
		return fmt.Errorf("max_restarts must not be negative: %d", fc.MaxRestarts)
	}
	if fc.MaxTime < 0 {
		return fmt.Errorf("max_time must not be negative: %d", fc.MaxTime)
	}
	if fc.HTTP.Auth.Enabled && len(fc.HTTP.Auth.Users) == 0 && len(fc.HTTP.Auth.Clients) == 0 {
		return errors.New("http.auth is enabled but defines no users or clients")
	}
	if !child.CheckChildSpecs(fc.Children) {
		// Decode reports which entry failed.
		if _, err := child.Decode(fc.Children); err != nil {
			return err
		}
		return child.ErrInvalidSpec
	}
	return nil
}

// StrategyKind returns the configured restart strategy.
func (fc *FileConfig) StrategyKind() (strategy.Kind, error) {
	return strategy.ParseKind(fc.Strategy)
}

// ChildSpecs decodes the [[children]] entries.
func (fc *FileConfig) ChildSpecs() ([]child.Spec, error) {
	return child.Decode(fc.Children)
}

// GlobalEnv builds the environment shared by all children. Precedence:
// OS env provides the base; then env_files in order; then the env list.
func (fc *FileConfig) GlobalEnv() (*env.Env, error) {
	e := env.New()
	for _, p := range fc.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for k, v := range pairs {
			e = e.WithSet(k, v)
		}
	}
	for k, v := range env.Parse(fc.Env) {
		e = e.WithSet(k, v)
	}
	return e, nil
}

// LoggerConfig maps [log] and [stdio] onto the logger package.
func (fc *FileConfig) LoggerConfig() logger.Config {
	return logger.Config{
		Level:  fc.Log.Level,
		Format: fc.Log.Format,
		Path:   fc.Log.Path,
		File:   fc.StdioFiles(),
	}
}

func (fc *FileConfig) StdioFiles() logger.FileConfig {
	return logger.FileConfig{
		Dir:        fc.Stdio.Dir,
		StdoutPath: fc.Stdio.Stdout,
		StderrPath: fc.Stdio.Stderr,
		MaxSizeMB:  fc.Stdio.MaxSizeMB,
		MaxBackups: fc.Stdio.MaxBackups,
		MaxAgeDays: fc.Stdio.MaxAgeDays,
		Compress:   fc.Stdio.Compress,
	}
}

// SupervisorOptions assembles supervisor.Options with an exec spawner.
func (fc *FileConfig) SupervisorOptions() (supervisor.Options, error) {
	kind, err := fc.StrategyKind()
	if err != nil {
		return supervisor.Options{}, err
	}
	e, err := fc.GlobalEnv()
	if err != nil {
		return supervisor.Options{}, err
	}
	return supervisor.Options{
		Strategy:    kind,
		MaxRestarts: fc.MaxRestarts,
		MaxTime:     fc.MaxTime,
		Env:         e,
		Spawner: &spawn.ExecSpawner{
			Interpreter: fc.Interpreter,
			Stdio:       fc.StdioFiles(),
		},
	}, nil
}

// LoadEnvFile parses a simple .env file and returns a slice of "KEY=VALUE" entries.
func LoadEnvFile(path string) ([]string, error) {
	m, err := loadEnvFile(path)
	if err != nil {
		return nil, err
	}
	return env.Var(m).Slice(), nil
}

// loadEnvFile parses KEY=VALUE lines (no export, no quotes). Lines starting with # are ignored.
func loadEnvFile(path string) (map[string]string, error) {
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for n, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		i := strings.IndexByte(line, '=')
		if i <= 0 {
			return nil, fmt.Errorf("%s:%d: %w", clean, n+1, errMalformedEnvLine)
		}
		m[strings.TrimSpace(line[:i])] = strings.TrimSpace(line[i+1:])
	}
	return m, nil
}

var errMalformedEnvLine = errors.New("expected KEY=VALUE")
