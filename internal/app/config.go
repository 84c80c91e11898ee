package app

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultWorkerCount   = 4
	DefaultSettleTimeout = 10 * time.Second
)

// Dispatch is a scripted event: Type is dispatched at the element whose id is
// Target.
type Dispatch struct {
	Type   string
	Target string
}

// String renders d in the type@id form accepted by ParseDispatch.
func (d Dispatch) String() string { return d.Type + "@" + d.Target }

// ParseDispatch parses "type@id".
func ParseDispatch(s string) (Dispatch, error) {
	typ, target, ok := strings.Cut(strings.TrimSpace(s), "@")
	if !ok || typ == "" || target == "" {
		return Dispatch{}, fmt.Errorf("invalid dispatch %q: want type@element-id", s)
	}
	return Dispatch{Type: typ, Target: target}, nil
}

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	DocumentPath string // html file
	BaseURL      string // defaults to the document's file URL
	ModulesPath  string // declaration libraries (.hcl)
	Dispatch     []Dispatch

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	WorkerCount     int
	SettleTimeout   time.Duration
}

// NewConfig validates cfg and fills defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.DocumentPath == "" {
		return nil, errors.New("DocumentPath is a required configuration field and cannot be empty")
	}
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}
		if !u.IsAbs() {
			return nil, fmt.Errorf("base URL %q must be absolute", cfg.BaseURL)
		}
	}
	if cfg.WorkerCount == 0 {
		cfg.WorkerCount = DefaultWorkerCount
	}
	if cfg.WorkerCount < 0 {
		return nil, fmt.Errorf("worker count must be positive, got %d", cfg.WorkerCount)
	}
	if cfg.SettleTimeout == 0 {
		cfg.SettleTimeout = DefaultSettleTimeout
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, fmt.Errorf("healthcheck port %d out of range", cfg.HealthcheckPort)
	}
	return &cfg, nil
}

// FileConfig is the on-disk form of Config. Every field is optional; command
// line flags override whatever is set here.
type FileConfig struct {
	Document        string   `toml:"document"`
	BaseURL         string   `toml:"base_url"`
	ModulesPath     string   `toml:"modules_path"`
	Dispatch        []string `toml:"dispatch"`
	LogFormat       string   `toml:"log_format"`
	LogLevel        string   `toml:"log_level"`
	HealthcheckPort *int     `toml:"healthcheck_port"`
	Workers         *int     `toml:"workers"`
	SettleTimeout   string   `toml:"settle_timeout"`
}

// LoadFileConfig decodes a TOML config file. Unknown keys are an error.
func LoadFileConfig(path string) (*FileConfig, error) {
	var fc FileConfig
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return &fc, nil
}

// Apply copies every field set in fc onto cfg.
func (fc *FileConfig) Apply(cfg *Config) error {
	if fc.Document != "" {
		cfg.DocumentPath = fc.Document
	}
	if fc.BaseURL != "" {
		cfg.BaseURL = fc.BaseURL
	}
	if fc.ModulesPath != "" {
		cfg.ModulesPath = fc.ModulesPath
	}
	if len(fc.Dispatch) > 0 {
		cfg.Dispatch = cfg.Dispatch[:0]
		for _, s := range fc.Dispatch {
			d, err := ParseDispatch(s)
			if err != nil {
				return err
			}
			cfg.Dispatch = append(cfg.Dispatch, d)
		}
	}
	if fc.LogFormat != "" {
		cfg.LogFormat = fc.LogFormat
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.HealthcheckPort != nil {
		cfg.HealthcheckPort = *fc.HealthcheckPort
	}
	if fc.Workers != nil {
		cfg.WorkerCount = *fc.Workers
	}
	if fc.SettleTimeout != "" {
		d, err := time.ParseDuration(fc.SettleTimeout)
		if err != nil {
			return fmt.Errorf("invalid settle_timeout: %w", err)
		}
		cfg.SettleTimeout = d
	}
	return nil
}
