package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for lukebridge.
type Config struct {
	General GeneralConfig `json:"general" yaml:"general"`
	Editor  EditorConfig  `json:"editor" yaml:"editor"`
	Journal JournalConfig `json:"journal" yaml:"journal"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel" yaml:"logLevel"`
	LogFile  string `json:"logFile,omitempty" yaml:"logFile,omitempty"` // optional log file path
}

// EditorConfig controls how the bridge finds and talks to the editor, and how
// the reference editor listens.
type EditorConfig struct {
	Host                  string   `json:"host" yaml:"host"`
	PortFiles             []string `json:"portFiles,omitempty" yaml:"portFiles,omitempty"` // probe order; empty uses the built-in list
	DialTimeoutSeconds    int      `json:"dialTimeoutSeconds" yaml:"dialTimeoutSeconds"`
	RequestTimeoutSeconds int      `json:"requestTimeoutSeconds" yaml:"requestTimeoutSeconds"` // 0 = wait forever
	ListenHost            string   `json:"listenHost" yaml:"listenHost"`
	ListenPort            int      `json:"listenPort" yaml:"listenPort"` // 0 = any free port
}

// DialTimeout is the websocket handshake timeout.
func (e EditorConfig) DialTimeout() time.Duration {
	return time.Duration(e.DialTimeoutSeconds) * time.Second
}

// RequestTimeout bounds one round trip when the caller sets no deadline.
func (e EditorConfig) RequestTimeout() time.Duration {
	return time.Duration(e.RequestTimeoutSeconds) * time.Second
}

type JournalConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	DBPath        string `json:"dbPath" yaml:"dbPath"`
	RetentionDays int    `json:"retentionDays" yaml:"retentionDays"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.lukebridge).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lukebridge"
	}
	return filepath.Join(home, ".lukebridge")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads a JSON or YAML (by extension) config over the defaults.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Journal.DBPath = ExpandPath(cfg.Journal.DBPath)
	for i, p := range cfg.Editor.PortFiles {
		cfg.Editor.PortFiles[i] = ExpandPath(p)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty; an unset VAR
// without a default is left as written.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

// Save writes cfg as JSON, or YAML when path ends in .yaml/.yml.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if strings.TrimSpace(cfg.Editor.Host) == "" {
		errs = append(errs, "editor.host is required")
	}
	if cfg.Editor.DialTimeoutSeconds < 1 || cfg.Editor.DialTimeoutSeconds > 60 {
		errs = append(errs, "editor.dialTimeoutSeconds must be between 1 and 60")
	}
	if cfg.Editor.RequestTimeoutSeconds < 0 || cfg.Editor.RequestTimeoutSeconds > 3600 {
		errs = append(errs, "editor.requestTimeoutSeconds must be between 0 and 3600")
	}
	if cfg.Editor.ListenPort < 0 || cfg.Editor.ListenPort > 65535 {
		errs = append(errs, "editor.listenPort must be between 0 and 65535")
	}
	for i, p := range cfg.Editor.PortFiles {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, fmt.Sprintf("editor.portFiles[%d] is empty", i))
		}
	}

	if cfg.Journal.Enabled {
		if cfg.Journal.DBPath == "" {
			errs = append(errs, "journal.dbPath is required when the journal is enabled")
		}
		if cfg.Journal.RetentionDays < 1 {
			errs = append(errs, "journal.retentionDays must be >= 1")
		}
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
