package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// setting binds one dotted config key to its field.
type setting struct {
	get func(*Config) any
	set func(*Config, string) error
}

func stringSetting(field func(*Config) *string) setting {
	return setting{
		get: func(c *Config) any { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

// pathSetting is a string setting whose value gets ~/ expanded on set.
func pathSetting(field func(*Config) *string) setting {
	return setting{
		get: func(c *Config) any { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = ExpandPath(v); return nil },
	}
}

func intSetting(field func(*Config) *int) setting {
	return setting{
		get: func(c *Config) any { return *field(c) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%q is not a whole number", v)
			}
			*field(c) = n
			return nil
		},
	}
}

func boolSetting(field func(*Config) *bool) setting {
	return setting{
		get: func(c *Config) any { return *field(c) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%q is not true or false", v)
			}
			*field(c) = b
			return nil
		},
	}
}

// pathListSetting takes a comma-separated list; an empty value clears it.
func pathListSetting(field func(*Config) *[]string) setting {
	return setting{
		get: func(c *Config) any { return slices.Clone(*field(c)) },
		set: func(c *Config, v string) error {
			var list []string
			for _, p := range strings.Split(v, ",") {
				if p = strings.TrimSpace(p); p != "" {
					list = append(list, ExpandPath(p))
				}
			}
			*field(c) = list
			return nil
		},
	}
}

var settings = map[string]setting{
	"general.logLevel": stringSetting(func(c *Config) *string { return &c.General.LogLevel }),
	"general.logFile":  pathSetting(func(c *Config) *string { return &c.General.LogFile }),

	"editor.host":                  stringSetting(func(c *Config) *string { return &c.Editor.Host }),
	"editor.portFiles":             pathListSetting(func(c *Config) *[]string { return &c.Editor.PortFiles }),
	"editor.dialTimeoutSeconds":    intSetting(func(c *Config) *int { return &c.Editor.DialTimeoutSeconds }),
	"editor.requestTimeoutSeconds": intSetting(func(c *Config) *int { return &c.Editor.RequestTimeoutSeconds }),
	"editor.listenHost":            stringSetting(func(c *Config) *string { return &c.Editor.ListenHost }),
	"editor.listenPort":            intSetting(func(c *Config) *int { return &c.Editor.ListenPort }),

	"journal.enabled":       boolSetting(func(c *Config) *bool { return &c.Journal.Enabled }),
	"journal.dbPath":        pathSetting(func(c *Config) *string { return &c.Journal.DBPath }),
	"journal.retentionDays": intSetting(func(c *Config) *int { return &c.Journal.RetentionDays }),

	"metrics.enabled":  boolSetting(func(c *Config) *bool { return &c.Metrics.Enabled }),
	"metrics.endpoint": stringSetting(func(c *Config) *string { return &c.Metrics.Endpoint }),
}

// Keys returns every settable key in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func unknownKey(path string) error {
	return fmt.Errorf("unknown config key %q (known keys: %s)", path, strings.Join(Keys(), ", "))
}

// GetByPath returns the value at a dotted key such as "editor.host".
// "editor.portFiles.<n>" addresses one marker path.
func GetByPath(cfg *Config, path string) (any, error) {
	if s, ok := settings[path]; ok {
		return s.get(cfg), nil
	}
	if idx, ok := strings.CutPrefix(path, "editor.portFiles."); ok {
		i, err := strconv.Atoi(idx)
		if err != nil || i < 0 || i >= len(cfg.Editor.PortFiles) {
			return nil, fmt.Errorf("editor.portFiles has %d entries, no index %s", len(cfg.Editor.PortFiles), idx)
		}
		return cfg.Editor.PortFiles[i], nil
	}
	return nil, unknownKey(path)
}

// SetByPath parses value for the key's type and applies it. The change is
// kept only if the resulting config passes Validate; otherwise cfg is left
// as it was.
func SetByPath(cfg *Config, path, value string) error {
	s, ok := settings[path]
	if !ok {
		return unknownKey(path)
	}

	next := *cfg
	next.Editor.PortFiles = slices.Clone(cfg.Editor.PortFiles)
	if err := s.set(&next, value); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := Validate(&next); err != nil {
		return err
	}
	*cfg = next
	return nil
}

// ListPaths returns every key with its current value.
func ListPaths(cfg *Config) map[string]any {
	result := make(map[string]any, len(settings))
	for k, s := range settings {
		result[k] = s.get(cfg)
	}
	return result
}
