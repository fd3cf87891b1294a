package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/c360/swaybar/errors"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "SWAYBAR"

// durationKeys are converted from strings such as "30s" or "2d" to
// nanoseconds before decoding, wherever they appear in the tree
var durationKeys = map[string]bool{
	"interval":         true,
	"timeout":          true,
	"min_interval":     true,
	"initial":          true,
	"max":              true,
	"shutdown_timeout": true,
	"drain_timeout":    true,
	"reconnect_wait":   true,
	"ping_interval":    true,
	"range":            true,
	"step":             true,
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		validation: true,
		envPrefix:  EnvPrefix,
	}
}

// AddLayer adds a configuration file layer. Later layers win.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables schema and field validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges defaults, every layer and the environment, in that order
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(Default())
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "Load", "defaults encode")
	}

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "load "+path)
		}
		merged = deepMergeMaps(merged, raw)
	}

	if l.validation {
		if err := ValidateSchema(merged); err != nil {
			return nil, err
		}
	}

	cfg, err := fromMap(merged)
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err), "Loader", "Load", "decode")
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// loadRaw reads one file into a generic map, choosing the decoder by
// extension, and converts duration strings.
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	raw := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := validateJSONDepth(data); err != nil {
			return nil, fmt.Errorf("invalid JSON structure: %w", err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported config format %q", errors.ErrInvalidConfig, filepath.Ext(path))
	}

	if err := parseDurations(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// parseDurations walks the tree and converts duration strings in place
func parseDurations(node any) error {
	switch n := node.(type) {
	case map[string]any:
		for k, v := range n {
			if s, ok := v.(string); ok && durationKeys[k] {
				d, err := parseDurationWithDays(s)
				if err != nil {
					return fmt.Errorf("%w: %s: %v", errors.ErrInvalidConfig, k, err)
				}
				n[k] = d.Nanoseconds()
				continue
			}
			if err := parseDurations(v); err != nil {
				return err
			}
		}
	case []any:
		for _, v := range n {
			if err := parseDurations(v); err != nil {
				return err
			}
		}
	case []map[string]any:
		for _, v := range n {
			if err := parseDurations(v); err != nil {
				return err
			}
		}
	}
	return nil
}

// parseDurationWithDays parses durations that may include days (e.g., "2d")
func parseDurationWithDays(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// deepMergeMaps recursively merges two maps, with override taking
// precedence. Lists are replaced, never concatenated.
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	// A nil module list would otherwise survive as JSON null
	if m["modules"] == nil {
		delete(m, "modules")
	}
	return m, nil
}

func fromMap(m map[string]any) (*Config, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides applies SWAYBAR_* environment variables
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	get := func(name string) (string, bool, error) {
		key := l.envPrefix + "_" + name
		val := os.Getenv(key)
		if val == "" {
			return "", false, nil
		}
		if err := validateEnvVar(key, val); err != nil {
			return "", false, errors.WrapInvalid(err, "Loader", "applyEnvOverrides", key)
		}
		return val, true, nil
	}
	envErr := func(name string, err error) error {
		return errors.WrapInvalid(fmt.Errorf("%w: %s_%s: %v", errors.ErrInvalidConfig, l.envPrefix, name, err),
			"Loader", "applyEnvOverrides", "parse")
	}

	for name, field := range map[string]*string{
		"NATS_URL":      &cfg.NATS.URL,
		"NATS_TOKEN":    &cfg.NATS.Token,
		"NATS_USER":     &cfg.NATS.User,
		"NATS_PASSWORD": &cfg.NATS.Password,
	} {
		if val, ok, err := get(name); err != nil {
			return err
		} else if ok {
			*field = val
		}
	}

	if val, ok, err := get("METRICS_PORT"); err != nil {
		return err
	} else if ok {
		port, err := strconv.Atoi(val)
		if err != nil {
			return envErr("METRICS_PORT", err)
		}
		cfg.Metrics.Port = port
	}

	if val, ok, err := get("MIN_INTERVAL"); err != nil {
		return err
	} else if ok {
		d, err := parseDurationWithDays(val)
		if err != nil {
			return envErr("MIN_INTERVAL", err)
		}
		cfg.Aggregator.MinInterval = d
	}

	if val, ok, err := get("SHUTDOWN_TIMEOUT"); err != nil {
		return err
	} else if ok {
		d, err := parseDurationWithDays(val)
		if err != nil {
			return envErr("SHUTDOWN_TIMEOUT", err)
		}
		cfg.ShutdownTimeout = d
	}

	if val, ok, err := get("CLICK_EVENTS"); err != nil {
		return err
	} else if ok {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return envErr("CLICK_EVENTS", err)
		}
		cfg.Protocol.ClickEvents = b
	}
	return nil
}

// DefaultPath finds the first existing config file under
// $XDG_CONFIG_HOME/swaybar (or ~/.config/swaybar)
func DefaultPath() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrMissingConfig, err), "Loader", "DefaultPath", "home lookup")
		}
		dir = filepath.Join(home, ".config")
	}

	candidates := []string{"config.yaml", "config.yml", "config.toml", "config.json"}
	for _, name := range candidates {
		path := filepath.Join(dir, "swaybar", name)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, nil
		}
	}
	return "", errors.WrapInvalid(
		fmt.Errorf("%w: none of %v in %s", errors.ErrMissingConfig, candidates, filepath.Join(dir, "swaybar")),
		"Loader", "DefaultPath", "search")
}
