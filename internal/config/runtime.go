package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/torchnode/internal/logging"
	"github.com/smazurov/torchnode/internal/safety"
)

// Config file keys of the [safety] table.
const (
	KeyLowPowerThreshold = "safety.low_power_threshold"
	KeyMaxOnDuration     = "safety.max_on_duration"
)

// SafetyOverride holds the [safety] keys present in the config file. Keys
// the file does not set are nil.
type SafetyOverride struct {
	LowPowerThreshold *int
	MaxOnDuration     *time.Duration
}

// Apply returns base with every file value that is not pinned by a CLI flag
// or environment variable.
func (s SafetyOverride) Apply(base safety.Policy, pinned map[string]bool) safety.Policy {
	if s.LowPowerThreshold != nil && !pinned[KeyLowPowerThreshold] {
		base.LowPowerThreshold = *s.LowPowerThreshold
	}
	if s.MaxOnDuration != nil && !pinned[KeyMaxOnDuration] {
		base.MaxOnDuration = *s.MaxOnDuration
	}
	return base
}

// Runtime holds the settings that are re-applied when the config file changes.
type Runtime struct {
	Logging logging.Config
	Safety  SafetyOverride
}

type rawRuntime struct {
	Logging map[string]any `toml:"logging"`
	Safety  struct {
		LowPowerThreshold *int    `toml:"low_power_threshold"`
		MaxOnDuration     *string `toml:"max_on_duration"`
	} `toml:"safety"`
}

// LoadRuntime reads the hot-reloadable sections of the config file. Safety
// keys the file omits stay nil so the running policy keeps its value; invalid
// values are an error so a bad edit never replaces a working policy.
func LoadRuntime(path string) (Runtime, error) {
	rt := Runtime{Logging: defaultLogging()}

	data, err := os.ReadFile(path)
	if err != nil {
		return rt, err
	}

	var raw rawRuntime
	if err := toml.Unmarshal(data, &raw); err != nil {
		return rt, fmt.Errorf("failed to parse TOML config %s: %w", path, err)
	}

	rt.Logging = parseLogging(raw.Logging)

	if p := raw.Safety.LowPowerThreshold; p != nil {
		if *p < 0 || *p > 100 {
			return rt, fmt.Errorf("safety.low_power_threshold must be 0-100, got %d", *p)
		}
		rt.Safety.LowPowerThreshold = p
	}
	if d := raw.Safety.MaxOnDuration; d != nil {
		parsed, err := ParseDuration(*d)
		if err != nil {
			return rt, fmt.Errorf("safety.max_on_duration: %w", err)
		}
		rt.Safety.MaxOnDuration = &parsed
	}

	return rt, nil
}

// LoadLoggingConfig loads the [logging] table. It returns defaults if the
// file is missing or unparsable, since logging must come up before anything
// can report the problem.
func LoadLoggingConfig(configPath string) logging.Config {
	if configPath == "" {
		return defaultLogging()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return defaultLogging()
	}

	var raw struct {
		Logging map[string]any `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return defaultLogging()
	}
	return parseLogging(raw.Logging)
}

func defaultLogging() logging.Config {
	return logging.Config{
		Level:   "info",
		Format:  "text",
		Modules: make(map[string]string),
	}
}

// parseLogging accepts module levels both as a [logging.modules] table and
// as flat keys next to level and format.
func parseLogging(table map[string]any) logging.Config {
	cfg := defaultLogging()

	for key, value := range table {
		switch key {
		case "level":
			if s, ok := value.(string); ok {
				cfg.Level = s
			}
		case "format":
			if s, ok := value.(string); ok {
				cfg.Format = s
			}
		case "modules":
			if modules, ok := value.(map[string]any); ok {
				for module, level := range modules {
					if s, ok := level.(string); ok {
						cfg.Modules[module] = s
					}
				}
			}
		default:
			if s, ok := value.(string); ok {
				cfg.Modules[key] = s
			}
		}
	}

	return cfg
}
