package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can be written as "30s" or
// "24h" instead of raw nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ProviderSetting describes one configured provider. APIKey supports
// ${ENV_VAR} expansion so secrets stay out of the file.
type ProviderSetting struct {
	ID            string  `yaml:"id"`
	Label         string  `yaml:"label"`
	Type          string  `yaml:"type"` // "openai" (default, any compatible endpoint) or "stub"
	BaseURL       string  `yaml:"base_url"`
	APIKey        string  `yaml:"api_key"`
	Model         string  `yaml:"model"`
	Temperature   float64 `yaml:"temperature"`
	MaxTokens     int     `yaml:"max_tokens"`
	MaxConcurrent int64   `yaml:"max_concurrent"`
}

// DispatchSettings bounds the dispatcher.
type DispatchSettings struct {
	MaxConcurrent   int64    `yaml:"max_concurrent"`
	CallTimeout     Duration `yaml:"call_timeout"`
	SequentialPause Duration `yaml:"sequential_pause"`
}

// ProbeSettings tunes the startup capability probe.
type ProbeSettings struct {
	Timeout  Duration `yaml:"timeout"`
	Attempts int      `yaml:"attempts"`
	Backoff  Duration `yaml:"backoff"`
}

// CacheSettings carries the per-category TTL table.
type CacheSettings struct {
	TTLs       map[string]Duration `yaml:"ttls"`
	DefaultTTL Duration            `yaml:"default_ttl"`
}

// FusionSettings picks strategy defaults.
type FusionSettings struct {
	DefaultStrategy   string `yaml:"default_strategy"`
	SynthesisProvider string `yaml:"synthesis_provider"`
}

// Settings is the YAML-file half of the configuration surface.
type Settings struct {
	Providers    []ProviderSetting `yaml:"providers"`
	Dispatch     DispatchSettings  `yaml:"dispatch"`
	Probe        ProbeSettings     `yaml:"probe"`
	Cache        CacheSettings     `yaml:"cache"`
	Fusion       FusionSettings    `yaml:"fusion"`
	SystemPrompt string            `yaml:"system_prompt"`
}

// DefaultSettings returns Settings with sensible defaults and no providers.
func DefaultSettings() Settings {
	return Settings{
		Dispatch: DispatchSettings{
			MaxConcurrent:   8,
			CallTimeout:     Duration(60 * time.Second),
			SequentialPause: Duration(500 * time.Millisecond),
		},
		Probe: ProbeSettings{
			Timeout:  Duration(10 * time.Second),
			Attempts: 2,
			Backoff:  Duration(500 * time.Millisecond),
		},
		Cache: CacheSettings{
			DefaultTTL: Duration(time.Hour),
			TTLs: map[string]Duration{
				"document":   Duration(24 * time.Hour),
				"analysis":   Duration(time.Hour),
				"enrichment": Duration(7 * 24 * time.Hour),
				"search":     Duration(2 * time.Hour),
				"general":    Duration(6 * time.Hour),
			},
		},
		Fusion: FusionSettings{
			DefaultStrategy: "best_of",
		},
	}
}

// LoadSettings reads the YAML settings file, expanding ${ENV} references.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	settings := DefaultSettings()
	if err := yaml.Unmarshal([]byte(expanded), &settings); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	if len(settings.Providers) == 0 {
		return Settings{}, fmt.Errorf("settings: at least one provider required")
	}
	return settings, nil
}
