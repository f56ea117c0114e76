package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"pixelpipe/internal/frame"
	"pixelpipe/internal/logging"
)

const SupportedSchema = "v1"

// EnvPrefix selects environment overrides, e.g.
// PIXELPIPE__TRANSFORM__NAME=green or PIXELPIPE__PIPE__EMIT_HEADER=true.
const EnvPrefix = "PIXELPIPE__"

const (
	TypeInProc = "inproc"
	TypeGRPC   = "grpc"
)

type RetryPolicy struct {
	Attempts  int `koanf:"attempts" yaml:"attempts"`
	BackoffMS int `koanf:"backoff_ms" yaml:"backoff_ms"`
}

type TransformConfig struct {
	Name        string            `koanf:"name" yaml:"name"`
	Type        string            `koanf:"type" yaml:"type"`       // inproc|grpc
	Address     string            `koanf:"address" yaml:"address"` // grpc only, e.g. localhost:50052
	TimeoutMS   int               `koanf:"timeout_ms" yaml:"timeout_ms"`
	RetryPolicy RetryPolicy       `koanf:"retry_policy" yaml:"retry_policy"`
	Options     map[string]string `koanf:"options" yaml:"options"`
}

type PipeConfig struct {
	MaxFrameBytes int  `koanf:"max_frame_bytes" yaml:"max_frame_bytes"`
	EmitHeader    bool `koanf:"emit_header" yaml:"emit_header"`
}

type LogConfig struct {
	Level string `koanf:"level" yaml:"level"`
	JSON  bool   `koanf:"json" yaml:"json"`
}

type MetricsConfig struct {
	Port int `koanf:"port" yaml:"port"` // 0 = disabled
}

type DebugConfig struct {
	PerFrameDelayMS int  `koanf:"per_frame_delay_ms" yaml:"per_frame_delay_ms"`
	PrintCounter    bool `koanf:"print_counter" yaml:"print_counter"`
}

type Config struct {
	SchemaVersion string          `koanf:"schema_version" yaml:"schema_version"`
	Transform     TransformConfig `koanf:"transform" yaml:"transform"`
	Pipe          PipeConfig      `koanf:"pipe" yaml:"pipe"`
	Log           LogConfig       `koanf:"log" yaml:"log"`
	Metrics       MetricsConfig   `koanf:"metrics" yaml:"metrics"`
	Debug         DebugConfig     `koanf:"debug" yaml:"debug"`
}

// ---------------------------------------------------------------------------
// Loader
// ---------------------------------------------------------------------------

// DefaultPath is read when no config file is named; it may be absent.
const DefaultPath = "pixelpipe.yml"

// Load merges YAML at path with environment variables under EnvPrefix, then
// applies defaults. A missing file is an error only when required is set,
// i.e. when the user named the file.
func Load(path string, required bool) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			(required || !errors.Is(err, fs.ErrNotExist)) {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, "__", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("config env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = SupportedSchema
	}
	if cfg.SchemaVersion != SupportedSchema {
		return cfg, fmt.Errorf("config schema_version %q not supported (want %q)", cfg.SchemaVersion, SupportedSchema)
	}
	seedLogFromEnv(&cfg.Log, logging.FromEnv())
	applyDefaults(&cfg)
	return cfg, cfg.Validate()
}

// envKey maps PIXELPIPE__PIPE__EMIT_HEADER to pipe__emit_header; koanf then
// splits on the "__" delimiter.
func envKey(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
}

// seedLogFromEnv fills log settings the file and PIXELPIPE__LOG__* left unset
// from PIXELPIPE_LOG_LEVEL and PIXELPIPE_LOG_JSON.
func seedLogFromEnv(c *LogConfig, env logging.Options) {
	if c.Level == "" {
		c.Level = env.Level
	}
	if !c.JSON {
		c.JSON = env.JSON
	}
}

// Validate reports settings that cannot produce a working pipe.
func (c Config) Validate() error {
	switch c.Transform.Type {
	case TypeInProc:
	case TypeGRPC:
		if c.Transform.Address == "" {
			return fmt.Errorf("transform type %q needs an address", TypeGRPC)
		}
	default:
		return fmt.Errorf("unsupported transform type %q", c.Transform.Type)
	}
	if c.Pipe.MaxFrameBytes < 0 {
		return fmt.Errorf("pipe.max_frame_bytes must not be negative")
	}
	if c.Transform.RetryPolicy.Attempts < 0 {
		return fmt.Errorf("transform.retry_policy.attempts must not be negative")
	}
	return nil
}

// YAML renders the effective configuration.
func (c Config) YAML() ([]byte, error) {
	return yamlv3.Marshal(c)
}

// ---------------------------------------------------------------------------
// defaults
// ---------------------------------------------------------------------------

func applyDefaults(c *Config) {
	if c.Transform.Type == "" {
		c.Transform.Type = TypeInProc
	}
	if c.Transform.TimeoutMS == 0 {
		c.Transform.TimeoutMS = 1000
	}
	if c.Transform.Options == nil {
		c.Transform.Options = map[string]string{}
	}
	if c.Pipe.MaxFrameBytes == 0 {
		c.Pipe.MaxFrameBytes = frame.DefaultMaxFrameBytes
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
