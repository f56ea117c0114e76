package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"pixelpipe/internal/frame"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pixelpipe.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_FileValuesAndDefaults(t *testing.T) {
	path := writeConfig(t, `schema_version: v1
transform:
  name: zero
  options:
    channels: "0,2"
pipe:
  emit_header: true
debug:
  print_counter: true
`)
	cfg, err := Load(path, true)
	require.NoError(t, err)

	assert.Equal(t, "zero", cfg.Transform.Name)
	assert.Equal(t, TypeInProc, cfg.Transform.Type)
	assert.Equal(t, map[string]string{"channels": "0,2"}, cfg.Transform.Options)
	assert.True(t, cfg.Pipe.EmitHeader)
	assert.Equal(t, frame.DefaultMaxFrameBytes, cfg.Pipe.MaxFrameBytes)
	assert.Equal(t, 1000, cfg.Transform.TimeoutMS)
	assert.True(t, cfg.Debug.PrintCounter)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"), false)
	require.NoError(t, err)
	assert.Equal(t, SupportedSchema, cfg.SchemaVersion)
	assert.Equal(t, TypeInProc, cfg.Transform.Type)
	assert.NotNil(t, cfg.Transform.Options)
}

func TestLoad_InvalidSchema(t *testing.T) {
	path := writeConfig(t, "schema_version: v999\n")
	_, err := Load(path, true)
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `transform:
  name: green
metrics:
  port: 9100
`)
	t.Setenv("PIXELPIPE__TRANSFORM__NAME", "blackout")
	t.Setenv("PIXELPIPE__METRICS__PORT", "9200")

	cfg, err := Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, "blackout", cfg.Transform.Name)
	assert.Equal(t, 9200, cfg.Metrics.Port)
}

func TestLoad_GRPCNeedsAddress(t *testing.T) {
	path := writeConfig(t, "transform: {name: invert, type: grpc}\n")
	_, err := Load(path, true)
	assert.Error(t, err)
}

func TestValidate_UnknownType(t *testing.T) {
	cfg := Config{Transform: TransformConfig{Type: "stdio"}}
	assert.Error(t, cfg.Validate())
}

func TestConfig_YAMLRoundTrip(t *testing.T) {
	path := writeConfig(t, "transform: {name: red, options: {gain: \"2\"}}\n")
	cfg, err := Load(path, true)
	require.NoError(t, err)

	out, err := cfg.YAML()
	require.NoError(t, err)

	var back Config
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, cfg, back)
}

func TestLoad_MissingRequiredFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"), true)
	assert.Error(t, err)
}

func TestLoad_LogSettingsFromEnv(t *testing.T) {
	t.Setenv("PIXELPIPE_LOG_LEVEL", "debug")
	t.Setenv("PIXELPIPE_LOG_JSON", "true")

	cfg, err := Load("", false)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
}

func TestLoad_FileLogLevelBeatsEnv(t *testing.T) {
	t.Setenv("PIXELPIPE_LOG_LEVEL", "debug")
	path := writeConfig(t, "log: {level: warn}\n")

	cfg, err := Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
}
