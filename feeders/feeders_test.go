package feeders

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type agentSection struct {
	TopicRoot      string        `yaml:"topicRoot" toml:"topicRoot" env:"topic_root"`
	ResultTimeout  time.Duration `yaml:"intentResultTimeout" toml:"intentResultTimeout" env:"intent_result_timeout"`
	Provider       string        `yaml:"provider" toml:"provider" env:"provider"`
	Workers        int           `yaml:"workers" toml:"workers" env:"workers"`
	Debug          bool          `yaml:"debug" toml:"debug" env:"debug"`
	AllowedOrigins []string      `yaml:"allowedOrigins" toml:"allowedOrigins" env:"allowed_origins"`
	Nested         nestedSection `yaml:"nested" toml:"nested" env:"nested"`
}

type nestedSection struct {
	Name string `yaml:"name" toml:"name" env:"name"`
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestYamlFeeder_FeedKey(t *testing.T) {
	path := writeFile(t, "config.yaml", `
fdc3:
  topicRoot: "fdc3/v2.0/"
  intentResultTimeout: 1500ms
  provider: acme
  workers: 4
  debug: true
  allowedOrigins: [a, b]
  nested:
    name: inner
other:
  provider: nope
`)

	var cfg agentSection
	require.NoError(t, NewYamlFeeder(path).FeedKey("fdc3", &cfg))
	assert.Equal(t, "fdc3/v2.0/", cfg.TopicRoot)
	assert.Equal(t, 1500*time.Millisecond, cfg.ResultTimeout)
	assert.Equal(t, "acme", cfg.Provider)
	assert.Equal(t, 4, cfg.Workers)
	assert.True(t, cfg.Debug)
	assert.Equal(t, []string{"a", "b"}, cfg.AllowedOrigins)
	assert.Equal(t, "inner", cfg.Nested.Name)
}

func TestYamlFeeder_MissingKeyIsNoop(t *testing.T) {
	path := writeFile(t, "config.yaml", "other:\n  provider: x\n")

	cfg := agentSection{Provider: "kept"}
	require.NoError(t, NewYamlFeeder(path).FeedKey("fdc3", &cfg))
	assert.Equal(t, "kept", cfg.Provider)
}

func TestYamlFeeder_MissingFile(t *testing.T) {
	var cfg agentSection
	err := NewYamlFeeder(filepath.Join(t.TempDir(), "absent.yaml")).Feed(&cfg)
	require.ErrorIs(t, err, ErrReadFile)
}

func TestJSONFeeder_AcceptsComments(t *testing.T) {
	path := writeFile(t, "config.json", `{
  // agent settings
  "fdc3": {
    "provider": "acme",
    "intentResultTimeout": "2s",
    "workers": 2, /* trailing comma below */
    "allowedOrigins": ["x",],
  },
}`)

	var cfg agentSection
	require.NoError(t, NewJSONFeeder(path).FeedKey("fdc3", &cfg))
	assert.Equal(t, "acme", cfg.Provider)
	assert.Equal(t, 2*time.Second, cfg.ResultTimeout)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, []string{"x"}, cfg.AllowedOrigins)
}

func TestJSONFeeder_InvalidDocument(t *testing.T) {
	path := writeFile(t, "config.json", `{"fdc3": [`)

	var cfg agentSection
	err := NewJSONFeeder(path).FeedKey("fdc3", &cfg)
	require.ErrorIs(t, err, ErrJSONDecode)
}

func TestTomlFeeder_FeedKey(t *testing.T) {
	path := writeFile(t, "config.toml", `
[fdc3]
topicRoot = "fdc3/v2.0/"
intentResultTimeout = "750ms"
provider = "acme"
workers = 3
allowedOrigins = ["a"]

[fdc3.nested]
name = "inner"
`)

	var cfg agentSection
	require.NoError(t, NewTomlFeeder(path).FeedKey("fdc3", &cfg))
	assert.Equal(t, "fdc3/v2.0/", cfg.TopicRoot)
	assert.Equal(t, 750*time.Millisecond, cfg.ResultTimeout)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "inner", cfg.Nested.Name)
}

func TestTomlFeeder_Feed(t *testing.T) {
	path := writeFile(t, "config.toml", "provider = \"acme\"\n")

	var cfg agentSection
	require.NoError(t, NewTomlFeeder(path).Feed(&cfg))
	assert.Equal(t, "acme", cfg.Provider)
}

func TestEnvFeeder_FeedKey(t *testing.T) {
	t.Setenv("AGENT_FDC3_PROVIDER", "from-env")
	t.Setenv("AGENT_FDC3_INTENT_RESULT_TIMEOUT", "3s")
	t.Setenv("AGENT_FDC3_WORKERS", "8")
	t.Setenv("AGENT_FDC3_DEBUG", "true")
	t.Setenv("AGENT_FDC3_ALLOWED_ORIGINS", "a, b ,c")
	t.Setenv("AGENT_FDC3_NESTED_NAME", "deep")

	cfg := agentSection{TopicRoot: "untouched"}
	require.NoError(t, NewEnvFeeder("agent").FeedKey("fdc3", &cfg))

	assert.Equal(t, "untouched", cfg.TopicRoot)
	assert.Equal(t, "from-env", cfg.Provider)
	assert.Equal(t, 3*time.Second, cfg.ResultTimeout)
	assert.Equal(t, 8, cfg.Workers)
	assert.True(t, cfg.Debug)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.AllowedOrigins)
	assert.Equal(t, "deep", cfg.Nested.Name)
}

func TestEnvFeeder_ConversionError(t *testing.T) {
	t.Setenv("WORKERS", "many")

	var cfg agentSection
	err := NewEnvFeeder("").Feed(&cfg)
	require.ErrorIs(t, err, ErrEnvConversion)
}

func TestEnvFeeder_RejectsNonStruct(t *testing.T) {
	var s string
	require.ErrorIs(t, NewEnvFeeder("").Feed(&s), ErrInvalidTarget)
	require.ErrorIs(t, NewEnvFeeder("").Feed(agentSection{}), ErrInvalidTarget)
}
