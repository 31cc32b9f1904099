package desktopagent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type channelDefaults struct {
	Color string `default:"red"`
	Glyph string
}

type agentDefaults struct {
	TopicRoot     string            `default:"fdc3/v2.0/"`
	Timeout       time.Duration     `default:"2s"`
	Workers       int               `default:"4"`
	Ratio         float64           `default:"0.5"`
	Origins       []string          `default:"[\"app://\", \"https://\"]"`
	Labels        map[string]string `default:"{\"tier\":\"desktop\"}"`
	Provider      string            `required:"true"`
	Channel       channelDefaults
	Optional      *channelDefaults
	internalField string `default:"ignored"`
}

func TestProcessConfigDefaults(t *testing.T) {
	cfg := &agentDefaults{Workers: 8, Optional: &channelDefaults{}}
	require.NoError(t, ProcessConfigDefaults(cfg))

	assert.Equal(t, "fdc3/v2.0/", cfg.TopicRoot)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.Equal(t, 8, cfg.Workers, "set values are kept")
	assert.InDelta(t, 0.5, cfg.Ratio, 1e-9)
	assert.Equal(t, []string{"app://", "https://"}, cfg.Origins)
	assert.Equal(t, map[string]string{"tier": "desktop"}, cfg.Labels)
	assert.Equal(t, "red", cfg.Channel.Color)
	assert.Equal(t, "red", cfg.Optional.Color)
	assert.Empty(t, cfg.internalField)
}

func TestProcessConfigDefaultsLeavesNilPointers(t *testing.T) {
	cfg := &agentDefaults{}
	require.NoError(t, ProcessConfigDefaults(cfg))
	assert.Nil(t, cfg.Optional)
}

func TestProcessConfigDefaultsBadTag(t *testing.T) {
	type broken struct {
		Timeout time.Duration `default:"soon"`
	}
	type brokenList struct {
		Items []int `default:"1,2"`
	}
	type brokenInt struct {
		Port int `default:"http"`
	}
	for _, cfg := range []any{&broken{}, &brokenList{}, &brokenInt{}} {
		assert.ErrorIs(t, ProcessConfigDefaults(cfg), ErrDefaultValueParseError)
	}
}

func TestValidateConfigRequired(t *testing.T) {
	type inner struct {
		Key string `required:"true"`
	}
	type outer struct {
		Name   string `required:"true"`
		Nested inner
		Ptr    *inner `required:"true"`
	}

	err := ValidateConfigRequired(&outer{})
	require.ErrorIs(t, err, ErrConfigRequiredFieldMissing)
	assert.Contains(t, err.Error(), "Name")
	assert.Contains(t, err.Error(), "Nested.Key")
	assert.Contains(t, err.Error(), "Ptr")

	err = ValidateConfigRequired(&outer{Name: "a", Nested: inner{Key: "k"}, Ptr: &inner{}})
	require.ErrorIs(t, err, ErrConfigRequiredFieldMissing)
	assert.Contains(t, err.Error(), "Ptr.Key")

	assert.NoError(t, ValidateConfigRequired(&outer{Name: "a", Nested: inner{Key: "k"}, Ptr: &inner{Key: "k"}}))
}

func TestValidateConfigRejectsNonStructs(t *testing.T) {
	tests := []struct {
		name string
		cfg  any
		want error
	}{
		{"nil", nil, ErrConfigNil},
		{"value", agentDefaults{}, ErrConfigNotPointer},
		{"nil pointer", (*agentDefaults)(nil), ErrConfigNotPointer},
		{"pointer to int", new(int), ErrConfigNotStruct},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, ValidateConfig(tt.cfg), tt.want)
		})
	}
}

func TestValidateConfigAppliesDefaultsBeforeRequired(t *testing.T) {
	type cfg struct {
		Provider string `default:"desktopagent" required:"true"`
	}
	c := &cfg{}
	require.NoError(t, ValidateConfig(c))
	assert.Equal(t, "desktopagent", c.Provider)
}
