package store

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

type noopLogger struct{}

func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Trace(msg string, args ...any) {}
func (noopLogger) Fatal(msg string, args ...any) {}

func validConfig() Config {
	return Config{
		Host:      "localhost",
		Port:      "6379",
		StreamKey: "chainwatch:blocks",
	}
}

func TestNewBlockStreamValidatesConfig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing host", func(c *Config) { c.Host = "" }},
		{"non-numeric port", func(c *Config) { c.Port = "sixthousand" }},
		{"missing stream key", func(c *Config) { c.StreamKey = "" }},
		{"negative db", func(c *Config) { c.DB = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tc.mutate(&cfg)
			_, err := NewBlockStream(noopLogger{}, cfg, validator.New())
			require.Error(t, err)
		})
	}
}

func TestNewBlockStreamAcceptsValidConfig(t *testing.T) {
	t.Parallel()

	bs, err := NewBlockStream(noopLogger{}, validConfig(), validator.New())
	require.NoError(t, err)
	bs.Close()
}
