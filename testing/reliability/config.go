package reliability

import (
	"testing"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// ReliabilityConfig holds configuration for reliability testing, read from
// SCOPEZ_RELIABILITY_* environment variables.
type ReliabilityConfig struct {
	// Level is "basic" or "stress".
	Level string `envconfig:"LEVEL"`
	// Duration bounds stress loops.
	Duration time.Duration `envconfig:"DURATION" default:"10s"`
	// MaxGoroutines caps concurrent workers.
	MaxGoroutines int `envconfig:"MAX_GOROUTINES" default:"100"`
	// Continuations is the number captured per shared span.
	Continuations int `envconfig:"CONTINUATIONS" default:"1000"`
}

// getReliabilityConfig reads configuration from the environment. A malformed
// variable fails the test rather than silently falling back.
func getReliabilityConfig(t *testing.T) ReliabilityConfig {
	t.Helper()
	var config ReliabilityConfig
	if err := envconfig.Process("scopez_reliability", &config); err != nil {
		t.Fatalf("invalid reliability config: %v", err)
	}
	return config
}

// requireLevel skips t unless the configured level is one of levels.
func requireLevel(t *testing.T, levels ...string) ReliabilityConfig {
	t.Helper()
	config := getReliabilityConfig(t)
	for _, level := range levels {
		if config.Level == level {
			return config
		}
	}
	if config.Level == "" {
		t.Skip("SCOPEZ_RELIABILITY_LEVEL not set, skipping reliability tests")
	}
	t.Skipf("reliability level %q does not run this test", config.Level)
	return config
}
