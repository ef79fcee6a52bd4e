package workers

import (
	"runtime"
	"testing"
)

func TestCount(t *testing.T) {
	t.Setenv(EnvOverride, "")

	available := runtime.GOMAXPROCS(0)

	tests := []struct {
		name       string
		multiplier float64
		limit      int
		want       int
	}{
		{name: "cpu bound", multiplier: 1.0, limit: 0, want: available},
		{name: "io bound", multiplier: 2.0, limit: 0, want: available * 2},
		{name: "capped by limit", multiplier: 2.0, limit: 1, want: 1},
		{name: "tiny multiplier floors at one", multiplier: 0.0001, limit: 0, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Count(tt.multiplier, tt.limit); got != tt.want {
				t.Errorf("Count(%v, %d) = %d, want %d", tt.multiplier, tt.limit, got, tt.want)
			}
		})
	}
}

func TestCountWithEnvOverride(t *testing.T) {
	available := runtime.GOMAXPROCS(0)

	tests := []struct {
		name     string
		envValue string
		limit    int
		want     int
	}{
		{name: "valid override", envValue: "8", limit: 0, want: 8},
		{name: "override capped by limit", envValue: "20", limit: 10, want: 10},
		{name: "override below limit", envValue: "5", limit: 10, want: 5},
		{name: "non-numeric ignored", envValue: "many", limit: 0, want: available},
		{name: "zero ignored", envValue: "0", limit: 0, want: available},
		{name: "negative ignored", envValue: "-3", limit: 0, want: available},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvOverride, tt.envValue)
			if got := Count(1.0, tt.limit); got != tt.want {
				t.Errorf("Count(1.0, %d) with %s=%q = %d, want %d", tt.limit, EnvOverride, tt.envValue, got, tt.want)
			}
		})
	}
}

func TestHelpers(t *testing.T) {
	t.Setenv(EnvOverride, "")

	if got := ForCPU(1); got != 1 {
		t.Errorf("ForCPU(1) = %d, want 1", got)
	}
}
