package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "zero workers means automatic", mutate: func(c *Config) { c.Scanner.Workers = 0 }},
		{name: "custom signatures path", mutate: func(c *Config) { c.Signatures.Path = "/tmp/sigs" }},
		{name: "endpoint with port", mutate: func(c *Config) { c.Telemetry.Endpoint = "otel:4317" }},
		{name: "endpoint without port", mutate: func(c *Config) { c.Telemetry.Endpoint = "otel" }, wantErr: true},
		{name: "unknown log level", mutate: func(c *Config) { c.Log.Level = "trace" }, wantErr: true},
		{name: "missing service name", mutate: func(c *Config) { c.Telemetry.ServiceName = "" }, wantErr: true},
		{name: "negative progress interval", mutate: func(c *Config) { c.Scanner.ProgressEvery = -1 }, wantErr: true},
		{name: "oversized chunk", mutate: func(c *Config) { c.Scanner.ChunkSize = 1 << 30 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
