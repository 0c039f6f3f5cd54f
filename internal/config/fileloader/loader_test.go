package fileloader

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/frostfile/internal/config"
)

func TestFileLoader(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    func(*config.Config)
		wantErr bool
	}{
		{
			name:    "empty file keeps defaults",
			content: "",
			want:    func(*config.Config) {},
		},
		{
			name: "partial override",
			content: `
scanner:
  workers: 2
  chunk_size: 8192
  progress_every: 500ms
signatures:
  path: /opt/sigs.txt
telemetry:
  endpoint: localhost:4317
  insecure: true
`,
			want: func(c *config.Config) {
				c.Scanner.Workers = 2
				c.Scanner.ChunkSize = 8192
				c.Scanner.ProgressEvery = 500 * time.Millisecond
				c.Signatures.Path = "/opt/sigs.txt"
				c.Telemetry.Endpoint = "localhost:4317"
				c.Telemetry.Insecure = true
			},
		},
		{
			name:    "malformed yaml",
			content: "scanner: [",
			wantErr: true,
		},
		{
			name:    "chunk size below minimum",
			content: "scanner:\n  chunk_size: 16\n",
			wantErr: true,
		},
		{
			name:    "negative workers",
			content: "scanner:\n  workers: -1\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, "/cfg.yaml", []byte(tt.content), 0o644))

			cfg, err := NewFileLoader(fs, "/cfg.yaml").Load(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			want := config.Default()
			tt.want(want)
			assert.Equal(t, want, cfg)
		})
	}
}

func TestFileLoaderMissingFile(t *testing.T) {
	_, err := NewFileLoader(afero.NewMemMapFs(), "/missing.yaml").Load(context.Background())
	assert.ErrorContains(t, err, "failed to read config file")
}
