package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_FullFile(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	src := `
listen     = ":9000"
log_level  = "debug"
log_format = "text"

ingest {
  path          = "/ingest"
  rate_per_sec  = 2.5
  burst         = 4
  max_msg_bytes = 1024
  idle_timeout  = "30s"
}

feed {
  path = "/feed/"
}

chain {
  stale_after    = "90s"
  prune_interval = "15s"
  empty_grace    = "45s"
}
`

	// --- Act ---
	hub, err := Parse(context.Background(), []byte(src), "hub.hcl", Default())

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, Hub{
		Listen:          ":9000",
		LogLevel:        "debug",
		LogFormat:       "text",
		IngestPath:      "/ingest",
		RatePerSec:      2.5,
		Burst:           4,
		MaxMessageBytes: 1024,
		IdleTimeout:     30 * time.Second,
		FeedPath:        "/feed/",
		StaleAfter:      90 * time.Second,
		PruneInterval:   15 * time.Second,
		EmptyGrace:      45 * time.Second,
	}, hub)
	require.NoError(t, hub.Validate())
}

func TestParse_PartialFileKeepsBase(t *testing.T) {
	t.Parallel()

	hub, err := Parse(context.Background(), []byte(`log_level = "warn"`), "hub.hcl", Default())
	require.NoError(t, err)

	want := Default()
	want.LogLevel = "warn"
	assert.Equal(t, want, hub)
}

func TestParse_ReadsEnvironment(t *testing.T) {
	t.Setenv("TELEMETRYHUB_TEST_LISTEN", ":7777")

	hub, err := Parse(context.Background(), []byte(`listen = env.TELEMETRYHUB_TEST_LISTEN`), "hub.hcl", Default())
	require.NoError(t, err)
	assert.Equal(t, ":7777", hub.Listen)
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		want string
	}{
		{name: "syntax", src: `listen = `, want: "failed to parse HCL file"},
		{name: "unknown attribute", src: `port = 80`, want: "failed to decode HCL file"},
		{name: "wrong type", src: `ingest { burst = "many" }`, want: "failed to decode HCL file"},
		{name: "bad duration", src: `chain { stale_after = "soon" }`, want: "stale_after"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			base := Default()
			hub, err := Parse(context.Background(), []byte(tc.src), "hub.hcl", base)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
			assert.Equal(t, base, hub, "base is returned untouched on error")
		})
	}
}

func TestLoad_ReadsFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "hub.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`feed { path = "/viewers/" }`), 0600))

	hub, err := Load(context.Background(), path, Default())
	require.NoError(t, err)
	assert.Equal(t, "/viewers/", hub.FeedPath)

	_, err = Load(context.Background(), filepath.Join(t.TempDir(), "missing.hcl"), Default())
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Default().Validate())

	tests := map[string]func(*Hub){
		"empty listen":     func(h *Hub) { h.Listen = "" },
		"bad format":       func(h *Hub) { h.LogFormat = "xml" },
		"bad level":        func(h *Hub) { h.LogLevel = "trace" },
		"relative path":    func(h *Hub) { h.IngestPath = "submit" },
		"shared path":      func(h *Hub) { h.FeedPath = h.IngestPath },
		"negative burst":   func(h *Hub) { h.Burst = -1 },
		"no prune cadence": func(h *Hub) { h.PruneInterval = 0 },
		"negative grace":   func(h *Hub) { h.EmptyGrace = -time.Second },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			h := Default()
			mutate(&h)
			assert.Error(t, h.Validate())
		})
	}
}

func TestLoad_DirectoryAppliesFilesInOrder(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "10-base.hcl"), []byte(`
listen = ":9000"
log_level = "debug"
`), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20-override.hcl"), []byte(`log_level = "error"`), 0600))

	// --- Act ---
	hub, err := Load(context.Background(), dir, Default())

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, ":9000", hub.Listen)
	assert.Equal(t, "error", hub.LogLevel, "later files win")
}
