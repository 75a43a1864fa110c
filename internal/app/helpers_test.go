package app

import (
	"bytes"
	"context"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/specialistvlad/telemetryhub/internal/config"
	"github.com/stretchr/testify/require"
)

const waitFor = 5 * time.Second

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// runningApp is an App serving on a loopback port.
type runningApp struct {
	app  *App
	addr string
	logs *SafeBuffer
	stop func() error
}

// startApp serves a debug-level App on a random port. mutate may adjust the
// configuration before it is validated; setup runs on the App before it
// serves.
func startApp(t *testing.T, mutate func(*config.Hub), setup ...func(*App)) *runningApp {
	t.Helper()

	hub := config.Default()
	hub.Listen = "127.0.0.1:0"
	hub.LogLevel = "debug"
	if mutate != nil {
		mutate(&hub)
	}
	cfg, err := NewConfig(hub)
	require.NoError(t, err)

	logs := &SafeBuffer{}
	a := NewApp(logs, cfg)
	for _, fn := range setup {
		fn(a)
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Serve(ctx, ln) }()

	var once sync.Once
	var serveErr error
	stop := func() error {
		once.Do(func() {
			cancel()
			select {
			case serveErr = <-errCh:
			case <-time.After(waitFor):
				t.Error("app did not stop")
			}
		})
		return serveErr
	}

	t.Cleanup(func() {
		_ = stop()
		if os.Getenv("TELEMETRYHUB_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logs.String())
		}
	})
	return &runningApp{app: a, addr: ln.Addr().String(), logs: logs, stop: stop}
}
