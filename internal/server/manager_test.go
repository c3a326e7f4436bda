package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.ShutdownTimeout = 2 * time.Second
	return NewManager(handler, cfg, zaptest.NewLogger(t))
}

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 150*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 1<<20, cfg.MaxHeaderBytes)
}

func TestManager_StartAndShutdown(t *testing.T) {
	m := newTestManager(t)
	assert.False(t, m.IsRunning())
	assert.Equal(t, "127.0.0.1:0", m.Addr())

	require.NoError(t, m.Start())
	assert.True(t, m.IsRunning())
	assert.NotEqual(t, "127.0.0.1:0", m.Addr(), "Addr reports the bound port")

	resp, err := http.Get("http://" + m.Addr() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())
	require.NoError(t, m.Shutdown(context.Background()), "shutdown is idempotent")
}

func TestManager_DoubleStart(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	assert.ErrorIs(t, m.Start(), ErrAlreadyStarted)
}

func TestManager_StartAfterShutdown(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Shutdown(context.Background()))
	assert.ErrorIs(t, m.Start(), ErrClosed)
}

func TestManager_StartTLSWithoutCertificate(t *testing.T) {
	m := newTestManager(t)
	assert.Error(t, m.StartTLS("/nonexistent/cert.pem", "/nonexistent/key.pem"))
	assert.False(t, m.IsRunning())
}

func TestManager_WaitForShutdownOnContext(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Start())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.WaitForShutdown(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("WaitForShutdown did not return")
	}
	assert.False(t, m.IsRunning())
}

func TestManager_ListenError(t *testing.T) {
	first := newTestManager(t)
	require.NoError(t, first.Start())
	t.Cleanup(func() { _ = first.Shutdown(context.Background()) })

	cfg := DefaultConfig()
	cfg.Addr = first.Addr()
	second := NewManager(http.NewServeMux(), cfg, nil)
	assert.ErrorContains(t, second.Start(), "failed to listen")
}
