// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	xglog "github.com/yoyostream/transcoderd/internal/log"
)

func reserveListenAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func waitForListen(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return errors.New("listen timeout")
}

func testServerConfig(addr string) ServerConfig {
	return ServerConfig{
		ListenAddr:      addr,
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		IdleTimeout:     10 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 2 * time.Second,
	}
}

func TestNewManager_Validation(t *testing.T) {
	_, err := NewManager(testServerConfig("127.0.0.1:0"), Deps{
		Logger:     xglog.WithComponent("test"),
		APIHandler: http.NotFoundHandler(),
	})
	require.NoError(t, err)

	_, err = NewManager(testServerConfig("127.0.0.1:0"), Deps{
		Logger:     zerolog.Nop(),
		APIHandler: http.NotFoundHandler(),
	})
	assert.ErrorIs(t, err, ErrMissingLogger)

	_, err = NewManager(testServerConfig("127.0.0.1:0"), Deps{Logger: xglog.WithComponent("test")})
	assert.ErrorIs(t, err, ErrMissingAPIHandler)
}

func TestManager_ServesAPIAndMetrics(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	apiAddr, metricsAddr := reserveListenAddr(t), reserveListenAddr(t)
	mgr, err := NewManager(testServerConfig(apiAddr), Deps{
		Logger: xglog.WithComponent("test"),
		APIHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("api"))
		}),
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# HELP test_metric\n"))
		}),
		MetricsAddr: metricsAddr,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errChan := make(chan error, 1)
	go func() { errChan <- mgr.Start(ctx) }()

	require.NoError(t, waitForListen(apiAddr, 2*time.Second))
	require.NoError(t, waitForListen(metricsAddr, 2*time.Second))

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	for addr, want := range map[string]string{apiAddr: "api", metricsAddr: "# HELP test_metric\n"} {
		resp, err := client.Get("http://" + addr)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		assert.Equal(t, want, string(body))
	}

	cancel()
	select {
	case err := <-errChan:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}
}

func TestManager_ShutdownHooksRunLIFO(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	addr := reserveListenAddr(t)
	mgr, err := NewManager(testServerConfig(addr), Deps{
		Logger:     xglog.WithComponent("test"),
		APIHandler: http.NotFoundHandler(),
	})
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		order []string
	)
	hook := func(name string, err error) ShutdownHook {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return err
		}
	}
	mgr.RegisterShutdownHook("telemetry", hook("telemetry", nil))
	mgr.RegisterShutdownHook("history", hook("history", errors.New("disk gone")))
	mgr.RegisterShutdownHook("schedulers", hook("schedulers", nil))

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() { errChan <- mgr.Start(ctx) }()
	require.NoError(t, waitForListen(addr, 2*time.Second))
	cancel()

	select {
	case err := <-errChan:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "hook history: disk gone")
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return")
	}
	assert.Equal(t, []string{"schedulers", "history", "telemetry"}, order)

	// A second shutdown is a no-op.
	assert.NoError(t, mgr.Shutdown(context.Background()))
}

func TestManager_Shutdown_NotStarted(t *testing.T) {
	mgr, err := NewManager(testServerConfig("127.0.0.1:0"), Deps{
		Logger:     xglog.WithComponent("test"),
		APIHandler: http.NotFoundHandler(),
	})
	require.NoError(t, err)
	assert.ErrorIs(t, mgr.Shutdown(context.Background()), ErrManagerNotStarted)
}

func TestManager_PropagatesListenErrors(t *testing.T) {
	busy := httptest.NewServer(http.NotFoundHandler())
	defer busy.Close()

	mgr, err := NewManager(testServerConfig(busy.Listener.Addr().String()), Deps{
		Logger:     xglog.WithComponent("test"),
		APIHandler: http.NotFoundHandler(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.Error(t, mgr.Start(ctx), "port conflict must surface")
}
