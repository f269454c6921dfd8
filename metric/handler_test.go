package metric

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/prodcon/errors"
)

func TestServer_ServesMetricsAndHealth(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "served_items_total",
		Help: "Items served in the test",
	})
	require.NoError(t, registry.RegisterCounter("test", "served_items_total", counter))
	counter.Add(3)

	server := NewServer(0, "", registry)
	require.NoError(t, server.Start())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.NoError(t, server.Stop(ctx))
	}()

	err := server.Start()
	assert.ErrorIs(t, err, errors.ErrAlreadyStarted, "second start should fail")
	assert.True(t, errors.IsInvalid(err))

	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(server.Address())
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "served_items_total 3")

	healthURL := strings.TrimSuffix(server.Address(), "/metrics") + "/health"
	resp, err = client.Get(healthURL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_StartWithoutRegistry(t *testing.T) {
	server := NewServer(0, "/metrics", nil)
	assert.Error(t, server.Start())
}

func TestServer_StopWhenNotStarted(t *testing.T) {
	server := NewServer(0, "/metrics", NewMetricsRegistry())
	assert.NoError(t, server.Stop(context.Background()))
	assert.Equal(t, "http://localhost:0/metrics", server.Address())
}

func TestServer_CustomHealthHandler(t *testing.T) {
	server := NewServer(0, "/metrics", NewMetricsRegistry())
	server.SetHealthHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("draining"))
	}))
	require.NoError(t, server.Start())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.NoError(t, server.Stop(ctx))
	}()

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(strings.TrimSuffix(server.Address(), "/metrics") + "/health")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "draining", string(body))
}
