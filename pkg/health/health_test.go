package health

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPChecker(t *testing.T) {
	var notReady atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ready" && notReady.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := NewHTTPChecker(server.URL + "/ready")
	result := checker.Check(context.Background())
	assert.True(t, result.Healthy, result.Message)
	assert.Positive(t, result.Duration)
	assert.Equal(t, CheckTypeHTTP, checker.Type())

	notReady.Store(true)
	result = checker.Check(context.Background())
	assert.False(t, result.Healthy)
	assert.Contains(t, result.Message, "503")
}

func TestHTTPCheckerStatusDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready","message":"Waiting for leader election"}`))
	}))
	defer server.Close()

	result := NewHTTPChecker(server.URL + "/ready").Check(context.Background())
	assert.False(t, result.Healthy)
	assert.Equal(t, "503 Service Unavailable: not ready (Waiting for leader election), want 200-399", result.Message)
}

func TestHTTPCheckerOptions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead || r.Header.Get("Host-Probe") != "strata" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	checker := NewHTTPChecker(server.URL).
		WithMethod(http.MethodHead).
		WithHeader("Host-Probe", "strata").
		WithStatusRange(200, 499)
	result := checker.Check(context.Background())
	assert.True(t, result.Healthy, result.Message)
}

func TestHTTPCheckerTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	result := NewHTTPChecker(server.URL).WithTimeout(50 * time.Millisecond).Check(context.Background())
	assert.False(t, result.Healthy)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result = NewHTTPChecker(server.URL).Check(ctx)
	assert.False(t, result.Healthy)
}

func TestTCPChecker(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()

	checker := NewTCPChecker(addr).WithTimeout(time.Second)
	assert.Equal(t, CheckTypeTCP, checker.Type())
	assert.True(t, checker.Check(context.Background()).Healthy)

	require.NoError(t, lis.Close())
	assert.False(t, checker.Check(context.Background()).Healthy)
}

func TestProbe(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ok.Close()
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	probe := NewProbe().
		Add("ready", NewHTTPChecker(ok.URL)).
		Add("site", NewHTTPChecker(failing.URL)).
		Add("ready", NewHTTPChecker(ok.URL+"/ready"))

	results := probe.Run(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, "ready", results[0].Name)
	assert.Equal(t, CheckTypeHTTP, results[0].Type)
	assert.True(t, results[0].Healthy)
	assert.Equal(t, "site", results[1].Name)
	assert.False(t, results[1].Healthy)
	assert.False(t, Healthy(results))
	assert.True(t, Healthy(results[:1]))
}
