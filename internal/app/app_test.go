package app

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/rpcgate/internal/config"
)

func testConfig(t *testing.T, nodeURL string) *config.Config {
	t.Helper()
	for _, k := range []string{"PORT", "AVAILABLE_KEYS", "REMOTE_KEYS_ENABLED", "IDENA_URL", "RATE_STORE", "CACHE_KIND", "LOGS_OUTPUT"} {
		t.Setenv(k, "")
	}
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	cfg.Node.URL = nodeURL
	cfg.Node.Key = "node-key"
	cfg.APIKeys = []string{"k1"}
	cfg.Cache = []config.CacheRule{{Method: "dna_epoch", Duration: 60000}}
	require.NoError(t, cfg.Validate())
	return cfg
}

type fetcherFunc func(ctx context.Context) ([]string, error)

func (f fetcherFunc) Fetch(ctx context.Context) ([]string, error) { return f(ctx) }

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return ln
}

func post(t *testing.T, url, body string) (int, string) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestApp_ServeAndShutdown(t *testing.T) {
	var hits atomic.Int32
	node := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.WriteString(w, `{"jsonrpc":"2.0","result":1}`)
	}))
	defer node.Close()

	a, err := New(testConfig(t, node.URL), Options{Registry: prometheus.NewRegistry()})
	require.NoError(t, err)

	gw, adm := listen(t), listen(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, gw, adm) }()

	base := "http://" + gw.Addr().String()
	status, body := post(t, base, `{"method":"dna_epoch","key":"k1"}`)
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"jsonrpc":"2.0","result":1}`, body)
	status, _ = post(t, base, `{"method":"dna_epoch","key":"k1"}`)
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 1, hits.Load(), "second call served from cache")

	status, body = post(t, base, `{"method":"dna_epoch","key":"zz"}`)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "API key is invalid", body)

	resp, err := http.Get("http://" + adm.Addr().String() + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not shut down")
	}
}

func TestApp_RemoteKeysReadiness(t *testing.T) {
	node := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"result":1}`)
	}))
	defer node.Close()

	cfg := testConfig(t, node.URL)
	cfg.RemoteKeys.Enabled = true
	cfg.RemoteKeys.URL = "http://unused"
	cfg.RemoteKeys.RetryDelay = 20
	cfg.RateLimit.Max = 1000

	var fail atomic.Bool
	fail.Store(true)
	f := fetcherFunc(func(context.Context) ([]string, error) {
		if fail.Load() {
			return nil, errors.New("key source down")
		}
		return []string{"remote-key"}, nil
	})

	a, err := New(cfg, Options{Registry: prometheus.NewRegistry(), Fetcher: f})
	require.NoError(t, err)

	gw, adm := listen(t), listen(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, gw, adm) }()

	base := "http://" + gw.Addr().String()
	status, body := post(t, base, `{"method":"dna_identity","key":"remote-key"}`)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "proxy is not started", body)

	fail.Store(false)
	require.Eventually(t, func() bool {
		s, _ := post(t, base, `{"method":"dna_identity","key":"remote-key"}`)
		return s == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)

	resp, err := http.Get("http://" + adm.Addr().String() + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	require.NoError(t, <-done)
}

func TestNew_BadNodeURL(t *testing.T) {
	cfg := testConfig(t, "http://ok")
	cfg.Node.URL = "::bad"
	_, err := New(cfg, Options{Registry: prometheus.NewRegistry()})
	require.Error(t, err)
}
