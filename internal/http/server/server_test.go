package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/rpcgate/internal/access"
	"github.com/dropDatabas3/rpcgate/internal/cache"
	"github.com/dropDatabas3/rpcgate/internal/keys"
	"github.com/dropDatabas3/rpcgate/internal/metrics"
	"github.com/dropDatabas3/rpcgate/internal/proxy"
	"github.com/dropDatabas3/rpcgate/internal/rate"
)

// node simula el nodo: cuenta llamadas y guarda el último body recibido.
type node struct {
	mu    sync.Mutex
	calls int
	last  map[string]any
	reply string
}

func (n *node) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	n.mu.Lock()
	n.calls++
	n.last = nil
	_ = json.Unmarshal(b, &n.last)
	reply := n.reply
	n.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, reply)
}

func (n *node) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

type fixture struct {
	node    *node
	gateway http.Handler
}

type notReady struct{}

func (notReady) Ready() bool          { return false }
func (notReady) Contains(string) bool { return false }
func (notReady) Status() keys.Status  { return keys.Status{LastError: "connection refused"} }

func newFixture(t *testing.T, dir keys.Directory, maxRate int) *fixture {
	t.Helper()
	n := &node{reply: `{"jsonrpc":"2.0","id":1,"result":{"epoch":7}}`}
	up := httptest.NewServer(n)
	t.Cleanup(up.Close)

	fwd, err := proxy.New(proxy.Config{URL: up.URL, Key: "node-key"})
	require.NoError(t, err)

	store := cache.NewMemory(100)
	t.Cleanup(func() { _ = store.Close() })

	ctrl := access.NewController(access.Policy{
		Methods: []string{"dna_epoch", "dna_identity", "bcn_syncing"},
		PrivKey: "god",
		Checked: access.CheckedPolicy{Methods: []string{"dna_getCoinbaseAddr"}, Key: "monitor"},
	}, dir)

	gw := NewGateway(GatewayDeps{
		Forwarder:   fwd,
		Controller:  ctrl,
		Limiter:     rate.NewMemoryLimiter(maxRate, time.Minute),
		RateMax:     maxRate,
		Cache:       store,
		CachePolicy: cache.NewPolicy([]cache.Rule{{Method: "dna_epoch", TTL: time.Minute}}),
		CORSOrigins: []string{"*"},
	})
	return &fixture{node: n, gateway: gw}
}

func (f *fixture) post(body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.gateway.ServeHTTP(rec, req)
	return rec
}

func TestGateway_ForwardsWithNodeKey(t *testing.T) {
	f := newFixture(t, keys.NewStatic([]string{"k1"}), 10)

	rec := f.post(`{"method":"dna_identity","key":"k1","params":["0x1"],"id":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, f.node.reply, rec.Body.String())
	require.Equal(t, "node-key", f.node.last["key"])
	require.Equal(t, "dna_identity", f.node.last["method"])
}

func TestGateway_Rejections(t *testing.T) {
	f := newFixture(t, keys.NewStatic([]string{"k1"}), 100)

	cases := []struct {
		name   string
		body   string
		status int
		text   string
	}{
		{"method not in allow-list", `{"method":"admin_stop","key":"k1"}`, http.StatusForbidden, "method not available"},
		{"unknown key", `{"method":"dna_identity","key":"nope"}`, http.StatusForbidden, "API key is invalid"},
		{"missing key", `{"method":"dna_identity"}`, http.StatusForbidden, "API key is invalid"},
		{"malformed body", `{"method":`, http.StatusForbidden, "method not available"},
		{"batch without syncing", `[{"method":"dna_identity","key":"k1"},{"method":"dna_epoch"}]`, http.StatusForbidden, "method not available"},
		{"privileged key still needs allowed method", `{"method":"admin_stop","key":"god"}`, http.StatusForbidden, "method not available"},
		{"method case variant", `{"method":"admin_secret","Method":"dna_epoch","key":"k1"}`, http.StatusForbidden, "method not available"},
		{"params case variant", `{"method":"dna_epoch","params":[1],"Params":[2],"key":"k1"}`, http.StatusForbidden, "method not available"},
		{"batch meta case variant", `[{"method":"dna_identity","key":"k1"},{"method":"bcn_syncing","Method":"admin_secret"}]`, http.StatusForbidden, "method not available"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.post(tc.body)
			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, tc.text, rec.Body.String())
		})
	}
	require.Zero(t, f.node.count(), "rejected calls must not reach the node")
}

func TestGateway_BatchWithSyncingAccepted(t *testing.T) {
	f := newFixture(t, keys.NewStatic([]string{"k1"}), 10)

	rec := f.post(`[{"method":"dna_identity","key":"k1"},{"method":"bcn_syncing","key":"k1"}]`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, f.node.count())
}

func TestGateway_NotReadyDirectory(t *testing.T) {
	f := newFixture(t, notReady{}, 10)

	rec := f.post(`{"method":"dna_identity","key":"k1"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "proxy is not started", rec.Body.String())

	// los bypass no dependen del directorio
	rec = f.post(`{"method":"dna_identity","key":"god"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.post(`{"method":"dna_getCoinbaseAddr","key":"monitor"}`)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGateway_CheckedKeyOnlyForCheckedMethods(t *testing.T) {
	f := newFixture(t, keys.NewStatic(nil), 10)

	require.Equal(t, http.StatusOK, f.post(`{"method":"dna_getCoinbaseAddr","key":"monitor"}`).Code)
	require.Equal(t, http.StatusForbidden, f.post(`{"method":"dna_identity","key":"monitor"}`).Code)
}

func TestGateway_RateLimitAndPrivilegedBypass(t *testing.T) {
	f := newFixture(t, keys.NewStatic([]string{"k1"}), 3)

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, f.post(`{"method":"dna_identity","key":"k1"}`).Code)
	}
	rec := f.post(`{"method":"dna_identity","key":"k1"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))

	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusOK, f.post(`{"method":"dna_identity","key":"god"}`).Code)
	}
}

func TestGateway_RateLimitRunsBeforeAccess(t *testing.T) {
	f := newFixture(t, keys.NewStatic(nil), 2)

	// rechazos por key inválida también consumen la ventana de "undefined"
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusForbidden, f.post(`{"method":"admin_stop"}`).Code)
	}
	require.Equal(t, http.StatusTooManyRequests, f.post(`{"method":"admin_stop"}`).Code)
}

func TestGateway_CacheServesRepeatedCalls(t *testing.T) {
	f := newFixture(t, keys.NewStatic([]string{"k1", "k2"}), 10)

	first := f.post(`{"method":"dna_epoch","key":"k1","params":[]}`)
	second := f.post(`{"method":"dna_epoch","key":"k2","params":[]}`)
	require.Equal(t, http.StatusOK, second.Code)
	require.Equal(t, first.Body.String(), second.Body.String())
	require.Equal(t, "HIT", second.Header().Get("X-Cache"))
	require.Equal(t, 1, f.node.count())

	// cache detrás del access controller: una key inválida no recibe el hit
	rec := f.post(`{"method":"dna_epoch","key":"bad","params":[]}`)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGateway_ErrorResponsesNotCached(t *testing.T) {
	f := newFixture(t, keys.NewStatic([]string{"k1"}), 10)
	f.node.reply = `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"not ready"}}`

	f.post(`{"method":"dna_epoch","key":"k1"}`)
	f.post(`{"method":"dna_epoch","key":"k1"}`)
	require.Equal(t, 2, f.node.count())
}

// =================================================================================
// ADMIN
// =================================================================================

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestAdmin_Readiness(t *testing.T) {
	h := NewAdmin(AdminDeps{Directory: notReady{}, Gatherer: prometheus.NewRegistry()})
	rec := get(h, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "unavailable", resp.Status)
	require.NotNil(t, resp.Keys)
	require.Equal(t, "connection refused", resp.Keys.LastError)

	h = NewAdmin(AdminDeps{Directory: keys.NewStatic([]string{"a"})})
	rec = get(h, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ready", resp.Status)
	require.Equal(t, 1, resp.Keys.Keys)

	require.Equal(t, http.StatusOK, get(h, "/healthz").Code)
}

func TestAdmin_RedisDownIsDegraded(t *testing.T) {
	h := NewAdmin(AdminDeps{
		Directory: keys.NewStatic(nil),
		RedisPing: func(context.Context) error { return errors.New("dial tcp: refused") },
	})
	rec := get(h, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"degraded"`)
}

func TestAdmin_MetricsAndCache(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, metrics.Register(reg))
	metrics.KeysReady.Set(1)

	store := cache.NewMemory(10)
	t.Cleanup(func() { _ = store.Close() })

	h := NewAdmin(AdminDeps{Directory: keys.NewStatic(nil), Cache: store, Gatherer: reg})

	rec := get(h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "rpcgate_keys_ready 1")

	rec = get(h, "/cachez")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"driver":"memory"`)
}
