package proxy

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/rpcgate/internal/rpc"
)

type seen struct {
	path string
	host string
	body []byte
}

func upstream(t *testing.T, reply string) (*httptest.Server, *seen) {
	t.Helper()
	s := &seen{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.path = r.URL.Path
		s.host = r.Host
		s.body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, s
}

func send(t *testing.T, f *Forwarder, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req = req.WithContext(rpc.WithPayload(req.Context(), rpc.Parse([]byte(body))))
	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, req)
	return rec
}

func TestForwarder_ReplacesKey(t *testing.T) {
	srv, got := upstream(t, `{"result":42}`)
	f, err := New(Config{URL: srv.URL, Key: "node-secret"})
	require.NoError(t, err)

	rec := send(t, f, "/", `{"method":"dna_epoch","key":"caller","params":[],"id":7}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"result":42}`, rec.Body.String())

	var fwd map[string]any
	require.NoError(t, json.Unmarshal(got.body, &fwd))
	require.Equal(t, "node-secret", fwd["key"])
	require.Equal(t, "dna_epoch", fwd["method"])
	require.EqualValues(t, 7, fwd["id"])
	require.Equal(t, srv.Listener.Addr().String(), got.host)
}

func TestForwarder_ReplacesKeyInBatch(t *testing.T) {
	srv, got := upstream(t, `[]`)
	f, err := New(Config{URL: srv.URL, Key: "node-secret"})
	require.NoError(t, err)

	send(t, f, "/", `[{"method":"dna_epoch","key":"a"},{"method":"bcn_syncing"}]`)

	var fwd []map[string]any
	require.NoError(t, json.Unmarshal(got.body, &fwd))
	require.Len(t, fwd, 2)
	for _, item := range fwd {
		require.Equal(t, "node-secret", item["key"])
	}
}

func TestForwarder_JoinsPath(t *testing.T) {
	srv, got := upstream(t, `{}`)
	f, err := New(Config{URL: srv.URL + "/rpc", Key: "k"})
	require.NoError(t, err)

	send(t, f, "/v1/call", `{"method":"dna_epoch"}`)
	require.Equal(t, "/rpc/v1/call", got.path)
}

func TestForwarder_UpstreamDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	f, err := New(Config{URL: url, Key: "k"})
	require.NoError(t, err)

	rec := send(t, f, "/", `{"method":"dna_epoch"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, "proxy error", rec.Body.String())
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := New(Config{URL: "not a url"})
	require.Error(t, err)
	_, err = New(Config{URL: "/relative"})
	require.Error(t, err)
}

func TestForwarder_FlushesEachChunk(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Length", "12")
		_, _ = io.WriteString(w, `{"result":`)
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-time.After(3 * time.Second):
		}
		_, _ = io.WriteString(w, `1}`)
	}))
	t.Cleanup(srv.Close)

	f, err := New(Config{URL: srv.URL, Key: "node-secret"})
	require.NoError(t, err)
	gw := httptest.NewServer(f)
	t.Cleanup(gw.Close)

	resp, err := http.Post(gw.URL, "application/json", bytes.NewBufferString(`{"method":"dna_epoch"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	first := make(chan string, 1)
	go func() {
		buf := make([]byte, 10)
		n, _ := io.ReadFull(resp.Body, buf)
		first <- string(buf[:n])
	}()
	select {
	case got := <-first:
		require.Equal(t, `{"result":`, got)
	case <-time.After(time.Second):
		close(release)
		t.Fatal("first chunk was not flushed to the client")
	}
	close(release)

	rest, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, `1}`, string(rest))
}
