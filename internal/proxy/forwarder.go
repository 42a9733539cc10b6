// Package proxy reenvía las llamadas aceptadas al nodo upstream.
package proxy

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	httperrors "github.com/dropDatabas3/rpcgate/internal/http/errors"
	"github.com/dropDatabas3/rpcgate/internal/metrics"
	"github.com/dropDatabas3/rpcgate/internal/observability/logger"
	"github.com/dropDatabas3/rpcgate/internal/rpc"
)

// Config del forwarder.
type Config struct {
	// URL base del nodo. El path del request entrante se agrega a la base.
	URL string
	// Key del nodo; reemplaza la key del caller en el body reenviado.
	Key string
	// InsecureSkipVerify desactiva la verificación TLS del nodo.
	InsecureSkipVerify bool
	// Timeout total del round trip. 0 = sin límite (lo acota el contexto).
	Timeout time.Duration
}

// Forwarder es el handler terminal del pipeline.
type Forwarder struct {
	target *url.URL
	key    string
	rp     *httputil.ReverseProxy
}

// New construye el forwarder. Falla si la URL del nodo no es válida.
func New(cfg Config) (*Forwarder, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("proxy: parse node url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("proxy: node url %q must be absolute", cfg.URL)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	if cfg.Timeout > 0 {
		transport.ResponseHeaderTimeout = cfg.Timeout
	}

	f := &Forwarder{target: u, key: cfg.Key}
	f.rp = &httputil.ReverseProxy{
		Rewrite:   f.rewrite,
		Transport: transport,
		// cada chunk del nodo llega al cliente sin esperar al buffer
		FlushInterval: -1,
		ErrorHandler:  f.errorHandler,
	}
	return f, nil
}

// Target retorna la URL base del nodo.
func (f *Forwarder) Target() *url.URL { return f.target }

func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.rp.ServeHTTP(w, r)
}

func (f *Forwarder) rewrite(pr *httputil.ProxyRequest) {
	// SetURL también pisa Host con el del nodo
	pr.SetURL(f.target)

	body := f.body(pr.In)
	pr.Out.Body = io.NopCloser(bytes.NewReader(body))
	pr.Out.ContentLength = int64(len(body))
	pr.Out.Header.Set("Content-Length", strconv.Itoa(len(body)))
	pr.Out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
}

// body arma el body que ve el nodo: el original con la key del caller
// reemplazada por la del nodo. Si el body no tiene una forma reescribible
// (p.ej. un request sin llamada), se reenvía tal cual.
func (f *Forwarder) body(in *http.Request) []byte {
	p := rpc.PayloadFrom(in.Context())
	if p == nil {
		return nil
	}
	out, err := rpc.RewriteKey(p.Body, f.key)
	if err != nil {
		logger.From(in.Context()).Debug("forwarding body unchanged", logger.Err(err))
		return p.Body
	}
	return out
}

func (f *Forwarder) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	metrics.UpstreamErrors.Inc()
	log := logger.From(r.Context())
	if r.Context().Err() != nil {
		// el cliente se fue; no hay a quién responder
		log.Debug("client gone before upstream replied", logger.Err(err))
	} else {
		log.Warn("upstream request failed",
			logger.Upstream(f.target.Redacted()),
			zap.Error(err),
		)
	}
	httperrors.WriteError(w, httperrors.ErrBadGateway.WithCause(err))
}
