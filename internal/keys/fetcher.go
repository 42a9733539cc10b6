package keys

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Fetcher obtiene la lista de keys desde una fuente remota.
type Fetcher interface {
	Fetch(ctx context.Context) ([]string, error)
}

// maxKeysBody limita la respuesta de la fuente remota.
const maxKeysBody = 16 << 20

// HTTPFetcher hace GET a URL con el header Authorization y espera un array JSON de strings.
type HTTPFetcher struct {
	URL           string
	Authorization string
	Client        *http.Client
}

// NewHTTPFetcher crea un fetcher con un cliente HTTP propio.
func NewHTTPFetcher(url, authorization string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPFetcher{
		URL:           url,
		Authorization: authorization,
		Client:        &http.Client{Timeout: timeout},
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("keys: build request: %w", err)
	}
	if f.Authorization != "" {
		req.Header.Set("Authorization", f.Authorization)
	}
	req.Header.Set("Accept", "application/json")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("keys: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("keys: fetch: unexpected status %d", resp.StatusCode)
	}

	var list []string
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxKeysBody)).Decode(&list); err != nil {
		return nil, fmt.Errorf("keys: decode: %w", err)
	}
	if list == nil {
		return nil, fmt.Errorf("keys: decode: expected a JSON array")
	}
	return list, nil
}
