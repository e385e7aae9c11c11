// Package proxy leases outbound proxies from the rental provider and splits
// them between the gem and item worker pools.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/pudjojotaro/prismatic-parser/internal/domain"
)

// Provider is the REST client for the proxy-rental API. Leased proxies are
// locked to this account until released, so every lease must be paired with
// a Release even on failed cycles.
type Provider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewProvider creates a rental API client.
func NewProvider(baseURL, apiKey string) *Provider {
	return &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// proxyRecord is the provider's wire shape for one proxy.
type proxyRecord struct {
	ID       int64  `json:"id"`
	Protocol string `json:"protocol"`
	IP       string `json:"ip"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// LeaseAll locks every currently available proxy and returns them. An empty
// slice with a nil error means the provider has nothing free right now;
// callers back off and retry.
func (p *Provider) LeaseAll(ctx context.Context) ([]domain.Proxy, error) {
	body, err := p.do(ctx, http.MethodGet, "/proxies/available", nil)
	if err != nil {
		return nil, fmt.Errorf("proxy: lease: %w", err)
	}

	var records []proxyRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("proxy: decode lease response: %w", err)
	}

	out := make([]domain.Proxy, 0, len(records))
	for _, r := range records {
		out = append(out, domain.Proxy{ID: r.ID, URL: formatURL(r)})
	}
	return out, nil
}

// Release unlocks the given proxy ids.
func (p *Provider) Release(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	payload, err := json.Marshal(map[string][]int64{"ids": ids})
	if err != nil {
		return fmt.Errorf("proxy: marshal release payload: %w", err)
	}
	if _, err := p.do(ctx, http.MethodPost, "/proxies/unlock", payload); err != nil {
		return fmt.Errorf("proxy: release %d proxies: %w", len(ids), err)
	}
	return nil
}

func (p *Provider) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = strings.NewReader(string(payload))
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Api-Key", p.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// formatURL renders a proxy record as a URL, embedding credentials when the
// provider supplies them.
func formatURL(r proxyRecord) string {
	if r.Username != "" && r.Password != "" {
		return fmt.Sprintf("%s://%s:%s@%s:%d", r.Protocol, r.Username, r.Password, r.IP, r.Port)
	}
	return fmt.Sprintf("%s://%s:%d", r.Protocol, r.IP, r.Port)
}

// Split divides a lease between the gem and item pools. ratio is the gem
// share; the gem count rounds up, so a single proxy goes to the gem pool.
func Split(proxies []domain.Proxy, ratio float64) (gems, items []domain.Proxy) {
	n := int(math.Ceil(float64(len(proxies)) * ratio))
	if n > len(proxies) {
		n = len(proxies)
	}
	return proxies[:n], proxies[n:]
}
