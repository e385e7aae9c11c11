package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pudjojotaro/prismatic-parser/internal/domain"
)

func TestLeaseAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/proxies/available", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		w.Write([]byte(`[
			{"id": 7, "protocol": "http", "ip": "10.0.0.7", "port": 8080, "username": "u", "password": "p"},
			{"id": 9, "protocol": "socks5", "ip": "10.0.0.9", "port": 1080}
		]`))
	}))
	defer srv.Close()

	p := NewProvider(srv.URL, "secret")
	proxies, err := p.LeaseAll(context.Background())
	require.NoError(t, err)
	require.Len(t, proxies, 2)
	assert.Equal(t, domain.Proxy{ID: 7, URL: "http://u:p@10.0.0.7:8080"}, proxies[0])
	assert.Equal(t, domain.Proxy{ID: 9, URL: "socks5://10.0.0.9:1080"}, proxies[1])
}

func TestLeaseAllEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	proxies, err := NewProvider(srv.URL, "k").LeaseAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, proxies)
}

func TestRelease(t *testing.T) {
	var got map[string][]int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/proxies/unlock", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewProvider(srv.URL, "k")
	require.NoError(t, p.Release(context.Background(), []int64{7, 9}))
	assert.Equal(t, []int64{7, 9}, got["ids"])

	// Releasing nothing never hits the API.
	require.NoError(t, p.Release(context.Background(), nil))
}

func TestReleaseServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unlock failed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewProvider(srv.URL, "k").Release(context.Background(), []int64{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 500")
}

func TestSplit(t *testing.T) {
	mk := func(n int) []domain.Proxy {
		out := make([]domain.Proxy, n)
		for i := range out {
			out[i] = domain.Proxy{ID: int64(i + 1)}
		}
		return out
	}

	gems, items := Split(mk(5), 0.5)
	assert.Len(t, gems, 3, "gem share rounds up")
	assert.Len(t, items, 2)

	gems, items = Split(mk(1), 0.5)
	assert.Len(t, gems, 1, "a lone proxy goes to the gem pool")
	assert.Empty(t, items)

	gems, items = Split(nil, 0.5)
	assert.Empty(t, gems)
	assert.Empty(t, items)

	gems, items = Split(mk(4), 0)
	assert.Empty(t, gems)
	assert.Len(t, items, 4)
}
