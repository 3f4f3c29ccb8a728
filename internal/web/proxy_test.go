package web

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductsProxy_ForwardsGet(t *testing.T) {
	var got *http.Request
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(r.Context())
		http.SetCookie(w, &http.Cookie{Name: "upstream", Value: "x"})
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"1","name":"Kibble"}]`))
	}))
	defer upstream.Close()

	proxy, err := NewProductsProxy(upstream.URL + "/api/v1")
	require.NoError(t, err)
	handler := http.StripPrefix("/api/v1", proxy)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products?category=DOG", nil)
	req.Header.Set("Cookie", SessionCookieName+"=secret")
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":"1","name":"Kibble"}]`, rec.Body.String())
	assert.Equal(t, "public, max-age=60", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Set-Cookie"))

	require.NotNil(t, got)
	assert.Equal(t, "/api/v1/products", got.URL.Path)
	assert.Equal(t, "DOG", got.URL.Query().Get("category"))
	assert.Empty(t, got.Header.Get("Cookie"))
	assert.Empty(t, got.Header.Get("Authorization"))
	assert.Equal(t, "application/json", got.Header.Get("Accept"))
}

func TestProductsProxy_UpstreamErrorIsNotCached(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	}))
	defer upstream.Close()

	proxy, err := NewProductsProxy(upstream.URL)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/999", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Header().Get("Cache-Control"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestProductsProxy_Methods(t *testing.T) {
	proxy, err := NewProductsProxy("http://127.0.0.1:1")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/products", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "GET, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))

	for _, m := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		rec := httptest.NewRecorder()
		proxy.ServeHTTP(rec, httptest.NewRequest(m, "/products", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, m)
		assert.Contains(t, rec.Body.String(), "METHOD_NOT_ALLOWED")
	}
}

func TestProductsProxy_Timeout(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer upstream.Close()

	proxy, err := NewProductsProxy(upstream.URL)
	require.NoError(t, err)
	proxy.timeout = 50 * time.Millisecond

	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products", nil))

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Contains(t, rec.Body.String(), "UPSTREAM_ERROR")
}

func TestNewProductsProxy_RelativeURL(t *testing.T) {
	_, err := NewProductsProxy("/api/v1")
	assert.Error(t, err)
}
