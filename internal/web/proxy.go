package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/pawpantry/pawpantry-go/internal/model"
)

const productsProxyTimeout = 10 * time.Second

// ProductsProxy forwards read-only product requests to the product API. It
// never forwards the caller's cookies or credentials.
type ProductsProxy struct {
	proxy   *httputil.ReverseProxy
	timeout time.Duration
}

// NewProductsProxy proxies to target. Mount it behind http.StripPrefix so the
// forwarded path starts at /products.
func NewProductsProxy(target string) (*ProductsProxy, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parsing product api url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("product api url %q is not absolute", target)
	}

	p := &ProductsProxy{timeout: productsProxyTimeout}
	p.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(u)
			pr.Out.Header.Del("Cookie")
			pr.Out.Header.Del("Authorization")
			if pr.In.Header.Get("Accept") == "" {
				pr.Out.Header.Set("Accept", "application/json")
			}
		},
		ModifyResponse: func(resp *http.Response) error {
			resp.Header.Del("Set-Cookie")
			setCORSHeaders(resp.Header)
			if resp.StatusCode < http.StatusMultipleChoices {
				resp.Header.Set("Cache-Control", "public, max-age=60")
			}
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			status := http.StatusBadGateway
			if errors.Is(err, context.DeadlineExceeded) {
				status = http.StatusGatewayTimeout
			}
			slog.ErrorContext(r.Context(), "product api request failed", "path", r.URL.Path, "error", err)
			setCORSHeaders(w.Header())
			writeJSON(w, status, model.ErrorResponse{Error: "product service unavailable", Code: "UPSTREAM_ERROR"})
		},
	}
	return p, nil
}

func (p *ProductsProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodOptions:
		setCORSHeaders(w.Header())
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.WriteHeader(http.StatusNoContent)
		return
	default:
		w.Header().Set("Allow", "GET, OPTIONS")
		writeJSON(w, http.StatusMethodNotAllowed, model.ErrorResponse{Error: "Method not allowed", Code: "METHOD_NOT_ALLOWED"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), p.timeout)
	defer cancel()
	p.proxy.ServeHTTP(w, r.WithContext(ctx))
}

func setCORSHeaders(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
