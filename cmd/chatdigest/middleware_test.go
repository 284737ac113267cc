package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/IshaanRSharma/chatdigest/api/handlers"
	"github.com/IshaanRSharma/chatdigest/config"
	"github.com/IshaanRSharma/chatdigest/internal/metrics"
	"github.com/IshaanRSharma/chatdigest/types"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
})

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) handlers.Response {
	t.Helper()
	var resp handlers.Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestSecurityHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	w := serve(SecurityHeaders()(inner), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "1; mode=block", w.Header().Get("X-XSS-Protection"))
	assert.Equal(t, "default-src 'self'", w.Header().Get("Content-Security-Policy"))
}

func TestSecurityHeaders_ChainedWithOtherMiddleware(t *testing.T) {
	handler := Chain(okHandler, SecurityHeaders(), RequestID())

	w := serve(handler, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	serve(Chain(okHandler, mark("a"), mark("b"), mark("c")), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"a", "b", "c"}, order)
}

// =============================================================================
// 🧪 RequestID / Recovery
// =============================================================================

func TestRequestID(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = types.RequestID(r.Context())
	})
	h := RequestID()(inner)

	tests := []struct {
		name     string
		header   string
		preserve bool
	}{
		{"generated when absent", "", false},
		{"client id preserved", "client-abc-123", true},
		{"control characters replaced", "bad\tid", false},
		{"oversized replaced", strings.Repeat("x", 200), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("X-Request-ID", tt.header)
			}
			w := serve(h, r)

			id := w.Header().Get("X-Request-ID")
			assert.Equal(t, id, seen)
			if tt.preserve {
				assert.Equal(t, tt.header, id)
			} else {
				assert.Len(t, id, 36, "uuid")
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	h := Chain(panicking, Recovery(zap.NewNop()), RequestID())

	w := serve(h, httptest.NewRequest(http.MethodPost, "/api/v1/compress", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeEnvelope(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, string(types.ErrInternalError), resp.Error.Code)
	assert.Equal(t, w.Header().Get("X-Request-ID"), resp.RequestID)
}

// =============================================================================
// 🧪 认证
// =============================================================================

var skipPaths = []string{"/health", "/ready"}

func TestAPIKeyAuth(t *testing.T) {
	h := APIKeyAuth([]string{"secret-1", "secret-2"}, skipPaths, zap.NewNop())(okHandler)

	tests := []struct {
		name       string
		path       string
		key        string
		wantStatus int
	}{
		{"valid key", "/api/v1/compress", "secret-2", http.StatusOK},
		{"wrong key", "/api/v1/compress", "nope", http.StatusUnauthorized},
		{"missing key", "/api/v1/compress", "", http.StatusUnauthorized},
		{"skip path", "/health", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.key != "" {
				r.Header.Set("X-API-Key", tt.key)
			}
			w := serve(h, r)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, string(types.ErrUnauthorized), decodeEnvelope(t, w).Error.Code)
			}
		})
	}
}

func signToken(t *testing.T, secret string, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestJWTAuth(t *testing.T) {
	cfg := config.AuthConfig{JWTSecret: "hs-secret", JWTIssuer: "chatdigest", JWTAudience: "api"}
	h := JWTAuth(cfg, skipPaths, zap.NewNop())(okHandler)

	valid := jwt.MapClaims{
		"sub": "user-1",
		"iss": "chatdigest",
		"aud": "api",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	expired := jwt.MapClaims{"iss": "chatdigest", "aud": "api", "exp": time.Now().Add(-time.Hour).Unix()}
	wrongIssuer := jwt.MapClaims{"iss": "other", "aud": "api", "exp": time.Now().Add(time.Hour).Unix()}

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid token", "Bearer " + signToken(t, "hs-secret", jwt.SigningMethodHS256, valid), http.StatusOK},
		{"wrong secret", "Bearer " + signToken(t, "other", jwt.SigningMethodHS256, valid), http.StatusUnauthorized},
		{"disallowed algorithm", "Bearer " + signToken(t, "hs-secret", jwt.SigningMethodHS512, valid), http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, "hs-secret", jwt.SigningMethodHS256, expired), http.StatusUnauthorized},
		{"wrong issuer", "Bearer " + signToken(t, "hs-secret", jwt.SigningMethodHS256, wrongIssuer), http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"missing", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/v1/models", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.wantStatus, serve(h, r).Code)
		})
	}

	t.Run("skip path", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/ready", nil)).Code)
	})
}

func TestAuthenticate_KeyOrToken(t *testing.T) {
	cfg := config.AuthConfig{APIKeys: []string{"k1"}, JWTSecret: "hs-secret"}
	h := Authenticate(cfg, skipPaths, zap.NewNop())(okHandler)
	token := signToken(t, "hs-secret", jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})

	byKey := httptest.NewRequest(http.MethodGet, "/api/v1/models", nil)
	byKey.Header.Set("X-API-Key", "k1")
	assert.Equal(t, http.StatusOK, serve(h, byKey).Code)

	byToken := httptest.NewRequest(http.MethodGet, "/api/v1/models", nil)
	byToken.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, serve(h, byToken).Code)

	badToken := httptest.NewRequest(http.MethodGet, "/api/v1/models", nil)
	badToken.Header.Set("Authorization", "Bearer garbage")
	badToken.Header.Set("X-API-Key", "k1")
	assert.Equal(t, http.StatusUnauthorized, serve(h, badToken).Code, "a bearer token is never downgraded to key auth")
}

func TestAuthenticate_KeysOnlyRejectsBearer(t *testing.T) {
	h := Authenticate(config.AuthConfig{APIKeys: []string{"k1"}}, skipPaths, zap.NewNop())(okHandler)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/models", nil)
	r.Header.Set("Authorization", "Bearer whatever")
	assert.Equal(t, http.StatusUnauthorized, serve(h, r).Code)
}

// =============================================================================
// 🧪 限流 / 请求体 / CORS
// =============================================================================

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := RateLimiter(ctx, 0.001, 1, zap.NewNop())(okHandler)

	first := httptest.NewRequest(http.MethodGet, "/api/v1/models", nil)
	first.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, http.StatusOK, serve(h, first).Code)

	second := httptest.NewRequest(http.MethodGet, "/api/v1/models", nil)
	second.RemoteAddr = "10.0.0.1:5678"
	w := serve(h, second)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, string(types.ErrRateLimited), decodeEnvelope(t, w).Error.Code)

	other := httptest.NewRequest(http.MethodGet, "/api/v1/models", nil)
	other.RemoteAddr = "10.0.0.2:1234"
	assert.Equal(t, http.StatusOK, serve(h, other).Code, "limits are per client IP")
}

func TestBodyLimit(t *testing.T) {
	h := BodyLimit(8)(okHandler)

	small := httptest.NewRequest(http.MethodPost, "/api/v1/parse", strings.NewReader("tiny"))
	assert.Equal(t, http.StatusOK, serve(h, small).Code)

	large := httptest.NewRequest(http.MethodPost, "/api/v1/parse", strings.NewReader("this body is too large"))
	w := serve(h, large)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, string(types.ErrPayloadTooLarge), decodeEnvelope(t, w).Error.Code)
}

func TestCORS(t *testing.T) {
	t.Run("allowed origin", func(t *testing.T) {
		h := CORS([]string{"https://app.example.com"})(okHandler)
		r := httptest.NewRequest(http.MethodGet, "/api/v1/models", nil)
		r.Header.Set("Origin", "https://app.example.com")

		w := serve(h, r)
		assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unknown origin gets no headers", func(t *testing.T) {
		h := CORS([]string{"https://app.example.com"})(okHandler)
		r := httptest.NewRequest(http.MethodGet, "/api/v1/models", nil)
		r.Header.Set("Origin", "https://evil.example.com")

		assert.Empty(t, serve(h, r).Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight rejected when unconfigured", func(t *testing.T) {
		h := CORS(nil)(okHandler)
		r := httptest.NewRequest(http.MethodOptions, "/api/v1/compress", nil)
		r.Header.Set("Origin", "https://app.example.com")

		assert.Equal(t, http.StatusForbidden, serve(h, r).Code)
	})

	t.Run("preflight allowed", func(t *testing.T) {
		h := CORS([]string{"https://app.example.com"})(okHandler)
		r := httptest.NewRequest(http.MethodOptions, "/api/v1/compress", nil)
		r.Header.Set("Origin", "https://app.example.com")

		assert.Equal(t, http.StatusNoContent, serve(h, r).Code)
	})
}

// =============================================================================
// 🧪 指标
// =============================================================================

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/api/v1/compress", normalizePath("/api/v1/compress"))
	assert.Equal(t, "/api/llm-types", normalizePath("/api/llm-types"))
	assert.Equal(t, "other", normalizePath("/wp-login.php"))
	assert.Equal(t, "other", normalizePath("/api/v1/compress/extra"))
}

func TestMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollectorWith(reg, "test", zap.NewNop())

	mux := http.NewServeMux()
	mux.Handle("POST /api/v1/compress", okHandler)
	h := MetricsMiddleware(collector)(mux)

	serve(h, httptest.NewRequest(http.MethodPost, "/api/v1/compress", strings.NewReader("{}")))
	serve(h, httptest.NewRequest(http.MethodGet, "/nope/123", nil))

	expected := `
# HELP test_http_requests_total Total number of HTTP requests
# TYPE test_http_requests_total counter
test_http_requests_total{method="GET",path="other",status="4xx"} 1
test_http_requests_total{method="POST",path="/api/v1/compress",status="2xx"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "test_http_requests_total"))
}
