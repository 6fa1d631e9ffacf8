package middleware

import (
	"compress/gzip"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testLogger *zap.Logger

func init() {
	testLogger, _ = zap.NewDevelopment()
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		realIP     string
		remoteAddr string
		expected   string
	}{
		{
			name:       "X-Real-IP header takes precedence",
			realIP:     "203.0.113.7",
			remoteAddr: "10.0.0.1:4321",
			expected:   "203.0.113.7",
		},
		{
			name:       "Fallback to remote address",
			remoteAddr: "10.0.0.1:4321",
			expected:   "10.0.0.1",
		},
		{
			name:       "Invalid X-Real-IP is ignored",
			realIP:     "not-an-ip",
			remoteAddr: "10.0.0.1:4321",
			expected:   "10.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/checkout", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			assert.Equal(t, tt.expected, ClientIP(req))
		})
	}
}

type stubParser struct {
	operator string
	err      error
}

func (p *stubParser) ParseToken(token string) (string, error) {
	return p.operator, p.err
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		header         string
		parser         *stubParser
		expectedStatus int
	}{
		{
			name:           "Missing Authorization header",
			parser:         &stubParser{operator: "admin"},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Not a bearer token",
			header:         "Basic YWRtaW46cGFzcw==",
			parser:         &stubParser{operator: "admin"},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Invalid token",
			header:         "Bearer bad-token",
			parser:         &stubParser{err: errors.New("invalid credentials")},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Valid token",
			header:         "Bearer good-token",
			parser:         &stubParser{operator: "admin"},
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var operator string
			handler := AuthMiddleware(tt.parser, testLogger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				operator, _ = GetOperator(r)
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/admin/projects", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedStatus == http.StatusOK {
				assert.Equal(t, "admin", operator)
			}
		})
	}
}

func TestTrustedSubnetMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		trustedSubnet  string
		clientIP       string
		expectedStatus int
	}{
		{
			name:           "Empty trusted subnet - deny",
			trustedSubnet:  "",
			clientIP:       "192.168.1.100",
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "Missing X-Real-IP header - deny",
			trustedSubnet:  "192.168.1.0/24",
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "Invalid IP - deny",
			trustedSubnet:  "192.168.1.0/24",
			clientIP:       "invalid-ip",
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "IP outside subnet - deny",
			trustedSubnet:  "192.168.1.0/24",
			clientIP:       "10.0.0.1",
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "Invalid CIDR - internal error",
			trustedSubnet:  "not-a-cidr",
			clientIP:       "192.168.1.100",
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name:           "IP inside subnet - allow",
			trustedSubnet:  "192.168.1.0/24",
			clientIP:       "192.168.1.100",
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := TrustedSubnetMiddleware(tt.trustedSubnet, testLogger)(okHandler())

			req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
			if tt.clientIP != "" {
				req.Header.Set("X-Real-IP", tt.clientIP)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
		})
	}
}

func TestGzipMiddlewareDecompressesRequest(t *testing.T) {
	var body []byte
	handler := GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))

	var buf strings.Builder
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(`{"username":"worker"}`))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/checkout", strings.NewReader(buf.String()))
	req.Header.Set("Content-Encoding", "gzip")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"username":"worker"}`, string(body))
}

func TestGzipMiddlewareCompressesLargeJSON(t *testing.T) {
	payload := strings.Repeat(`{"shortcode":"abc"}`, 200)
	handler := GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(payload))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/projects", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))

	gz, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	decoded, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, payload, string(decoded))
}

func TestGzipMiddlewareSkipsSmallResponses(t *testing.T) {
	handler := GzipMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Content-Encoding"))
	assert.Equal(t, `{"status":"ok"}`, rec.Body.String())
}

func TestLoggingMiddleware(t *testing.T) {
	handler := LoggingMiddleware(testLogger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short and stout", rec.Body.String())
}
