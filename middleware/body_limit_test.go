package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestBodyLimit(t *testing.T) {
	logger := zap.NewNop()

	t.Run("declared oversize body is rejected", func(t *testing.T) {
		m := NewBodyLimitMiddleware(10, logger)
		handler := m.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(""))
		req.ContentLength = 10 + multipartOverhead + 1
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Contains(t, w.Body.String(), "payload_too_large")
	})

	t.Run("body within limit passes through", func(t *testing.T) {
		m := NewBodyLimitMiddleware(10, logger)
		handler := m.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			assert.NoError(t, err)
			assert.Equal(t, "hello", string(body))
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("hello"))
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("undeclared oversize body fails on read", func(t *testing.T) {
		m := NewBodyLimitMiddleware(0, logger)
		handler := m.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, err := io.ReadAll(r.Body)
			assert.Error(t, err)
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(strings.Repeat("x", multipartOverhead+1)))
		req.ContentLength = -1
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)
	})
}
