package middleware

import (
	"net/http"
	"strconv"

	"github.com/pleader-ai/pleader-backend/utils"
	"go.uber.org/zap"
)

// multipartOverhead is allowed on top of the file limit for form boundaries
// and part headers.
const multipartOverhead = 1 << 20

// BodyLimitMiddleware caps request bodies before handlers read them.
type BodyLimitMiddleware struct {
	maxBytes int64
	logger   *zap.Logger
}

// NewBodyLimitMiddleware creates a middleware that admits bodies up to
// maxBytes plus multipart framing
func NewBodyLimitMiddleware(maxBytes int64, logger *zap.Logger) *BodyLimitMiddleware {
	return &BodyLimitMiddleware{
		maxBytes: maxBytes + multipartOverhead,
		logger:   logger,
	}
}

// Limit rejects requests whose declared length is over the cap with 413 and
// wraps the body so an undeclared oversize body fails on read.
func (m *BodyLimitMiddleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > m.maxBytes {
			m.logger.Warn("request body too large",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.Int64("content_length", r.ContentLength),
				zap.Int64("max_bytes", m.maxBytes))
			_ = utils.WriteError(w, http.StatusRequestEntityTooLarge, "File too large", map[string]interface{}{
				"max_bytes": strconv.FormatInt(m.maxBytes-multipartOverhead, 10),
			})
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, m.maxBytes)
		next.ServeHTTP(w, r)
	})
}
