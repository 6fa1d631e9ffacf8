package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// responseData накапливает статус и размер ответа по ходу обработки
type responseData struct {
	status int
	size   int
}

// loggingResponseWriter оборачивает http.ResponseWriter для сбора responseData
type loggingResponseWriter struct {
	http.ResponseWriter
	data *responseData
}

// WriteHeader запоминает код статуса
func (w *loggingResponseWriter) WriteHeader(statusCode int) {
	w.data.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Write учитывает размер тела ответа
func (w *loggingResponseWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.data.size += n
	return n, err
}

// LoggingMiddleware создаёт middleware, пишущее в лог строку на каждый запрос.
// IP попадает в лог тем же способом, каким его видит протокол выдачи
func LoggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			data := &responseData{status: http.StatusOK}

			next.ServeHTTP(&loggingResponseWriter{ResponseWriter: w, data: data}, r)

			logger.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("uri", r.RequestURI),
				zap.String("ip", ClientIP(r)),
				zap.Int("status", data.status),
				zap.Int("size", data.size),
				zap.Duration("duration_ms", time.Since(start)/time.Millisecond),
			)
		})
	}
}
