package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
)

// minCompressSize — порог, ниже которого ответ уходит без сжатия
const minCompressSize = 1400

// GzipMiddleware распаковывает сжатые тела запросов и сжимает крупные ответы.
// Воркеры шлют результаты сжатыми, чтобы экономить трафик
func GzipMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.Header.Get("Content-Encoding"), "gzip") {
			gz, err := gzip.NewReader(r.Body)
			if err != nil {
				http.Error(w, "Invalid gzip data", http.StatusBadRequest)
				return
			}
			defer gz.Close()
			r.Body = io.NopCloser(gz)
		}

		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}

		cw := &compressWriter{ResponseWriter: w}
		defer cw.close()
		next.ServeHTTP(cw, r)
	})
}

// compressWriter оборачивает http.ResponseWriter и решает при первой записи,
// стоит ли сжимать ответ
type compressWriter struct {
	http.ResponseWriter
	gz      *gzip.Writer
	skipped bool
}

// compressible сообщает, подлежит ли тип содержимого сжатию
func compressible(contentType string) bool {
	return strings.HasPrefix(contentType, "application/json") ||
		strings.HasPrefix(contentType, "text/html")
}

// Write сжимает тело, если тип и размер это оправдывают
func (w *compressWriter) Write(b []byte) (int, error) {
	if w.gz == nil {
		if w.skipped || !compressible(w.Header().Get("Content-Type")) || len(b) < minCompressSize {
			w.skipped = true
			return w.ResponseWriter.Write(b)
		}
		w.Header().Set("Content-Encoding", "gzip")
		w.gz = gzip.NewWriter(w.ResponseWriter)
	}
	return w.gz.Write(b)
}

// close завершает поток сжатия, если он был открыт
func (w *compressWriter) close() error {
	if w.gz == nil {
		return nil
	}
	return w.gz.Close()
}
