package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// TokenParser проверяет операторский токен и возвращает имя оператора
type TokenParser interface {
	ParseToken(token string) (string, error)
}

// OperatorKey для хранения имени оператора в контексте
type OperatorKey struct{}

// AuthMiddleware проверяет Bearer-токен оператора на административных маршрутах
func AuthMiddleware(parser TokenParser, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			operator, err := parser.ParseToken(token)
			if err != nil {
				logger.Warn("Invalid operator token",
					zap.String("uri", r.RequestURI),
					zap.String("ip", ClientIP(r)),
					zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), OperatorKey{}, operator)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetOperator извлекает имя оператора из контекста
func GetOperator(r *http.Request) (string, bool) {
	operator, ok := r.Context().Value(OperatorKey{}).(string)
	return operator, ok
}
