package middleware

import (
	"net"
	"net/http"

	"go.uber.org/zap"
)

// TrustedSubnetMiddleware создаёт middleware, пропускающее только запросы
// из доверенной подсети оператора. IP берётся из заголовка X-Real-IP:
// служебные маршруты всегда стоят за обратным прокси.
// Пустая подсеть закрывает маршрут целиком
func TrustedSubnetMiddleware(trustedSubnet string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if trustedSubnet == "" {
				denyAccess(w, r, logger, "trusted_subnet is empty")
				return
			}

			header := r.Header.Get("X-Real-IP")
			if header == "" {
				denyAccess(w, r, logger, "X-Real-IP header is missing")
				return
			}

			ip := net.ParseIP(header)
			if ip == nil {
				denyAccess(w, r, logger, "invalid IP in X-Real-IP header")
				return
			}

			_, network, err := net.ParseCIDR(trustedSubnet)
			if err != nil {
				logger.Error("Invalid trusted_subnet CIDR",
					zap.String("trusted_subnet", trustedSubnet), zap.Error(err))
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			if !network.Contains(ip) {
				denyAccess(w, r, logger, "IP not in trusted subnet")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// denyAccess логирует причину отказа и отвечает 403
func denyAccess(w http.ResponseWriter, r *http.Request, logger *zap.Logger, reason string) {
	logger.Warn("Access denied: "+reason,
		zap.String("method", r.Method),
		zap.String("uri", r.RequestURI),
		zap.String("x_real_ip", r.Header.Get("X-Real-IP")),
		zap.String("remote_addr", r.RemoteAddr))
	http.Error(w, "Access denied", http.StatusForbidden)
}
