// Package middleware содержит HTTP middleware трекера: определение IP воркера,
// аутентификацию операторов, логирование, сжатие и проверку доверенных подсетей.
package middleware

import (
	"net"
	"net/http"
)

// ClientIP возвращает IP-адрес воркера. За обратным прокси адрес берётся из
// заголовка X-Real-IP, иначе из адреса соединения. IP — единица учёта
// честности раздачи, поэтому определяется сервером, а не клиентом.
func ClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
