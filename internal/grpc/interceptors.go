// Package grpc содержит интерцепторы для gRPC сервера
package grpc

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// contextKey определяет тип для ключей контекста
type contextKey string

const clientIPKey contextKey = "clientIP"

// ClientIPInterceptor создаёт интерцептор, кладущий IP воркера в контекст.
// IP — единица учёта честности раздачи, поэтому берётся из соединения
func ClientIPInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		p, ok := peer.FromContext(ctx)
		if !ok {
			return nil, status.Error(codes.Internal, "failed to get peer info")
		}

		clientIP := p.Addr.String()
		if tcpAddr, ok := p.Addr.(*net.TCPAddr); ok {
			clientIP = tcpAddr.IP.String()
		}

		ctx = context.WithValue(ctx, clientIPKey, clientIP)
		return handler(ctx, req)
	}
}

// TrustedSubnetInterceptor создаёт интерцептор для проверки доверенной подсети
func TrustedSubnetInterceptor(trustedSubnet string, logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if info.FullMethod != "/tracker.v1.TrackerService/GetStats" {
			return handler(ctx, req)
		}

		if trustedSubnet == "" {
			return nil, status.Error(codes.PermissionDenied, "trusted subnet not configured")
		}

		p, ok := peer.FromContext(ctx)
		if !ok {
			return nil, status.Error(codes.PermissionDenied, "failed to get peer info")
		}

		clientIP := p.Addr.String()
		if tcpAddr, ok := p.Addr.(*net.TCPAddr); ok {
			clientIP = tcpAddr.IP.String()
		}

		_, subnet, err := net.ParseCIDR(trustedSubnet)
		if err != nil {
			logger.Error("Invalid trusted subnet", zap.String("subnet", trustedSubnet), zap.Error(err))
			return nil, status.Error(codes.Internal, "invalid trusted subnet configuration")
		}

		clientIPParsed := net.ParseIP(clientIP)
		if clientIPParsed == nil || !subnet.Contains(clientIPParsed) {
			logger.Warn("Access denied from untrusted IP", zap.String("ip", clientIP))
			return nil, status.Error(codes.PermissionDenied, "access denied")
		}

		return handler(ctx, req)
	}
}

// LoggingInterceptor создаёт интерцептор для логирования gRPC запросов
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		var clientIP string
		if p, ok := peer.FromContext(ctx); ok {
			clientIP = p.Addr.String()
		}

		code := codes.OK
		if err != nil {
			if st, ok := status.FromError(err); ok {
				code = st.Code()
			}
		}

		logger.Info("gRPC request",
			zap.String("method", info.FullMethod),
			zap.String("client_ip", clientIP),
			zap.String("status_code", code.String()),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)

		return resp, err
	}
}
