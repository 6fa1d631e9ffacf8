// Package proto содержит интерфейс gRPC сервиса трекера
package proto

import (
	"context"

	"google.golang.org/grpc"
)

// TrackerServiceServer представляет интерфейс gRPC сервиса
type TrackerServiceServer interface {
	Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error)
	Checkin(ctx context.Context, req *CheckinRequest) (*CheckinResponse, error)
	ReportError(ctx context.Context, req *ReportErrorRequest) (*ReportErrorResponse, error)
	GetProjectSettings(ctx context.Context, req *GetProjectSettingsRequest) (*GetProjectSettingsResponse, error)
	Ping(ctx context.Context, req *PingRequest) (*PingResponse, error)
	GetStats(ctx context.Context, req *GetStatsRequest) (*GetStatsResponse, error)
}

// UnimplementedTrackerServiceServer предоставляет базовую реализацию интерфейса
type UnimplementedTrackerServiceServer struct{}

// Checkout предоставляет базовую реализацию выдачи элемента
func (UnimplementedTrackerServiceServer) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	return nil, nil
}

// Checkin предоставляет базовую реализацию сдачи результатов
func (UnimplementedTrackerServiceServer) Checkin(ctx context.Context, req *CheckinRequest) (*CheckinResponse, error) {
	return nil, nil
}

// ReportError предоставляет базовую реализацию приёма отчёта об ошибке
func (UnimplementedTrackerServiceServer) ReportError(ctx context.Context, req *ReportErrorRequest) (*ReportErrorResponse, error) {
	return nil, nil
}

// GetProjectSettings предоставляет базовую реализацию выдачи конфигурации проекта
func (UnimplementedTrackerServiceServer) GetProjectSettings(ctx context.Context, req *GetProjectSettingsRequest) (*GetProjectSettingsResponse, error) {
	return nil, nil
}

// Ping предоставляет базовую реализацию проверки состояния сервиса
func (UnimplementedTrackerServiceServer) Ping(ctx context.Context, req *PingRequest) (*PingResponse, error) {
	return nil, nil
}

// GetStats предоставляет базовую реализацию получения статистики
func (UnimplementedTrackerServiceServer) GetStats(ctx context.Context, req *GetStatsRequest) (*GetStatsResponse, error) {
	return nil, nil
}

// RegisterTrackerServiceServer регистрирует реализацию сервиса в gRPC сервере
func RegisterTrackerServiceServer(s *grpc.Server, srv TrackerServiceServer) {
	// В реальном проекте это было бы автоматически сгенерировано protoc
	// Здесь заглушка для демонстрации
}
