// Package grpc содержит реализацию gRPC сервера трекера
package grpc

import (
	"context"
	"errors"

	"github.com/tempizhere/gotracker/internal/grpc/proto"
	"github.com/tempizhere/gotracker/internal/models"
	"github.com/tempizhere/gotracker/internal/repository"
	"github.com/tempizhere/gotracker/internal/service"
	"github.com/tempizhere/gotracker/internal/wire"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Server реализует gRPC сервер трекера
type Server struct {
	proto.UnimplementedTrackerServiceServer
	svc    *service.Service
	db     repository.Database
	logger *zap.Logger
}

// NewServer создаёт новый gRPC сервер
func NewServer(svc *service.Service, db repository.Database, logger *zap.Logger) *Server {
	return &Server{
		svc:    svc,
		db:     db,
		logger: logger,
	}
}

// Checkout обрабатывает выдачу элемента воркеру
func (s *Server) Checkout(ctx context.Context, req *proto.CheckoutRequest) (*proto.CheckoutResponse, error) {
	if req.Username == "" {
		return nil, status.Error(codes.InvalidArgument, "username is required")
	}

	ip, err := clientIPFromContext(ctx)
	if err != nil {
		return nil, err
	}

	claim, err := s.svc.Checkout(req.Username, ip, int(req.Version), int(req.ClientVersion))
	if err != nil {
		return nil, s.mapError(err)
	}

	return &proto.CheckoutResponse{
		ClaimID:          claim.ID,
		Project:          toProtoSettings(claim.Project),
		LowerSequenceNum: claim.LowerSequenceNum,
		UpperSequenceNum: claim.UpperSequenceNum,
		TamperKey:        claim.TamperKey,
	}, nil
}

// Checkin обрабатывает сдачу результатов по заявке
func (s *Server) Checkin(ctx context.Context, req *proto.CheckinRequest) (*proto.CheckinResponse, error) {
	encoded := make(map[string]models.ResultPayload, len(req.Results))
	for _, entry := range req.Results {
		encoded[entry.Shortcode] = models.ResultPayload{URL: entry.URL, Encoding: entry.Encoding}
	}
	results, err := wire.DecodeResults(encoded)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid result encoding")
	}

	stat, err := s.svc.Checkin(req.ClaimID, req.TamperKey, results)
	if err != nil {
		return nil, s.mapError(err)
	}

	return &proto.CheckinResponse{
		Project:  stat.Project,
		Username: stat.Username,
		Scanned:  stat.Scanned,
		Found:    stat.Found,
	}, nil
}

// ReportError обрабатывает диагностическое сообщение воркера
func (s *Server) ReportError(ctx context.Context, req *proto.ReportErrorRequest) (*proto.ReportErrorResponse, error) {
	if err := s.svc.ReportError(req.ClaimID, req.TamperKey, req.Message); err != nil {
		return nil, s.mapError(err)
	}
	return &proto.ReportErrorResponse{}, nil
}

// GetProjectSettings возвращает конфигурацию сканирования проекта
func (s *Server) GetProjectSettings(ctx context.Context, req *proto.GetProjectSettingsRequest) (*proto.GetProjectSettingsResponse, error) {
	if req.Name == "" {
		return nil, status.Error(codes.InvalidArgument, "project name is required")
	}

	settings, err := s.svc.ProjectSettings(req.Name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, status.Error(codes.NotFound, "project not found")
		}
		return nil, s.mapError(err)
	}

	return &proto.GetProjectSettingsResponse{Settings: toProtoSettings(settings)}, nil
}

// Ping проверяет состояние сервиса
func (s *Server) Ping(ctx context.Context, req *proto.PingRequest) (*proto.PingResponse, error) {
	if s.db == nil {
		return &proto.PingResponse{DatabaseAvailable: false}, nil
	}

	err := s.db.Ping()
	return &proto.PingResponse{
		DatabaseAvailable: err == nil,
	}, nil
}

// GetStats возвращает счётчики статистики трекера
func (s *Server) GetStats(ctx context.Context, req *proto.GetStatsRequest) (*proto.GetStatsResponse, error) {
	bus := s.svc.Stats()
	global := bus.Global()

	byProject := bus.ByProject()
	projects := make([]*proto.ProjectStats, 0, len(byProject))
	for name, totals := range byProject {
		projects = append(projects, &proto.ProjectStats{
			Project: name,
			Found:   totals.Found,
			Scanned: totals.Scanned,
		})
	}

	return &proto.GetStatsResponse{
		FoundCount:   global.Found,
		ScannedCount: global.Scanned,
		Projects:     projects,
	}, nil
}

// toProtoSettings переводит конфигурацию проекта в транспортный тип
func toProtoSettings(s models.ProjectSettings) *proto.ProjectSettings {
	return &proto.ProjectSettings{
		Name:             s.Name,
		MinVersion:       int32(s.MinVersion),
		MinClientVersion: int32(s.MinClientVersion),
		Alphabet:         s.Alphabet,
		URLTemplate:      s.URLTemplate,
		RequestDelay:     s.RequestDelay,
		RedirectCodes:    toInt32(s.RedirectCodes),
		NoRedirectCodes:  toInt32(s.NoRedirectCodes),
		UnavailableCodes: toInt32(s.UnavailableCodes),
		BannedCodes:      toInt32(s.BannedCodes),
		BodyRegex:        s.BodyRegex,
		Method:           s.Method,
	}
}

// toInt32 переводит список кодов статуса в транспортный тип
func toInt32(codes []int) []int32 {
	out := make([]int32, len(codes))
	for i, c := range codes {
		out[i] = int32(c)
	}
	return out
}

// clientIPFromContext извлекает IP воркера из контекста
func clientIPFromContext(ctx context.Context) (string, error) {
	if ip, ok := ctx.Value(clientIPKey).(string); ok && ip != "" {
		return ip, nil
	}
	return "", status.Error(codes.Internal, "client address unavailable")
}

// mapError преобразует ошибки протокола выдачи в gRPC статусы
func (s *Server) mapError(err error) error {
	if err == nil {
		return nil
	}

	var updateErr *service.UpdateClientError
	switch {
	case errors.Is(err, service.ErrUserIsBanned):
		return status.Error(codes.PermissionDenied, "banned")
	case errors.Is(err, service.ErrNoItemAvailable):
		return status.Error(codes.NotFound, "no items available")
	case errors.Is(err, service.ErrFullClaim):
		return status.Error(codes.ResourceExhausted, "maximum number of claims held")
	case errors.As(err, &updateErr):
		return status.Error(codes.FailedPrecondition, updateErr.Error())
	case errors.Is(err, service.ErrInvalidClaim):
		return status.Error(codes.Aborted, "invalid claim")
	case errors.Is(err, service.ErrNoResourcesAvailable):
		return status.Error(codes.Unavailable, "maintenance in progress")
	default:
		s.logger.Error("Unexpected error", zap.Error(err))
		return status.Error(codes.Internal, "internal server error")
	}
}
