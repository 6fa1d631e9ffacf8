package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tempizhere/gotracker/internal/app"
	"github.com/tempizhere/gotracker/internal/budget"
	"github.com/tempizhere/gotracker/internal/config"
	grpcserver "github.com/tempizhere/gotracker/internal/grpc"
	"github.com/tempizhere/gotracker/internal/grpc/proto"
	"github.com/tempizhere/gotracker/internal/log"
	"github.com/tempizhere/gotracker/internal/repository"
	"github.com/tempizhere/gotracker/internal/service"
	"github.com/tempizhere/gotracker/internal/stats"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func main() {
	logger := log.NewLogger()
	defer logger.Sync()

	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Без DSN трекер работает на памяти: удобно для локальной разработки
	var repo repository.Repository
	db, err := app.NewDB(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if db != nil {
		defer db.Close()
		repo, err = repository.NewPostgresRepository(db, logger)
		if err != nil {
			logger.Fatal("Failed to create repository", zap.Error(err))
		}
		logger.Info("Using PostgreSQL storage")
	} else {
		repo = repository.NewMemoryRepository()
		logger.Warn("DATABASE_DSN is empty, using in-memory storage")
	}

	b := budget.New()
	bus := stats.NewBus(logger)
	svc := service.NewService(repo, b, bus, cfg.JWTSecret, cfg.MinVersion, cfg.MinClientVersion, logger)

	if err := svc.RebuildBudget(); err != nil {
		logger.Fatal("Failed to build initial budget", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := service.NewSweeper(svc, cfg.SweepInterval, cfg.ErrorReportAutoDelete, logger)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	appInstance := app.NewApp(svc, db, logger)
	router := appInstance.Router(cfg.TrustedSubnet)

	if cfg.GRPCAddr != "" {
		grpcSrv := grpc.NewServer(grpc.ChainUnaryInterceptor(
			grpcserver.LoggingInterceptor(logger),
			grpcserver.ClientIPInterceptor(),
			grpcserver.TrustedSubnetInterceptor(cfg.TrustedSubnet, logger),
		))
		proto.RegisterTrackerServiceServer(grpcSrv, grpcserver.NewServer(svc, db, logger))

		listener, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			logger.Fatal("Failed to listen gRPC address", zap.Error(err))
		}
		go func() {
			logger.Info("Starting gRPC server", zap.String("address", cfg.GRPCAddr))
			if err := grpcSrv.Serve(listener); err != nil {
				logger.Error("gRPC server stopped", zap.Error(err))
			}
		}()
		defer grpcSrv.GracefulStop()
	}

	httpServer := &http.Server{Addr: cfg.RunAddr, Handler: router}
	go func() {
		<-ctx.Done()
		if err := httpServer.Shutdown(context.Background()); err != nil {
			logger.Error("HTTP server shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("Starting HTTP server", zap.String("address", cfg.RunAddr))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}
}
