// Package config содержит настройки трекера
package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config содержит настройки приложения
type Config struct {
	RunAddr               string
	GRPCAddr              string
	DatabaseDSN           string
	JWTSecret             string
	TrustedSubnet         string
	SweepInterval         time.Duration
	ErrorReportAutoDelete bool
	MinVersion            int
	MinClientVersion      int
}

// NewConfig создает и возвращает новый объект Config с настройками по умолчанию и парсит флаги командной строки
func NewConfig() (*Config, error) {
	cfg := &Config{
		RunAddr:          ":8080",
		GRPCAddr:         "",
		DatabaseDSN:      "",
		JWTSecret:        "default_jwt_secret",
		TrustedSubnet:    "",
		SweepInterval:    time.Minute,
		MinVersion:       0,
		MinClientVersion: 0,
	}

	// Регистрируем флаги
	flagRunAddr := flag.String("a", ":8080", "address and port to run HTTP server")
	flagGRPCAddr := flag.String("g", "", "address and port to run gRPC server")
	flagDatabaseDSN := flag.String("d", "", "database DSN for PostgreSQL")
	flagJWTSecret := flag.String("j", "default_jwt_secret", "JWT secret key for admin API")
	flagTrustedSubnet := flag.String("t", "", "trusted subnet in CIDR notation for stats endpoints")
	flagSweepInterval := flag.Duration("s", time.Minute, "lease sweep interval")
	flagAutoDelete := flag.Bool("e", false, "auto-delete error reports of completed items")
	flagMinVersion := flag.Int("v", 0, "global minimum library version")
	flagMinClientVersion := flag.Int("c", 0, "global minimum client version")
	flag.Parse()

	// Проверяем переменные окружения
	if addr := os.Getenv("RUN_ADDRESS"); addr != "" {
		cfg.RunAddr = addr
	} else if *flagRunAddr != "" {
		cfg.RunAddr = *flagRunAddr
	}

	if addr := os.Getenv("GRPC_ADDRESS"); addr != "" {
		cfg.GRPCAddr = addr
	} else if *flagGRPCAddr != "" {
		cfg.GRPCAddr = *flagGRPCAddr
	}

	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		cfg.DatabaseDSN = dsn
	} else if *flagDatabaseDSN != "" {
		cfg.DatabaseDSN = *flagDatabaseDSN
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWTSecret = secret
	} else if *flagJWTSecret != "" {
		cfg.JWTSecret = *flagJWTSecret
	}

	if subnet := os.Getenv("TRUSTED_SUBNET"); subnet != "" {
		cfg.TrustedSubnet = subnet
	} else if *flagTrustedSubnet != "" {
		cfg.TrustedSubnet = *flagTrustedSubnet
	}

	if interval := os.Getenv("SWEEP_INTERVAL"); interval != "" {
		parsed, err := time.ParseDuration(interval)
		if err != nil {
			return nil, err
		}
		cfg.SweepInterval = parsed
	} else if *flagSweepInterval > 0 {
		cfg.SweepInterval = *flagSweepInterval
	}

	if autoDelete := os.Getenv("ERROR_REPORT_AUTO_DELETE"); autoDelete != "" {
		parsed, err := strconv.ParseBool(autoDelete)
		if err != nil {
			return nil, err
		}
		cfg.ErrorReportAutoDelete = parsed
	} else {
		cfg.ErrorReportAutoDelete = *flagAutoDelete
	}

	if version := os.Getenv("MIN_VERSION"); version != "" {
		parsed, err := strconv.Atoi(version)
		if err != nil {
			return nil, err
		}
		cfg.MinVersion = parsed
	} else {
		cfg.MinVersion = *flagMinVersion
	}

	if version := os.Getenv("MIN_CLIENT_VERSION"); version != "" {
		parsed, err := strconv.Atoi(version)
		if err != nil {
			return nil, err
		}
		cfg.MinClientVersion = parsed
	} else {
		cfg.MinClientVersion = *flagMinClientVersion
	}

	// Валидация значений
	cfg.RunAddr = validateAddress(cfg.RunAddr)
	if cfg.GRPCAddr != "" {
		cfg.GRPCAddr = validateAddress(cfg.GRPCAddr)
	}

	return cfg, nil
}

// validateAddress дополняет адрес двоеточием, если указан только порт
func validateAddress(addr string) string {
	if !strings.Contains(addr, ":") {
		return ":" + addr
	}
	return addr
}
