// Package service реализует протокол выдачи элементов и операции операторов
package service

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tempizhere/gotracker/internal/budget"
	"github.com/tempizhere/gotracker/internal/models"
	"github.com/tempizhere/gotracker/internal/repository"
	"github.com/tempizhere/gotracker/internal/stats"
	"go.uber.org/zap"
)

// Service реализует логику трекера: выдачу, сдачу и возврат элементов
type Service struct {
	repo             repository.Repository
	budget           *budget.Budget
	bus              *stats.Bus
	logger           *zap.Logger
	jwtSecret        string
	minVersion       int
	minClientVersion int
	maintenance      atomic.Bool
}

// NewService создаёт новый экземпляр Service.
// minVersion и minClientVersion — глобальные минимумы версий, перекрывающие
// пер-проектные: ими принудительно обновляют весь флот воркеров.
func NewService(repo repository.Repository, b *budget.Budget, bus *stats.Bus,
	jwtSecret string, minVersion, minClientVersion int, logger *zap.Logger) *Service {
	return &Service{
		repo:             repo,
		budget:           b,
		bus:              bus,
		logger:           logger,
		jwtSecret:        jwtSecret,
		minVersion:       minVersion,
		minClientVersion: minClientVersion,
	}
}

// NewTamperKey генерирует непредсказуемый ключ заявки
func NewTamperKey() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(bytes)), nil
}

// RebuildBudget целиком пересчитывает кэш допуска по данным хранилища
func (s *Service) RebuildBudget() error {
	projects, err := s.repo.ListProjects()
	if err != nil {
		return err
	}
	items, err := s.repo.AllItems()
	if err != nil {
		return err
	}
	s.budget.Rebuild(projects, items)
	return nil
}

// SetMaintenance включает или выключает режим обслуживания
func (s *Service) SetMaintenance(enabled bool) {
	s.maintenance.Store(enabled)
	s.logger.Info("Maintenance mode changed", zap.Bool("enabled", enabled))
}

// InMaintenance сообщает, идёт ли обслуживание
func (s *Service) InMaintenance() bool {
	return s.maintenance.Load()
}

// Checkout выдаёт воркеру элемент: сначала дешёвая проверка по кэшу допуска,
// затем авторитетная транзакция в хранилище
func (s *Service) Checkout(username, ip string, version, clientVersion int) (models.Claim, error) {
	if s.InMaintenance() {
		return models.Claim{}, ErrNoResourcesAvailable
	}
	if version < s.minVersion || clientVersion < s.minClientVersion {
		return models.Claim{}, &UpdateClientError{
			Version:               version,
			ClientVersion:         clientVersion,
			RequiredVersion:       s.minVersion,
			RequiredClientVersion: s.minClientVersion,
		}
	}

	blocked, err := s.repo.IsBlocked(username, ip)
	if err != nil {
		return models.Claim{}, err
	}
	if blocked {
		return models.Claim{}, ErrUserIsBanned
	}

	projectName, ok := s.budget.AvailableProject(ip, version, clientVersion)
	if !ok {
		if s.budget.IsClaimsFull(ip) {
			return models.Claim{}, ErrFullClaim
		}
		if s.budget.IsClientOutdated(version, clientVersion) {
			requiredVersion, requiredClientVersion := s.budget.RequiredVersions()
			return models.Claim{}, &UpdateClientError{
				Version:               version,
				ClientVersion:         clientVersion,
				RequiredVersion:       requiredVersion,
				RequiredClientVersion: requiredClientVersion,
			}
		}
		return models.Claim{}, ErrNoItemAvailable
	}

	snapshot, _ := s.budget.Snapshot(projectName)

	tamperKey, err := NewTamperKey()
	if err != nil {
		return models.Claim{}, err
	}

	now := time.Now().UTC()
	created := false
	item, err := s.repo.ClaimItem(projectName, username, ip, tamperKey, version, clientVersion, now)
	if errors.Is(err, repository.ErrNotFound) {
		// Кэш устарел: свободного элемента нет. Если снимок говорил, что пул
		// выбран целиком и лимит не достигнут, продвигаем курсор проекта.
		if snapshot.Claims >= snapshot.Items && snapshot.Items < snapshot.MaxNumItems {
			item, err = s.repo.CreateAndClaimItem(projectName, username, ip, tamperKey, version, clientVersion, now)
			if errors.Is(err, repository.ErrNotFound) {
				return models.Claim{}, ErrNoItemAvailable
			}
			created = true
		} else {
			return models.Claim{}, ErrNoItemAvailable
		}
	}
	if err != nil {
		s.logger.Error("Checkout transaction failed",
			zap.String("project", projectName), zap.String("username", username), zap.Error(err))
		return models.Claim{}, err
	}

	s.budget.NoteClaim(projectName, ip, created)

	project, err := s.repo.GetProject(projectName)
	if err != nil {
		return models.Claim{}, err
	}

	s.logger.Info("Item checked out",
		zap.Int64("item_id", item.ID),
		zap.String("project", projectName),
		zap.String("username", username),
		zap.Int64("lower", item.LowerSequenceNum),
		zap.Int64("upper", item.UpperSequenceNum),
		zap.Bool("generated", created))

	return models.Claim{
		ID:               item.ID,
		Project:          project.Settings(),
		LowerSequenceNum: item.LowerSequenceNum,
		UpperSequenceNum: item.UpperSequenceNum,
		TamperKey:        item.TamperKey,
	}, nil
}

// Checkin принимает результаты воркера, удаляет элемент и публикует дельту статистики
func (s *Service) Checkin(claimID int64, tamperKey string, results map[string]models.ResultPayload) (models.ItemStat, error) {
	if s.InMaintenance() {
		return models.ItemStat{}, ErrNoResourcesAvailable
	}

	stat, ip, err := s.repo.CheckinItem(claimID, tamperKey, results, time.Now().UTC())
	if errors.Is(err, repository.ErrInvalidClaim) {
		return models.ItemStat{}, ErrInvalidClaim
	}
	if err != nil {
		s.logger.Error("Checkin transaction failed", zap.Int64("claim_id", claimID), zap.Error(err))
		return models.ItemStat{}, err
	}

	s.budget.NoteCheckin(stat.Project, ip)
	s.bus.Publish(stat)

	s.logger.Info("Item checked in",
		zap.Int64("claim_id", claimID),
		zap.String("project", stat.Project),
		zap.String("username", stat.Username),
		zap.Int64("scanned", stat.Scanned),
		zap.Int64("found", stat.Found))
	return stat, nil
}

// ReportError сохраняет диагностику воркера, не трогая состояние заявки
func (s *Service) ReportError(claimID int64, tamperKey, message string) error {
	err := s.repo.AddErrorReport(claimID, tamperKey, message, time.Now().UTC())
	if errors.Is(err, repository.ErrInvalidClaim) {
		return ErrInvalidClaim
	}
	if err != nil {
		s.logger.Error("Failed to store error report", zap.Int64("claim_id", claimID), zap.Error(err))
		return err
	}
	s.logger.Warn("Worker reported an error",
		zap.Int64("claim_id", claimID), zap.String("message", message))
	return nil
}

// ProjectSettings возвращает конфигурацию сканирования проекта
func (s *Service) ProjectSettings(name string) (models.ProjectSettings, error) {
	project, err := s.repo.GetProject(name)
	if err != nil {
		return models.ProjectSettings{}, err
	}
	return project.Settings(), nil
}

// Health содержит состояние процесса для операторов и экспортёра
type Health struct {
	Maintenance bool                    `json:"maintenance"`
	Projects    map[string]HealthCounts `json:"projects"`
	Global      stats.Totals            `json:"global"`
}

// HealthCounts содержит счётчики элементов и заявок одного проекта
type HealthCounts struct {
	Items  int64 `json:"items"`
	Claims int64 `json:"claims"`
}

// HealthStatus возвращает снимок состояния по кэшу допуска
func (s *Service) HealthStatus() Health {
	counts := s.budget.Counts()
	projects := make(map[string]HealthCounts, len(counts))
	for name, c := range counts {
		projects[name] = HealthCounts{Items: c[0], Claims: c[1]}
	}
	return Health{
		Maintenance: s.InMaintenance(),
		Projects:    projects,
		Global:      s.bus.Global(),
	}
}

// Stats возвращает шину статистики
func (s *Service) Stats() *stats.Bus {
	return s.bus
}
