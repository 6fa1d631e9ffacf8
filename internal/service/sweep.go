package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweeper периодически возвращает просроченные заявки в пул и пересчитывает
// кэш допуска. Это единственный механизм восстановления после падения воркера:
// явного heartbeat-протокола нет, срок аренды должен превышать ожидаемое
// время сканирования одного элемента.
type Sweeper struct {
	svc              *Service
	interval         time.Duration
	autoDeleteErrors bool
	logger           *zap.Logger
	cancel           context.CancelFunc
	wg               sync.WaitGroup
}

// NewSweeper создаёт новый Sweeper
func NewSweeper(svc *Service, interval time.Duration, autoDeleteErrors bool, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		svc:              svc,
		interval:         interval,
		autoDeleteErrors: autoDeleteErrors,
		logger:           logger,
	}
}

// Start запускает фоновый цикл. Первый проход выполняется сразу.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.Sweep()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

// Stop останавливает цикл и дожидается завершения текущего прохода
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Sweep выполняет один проход: сброс просроченных заявок и пересчёт кэша.
// Ошибки хранилища логируются и не прерывают расписание — следующий тик
// повторит попытку.
func (s *Sweeper) Sweep() {
	if s.svc.InMaintenance() {
		return
	}

	released, err := s.svc.repo.ReleaseExpired(time.Now().UTC())
	if err != nil {
		s.logger.Error("Lease sweep failed", zap.Error(err))
		return
	}
	if released > 0 {
		s.logger.Info("Released expired claims", zap.Int64("released", released))
	}

	if err := s.svc.RebuildBudget(); err != nil {
		s.logger.Error("Budget rebuild failed", zap.Error(err))
	}

	if s.autoDeleteErrors {
		deleted, err := s.svc.repo.DeleteOrphanedErrorReports()
		if err != nil {
			s.logger.Error("Error report cleanup failed", zap.Error(err))
			return
		}
		if deleted > 0 {
			s.logger.Info("Deleted orphaned error reports", zap.Int64("deleted", deleted))
		}
	}
}
