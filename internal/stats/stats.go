// Package stats содержит шину статистики по завершённым элементам.
// Доставка дельт внешним потребителям выполняется по принципу best-effort
// и никогда не блокирует и не роняет checkin.
package stats

import (
	"sync"

	"github.com/tempizhere/gotracker/internal/models"
	"go.uber.org/zap"
)

// Totals содержит накопленные счётчики found и scanned
type Totals struct {
	Found   int64 `json:"found"`
	Scanned int64 `json:"scanned"`
}

// Bus раздаёт дельты статистики подписчикам и ведёт агрегаты в памяти
type Bus struct {
	mu          sync.Mutex
	subscribers map[chan models.ItemStat]struct{}
	global      Totals
	byUser      map[string]Totals
	byProject   map[string]Totals
	logger      *zap.Logger
}

// NewBus создаёт новую шину статистики
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		subscribers: make(map[chan models.ItemStat]struct{}),
		byUser:      make(map[string]Totals),
		byProject:   make(map[string]Totals),
		logger:      logger,
	}
}

// Publish учитывает дельту и рассылает её подписчикам без блокировки.
// Подписчик с заполненным буфером дельту пропускает.
func (b *Bus) Publish(stat models.ItemStat) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.global.Found += stat.Found
	b.global.Scanned += stat.Scanned

	user := b.byUser[stat.Username]
	user.Found += stat.Found
	user.Scanned += stat.Scanned
	b.byUser[stat.Username] = user

	project := b.byProject[stat.Project]
	project.Found += stat.Found
	project.Scanned += stat.Scanned
	b.byProject[stat.Project] = project

	for ch := range b.subscribers {
		select {
		case ch <- stat:
		default:
			b.logger.Warn("Stats subscriber is slow, dropping delta",
				zap.String("project", stat.Project))
		}
	}
}

// Subscribe регистрирует подписчика и возвращает канал дельт
func (b *Bus) Subscribe(buffer int) chan models.ItemStat {
	ch := make(chan models.ItemStat, buffer)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe убирает подписчика и закрывает его канал
func (b *Bus) Unsubscribe(ch chan models.ItemStat) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[ch]; exists {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// Global возвращает суммарные счётчики
func (b *Bus) Global() Totals {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.global
}

// ByUser возвращает накопленные счётчики по пользователям
func (b *Bus) ByUser() map[string]Totals {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]Totals, len(b.byUser))
	for name, totals := range b.byUser {
		out[name] = totals
	}
	return out
}

// ByProject возвращает накопленные счётчики по проектам
func (b *Bus) ByProject() map[string]Totals {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]Totals, len(b.byProject))
	for name, totals := range b.byProject {
		out[name] = totals
	}
	return out
}
