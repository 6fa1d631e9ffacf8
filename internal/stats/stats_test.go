package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tempizhere/gotracker/internal/models"
	"go.uber.org/zap"
)

func TestPublishAggregates(t *testing.T) {
	bus := NewBus(zap.NewNop())

	bus.Publish(models.ItemStat{Project: "p1", Username: "alice", Scanned: 50, Found: 3})
	bus.Publish(models.ItemStat{Project: "p1", Username: "bob", Scanned: 50, Found: 1})
	bus.Publish(models.ItemStat{Project: "p2", Username: "alice", Scanned: 10, Found: 0})

	global := bus.Global()
	assert.Equal(t, int64(4), global.Found)
	assert.Equal(t, int64(110), global.Scanned)

	byUser := bus.ByUser()
	assert.Equal(t, Totals{Found: 3, Scanned: 60}, byUser["alice"])
	assert.Equal(t, Totals{Found: 1, Scanned: 50}, byUser["bob"])

	byProject := bus.ByProject()
	assert.Equal(t, Totals{Found: 4, Scanned: 100}, byProject["p1"])
	assert.Equal(t, Totals{Found: 0, Scanned: 10}, byProject["p2"])
}

func TestSubscribeReceivesDeltas(t *testing.T) {
	bus := NewBus(zap.NewNop())
	ch := bus.Subscribe(1)
	defer bus.Unsubscribe(ch)

	stat := models.ItemStat{Project: "p", Username: "alice", Scanned: 50, Found: 2}
	bus.Publish(stat)

	received := <-ch
	assert.Equal(t, stat, received)
}

func TestPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	bus := NewBus(zap.NewNop())
	ch := bus.Subscribe(1)
	defer bus.Unsubscribe(ch)

	// Буфер на один элемент: вторая публикация не должна заблокировать
	bus.Publish(models.ItemStat{Project: "p", Scanned: 1})
	bus.Publish(models.ItemStat{Project: "p", Scanned: 2})

	assert.Equal(t, int64(3), bus.Global().Scanned)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(zap.NewNop())
	ch := bus.Subscribe(1)

	bus.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open)

	// Повторный вызов безопасен
	bus.Unsubscribe(ch)
}
