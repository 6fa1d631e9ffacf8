// Package budget содержит кэш допуска: сводку по ёмкости и занятости проектов.
// Кэш периодически пересчитывается целиком и никогда не считается источником
// истины — протокол выдачи перепроверяет всё в транзакции хранилища.
package budget

import (
	"math/rand"
	"sync"

	"github.com/tempizhere/gotracker/internal/models"
)

// ProjectBudget содержит сводку по одному проекту
type ProjectBudget struct {
	MaxNumItems      int64
	MinVersion       int
	MinClientVersion int
	Items            int64
	Claims           int64
	IPAddresses      map[string]struct{}
}

// Budget реализует кэш допуска с одним мьютексом на все операции
type Budget struct {
	mu       sync.Mutex
	projects map[string]*ProjectBudget
}

// New создаёт пустой кэш допуска
func New() *Budget {
	return &Budget{
		projects: make(map[string]*ProjectBudget),
	}
}

// Rebuild полностью пересчитывает кэш по снимку проектов и элементов.
// Стоимость O(projects + items); выключенные проекты в кэш не попадают.
func (b *Budget) Rebuild(projects []models.Project, items []models.Item) {
	next := make(map[string]*ProjectBudget, len(projects))

	for _, p := range projects {
		if !p.Enabled {
			continue
		}
		next[p.Name] = &ProjectBudget{
			MaxNumItems:      p.MaxNumItems,
			MinVersion:       p.MinVersion,
			MinClientVersion: p.MinClientVersion,
			IPAddresses:      make(map[string]struct{}),
		}
	}

	for _, item := range items {
		pb, ok := next[item.ProjectID]
		if !ok {
			continue
		}
		pb.Items++
		if item.Claimed() {
			pb.Claims++
			pb.IPAddresses[item.IPAddress] = struct{}{}
		}
	}

	b.mu.Lock()
	b.projects = next
	b.mu.Unlock()
}

// AvailableProject возвращает имя проекта, из которого вызывающему, скорее
// всего, можно выдать элемент. Проекты перебираются в случайном порядке, чтобы
// не морить голодом проекты с маленькими очередями. Проект без единого
// элемента кандидатом не становится: первый элемент всегда загружает оператор.
func (b *Budget) AvailableProject(ip string, version, clientVersion int) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	names := make([]string, 0, len(b.projects))
	for name := range b.projects {
		names = append(names, name)
	}
	rand.Shuffle(len(names), func(i, j int) {
		names[i], names[j] = names[j], names[i]
	})

	for _, name := range names {
		pb := b.projects[name]
		if _, claimed := pb.IPAddresses[ip]; claimed {
			continue
		}
		if version < pb.MinVersion || clientVersion < pb.MinClientVersion {
			continue
		}
		if pb.Items == 0 || pb.Items > pb.MaxNumItems {
			continue
		}
		// Либо в пуле есть свободный элемент, либо пул выбран целиком,
		// но курсор ещё можно продвинуть
		if pb.Claims >= pb.Items && pb.Items >= pb.MaxNumItems {
			continue
		}
		return name, true
	}
	return "", false
}

// Snapshot возвращает копию сводки по проекту на момент вызова
func (b *Budget) Snapshot(project string) (ProjectBudget, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pb, ok := b.projects[project]
	if !ok {
		return ProjectBudget{}, false
	}
	out := *pb
	out.IPAddresses = make(map[string]struct{}, len(pb.IPAddresses))
	for ip := range pb.IPAddresses {
		out.IPAddresses[ip] = struct{}{}
	}
	return out, true
}

// IsClaimsFull сообщает, держит ли IP заявку уже в каждом известном проекте
func (b *Budget) IsClaimsFull(ip string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.projects) == 0 {
		return false
	}
	for _, pb := range b.projects {
		if _, claimed := pb.IPAddresses[ip]; !claimed {
			return false
		}
	}
	return true
}

// IsClientOutdated сообщает, ниже ли версии клиента минимума хотя бы одного проекта
func (b *Budget) IsClientOutdated(version, clientVersion int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, pb := range b.projects {
		if version < pb.MinVersion || clientVersion < pb.MinClientVersion {
			return true
		}
	}
	return false
}

// RequiredVersions возвращает максимальные требуемые версии по всем проектам
func (b *Budget) RequiredVersions() (version, clientVersion int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, pb := range b.projects {
		if pb.MinVersion > version {
			version = pb.MinVersion
		}
		if pb.MinClientVersion > clientVersion {
			clientVersion = pb.MinClientVersion
		}
	}
	return version, clientVersion
}

// NoteClaim инкрементально учитывает выдачу элемента, чтобы всплеск запросов
// к одному проекту сходился до следующего полного пересчёта
func (b *Budget) NoteClaim(project, ip string, created bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pb, ok := b.projects[project]
	if !ok {
		return
	}
	if created {
		pb.Items++
	}
	pb.Claims++
	pb.IPAddresses[ip] = struct{}{}
}

// NoteCheckin инкрементально учитывает сдачу элемента
func (b *Budget) NoteCheckin(project, ip string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pb, ok := b.projects[project]
	if !ok {
		return
	}
	if pb.Items > 0 {
		pb.Items--
	}
	if pb.Claims > 0 {
		pb.Claims--
	}
	delete(pb.IPAddresses, ip)
}

// Counts возвращает счётчики элементов и заявок по всем проектам
func (b *Budget) Counts() map[string][2]int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string][2]int64, len(b.projects))
	for name, pb := range b.projects {
		out[name] = [2]int64{pb.Items, pb.Claims}
	}
	return out
}
