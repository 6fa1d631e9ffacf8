package repository

import (
	"sort"
	"sync"
	"time"

	"github.com/tempizhere/gotracker/internal/models"
)

// MemoryRepository реализует интерфейс Repository с использованием map.
// Используется в тестах и при запуске без DSN базы данных.
type MemoryRepository struct {
	mu           sync.Mutex
	projects     map[string]models.Project
	items        map[int64]models.Item
	results      []models.Result
	blocked      map[string]models.BlockedUser
	users        map[string]models.User
	errorReports map[int64]models.ErrorReport
	nextItemID   int64
	nextReportID int64
	nextResultID int64
}

// NewMemoryRepository создаёт новый экземпляр MemoryRepository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		projects:     make(map[string]models.Project),
		items:        make(map[int64]models.Item),
		blocked:      make(map[string]models.BlockedUser),
		users:        make(map[string]models.User),
		errorReports: make(map[int64]models.ErrorReport),
	}
}

// CreateProject сохраняет новый проект
func (r *MemoryRepository) CreateProject(p models.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.projects[p.Name]; exists {
		return ErrProjectExists
	}
	r.projects[p.Name] = p
	return nil
}

// GetProject возвращает проект по имени
func (r *MemoryRepository) GetProject(name string) (models.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.projects[name]
	if !exists {
		return models.Project{}, ErrNotFound
	}
	return p, nil
}

// UpdateProject перезаписывает настройки проекта
func (r *MemoryRepository) UpdateProject(p models.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.projects[p.Name]; !exists {
		return ErrNotFound
	}
	r.projects[p.Name] = p
	return nil
}

// DeleteProject удаляет проект вместе с его элементами и осиротевшими отчётами об ошибках
func (r *MemoryRepository) DeleteProject(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.projects[name]; !exists {
		return ErrNotFound
	}
	delete(r.projects, name)
	for id, item := range r.items {
		if item.ProjectID != name {
			continue
		}
		delete(r.items, id)
		for reportID, report := range r.errorReports {
			if report.ItemID == id {
				delete(r.errorReports, reportID)
			}
		}
	}
	return nil
}

// ListProjects возвращает все проекты
func (r *MemoryRepository) ListProjects() ([]models.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	projects := make([]models.Project, 0, len(r.projects))
	for _, p := range r.projects {
		projects = append(projects, p)
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })
	return projects, nil
}

// AddItems загружает диапазоны, подготовленные оператором
func (r *MemoryRepository) AddItems(project string, ranges []models.SequenceRange) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.projects[project]; !exists {
		return ErrNotFound
	}
	for _, sr := range ranges {
		r.nextItemID++
		r.items[r.nextItemID] = models.Item{
			ID:               r.nextItemID,
			ProjectID:        project,
			LowerSequenceNum: sr.Lower,
			UpperSequenceNum: sr.Upper,
		}
	}
	return nil
}

// GetItems возвращает элементы проекта
func (r *MemoryRepository) GetItems(project string) ([]models.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var items []models.Item
	for _, item := range r.items {
		if item.ProjectID == project {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// AllItems возвращает все элементы для пересчёта кэша допуска
func (r *MemoryRepository) AllItems() ([]models.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := make([]models.Item, 0, len(r.items))
	for _, item := range r.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// DeleteItem удаляет один элемент
func (r *MemoryRepository) DeleteItem(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.items, id)
	return nil
}

// DeleteItems удаляет все элементы проекта
func (r *MemoryRepository) DeleteItems(project string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, item := range r.items {
		if item.ProjectID == project {
			delete(r.items, id)
		}
	}
	return nil
}

// ReleaseItem сбрасывает заявку на одном элементе
func (r *MemoryRepository) ReleaseItem(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, exists := r.items[id]
	if !exists {
		return ErrNotFound
	}
	item.DatetimeClaimed = nil
	item.Username = ""
	item.IPAddress = ""
	r.items[id] = item
	return nil
}

// ReleaseItems сбрасывает заявки на всех элементах проекта
func (r *MemoryRepository) ReleaseItems(project string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, item := range r.items {
		if item.ProjectID != project {
			continue
		}
		item.DatetimeClaimed = nil
		item.Username = ""
		item.IPAddress = ""
		r.items[id] = item
	}
	return nil
}

// ReleaseExpired сбрасывает заявки, чей срок аренды истёк, и возвращает их число
func (r *MemoryRepository) ReleaseExpired(now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var released int64
	for id, item := range r.items {
		project, exists := r.projects[item.ProjectID]
		if !exists || !project.Enabled || project.AutoreleaseTime <= 0 {
			continue
		}
		if item.DatetimeClaimed == nil {
			continue
		}
		cutoff := now.Add(-time.Duration(project.AutoreleaseTime) * time.Second)
		if item.DatetimeClaimed.After(cutoff) {
			continue
		}
		item.DatetimeClaimed = nil
		item.Username = ""
		item.IPAddress = ""
		r.items[id] = item
		released++
	}
	return released, nil
}

// ClaimItem выдаёт существующий свободный элемент проекта
func (r *MemoryRepository) ClaimItem(project, username, ip, tamperKey string, version, clientVersion int, now time.Time) (models.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.projects[project]
	if !exists || !p.Enabled || version < p.MinVersion || clientVersion < p.MinClientVersion {
		return models.Item{}, ErrNotFound
	}

	ids := make([]int64, 0, len(r.items))
	for id, item := range r.items {
		if item.ProjectID != project {
			continue
		}
		if item.Claimed() && item.IPAddress == ip {
			return models.Item{}, ErrNotFound
		}
		if !item.Claimed() {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return models.Item{}, ErrNotFound
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	item := r.items[ids[0]]
	claimedAt := now
	item.DatetimeClaimed = &claimedAt
	item.TamperKey = tamperKey
	item.Username = username
	item.IPAddress = ip
	r.items[item.ID] = item
	return item, nil
}

// CreateAndClaimItem создаёт элемент продвижением курсора проекта и сразу выдаёт его
func (r *MemoryRepository) CreateAndClaimItem(project, username, ip, tamperKey string, version, clientVersion int, now time.Time) (models.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.projects[project]
	if !exists || !p.Enabled || !p.Autoqueue || version < p.MinVersion || clientVersion < p.MinClientVersion {
		return models.Item{}, ErrNotFound
	}

	var numItems int64
	for _, item := range r.items {
		if item.ProjectID != project {
			continue
		}
		if item.Claimed() && item.IPAddress == ip {
			return models.Item{}, ErrNotFound
		}
		numItems++
	}
	if numItems >= p.MaxNumItems {
		return models.Item{}, ErrNotFound
	}

	upper := p.LowerSequenceNum + p.NumCountPerItem - 1
	claimedAt := now
	r.nextItemID++
	item := models.Item{
		ID:               r.nextItemID,
		ProjectID:        project,
		LowerSequenceNum: p.LowerSequenceNum,
		UpperSequenceNum: upper,
		DatetimeClaimed:  &claimedAt,
		TamperKey:        tamperKey,
		Username:         username,
		IPAddress:        ip,
	}
	r.items[item.ID] = item

	p.LowerSequenceNum = upper + 1
	r.projects[project] = p
	return item, nil
}

// CheckinItem проверяет tamper_key, записывает результаты и удаляет элемент
func (r *MemoryRepository) CheckinItem(id int64, tamperKey string, results map[string]models.ResultPayload, now time.Time) (models.ItemStat, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, exists := r.items[id]
	if !exists || !item.Claimed() || item.TamperKey != tamperKey {
		return models.ItemStat{}, "", ErrInvalidClaim
	}

	for shortcode, payload := range results {
		r.nextResultID++
		r.results = append(r.results, models.Result{
			ID:        r.nextResultID,
			ProjectID: item.ProjectID,
			Shortcode: shortcode,
			URL:       payload.URL,
			Encoding:  payload.Encoding,
			Datetime:  now,
		})
	}
	delete(r.items, id)

	return models.ItemStat{
		Project:  item.ProjectID,
		Username: item.Username,
		Scanned:  item.UpperSequenceNum - item.LowerSequenceNum + 1,
		Found:    int64(len(results)),
	}, item.IPAddress, nil
}

// AddErrorReport проверяет tamper_key и сохраняет отчёт об ошибке, не меняя состояние заявки
func (r *MemoryRepository) AddErrorReport(id int64, tamperKey, message string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, exists := r.items[id]
	if !exists || !item.Claimed() || item.TamperKey != tamperKey {
		return ErrInvalidClaim
	}

	r.nextReportID++
	r.errorReports[r.nextReportID] = models.ErrorReport{
		ID:       r.nextReportID,
		ItemID:   id,
		Message:  message,
		Datetime: now,
	}
	return nil
}

// ErrorReports возвращает все отчёты об ошибках
func (r *MemoryRepository) ErrorReports() ([]models.ErrorReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reports := make([]models.ErrorReport, 0, len(r.errorReports))
	for _, report := range r.errorReports {
		reports = append(reports, report)
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].ID < reports[j].ID })
	return reports, nil
}

// DeleteErrorReport удаляет один отчёт
func (r *MemoryRepository) DeleteErrorReport(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.errorReports, id)
	return nil
}

// DeleteAllErrorReports удаляет все отчёты
func (r *MemoryRepository) DeleteAllErrorReports() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errorReports = make(map[int64]models.ErrorReport)
	return nil
}

// DeleteOrphanedErrorReports удаляет отчёты, чьи элементы уже не существуют
func (r *MemoryRepository) DeleteOrphanedErrorReports() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, report := range r.errorReports {
		if _, exists := r.items[report.ItemID]; !exists {
			delete(r.errorReports, id)
			deleted++
		}
	}
	return deleted, nil
}

// BlockUser добавляет имя пользователя или IP в список забаненных
func (r *MemoryRepository) BlockUser(username, note string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.blocked[username] = models.BlockedUser{Username: username, Note: note}
	return nil
}

// UnblockUser убирает запись из списка забаненных
func (r *MemoryRepository) UnblockUser(username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.blocked, username)
	return nil
}

// IsBlocked проверяет, забанено ли имя пользователя или IP
func (r *MemoryRepository) IsBlocked(username, ip string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, blocked := r.blocked[username]; blocked {
		return true, nil
	}
	if _, blocked := r.blocked[ip]; blocked {
		return true, nil
	}
	return false, nil
}

// ListBlocked возвращает список забаненных
func (r *MemoryRepository) ListBlocked() ([]models.BlockedUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	blocked := make([]models.BlockedUser, 0, len(r.blocked))
	for _, b := range r.blocked {
		blocked = append(blocked, b)
	}
	sort.Slice(blocked, func(i, j int) bool { return blocked[i].Username < blocked[j].Username })
	return blocked, nil
}

// SaveUser сохраняет учётную запись оператора
func (r *MemoryRepository) SaveUser(username string, hash []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[username]; exists {
		return ErrUserExists
	}
	r.users[username] = models.User{Username: username, Hash: hash}
	return nil
}

// GetUser возвращает учётную запись оператора
func (r *MemoryRepository) GetUser(username string) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, exists := r.users[username]
	if !exists {
		return models.User{}, ErrNotFound
	}
	return user, nil
}

// UpdateUserPassword обновляет хэш пароля оператора
func (r *MemoryRepository) UpdateUserPassword(username string, hash []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, exists := r.users[username]
	if !exists {
		return ErrNotFound
	}
	user.Hash = hash
	r.users[username] = user
	return nil
}

// DeleteUser удаляет учётную запись оператора
func (r *MemoryRepository) DeleteUser(username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.users, username)
	return nil
}

// AllUsernames возвращает имена всех операторов
func (r *MemoryRepository) AllUsernames() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	usernames := make([]string, 0, len(r.users))
	for name := range r.users {
		usernames = append(usernames, name)
	}
	sort.Strings(usernames)
	return usernames, nil
}

// HasUsers сообщает, существует ли хотя бы одна учётная запись
func (r *MemoryRepository) HasUsers() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.users) > 0, nil
}

// Results возвращает записанные результаты; используется в тестах
func (r *MemoryRepository) Results() []models.Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Result, len(r.results))
	copy(out, r.results)
	return out
}
