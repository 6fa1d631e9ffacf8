// Package repository содержит хранилище проектов, элементов и результатов трекера
package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/tempizhere/gotracker/internal/models"
)

var (
	// ErrNotFound возвращается, когда запись не существует
	ErrNotFound = errors.New("not found")
	// ErrInvalidClaim возвращается, когда пара id и tamper_key не совпадает ни с одной выданной заявкой
	ErrInvalidClaim = errors.New("invalid claim")
	// ErrProjectExists возвращается при попытке создать проект с занятым именем
	ErrProjectExists = errors.New("project already exists")
	// ErrUserExists возвращается при попытке создать пользователя с занятым именем
	ErrUserExists = errors.New("user already exists")
)

// Repository определяет интерфейс для работы с хранилищем трекера
type Repository interface {
	// CreateProject сохраняет новый проект
	CreateProject(p models.Project) error
	// GetProject возвращает проект по имени
	GetProject(name string) (models.Project, error)
	// UpdateProject перезаписывает настройки проекта
	UpdateProject(p models.Project) error
	// DeleteProject удаляет проект вместе с его элементами и осиротевшими отчётами об ошибках
	DeleteProject(name string) error
	// ListProjects возвращает все проекты
	ListProjects() ([]models.Project, error)

	// AddItems загружает диапазоны, подготовленные оператором
	AddItems(project string, ranges []models.SequenceRange) error
	// GetItems возвращает элементы проекта
	GetItems(project string) ([]models.Item, error)
	// AllItems возвращает все элементы для пересчёта кэша допуска
	AllItems() ([]models.Item, error)
	// DeleteItem удаляет один элемент
	DeleteItem(id int64) error
	// DeleteItems удаляет все элементы проекта
	DeleteItems(project string) error
	// ReleaseItem сбрасывает заявку на одном элементе
	ReleaseItem(id int64) error
	// ReleaseItems сбрасывает заявки на всех элементах проекта
	ReleaseItems(project string) error
	// ReleaseExpired сбрасывает заявки, чей срок аренды истёк, и возвращает их число
	ReleaseExpired(now time.Time) (int64, error)

	// ClaimItem выдаёт существующий свободный элемент проекта в одной транзакции.
	// Возвращает ErrNotFound, если свободных элементов нет либо проект перестал подходить.
	ClaimItem(project, username, ip, tamperKey string, version, clientVersion int, now time.Time) (models.Item, error)
	// CreateAndClaimItem создаёт элемент продвижением курсора проекта и сразу выдаёт его.
	// Продвижение курсора и вставка происходят в одной транзакции, поэтому два
	// конкурентных checkout не могут получить пересекающиеся диапазоны.
	CreateAndClaimItem(project, username, ip, tamperKey string, version, clientVersion int, now time.Time) (models.Item, error)
	// CheckinItem проверяет tamper_key, записывает результаты и удаляет элемент в одной
	// транзакции. Вторым значением возвращает IP-адрес державшего заявку воркера.
	CheckinItem(id int64, tamperKey string, results map[string]models.ResultPayload, now time.Time) (models.ItemStat, string, error)
	// AddErrorReport проверяет tamper_key и сохраняет отчёт об ошибке, не меняя состояние заявки
	AddErrorReport(id int64, tamperKey, message string, now time.Time) error

	// ErrorReports возвращает все отчёты об ошибках
	ErrorReports() ([]models.ErrorReport, error)
	// DeleteErrorReport удаляет один отчёт
	DeleteErrorReport(id int64) error
	// DeleteAllErrorReports удаляет все отчёты
	DeleteAllErrorReports() error
	// DeleteOrphanedErrorReports удаляет отчёты, чьи элементы уже не существуют
	DeleteOrphanedErrorReports() (int64, error)

	// BlockUser добавляет имя пользователя или IP в список забаненных
	BlockUser(username, note string) error
	// UnblockUser убирает запись из списка забаненных
	UnblockUser(username string) error
	// IsBlocked проверяет, забанено ли имя пользователя или IP
	IsBlocked(username, ip string) (bool, error)
	// ListBlocked возвращает список забаненных
	ListBlocked() ([]models.BlockedUser, error)

	// SaveUser сохраняет учётную запись оператора
	SaveUser(username string, hash []byte) error
	// GetUser возвращает учётную запись оператора
	GetUser(username string) (models.User, error)
	// UpdateUserPassword обновляет хэш пароля оператора
	UpdateUserPassword(username string, hash []byte) error
	// DeleteUser удаляет учётную запись оператора
	DeleteUser(username string) error
	// AllUsernames возвращает имена всех операторов
	AllUsernames() ([]string, error)
	// HasUsers сообщает, существует ли хотя бы одна учётная запись
	HasUsers() (bool, error)
}

// Database определяет интерфейс для работы с базой данных
type Database interface {
	// Ping проверяет соединение с базой данных
	Ping() error
	// Close закрывает соединение с базой данных
	Close() error
	// Exec выполняет SQL-команду без возврата результатов
	Exec(query string, args ...interface{}) (sql.Result, error)
	// Query выполняет SQL-запрос и возвращает результаты
	Query(query string, args ...interface{}) (*sql.Rows, error)
	// QueryRow выполняет SQL-запрос и возвращает одну строку результата
	QueryRow(query string, args ...interface{}) *sql.Row
	// Begin начинает новую транзакцию
	Begin() (*sql.Tx, error)
}
