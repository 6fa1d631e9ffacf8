package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/tempizhere/gotracker/internal/models"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ErrEmptyField возвращается при пустом обязательном поле операторской операции
var ErrEmptyField = errors.New("required field is empty")

// tokenTTL задаёт срок жизни операторского токена
const tokenTTL = 24 * time.Hour

// CreateUser создаёт учётную запись оператора
func (s *Service) CreateUser(username, password string) error {
	if username == "" || password == "" {
		return ErrEmptyField
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.repo.SaveUser(username, hash)
}

// Authenticate проверяет имя и пароль оператора
func (s *Service) Authenticate(username, password string) error {
	user, err := s.repo.GetUser(username)
	if err != nil {
		return ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword(user.Hash, []byte(password)) != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// UpdatePassword обновляет пароль оператора
func (s *Service) UpdatePassword(username, password string) error {
	if password == "" {
		return ErrEmptyField
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.repo.UpdateUserPassword(username, hash)
}

// DeleteUser удаляет учётную запись оператора
func (s *Service) DeleteUser(username string) error {
	return s.repo.DeleteUser(username)
}

// AllUsernames возвращает имена всех операторов
func (s *Service) AllUsernames() ([]string, error) {
	return s.repo.AllUsernames()
}

// BootstrapAllowed сообщает, можно ли создать первого оператора без токена
func (s *Service) BootstrapAllowed() (bool, error) {
	hasUsers, err := s.repo.HasUsers()
	if err != nil {
		return false, err
	}
	return !hasUsers, nil
}

// GenerateToken выдаёт оператору JWT
func (s *Service) GenerateToken(username string) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   username,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

// ParseToken проверяет JWT и возвращает имя оператора
func (s *Service) ParseToken(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidCredentials
	}
	return claims.Subject, nil
}

// BlockUser добавляет имя пользователя или IP в список забаненных
func (s *Service) BlockUser(username, note string) error {
	if username == "" {
		return ErrEmptyField
	}
	s.logger.Info("Blocking user", zap.String("username", username))
	return s.repo.BlockUser(username, note)
}

// UnblockUser убирает запись из списка забаненных
func (s *Service) UnblockUser(username string) error {
	return s.repo.UnblockUser(username)
}

// ListBlocked возвращает список забаненных
func (s *Service) ListBlocked() ([]models.BlockedUser, error) {
	return s.repo.ListBlocked()
}

// CreateProject создаёт проект с настройками по умолчанию
func (s *Service) CreateProject(name string) (models.Project, error) {
	if name == "" {
		return models.Project{}, ErrEmptyField
	}
	project := models.NewProject(name)
	if err := s.repo.CreateProject(project); err != nil {
		return models.Project{}, err
	}
	return project, s.RebuildBudget()
}

// GetProject возвращает проект по имени
func (s *Service) GetProject(name string) (models.Project, error) {
	return s.repo.GetProject(name)
}

// ListProjects возвращает все проекты
func (s *Service) ListProjects() ([]models.Project, error) {
	return s.repo.ListProjects()
}

// UpdateProject перезаписывает настройки проекта и пересчитывает кэш допуска
func (s *Service) UpdateProject(p models.Project) error {
	if err := s.repo.UpdateProject(p); err != nil {
		return err
	}
	return s.RebuildBudget()
}

// DeleteProject удаляет проект вместе с его элементами
func (s *Service) DeleteProject(name string) error {
	if err := s.repo.DeleteProject(name); err != nil {
		return err
	}
	s.logger.Info("Project deleted", zap.String("project", name))
	return s.RebuildBudget()
}

// AddItems загружает подготовленные оператором диапазоны в очередь проекта
func (s *Service) AddItems(project string, ranges []models.SequenceRange) error {
	for _, sr := range ranges {
		if sr.Lower > sr.Upper {
			return ErrInvalidRange
		}
	}
	if err := s.repo.AddItems(project, ranges); err != nil {
		return err
	}
	return s.RebuildBudget()
}

// GetItems возвращает элементы проекта
func (s *Service) GetItems(project string) ([]models.Item, error) {
	return s.repo.GetItems(project)
}

// ReleaseItem возвращает элемент в пул свободных
func (s *Service) ReleaseItem(id int64) error {
	if err := s.repo.ReleaseItem(id); err != nil {
		return err
	}
	return s.RebuildBudget()
}

// ReleaseItems возвращает все элементы проекта в пул свободных
func (s *Service) ReleaseItems(project string) error {
	if err := s.repo.ReleaseItems(project); err != nil {
		return err
	}
	return s.RebuildBudget()
}

// DeleteItem удаляет элемент
func (s *Service) DeleteItem(id int64) error {
	if err := s.repo.DeleteItem(id); err != nil {
		return err
	}
	return s.RebuildBudget()
}

// DeleteItems удаляет все элементы проекта
func (s *Service) DeleteItems(project string) error {
	if err := s.repo.DeleteItems(project); err != nil {
		return err
	}
	return s.RebuildBudget()
}

// ErrorReports возвращает все отчёты об ошибках
func (s *Service) ErrorReports() ([]models.ErrorReport, error) {
	return s.repo.ErrorReports()
}

// DeleteErrorReport удаляет один отчёт
func (s *Service) DeleteErrorReport(id int64) error {
	return s.repo.DeleteErrorReport(id)
}

// DeleteAllErrorReports удаляет все отчёты
func (s *Service) DeleteAllErrorReports() error {
	return s.repo.DeleteAllErrorReports()
}
