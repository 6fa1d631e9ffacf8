package service

import (
	"errors"
	"fmt"
)

var (
	// ErrUserIsBanned возвращается, если имя пользователя или IP в списке забаненных
	ErrUserIsBanned = errors.New("user is banned")
	// ErrNoItemAvailable возвращается, когда ни в одном проекте нет свободного элемента
	ErrNoItemAvailable = errors.New("no item available")
	// ErrFullClaim возвращается, когда IP уже держит заявку в каждом подходящем проекте
	ErrFullClaim = errors.New("client has claimed their maximum number of items")
	// ErrInvalidClaim возвращается, когда пара claim_id и tamper_key никому не выдана
	ErrInvalidClaim = errors.New("invalid claim")
	// ErrNoResourcesAvailable возвращается в режиме обслуживания
	ErrNoResourcesAvailable = errors.New("no resources available")
	// ErrInvalidCredentials возвращается при неверном имени или пароле оператора
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidRange возвращается, если нижняя граница диапазона больше верхней
	ErrInvalidRange = errors.New("invalid sequence range")
)

// UpdateClientError сообщает клиенту его версии и требуемые минимумы
type UpdateClientError struct {
	Version               int `json:"version"`
	ClientVersion         int `json:"client_version"`
	RequiredVersion       int `json:"current_version"`
	RequiredClientVersion int `json:"current_client_version"`
}

// Error возвращает текст ошибки устаревшего клиента
func (e *UpdateClientError) Error() string {
	return fmt.Sprintf("client is outdated: version %d < %d or client version %d < %d",
		e.Version, e.RequiredVersion, e.ClientVersion, e.RequiredClientVersion)
}
