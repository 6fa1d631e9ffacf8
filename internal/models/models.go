// Package models содержит типы данных трекера
package models

import "time"

// Project описывает настройки одного сервиса сокращения URL
type Project struct {
	Name             string  `json:"name"`
	MinVersion       int     `json:"min_version"`
	MinClientVersion int     `json:"min_client_version"`
	Alphabet         string  `json:"alphabet"`
	URLTemplate      string  `json:"url_template"`
	RequestDelay     float64 `json:"request_delay"`
	RedirectCodes    []int   `json:"redirect_codes"`
	NoRedirectCodes  []int   `json:"no_redirect_codes"`
	UnavailableCodes []int   `json:"unavailable_codes"`
	BannedCodes      []int   `json:"banned_codes"`
	BodyRegex        string  `json:"body_regex"`
	Method           string  `json:"method"`
	Enabled          bool    `json:"enabled"`
	Autoqueue        bool    `json:"autoqueue"`
	NumCountPerItem  int64   `json:"num_count_per_item"`
	MaxNumItems      int64   `json:"max_num_items"`
	LowerSequenceNum int64   `json:"lower_sequence_num"`
	AutoreleaseTime  int64   `json:"autorelease_time"`
}

// NewProject создаёт проект с настройками по умолчанию
func NewProject(name string) Project {
	return Project{
		Name:             name,
		Alphabet:         "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ",
		URLTemplate:      "http://example.com/{shortcode}",
		RequestDelay:     0.5,
		RedirectCodes:    []int{301, 302, 303, 307},
		NoRedirectCodes:  []int{404},
		UnavailableCodes: []int{200},
		BannedCodes:      []int{420},
		Method:           "head",
		Enabled:          true,
		NumCountPerItem:  50,
		MaxNumItems:      1000,
		AutoreleaseTime:  6 * 3600,
	}
}

// Settings возвращает часть настроек проекта, нужную воркеру для сканирования
func (p Project) Settings() ProjectSettings {
	return ProjectSettings{
		Name:             p.Name,
		MinVersion:       p.MinVersion,
		MinClientVersion: p.MinClientVersion,
		Alphabet:         p.Alphabet,
		URLTemplate:      p.URLTemplate,
		RequestDelay:     p.RequestDelay,
		RedirectCodes:    p.RedirectCodes,
		NoRedirectCodes:  p.NoRedirectCodes,
		UnavailableCodes: p.UnavailableCodes,
		BannedCodes:      p.BannedCodes,
		BodyRegex:        p.BodyRegex,
		Method:           p.Method,
	}
}

// ProjectSettings представляет конфигурацию сканирования, отдаваемую воркеру
type ProjectSettings struct {
	Name             string  `json:"name"`
	MinVersion       int     `json:"min_version"`
	MinClientVersion int     `json:"min_client_version"`
	Alphabet         string  `json:"alphabet"`
	URLTemplate      string  `json:"url_template"`
	RequestDelay     float64 `json:"request_delay"`
	RedirectCodes    []int   `json:"redirect_codes"`
	NoRedirectCodes  []int   `json:"no_redirect_codes"`
	UnavailableCodes []int   `json:"unavailable_codes"`
	BannedCodes      []int   `json:"banned_codes"`
	BodyRegex        string  `json:"body_regex"`
	Method           string  `json:"method"`
}

// Item представляет диапазон последовательных номеров, выдаваемый одному воркеру
type Item struct {
	ID               int64      `json:"id"`
	ProjectID        string     `json:"project"`
	LowerSequenceNum int64      `json:"lower_sequence_num"`
	UpperSequenceNum int64      `json:"upper_sequence_num"`
	DatetimeClaimed  *time.Time `json:"datetime_claimed,omitempty"`
	TamperKey        string     `json:"tamper_key,omitempty"`
	Username         string     `json:"username,omitempty"`
	IPAddress        string     `json:"ip_address,omitempty"`
}

// Claimed сообщает, выдан ли элемент воркеру
func (i Item) Claimed() bool {
	return i.Username != ""
}

// SequenceRange задаёт включительный диапазон номеров при ручной загрузке элементов
type SequenceRange struct {
	Lower int64 `json:"lower"`
	Upper int64 `json:"upper"`
}

// Claim представляет ответ на checkout: элемент плюс конфигурация проекта
type Claim struct {
	ID               int64           `json:"id"`
	Project          ProjectSettings `json:"project"`
	LowerSequenceNum int64           `json:"lower_sequence_num"`
	UpperSequenceNum int64           `json:"upper_sequence_num"`
	TamperKey        string          `json:"tamper_key"`
}

// ResultPayload представляет найденный URL для одного шорткода
type ResultPayload struct {
	URL      string `json:"url"`
	Encoding string `json:"encoding"`
}

// Result представляет раскрытый URL, записанный при checkin
type Result struct {
	ID        int64     `json:"id"`
	ProjectID string    `json:"project"`
	Shortcode string    `json:"shortcode"`
	URL       string    `json:"url"`
	Encoding  string    `json:"encoding"`
	Datetime  time.Time `json:"datetime"`
}

// ItemStat представляет дельту статистики по завершённому элементу
type ItemStat struct {
	Project  string `json:"project"`
	Username string `json:"username"`
	Scanned  int64  `json:"scanned"`
	Found    int64  `json:"found"`
}

// BlockedUser представляет забаненное имя пользователя или IP-адрес
type BlockedUser struct {
	Username string `json:"username"`
	Note     string `json:"note,omitempty"`
}

// ErrorReport представляет диагностическое сообщение воркера по элементу
type ErrorReport struct {
	ID       int64     `json:"id"`
	ItemID   int64     `json:"item_id"`
	Message  string    `json:"message"`
	Datetime time.Time `json:"datetime"`
}

// User представляет учётную запись оператора трекера
type User struct {
	Username string `json:"username"`
	Hash     []byte `json:"-"`
}
