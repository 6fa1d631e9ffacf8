// Package proto содержит определения типов для gRPC сервиса трекера
package proto

// ProjectSettings представляет конфигурацию сканирования проекта
type ProjectSettings struct {
	Name             string  `json:"name"`
	MinVersion       int32   `json:"min_version"`
	MinClientVersion int32   `json:"min_client_version"`
	Alphabet         string  `json:"alphabet"`
	URLTemplate      string  `json:"url_template"`
	RequestDelay     float64 `json:"request_delay"`
	RedirectCodes    []int32 `json:"redirect_codes"`
	NoRedirectCodes  []int32 `json:"no_redirect_codes"`
	UnavailableCodes []int32 `json:"unavailable_codes"`
	BannedCodes      []int32 `json:"banned_codes"`
	BodyRegex        string  `json:"body_regex"`
	Method           string  `json:"method"`
}

// CheckoutRequest представляет запрос воркера на выдачу элемента
type CheckoutRequest struct {
	Username      string `json:"username"`
	Version       int32  `json:"version"`
	ClientVersion int32  `json:"client_version"`
}

// CheckoutResponse представляет выданную заявку
type CheckoutResponse struct {
	ClaimID          int64            `json:"claim_id"`
	Project          *ProjectSettings `json:"project"`
	LowerSequenceNum int64            `json:"lower_sequence_num"`
	UpperSequenceNum int64            `json:"upper_sequence_num"`
	TamperKey        string           `json:"tamper_key"`
}

// ResultEntry представляет один найденный URL в транспортной кодировке
type ResultEntry struct {
	Shortcode string `json:"shortcode"`
	URL       string `json:"url"`
	Encoding  string `json:"encoding"`
}

// CheckinRequest представляет сдачу результатов по заявке
type CheckinRequest struct {
	ClaimID   int64          `json:"claim_id"`
	TamperKey string         `json:"tamper_key"`
	Results   []*ResultEntry `json:"results"`
}

// CheckinResponse представляет дельту статистики по принятому элементу
type CheckinResponse struct {
	Project  string `json:"project"`
	Username string `json:"username"`
	Scanned  int64  `json:"scanned"`
	Found    int64  `json:"found"`
}

// ReportErrorRequest представляет диагностическое сообщение воркера
type ReportErrorRequest struct {
	ClaimID   int64  `json:"claim_id"`
	TamperKey string `json:"tamper_key"`
	Message   string `json:"message"`
}

// ReportErrorResponse представляет подтверждение приёма отчёта
type ReportErrorResponse struct{}

// GetProjectSettingsRequest представляет запрос конфигурации проекта
type GetProjectSettingsRequest struct {
	Name string `json:"name"`
}

// GetProjectSettingsResponse представляет ответ с конфигурацией проекта
type GetProjectSettingsResponse struct {
	Settings *ProjectSettings `json:"settings"`
}

// PingRequest представляет запрос проверки состояния
type PingRequest struct{}

// PingResponse представляет ответ проверки состояния
type PingResponse struct {
	DatabaseAvailable bool `json:"database_available"`
}

// GetStatsRequest представляет запрос статистики
type GetStatsRequest struct{}

// ProjectStats представляет счётчики одного проекта
type ProjectStats struct {
	Project string `json:"project"`
	Found   int64  `json:"found"`
	Scanned int64  `json:"scanned"`
}

// GetStatsResponse представляет ответ со статистикой
type GetStatsResponse struct {
	FoundCount   int64           `json:"found_count"`
	ScannedCount int64           `json:"scanned_count"`
	Projects     []*ProjectStats `json:"projects"`
}
