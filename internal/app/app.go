// Package app содержит HTTP-обработчики трекера
package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/tempizhere/gotracker/internal/middleware"
	"github.com/tempizhere/gotracker/internal/models"
	"github.com/tempizhere/gotracker/internal/repository"
	"github.com/tempizhere/gotracker/internal/service"
	"github.com/tempizhere/gotracker/internal/stats"
	"github.com/tempizhere/gotracker/internal/wire"
	"go.uber.org/zap"
)

// CheckoutRequest представляет запрос воркера на выдачу элемента
type CheckoutRequest struct {
	Username      string `json:"username"`
	Version       int    `json:"version"`
	ClientVersion int    `json:"client_version"`
}

// CheckinRequest представляет сдачу результатов по заявке
type CheckinRequest struct {
	ClaimID   int64                           `json:"claim_id"`
	TamperKey string                          `json:"tamper_key"`
	Results   map[string]models.ResultPayload `json:"results"`
}

// ErrorReportRequest представляет диагностическое сообщение воркера
type ErrorReportRequest struct {
	ClaimID   int64  `json:"claim_id"`
	TamperKey string `json:"tamper_key"`
	Message   string `json:"message"`
}

// CredentialsRequest представляет имя и пароль оператора
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse представляет выданный операторский токен
type TokenResponse struct {
	Token string `json:"token"`
}

// BlockRequest представляет запись бана
type BlockRequest struct {
	Username string `json:"username"`
	Note     string `json:"note"`
}

// MaintenanceRequest представляет переключение режима обслуживания
type MaintenanceRequest struct {
	Enabled bool `json:"enabled"`
}

// StatsResponse представляет снимок счётчиков статистики
type StatsResponse struct {
	Global    stats.Totals            `json:"global"`
	ByProject map[string]stats.Totals `json:"by_project"`
	ByUser    map[string]stats.Totals `json:"by_user"`
}

// App содержит хендлеры и зависимости
type App struct {
	svc    *service.Service
	db     repository.Database
	logger *zap.Logger
}

// NewApp создаёт новое приложение
func NewApp(svc *service.Service, db repository.Database, logger *zap.Logger) *App {
	return &App{svc: svc, db: db, logger: logger}
}

// Router собирает маршрутизатор со всеми обработчиками и middleware
func (a *App) Router(trustedSubnet string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.LoggingMiddleware(a.logger))
	r.Use(middleware.GzipMiddleware)

	r.Get("/health", a.HandleHealth)
	r.Get("/ping", a.HandlePing)

	r.Post("/api/checkout", a.HandleCheckout)
	r.Post("/api/checkin", a.HandleCheckin)
	r.Post("/api/error", a.HandleReportError)
	r.Get("/api/project-settings", a.HandleProjectSettings)

	r.Group(func(r chi.Router) {
		r.Use(middleware.TrustedSubnetMiddleware(trustedSubnet, a.logger))
		r.Get("/api/stats", a.HandleStats)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Post("/login", a.HandleLogin)
		r.Post("/register", a.HandleRegister)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(a.svc, a.logger))

			r.Get("/users", a.HandleListUsers)
			r.Put("/users/{username}", a.HandleUpdatePassword)
			r.Delete("/users/{username}", a.HandleDeleteUser)

			r.Get("/projects", a.HandleListProjects)
			r.Post("/projects", a.HandleCreateProject)
			r.Get("/projects/{name}", a.HandleGetProject)
			r.Put("/projects/{name}", a.HandleUpdateProject)
			r.Delete("/projects/{name}", a.HandleDeleteProject)

			r.Get("/projects/{name}/items", a.HandleGetItems)
			r.Post("/projects/{name}/items", a.HandleAddItems)
			r.Post("/projects/{name}/items/release", a.HandleReleaseItems)
			r.Delete("/projects/{name}/items", a.HandleDeleteItems)
			r.Post("/items/{id}/release", a.HandleReleaseItem)
			r.Delete("/items/{id}", a.HandleDeleteItem)

			r.Get("/blocked", a.HandleListBlocked)
			r.Post("/blocked", a.HandleBlockUser)
			r.Delete("/blocked/{username}", a.HandleUnblockUser)

			r.Get("/error-reports", a.HandleErrorReports)
			r.Delete("/error-reports", a.HandleDeleteAllErrorReports)
			r.Delete("/error-reports/{id}", a.HandleDeleteErrorReport)

			r.Post("/maintenance", a.HandleMaintenance)
		})
	})

	return r
}

// HandleCheckout обрабатывает POST-запросы на "/api/checkout"
func (a *App) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	var reqBody CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if reqBody.Username == "" {
		http.Error(w, "Missing username", http.StatusBadRequest)
		return
	}

	ip := middleware.ClientIP(r)
	claim, err := a.svc.Checkout(reqBody.Username, ip, reqBody.Version, reqBody.ClientVersion)
	if err != nil {
		a.writeCheckoutError(w, err)
		return
	}
	a.writeJSONResponse(w, http.StatusOK, claim)
}

// writeCheckoutError переводит ошибки протокола выдачи в HTTP-статусы
func (a *App) writeCheckoutError(w http.ResponseWriter, err error) {
	var updateErr *service.UpdateClientError
	switch {
	case errors.Is(err, service.ErrUserIsBanned):
		http.Error(w, "Banned", http.StatusForbidden)
	case errors.Is(err, service.ErrNoItemAvailable):
		http.Error(w, "No items available", http.StatusNotFound)
	case errors.Is(err, service.ErrFullClaim):
		http.Error(w, "Maximum number of claims held", http.StatusTooManyRequests)
	case errors.As(err, &updateErr):
		a.writeJSONResponse(w, http.StatusPreconditionFailed, updateErr)
	case errors.Is(err, service.ErrNoResourcesAvailable):
		http.Error(w, "Maintenance in progress", http.StatusInsufficientStorage)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// HandleCheckin обрабатывает POST-запросы на "/api/checkin"
func (a *App) HandleCheckin(w http.ResponseWriter, r *http.Request) {
	if !strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		http.Error(w, "Content-Type must be application/json", http.StatusBadRequest)
		return
	}
	var reqBody CheckinRequest
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	results, err := wire.DecodeResults(reqBody.Results)
	if err != nil {
		http.Error(w, "Invalid result encoding", http.StatusBadRequest)
		return
	}

	stat, err := a.svc.Checkin(reqBody.ClaimID, reqBody.TamperKey, results)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidClaim):
			http.Error(w, "Invalid claim", http.StatusConflict)
		case errors.Is(err, service.ErrNoResourcesAvailable):
			http.Error(w, "Maintenance in progress", http.StatusInsufficientStorage)
		default:
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}
	a.writeJSONResponse(w, http.StatusOK, stat)
}

// HandleReportError обрабатывает POST-запросы на "/api/error"
func (a *App) HandleReportError(w http.ResponseWriter, r *http.Request) {
	var reqBody ErrorReportRequest
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if err := a.svc.ReportError(reqBody.ClaimID, reqBody.TamperKey, reqBody.Message); err != nil {
		if errors.Is(err, service.ErrInvalidClaim) {
			http.Error(w, "Invalid claim", http.StatusConflict)
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleProjectSettings обрабатывает GET-запросы на "/api/project-settings"
func (a *App) HandleProjectSettings(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "Missing project name", http.StatusBadRequest)
		return
	}
	settings, err := a.svc.ProjectSettings(name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "Project not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	a.writeJSONResponse(w, http.StatusOK, settings)
}

// HandleHealth обрабатывает GET-запросы на "/health"
func (a *App) HandleHealth(w http.ResponseWriter, r *http.Request) {
	a.writeJSONResponse(w, http.StatusOK, a.svc.HealthStatus())
}

// HandlePing обрабатывает GET-запросы на "/ping"
func (a *App) HandlePing(w http.ResponseWriter, r *http.Request) {
	if a.db == nil {
		http.Error(w, "Database not configured", http.StatusInternalServerError)
		return
	}
	if err := a.db.Ping(); err != nil {
		http.Error(w, "Database connection failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleStats обрабатывает GET-запросы на "/api/stats"
func (a *App) HandleStats(w http.ResponseWriter, r *http.Request) {
	bus := a.svc.Stats()
	a.writeJSONResponse(w, http.StatusOK, StatsResponse{
		Global:    bus.Global(),
		ByProject: bus.ByProject(),
		ByUser:    bus.ByUser(),
	})
}

// HandleLogin обрабатывает POST-запросы на "/api/admin/login"
func (a *App) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var reqBody CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if err := a.svc.Authenticate(reqBody.Username, reqBody.Password); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	token, err := a.svc.GenerateToken(reqBody.Username)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	a.writeJSONResponse(w, http.StatusOK, TokenResponse{Token: token})
}

// HandleRegister обрабатывает POST-запросы на "/api/admin/register".
// Первую учётную запись можно создать без токена, дальше — только оператору.
func (a *App) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var reqBody CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	bootstrap, err := a.svc.BootstrapAllowed()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if !bootstrap {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if _, err := a.svc.ParseToken(token); err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	if err := a.svc.CreateUser(reqBody.Username, reqBody.Password); err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyField):
			http.Error(w, "Missing username or password", http.StatusBadRequest)
		case errors.Is(err, repository.ErrUserExists):
			http.Error(w, "User already exists", http.StatusConflict)
		default:
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// HandleListUsers обрабатывает GET-запросы на "/api/admin/users"
func (a *App) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	usernames, err := a.svc.AllUsernames()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	a.writeJSONResponse(w, http.StatusOK, usernames)
}

// HandleUpdatePassword обрабатывает PUT-запросы на "/api/admin/users/{username}"
func (a *App) HandleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	var reqBody CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if err := a.svc.UpdatePassword(username, reqBody.Password); err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyField):
			http.Error(w, "Missing password", http.StatusBadRequest)
		case errors.Is(err, repository.ErrNotFound):
			http.Error(w, "User not found", http.StatusNotFound)
		default:
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleDeleteUser обрабатывает DELETE-запросы на "/api/admin/users/{username}"
func (a *App) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	a.writeDeleteResult(w, a.svc.DeleteUser(chi.URLParam(r, "username")))
}

// HandleListProjects обрабатывает GET-запросы на "/api/admin/projects"
func (a *App) HandleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := a.svc.ListProjects()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	a.writeJSONResponse(w, http.StatusOK, projects)
}

// HandleCreateProject обрабатывает POST-запросы на "/api/admin/projects"
func (a *App) HandleCreateProject(w http.ResponseWriter, r *http.Request) {
	var reqBody struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	project, err := a.svc.CreateProject(reqBody.Name)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyField):
			http.Error(w, "Missing project name", http.StatusBadRequest)
		case errors.Is(err, repository.ErrProjectExists):
			http.Error(w, "Project already exists", http.StatusConflict)
		default:
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}
	a.writeJSONResponse(w, http.StatusCreated, project)
}

// HandleGetProject обрабатывает GET-запросы на "/api/admin/projects/{name}"
func (a *App) HandleGetProject(w http.ResponseWriter, r *http.Request) {
	project, err := a.svc.GetProject(chi.URLParam(r, "name"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "Project not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	a.writeJSONResponse(w, http.StatusOK, project)
}

// HandleUpdateProject обрабатывает PUT-запросы на "/api/admin/projects/{name}"
func (a *App) HandleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var project models.Project
	if err := json.NewDecoder(r.Body).Decode(&project); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	// Имя проекта задаёт маршрут, не тело
	project.Name = chi.URLParam(r, "name")
	if err := a.svc.UpdateProject(project); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "Project not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleDeleteProject обрабатывает DELETE-запросы на "/api/admin/projects/{name}"
func (a *App) HandleDeleteProject(w http.ResponseWriter, r *http.Request) {
	a.writeDeleteResult(w, a.svc.DeleteProject(chi.URLParam(r, "name")))
}

// HandleGetItems обрабатывает GET-запросы на "/api/admin/projects/{name}/items"
func (a *App) HandleGetItems(w http.ResponseWriter, r *http.Request) {
	items, err := a.svc.GetItems(chi.URLParam(r, "name"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "Project not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	a.writeJSONResponse(w, http.StatusOK, items)
}

// HandleAddItems обрабатывает POST-запросы на "/api/admin/projects/{name}/items"
func (a *App) HandleAddItems(w http.ResponseWriter, r *http.Request) {
	var ranges []models.SequenceRange
	if err := json.NewDecoder(r.Body).Decode(&ranges); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if len(ranges) == 0 {
		http.Error(w, "Empty range list", http.StatusBadRequest)
		return
	}
	if err := a.svc.AddItems(chi.URLParam(r, "name"), ranges); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRange):
			http.Error(w, "Invalid sequence range", http.StatusBadRequest)
		case errors.Is(err, repository.ErrNotFound):
			http.Error(w, "Project not found", http.StatusNotFound)
		default:
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// HandleReleaseItems обрабатывает POST-запросы на "/api/admin/projects/{name}/items/release"
func (a *App) HandleReleaseItems(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.ReleaseItems(chi.URLParam(r, "name")); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleDeleteItems обрабатывает DELETE-запросы на "/api/admin/projects/{name}/items"
func (a *App) HandleDeleteItems(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.DeleteItems(chi.URLParam(r, "name")); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleReleaseItem обрабатывает POST-запросы на "/api/admin/items/{id}/release"
func (a *App) HandleReleaseItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid item ID", http.StatusBadRequest)
		return
	}
	if err := a.svc.ReleaseItem(id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "Item not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleDeleteItem обрабатывает DELETE-запросы на "/api/admin/items/{id}"
func (a *App) HandleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid item ID", http.StatusBadRequest)
		return
	}
	a.writeDeleteResult(w, a.svc.DeleteItem(id))
}

// HandleListBlocked обрабатывает GET-запросы на "/api/admin/blocked"
func (a *App) HandleListBlocked(w http.ResponseWriter, r *http.Request) {
	blocked, err := a.svc.ListBlocked()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	a.writeJSONResponse(w, http.StatusOK, blocked)
}

// HandleBlockUser обрабатывает POST-запросы на "/api/admin/blocked"
func (a *App) HandleBlockUser(w http.ResponseWriter, r *http.Request) {
	var reqBody BlockRequest
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if err := a.svc.BlockUser(reqBody.Username, reqBody.Note); err != nil {
		if errors.Is(err, service.ErrEmptyField) {
			http.Error(w, "Missing username", http.StatusBadRequest)
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// HandleUnblockUser обрабатывает DELETE-запросы на "/api/admin/blocked/{username}"
func (a *App) HandleUnblockUser(w http.ResponseWriter, r *http.Request) {
	a.writeDeleteResult(w, a.svc.UnblockUser(chi.URLParam(r, "username")))
}

// HandleErrorReports обрабатывает GET-запросы на "/api/admin/error-reports"
func (a *App) HandleErrorReports(w http.ResponseWriter, r *http.Request) {
	reports, err := a.svc.ErrorReports()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	a.writeJSONResponse(w, http.StatusOK, reports)
}

// HandleDeleteErrorReport обрабатывает DELETE-запросы на "/api/admin/error-reports/{id}"
func (a *App) HandleDeleteErrorReport(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid report ID", http.StatusBadRequest)
		return
	}
	a.writeDeleteResult(w, a.svc.DeleteErrorReport(id))
}

// HandleDeleteAllErrorReports обрабатывает DELETE-запросы на "/api/admin/error-reports"
func (a *App) HandleDeleteAllErrorReports(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.DeleteAllErrorReports(); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMaintenance обрабатывает POST-запросы на "/api/admin/maintenance"
func (a *App) HandleMaintenance(w http.ResponseWriter, r *http.Request) {
	var reqBody MaintenanceRequest
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	a.svc.SetMaintenance(reqBody.Enabled)
	w.WriteHeader(http.StatusOK)
}

// writeDeleteResult пишет ответ для операций удаления
func (a *App) writeDeleteResult(w http.ResponseWriter, err error) {
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeJSONResponse сериализует тело до записи заголовков, чтобы ошибка
// кодирования могла стать статусом 500
func (a *App) writeJSONResponse(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Failed to encode JSON", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		a.logger.Error("Failed to write response", zap.Error(err))
	}
}
