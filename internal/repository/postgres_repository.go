package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/tempizhere/gotracker/internal/models"
	"go.uber.org/zap"
)

// PostgresRepository реализует интерфейс Repository с использованием PostgreSQL
type PostgresRepository struct {
	db     Database
	logger *zap.Logger
}

// NewPostgresRepository создаёт новый экземпляр PostgresRepository
func NewPostgresRepository(db Database, logger *zap.Logger) (*PostgresRepository, error) {
	if db == nil {
		return nil, nil
	}
	return &PostgresRepository{
		db:     db,
		logger: logger,
	}, nil
}

const projectColumns = `name, min_version, min_client_version, alphabet, url_template,
	request_delay, redirect_codes, no_redirect_codes, unavailable_codes, banned_codes,
	body_regex, method, enabled, autoqueue, num_count_per_item, max_num_items,
	lower_sequence_num, autorelease_time`

// rowScanner покрывает sql.Row и sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// marshalCodes сериализует список кодов статуса в JSON-текст
func marshalCodes(codes []int) string {
	data, _ := json.Marshal(codes)
	return string(data)
}

// scanProject читает строку проекта, разбирая JSON-списки кодов
func scanProject(row rowScanner) (models.Project, error) {
	var p models.Project
	var redirect, noRedirect, unavailable, banned string
	err := row.Scan(&p.Name, &p.MinVersion, &p.MinClientVersion, &p.Alphabet,
		&p.URLTemplate, &p.RequestDelay, &redirect, &noRedirect, &unavailable,
		&banned, &p.BodyRegex, &p.Method, &p.Enabled, &p.Autoqueue,
		&p.NumCountPerItem, &p.MaxNumItems, &p.LowerSequenceNum, &p.AutoreleaseTime)
	if err != nil {
		return models.Project{}, err
	}
	for _, pair := range []struct {
		raw  string
		dest *[]int
	}{
		{redirect, &p.RedirectCodes},
		{noRedirect, &p.NoRedirectCodes},
		{unavailable, &p.UnavailableCodes},
		{banned, &p.BannedCodes},
	} {
		if pair.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(pair.raw), pair.dest); err != nil {
			return models.Project{}, err
		}
	}
	return p, nil
}

// scanItem читает строку элемента с nullable-полями заявки
func scanItem(row rowScanner) (models.Item, error) {
	var item models.Item
	var claimed sql.NullTime
	var tamperKey, username, ipAddress sql.NullString
	err := row.Scan(&item.ID, &item.ProjectID, &item.LowerSequenceNum,
		&item.UpperSequenceNum, &claimed, &tamperKey, &username, &ipAddress)
	if err != nil {
		return models.Item{}, err
	}
	if claimed.Valid {
		t := claimed.Time
		item.DatetimeClaimed = &t
	}
	item.TamperKey = tamperKey.String
	item.Username = username.String
	item.IPAddress = ipAddress.String
	return item, nil
}

// CreateProject сохраняет новый проект
func (r *PostgresRepository) CreateProject(p models.Project) error {
	res, err := r.db.Exec(`INSERT INTO projects (`+projectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (name) DO NOTHING`,
		p.Name, p.MinVersion, p.MinClientVersion, p.Alphabet, p.URLTemplate,
		p.RequestDelay, marshalCodes(p.RedirectCodes), marshalCodes(p.NoRedirectCodes),
		marshalCodes(p.UnavailableCodes), marshalCodes(p.BannedCodes), p.BodyRegex,
		p.Method, p.Enabled, p.Autoqueue, p.NumCountPerItem, p.MaxNumItems,
		p.LowerSequenceNum, p.AutoreleaseTime)
	if err != nil {
		r.logger.Error("Failed to create project", zap.String("project", p.Name), zap.Error(err))
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrProjectExists
	}
	return nil
}

// GetProject возвращает проект по имени
func (r *PostgresRepository) GetProject(name string) (models.Project, error) {
	row := r.db.QueryRow(`SELECT `+projectColumns+` FROM projects WHERE name = $1`, name)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Project{}, ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get project", zap.String("project", name), zap.Error(err))
		return models.Project{}, err
	}
	return p, nil
}

// UpdateProject перезаписывает настройки проекта
func (r *PostgresRepository) UpdateProject(p models.Project) error {
	res, err := r.db.Exec(`UPDATE projects SET min_version = $2, min_client_version = $3,
		alphabet = $4, url_template = $5, request_delay = $6, redirect_codes = $7,
		no_redirect_codes = $8, unavailable_codes = $9, banned_codes = $10,
		body_regex = $11, method = $12, enabled = $13, autoqueue = $14,
		num_count_per_item = $15, max_num_items = $16, lower_sequence_num = $17,
		autorelease_time = $18
		WHERE name = $1`,
		p.Name, p.MinVersion, p.MinClientVersion, p.Alphabet, p.URLTemplate,
		p.RequestDelay, marshalCodes(p.RedirectCodes), marshalCodes(p.NoRedirectCodes),
		marshalCodes(p.UnavailableCodes), marshalCodes(p.BannedCodes), p.BodyRegex,
		p.Method, p.Enabled, p.Autoqueue, p.NumCountPerItem, p.MaxNumItems,
		p.LowerSequenceNum, p.AutoreleaseTime)
	if err != nil {
		r.logger.Error("Failed to update project", zap.String("project", p.Name), zap.Error(err))
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteProject удаляет проект вместе с его элементами и осиротевшими отчётами об ошибках
func (r *PostgresRepository) DeleteProject(name string) error {
	tx, err := r.db.Begin()
	if err != nil {
		r.logger.Error("Failed to start transaction", zap.Error(err))
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM error_reports
		WHERE item_id IN (SELECT id FROM items WHERE project_id = $1)`, name); err != nil {
		r.logger.Error("Failed to delete project error reports", zap.String("project", name), zap.Error(err))
		return err
	}
	if _, err := tx.Exec(`DELETE FROM items WHERE project_id = $1`, name); err != nil {
		r.logger.Error("Failed to delete project items", zap.String("project", name), zap.Error(err))
		return err
	}
	res, err := tx.Exec(`DELETE FROM projects WHERE name = $1`, name)
	if err != nil {
		r.logger.Error("Failed to delete project", zap.String("project", name), zap.Error(err))
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// ListProjects возвращает все проекты
func (r *PostgresRepository) ListProjects() ([]models.Project, error) {
	rows, err := r.db.Query(`SELECT ` + projectColumns + ` FROM projects ORDER BY name`)
	if err != nil {
		r.logger.Error("Failed to list projects", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// AddItems загружает диапазоны, подготовленные оператором
func (r *PostgresRepository) AddItems(project string, ranges []models.SequenceRange) error {
	tx, err := r.db.Begin()
	if err != nil {
		r.logger.Error("Failed to start transaction", zap.Error(err))
		return err
	}
	defer tx.Rollback()

	for _, sr := range ranges {
		if _, err := tx.Exec(`INSERT INTO items (project_id, lower_sequence_num, upper_sequence_num)
			VALUES ($1, $2, $3)`, project, sr.Lower, sr.Upper); err != nil {
			r.logger.Error("Failed to add item", zap.String("project", project), zap.Error(err))
			return err
		}
	}
	return tx.Commit()
}

const itemColumns = `id, project_id, lower_sequence_num, upper_sequence_num,
	datetime_claimed, tamper_key, username, ip_address`

// GetItems возвращает элементы проекта
func (r *PostgresRepository) GetItems(project string) ([]models.Item, error) {
	return r.queryItems(`SELECT `+itemColumns+` FROM items WHERE project_id = $1 ORDER BY id`, project)
}

// AllItems возвращает все элементы для пересчёта кэша допуска
func (r *PostgresRepository) AllItems() ([]models.Item, error) {
	return r.queryItems(`SELECT ` + itemColumns + ` FROM items ORDER BY id`)
}

func (r *PostgresRepository) queryItems(query string, args ...interface{}) ([]models.Item, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		r.logger.Error("Failed to query items", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// DeleteItem удаляет один элемент
func (r *PostgresRepository) DeleteItem(id int64) error {
	_, err := r.db.Exec(`DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete item", zap.Int64("item_id", id), zap.Error(err))
	}
	return err
}

// DeleteItems удаляет все элементы проекта
func (r *PostgresRepository) DeleteItems(project string) error {
	_, err := r.db.Exec(`DELETE FROM items WHERE project_id = $1`, project)
	if err != nil {
		r.logger.Error("Failed to delete items", zap.String("project", project), zap.Error(err))
	}
	return err
}

// ReleaseItem сбрасывает заявку на одном элементе
func (r *PostgresRepository) ReleaseItem(id int64) error {
	_, err := r.db.Exec(`UPDATE items SET datetime_claimed = NULL, username = NULL,
		ip_address = NULL WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to release item", zap.Int64("item_id", id), zap.Error(err))
	}
	return err
}

// ReleaseItems сбрасывает заявки на всех элементах проекта
func (r *PostgresRepository) ReleaseItems(project string) error {
	_, err := r.db.Exec(`UPDATE items SET datetime_claimed = NULL, username = NULL,
		ip_address = NULL WHERE project_id = $1`, project)
	if err != nil {
		r.logger.Error("Failed to release items", zap.String("project", project), zap.Error(err))
	}
	return err
}

// ReleaseExpired сбрасывает заявки, чей срок аренды истёк.
// Срок аренды задаётся per-project, поэтому проекты обходятся по одному.
func (r *PostgresRepository) ReleaseExpired(now time.Time) (int64, error) {
	rows, err := r.db.Query(`SELECT name, autorelease_time FROM projects
		WHERE enabled = TRUE AND autorelease_time > 0`)
	if err != nil {
		r.logger.Error("Failed to query autorelease projects", zap.Error(err))
		return 0, err
	}
	defer rows.Close()

	type autorelease struct {
		name    string
		seconds int64
	}
	var projects []autorelease
	for rows.Next() {
		var a autorelease
		if err := rows.Scan(&a.name, &a.seconds); err != nil {
			return 0, err
		}
		projects = append(projects, a)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	var released int64
	for _, a := range projects {
		cutoff := now.Add(-time.Duration(a.seconds) * time.Second)
		res, err := r.db.Exec(`UPDATE items SET datetime_claimed = NULL, username = NULL,
			ip_address = NULL WHERE project_id = $1 AND datetime_claimed <= $2`, a.name, cutoff)
		if err != nil {
			r.logger.Error("Failed to release expired items", zap.String("project", a.name), zap.Error(err))
			return released, err
		}
		if n, err := res.RowsAffected(); err == nil {
			released += n
		}
	}
	return released, nil
}

// ClaimItem выдаёт существующий свободный элемент проекта в одной транзакции
func (r *PostgresRepository) ClaimItem(project, username, ip, tamperKey string, version, clientVersion int, now time.Time) (models.Item, error) {
	tx, err := r.db.Begin()
	if err != nil {
		r.logger.Error("Failed to start transaction", zap.Error(err))
		return models.Item{}, err
	}
	defer tx.Rollback()

	var enabled bool
	var minVersion, minClientVersion int
	err = tx.QueryRow(`SELECT enabled, min_version, min_client_version FROM projects
		WHERE name = $1`, project).Scan(&enabled, &minVersion, &minClientVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Item{}, ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to check project", zap.String("project", project), zap.Error(err))
		return models.Item{}, err
	}
	if !enabled || version < minVersion || clientVersion < minClientVersion {
		return models.Item{}, ErrNotFound
	}

	var item models.Item
	err = tx.QueryRow(`SELECT id, lower_sequence_num, upper_sequence_num FROM items
		WHERE project_id = $1 AND username IS NULL
		AND NOT EXISTS (SELECT 1 FROM items c WHERE c.project_id = $1 AND c.ip_address = $2)
		ORDER BY id LIMIT 1 FOR UPDATE SKIP LOCKED`, project, ip).
		Scan(&item.ID, &item.LowerSequenceNum, &item.UpperSequenceNum)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Item{}, ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to find unclaimed item", zap.String("project", project), zap.Error(err))
		return models.Item{}, err
	}

	if _, err := tx.Exec(`UPDATE items SET datetime_claimed = $1, tamper_key = $2,
		username = $3, ip_address = $4 WHERE id = $5`,
		now, tamperKey, username, ip, item.ID); err != nil {
		r.logger.Error("Failed to claim item", zap.Int64("item_id", item.ID), zap.Error(err))
		return models.Item{}, err
	}
	if err := tx.Commit(); err != nil {
		r.logger.Error("Failed to commit claim", zap.Int64("item_id", item.ID), zap.Error(err))
		return models.Item{}, err
	}

	item.ProjectID = project
	item.DatetimeClaimed = &now
	item.TamperKey = tamperKey
	item.Username = username
	item.IPAddress = ip
	return item, nil
}

// CreateAndClaimItem создаёт элемент продвижением курсора проекта и сразу выдаёт его
func (r *PostgresRepository) CreateAndClaimItem(project, username, ip, tamperKey string, version, clientVersion int, now time.Time) (models.Item, error) {
	tx, err := r.db.Begin()
	if err != nil {
		r.logger.Error("Failed to start transaction", zap.Error(err))
		return models.Item{}, err
	}
	defer tx.Rollback()

	var enabled, autoqueue bool
	var minVersion, minClientVersion int
	var countPerItem, maxNumItems, lower int64
	err = tx.QueryRow(`SELECT enabled, autoqueue, min_version, min_client_version,
		num_count_per_item, max_num_items, lower_sequence_num FROM projects
		WHERE name = $1 FOR UPDATE`, project).
		Scan(&enabled, &autoqueue, &minVersion, &minClientVersion, &countPerItem, &maxNumItems, &lower)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Item{}, ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to lock project", zap.String("project", project), zap.Error(err))
		return models.Item{}, err
	}
	if !enabled || !autoqueue || version < minVersion || clientVersion < minClientVersion {
		return models.Item{}, ErrNotFound
	}

	// Кэш мог устареть: IP уже может держать заявку в этом проекте
	var held bool
	if err := tx.QueryRow(`SELECT EXISTS (SELECT 1 FROM items
		WHERE project_id = $1 AND ip_address = $2)`, project, ip).Scan(&held); err != nil {
		r.logger.Error("Failed to check held claims", zap.String("project", project), zap.Error(err))
		return models.Item{}, err
	}
	if held {
		return models.Item{}, ErrNotFound
	}

	var numItems int64
	if err := tx.QueryRow(`SELECT COUNT(*) FROM items WHERE project_id = $1`, project).Scan(&numItems); err != nil {
		r.logger.Error("Failed to count items", zap.String("project", project), zap.Error(err))
		return models.Item{}, err
	}
	if numItems >= maxNumItems {
		return models.Item{}, ErrNotFound
	}

	upper := lower + countPerItem - 1
	item := models.Item{
		ProjectID:        project,
		LowerSequenceNum: lower,
		UpperSequenceNum: upper,
		DatetimeClaimed:  &now,
		TamperKey:        tamperKey,
		Username:         username,
		IPAddress:        ip,
	}
	err = tx.QueryRow(`INSERT INTO items (project_id, lower_sequence_num, upper_sequence_num,
		datetime_claimed, tamper_key, username, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		project, lower, upper, now, tamperKey, username, ip).Scan(&item.ID)
	if err != nil {
		r.logger.Error("Failed to insert item", zap.String("project", project), zap.Error(err))
		return models.Item{}, err
	}

	if _, err := tx.Exec(`UPDATE projects SET lower_sequence_num = $1 WHERE name = $2`,
		upper+1, project); err != nil {
		r.logger.Error("Failed to advance project cursor", zap.String("project", project), zap.Error(err))
		return models.Item{}, err
	}
	if err := tx.Commit(); err != nil {
		r.logger.Error("Failed to commit generated item", zap.String("project", project), zap.Error(err))
		return models.Item{}, err
	}
	return item, nil
}

// CheckinItem проверяет tamper_key, записывает результаты и удаляет элемент в одной транзакции
func (r *PostgresRepository) CheckinItem(id int64, tamperKey string, results map[string]models.ResultPayload, now time.Time) (models.ItemStat, string, error) {
	tx, err := r.db.Begin()
	if err != nil {
		r.logger.Error("Failed to start transaction", zap.Error(err))
		return models.ItemStat{}, "", err
	}
	defer tx.Rollback()

	var stat models.ItemStat
	var ip sql.NullString
	var lower, upper int64
	err = tx.QueryRow(`SELECT project_id, username, ip_address, lower_sequence_num, upper_sequence_num
		FROM items WHERE id = $1 AND tamper_key = $2 AND username IS NOT NULL FOR UPDATE`,
		id, tamperKey).Scan(&stat.Project, &stat.Username, &ip, &lower, &upper)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ItemStat{}, "", ErrInvalidClaim
	}
	if err != nil {
		r.logger.Error("Failed to look up claim", zap.Int64("item_id", id), zap.Error(err))
		return models.ItemStat{}, "", err
	}

	for shortcode, payload := range results {
		// Шорткоды и URL после декодирования могут не быть валидным UTF-8,
		// поэтому колонки BYTEA и значения передаются как байты
		if _, err := tx.Exec(`INSERT INTO results (project_id, shortcode, url, encoding, datetime)
			VALUES ($1, $2, $3, $4, $5)`,
			stat.Project, []byte(shortcode), []byte(payload.URL), payload.Encoding, now); err != nil {
			r.logger.Error("Failed to insert result", zap.Int64("item_id", id), zap.Error(err))
			return models.ItemStat{}, "", err
		}
	}

	if _, err := tx.Exec(`DELETE FROM items WHERE id = $1`, id); err != nil {
		r.logger.Error("Failed to delete checked-in item", zap.Int64("item_id", id), zap.Error(err))
		return models.ItemStat{}, "", err
	}
	if err := tx.Commit(); err != nil {
		r.logger.Error("Failed to commit checkin", zap.Int64("item_id", id), zap.Error(err))
		return models.ItemStat{}, "", err
	}

	stat.Scanned = upper - lower + 1
	stat.Found = int64(len(results))
	return stat, ip.String, nil
}

// AddErrorReport проверяет tamper_key и сохраняет отчёт об ошибке, не меняя состояние заявки
func (r *PostgresRepository) AddErrorReport(id int64, tamperKey, message string, now time.Time) error {
	var exists bool
	err := r.db.QueryRow(`SELECT EXISTS (SELECT 1 FROM items
		WHERE id = $1 AND tamper_key = $2 AND username IS NOT NULL)`, id, tamperKey).Scan(&exists)
	if err != nil {
		r.logger.Error("Failed to verify claim for error report", zap.Int64("item_id", id), zap.Error(err))
		return err
	}
	if !exists {
		return ErrInvalidClaim
	}

	_, err = r.db.Exec(`INSERT INTO error_reports (item_id, message, datetime)
		VALUES ($1, $2, $3)`, id, message, now)
	if err != nil {
		r.logger.Error("Failed to insert error report", zap.Int64("item_id", id), zap.Error(err))
	}
	return err
}

// ErrorReports возвращает все отчёты об ошибках
func (r *PostgresRepository) ErrorReports() ([]models.ErrorReport, error) {
	rows, err := r.db.Query(`SELECT id, item_id, message, datetime FROM error_reports ORDER BY id`)
	if err != nil {
		r.logger.Error("Failed to list error reports", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var reports []models.ErrorReport
	for rows.Next() {
		var report models.ErrorReport
		if err := rows.Scan(&report.ID, &report.ItemID, &report.Message, &report.Datetime); err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// DeleteErrorReport удаляет один отчёт
func (r *PostgresRepository) DeleteErrorReport(id int64) error {
	_, err := r.db.Exec(`DELETE FROM error_reports WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete error report", zap.Int64("report_id", id), zap.Error(err))
	}
	return err
}

// DeleteAllErrorReports удаляет все отчёты
func (r *PostgresRepository) DeleteAllErrorReports() error {
	_, err := r.db.Exec(`DELETE FROM error_reports`)
	if err != nil {
		r.logger.Error("Failed to delete error reports", zap.Error(err))
	}
	return err
}

// DeleteOrphanedErrorReports удаляет отчёты, чьи элементы уже не существуют
func (r *PostgresRepository) DeleteOrphanedErrorReports() (int64, error) {
	res, err := r.db.Exec(`DELETE FROM error_reports
		WHERE NOT EXISTS (SELECT 1 FROM items WHERE items.id = error_reports.item_id)`)
	if err != nil {
		r.logger.Error("Failed to delete orphaned error reports", zap.Error(err))
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// BlockUser добавляет имя пользователя или IP в список забаненных
func (r *PostgresRepository) BlockUser(username, note string) error {
	_, err := r.db.Exec(`INSERT INTO blocked_users (username, note) VALUES ($1, $2)
		ON CONFLICT (username) DO UPDATE SET note = EXCLUDED.note`, username, note)
	if err != nil {
		r.logger.Error("Failed to block user", zap.String("username", username), zap.Error(err))
	}
	return err
}

// UnblockUser убирает запись из списка забаненных
func (r *PostgresRepository) UnblockUser(username string) error {
	_, err := r.db.Exec(`DELETE FROM blocked_users WHERE username = $1`, username)
	if err != nil {
		r.logger.Error("Failed to unblock user", zap.String("username", username), zap.Error(err))
	}
	return err
}

// IsBlocked проверяет, забанено ли имя пользователя или IP
func (r *PostgresRepository) IsBlocked(username, ip string) (bool, error) {
	var blocked bool
	err := r.db.QueryRow(`SELECT EXISTS (SELECT 1 FROM blocked_users
		WHERE username = $1 OR username = $2)`, username, ip).Scan(&blocked)
	if err != nil {
		r.logger.Error("Failed to check block list", zap.String("username", username), zap.Error(err))
		return false, err
	}
	return blocked, nil
}

// ListBlocked возвращает список забаненных
func (r *PostgresRepository) ListBlocked() ([]models.BlockedUser, error) {
	rows, err := r.db.Query(`SELECT username, COALESCE(note, '') FROM blocked_users ORDER BY username`)
	if err != nil {
		r.logger.Error("Failed to list blocked users", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var blocked []models.BlockedUser
	for rows.Next() {
		var b models.BlockedUser
		if err := rows.Scan(&b.Username, &b.Note); err != nil {
			return nil, err
		}
		blocked = append(blocked, b)
	}
	return blocked, rows.Err()
}

// SaveUser сохраняет учётную запись оператора
func (r *PostgresRepository) SaveUser(username string, hash []byte) error {
	res, err := r.db.Exec(`INSERT INTO users (username, password_hash) VALUES ($1, $2)
		ON CONFLICT (username) DO NOTHING`, username, hash)
	if err != nil {
		r.logger.Error("Failed to save user", zap.String("username", username), zap.Error(err))
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserExists
	}
	return nil
}

// GetUser возвращает учётную запись оператора
func (r *PostgresRepository) GetUser(username string) (models.User, error) {
	var user models.User
	err := r.db.QueryRow(`SELECT username, password_hash FROM users WHERE username = $1`,
		username).Scan(&user.Username, &user.Hash)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get user", zap.String("username", username), zap.Error(err))
		return models.User{}, err
	}
	return user, nil
}

// UpdateUserPassword обновляет хэш пароля оператора
func (r *PostgresRepository) UpdateUserPassword(username string, hash []byte) error {
	res, err := r.db.Exec(`UPDATE users SET password_hash = $2 WHERE username = $1`, username, hash)
	if err != nil {
		r.logger.Error("Failed to update password", zap.String("username", username), zap.Error(err))
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteUser удаляет учётную запись оператора
func (r *PostgresRepository) DeleteUser(username string) error {
	_, err := r.db.Exec(`DELETE FROM users WHERE username = $1`, username)
	if err != nil {
		r.logger.Error("Failed to delete user", zap.String("username", username), zap.Error(err))
	}
	return err
}

// AllUsernames возвращает имена всех операторов
func (r *PostgresRepository) AllUsernames() ([]string, error) {
	rows, err := r.db.Query(`SELECT username FROM users ORDER BY username`)
	if err != nil {
		r.logger.Error("Failed to list users", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var usernames []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		usernames = append(usernames, name)
	}
	return usernames, rows.Err()
}

// HasUsers сообщает, существует ли хотя бы одна учётная запись
func (r *PostgresRepository) HasUsers() (bool, error) {
	var exists bool
	err := r.db.QueryRow(`SELECT EXISTS (SELECT 1 FROM users)`).Scan(&exists)
	if err != nil {
		r.logger.Error("Failed to check users", zap.Error(err))
		return false, err
	}
	return exists, nil
}
