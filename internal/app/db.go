package app

import (
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/tempizhere/gotracker/internal/repository"
)

// DB представляет подключение к базе данных
type DB struct {
	conn *sql.DB
}

// NewDB создаёт новое подключение к базе данных и разворачивает схему
func NewDB(dsn string) (repository.Database, error) {
	if dsn == "" {
		return nil, nil
	}

	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			name VARCHAR(255) PRIMARY KEY,
			min_version INTEGER NOT NULL DEFAULT 0,
			min_client_version INTEGER NOT NULL DEFAULT 0,
			alphabet TEXT NOT NULL,
			url_template TEXT NOT NULL,
			request_delay DOUBLE PRECISION NOT NULL DEFAULT 0.5,
			redirect_codes TEXT NOT NULL,
			no_redirect_codes TEXT NOT NULL,
			unavailable_codes TEXT NOT NULL,
			banned_codes TEXT NOT NULL,
			body_regex TEXT NOT NULL DEFAULT '',
			method VARCHAR(10) NOT NULL DEFAULT 'head',
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			autoqueue BOOLEAN NOT NULL DEFAULT FALSE,
			num_count_per_item BIGINT NOT NULL DEFAULT 50,
			max_num_items BIGINT NOT NULL DEFAULT 1000,
			lower_sequence_num BIGINT NOT NULL DEFAULT 0,
			autorelease_time BIGINT NOT NULL DEFAULT 21600
		)`,
		`CREATE TABLE IF NOT EXISTS items (
			id BIGSERIAL PRIMARY KEY,
			project_id VARCHAR(255) NOT NULL REFERENCES projects(name),
			lower_sequence_num BIGINT NOT NULL,
			upper_sequence_num BIGINT NOT NULL,
			datetime_claimed TIMESTAMP,
			tamper_key VARCHAR(32),
			username VARCHAR(255),
			ip_address VARCHAR(45)
		)`,
		`CREATE INDEX IF NOT EXISTS items_project_username_idx
			ON items (project_id, username)`,
		`CREATE TABLE IF NOT EXISTS results (
			id BIGSERIAL PRIMARY KEY,
			project_id VARCHAR(255) NOT NULL,
			shortcode BYTEA NOT NULL,
			url BYTEA NOT NULL,
			encoding VARCHAR(32) NOT NULL,
			datetime TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS error_reports (
			id BIGSERIAL PRIMARY KEY,
			item_id BIGINT NOT NULL,
			message TEXT NOT NULL,
			datetime TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS blocked_users (
			username VARCHAR(255) PRIMARY KEY,
			note TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			username VARCHAR(255) PRIMARY KEY,
			password_hash BYTEA NOT NULL
		)`,
	}
	for _, stmt := range ddl {
		if _, err := conn.Exec(stmt); err != nil {
			conn.Close()
			return nil, err
		}
	}

	return &DB{conn: conn}, nil
}

// Ping проверяет соединение с базой данных
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// Close закрывает соединение с базой данных
func (db *DB) Close() error {
	if db == nil || db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

// Exec выполняет SQL-запрос с аргументами
func (db *DB) Exec(query string, args ...interface{}) (sql.Result, error) {
	return db.conn.Exec(query, args...)
}

// Query выполняет SQL-запрос и возвращает множество строк
func (db *DB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return db.conn.Query(query, args...)
}

// QueryRow выполняет SQL-запрос и возвращает одну строку
func (db *DB) QueryRow(query string, args ...interface{}) *sql.Row {
	return db.conn.QueryRow(query, args...)
}

// Begin начинает транзакцию
func (db *DB) Begin() (*sql.Tx, error) {
	if db == nil || db.conn == nil {
		return nil, sql.ErrConnDone
	}
	return db.conn.Begin()
}
