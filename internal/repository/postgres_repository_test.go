package repository

import (
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tempizhere/gotracker/internal/models"
	"go.uber.org/zap"
)

func newMockRepository(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := &PostgresRepository{db: db, logger: zap.NewNop()}
	return repo, mock
}

func projectRow() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"name", "min_version", "min_client_version", "alphabet", "url_template",
		"request_delay", "redirect_codes", "no_redirect_codes", "unavailable_codes",
		"banned_codes", "body_regex", "method", "enabled", "autoqueue",
		"num_count_per_item", "max_num_items", "lower_sequence_num", "autorelease_time",
	}).AddRow(
		"tinyurl", 0, 0, "0123456789", "http://example.com/{shortcode}",
		0.5, "[301,302]", "[404]", "[200]", "[420]", "", "head", true, true,
		int64(50), int64(1000), int64(0), int64(21600),
	)
}

func TestCreateProject(t *testing.T) {
	repo, mock := newMockRepository(t)

	project := models.NewProject("tinyurl")

	mock.ExpectExec("INSERT INTO projects").
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.CreateProject(project))

	// ON CONFLICT DO NOTHING не затрагивает строк при занятом имени
	mock.ExpectExec("INSERT INTO projects").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.CreateProject(project), ErrProjectExists)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProject(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery("SELECT (.+) FROM projects WHERE name = \\$1").
		WithArgs("tinyurl").
		WillReturnRows(projectRow())

	project, err := repo.GetProject("tinyurl")
	require.NoError(t, err)
	assert.Equal(t, "tinyurl", project.Name)
	assert.Equal(t, []int{301, 302}, project.RedirectCodes)
	assert.Equal(t, []int{404}, project.NoRedirectCodes)
	assert.True(t, project.Enabled)

	mock.ExpectQuery("SELECT (.+) FROM projects WHERE name = \\$1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = repo.GetProject("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProjectNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec("UPDATE projects SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateProject(models.NewProject("ghost"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteProjectCascade(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM error_reports").
		WithArgs("tinyurl").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM items WHERE project_id = \\$1").
		WithArgs("tinyurl").
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec("DELETE FROM projects WHERE name = \\$1").
		WithArgs("tinyurl").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	assert.NoError(t, repo.DeleteProject("tinyurl"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimItem(t *testing.T) {
	repo, mock := newMockRepository(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT enabled, min_version, min_client_version FROM projects").
		WithArgs("tinyurl").
		WillReturnRows(sqlmock.NewRows([]string{"enabled", "min_version", "min_client_version"}).
			AddRow(true, 0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
		WithArgs("tinyurl", "10.0.0.1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "lower_sequence_num", "upper_sequence_num"}).
			AddRow(int64(7), int64(0), int64(49)))
	mock.ExpectExec("UPDATE items SET datetime_claimed").
		WithArgs(now, "TAMPERKEY", "worker", "10.0.0.1", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	item, err := repo.ClaimItem("tinyurl", "worker", "10.0.0.1", "TAMPERKEY", 0, 0, now)
	require.NoError(t, err)
	assert.Equal(t, int64(7), item.ID)
	assert.Equal(t, int64(0), item.LowerSequenceNum)
	assert.Equal(t, int64(49), item.UpperSequenceNum)
	assert.Equal(t, "worker", item.Username)
	assert.True(t, item.Claimed())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimItemNoFreeItem(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT enabled, min_version, min_client_version FROM projects").
		WithArgs("tinyurl").
		WillReturnRows(sqlmock.NewRows([]string{"enabled", "min_version", "min_client_version"}).
			AddRow(true, 0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
		WithArgs("tinyurl", "10.0.0.1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.ClaimItem("tinyurl", "worker", "10.0.0.1", "TAMPERKEY", 0, 0, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimItemVersionTooLow(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT enabled, min_version, min_client_version FROM projects").
		WithArgs("tinyurl").
		WillReturnRows(sqlmock.NewRows([]string{"enabled", "min_version", "min_client_version"}).
			AddRow(true, 5, 0))
	mock.ExpectRollback()

	_, err := repo.ClaimItem("tinyurl", "worker", "10.0.0.1", "TAMPERKEY", 4, 0, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAndClaimItem(t *testing.T) {
	repo, mock := newMockRepository(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT enabled, autoqueue, min_version").
		WithArgs("tinyurl").
		WillReturnRows(sqlmock.NewRows([]string{
			"enabled", "autoqueue", "min_version", "min_client_version",
			"num_count_per_item", "max_num_items", "lower_sequence_num",
		}).AddRow(true, true, 0, 0, int64(10), int64(20), int64(40)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM items WHERE project_id = $1 AND ip_address = $2)")).
		WithArgs("tinyurl", "10.0.0.1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM items WHERE project_id = $1")).
		WithArgs("tinyurl").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(5)))
	mock.ExpectQuery("INSERT INTO items").
		WithArgs("tinyurl", int64(40), int64(49), now, "TAMPERKEY", "worker", "10.0.0.1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))
	mock.ExpectExec("UPDATE projects SET lower_sequence_num = \\$1").
		WithArgs(int64(50), "tinyurl").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	item, err := repo.CreateAndClaimItem("tinyurl", "worker", "10.0.0.1", "TAMPERKEY", 0, 0, now)
	require.NoError(t, err)
	assert.Equal(t, int64(42), item.ID)
	assert.Equal(t, int64(40), item.LowerSequenceNum)
	assert.Equal(t, int64(49), item.UpperSequenceNum)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAndClaimItemHeldIP(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT enabled, autoqueue, min_version").
		WithArgs("tinyurl").
		WillReturnRows(sqlmock.NewRows([]string{
			"enabled", "autoqueue", "min_version", "min_client_version",
			"num_count_per_item", "max_num_items", "lower_sequence_num",
		}).AddRow(true, true, 0, 0, int64(10), int64(20), int64(40)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM items WHERE project_id = $1 AND ip_address = $2)")).
		WithArgs("tinyurl", "10.0.0.1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	// IP уже держит заявку в проекте, второй элемент не генерируется
	_, err := repo.CreateAndClaimItem("tinyurl", "worker", "10.0.0.1", "TAMPERKEY", 0, 0, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAndClaimItemAtCapacity(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT enabled, autoqueue, min_version").
		WithArgs("tinyurl").
		WillReturnRows(sqlmock.NewRows([]string{
			"enabled", "autoqueue", "min_version", "min_client_version",
			"num_count_per_item", "max_num_items", "lower_sequence_num",
		}).AddRow(true, true, 0, 0, int64(10), int64(20), int64(200)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM items WHERE project_id = $1 AND ip_address = $2)")).
		WithArgs("tinyurl", "10.0.0.1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM items WHERE project_id = $1")).
		WithArgs("tinyurl").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(20)))
	mock.ExpectRollback()

	_, err := repo.CreateAndClaimItem("tinyurl", "worker", "10.0.0.1", "TAMPERKEY", 0, 0, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAndClaimItemNoAutoqueue(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT enabled, autoqueue, min_version").
		WithArgs("tinyurl").
		WillReturnRows(sqlmock.NewRows([]string{
			"enabled", "autoqueue", "min_version", "min_client_version",
			"num_count_per_item", "max_num_items", "lower_sequence_num",
		}).AddRow(true, false, 0, 0, int64(10), int64(20), int64(0)))
	mock.ExpectRollback()

	_, err := repo.CreateAndClaimItem("tinyurl", "worker", "10.0.0.1", "TAMPERKEY", 0, 0, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckinItem(t *testing.T) {
	repo, mock := newMockRepository(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT project_id, username, ip_address").
		WithArgs(int64(7), "TAMPERKEY").
		WillReturnRows(sqlmock.NewRows([]string{
			"project_id", "username", "ip_address", "lower_sequence_num", "upper_sequence_num",
		}).AddRow("tinyurl", "worker", "10.0.0.1", int64(0), int64(49)))
	mock.ExpectExec("INSERT INTO results").
		WithArgs("tinyurl", []byte("\x00ab"), []byte("http://example.org/\xff"), "ascii", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM items WHERE id = \\$1").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// Шорткод и URL с произвольными байтами уходят в базу как BYTEA
	stat, ip, err := repo.CheckinItem(7, "TAMPERKEY", map[string]models.ResultPayload{
		"\x00ab": {URL: "http://example.org/\xff", Encoding: "ascii"},
	}, now)
	require.NoError(t, err)
	assert.Equal(t, "tinyurl", stat.Project)
	assert.Equal(t, "worker", stat.Username)
	assert.Equal(t, int64(50), stat.Scanned)
	assert.Equal(t, int64(1), stat.Found)
	assert.Equal(t, "10.0.0.1", ip)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckinItemInvalidClaim(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT project_id, username, ip_address").
		WithArgs(int64(7), "WRONG").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, _, err := repo.CheckinItem(7, "WRONG", nil, time.Now())
	assert.ErrorIs(t, err, ErrInvalidClaim)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddErrorReport(t *testing.T) {
	repo, mock := newMockRepository(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(7), "TAMPERKEY").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("INSERT INTO error_reports").
		WithArgs(int64(7), "boom", now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	assert.NoError(t, repo.AddErrorReport(7, "TAMPERKEY", "boom", now))

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(7), "WRONG").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	assert.ErrorIs(t, repo.AddErrorReport(7, "WRONG", "boom", now), ErrInvalidClaim)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseExpired(t *testing.T) {
	repo, mock := newMockRepository(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT name, autorelease_time FROM projects").
		WillReturnRows(sqlmock.NewRows([]string{"name", "autorelease_time"}).
			AddRow("tinyurl", int64(3600)).
			AddRow("bitly", int64(60)))
	mock.ExpectExec("UPDATE items SET datetime_claimed = NULL").
		WithArgs("tinyurl", now.Add(-time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("UPDATE items SET datetime_claimed = NULL").
		WithArgs("bitly", now.Add(-time.Minute)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	released, err := repo.ReleaseExpired(now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), released)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsBlocked(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("worker", "10.0.0.1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	blocked, err := repo.IsBlocked("worker", "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveUserConflict(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec("INSERT INTO users").
		WithArgs("admin", []byte("hash")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.SaveUser("admin", []byte("hash")))

	mock.ExpectExec("INSERT INTO users").
		WithArgs("admin", []byte("hash")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.SaveUser("admin", []byte("hash")), ErrUserExists)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetItemsScansClaimFields(t *testing.T) {
	repo, mock := newMockRepository(t)
	claimed := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM items WHERE project_id = \\$1").
		WithArgs("tinyurl").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "project_id", "lower_sequence_num", "upper_sequence_num",
			"datetime_claimed", "tamper_key", "username", "ip_address",
		}).
			AddRow(int64(1), "tinyurl", int64(0), int64(49), nil, nil, nil, nil).
			AddRow(int64(2), "tinyurl", int64(50), int64(99), claimed, "KEY", "worker", "10.0.0.1"))

	items, err := repo.GetItems("tinyurl")
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.False(t, items[0].Claimed())
	assert.Nil(t, items[0].DatetimeClaimed)

	assert.True(t, items[1].Claimed())
	assert.Equal(t, "worker", items[1].Username)
	assert.Equal(t, "KEY", items[1].TamperKey)
	require.NotNil(t, items[1].DatetimeClaimed)

	assert.NoError(t, mock.ExpectationsWereMet())
}
