package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/prospector-cli/internal/model"
)

// DefaultSQLitePath is used when no database URL is configured.
const DefaultSQLitePath = "mfp.sqlite"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// sqlitePragmas are applied by the driver to every pooled connection.
var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

// sqliteDSN appends the connection pragmas to dsn as _pragma query params.
func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = DefaultSQLitePath
	}
	q := make(url.Values)
	for _, p := range sqlitePragmas {
		q.Add("_pragma", p)
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + q.Encode()
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode so the API can read while an ingestion run writes.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", sqliteDSN(dsn))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: open")
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL DEFAULT '',
	email      TEXT NOT NULL UNIQUE,
	website    TEXT NOT NULL DEFAULT '',
	phone      TEXT NOT NULL DEFAULT '',
	address    TEXT NOT NULL DEFAULT '',
	source     TEXT NOT NULL DEFAULT 'scrape',
	domain     TEXT NOT NULL DEFAULT '',
	score      REAL NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS suppression (
	email      TEXT PRIMARY KEY,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	queries    TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_companies_score ON companies(score DESC, id);
CREATE INDEX IF NOT EXISTS idx_companies_domain ON companies(domain);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

const (
	sqliteInsertLead = `INSERT INTO companies (name, email, website, phone, address, source, domain, score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT(email) DO NOTHING`
	sqliteLeadColumns = `id, name, email, website, phone, address, source, domain, score, created_at`
)

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Upsert(ctx context.Context, lead model.Lead) (bool, error) {
	l, err := prepareLead(lead)
	if err != nil {
		zap.L().Warn("store: lead rejected", zap.Error(err))
		return false, nil
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, sqliteInsertLead, leadArgs(l)...)
	if err != nil {
		return false, absorbWrite(ctx, err, "sqlite: upsert lead", l.Email)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, absorbWrite(ctx, err, "sqlite: upsert lead rows affected", l.Email)
	}
	return n == 1, nil
}

func (s *SQLiteStore) UpsertBatch(ctx context.Context, leads []model.Lead) (int, error) {
	if len(leads) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin batch")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteInsertLead)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare batch insert")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	inserted := 0
	for _, lead := range leads {
		l, err := prepareLead(lead)
		if err != nil {
			zap.L().Warn("store: lead rejected", zap.Error(err))
			continue
		}
		if l.CreatedAt.IsZero() {
			l.CreatedAt = now
		}
		res, err := stmt.ExecContext(ctx, leadArgs(l)...)
		if err != nil {
			if aerr := absorbWrite(ctx, err, "sqlite: batch insert lead", l.Email); aerr != nil {
				return 0, aerr
			}
			continue
		}
		if n, _ := res.RowsAffected(); n == 1 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit batch")
	}
	return inserted, nil
}

func (s *SQLiteStore) ListByScore(ctx context.Context, limit int) ([]model.Lead, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteLeadColumns+` FROM companies ORDER BY score DESC, id ASC LIMIT ?`,
		listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads by score")
	}
	return scanLeads(rows)
}

func (s *SQLiteStore) ListAll(ctx context.Context) ([]model.Lead, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteLeadColumns+` FROM companies ORDER BY id ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	return scanLeads(rows)
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM companies`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count leads")
}

func (s *SQLiteStore) Suppress(ctx context.Context, email string) error {
	e, err := normalizeSuppression(email)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO suppression (email, created_at) VALUES (?, ?) ON CONFLICT(email) DO NOTHING`,
		e, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: suppress %s", e)
}

func (s *SQLiteStore) IsSuppressed(ctx context.Context, email string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM suppression WHERE email = ?`, model.NormalizeEmail(email),
	).Scan(&n)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: is suppressed")
	}
	return n > 0, nil
}

func (s *SQLiteStore) CountSuppressed(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM suppression`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count suppressed")
}

func (s *SQLiteStore) Candidates(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.email FROM companies c
		 WHERE NOT EXISTS (SELECT 1 FROM suppression s WHERE s.email = LOWER(TRIM(c.email)))
		 ORDER BY c.id ASC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list candidates")
	}
	defer rows.Close() //nolint:errcheck

	var emails []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan candidate")
		}
		emails = append(emails, e)
	}
	return emails, eris.Wrap(rows.Err(), "sqlite: list candidates iterate")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, queries []string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	queriesJSON, err := json.Marshal(queries)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal queries")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, queries, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(queriesJSON), string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Queries:   queries,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET result = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), string(result.Status()), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, queries, status, result, created_at, updated_at FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// helpers

// absorbWrite logs a failed lead write and swallows it unless the context
// was canceled.
func absorbWrite(ctx context.Context, err error, msg, email string) error {
	if ctx.Err() != nil {
		return eris.Wrap(ctx.Err(), msg)
	}
	zap.L().Warn(msg, zap.String("email", email), zap.Error(err))
	return nil
}

func leadArgs(l model.Lead) []any {
	return []any{l.Name, l.Email, l.Website, l.Phone, l.Address, string(l.Source), l.Domain, l.Score, l.CreatedAt}
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanLead(row scannable) (model.Lead, error) {
	var l model.Lead
	var source string
	err := row.Scan(&l.ID, &l.Name, &l.Email, &l.Website, &l.Phone, &l.Address, &source, &l.Domain, &l.Score, &l.CreatedAt)
	l.Source = model.Source(source)
	return l, err
}

func scanLeads(rows *sql.Rows) ([]model.Lead, error) {
	defer rows.Close() //nolint:errcheck

	var leads []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		leads = append(leads, l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: scan leads iterate")
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var queriesJSON string
	var resultJSON sql.NullString

	err := row.Scan(&r.ID, &queriesJSON, &r.Status, &resultJSON, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := json.Unmarshal([]byte(queriesJSON), &r.Queries); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal queries")
	}
	if resultJSON.Valid {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), r.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	return &r, nil
}
