package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector-cli/internal/db"
	"github.com/sells-group/prospector-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	pgInsertLead = `INSERT INTO companies (name, email, website, phone, address, source, domain, score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) ON CONFLICT (email) DO NOTHING`
	pgLeadColumns = `id, name, email, website, phone, address, source, domain, score, created_at`
)

// leadColumns are the columns written by a batch insert, in leadArgs order.
var leadColumns = []string{"name", "email", "website", "phone", "address", "source", "domain", "score", "created_at"}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_lead":   pgInsertLead,
	"is_suppressed": `SELECT EXISTS (SELECT 1 FROM suppression WHERE email = $1)`,
	"count_leads":   `SELECT COUNT(*) FROM companies`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	email      TEXT NOT NULL UNIQUE,
	website    TEXT NOT NULL DEFAULT '',
	phone      TEXT NOT NULL DEFAULT '',
	address    TEXT NOT NULL DEFAULT '',
	source     TEXT NOT NULL DEFAULT 'scrape',
	domain     TEXT NOT NULL DEFAULT '',
	score      DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS suppression (
	email      TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	queries    JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_companies_score ON companies(score DESC, id);
CREATE INDEX IF NOT EXISTS idx_companies_domain ON companies(domain);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Upsert(ctx context.Context, lead model.Lead) (bool, error) {
	l, err := prepareLead(lead)
	if err != nil {
		zap.L().Warn("store: lead rejected", zap.Error(err))
		return false, nil
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}

	tag, err := s.pool.Exec(ctx, pgInsertLead, leadArgs(l)...)
	if err != nil {
		return false, absorbWrite(ctx, err, "postgres: upsert lead", l.Email)
	}
	return tag.RowsAffected() == 1, nil
}

// UpsertBatch stages the leads with COPY and inserts them in one statement.
// Within a batch, which of two rows sharing an email wins is unspecified, so
// callers dedupe first.
func (s *PostgresStore) UpsertBatch(ctx context.Context, leads []model.Lead) (int, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(leads))
	for _, lead := range leads {
		l, err := prepareLead(lead)
		if err != nil {
			zap.L().Warn("store: lead rejected", zap.Error(err))
			continue
		}
		if l.CreatedAt.IsZero() {
			l.CreatedAt = now
		}
		rows = append(rows, leadArgs(l))
	}

	n, err := db.InsertIgnore(ctx, s.pool, db.InsertConfig{
		Table:        "companies",
		Columns:      leadColumns,
		ConflictKeys: []string{"email"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: batch insert leads")
	}
	return int(n), nil
}

func (s *PostgresStore) ListByScore(ctx context.Context, limit int) ([]model.Lead, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgLeadColumns+` FROM companies ORDER BY score DESC, id ASC LIMIT $1`,
		listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads by score")
	}
	return collectLeads(rows)
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]model.Lead, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+pgLeadColumns+` FROM companies ORDER BY id ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	return collectLeads(rows)
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM companies`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count leads")
}

func (s *PostgresStore) Suppress(ctx context.Context, email string) error {
	e, err := normalizeSuppression(email)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO suppression (email, created_at) VALUES ($1, $2) ON CONFLICT (email) DO NOTHING`,
		e, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: suppress %s", e)
}

func (s *PostgresStore) IsSuppressed(ctx context.Context, email string) (bool, error) {
	var found bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM suppression WHERE email = $1)`, model.NormalizeEmail(email),
	).Scan(&found)
	return found, eris.Wrap(err, "postgres: is suppressed")
}

func (s *PostgresStore) CountSuppressed(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM suppression`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count suppressed")
}

func (s *PostgresStore) Candidates(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.email FROM companies c
		 WHERE NOT EXISTS (SELECT 1 FROM suppression s WHERE s.email = LOWER(TRIM(c.email)))
		 ORDER BY c.id ASC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list candidates")
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, eris.Wrap(err, "postgres: scan candidate")
		}
		emails = append(emails, e)
	}
	return emails, eris.Wrap(rows.Err(), "postgres: list candidates iterate")
}

func (s *PostgresStore) CreateRun(ctx context.Context, queries []string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	queriesJSON, err := json.Marshal(queries)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal queries")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, queries, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, queriesJSON, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Queries:   queries,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
		resultJSON, string(result.Status()), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, queries, status, result, created_at, updated_at FROM runs ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var status string
		var queriesJSON []byte
		var resultNull *[]byte

		if err := rows.Scan(&r.ID, &queriesJSON, &status, &resultNull, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Status = model.RunStatus(status)
		if err := json.Unmarshal(queriesJSON, &r.Queries); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal queries")
		}
		if resultNull != nil {
			r.Result = &model.RunResult{}
			if err := json.Unmarshal(*resultNull, r.Result); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal result")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func collectLeads(rows pgx.Rows) ([]model.Lead, error) {
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		leads = append(leads, l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: scan leads iterate")
}
