package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/db"
	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/shard"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
	now  func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
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

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, now: time.Now}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id                   BIGSERIAL PRIMARY KEY,
	company_name         TEXT NOT NULL,
	input_address        TEXT NOT NULL DEFAULT '',
	homepage             TEXT NOT NULL DEFAULT '',
	phone                TEXT NOT NULL DEFAULT '',
	found_address        TEXT NOT NULL DEFAULT '',
	rep_name             TEXT NOT NULL DEFAULT '',
	description          TEXT NOT NULL DEFAULT '',
	listing              TEXT NOT NULL DEFAULT '',
	capital              TEXT NOT NULL DEFAULT '',
	revenue              TEXT NOT NULL DEFAULT '',
	profit               TEXT NOT NULL DEFAULT '',
	fiscal_month         TEXT NOT NULL DEFAULT '',
	founded_year         TEXT NOT NULL DEFAULT '',
	provenance           JSONB NOT NULL DEFAULT '{}'::jsonb,
	homepage_score       INTEGER NOT NULL DEFAULT 0,
	provisional_homepage TEXT NOT NULL DEFAULT '',
	review_reason        TEXT NOT NULL DEFAULT '',
	status               TEXT NOT NULL DEFAULT 'pending'
		CHECK (status IN ('pending','running','done','review','no_homepage','error')),
	error_code           TEXT NOT NULL DEFAULT '',
	claimed_by           TEXT,
	claimed_at           TIMESTAMPTZ,
	last_checked_at      TIMESTAMPTZ,
	lock_mismatch_count  INTEGER NOT NULL DEFAULT 0,
	attempts             INTEGER NOT NULL DEFAULT 0,
	CHECK (status <> 'running' OR (claimed_by IS NOT NULL AND claimed_at IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS idx_companies_status_id ON companies(status, id);
CREATE INDEX IF NOT EXISTS idx_companies_running_claimed_at ON companies(claimed_at) WHERE status = 'running';

CREATE TABLE IF NOT EXISTS url_flags (
	normalized_value TEXT PRIMARY KEY,
	scope            TEXT NOT NULL DEFAULT 'url',
	is_official      BOOLEAN NOT NULL DEFAULT false,
	host             TEXT NOT NULL DEFAULT '',
	judge_source     TEXT NOT NULL DEFAULT '',
	reason           TEXT NOT NULL DEFAULT '',
	confidence       DOUBLE PRECISION NOT NULL DEFAULT 0,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_url_flags_host ON url_flags(host);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// ClaimNext leases one row. FOR UPDATE SKIP LOCKED lets concurrent workers
// pass over rows another transaction is claiming.
func (s *PostgresStore) ClaimNext(ctx context.Context, req ClaimRequest) (*model.CompanyRecord, error) {
	if req.WorkerID == "" {
		return nil, eris.New("postgres: claim requires a worker id")
	}
	statuses := req.Statuses
	if len(statuses) == 0 {
		statuses = []model.Status{model.StatusPending}
	}
	lo, hi := req.Range.Bounds()

	q := `UPDATE companies
		SET status = 'running', claimed_by = $1, claimed_at = $2, attempts = attempts + 1
		WHERE id = (
			SELECT id FROM companies WHERE status = $3 AND id BETWEEN $4 AND $5
			` + orderClause(req.Order) + ` LIMIT 1 FOR UPDATE SKIP LOCKED
		) AND status = $3
		RETURNING ` + recordColumns

	now := s.now().UTC()
	for _, st := range statuses {
		rec, err := scanPostgresRecord(s.pool.QueryRow(ctx, q, req.WorkerID, now, string(st), lo, hi))
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: claim status=%s", st)
		}
		return rec, nil
	}
	return nil, nil
}

// ReclaimStale resets running rows whose claim is older than ttl.
func (s *PostgresStore) ReclaimStale(ctx context.Context, ttl time.Duration, r shard.Range) (int64, error) {
	lo, hi := r.Bounds()
	tag, err := s.pool.Exec(ctx,
		`UPDATE companies SET status = 'pending', claimed_by = NULL, claimed_at = NULL
		WHERE status = 'running' AND claimed_at < $1 AND id BETWEEN $2 AND $3`,
		s.now().Add(-ttl).UTC(), lo, hi,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: reclaim stale")
	}
	return tag.RowsAffected(), nil
}

// Commit writes the working copy back under the claim guard.
func (s *PostgresStore) Commit(ctx context.Context, workerID string, rec *model.CompanyRecord) error {
	if !rec.Status.Terminal() {
		return eris.Errorf("postgres: commit requires a terminal status, got %q", rec.Status)
	}
	prov, err := encodeProvenance(rec.Provenance)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE companies SET
			homepage = $1, phone = $2, found_address = $3, rep_name = $4, description = $5,
			listing = $6, capital = $7, revenue = $8, profit = $9, fiscal_month = $10, founded_year = $11,
			provenance = $12::jsonb, homepage_score = $13, provisional_homepage = $14, review_reason = $15,
			status = $16, error_code = $17, claimed_by = NULL, claimed_at = NULL, last_checked_at = $18
		WHERE id = $19 AND (claimed_by = $20 OR (claimed_by IS NULL AND status = 'pending'))`,
		rec.Homepage, rec.Phone, rec.FoundAddress, rec.RepName, rec.Description,
		rec.Listing, rec.Capital, rec.Revenue, rec.Profit, rec.FiscalMonth, rec.FoundedYear,
		prov, rec.HomepageScore, rec.ProvisionalHomepage, rec.ReviewReason,
		string(rec.Status), rec.ErrorCode, s.now().UTC(),
		rec.ID, workerID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: commit id=%d", rec.ID)
	}
	return s.checkGuarded(ctx, tag, rec.ID, workerID)
}

// Release ends a claim with a status and error code.
func (s *PostgresStore) Release(ctx context.Context, workerID string, id int64, status model.Status, errorCode string) error {
	if status == model.StatusRunning || !status.Valid() {
		return eris.Errorf("postgres: cannot release into status %q", status)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE companies SET status = $1, error_code = $2, claimed_by = NULL, claimed_at = NULL, last_checked_at = $3
		WHERE id = $4 AND (claimed_by = $5 OR (claimed_by IS NULL AND status = 'pending'))`,
		string(status), errorCode, s.now().UTC(), id, workerID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: release id=%d", id)
	}
	return s.checkGuarded(ctx, tag, id, workerID)
}

func (s *PostgresStore) checkGuarded(ctx context.Context, tag pgconn.CommandTag, id int64, workerID string) error {
	if tag.RowsAffected() > 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE companies SET
			lock_mismatch_count = lock_mismatch_count + 1,
			review_reason = CASE WHEN status IN ('running', 'done') THEN review_reason ELSE $1 END,
			status = CASE WHEN status IN ('running', 'done') THEN status ELSE 'review' END
		WHERE id = $2`,
		model.ReviewLockMismatch, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark lock mismatch id=%d", id)
	}
	zap.L().Warn("postgres: guarded write skipped, claim not held",
		zap.Int64("record_id", id),
		zap.String("worker_id", workerID),
	)
	return ErrLockLost
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*model.CompanyRecord, error) {
	rec, err := scanPostgresRecord(s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM companies WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get id=%d", id)
	}
	return rec, nil
}

func (s *PostgresStore) IDBounds(ctx context.Context) (int64, int64, error) {
	var lo, hi *int64
	if err := s.pool.QueryRow(ctx, `SELECT MIN(id), MAX(id) FROM companies`).Scan(&lo, &hi); err != nil {
		return 0, 0, eris.Wrap(err, "postgres: id bounds")
	}
	if lo == nil || hi == nil {
		return 0, 0, ErrNotFound
	}
	return *lo, *hi, nil
}

func (s *PostgresStore) CountByStatus(ctx context.Context, r shard.Range) (map[model.Status]int, error) {
	lo, hi := r.Bounds()
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM companies WHERE id BETWEEN $1 AND $2 GROUP BY status`, lo, hi)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count by status")
	}
	defer rows.Close()

	out := make(map[model.Status]int)
	for rows.Next() {
		var st string
		var n int64
		if err := rows.Scan(&st, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan status count")
		}
		out[model.Status(st)] = int(n)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate status counts")
}

func (s *PostgresStore) Insert(ctx context.Context, rec *model.CompanyRecord) (int64, error) {
	status := rec.Status
	if status == "" {
		status = model.StatusPending
	}
	if status == model.StatusRunning {
		return 0, eris.New("postgres: insert cannot create a running row")
	}
	prov, err := encodeProvenance(rec.Provenance)
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO companies (company_name, input_address, homepage, phone, found_address, rep_name,
			description, listing, capital, revenue, profit, fiscal_month, founded_year, provenance, status, error_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14::jsonb, $15, $16)
		RETURNING id`,
		rec.CompanyName, rec.InputAddress, rec.Homepage, rec.Phone, rec.FoundAddress, rec.RepName,
		rec.Description, rec.Listing, rec.Capital, rec.Revenue, rec.Profit, rec.FiscalMonth, rec.FoundedYear,
		prov, string(status), rec.ErrorCode,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert company")
	}
	return id, nil
}

func (s *PostgresStore) GetURLFlags(ctx context.Context, values []string) (map[string]URLFlag, error) {
	out := make(map[string]URLFlag)
	if len(values) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT normalized_value, scope, is_official, host, judge_source, reason, confidence, updated_at
		FROM url_flags WHERE normalized_value = ANY($1)`, values)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get url flags")
	}
	defer rows.Close()

	for rows.Next() {
		var f URLFlag
		if err := rows.Scan(&f.Value, &f.Scope, &f.IsOfficial, &f.Host, &f.JudgeSource, &f.Reason, &f.Confidence, &f.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan url flag")
		}
		out[f.Value] = f
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate url flags")
}

func (s *PostgresStore) UpsertURLFlag(ctx context.Context, f URLFlag) error {
	if f.Value == "" {
		return eris.New("postgres: url flag requires a value")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO url_flags (normalized_value, scope, is_official, host, judge_source, reason, confidence, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (normalized_value) DO UPDATE SET
			scope = EXCLUDED.scope,
			is_official = EXCLUDED.is_official,
			host = EXCLUDED.host,
			judge_source = EXCLUDED.judge_source,
			reason = EXCLUDED.reason,
			confidence = EXCLUDED.confidence,
			updated_at = EXCLUDED.updated_at`,
		f.Value, f.Scope, f.IsOfficial, f.Host, f.JudgeSource, f.Reason, f.Confidence, s.now().UTC(),
	)
	return eris.Wrap(err, "postgres: upsert url flag")
}

func (s *PostgresStore) ClearAIFlags(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM url_flags WHERE NOT is_official AND lower(judge_source) LIKE 'ai%'`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: clear ai flags")
	}
	return tag.RowsAffected(), nil
}

func scanPostgresRecord(row pgx.Row) (*model.CompanyRecord, error) {
	var rec model.CompanyRecord
	var status string
	var prov []byte
	var claimedBy *string
	err := row.Scan(
		&rec.ID, &rec.CompanyName, &rec.InputAddress, &rec.Homepage, &rec.Phone, &rec.FoundAddress, &rec.RepName,
		&rec.Description, &rec.Listing, &rec.Capital, &rec.Revenue, &rec.Profit, &rec.FiscalMonth, &rec.FoundedYear,
		&prov, &rec.HomepageScore, &rec.ProvisionalHomepage, &rec.ReviewReason, &status, &rec.ErrorCode,
		&claimedBy, &rec.ClaimedAt, &rec.LastCheckedAt, &rec.LockMismatchCount, &rec.Attempts,
	)
	if err != nil {
		return nil, err
	}
	rec.Status = model.Status(status)
	if claimedBy != nil {
		rec.ClaimedBy = *claimedBy
	}
	if rec.Provenance, err = decodeProvenance(prov); err != nil {
		return nil, err
	}
	return &rec, nil
}
