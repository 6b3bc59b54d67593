package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/shard"
)

// sqliteTime is fixed-width so stored timestamps compare lexicographically.
const sqliteTime = "2006-01-02 15:04:05.000"

// SQLiteStore implements Store using modernc.org/sqlite. Several processes may
// open the same file; claims serialize through BEGIN IMMEDIATE.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path in WAL mode. Pragmas are
// set through the DSN so every pooled connection carries them.
func NewSQLite(path string, busyTimeoutMS int) (*SQLiteStore, error) {
	if busyTimeoutMS <= 0 {
		busyTimeoutMS = 5000
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "sqlite: create dir %s", dir)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		path, busyTimeoutMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id                   INTEGER PRIMARY KEY,
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
	provenance           TEXT NOT NULL DEFAULT '{}',
	homepage_score       INTEGER NOT NULL DEFAULT 0,
	provisional_homepage TEXT NOT NULL DEFAULT '',
	review_reason        TEXT NOT NULL DEFAULT '',
	status               TEXT NOT NULL DEFAULT 'pending'
		CHECK (status IN ('pending','running','done','review','no_homepage','error')),
	error_code           TEXT NOT NULL DEFAULT '',
	claimed_by           TEXT,
	claimed_at           TEXT,
	last_checked_at      TEXT,
	lock_mismatch_count  INTEGER NOT NULL DEFAULT 0,
	attempts             INTEGER NOT NULL DEFAULT 0,
	CHECK (status <> 'running' OR (claimed_by IS NOT NULL AND claimed_at IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS idx_companies_status_id ON companies(status, id);
CREATE INDEX IF NOT EXISTS idx_companies_status_claimed_at ON companies(status, claimed_at);

CREATE TABLE IF NOT EXISTS url_flags (
	normalized_value TEXT PRIMARY KEY,
	scope            TEXT NOT NULL DEFAULT 'url',
	is_official      INTEGER NOT NULL DEFAULT 0,
	host             TEXT NOT NULL DEFAULT '',
	judge_source     TEXT NOT NULL DEFAULT '',
	reason           TEXT NOT NULL DEFAULT '',
	confidence       REAL NOT NULL DEFAULT 0,
	updated_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_url_flags_host ON url_flags(host);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ts() string {
	return s.now().UTC().Format(sqliteTime)
}

// ClaimNext leases one row inside an IMMEDIATE transaction so the select and
// update cannot interleave with another process's claim.
func (s *SQLiteStore) ClaimNext(ctx context.Context, req ClaimRequest) (*model.CompanyRecord, error) {
	if req.WorkerID == "" {
		return nil, eris.New("sqlite: claim requires a worker id")
	}
	statuses := req.Statuses
	if len(statuses) == 0 {
		statuses = []model.Status{model.StatusPending}
	}
	lo, hi := req.Range.Bounds()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: claim conn")
	}
	defer conn.Close() //nolint:errcheck

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return nil, eris.Wrap(err, "sqlite: claim begin")
	}
	done := false
	defer func() {
		if !done {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	q := `UPDATE companies
		SET status = 'running', claimed_by = ?, claimed_at = ?, attempts = attempts + 1
		WHERE id = (SELECT id FROM companies WHERE status = ? AND id BETWEEN ? AND ? ` + orderClause(req.Order) + ` LIMIT 1)
		AND status = ?
		RETURNING ` + recordColumns

	now := s.ts()
	for _, st := range statuses {
		rec, err := scanSQLiteRecord(conn.QueryRowContext(ctx, q, req.WorkerID, now, string(st), lo, hi, string(st)))
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: claim status=%s", st)
		}
		if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
			return nil, eris.Wrap(err, "sqlite: claim commit")
		}
		done = true
		return rec, nil
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return nil, eris.Wrap(err, "sqlite: claim commit")
	}
	done = true
	return nil, nil
}

// ReclaimStale resets running rows whose claim is older than ttl.
func (s *SQLiteStore) ReclaimStale(ctx context.Context, ttl time.Duration, r shard.Range) (int64, error) {
	lo, hi := r.Bounds()
	cutoff := s.now().Add(-ttl).UTC().Format(sqliteTime)
	res, err := s.db.ExecContext(ctx,
		`UPDATE companies SET status = 'pending', claimed_by = NULL, claimed_at = NULL
		WHERE status = 'running' AND claimed_at < ? AND id BETWEEN ? AND ?`,
		cutoff, lo, hi,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: reclaim stale")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: reclaim rows affected")
	}
	return n, nil
}

// Commit writes the working copy back in one conditional update. The write
// only lands while this worker still holds the claim, or when the row was
// reclaimed and is still unclaimed.
func (s *SQLiteStore) Commit(ctx context.Context, workerID string, rec *model.CompanyRecord) error {
	if !rec.Status.Terminal() {
		return eris.Errorf("sqlite: commit requires a terminal status, got %q", rec.Status)
	}
	prov, err := encodeProvenance(rec.Provenance)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE companies SET
			homepage = ?, phone = ?, found_address = ?, rep_name = ?, description = ?,
			listing = ?, capital = ?, revenue = ?, profit = ?, fiscal_month = ?, founded_year = ?,
			provenance = ?, homepage_score = ?, provisional_homepage = ?, review_reason = ?,
			status = ?, error_code = ?, claimed_by = NULL, claimed_at = NULL, last_checked_at = ?
		WHERE id = ? AND (claimed_by = ? OR (claimed_by IS NULL AND status = 'pending'))`,
		rec.Homepage, rec.Phone, rec.FoundAddress, rec.RepName, rec.Description,
		rec.Listing, rec.Capital, rec.Revenue, rec.Profit, rec.FiscalMonth, rec.FoundedYear,
		prov, rec.HomepageScore, rec.ProvisionalHomepage, rec.ReviewReason,
		string(rec.Status), rec.ErrorCode, s.ts(),
		rec.ID, workerID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: commit id=%d", rec.ID)
	}
	return s.checkGuarded(ctx, res, rec.ID, workerID)
}

// Release ends a claim with a status and error code, leaving result fields untouched.
func (s *SQLiteStore) Release(ctx context.Context, workerID string, id int64, status model.Status, errorCode string) error {
	if status == model.StatusRunning || !status.Valid() {
		return eris.Errorf("sqlite: cannot release into status %q", status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE companies SET status = ?, error_code = ?, claimed_by = NULL, claimed_at = NULL, last_checked_at = ?
		WHERE id = ? AND (claimed_by = ? OR (claimed_by IS NULL AND status = 'pending'))`,
		string(status), errorCode, s.ts(), id, workerID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: release id=%d", id)
	}
	return s.checkGuarded(ctx, res, id, workerID)
}

// checkGuarded routes a row to review when a guarded write matched nothing.
// A row running under another worker, or already done, keeps its status.
func (s *SQLiteStore) checkGuarded(ctx context.Context, res sql.Result, id int64, workerID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n > 0 {
		return nil
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE companies SET
			lock_mismatch_count = lock_mismatch_count + 1,
			review_reason = CASE WHEN status IN ('running', 'done') THEN review_reason ELSE ? END,
			status = CASE WHEN status IN ('running', 'done') THEN status ELSE 'review' END
		WHERE id = ?`,
		model.ReviewLockMismatch, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark lock mismatch id=%d", id)
	}
	zap.L().Warn("sqlite: guarded write skipped, claim not held",
		zap.Int64("record_id", id),
		zap.String("worker_id", workerID),
	)
	return ErrLockLost
}

func (s *SQLiteStore) Get(ctx context.Context, id int64) (*model.CompanyRecord, error) {
	rec, err := scanSQLiteRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM companies WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get id=%d", id)
	}
	return rec, nil
}

func (s *SQLiteStore) IDBounds(ctx context.Context) (int64, int64, error) {
	var lo, hi sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MIN(id), MAX(id) FROM companies`).Scan(&lo, &hi); err != nil {
		return 0, 0, eris.Wrap(err, "sqlite: id bounds")
	}
	if !lo.Valid {
		return 0, 0, ErrNotFound
	}
	return lo.Int64, hi.Int64, nil
}

func (s *SQLiteStore) CountByStatus(ctx context.Context, r shard.Range) (map[model.Status]int, error) {
	lo, hi := r.Bounds()
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM companies WHERE id BETWEEN ? AND ? GROUP BY status`, lo, hi)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count by status")
	}
	defer rows.Close() //nolint:errcheck

	out := make(map[model.Status]int)
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan status count")
		}
		out[model.Status(st)] = n
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate status counts")
}

func (s *SQLiteStore) Insert(ctx context.Context, rec *model.CompanyRecord) (int64, error) {
	status := rec.Status
	if status == "" {
		status = model.StatusPending
	}
	if status == model.StatusRunning {
		return 0, eris.New("sqlite: insert cannot create a running row")
	}
	prov, err := encodeProvenance(rec.Provenance)
	if err != nil {
		return 0, err
	}
	var id any
	if rec.ID > 0 {
		id = rec.ID
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO companies (id, company_name, input_address, homepage, phone, found_address, rep_name,
			description, listing, capital, revenue, profit, fiscal_month, founded_year, provenance, status, error_code)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, rec.CompanyName, rec.InputAddress, rec.Homepage, rec.Phone, rec.FoundAddress, rec.RepName,
		rec.Description, rec.Listing, rec.Capital, rec.Revenue, rec.Profit, rec.FiscalMonth, rec.FoundedYear,
		prov, string(status), rec.ErrorCode,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: insert company")
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: last insert id")
	}
	return newID, nil
}

func (s *SQLiteStore) GetURLFlags(ctx context.Context, values []string) (map[string]URLFlag, error) {
	out := make(map[string]URLFlag)
	if len(values) == 0 {
		return out, nil
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")
	rows, err := s.db.QueryContext(ctx,
		`SELECT normalized_value, scope, is_official, host, judge_source, reason, confidence, updated_at
		FROM url_flags WHERE normalized_value IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get url flags")
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var f URLFlag
		var official int
		var updated string
		if err := rows.Scan(&f.Value, &f.Scope, &official, &f.Host, &f.JudgeSource, &f.Reason, &f.Confidence, &updated); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan url flag")
		}
		f.IsOfficial = official == 1
		f.UpdatedAt, _ = time.Parse(sqliteTime, updated)
		out[f.Value] = f
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate url flags")
}

func (s *SQLiteStore) UpsertURLFlag(ctx context.Context, f URLFlag) error {
	if f.Value == "" {
		return eris.New("sqlite: url flag requires a value")
	}
	official := 0
	if f.IsOfficial {
		official = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO url_flags (normalized_value, scope, is_official, host, judge_source, reason, confidence, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(normalized_value) DO UPDATE SET
			scope = excluded.scope,
			is_official = excluded.is_official,
			host = excluded.host,
			judge_source = excluded.judge_source,
			reason = excluded.reason,
			confidence = excluded.confidence,
			updated_at = excluded.updated_at`,
		f.Value, f.Scope, official, f.Host, f.JudgeSource, f.Reason, f.Confidence, s.ts(),
	)
	return eris.Wrap(err, "sqlite: upsert url flag")
}

func (s *SQLiteStore) ClearAIFlags(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM url_flags WHERE is_official = 0 AND lower(judge_source) LIKE 'ai%'`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: clear ai flags")
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: clear ai flags rows affected")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row rowScanner) (*model.CompanyRecord, error) {
	var rec model.CompanyRecord
	var status, prov string
	var claimedBy, claimedAt, checkedAt sql.NullString
	err := row.Scan(
		&rec.ID, &rec.CompanyName, &rec.InputAddress, &rec.Homepage, &rec.Phone, &rec.FoundAddress, &rec.RepName,
		&rec.Description, &rec.Listing, &rec.Capital, &rec.Revenue, &rec.Profit, &rec.FiscalMonth, &rec.FoundedYear,
		&prov, &rec.HomepageScore, &rec.ProvisionalHomepage, &rec.ReviewReason, &status, &rec.ErrorCode,
		&claimedBy, &claimedAt, &checkedAt, &rec.LockMismatchCount, &rec.Attempts,
	)
	if err != nil {
		return nil, err
	}
	rec.Status = model.Status(status)
	rec.ClaimedBy = claimedBy.String
	rec.ClaimedAt = parseSQLiteTime(claimedAt)
	rec.LastCheckedAt = parseSQLiteTime(checkedAt)
	if rec.Provenance, err = decodeProvenance([]byte(prov)); err != nil {
		return nil, err
	}
	return &rec, nil
}

func parseSQLiteTime(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t, err := time.Parse(sqliteTime, v.String)
	if err != nil {
		return nil
	}
	return &t
}
