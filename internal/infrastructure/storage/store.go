// Package storage implements the persistent store on PostgreSQL or SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"NewsRelay/internal/domain"
	"NewsRelay/internal/ports"
)

// Supported database/sql driver names.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Store persists deliveries, runs and counters through one SQL dialect.
type Store struct {
	db     *sql.DB
	sb     sq.StatementBuilderType
	driver string
}

var _ ports.Store = (*Store)(nil)

// New wraps an open database. driver selects the placeholder style.
func New(db *sql.DB, driver string) *Store {
	var format sq.PlaceholderFormat = sq.Question
	if driver == DriverPostgres {
		format = sq.Dollar
	}
	return &Store{
		db:     db,
		sb:     sq.StatementBuilder.PlaceholderFormat(format),
		driver: driver,
	}
}

// Open connects, verifies the connection and applies the schema.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	switch driver {
	case DriverPostgres:
	case DriverSQLite, "":
		driver = DriverSQLite
		dsn = sqliteDSN(dsn)
	default:
		return nil, fmt.Errorf("%w: unsupported database driver %q", domain.ErrConfig, driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// A single connection keeps :memory: databases shared and serializes writers.
		db.SetMaxOpenConns(1)
	}

	s := New(db, driver)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", domain.ErrStoreUnavailable, driver, err)
	}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = "newsrelay.db"
	}
	if dsn == ":memory:" || strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(10000)"
}

// Migrate creates tables and indexes when missing.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func (s *Store) exec(ctx context.Context, op string, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: build query: %w", op, err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	return res, nil
}

func (s *Store) query(ctx context.Context, op string, b sq.Sqlizer) (*sql.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: build query: %w", op, err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	return rows, nil
}

func affected(op string, res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable(op, err)
	}
	return n, nil
}

// InsertDelivery stores rec, returning domain.ErrDuplicate when
// (normalized_title, posted_date) already exists.
func (s *Store) InsertDelivery(ctx context.Context, rec domain.DeliveryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	b := s.sb.Insert("deliveries").
		Columns("id", "normalized_title", "full_title", "source_code", "posted_date",
			"posted_at", "status", "channel_category", "article_url", "slot").
		Values(rec.ID, rec.NormalizedTitle, rec.FullTitle, rec.SourceCode, rec.PostedDate,
			millis(rec.PostedAt), string(rec.Status), string(rec.ChannelCategory), rec.ArticleURL, rec.Slot).
		Suffix("ON CONFLICT DO NOTHING")

	res, err := s.exec(ctx, "insert delivery", b)
	if err != nil {
		return err
	}
	n, err := affected("insert delivery", res)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrDuplicate
	}
	return nil
}

// UpdateDeliveryStatus moves a record to a new status.
func (s *Store) UpdateDeliveryStatus(ctx context.Context, normalizedTitle, date string, status domain.DeliveryStatus) error {
	b := s.sb.Update("deliveries").
		Set("status", string(status)).
		Where(sq.Eq{"normalized_title": normalizedTitle, "posted_date": date})
	_, err := s.exec(ctx, "update delivery status", b)
	return err
}

// ExistsExact reports whether the title was recorded on any day in dates.
func (s *Store) ExistsExact(ctx context.Context, normalizedTitle string, dates domain.DateRange) (bool, error) {
	b := s.sb.Select("1").From("deliveries").
		Where(sq.Eq{"normalized_title": normalizedTitle}).
		Where(sq.GtOrEq{"posted_date": dates.From}).
		Where(sq.LtOrEq{"posted_date": dates.To}).
		Limit(1)

	rows, err := s.query(ctx, "exists exact", b)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	found := rows.Next()
	if err := rows.Err(); err != nil {
		return false, unavailable("exists exact", err)
	}
	return found, nil
}

// LoadRecentTitles returns the titles recorded within dates, newest first.
func (s *Store) LoadRecentTitles(ctx context.Context, dates domain.DateRange) ([]domain.TitleRecord, error) {
	b := s.sb.Select("normalized_title", "full_title").From("deliveries").
		Where(sq.GtOrEq{"posted_date": dates.From}).
		Where(sq.LtOrEq{"posted_date": dates.To}).
		OrderBy("posted_at DESC")

	rows, err := s.query(ctx, "load recent titles", b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TitleRecord
	for rows.Next() {
		var rec domain.TitleRecord
		if err := rows.Scan(&rec.NormalizedTitle, &rec.FullTitle); err != nil {
			return nil, fmt.Errorf("scan title: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("load recent titles", err)
	}
	return out, nil
}

var deliveryColumns = []string{
	"id", "normalized_title", "full_title", "source_code", "posted_date",
	"posted_at", "status", "channel_category", "article_url", "slot",
}

// ListDeliveries returns records within dates, newest first. An empty status
// matches every status.
func (s *Store) ListDeliveries(ctx context.Context, status domain.DeliveryStatus, dates domain.DateRange) ([]domain.DeliveryRecord, error) {
	b := s.sb.Select(deliveryColumns...).From("deliveries").
		Where(sq.GtOrEq{"posted_date": dates.From}).
		Where(sq.LtOrEq{"posted_date": dates.To}).
		OrderBy("posted_at DESC")
	if status != "" {
		b = b.Where(sq.Eq{"status": string(status)})
	}

	rows, err := s.query(ctx, "list deliveries", b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DeliveryRecord
	for rows.Next() {
		var (
			rec      domain.DeliveryRecord
			postedAt int64
			st, cat  string
		)
		if err := rows.Scan(&rec.ID, &rec.NormalizedTitle, &rec.FullTitle, &rec.SourceCode, &rec.PostedDate,
			&postedAt, &st, &cat, &rec.ArticleURL, &rec.Slot); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		rec.PostedAt = fromMillis(postedAt)
		rec.Status = domain.DeliveryStatus(st)
		rec.ChannelCategory = domain.Category(cat)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list deliveries", err)
	}
	return out, nil
}

// RequeueDelivery deletes a failed record so a later run may deliver the
// title again. Records in any other status are left alone.
func (s *Store) RequeueDelivery(ctx context.Context, normalizedTitle, date string) (bool, error) {
	b := s.sb.Delete("deliveries").Where(sq.Eq{
		"normalized_title": normalizedTitle,
		"posted_date":      date,
		"status":           string(domain.DeliveryFailed),
	})
	res, err := s.exec(ctx, "requeue delivery", b)
	if err != nil {
		return false, err
	}
	n, err := affected("requeue delivery", res)
	return n > 0, err
}

// CreateRunIfAbsent inserts run. For scheduled runs a second claim of the
// same (date, slot) returns domain.ErrSlotClaimed; forced runs always insert.
func (s *Store) CreateRunIfAbsent(ctx context.Context, run domain.RunRecord) (domain.RunRecord, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = domain.RunRunning
	}
	counts, err := encodeCounts(run.SourceCounts)
	if err != nil {
		return run, err
	}

	forced := 0
	if run.Forced {
		forced = 1
	}
	b := s.sb.Insert("runs").
		Columns("id", "run_date", "slot", "forced", "scheduled_at", "started_at", "status", "posts_sent", "source_counts", "error").
		Values(run.ID, run.Date, run.Slot, forced, millis(run.ScheduledAt), millis(run.StartedAt),
			string(run.Status), run.PostsSent, counts, run.Error)
	if !run.Forced {
		b = b.Suffix("ON CONFLICT DO NOTHING")
	}

	res, err := s.exec(ctx, "create run", b)
	if err != nil {
		return run, err
	}
	n, err := affected("create run", res)
	if err != nil {
		return run, err
	}
	if n == 0 {
		return run, domain.ErrSlotClaimed
	}
	return run, nil
}

// UpdateRun writes the mutable fields of run.
func (s *Store) UpdateRun(ctx context.Context, run domain.RunRecord) error {
	counts, err := encodeCounts(run.SourceCounts)
	if err != nil {
		return err
	}
	var finished sql.NullInt64
	if run.FinishedAt != nil {
		finished = sql.NullInt64{Int64: millis(*run.FinishedAt), Valid: true}
	}
	b := s.sb.Update("runs").
		Set("status", string(run.Status)).
		Set("finished_at", finished).
		Set("posts_sent", run.PostsSent).
		Set("source_counts", counts).
		Set("error", run.Error).
		Where(sq.Eq{"id": run.ID})
	_, err = s.exec(ctx, "update run", b)
	return err
}

// RecentRuns returns up to limit runs, most recently started first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	b := s.sb.Select("id", "run_date", "slot", "forced", "scheduled_at", "started_at",
		"finished_at", "status", "posts_sent", "source_counts", "error").
		From("runs").
		OrderBy("started_at DESC").
		Limit(uint64(limit))

	rows, err := s.query(ctx, "recent runs", b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RunRecord
	for rows.Next() {
		var (
			run                 domain.RunRecord
			forced              int
			scheduled, started  int64
			finished            sql.NullInt64
			status, counts, msg string
		)
		if err := rows.Scan(&run.ID, &run.Date, &run.Slot, &forced, &scheduled, &started,
			&finished, &status, &run.PostsSent, &counts, &msg); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Forced = forced != 0
		run.ScheduledAt = fromMillis(scheduled)
		run.StartedAt = fromMillis(started)
		if finished.Valid {
			t := fromMillis(finished.Int64)
			run.FinishedAt = &t
		}
		run.Status = domain.RunStatus(status)
		run.Error = msg
		if counts != "" {
			if err := json.Unmarshal([]byte(counts), &run.SourceCounts); err != nil {
				return nil, fmt.Errorf("decode source counts for run %s: %w", run.ID, err)
			}
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("recent runs", err)
	}
	return out, nil
}

func encodeCounts(counts map[string]int) (string, error) {
	if len(counts) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(counts)
	if err != nil {
		return "", fmt.Errorf("encode source counts: %w", err)
	}
	return string(raw), nil
}

// IncrementCounter atomically adds one to key and returns the new value.
func (s *Store) IncrementCounter(ctx context.Context, key string) (int64, error) {
	b := s.sb.Insert("counters").
		Columns("name", "value").
		Values(key, 1).
		Suffix("ON CONFLICT (name) DO UPDATE SET value = counters.value + 1 RETURNING value")

	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("increment counter: build query: %w", err)
	}
	var value int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&value); err != nil {
		return 0, unavailable("increment counter", err)
	}
	return value, nil
}

// Counter reads key, returning zero when it was never incremented.
func (s *Store) Counter(ctx context.Context, key string) (int64, error) {
	query, args, err := s.sb.Select("value").From("counters").Where(sq.Eq{"name": key}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("counter: build query: %w", err)
	}
	var value int64
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, nil
	case err != nil:
		return 0, unavailable("counter", err)
	}
	return value, nil
}
