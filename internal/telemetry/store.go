package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure Go driver, registers "sqlite"

	serrors "github.com/searxng/searxng-sub003/internal/errors"
	"github.com/searxng/searxng-sub003/internal/results"
)

// Store persists telemetry aggregates.
type Store interface {
	// SaveEngineCounts adds per-engine counts to the totals of date.
	SaveEngineCounts(date string, counts map[string]EngineCounts) error

	// GetEngineCounts sums per-engine counts over a date range.
	GetEngineCounts(from, to string) (map[string]EngineCounts, error)

	// UpsertTermCounts adds to term frequencies.
	UpsertTermCounts(terms map[string]int64) error

	// GetTopTerms returns the limit most frequent terms.
	GetTopTerms(limit int) ([]TermCount, error)

	// AddZeroResultQuery remembers a query that found nothing.
	AddZeroResultQuery(query string, at time.Time) error

	// GetZeroResultQueries returns recent zero-result queries, newest first.
	GetZeroResultQueries(limit int) ([]string, error)

	// SaveQueryLatencies adds query latency buckets to the totals of date.
	SaveQueryLatencies(date string, counts map[LatencyBucket]int64) error

	// GetQueryLatencies sums query latency buckets over a date range.
	GetQueryLatencies(from, to string) (map[LatencyBucket]int64, error)

	Close() error
}

// MaxZeroResultQueries bounds the persisted zero-result history.
const MaxZeroResultQueries = 100

const schema = `
CREATE TABLE IF NOT EXISTS engine_outcomes (
	date TEXT NOT NULL,
	engine TEXT NOT NULL,
	status TEXT NOT NULL,
	count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (date, engine, status)
);

CREATE TABLE IF NOT EXISTS engine_errors (
	date TEXT NOT NULL,
	engine TEXT NOT NULL,
	kind TEXT NOT NULL,
	count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (date, engine, kind)
);

CREATE TABLE IF NOT EXISTS engine_latency (
	date TEXT NOT NULL,
	engine TEXT NOT NULL,
	bucket TEXT NOT NULL,
	count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (date, engine, bucket)
);

CREATE TABLE IF NOT EXISTS engine_totals (
	date TEXT NOT NULL,
	engine TEXT NOT NULL,
	results INTEGER NOT NULL DEFAULT 0,
	total_ns INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (date, engine)
);

CREATE TABLE IF NOT EXISTS query_terms (
	term TEXT PRIMARY KEY,
	count INTEGER NOT NULL DEFAULT 1,
	last_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_query_terms_count ON query_terms(count DESC);

CREATE TABLE IF NOT EXISTS zero_result_queries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	query TEXT NOT NULL,
	timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS query_latency (
	date TEXT NOT NULL,
	bucket TEXT NOT NULL,
	count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (date, bucket)
);
`

// SQLiteStore implements Store on a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	owns bool
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLiteStore opens or creates the telemetry database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create telemetry directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry database: %w", err)
	}
	// One writer avoids SQLITE_BUSY between the flush loop and queries.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	s, err := NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.owns = true
	return s, nil
}

// NewSQLiteStore wraps an open database and creates missing tables.
// The caller keeps ownership of db.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, serrors.InternalError("create telemetry schema", err)
	}
	return &SQLiteStore{db: db}, nil
}

// SaveEngineCounts implements Store.
func (s *SQLiteStore) SaveEngineCounts(date string, counts map[string]EngineCounts) error {
	if len(counts) == 0 {
		return nil
	}
	return s.inTx(func(tx *sql.Tx) error {
		for engine, c := range counts {
			for status, n := range c.Outcomes {
				if _, err := tx.Exec(`
					INSERT INTO engine_outcomes (date, engine, status, count) VALUES (?, ?, ?, ?)
					ON CONFLICT(date, engine, status) DO UPDATE SET count = count + excluded.count
				`, date, engine, string(status), n); err != nil {
					return fmt.Errorf("upsert outcome count: %w", err)
				}
			}
			for kind, n := range c.Errors {
				if _, err := tx.Exec(`
					INSERT INTO engine_errors (date, engine, kind, count) VALUES (?, ?, ?, ?)
					ON CONFLICT(date, engine, kind) DO UPDATE SET count = count + excluded.count
				`, date, engine, string(kind), n); err != nil {
					return fmt.Errorf("upsert error count: %w", err)
				}
			}
			for bucket, n := range c.Latencies {
				if _, err := tx.Exec(`
					INSERT INTO engine_latency (date, engine, bucket, count) VALUES (?, ?, ?, ?)
					ON CONFLICT(date, engine, bucket) DO UPDATE SET count = count + excluded.count
				`, date, engine, string(bucket), n); err != nil {
					return fmt.Errorf("upsert latency count: %w", err)
				}
			}
			if _, err := tx.Exec(`
				INSERT INTO engine_totals (date, engine, results, total_ns) VALUES (?, ?, ?, ?)
				ON CONFLICT(date, engine) DO UPDATE SET
					results = results + excluded.results,
					total_ns = total_ns + excluded.total_ns
			`, date, engine, c.Results, int64(c.TotalTime)); err != nil {
				return fmt.Errorf("upsert engine totals: %w", err)
			}
		}
		return nil
	})
}

// GetEngineCounts implements Store.
func (s *SQLiteStore) GetEngineCounts(from, to string) (map[string]EngineCounts, error) {
	out := make(map[string]*EngineCounts)

	scan := func(query string, apply func(c *EngineCounts, key string, n int64)) error {
		rows, err := s.db.Query(query, from, to)
		if err != nil {
			return fmt.Errorf("query engine counts: %w", err)
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var engine, key string
			var n int64
			if err := rows.Scan(&engine, &key, &n); err != nil {
				return fmt.Errorf("scan row: %w", err)
			}
			apply(countsFor(out, engine), key, n)
		}
		return rows.Err()
	}

	if err := scan(`SELECT engine, status, SUM(count) FROM engine_outcomes WHERE date >= ? AND date <= ? GROUP BY engine, status`,
		func(c *EngineCounts, key string, n int64) { c.Outcomes[results.Status(key)] = n }); err != nil {
		return nil, err
	}
	if err := scan(`SELECT engine, kind, SUM(count) FROM engine_errors WHERE date >= ? AND date <= ? GROUP BY engine, kind`,
		func(c *EngineCounts, key string, n int64) { c.Errors[serrors.Kind(key)] = n }); err != nil {
		return nil, err
	}
	if err := scan(`SELECT engine, bucket, SUM(count) FROM engine_latency WHERE date >= ? AND date <= ? GROUP BY engine, bucket`,
		func(c *EngineCounts, key string, n int64) { c.Latencies[LatencyBucket(key)] = n }); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT engine, SUM(results), SUM(total_ns) FROM engine_totals WHERE date >= ? AND date <= ? GROUP BY engine`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query engine totals: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var engine string
		var res, ns int64
		if err := rows.Scan(&engine, &res, &ns); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		c := countsFor(out, engine)
		c.Results = res
		c.TotalTime = time.Duration(ns)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	flat := make(map[string]EngineCounts, len(out))
	for name, c := range out {
		flat[name] = *c
	}
	return flat, nil
}

// UpsertTermCounts implements Store.
func (s *SQLiteStore) UpsertTermCounts(terms map[string]int64) error {
	if len(terms) == 0 {
		return nil
	}
	return s.inTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO query_terms (term, count, last_seen)
			VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(term) DO UPDATE SET
				count = count + excluded.count,
				last_seen = CURRENT_TIMESTAMP
		`)
		if err != nil {
			return fmt.Errorf("prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for term, n := range terms {
			if _, err := stmt.Exec(term, n); err != nil {
				return fmt.Errorf("upsert term count: %w", err)
			}
		}
		return nil
	})
}

// GetTopTerms implements Store.
func (s *SQLiteStore) GetTopTerms(limit int) ([]TermCount, error) {
	rows, err := s.db.Query(`SELECT term, count FROM query_terms ORDER BY count DESC, term ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top terms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var terms []TermCount
	for rows.Next() {
		var tc TermCount
		if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		terms = append(terms, tc)
	}
	return terms, rows.Err()
}

// AddZeroResultQuery implements Store. Only the newest
// MaxZeroResultQueries entries are kept.
func (s *SQLiteStore) AddZeroResultQuery(query string, at time.Time) error {
	if _, err := s.db.Exec(`INSERT INTO zero_result_queries (query, timestamp) VALUES (?, ?)`, query, at); err != nil {
		return fmt.Errorf("insert zero-result query: %w", err)
	}
	if _, err := s.db.Exec(`
		DELETE FROM zero_result_queries
		WHERE id NOT IN (SELECT id FROM zero_result_queries ORDER BY id DESC LIMIT ?)
	`, MaxZeroResultQueries); err != nil {
		return fmt.Errorf("trim zero-result queries: %w", err)
	}
	return nil
}

// GetZeroResultQueries implements Store.
func (s *SQLiteStore) GetZeroResultQueries(limit int) ([]string, error) {
	rows, err := s.db.Query(`SELECT query FROM zero_result_queries ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query zero-result queries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var queries []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

// SaveQueryLatencies implements Store.
func (s *SQLiteStore) SaveQueryLatencies(date string, counts map[LatencyBucket]int64) error {
	if len(counts) == 0 {
		return nil
	}
	return s.inTx(func(tx *sql.Tx) error {
		for bucket, n := range counts {
			if _, err := tx.Exec(`
				INSERT INTO query_latency (date, bucket, count) VALUES (?, ?, ?)
				ON CONFLICT(date, bucket) DO UPDATE SET count = count + excluded.count
			`, date, string(bucket), n); err != nil {
				return fmt.Errorf("insert latency count: %w", err)
			}
		}
		return nil
	})
}

// GetQueryLatencies implements Store.
func (s *SQLiteStore) GetQueryLatencies(from, to string) (map[LatencyBucket]int64, error) {
	rows, err := s.db.Query(`
		SELECT bucket, SUM(count) FROM query_latency
		WHERE date >= ? AND date <= ?
		GROUP BY bucket
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query latency counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[LatencyBucket]int64)
	for rows.Next() {
		var bucket string
		var n int64
		if err := rows.Scan(&bucket, &n); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		counts[LatencyBucket(bucket)] = n
	}
	return counts, rows.Err()
}

// Close closes the database if the store opened it.
func (s *SQLiteStore) Close() error {
	if !s.owns {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// LoadSnapshot reads the persisted totals for the days in [from, to] into a
// Snapshot. Repeat counts are not persisted, and the zero-result count is
// bounded by MaxZeroResultQueries.
func LoadSnapshot(s Store, from, to time.Time, limit int) (*Snapshot, error) {
	fromDay, toDay := from.Format("2006-01-02"), to.Format("2006-01-02")

	engines, err := s.GetEngineCounts(fromDay, toDay)
	if err != nil {
		return nil, err
	}
	terms, err := s.GetTopTerms(limit)
	if err != nil {
		return nil, err
	}
	zero, err := s.GetZeroResultQueries(MaxZeroResultQueries)
	if err != nil {
		return nil, err
	}
	latencies, err := s.GetQueryLatencies(fromDay, toDay)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, n := range latencies {
		total += n
	}
	zeroCount := int64(len(zero))
	if zeroCount > total {
		zeroCount = total
	}
	if limit > 0 && len(zero) > limit {
		zero = zero[:limit]
	}
	return &Snapshot{
		Engines:           engines,
		TopTerms:          terms,
		ZeroResultQueries: zero,
		QueryLatencies:    latencies,
		TotalQueries:      total,
		ZeroResultCount:   zeroCount,
		Since:             from,
	}, nil
}
