// Package sqlite is the SQLite document store. Each record is kept as a JSON
// document next to the columns needed for filtering, ordering, uniqueness
// and aggregation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/rshade/carbon-offload/internal/regions"
	"github.com/rshade/carbon-offload/internal/store"
	"github.com/rshade/carbon-offload/internal/workload"
)

const dsnOptions = "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"

const schema = `
CREATE TABLE IF NOT EXISTS cloud_regions (
	id               TEXT PRIMARY KEY,
	provider         TEXT NOT NULL,
	region           TEXT NOT NULL,
	carbon_intensity REAL NOT NULL,
	available        INTEGER NOT NULL,
	doc              TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_regions_provider_region ON cloud_regions(provider, region);

CREATE TABLE IF NOT EXISTS cloud_workloads (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	status     TEXT NOT NULL,
	provider   TEXT NOT NULL,
	start_time INTEGER NOT NULL,
	savings    REAL NOT NULL,
	cost       REAL NOT NULL,
	doc        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_workloads_user_status ON cloud_workloads(user_id, status);
CREATE INDEX IF NOT EXISTS idx_workloads_user_start ON cloud_workloads(user_id, start_time);

CREATE TABLE IF NOT EXISTS user_preferences (
	user_id TEXT PRIMARY KEY,
	doc     TEXT NOT NULL
);
`

// Store implements the repositories on one SQLite database.
type Store struct {
	db       *sql.DB
	path     string
	prepared map[string]*sql.Stmt
	logger   zerolog.Logger
}

var (
	_ regions.Repository           = (*Store)(nil)
	_ regions.PreferenceRepository = (*Store)(nil)
	_ workload.Repository          = (*Store)(nil)
	_ store.Pinger                 = (*Store)(nil)
)

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serialises writers; WAL keeps reads cheap.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:       db,
		path:     path,
		prepared: make(map[string]*sql.Stmt),
		logger:   logger.With().Str("component", "store").Str("driver", "sqlite").Logger(),
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info().Str("path", path).Msg("database opened")
	return s, nil
}

func (s *Store) prepareStatements() error {
	statements := map[string]string{
		"get_region":         `SELECT doc FROM cloud_regions WHERE provider = ? AND region = ?`,
		"insert_workload":    `INSERT INTO cloud_workloads (id, user_id, status, provider, start_time, savings, cost, doc) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		"update_workload":    `UPDATE cloud_workloads SET user_id = ?, status = ?, provider = ?, start_time = ?, savings = ?, cost = ?, doc = ? WHERE id = ?`,
		"get_workload":       `SELECT doc FROM cloud_workloads WHERE id = ?`,
		"get_preferences":    `SELECT doc FROM user_preferences WHERE user_id = ?`,
		"upsert_preferences": `INSERT INTO user_preferences (user_id, doc) VALUES (?, ?)
			ON CONFLICT(user_id) DO UPDATE SET doc = excluded.doc`,
	}
	for name, query := range statements {
		stmt, err := s.db.Prepare(query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement %s: %w", name, err)
		}
		s.prepared[name] = stmt
	}
	return nil
}

// Close releases prepared statements and the database handle.
func (s *Store) Close() error {
	for _, stmt := range s.prepared {
		stmt.Close()
	}
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ReplaceRegions deletes and reinserts the catalog in one transaction, so
// readers never observe an empty or partial catalog.
func (s *Store) ReplaceRegions(ctx context.Context, list []regions.CloudRegion) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM cloud_regions`); err != nil {
		return 0, fmt.Errorf("failed to clear regions: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cloud_regions (id, provider, region, carbon_intensity, available, doc) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare region insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range list {
		doc, err := json.Marshal(r)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal region %s: %w", r.ID, err)
		}
		id := regions.RegionID(r.Provider, r.Region)
		if _, err := stmt.ExecContext(ctx, id, r.Provider, r.Region, r.CarbonIntensity, r.Available, string(doc)); err != nil {
			return 0, fmt.Errorf("failed to insert region %s: %w", id, classify(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit regions: %w", err)
	}
	s.logger.Debug().Int("count", len(list)).Msg("regions replaced")
	return len(list), nil
}

func (s *Store) ListRegions(ctx context.Context, filter regions.Filter) ([]regions.CloudRegion, error) {
	var (
		where []string
		args  []any
	)
	if filter.Provider != "" {
		where = append(where, "provider = ?")
		args = append(args, filter.Provider)
	}
	if filter.AvailableOnly {
		where = append(where, "available = 1")
	}
	query := `SELECT doc FROM cloud_regions` + whereClause(where) +
		` ORDER BY carbon_intensity ASC, provider ASC, region ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query regions: %w", err)
	}
	return scanDocs[regions.CloudRegion](rows)
}

func (s *Store) GetRegion(ctx context.Context, provider, region string) (regions.CloudRegion, error) {
	var r regions.CloudRegion
	err := getDoc(ctx, s.prepared["get_region"], &r, provider, region)
	if err != nil {
		return regions.CloudRegion{}, fmt.Errorf("region %s/%s: %w", provider, region, err)
	}
	return r, nil
}

func (s *Store) GetPreferences(ctx context.Context, userID string) (regions.Preferences, error) {
	var p regions.Preferences
	if err := getDoc(ctx, s.prepared["get_preferences"], &p, userID); err != nil {
		return regions.Preferences{}, fmt.Errorf("preferences for %s: %w", userID, err)
	}
	return p, nil
}

func (s *Store) PutPreferences(ctx context.Context, prefs regions.Preferences) error {
	doc, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}
	if _, err := s.prepared["upsert_preferences"].ExecContext(ctx, prefs.UserID, string(doc)); err != nil {
		return fmt.Errorf("failed to store preferences: %w", err)
	}
	return nil
}

func (s *Store) CreateWorkload(ctx context.Context, w workload.Workload) error {
	doc, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("failed to marshal workload: %w", err)
	}
	_, err = s.prepared["insert_workload"].ExecContext(ctx,
		w.ID, w.UserID, string(w.Status), w.TargetProvider, w.StartTime.UnixNano(),
		w.Savings, workload.EffectiveCost(w), string(doc))
	if err != nil {
		return fmt.Errorf("workload %s: %w", w.ID, classify(err))
	}
	return nil
}

func (s *Store) GetWorkload(ctx context.Context, id string) (workload.Workload, error) {
	var w workload.Workload
	if err := getDoc(ctx, s.prepared["get_workload"], &w, id); err != nil {
		return workload.Workload{}, fmt.Errorf("workload %s: %w", id, err)
	}
	return w, nil
}

func (s *Store) UpdateWorkload(ctx context.Context, w workload.Workload) error {
	doc, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("failed to marshal workload: %w", err)
	}
	res, err := s.prepared["update_workload"].ExecContext(ctx,
		w.UserID, string(w.Status), w.TargetProvider, w.StartTime.UnixNano(),
		w.Savings, workload.EffectiveCost(w), string(doc), w.ID)
	if err != nil {
		return fmt.Errorf("failed to update workload %s: %w", w.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update workload %s: %w", w.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("workload %s: %w", w.ID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListWorkloads(ctx context.Context, filter workload.Filter) ([]workload.Workload, error) {
	where, args := workloadWhere(filter)
	query := `SELECT doc FROM cloud_workloads` + whereClause(where) + ` ORDER BY start_time DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workloads: %w", err)
	}
	return scanDocs[workload.Workload](rows)
}

func (s *Store) AggregateWorkloads(ctx context.Context, filter workload.Filter) (workload.Stats, error) {
	where, args := workloadWhere(filter)
	query := `SELECT status, provider, COUNT(*), COALESCE(SUM(savings), 0), COALESCE(SUM(cost), 0)
		FROM cloud_workloads` + whereClause(where) + ` GROUP BY status, provider`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return workload.Stats{}, fmt.Errorf("failed to aggregate workloads: %w", err)
	}
	defer rows.Close()

	stats := workload.NewStats()
	for rows.Next() {
		var (
			status, provider string
			count            int
			savings, cost    float64
		)
		if err := rows.Scan(&status, &provider, &count, &savings, &cost); err != nil {
			return workload.Stats{}, fmt.Errorf("failed to scan aggregate: %w", err)
		}
		stats.TotalWorkloads += count
		stats.ByStatus[workload.Status(status)] += count
		stats.ByProvider[provider] += count
		stats.TotalCarbonSaved += savings
		stats.TotalCost += cost
	}
	return stats, rows.Err()
}

func workloadWhere(filter workload.Filter) ([]string, []any) {
	var (
		where []string
		args  []any
	)
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Provider != "" {
		where = append(where, "provider = ?")
		args = append(args, filter.Provider)
	}
	return where, args
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func getDoc(ctx context.Context, stmt *sql.Stmt, dst any, args ...any) error {
	var doc string
	err := stmt.QueryRowContext(ctx, args...).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(doc), dst); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}

func scanDocs[T any](rows *sql.Rows) ([]T, error) {
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		var v T
		if err := json.Unmarshal([]byte(doc), &v); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// classify maps constraint violations onto store.ErrDuplicate.
func classify(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique) {
		return store.ErrDuplicate
	}
	return err
}
