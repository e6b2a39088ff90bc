/*
Package store implements C1, the State Store: the single transactional
interface the rest of the core uses to read and mutate the data model of
§3. It persists through database/sql against modernc.org/sqlite (pure Go,
no cgo), grounded on NikeGunn-tutu's internal/infra/sqlite package for
the migration-as-[]string-of-statements style and ON CONFLICT DO UPDATE
upserts, and on the teacher gateway's redisclient.New(cfg) (*X, error)
constructor shape.

A mutating operation either commits or leaves state unchanged, per
§4.1's failure model. Conflicts, missing rows and rejected transitions
are reported as a *domain.Error of kind Conflict, NotFound, or
Invariant; database failures are returned as wrapped errors. Readers only ever observe committed state because every
read and write goes through the same *sql.DB connection pool.
*/
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/rs/zerolog"

	"github.com/alfred-ops/restaurant-core/internal/config"
)

const component = "store"

// Store is the State Store. It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger

	// restaurantLocks serializes seat operations per restaurant (§5).
	// It is not held across a caller's recommend and seat calls; the
	// table-state CAS update in SeatParty rejects a table taken in
	// between.
	restaurantLocks *KeyedMutex
}

// New opens (creating if necessary) the sqlite-backed store and runs
// migrations.
func New(cfg *config.Config, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.SQLiteDSN)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite: single writer; serialize via Go, not the driver
	s := &Store{
		db:              db,
		logger:          logger.With().Str("component", component).Logger(),
		restaurantLocks: NewKeyedMutex(),
	}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewInMemory opens an in-memory sqlite store, for tests.
func NewInMemory(logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{
		db:              db,
		logger:          logger.With().Str("component", component).Logger(),
		restaurantLocks: NewKeyedMutex(),
	}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the underlying database connection is alive, for
// readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// LockRestaurant acquires the per-restaurant lock the router holds while
// seating a party (§5). Returns an unlock function.
func (s *Store) LockRestaurant(restaurantID string) func() {
	return s.restaurantLocks.Lock(restaurantID)
}

// migrations returns the full schema, one statement per entry, mirroring
// the conceptual tables of §6.
func migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS restaurants (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			config_json TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sections (
			id TEXT PRIMARY KEY,
			restaurant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			position INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tables (
			id TEXT PRIMARY KEY,
			restaurant_id TEXT NOT NULL,
			section_id TEXT NOT NULL,
			number INTEGER NOT NULL,
			capacity INTEGER NOT NULL,
			type TEXT NOT NULL,
			location TEXT NOT NULL,
			state TEXT NOT NULL,
			state_confidence REAL NOT NULL DEFAULT 0,
			state_updated_at TEXT NOT NULL,
			current_visit_id TEXT,
			created_at TEXT NOT NULL,
			UNIQUE(restaurant_id, number)
		)`,
		`CREATE TABLE IF NOT EXISTS table_state_log (
			id TEXT PRIMARY KEY,
			table_id TEXT NOT NULL,
			previous TEXT NOT NULL,
			next TEXT NOT NULL,
			confidence REAL NOT NULL,
			source TEXT NOT NULL,
			attribution TEXT NOT NULL DEFAULT '',
			timestamp TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_table_state_log_table ON table_state_log(table_id)`,
		`CREATE TABLE IF NOT EXISTS waiters (
			id TEXT PRIMARY KEY,
			restaurant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			role TEXT NOT NULL,
			tier TEXT NOT NULL,
			composite_score REAL NOT NULL DEFAULT 0,
			section_id TEXT,
			lifetime_shifts INTEGER NOT NULL DEFAULT 0,
			lifetime_covers INTEGER NOT NULL DEFAULT 0,
			lifetime_tips TEXT NOT NULL DEFAULT '0',
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS shifts (
			id TEXT PRIMARY KEY,
			restaurant_id TEXT NOT NULL,
			waiter_id TEXT NOT NULL,
			status TEXT NOT NULL,
			tables_served INTEGER NOT NULL DEFAULT 0,
			covers INTEGER NOT NULL DEFAULT 0,
			tips TEXT NOT NULL DEFAULT '0',
			sales TEXT NOT NULL DEFAULT '0',
			started_at TEXT NOT NULL,
			ended_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_shifts_waiter ON shifts(waiter_id)`,
		`CREATE TABLE IF NOT EXISTS waitlist_entries (
			id TEXT PRIMARY KEY,
			restaurant_id TEXT NOT NULL,
			party_size INTEGER NOT NULL,
			table_preference TEXT NOT NULL,
			location_preference TEXT NOT NULL,
			hard_preference INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			visit_id TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS visits (
			id TEXT PRIMARY KEY,
			restaurant_id TEXT NOT NULL,
			table_id TEXT NOT NULL,
			waiter_id TEXT NOT NULL,
			original_waiter_id TEXT,
			waitlist_entry_id TEXT,
			party_size INTEGER NOT NULL,
			actual_covers INTEGER NOT NULL DEFAULT 0,
			seated_at TEXT NOT NULL,
			first_served_at TEXT,
			payment_at TEXT,
			cleared_at TEXT,
			subtotal TEXT NOT NULL DEFAULT '0',
			tax TEXT NOT NULL DEFAULT '0',
			total TEXT NOT NULL DEFAULT '0',
			tip TEXT NOT NULL DEFAULT '0',
			tip_pct TEXT NOT NULL DEFAULT '0',
			duration_seconds INTEGER,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_visits_restaurant ON visits(restaurant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_visits_waiter ON visits(waiter_id)`,
		`CREATE INDEX IF NOT EXISTS idx_visits_table ON visits(table_id)`,
		`CREATE TABLE IF NOT EXISTS cameras (
			id TEXT PRIMARY KEY,
			restaurant_id TEXT NOT NULL,
			video_source_uri TEXT NOT NULL,
			crop_json TEXT,
			last_capture_at TEXT,
			last_frame_index INTEGER NOT NULL DEFAULT 0,
			degraded INTEGER NOT NULL DEFAULT 0,
			degraded_reason TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS crop_dispatch_log (
			id TEXT PRIMARY KEY,
			camera_id TEXT NOT NULL,
			json_table_id TEXT NOT NULL,
			frame_index INTEGER NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE(camera_id, json_table_id, frame_index)
		)`,
		`CREATE TABLE IF NOT EXISTS staff_availability (
			id TEXT PRIMARY KEY,
			waiter_id TEXT NOT NULL,
			day_of_week INTEGER NOT NULL,
			start_minute INTEGER NOT NULL,
			end_minute INTEGER NOT NULL,
			type TEXT NOT NULL,
			effective_from TEXT NOT NULL,
			effective_to TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_availability_waiter ON staff_availability(waiter_id)`,
		`CREATE TABLE IF NOT EXISTS staff_preferences (
			waiter_id TEXT PRIMARY KEY,
			preferred_roles TEXT NOT NULL DEFAULT '[]',
			preferred_shifts TEXT NOT NULL DEFAULT '[]',
			preferred_sections TEXT NOT NULL DEFAULT '[]',
			max_hours_per_week REAL NOT NULL DEFAULT 40,
			min_hours_per_week REAL NOT NULL DEFAULT 0,
			max_shifts_per_week INTEGER NOT NULL DEFAULT 6,
			avoid_clopening INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS staffing_requirements (
			id TEXT PRIMARY KEY,
			restaurant_id TEXT NOT NULL,
			day_of_week INTEGER NOT NULL,
			start_minute INTEGER NOT NULL,
			end_minute INTEGER NOT NULL,
			role TEXT NOT NULL,
			min_count INTEGER NOT NULL,
			max_count INTEGER NOT NULL,
			is_prime_shift INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_requirements_restaurant ON staffing_requirements(restaurant_id)`,
		`CREATE TABLE IF NOT EXISTS schedules (
			id TEXT PRIMARY KEY,
			restaurant_id TEXT NOT NULL,
			week_start TEXT NOT NULL,
			version INTEGER NOT NULL,
			status TEXT NOT NULL,
			generated_by TEXT NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE(restaurant_id, week_start, version)
		)`,
		`CREATE TABLE IF NOT EXISTS schedule_items (
			id TEXT PRIMARY KEY,
			schedule_id TEXT NOT NULL,
			waiter_id TEXT NOT NULL,
			role TEXT NOT NULL,
			section_id TEXT,
			date TEXT NOT NULL,
			start_minute INTEGER NOT NULL,
			end_minute INTEGER NOT NULL,
			source TEXT NOT NULL,
			preference_match_score REAL NOT NULL DEFAULT 0,
			fairness_impact_score REAL NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_schedule_items_schedule ON schedule_items(schedule_id)`,
		`CREATE INDEX IF NOT EXISTS idx_schedule_items_waiter ON schedule_items(waiter_id)`,
		`CREATE TABLE IF NOT EXISTS schedule_reasoning (
			id TEXT PRIMARY KEY,
			schedule_item_id TEXT NOT NULL,
			lines_json TEXT NOT NULL DEFAULT '[]',
			llm_paragraph TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS schedule_runs (
			id TEXT PRIMARY KEY,
			restaurant_id TEXT NOT NULL,
			schedule_id TEXT,
			snapshot_id TEXT NOT NULL,
			status TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			items_created INTEGER NOT NULL DEFAULT 0,
			total_hours REAL NOT NULL DEFAULT 0,
			coverage_pct REAL NOT NULL DEFAULT 0,
			fairness_gini REAL NOT NULL DEFAULT 0,
			preference_avg REAL NOT NULL DEFAULT 0,
			forecast_trend TEXT NOT NULL DEFAULT '',
			understaffed_slots INTEGER NOT NULL DEFAULT 0,
			started_at TEXT NOT NULL,
			finished_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS waiter_metrics (
			restaurant_id TEXT NOT NULL,
			waiter_id TEXT NOT NULL,
			period_type TEXT NOT NULL,
			period_start TEXT NOT NULL,
			visits INTEGER NOT NULL DEFAULT 0,
			covers INTEGER NOT NULL DEFAULT 0,
			tips TEXT NOT NULL DEFAULT '0',
			avg_tip_pct REAL NOT NULL DEFAULT 0,
			avg_check TEXT NOT NULL DEFAULT '0',
			avg_turn_time_seconds REAL NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (waiter_id, period_type, period_start)
		)`,
		`CREATE TABLE IF NOT EXISTS restaurant_metrics (
			restaurant_id TEXT NOT NULL,
			period_type TEXT NOT NULL,
			period_start TEXT NOT NULL,
			parties INTEGER NOT NULL DEFAULT 0,
			covers INTEGER NOT NULL DEFAULT 0,
			peak_occupancy INTEGER NOT NULL DEFAULT 0,
			revenue TEXT NOT NULL DEFAULT '0',
			avg_wait_seconds REAL NOT NULL DEFAULT 0,
			covers_per_waiter REAL NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (restaurant_id, period_type, period_start)
		)`,
		`CREATE TABLE IF NOT EXISTS menu_item_metrics (
			restaurant_id TEXT NOT NULL,
			menu_item TEXT NOT NULL,
			period_type TEXT NOT NULL,
			period_start TEXT NOT NULL,
			orders INTEGER NOT NULL DEFAULT 0,
			revenue TEXT NOT NULL DEFAULT '0',
			hourly_distribution_json TEXT NOT NULL DEFAULT '{}',
			updated_at TEXT NOT NULL,
			PRIMARY KEY (restaurant_id, menu_item, period_type, period_start)
		)`,
	}
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range migrations() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}
