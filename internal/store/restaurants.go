package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alfred-ops/restaurant-core/internal/domain"
)

const timeLayout = time.RFC3339Nano

// CreateRestaurant inserts a new Restaurant with the default routing
// config (§6 step 3) when r.Config.Extra is nil; a caller-supplied
// r.Config is kept only if its Extra map is set.
func (s *Store) CreateRestaurant(ctx context.Context, r *domain.Restaurant) error {
	if r.ID.IsNil() {
		r.ID = domain.NewID()
	}
	if r.Config.Extra == nil {
		r.Config = domain.DefaultRestaurantConfig()
	}
	r.CreatedAt = time.Now().UTC()

	cfgJSON, err := json.Marshal(r.Config)
	if err != nil {
		return fmt.Errorf("marshal restaurant config: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO restaurants (id, name, config_json, created_at) VALUES (?, ?, ?, ?)`,
		r.ID.String(), r.Name, string(cfgJSON), r.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert restaurant: %w", err)
	}
	return nil
}

// GetRestaurant loads a Restaurant by ID.
func (s *Store) GetRestaurant(ctx context.Context, id domain.ID) (*domain.Restaurant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, config_json, created_at FROM restaurants WHERE id = ?`, id.String())
	return scanRestaurant(row)
}

// UpdateRestaurantConfig persists a mutated RestaurantConfig (§6 config
// PATCH semantics: last-write-wins, bumping Version).
func (s *Store) UpdateRestaurantConfig(ctx context.Context, id domain.ID, cfg domain.RestaurantConfig) error {
	cfg.Version++
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal restaurant config: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE restaurants SET config_json = ? WHERE id = ?`, string(cfgJSON), id.String())
	if err != nil {
		return fmt.Errorf("update restaurant config: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.NotFound(component, "restaurant not found: "+id.String())
	}
	return nil
}

// ListRestaurants returns every restaurant, for startup wiring (camera
// supervisor registration, scheduled rollups) that operates across all
// tenants rather than one at a time.
func (s *Store) ListRestaurants(ctx context.Context) ([]domain.Restaurant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, config_json, created_at FROM restaurants`)
	if err != nil {
		return nil, fmt.Errorf("list restaurants: %w", err)
	}
	defer rows.Close()

	var out []domain.Restaurant
	for rows.Next() {
		var (
			r          domain.Restaurant
			idStr      string
			cfgJSON    string
			createdStr string
		)
		if err := rows.Scan(&idStr, &r.Name, &cfgJSON, &createdStr); err != nil {
			return nil, fmt.Errorf("scan restaurant: %w", err)
		}
		if r.ID, err = domain.ParseID(idStr); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(cfgJSON), &r.Config); err != nil {
			return nil, fmt.Errorf("unmarshal restaurant config: %w", err)
		}
		if r.CreatedAt, err = time.Parse(timeLayout, createdStr); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRestaurant(row *sql.Row) (*domain.Restaurant, error) {
	var (
		r          domain.Restaurant
		idStr      string
		cfgJSON    string
		createdStr string
	)
	if err := row.Scan(&idStr, &r.Name, &cfgJSON, &createdStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(component, "restaurant not found")
		}
		return nil, fmt.Errorf("scan restaurant: %w", err)
	}
	id, err := domain.ParseID(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse restaurant id: %w", err)
	}
	r.ID = id
	if err := json.Unmarshal([]byte(cfgJSON), &r.Config); err != nil {
		return nil, fmt.Errorf("unmarshal restaurant config: %w", err)
	}
	createdAt, err := time.Parse(timeLayout, createdStr)
	if err != nil {
		return nil, fmt.Errorf("parse restaurant created_at: %w", err)
	}
	r.CreatedAt = createdAt
	return &r, nil
}

// CreateSection inserts a Section under a Restaurant.
func (s *Store) CreateSection(ctx context.Context, sec *domain.Section) error {
	if sec.ID.IsNil() {
		sec.ID = domain.NewID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sections (id, restaurant_id, name, position) VALUES (?, ?, ?, ?)`,
		sec.ID.String(), sec.RestaurantID.String(), sec.Name, sec.Position,
	)
	if err != nil {
		return fmt.Errorf("insert section: %w", err)
	}
	return nil
}

// ListSections returns all sections of a restaurant ordered by position.
func (s *Store) ListSections(ctx context.Context, restaurantID domain.ID) ([]domain.Section, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, restaurant_id, name, position FROM sections WHERE restaurant_id = ? ORDER BY position`,
		restaurantID.String())
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	var out []domain.Section
	for rows.Next() {
		var sec domain.Section
		var id, restID string
		if err := rows.Scan(&id, &restID, &sec.Name, &sec.Position); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		sec.ID, err = domain.ParseID(id)
		if err != nil {
			return nil, err
		}
		sec.RestaurantID, err = domain.ParseID(restID)
		if err != nil {
			return nil, err
		}
		out = append(out, sec)
	}
	return out, rows.Err()
}
