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

// CreateDraftSchedule inserts a new draft Schedule at the next version
// number for its (restaurant, week) pair.
func (s *Store) CreateDraftSchedule(ctx context.Context, restaurantID domain.ID, weekStart time.Time, generatedBy domain.GeneratedBy) (*domain.Schedule, error) {
	var maxVersion sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(version) FROM schedules WHERE restaurant_id = ? AND week_start = ?`,
		restaurantID.String(), weekStart.Format(timeLayout)).Scan(&maxVersion)
	if err != nil {
		return nil, fmt.Errorf("select max schedule version: %w", err)
	}

	sched := &domain.Schedule{
		ID:           domain.NewID(),
		RestaurantID: restaurantID,
		WeekStart:    weekStart,
		Version:      int(maxVersion.Int64) + 1,
		Status:       domain.ScheduleDraft,
		GeneratedBy:  generatedBy,
		CreatedAt:    time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO schedules (id, restaurant_id, week_start, version, status, generated_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sched.ID.String(), sched.RestaurantID.String(), sched.WeekStart.Format(timeLayout), sched.Version,
		string(sched.Status), string(sched.GeneratedBy), sched.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("insert draft schedule: %w", err)
	}
	return sched, nil
}

// InsertScheduleItem adds one assignment to a draft schedule, with its
// ScheduleReasoning.
func (s *Store) InsertScheduleItem(ctx context.Context, item *domain.ScheduleItem, reasoning *domain.ScheduleReasoning) error {
	if item.ID.IsNil() {
		item.ID = domain.NewID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedule_items (id, schedule_id, waiter_id, role, section_id, date, start_minute, end_minute,
			source, preference_match_score, fairness_impact_score)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID.String(), item.ScheduleID.String(), item.WaiterID.String(), string(item.Role), nullableID(item.SectionID),
		item.Date.Format(timeLayout), item.StartMinute, item.EndMinute, string(item.Source),
		item.PreferenceMatchScore, item.FairnessImpactScore,
	)
	if err != nil {
		return fmt.Errorf("insert schedule item: %w", err)
	}

	if reasoning != nil {
		reasoning.ID = domain.NewID()
		reasoning.ScheduleItemID = item.ID
		lines, err := json.Marshal(reasoning.Lines)
		if err != nil {
			return fmt.Errorf("marshal schedule reasoning lines: %w", err)
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO schedule_reasoning (id, schedule_item_id, lines_json, llm_paragraph) VALUES (?, ?, ?, ?)`,
			reasoning.ID.String(), item.ID.String(), string(lines), reasoning.LLMParagraph,
		)
		if err != nil {
			return fmt.Errorf("insert schedule reasoning: %w", err)
		}
	}
	return nil
}

// PublishSchedule archives any previously published schedule for the
// same (restaurant, week) and marks the given draft published, per
// §4.1's publish_schedule.
func (s *Store) PublishSchedule(ctx context.Context, scheduleID domain.ID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var restaurantID, weekStart string
	if err := tx.QueryRowContext(ctx, `SELECT restaurant_id, week_start FROM schedules WHERE id = ?`, scheduleID.String()).
		Scan(&restaurantID, &weekStart); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound(component, "schedule not found: "+scheduleID.String())
		}
		return fmt.Errorf("select schedule for publish: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE schedules SET status = ? WHERE restaurant_id = ? AND week_start = ? AND status = ? AND id != ?`,
		string(domain.ScheduleArchived), restaurantID, weekStart, string(domain.SchedulePublished), scheduleID.String(),
	); err != nil {
		return fmt.Errorf("archive prior published schedule: %w", err)
	}

	res, err := tx.ExecContext(ctx, `UPDATE schedules SET status = ? WHERE id = ? AND status = ?`,
		string(domain.SchedulePublished), scheduleID.String(), string(domain.ScheduleDraft))
	if err != nil {
		return fmt.Errorf("publish schedule: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.Conflict(component, "schedule is not a draft: "+scheduleID.String())
	}

	return tx.Commit()
}

// ListScheduleItems returns every item of a schedule.
func (s *Store) ListScheduleItems(ctx context.Context, scheduleID domain.ID) ([]domain.ScheduleItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, schedule_id, waiter_id, role, section_id, date, start_minute, end_minute,
			source, preference_match_score, fairness_impact_score FROM schedule_items WHERE schedule_id = ?`,
		scheduleID.String())
	if err != nil {
		return nil, fmt.Errorf("list schedule items: %w", err)
	}
	defer rows.Close()

	var out []domain.ScheduleItem
	for rows.Next() {
		var (
			item                    domain.ScheduleItem
			idStr, schedID, waiterID string
			secID                   sql.NullString
			role, source            string
			date                    string
		)
		if err := rows.Scan(&idStr, &schedID, &waiterID, &role, &secID, &date, &item.StartMinute, &item.EndMinute,
			&source, &item.PreferenceMatchScore, &item.FairnessImpactScore); err != nil {
			return nil, fmt.Errorf("scan schedule item: %w", err)
		}
		var err error
		if item.ID, err = domain.ParseID(idStr); err != nil {
			return nil, err
		}
		if item.ScheduleID, err = domain.ParseID(schedID); err != nil {
			return nil, err
		}
		if item.WaiterID, err = domain.ParseID(waiterID); err != nil {
			return nil, err
		}
		if secID.Valid {
			if item.SectionID, err = domain.ParseID(secID.String); err != nil {
				return nil, err
			}
		}
		item.Role = domain.WaiterRole(role)
		item.Source = domain.GeneratedBy(source)
		if item.Date, err = time.Parse(timeLayout, date); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// RecordScheduleRun persists the outcome of one C11 run invocation.
func (s *Store) RecordScheduleRun(ctx context.Context, run *domain.ScheduleRun) error {
	if run.ID.IsNil() {
		run.ID = domain.NewID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedule_runs (id, restaurant_id, schedule_id, snapshot_id, status, error_message,
			items_created, total_hours, coverage_pct, fairness_gini, preference_avg, forecast_trend,
			understaffed_slots, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), run.RestaurantID.String(), nullableID(run.ScheduleID), run.SnapshotID.String(),
		string(run.Status), run.ErrorMessage, run.ItemsCreated, run.TotalHours, run.CoveragePct, run.FairnessGini,
		run.PreferenceAvg, run.ForecastTrend, run.UnderstaffedSlots, run.StartedAt.Format(timeLayout),
		nullableTime(&run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert schedule run: %w", err)
	}
	return nil
}
