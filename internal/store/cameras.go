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

// CreateCamera inserts a Camera.
func (s *Store) CreateCamera(ctx context.Context, c *domain.Camera) error {
	if c.ID.IsNil() {
		c.ID = domain.NewID()
	}
	c.CreatedAt = time.Now().UTC()

	var cropJSON sql.NullString
	if c.CropJSON != nil {
		raw, err := json.Marshal(c.CropJSON)
		if err != nil {
			return fmt.Errorf("marshal crop json: %w", err)
		}
		cropJSON = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cameras (id, restaurant_id, video_source_uri, crop_json, last_capture_at,
			last_frame_index, degraded, degraded_reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.RestaurantID.String(), c.VideoSourceURI, cropJSON, nullableTime(nonZeroTime(c.LastCaptureAt)),
		c.LastFrameIndex, boolToInt(c.Degraded), c.DegradedReason, c.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert camera: %w", err)
	}
	return nil
}

func nonZeroTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// GetCamera loads a Camera by ID.
func (s *Store) GetCamera(ctx context.Context, id domain.ID) (*domain.Camera, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, restaurant_id, video_source_uri, crop_json, last_capture_at, last_frame_index,
			degraded, degraded_reason, created_at FROM cameras WHERE id = ?`, id.String())

	var (
		idStr, restID, uri string
		cropJSON           sql.NullString
		lastCapture        sql.NullString
		lastFrameIndex     int64
		degraded           int
		degradedReason     string
		created            string
	)
	if err := row.Scan(&idStr, &restID, &uri, &cropJSON, &lastCapture, &lastFrameIndex,
		&degraded, &degradedReason, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(component, "camera not found")
		}
		return nil, fmt.Errorf("scan camera: %w", err)
	}

	cam := &domain.Camera{VideoSourceURI: uri, LastFrameIndex: lastFrameIndex, Degraded: degraded != 0, DegradedReason: degradedReason}
	var err error
	if cam.ID, err = domain.ParseID(idStr); err != nil {
		return nil, err
	}
	if cam.RestaurantID, err = domain.ParseID(restID); err != nil {
		return nil, err
	}
	if cropJSON.Valid {
		var cj domain.CropJSON
		if err := json.Unmarshal([]byte(cropJSON.String), &cj); err != nil {
			return nil, fmt.Errorf("unmarshal crop json: %w", err)
		}
		cam.CropJSON = &cj
	}
	if lastCapture.Valid {
		if cam.LastCaptureAt, err = time.Parse(timeLayout, lastCapture.String); err != nil {
			return nil, err
		}
	}
	if cam.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, err
	}
	return cam, nil
}

// ListCameras returns every camera belonging to a restaurant.
func (s *Store) ListCameras(ctx context.Context, restaurantID domain.ID) ([]domain.ID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM cameras WHERE restaurant_id = ?`, restaurantID.String())
	if err != nil {
		return nil, fmt.Errorf("list cameras: %w", err)
	}
	defer rows.Close()
	var ids []domain.ID
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, err
		}
		id, err := domain.ParseID(idStr)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateCameraCropJSON installs a new crop-JSON document on a camera,
// per §6; the caller is responsible for invalidating the redis cache.
func (s *Store) UpdateCameraCropJSON(ctx context.Context, cameraID domain.ID, cj *domain.CropJSON) error {
	raw, err := json.Marshal(cj)
	if err != nil {
		return fmt.Errorf("marshal crop json: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE cameras SET crop_json = ? WHERE id = ?`, string(raw), cameraID.String())
	if err != nil {
		return fmt.Errorf("update camera crop json: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.NotFound(component, "camera not found: "+cameraID.String())
	}
	return nil
}

// SetCameraDegraded marks a camera degraded or healthy (§4.6's per-camera
// isolation: a degraded camera's failures never propagate beyond itself).
func (s *Store) SetCameraDegraded(ctx context.Context, cameraID domain.ID, degraded bool, reason string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE cameras SET degraded = ?, degraded_reason = ? WHERE id = ?`,
		boolToInt(degraded), reason, cameraID.String())
	if err != nil {
		return fmt.Errorf("set camera degraded: %w", err)
	}
	return nil
}

// AdvanceCameraFrame records the most recent successful capture.
func (s *Store) AdvanceCameraFrame(ctx context.Context, cameraID domain.ID, frameIndex int64, capturedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE cameras SET last_frame_index = ?, last_capture_at = ? WHERE id = ?`,
		frameIndex, capturedAt.Format(timeLayout), cameraID.String())
	if err != nil {
		return fmt.Errorf("advance camera frame: %w", err)
	}
	return nil
}

// ErrDuplicateDispatch is returned by AppendCropDispatch when the
// (camera, json_table_id, frame_index) key already exists.
var ErrDuplicateDispatch = domain.Conflict(component, "duplicate crop dispatch")

// AppendCropDispatch inserts a new CropDispatchLog row, relying on the
// (camera_id, json_table_id, frame_index) unique index for idempotence
// per §4.1/§4.5. Returns ErrDuplicateDispatch if already present.
func (s *Store) AppendCropDispatch(ctx context.Context, log *domain.CropDispatchLog) error {
	if log.ID.IsNil() {
		log.ID = domain.NewID()
	}
	now := time.Now().UTC()
	log.CreatedAt, log.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO crop_dispatch_log (id, camera_id, json_table_id, frame_index, status, attempts, last_error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID.String(), log.CameraID.String(), log.JSONTableID, log.FrameIndex, string(log.Status),
		log.Attempts, log.LastError, now.Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return ErrDuplicateDispatch
		}
		return fmt.Errorf("insert crop dispatch log: %w", err)
	}
	return nil
}

// UpdateCropDispatchResult records the terminal outcome of a dispatch
// attempt (§4.5).
func (s *Store) UpdateCropDispatchResult(ctx context.Context, id domain.ID, status domain.DispatchStatus, attempts int, lastError string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE crop_dispatch_log SET status = ?, attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		string(status), attempts, lastError, time.Now().UTC().Format(timeLayout), id.String())
	if err != nil {
		return fmt.Errorf("update crop dispatch result: %w", err)
	}
	return nil
}

// isUniqueConstraintErr matches on error text rather than a typed error:
// modernc.org/sqlite wraps the underlying libsqlite3 message without a
// stable exported constraint-violation type.
func isUniqueConstraintErr(err error) bool {
	return containsUniqueConstraint(err.Error())
}

func containsUniqueConstraint(msg string) bool {
	for _, needle := range []string{"UNIQUE constraint failed", "constraint failed: UNIQUE"} {
		if contains(msg, needle) {
			return true
		}
	}
	return false
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
