/*
Package classifier implements C5, the Classifier Dispatcher: ships a
TableCrop to the external classifier endpoint under an in-flight cap,
idempotent dedupe, and bounded retry, then maps the result back through
C2. Grounded on the teacher gateway's provider.go (http client + per-call
context timeout) and its use of github.com/cenkalti/backoff/v4 for
exponential-backoff retry around provider calls.
*/
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/alfred-ops/restaurant-core/internal/crop"
	"github.com/alfred-ops/restaurant-core/internal/domain"
	"github.com/alfred-ops/restaurant-core/internal/store"
)

const component = "classifier"

// Label is a classifier verdict, restricted to the table states the
// classifier is allowed to assert (§4.5).
type Label string

const (
	LabelClean    Label = "clean"
	LabelOccupied Label = "occupied"
	LabelDirty    Label = "dirty"
)

// Result is the decoded response of a successful classification.
type Result struct {
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
}

// TableMapper resolves a json_table_id to a physical Table via a
// Camera's last installed crop-JSON mapping (§6), with a redis-backed
// cache in front of the authoritative store lookup.
type TableMapper interface {
	TableID(ctx context.Context, cameraID domain.ID, jsonTableID string) (domain.ID, bool)
}

// Dispatcher is C5. One Dispatcher instance is shared across all cameras;
// per-camera concurrency is capped internally.
type Dispatcher struct {
	store          *store.Store
	mapper         TableMapper
	httpClient     *http.Client
	endpoint       string
	maxInFlight    int64
	attemptTimeout time.Duration
	logger         zerolog.Logger

	sem *cameraSemaphores
}

// New builds a Dispatcher.
func New(st *store.Store, mapper TableMapper, endpoint string, maxInFlightPerCamera int, attemptTimeout time.Duration, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:          st,
		mapper:         mapper,
		httpClient:     &http.Client{},
		endpoint:       endpoint,
		maxInFlight:    int64(maxInFlightPerCamera),
		attemptTimeout: attemptTimeout,
		logger:         logger.With().Str("component", component).Logger(),
		sem:            newCameraSemaphores(),
	}
}

// cameraSemaphores lazily creates a per-camera weighted semaphore, so
// different cameras never contend on the same in-flight counter. The map
// itself is guarded by mu since Dispatch runs concurrently across cameras.
type cameraSemaphores struct {
	mu   sync.Mutex
	sems map[domain.ID]*semaphore.Weighted
}

func newCameraSemaphores() *cameraSemaphores {
	return &cameraSemaphores{sems: make(map[domain.ID]*semaphore.Weighted)}
}

func (c *cameraSemaphores) get(cameraID domain.ID, max int64) *semaphore.Weighted {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sem, ok := c.sems[cameraID]; ok {
		return sem
	}
	sem := semaphore.NewWeighted(max)
	c.sems[cameraID] = sem
	return sem
}

// Dispatch submits one TableCrop for classification, per §4.5's full
// pipeline: in-flight cap, idempotent dedupe, retry, result mapping.
func (d *Dispatcher) Dispatch(ctx context.Context, cameraID domain.ID, tc crop.TableCrop, frameIndex int64, frameTimestamp time.Time) error {
	sem := d.sem.get(cameraID, d.maxInFlight)
	if !sem.TryAcquire(1) {
		d.logger.Warn().
			Str("camera_id", cameraID.String()).
			Str("json_table_id", tc.JSONTableID).
			Msg("backpressure: in-flight cap reached, dropping crop")
		return nil
	}
	defer sem.Release(1)

	logEntry := &domain.CropDispatchLog{
		CameraID:    cameraID,
		JSONTableID: tc.JSONTableID,
		FrameIndex:  frameIndex,
		Status:      domain.DispatchQueued,
	}
	if err := d.store.AppendCropDispatch(ctx, logEntry); err != nil {
		if err == store.ErrDuplicateDispatch {
			return nil // already dispatched; idempotent short-circuit
		}
		return fmt.Errorf("append crop dispatch: %w", err)
	}

	result, attempts, dispatchErr := d.classifyWithRetry(ctx, tc)
	if dispatchErr != nil {
		_ = d.store.UpdateCropDispatchResult(ctx, logEntry.ID, domain.DispatchFailed, attempts, dispatchErr.Error())
		return dispatchErr
	}

	if err := d.store.UpdateCropDispatchResult(ctx, logEntry.ID, domain.DispatchSucceeded, attempts, ""); err != nil {
		return fmt.Errorf("update crop dispatch result: %w", err)
	}

	tableID, ok := d.mapper.TableID(ctx, cameraID, tc.JSONTableID)
	if !ok {
		d.logger.Warn().
			Str("camera_id", cameraID.String()).
			Str("json_table_id", tc.JSONTableID).
			Msg("unmapped table: dropping classifier result")
		return nil
	}

	attribution := fmt.Sprintf("classifier@%s", frameTimestamp.Format(time.RFC3339))
	_, err := d.store.UpdateTableState(ctx, tableID, domain.TableState(result.Label), result.Confidence, domain.SourceML, attribution)
	if err != nil && !domain.IsKind(err, domain.KindInvariant) {
		return fmt.Errorf("apply classifier result: %w", err)
	}
	return nil
}

// retryableHTTPError carries a status code so the backoff policy can
// decide retryability without parsing strings.
type retryableHTTPError struct {
	status int
}

func (e *retryableHTTPError) Error() string {
	return fmt.Sprintf("classifier returned status %d", e.status)
}

// authError is a non-retryable permanent failure for 401/403 (§4.5).
type authError struct {
	status int
}

func (e *authError) Error() string {
	return fmt.Sprintf("classifier auth error: status %d", e.status)
}

func (d *Dispatcher) classifyWithRetry(ctx context.Context, tc crop.TableCrop) (Result, int, error) {
	var (
		result   Result
		attempts int
	)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 1 * time.Second
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0 // bounded by WithMaxRetries below, not elapsed time
	policy := backoff.WithMaxRetries(bo, 2) // 3 total attempts: initial + 2 retries

	op := func() error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
		defer cancel()

		r, err := d.classifyOnce(attemptCtx, tc)
		if err == nil {
			result = r
			return nil
		}

		var authErr *authError
		if asAuthError(err, &authErr) {
			return backoff.Permanent(err)
		}
		var httpErr *retryableHTTPError
		if asRetryableHTTPError(err, &httpErr) {
			return err // retry
		}
		// Connect/read timeout and other transport errors are retryable.
		return err
	}

	err := backoff.Retry(op, policy)
	if err != nil {
		return Result{}, attempts, err
	}
	return result, attempts, nil
}

func asAuthError(err error, target **authError) bool {
	if ae, ok := err.(*authError); ok {
		*target = ae
		return true
	}
	return false
}

func asRetryableHTTPError(err error, target **retryableHTTPError) bool {
	if he, ok := err.(*retryableHTTPError); ok {
		*target = he
		return true
	}
	return false
}

func (d *Dispatcher) classifyOnce(ctx context.Context, tc crop.TableCrop) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(tc.ImageBytes))
	if err != nil {
		return Result{}, backoff.Permanent(fmt.Errorf("build classifier request: %w", err))
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Table-Id", tc.JSONTableID)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("classifier request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Result{}, &authError{status: resp.StatusCode}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Result{}, &retryableHTTPError{status: resp.StatusCode}
	case resp.StatusCode >= 400:
		return Result{}, backoff.Permanent(&retryableHTTPError{status: resp.StatusCode})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read classifier response: %w", err)
	}
	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return Result{}, backoff.Permanent(fmt.Errorf("decode classifier response: %w", err))
	}
	return result, nil
}
