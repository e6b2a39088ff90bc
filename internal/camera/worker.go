/*
Package camera implements C6, the Camera Worker & Scheduler: one
long-running goroutine per registered Camera, fanned out and supervised
via golang.org/x/sync/errgroup, grounded on the teacher gateway's
provider.healthpoller ticker-loop-with-context-cancellation shape.
*/
package camera

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/alfred-ops/restaurant-core/internal/crop"
	"github.com/alfred-ops/restaurant-core/internal/domain"
	"github.com/alfred-ops/restaurant-core/internal/frame"
	"github.com/alfred-ops/restaurant-core/internal/store"
)

const component = "camera"

// CropDispatcher is the subset of classifier.Dispatcher a Worker needs.
type CropDispatcher interface {
	Dispatch(ctx context.Context, cameraID domain.ID, tc crop.TableCrop, frameIndex int64, frameTimestamp time.Time) error
}

// Worker drives the capture/extract/dispatch loop for one Camera.
type Worker struct {
	cameraID       domain.ID
	source         *frame.Source
	store          *store.Store
	dispatcher     CropDispatcher
	captureEvery   time.Duration
	sourceDeadline time.Duration
	logger         zerolog.Logger

	mu     sync.Mutex
	paused bool
}

// NewWorker builds a Worker for one camera.
func NewWorker(cameraID domain.ID, source *frame.Source, st *store.Store, dispatcher CropDispatcher,
	captureEvery, sourceDeadline time.Duration, logger zerolog.Logger) *Worker {
	return &Worker{
		cameraID:       cameraID,
		source:         source,
		store:          st,
		dispatcher:     dispatcher,
		captureEvery:   captureEvery,
		sourceDeadline: sourceDeadline,
		logger:         logger.With().Str("component", component).Str("camera_id", cameraID.String()).Logger(),
	}
}

// Pause suspends capture ticks without tearing down the worker.
func (w *Worker) Pause() {
	w.mu.Lock()
	w.paused = true
	w.mu.Unlock()
}

// Resume re-enables capture ticks.
func (w *Worker) Resume() {
	w.mu.Lock()
	w.paused = false
	w.mu.Unlock()
}

func (w *Worker) isPaused() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paused
}

// Run executes the capture loop until ctx is canceled, honoring §4.6's
// skip-missed-ticks semantics: the ticker fires on a fixed cadence and a
// slow iteration simply drops intervening ticks rather than queuing them.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.captureEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if w.isPaused() {
				continue
			}
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	captureCtx, cancel := context.WithTimeout(ctx, w.sourceDeadline)
	defer cancel()

	f, err := w.source.Fetch(captureCtx)
	if err != nil {
		w.markDegraded(ctx, err)
		return
	}
	w.clearDegraded(ctx)

	cam, err := w.store.GetCamera(ctx, w.cameraID)
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to load camera for crop extraction")
		return
	}
	if cam.CropJSON == nil {
		w.logger.Warn().Msg("camera has no installed crop-json; skipping extraction")
		w.advanceFrame(ctx, f)
		return
	}

	crops, err := crop.Extract(f.Bytes, cam.CropJSON, w.logger)
	if err != nil {
		w.logger.Error().Err(err).Msg("crop extraction failed")
		w.advanceFrame(ctx, f)
		return
	}

	// A started dispatch runs to completion or its own attempt timeouts
	// even if ctx is canceled; cancellation only stops new dispatches.
	dispatchCtx := context.WithoutCancel(ctx)
	for _, tc := range crops {
		if ctx.Err() != nil {
			break
		}
		// Dispatch is non-blocking with respect to backlog: the
		// dispatcher's in-flight semaphore enforces backpressure by
		// dropping over-cap submissions, so this call never queues.
		if err := w.dispatcher.Dispatch(dispatchCtx, w.cameraID, tc, f.FrameIndex, f.Timestamp); err != nil {
			w.logger.Warn().Err(err).Str("json_table_id", tc.JSONTableID).Msg("crop dispatch failed")
		}
	}

	w.advanceFrame(ctx, f)
}

func (w *Worker) advanceFrame(ctx context.Context, f *frame.Frame) {
	if err := w.store.AdvanceCameraFrame(ctx, w.cameraID, f.FrameIndex, f.Timestamp); err != nil {
		w.logger.Error().Err(err).Msg("failed to advance camera frame index")
	}
}

func (w *Worker) markDegraded(ctx context.Context, cause error) {
	w.logger.Warn().Err(cause).Msg("camera degraded: frame source unreachable")
	if err := w.store.SetCameraDegraded(ctx, w.cameraID, true, cause.Error()); err != nil {
		w.logger.Error().Err(err).Msg("failed to record camera degraded state")
	}
}

func (w *Worker) clearDegraded(ctx context.Context) {
	if err := w.store.SetCameraDegraded(ctx, w.cameraID, false, ""); err != nil {
		w.logger.Error().Err(err).Msg("failed to clear camera degraded state")
	}
}

// Supervisor fans workers out via errgroup.Group, isolating each
// worker's failures (§4.6: "failures isolate to that task") and
// supporting pause/resume across the whole registry.
type Supervisor struct {
	mu      sync.Mutex
	workers map[domain.ID]*Worker
	logger  zerolog.Logger
}

// NewSupervisor builds an empty Supervisor.
func NewSupervisor(logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		workers: make(map[domain.ID]*Worker),
		logger:  logger.With().Str("component", component).Logger(),
	}
}

// Register adds a camera worker, replacing any existing worker for the
// same camera (a crop-JSON install or re-registration).
func (sup *Supervisor) Register(w *Worker) {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	sup.workers[w.cameraID] = w
}

// PauseAll suspends every registered worker.
func (sup *Supervisor) PauseAll() {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	for _, w := range sup.workers {
		w.Pause()
	}
}

// ResumeAll resumes every registered worker.
func (sup *Supervisor) ResumeAll() {
	sup.mu.Lock()
	defer sup.mu.Unlock()
	for _, w := range sup.workers {
		w.Resume()
	}
}

// Run starts every registered worker and blocks until ctx is canceled or
// a worker returns a non-nil error. Run ends workers at the next safe
// point per §4.6's cancellation semantics: Worker.Run only checks ctx
// between ticks, never forcing termination of an in-flight dispatch.
func (sup *Supervisor) Run(ctx context.Context) error {
	sup.mu.Lock()
	workers := make([]*Worker, 0, len(sup.workers))
	for _, w := range sup.workers {
		workers = append(workers, w)
	}
	sup.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		w := w
		g.Go(func() error {
			return w.Run(gctx)
		})
	}
	return g.Wait()
}
