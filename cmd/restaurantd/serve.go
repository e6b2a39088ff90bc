package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/alfred-ops/restaurant-core/internal/camera"
	"github.com/alfred-ops/restaurant-core/internal/classifier"
	"github.com/alfred-ops/restaurant-core/internal/domain"
	"github.com/alfred-ops/restaurant-core/internal/frame"
	"github.com/alfred-ops/restaurant-core/internal/opsserver"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the camera pipeline and the internal ops server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	a.log.Info().Str("env", a.cfg.Env).Msg("restaurant-core starting")

	supervisor := camera.NewSupervisor(a.log)
	mapper := classifier.NewCameraTableMapper(a.store, a.redis, a.log)
	dispatcher := classifier.New(a.store, mapper, a.cfg.ClassifierEndpoint, a.cfg.MaxInFlightPerCamera, a.cfg.ClassifierAttemptTimeout, a.log)

	if err := registerCameras(ctx, a, supervisor, dispatcher); err != nil {
		return err
	}

	opsSrv := opsserver.New(a.store, a.redis, supervisor, a.registry, a.log)
	httpSrv := &http.Server{
		Addr:         a.cfg.OpsAddr,
		Handler:      opsSrv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	supervisorCtx, cancelSupervisor := context.WithCancel(ctx)
	defer cancelSupervisor()

	go func() {
		if err := supervisor.Run(supervisorCtx); err != nil {
			a.log.Error().Err(err).Msg("camera supervisor stopped with error")
		}
	}()

	go func() {
		a.log.Info().Str("addr", a.cfg.OpsAddr).Msg("ops server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Fatal().Err(err).Msg("ops server failed")
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	<-done
	a.log.Info().Msg("shutdown signal received")

	cancelSupervisor()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		a.log.Info().Msg("restaurant-core stopped gracefully")
	}
	return nil
}

// registerCameras loads every restaurant's cameras and registers a Worker
// for each with the supervisor, per §4.6.
func registerCameras(ctx context.Context, a *app, supervisor *camera.Supervisor, dispatcher *classifier.Dispatcher) error {
	restaurants, err := a.store.ListRestaurants(ctx)
	if err != nil {
		return err
	}

	captureEvery := time.Duration(a.cfg.CaptureIntervalSeconds) * time.Second
	sourceDeadline := time.Duration(a.cfg.VideoSourceTimeoutSeconds) * time.Second
	fs := afero.NewOsFs()

	for _, r := range restaurants {
		cameraIDs, err := a.store.ListCameras(ctx, r.ID)
		if err != nil {
			return err
		}
		for _, camID := range cameraIDs {
			cam, err := a.store.GetCamera(ctx, camID)
			if err != nil {
				a.log.Error().Err(err).Str("camera_id", camID.String()).Msg("failed to load camera at startup")
				continue
			}
			registerOneCamera(a, supervisor, dispatcher, fs, cam, captureEvery, sourceDeadline)
		}
	}
	return nil
}

func registerOneCamera(a *app, supervisor *camera.Supervisor, dispatcher *classifier.Dispatcher, fs afero.Fs,
	cam *domain.Camera, captureEvery, sourceDeadline time.Duration) {
	source := frame.NewSource(cam.VideoSourceURI, fs)
	worker := camera.NewWorker(cam.ID, source, a.store, dispatcher, captureEvery, sourceDeadline, a.log)
	supervisor.Register(worker)
}
