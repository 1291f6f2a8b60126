// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/gps_imu_localization/internal/config"
	"github.com/relabs-tech/gps_imu_localization/internal/filter"
	"github.com/relabs-tech/gps_imu_localization/internal/geodesy"
	"github.com/relabs-tech/gps_imu_localization/internal/gps"
	"github.com/relabs-tech/gps_imu_localization/internal/localization"
	"github.com/relabs-tech/gps_imu_localization/internal/orientation"
	"github.com/relabs-tech/gps_imu_localization/internal/timesync"
	"github.com/relabs-tech/gps_imu_localization/internal/track"
)

// inboxSize bounds how many undelivered samples an MQTT callback may park
// before it starts dropping. The synchronizer keeps only the latest anyway.
const inboxSize = 16

// newLocalizer builds the transformer, filter and frame chain described by cfg.
func newLocalizer(cfg *config.Config) (*localization.Localizer, error) {
	origin := geodesy.Origin{Latitude: cfg.OriginLatitude, Longitude: cfg.OriginLongitude}
	tr, err := geodesy.New(cfg.Projection, origin)
	if err != nil {
		return nil, fmt.Errorf("origin: %w", err)
	}
	params := filter.Params{
		PositionPriorVariance:   cfg.PositionPriorVariance,
		HeadingPriorVariance:    cfg.HeadingPriorVariance,
		PositionProcessVariance: cfg.PositionProcessVariance,
		HeadingProcessVariance:  cfg.HeadingProcessVariance,
		MeasurementVariance:     cfg.MeasurementVariance,
		HeadingMode:             filter.HeadingMode(cfg.HeadingMode),
	}
	frames := localization.Frames{
		Base:     cfg.FrameBase,
		Local:    cfg.FrameLocal,
		Global:   cfg.FrameGlobal,
		Odometry: cfg.OdometryFrameID,
	}
	return localization.New(tr, params, frames)
}

// newSynchronizer pairs samples within cfg.SyncSlop. Samples loc cannot use
// are logged under prefix and dropped before they reach a pending slot.
func newSynchronizer(cfg *config.Config, loc *localization.Localizer, prefix string) *timesync.Synchronizer {
	return timesync.New(cfg.SyncSlop,
		timesync.WithFixCheck(func(f gps.Fix) error {
			err := loc.CheckFix(f)
			if err != nil {
				log.Printf("%s: rejecting %v", prefix, err)
			}
			return err
		}),
		timesync.WithOrientationCheck(func(s orientation.Sample) error {
			err := loc.CheckOrientation(s)
			if err != nil {
				log.Printf("%s: rejecting %v", prefix, err)
			}
			return err
		}),
	)
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// logSink prints each fused pose.
func logSink(odom localization.Odometry) {
	log.Printf("localization: X = %.3f, Y = %.3f, Yaw = %.4f", odom.Position.X, odom.Position.Y, odom.Heading)
}

// RunLocalization subscribes to position fixes and orientation samples,
// fuses them and publishes odometry plus the frame transforms. The heading
// offset can be changed at runtime on the calibration port.
func RunLocalization() error {
	cfg := config.Get()

	loc, err := newLocalizer(cfg)
	if err != nil {
		return err
	}
	syncer := newSynchronizer(cfg, loc, "localization")
	log.Printf("localization: pairing fixes and orientation within %s", syncer.Slop())

	client, err := connectMQTT("localization", cfg.MQTTBroker, cfg.MQTTClientIDLocalization)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	fixes := make(chan gps.Fix, inboxSize)
	samples := make(chan orientation.Sample, inboxSize)

	if err := subscribeJSON("localization", client, cfg.TopicGPSFix, func(f gps.Fix) {
		if f.Time.IsZero() {
			f.Time = time.Now()
		}
		select {
		case fixes <- f:
		default:
			log.Printf("localization: fix inbox full, dropping fix at %s", f.Time.Format("15:04:05.000"))
		}
	}); err != nil {
		return err
	}
	if err := subscribeJSON("localization", client, cfg.TopicIMUData, func(s orientation.Sample) {
		if s.Time.IsZero() {
			s.Time = time.Now()
		}
		select {
		case samples <- s:
		default:
			log.Printf("localization: imu inbox full, dropping sample at %s", s.Time.Format("15:04:05.000"))
		}
	}); err != nil {
		return err
	}

	sinks := []localization.Sink{
		func(odom localization.Odometry) {
			if err := publishJSON(client, cfg.TopicOdometry, false, odom); err != nil {
				log.Printf("localization: %v", err)
			}
			if err := publishJSON(client, cfg.TopicTF, false, odom.Transforms); err != nil {
				log.Printf("localization: %v", err)
			}
		},
		logSink,
	}

	if cfg.TrackDBPath != "" {
		db, err := track.Open(cfg.TrackDBPath)
		if err != nil {
			return fmt.Errorf("track db: %w", err)
		}
		defer db.Close()
		origin := loc.Origin()
		session, err := db.StartSession(origin.Latitude, origin.Longitude)
		if err != nil {
			return err
		}
		log.Printf("localization: recording track session %s to %s", session, cfg.TrackDBPath)
		sinks = append(sinks, db.Sink(session, func(err error) {
			log.Printf("localization: track record error: %v", err)
		}))
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.CalibrationPort),
		Handler: NewCalibrationHandler(loc, syncer),
	}
	go func() {
		log.Printf("localization: calibration server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("localization: calibration server error: %v", err)
		}
	}()

	ctx, cancel := signalContext()
	defer cancel()

	pairs := syncer.Run(ctx, fixes, samples)
	err = loc.Run(ctx, pairs, sinks...)
	log.Println("localization: shutting down")

	shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("localization: calibration server shutdown: %v", err)
	}

	st := syncer.Stats()
	log.Printf("localization: matched=%d superseded=%d stale=%d rejected=%d", st.Matched, st.Superseded, st.Stale, st.Rejected)

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
