package app

import (
	"context"
	"log"
	"time"

	"github.com/relabs-tech/gps_imu_localization/internal/config"
	"github.com/relabs-tech/gps_imu_localization/internal/gps"
	"github.com/relabs-tech/gps_imu_localization/internal/orientation"
)

// Bench trajectory: a circle around the origin driven counter-clockwise.
const (
	mockRadius     = 20.0 // meters
	mockTurnRate   = 0.1  // rad/s
	mockNoiseSigma = 0.5  // meters
)

// mockFeeds starts the mock fix and orientation generators. Both channels
// are closed once ctx is done.
func mockFeeds(ctx context.Context, cfg *config.Config) (<-chan gps.Fix, <-chan orientation.Sample) {
	fixes := make(chan gps.Fix, inboxSize)
	samples := make(chan orientation.Sample, inboxSize)

	gpsSrc := gps.NewMockSource(cfg.OriginLatitude, cfg.OriginLongitude, mockRadius, mockTurnRate, mockNoiseSigma)
	imuSrc := orientation.NewMockSource(mockTurnRate)

	go func() {
		defer close(fixes)
		ticker := time.NewTicker(time.Duration(cfg.GPSMockInterval) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case fixes <- gpsSrc.Next():
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	go func() {
		defer close(samples)
		ticker := time.NewTicker(time.Duration(cfg.IMUSampleInterval) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s, err := imuSrc.Next()
				if err != nil {
					log.Printf("error from mock orientation source: %v", err)
					continue
				}
				select {
				case samples <- s:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return fixes, samples
}

// RunMockProducer publishes mock fixes and orientation samples to MQTT so
// the localization node can run on a bench without hardware.
func RunMockProducer() error {
	cfg := config.Get()

	client, err := connectMQTT("mock", cfg.MQTTBroker, cfg.MQTTClientIDMock)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	ctx, cancel := signalContext()
	defer cancel()

	fixes, samples := mockFeeds(ctx, cfg)
	for fixes != nil || samples != nil {
		select {
		case f, ok := <-fixes:
			if !ok {
				fixes = nil
				continue
			}
			if err := publishJSON(client, cfg.TopicGPSFix, false, f); err != nil {
				log.Printf("mock: %v", err)
				continue
			}
			log.Printf("mock: published fix lat=%.7f lon=%.7f", f.Latitude, f.Longitude)
		case s, ok := <-samples:
			if !ok {
				samples = nil
				continue
			}
			if err := publishJSON(client, cfg.TopicIMUData, false, s); err != nil {
				log.Printf("mock: %v", err)
			}
		}
	}
	log.Println("mock: shutting down")
	return nil
}
