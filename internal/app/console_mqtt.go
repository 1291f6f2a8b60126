package app

import (
	"fmt"
	"log"

	"github.com/relabs-tech/gps_imu_localization/internal/config"
	"github.com/relabs-tech/gps_imu_localization/internal/gps"
	"github.com/relabs-tech/gps_imu_localization/internal/localization"
	"github.com/relabs-tech/gps_imu_localization/internal/orientation"
)

func RunConsoleMQTT() error {
	cfg := config.Get()

	client, err := connectMQTT("console", cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}

	// Fused odometry
	if err := subscribeJSON("console", client, cfg.TopicOdometry, func(o localization.Odometry) {
		fmt.Printf(
			"[ODOM] %s  X=%8.3f  Y=%8.3f  YAW=%7.4f  var=(%.3f, %.3f, %.4f)\n",
			o.Time.Format("15:04:05.000"), o.Position.X, o.Position.Y, o.Heading,
			o.Variance[0], o.Variance[1], o.Variance[3],
		)
	}); err != nil {
		return err
	}

	// Frame transforms
	if err := subscribeJSON("console", client, cfg.TopicTF, func(tfs []localization.Transform) {
		for _, tf := range tfs {
			yaw, _ := orientation.Yaw(tf.Rotation)
			fmt.Printf(
				"[TF  ] %s -> %s  t=(%.3f, %.3f, %.3f)  yaw=%7.4f\n",
				tf.Parent, tf.Child, tf.Translation.X, tf.Translation.Y, tf.Translation.Z, yaw,
			)
		}
	}); err != nil {
		return err
	}

	// Raw inputs
	if err := subscribeJSON("console", client, cfg.TopicGPSFix, func(f gps.Fix) {
		fmt.Printf(
			"[GPS ] time=%s lat=%.7f lon=%.7f speed=%.1fkn course=%.1f° sats=%d hdop=%.1f\n",
			f.UTC, f.Latitude, f.Longitude, f.SpeedKnots, f.CourseDeg, f.Satellites, f.HDOP,
		)
	}); err != nil {
		return err
	}
	if err := subscribeJSON("console", client, cfg.TopicIMUData, func(s orientation.Sample) {
		p, err := orientation.Euler(s.Orientation)
		if err != nil {
			log.Printf("console: imu sample: %v", err)
			return
		}
		fmt.Printf("[IMU ] ROLL=%6.2f  PITCH=%6.2f  YAW=%6.2f\n", p.Roll, p.Pitch, p.Yaw)
	}); err != nil {
		return err
	}

	// Wait for Ctrl+C
	ctx, cancel := signalContext()
	defer cancel()
	<-ctx.Done()

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
