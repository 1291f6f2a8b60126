package app

import (
	"log"
	"time"

	"github.com/relabs-tech/gps_imu_localization/internal/config"
	"github.com/relabs-tech/gps_imu_localization/internal/orientation"
)

// RunIMUProducer reads orientation from the MPU9250 and publishes one sample
// per tick on the IMU topic.
func RunIMUProducer() error {
	cfg := config.Get()

	src, err := orientation.NewIMUSource(cfg.IMUSPIDevice, cfg.IMUCSPin, cfg.IMUGyroRange)
	if err != nil {
		return err
	}
	log.Printf("imu: MPU9250 ready on %s (cs %s)", cfg.IMUSPIDevice, cfg.IMUCSPin)

	client, err := connectMQTT("imu", cfg.MQTTBroker, cfg.MQTTClientIDIMU)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	ticker := time.NewTicker(time.Duration(cfg.IMUSampleInterval) * time.Millisecond)
	defer ticker.Stop()

	var published int
	for t := range ticker.C {
		sample, err := src.Next()
		if err != nil {
			log.Printf("imu: read error: %v", err)
			continue
		}
		if err := publishJSON(client, cfg.TopicIMUData, false, sample); err != nil {
			log.Printf("imu: %v", err)
			continue
		}

		// log roughly once a second
		published++
		if published%max(1, 1000/cfg.IMUSampleInterval) == 0 {
			pose, err := orientation.Euler(sample.Orientation)
			if err != nil {
				log.Printf("imu: %v", err)
				continue
			}
			log.Printf("%s imu: R=%.2f P=%.2f Y=%.2f", t.Format(time.RFC3339), pose.Roll, pose.Pitch, pose.Yaw)
		}
	}
	return nil
}
