package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/gps_imu_localization/internal/app"
	"github.com/relabs-tech/gps_imu_localization/internal/config"
)

func main() {
	configPath := flag.String("config", "./localization_config.txt", "path to configuration file")
	flag.Parse()

	log.Println("starting GPS producer (NMEA → MQTT)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunGPSProducer(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
