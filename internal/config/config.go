// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker               string
	MQTTClientIDLocalization string
	MQTTClientIDGPS          string
	MQTTClientIDIMU          string
	MQTTClientIDMock         string
	MQTTClientIDConsole      string
	MQTTClientIDWeb          string
	MQTTClientIDDisplay      string

	// Topics
	TopicGPSFix   string
	TopicIMUData  string
	TopicOdometry string
	TopicTF       string

	// Local origin (decimal degrees). Fixed for the lifetime of the process.
	OriginLatitude  float64
	OriginLongitude float64
	Projection      string // "utm" or "tangent"

	// Stream synchronization
	SyncSlop time.Duration

	// Filter noise model (variances)
	PositionPriorVariance   float64
	HeadingPriorVariance    float64
	PositionProcessVariance float64
	HeadingProcessVariance  float64
	MeasurementVariance     float64
	HeadingMode             string // "linear" or "wrapped"

	// Frames
	FrameBase       string
	FrameLocal      string
	FrameGlobal     string
	OdometryFrameID string

	// GPS
	GPSSerialPort string
	GPSBaudRate   int

	// IMU Hardware
	IMUSPIDevice string
	IMUCSPin     string
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange byte

	// Timing
	IMUSampleInterval int // milliseconds
	GPSMockInterval   int // milliseconds

	// HTTP
	CalibrationPort int
	WebServerPort   int

	// Track recorder; empty disables recording
	TrackDBPath string

	// Planned route drawn under the recorded track, local frame meters
	ReferenceRoute [][2]float64

	// Display
	DisplayI2CAddr        uint16
	DisplayUpdateInterval int // milliseconds
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal and Get.
//   - configOnce: ensures InitGlobal() only runs once.
//   - configMu: write lock for initialization, read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the stock configuration:
// 0.1 s synchronizer slop, prior sigma 100 m / 10 rad, process sigma
// 2 m / 0.5 rad and a measurement variance of 0.05 on every axis.
func Default() *Config {
	return &Config{
		MQTTBroker:               "tcp://localhost:1883",
		MQTTClientIDLocalization: "localization-gps-imu",
		MQTTClientIDGPS:          "localization-gps-producer",
		MQTTClientIDIMU:          "localization-imu-producer",
		MQTTClientIDMock:         "localization-mock-producer",
		MQTTClientIDConsole:      "localization-console",
		MQTTClientIDWeb:          "localization-web",
		MQTTClientIDDisplay:      "localization-display",

		TopicGPSFix:   "localization/fix",
		TopicIMUData:  "localization/imu/data",
		TopicOdometry: "localization/odometry",
		TopicTF:       "localization/tf",

		Projection: "utm",

		SyncSlop: 100 * time.Millisecond,

		PositionPriorVariance:   100 * 100,
		HeadingPriorVariance:    10 * 10,
		PositionProcessVariance: 2 * 2,
		HeadingProcessVariance:  0.5 * 0.5,
		MeasurementVariance:     0.05,
		HeadingMode:             "linear",

		FrameBase:       "base_link",
		FrameLocal:      "odom",
		FrameGlobal:     "utm",
		OdometryFrameID: "map",

		GPSSerialPort: "/dev/serial0",
		GPSBaudRate:   9600,

		IMUSPIDevice: "/dev/spidev0.0",
		IMUCSPin:     "8",

		IMUSampleInterval: 20,
		GPSMockInterval:   200,

		CalibrationPort: 8081,
		WebServerPort:   8080,

		ReferenceRoute: [][2]float64{{0, 7}, {0, -21}, {28, -21}, {28, 7}, {0, 7}},

		DisplayI2CAddr:        0x3C,
		DisplayUpdateInterval: 250,
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads KEY=VALUE lines on top of Default().
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error

	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_LOCALIZATION":
		c.MQTTClientIDLocalization = value
	case "MQTT_CLIENT_ID_GPS":
		c.MQTTClientIDGPS = value
	case "MQTT_CLIENT_ID_IMU":
		c.MQTTClientIDIMU = value
	case "MQTT_CLIENT_ID_MOCK":
		c.MQTTClientIDMock = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_GPS_FIX":
		c.TopicGPSFix = value
	case "TOPIC_IMU_DATA":
		c.TopicIMUData = value
	case "TOPIC_ODOMETRY":
		c.TopicOdometry = value
	case "TOPIC_TF":
		c.TopicTF = value

	// Origin
	case "ORIGIN_LATITUDE":
		c.OriginLatitude, err = parseFloat(key, value)
	case "ORIGIN_LONGITUDE":
		c.OriginLongitude, err = parseFloat(key, value)
	case "PROJECTION":
		if value != "utm" && value != "tangent" {
			return fmt.Errorf("PROJECTION must be utm or tangent, got %q", value)
		}
		c.Projection = value

	// Synchronizer
	case "SYNC_SLOP_MS":
		ms, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SYNC_SLOP_MS %q: %w", value, err)
		}
		if ms <= 0 {
			return fmt.Errorf("SYNC_SLOP_MS must be positive, got %d", ms)
		}
		c.SyncSlop = time.Duration(ms) * time.Millisecond

	// Filter
	case "FILTER_POSITION_PRIOR_VAR":
		c.PositionPriorVariance, err = parseFloat(key, value)
	case "FILTER_HEADING_PRIOR_VAR":
		c.HeadingPriorVariance, err = parseFloat(key, value)
	case "FILTER_POSITION_PROCESS_VAR":
		c.PositionProcessVariance, err = parseFloat(key, value)
	case "FILTER_HEADING_PROCESS_VAR":
		c.HeadingProcessVariance, err = parseFloat(key, value)
	case "FILTER_MEASUREMENT_VAR":
		c.MeasurementVariance, err = parseFloat(key, value)
	case "FILTER_HEADING_MODE":
		if value != "linear" && value != "wrapped" {
			return fmt.Errorf("FILTER_HEADING_MODE must be linear or wrapped, got %q", value)
		}
		c.HeadingMode = value

	// Frames
	case "FRAME_BASE":
		c.FrameBase = value
	case "FRAME_LOCAL":
		c.FrameLocal = value
	case "FRAME_GLOBAL":
		c.FrameGlobal = value
	case "ODOMETRY_FRAME_ID":
		c.OdometryFrameID = value

	// GPS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid GPS_BAUD_RATE %q: %w", value, err)
		}
		c.GPSBaudRate = rate

	// IMU
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_GYRO_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_GYRO_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_GYRO_RANGE must be 0-3 (0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s), got %d", rangeVal)
		}
		c.IMUGyroRange = byte(rangeVal)

	// Timing
	case "IMU_SAMPLE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_SAMPLE_INTERVAL %q: %w", value, err)
		}
		c.IMUSampleInterval = interval
	case "GPS_MOCK_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid GPS_MOCK_INTERVAL %q: %w", value, err)
		}
		c.GPSMockInterval = interval

	// HTTP
	case "CALIBRATION_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CALIBRATION_PORT %q: %w", value, err)
		}
		c.CalibrationPort = port
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port

	case "TRACK_DB_PATH":
		c.TrackDBPath = value
	case "REFERENCE_ROUTE":
		route, err := parseRoute(value)
		if err != nil {
			return err
		}
		c.ReferenceRoute = route

	// Display
	case "DISPLAY_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, err)
		}
		c.DisplayI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, err)
		}
		c.DisplayUpdateInterval = interval

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// parseRoute reads "x,y;x,y;..." into points. An empty value clears the route.
func parseRoute(value string) ([][2]float64, error) {
	var route [][2]float64
	for _, pt := range strings.Split(value, ";") {
		pt = strings.TrimSpace(pt)
		if pt == "" {
			continue
		}
		xy := strings.Split(pt, ",")
		if len(xy) != 2 {
			return nil, fmt.Errorf("invalid REFERENCE_ROUTE point %q", pt)
		}
		x, err := parseFloat("REFERENCE_ROUTE", strings.TrimSpace(xy[0]))
		if err != nil {
			return nil, err
		}
		y, err := parseFloat("REFERENCE_ROUTE", strings.TrimSpace(xy[1]))
		if err != nil {
			return nil, err
		}
		route = append(route, [2]float64{x, y})
	}
	return route, nil
}

func parseFloat(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s must be finite, got %q", key, value)
	}
	return v, nil
}

// validate checks that required fields are set and values are in range.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.TopicGPSFix == "" || c.TopicIMUData == "" || c.TopicOdometry == "" || c.TopicTF == "" {
		return fmt.Errorf("TOPIC_GPS_FIX, TOPIC_IMU_DATA, TOPIC_ODOMETRY and TOPIC_TF are required")
	}
	if c.OriginLatitude < -90 || c.OriginLatitude > 90 {
		return fmt.Errorf("ORIGIN_LATITUDE must be within [-90, 90], got %v", c.OriginLatitude)
	}
	if c.OriginLongitude < -180 || c.OriginLongitude > 180 {
		return fmt.Errorf("ORIGIN_LONGITUDE must be within [-180, 180], got %v", c.OriginLongitude)
	}
	if c.PositionPriorVariance <= 0 || c.HeadingPriorVariance <= 0 {
		return fmt.Errorf("prior variances must be positive")
	}
	if c.PositionProcessVariance < 0 || c.HeadingProcessVariance < 0 || c.MeasurementVariance < 0 {
		return fmt.Errorf("process and measurement variances must not be negative")
	}
	if c.GPSBaudRate == 0 {
		return fmt.Errorf("GPS_BAUD_RATE is required")
	}
	if c.IMUSampleInterval <= 0 {
		return fmt.Errorf("IMU_SAMPLE_INTERVAL must be positive")
	}
	if c.GPSMockInterval <= 0 {
		return fmt.Errorf("GPS_MOCK_INTERVAL must be positive")
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
