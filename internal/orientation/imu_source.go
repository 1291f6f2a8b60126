package orientation

import (
	"fmt"
	"math"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"
)

// gyroSensitivity is LSB per °/s for each full-scale range setting.
var gyroSensitivity = [4]float64{131, 65.5, 32.8, 16.4}

type imuSource struct {
	imu   *mpu9250.MPU9250
	scale float64 // LSB per °/s

	yaw  float64
	last time.Time
}

// NewIMUSource initializes an MPU9250 over SPI and returns a Source that
// reads roll/pitch from the accelerometer and integrates yaw from the
// gyroscope Z axis. Yaw starts at 0 when the source is created.
func NewIMUSource(spiDev, csPin string, gyroRange byte) (Source, error) {
	if int(gyroRange) >= len(gyroSensitivity) {
		return nil, fmt.Errorf("IMU: gyro range %d out of range", gyroRange)
	}

	// Initialize periph host once.
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	cs := gpioreg.ByName(csPin)
	if cs == nil {
		return nil, fmt.Errorf("IMU CS pin %q not found", csPin)
	}

	tr, err := mpu9250.NewSpiTransport(spiDev, cs)
	if err != nil {
		return nil, fmt.Errorf("IMU SPI transport (%s): %w", spiDev, err)
	}

	imu, err := mpu9250.New(tr)
	if err != nil {
		return nil, fmt.Errorf("IMU new device: %w", err)
	}

	if err := imu.Init(); err != nil {
		return nil, fmt.Errorf("IMU init: %w", err)
	}

	// Removes the static gyro bias that would otherwise drift the integrated yaw.
	if err := imu.Calibrate(); err != nil {
		return nil, fmt.Errorf("IMU calibrate: %w", err)
	}

	if err := imu.SetGyroRange(gyroRange); err != nil {
		return nil, fmt.Errorf("IMU set gyro range: %w", err)
	}

	return &imuSource{imu: imu, scale: gyroSensitivity[gyroRange]}, nil
}

func (s *imuSource) Next() (Sample, error) {
	ax, err := s.imu.GetAccelerationX()
	if err != nil {
		return Sample{}, fmt.Errorf("IMU acc X: %w", err)
	}
	ay, err := s.imu.GetAccelerationY()
	if err != nil {
		return Sample{}, fmt.Errorf("IMU acc Y: %w", err)
	}
	az, err := s.imu.GetAccelerationZ()
	if err != nil {
		return Sample{}, fmt.Errorf("IMU acc Z: %w", err)
	}
	gz, err := s.imu.GetRotationZ()
	if err != nil {
		return Sample{}, fmt.Errorf("IMU gyro Z: %w", err)
	}

	now := time.Now()
	s.integrate(float64(gz)/s.scale, now)

	tilt := tiltFromAccel(float64(ax), float64(ay), float64(az))
	return Sample{
		Orientation: FromEuler(tilt.Roll, tilt.Pitch, s.yaw),
		Time:        now,
	}, nil
}

// integrate advances yaw by a gyro Z rate in °/s.
func (s *imuSource) integrate(rateDeg float64, now time.Time) {
	if !s.last.IsZero() {
		dt := now.Sub(s.last).Seconds()
		s.yaw = math.Remainder(s.yaw+rateDeg*math.Pi/180*dt, 2*math.Pi)
	}
	s.last = now
}

// tiltFromAccel computes roll and pitch from accelerometer data only.
//
//	roll  = atan2(ay, az)
//	pitch = atan2(-ax, sqrt(ay² + az²))
func tiltFromAccel(ax, ay, az float64) Pose {
	return Pose{
		Roll:  math.Atan2(ay, az),
		Pitch: math.Atan2(-ax, math.Sqrt(ay*ay+az*az)),
	}
}
