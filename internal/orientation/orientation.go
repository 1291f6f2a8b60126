package orientation

import (
	"errors"
	"math"
	"time"

	"gonum.org/v1/gonum/num/quat"
)

// ErrMalformedOrientation is returned when a quaternion cannot be
// normalized into a rotation.
var ErrMalformedOrientation = errors.New("malformed orientation")

// Quaternion is the wire form of an orientation, ROS field order.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Number converts to a gonum quaternion.
func (q Quaternion) Number() quat.Number {
	return quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
}

// Sample is one orientation reading as published by an IMU producer.
type Sample struct {
	Orientation Quaternion `json:"orientation"`
	Time        time.Time  `json:"time"`
}

// Pose is roll/pitch/yaw in radians.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Source is anything that can provide orientation samples over time.
type Source interface {
	Next() (Sample, error)
}

// Normalize returns q scaled to unit length.
func Normalize(q quat.Number) (quat.Number, error) {
	n := quat.Abs(q)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return quat.Number{}, ErrMalformedOrientation
	}
	return quat.Scale(1/n, q), nil
}

// Yaw extracts the rotation about Z (static XYZ convention). Roll and pitch
// are discarded.
func Yaw(q Quaternion) (float64, error) {
	n, err := Normalize(q.Number())
	if err != nil {
		return 0, err
	}
	w, x, y, z := n.Real, n.Imag, n.Jmag, n.Kmag
	return math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z)), nil
}

// Euler converts a quaternion to roll/pitch/yaw.
func Euler(q Quaternion) (Pose, error) {
	n, err := Normalize(q.Number())
	if err != nil {
		return Pose{}, err
	}
	w, x, y, z := n.Real, n.Imag, n.Jmag, n.Kmag

	sinp := 2 * (w*y - x*z)
	// clamp against rounding just outside [-1, 1]
	sinp = math.Max(-1, math.Min(1, sinp))

	return Pose{
		Roll:  math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y)),
		Pitch: math.Asin(sinp),
		Yaw:   math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z)),
	}, nil
}

// FromEuler builds a unit quaternion from roll/pitch/yaw in radians.
func FromEuler(roll, pitch, yaw float64) Quaternion {
	cr, sr := math.Cos(roll/2), math.Sin(roll/2)
	cp, sp := math.Cos(pitch/2), math.Sin(pitch/2)
	cy, sy := math.Cos(yaw/2), math.Sin(yaw/2)

	return Quaternion{
		X: sr*cp*cy - cr*sp*sy,
		Y: cr*sp*cy + sr*cp*sy,
		Z: cr*cp*sy - sr*sp*cy,
		W: cr*cp*cy + sr*sp*sy,
	}
}

// FromYaw is FromEuler with zero roll and pitch.
func FromYaw(yaw float64) Quaternion {
	return FromEuler(0, 0, yaw)
}
