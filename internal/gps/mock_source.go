package gps

import (
	"math"
	"time"

	geo "github.com/kellydunn/golang-geo"
	"gonum.org/v1/gonum/stat/distuv"
)

// MockSource produces fixes on a circle around a center point with Gaussian
// position noise, for bench runs without a receiver.
type MockSource struct {
	center *geo.Point
	radius float64 // meters
	rate   float64 // rad/s
	noise  distuv.Normal
	start  time.Time
	now    func() time.Time
}

// NewMockSource circles (lat, lon) at radius meters, turning at rate rad/s.
// sigma is the standard deviation of the noise added to the range, in meters.
func NewMockSource(lat, lon, radius, rate, sigma float64) *MockSource {
	return &MockSource{
		center: geo.NewPoint(lat, lon),
		radius: radius,
		rate:   rate,
		noise:  distuv.Normal{Mu: 0, Sigma: sigma},
		start:  time.Now(),
		now:    time.Now,
	}
}

// Next returns the fix for the current time.
func (m *MockSource) Next() Fix {
	now := m.now()
	theta := now.Sub(m.start).Seconds() * m.rate

	dist := m.radius
	if m.noise.Sigma > 0 {
		dist += m.noise.Rand()
	}
	// theta is measured from east, counter-clockwise; bearings from north, clockwise
	bearing := 90 - theta*180/math.Pi
	p := m.center.PointAtDistanceAndBearing(dist/1000, bearing)

	return Fix{
		Time:      now,
		Latitude:  p.Lat(),
		Longitude: p.Lng(),
		Validity:  "A",
	}
}
