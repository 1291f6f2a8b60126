package gps

import "time"

// Fix represents a single geodetic position fix suitable for JSON and MQTT.
type Fix struct {
	Time       time.Time `json:"time"`                  // receipt stamp, used for synchronization
	UTC        string    `json:"utc,omitempty"`         // receiver time of day, e.g. "12:34:56"
	Date       string    `json:"date,omitempty"`        // receiver date
	Latitude   float64   `json:"lat"`                   // decimal degrees
	Longitude  float64   `json:"lon"`                   // decimal degrees
	SpeedKnots float64   `json:"speed_knots,omitempty"` // speed over ground
	CourseDeg  float64   `json:"course_deg,omitempty"`  // course over ground
	Validity   string    `json:"validity,omitempty"`    // "A" (valid) / "V" (void)
	Satellites int64     `json:"satellites,omitempty"`  // from GGA
	HDOP       float64   `json:"hdop,omitempty"`        // from GGA
}
