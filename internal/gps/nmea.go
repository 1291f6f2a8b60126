package gps

import (
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
)

// Parser accumulates NMEA sentences into fixes. RMC completes a fix;
// GGA only refreshes the quality fields carried by the next RMC.
type Parser struct {
	current Fix
	now     func() time.Time
}

// NewParser returns a Parser stamping fixes with the wall clock.
func NewParser() *Parser {
	return &Parser{now: time.Now}
}

// Feed parses one line. It returns a fix and true when the line was a valid
// RMC sentence. Void fixes, partial lines and other sentence types return
// false.
func (p *Parser) Feed(line string) (Fix, bool) {
	line = strings.TrimSpace(line)
	// NMEA sentences usually start with '$'
	if line == "" || !strings.HasPrefix(line, "$") {
		return Fix{}, false
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		// noisy GPS or partial sentences
		return Fix{}, false
	}

	switch sentence.DataType() {
	case nmea.TypeGGA:
		m := sentence.(nmea.GGA)
		p.current.Satellites = m.NumSatellites
		p.current.HDOP = m.HDOP
		return Fix{}, false

	case nmea.TypeRMC:
		m := sentence.(nmea.RMC)
		if m.Validity != nmea.ValidRMC {
			return Fix{}, false
		}

		p.current.Time = p.now()
		p.current.UTC = m.Time.String()
		p.current.Date = m.Date.String()
		p.current.Latitude = m.Latitude
		p.current.Longitude = m.Longitude
		p.current.SpeedKnots = m.Speed
		p.current.CourseDeg = m.Course
		p.current.Validity = m.Validity
		return p.current, true

	default:
		return Fix{}, false
	}
}
