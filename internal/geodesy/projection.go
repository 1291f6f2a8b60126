package geodesy

import (
	"fmt"
	"math"

	UTM "github.com/im7mortal/UTM"
	geo "github.com/kellydunn/golang-geo"
)

// falseNorthing is added to southern hemisphere northings.
const falseNorthing = 10000000.0

// UTMProjection projects into the UTM zone and hemisphere of a reference
// point. Fixes from another zone are rejected: eastings from two zones are
// not comparable. Fixes across the equator keep the reference hemisphere's
// false northing, so northings stay continuous.
type UTMProjection struct {
	Zone     int
	Letter   string
	Northern bool
}

// NewUTM returns the projection for the zone containing (lat, lon).
func NewUTM(lat, lon float64) (*UTMProjection, error) {
	if err := Validate(lat, lon); err != nil {
		return nil, err
	}
	_, _, zone, letter, err := UTM.FromLatLon(lat, lon, lat >= 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCoordinate, err)
	}
	return &UTMProjection{Zone: zone, Letter: letter, Northern: lat >= 0}, nil
}

func (p *UTMProjection) Forward(lat, lon float64) (float64, float64, error) {
	e, n, zone, _, err := UTM.FromLatLon(lat, lon, p.Northern)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrInvalidCoordinate, err)
	}
	if zone != p.Zone {
		return 0, 0, fmt.Errorf("%w: lat=%v lon=%v is in UTM zone %d, origin zone is %d",
			ErrInvalidCoordinate, lat, lon, zone, p.Zone)
	}
	// FromLatLon picks the false northing from the fix's own latitude.
	if southern := lat < 0; southern == p.Northern {
		if p.Northern {
			n -= falseNorthing
		} else {
			n += falseNorthing
		}
	}
	return e, n, nil
}

// TangentProjection linearizes the sphere about an anchor point using
// great-circle range and bearing. The anchor projects to (0, 0).
type TangentProjection struct {
	anchor *geo.Point
}

// NewTangent anchors the projection at (lat, lon).
func NewTangent(lat, lon float64) *TangentProjection {
	return &TangentProjection{anchor: geo.NewPoint(lat, lon)}
}

func (p *TangentProjection) Forward(lat, lon float64) (float64, float64, error) {
	if err := Validate(lat, lon); err != nil {
		return 0, 0, err
	}
	if lat == p.anchor.Lat() && lon == p.anchor.Lng() {
		return 0, 0, nil
	}
	pt := geo.NewPoint(lat, lon)
	meters := 1000 * p.anchor.GreatCircleDistance(pt)
	bearing := p.anchor.BearingTo(pt) * math.Pi / 180
	return meters * math.Sin(bearing), meters * math.Cos(bearing), nil
}
