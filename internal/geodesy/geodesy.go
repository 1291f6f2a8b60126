// Package geodesy maps geodetic fixes into a planar frame anchored at a
// fixed local origin.
package geodesy

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// ErrInvalidCoordinate is returned for latitudes or longitudes outside
// their valid range or outside the projection's domain.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Origin is the geodetic anchor of the local frame, in decimal degrees.
type Origin struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Projection maps latitude/longitude to meter-scale easting/northing.
type Projection interface {
	Forward(lat, lon float64) (easting, northing float64, err error)
}

// Validate rejects non-finite and out-of-range coordinates.
func Validate(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return fmt.Errorf("%w: non-finite lat=%v lon=%v", ErrInvalidCoordinate, lat, lon)
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %v outside [-90, 90]", ErrInvalidCoordinate, lat)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("%w: longitude %v outside [-180, 180]", ErrInvalidCoordinate, lon)
	}
	return nil
}

// Transformer converts fixes into the local frame. The origin is projected
// once at construction; the result is never recomputed.
type Transformer struct {
	origin    Origin
	proj      Projection
	easting0  float64
	northing0 float64
}

// NewTransformer projects origin with proj and returns a Transformer.
func NewTransformer(origin Origin, proj Projection) (*Transformer, error) {
	if err := Validate(origin.Latitude, origin.Longitude); err != nil {
		return nil, fmt.Errorf("origin: %w", err)
	}
	e, n, err := proj.Forward(origin.Latitude, origin.Longitude)
	if err != nil {
		return nil, fmt.Errorf("origin: %w", err)
	}
	return &Transformer{origin: origin, proj: proj, easting0: e, northing0: n}, nil
}

// Origin returns the configured origin.
func (t *Transformer) Origin() Origin { return t.origin }

// Anchor returns the projected origin (easting0, northing0).
func (t *Transformer) Anchor() r3.Vector {
	return r3.Vector{X: t.easting0, Y: t.northing0}
}

// ToLocal returns the fix position relative to the origin. Z is always 0.
func (t *Transformer) ToLocal(lat, lon float64) (r3.Vector, error) {
	if err := Validate(lat, lon); err != nil {
		return r3.Vector{}, err
	}
	e, n, err := t.proj.Forward(lat, lon)
	if err != nil {
		return r3.Vector{}, err
	}
	return r3.Vector{X: e - t.easting0, Y: n - t.northing0, Z: 0}, nil
}

// New builds the named projection ("utm" or "tangent") for origin.
func New(name string, origin Origin) (*Transformer, error) {
	switch name {
	case "", "utm":
		proj, err := NewUTM(origin.Latitude, origin.Longitude)
		if err != nil {
			return nil, fmt.Errorf("origin: %w", err)
		}
		return NewTransformer(origin, proj)
	case "tangent":
		return NewTransformer(origin, NewTangent(origin.Latitude, origin.Longitude))
	default:
		return nil, fmt.Errorf("unknown projection %q", name)
	}
}
