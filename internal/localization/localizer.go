// Package localization runs the fusion cycle: synchronized pairs are
// converted to planar observations, filtered per axis and assembled into
// odometry with the configured heading offset applied.
package localization

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/golang/geo/r3"

	"github.com/relabs-tech/gps_imu_localization/internal/filter"
	"github.com/relabs-tech/gps_imu_localization/internal/geodesy"
	"github.com/relabs-tech/gps_imu_localization/internal/gps"
	"github.com/relabs-tech/gps_imu_localization/internal/orientation"
	"github.com/relabs-tech/gps_imu_localization/internal/timesync"
)

// Sink receives every emitted odometry.
type Sink func(Odometry)

// Localizer owns the filter state. Process calls are serialized.
type Localizer struct {
	transformer *geodesy.Transformer
	frames      Frames
	offset      HeadingOffset

	mu     sync.Mutex
	filter *filter.Filter
	last   *Odometry
}

// New returns a Localizer with an uninitialized filter.
func New(t *geodesy.Transformer, params filter.Params, frames Frames) (*Localizer, error) {
	f, err := filter.New(params)
	if err != nil {
		return nil, err
	}
	return &Localizer{transformer: t, frames: frames, filter: f}, nil
}

// Process runs one fusion cycle. The first accepted pair only seeds the
// filter and emits nothing (ok is false). A rejected pair returns an error
// wrapping orientation.ErrMalformedOrientation or
// geodesy.ErrInvalidCoordinate and leaves the filter untouched.
func (l *Localizer) Process(p timesync.Pair) (odom Odometry, ok bool, err error) {
	yaw, err := l.yaw(p.Orientation)
	if err != nil {
		return Odometry{}, false, err
	}
	pos, err := l.local(p.Fix)
	if err != nil {
		return Odometry{}, false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	seeding := !l.filter.State().Initialized
	state := l.filter.Step(filter.Observation{pos.X, pos.Y, pos.Z, yaw})
	if seeding {
		return Odometry{}, false, nil
	}

	odom = Assemble(state, l.offset.Load(), l.transformer.Anchor(), l.frames, p.Stamp)
	l.last = &odom
	return odom, true, nil
}

// CheckFix reports whether Process would accept f. It is meant as a
// timesync.WithFixCheck hook so unusable fixes never take a pending slot.
func (l *Localizer) CheckFix(f gps.Fix) error {
	_, err := l.local(f)
	return err
}

// CheckOrientation is CheckFix for orientation samples.
func (l *Localizer) CheckOrientation(s orientation.Sample) error {
	_, err := l.yaw(s)
	return err
}

func (l *Localizer) yaw(s orientation.Sample) (float64, error) {
	yaw, err := orientation.Yaw(s.Orientation)
	if err != nil {
		return 0, fmt.Errorf("orientation at %s: %w", s.Time.Format("15:04:05.000"), err)
	}
	return yaw, nil
}

func (l *Localizer) local(f gps.Fix) (r3.Vector, error) {
	pos, err := l.transformer.ToLocal(f.Latitude, f.Longitude)
	if err != nil {
		return r3.Vector{}, fmt.Errorf("fix at %s: %w", f.Time.Format("15:04:05.000"), err)
	}
	return pos, nil
}

// Origin returns the geodetic origin of the local frame.
func (l *Localizer) Origin() geodesy.Origin { return l.transformer.Origin() }

// SetHeadingOffset replaces the heading offset used for subsequent output.
func (l *Localizer) SetHeadingOffset(v float64) { l.offset.Store(v) }

// HeadingOffset returns the current heading offset.
func (l *Localizer) HeadingOffset() float64 { return l.offset.Load() }

// State returns a snapshot of the filter beliefs.
func (l *Localizer) State() filter.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filter.State()
}

// Latest returns the most recent odometry, if any.
func (l *Localizer) Latest() (Odometry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.last == nil {
		return Odometry{}, false
	}
	return *l.last, true
}

// Reset drops the filter state; the next pair seeds it again.
func (l *Localizer) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.filter.Reset()
	l.last = nil
}

// Run processes pairs until the channel closes or ctx is done, handing each
// emitted odometry to every sink in order. Rejected pairs are logged and
// skipped.
func (l *Localizer) Run(ctx context.Context, pairs <-chan timesync.Pair, sinks ...Sink) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p, open := <-pairs:
			if !open {
				return nil
			}
			odom, ok, err := l.Process(p)
			if err != nil {
				log.Printf("localization: skipping pair: %v", err)
				continue
			}
			if !ok {
				b := l.State().Beliefs
				log.Printf("localization: filter seeded at x=%.2f y=%.2f yaw=%.3f", b[filter.X].Mean, b[filter.Y].Mean, b[filter.Heading].Mean)
				continue
			}
			for _, sink := range sinks {
				sink(odom)
			}
		}
	}
}
