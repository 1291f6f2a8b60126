// Package timesync pairs position fixes with orientation samples whose
// stamps lie within a tolerance of each other.
package timesync

import (
	"context"
	"sync"
	"time"

	"github.com/relabs-tech/gps_imu_localization/internal/gps"
	"github.com/relabs-tech/gps_imu_localization/internal/orientation"
)

// DefaultSlop is the default pairing tolerance.
const DefaultSlop = 100 * time.Millisecond

// Pair is one synchronized observation.
type Pair struct {
	Fix         gps.Fix
	Orientation orientation.Sample
	// Stamp is the stamp of the sample that completed the pair.
	Stamp time.Time
}

// Stats counts what happened to incoming samples.
type Stats struct {
	Matched    uint64 `json:"matched"`
	Superseded uint64 `json:"superseded"`
	Stale      uint64 `json:"stale"`
	Rejected   uint64 `json:"rejected"`
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithFixCheck rejects fixes for which check returns an error before they
// reach the pending slot, so they can never consume a pending sample.
func WithFixCheck(check func(gps.Fix) error) Option {
	return func(s *Synchronizer) { s.checkFix = check }
}

// WithOrientationCheck is WithFixCheck for orientation samples.
func WithOrientationCheck(check func(orientation.Sample) error) Option {
	return func(s *Synchronizer) { s.checkOrientation = check }
}

// Synchronizer holds at most one pending sample per stream. A newer sample
// of the same kind overwrites the pending one; nothing is queued.
type Synchronizer struct {
	slop             time.Duration
	checkFix         func(gps.Fix) error
	checkOrientation func(orientation.Sample) error

	mu       sync.Mutex
	fix      *gps.Fix
	sample   *orientation.Sample
	lastEmit time.Time
	stats    Stats
}

// New returns a Synchronizer. A non-positive slop selects DefaultSlop.
func New(slop time.Duration, opts ...Option) *Synchronizer {
	if slop <= 0 {
		slop = DefaultSlop
	}
	s := &Synchronizer{slop: slop}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Slop returns the pairing tolerance.
func (s *Synchronizer) Slop() time.Duration { return s.slop }

// AddFix offers a position fix. It returns the completed pair when a pending
// orientation sample lies within the tolerance.
func (s *Synchronizer) AddFix(f gps.Fix) (Pair, bool) {
	if s.checkFix != nil && s.checkFix(f) != nil {
		s.reject()
		return Pair{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stale(f.Time) {
		return Pair{}, false
	}
	if s.sample != nil && within(f.Time, s.sample.Time, s.slop) {
		p := Pair{Fix: f, Orientation: *s.sample, Stamp: f.Time}
		s.emit(p)
		return p, true
	}
	if s.fix != nil {
		s.stats.Superseded++
	}
	s.fix = &f
	return Pair{}, false
}

// AddOrientation offers an orientation sample. It returns the completed pair
// when a pending fix lies within the tolerance.
func (s *Synchronizer) AddOrientation(o orientation.Sample) (Pair, bool) {
	if s.checkOrientation != nil && s.checkOrientation(o) != nil {
		s.reject()
		return Pair{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stale(o.Time) {
		return Pair{}, false
	}
	if s.fix != nil && within(o.Time, s.fix.Time, s.slop) {
		p := Pair{Fix: *s.fix, Orientation: o, Stamp: o.Time}
		s.emit(p)
		return p, true
	}
	if s.sample != nil {
		s.stats.Superseded++
	}
	s.sample = &o
	return Pair{}, false
}

// Pending returns copies of the pending samples, nil when a slot is empty.
func (s *Synchronizer) Pending() (*gps.Fix, *orientation.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var f *gps.Fix
	var o *orientation.Sample
	if s.fix != nil {
		c := *s.fix
		f = &c
	}
	if s.sample != nil {
		c := *s.sample
		o = &c
	}
	return f, o
}

// Stats returns the sample counters.
func (s *Synchronizer) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Run merges the two input streams through the synchronizer and emits pairs
// on the returned channel. The channel is closed when ctx is done or both
// inputs are closed.
func (s *Synchronizer) Run(ctx context.Context, fixes <-chan gps.Fix, samples <-chan orientation.Sample) <-chan Pair {
	out := make(chan Pair)

	go func() {
		defer close(out)

		for fixes != nil || samples != nil {
			var (
				p  Pair
				ok bool
			)

			select {
			case <-ctx.Done():
				return
			case f, open := <-fixes:
				if !open {
					fixes = nil
					continue
				}
				p, ok = s.AddFix(f)
			case o, open := <-samples:
				if !open {
					samples = nil
					continue
				}
				p, ok = s.AddOrientation(o)
			}

			if !ok {
				continue
			}
			select {
			case out <- p:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// stale reports samples stamped before the last emitted pair. Emitting them
// would break the non-decreasing stamp order of the output.
func (s *Synchronizer) stale(t time.Time) bool {
	if !s.lastEmit.IsZero() && t.Before(s.lastEmit) {
		s.stats.Stale++
		return true
	}
	return false
}

func (s *Synchronizer) reject() {
	s.mu.Lock()
	s.stats.Rejected++
	s.mu.Unlock()
}

func (s *Synchronizer) emit(p Pair) {
	s.fix = nil
	s.sample = nil
	s.lastEmit = p.Stamp
	s.stats.Matched++
}

func within(a, b time.Time, slop time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= slop
}
