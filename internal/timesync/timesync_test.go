package timesync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/gps_imu_localization/internal/gps"
	"github.com/relabs-tech/gps_imu_localization/internal/orientation"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(sec float64) time.Time {
	return base.Add(time.Duration(sec * float64(time.Second)))
}

func fixAt(sec float64) gps.Fix {
	return gps.Fix{Time: at(sec), Latitude: 22.6, Longitude: 120.2}
}

func sampleAt(sec float64) orientation.Sample {
	return orientation.Sample{Orientation: orientation.FromYaw(0.1), Time: at(sec)}
}

func TestMatchWithinTolerance(t *testing.T) {
	s := New(100 * time.Millisecond)

	_, ok := s.AddFix(fixAt(0))
	require.False(t, ok)

	p, ok := s.AddOrientation(sampleAt(0.05))
	require.True(t, ok)
	assert.Equal(t, at(0), p.Fix.Time)
	assert.Equal(t, at(0.05), p.Orientation.Time)
	assert.Equal(t, at(0.05), p.Stamp)

	f, o := s.Pending()
	assert.Nil(t, f)
	assert.Nil(t, o)
	assert.Equal(t, uint64(1), s.Stats().Matched)
}

func TestNoMatchOutsideTolerance(t *testing.T) {
	s := New(20 * time.Millisecond)

	_, ok := s.AddFix(fixAt(0))
	require.False(t, ok)
	_, ok = s.AddOrientation(sampleAt(0.05))
	require.False(t, ok)

	f, o := s.Pending()
	require.NotNil(t, f)
	require.NotNil(t, o)
	assert.Equal(t, at(0), f.Time)
	assert.Equal(t, at(0.05), o.Time)

	// the next sample of either kind overwrites its own slot
	_, ok = s.AddOrientation(sampleAt(0.5))
	require.False(t, ok)
	_, o = s.Pending()
	assert.Equal(t, at(0.5), o.Time)
	assert.Equal(t, uint64(1), s.Stats().Superseded)
}

func TestLatestWins(t *testing.T) {
	s := New(100 * time.Millisecond)

	_, ok := s.AddFix(fixAt(0))
	require.False(t, ok)
	_, ok = s.AddFix(fixAt(0.2))
	require.False(t, ok)

	f, o := s.Pending()
	require.NotNil(t, f)
	assert.Equal(t, at(0.2), f.Time)
	assert.Nil(t, o)

	// an orientation sample near the dropped fix no longer matches
	_, ok = s.AddOrientation(sampleAt(0.0))
	assert.False(t, ok)
}

func TestBoundaryIsInclusive(t *testing.T) {
	s := New(100 * time.Millisecond)
	s.AddOrientation(orientation.Sample{Orientation: orientation.FromYaw(0), Time: base})
	_, ok := s.AddFix(gps.Fix{Time: base.Add(100 * time.Millisecond)})
	assert.True(t, ok)
}

func TestStaleSamplesDropped(t *testing.T) {
	s := New(100 * time.Millisecond)
	s.AddFix(fixAt(1.0))
	_, ok := s.AddOrientation(sampleAt(1.05))
	require.True(t, ok)

	_, ok = s.AddFix(fixAt(1.02))
	assert.False(t, ok)
	f, _ := s.Pending()
	assert.Nil(t, f)
	assert.Equal(t, uint64(1), s.Stats().Stale)
}

func TestRunMergesStreams(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fixes := make(chan gps.Fix)
	samples := make(chan orientation.Sample)
	s := New(100 * time.Millisecond)
	out := s.Run(ctx, fixes, samples)

	var got []Pair
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for p := range out {
			got = append(got, p)
		}
	}()

	// IMU at 50 Hz, GPS at 5 Hz
	for i := 0; i < 50; i++ {
		tm := float64(i) * 0.02
		samples <- sampleAt(tm)
		if i%10 == 5 {
			fixes <- fixAt(tm + 0.005)
		}
	}
	close(fixes)
	close(samples)
	wg.Wait()

	require.Len(t, got, 5)
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].Stamp.Before(got[i-1].Stamp))
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	out := New(0).Run(ctx, make(chan gps.Fix), make(chan orientation.Sample))
	cancel()

	select {
	case _, open := <-out:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("output not closed after cancel")
	}
}

func TestConcurrentProducers(t *testing.T) {
	s := New(100 * time.Millisecond)
	var matched sync.Map
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if p, ok := s.AddFix(fixAt(float64(i))); ok {
				matched.Store(p.Fix.Time, true)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if p, ok := s.AddOrientation(sampleAt(float64(i))); ok {
				matched.Store(p.Fix.Time, true)
			}
		}
	}()
	wg.Wait()

	n := 0
	matched.Range(func(_, _ any) bool { n++; return true })
	assert.Equal(t, int(s.Stats().Matched), n)
}

func TestRejectedSampleKeepsCounterpartPending(t *testing.T) {
	errBad := errors.New("bad")
	s := New(100*time.Millisecond,
		WithFixCheck(func(f gps.Fix) error {
			if f.Latitude > 90 {
				return errBad
			}
			return nil
		}),
		WithOrientationCheck(func(o orientation.Sample) error {
			if o.Orientation == (orientation.Quaternion{}) {
				return errBad
			}
			return nil
		}),
	)

	_, ok := s.AddOrientation(sampleAt(0))
	require.False(t, ok)

	bad := fixAt(0.01)
	bad.Latitude = 95
	_, ok = s.AddFix(bad)
	require.False(t, ok)

	f, o := s.Pending()
	assert.Nil(t, f)
	require.NotNil(t, o)
	assert.Equal(t, at(0), o.Time)

	p, ok := s.AddFix(fixAt(0.03))
	require.True(t, ok)
	assert.Equal(t, at(0), p.Orientation.Time)
	assert.Equal(t, at(0.03), p.Fix.Time)

	_, ok = s.AddFix(fixAt(1))
	require.False(t, ok)
	zero := sampleAt(1.01)
	zero.Orientation = orientation.Quaternion{}
	_, ok = s.AddOrientation(zero)
	require.False(t, ok)
	f, o = s.Pending()
	require.NotNil(t, f)
	assert.Equal(t, at(1), f.Time)
	assert.Nil(t, o)

	st := s.Stats()
	assert.Equal(t, uint64(2), st.Rejected)
	assert.Equal(t, uint64(1), st.Matched)
}
