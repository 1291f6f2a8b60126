package localization

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/gps_imu_localization/internal/filter"
	"github.com/relabs-tech/gps_imu_localization/internal/geodesy"
	"github.com/relabs-tech/gps_imu_localization/internal/gps"
	"github.com/relabs-tech/gps_imu_localization/internal/orientation"
	"github.com/relabs-tech/gps_imu_localization/internal/timesync"
)

var origin = geodesy.Origin{Latitude: 22.6294, Longitude: 120.2656}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newLocalizer(t *testing.T, params filter.Params) *Localizer {
	t.Helper()
	tr, err := geodesy.New("utm", origin)
	require.NoError(t, err)
	l, err := New(tr, params, DefaultFrames())
	require.NoError(t, err)
	return l
}

func pair(i int, lat, lon, yaw float64) timesync.Pair {
	stamp := t0.Add(time.Duration(i) * 200 * time.Millisecond)
	return timesync.Pair{
		Fix:         gps.Fix{Time: stamp, Latitude: lat, Longitude: lon},
		Orientation: orientation.Sample{Orientation: orientation.FromYaw(yaw), Time: stamp},
		Stamp:       stamp,
	}
}

func TestSeedEmitsNothing(t *testing.T) {
	l := newLocalizer(t, filter.DefaultParams())

	_, ok, err := l.Process(pair(0, origin.Latitude, origin.Longitude, 0.3))
	require.NoError(t, err)
	assert.False(t, ok)

	s := l.State()
	require.True(t, s.Initialized)
	assert.Equal(t, 0.0, s.Beliefs[filter.X].Mean)
	assert.Equal(t, 10000.0, s.Beliefs[filter.X].Variance)
	assert.InDelta(t, 0.3, s.Beliefs[filter.Heading].Mean, 1e-12)

	_, have := l.Latest()
	assert.False(t, have)
}

func TestCycleProducesOdometry(t *testing.T) {
	l := newLocalizer(t, filter.DefaultParams())

	_, _, err := l.Process(pair(0, origin.Latitude, origin.Longitude, 0.3))
	require.NoError(t, err)
	odom, ok, err := l.Process(pair(1, origin.Latitude+0.0001, origin.Longitude, 0.3))
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "map", odom.FrameID)
	assert.Equal(t, "base_link", odom.ChildFrame)
	assert.InDelta(t, 11.07, odom.Position.Y, 0.3)
	assert.Zero(t, odom.Position.Z)
	assert.InDelta(t, 0.3, odom.Heading, 1e-9)
	assert.Equal(t, [36]float64{}, odom.Covariance)

	yaw, err := orientation.Yaw(odom.Orientation)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, yaw, 1e-9)

	base, anchor := odom.Transforms[0], odom.Transforms[1]
	assert.Equal(t, "odom", base.Parent)
	assert.Equal(t, "base_link", base.Child)
	assert.Equal(t, odom.Position, base.Translation)
	assert.Equal(t, "utm", anchor.Parent)
	assert.Equal(t, "odom", anchor.Child)
	assert.Equal(t, l.transformer.Anchor().X, anchor.Translation.X)
	assert.Equal(t, orientation.FromYaw(0), anchor.Rotation)

	latest, have := l.Latest()
	require.True(t, have)
	assert.Equal(t, odom, latest)
}

func TestHeadingOffsetIsOutputOnly(t *testing.T) {
	l := newLocalizer(t, filter.DefaultParams())
	_, _, err := l.Process(pair(0, origin.Latitude, origin.Longitude, 0.3))
	require.NoError(t, err)

	before, ok, err := l.Process(pair(1, origin.Latitude, origin.Longitude, 0.3))
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, l.State().Beliefs[filter.Heading].Mean, before.Heading, 1e-15)

	l.SetHeadingOffset(0.5)
	assert.Equal(t, 0.5, l.HeadingOffset())

	after, ok, err := l.Process(pair(2, origin.Latitude, origin.Longitude, 0.3))
	require.NoError(t, err)
	require.True(t, ok)

	posterior := l.State().Beliefs[filter.Heading].Mean
	assert.InDelta(t, 0.3, posterior, 1e-9, "offset must not leak into the filter")
	assert.InDelta(t, posterior+0.5, after.Heading, 1e-15)
}

func TestRejectedPairsLeaveStateUntouched(t *testing.T) {
	l := newLocalizer(t, filter.DefaultParams())
	_, _, err := l.Process(pair(0, origin.Latitude, origin.Longitude, 0.3))
	require.NoError(t, err)
	want := l.State()

	bad := pair(1, 95, origin.Longitude, 0.3)
	_, ok, err := l.Process(bad)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, geodesy.ErrInvalidCoordinate))

	malformed := pair(2, origin.Latitude, origin.Longitude, 0)
	malformed.Orientation.Orientation = orientation.Quaternion{}
	_, ok, err = l.Process(malformed)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, orientation.ErrMalformedOrientation))

	assert.Equal(t, want, l.State())
}

func TestRejectedFirstPairDoesNotSeed(t *testing.T) {
	l := newLocalizer(t, filter.DefaultParams())
	_, _, err := l.Process(pair(0, math.NaN(), 0, 0))
	require.Error(t, err)
	assert.False(t, l.State().Initialized)
}

func TestChecksGateSynchronizer(t *testing.T) {
	l := newLocalizer(t, filter.DefaultParams())
	s := timesync.New(100*time.Millisecond,
		timesync.WithFixCheck(l.CheckFix),
		timesync.WithOrientationCheck(l.CheckOrientation))

	good := pair(0, origin.Latitude, origin.Longitude, 0.3)
	_, ok := s.AddOrientation(good.Orientation)
	require.False(t, ok)

	bad := good.Fix
	bad.Latitude = 95
	require.ErrorIs(t, l.CheckFix(bad), geodesy.ErrInvalidCoordinate)
	_, ok = s.AddFix(bad)
	require.False(t, ok)
	_, pending := s.Pending()
	require.NotNil(t, pending, "orientation must survive a rejected fix")

	p, ok := s.AddFix(good.Fix)
	require.True(t, ok)
	_, _, err := l.Process(p)
	require.NoError(t, err)
	assert.True(t, l.State().Initialized)

	malformed := pair(1, origin.Latitude, origin.Longitude, 0)
	malformed.Orientation.Orientation = orientation.Quaternion{}
	assert.ErrorIs(t, l.CheckOrientation(malformed.Orientation), orientation.ErrMalformedOrientation)
	assert.Equal(t, uint64(1), s.Stats().Rejected)
}

func TestOrigin(t *testing.T) {
	assert.Equal(t, origin, newLocalizer(t, filter.DefaultParams()).Origin())
}

func TestReset(t *testing.T) {
	l := newLocalizer(t, filter.DefaultParams())
	l.Process(pair(0, origin.Latitude, origin.Longitude, 0.3))
	l.Process(pair(1, origin.Latitude, origin.Longitude, 0.3))
	l.Reset()

	assert.False(t, l.State().Initialized)
	_, have := l.Latest()
	assert.False(t, have)
}

func TestRunFansOutToSinks(t *testing.T) {
	l := newLocalizer(t, filter.DefaultParams())
	pairs := make(chan timesync.Pair, 8)
	for i := 0; i < 5; i++ {
		pairs <- pair(i, origin.Latitude+float64(i)*1e-5, origin.Longitude, 0.1)
	}
	pairs <- pair(5, 200, 0, 0.1) // rejected
	close(pairs)

	var mu sync.Mutex
	var a, b []Odometry
	err := l.Run(context.Background(), pairs,
		func(o Odometry) { mu.Lock(); a = append(a, o); mu.Unlock() },
		func(o Odometry) { mu.Lock(); b = append(b, o); mu.Unlock() },
	)
	require.NoError(t, err)

	// first pair seeds, the last is rejected
	assert.Len(t, a, 4)
	assert.Equal(t, a, b)
}

func TestRunStopsOnCancel(t *testing.T) {
	l := newLocalizer(t, filter.DefaultParams())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.Run(ctx, make(chan timesync.Pair))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentOffsetWrites(t *testing.T) {
	l := newLocalizer(t, filter.DefaultParams())
	l.Process(pair(0, origin.Latitude, origin.Longitude, 0))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			l.SetHeadingOffset(float64(i % 2))
		}
	}()
	for i := 1; i < 200; i++ {
		odom, ok, err := l.Process(pair(i, origin.Latitude, origin.Longitude, 0))
		require.NoError(t, err)
		require.True(t, ok)
		h := odom.Heading - l.State().Beliefs[filter.Heading].Mean
		assert.True(t, math.Abs(h) < 1e-12 || math.Abs(h-1) < 1e-12, "offset %v", h)
	}
	wg.Wait()
}
