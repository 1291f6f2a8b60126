package track

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/gps_imu_localization/internal/localization"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "track.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func odomAt(i int) localization.Odometry {
	return localization.Odometry{
		Time:     time.Unix(1700000000, int64(i)*int64(100*time.Millisecond)),
		Position: r3.Vector{X: float64(i), Y: float64(2 * i)},
		Heading:  0.1 * float64(i),
		Variance: [4]float64{0.04, 0.05, 0, 0.03},
	}
}

func TestRecordAndRecent(t *testing.T) {
	db := openTemp(t)

	session, err := db.StartSession(22.6294, 120.2656)
	require.NoError(t, err)
	require.NotEmpty(t, session)

	for i := 0; i < 10; i++ {
		require.NoError(t, db.Record(session, odomAt(i)))
	}

	points, err := db.Recent(session, 3)
	require.NoError(t, err)
	require.Len(t, points, 3)

	assert.Equal(t, 7.0, points[0].X)
	assert.Equal(t, 9.0, points[2].X)
	assert.Equal(t, 18.0, points[2].Y)
	assert.InDelta(t, 0.9, points[2].Heading, 1e-12)
	assert.Equal(t, 0.04, points[2].VarX)
	assert.Equal(t, 0.03, points[2].VarH)
	assert.Equal(t, odomAt(9).Time.UnixNano(), points[2].Time.UnixNano())
}

func TestSessionsAreSeparate(t *testing.T) {
	db := openTemp(t)

	a, err := db.StartSession(0, 0)
	require.NoError(t, err)
	b, err := db.StartSession(0, 0)
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	sink := db.Sink(a, func(err error) { t.Errorf("record: %v", err) })
	sink(odomAt(1))
	sink(odomAt(2))

	pa, err := db.Recent(a, 10)
	require.NoError(t, err)
	assert.Len(t, pa, 2)

	pb, err := db.Recent(b, 10)
	require.NoError(t, err)
	assert.Empty(t, pb)

	latest, err := db.LatestSession()
	require.NoError(t, err)
	assert.Equal(t, b, latest)
}

func TestLatestSessionEmpty(t *testing.T) {
	db := openTemp(t)
	id, err := db.LatestSession()
	require.NoError(t, err)
	assert.Empty(t, id)
}
