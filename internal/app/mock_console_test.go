package app

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/gps_imu_localization/internal/config"
	"github.com/relabs-tech/gps_imu_localization/internal/localization"
)

func TestMockPipeline(t *testing.T) {
	cfg := config.Default()
	cfg.OriginLatitude = 22.6294
	cfg.OriginLongitude = 120.2656
	cfg.GPSMockInterval = 20
	cfg.IMUSampleInterval = 10

	loc, err := newLocalizer(cfg)
	require.NoError(t, err)
	syncer := newSynchronizer(cfg, loc, "mock")

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	fixes, samples := mockFeeds(ctx, cfg)

	var mu sync.Mutex
	var out []localization.Odometry
	err = loc.Run(ctx, syncer.Run(ctx, fixes, samples), func(o localization.Odometry) {
		mu.Lock()
		out = append(out, o)
		mu.Unlock()
	})
	if err != nil {
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, out)
	for i, o := range out {
		r := math.Hypot(o.Position.X, o.Position.Y)
		assert.Less(t, r, 2*mockRadius, "pose %d", i)
		if i > 0 {
			assert.False(t, o.Time.Before(out[i-1].Time), "pose %d out of order", i)
		}
	}
}
