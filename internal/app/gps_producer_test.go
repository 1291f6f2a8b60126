package app

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/gps_imu_localization/internal/gps"
)

const (
	testRMC = "$GPRMC,220516,A,5133.82,N,00042.24,W,173.8,231.8,130694,004.2,W*70"
	testGGA = "$GPGGA,172814.0,3723.46587704,N,12202.26957864,W,2,6,1.2,18.893,M,-25.669,M,2.0,0031*4F"
)

func TestStreamFixes(t *testing.T) {
	input := strings.Join([]string{
		"garbage",
		testGGA,
		testRMC,
		"$GPRMC,truncated",
		testRMC, // no trailing newline
	}, "\r\n")

	var fixes []gps.Fix
	err := streamFixes(strings.NewReader(input), gps.NewParser(), func(f gps.Fix) error {
		fixes = append(fixes, f)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, fixes, 2)
	assert.Equal(t, int64(6), fixes[0].Satellites)
	assert.InDelta(t, 51.5637, fixes[1].Latitude, 1e-4)
}

func TestStreamFixesStopsOnEmitError(t *testing.T) {
	input := testRMC + "\n" + testRMC + "\n"
	stop := errors.New("stop")

	calls := 0
	err := streamFixes(strings.NewReader(input), gps.NewParser(), func(gps.Fix) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}
