package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/gps_imu_localization/internal/localization"
	"github.com/relabs-tech/gps_imu_localization/internal/track"
)

func odomAt(i int) localization.Odometry {
	return localization.Odometry{
		Time:     time.Unix(1700000000, int64(i)*int64(100*time.Millisecond)).UTC(),
		FrameID:  "map",
		Position: r3.Vector{X: float64(i), Y: -float64(i)},
		Heading:  0.01 * float64(i),
	}
}

func TestOdometryEndpoint(t *testing.T) {
	dash := NewDashboard(nil, nil)
	h := dash.Handler("")

	rec := do(t, h, http.MethodGet, "/api/odometry", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	dash.Update(odomAt(3))
	rec = do(t, h, http.MethodGet, "/api/odometry", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got localization.Odometry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 3.0, got.Position.X)
	assert.Equal(t, "map", got.FrameID)
}

func TestRouteEndpoint(t *testing.T) {
	route := [][2]float64{{0, 7}, {0, -21}}
	rec := do(t, NewDashboard(nil, route).Handler(""), http.MethodGet, "/api/route", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got [][2]float64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, route, got)
}

func TestTrackEndpoint(t *testing.T) {
	rec := do(t, NewDashboard(nil, nil).Handler(""), http.MethodGet, "/api/track", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	db, err := track.Open(filepath.Join(t.TempDir(), "track.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := NewDashboard(db, nil).Handler("")

	rec = do(t, h, http.MethodGet, "/api/track", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	session, err := db.StartSession(22.6294, 120.2656)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, db.Record(session, odomAt(i)))
	}

	rec = do(t, h, http.MethodGet, "/api/track?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var points []track.Point
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &points))
	require.Len(t, points, 2)
	assert.Equal(t, 3.0, points[0].X)
	assert.Equal(t, 4.0, points[1].X)

	rec = do(t, h, http.MethodGet, "/api/track?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStream(t *testing.T) {
	dash := NewDashboard(nil, nil)
	dash.Update(odomAt(1))

	srv := httptest.NewServer(dash.Handler(""))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	// the latest pose arrives first, after which the client is subscribed
	var got localization.Odometry
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, 1.0, got.Position.X)

	dash.Update(odomAt(2))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, 2.0, got.Position.X)
}
