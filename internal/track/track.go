// Package track records fused poses to a sqlite database so a drive can be
// inspected after the fact.
package track

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/relabs-tech/gps_imu_localization/internal/localization"
)

type DB struct {
	*sql.DB
}

// Point is one recorded pose.
type Point struct {
	SessionID string    `json:"session_id"`
	Time      time.Time `json:"time"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Heading   float64   `json:"heading"`
	VarX      float64   `json:"var_x"`
	VarY      float64   `json:"var_y"`
	VarH      float64   `json:"var_heading"`
}

func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id        TEXT PRIMARY KEY,
			origin_lat        DOUBLE,
			origin_lon        DOUBLE,
			started_at        TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS poses (
			session_id        TEXT,
			unix_nanos        BIGINT,
			x                 DOUBLE,
			y                 DOUBLE,
			heading           DOUBLE,
			var_x             DOUBLE,
			var_y             DOUBLE,
			var_heading       DOUBLE,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
		CREATE INDEX IF NOT EXISTS idx_poses_session_time ON poses(session_id, unix_nanos);
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db}, nil
}

// StartSession registers a new recording session and returns its id.
func (db *DB) StartSession(originLat, originLon float64) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec("INSERT INTO sessions (session_id, origin_lat, origin_lon) VALUES (?, ?, ?)", id, originLat, originLon)
	if err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	return id, nil
}

// Record stores one odometry sample under session.
func (db *DB) Record(session string, odom localization.Odometry) error {
	_, err := db.Exec(
		"INSERT INTO poses (session_id, unix_nanos, x, y, heading, var_x, var_y, var_heading) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		session, odom.Time.UnixNano(), odom.Position.X, odom.Position.Y, odom.Heading,
		odom.Variance[0], odom.Variance[1], odom.Variance[3],
	)
	return err
}

// Recent returns up to limit of the newest points of session, oldest first.
func (db *DB) Recent(session string, limit int) ([]Point, error) {
	rows, err := db.Query(`
		SELECT unix_nanos, x, y, heading, var_x, var_y, var_heading FROM (
			SELECT * FROM poses WHERE session_id = ? ORDER BY unix_nanos DESC LIMIT ?
		) ORDER BY unix_nanos ASC`, session, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []Point
	for rows.Next() {
		var nanos int64
		p := Point{SessionID: session}
		if err := rows.Scan(&nanos, &p.X, &p.Y, &p.Heading, &p.VarX, &p.VarY, &p.VarH); err != nil {
			return nil, err
		}
		p.Time = time.Unix(0, nanos)
		points = append(points, p)
	}
	return points, rows.Err()
}

// LatestSession returns the most recently started session id, or "" when
// nothing has been recorded.
func (db *DB) LatestSession() (string, error) {
	var id string
	err := db.QueryRow("SELECT session_id FROM sessions ORDER BY started_at DESC, rowid DESC LIMIT 1").Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}

// Sink returns a localization sink that records into session. Write errors
// are reported through onErr.
func (db *DB) Sink(session string, onErr func(error)) localization.Sink {
	return func(odom localization.Odometry) {
		if err := db.Record(session, odom); err != nil && onErr != nil {
			onErr(err)
		}
	}
}
