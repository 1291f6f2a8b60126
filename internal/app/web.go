// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/gps_imu_localization/internal/config"
	"github.com/relabs-tech/gps_imu_localization/internal/localization"
	"github.com/relabs-tech/gps_imu_localization/internal/track"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

const (
	defaultTrackLimit = 500
	wsWriteTimeout    = 2 * time.Second
)

// Dashboard caches the latest odometry and fans it out to websocket clients.
type Dashboard struct {
	db    *track.DB // nil when no recorder is configured
	route [][2]float64

	mu       sync.RWMutex
	last     localization.Odometry
	haveLast bool
	subs     map[chan localization.Odometry]struct{}
}

func NewDashboard(db *track.DB, route [][2]float64) *Dashboard {
	return &Dashboard{db: db, route: route, subs: make(map[chan localization.Odometry]struct{})}
}

// Update stores o as the latest pose and forwards it to every stream.
// Slow clients miss updates rather than block the caller.
func (d *Dashboard) Update(o localization.Odometry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = o
	d.haveLast = true
	for ch := range d.subs {
		select {
		case ch <- o:
		default:
		}
	}
}

func (d *Dashboard) latest() (localization.Odometry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last, d.haveLast
}

func (d *Dashboard) subscribe() chan localization.Odometry {
	ch := make(chan localization.Odometry, 8)
	d.mu.Lock()
	d.subs[ch] = struct{}{}
	d.mu.Unlock()
	return ch
}

func (d *Dashboard) unsubscribe(ch chan localization.Odometry) {
	d.mu.Lock()
	delete(d.subs, ch)
	d.mu.Unlock()
}

// Handler returns the API routes. Anything else is served from staticDir
// when it is not empty.
func (d *Dashboard) Handler(staticDir string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/odometry", d.handleOdometry)
	mux.HandleFunc("/api/track", d.handleTrack)
	mux.HandleFunc("/api/route", d.handleRoute)
	mux.HandleFunc("/ws", d.handleStream)
	if staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}
	return mux
}

func (d *Dashboard) handleOdometry(w http.ResponseWriter, r *http.Request) {
	o, ok := d.latest()
	if !ok {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (d *Dashboard) handleRoute(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.route)
}

// handleTrack serves the recorded poses of ?session=, or of the latest
// session, limited to ?limit= points.
func (d *Dashboard) handleTrack(w http.ResponseWriter, r *http.Request) {
	if d.db == nil {
		http.Error(w, "track recording disabled", http.StatusNotFound)
		return
	}

	limit := defaultTrackLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(w, fmt.Sprintf("invalid limit %q", s), http.StatusBadRequest)
			return
		}
		limit = n
	}

	session := r.URL.Query().Get("session")
	if session == "" {
		var err error
		if session, err = d.db.LatestSession(); err != nil {
			log.Printf("web: latest session: %v", err)
			http.Error(w, "track query failed", http.StatusInternalServerError)
			return
		}
	}

	points := []track.Point{}
	if session != "" {
		p, err := d.db.Recent(session, limit)
		if err != nil {
			log.Printf("web: track query: %v", err)
			http.Error(w, "track query failed", http.StatusInternalServerError)
			return
		}
		if p != nil {
			points = p
		}
	}
	writeJSON(w, http.StatusOK, points)
}

// handleStream pushes every pose to a websocket client, starting with the
// latest one if any.
func (d *Dashboard) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	ch := d.subscribe()
	defer d.unsubscribe(ch)

	// The client never sends anything useful; reading detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(o localization.Odometry) error {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(o)
	}

	if o, ok := d.latest(); ok {
		if err := send(o); err != nil {
			return
		}
	}
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case o := <-ch:
			if err := send(o); err != nil {
				log.Printf("web: websocket write error: %v", err)
				return
			}
		}
	}
}

// RunWeb serves the dashboard, fed from the odometry topic.
func RunWeb() error {
	cfg := config.Get()

	var db *track.DB
	if cfg.TrackDBPath != "" {
		var err error
		if db, err = track.Open(cfg.TrackDBPath); err != nil {
			return fmt.Errorf("track db: %w", err)
		}
		defer db.Close()
	}
	dash := NewDashboard(db, cfg.ReferenceRoute)

	client, err := connectMQTT("web", cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	if err := subscribeJSON("web", client, cfg.TopicOdometry, dash.Update); err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web server listening on %s", addr)
	return http.ListenAndServe(addr, dash.Handler("web"))
}
