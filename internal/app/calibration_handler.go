// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"log"
	"math"
	"net/http"

	"github.com/relabs-tech/gps_imu_localization/internal/filter"
	"github.com/relabs-tech/gps_imu_localization/internal/geodesy"
	"github.com/relabs-tech/gps_imu_localization/internal/localization"
	"github.com/relabs-tech/gps_imu_localization/internal/timesync"
)

// OffsetRequest is the body of POST /imu_offset.
type OffsetRequest struct {
	Data *float64 `json:"data"`
}

// OffsetResponse reports the offset now in effect.
type OffsetResponse struct {
	Success bool    `json:"success"`
	Offset  float64 `json:"offset"`
	Message string  `json:"message,omitempty"`
}

// statusConfidence is the probability mass of the intervals in /status.
const statusConfidence = 0.95

// StatusResponse is served by GET /status. Intervals holds the 95% central
// interval of each filter axis, keyed by axis name, once the filter is
// seeded.
type StatusResponse struct {
	Initialized bool                   `json:"initialized"`
	Origin      geodesy.Origin         `json:"origin"`
	Offset      float64                `json:"offset"`
	Sync        timesync.Stats         `json:"sync"`
	Intervals   map[string][2]float64  `json:"intervals,omitempty"`
	Odometry    *localization.Odometry `json:"odometry,omitempty"`
}

// CalibrationHandler serves the heading offset, status and reset calls of a
// running localization node.
type CalibrationHandler struct {
	loc  *localization.Localizer
	sync *timesync.Synchronizer
	mux  *http.ServeMux
}

// NewCalibrationHandler wires the routes for loc. sync may be nil.
func NewCalibrationHandler(loc *localization.Localizer, sync *timesync.Synchronizer) *CalibrationHandler {
	h := &CalibrationHandler{loc: loc, sync: sync, mux: http.NewServeMux()}
	h.mux.HandleFunc("/imu_offset", h.handleOffset)
	h.mux.HandleFunc("/status", h.handleStatus)
	h.mux.HandleFunc("/reset", h.handleReset)
	return h
}

func (h *CalibrationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *CalibrationHandler) handleOffset(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, OffsetResponse{Success: true, Offset: h.loc.HeadingOffset()})

	case http.MethodPost:
		var req OffsetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, OffsetResponse{Offset: h.loc.HeadingOffset(), Message: "invalid JSON: " + err.Error()})
			return
		}
		if req.Data == nil || math.IsNaN(*req.Data) || math.IsInf(*req.Data, 0) {
			writeJSON(w, http.StatusBadRequest, OffsetResponse{Offset: h.loc.HeadingOffset(), Message: "data must be a finite number"})
			return
		}
		h.loc.SetHeadingOffset(*req.Data)
		log.Printf("calibration: set imu offset = %g", *req.Data)
		writeJSON(w, http.StatusOK, OffsetResponse{Success: true, Offset: *req.Data})

	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *CalibrationHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	state := h.loc.State()
	resp := StatusResponse{
		Initialized: state.Initialized,
		Origin:      h.loc.Origin(),
		Offset:      h.loc.HeadingOffset(),
	}
	if state.Initialized {
		resp.Intervals = make(map[string][2]float64, filter.NumAxes)
		for a, b := range state.Beliefs {
			lo, hi := b.Interval(statusConfidence)
			resp.Intervals[filter.Axis(a).String()] = [2]float64{lo, hi}
		}
	}
	if h.sync != nil {
		resp.Sync = h.sync.Stats()
	}
	if odom, ok := h.loc.Latest(); ok {
		resp.Odometry = &odom
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleReset drops the filter state so the next pair seeds it again. The
// heading offset is kept.
func (h *CalibrationHandler) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.loc.Reset()
	log.Println("calibration: filter reset")
	writeJSON(w, http.StatusOK, OffsetResponse{Success: true, Offset: h.loc.HeadingOffset()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("json encode error: %v", err)
	}
}
