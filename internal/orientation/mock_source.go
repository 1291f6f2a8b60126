// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
	"time"
)

type mockSource struct {
	start time.Time
	rate  float64 // rad/s
	now   func() time.Time
}

// NewMockSource creates a mock orientation source whose heading turns at a
// constant rate, matching a platform driving a circle counter-clockwise.
func NewMockSource(rate float64) Source {
	return &mockSource{start: time.Now(), rate: rate, now: time.Now}
}

func (m *mockSource) Next() (Sample, error) {
	now := m.now()
	elapsed := now.Sub(m.start).Seconds()
	yaw := math.Remainder(elapsed*m.rate+math.Pi/2, 2*math.Pi)

	return Sample{
		Orientation: FromEuler(0.02*math.Sin(elapsed), 0.01*math.Cos(elapsed*0.7), yaw),
		Time:        now,
	}, nil
}
