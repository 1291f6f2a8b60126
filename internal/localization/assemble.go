package localization

import (
	"time"

	"github.com/golang/geo/r3"

	"github.com/relabs-tech/gps_imu_localization/internal/filter"
	"github.com/relabs-tech/gps_imu_localization/internal/orientation"
)

// Frames names the frame chain base → local → global and the frame the
// odometry message is expressed in.
type Frames struct {
	Base     string `json:"base"`
	Local    string `json:"local"`
	Global   string `json:"global"`
	Odometry string `json:"odometry"`
}

// DefaultFrames returns the ROS frame names base_link, odom, utm and map.
func DefaultFrames() Frames {
	return Frames{Base: "base_link", Local: "odom", Global: "utm", Odometry: "map"}
}

// Transform places Child relative to Parent.
type Transform struct {
	Parent      string                 `json:"parent"`
	Child       string                 `json:"child"`
	Translation r3.Vector              `json:"translation"`
	Rotation    orientation.Quaternion `json:"rotation"`
	Time        time.Time              `json:"time"`
}

// Odometry is the fused pose emitted once per completed cycle.
type Odometry struct {
	Time        time.Time              `json:"time"`
	FrameID     string                 `json:"frame_id"`
	ChildFrame  string                 `json:"child_frame_id"`
	Position    r3.Vector              `json:"position"`
	Heading     float64                `json:"heading"`
	Orientation orientation.Quaternion `json:"orientation"`
	// Covariance is a fixed all-zero 6x6 placeholder, row major.
	Covariance [36]float64 `json:"covariance"`
	// Variance is the posterior variance per axis: x, y, z, heading.
	Variance [filter.NumAxes]float64 `json:"variance"`
	// Transforms holds base → local then local → global.
	Transforms [2]Transform `json:"transforms"`
}

// Assemble packages filter posteriors into an Odometry. offset is added to
// the heading mean; the filter state is not modified. anchor is the
// projected origin, positioned in the global frame with zero heading.
func Assemble(state filter.State, offset float64, anchor r3.Vector, frames Frames, stamp time.Time) Odometry {
	b := state.Beliefs
	pos := r3.Vector{X: b[filter.X].Mean, Y: b[filter.Y].Mean, Z: b[filter.Z].Mean}
	heading := b[filter.Heading].Mean + offset
	rot := orientation.FromYaw(heading)

	odom := Odometry{
		Time:        stamp,
		FrameID:     frames.Odometry,
		ChildFrame:  frames.Base,
		Position:    pos,
		Heading:     heading,
		Orientation: rot,
	}
	for a := 0; a < filter.NumAxes; a++ {
		odom.Variance[a] = b[a].Variance
	}

	odom.Transforms[0] = Transform{
		Parent:      frames.Local,
		Child:       frames.Base,
		Translation: pos,
		Rotation:    rot,
		Time:        stamp,
	}
	odom.Transforms[1] = Transform{
		Parent:      frames.Global,
		Child:       frames.Local,
		Translation: r3.Vector{X: anchor.X, Y: anchor.Y},
		Rotation:    orientation.FromYaw(0),
		Time:        stamp,
	}
	return odom
}
