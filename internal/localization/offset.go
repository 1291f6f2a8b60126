package localization

import (
	"math"
	"sync/atomic"
)

// HeadingOffset is the process-wide heading correction set by the
// calibration call. It is applied only when assembling output.
type HeadingOffset struct {
	bits atomic.Uint64
}

// Load returns the current offset in radians. The zero value reads 0.
func (h *HeadingOffset) Load() float64 {
	return math.Float64frombits(h.bits.Load())
}

// Store replaces the offset.
func (h *HeadingOffset) Store(v float64) {
	h.bits.Store(math.Float64bits(v))
}
