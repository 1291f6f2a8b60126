// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/relabs-tech/gps_imu_localization/internal/config"
	"github.com/relabs-tech/gps_imu_localization/internal/localization"
)

// RunMockConsole runs the whole pipeline in-process on mock sources and
// prints every fused pose. No broker is needed.
func RunMockConsole() error {
	cfg := config.Get()

	loc, err := newLocalizer(cfg)
	if err != nil {
		return err
	}
	syncer := newSynchronizer(cfg, loc, "mock")

	ctx, cancel := signalContext()
	defer cancel()

	fixes, samples := mockFeeds(ctx, cfg)
	pairs := syncer.Run(ctx, fixes, samples)

	err = loc.Run(ctx, pairs, func(odom localization.Odometry) {
		fmt.Printf(
			"X=%8.3f  Y=%8.3f  YAW=%7.4f  varX=%.4f varYaw=%.4f\n",
			odom.Position.X, odom.Position.Y, odom.Heading,
			odom.Variance[0], odom.Variance[3],
		)
	})

	st := syncer.Stats()
	fmt.Printf("matched=%d superseded=%d stale=%d rejected=%d\n", st.Matched, st.Superseded, st.Stale, st.Rejected)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
