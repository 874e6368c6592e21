// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package allocator

import (
	"fmt"
	"time"
)

// PredictorConfig configures the optional remote predictor delegate
// (C8). When Enable is false the allocator always runs the greedy
// fallback.
type PredictorConfig struct {
	Enable  bool
	URL     string        `toml:"url"`
	Timeout time.Duration `toml:"timeout"`
}

func (c PredictorConfig) IsValid() error {
	if !c.Enable {
		return nil
	}
	if c.URL == "" {
		return fmt.Errorf("invalid URL value: should not be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("invalid Timeout value: should be greater than 0")
	}
	return nil
}

// Config holds the tunables spec.md §6 lists as configuration.
type Config struct {
	// BWEChangeThresholdFraction is the relative BWE change required for
	// bandwidth_changed to trigger a re-allocation.
	BWEChangeThresholdFraction float64 `toml:"bwe_change_threshold_fraction"`
	// MaxTimeBetweenCalculations bounds how stale an allocation may get
	// between periodic ticks (spec §5 reschedule_update).
	MaxTimeBetweenCalculations time.Duration `toml:"max_time_between_calculations"`
	// ThumbnailMaxHeightPx caps tile-view (non on-stage) sources.
	ThumbnailMaxHeightPx int `toml:"thumbnail_max_height_px"`
	// OnStageMaxHeightPx is the height floor applied to on-stage sources
	// by the effective-constraints deriver (C5).
	OnStageMaxHeightPx int `toml:"on_stage_max_height_px"`
	// OnStagePreferredHeightPx and OnStagePreferredFramerate define the
	// preferred-layer threshold used by improve() in stage view (C3).
	OnStagePreferredHeightPx  int     `toml:"on_stage_preferred_height_px"`
	OnStagePreferredFramerate float64 `toml:"on_stage_preferred_framerate"`

	Predictor PredictorConfig `toml:"predictor"`
}

func (c Config) IsValid() error {
	if c.BWEChangeThresholdFraction <= 0 {
		return fmt.Errorf("invalid BWEChangeThresholdFraction value: should be greater than 0")
	}
	if c.MaxTimeBetweenCalculations <= 0 {
		return fmt.Errorf("invalid MaxTimeBetweenCalculations value: should be greater than 0")
	}
	if c.ThumbnailMaxHeightPx <= 0 {
		return fmt.Errorf("invalid ThumbnailMaxHeightPx value: should be greater than 0")
	}
	if c.OnStageMaxHeightPx <= 0 {
		return fmt.Errorf("invalid OnStageMaxHeightPx value: should be greater than 0")
	}
	if c.OnStagePreferredHeightPx <= 0 {
		return fmt.Errorf("invalid OnStagePreferredHeightPx value: should be greater than 0")
	}
	if c.OnStagePreferredFramerate <= 0 {
		return fmt.Errorf("invalid OnStagePreferredFramerate value: should be greater than 0")
	}
	if err := c.Predictor.IsValid(); err != nil {
		return fmt.Errorf("invalid Predictor config: %w", err)
	}
	return nil
}

// SetDefaults fills a zero-value Config with the defaults used when no
// config file is present: predictor disabled, 15% BWE-change threshold.
func (c *Config) SetDefaults() {
	c.BWEChangeThresholdFraction = 0.15
	c.MaxTimeBetweenCalculations = 2 * time.Second
	c.ThumbnailMaxHeightPx = 180
	c.OnStageMaxHeightPx = 360
	c.OnStagePreferredHeightPx = 360
	c.OnStagePreferredFramerate = 30
	c.Predictor.Enable = false
	c.Predictor.Timeout = 50 * time.Millisecond
}
