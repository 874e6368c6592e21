// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package allocator

// UnboundedLastN means last-N enforcement is disabled: every known
// source is eligible regardless of its priority rank.
const UnboundedLastN = 0

// AllocationSettings is the policy a receiver's signaling layer pushes
// into the allocator core. It is treated as an immutable value once
// handed to Update: the core never mutates it, and Update always
// installs a wholesale replacement.
type AllocationSettings struct {
	// OnStageSources is the ordered, de-duplicated list of sources the
	// receiver currently displays at primary resolution.
	OnStageSources []string
	// SelectedSources is the ordered, de-duplicated list of sources the
	// receiver wants forwarded at all, beyond whatever is on-stage.
	SelectedSources []string
	// DefaultConstraints applies to any source without a per-source
	// override.
	DefaultConstraints VideoConstraints
	// PerSourceConstraints overrides DefaultConstraints for specific
	// sources.
	PerSourceConstraints map[string]VideoConstraints
	// LastN bounds how many prioritized sources remain eligible for
	// forwarding; UnboundedLastN (0) disables the limit.
	LastN int
}

// selectedOrder returns the on-stage-first, de-duplicated priority seed
// list described in spec §4.1: on-stage sources in order, then any
// selected source not already present.
func (s AllocationSettings) selectedOrder() []string {
	seen := make(map[string]struct{}, len(s.OnStageSources)+len(s.SelectedSources))
	out := make([]string, 0, len(s.OnStageSources)+len(s.SelectedSources))
	for _, name := range s.OnStageSources {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	for _, name := range s.SelectedSources {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

func (s AllocationSettings) isOnStage(name string) bool {
	for _, n := range s.OnStageSources {
		if n == name {
			return true
		}
	}
	return false
}

func (s AllocationSettings) constraintsFor(name string) VideoConstraints {
	if c, ok := s.PerSourceConstraints[name]; ok {
		return c
	}
	return s.DefaultConstraints
}

// NewDefaultConstraints builds the DefaultConstraints a signaling layer
// should populate AllocationSettings with when it has no sharper
// per-source override for a source: every non-on-stage source is capped
// at cfg.ThumbnailMaxHeightPx, since on-stage sources get their own
// floor from cfg.OnStageMaxHeightPx applied later by the effective
// constraints deriver (C5).
func NewDefaultConstraints(cfg Config) VideoConstraints {
	return VideoConstraints{
		MaxHeightPx:  cfg.ThumbnailMaxHeightPx,
		MaxFrameRate: cfg.OnStagePreferredFramerate,
	}
}
