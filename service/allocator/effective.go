// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package allocator

// deriveEffectiveConstraints implements C5: for every source in
// priority order, fold last-N, per-source/default constraints and the
// on-stage height bump into a single effective VideoConstraints.
//
// sorted must already be in priority order (the output of prioritize).
// ThumbnailMaxHeightPx is deliberately not folded in here: spec.md §4.2
// lists only last-N, per-source/default constraints and the on-stage
// bump as inputs to this derivation. It is instead the default
// non-on-stage cap a settings producer should use when it has no
// sharper per-source override; see NewDefaultConstraints.
func deriveEffectiveConstraints(sorted []MediaSourceDesc, settings AllocationSettings, onStageMaxHeightPx int) map[string]VideoConstraints {
	out := make(map[string]VideoConstraints, len(sorted))

	for rank, src := range sorted {
		name := src.SourceName()
		onStage := settings.isOnStage(name)
		explicitlySelected := onStage || isExplicitlySelected(settings.SelectedSources, name)

		if settings.LastN > 0 && rank >= settings.LastN && !explicitlySelected {
			out[name] = DisabledVideoConstraints
			continue
		}

		c := settings.constraintsFor(name)
		if onStage && !c.Disabled() && c.MaxHeightPx < onStageMaxHeightPx {
			c.MaxHeightPx = onStageMaxHeightPx
		}
		out[name] = c
	}

	return out
}

func isExplicitlySelected(selected []string, name string) bool {
	for _, n := range selected {
		if n == name {
			return true
		}
	}
	return false
}
