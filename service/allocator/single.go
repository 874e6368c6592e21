// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package allocator

// SingleSourceAllocation is the mutable per-cycle allocation state for
// one source (C3): its filtered candidate layers, the layer currently
// chosen for forwarding and the highest layer it could ideally reach.
type SingleSourceAllocation struct {
	Source      MediaSourceDesc
	Constraints VideoConstraints
	OnStage     bool

	// Layers holds only the candidates admitted by Constraints, ordered
	// by Index ascending.
	Layers []Layer

	TargetIndex int
	IdealIndex  int

	preferredIndex int
}

// newSingleSourceAllocation filters src's layers against constraints and
// computes IdealIndex and the preferred-layer threshold used by
// improve() in stage view.
func newSingleSourceAllocation(src MediaSourceDesc, constraints VideoConstraints, onStage bool, preferredHeightPx int, preferredFrameRate float64) *SingleSourceAllocation {
	ssa := &SingleSourceAllocation{
		Source:      src,
		Constraints: constraints,
		OnStage:     onStage,
		TargetIndex: SuspendedIndex,
		IdealIndex:  SuspendedIndex,
	}

	if constraints.Disabled() {
		return ssa
	}

	for _, l := range src.Layers() {
		if l.fitsWithin(constraints) {
			ssa.Layers = append(ssa.Layers, l)
		}
	}

	if len(ssa.Layers) == 0 {
		return ssa
	}

	ssa.IdealIndex = len(ssa.Layers) - 1
	ssa.preferredIndex = ssa.IdealIndex
	for i, l := range ssa.Layers {
		if l.HeightPx >= preferredHeightPx && l.FrameRateHz >= preferredFrameRate {
			ssa.preferredIndex = i
			break
		}
	}

	return ssa
}

// improve implements C3's improve(budget, stage_view): it advances
// TargetIndex by one layer (tile view) or greedily up to the preferred
// layer (stage view), never exceeding budget except for the
// minimum-viable-layer admission described in spec §4.3. Layers are
// mutually exclusive — only the final TargetIndex's bitrate is ever
// actually sent — so each candidate is tested against the full budget,
// not against budget minus this source's own lower rungs. It returns
// the net change in this source's committed bitrate (newTargetBitrate -
// oldTargetBitrate), which may be negative-free but is never a sum of
// every rung visited along the way.
func (ssa *SingleSourceAllocation) improve(budget int, stageView bool) int {
	if len(ssa.Layers) == 0 {
		return 0
	}

	oldTarget := ssa.targetBitrate()

	for {
		nextIndex := ssa.TargetIndex + 1
		if nextIndex > ssa.IdealIndex {
			break
		}

		cost := ssa.Layers[nextIndex].BitrateBps
		fits := cost <= budget

		if !fits {
			if ssa.TargetIndex == SuspendedIndex {
				// Minimum viable video: admit the lowest candidate even
				// though it overruns the budget, and let the caller
				// record oversending.
				ssa.TargetIndex = nextIndex
			}
			break
		}

		ssa.TargetIndex = nextIndex

		if !stageView {
			break
		}
		if ssa.TargetIndex >= ssa.preferredIndex {
			break
		}
	}

	return ssa.targetBitrate() - oldTarget
}

// rlApply implements C3's rl_apply: it sets TargetIndex to the
// predictor's hint, clamped to IdealIndex, when that layer's bitrate
// fits budget; otherwise it falls back to improve. hint <= SuspendedIndex
// means "keep suspended".
func (ssa *SingleSourceAllocation) rlApply(hint int, budget int, stageView bool) int {
	if hint <= SuspendedIndex || len(ssa.Layers) == 0 {
		return 0
	}

	idx := hint
	if idx > ssa.IdealIndex {
		idx = ssa.IdealIndex
	}
	if idx < 0 || idx >= len(ssa.Layers) {
		return ssa.improve(budget, stageView)
	}

	cost := ssa.Layers[idx].BitrateBps
	if cost > budget {
		return ssa.improve(budget, stageView)
	}

	ssa.TargetIndex = idx
	return cost
}

// hasReachedPreferred reports whether TargetIndex is at or above the
// preferred quality threshold.
func (ssa *SingleSourceAllocation) hasReachedPreferred() bool {
	return ssa.TargetIndex >= ssa.preferredIndex
}

// isSuspended reports whether the source has video available but is not
// currently being forwarded.
func (ssa *SingleSourceAllocation) isSuspended() bool {
	return len(ssa.Layers) > 0 && !ssa.Constraints.Disabled() && ssa.TargetIndex == SuspendedIndex
}

func (ssa *SingleSourceAllocation) targetLayer() *Layer {
	if ssa.TargetIndex < 0 || ssa.TargetIndex >= len(ssa.Layers) {
		return nil
	}
	return &ssa.Layers[ssa.TargetIndex]
}

func (ssa *SingleSourceAllocation) idealLayer() *Layer {
	if ssa.IdealIndex < 0 || ssa.IdealIndex >= len(ssa.Layers) {
		return nil
	}
	return &ssa.Layers[ssa.IdealIndex]
}

func (ssa *SingleSourceAllocation) targetBitrate() int {
	if l := ssa.targetLayer(); l != nil {
		return l.BitrateBps
	}
	return 0
}

func (ssa *SingleSourceAllocation) idealBitrate() int {
	if l := ssa.idealLayer(); l != nil {
		return l.BitrateBps
	}
	return 0
}
