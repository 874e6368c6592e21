// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package allocator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	name    string
	ownerID string
	layers  []Layer
}

func (s fakeSource) SourceName() string      { return s.name }
func (s fakeSource) OwnerEndpointID() string { return s.ownerID }
func (s fakeSource) Layers() []Layer         { return s.layers }

func standardLayers() []Layer {
	return []Layer{
		{Index: 0, HeightPx: 180, FrameRateHz: 15, BitrateBps: 150_000},
		{Index: 1, HeightPx: 360, FrameRateHz: 30, BitrateBps: 500_000},
		{Index: 2, HeightPx: 720, FrameRateHz: 30, BitrateBps: 2_000_000},
	}
}

func TestNewSingleSourceAllocation(t *testing.T) {
	src := fakeSource{name: "A", ownerID: "epA", layers: standardLayers()}

	t.Run("disabled constraints yield no candidates", func(t *testing.T) {
		ssa := newSingleSourceAllocation(src, DisabledVideoConstraints, false, 360, 30)
		require.Empty(t, ssa.Layers)
		require.Equal(t, SuspendedIndex, ssa.IdealIndex)
		require.Equal(t, SuspendedIndex, ssa.TargetIndex)
	})

	t.Run("unrestricted constraints admit all layers", func(t *testing.T) {
		ssa := newSingleSourceAllocation(src, VideoConstraints{MaxHeightPx: 1080, MaxFrameRate: 60}, true, 360, 30)
		require.Len(t, ssa.Layers, 3)
		require.Equal(t, 2, ssa.IdealIndex)
		require.Equal(t, 1, ssa.preferredIndex)
	})

	t.Run("thumbnail constraint filters to lowest layer", func(t *testing.T) {
		ssa := newSingleSourceAllocation(src, VideoConstraints{MaxHeightPx: 180, MaxFrameRate: 30}, false, 360, 30)
		require.Len(t, ssa.Layers, 1)
		require.Equal(t, 0, ssa.IdealIndex)
	})
}

func TestSingleSourceAllocationImprove(t *testing.T) {
	src := fakeSource{name: "A", ownerID: "epA", layers: standardLayers()}

	t.Run("tile view advances one step at a time", func(t *testing.T) {
		ssa := newSingleSourceAllocation(src, VideoConstraints{MaxHeightPx: 1080, MaxFrameRate: 60}, false, 360, 30)
		consumed := ssa.improve(3_000_000, false)
		require.Equal(t, 150_000, consumed)
		require.Equal(t, 0, ssa.TargetIndex)

		// The net delta, not the new rung's full bitrate plus the old
		// one: layers are mutually exclusive, so only the increase over
		// the previously committed 150k is newly spent.
		consumed = ssa.improve(3_000_000, false)
		require.Equal(t, 350_000, consumed)
		require.Equal(t, 1, ssa.TargetIndex)
	})

	t.Run("stage view advances greedily up to preferred", func(t *testing.T) {
		ssa := newSingleSourceAllocation(src, VideoConstraints{MaxHeightPx: 1080, MaxFrameRate: 60}, true, 360, 30)
		consumed := ssa.improve(3_000_000, true)
		require.Equal(t, 500_000, consumed)
		require.Equal(t, 1, ssa.TargetIndex)
		require.True(t, ssa.hasReachedPreferred())
	})

	t.Run("stage view stops at preferred even with budget left", func(t *testing.T) {
		ssa := newSingleSourceAllocation(src, VideoConstraints{MaxHeightPx: 1080, MaxFrameRate: 60}, true, 360, 30)
		ssa.improve(10_000_000, true)
		require.Equal(t, 1, ssa.TargetIndex)
	})

	t.Run("oversending admits minimum viable layer", func(t *testing.T) {
		ssa := newSingleSourceAllocation(src, VideoConstraints{MaxHeightPx: 1080, MaxFrameRate: 60}, true, 360, 30)
		consumed := ssa.improve(50_000, true)
		require.Equal(t, 150_000, consumed)
		require.Equal(t, 0, ssa.TargetIndex)
	})

	t.Run("no budget and already suspended with zero layers stays suspended", func(t *testing.T) {
		ssa := newSingleSourceAllocation(src, DisabledVideoConstraints, false, 360, 30)
		consumed := ssa.improve(1_000_000, false)
		require.Equal(t, 0, consumed)
		require.Equal(t, SuspendedIndex, ssa.TargetIndex)
	})
}

func TestSingleSourceAllocationRLApply(t *testing.T) {
	src := fakeSource{name: "A", ownerID: "epA", layers: standardLayers()}

	t.Run("hint fits and is applied directly", func(t *testing.T) {
		ssa := newSingleSourceAllocation(src, VideoConstraints{MaxHeightPx: 1080, MaxFrameRate: 60}, true, 360, 30)
		consumed := ssa.rlApply(1, 3_000_000, true)
		require.Equal(t, 500_000, consumed)
		require.Equal(t, 1, ssa.TargetIndex)
	})

	t.Run("hint clamped to ideal index", func(t *testing.T) {
		ssa := newSingleSourceAllocation(src, VideoConstraints{MaxHeightPx: 1080, MaxFrameRate: 60}, true, 360, 30)
		consumed := ssa.rlApply(5, 3_000_000, true)
		require.Equal(t, 2_000_000, consumed)
		require.Equal(t, 2, ssa.TargetIndex)
	})

	t.Run("hint does not fit falls back to improve", func(t *testing.T) {
		ssa := newSingleSourceAllocation(src, VideoConstraints{MaxHeightPx: 1080, MaxFrameRate: 60}, true, 360, 30)
		// The 2,000,000 hint overruns the 600,000 budget, so this falls
		// back to improve, which can still reach the 500,000 rung since
		// each candidate is tested against the full budget.
		consumed := ssa.rlApply(2, 600_000, true)
		require.Equal(t, 500_000, consumed)
		require.Equal(t, 1, ssa.TargetIndex)
	})

	t.Run("hint at or below suspended index keeps suspended", func(t *testing.T) {
		ssa := newSingleSourceAllocation(src, VideoConstraints{MaxHeightPx: 1080, MaxFrameRate: 60}, true, 360, 30)
		consumed := ssa.rlApply(SuspendedIndex, 3_000_000, true)
		require.Equal(t, 0, consumed)
		require.Equal(t, SuspendedIndex, ssa.TargetIndex)
	})
}

func TestSingleSourceAllocationDerived(t *testing.T) {
	src := fakeSource{name: "A", ownerID: "epA", layers: standardLayers()}
	ssa := newSingleSourceAllocation(src, VideoConstraints{MaxHeightPx: 1080, MaxFrameRate: 60}, true, 360, 30)

	require.True(t, ssa.isSuspended())
	require.Equal(t, 0, ssa.targetBitrate())
	require.Equal(t, 2_000_000, ssa.idealBitrate())

	ssa.improve(3_000_000, true)
	require.False(t, ssa.isSuspended())
	require.Equal(t, 500_000, ssa.targetBitrate())
}
