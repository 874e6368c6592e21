// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package allocator

// SingleAllocation is the immutable, published outcome for one source:
// the layer actually chosen to forward and the layer that would be
// chosen with unlimited budget.
type SingleAllocation struct {
	EndpointID  string `json:"endpointID"`
	SourceName  string `json:"sourceName"`
	TargetLayer *Layer `json:"targetLayer"`
	IdealLayer  *Layer `json:"idealLayer"`
}

// BandwidthAllocation is the immutable result of one allocation cycle
// (C6 step 10).
type BandwidthAllocation struct {
	Allocations          []SingleAllocation `json:"allocations"`
	Oversending          bool               `json:"oversending"`
	TargetBps            int                `json:"targetBps"`
	IdealBps             int                `json:"idealBps"`
	SuspendedSourceNames []string           `json:"suspendedSourceNames"`
}

// Equal implements the equality spec.md §3 defines: the sets of
// (source_name, target_layer.index) pairs match and the oversending and
// suspended-set flags match. Order is not significant.
func (a BandwidthAllocation) Equal(b BandwidthAllocation) bool {
	if a.Oversending != b.Oversending {
		return false
	}
	if len(a.Allocations) != len(b.Allocations) {
		return false
	}

	aIdx := make(map[string]int, len(a.Allocations))
	for _, sa := range a.Allocations {
		aIdx[sa.SourceName] = targetIndexOf(sa)
	}
	bIdx := make(map[string]int, len(b.Allocations))
	for _, sa := range b.Allocations {
		bIdx[sa.SourceName] = targetIndexOf(sa)
	}
	for name, idx := range aIdx {
		other, ok := bIdx[name]
		if !ok || other != idx {
			return false
		}
	}

	if len(a.SuspendedSourceNames) != len(b.SuspendedSourceNames) {
		return false
	}
	aSuspended := make(map[string]struct{}, len(a.SuspendedSourceNames))
	for _, n := range a.SuspendedSourceNames {
		aSuspended[n] = struct{}{}
	}
	for _, n := range b.SuspendedSourceNames {
		if _, ok := aSuspended[n]; !ok {
			return false
		}
	}

	return true
}

func targetIndexOf(sa SingleAllocation) int {
	if sa.TargetLayer == nil {
		return SuspendedIndex
	}
	return sa.TargetLayer.Index
}
