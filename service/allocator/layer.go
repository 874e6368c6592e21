// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package allocator implements the per-receiver bandwidth allocator: the
// control loop that decides, for one receiving participant, which
// simulcast/scalable layer of each remote video source should be
// forwarded under a bandwidth budget.
//
// The package only consumes its collaborators (layer discovery, the
// bandwidth estimator, the remote predictor, the scheduler) through the
// interfaces declared here; none of those are implemented by this
// package itself.
package allocator

import "fmt"

// SuspendedIndex is the sentinel target/ideal layer index meaning "not
// currently forwarding any layer of this source".
const SuspendedIndex = -1

// Layer describes a single forwardable encoding of a source: one
// simulcast rung or one SVC spatial/temporal layer.
type Layer struct {
	// Index is dense, 0-based and monotonically increasing in quality
	// across a source's layer list.
	Index int
	// TemporalID and SpatialID identify the encoding within a scalable
	// stream; for plain simulcast both are typically 0.
	TemporalID int
	SpatialID  int
	// HeightPx is the encoded frame height in pixels.
	HeightPx int
	// FrameRateHz is the encoded frame rate.
	FrameRateHz float64
	// BitrateBps is the most recently observed sending bitrate for this
	// layer. It may be 0 if the sender has not produced the layer
	// recently (or ever).
	BitrateBps int
}

func (l Layer) String() string {
	return fmt.Sprintf("layer{idx=%d sid=%d tid=%d h=%dp fps=%.1f bps=%d}",
		l.Index, l.SpatialID, l.TemporalID, l.HeightPx, l.FrameRateHz, l.BitrateBps)
}

// fitsWithin reports whether this layer satisfies a (non-disabled)
// constraint.
func (l Layer) fitsWithin(c VideoConstraints) bool {
	if c.Disabled() {
		return false
	}
	if l.HeightPx > c.MaxHeightPx {
		return false
	}
	if c.MaxFrameRate > 0 && l.FrameRateHz > c.MaxFrameRate {
		return false
	}
	return true
}

// MediaSourceDesc describes one remote video source available to be
// forwarded: a stable name, the endpoint that owns it, and the layers it
// currently exposes. Implementations are supplied by the RTP
// transceiver / layer-discovery collaborator, out of scope for this
// package.
type MediaSourceDesc interface {
	// SourceName is globally unique within the conference.
	SourceName() string
	// OwnerEndpointID is the id of the endpoint sending this source.
	OwnerEndpointID() string
	// Layers returns the candidate layers for this source, ordered by
	// Index ascending. Implementations should return a stable slice;
	// the allocator never mutates it.
	Layers() []Layer
}

// Endpoint describes one conference participant from the point of view
// of the endpoint supplier: its id and the media sources it is
// currently sending.
type Endpoint struct {
	ID           string
	MediaSources []MediaSourceDesc
}

// EndpointSupplier returns the current set of endpoints in the
// conference the receiver this allocator serves belongs to. Ordering is
// significant: implementations are expected to return endpoints in
// most-recent-speaker order (spec.md §4.1), which the prioritizer relies
// on for any source not explicitly pinned on-stage or selected.
type EndpointSupplier func() []Endpoint
