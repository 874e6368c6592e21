// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package allocator

import (
	"strconv"
	"time"

	"github.com/pion/rtcp"
)

// PeerStats carries the transceiver-level numbers the predictor
// snapshot needs for one remote peer. The field set mirrors
// pion/rtcp.ReceptionReport (Jitter, TotalLost): that is the wire shape
// these numbers already have coming out of a real RTCP receiver report,
// so the stats collector is built against that shape rather than an
// invented one.
type PeerStats struct {
	JitterMs        float64
	RoundTripTimeMs float64
	PktLost         uint32
	PktReceived     uint32
}

// PeerStatsFromReceptionReport converts a pion/rtcp receiver report into
// PeerStats. Jitter in a ReceptionReport is in RTP timestamp units, so
// the caller supplies the track's clock rate (e.g. 90000 for video) to
// convert it to milliseconds; round-trip time isn't carried by a
// ReceptionReport on its own and is supplied separately by the caller
// (typically derived from the report's LastSenderReport/Delay fields
// against a sender report timestamp, which the caller tracks per peer).
func PeerStatsFromReceptionReport(rr rtcp.ReceptionReport, clockRateHz float64, roundTripTimeMs float64) PeerStats {
	var jitterMs float64
	if clockRateHz > 0 {
		jitterMs = float64(rr.Jitter) / clockRateHz * 1000
	}
	return PeerStats{
		JitterMs:        jitterMs,
		RoundTripTimeMs: roundTripTimeMs,
		PktLost:         rr.TotalLost,
		PktReceived:     rr.LastSequenceNumber,
	}
}

// layerStatsDoc is the per-layer entry under a peer's "layers" map in
// the predictor snapshot (spec §4.5).
type layerStatsDoc struct {
	TemporalID  int     `json:"temporal_id"`
	SpatialID   int     `json:"spatial_id"`
	HeightPx    int     `json:"height"`
	FrameRateHz float64 `json:"framerate"`
	BitrateBps  int     `json:"bitrate"`
}

func newLayerStatsDoc(l Layer) layerStatsDoc {
	return layerStatsDoc{
		TemporalID:  l.TemporalID,
		SpatialID:   l.SpatialID,
		HeightPx:    l.HeightPx,
		FrameRateHz: l.FrameRateHz,
		BitrateBps:  l.BitrateBps,
	}
}

type allocationStatsDoc struct {
	Target *layerStatsDoc `json:"target"`
	Ideal  *layerStatsDoc `json:"ideal"`
}

type peerStatsDoc struct {
	JitterMs         float64                  `json:"jitter_ms"`
	RoundTripTimeMs  float64                  `json:"round_trip_time_ms"`
	PktLost          uint32                   `json:"pkt_lost"`
	PktReceived      uint32                   `json:"pkt_received"`
	VideoConstraints VideoConstraints         `json:"video_constraints"`
	Layers           map[string]layerStatsDoc `json:"layers"`
	Allocations      allocationStatsDoc       `json:"Allocations"`
}

type summaryStatsDoc struct {
	AvailableBW int   `json:"Available_BW"`
	Timestamp   int64 `json:"timestamp"`
}

// buildStatsDocument assembles C7's structured snapshot for one cycle.
// Absent or zero numerics are reported as 0 rather than omitted, per
// spec §4.5; peerStats lookups that miss simply leave the numeric
// fields at their zero value.
func buildStatsDocument(receiverEndpointID string, now time.Time, budget int, ssas []*SingleSourceAllocation, peerStats map[string]PeerStats) map[string]map[string]interface{} {
	peers := make(map[string]interface{}, len(ssas)+1)

	for _, ssa := range ssas {
		peerID := ssa.Source.OwnerEndpointID()
		stats := peerStats[peerID]

		layers := make(map[string]layerStatsDoc, len(ssa.Layers))
		for i, l := range ssa.Layers {
			layers[strconv.Itoa(i)] = newLayerStatsDoc(l)
		}

		var target, ideal *layerStatsDoc
		if l := ssa.targetLayer(); l != nil {
			d := newLayerStatsDoc(*l)
			target = &d
		}
		if l := ssa.idealLayer(); l != nil {
			d := newLayerStatsDoc(*l)
			ideal = &d
		}

		peers[peerID] = peerStatsDoc{
			JitterMs:         stats.JitterMs,
			RoundTripTimeMs:  stats.RoundTripTimeMs,
			PktLost:          stats.PktLost,
			PktReceived:      stats.PktReceived,
			VideoConstraints: ssa.Constraints,
			Layers:           layers,
			Allocations: allocationStatsDoc{
				Target: target,
				Ideal:  ideal,
			},
		}
	}

	peers["Summary"] = summaryStatsDoc{
		AvailableBW: budget,
		Timestamp:   now.UnixMilli(),
	}

	return map[string]map[string]interface{}{
		receiverEndpointID: peers,
	}
}
