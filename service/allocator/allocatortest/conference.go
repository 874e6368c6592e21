// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package allocatortest provides a reference, synthetic implementation
// of the allocator's external collaborators (MediaSourceDesc, Endpoint,
// EndpointSupplier) good enough to run cmd/allocatord end to end against
// a fake conference, standing in for the real RTP layer-discovery and
// speaker-detection subsystems the allocator treats as out of scope.
package allocatortest

import (
	"sync"

	"github.com/pion/rtcp"

	"github.com/mattermost/rtcd-allocator/service/allocator"
	"github.com/mattermost/rtcd-allocator/service/ratemon"
	"github.com/mattermost/rtcd-allocator/service/vad"
)

// StandardLayers returns the three-layer simulcast ladder used
// throughout spec.md §8's end-to-end scenarios: 180p@15/150kbps,
// 360p@30/500kbps, 720p@30/2000kbps.
func StandardLayers() []allocator.Layer {
	return []allocator.Layer{
		{Index: 0, HeightPx: 180, FrameRateHz: 15, BitrateBps: 150_000},
		{Index: 1, HeightPx: 360, FrameRateHz: 30, BitrateBps: 500_000},
		{Index: 2, HeightPx: 720, FrameRateHz: 30, BitrateBps: 2_000_000},
	}
}

// Source is a fixed-layer MediaSourceDesc fake.
type Source struct {
	name    string
	ownerID string
	layers  []allocator.Layer
}

// NewSource builds a Source exposing a fixed set of layers.
func NewSource(name, ownerID string, layers []allocator.Layer) *Source {
	return &Source{name: name, ownerID: ownerID, layers: layers}
}

func (s *Source) SourceName() string        { return s.name }
func (s *Source) OwnerEndpointID() string   { return s.ownerID }
func (s *Source) Layers() []allocator.Layer { return s.layers }

// RateSampledSource is a MediaSourceDesc whose layer bitrates fluctuate
// over time, modeled with ratemon.Monitor the same way a real SFU tracks
// a sender's RTP byte throughput per simulcast rung.
type RateSampledSource struct {
	name    string
	ownerID string

	mu       sync.Mutex
	layers   []allocator.Layer
	monitors []*ratemon.Monitor
}

// NewRateSampledSource builds a source whose layer shapes (height,
// frame rate) are fixed but whose BitrateBps is derived from a rolling
// window of pushed packet sizes per layer.
func NewRateSampledSource(name, ownerID string, shapes []allocator.Layer, samplingSize int) (*RateSampledSource, error) {
	src := &RateSampledSource{
		name:    name,
		ownerID: ownerID,
		layers:  append([]allocator.Layer(nil), shapes...),
	}
	for range shapes {
		m, err := ratemon.NewMonitor(samplingSize, nil)
		if err != nil {
			return nil, err
		}
		src.monitors = append(src.monitors, m)
	}
	return src, nil
}

// PushPacket records one sent packet of packetBytes for the given
// layer index, feeding that layer's bitrate estimate.
func (s *RateSampledSource) PushPacket(layerIndex, packetBytes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if layerIndex < 0 || layerIndex >= len(s.monitors) {
		return
	}
	s.monitors[layerIndex].PushSample(packetBytes)
}

func (s *RateSampledSource) SourceName() string      { return s.name }
func (s *RateSampledSource) OwnerEndpointID() string { return s.ownerID }

func (s *RateSampledSource) Layers() []allocator.Layer {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]allocator.Layer, len(s.layers))
	for i, l := range s.layers {
		rate := s.monitors[i].GetRateKbps()
		if rate >= 0 {
			l.BitrateBps = rate * 1000
		}
		out[i] = l
	}
	return out
}

// PeerStatsTracker accumulates pion/rtcp receiver reports per peer and
// exposes them as the allocator.PeerStats snapshot its stats collector
// (C7) and predictor delegation (C8) consume, standing in for the real
// RTP transceiver layer the allocator treats as an external
// collaborator.
type PeerStatsTracker struct {
	mu    sync.Mutex
	stats map[string]allocator.PeerStats
}

// NewPeerStatsTracker creates an empty tracker.
func NewPeerStatsTracker() *PeerStatsTracker {
	return &PeerStatsTracker{stats: make(map[string]allocator.PeerStats)}
}

// NoteReceptionReport records rr for peerID, using clockRateHz to
// convert the report's jitter into milliseconds.
func (t *PeerStatsTracker) NoteReceptionReport(peerID string, rr rtcp.ReceptionReport, clockRateHz, roundTripTimeMs float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats[peerID] = allocator.PeerStatsFromReceptionReport(rr, clockRateHz, roundTripTimeMs)
}

// Supplier returns the snapshot function the allocator is constructed
// with as its peerStatsSupplier.
func (t *PeerStatsTracker) Supplier() func() map[string]allocator.PeerStats {
	return func() map[string]allocator.PeerStats {
		t.mu.Lock()
		defer t.mu.Unlock()

		out := make(map[string]allocator.PeerStats, len(t.stats))
		for id, s := range t.stats {
			out[id] = s
		}
		return out
	}
}

// Conference is an in-memory, synthetic EndpointSupplier backing:
// participants and their sources, reordered into most-recent-speaker
// order as NoteSpeech is called for each endpoint, using vad.Monitor to
// decide when a burst of audio levels constitutes speech activity.
type Conference struct {
	mu        sync.Mutex
	endpoints map[string]*allocator.Endpoint
	order     []string
	monitors  map[string]*vad.Monitor
}

// NewConference creates an empty Conference.
func NewConference() *Conference {
	return &Conference{
		endpoints: make(map[string]*allocator.Endpoint),
		monitors:  make(map[string]*vad.Monitor),
	}
}

// AddEndpoint registers a participant with its current media sources.
// It is appended to the back of the speaker order until it speaks.
func (c *Conference) AddEndpoint(id string, sources ...allocator.MediaSourceDesc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ep := &allocator.Endpoint{ID: id, MediaSources: sources}
	c.endpoints[id] = ep
	c.order = append(c.order, id)

	monitor, err := vad.NewMonitor(vad.MonitorConfig{}.SetDefaults(), func(speaking bool) {
		if speaking {
			c.promote(id)
		}
	})
	if err != nil {
		return err
	}
	c.monitors[id] = monitor

	return nil
}

// RemoveEndpoint drops a participant from the conference.
func (c *Conference) RemoveEndpoint(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.endpoints, id)
	delete(c.monitors, id)
	for i, name := range c.order {
		if name == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// NoteAudioLevel feeds one audio level sample for id into its voice
// activity monitor; sustained activity promotes id to the front of the
// speaker order, which the allocator's prioritizer consumes as
// tie-break ordering for sources it didn't already rank via on-stage or
// selected lists.
func (c *Conference) NoteAudioLevel(id string, level uint8) {
	c.mu.Lock()
	monitor := c.monitors[id]
	c.mu.Unlock()

	if monitor != nil {
		monitor.PushAudioLevel(level)
	}
}

func (c *Conference) promote(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, name := range c.order {
		if name == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append([]string{id}, c.order...)
}

// EndpointSupplier returns the allocator.EndpointSupplier driven by this
// conference's current membership and speaker order.
func (c *Conference) EndpointSupplier() allocator.EndpointSupplier {
	return func() []allocator.Endpoint {
		c.mu.Lock()
		defer c.mu.Unlock()

		out := make([]allocator.Endpoint, 0, len(c.order))
		for _, id := range c.order {
			if ep, ok := c.endpoints[id]; ok {
				out = append(out, *ep)
			}
		}
		return out
	}
}
