// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package allocator

import (
	"github.com/vmihailenco/msgpack/v5"
)

// EventType identifies one of the three events C6 emits during an
// update cycle.
type EventType string

const (
	EventAllocationChanged                EventType = "allocation_changed"
	EventEffectiveVideoConstraintsChanged EventType = "effective_video_constraints_changed"
	EventSourceListChanged                EventType = "source_list_changed"
)

// Event is what subscribers receive. Only the fields relevant to
// EventType are populated; the rest are zero values.
type Event struct {
	Type EventType `msgpack:"type"`

	// AllocationChanged
	Allocation BandwidthAllocation `msgpack:"allocation,omitempty"`

	// EffectiveVideoConstraintsChanged
	OldEffectiveConstraints map[string]VideoConstraints `msgpack:"oldEffectiveConstraints,omitempty"`
	NewEffectiveConstraints map[string]VideoConstraints `msgpack:"newEffectiveConstraints,omitempty"`

	// SourceListChanged
	SourceNames []string `msgpack:"sourceNames,omitempty"`
}

// Marshal msgpack-encodes the event for transport over service/ws, the
// same way service.ClientMessage/rtc.Message are encoded.
func (e Event) Marshal() ([]byte, error) {
	return msgpack.Marshal(&e)
}

// EventHandler is invoked, in subscriber registration order, for every
// event emitted during an update cycle (spec §9: "list of subscriber
// callbacks invoked in registration order inside the cycle mutex").
type EventHandler func(Event)

type eventSubscribers struct {
	handlers []EventHandler
}

func (s *eventSubscribers) subscribe(h EventHandler) {
	s.handlers = append(s.handlers, h)
}

func (s *eventSubscribers) emit(ev Event) {
	for _, h := range s.handlers {
		h(ev)
	}
}
