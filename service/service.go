// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package service wires the allocator core (service/allocator) to the
// ambient transport it needs to run as a standalone daemon: an
// admin/debug HTTP surface and an event fan-out websocket. It owns the
// lifecycle of every per-receiver Allocator the daemon is currently
// serving.
package service

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/mattermost/mattermost/server/public/shared/mlog"

	"github.com/mattermost/rtcd-allocator/service/allocator"
	"github.com/mattermost/rtcd-allocator/service/allocator/allocatortest"
	"github.com/mattermost/rtcd-allocator/service/api"
	"github.com/mattermost/rtcd-allocator/service/ws"
)

// debugStatePathPrefix is the admin/debug HTTP surface SPEC_FULL.md §C
// specifies as the concrete transport for spec.md §6's get_debug_state().
const debugStatePathPrefix = "/debug/allocator/"

// Service is the allocator daemon: one process hosting many per-receiver
// Allocator instances, a debug HTTP surface and a websocket used to fan
// out each Allocator's events to whatever downstream signaling process
// is subscribed.
type Service struct {
	cfg        Config
	log        mlog.LoggerIFace
	metrics    *allocator.Metrics
	apiServer  *api.Server
	wsServer   *ws.Server
	conference *allocatortest.Conference

	mut        sync.RWMutex
	allocators map[string]*allocator.Allocator
}

// New creates a Service from cfg, bound to the given logger. It does not
// start listening until Start is called.
func New(cfg Config, log mlog.LoggerIFace) (*Service, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Service{
		cfg:        cfg,
		log:        log,
		metrics:    allocator.NewMetrics("allocatord", nil),
		conference: allocatortest.NewConference(),
		allocators: map[string]*allocator.Allocator{},
	}

	var err error
	s.apiServer, err = api.NewServer(cfg.API, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create api server: %w", err)
	}

	s.wsServer, err = ws.NewServer(cfg.WS, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create ws server: %w", err)
	}

	s.apiServer.RegisterHandler("/metrics", s.metrics.Handler())
	s.apiServer.RegisterHandler("/ws", s.wsServer)
	s.apiServer.RegisterHandleFunc(debugStatePathPrefix, s.handleDebugState)

	return s, nil
}

// Start begins serving the admin/debug HTTP surface and the event
// fan-out websocket.
func (s *Service) Start() error {
	if err := s.apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start api server: %w", err)
	}
	s.log.Info("service: allocator daemon started")
	return nil
}

// Stop expires every Allocator this Service owns and shuts the HTTP and
// websocket servers down.
func (s *Service) Stop() error {
	s.mut.Lock()
	for id, a := range s.allocators {
		a.Expire()
		delete(s.allocators, id)
	}
	s.mut.Unlock()

	s.wsServer.Close()

	if err := s.apiServer.Stop(); err != nil {
		return fmt.Errorf("failed to stop api server: %w", err)
	}
	s.log.Info("service: allocator daemon stopped")
	return nil
}

// Conference exposes the synthetic, in-memory conference backing every
// Allocator this Service creates, so a caller (or the admin surface, or
// a test) can register endpoints and sources for the demo to allocate
// over.
func (s *Service) Conference() *allocatortest.Conference {
	return s.conference
}

// CreateAllocator starts a new per-receiver Allocator backed by this
// Service's conference, publishing its events over the fan-out
// websocket under receiverEndpointID as the ws ClientID.
func (s *Service) CreateAllocator(receiverEndpointID string, trustBWE func() bool, initialSettings allocator.AllocationSettings) *allocator.Allocator {
	a := allocator.NewAllocator(
		s.cfg.Allocator,
		s.log,
		s.metrics,
		receiverEndpointID,
		s.conference.EndpointSupplier(),
		trustBWE,
		nil,
		initialSettings,
	)
	a.Subscribe(func(ev allocator.Event) {
		s.publishEvent(receiverEndpointID, ev)
	})

	s.mut.Lock()
	s.allocators[receiverEndpointID] = a
	s.mut.Unlock()

	return a
}

// RemoveAllocator expires and forgets the Allocator serving
// receiverEndpointID, if any.
func (s *Service) RemoveAllocator(receiverEndpointID string) {
	s.mut.Lock()
	a, ok := s.allocators[receiverEndpointID]
	delete(s.allocators, receiverEndpointID)
	s.mut.Unlock()

	if ok {
		a.Expire()
	}
}

// GetAllocator returns the Allocator currently serving
// receiverEndpointID, or nil.
func (s *Service) GetAllocator(receiverEndpointID string) *allocator.Allocator {
	s.mut.RLock()
	defer s.mut.RUnlock()
	return s.allocators[receiverEndpointID]
}

func (s *Service) publishEvent(receiverEndpointID string, ev allocator.Event) {
	data, err := ev.Marshal()
	if err != nil {
		s.log.Error("service: failed to marshal allocator event", mlog.Err(err))
		return
	}

	select {
	case s.wsServer.SendCh() <- ws.Message{ClientID: receiverEndpointID, Type: ws.BinaryMessage, Data: data}:
	default:
		s.log.Warn("service: dropped allocator event, ws send channel full",
			mlog.String("receiverEndpointID", receiverEndpointID), mlog.String("eventType", string(ev.Type)))
	}
}

func (s *Service) handleDebugState(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, debugStatePathPrefix)
	if id == "" {
		http.Error(w, "missing receiver id", http.StatusBadRequest)
		return
	}

	a := s.GetAllocator(id)
	if a == nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(a.GetDebugState()); err != nil {
		s.log.Error("service: failed to encode debug state", mlog.Err(err))
	}
}
