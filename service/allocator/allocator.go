// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package allocator

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
	"golang.org/x/time/rate"

	"github.com/mattermost/rtcd-allocator/service/allocator/cycle"
)

// lockTimeout bounds how long a trigger waits to enter the critical
// section before giving up; it must comfortably exceed the predictor's
// own timeout so a slow predictor call never starves callers that are
// simply waiting their turn.
const lockTimeout = 200 * time.Millisecond

// reschedulePadding is added to the computed delay before the next
// periodic tick to avoid immediate re-entry racing the cycle that just
// completed (spec §5).
const reschedulePadding = 5 * time.Millisecond

// unboundedBudget stands in for +Inf: the largest budget no layer
// bitrate subtraction can overflow.
const unboundedBudget = math.MaxInt32

// snapshot is the immutable, atomically-published view read-only
// getters consult without acquiring the cycle lock. It may lag the
// critical section by one cycle, which spec §5 explicitly allows.
type snapshot struct {
	bweBps               int
	settings             AllocationSettings
	allocation           BandwidthAllocation
	effectiveConstraints map[string]VideoConstraints
}

// DebugState is the JSON-serializable document returned by
// GetDebugState, the concrete transport for spec §6's get_debug_state().
type DebugState struct {
	TrustBwe             bool                        `json:"trustBwe"`
	BweBps               int                         `json:"bweBps"`
	Allocation           BandwidthAllocation         `json:"allocation"`
	AllocationSettings   AllocationSettings          `json:"allocationSettings"`
	EffectiveConstraints map[string]VideoConstraints `json:"effectiveConstraints"`
}

// Allocator is the per-receiver bandwidth allocator core (C6). One
// instance serves exactly one receiving participant.
type Allocator struct {
	cfg                Config
	log                mlog.LoggerIFace
	metrics            *Metrics
	receiverEndpointID string
	endpointSupplier   EndpointSupplier
	trustBWE           func() bool
	peerStatsSupplier  func() map[string]PeerStats
	predictor          *predictorClient
	limiter            *rate.Limiter

	mu *cycle.Lock

	// Fields below are only ever mutated while mu is held.
	bweBps         int
	settings       AllocationSettings
	expired        bool
	lastUpdateTime time.Time
	cycleIndex     uint64
	subscribers    eventSubscribers

	snapshotPtr atomic.Pointer[snapshot]

	stopCh chan struct{}
}

// NewAllocator constructs an Allocator in the Active state. endpointSupplier
// and trustBWE are mandatory; peerStatsSupplier may be nil, in which case
// the predictor delegation (C8) always sees zeroed peer stats.
func NewAllocator(
	cfg Config,
	log mlog.LoggerIFace,
	metrics *Metrics,
	receiverEndpointID string,
	endpointSupplier EndpointSupplier,
	trustBWE func() bool,
	peerStatsSupplier func() map[string]PeerStats,
	initialSettings AllocationSettings,
) *Allocator {
	if peerStatsSupplier == nil {
		peerStatsSupplier = func() map[string]PeerStats { return nil }
	}

	a := &Allocator{
		cfg:                cfg,
		log:                log,
		metrics:            metrics,
		receiverEndpointID: receiverEndpointID,
		endpointSupplier:   endpointSupplier,
		trustBWE:           trustBWE,
		peerStatsSupplier:  peerStatsSupplier,
		predictor:          newPredictorClient(cfg.Predictor, log, metrics),
		limiter:            rate.NewLimiter(rate.Every(50*time.Millisecond), 4),
		mu:                 cycle.NewLock(),
		bweBps:             -1,
		settings:           initialSettings,
		stopCh:             make(chan struct{}),
	}

	a.snapshotPtr.Store(&snapshot{
		bweBps:               -1,
		settings:             initialSettings,
		effectiveConstraints: map[string]VideoConstraints{},
	})

	go a.scheduleLoop()

	return a
}

// Subscribe registers an EventHandler invoked, in registration order,
// for every event emitted during a cycle. It must be called before the
// allocator starts running cycles concurrently with other goroutines
// reaching into it; subscribers are not protected by the cycle lock
// themselves since they are expected to be set up once at construction.
func (a *Allocator) Subscribe(h EventHandler) {
	a.subscribers.subscribe(h)
}

// BandwidthChanged implements spec §4.4's bandwidth_changed: stores the
// new estimate and triggers a cycle only if the relative change exceeds
// the configured threshold.
func (a *Allocator) BandwidthChanged(newBps int) {
	if newBps < 0 {
		newBps = -1
	}

	if err := a.mu.Lock(lockTimeout); err != nil {
		a.log.Error("allocator: bandwidth_changed could not acquire lock", mlog.Err(err))
		return
	}
	defer a.mu.Unlock()

	if a.expired {
		return
	}

	if !bweChanged(a.bweBps, newBps, a.cfg.BWEChangeThresholdFraction) {
		return
	}

	a.bweBps = newBps

	if !a.limiter.Allow() {
		// A burst of BWE updates exceeded the debounce rate; the stored
		// value is still up to date and the next tick or settings
		// change will pick it up.
		return
	}

	a.runCycleLocked()
}

func bweChanged(prev, next int, threshold float64) bool {
	if prev == -1 || next == -1 {
		return true
	}
	return math.Abs(float64(next-prev)) > float64(prev)*threshold
}

// Update implements spec §4.4's update(settings): replaces the
// allocation settings and runs a cycle.
func (a *Allocator) Update(settings AllocationSettings) {
	if err := a.mu.Lock(lockTimeout); err != nil {
		a.log.Error("allocator: update(settings) could not acquire lock", mlog.Err(err))
		return
	}
	defer a.mu.Unlock()

	if a.expired {
		return
	}

	a.settings = settings
	a.runCycleLocked()
}

// Tick implements spec §4.4's no-argument update(): the periodic
// re-allocation trigger. It is a no-op if expired.
func (a *Allocator) Tick() {
	if err := a.mu.Lock(lockTimeout); err != nil {
		a.log.Error("allocator: tick could not acquire lock", mlog.Err(err))
		return
	}
	defer a.mu.Unlock()

	if a.expired {
		return
	}

	a.runCycleLocked()
}

// Expire implements spec §4.4's expire(): idempotent, cancels the
// periodic timer and makes every future trigger a no-op.
func (a *Allocator) Expire() {
	if err := a.mu.Lock(lockTimeout); err != nil {
		a.log.Error("allocator: expire could not acquire lock", mlog.Err(err))
		return
	}
	defer a.mu.Unlock()

	if a.expired {
		return
	}
	a.expired = true

	select {
	case <-a.stopCh:
	default:
		close(a.stopCh)
	}
}

// GetAllocation returns a snapshot of the current BandwidthAllocation
// without acquiring the cycle lock; it may be up to one cycle stale.
func (a *Allocator) GetAllocation() BandwidthAllocation {
	return a.snapshotPtr.Load().allocation
}

// IsForwarding reports whether any source owned by endpointID currently
// has a non-null target layer.
func (a *Allocator) IsForwarding(endpointID string) bool {
	snap := a.snapshotPtr.Load()
	for _, sa := range snap.allocation.Allocations {
		if sa.EndpointID == endpointID && sa.TargetLayer != nil {
			return true
		}
	}
	return false
}

// HasNonZeroEffectiveConstraints reports whether source currently has a
// non-disabled effective constraint.
func (a *Allocator) HasNonZeroEffectiveConstraints(source string) bool {
	snap := a.snapshotPtr.Load()
	c, ok := snap.effectiveConstraints[source]
	return ok && !c.Disabled()
}

// GetDebugState returns the document exposed at the admin/debug HTTP
// surface (SPEC_FULL §C).
func (a *Allocator) GetDebugState() DebugState {
	snap := a.snapshotPtr.Load()
	return DebugState{
		TrustBwe:             a.trustBWE(),
		BweBps:               snap.bweBps,
		Allocation:           snap.allocation,
		AllocationSettings:   snap.settings,
		EffectiveConstraints: snap.effectiveConstraints,
	}
}

// runCycleLocked is the update cycle body (spec §4.4 steps 1-11). The
// caller must hold a.mu.
func (a *Allocator) runCycleLocked() {
	a.lastUpdateTime = time.Now()
	a.cycleIndex++

	endpoints := a.endpointSupplier()
	var sources []MediaSourceDesc
	for _, ep := range endpoints {
		sources = append(sources, ep.MediaSources...)
	}

	selected := a.settings.selectedOrder()
	sorted := prioritize(sources, selected)

	oldEffective := a.snapshotPtr.Load().effectiveConstraints
	newEffective := deriveEffectiveConstraints(sorted, a.settings, a.cfg.OnStageMaxHeightPx)

	a.emit(Event{
		Type:        EventSourceListChanged,
		SourceNames: sourceNames(sorted),
	})

	ssas := make([]*SingleSourceAllocation, 0, len(sorted))
	for _, src := range sorted {
		onStage := a.settings.isOnStage(src.SourceName())
		ssas = append(ssas, newSingleSourceAllocation(src, newEffective[src.SourceName()], onStage, a.cfg.OnStagePreferredHeightPx, a.cfg.OnStagePreferredFramerate))
	}

	budget := a.budget()
	oversending := a.runAllocation(ssas, budget)

	newAllocation := buildAllocation(ssas, oversending)

	prevAllocation := a.snapshotPtr.Load().allocation

	if !prevAllocation.Equal(newAllocation) {
		a.emit(Event{Type: EventAllocationChanged, Allocation: newAllocation})
	}
	if !effectiveConstraintsEqual(oldEffective, newEffective) {
		a.emit(Event{
			Type:                    EventEffectiveVideoConstraintsChanged,
			OldEffectiveConstraints: oldEffective,
			NewEffectiveConstraints: newEffective,
		})
	}

	a.snapshotPtr.Store(&snapshot{
		bweBps:               a.bweBps,
		settings:             a.settings,
		allocation:           newAllocation,
		effectiveConstraints: newEffective,
	})
}

func (a *Allocator) budget() int {
	if a.trustBWE == nil || !a.trustBWE() {
		return unboundedBudget
	}
	if a.bweBps < 0 {
		return unboundedBudget
	}
	return a.bweBps
}

// runAllocation runs the optional predictor delegation and, on any
// fallback condition, the greedy algorithm (spec §4.4 steps 8-9). It
// returns whether the resulting allocation oversends.
func (a *Allocator) runAllocation(ssas []*SingleSourceAllocation, budget int) bool {
	if targets, ok := a.predictRL(ssas, budget); ok {
		a.metrics.IncCycle("rl")
		remaining := budget
		for i, ssa := range ssas {
			if ssa.Constraints.Disabled() {
				continue
			}
			hint, present := targets[ssa.Source.OwnerEndpointID()]
			if !present {
				hint = PredictorDefaultTargetIndex
			}
			consumed := ssa.rlApply(hint, remaining, i == 0)
			remaining -= consumed
		}
		oversending := remaining < 0
		if oversending {
			a.metrics.IncOversendingCycle()
		}
		return oversending
	}

	a.metrics.IncCycle("greedy")
	return a.runGreedy(ssas, budget)
}

func (a *Allocator) predictRL(ssas []*SingleSourceAllocation, budget int) (map[string]int, bool) {
	if !a.cfg.Predictor.Enable {
		return nil, false
	}

	doc := buildStatsDocument(a.receiverEndpointID, time.Now(), budget, ssas, a.peerStatsSupplier())

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Predictor.Timeout)
	defer cancel()

	return a.predictor.predict(ctx, doc)
}

// runGreedy implements spec §4.4 step 9: passes over SSAs in priority
// order, improving each under the remaining budget, until the budget
// stops changing between passes.
func (a *Allocator) runGreedy(ssas []*SingleSourceAllocation, budget int) bool {
	oversending := false

	for {
		remaining := budget
		progressed := false

		for i, ssa := range ssas {
			if ssa.Constraints.Disabled() {
				continue
			}

			stageView := i == 0
			if delta := ssa.improve(remaining, stageView); delta != 0 {
				progressed = true
			}

			// Every source's full committed bitrate comes out of the
			// pool each pass, not just what it advanced by this pass —
			// layers are mutually exclusive, so a source that didn't
			// move still occupies the bitrate it was already granted.
			remaining -= ssa.targetBitrate()

			if remaining < 0 {
				oversending = true
			}

			if i == 0 && ssa.OnStage && !ssa.hasReachedPreferred() {
				break
			}
		}

		if !progressed {
			break
		}
	}

	if oversending {
		a.metrics.IncOversendingCycle()
	}

	return oversending
}

func buildAllocation(ssas []*SingleSourceAllocation, oversending bool) BandwidthAllocation {
	alloc := BandwidthAllocation{
		Oversending: oversending,
	}

	for _, ssa := range ssas {
		sa := SingleAllocation{
			EndpointID:  ssa.Source.OwnerEndpointID(),
			SourceName:  ssa.Source.SourceName(),
			TargetLayer: ssa.targetLayer(),
			IdealLayer:  ssa.idealLayer(),
		}
		alloc.Allocations = append(alloc.Allocations, sa)
		alloc.TargetBps += ssa.targetBitrate()
		alloc.IdealBps += ssa.idealBitrate()
		if ssa.isSuspended() {
			alloc.SuspendedSourceNames = append(alloc.SuspendedSourceNames, ssa.Source.SourceName())
		}
	}

	return alloc
}

func sourceNames(sources []MediaSourceDesc) []string {
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.SourceName()
	}
	return names
}

func effectiveConstraintsEqual(a, b map[string]VideoConstraints) bool {
	if len(a) != len(b) {
		return false
	}
	for name, ac := range a {
		bc, ok := b[name]
		if !ok || ac != bc {
			return false
		}
	}
	return true
}

func (a *Allocator) emit(ev Event) {
	a.metrics.IncEventEmitted(string(ev.Type))
	a.subscribers.emit(ev)
}

// scheduleLoop implements spec §5's reschedule_update: it fires Tick
// periodically, always re-arming at max_period - elapsed + padding so a
// cycle never re-enters immediately after the previous one completed.
func (a *Allocator) scheduleLoop() {
	timer := time.NewTimer(a.cfg.MaxTimeBetweenCalculations)
	defer timer.Stop()

	for {
		select {
		case <-a.stopCh:
			return
		case <-timer.C:
			a.Tick()

			if a.isExpired() {
				return
			}

			elapsed := time.Since(a.lastUpdateTimeSnapshot())
			delay := a.cfg.MaxTimeBetweenCalculations - elapsed + reschedulePadding
			if delay < 0 {
				delay = reschedulePadding
			}
			timer.Reset(delay)
		}
	}
}

func (a *Allocator) isExpired() bool {
	if err := a.mu.Lock(lockTimeout); err != nil {
		return false
	}
	defer a.mu.Unlock()
	return a.expired
}

func (a *Allocator) lastUpdateTimeSnapshot() time.Time {
	if err := a.mu.Lock(lockTimeout); err != nil {
		return time.Now()
	}
	defer a.mu.Unlock()
	return a.lastUpdateTime
}
