// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package ratemon implements a fixed-window sampler used to turn a stream
// of payload sizes into an estimated bitrate. It backs the synthetic layer
// sources in allocatortest, standing in for the real RTP layer-discovery
// collaborator the allocator's spec treats as out of scope.
package ratemon

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/mattermost/rtcd-allocator/service/stat"
)

// Monitor estimates a bitrate (kbit/s) from a rolling window of sample
// sizes (bytes) and their timestamps.
type Monitor struct {
	samples      []int
	timestamps   []time.Time
	samplesPtr   int
	samplingSize int
	now          func() time.Time
	mut          sync.RWMutex
}

// NewMonitor creates a Monitor that keeps the last samplingSize samples.
// now defaults to time.Now when nil; tests pass a deterministic clock.
func NewMonitor(samplingSize int, now func() time.Time) (*Monitor, error) {
	if samplingSize < 1 {
		return nil, fmt.Errorf("invalid sampling size")
	}

	if now == nil {
		now = time.Now
	}

	return &Monitor{
		now:          now,
		samplingSize: samplingSize,
		samples:      make([]int, 0, samplingSize),
		timestamps:   make([]time.Time, 0, samplingSize),
	}, nil
}

func (m *Monitor) PushSample(size int) {
	m.mut.Lock()
	defer m.mut.Unlock()

	if len(m.samples) < m.samplingSize {
		m.samples = append(m.samples, size)
		m.timestamps = append(m.timestamps, m.now())
		m.samplesPtr++
		return
	}

	m.samples[m.samplesPtr%m.samplingSize] = size
	m.timestamps[m.samplesPtr%m.samplingSize] = m.now()
	m.samplesPtr++
}

func (m *Monitor) GetSamplesDuration() time.Duration {
	m.mut.RLock()
	defer m.mut.RUnlock()

	if len(m.samples) < m.samplingSize {
		return -1
	}

	lastTS := m.timestamps[(m.samplesPtr-1)%m.samplingSize]
	firstTS := m.timestamps[m.samplesPtr%m.samplingSize]

	return lastTS.Sub(firstTS)
}

// GetRateKbps returns the estimated bitrate in kbit/s, or -1 if not enough
// samples have been collected yet.
func (m *Monitor) GetRateKbps() int {
	m.mut.RLock()
	defer m.mut.RUnlock()

	if len(m.samples) < m.samplingSize {
		return -1
	}

	totalBytes := stat.Sum(m.samples)
	samplesDuration := m.GetSamplesDuration()

	if samplesDuration <= 0 {
		return -1
	}

	kbitsPerSec := (totalBytes / float64(samplesDuration.Milliseconds())) * 8

	return int(math.Round(kbitsPerSec))
}
