// Package procstat samples this process's CPU usage for the per-tick log.
package procstat

import (
	"sync"
	"time"
)

// Sampler reports CPU utilisation (percent of one core) between successive
// calls to Percent.
type Sampler struct {
	mu       sync.Mutex
	now      func() time.Time
	lastWall time.Time
	lastCPU  time.Duration
}

func NewSampler() *Sampler {
	s := &Sampler{now: time.Now}
	s.lastWall = s.now()
	s.lastCPU, _ = cpuTime()
	return s
}

// Percent returns user+system CPU time consumed since the previous call,
// divided by elapsed wall time. It returns 0 when the platform has no
// rusage support or no time has passed.
func (s *Sampler) Percent() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	cpu, ok := cpuTime()
	if !ok {
		return 0
	}
	wall := s.now()
	dWall := wall.Sub(s.lastWall)
	dCPU := cpu - s.lastCPU
	s.lastWall, s.lastCPU = wall, cpu
	if dWall <= 0 || dCPU < 0 {
		return 0
	}
	return 100 * dCPU.Seconds() / dWall.Seconds()
}
