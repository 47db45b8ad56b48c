package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"toolhub/logger"
)

// Status describes the health of one external dependency.
type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// DependencyResult is the outcome of one dependency probe. A failing probe
// still yields a result rather than an error.
type DependencyResult struct {
	Status    Status         `json:"status"`
	LatencyMs int64          `json:"latencyMs"`
	CheckedAt time.Time      `json:"checkedAt"`
	Error     string         `json:"error,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Probe checks one external resource. It may return an error or panic; both
// are converted to a status=down result and never propagate into the
// aggregate evaluation.
type Probe func(ctx context.Context) (DependencyResult, error)

// RegisterDependency registers a named health probe. Re-registering a name
// replaces the probe and drops its cached result.
func (m *Monitor) RegisterDependency(name string, probe Probe) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.probes[name] = probe
	delete(m.depResults, name)
}

// EvaluateDependencies runs all registered probes concurrently and returns
// the latest result per dependency. A cached result younger than the TTL is
// reused unless force is set. Every probe outcome, including a synthesized
// failure, re-stamps the cache timestamp, so a failing probe is not retried
// faster than the TTL.
func (m *Monitor) EvaluateDependencies(ctx context.Context, force bool) map[string]DependencyResult {
	now := m.now()

	m.mu.Lock()
	stale := make(map[string]Probe)
	for name, probe := range m.probes {
		cached, ok := m.depResults[name]
		if !force && ok && now.Sub(cached.CheckedAt) < m.dependencyTTL {
			continue
		}
		stale[name] = probe
	}
	m.mu.Unlock()

	if len(stale) > 0 {
		var wg sync.WaitGroup
		var resMu sync.Mutex
		fresh := make(map[string]DependencyResult, len(stale))

		for name, probe := range stale {
			wg.Add(1)
			go func(name string, probe Probe) {
				defer wg.Done()
				result := m.runProbe(ctx, name, probe)
				resMu.Lock()
				fresh[name] = result
				resMu.Unlock()
			}(name, probe)
		}
		wg.Wait()

		m.mu.Lock()
		for name, result := range fresh {
			m.depResults[name] = result
		}
		m.mu.Unlock()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]DependencyResult, len(m.depResults))
	for name, result := range m.depResults {
		out[name] = result
	}
	return out
}

// runProbe executes one probe in isolation. A slow or failing probe only
// degrades its own dependency's result.
func (m *Monitor) runProbe(ctx context.Context, name string, probe Probe) (result DependencyResult) {
	start := m.now()

	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("dependency probe panicked",
				logger.String("dependency", name),
				logger.Any("panic", r))
			result = DependencyResult{
				Status:    StatusDown,
				LatencyMs: m.now().Sub(start).Milliseconds(),
				Error:     fmt.Sprintf("probe panicked: %v", r),
			}
		}
		result.CheckedAt = m.now()
	}()

	res, err := probe(ctx)
	latency := m.now().Sub(start).Milliseconds()
	if err != nil {
		m.logger.Warn("dependency probe failed",
			logger.String("dependency", name),
			logger.Error(err))
		return DependencyResult{
			Status:    StatusDown,
			LatencyMs: latency,
			Error:     err.Error(),
		}
	}

	if res.LatencyMs == 0 {
		res.LatencyMs = latency
	}
	if res.Status == "" {
		res.Status = StatusUp
	}
	return res
}
