package monitor

import (
	"runtime"
	"sort"
	"time"
)

// ServiceInfo identifies the running service.
type ServiceInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// RuntimeStats reports process resource usage at snapshot time.
type RuntimeStats struct {
	Goroutines   int    `json:"goroutines"`
	HeapAllocMB  uint64 `json:"heapAllocMB"`
	HeapSysMB    uint64 `json:"heapSysMB"`
	NumGC        uint32 `json:"numGC"`
	NumCPU       int    `json:"numCPU"`
	GoMaxProcs   int    `json:"goMaxProcs"`
}

// Snapshot is a point-in-time, side-effect-free read of everything the
// monitor tracks.
type Snapshot struct {
	Service       ServiceInfo                 `json:"service"`
	StartTime     time.Time                   `json:"startTime"`
	UptimeSeconds float64                     `json:"uptimeSeconds"`
	GeneratedAt   time.Time                   `json:"generatedAt"`
	Runtime       RuntimeStats                `json:"runtime"`
	Sessions      []SessionRecord             `json:"sessions"`
	InFlight      int                         `json:"inFlight"`
	Tools         map[string]ToolStats        `json:"tools"`
	Dependencies  map[string]DependencyResult `json:"dependencies"`
	LastError     *ErrorRecord                `json:"lastError,omitempty"`
}

// Snapshot assembles the current state. It performs no I/O and mutates
// nothing; dependency results are whatever the last evaluation produced.
func (m *Monitor) Snapshot() Snapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	sessions := make([]SessionRecord, 0, len(m.sessions))
	for _, rec := range m.sessions {
		sessions = append(sessions, *rec)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].SessionID < sessions[j].SessionID
	})

	tools := make(map[string]ToolStats, len(m.tools))
	for name, stats := range m.tools {
		copied := *stats
		if stats.LastError != nil {
			errCopy := *stats.LastError
			copied.LastError = &errCopy
		}
		tools[name] = copied
	}

	deps := make(map[string]DependencyResult, len(m.depResults))
	for name, result := range m.depResults {
		deps[name] = result
	}

	var lastError *ErrorRecord
	if m.lastError != nil {
		errCopy := *m.lastError
		lastError = &errCopy
	}

	return Snapshot{
		Service: ServiceInfo{
			Name:    m.serviceName,
			Version: m.serviceVersion,
		},
		StartTime:     m.startTime,
		UptimeSeconds: now.Sub(m.startTime).Seconds(),
		GeneratedAt:   now,
		Runtime: RuntimeStats{
			Goroutines:  runtime.NumGoroutine(),
			HeapAllocMB: mem.HeapAlloc / (1 << 20),
			HeapSysMB:   mem.HeapSys / (1 << 20),
			NumGC:       mem.NumGC,
			NumCPU:      runtime.NumCPU(),
			GoMaxProcs:  runtime.GOMAXPROCS(0),
		},
		Sessions:     sessions,
		InFlight:     m.inFlight,
		Tools:        tools,
		Dependencies: deps,
		LastError:    lastError,
	}
}
