// Package monitor aggregates process-lifetime statistics for the tool host:
// active sessions, per-tool execution stats, and TTL-cached dependency
// health. One Monitor is constructed at bootstrap and injected into every
// dependent component; tests construct their own isolated instances.
package monitor

import (
	"fmt"
	"sync"
	"time"

	"toolhub/logger"
)

// Options configures a Monitor.
type Options struct {
	ServiceName    string
	ServiceVersion string

	// DependencyTTL bounds how long a dependency check result is reused
	// before the probe runs again.
	DependencyTTL time.Duration

	Logger logger.Logger

	// Now is the clock; tests inject a fake one.
	Now func() time.Time
}

// SessionRecord tracks one connected caller session.
type SessionRecord struct {
	SessionID       string    `json:"sessionId"`
	Tier            string    `json:"tier,omitempty"`
	UserID          string    `json:"userId,omitempty"`
	OrgID           string    `json:"orgId,omitempty"`
	ConnectedAt     time.Time `json:"connectedAt"`
	LastSeenAt      time.Time `json:"lastSeenAt"`
	TotalExecutions int64     `json:"totalExecutions"`
}

// ToolStats accumulates execution statistics for one tool over the process
// lifetime. Counters are monotonic; removing a session never alters them.
type ToolStats struct {
	Invocations       int64         `json:"invocations"`
	Successes         int64         `json:"successes"`
	Failures          int64         `json:"failures"`
	TotalDuration     time.Duration `json:"-"`
	TotalDurationMs   int64         `json:"totalDurationMs"`
	AverageDurationMs float64       `json:"averageDurationMs"`
	LastError         *ErrorRecord  `json:"lastError,omitempty"`
}

// ErrorRecord captures the most recent failure, globally and per tool.
type ErrorRecord struct {
	Tool    string    `json:"tool"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Monitor is the process-wide status aggregator.
type Monitor struct {
	serviceName    string
	serviceVersion string
	dependencyTTL  time.Duration
	logger         logger.Logger
	now            func() time.Time
	startTime      time.Time

	mu        sync.Mutex
	sessions  map[string]*SessionRecord
	anonSeq   int
	tools     map[string]*ToolStats
	inFlight  int
	lastError *ErrorRecord

	probes     map[string]Probe
	depResults map[string]DependencyResult
}

// New constructs a Monitor. A nil logger is replaced by a no-op one.
func New(opts Options) *Monitor {
	if opts.Logger == nil {
		opts.Logger = logger.NewNoop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Monitor{
		serviceName:    opts.ServiceName,
		serviceVersion: opts.ServiceVersion,
		dependencyTTL:  opts.DependencyTTL,
		logger:         opts.Logger,
		now:            opts.Now,
		startTime:      opts.Now(),
		sessions:       make(map[string]*SessionRecord),
		tools:          make(map[string]*ToolStats),
		probes:         make(map[string]Probe),
		depResults:     make(map[string]DependencyResult),
	}
}

// StartTime returns the moment the monitor was constructed.
func (m *Monitor) StartTime() time.Time {
	return m.startTime
}

// RecordSessionConnected upserts a session record and returns the resolved
// session id. A blank id is allocated a synthetic "anonymous-N" identity
// from a monotonic counter. Calling it again for a known id only bumps
// LastSeenAt.
func (m *Monitor) RecordSessionConnected(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == "" {
		m.anonSeq++
		id = fmt.Sprintf("anonymous-%d", m.anonSeq)
	}

	now := m.now()
	if existing, ok := m.sessions[id]; ok {
		existing.LastSeenAt = now
		return id
	}

	m.sessions[id] = &SessionRecord{
		SessionID:   id,
		ConnectedAt: now,
		LastSeenAt:  now,
	}
	m.logger.Debug("session connected", logger.String("session_id", id))
	return id
}

// AnnotateSession attaches caller identity to an active session. Unknown
// ids are ignored.
func (m *Monitor) AnnotateSession(id, tier, userID, orgID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.sessions[id]
	if !ok {
		return
	}
	if tier != "" {
		rec.Tier = tier
	}
	if userID != "" {
		rec.UserID = userID
	}
	if orgID != "" {
		rec.OrgID = orgID
	}
}

// RecordSessionDisconnected removes the active session record. It is a
// no-op for unknown or blank ids, and never retroactively alters the
// cumulative per-tool stats the session contributed to.
func (m *Monitor) RecordSessionDisconnected(id string) {
	if id == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return
	}
	delete(m.sessions, id)
	m.logger.Debug("session disconnected", logger.String("session_id", id))
}

// TouchSession bumps LastSeenAt and the execution counter for an active
// session. Unknown ids are ignored.
func (m *Monitor) TouchSession(id string) {
	if id == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.sessions[id]
	if !ok {
		return
	}
	rec.LastSeenAt = m.now()
	rec.TotalExecutions++
}

// RecordToolStart marks one invocation in flight.
func (m *Monitor) RecordToolStart(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.inFlight++
	m.statsFor(name).Invocations++
}

// RecordToolSuccess finalizes one invocation with a sample duration.
func (m *Monitor) RecordToolSuccess(name string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.finish(name, d, true)
}

// RecordToolFailure finalizes one invocation with a sample duration and
// remembers the error as the most recent one, globally and for the tool.
func (m *Monitor) RecordToolFailure(name string, d time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.finish(name, d, false)

	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	rec := &ErrorRecord{Tool: name, Message: msg, At: m.now()}
	stats.LastError = rec
	m.lastError = rec
}

// finish decrements the in-flight counter and folds a completed sample into
// the exact running mean: avg' = (avg*(n-1)+sample)/n.
func (m *Monitor) finish(name string, d time.Duration, success bool) *ToolStats {
	if m.inFlight > 0 {
		m.inFlight--
	} else {
		m.logger.Warn("tool completion recorded with no invocation in flight",
			logger.String("tool", name))
	}

	stats := m.statsFor(name)
	if success {
		stats.Successes++
	} else {
		stats.Failures++
	}
	stats.TotalDuration += d
	stats.TotalDurationMs = stats.TotalDuration.Milliseconds()

	n := float64(stats.Successes + stats.Failures)
	sample := float64(d) / float64(time.Millisecond)
	stats.AverageDurationMs = (stats.AverageDurationMs*(n-1) + sample) / n
	return stats
}

func (m *Monitor) statsFor(name string) *ToolStats {
	stats, ok := m.tools[name]
	if !ok {
		stats = &ToolStats{}
		m.tools[name] = stats
	}
	return stats
}
