// Package usage persists per-session tool-usage counters through the
// opaque storage collaborator. Persistence is advisory: a storage failure
// is logged and never propagated to the caller.
package usage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"toolhub/logger"
	"toolhub/storage"
)

const keyPrefix = "usage:"

// Record is the persisted per-session usage blob.
type Record struct {
	SessionID  string           `json:"sessionId"`
	TotalCalls int64            `json:"totalCalls"`
	ByTool     map[string]int64 `json:"byTool"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

// Tracker accumulates usage counters in storage.
type Tracker struct {
	store  storage.Store
	ttl    time.Duration
	logger logger.Logger
	now    func() time.Time
}

// NewTracker creates a tracker writing records with the given TTL.
func NewTracker(store storage.Store, ttl time.Duration, log logger.Logger) *Tracker {
	if log == nil {
		log = logger.NewNoop()
	}
	return &Tracker{
		store:  store,
		ttl:    ttl,
		logger: log,
		now:    time.Now,
	}
}

// RecordCall increments the session's counters for one tool invocation.
func (t *Tracker) RecordCall(ctx context.Context, sessionID, toolName string) {
	if sessionID == "" {
		return
	}

	key := keyPrefix + sessionID
	record := Record{SessionID: sessionID, ByTool: make(map[string]int64)}

	raw, err := t.store.Get(ctx, key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		t.logger.Warn("failed to read usage record",
			logger.String("session_id", sessionID),
			logger.Error(err))
	}
	if err == nil {
		if unmarshalErr := json.Unmarshal([]byte(raw), &record); unmarshalErr != nil {
			t.logger.Warn("discarding corrupt usage record",
				logger.String("session_id", sessionID),
				logger.Error(unmarshalErr))
			record = Record{SessionID: sessionID, ByTool: make(map[string]int64)}
		}
		if record.ByTool == nil {
			record.ByTool = make(map[string]int64)
		}
	}

	record.TotalCalls++
	record.ByTool[toolName]++
	record.UpdatedAt = t.now()

	data, err := json.Marshal(record)
	if err != nil {
		t.logger.Warn("failed to encode usage record", logger.Error(err))
		return
	}
	if err := t.store.Set(ctx, key, string(data), t.ttl); err != nil {
		t.logger.Warn("failed to persist usage record",
			logger.String("session_id", sessionID),
			logger.Error(err))
	}
}

// Get returns the persisted usage record for a session, or nil when none
// exists.
func (t *Tracker) Get(ctx context.Context, sessionID string) (*Record, error) {
	raw, err := t.store.Get(ctx, keyPrefix+sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var record Record
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Forget deletes the persisted record for a session.
func (t *Tracker) Forget(ctx context.Context, sessionID string) {
	if err := t.store.Delete(ctx, keyPrefix+sessionID); err != nil {
		t.logger.Warn("failed to delete usage record",
			logger.String("session_id", sessionID),
			logger.Error(err))
	}
}
