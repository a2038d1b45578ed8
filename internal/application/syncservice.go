// Package application contains use-case orchestration services.
package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openvitals/vitalsync/internal/domain/port/driven"
)

// DefaultInterval is the periodic sync interval.
const DefaultInterval = 15 * time.Minute

// DefaultFetchLimit is how many recent records each cycle requests.
const DefaultFetchLimit = 50

// TokenSource supplies a currently valid access token. Implemented by the
// session; renewal happens transparently inside GetAccessToken.
type TokenSource interface {
	GetAccessToken(ctx context.Context) (string, bool)
}

// SnapshotCache receives an encrypted offline snapshot of each successfully
// fetched batch. Implemented by the encrypted cache; writes never fail the
// cycle.
type SnapshotCache interface {
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration)
}

// snapshotKey is the cache key under which the latest fetched batch is kept
// for offline display.
const snapshotKey = "labs_recent"

// SyncStatus is a snapshot of the worker's state for the health endpoint.
type SyncStatus struct {
	LastRunAt    time.Time `json:"lastRunAt"`
	LastError    string    `json:"lastError,omitempty"`
	NeedsReauth  bool      `json:"needsReauth"`
	RecordsSaved int       `json:"recordsSaved"`
}

// SyncService periodically reconciles recent remote lab results into the
// local store. Failures within a cycle are logged and deferred: the next
// tick is the retry mechanism.
type SyncService struct {
	tokens     TokenSource
	api        driven.HealthAPI
	labStore   driven.LabResultStore
	snapshots  SnapshotCache
	ownerID    string
	interval   time.Duration
	fetchLimit int

	// running guards against overlapping cycles when RunOnce is invoked
	// externally while a timed run is in flight.
	running atomic.Bool

	mu     sync.Mutex
	status SyncStatus
}

// NewSyncService creates a SyncService. Non-positive interval or fetchLimit
// select the defaults. ownerID scopes every saved row and is validated at
// save time; an empty value fails each cycle loudly rather than silently
// writing unscoped rows.
func NewSyncService(
	tokens TokenSource,
	api driven.HealthAPI,
	labStore driven.LabResultStore,
	snapshots SnapshotCache,
	ownerID string,
	interval time.Duration,
	fetchLimit int,
) *SyncService {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if fetchLimit <= 0 {
		fetchLimit = DefaultFetchLimit
	}
	return &SyncService{
		tokens:     tokens,
		api:        api,
		labStore:   labStore,
		snapshots:  snapshots,
		ownerID:    ownerID,
		interval:   interval,
		fetchLimit: fetchLimit,
	}
}

// Start runs an immediate sync, then syncs on the configured interval until
// the context is canceled. Start blocks; run it in its own goroutine.
func (s *SyncService) Start(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil {
		slog.Error("initial sync failed", "error", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sync service stopped")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				slog.Error("sync cycle failed", "error", err)
			}
		}
	}
}

// RunOnce executes a single sync cycle: obtain a token, fetch recent records,
// save the batch. If a cycle is already in flight the call is skipped, never
// run concurrently with it. No error escapes to the host beyond the return
// value; a partially applied batch is acceptable since the upsert is
// idempotent.
func (s *SyncService) RunOnce(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		slog.Warn("sync already running, skipping")
		return nil
	}
	defer s.running.Store(false)

	start := time.Now()
	err := s.sync(ctx)

	s.mu.Lock()
	s.status.LastRunAt = start.UTC()
	s.status.NeedsReauth = errors.Is(err, driven.ErrAuthenticationRequired)
	if err != nil {
		s.status.LastError = err.Error()
	} else {
		s.status.LastError = ""
	}
	s.mu.Unlock()

	return err
}

// Status returns a snapshot of the last cycle's outcome.
func (s *SyncService) Status() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *SyncService) sync(ctx context.Context) error {
	start := time.Now()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	token, ok := s.tokens.GetAccessToken(ctx)
	if !ok {
		return driven.ErrAuthenticationRequired
	}

	results, err := s.api.FetchRecentLabResults(ctx, token, s.fetchLimit)
	if err != nil {
		return fmt.Errorf("fetch recent lab results: %w", err)
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err := s.labStore.SaveRange(ctx, s.ownerID, results); err != nil {
		return fmt.Errorf("save lab results: %w", err)
	}

	if s.snapshots != nil {
		if raw, err := json.Marshal(results); err == nil {
			s.snapshots.Set(ctx, snapshotKey, raw, 0)
		}
	}

	s.mu.Lock()
	s.status.RecordsSaved += len(results)
	s.mu.Unlock()

	slog.Info("sync cycle complete",
		"fetched", len(results),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return nil
}
