// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package streamer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/streamdoctor/internal/logctx"
)

// Query status messages, surfaced through StatusMessage and the registry.
const (
	statusInitializing = "Initializing stream execution"
	statusWaiting      = "Waiting for next trigger"
	statusProcessing   = "Processing new data"
	statusStopped      = "Stopped"
)

// QueryConfig describes one streaming query to attach.
type QueryConfig struct {
	// Name identifies the query in logs, the registry, and checkpoint
	// paths. Defaulted from the sink when empty.
	Name string
	// Dataset must be a streaming dataset.
	Dataset *Dataset
	// Sink receives each batch. The query owns it and closes it on exit.
	Sink Sink
	// Trigger is the processing-time cadence. Required.
	Trigger Trigger
	// CheckpointDir holds the offset state file. Defaulted under the
	// session's checkpoint root when empty.
	CheckpointDir string
}

// Query is a handle on a running streaming computation. The runtime owns it;
// callers borrow the handle to observe progress and to request a stop.
type Query struct {
	id    uuid.UUID
	runID string
	cfg   QueryConfig

	reader   TableReader
	bus      *listenerBus
	registry *Registry

	last   atomic.Pointer[Progress]
	status atomic.Pointer[string]

	mu     sync.Mutex
	recent []*Progress
	err    error

	// Trigger-loop state, touched only by the run goroutine.
	batchID  int64
	snapshot int64

	cancel context.CancelFunc
	done   chan struct{}
}

// ID is the query's stable identifier.
func (q *Query) ID() uuid.UUID { return q.id }

// RunID identifies this run of the query; it changes when a query restarts
// from the same checkpoint.
func (q *Query) RunID() string { return q.runID }

// Name returns the query's display name.
func (q *Query) Name() string { return q.cfg.Name }

// TriggerInterval returns the configured processing-time cadence.
func (q *Query) TriggerInterval() time.Duration { return q.cfg.Trigger.Interval }

// LastProgress returns the most recent progress snapshot, or nil when no
// trigger firing has completed yet.
func (q *Query) LastProgress() *Progress {
	return q.last.Load()
}

// RecentProgress returns the bounded progress history, oldest first. The
// returned slice is the caller's; the snapshots are shared and read-only.
func (q *Query) RecentProgress() []*Progress {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Progress, len(q.recent))
	copy(out, q.recent)
	return out
}

// StatusMessage describes what the query is doing right now.
func (q *Query) StatusMessage() string {
	if s := q.status.Load(); s != nil {
		return *s
	}
	return statusInitializing
}

// Err returns the error that terminated the query, or nil while it runs or
// after a graceful stop.
func (q *Query) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

// Done is closed when the query has fully stopped.
func (q *Query) Done() <-chan struct{} { return q.done }

// Stop requests a graceful shutdown and blocks until the query has ceased or
// ctx is done. It returns the query's terminal error, if any.
func (q *Query) Stop(ctx context.Context) error {
	q.cancel()
	select {
	case <-q.done:
		return q.Err()
	case <-ctx.Done():
		return fmt.Errorf("waiting for query %q to stop: %w", q.cfg.Name, ctx.Err())
	}
}

func (q *Query) setStatus(s string) {
	q.status.Store(&s)
}

func (q *Query) recordProgress(p *Progress) {
	q.mu.Lock()
	q.recent = append(q.recent, p)
	if len(q.recent) > maxRecentProgress {
		q.recent = q.recent[len(q.recent)-maxRecentProgress:]
	}
	q.mu.Unlock()
	q.last.Store(p)
}

// run is the trigger loop. The first firing happens immediately, then one
// per trigger interval. Any batch error terminates the query; batches are
// never retried.
func (q *Query) run(ctx context.Context) error {
	defer close(q.done)

	ll := logctx.FromContext(ctx)
	ticker := time.NewTicker(q.cfg.Trigger.Interval)
	defer ticker.Stop()

	var runErr error
loop:
	for {
		if err := q.processOnce(ctx); err != nil {
			if ctx.Err() != nil {
				break loop
			}
			ll.Error("batch failed, terminating query",
				"batchId", q.batchID, "error", err)
			runErr = err
			break loop
		}
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
		}
	}

	if cerr := q.cfg.Sink.Close(); cerr != nil && runErr == nil {
		runErr = fmt.Errorf("close sink %s: %w", q.cfg.Sink.Name(), cerr)
	}
	q.finish(ctx, runErr)
	return runErr
}

// finish records the terminal state and moves the query out of the active
// registry. Safe to call exactly once, from the run goroutine.
func (q *Query) finish(ctx context.Context, err error) {
	if err != nil {
		q.mu.Lock()
		q.err = err
		q.mu.Unlock()
		q.setStatus(fmt.Sprintf("Terminated with error: %v", err))
	} else {
		q.setStatus(statusStopped)
	}
	q.registry.markStopped(q)
	q.bus.publish(ctx, QueryTerminatedEvent{ID: q.id, Name: q.cfg.Name, Err: err})
}

// processOnce executes a single trigger firing.
func (q *Query) processOnce(ctx context.Context) error {
	start := time.Now()

	cur, err := q.reader.CurrentSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("read snapshot watermark: %w", err)
	}
	if cur <= q.snapshot {
		q.emitEmptyProgress(ctx, start)
		return nil
	}

	rows, err := q.reader.ChangesBetween(ctx, q.snapshot+1, cur)
	if err != nil {
		return fmt.Errorf("read changes (%d, %d]: %w", q.snapshot, cur, err)
	}
	getBatchMS := time.Since(start).Milliseconds()

	if len(rows) == 0 {
		// Snapshots advanced without row changes (schema or maintenance
		// commits). Move the watermark, keep the batch ID.
		if err := saveCheckpoint(q.cfg.CheckpointDir, checkpointState{BatchID: q.batchID, SnapshotID: cur}); err != nil {
			return err
		}
		q.snapshot = cur
		q.emitEmptyProgress(ctx, start)
		return nil
	}

	q.setStatus(statusProcessing)

	addStart := time.Now()
	if err := q.cfg.Sink.WriteBatch(ctx, q.batchID, rows); err != nil {
		return fmt.Errorf("write batch %d to sink %s: %w", q.batchID, q.cfg.Sink.Name(), err)
	}
	addBatchMS := time.Since(addStart).Milliseconds()

	commitStart := time.Now()
	if err := saveCheckpoint(q.cfg.CheckpointDir, checkpointState{BatchID: q.batchID + 1, SnapshotID: cur}); err != nil {
		return err
	}
	commitMS := time.Since(commitStart).Milliseconds()

	p := &Progress{
		BatchID:      q.batchID,
		Timestamp:    FormatProgressTime(start),
		NumInputRows: int64(len(rows)),
		DurationMS: map[string]int64{
			DurTriggerExecution: time.Since(start).Milliseconds(),
			DurGetBatch:         getBatchMS,
			DurAddBatch:         addBatchMS,
			DurCommitOffsets:    commitMS,
		},
		Sources: []SourceProgress{{
			Description:  q.cfg.Dataset.Description(),
			StartOffset:  q.snapshot,
			EndOffset:    cur,
			NumInputRows: int64(len(rows)),
		}},
		Sink: SinkProgress{Description: q.cfg.Sink.Name()},
	}
	q.recordProgress(p)
	q.bus.publish(ctx, QueryProgressEvent{ID: q.id, Name: q.cfg.Name, Progress: p})

	attrs := otelmetric.WithAttributes(attribute.String("query", q.cfg.Name))
	batchesCounter.Add(ctx, 1, attrs)
	inputRowsCounter.Add(ctx, int64(len(rows)), attrs)
	triggerHistogram.Record(ctx, float64(p.DurationMS[DurTriggerExecution]), attrs)

	q.batchID++
	q.snapshot = cur
	q.setStatus(statusWaiting)

	logctx.FromContext(ctx).Debug("batch committed",
		"batchId", p.BatchID,
		"numInputRows", p.NumInputRows,
		"endSnapshot", cur)
	return nil
}

// emitEmptyProgress reports a no-data trigger firing. Before the first real
// batch completes there is nothing to report and LastProgress stays nil; a
// not-yet-started query must look not-started to diagnostics.
func (q *Query) emitEmptyProgress(ctx context.Context, start time.Time) {
	q.setStatus(statusWaiting)
	if q.batchID == 0 {
		return
	}

	elapsed := time.Since(start).Milliseconds()
	p := &Progress{
		BatchID:      q.batchID - 1,
		Timestamp:    FormatProgressTime(start),
		NumInputRows: 0,
		DurationMS: map[string]int64{
			DurTriggerExecution: elapsed,
			DurGetBatch:         elapsed,
			DurAddBatch:         0,
			DurCommitOffsets:    0,
		},
		Sources: []SourceProgress{{
			Description: q.cfg.Dataset.Description(),
			StartOffset: q.snapshot,
			EndOffset:   q.snapshot,
		}},
		Sink: SinkProgress{Description: q.cfg.Sink.Name()},
	}
	q.recordProgress(p)
	q.bus.publish(ctx, QueryProgressEvent{ID: q.id, Name: q.cfg.Name, Progress: p})
}
