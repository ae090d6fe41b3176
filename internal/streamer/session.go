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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/streamdoctor/internal/idgen"
	"github.com/cardinalhq/streamdoctor/internal/logctx"
)

// SessionConfig configures a runtime session.
type SessionConfig struct {
	// Store is the opened lake store backing reads and audits.
	Store Table
	// CheckpointRoot is where per-query checkpoint directories default to.
	CheckpointRoot string
	// BusBuffer overrides the listener event buffer size (0 = default).
	BusBuffer int
}

// Session is the explicit runtime handle: it owns the listener bus, the
// query registry, and the goroutines running query trigger loops. Every
// component that needs the runtime receives the session; there is no
// ambient global.
type Session struct {
	store  Table
	ckRoot string

	bus      *listenerBus
	registry *Registry
	ulids    *idgen.ULIDGenerator
	group    *errgroup.Group

	closed atomic.Bool
}

// NewSession creates a session over an opened store.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Store == nil {
		return nil, errors.New("session requires an open lake store")
	}
	return &Session{
		store:    cfg.Store,
		ckRoot:   cfg.CheckpointRoot,
		bus:      newListenerBus(cfg.BusBuffer),
		registry: NewRegistry(),
		ulids:    idgen.NewULIDGenerator(),
		group:    new(errgroup.Group),
	}, nil
}

// ReadStream opens a continuous read over the session's table location.
func (s *Session) ReadStream() *Dataset {
	return &Dataset{table: s.store, streaming: true}
}

// StaticRead opens a point-in-time read over the same location, suitable
// for partition audits.
func (s *Session) StaticRead() *Dataset {
	return &Dataset{table: s.store, streaming: false}
}

// AddListener registers a listener for query lifecycle events.
func (s *Session) AddListener(l Listener) {
	s.bus.Register(l)
}

// Registry exposes the session's query registry.
func (s *Session) Registry() *Registry {
	return s.registry
}

// StartQuery validates the config, loads checkpoint state, and starts the
// trigger loop on a session-owned goroutine. It returns the live handle
// immediately; batches execute in the background. The given context governs
// the query's lifetime: cancelling it stops the query.
func (s *Session) StartQuery(ctx context.Context, cfg QueryConfig) (*Query, error) {
	if s.closed.Load() {
		return nil, errors.New("session is closed")
	}
	if cfg.Dataset == nil || !cfg.Dataset.IsStreaming() {
		return nil, errors.New("query source must be a streaming dataset")
	}
	if cfg.Sink == nil {
		return nil, errors.New("query requires a sink")
	}
	if cfg.Trigger.Interval <= 0 {
		return nil, errors.New("query requires a positive trigger interval")
	}
	if cfg.Name == "" {
		cfg.Name = fmt.Sprintf("%s-%s", cfg.Sink.Name(), idgen.GenerateShortBase32ID())
	}
	if cfg.CheckpointDir == "" {
		if s.ckRoot == "" {
			return nil, errors.New("query requires a checkpoint directory")
		}
		cfg.CheckpointDir = filepath.Join(s.ckRoot, cfg.Name)
	}
	if err := os.MkdirAll(cfg.CheckpointDir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}

	st, err := loadCheckpoint(cfg.CheckpointDir)
	if err != nil {
		return nil, err
	}

	q := &Query{
		id:       uuid.New(),
		runID:    s.ulids.Make(time.Now()),
		cfg:      cfg,
		reader:   cfg.Dataset.reader(),
		bus:      s.bus,
		registry: s.registry,
		batchID:  st.BatchID,
		snapshot: st.SnapshotID,
		done:     make(chan struct{}),
	}

	qctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	qctx = logctx.With(qctx, "query", cfg.Name, "runId", q.runID)

	s.registry.register(q)
	s.bus.publish(ctx, QueryStartedEvent{ID: q.id, RunID: q.runID, Name: cfg.Name})
	s.group.Go(func() error { return q.run(qctx) })

	logctx.FromContext(ctx).Info("query attached",
		"query", cfg.Name,
		"trigger", cfg.Trigger.String(),
		"sink", cfg.Sink.Name(),
		"checkpointDir", cfg.CheckpointDir,
		"resumeBatchId", st.BatchID,
		"resumeSnapshot", st.SnapshotID)
	return q, nil
}

// Close stops all queries, waits for their goroutines, and shuts down the
// bus and registry. The store stays open; the caller owns it. The first
// query failure of the session, if any, is included in the returned error.
func (s *Session) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs *multierror.Error
	errs = multierror.Append(errs, s.registry.StopAll(ctx))

	waitErr := make(chan error, 1)
	go func() { waitErr <- s.group.Wait() }()
	select {
	case err := <-waitErr:
		errs = multierror.Append(errs, err)
	case <-ctx.Done():
		// A query goroutine is stuck past its cancellation. Leave the bus
		// running: closing it now could make that goroutine publish to a
		// closed channel.
		errs = multierror.Append(errs, fmt.Errorf("waiting for query goroutines: %w", ctx.Err()))
		return errs.ErrorOrNil()
	}

	s.bus.Close()
	s.registry.Close()
	return errs.ErrorOrNil()
}
