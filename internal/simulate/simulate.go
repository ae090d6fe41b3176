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

// Package simulate feeds a lake table with synthetic commits so a streaming
// query has upstream data to chew on. Each commit is one atomic append of
// sequential rows sharing a commit tag, paced by a configurable interval.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/streamdoctor/internal/idgen"
	"github.com/cardinalhq/streamdoctor/internal/lakestore"
	"github.com/cardinalhq/streamdoctor/internal/logctx"
)

var (
	commitsCounter otelmetric.Int64Counter
	rowsCounter    otelmetric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/streamdoctor/internal/simulate")

	var err error
	commitsCounter, err = meter.Int64Counter(
		"streamdoctor.simulate.commits",
		otelmetric.WithDescription("Number of synthetic commits appended to the lake"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create simulate.commits counter: %w", err))
	}

	rowsCounter, err = meter.Int64Counter(
		"streamdoctor.simulate.rows",
		otelmetric.WithDescription("Number of synthetic rows appended to the lake"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create simulate.rows counter: %w", err))
	}
}

// Appender is the slice of the lake store the generator needs.
type Appender interface {
	AppendBatch(ctx context.Context, rows []lakestore.Row) (int64, error)
	MaxRowID(ctx context.Context) (int64, error)
}

// Spec describes one simulation run.
type Spec struct {
	// Batches is the number of commits to produce.
	Batches int
	// RowsPerBatch is the row count of each commit.
	RowsPerBatch int
	// Interval is the pause after each commit. Zero means commit
	// back-to-back.
	Interval time.Duration
}

func (s Spec) Validate() error {
	if s.Batches <= 0 {
		return fmt.Errorf("batches must be positive, got %d", s.Batches)
	}
	if s.RowsPerBatch <= 0 {
		return fmt.Errorf("rows per batch must be positive, got %d", s.RowsPerBatch)
	}
	if s.Interval < 0 {
		return fmt.Errorf("interval must not be negative, got %s", s.Interval)
	}
	return nil
}

// Run produces spec.Batches commits synchronously. Row IDs continue from the
// table's current maximum so repeated runs never collide. It returns after
// the last commit, or earlier with the context error when ctx is cancelled
// mid-run.
func Run(ctx context.Context, store Appender, spec Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	ll := logctx.FromContext(ctx)

	nextID, err := store.MaxRowID(ctx)
	if err != nil {
		return fmt.Errorf("read max row id: %w", err)
	}
	nextID++

	tags := idgen.NewULIDGenerator()
	for batch := 0; batch < spec.Batches; batch++ {
		now := time.Now().UTC()
		tag := tags.Make(now)
		rows := make([]lakestore.Row, 0, spec.RowsPerBatch)
		for range spec.RowsPerBatch {
			rows = append(rows, lakestore.Row{
				ID:        nextID,
				Timestamp: now,
				CommitTag: tag,
			})
			nextID++
		}

		snapshot, err := store.AppendBatch(ctx, rows)
		if err != nil {
			return fmt.Errorf("append batch %d: %w", batch, err)
		}
		commitsCounter.Add(ctx, 1)
		rowsCounter.Add(ctx, int64(spec.RowsPerBatch))
		ll.Info("simulate: committed batch",
			slog.Int("batch", batch),
			slog.Int("rows", spec.RowsPerBatch),
			slog.String("commitTag", tag),
			slog.Int64("snapshotId", snapshot))

		if spec.Interval <= 0 || batch == spec.Batches-1 {
			continue
		}
		select {
		case <-ctx.Done():
			ll.Info("simulate: cancelled",
				slog.Int("committed", batch+1),
				slog.Int("planned", spec.Batches))
			return ctx.Err()
		case <-time.After(spec.Interval):
		}
	}
	ll.Info("simulate: run complete", slog.Int("batches", spec.Batches))
	return nil
}

// Task is a handle to a background simulation. Stop cancels it; abandoning
// the handle is also safe, the run ends with its parent context.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Start spawns Run on its own goroutine and returns immediately.
func Start(ctx context.Context, store Appender, spec Spec) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer cancel()
		t.err = Run(ctx, store, spec)
	}()
	return t
}

// Stop cancels the run and waits for it to finish.
func (t *Task) Stop() {
	t.cancel()
	<-t.done
}

// Done is closed once the run has finished for any reason.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the run finishes or ctx expires.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err reports the run's outcome. It is only meaningful after Done is closed.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return errors.New("simulation still running")
	}
}
