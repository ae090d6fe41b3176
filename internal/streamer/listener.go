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
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// QueryStartedEvent is published once when a query's trigger loop starts.
type QueryStartedEvent struct {
	ID    uuid.UUID
	RunID string
	Name  string
}

// QueryProgressEvent is published once per completed trigger firing.
type QueryProgressEvent struct {
	ID       uuid.UUID
	Name     string
	Progress *Progress
}

// QueryTerminatedEvent is published when a query ends. Err is nil for a
// graceful stop.
type QueryTerminatedEvent struct {
	ID   uuid.UUID
	Name string
	Err  error
}

// Listener receives query lifecycle events. Callbacks run on the bus
// dispatcher goroutine, never on a query's trigger loop, so a slow listener
// delays other listeners but not batch execution. A panicking listener is
// logged and the dispatch loop continues.
type Listener interface {
	OnQueryStarted(ev QueryStartedEvent)
	OnQueryProgress(ev QueryProgressEvent)
	OnQueryTerminated(ev QueryTerminatedEvent)
}

const defaultBusBuffer = 256

// listenerBus decouples event producers (query loops) from listeners. Events
// queue on a buffered channel; when the buffer is full the event is dropped
// and counted rather than blocking the producer.
type listenerBus struct {
	mu        sync.RWMutex
	listeners []Listener

	events chan any
	done   chan struct{}

	closeOnce sync.Once
}

func newListenerBus(buffer int) *listenerBus {
	if buffer <= 0 {
		buffer = defaultBusBuffer
	}
	b := &listenerBus{
		events: make(chan any, buffer),
		done:   make(chan struct{}),
	}
	go b.dispatch()
	return b
}

// Register adds a listener. Listeners added after events were published see
// only subsequent events.
func (b *listenerBus) Register(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

func (b *listenerBus) publish(ctx context.Context, ev any) {
	select {
	case b.events <- ev:
	default:
		listenerDropsCounter.Add(ctx, 1)
		slog.Debug("listener bus full, dropping event")
	}
}

func (b *listenerBus) dispatch() {
	defer close(b.done)
	for ev := range b.events {
		b.mu.RLock()
		listeners := make([]Listener, len(b.listeners))
		copy(listeners, b.listeners)
		b.mu.RUnlock()

		for _, l := range listeners {
			dispatchOne(l, ev)
		}
	}
}

// dispatchOne invokes a single listener behind a panic boundary.
func dispatchOne(l Listener, ev any) {
	defer func() {
		if r := recover(); r != nil {
			listenerPanicsCounter.Add(context.Background(), 1)
			slog.Error("listener panicked", slog.Any("panic", r))
		}
	}()

	switch e := ev.(type) {
	case QueryStartedEvent:
		l.OnQueryStarted(e)
	case QueryProgressEvent:
		l.OnQueryProgress(e)
	case QueryTerminatedEvent:
		l.OnQueryTerminated(e)
	}
}

// Close stops accepting events, drains what is queued, and waits for the
// dispatcher to finish.
func (b *listenerBus) Close() {
	b.closeOnce.Do(func() {
		close(b.events)
	})
	<-b.done
}

// LoggingListener prints a one-line summary per completed batch, plus start
// and termination markers.
type LoggingListener struct {
	Logger *slog.Logger
}

var _ Listener = (*LoggingListener)(nil)

func (l *LoggingListener) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

func (l *LoggingListener) OnQueryStarted(ev QueryStartedEvent) {
	l.logger().Info("query started",
		slog.String("query", ev.Name),
		slog.String("id", ev.ID.String()),
		slog.String("runId", ev.RunID))
}

func (l *LoggingListener) OnQueryProgress(ev QueryProgressEvent) {
	p := ev.Progress
	trigger, _ := p.TriggerDuration()
	l.logger().Info("batch completed",
		slog.String("query", ev.Name),
		slog.Int64("batchId", p.BatchID),
		slog.String("timestamp", p.Timestamp),
		slog.Int64("numInputRows", p.NumInputRows),
		slog.Duration("triggerExecution", trigger))
}

func (l *LoggingListener) OnQueryTerminated(ev QueryTerminatedEvent) {
	if ev.Err != nil {
		l.logger().Error("query terminated",
			slog.String("query", ev.Name),
			slog.Any("error", ev.Err))
		return
	}
	l.logger().Info("query stopped", slog.String("query", ev.Name))
}
