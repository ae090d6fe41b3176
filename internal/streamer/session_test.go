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
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lifecycleListener records the order of lifecycle events for one query.
type lifecycleListener struct {
	mu     sync.Mutex
	events []string
}

func (l *lifecycleListener) OnQueryStarted(QueryStartedEvent) {
	l.record("started")
}

func (l *lifecycleListener) OnQueryProgress(QueryProgressEvent) {
	l.record("progress")
}

func (l *lifecycleListener) OnQueryTerminated(QueryTerminatedEvent) {
	l.record("terminated")
}

func (l *lifecycleListener) record(kind string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, kind)
}

func (l *lifecycleListener) seenKinds() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	copy(out, l.events)
	return out
}

func TestSession_QueryNameDefaultsFromSink(t *testing.T) {
	s := newTestSession(t, &fakeTable{})
	ctx := context.Background()

	q, err := s.StartQuery(ctx, QueryConfig{
		Dataset: s.ReadStream(),
		Sink:    &captureSink{},
		Trigger: Trigger{Interval: time.Hour},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(q.Name(), "capture-"), "got %q", q.Name())
	assert.Greater(t, len(q.Name()), len("capture-"))

	require.NoError(t, s.Close(ctx))
}

func TestSession_RequiresCheckpointConfig(t *testing.T) {
	s, err := NewSession(SessionConfig{Store: &fakeTable{}})
	require.NoError(t, err)

	_, err = s.StartQuery(context.Background(), QueryConfig{
		Dataset: s.ReadStream(),
		Sink:    &captureSink{},
		Trigger: Trigger{Interval: time.Second},
	})
	assert.ErrorContains(t, err, "checkpoint directory")

	require.NoError(t, s.Close(context.Background()))
}

func TestSession_StartQueryAfterClose(t *testing.T) {
	s := newTestSession(t, &fakeTable{})
	require.NoError(t, s.Close(context.Background()))

	_, err := s.StartQuery(context.Background(), QueryConfig{
		Dataset: s.ReadStream(),
		Sink:    &captureSink{},
		Trigger: Trigger{Interval: time.Second},
	})
	assert.ErrorContains(t, err, "session is closed")
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	s := newTestSession(t, &fakeTable{})
	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))
}

func TestSession_ListenerSeesLifecycle(t *testing.T) {
	table := &fakeTable{}
	table.appendRows(row(1))

	s := newTestSession(t, table)
	lis := &lifecycleListener{}
	s.AddListener(lis)
	ctx := context.Background()

	q, err := s.StartQuery(ctx, QueryConfig{
		Name:    "watched",
		Dataset: s.ReadStream(),
		Sink:    &captureSink{},
		Trigger: Trigger{Interval: 5 * time.Millisecond},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		kinds := lis.seenKinds()
		return len(kinds) >= 2 && kinds[0] == "started" && kinds[1] == "progress"
	}, 2*time.Second, 2*time.Millisecond)

	require.NoError(t, q.Stop(ctx))
	require.Eventually(t, func() bool {
		kinds := lis.seenKinds()
		return kinds[len(kinds)-1] == "terminated"
	}, 2*time.Second, 2*time.Millisecond)

	require.NoError(t, s.Close(ctx))
}

func TestRegistry_Get(t *testing.T) {
	s := newTestSession(t, &fakeTable{})
	ctx := context.Background()

	q, err := s.StartQuery(ctx, QueryConfig{
		Name:    "findable",
		Dataset: s.ReadStream(),
		Sink:    &captureSink{},
		Trigger: Trigger{Interval: time.Hour},
	})
	require.NoError(t, err)

	got, ok := s.Registry().Get(q.ID())
	require.True(t, ok)
	assert.Same(t, q, got)

	_, ok = s.Registry().Get(uuid.New())
	assert.False(t, ok)

	require.NoError(t, s.Close(ctx))
}

func TestDataset_StreamingFlags(t *testing.T) {
	s := newTestSession(t, &fakeTable{})
	assert.True(t, s.ReadStream().IsStreaming())
	assert.False(t, s.StaticRead().IsStreaming())
	require.NoError(t, s.Close(context.Background()))
}

func TestDataset_Description(t *testing.T) {
	s := newTestSession(t, &fakeTable{})
	assert.Equal(t, "ducklake[/fake/lake/events]", s.StaticRead().Description())
	require.NoError(t, s.Close(context.Background()))
}

func TestDataset_StaticCounts(t *testing.T) {
	table := &fakeTable{}
	table.appendRows(row(1), row(2))
	table.appendRows(row(3))

	s := newTestSession(t, table)
	ctx := context.Background()

	parts, err := s.StaticRead().PartitionCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, parts)

	rows, err := s.StaticRead().RowCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rows)

	_, err = s.ReadStream().PartitionCount(ctx)
	assert.Error(t, err)
	_, err = s.ReadStream().RowCount(ctx)
	assert.Error(t, err)

	require.NoError(t, s.Close(ctx))
}
