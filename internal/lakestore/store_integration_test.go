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

//go:build integration

package lakestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestStore attaches a lake under t.TempDir. Requires the ducklake and
// sqlite extensions to be installable (network or local extension cache).
func openTestStore(t *testing.T) *Store {
	t.Helper()

	st, err := NewStore(WithRootPath(t.TempDir()), WithThreads(2))
	require.NoError(t, err)
	if err := st.Open(context.Background()); err != nil {
		t.Skipf("ducklake not available: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestStore_AppendAndReadBack(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	base, err := st.CurrentSnapshot(ctx)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Microsecond)
	snap1, err := st.AppendBatch(ctx, []Row{
		{ID: 1, Timestamp: now, CommitTag: "batch-0"},
		{ID: 2, Timestamp: now.Add(time.Second), CommitTag: "batch-0"},
	})
	require.NoError(t, err)
	assert.Greater(t, snap1, base)

	snap2, err := st.AppendBatch(ctx, []Row{
		{ID: 3, Timestamp: now.Add(2 * time.Second), CommitTag: "batch-1"},
	})
	require.NoError(t, err)
	assert.Greater(t, snap2, snap1)

	total, err := st.TotalRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	maxID, err := st.MaxRowID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), maxID)
}

func TestStore_ChangesBetween(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	snap1, err := st.AppendBatch(ctx, []Row{
		{ID: 10, Timestamp: now, CommitTag: "a"},
		{ID: 11, Timestamp: now, CommitTag: "a"},
	})
	require.NoError(t, err)

	snap2, err := st.AppendBatch(ctx, []Row{
		{ID: 12, Timestamp: now, CommitTag: "b"},
	})
	require.NoError(t, err)

	// Only the second commit.
	rows, err := st.ChangesBetween(ctx, snap1+1, snap2)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(12), rows[0].ID)
	assert.Equal(t, "b", rows[0].CommitTag)

	// Both commits, in row order.
	rows, err = st.ChangesBetween(ctx, snap1, snap2)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(10), rows[0].ID)
	assert.Equal(t, int64(12), rows[2].ID)

	// Nothing past the head.
	rows, err = st.ChangesBetween(ctx, snap2+1, snap2+100)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStore_SnapshotsAndDataFiles(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for i := range 3 {
		_, err := st.AppendBatch(ctx, []Row{
			{ID: int64(i + 1), Timestamp: now, CommitTag: "seed"},
		})
		require.NoError(t, err)
	}

	snaps, err := st.Snapshots(ctx)
	require.NoError(t, err)
	// Attach + create table + 3 inserts.
	require.GreaterOrEqual(t, len(snaps), 4)
	for i := 1; i < len(snaps); i++ {
		assert.Greater(t, snaps[i].ID, snaps[i-1].ID)
	}

	files, err := st.LiveDataFileCount(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, files, 1)
}

func TestStore_ReopenSeesExistingData(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	st, err := NewStore(WithRootPath(dir))
	require.NoError(t, err)
	if err := st.Open(ctx); err != nil {
		t.Skipf("ducklake not available: %v", err)
	}
	snap, err := st.AppendBatch(ctx, []Row{{ID: 1, Timestamp: time.Now().UTC(), CommitTag: "x"}})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st2, err := NewStore(WithRootPath(dir))
	require.NoError(t, err)
	require.NoError(t, st2.Open(ctx))
	defer func() { _ = st2.Close() }()

	cur, err := st2.CurrentSnapshot(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, cur, snap)

	total, err := st2.TotalRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}
