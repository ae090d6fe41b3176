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

package sinks

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/streamdoctor/internal/lakestore"
)

func consoleRows(n int) []lakestore.Row {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]lakestore.Row, 0, n)
	for i := range n {
		rows = append(rows, lakestore.Row{
			ID:        int64(i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
			CommitTag: "tag",
		})
	}
	return rows
}

func TestConsoleSink_WritesBatchBanner(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(Config{Output: &buf})

	require.NoError(t, sink.WriteBatch(context.Background(), 3, consoleRows(2)))

	out := buf.String()
	assert.Contains(t, out, "Batch: 3")
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "COMMIT_TAG")
	assert.Contains(t, out, "2025-06-01T00:00:01Z")
}

func TestConsoleSink_CapsRows(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(Config{Output: &buf, MaxRows: 5})

	require.NoError(t, sink.WriteBatch(context.Background(), 0, consoleRows(12)))

	out := buf.String()
	assert.Contains(t, out, "only showing top 5 rows (7 more)")
	assert.Equal(t, 5, strings.Count(out, "tag"))
	assert.NotContains(t, out, "2025-06-01T00:00:11Z")
}

func TestConsoleSink_TruncatesLongTags(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(Config{Output: &buf, Truncate: true})

	rows := []lakestore.Row{{
		ID:        1,
		Timestamp: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		CommitTag: "an-extremely-long-commit-tag-value",
	}}
	require.NoError(t, sink.WriteBatch(context.Background(), 0, rows))

	out := buf.String()
	assert.Contains(t, out, "an-extremely-long...")
	assert.NotContains(t, out, "an-extremely-long-commit-tag-value")
}

func TestConsoleSink_EmptyBatch(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(Config{Output: &buf})

	require.NoError(t, sink.WriteBatch(context.Background(), 9, nil))
	assert.Contains(t, buf.String(), "Batch: 9")
}

func TestConsoleSink_CanceledContext(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(Config{Output: &buf})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, sink.WriteBatch(ctx, 0, consoleRows(1)))
	assert.Empty(t, buf.String())
}
