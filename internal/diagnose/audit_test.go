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

package diagnose

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFrame struct {
	streaming  bool
	partitions int
	err        error
}

func (f *fakeFrame) IsStreaming() bool   { return f.streaming }
func (f *fakeFrame) Description() string { return "ducklake[/tmp/lake/events]" }

func (f *fakeFrame) PartitionCount(context.Context) (int, error) {
	return f.partitions, f.err
}

func TestAuditPartitions_Classification(t *testing.T) {
	tests := []struct {
		name       string
		partitions int
		cores      int
		want       Balance
	}{
		{name: "under", partitions: 2, cores: 8, want: BalanceUnder},
		{name: "over", partitions: 40, cores: 8, want: BalanceOver},
		{name: "balanced", partitions: 16, cores: 8, want: BalanceOK},
		{name: "equal is balanced", partitions: 8, cores: 8, want: BalanceOK},
		{name: "exactly 4x is balanced", partitions: 32, cores: 8, want: BalanceOK},
		{name: "just past 4x is over", partitions: 33, cores: 8, want: BalanceOver},
		{name: "one under", partitions: 7, cores: 8, want: BalanceUnder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := &fakeFrame{partitions: tt.partitions}
			audit, err := AuditPartitions(context.Background(), ds, tt.cores)
			require.NoError(t, err)
			assert.Equal(t, tt.want, audit.Balance)
			assert.Equal(t, tt.partitions, audit.Partitions)
			assert.Equal(t, tt.cores, audit.Cores)
			assert.NotEmpty(t, audit.Recommendation)
		})
	}
}

func TestAuditPartitions_RefusesStreaming(t *testing.T) {
	ds := &fakeFrame{streaming: true, partitions: 16}
	_, err := AuditPartitions(context.Background(), ds, 8)
	require.ErrorIs(t, err, ErrStreamingDataset)
}

func TestAuditPartitions_DefaultsCores(t *testing.T) {
	ds := &fakeFrame{partitions: 4}
	audit, err := AuditPartitions(context.Background(), ds, 0)
	require.NoError(t, err)
	assert.Positive(t, audit.Cores)
}

func TestAuditPartitions_CountError(t *testing.T) {
	ds := &fakeFrame{err: errors.New("lake offline")}
	_, err := AuditPartitions(context.Background(), ds, 8)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lake offline")
}

func TestAuditRender(t *testing.T) {
	audit := Audit{
		Dataset:        "ducklake[/tmp/lake/events]",
		Partitions:     2,
		Cores:          8,
		Balance:        BalanceUnder,
		Recommendation: "repartition",
	}

	var buf bytes.Buffer
	require.NoError(t, audit.Render(&buf))
	out := buf.String()
	assert.Contains(t, out, "partitions: 2")
	assert.Contains(t, out, "cores: 8")
	assert.Contains(t, out, "balance: under-partitioned")
}
