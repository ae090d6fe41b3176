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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"github.com/cardinalhq/streamdoctor/internal/logctx"
)

// ErrStreamingDataset is returned when a partition audit is attempted on a
// streaming dataset, which has no stable partition count to audit.
var ErrStreamingDataset = errors.New("partition audit requires a static dataset")

// overPartitionFactor is the multiple of cores past which a table counts as
// over-partitioned.
const overPartitionFactor = 4

// Frame is the slice of a dataset the auditor reads. *streamer.Dataset
// satisfies it.
type Frame interface {
	IsStreaming() bool
	Description() string
	PartitionCount(ctx context.Context) (int, error)
}

// Balance classifies partition count against available cores.
type Balance string

const (
	BalanceUnder Balance = "under-partitioned"
	BalanceOver  Balance = "over-partitioned"
	BalanceOK    Balance = "balanced"
)

// Audit is the outcome of one partition/core comparison.
type Audit struct {
	Dataset        string
	Partitions     int
	Cores          int
	Balance        Balance
	Recommendation string
}

// AuditPartitions compares ds's partition count against the cores available
// to this process. Streaming datasets are refused with ErrStreamingDataset.
// When cores <= 0 the process's GOMAXPROCS is used.
func AuditPartitions(ctx context.Context, ds Frame, cores int) (Audit, error) {
	ll := logctx.FromContext(ctx)
	if ds.IsStreaming() {
		ll.Warn("partition audit refused for streaming dataset",
			slog.String("dataset", ds.Description()))
		return Audit{}, ErrStreamingDataset
	}
	if cores <= 0 {
		cores = runtime.GOMAXPROCS(0)
	}

	partitions, err := ds.PartitionCount(ctx)
	if err != nil {
		return Audit{}, fmt.Errorf("count partitions: %w", err)
	}

	audit := Audit{
		Dataset:    ds.Description(),
		Partitions: partitions,
		Cores:      cores,
	}
	switch {
	case partitions < cores:
		audit.Balance = BalanceUnder
		audit.Recommendation = fmt.Sprintf(
			"%d partitions leave %d of %d cores idle; repartition or split input files",
			partitions, cores-partitions, cores)
	case partitions > cores*overPartitionFactor:
		audit.Balance = BalanceOver
		audit.Recommendation = fmt.Sprintf(
			"%d partitions for %d cores adds scheduling overhead; compact or coalesce files",
			partitions, cores)
	default:
		audit.Balance = BalanceOK
		audit.Recommendation = fmt.Sprintf(
			"%d partitions for %d cores is a healthy ratio", partitions, cores)
	}
	ll.Info("partition audit",
		slog.String("dataset", audit.Dataset),
		slog.Int("partitions", audit.Partitions),
		slog.Int("cores", audit.Cores),
		slog.String("balance", string(audit.Balance)))
	return audit, nil
}

// Render prints the audit for a human operator.
func (a Audit) Render(w io.Writer) error {
	_, err := fmt.Fprintf(w, "dataset: %s\npartitions: %d\ncores: %d\nbalance: %s\n%s\n",
		a.Dataset, a.Partitions, a.Cores, a.Balance, a.Recommendation)
	return err
}
