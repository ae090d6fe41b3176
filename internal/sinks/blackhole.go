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
	"context"
	"sync/atomic"

	"github.com/cardinalhq/streamdoctor/internal/lakestore"
)

// BlackholeSink discards rows and counts them. Useful when the point of a
// run is the progress telemetry, not the output.
type BlackholeSink struct {
	rows    atomic.Int64
	batches atomic.Int64
}

func NewBlackholeSink() *BlackholeSink { return &BlackholeSink{} }

func (s *BlackholeSink) Name() string { return "blackhole" }

func (s *BlackholeSink) WriteBatch(_ context.Context, _ int64, rows []lakestore.Row) error {
	s.rows.Add(int64(len(rows)))
	s.batches.Add(1)
	return nil
}

// Rows reports the total rows discarded so far.
func (s *BlackholeSink) Rows() int64 { return s.rows.Load() }

// Batches reports how many batches have been written.
func (s *BlackholeSink) Batches() int64 { return s.batches.Load() }

func (s *BlackholeSink) Close() error { return nil }
