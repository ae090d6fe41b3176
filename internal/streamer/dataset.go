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

	"github.com/cardinalhq/streamdoctor/internal/lakestore"
)

// TableReader is the slice of the lake store a trigger loop needs: a
// snapshot watermark and an incremental change feed.
type TableReader interface {
	CurrentSnapshot(ctx context.Context) (int64, error)
	ChangesBetween(ctx context.Context, start, end int64) ([]lakestore.Row, error)
}

// Table is the full storage surface a session consumes. *lakestore.Store
// satisfies it.
type Table interface {
	TableReader
	LiveDataFileCount(ctx context.Context) (int, error)
	TotalRows(ctx context.Context) (int64, error)
	RootPath() string
	TableName() string
}

// Dataset is a reference to a table location. A streaming dataset feeds a
// query's trigger loop; a static one is a point-in-time read used by audits.
type Dataset struct {
	table     Table
	streaming bool
}

// IsStreaming reports whether the dataset is a continuous read.
func (d *Dataset) IsStreaming() bool { return d.streaming }

// Description names the table location, for progress records and reports.
func (d *Dataset) Description() string {
	return fmt.Sprintf("ducklake[%s/%s]", d.table.RootPath(), d.table.TableName())
}

// PartitionCount is the number of live data files backing the table, the
// unit of scan parallelism. Streaming datasets have no stable count: files
// keep arriving, so the question is not answerable.
func (d *Dataset) PartitionCount(ctx context.Context) (int, error) {
	if d.streaming {
		return 0, errors.New("streaming dataset has no stable partition count")
	}
	return d.table.LiveDataFileCount(ctx)
}

// RowCount is the number of rows currently visible. Static datasets only.
func (d *Dataset) RowCount(ctx context.Context) (int64, error) {
	if d.streaming {
		return 0, errors.New("streaming dataset has no stable row count")
	}
	return d.table.TotalRows(ctx)
}

func (d *Dataset) reader() TableReader { return d.table }
