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

	"github.com/cardinalhq/streamdoctor/internal/lakestore"
)

// Sink receives each micro-batch of a query. Implementations must tolerate
// WriteBatch never being called (a query that only ever fires empty) and
// Close being called exactly once when the query ends.
type Sink interface {
	// Name identifies the sink in progress records and logs.
	Name() string
	// WriteBatch hands over one batch. An error fails the query; batches
	// are never retried.
	WriteBatch(ctx context.Context, batchID int64, rows []lakestore.Row) error
	Close() error
}
