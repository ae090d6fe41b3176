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

package cmd

import (
	"context"
	"fmt"

	"github.com/cardinalhq/streamdoctor/config"
	"github.com/cardinalhq/streamdoctor/internal/lakestore"
)

// openLakeStore opens the event table shared by every subcommand. An empty
// path lets the store create a throwaway temp lake, which is what most
// interactive tuning sessions want.
func openLakeStore(ctx context.Context, path, table string, cfg *config.Config) (*lakestore.Store, error) {
	opts := []lakestore.StoreOption{lakestore.WithTableName(table)}
	if path != "" {
		opts = append(opts, lakestore.WithRootPath(path))
	}
	if mb := cfg.DuckDB.GetMemoryLimit(); mb > 0 {
		opts = append(opts, lakestore.WithMemoryLimitMB(int64(mb)))
	}
	if cfg.DuckDB.Threads > 0 {
		opts = append(opts, lakestore.WithThreads(cfg.DuckDB.Threads))
	}

	store, err := lakestore.NewStore(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to configure lake store: %w", err)
	}
	if err := store.Open(ctx); err != nil {
		return nil, fmt.Errorf("failed to open lake store: %w", err)
	}
	return store, nil
}
