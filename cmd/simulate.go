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
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/cardinalhq/streamdoctor/config"
	"github.com/cardinalhq/streamdoctor/internal/simulate"
)

func init() {
	var (
		path     string
		table    string
		batches  int
		rows     int
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Append synthetic commit batches to a table",
		RunE: func(_ *cobra.Command, _ []string) error {
			servicename := "streamdoctor-simulate"
			addlAttrs := attribute.NewSet()
			doneCtx, doneFx, err := setupTelemetry(servicename, &addlAttrs)
			if err != nil {
				return fmt.Errorf("failed to setup telemetry: %w", err)
			}

			defer func() {
				if err := doneFx(); err != nil {
					slog.Error("Error shutting down telemetry", slog.Any("error", err))
				}
			}()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if path == "" {
				path = cfg.Lake.Path
			}
			if table == "" {
				table = cfg.Lake.Table
			}

			store, err := openLakeStore(doneCtx, path, table, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					slog.Error("Error closing lake store", slog.Any("error", err))
				}
			}()

			spec := simulate.Spec{
				Batches:      batches,
				RowsPerBatch: rows,
				Interval:     interval,
			}
			if err := simulate.Run(doneCtx, store, spec); err != nil {
				return fmt.Errorf("simulation failed: %w", err)
			}

			total, err := store.TotalRows(doneCtx)
			if err != nil {
				return fmt.Errorf("failed to count rows: %w", err)
			}
			snap, err := store.CurrentSnapshot(doneCtx)
			if err != nil {
				return fmt.Errorf("failed to read current snapshot: %w", err)
			}
			slog.Info("Simulation complete",
				slog.Int64("totalRows", total),
				slog.Int64("currentSnapshot", snap),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "Lake root directory (default: config, else a temp dir)")
	cmd.Flags().StringVar(&table, "table", "", "Event table name")
	cmd.Flags().IntVar(&batches, "batches", 5, "Commit batches to append")
	cmd.Flags().IntVar(&rows, "rows", 10, "Rows per batch")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Pause between batches (0 appends back to back)")

	rootCmd.AddCommand(cmd)
}
