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
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/cardinalhq/streamdoctor/config"
	"github.com/cardinalhq/streamdoctor/internal/diagnose"
	"github.com/cardinalhq/streamdoctor/internal/streamer"
)

func init() {
	var (
		path  string
		table string
		cores int
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit a table's data-file count against available cores",
		RunE: func(_ *cobra.Command, _ []string) error {
			servicename := "streamdoctor-audit"
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

			session, err := streamer.NewSession(streamer.SessionConfig{Store: store})
			if err != nil {
				return fmt.Errorf("failed to create session: %w", err)
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := session.Close(closeCtx); err != nil {
					slog.Error("Error closing session", slog.Any("error", err))
				}
			}()

			audit, err := diagnose.AuditPartitions(doneCtx, session.StaticRead(), cores)
			if err != nil {
				return fmt.Errorf("partition audit failed: %w", err)
			}
			return audit.Render(os.Stdout)
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "Lake root directory (default: config, else a temp dir)")
	cmd.Flags().StringVar(&table, "table", "", "Event table name")
	cmd.Flags().IntVar(&cores, "cores", 0, "Core count to audit against (0 uses GOMAXPROCS)")

	rootCmd.AddCommand(cmd)
}
