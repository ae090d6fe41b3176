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
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/cardinalhq/streamdoctor/internal/lakestore"
)

const (
	defaultConsoleMaxRows = 20
	consoleTagWidth       = 20
)

// ConsoleSink prints each batch to a writer, one banner per batch followed
// by a row table. Output is capped at MaxRows rows per batch so a fat batch
// does not flood the terminal.
type ConsoleSink struct {
	out      io.Writer
	maxRows  int
	truncate bool
}

// NewConsoleSink builds a console sink. A nil Output writes to stdout.
func NewConsoleSink(cfg Config) *ConsoleSink {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	maxRows := cfg.MaxRows
	if maxRows <= 0 {
		maxRows = defaultConsoleMaxRows
	}
	return &ConsoleSink{out: out, maxRows: maxRows, truncate: cfg.Truncate}
}

func (s *ConsoleSink) Name() string { return "console" }

func (s *ConsoleSink) WriteBatch(ctx context.Context, batchID int64, rows []lakestore.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fmt.Fprintf(s.out, "-------------------------------------------\n")
	fmt.Fprintf(s.out, "Batch: %d\n", batchID)
	fmt.Fprintf(s.out, "-------------------------------------------\n")

	tw := tabwriter.NewWriter(s.out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTS\tCOMMIT_TAG")
	shown := rows
	if len(shown) > s.maxRows {
		shown = shown[:s.maxRows]
	}
	for _, row := range shown {
		fmt.Fprintf(tw, "%d\t%s\t%s\n",
			row.ID,
			row.Timestamp.UTC().Format(time.RFC3339),
			s.tag(row.CommitTag))
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush console output: %w", err)
	}
	if hidden := len(rows) - len(shown); hidden > 0 {
		fmt.Fprintf(s.out, "only showing top %d rows (%d more)\n", s.maxRows, hidden)
	}
	fmt.Fprintln(s.out)
	return nil
}

func (s *ConsoleSink) tag(tag string) string {
	if !s.truncate || len(tag) <= consoleTagWidth {
		return tag
	}
	return tag[:consoleTagWidth-3] + "..."
}

func (s *ConsoleSink) Close() error { return nil }
