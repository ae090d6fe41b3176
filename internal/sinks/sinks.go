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

// Package sinks provides the batch write targets a streaming query can
// attach to: console for interactive inspection, parquet for durable
// capture, kafka for relay into a broker, and blackhole for load tests
// where only the telemetry matters.
package sinks

import (
	"fmt"
	"io"
	"time"

	"github.com/cardinalhq/streamdoctor/internal/streamer"
)

// Config carries the union of sink settings. Each sink kind reads only
// the fields it understands.
type Config struct {
	// Console
	Output   io.Writer
	MaxRows  int
	Truncate bool

	// Parquet
	Directory string

	// Kafka
	Brokers      []string
	Topic        string
	Codec        string
	BatchTimeout time.Duration
}

// New builds a sink of the given kind.
func New(kind string, cfg Config) (streamer.Sink, error) {
	switch kind {
	case "console":
		return NewConsoleSink(cfg), nil
	case "parquet":
		return NewParquetSink(cfg)
	case "kafka":
		return NewKafkaSink(cfg)
	case "blackhole":
		return NewBlackholeSink(), nil
	default:
		return nil, fmt.Errorf("unknown sink kind %q", kind)
	}
}
