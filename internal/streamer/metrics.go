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
	"fmt"

	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	batchesCounter        otelmetric.Int64Counter
	inputRowsCounter      otelmetric.Int64Counter
	triggerHistogram      otelmetric.Float64Histogram
	listenerDropsCounter  otelmetric.Int64Counter
	listenerPanicsCounter otelmetric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/streamdoctor/internal/streamer")

	var err error
	batchesCounter, err = meter.Int64Counter(
		"streamdoctor.query.batches",
		otelmetric.WithDescription("Number of micro-batches processed"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create query.batches counter: %w", err))
	}

	inputRowsCounter, err = meter.Int64Counter(
		"streamdoctor.query.input.rows",
		otelmetric.WithDescription("Number of input rows handed to sinks"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create query.input.rows counter: %w", err))
	}

	triggerHistogram, err = meter.Float64Histogram(
		"streamdoctor.query.trigger.duration",
		otelmetric.WithDescription("Trigger execution duration per batch"),
		otelmetric.WithUnit("ms"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create query.trigger.duration histogram: %w", err))
	}

	listenerDropsCounter, err = meter.Int64Counter(
		"streamdoctor.listener.dropped",
		otelmetric.WithDescription("Number of listener events dropped because the bus was full"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create listener.dropped counter: %w", err))
	}

	listenerPanicsCounter, err = meter.Int64Counter(
		"streamdoctor.listener.panics",
		otelmetric.WithDescription("Number of listener callbacks that panicked"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create listener.panics counter: %w", err))
	}
}
