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

// Package streamer is the micro-batch runtime: it owns query handles, their
// trigger loops, progress telemetry, checkpoint offsets, the listener bus,
// and the registry of active queries. It deliberately stays thin; atomic
// commits, snapshot isolation, and the change feed belong to the lake store.
package streamer

import (
	"encoding/json"
	"time"
)

// maxRecentProgress bounds each query's progress history. The bound is the
// runtime's, not the caller's.
const maxRecentProgress = 100

// Duration breakdown keys reported in Progress.DurationMS.
const (
	DurTriggerExecution = "triggerExecution"
	DurGetBatch         = "getBatch"
	DurAddBatch         = "addBatch"
	DurCommitOffsets    = "commitOffsets"
)

// progressTimeFormat renders UTC timestamps as ISO8601 with milliseconds,
// e.g. "2026-03-01T09:30:00.000Z".
const progressTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Progress is the immutable telemetry record for one completed trigger
// firing. The runtime creates one per firing; readers must not mutate it.
type Progress struct {
	BatchID      int64            `json:"batchId"`
	Timestamp    string           `json:"timestamp"`
	NumInputRows int64            `json:"numInputRows"`
	DurationMS   map[string]int64 `json:"durationMs"`
	Sources      []SourceProgress `json:"sources,omitempty"`
	Sink         SinkProgress     `json:"sink"`
}

// SourceProgress describes the snapshot interval one source contributed to a
// batch. StartOffset is the watermark before the batch, EndOffset after.
type SourceProgress struct {
	Description  string `json:"description"`
	StartOffset  int64  `json:"startOffset"`
	EndOffset    int64  `json:"endOffset"`
	NumInputRows int64  `json:"numInputRows"`
}

// SinkProgress identifies the sink a batch was handed to.
type SinkProgress struct {
	Description string `json:"description"`
}

// FormatProgressTime renders t the way progress snapshots carry timestamps.
func FormatProgressTime(t time.Time) string {
	return t.UTC().Format(progressTimeFormat)
}

// TriggerDuration returns the trigger-execution duration, or false when the
// breakdown is missing the field or carries a negative value.
func (p *Progress) TriggerDuration() (time.Duration, bool) {
	if p == nil || p.DurationMS == nil {
		return 0, false
	}
	ms, ok := p.DurationMS[DurTriggerExecution]
	if !ok || ms < 0 {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}

// Time parses the snapshot's engine-formatted timestamp.
func (p *Progress) Time() (time.Time, bool) {
	if p == nil || p.Timestamp == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, p.Timestamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// String renders the snapshot as compact JSON, for one-line log output.
func (p *Progress) String() string {
	b, err := json.Marshal(p)
	if err != nil {
		return "{}"
	}
	return string(b)
}
