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

// Package diagnose turns a query's progress telemetry into tuning advice:
// how the last batch compares against the trigger cadence, how durations are
// distributed over recent history, and whether a table's partitioning fits
// the available cores.
package diagnose

import (
	"fmt"
	"io"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/cardinalhq/streamdoctor/internal/streamer"
)

// defaultInterval is assumed when neither the caller nor the query supplies
// a trigger cadence.
const defaultInterval = 60 * time.Second

// sketchAccuracy is DDSketch's relative accuracy for duration percentiles.
const sketchAccuracy = 0.01

// ProgressSource is the slice of a query handle the diagnoser reads.
// *streamer.Query satisfies it.
type ProgressSource interface {
	Name() string
	LastProgress() *streamer.Progress
	RecentProgress() []*streamer.Progress
	TriggerInterval() time.Duration
}

// Verdict classifies the last batch against the trigger interval.
type Verdict string

const (
	// VerdictNotStarted means no batch has completed yet.
	VerdictNotStarted Verdict = "not-started"
	// VerdictUnknown means the last snapshot had no usable trigger duration.
	VerdictUnknown Verdict = "unknown"
	// VerdictSlower means the batch ran longer than the trigger interval.
	VerdictSlower Verdict = "batch slower than trigger"
	// VerdictFaster means the batch finished in under half the interval.
	VerdictFaster Verdict = "batch much faster than trigger"
	// VerdictBalanced means the batch duration sits between the two bounds.
	VerdictBalanced Verdict = "balanced"
)

// Summary describes the distribution of trigger durations over the recent
// progress history. All values are in seconds.
type Summary struct {
	Count int
	P50   float64
	P95   float64
	P99   float64
	Max   float64
}

// Report is the outcome of one diagnosis.
type Report struct {
	Query           string
	Verdict         Verdict
	Interval        time.Duration
	BatchDuration   time.Duration
	Message         string
	Recommendations []string
	Summary         *Summary
}

// Diagnose inspects q's latest progress snapshot. The interval used for the
// comparison is resolved in order: explicit argument, the query's configured
// trigger, then a 60 second default. Boundary durations (exactly the
// interval, exactly half of it) are balanced.
func Diagnose(q ProgressSource, interval time.Duration) Report {
	report := Report{Query: q.Name(), Interval: resolveInterval(q, interval)}

	last := q.LastProgress()
	if last == nil {
		report.Verdict = VerdictNotStarted
		report.Message = "no batch has completed yet, nothing to diagnose"
		return report
	}

	batch, ok := last.TriggerDuration()
	if !ok {
		report.Verdict = VerdictUnknown
		report.Message = fmt.Sprintf(
			"batch %d carries no usable triggerExecution duration, diagnosis skipped",
			last.BatchID)
		report.Summary = summarize(q.RecentProgress())
		return report
	}

	report.BatchDuration = batch
	switch {
	case batch > report.Interval:
		report.Verdict = VerdictSlower
		report.Message = fmt.Sprintf(
			"batch %d took %s against a %s trigger; the query is falling behind",
			last.BatchID, batch, report.Interval)
		report.Recommendations = []string{
			"reduce per-batch transformation cost",
			"reduce the input rate per trigger (smaller upstream commits)",
			"scale compute so each batch finishes inside the interval",
		}
	case 2*batch < report.Interval:
		report.Verdict = VerdictFaster
		report.Message = fmt.Sprintf(
			"batch %d took %s against a %s trigger; the query is mostly idle",
			last.BatchID, batch, report.Interval)
		report.Recommendations = []string{
			"shorten the trigger interval for lower end-to-end latency",
			"or confirm the idle headroom is intentional before shrinking resources",
		}
	default:
		report.Verdict = VerdictBalanced
		report.Message = fmt.Sprintf(
			"batch %d took %s against a %s trigger; cadence and batch cost are balanced",
			last.BatchID, batch, report.Interval)
	}
	report.Summary = summarize(q.RecentProgress())
	return report
}

func resolveInterval(q ProgressSource, explicit time.Duration) time.Duration {
	if explicit > 0 {
		return explicit
	}
	if iv := q.TriggerInterval(); iv > 0 {
		return iv
	}
	return defaultInterval
}

// summarize folds the trigger durations of the recent history into a
// DDSketch and reads back the headline percentiles. Snapshots without a
// usable duration are skipped. Returns nil when nothing was usable.
func summarize(history []*streamer.Progress) *Summary {
	sketch, err := ddsketch.NewDefaultDDSketch(sketchAccuracy)
	if err != nil {
		return nil
	}
	count := 0
	for _, p := range history {
		d, ok := p.TriggerDuration()
		if !ok {
			continue
		}
		if err := sketch.Add(d.Seconds()); err != nil {
			continue
		}
		count++
	}
	if count == 0 {
		return nil
	}

	s := &Summary{Count: count}
	if v, err := sketch.GetValueAtQuantile(0.50); err == nil {
		s.P50 = v
	}
	if v, err := sketch.GetValueAtQuantile(0.95); err == nil {
		s.P95 = v
	}
	if v, err := sketch.GetValueAtQuantile(0.99); err == nil {
		s.P99 = v
	}
	if v, err := sketch.GetMaxValue(); err == nil {
		s.Max = v
	}
	return s
}

// Render prints the report for a human operator.
func (r Report) Render(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "query: %s\nverdict: %s\n", r.Query, r.Verdict); err != nil {
		return err
	}
	if r.Message != "" {
		if _, err := fmt.Fprintf(w, "%s\n", r.Message); err != nil {
			return err
		}
	}
	for _, rec := range r.Recommendations {
		if _, err := fmt.Fprintf(w, "  - %s\n", rec); err != nil {
			return err
		}
	}
	if s := r.Summary; s != nil {
		_, err := fmt.Fprintf(w,
			"recent durations: n=%d p50=%.2fs p95=%.2fs p99=%.2fs max=%.2fs\n",
			s.Count, s.P50, s.P95, s.P99, s.Max)
		if err != nil {
			return err
		}
	}
	return nil
}
