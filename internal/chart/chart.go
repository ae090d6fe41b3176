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

// Package chart renders trigger-duration-over-time series from a query's
// progress history, either as an image file or as an ASCII plot for
// terminal-only sessions.
package chart

import (
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/guptarohit/asciigraph"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/cardinalhq/streamdoctor/internal/streamer"
)

// noPointsMessage is printed when the history holds nothing plottable.
const noPointsMessage = "no valid trigger durations to plot"

const (
	defaultWidthInches  = 10
	defaultHeightInches = 4
	defaultASCIIWidth   = 80
	defaultASCIIHeight  = 12
)

// ProgressSource is the slice of a query handle the plotter reads.
// *streamer.Query satisfies it.
type ProgressSource interface {
	Name() string
	RecentProgress() []*streamer.Progress
}

// Point is one plottable (time, trigger duration) pair.
type Point struct {
	Time    time.Time
	Seconds float64
}

// Options controls image rendering.
type Options struct {
	// Path is the output file; the extension picks the format
	// (.png or .svg).
	Path string
	// Title defaults to "trigger durations".
	Title string
	// WidthInches and HeightInches default to 10x4.
	WidthInches  float64
	HeightInches float64
}

// CollectPoints walks q's bounded progress history in order and extracts one
// point per snapshot. Snapshots missing a timestamp or a usable trigger
// duration are skipped, never fatal.
func CollectPoints(q ProgressSource) []Point {
	history := q.RecentProgress()
	points := make([]Point, 0, len(history))
	for _, p := range history {
		d, ok := p.TriggerDuration()
		if !ok {
			continue
		}
		ts, ok := p.Time()
		if !ok {
			continue
		}
		points = append(points, Point{Time: ts, Seconds: d.Seconds()})
	}
	return points
}

// Render draws points as a line chart with markers and writes it to
// opts.Path. With no points it prints a message to w instead and writes
// nothing.
func Render(w io.Writer, points []Point, opts Options) error {
	if len(points) == 0 {
		_, err := fmt.Fprintln(w, noPointsMessage)
		return err
	}
	if opts.Path == "" {
		return errors.New("chart output path required")
	}
	switch ext := strings.ToLower(filepath.Ext(opts.Path)); ext {
	case ".png", ".svg":
	default:
		return fmt.Errorf("unsupported chart format %q (want .png or .svg)", ext)
	}

	title := opts.Title
	if title == "" {
		title = "trigger durations"
	}
	width := opts.WidthInches
	if width <= 0 {
		width = defaultWidthInches
	}
	height := opts.HeightInches
	if height <= 0 {
		height = defaultHeightInches
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "time"
	p.Y.Label.Text = "trigger duration (s)"
	p.X.Tick.Marker = plot.TimeTicks{Format: "15:04:05"}
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.YAlign = draw.YCenter
	p.Add(plotter.NewGrid())

	xys := make(plotter.XYs, len(points))
	for i, pt := range points {
		xys[i].X = float64(pt.Time.Unix())
		xys[i].Y = pt.Seconds
	}
	line, markers, err := plotter.NewLinePoints(xys)
	if err != nil {
		return fmt.Errorf("build line series: %w", err)
	}
	markers.Shape = draw.CircleGlyph{}
	p.Add(line, markers)

	if err := p.Save(vg.Length(width)*vg.Inch, vg.Length(height)*vg.Inch, opts.Path); err != nil {
		return fmt.Errorf("save chart: %w", err)
	}
	if _, err := fmt.Fprintf(w, "wrote chart with %d points to %s\n", len(points), opts.Path); err != nil {
		return err
	}
	return nil
}

// RenderASCII draws the same series as a terminal plot. With no points it
// prints a message and draws nothing.
func RenderASCII(w io.Writer, points []Point, width, height int) error {
	if len(points) == 0 {
		_, err := fmt.Fprintln(w, noPointsMessage)
		return err
	}
	if width <= 0 {
		width = defaultASCIIWidth
	}
	if height <= 0 {
		height = defaultASCIIHeight
	}

	series := make([]float64, len(points))
	for i, pt := range points {
		series[i] = pt.Seconds
	}
	caption := fmt.Sprintf("trigger duration (s), %s to %s",
		points[0].Time.UTC().Format("15:04:05"),
		points[len(points)-1].Time.UTC().Format("15:04:05"))
	graph := asciigraph.Plot(series,
		asciigraph.Width(width),
		asciigraph.Height(height),
		asciigraph.Caption(caption))
	if _, err := fmt.Fprintln(w, graph); err != nil {
		return err
	}
	return nil
}
