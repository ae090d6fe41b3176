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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/streamdoctor/config"
	"github.com/cardinalhq/streamdoctor/internal/chart"
	"github.com/cardinalhq/streamdoctor/internal/diagnose"
	"github.com/cardinalhq/streamdoctor/internal/healthcheck"
	"github.com/cardinalhq/streamdoctor/internal/simulate"
	"github.com/cardinalhq/streamdoctor/internal/sinks"
	"github.com/cardinalhq/streamdoctor/internal/streamer"
)

const sessionCloseTimeout = 30 * time.Second

type runOptions struct {
	path          string
	table         string
	trigger       string
	checkpoint    string
	sinkKind      string
	sinkTarget    string
	manifestPath  string
	simBatches    int
	simRows       int
	simInterval   time.Duration
	diagnoseEvery time.Duration
	plotPath      string
	statusPort    int
}

func init() {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a diagnostic session: attach streams, generate commits, inspect cadence",
		RunE: func(_ *cobra.Command, _ []string) error {
			servicename := "streamdoctor-run"
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

			return runSession(doneCtx, cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.path, "path", "", "Lake root directory (default: config, else a temp dir)")
	cmd.Flags().StringVar(&opts.table, "table", "", "Event table name")
	cmd.Flags().StringVar(&opts.trigger, "trigger", "5s", `Trigger interval, Go ("5s") or spelled ("5 seconds")`)
	cmd.Flags().StringVar(&opts.checkpoint, "checkpoint", "", "Checkpoint root directory (default: <path>/checkpoints)")
	cmd.Flags().StringVar(&opts.sinkKind, "sink", "", "Sink kind: console, parquet, kafka, blackhole")
	cmd.Flags().StringVar(&opts.sinkTarget, "sink-target", "", "Sink target: parquet output dir or kafka topic")
	cmd.Flags().StringVar(&opts.manifestPath, "manifest", "", "YAML manifest attaching several streams at once")
	cmd.Flags().IntVar(&opts.simBatches, "simulate-batches", 0, "Commit batches to generate in the background (0 disables)")
	cmd.Flags().IntVar(&opts.simRows, "simulate-rows", 10, "Rows per generated batch")
	cmd.Flags().DurationVar(&opts.simInterval, "simulate-interval", 30*time.Second, "Pause between generated batches")
	cmd.Flags().DurationVar(&opts.diagnoseEvery, "diagnose-every", 0, "Periodic diagnosis cadence (0 disables)")
	cmd.Flags().StringVar(&opts.plotPath, "plot", "", "Write a trigger-duration chart here on shutdown (.png or .svg)")
	cmd.Flags().IntVar(&opts.statusPort, "status-port", 0, "HTTP status server port (0 disables)")

	rootCmd.AddCommand(cmd)
}

func runSession(ctx context.Context, cfg *config.Config, opts runOptions) error {
	if opts.path == "" {
		opts.path = cfg.Lake.Path
	}
	if opts.table == "" {
		opts.table = cfg.Lake.Table
	}
	if opts.checkpoint == "" {
		opts.checkpoint = cfg.Lake.CheckpointRoot
	}
	if opts.sinkKind == "" {
		opts.sinkKind = cfg.Sink.Kind
	}
	if opts.sinkTarget == "" {
		opts.sinkTarget = cfg.Sink.Target
	}
	if opts.diagnoseEvery == 0 {
		opts.diagnoseEvery = cfg.Diagnose.Every
	}
	if opts.statusPort == 0 {
		opts.statusPort = cfg.Status.Port
	}

	store, err := openLakeStore(ctx, opts.path, opts.table, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("Error closing lake store", slog.Any("error", err))
		}
	}()

	if opts.checkpoint == "" {
		opts.checkpoint = filepath.Join(store.RootPath(), "checkpoints")
	}

	session, err := streamer.NewSession(streamer.SessionConfig{
		Store:          store,
		CheckpointRoot: opts.checkpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	if opts.statusPort > 0 {
		healthServer := healthcheck.NewServer(
			healthcheck.Config{Port: opts.statusPort},
			queryStatuses(session.Registry()),
		)
		go func() {
			if err := healthServer.Start(ctx); err != nil {
				slog.Error("Status server stopped", slog.Any("error", err))
			}
		}()
		healthServer.SetReadyCondition("lake_attached", true)
		healthServer.SetReady(true)
		healthServer.SetStatus(healthcheck.StatusHealthy)
	}

	session.AddListener(&streamer.LoggingListener{})

	specs, err := resolveStreams(cfg, opts)
	if err != nil {
		return err
	}

	sessionStart := time.Now()
	queries := make([]*streamer.Query, 0, len(specs))
	for _, sp := range specs {
		trig, err := streamer.ParseTrigger(sp.Trigger)
		if err != nil {
			return fmt.Errorf("stream %q: %w", sp.Name, err)
		}
		target := sp.Target
		if sp.Sink == "parquet" && target == "" {
			target = filepath.Join(store.RootPath(), "out")
		}
		sink, err := buildSink(sp.Sink, target, cfg)
		if err != nil {
			return fmt.Errorf("stream %q: %w", sp.Name, err)
		}
		q, err := session.StartQuery(ctx, streamer.QueryConfig{
			Name:    sp.Name,
			Dataset: session.ReadStream(),
			Sink:    sink,
			Trigger: trig,
		})
		if err != nil {
			return fmt.Errorf("failed to attach stream %q: %w", sp.Name, err)
		}
		queries = append(queries, q)
	}
	slog.Info("Streams attached", slog.Int("count", len(queries)))

	var task *simulate.Task
	if opts.simBatches > 0 {
		task = simulate.Start(ctx, store, simulate.Spec{
			Batches:      opts.simBatches,
			RowsPerBatch: opts.simRows,
			Interval:     opts.simInterval,
		})
	}

	if opts.diagnoseEvery > 0 {
		go diagnosisLoop(ctx, session.Registry(), cfg.Diagnose.Interval, opts.diagnoseEvery)
	}

	<-ctx.Done()
	slog.Info("Shutting down session")

	if task != nil {
		task.Stop()
		if err := task.Err(); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Commit generator failed", slog.Any("error", err))
		}
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), sessionCloseTimeout)
	defer cancel()
	if err := session.Close(closeCtx); err != nil {
		slog.Error("Error closing session", slog.Any("error", err))
	}

	finalReport(queries, cfg.Diagnose.Interval, opts.plotPath)
	session.Registry().Describe(os.Stdout)
	sessionDuration.Record(context.Background(), time.Since(sessionStart).Seconds(),
		metric.WithAttributeSet(commonAttributes))
	return nil
}

// buildSink maps a sink kind and target onto the sink factory config. The
// target is the parquet output directory or the kafka topic; console and
// blackhole ignore it.
func buildSink(kind, target string, cfg *config.Config) (streamer.Sink, error) {
	sc := sinks.Config{
		MaxRows:      cfg.Sink.MaxRows,
		Truncate:     true,
		Directory:    target,
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.Topic,
		Codec:        cfg.Sink.Codec,
		BatchTimeout: cfg.Kafka.BatchTimeout,
	}
	if kind == "kafka" && target != "" {
		sc.Topic = target
	}
	return sinks.New(kind, sc)
}

// queryStatuses adapts the registry to the status server's /queries endpoint.
func queryStatuses(reg *streamer.Registry) healthcheck.StatusFunc {
	return func() []healthcheck.QueryStatus {
		active := reg.Active()
		out := make([]healthcheck.QueryStatus, 0, len(active))
		for _, q := range active {
			qs := healthcheck.QueryStatus{
				ID:     q.ID().String(),
				Name:   q.Name(),
				Status: q.StatusMessage(),
			}
			if p := q.LastProgress(); p != nil {
				if raw, err := json.Marshal(p); err == nil {
					qs.LastProgress = raw
				}
			}
			out = append(out, qs)
		}
		return out
	}
}

// diagnosisLoop renders a cadence verdict for every active query each tick.
func diagnosisLoop(ctx context.Context, reg *streamer.Registry, interval, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, q := range reg.Active() {
				start := time.Now()
				report := diagnose.Diagnose(q, interval)
				if err := report.Render(os.Stdout); err != nil {
					slog.Error("Failed to render diagnosis", slog.Any("error", err))
				}
				diagnoseDuration.Record(ctx, time.Since(start).Seconds(),
					metric.WithAttributeSet(commonAttributes))
			}
		}
	}
}

// finalReport prints each query's last progress, cadence verdict, and
// trigger-duration chart. It runs after the queries have stopped, reading
// their retained progress history.
func finalReport(queries []*streamer.Query, interval time.Duration, plotPath string) {
	for _, q := range queries {
		if err := diagnose.DescribeProgress(os.Stdout, q); err != nil {
			slog.Error("Failed to describe progress", slog.String("query", q.Name()), slog.Any("error", err))
		}
		report := diagnose.Diagnose(q, interval)
		if err := report.Render(os.Stdout); err != nil {
			slog.Error("Failed to render diagnosis", slog.String("query", q.Name()), slog.Any("error", err))
		}

		points := chart.CollectPoints(q)
		if plotPath == "" {
			if err := chart.RenderASCII(os.Stdout, points, 0, 0); err != nil {
				slog.Error("Failed to render chart", slog.String("query", q.Name()), slog.Any("error", err))
			}
			continue
		}
		copts := chart.Options{
			Path:  plotFileFor(plotPath, q.Name(), len(queries) > 1),
			Title: q.Name(),
		}
		if err := chart.Render(os.Stdout, points, copts); err != nil {
			slog.Error("Failed to render chart", slog.String("query", q.Name()), slog.Any("error", err))
		}
	}
}

// plotFileFor keeps a lone query on the requested path and suffixes the
// query name when several streams share one session.
func plotFileFor(base, name string, multi bool) string {
	if !multi {
		return base
	}
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "-" + name + ext
}
