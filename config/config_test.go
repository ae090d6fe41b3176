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

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "events", cfg.Lake.Table)
	require.Equal(t, "console", cfg.Sink.Kind)
	require.Equal(t, "json", cfg.Sink.Codec)
	require.Equal(t, 0, cfg.DuckDB.MemoryLimit)
	require.Equal(t, 50*time.Millisecond, cfg.Kafka.BatchTimeout)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("STREAMDOCTOR_LAKE_PATH", "/var/lake")
	t.Setenv("STREAMDOCTOR_LAKE_TABLE", "orders")
	t.Setenv("STREAMDOCTOR_DUCKDB_MEMORY_LIMIT", "512")
	t.Setenv("STREAMDOCTOR_SINK_KIND", "parquet")
	t.Setenv("STREAMDOCTOR_STATUS_PORT", "9100")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "/var/lake", cfg.Lake.Path)
	require.Equal(t, "orders", cfg.Lake.Table)
	require.Equal(t, 512, cfg.DuckDB.MemoryLimit)
	require.Equal(t, "parquet", cfg.Sink.Kind)
	require.Equal(t, 9100, cfg.Status.Port)
}

func TestKafkaBrokersEnvSplit(t *testing.T) {
	t.Setenv("STREAMDOCTOR_KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("STREAMDOCTOR_KAFKA_TOPIC", "rows")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, "rows", cfg.Kafka.Topic)
}

func TestDuckDBGetThreads(t *testing.T) {
	cfg := DefaultDuckDBConfig()
	require.Positive(t, cfg.GetThreads(), "zero threads falls back to GOMAXPROCS")

	cfg.Threads = 3
	require.Equal(t, 3, cfg.GetThreads())
}
