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
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates configuration for the application.
// Each field is owned by its respective concern; command flags override
// whatever Load produces.
type Config struct {
	Lake     LakeConfig     `mapstructure:"lake"`
	DuckDB   DuckDBConfig   `mapstructure:"duckdb"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Sink     SinkConfig     `mapstructure:"sink"`
	Diagnose DiagnoseConfig `mapstructure:"diagnose"`
	Status   StatusConfig   `mapstructure:"status"`
}

// LakeConfig locates the table under diagnosis.
type LakeConfig struct {
	Path           string `mapstructure:"path"`            // lake root; empty means a temp dir
	Table          string `mapstructure:"table"`           // table name
	CheckpointRoot string `mapstructure:"checkpoint_root"` // per-query checkpoint parent dir
}

// SinkConfig selects where attached queries write their batches.
type SinkConfig struct {
	Kind    string `mapstructure:"kind"`     // console, parquet, kafka, blackhole
	Target  string `mapstructure:"target"`   // parquet output dir
	Codec   string `mapstructure:"codec"`    // kafka payload codec: json or cbor
	MaxRows int    `mapstructure:"max_rows"` // console display cap per batch
}

// DiagnoseConfig paces the in-session diagnosis loop.
type DiagnoseConfig struct {
	// Interval overrides the expected trigger interval; zero falls back to
	// the query's configured trigger.
	Interval time.Duration `mapstructure:"interval"`
	// Every is the cadence of periodic diagnosis during run; zero disables
	// it and only the exit diagnosis runs.
	Every time.Duration `mapstructure:"every"`
}

// StatusConfig configures the HTTP status server.
type StatusConfig struct {
	Port int `mapstructure:"port"` // 0 disables the server
}

// DefaultConfig returns the baseline before file/env/flag overrides.
func DefaultConfig() *Config {
	return &Config{
		Lake: LakeConfig{
			Table: "events",
		},
		DuckDB: DefaultDuckDBConfig(),
		Kafka:  DefaultKafkaConfig(),
		Sink: SinkConfig{
			Kind:  "console",
			Codec: "json",
		},
		Diagnose: DiagnoseConfig{
			Every: 0,
		},
	}
}

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "STREAMDOCTOR" and the dot character
// in keys is replaced by an underscore. For example, "lake.path" becomes
// "STREAMDOCTOR_LAKE_PATH".
func Load() (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("STREAMDOCTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if b := v.GetString("kafka.brokers"); b != "" {
		cfg.Kafka.Brokers = strings.Split(b, ",")
	}
	return cfg, nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
