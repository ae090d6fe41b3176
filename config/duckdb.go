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

import "runtime"

// DuckDBConfig holds DuckDB-specific configuration for the lake connection.
type DuckDBConfig struct {
	MemoryLimit int `mapstructure:"memory_limit"` // Memory limit in MB (0 = unlimited)
	Threads     int `mapstructure:"threads"`      // DuckDB thread count (0 = GOMAXPROCS)
}

// DefaultDuckDBConfig returns default DuckDB configuration.
func DefaultDuckDBConfig() DuckDBConfig {
	return DuckDBConfig{
		MemoryLimit: 0, // No limit by default
		Threads:     0, // 0 means use GOMAXPROCS at open time
	}
}

// GetMemoryLimit returns the memory limit in MB (0 = unlimited).
func (c *DuckDBConfig) GetMemoryLimit() int {
	return c.MemoryLimit
}

// GetThreads returns the thread count to hand DuckDB.
func (c *DuckDBConfig) GetThreads() int {
	if c.Threads > 0 {
		return c.Threads
	}
	return runtime.GOMAXPROCS(0)
}
