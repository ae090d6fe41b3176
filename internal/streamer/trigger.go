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
	"strconv"
	"strings"
	"time"
)

// Trigger is the processing-time cadence of a query: one trigger firing per
// Interval.
type Trigger struct {
	Interval time.Duration
}

func (t Trigger) String() string {
	return fmt.Sprintf("ProcessingTime(%s)", t.Interval)
}

var spelledUnits = map[string]time.Duration{
	"millisecond": time.Millisecond,
	"second":      time.Second,
	"minute":      time.Minute,
	"hour":        time.Hour,
	"day":         24 * time.Hour,
}

// ParseTrigger accepts both Go duration syntax ("5s", "1m30s") and the
// spelled form streaming engines use ("5 seconds", "1 minute"). The interval
// must be positive.
func ParseTrigger(s string) (Trigger, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Trigger{}, fmt.Errorf("empty trigger interval")
	}

	if d, err := time.ParseDuration(raw); err == nil {
		if d <= 0 {
			return Trigger{}, fmt.Errorf("trigger interval must be positive, got %q", s)
		}
		return Trigger{Interval: d}, nil
	}

	fields := strings.Fields(strings.ToLower(raw))
	if len(fields) != 2 {
		return Trigger{}, fmt.Errorf("cannot parse trigger interval %q", s)
	}
	n, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Trigger{}, fmt.Errorf("cannot parse trigger interval %q", s)
	}
	unit, ok := spelledUnits[strings.TrimSuffix(fields[1], "s")]
	if !ok {
		return Trigger{}, fmt.Errorf("unknown trigger unit %q in %q", fields[1], s)
	}
	d := time.Duration(n * float64(unit))
	if d <= 0 {
		return Trigger{}, fmt.Errorf("trigger interval must be positive, got %q", s)
	}
	return Trigger{Interval: d}, nil
}
