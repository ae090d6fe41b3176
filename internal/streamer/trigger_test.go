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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTrigger(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "5s", want: 5 * time.Second},
		{in: "1m30s", want: 90 * time.Second},
		{in: "250ms", want: 250 * time.Millisecond},
		{in: "5 seconds", want: 5 * time.Second},
		{in: "1 second", want: time.Second},
		{in: "1 minute", want: time.Minute},
		{in: "10 Minutes", want: 10 * time.Minute},
		{in: "2 hours", want: 2 * time.Hour},
		{in: "1 day", want: 24 * time.Hour},
		{in: "0.5 seconds", want: 500 * time.Millisecond},
		{in: "  5 seconds  ", want: 5 * time.Second},
		{in: "", wantErr: true},
		{in: "soon", wantErr: true},
		{in: "5 parsecs", wantErr: true},
		{in: "five seconds", wantErr: true},
		{in: "0s", wantErr: true},
		{in: "-5s", wantErr: true},
		{in: "0 seconds", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTrigger(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Interval)
		})
	}
}

func TestTriggerString(t *testing.T) {
	tr := Trigger{Interval: 5 * time.Second}
	assert.Equal(t, "ProcessingTime(5s)", tr.String())
}
