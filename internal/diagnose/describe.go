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

package diagnose

import (
	"encoding/json"
	"fmt"
	"io"
)

// DescribeProgress prints q's latest progress snapshot as indented JSON.
// A query that has not completed a batch yet gets a single informational
// line instead; that is a no-op, not an error.
func DescribeProgress(w io.Writer, q ProgressSource) error {
	last := q.LastProgress()
	if last == nil {
		_, err := fmt.Fprintf(w, "no progress yet for query %q (no batch has completed)\n", q.Name())
		return err
	}

	data, err := json.MarshalIndent(last, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal progress for query %q: %w", q.Name(), err)
	}
	if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
		return err
	}
	return nil
}
