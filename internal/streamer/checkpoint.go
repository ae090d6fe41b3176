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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const checkpointFile = "state.json"

// checkpointState is a query's durable offset bookkeeping. BatchID is the
// next batch to execute; SnapshotID is the last lake snapshot already handed
// to the sink.
type checkpointState struct {
	BatchID    int64 `json:"batch_id"`
	SnapshotID int64 `json:"snapshot_id"`
}

// loadCheckpoint reads the state file under dir. A missing file is a fresh
// query, not an error.
func loadCheckpoint(dir string) (checkpointState, error) {
	var st checkpointState
	data, err := os.ReadFile(filepath.Join(dir, checkpointFile))
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return st, fmt.Errorf("read checkpoint: %w", err)
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return checkpointState{}, fmt.Errorf("parse checkpoint: %w", err)
	}
	return st, nil
}

// saveCheckpoint writes the state file atomically. Temp file plus rename
// keeps a readable state present at all times, so a crash mid-write replays
// the previous batch instead of corrupting the offset.
func saveCheckpoint(dir string, st checkpointState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(dir, checkpointFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("create checkpoint temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, checkpointFile)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("publish checkpoint: %w", err)
	}
	return nil
}
