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
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cardinalhq/streamdoctor/config"
)

// manifestStream is one stream entry in a manifest file. Unset fields
// inherit the flag/config defaults of the session.
type manifestStream struct {
	Name    string `yaml:"name,omitempty"`
	Table   string `yaml:"table,omitempty"`
	Trigger string `yaml:"trigger,omitempty"`
	Sink    string `yaml:"sink,omitempty"`
	Target  string `yaml:"target,omitempty"`
}

type streamManifest struct {
	Streams []manifestStream `yaml:"streams"`
}

func loadManifest(filename string) (*streamManifest, error) {
	contents, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read stream manifest %s: %w", filename, err)
	}

	var m streamManifest
	dec := yaml.NewDecoder(bytes.NewReader(contents))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stream manifest %s: %w", filename, err)
	}
	if len(m.Streams) == 0 {
		return nil, fmt.Errorf("stream manifest %s names no streams", filename)
	}
	return &m, nil
}

// resolveStreams returns the streams to attach: the manifest's entries when
// one is given, else a single stream built from the flags. A session pins
// one engine to one table, so a manifest stream naming a different table is
// rejected rather than silently read from the wrong place.
func resolveStreams(cfg *config.Config, opts runOptions) ([]manifestStream, error) {
	if opts.manifestPath == "" {
		return []manifestStream{{
			Trigger: opts.trigger,
			Sink:    opts.sinkKind,
			Target:  opts.sinkTarget,
		}}, nil
	}

	m, err := loadManifest(opts.manifestPath)
	if err != nil {
		return nil, err
	}

	streams := make([]manifestStream, 0, len(m.Streams))
	for _, st := range m.Streams {
		if st.Table != "" && st.Table != opts.table {
			return nil, fmt.Errorf("stream %q reads table %q but this session is attached to %q",
				st.Name, st.Table, opts.table)
		}
		if st.Trigger == "" {
			st.Trigger = opts.trigger
		}
		if st.Sink == "" {
			st.Sink = opts.sinkKind
		}
		if st.Target == "" {
			st.Target = opts.sinkTarget
		}
		streams = append(streams, st)
	}
	return streams, nil
}
