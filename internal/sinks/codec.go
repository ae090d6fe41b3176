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

package sinks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/cardinalhq/streamdoctor/internal/lakestore"
)

// Codec serializes rows for transport sinks. Encode and Decode round-trip:
// the decoded row equals the encoded one to microsecond timestamp precision.
type Codec interface {
	Name() string
	Encode(row lakestore.Row) ([]byte, error)
	Decode(data []byte, into *lakestore.Row) error
}

// wireRow is the on-the-wire shape shared by both codecs. Timestamps travel
// as UTC microseconds.
type wireRow struct {
	ID        int64  `json:"id" cbor:"id"`
	TsMicros  int64  `json:"tsMicros" cbor:"tsMicros"`
	CommitTag string `json:"commitTag" cbor:"commitTag"`
}

func toWire(row lakestore.Row) wireRow {
	return wireRow{
		ID:        row.ID,
		TsMicros:  row.Timestamp.UTC().UnixMicro(),
		CommitTag: row.CommitTag,
	}
}

func fromWire(w wireRow) lakestore.Row {
	return lakestore.Row{
		ID:        w.ID,
		Timestamp: time.UnixMicro(w.TsMicros).UTC(),
		CommitTag: w.CommitTag,
	}
}

// NewCodec returns the named codec. The empty name means JSON.
func NewCodec(name string) (Codec, error) {
	switch name {
	case "", "json":
		return jsonCodec{}, nil
	case "cbor":
		return newCBORCodec()
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Encode(row lakestore.Row) ([]byte, error) {
	return json.Marshal(toWire(row))
}

func (jsonCodec) Decode(data []byte, into *lakestore.Row) error {
	var w wireRow
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode json row: %w", err)
	}
	*into = fromWire(w)
	return nil
}

type cborCodec struct {
	em cbor.EncMode
	dm cbor.DecMode
}

func newCBORCodec() (*cborCodec, error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("create CBOR encoder: %w", err)
	}
	dm, err := cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		MaxNestedLevels: 4,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("create CBOR decoder: %w", err)
	}
	return &cborCodec{em: em, dm: dm}, nil
}

func (cborCodec) Name() string { return "cbor" }

func (c *cborCodec) Encode(row lakestore.Row) ([]byte, error) {
	return c.em.Marshal(toWire(row))
}

func (c *cborCodec) Decode(data []byte, into *lakestore.Row) error {
	var w wireRow
	if err := c.dm.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode cbor row: %w", err)
	}
	*into = fromWire(w)
	return nil
}
