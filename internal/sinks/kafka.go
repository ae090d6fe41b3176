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
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/cardinalhq/streamdoctor/internal/lakestore"
)

const defaultKafkaBatchTimeout = 50 * time.Millisecond

// KafkaSink relays each batch to a Kafka topic. Messages are keyed by row
// ID so replays of the same rows land on the same partitions, and every
// message carries the batch ID as a header for downstream dedup.
type KafkaSink struct {
	writer *kafka.Writer
	codec  Codec
}

// NewKafkaSink builds a kafka sink from cfg.Brokers and cfg.Topic.
func NewKafkaSink(cfg Config) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka sink requires at least one broker")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka sink requires a topic")
	}
	codec, err := NewCodec(cfg.Codec)
	if err != nil {
		return nil, err
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = defaultKafkaBatchTimeout
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: batchTimeout,
		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Snappy,
	}
	return &KafkaSink{writer: w, codec: codec}, nil
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) WriteBatch(ctx context.Context, batchID int64, rows []lakestore.Row) error {
	if len(rows) == 0 {
		return nil
	}

	batchHeader := kafka.Header{
		Key:   "batchId",
		Value: []byte(strconv.FormatInt(batchID, 10)),
	}
	msgs := make([]kafka.Message, 0, len(rows))
	for _, row := range rows {
		value, err := s.codec.Encode(row)
		if err != nil {
			return fmt.Errorf("encode row %d: %w", row.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(strconv.FormatInt(row.ID, 10)),
			Value:   value,
			Headers: []kafka.Header{batchHeader},
		})
	}
	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write batch %d to kafka: %w", batchID, err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
