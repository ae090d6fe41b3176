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

//go:build kafkatest

package sinks

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/streamdoctor/internal/lakestore"
)

const testBroker = "localhost:9092"

func createTestTopic(t *testing.T, topic string) {
	t.Helper()
	conn, err := kafka.Dial("tcp", testBroker)
	require.NoError(t, err, "Failed to connect to Kafka at %s", testBroker)
	controller, err := conn.Controller()
	require.NoError(t, err)
	conn.Close()

	controllerConn, err := kafka.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	require.NoError(t, err)
}

func TestKafkaSink_RoundTrip(t *testing.T) {
	topic := fmt.Sprintf("streamdoctor-sink-%d", time.Now().UnixNano())
	createTestTopic(t, topic)

	sink, err := NewKafkaSink(Config{
		Brokers: []string{testBroker},
		Topic:   topic,
		Codec:   "cbor",
	})
	require.NoError(t, err)

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := []lakestore.Row{
		{ID: 10, Timestamp: base, CommitTag: "batch-0000"},
		{ID: 11, Timestamp: base.Add(time.Second), CommitTag: "batch-0000"},
		{ID: 12, Timestamp: base.Add(2 * time.Second), CommitTag: "batch-0000"},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, sink.WriteBatch(ctx, 7, rows))
	require.NoError(t, sink.Close())

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{testBroker},
		Topic:    topic,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	codec, err := NewCodec("cbor")
	require.NoError(t, err)

	got := make([]lakestore.Row, 0, len(rows))
	for range rows {
		msg, err := reader.ReadMessage(ctx)
		require.NoError(t, err)

		var row lakestore.Row
		require.NoError(t, codec.Decode(msg.Value, &row))
		got = append(got, row)

		require.Len(t, msg.Headers, 1)
		assert.Equal(t, "batchId", msg.Headers[0].Key)
		assert.Equal(t, "7", string(msg.Headers[0].Value))
	}
	assert.ElementsMatch(t, rows, got)
}

func TestKafkaSink_EmptyBatchIsNoop(t *testing.T) {
	topic := fmt.Sprintf("streamdoctor-empty-%d", time.Now().UnixNano())
	createTestTopic(t, topic)

	sink, err := NewKafkaSink(Config{Brokers: []string{testBroker}, Topic: topic})
	require.NoError(t, err)

	require.NoError(t, sink.WriteBatch(context.Background(), 0, nil))
	require.NoError(t, sink.Close())
}
