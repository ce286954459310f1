// Package feed publishes accepted observation batches to a Kafka topic for
// downstream consumers. The feed is optional: pipelines run unchanged
// without it, and publish failures never fail a batch.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"weatherpipe/internal/domain"
)

// Feed produces observation messages to a Kafka topic.
type Feed struct {
	writer *kafkago.Writer
	runID  string
	logger *slog.Logger
}

// NewFeed creates a Kafka producer for the observations topic. The run id
// is stamped on every message header so consumers can group one load.
func NewFeed(brokers []string, topic, runID string, logger *slog.Logger) *Feed {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Feed{writer: w, runID: runID, logger: logger}
}

// PublishBatch serializes and publishes one accepted batch in a single
// WriteMessages call. Messages are keyed station:date, so replays of the
// same observation land on the same partition in order.
func (f *Feed) PublishBatch(ctx context.Context, obs []domain.Observation) error {
	if len(obs) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(obs))
	for i := range obs {
		msg, err := serializeToMessage(obs[i], f.runID)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := f.writer.WriteMessages(ctx, msgs...); err != nil {
		return err
	}
	f.logger.Debug("published batch to feed", "messages", len(msgs))
	return nil
}

func (f *Feed) Close() error {
	return f.writer.Close()
}

// feedEvent is the wire form of one observation. Values stay in tenths
// exactly as parsed; missing measurements are explicit nulls, never zeroes.
type feedEvent struct {
	StationID     string `json:"station_id"`
	Date          string `json:"date"` // YYYY-MM-DD
	MaxTempTenths *int   `json:"max_temp_tenths"`
	MinTempTenths *int   `json:"min_temp_tenths"`
	PrecipTenths  *int   `json:"precip_tenths"`
}

// serializeToMessage marshals an observation into a Kafka message.
func serializeToMessage(o domain.Observation, runID string) (kafkago.Message, error) {
	date := o.Date.Format("2006-01-02")
	evt := feedEvent{
		StationID:     o.StationID,
		Date:          date,
		MaxTempTenths: o.MaxTempTenths,
		MinTempTenths: o.MinTempTenths,
		PrecipTenths:  o.PrecipTenths,
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize observation: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(o.StationID + ":" + date),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "station", Value: []byte(o.StationID)},
			{Key: "run_id", Value: []byte(runID)},
		},
	}, nil
}
