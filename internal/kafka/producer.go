package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-boxoffice/internal/models"

	"github.com/segmentio/kafka-go"
)

type Producer struct {
	Writer          *kafka.Writer
	SeatStatusTopic string
	OrderTopic      string
}

func NewProducer(brokers []string, seatStatusTopic, orderTopic string) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{
		Writer:          writer,
		SeatStatusTopic: seatStatusTopic,
		OrderTopic:      orderTopic,
	}
}

// Publish writes one message to a topic, keyed for per-entity ordering.
func (p *Producer) Publish(topic, key string, value []byte) error {
	return p.Writer.WriteMessages(context.Background(), kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
}

// SeatStatusEvent announces committed seat transitions so downstream
// consumers (seat maps, analytics) can follow availability in near real
// time. It is published after commit; the database rows are the truth.
type SeatStatusEvent struct {
	EventID   string            `json:"event_id"`
	SeatIDs   []string          `json:"seat_ids"`
	Status    models.SeatStatus `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
}

func (p *Producer) SeatStatusChanged(eventID string, seatIDs []string, status models.SeatStatus) error {
	if len(seatIDs) == 0 {
		return nil
	}
	value, err := json.Marshal(SeatStatusEvent{
		EventID:   eventID,
		SeatIDs:   seatIDs,
		Status:    status,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal seat status event: %w", err)
	}
	return p.Publish(p.SeatStatusTopic, eventID, value)
}

func (p *Producer) OrderCreated(order models.Order) error {
	value, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	return p.Publish(p.OrderTopic, order.OrderID, value)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
