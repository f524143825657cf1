package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

// MovementProducer публикует зафиксированные движения склада
// для POS и внешней отчётности.
type MovementProducer struct {
	writer *kafka.Writer
}

func NewMovementProducer(brokers []string, topic string) *MovementProducer {
	return &MovementProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

type MovementEvent struct {
	ID          uuid.UUID       `json:"id"`
	VariantID   uuid.UUID       `json:"variant_id"`
	WarehouseID uuid.UUID       `json:"warehouse_id"`
	Type        string          `json:"type"`
	Quantity    decimal.Decimal `json:"quantity"`
	StockAfter  decimal.Decimal `json:"stock_after"`
	ActorID     uuid.UUID       `json:"actor_id"`
	TransferID  *uuid.UUID      `json:"transfer_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (p *MovementProducer) PublishMovement(ctx context.Context, ev MovementEvent) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	// Ключ — пара (variant, warehouse): движения одной пары
	// попадают в одну партицию и сохраняют порядок.
	key := ev.VariantID.String() + ":" + ev.WarehouseID.String()
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
}

func (p *MovementProducer) Close() error {
	return p.writer.Close()
}
