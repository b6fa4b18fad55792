package handler

import (
	"context"
	"sync"

	"github.com/Astemirdum/bookhub/pkg/kafka"
	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

type adjustQuantity func(ctx context.Context, bookID string, delta int) error

// Consumer applies inventory adjustments from the inventory topic.
type Consumer struct {
	adjustQuantityHandler adjustQuantity
	log                   *zap.Logger
	ready                 chan struct{}
	readyOnce             sync.Once
}

func NewConsumer(adjust adjustQuantity, log *zap.Logger) *Consumer {
	return &Consumer{
		adjustQuantityHandler: adjust,
		log:                   log.Named("consumer"),
		ready:                 make(chan struct{}),
	}
}

// Ready is closed once the first session has been set up.
func (consumer *Consumer) Ready() <-chan struct{} {
	return consumer.ready
}

func (consumer *Consumer) Setup(sarama.ConsumerGroupSession) error {
	consumer.readyOnce.Do(func() { close(consumer.ready) })
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (consumer *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (consumer *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				consumer.log.Warn("message channel was closed")
				return nil
			}
			var req kafka.InventoryAdjustment
			if err := json.Unmarshal(message.Value, &req); err != nil || req.BookID == "" {
				consumer.log.Error("undecodable inventory message", zap.ByteString("value", message.Value), zap.Error(err))
				session.MarkMessage(message, "")
				continue
			}

			if err := consumer.adjustQuantityHandler(session.Context(), req.BookID, req.Delta); err != nil {
				consumer.log.Error("consumer.adjustQuantityHandler", zap.String("bookId", req.BookID), zap.Error(err))
				continue
			}

			consumer.log.Debug("Message claimed:", zap.String("value", string(message.Value)), zap.Time("timestamp", message.Timestamp), zap.String("topic", message.Topic))
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}
