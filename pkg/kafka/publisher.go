package kafka

import (
	"github.com/Astemirdum/bookhub/pkg/circuit_breaker"
	"github.com/IBM/sarama"
	jsoniter "github.com/json-iterator/go"
)

// Publisher sends borrow events through a sync producer guarded by a circuit breaker,
// so an unhealthy cluster costs one fast error instead of a blocked request.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	cb       circuit_breaker.CircuitBreaker
}

func NewPublisher(producer sarama.SyncProducer, topic string, cb circuit_breaker.CircuitBreaker) *Publisher {
	if cb == nil {
		cb = circuit_breaker.New()
	}
	return &Publisher{
		producer: producer,
		topic:    topic,
		cb:       cb,
	}
}

func (p *Publisher) Publish(ev BorrowEvent) error {
	if p == nil {
		return nil
	}
	data, err := jsoniter.ConfigFastest.Marshal(ev)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.UserEmail),
		Value: sarama.ByteEncoder(data),
	}
	return p.cb.Call(func() error {
		_, _, err := p.producer.SendMessage(msg)
		return err
	})
}

func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.producer.Close()
}
