package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/Astemirdum/bookhub/pkg/circuit_breaker"
	"github.com/IBM/sarama"
)

type Config struct {
	Addrs   []string `yaml:"addrs" envconfig:"KAFKA_ADDRS"`
	Breaker Breaker  `yaml:"breaker"`
}

// Breaker holds the thresholds of the circuit breaker in front of the producer.
type Breaker struct {
	Window       int           `yaml:"window" envconfig:"KAFKA_BREAKER_WINDOW" default:"100"`
	OpenTimeout  time.Duration `yaml:"openTimeout" envconfig:"KAFKA_BREAKER_OPEN_TIMEOUT" default:"10s"`
	FailureRatio float64       `yaml:"failureRatio" envconfig:"KAFKA_BREAKER_FAILURE_RATIO" default:"0.2"`
	Recovery     int           `yaml:"recovery" envconfig:"KAFKA_BREAKER_RECOVERY" default:"2"`
}

// Options turns the set thresholds into breaker options; zero values keep the breaker defaults.
func (b Breaker) Options() []circuit_breaker.Option {
	var opts []circuit_breaker.Option
	if b.Window > 0 {
		opts = append(opts, circuit_breaker.WithWindow(b.Window))
	}
	if b.OpenTimeout > 0 {
		opts = append(opts, circuit_breaker.WithOpenTimeout(b.OpenTimeout))
	}
	if b.FailureRatio > 0 {
		opts = append(opts, circuit_breaker.WithFailureRatio(b.FailureRatio))
	}
	if b.Recovery > 0 {
		opts = append(opts, circuit_breaker.WithRecovery(b.Recovery))
	}
	return opts
}

// Enabled reports whether brokers are configured; without them the service runs without events.
func (c Config) Enabled() bool {
	return len(c.Addrs) > 0
}

const (
	BorrowTopic            = "bookhub.borrows"
	InventoryTopic         = "bookhub.inventory"
	InventoryConsumerGroup = "bookhub-inventory"
)

type EventType string

const (
	EventBorrowed EventType = "BORROWED"
	EventReturned EventType = "RETURNED"
)

type BorrowEvent struct {
	Type      EventType `json:"type"`
	RecordID  string    `json:"recordId"`
	UserEmail string    `json:"userEmail"`
	BookID    string    `json:"bookId"`
	Timestamp time.Time `json:"timestamp"`
}

// InventoryAdjustment changes the available copies of a book outside the borrow workflow,
// e.g. a copy returned at the desk or written off.
type InventoryAdjustment struct {
	BookID string `json:"bookId"`
	Delta  int    `json:"delta"`
}

func NewSyncProducer(cfg Config) (sarama.SyncProducer, error) {
	defaultCfg := sarama.NewConfig()

	defaultCfg.Producer.RequiredAcks = sarama.WaitForAll
	defaultCfg.Producer.Return.Successes = true
	defaultCfg.Producer.Retry.Max = 3

	return sarama.NewSyncProducer(cfg.Addrs, defaultCfg)
}

func NewConsumer(cfg Config, group string) (sarama.ConsumerGroup, error) {
	defaultCfg := sarama.NewConfig()

	defaultCfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	defaultCfg.Consumer.Return.Errors = false

	return sarama.NewConsumerGroup(cfg.Addrs, group, defaultCfg)
}

// Consume joins the group and blocks until ctx is done or the group is closed.
// Consume has to be called again after every rebalance, hence the loop.
func Consume(ctx context.Context, group sarama.ConsumerGroup, handler sarama.ConsumerGroupHandler, topics ...string) error {
	for {
		if err := group.Consume(ctx, topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
