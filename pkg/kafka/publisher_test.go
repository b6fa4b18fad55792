package kafka_test

import (
	"errors"
	"testing"
	"time"

	"github.com/Astemirdum/bookhub/pkg/circuit_breaker"
	"github.com/Astemirdum/bookhub/pkg/kafka"
	"github.com/IBM/sarama/mocks"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/require"
)

func TestPublisher_Publish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	ev := kafka.BorrowEvent{
		Type:      kafka.EventBorrowed,
		RecordID:  "r1",
		UserEmail: "u@x.com",
		BookID:    "b1",
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var got kafka.BorrowEvent
		if err := jsoniter.ConfigFastest.Unmarshal(val, &got); err != nil {
			return err
		}
		if got.Type != ev.Type || got.RecordID != ev.RecordID || got.UserEmail != ev.UserEmail ||
			got.BookID != ev.BookID || !got.Timestamp.Equal(ev.Timestamp) {
			return errors.New("unexpected event payload")
		}
		return nil
	})

	pub := kafka.NewPublisher(producer, kafka.BorrowTopic, nil)
	require.NoError(t, pub.Publish(ev))
	require.NoError(t, pub.Close())
}

func TestPublisher_PublishOpenBreaker(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	errBroker := errors.New("broker down")
	producer.ExpectSendMessageAndFail(errBroker)

	breaker := kafka.Breaker{Window: 1, OpenTimeout: time.Hour, FailureRatio: 1, Recovery: 1}
	pub := kafka.NewPublisher(producer, kafka.BorrowTopic, circuit_breaker.New(breaker.Options()...))
	require.ErrorIs(t, pub.Publish(kafka.BorrowEvent{Type: kafka.EventReturned}), errBroker)
	require.ErrorIs(t, pub.Publish(kafka.BorrowEvent{Type: kafka.EventReturned}), circuit_breaker.ErrOpenCB)
	require.NoError(t, producer.Close())
}

func TestPublisher_Nil(t *testing.T) {
	var pub *kafka.Publisher
	require.NoError(t, pub.Publish(kafka.BorrowEvent{}))
	require.NoError(t, pub.Close())
}

func TestBreaker_Options(t *testing.T) {
	require.Empty(t, kafka.Breaker{}.Options())
	require.Len(t, kafka.Breaker{Window: 10, OpenTimeout: time.Second, FailureRatio: 0.5, Recovery: 1}.Options(), 4)

	// a single failed call out of a window of two opens the breaker
	cb := circuit_breaker.New(kafka.Breaker{Window: 2, FailureRatio: 0.5}.Options()...)
	require.Error(t, cb.Call(func() error { return errors.New("boom") }))
	require.Equal(t, circuit_breaker.Open, cb.State())
}

func TestConfig_Enabled(t *testing.T) {
	require.False(t, kafka.Config{}.Enabled())
	require.True(t, kafka.Config{Addrs: []string{"localhost:9092"}}.Enabled())
}
