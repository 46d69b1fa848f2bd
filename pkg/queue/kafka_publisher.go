package queue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

const (
	flushTimeoutMs      = 10000
	queueFullRetryDelay = time.Second
)

// KafkaPublisher publishes address messages through a confluent-kafka-go
// producer. Publish waits for the delivery report of its own message.
//
// Close must be called to stop the background watchers and flush the local
// queue.
type KafkaPublisher struct {
	producer *kafka.Producer
	log      *zap.SugaredLogger

	fatal    chan error
	stop     chan struct{}
	watchers sync.WaitGroup
	once     sync.Once
}

var _ QueuePublisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates the producer and starts watching its error events
// and, when go.logs.channel.enable is set, its client logs. Watchers stop when
// ctx is done or on Close.
func NewKafkaPublisher(ctx context.Context, conf *kafka.ConfigMap, log *zap.SugaredLogger) (*KafkaPublisher, error) {
	p, err := kafka.NewProducer(conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	forwardLogs, err := conf.Get("go.logs.channel.enable", false)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to get go.logs.channel.enable: %w", err)
	}

	q := &KafkaPublisher{
		producer: p,
		log:      log,
		fatal:    make(chan error, 1),
		stop:     make(chan struct{}),
	}

	q.watchers.Add(1)
	go q.watchErrors(ctx)
	if enabled, _ := forwardLogs.(bool); enabled {
		q.watchers.Add(1)
		go q.forwardClientLogs(ctx)
	}
	return q, nil
}

// Publish produces msg and blocks until its delivery report arrives or ctx is
// done. A message abandoned on ctx may still be delivered later.
func (q *KafkaPublisher) Publish(ctx context.Context, msg Msg) error {
	// Not closed here: the report may arrive after an abandoned Publish
	// returns, and librdkafka must still be able to send on it.
	report := make(chan kafka.Event, 1)

	km := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &msg.Topic, Partition: kafka.PartitionAny},
		Key:            msg.Key,
		Value:          msg.Value,
		Headers:        toKafkaHeaders(msg.Headers),
	}
	if err := q.produce(ctx, km, report); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case ev := <-report:
		return q.delivered(ev)
	}
}

// Errors yields at most one fatal producer error, after which the publisher
// is unusable. It is closed by Close.
func (q *KafkaPublisher) Errors() <-chan error {
	return q.fatal
}

// Close stops the watchers and flushes queued messages until done or until
// ctx is cancelled, in which case undelivered messages are dropped. Repeated
// calls are no-ops.
func (q *KafkaPublisher) Close(ctx context.Context) {
	q.once.Do(func() {
		close(q.stop)
		q.watchers.Wait()
		defer close(q.fatal)

		for left := q.producer.Flush(flushTimeoutMs); left > 0; left = q.producer.Flush(flushTimeoutMs) {
			if ctx.Err() != nil {
				q.log.Warnw("kafka publisher closed with undelivered messages", "pending", left)
				q.producer.Close()
				return
			}
			q.log.Warnw("kafka flush timed out, retrying", "pending", left)
		}
		q.producer.Close()
		q.log.Info("kafka publisher closed")
	})
}

// produce enqueues msg, waiting out a full local queue. Every other produce
// error is returned as is.
func (q *KafkaPublisher) produce(ctx context.Context, msg *kafka.Message, report chan kafka.Event) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := q.producer.Produce(msg, report)
		var kerr kafka.Error
		if !errors.As(err, &kerr) || kerr.Code() != kafka.ErrQueueFull {
			if err != nil {
				return fmt.Errorf("failed to produce to %s: %w", *msg.TopicPartition.Topic, err)
			}
			return nil
		}

		q.log.Warnw("kafka producer queue full, retrying", "delay", queueFullRetryDelay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(queueFullRetryDelay):
		}
	}
}

func (q *KafkaPublisher) delivered(ev kafka.Event) error {
	switch e := ev.(type) {
	case *kafka.Message:
		if err := e.TopicPartition.Error; err != nil {
			return fmt.Errorf("delivery failed: %w", err)
		}
		q.log.Debugw("address delivered",
			"topic", *e.TopicPartition.Topic,
			"partition", e.TopicPartition.Partition,
			"offset", e.TopicPartition.Offset,
		)
		return nil
	case kafka.Error:
		return fmt.Errorf("kafka error: code=%d fatal=%t: %w", e.Code(), e.IsFatal(), e)
	default:
		return fmt.Errorf("unexpected delivery event: %T", ev)
	}
}

// watchErrors reports a fatal client error, or loss of every broker, on the
// fatal channel. Delivery reports never reach Events since every message
// carries its own report channel.
func (q *KafkaPublisher) watchErrors(ctx context.Context) {
	defer q.watchers.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stop:
			return
		case ev, ok := <-q.producer.Events():
			if !ok {
				q.reportFatal(errors.New("kafka producer event channel closed"))
				return
			}
			kerr, isErr := ev.(kafka.Error)
			if !isErr {
				continue
			}
			if kerr.IsFatal() || kerr.Code() == kafka.ErrAllBrokersDown {
				q.reportFatal(fmt.Errorf("kafka producer failed: %#x: %w", kerr.Code(), kerr))
				return
			}
			q.log.Warnw("kafka producer error", "code", kerr.Code(), "error", kerr)
		}
	}
}

func (q *KafkaPublisher) reportFatal(err error) {
	select {
	case q.fatal <- err:
	default:
	}
}

func (q *KafkaPublisher) forwardClientLogs(ctx context.Context) {
	defer q.watchers.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stop:
			return
		case entry, ok := <-q.producer.Logs():
			if !ok {
				return
			}
			q.log.Debugw("librdkafka", "tag", entry.Tag, "level", entry.Level, "message", entry.Message)
		}
	}
}

// toKafkaHeaders converts h to Kafka headers sorted by key.
func toKafkaHeaders(h map[string]string) []kafka.Header {
	if len(h) == 0 {
		return nil
	}
	out := make([]kafka.Header, 0, len(h))
	for k, v := range h {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	slices.SortFunc(out, func(a, b kafka.Header) int { return strings.Compare(a.Key, b.Key) })
	return out
}
