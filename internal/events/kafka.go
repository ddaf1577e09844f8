package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/haatos/runkeeper/internal/build"
)

const (
	TypeSaved   = "saved"
	TypeDeleted = "deleted"
)

// DefaultFlushTimeout bounds how long Close waits for buffered events.
const DefaultFlushTimeout = 10 * time.Second

// Producer is the part of *kgo.Client the publisher uses.
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
	Close()
}

type Event struct {
	Type        string    `json:"type"`
	Job         string    `json:"job"`
	Number      int64     `json:"number"`
	DisplayName string    `json:"display_name"`
	Status      string    `json:"status"`
	Result      string    `json:"result,omitempty"`
	Keep        bool      `json:"keep"`
	Storage     string    `json:"storage,omitempty"`
	Time        time.Time `json:"time"`
}

func Key(r *build.Record) string {
	return fmt.Sprintf("%s#%d", r.Job().Name(), r.Number())
}

// Publisher is a build.Listener producing lifecycle events to a topic.
// Records are produced asynchronously; failures are logged.
type Publisher struct {
	producer     Producer
	topic        string
	now          func() time.Time
	flushTimeout time.Duration
}

func NewPublisher(producer Producer, topic string) *Publisher {
	return &Publisher{
		producer:     producer,
		topic:        topic,
		now:          func() time.Time { return time.Now().UTC() },
		flushTimeout: DefaultFlushTimeout,
	}
}

// NewKafkaPublisher connects a franz-go client to brokers.
func NewKafkaPublisher(brokers []string, topic string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker address is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("err creating kafka client: %w", err)
	}
	return NewPublisher(client, topic), nil
}

func (p *Publisher) event(typ string, r *build.Record) Event {
	return Event{
		Type:        typ,
		Job:         r.Job().Name(),
		Number:      r.Number(),
		DisplayName: r.FullDisplayName(),
		Status:      r.Status().String(),
		Result:      string(r.Result()),
		Keep:        r.Keep(),
		Time:        p.now(),
	}
}

func (p *Publisher) OnSaved(r *build.Record) error {
	return p.publish(r, p.event(TypeSaved, r))
}

func (p *Publisher) OnDeleted(r *build.Record, storage string) error {
	e := p.event(TypeDeleted, r)
	e.Storage = storage
	return p.publish(r, e)
}

func (p *Publisher) publish(r *build.Record, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return err
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(Key(r)),
		Value: value,
	}
	p.producer.Produce(context.Background(), record, func(rec *kgo.Record, err error) {
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"key":   string(rec.Key),
				"event": e.Type,
			}).Error("err producing build event")
		}
	})
	return nil
}

// Close waits up to the flush timeout for buffered events to be delivered
// and then closes the producer. Events still buffered after that are lost.
func (p *Publisher) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), p.flushTimeout)
	defer cancel()
	if err := p.producer.Flush(ctx); err != nil {
		log.WithError(err).WithField("topic", p.topic).Warn("err flushing build events")
	}
	p.producer.Close()
}
