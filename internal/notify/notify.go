// Package notify publishes a message to RabbitMQ every time a seat becomes
// booked, so downstream consumers (receipts, analytics) can react without
// polling /summary. Publishing is best effort: the coordinator never waits
// on the broker, and events are dropped if the broker is unreachable for
// long enough to fill the buffer.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/DoyleJ11/train-seat-backend/internal/inventory"
)

const (
	QueueName  = "seat.booked"
	bufferSize = 256
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// SeatBookedEvent is the message body published on QueueName.
type SeatBookedEvent struct {
	TrainNumber string    `json:"trainNumber"`
	CoachNumber int       `json:"coachNumber"`
	SeatNumber  int       `json:"seatNumber"`
	Version     int       `json:"version"`
	BookedAt    time.Time `json:"bookedAt"`
}

// channel is the part of *amqp.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type Publisher struct {
	url         string
	trainNumber string
	events      chan SeatBookedEvent
	log         *zap.Logger
	now         func() time.Time
}

func NewPublisher(url, trainNumber string, log *zap.Logger) *Publisher {
	return &Publisher{
		url:         url,
		trainNumber: trainNumber,
		events:      make(chan SeatBookedEvent, bufferSize),
		log:         log,
		now:         time.Now,
	}
}

// SeatBooked queues an event without blocking.
func (p *Publisher) SeatBooked(change inventory.Change, version int) {
	ev := SeatBookedEvent{
		TrainNumber: p.trainNumber,
		CoachNumber: change.CoachNumber,
		SeatNumber:  change.SeatNumber,
		Version:     version,
		BookedAt:    p.now().UTC(),
	}
	select {
	case p.events <- ev:
	default:
		p.log.Warn("notify buffer full, dropping event", zap.Stringer("seat", change.SeatRef), zap.Int("version", version))
	}
}

// backoff doubles from minBackoff up to maxBackoff.
type backoff struct{ d time.Duration }

func (b *backoff) next() time.Duration {
	if b.d < minBackoff {
		b.d = minBackoff
	}
	d := b.d
	b.d = min(2*b.d, maxBackoff)
	return d
}

func (b *backoff) reset() { b.d = minBackoff }

// Run connects to the broker and publishes queued events until ctx is done,
// reconnecting with exponential backoff. A session that got as far as
// declaring the queue starts the backoff over.
func (p *Publisher) Run(ctx context.Context) error {
	var b backoff
	for {
		err := p.session(ctx, b.reset)
		if ctx.Err() != nil {
			return nil
		}
		wait := b.next()
		p.log.Warn("rabbitmq session ended; retrying", zap.Error(err), zap.Duration("backoff", wait))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (p *Publisher) session(ctx context.Context, connected func()) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	p.log.Info("rabbitmq connected", zap.String("queue", QueueName))
	connected()

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	return p.drain(ctx, ch, closed)
}

// drain publishes events until ctx is done or the connection closes. An
// event that fails to publish is queued again for the next session.
func (p *Publisher) drain(ctx context.Context, ch channel, closed <-chan *amqp.Error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			return fmt.Errorf("connection closed: %v", amqpErr)
		case ev := <-p.events:
			if err := p.publish(ctx, ch, ev); err != nil {
				p.requeue(ev)
				return err
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, ch channel, ev SeatBookedEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err = ch.PublishWithContext(pctx,
		"",        // default exchange
		QueueName, // routing key = queue name
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    ev.BookedAt,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	p.log.Debug("published seat booked", zap.Int("coach", ev.CoachNumber), zap.Int("seat", ev.SeatNumber))
	return nil
}

func (p *Publisher) requeue(ev SeatBookedEvent) {
	select {
	case p.events <- ev:
	default:
		p.log.Warn("notify buffer full, dropping event", zap.Int("version", ev.Version))
	}
}
