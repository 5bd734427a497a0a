package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/event-booking/internal/model"
)

// Publisher sends booking events to RabbitMQ.  Each publish dials its own
// connection, so a broker outage only affects the publish that hits it.
type Publisher struct {
	url string
	log *zap.Logger
	now func() time.Time
}

func NewPublisher(url string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{url: url, log: log, now: time.Now}
}

// BookingConfirmed publishes to the booking.confirmed queue.
func (p *Publisher) BookingConfirmed(ctx context.Context, b *model.Booking) error {
	return p.publish(ctx, BookingConfirmedQueue, NewBookingEvent(BookingConfirmedQueue, b, p.now()))
}

// BookingCancelled publishes to the booking.cancelled queue.
func (p *Publisher) BookingCancelled(ctx context.Context, b *model.Booking) error {
	return p.publish(ctx, BookingCancelledQueue, NewBookingEvent(BookingCancelledQueue, b, p.now()))
}

func (p *Publisher) publish(ctx context.Context, queue string, ev BookingEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", queue, err)
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout(ctx)),
	})
	if err != nil {
		p.log.Warn("rabbitmq dial failed", zap.String("queue", queue), zap.Error(err))
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare %s: %w", queue, err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.BookingID,
		Timestamp:    ev.OccurredAt,
		Type:         queue,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
		return fmt.Errorf("publish %s: %w", queue, err)
	}
	p.log.Debug("booking event published", zap.String("queue", queue), zap.String("booking_id", ev.BookingID))
	return nil
}

// dialTimeout keeps the broker dial within the caller's deadline.
func dialTimeout(ctx context.Context) time.Duration {
	const limit = 5 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left > 0 && left < limit {
			return left
		}
	}
	return limit
}
