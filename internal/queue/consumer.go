package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// BookingLogConsumer appends one line per booking event to a log file.
type BookingLogConsumer struct {
	url     string
	logPath string
	log     *zap.Logger
}

func NewBookingLogConsumer(url, logPath string, log *zap.Logger) *BookingLogConsumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &BookingLogConsumer{url: url, logPath: logPath, log: log}
}

// Run consumes booking.confirmed and booking.cancelled until ctx is done,
// reconnecting with exponential delay when the broker goes away.
// Malformed messages are rejected without requeue.
func (c *BookingLogConsumer) Run(ctx context.Context) error {
	b := reconnectBackOff()
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			return struct{}{}, fmt.Errorf("dial: %w", err)
		}
		b.Reset()

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(ctx.Err())
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Warn("booking consumer disconnected, reconnecting", zap.Error(err), zap.Duration("retry_in", next))
		}),
	)
	return err
}

// reconnectBackOff starts at one second and never waits more than 30s
// between attempts.  A successful dial resets it.
func reconnectBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.MaxInterval = 30 * time.Second
	b.RandomizationFactor = 0
	return b
}

func (c *BookingLogConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("booking consumer qos failed", zap.Error(err))
	}

	deliveries := make(chan amqp.Delivery)
	for _, q := range []string{BookingConfirmedQueue, BookingCancelledQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", q, err)
		}
		msgs, err := ch.Consume(q, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", q, err)
		}
		go forward(ctx, msgs, deliveries)
	}
	closed := ch.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			if amqpErr == nil {
				return errors.New("channel closed")
			}
			return amqpErr
		case d := <-deliveries:
			if err := c.handle(d.Body); err != nil {
				c.log.Error("booking consumer handle failed", zap.String("queue", d.RoutingKey), zap.Error(err))
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func forward(ctx context.Context, in <-chan amqp.Delivery, out chan<- amqp.Delivery) {
	for d := range in {
		select {
		case out <- d:
		case <-ctx.Done():
			return
		}
	}
}

func (c *BookingLogConsumer) handle(body []byte) error {
	var ev BookingEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.BookingID == "" {
		return errors.New("event without booking_id")
	}
	if err := os.MkdirAll(filepath.Dir(c.logPath), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(c.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(formatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func formatLine(ev BookingEvent) string {
	verb := "Booking confirmed"
	if ev.Type == BookingCancelledQueue {
		verb = "Booking cancelled"
	}
	seats := make([]string, len(ev.SeatNumbers))
	for i, s := range ev.SeatNumbers {
		seats[i] = strconv.Itoa(s)
	}
	return fmt.Sprintf("[%s] %s | booking_id=%s | user_id=%d | event_id=%d | tickets=%d | seats=[%s]\n",
		ev.OccurredAt.UTC().Format(time.RFC3339), verb, ev.BookingID, ev.UserID, ev.EventID, ev.TicketCount, strings.Join(seats, ","))
}
