package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrBufferFull is returned when an event cannot be queued for publishing
// because the broker is slower than the request rate.
var ErrBufferFull = errors.New("publish buffer full")

type outbound struct {
	queue string
	body  []byte
}

// Publisher sends booking events to RabbitMQ.  Events are buffered in memory
// and published by Run on its own goroutine, so callers never wait on the
// broker.  A failed publish is logged and dropped; the booking change that
// produced it is already committed.
type Publisher struct {
	url     string
	log     *zap.Logger
	timeout time.Duration
	msgs    chan outbound
}

// NewPublisher returns a publisher for the broker at url with room for
// buffer pending events.
func NewPublisher(url string, buffer int, log *zap.Logger) *Publisher {
	if buffer <= 0 {
		buffer = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{url: url, log: log, timeout: 5 * time.Second, msgs: make(chan outbound, buffer)}
}

// BookingConfirmed queues ev for the booking.confirmed queue.
func (p *Publisher) BookingConfirmed(_ context.Context, ev BookingConfirmedEvent) error {
	return p.enqueue(BookingConfirmedQueue, ev)
}

// PaymentRefunded queues ev for the payment.refunded queue.
func (p *Publisher) PaymentRefunded(_ context.Context, ev PaymentRefundedEvent) error {
	return p.enqueue(PaymentRefundedQueue, ev)
}

func (p *Publisher) enqueue(queue string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case p.msgs <- outbound{queue: queue, body: body}:
		return nil
	default:
		return ErrBufferFull
	}
}

// Run publishes queued events until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-p.msgs:
			pctx, cancel := context.WithTimeout(context.Background(), p.timeout)
			if err := p.publish(pctx, m); err != nil {
				p.log.Warn("rabbitmq: publish failed", zap.String("queue", m.queue), zap.Error(err))
			}
			cancel()
		}
	}
}

// publish dials the broker, makes sure the queue exists and sends one
// persistent message.
func (p *Publisher) publish(ctx context.Context, m outbound) error {
	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(p.timeout)})
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	// durable so messages survive broker restarts
	if _, err := ch.QueueDeclare(m.queue, true, false, false, false, nil); err != nil {
		return err
	}

	return ch.PublishWithContext(ctx,
		"",      // default exchange
		m.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         m.body,
		})
}
