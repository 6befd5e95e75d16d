package queue

import (
    "context"
    "encoding/json"
    "log/slog"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/samber/oops"
)

// Publisher publishes JSON events to durable queues on the default
// exchange.  Each publish dials its own connection, so a broker outage only
// fails the publishes issued while it lasts.
type Publisher struct {
    url     string
    log     *slog.Logger
    timeout time.Duration
}

// NewPublisher returns a Publisher for the broker at url.
func NewPublisher(url string, log *slog.Logger) *Publisher {
    return &Publisher{url: url, log: log, timeout: 5 * time.Second}
}

// PublishAudit publishes e to the audit queue.
func (p *Publisher) PublishAudit(ctx context.Context, e AuditEvent) error {
    return p.Publish(ctx, AuditQueue, e)
}

// PublishPasswordReset publishes e to the password reset queue.
func (p *Publisher) PublishPasswordReset(ctx context.Context, e PasswordResetRequested) error {
    return p.Publish(ctx, PasswordResetQueue, e)
}

// Publish marshals event and publishes it as a persistent message to
// queueName, declaring the queue first.  Errors are returned wrapped so the
// caller decides whether a failed publish matters.
func (p *Publisher) Publish(ctx context.Context, queueName string, event any) error {
    msg, err := newPublishing(event, time.Now())
    if err != nil {
        return oops.Code("QUEUE_MARSHAL_FAILED").With("queue", queueName).Wrap(err)
    }

    ctx, cancel := context.WithTimeout(ctx, p.timeout)
    defer cancel()

    conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(p.timeout)})
    if err != nil {
        return oops.Code("QUEUE_DIAL_FAILED").With("queue", queueName).Wrap(err)
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        return oops.Code("QUEUE_CHANNEL_FAILED").With("queue", queueName).Wrap(err)
    }
    defer func() { _ = ch.Close() }()

    if err := declare(ch, queueName); err != nil {
        return oops.Code("QUEUE_DECLARE_FAILED").With("queue", queueName).Wrap(err)
    }

    if err := ch.PublishWithContext(ctx,
        "",        // default exchange
        queueName, // routing key = queue name
        false,     // mandatory
        false,     // immediate
        msg,
    ); err != nil {
        return oops.Code("QUEUE_PUBLISH_FAILED").With("queue", queueName).Wrap(err)
    }
    p.log.Debug("event published", "queue", queueName)
    return nil
}

// declare ensures the queue exists (idempotent).  Durable so messages
// survive broker restarts.
func declare(ch *amqp.Channel, name string) error {
    _, err := ch.QueueDeclare(
        name,  // name
        true,  // durable
        false, // autoDelete
        false, // exclusive
        false, // noWait
        nil,   // args
    )
    return err
}

func newPublishing(event any, now time.Time) (amqp.Publishing, error) {
    body, err := json.Marshal(event)
    if err != nil {
        return amqp.Publishing{}, err
    }
    return amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent, // store on disk
        Timestamp:    now.UTC(),
        Body:         body,
    }, nil
}
