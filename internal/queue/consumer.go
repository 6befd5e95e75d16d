package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "log/slog"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/sethvargo/go-retry"
)

// MailSender delivers one mail.
type MailSender interface {
    Send(ctx context.Context, m Mail) error
}

// ResetMailConsumer reads PasswordResetRequested events and hands them to
// the mail relay.
type ResetMailConsumer struct {
    url    string
    mailer MailSender
    log    *slog.Logger
}

// NewResetMailConsumer returns a consumer for the broker at url.
func NewResetMailConsumer(url string, mailer MailSender, log *slog.Logger) *ResetMailConsumer {
    return &ResetMailConsumer{url: url, mailer: mailer, log: log}
}

// Run connects to the broker and consumes until ctx is cancelled.  Dial
// failures are retried with capped exponential backoff and a dropped
// connection triggers a reconnect; Run only returns once ctx is done.
func (c *ResetMailConsumer) Run(ctx context.Context) error {
    for {
        var conn *amqp.Connection
        backoff := retry.WithCappedDuration(30*time.Second, retry.NewExponential(time.Second))
        err := retry.Do(ctx, backoff, func(ctx context.Context) error {
            var err error
            conn, err = amqp.Dial(c.url)
            if err != nil {
                c.log.Warn("reset-mail: failed to dial broker, retrying", "error", err)
                return retry.RetryableError(err)
            }
            return nil
        })
        if err != nil {
            return ctx.Err()
        }

        err = c.consumeLoop(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        c.log.Warn("reset-mail: consume loop ended, reconnecting", "error", err)
    }
}

func (c *ResetMailConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(10, 0, false); err != nil {
        c.log.Warn("reset-mail: set QoS failed", "error", err)
    }
    if err := declare(ch, PasswordResetQueue); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(PasswordResetQueue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := c.HandleMessage(ctx, d.Body); err != nil {
                c.log.Error("reset-mail: handle message failed", "error", err)
                _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
                continue
            }
            _ = d.Ack(false)
        }
    }
}

// HandleMessage decodes one delivery body and sends the reset mail.
func (c *ResetMailConsumer) HandleMessage(ctx context.Context, body []byte) error {
    var ev PasswordResetRequested
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.Email == "" {
        return errors.New("event without recipient")
    }
    err := c.mailer.Send(ctx, Mail{
        To:       ev.Email,
        Template: ResetTemplate,
        Data: map[string]any{
            "name":      ev.Name,
            "resetUrl":  ev.ResetURL,
            "expiresAt": ev.ExpiresAt.UTC().Format(time.RFC3339),
        },
    })
    if err != nil {
        return fmt.Errorf("send mail: %w", err)
    }
    c.log.Info("reset-mail: sent", "to", ev.Email)
    return nil
}
