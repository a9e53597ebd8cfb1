package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// LogSender writes messages to the log instead of delivering them. It backs
// both channels when no broker is configured.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "notification").Logger()}
}

func (s *LogSender) SendEmail(_ context.Context, to, subject, _ string) error {
	s.logger.Info().Str("channel", string(ChannelEmail)).Str("to", to).Str("subject", subject).Msg("notification sent")
	return nil
}

func (s *LogSender) SendSMS(_ context.Context, to, body string) error {
	s.logger.Info().Str("channel", string(ChannelSMS)).Str("to", to).Int("length", len(body)).Msg("notification sent")
	return nil
}

// Message is the JSON document published for delivery workers.
type Message struct {
	Channel Channel   `json:"channel"`
	To      string    `json:"to"`
	Subject string    `json:"subject,omitempty"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sent_at"`
}

// RoutingKey is the topic key a message is published under.
func (m Message) RoutingKey() string {
	return "notify." + string(m.Channel)
}

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPSender publishes messages to a topic exchange. Delivery to the patient
// is done by whichever worker consumes notify.email and notify.sms.
type AMQPSender struct {
	conn     *amqp.Connection
	mu       sync.Mutex
	ch       publisher
	exchange string
}

func NewAMQPSender(url, exchange string) (*AMQPSender, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPSender{conn: conn, ch: ch, exchange: exchange}, nil
}

func (s *AMQPSender) SendEmail(ctx context.Context, to, subject, body string) error {
	return s.publish(ctx, Message{Channel: ChannelEmail, To: to, Subject: subject, Body: body})
}

func (s *AMQPSender) SendSMS(ctx context.Context, to, body string) error {
	return s.publish(ctx, Message{Channel: ChannelSMS, To: to, Body: body})
}

func (s *AMQPSender) publish(ctx context.Context, m Message) error {
	m.SentAt = time.Now().UTC()
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}

	// amqp channels must not be shared between concurrent publishers.
	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.ch.PublishWithContext(ctx, s.exchange, m.RoutingKey(), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    m.SentAt,
		Body:         b,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", m.RoutingKey(), err)
	}
	return nil
}

func (s *AMQPSender) Close() error {
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
