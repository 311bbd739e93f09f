package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"eventhub/internal/domain"
)

// AMQP publishes run events to a topic exchange with routing key
// "<type>.<source>".
type AMQP struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	Now      func() time.Time
}

func DialAMQP(url, exchange string) (*AMQP, error) {
	if exchange == "" {
		exchange = "eventhub"
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQP{conn: conn, channel: ch, exchange: exchange}, nil
}

// RoutingKey builds the topic key for an event about a source.
func RoutingKey(evtType, source string) string {
	return evtType + "." + routingSafe(source)
}

func (a *AMQP) Notify(ctx context.Context, s domain.RunSummary) error {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	evt := NewRunEvent(s, now())
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err = a.channel.PublishWithContext(ctx, a.exchange, RoutingKey(evt.Type, s.Source), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    evt.TS,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", a.exchange, err)
	}
	return nil
}

func (a *AMQP) Close() {
	if a.channel != nil {
		a.channel.Close()
	}
	if a.conn != nil {
		a.conn.Close()
	}
}

func routingSafe(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
