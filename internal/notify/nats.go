package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"

	"eventhub/internal/domain"
)

// headerCarrier adapts nats.Msg headers for trace propagation.
type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *headerCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// NATS publishes run events on "<prefix>.<type>".
type NATS struct {
	Conn   *nats.Conn
	Prefix string
	Now    func() time.Time
}

func DialNATS(url, prefix string) (*NATS, error) {
	nc, err := nats.Connect(url, nats.Name("eventhub"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	if prefix == "" {
		prefix = "eventhub"
	}
	return &NATS{Conn: nc, Prefix: prefix}, nil
}

func (n *NATS) Subject(evtType string) string {
	return n.Prefix + "." + evtType
}

func (n *NATS) Notify(ctx context.Context, s domain.RunSummary) error {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	evt := NewRunEvent(s, now())
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	msg := &nats.Msg{Subject: n.Subject(evt.Type), Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
	if err := n.Conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	return nil
}

func (n *NATS) Close() {
	if n.Conn != nil {
		n.Conn.Close()
	}
}
