package webhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSPublisher публикует уведомления в шину NATS, subject = <prefix>.<kind>
type NATSPublisher struct {
	conn          *nats.Conn
	subjectPrefix string
}

func NewNATSPublisher(conn *nats.Conn, subjectPrefix string) *NATSPublisher {
	return &NATSPublisher{
		conn:          conn,
		subjectPrefix: subjectPrefix,
	}
}

// Subject возвращает subject для события
func (p *NATSPublisher) Subject(event Event) string {
	return fmt.Sprintf("%s.%s", p.subjectPrefix, event.Kind)
}

func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.conn == nil || !p.conn.IsConnected() {
		return fmt.Errorf("failed to publish notification event to NATS: not connected")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal notification event: %w", err)
	}

	msg := nats.NewMsg(p.Subject(event))
	msg.Data = payload
	msg.Header.Set(nats.MsgIdHdr, event.ID.String())
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish notification event to NATS: %w", err)
	}
	return nil
}
