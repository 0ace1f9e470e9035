// Package bus fans transcript events out over NATS so other services can
// follow a game without polling the database.
package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/DoyleJ11/exposed-backend/internal/store"
)

func Connect(url, token string, log *zap.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("exposed-backend"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return nc, nil
}

// rawPublisher is the slice of *nats.Conn the publisher needs.
type rawPublisher interface {
	Publish(subject string, data []byte) error
}

type Publisher struct {
	conn    rawPublisher
	subject string
}

func NewPublisher(conn rawPublisher, subject string) *Publisher {
	return &Publisher{conn: conn, subject: subject}
}

// Subject is the per-game subject, e.g. exposed.transcript.<game_id>.
func (p *Publisher) Subject(gameID string) string {
	return p.subject + "." + gameID
}

func (p *Publisher) Publish(ctx context.Context, e store.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return p.conn.Publish(p.Subject(e.GameID), data)
}
