package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

// Outcome is the message emitted once a pipeline run reaches its final state.
type Outcome struct {
	CallID       string    `json:"callId"`
	AgentID      string    `json:"agentId"`
	Status       string    `json:"status"`
	OverallScore *float64  `json:"overallScore,omitempty"`
	Error        string    `json:"error,omitempty"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// RoutingKey is "call.<status>".
func (o Outcome) RoutingKey() string { return "call." + o.Status }

// Publisher delivers outcomes to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, o Outcome) error
}

// Noop discards outcomes.
type Noop struct{}

func (Noop) Publish(context.Context, Outcome) error { return nil }

// AMQPPublisher publishes outcomes as persistent JSON messages on a topic exchange.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// DialAMQP connects to url and declares a durable topic exchange.
func DialAMQP(url, exchange string) (*AMQPPublisher, error) {
	if url == "" || exchange == "" {
		return nil, errors.New("notify: amqp url and exchange are required")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, o Outcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(o)
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    o.OccurredAt,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.Publish(p.exchange, o.RoutingKey(), false, false, msg)
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.Close(); err != nil {
		_ = p.conn.Close()
		return err
	}
	return p.conn.Close()
}
