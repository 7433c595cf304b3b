package events

import (
	"context"
	"encoding/json"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the fanout exchange dashboards bind their queues to.
const DefaultExchange = "orders.invalidations"

// Publisher is the part of an AMQP channel the broadcaster uses.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPBroadcaster publishes invalidation notices to a fanout exchange.
type AMQPBroadcaster struct {
	exchange string
	channel  Publisher
	conn     *amqp.Connection
}

// NewAMQPBroadcaster publishes on an already opened channel.
func NewAMQPBroadcaster(channel Publisher, exchange string) *AMQPBroadcaster {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &AMQPBroadcaster{exchange: exchange, channel: channel}
}

// DialAMQP connects to the broker and declares a durable fanout exchange.
func DialAMQP(url, exchange string) (*AMQPBroadcaster, error) {
	if exchange == "" {
		exchange = DefaultExchange
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
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	b := NewAMQPBroadcaster(ch, exchange)
	b.conn = conn
	return b, nil
}

// Broadcast publishes notice as a persistent JSON message.
func (b *AMQPBroadcaster) Broadcast(ctx context.Context, notice Notice) error {
	body, err := json.Marshal(notice)
	if err != nil {
		return err
	}
	return b.channel.PublishWithContext(ctx, b.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    notice.ID.String(),
		Type:         notice.Type,
		Timestamp:    notice.At,
		Body:         body,
	})
}

// Close closes the channel and, when DialAMQP opened it, the connection.
func (b *AMQPBroadcaster) Close() error {
	err := b.channel.Close()
	if b.conn != nil {
		err = errors.Join(err, b.conn.Close())
	}
	return err
}
