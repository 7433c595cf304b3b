package events

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// DefaultSubject is the NATS subject order writers publish mutations on.
const DefaultSubject = "orders.events"

// EventHandler consumes one raw event payload.
type EventHandler interface {
	Handle(ctx context.Context, data []byte) error
}

// NATSConfig locates the event stream. Queue, when set, load balances
// events across replicas sharing a cache store.
type NATSConfig struct {
	URL     string
	Subject string
	Queue   string
}

// NATSSubscriber feeds order events from NATS into a handler.
type NATSSubscriber struct {
	cfg     NATSConfig
	handler EventHandler
	logger  logrus.FieldLogger

	mu   sync.Mutex
	conn *nats.Conn
	sub  *nats.Subscription
	ctx  context.Context
}

// NewNATSSubscriber builds a subscriber. Nothing connects until Start.
func NewNATSSubscriber(cfg NATSConfig, handler EventHandler, logger logrus.FieldLogger) *NATSSubscriber {
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}
	return &NATSSubscriber{
		cfg:     cfg,
		handler: handler,
		logger:  logger.WithField("component", "nats"),
		ctx:     context.Background(),
	}
}

// Start connects and subscribes. Messages are handled with ctx until Close.
func (s *NATSSubscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return errors.New("nats subscriber already started")
	}

	conn, err := nats.Connect(s.cfg.URL, nats.Name("orders-master"))
	if err != nil {
		return err
	}

	s.ctx = ctx
	var sub *nats.Subscription
	if s.cfg.Queue != "" {
		sub, err = conn.QueueSubscribe(s.cfg.Subject, s.cfg.Queue, s.onMessage)
	} else {
		sub, err = conn.Subscribe(s.cfg.Subject, s.onMessage)
	}
	if err != nil {
		conn.Close()
		return err
	}

	s.conn, s.sub = conn, sub
	s.logger.WithFields(logrus.Fields{
		"subject": s.cfg.Subject,
		"queue":   s.cfg.Queue,
	}).Info("subscribed to order events")
	return nil
}

func (s *NATSSubscriber) onMessage(msg *nats.Msg) {
	if err := s.handler.Handle(s.context(), msg.Data); err != nil {
		s.logger.WithField("subject", msg.Subject).WithError(err).Debug("order event not applied")
	}
}

func (s *NATSSubscriber) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// Close unsubscribes and drains the connection. It is safe to call twice.
func (s *NATSSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}

	var err error
	if s.sub != nil {
		err = s.sub.Unsubscribe()
	}
	if drainErr := s.conn.Drain(); drainErr != nil {
		s.conn.Close()
		err = errors.Join(err, drainErr)
	}
	s.conn, s.sub = nil, nil
	return err
}
