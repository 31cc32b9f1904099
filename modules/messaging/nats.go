package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GoCodeAlone/desktopagent"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// NATSEngine implements Engine over NATS core subjects. Topics are mapped to
// subjects segment by segment and Invoke uses native request/reply.
//
// Duplicate service registrations are only detected within one process;
// NATS itself lets several responders share a subject.
type NATSEngine struct {
	config        *Config
	logger        desktopagent.Logger
	conn          *nats.Conn
	subscriptions map[string]map[string]*natsSubscription
	services      map[string]*natsSubscription
	topicMutex    sync.RWMutex
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	isStarted     atomic.Bool
	stats         counters
}

type natsSubscription struct {
	id      string
	topic   string
	service bool
	sub     *nats.Subscription
	once    sync.Once
	engine  *NATSEngine
}

func (s *natsSubscription) Topic() string { return s.topic }
func (s *natsSubscription) ID() string    { return s.id }

func (s *natsSubscription) Cancel() error {
	var err error
	s.once.Do(func() {
		if s.sub != nil && s.sub.IsValid() {
			err = s.sub.Unsubscribe()
		}
		s.engine.removeSubscription(s)
	})
	return err
}

type natsReply struct {
	Payload []byte `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewNATSEngine creates a NATS engine. The connection is opened in Start.
func NewNATSEngine(config *Config, logger desktopagent.Logger) *NATSEngine {
	if logger == nil {
		logger = desktopagent.NopLogger()
	}
	return &NATSEngine{
		config:        config,
		logger:        logger,
		subscriptions: make(map[string]map[string]*natsSubscription),
		services:      make(map[string]*natsSubscription),
	}
}

// Start connects to the NATS server.
func (n *NATSEngine) Start(ctx context.Context) error {
	if n.isStarted.Load() {
		return nil
	}
	conn, err := nats.Connect(n.config.NATS.URL,
		nats.Name(n.config.NATS.Name),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			n.logger.Error("NATS async error", "subject", subject, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	n.conn = conn
	n.ctx, n.cancel = context.WithCancel(context.WithoutCancel(ctx))
	n.isStarted.Store(true)
	return nil
}

// Stop unsubscribes everything and drains the connection.
func (n *NATSEngine) Stop(ctx context.Context) error {
	if !n.isStarted.Load() {
		return nil
	}
	n.isStarted.Store(false)

	n.topicMutex.RLock()
	var all []*natsSubscription
	for _, subs := range n.subscriptions {
		for _, sub := range subs {
			all = append(all, sub)
		}
	}
	for _, svc := range n.services {
		all = append(all, svc)
	}
	n.topicMutex.RUnlock()

	for _, sub := range all {
		_ = sub.Cancel()
	}
	n.cancel()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ErrFabricShutdownTimeout
	}

	n.conn.Close()
	return nil
}

// Publish sends payload to topic.
func (n *NATSEngine) Publish(ctx context.Context, topic string, payload []byte) error {
	if !n.isStarted.Load() {
		return ErrFabricNotStarted
	}
	if err := validateConcreteTopic(topic); err != nil {
		return err
	}
	subject, err := natsSubject(topic)
	if err != nil {
		return err
	}

	data, err := json.Marshal(Message{
		ID:        messageID(ctx),
		Topic:     topic,
		Payload:   payload,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncodePayload, err)
	}
	if err := n.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to NATS: %w", err)
	}
	n.stats.published.Add(1)
	return nil
}

// Subscribe registers handler for topic. The subscription is flushed to the
// server before returning.
func (n *NATSEngine) Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error) {
	if !n.isStarted.Load() {
		return nil, ErrFabricNotStarted
	}
	if handler == nil {
		return nil, ErrHandlerNil
	}
	if err := validateTopic(topic); err != nil {
		return nil, err
	}
	subject, err := natsSubject(topic)
	if err != nil {
		return nil, err
	}

	sub := &natsSubscription{id: uuid.NewString(), topic: topic, engine: n}
	sub.sub, err = n.conn.Subscribe(subject, func(raw *nats.Msg) {
		var msg Message
		if err := json.Unmarshal(raw.Data, &msg); err != nil {
			n.logger.Error("Failed to decode NATS message", "subject", raw.Subject, "error", err)
			return
		}
		if msg.Topic == "" {
			msg.Topic = topicFromSubject(raw.Subject)
		}
		if err := handler(n.ctx, msg); err != nil {
			n.stats.failed.Add(1)
			n.logger.Error("Message handler failed", "topic", msg.Topic, "subscription", sub.id, "error", err)
		}
		n.stats.delivered.Add(1)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	if err := n.conn.FlushWithContext(ctx); err != nil {
		_ = sub.sub.Unsubscribe()
		return nil, fmt.Errorf("failed to flush subscription %s: %w", topic, err)
	}

	n.topicMutex.Lock()
	if _, ok := n.subscriptions[topic]; !ok {
		n.subscriptions[topic] = make(map[string]*natsSubscription)
	}
	n.subscriptions[topic][sub.id] = sub
	n.topicMutex.Unlock()
	return sub, nil
}

func (n *NATSEngine) removeSubscription(sub *natsSubscription) {
	n.topicMutex.Lock()
	defer n.topicMutex.Unlock()

	if sub.service {
		if current, ok := n.services[sub.topic]; ok && current == sub {
			delete(n.services, sub.topic)
		}
		return
	}
	if subs, ok := n.subscriptions[sub.topic]; ok {
		delete(subs, sub.id)
		if len(subs) == 0 {
			delete(n.subscriptions, sub.topic)
		}
	}
}

// RegisterService answers requests on topic.
func (n *NATSEngine) RegisterService(ctx context.Context, topic string, handler ServiceHandler) (Subscription, error) {
	if !n.isStarted.Load() {
		return nil, ErrFabricNotStarted
	}
	if handler == nil {
		return nil, ErrHandlerNil
	}
	if err := validateConcreteTopic(topic); err != nil {
		return nil, err
	}
	subject, err := natsSubject(topic)
	if err != nil {
		return nil, err
	}

	svc := &natsSubscription{id: uuid.NewString(), topic: topic, service: true, engine: n}

	n.topicMutex.Lock()
	if _, exists := n.services[topic]; exists {
		n.topicMutex.Unlock()
		return nil, ErrDuplicateService
	}
	n.services[topic] = svc
	n.topicMutex.Unlock()

	svc.sub, err = n.conn.Subscribe(subject, func(raw *nats.Msg) {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.answer(topic, raw, handler)
		}()
	})
	if err == nil {
		err = n.conn.FlushWithContext(ctx)
	}
	if err != nil {
		_ = svc.Cancel()
		return nil, fmt.Errorf("failed to register service %s: %w", topic, err)
	}
	return svc, nil
}

func (n *NATSEngine) answer(topic string, raw *nats.Msg, handler ServiceHandler) {
	ctx, cancel := withInvokeTimeout(n.ctx, n.config.InvokeTimeout)
	defer cancel()

	var reply natsReply
	body, err := handler(ctx, raw.Data)
	if err != nil {
		reply.Error = err.Error()
	} else {
		reply.Payload = body
	}

	data, err := json.Marshal(reply)
	if err != nil {
		n.logger.Error("Failed to encode service reply", "topic", topic, "error", err)
		return
	}
	if err := raw.Respond(data); err != nil {
		n.logger.Error("Failed to send service reply", "topic", topic, "error", err)
	}
}

// Invoke sends payload to the service of topic and waits for its reply.
func (n *NATSEngine) Invoke(ctx context.Context, topic string, payload []byte) ([]byte, error) {
	if !n.isStarted.Load() {
		return nil, ErrFabricNotStarted
	}
	if err := validateConcreteTopic(topic); err != nil {
		return nil, err
	}
	subject, err := natsSubject(topic)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withInvokeTimeout(ctx, n.config.InvokeTimeout)
	defer cancel()

	n.stats.invocations.Add(1)
	raw, err := n.conn.RequestWithContext(ctx, subject, payload)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return nil, ErrNoService
		}
		return nil, fmt.Errorf("request to %s failed: %w", topic, err)
	}

	var reply natsReply
	if err := json.Unmarshal(raw.Data, &reply); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodePayload, err)
	}
	if reply.Error != "" {
		n.stats.failed.Add(1)
		return nil, &InvokeError{Topic: topic, Message: reply.Error}
	}
	return reply.Payload, nil
}

// Topics returns the topics and patterns with local subscribers.
func (n *NATSEngine) Topics() []string {
	n.topicMutex.RLock()
	defer n.topicMutex.RUnlock()

	topics := make([]string, 0, len(n.subscriptions))
	for topic := range n.subscriptions {
		topics = append(topics, topic)
	}
	slices.Sort(topics)
	return topics
}

// SubscriberCount returns the number of local subscriptions on topic.
func (n *NATSEngine) SubscriberCount(topic string) int {
	n.topicMutex.RLock()
	defer n.topicMutex.RUnlock()
	return len(n.subscriptions[topic])
}

// Services returns the topics served by this process.
func (n *NATSEngine) Services() []string {
	n.topicMutex.RLock()
	defer n.topicMutex.RUnlock()

	topics := make([]string, 0, len(n.services))
	for topic := range n.services {
		topics = append(topics, topic)
	}
	slices.Sort(topics)
	return topics
}

// Stats returns cumulative delivery counters.
func (n *NATSEngine) Stats() Stats {
	return n.stats.snapshot()
}
