package messaging

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GoCodeAlone/desktopagent"
	"github.com/google/uuid"
)

// emitFunc forwards engine events to the owning module.
type emitFunc func(ctx context.Context, eventType string, data map[string]any)

// MemoryEngine implements Engine in process. Every subscription owns a
// buffered queue drained by its own goroutine, so deliveries to one
// subscriber keep publication order.
type MemoryEngine struct {
	config        *Config
	logger        desktopagent.Logger
	subscriptions map[string]map[string]*memorySubscription
	services      map[string]*memoryService
	topicMutex    sync.RWMutex
	patterns      *patternCache
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	isStarted     atomic.Bool
	emit          emitFunc
	stats         counters
}

type memorySubscription struct {
	id        string
	topic     string
	handler   Handler
	messageCh chan Message
	done      chan struct{}
	finished  chan struct{}
	cancelled bool
	mutex     sync.RWMutex
	engine    *MemoryEngine
}

func (s *memorySubscription) Topic() string { return s.topic }
func (s *memorySubscription) ID() string    { return s.id }

func (s *memorySubscription) isCancelled() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.cancelled
}

// Cancel removes the subscription and waits briefly for an in-flight
// delivery to finish.
func (s *memorySubscription) Cancel() error {
	s.mutex.Lock()
	if s.cancelled {
		s.mutex.Unlock()
		return nil
	}
	s.cancelled = true
	close(s.done)
	s.mutex.Unlock()

	s.engine.removeSubscription(s)

	select {
	case <-s.finished:
	case <-time.After(100 * time.Millisecond):
	}
	return nil
}

type memoryService struct {
	id      string
	topic   string
	handler ServiceHandler
	once    sync.Once
	engine  *MemoryEngine
}

func (s *memoryService) Topic() string { return s.topic }
func (s *memoryService) ID() string    { return s.id }

func (s *memoryService) Cancel() error {
	s.once.Do(func() {
		s.engine.topicMutex.Lock()
		if current, ok := s.engine.services[s.topic]; ok && current == s {
			delete(s.engine.services, s.topic)
		}
		s.engine.topicMutex.Unlock()
		s.engine.emitEvent(context.Background(), EventTypeServiceUnregistered, map[string]any{"topic": s.topic})
	})
	return nil
}

// NewMemoryEngine creates an in-memory engine.
func NewMemoryEngine(config *Config, logger desktopagent.Logger) *MemoryEngine {
	if logger == nil {
		logger = desktopagent.NopLogger()
	}
	return &MemoryEngine{
		config:        config,
		logger:        logger,
		subscriptions: make(map[string]map[string]*memorySubscription),
		services:      make(map[string]*memoryService),
		patterns:      newPatternCache(),
	}
}

func (m *MemoryEngine) setEmitter(emit emitFunc) {
	m.emit = emit
}

func (m *MemoryEngine) emitEvent(ctx context.Context, eventType string, data map[string]any) {
	if m.emit != nil {
		m.emit(ctx, eventType, data)
	}
}

// Start prepares the engine. It is idempotent.
func (m *MemoryEngine) Start(ctx context.Context) error {
	if m.isStarted.Load() {
		return nil
	}
	m.ctx, m.cancel = context.WithCancel(context.WithoutCancel(ctx))
	m.isStarted.Store(true)
	return nil
}

// Stop cancels every subscription and waits for their goroutines.
func (m *MemoryEngine) Stop(ctx context.Context) error {
	if !m.isStarted.Load() {
		return nil
	}
	m.isStarted.Store(false)
	m.cancel()

	m.topicMutex.Lock()
	m.subscriptions = make(map[string]map[string]*memorySubscription)
	m.services = make(map[string]*memoryService)
	m.topicMutex.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ErrFabricShutdownTimeout
	}
}

// Publish delivers payload to every subscription whose topic or pattern
// matches.
func (m *MemoryEngine) Publish(ctx context.Context, topic string, payload []byte) error {
	if !m.isStarted.Load() {
		return ErrFabricNotStarted
	}
	if err := validateConcreteTopic(topic); err != nil {
		return err
	}

	msg := Message{
		ID:        messageID(ctx),
		Topic:     topic,
		Payload:   slices.Clone(payload),
		CreatedAt: time.Now(),
	}
	m.stats.published.Add(1)

	m.topicMutex.RLock()
	var matching []*memorySubscription
	for subscriptionTopic, subs := range m.subscriptions {
		if !m.patterns.matches(topic, subscriptionTopic) {
			continue
		}
		for _, sub := range subs {
			matching = append(matching, sub)
		}
	}
	m.topicMutex.RUnlock()

	for _, sub := range matching {
		if sub.isCancelled() {
			continue
		}
		if !m.enqueue(ctx, sub, msg) {
			m.stats.dropped.Add(1)
			m.logger.Warn("Dropped message for slow subscriber", "topic", topic, "subscription", sub.id)
		}
	}
	return nil
}

func (m *MemoryEngine) enqueue(ctx context.Context, sub *memorySubscription, msg Message) bool {
	switch m.config.DeliveryMode {
	case DeliveryModeDrop:
		select {
		case sub.messageCh <- msg:
			return true
		default:
			return false
		}
	case DeliveryModeTimeout:
		timer := time.NewTimer(m.config.PublishBlockTimeout)
		defer timer.Stop()
		select {
		case sub.messageCh <- msg:
			return true
		case <-timer.C:
			return false
		case <-sub.done:
			return false
		case <-ctx.Done():
			return false
		}
	default:
		select {
		case sub.messageCh <- msg:
			return true
		case <-sub.done:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

// Subscribe registers handler for topic, which may be a pattern.
func (m *MemoryEngine) Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error) {
	if !m.isStarted.Load() {
		return nil, ErrFabricNotStarted
	}
	if handler == nil {
		return nil, ErrHandlerNil
	}
	if err := validateTopic(topic); err != nil {
		return nil, err
	}

	sub := &memorySubscription{
		id:        uuid.NewString(),
		topic:     topic,
		handler:   handler,
		messageCh: make(chan Message, m.config.BufferSize),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		engine:    m,
	}

	m.topicMutex.Lock()
	isNewTopic := false
	if _, ok := m.subscriptions[topic]; !ok {
		m.subscriptions[topic] = make(map[string]*memorySubscription)
		isNewTopic = true
	}
	m.subscriptions[topic][sub.id] = sub
	m.topicMutex.Unlock()

	if isNewTopic {
		m.emitEvent(ctx, EventTypeTopicCreated, map[string]any{"topic": topic})
	}

	m.wg.Add(1)
	go m.handleMessages(sub)
	return sub, nil
}

func (m *MemoryEngine) removeSubscription(sub *memorySubscription) {
	m.topicMutex.Lock()
	topicDeleted := false
	if subs, ok := m.subscriptions[sub.topic]; ok {
		delete(subs, sub.id)
		if len(subs) == 0 {
			delete(m.subscriptions, sub.topic)
			topicDeleted = true
		}
	}
	m.topicMutex.Unlock()

	if topicDeleted {
		m.emitEvent(context.Background(), EventTypeTopicDeleted, map[string]any{"topic": sub.topic})
	}
}

func (m *MemoryEngine) handleMessages(sub *memorySubscription) {
	defer m.wg.Done()
	defer close(sub.finished)

	for {
		if sub.isCancelled() {
			return
		}
		select {
		case <-m.ctx.Done():
			return
		case <-sub.done:
			return
		case msg := <-sub.messageCh:
			if sub.isCancelled() {
				return
			}
			if err := sub.handler(m.ctx, msg); err != nil {
				m.stats.failed.Add(1)
				m.logger.Error("Message handler failed", "topic", msg.Topic, "subscription", sub.id, "error", err)
				m.emitEvent(m.ctx, EventTypeMessageFailed, map[string]any{
					"topic":          msg.Topic,
					"subscriptionId": sub.id,
					"error":          err.Error(),
				})
			}
			m.stats.delivered.Add(1)
		}
	}
}

// RegisterService installs handler as the single service of topic.
func (m *MemoryEngine) RegisterService(ctx context.Context, topic string, handler ServiceHandler) (Subscription, error) {
	if !m.isStarted.Load() {
		return nil, ErrFabricNotStarted
	}
	if handler == nil {
		return nil, ErrHandlerNil
	}
	if err := validateConcreteTopic(topic); err != nil {
		return nil, err
	}

	svc := &memoryService{id: uuid.NewString(), topic: topic, handler: handler, engine: m}

	m.topicMutex.Lock()
	if _, exists := m.services[topic]; exists {
		m.topicMutex.Unlock()
		return nil, ErrDuplicateService
	}
	m.services[topic] = svc
	m.topicMutex.Unlock()

	m.emitEvent(ctx, EventTypeServiceRegistered, map[string]any{"topic": topic})
	return svc, nil
}

// Invoke calls the service of topic in the caller's goroutine.
func (m *MemoryEngine) Invoke(ctx context.Context, topic string, payload []byte) ([]byte, error) {
	if !m.isStarted.Load() {
		return nil, ErrFabricNotStarted
	}
	if err := validateConcreteTopic(topic); err != nil {
		return nil, err
	}

	m.topicMutex.RLock()
	svc, ok := m.services[topic]
	m.topicMutex.RUnlock()
	if !ok {
		return nil, ErrNoService
	}

	m.stats.invocations.Add(1)
	ctx, cancel := withInvokeTimeout(ctx, m.config.InvokeTimeout)
	defer cancel()

	type result struct {
		body []byte
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		body, err := svc.handler(ctx, slices.Clone(payload))
		resultCh <- result{body: body, err: err}
	}()

	select {
	case r := <-resultCh:
		if r.err != nil {
			m.stats.failed.Add(1)
			return nil, &InvokeError{Topic: topic, Message: r.err.Error()}
		}
		return r.body, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Topics returns the topics and patterns with subscribers.
func (m *MemoryEngine) Topics() []string {
	m.topicMutex.RLock()
	defer m.topicMutex.RUnlock()

	topics := make([]string, 0, len(m.subscriptions))
	for topic := range m.subscriptions {
		topics = append(topics, topic)
	}
	slices.Sort(topics)
	return topics
}

// SubscriberCount returns the number of subscriptions on exactly topic.
func (m *MemoryEngine) SubscriberCount(topic string) int {
	m.topicMutex.RLock()
	defer m.topicMutex.RUnlock()
	return len(m.subscriptions[topic])
}

// Services returns the topics with a registered service.
func (m *MemoryEngine) Services() []string {
	m.topicMutex.RLock()
	defer m.topicMutex.RUnlock()

	topics := make([]string, 0, len(m.services))
	for topic := range m.services {
		topics = append(topics, topic)
	}
	slices.Sort(topics)
	return topics
}

// Stats returns cumulative delivery counters.
func (m *MemoryEngine) Stats() Stats {
	return m.stats.snapshot()
}

func withInvokeTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
