package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GoCodeAlone/desktopagent"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisEngine implements Engine over Redis pub/sub so several agent
// processes can share one fabric.
//
// Services are claimed with SETNX on "<keyPrefix>service:<topic>" and listen
// on "<keyPrefix>request:<topic>". Invoke publishes a request carrying a
// private reply channel and waits for the answer there.
type RedisEngine struct {
	config        *Config
	logger        desktopagent.Logger
	client        *redis.Client
	nodeID        string
	subscriptions map[string]map[string]*redisSubscription
	services      map[string]*redisSubscription
	topicMutex    sync.RWMutex
	patterns      *patternCache
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	isStarted     atomic.Bool
	stats         counters
}

type redisSubscription struct {
	id        string
	topic     string
	service   bool
	pubsub    *redis.PubSub
	done      chan struct{}
	cancelled bool
	mutex     sync.Mutex
	engine    *RedisEngine
}

func (s *redisSubscription) Topic() string { return s.topic }
func (s *redisSubscription) ID() string    { return s.id }

func (s *redisSubscription) Cancel() error {
	s.mutex.Lock()
	if s.cancelled {
		s.mutex.Unlock()
		return nil
	}
	s.cancelled = true
	close(s.done)
	s.mutex.Unlock()

	var err error
	if s.pubsub != nil {
		err = s.pubsub.Close()
	}
	s.engine.removeSubscription(s)
	return err
}

// redisRequest is the envelope sent to a service's request channel.
type redisRequest struct {
	ReplyTo string `json:"replyTo"`
	Payload []byte `json:"payload"`
}

// redisReply is the envelope sent back on the reply channel.
type redisReply struct {
	Payload []byte `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewRedisEngine creates a Redis engine. The connection is checked in Start.
func NewRedisEngine(config *Config, logger desktopagent.Logger) (*RedisEngine, error) {
	if logger == nil {
		logger = desktopagent.NopLogger()
	}

	opts, err := redis.ParseURL(config.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	if config.Redis.PoolSize > 0 {
		opts.PoolSize = config.Redis.PoolSize
	}
	if config.Redis.Username != "" {
		opts.Username = config.Redis.Username
	}
	if config.Redis.Password != "" {
		opts.Password = config.Redis.Password
	}

	return &RedisEngine{
		config:        config,
		logger:        logger,
		client:        redis.NewClient(opts),
		nodeID:        uuid.NewString(),
		subscriptions: make(map[string]map[string]*redisSubscription),
		services:      make(map[string]*redisSubscription),
		patterns:      newPatternCache(),
	}, nil
}

func (r *RedisEngine) serviceKey(topic string) string {
	return r.config.Redis.KeyPrefix + "service:" + topic
}

func (r *RedisEngine) requestChannel(topic string) string {
	return r.config.Redis.KeyPrefix + "request:" + topic
}

// Start verifies the connection.
func (r *RedisEngine) Start(ctx context.Context) error {
	if r.isStarted.Load() {
		return nil
	}
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	r.ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	r.isStarted.Store(true)
	return nil
}

// Stop releases every service claim, closes subscriptions and the client.
func (r *RedisEngine) Stop(ctx context.Context) error {
	if !r.isStarted.Load() {
		return nil
	}
	r.isStarted.Store(false)

	r.topicMutex.RLock()
	var all []*redisSubscription
	for _, subs := range r.subscriptions {
		for _, sub := range subs {
			all = append(all, sub)
		}
	}
	for _, svc := range r.services {
		all = append(all, svc)
	}
	r.topicMutex.RUnlock()

	for _, sub := range all {
		_ = sub.Cancel()
	}
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ErrFabricShutdownTimeout
	}

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("error closing Redis client: %w", err)
	}
	return nil
}

// Publish sends payload to topic.
func (r *RedisEngine) Publish(ctx context.Context, topic string, payload []byte) error {
	if !r.isStarted.Load() {
		return ErrFabricNotStarted
	}
	if err := validateConcreteTopic(topic); err != nil {
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

	if err := r.client.Publish(ctx, topic, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to Redis: %w", err)
	}
	r.stats.published.Add(1)
	return nil
}

// Subscribe registers handler for topic. Patterns use PSUBSCRIBE with a
// coarse Redis glob and are filtered with the fabric's segment rules.
func (r *RedisEngine) Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error) {
	if !r.isStarted.Load() {
		return nil, ErrFabricNotStarted
	}
	if handler == nil {
		return nil, ErrHandlerNil
	}
	if err := validateTopic(topic); err != nil {
		return nil, err
	}

	var pubsub *redis.PubSub
	if isPattern(topic) {
		pubsub = r.client.PSubscribe(ctx, topic)
	} else {
		pubsub = r.client.Subscribe(ctx, topic)
	}
	// wait for the subscription to be confirmed so no publication is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	sub := &redisSubscription{
		id:     uuid.NewString(),
		topic:  topic,
		pubsub: pubsub,
		done:   make(chan struct{}),
		engine: r,
	}

	r.topicMutex.Lock()
	if _, ok := r.subscriptions[topic]; !ok {
		r.subscriptions[topic] = make(map[string]*redisSubscription)
	}
	r.subscriptions[topic][sub.id] = sub
	r.topicMutex.Unlock()

	r.wg.Add(1)
	go r.handleMessages(sub, handler)
	return sub, nil
}

func (r *RedisEngine) removeSubscription(sub *redisSubscription) {
	r.topicMutex.Lock()
	released := false
	if sub.service {
		if current, ok := r.services[sub.topic]; ok && current == sub {
			delete(r.services, sub.topic)
			released = true
		}
	} else if subs, ok := r.subscriptions[sub.topic]; ok {
		delete(subs, sub.id)
		if len(subs) == 0 {
			delete(r.subscriptions, sub.topic)
		}
	}
	r.topicMutex.Unlock()

	if released {
		if err := r.client.Del(context.Background(), r.serviceKey(sub.topic)).Err(); err != nil {
			r.logger.Warn("Failed to release service claim", "topic", sub.topic, "error", err)
		}
	}
}

func (r *RedisEngine) handleMessages(sub *redisSubscription, handler Handler) {
	defer r.wg.Done()

	ch := sub.pubsub.Channel()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-sub.done:
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			var msg Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				r.logger.Error("Failed to decode Redis message", "channel", raw.Channel, "error", err)
				continue
			}
			if !r.patterns.matches(msg.Topic, sub.topic) {
				continue
			}
			if err := handler(r.ctx, msg); err != nil {
				r.stats.failed.Add(1)
				r.logger.Error("Message handler failed", "topic", msg.Topic, "subscription", sub.id, "error", err)
			}
			r.stats.delivered.Add(1)
		}
	}
}

// RegisterService claims topic across every process sharing the Redis
// server and answers requests sent to it.
func (r *RedisEngine) RegisterService(ctx context.Context, topic string, handler ServiceHandler) (Subscription, error) {
	if !r.isStarted.Load() {
		return nil, ErrFabricNotStarted
	}
	if handler == nil {
		return nil, ErrHandlerNil
	}
	if err := validateConcreteTopic(topic); err != nil {
		return nil, err
	}

	claimed, err := r.client.SetNX(ctx, r.serviceKey(topic), r.nodeID, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim service %s: %w", topic, err)
	}
	if !claimed {
		return nil, ErrDuplicateService
	}

	pubsub := r.client.Subscribe(ctx, r.requestChannel(topic))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		r.client.Del(ctx, r.serviceKey(topic))
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	svc := &redisSubscription{
		id:      uuid.NewString(),
		topic:   topic,
		service: true,
		pubsub:  pubsub,
		done:    make(chan struct{}),
		engine:  r,
	}

	r.topicMutex.Lock()
	r.services[topic] = svc
	r.topicMutex.Unlock()

	r.wg.Add(1)
	go r.serveRequests(svc, handler)
	return svc, nil
}

func (r *RedisEngine) serveRequests(svc *redisSubscription, handler ServiceHandler) {
	defer r.wg.Done()

	ch := svc.pubsub.Channel()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-svc.done:
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			var req redisRequest
			if err := json.Unmarshal([]byte(raw.Payload), &req); err != nil || req.ReplyTo == "" {
				r.logger.Error("Discarding malformed service request", "topic", svc.topic, "error", err)
				continue
			}
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				r.answer(svc.topic, req, handler)
			}()
		}
	}
}

func (r *RedisEngine) answer(topic string, req redisRequest, handler ServiceHandler) {
	ctx, cancel := withInvokeTimeout(r.ctx, r.config.InvokeTimeout)
	defer cancel()

	var reply redisReply
	body, err := handler(ctx, req.Payload)
	if err != nil {
		reply.Error = err.Error()
	} else {
		reply.Payload = body
	}

	data, err := json.Marshal(reply)
	if err != nil {
		r.logger.Error("Failed to encode service reply", "topic", topic, "error", err)
		return
	}
	if err := r.client.Publish(ctx, req.ReplyTo, data).Err(); err != nil {
		r.logger.Error("Failed to send service reply", "topic", topic, "error", err)
	}
}

// Invoke sends payload to the service of topic and waits for its reply.
func (r *RedisEngine) Invoke(ctx context.Context, topic string, payload []byte) ([]byte, error) {
	if !r.isStarted.Load() {
		return nil, ErrFabricNotStarted
	}
	if err := validateConcreteTopic(topic); err != nil {
		return nil, err
	}

	ctx, cancel := withInvokeTimeout(ctx, r.config.InvokeTimeout)
	defer cancel()

	exists, err := r.client.Exists(ctx, r.serviceKey(topic)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to look up service %s: %w", topic, err)
	}
	if exists == 0 {
		return nil, ErrNoService
	}
	r.stats.invocations.Add(1)

	replyTo := r.config.Redis.KeyPrefix + "reply:" + uuid.NewString()
	pubsub := r.client.Subscribe(ctx, replyTo)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("failed to subscribe to reply channel: %w", err)
	}

	data, err := json.Marshal(redisRequest{ReplyTo: replyTo, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodePayload, err)
	}
	receivers, err := r.client.Publish(ctx, r.requestChannel(topic), data).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s: %w", topic, err)
	}
	if receivers == 0 {
		return nil, ErrNoService
	}

	select {
	case raw, ok := <-pubsub.Channel():
		if !ok {
			return nil, ErrFabricNotStarted
		}
		var reply redisReply
		if err := json.Unmarshal([]byte(raw.Payload), &reply); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecodePayload, err)
		}
		if reply.Error != "" {
			r.stats.failed.Add(1)
			return nil, &InvokeError{Topic: topic, Message: reply.Error}
		}
		return reply.Payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Topics returns the topics and patterns with local subscribers.
func (r *RedisEngine) Topics() []string {
	r.topicMutex.RLock()
	defer r.topicMutex.RUnlock()

	topics := make([]string, 0, len(r.subscriptions))
	for topic := range r.subscriptions {
		topics = append(topics, topic)
	}
	slices.Sort(topics)
	return topics
}

// SubscriberCount returns the number of local subscriptions on topic.
func (r *RedisEngine) SubscriberCount(topic string) int {
	r.topicMutex.RLock()
	defer r.topicMutex.RUnlock()
	return len(r.subscriptions[topic])
}

// Services returns the topics served by this process.
func (r *RedisEngine) Services() []string {
	r.topicMutex.RLock()
	defer r.topicMutex.RUnlock()

	topics := make([]string, 0, len(r.services))
	for topic := range r.services {
		topics = append(topics, topic)
	}
	slices.Sort(topics)
	return topics
}

// Stats returns cumulative delivery counters.
func (r *RedisEngine) Stats() Stats {
	return r.stats.snapshot()
}
