// Package messaging provides the messaging fabric of the desktop agent: topic
// based publish/subscribe plus request/response services, backed by an
// in-memory, Redis or NATS engine.
//
// Payloads are opaque bytes; PublishJSON and InvokeJSON encode and decode JSON
// bodies for callers that exchange typed messages.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message is one publication delivered to a subscriber.
type Message struct {
	// ID is unique per publication.
	ID string `json:"id"`

	// Topic is the concrete topic the message was published on, even when the
	// subscription used a pattern.
	Topic string `json:"topic"`

	Payload []byte `json:"payload"`

	CreatedAt time.Time `json:"createdAt"`
}

// Handler processes a message delivered to a subscription. Returned errors
// are logged by the engine and do not stop the subscription.
type Handler func(ctx context.Context, msg Message) error

// ServiceHandler answers a request sent with Invoke. A returned error is
// carried back to the invoker as an *InvokeError.
type ServiceHandler func(ctx context.Context, request []byte) ([]byte, error)

// Subscription is a live subscription or service registration.
type Subscription interface {
	// Topic returns the topic or pattern subscribed to.
	Topic() string

	// ID returns the unique identifier of the subscription.
	ID() string

	// Cancel stops delivery. It is idempotent.
	Cancel() error
}

// Fabric is the messaging contract the desktop agent consumes.
//
// Topics are slash separated. Subscribe accepts patterns where "*" matches
// one path segment and "**" any number of segments. RegisterService and
// Invoke only accept concrete topics, and at most one service may be
// registered per topic.
type Fabric interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error)
	RegisterService(ctx context.Context, topic string, handler ServiceHandler) (Subscription, error)
	Invoke(ctx context.Context, topic string, payload []byte) ([]byte, error)
}

// Engine is a Fabric implementation with a lifecycle.
type Engine interface {
	Fabric

	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// Topics returns the topics and patterns with at least one subscriber.
	Topics() []string

	// SubscriberCount returns the number of subscriptions on exactly topic.
	SubscriberCount(topic string) int

	// Services returns the topics with a registered service handler.
	Services() []string

	Stats() Stats
}

// Stats are cumulative delivery counters of an engine.
type Stats struct {
	Published   uint64
	Delivered   uint64
	Dropped     uint64
	Invocations uint64
	Failed      uint64
}

// InvokeError is returned by Invoke when the service handler failed.
type InvokeError struct {
	Topic   string
	Message string
}

func (e *InvokeError) Error() string {
	return fmt.Sprintf("service %s failed: %s", e.Topic, e.Message)
}

type messageIDKey struct{}

// WithMessageID returns a context that makes the next Publish use id as the
// message ID, so a publisher can recognise its own publication on delivery.
func WithMessageID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, messageIDKey{}, id)
}

// messageID returns the ID set with WithMessageID, or a fresh one.
func messageID(ctx context.Context) string {
	if id, ok := ctx.Value(messageIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// PublishJSON encodes body as JSON and publishes it.
func PublishJSON(ctx context.Context, fabric Fabric, topic string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncodePayload, err)
	}
	return fabric.Publish(ctx, topic, payload)
}

// InvokeJSON encodes request, invokes the service on topic and decodes the
// response into Resp.
func InvokeJSON[Resp any](ctx context.Context, fabric Fabric, topic string, request any) (*Resp, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodePayload, err)
	}
	raw, err := fabric.Invoke(ctx, topic, payload)
	if err != nil {
		return nil, err
	}
	var resp Resp
	if len(raw) == 0 {
		return &resp, nil
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodePayload, err)
	}
	return &resp, nil
}

// JSONService adapts a typed function to a ServiceHandler. The request is
// decoded into Req and the response encoded as JSON.
func JSONService[Req, Resp any](fn func(ctx context.Context, req *Req) (*Resp, error)) ServiceHandler {
	return func(ctx context.Context, request []byte) ([]byte, error) {
		var req *Req
		if len(request) > 0 && string(request) != "null" {
			req = new(Req)
			if err := json.Unmarshal(request, req); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrDecodePayload, err)
			}
		}
		resp, err := fn(ctx, req)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(resp)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEncodePayload, err)
		}
		return payload, nil
	}
}
