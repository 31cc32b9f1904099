// Package fdc3 holds the FDC3 data model shared by the desktop agent, its
// fabric handlers and clients: contexts, app and intent metadata, app
// directory records, protocol error codes, topic names and the request and
// response shapes of every desktop agent operation.
package fdc3

import (
	"encoding/json"
	"errors"
)

// ContextTypeNothing is the sentinel context type that matches any intent
// regardless of its declared contexts.
const ContextTypeNothing = "fdc3.nothing"

// ErrContextTypeMissing is returned by ParseContextType when the payload has
// no usable "type" field.
var ErrContextTypeMissing = errors.New("context has no type")

// Context is an opaque FDC3 context payload. Only its "type" field is
// interpreted by the agent; the rest is carried verbatim.
type Context json.RawMessage

// MarshalJSON returns the raw payload, or null when empty.
func (c Context) MarshalJSON() ([]byte, error) {
	if len(c) == 0 {
		return []byte("null"), nil
	}
	return c, nil
}

// UnmarshalJSON keeps a copy of the raw payload.
func (c *Context) UnmarshalJSON(data []byte) error {
	if c == nil {
		return errors.New("fdc3.Context: UnmarshalJSON on nil pointer")
	}
	if string(data) == "null" {
		*c = nil
		return nil
	}
	*c = append((*c)[0:0], data...)
	return nil
}

// IsEmpty reports whether the context carries no payload.
func (c Context) IsEmpty() bool {
	return len(c) == 0 || string(c) == "null"
}

// Type returns the context type, or "" when it cannot be determined.
func (c Context) Type() string {
	t, _ := ParseContextType(c)
	return t
}

// ParseContextType extracts the "type" field of a context payload.
func ParseContextType(payload []byte) (string, error) {
	if len(payload) == 0 {
		return "", ErrContextTypeMissing
	}
	var probe struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return "", err
	}
	if probe.Type == nil || *probe.Type == "" {
		return "", ErrContextTypeMissing
	}
	return *probe.Type, nil
}

// NewContext builds a context of the given type from extra fields.
func NewContext(contextType string, fields map[string]any) Context {
	body := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body["type"] = contextType
	raw, _ := json.Marshal(body)
	return Context(raw)
}
