package interop

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/GoCodeAlone/desktopagent/fdc3"
	"github.com/GoCodeAlone/desktopagent/modules/messaging"
)

// Call invokes a desktop agent service and decodes the response. An error
// field in the response is returned as an *fdc3.Error.
func Call[Resp any](ctx context.Context, fabric messaging.Fabric, topics fdc3.Topics, service string, request any) (*Resp, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", messaging.ErrEncodePayload, err)
	}
	raw, err := fabric.Invoke(ctx, topics.Service(service), body)
	if err != nil {
		return nil, err
	}
	if err := ResponseError(raw); err != nil {
		return nil, err
	}
	resp := new(Resp)
	if err := json.Unmarshal(raw, resp); err != nil {
		return nil, fmt.Errorf("%w: %w", messaging.ErrDecodePayload, err)
	}
	return resp, nil
}

// ResponseError returns the protocol error carried by a service response,
// or nil.
func ResponseError(raw []byte) error {
	var failure fdc3.ErrorResponse
	if err := json.Unmarshal(raw, &failure); err != nil || failure.Error == "" {
		return nil
	}
	return &fdc3.Error{Code: failure.Error}
}
