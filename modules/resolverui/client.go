package resolverui

import (
	"context"
	"errors"
	"time"

	"github.com/GoCodeAlone/desktopagent"
	"github.com/GoCodeAlone/desktopagent/fdc3"
	"github.com/GoCodeAlone/desktopagent/modules/messaging"
)

// Client asks the resolver UI, a service registered on the fabric by the
// shell, to let the user choose. It satisfies agent.ResolverUI.
type Client struct {
	fabric   messaging.Fabric
	topics   fdc3.Topics
	timeout  time.Duration
	fallback string
	logger   desktopagent.Logger
}

// NewClient creates a client over fabric.
func NewClient(fabric messaging.Fabric, cfg *Config, logger desktopagent.Logger) *Client {
	if logger == nil {
		logger = desktopagent.NopLogger()
	}
	return &Client{
		fabric:   fabric,
		topics:   fdc3.NewTopics(cfg.TopicRoot),
		timeout:  cfg.Timeout,
		fallback: cfg.Fallback,
		logger:   logger,
	}
}

// PickApp shows apps and returns the user's choice.
func (c *Client) PickApp(ctx context.Context, apps []fdc3.AppMetadata) (fdc3.AppMetadata, error) {
	if len(apps) == 0 {
		return fdc3.AppMetadata{}, fdc3.NewError(fdc3.CodeNoAppsFound, "nothing to choose from")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := messaging.InvokeJSON[fdc3.ResolverUIResponse](ctx, c.fabric, c.topics.Service(fdc3.ServiceResolverUI),
		&fdc3.ResolverUIRequest{AppMetadata: apps})
	if err != nil {
		if errors.Is(err, messaging.ErrNoService) && c.fallback == FallbackFirst {
			c.logger.Debug("No resolver UI, picking the first app", "appId", apps[0].AppID)
			return apps[0], nil
		}
		return fdc3.AppMetadata{}, c.invokeError(ctx, err)
	}

	switch {
	case resp == nil:
		return fdc3.AppMetadata{}, fdc3.NewError(fdc3.CodeUserCancelledResolution, "empty resolver response")
	case resp.Error != "":
		return fdc3.AppMetadata{}, fdc3.NewError(resp.Error, "resolver UI failed")
	case resp.UserCancelled || resp.AppMetadata == nil:
		return fdc3.AppMetadata{}, fdc3.NewError(fdc3.CodeUserCancelledResolution, "user cancelled")
	}
	return *resp.AppMetadata, nil
}

// PickIntent shows intents and returns the user's choice.
func (c *Client) PickIntent(ctx context.Context, intents []string) (string, error) {
	if len(intents) == 0 {
		return "", fdc3.NewError(fdc3.CodeNoAppsFound, "nothing to choose from")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := messaging.InvokeJSON[fdc3.ResolverUIIntentResponse](ctx, c.fabric, c.topics.Service(fdc3.ServiceResolverUIIntent),
		&fdc3.ResolverUIIntentRequest{Intents: intents})
	if err != nil {
		if errors.Is(err, messaging.ErrNoService) && c.fallback == FallbackFirst {
			return intents[0], nil
		}
		return "", c.invokeError(ctx, err)
	}

	switch {
	case resp == nil:
		return "", fdc3.NewError(fdc3.CodeUserCancelledResolution, "empty resolver response")
	case resp.Error != "":
		return "", fdc3.NewError(resp.Error, "resolver UI failed")
	case resp.UserCancelled || resp.SelectedIntent == "":
		return "", fdc3.NewError(fdc3.CodeUserCancelledResolution, "user cancelled")
	}
	return resp.SelectedIntent, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) invokeError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fdc3.NewError(fdc3.CodeResolverTimeout, "no choice within the resolver budget")
	case errors.Is(err, messaging.ErrNoService):
		return fdc3.NewError(fdc3.CodeResolverUnavailable, "no resolver UI is registered")
	}
	c.logger.Warn("Resolver UI call failed", "error", err)
	return fdc3.NewError(fdc3.CodeResolverUnavailable, "%v", err)
}
