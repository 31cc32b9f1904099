package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GoCodeAlone/desktopagent/fdc3"
	"github.com/GoCodeAlone/desktopagent/instances"
	"github.com/GoCodeAlone/desktopagent/intents"
	"github.com/GoCodeAlone/desktopagent/modules/messaging"
	"github.com/google/uuid"
)

// FindIntent returns the apps able to handle req.Intent. Context and result
// type filter the candidates when set.
func (a *DesktopAgent) FindIntent(ctx context.Context, req *fdc3.FindIntentRequest) (resp *fdc3.FindIntentResponse, err error) {
	defer func() { a.metrics.observe("findIntent", err) }()
	if req == nil {
		return nil, fdc3.NewError(fdc3.CodeIntentDeliveryFailed, "findIntent request is empty")
	}

	result, err := a.matcher.Match(ctx, intents.Query{
		Intent:      req.Intent,
		ContextType: req.Context.Type(),
		ResultType:  req.ResultType,
	})
	if err != nil {
		return nil, err
	}
	match, ok := result.Get(req.Intent)
	if !ok || len(match.Candidates) == 0 {
		return nil, fdc3.NewError(fdc3.CodeNoAppsFound, "no app handles intent %q", req.Intent)
	}
	return &fdc3.FindIntentResponse{AppIntent: match.AppIntent()}, nil
}

// FindIntentsByContext returns every intent, with its apps, that accepts the
// type of req.Context.
func (a *DesktopAgent) FindIntentsByContext(ctx context.Context, req *fdc3.FindIntentsByContextRequest) (resp *fdc3.FindIntentsByContextResponse, err error) {
	defer func() { a.metrics.observe("findIntentsByContext", err) }()
	if req == nil || req.Context.Type() == "" {
		return nil, fdc3.NewError(fdc3.CodeIntentDeliveryFailed, "findIntentsByContext requires a typed context")
	}

	result, err := a.matcher.Match(ctx, intents.Query{
		ContextType: req.Context.Type(),
		ResultType:  req.ResultType,
	})
	if err != nil {
		return nil, err
	}
	if result.Len() == 0 {
		return nil, fdc3.NewError(fdc3.CodeNoAppsFound, "no intent accepts context %q", req.Context.Type())
	}
	return &fdc3.FindIntentsByContextResponse{AppIntents: result.AppIntents()}, nil
}

// RaiseIntent routes req.Intent to one app, asking the resolver UI when
// several apps qualify, and delivers it once the target listens.
func (a *DesktopAgent) RaiseIntent(ctx context.Context, req *fdc3.RaiseIntentRequest) (resp *fdc3.RaiseIntentResponse, err error) {
	defer func() { a.raised(ctx, "raiseIntent", resp, err) }()
	if req == nil {
		return nil, fdc3.NewError(fdc3.CodeIntentDeliveryFailed, "raiseIntent request is empty")
	}
	origin := a.raiseOrigin(req.InstanceID, req.Intent, req.Context.Type())

	result, err := a.matcher.Match(ctx, intents.Query{
		Intent:      req.Intent,
		ContextType: req.Context.Type(),
		Target:      req.TargetAppIdentifier,
	})
	if err != nil {
		return nil, err
	}
	match, ok := result.Get(req.Intent)
	if !ok || len(match.Candidates) == 0 {
		return nil, fdc3.NewError(fdc3.CodeNoAppsFound, "no app handles intent %q", req.Intent)
	}

	target, err := a.pickApp(ctx, req.Intent, match.Candidates)
	if err != nil {
		return nil, err
	}
	return a.raiseTo(ctx, origin, req.MessageID, req.Intent, req.Context, target)
}

// RaiseIntentForContext raises whichever intent accepts req.Context, asking
// the resolver UI for the intent and then for the app when ambiguous.
func (a *DesktopAgent) RaiseIntentForContext(ctx context.Context, req *fdc3.RaiseIntentForContextRequest) (resp *fdc3.RaiseIntentResponse, err error) {
	defer func() { a.raised(ctx, "raiseIntentForContext", resp, err) }()
	if req == nil || req.Context.Type() == "" {
		return nil, fdc3.NewError(fdc3.CodeIntentDeliveryFailed, "raiseIntentForContext requires a typed context")
	}
	contextType := req.Context.Type()
	origin := a.raiseOrigin(req.InstanceID, "", contextType)

	result, err := a.matcher.Match(ctx, intents.Query{
		ContextType: contextType,
		Target:      req.TargetAppIdentifier,
	})
	if err != nil {
		return nil, err
	}
	if result.Len() == 0 {
		if req.TargetAppIdentifier != nil {
			return nil, fdc3.NewError(fdc3.CodeTargetAppUnavailable, "app %q handles no intent for %q", req.TargetAppIdentifier.AppID, contextType)
		}
		return nil, fdc3.NewError(fdc3.CodeNoAppsFound, "no intent accepts context %q", contextType)
	}

	intent := result.Intents()[0]
	if result.Len() > 1 {
		if intent, err = a.pickIntent(ctx, result.Intents()); err != nil {
			return nil, err
		}
	}
	match, ok := result.Get(intent)
	if !ok || len(match.Candidates) == 0 {
		return nil, fdc3.NewError(fdc3.CodeNoAppsFound, "no app handles intent %q", intent)
	}

	target, err := a.pickApp(ctx, intent, match.Candidates)
	if err != nil {
		return nil, err
	}
	return a.raiseTo(ctx, origin, req.MessageID, intent, req.Context, target)
}

// raiseOrigin identifies the instance raising an intent. An instance the
// agent does not know is identified by its id alone, and matching decides
// the outcome of the raise.
func (a *DesktopAgent) raiseOrigin(instanceID, intent, contextType string) fdc3.AppIdentifier {
	source, ok := a.runningInstance(instanceID)
	if !ok {
		a.logger.Debug("Intent raised by an unknown instance", "instanceId", instanceID, "intent", intent, "contextType", contextType)
		return fdc3.AppIdentifier{InstanceID: instanceID}
	}
	if !source.App.CanRaiseIntent(intent, contextType) {
		a.logger.Warn("App raised an intent it does not declare",
			"appId", source.App.AppID, "intent", intent, "contextType", contextType)
	}
	return source.Identifier()
}

func (a *DesktopAgent) raised(ctx context.Context, operation string, resp *fdc3.RaiseIntentResponse, err error) {
	a.metrics.observe(operation, err)
	if err != nil {
		a.emit(ctx, EventTypeIntentFailed, map[string]any{
			"operation": operation,
			"error":     fdc3.ErrorCode(err),
		})
		return
	}
	a.emit(ctx, EventTypeIntentRaised, map[string]any{
		"operation":  operation,
		"messageId":  resp.MessageID,
		"intent":     resp.Intent,
		"appId":      resp.AppMetadata.AppID,
		"instanceId": resp.AppMetadata.InstanceID,
	})
}

// resolverContext bounds a resolver round trip.
func (a *DesktopAgent) resolverContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.cfg.ResolverTimeout)
}

func (a *DesktopAgent) resolverError(err error) error {
	var coded *fdc3.Error
	switch {
	case errors.As(err, &coded):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fdc3.NewError(fdc3.CodeResolverTimeout, "resolver did not answer within %s", a.cfg.ResolverTimeout)
	default:
		return fdc3.NewError(fdc3.CodeResolverUnavailable, "%v", err)
	}
}

// pickApp returns the only candidate, or the one the user picked.
func (a *DesktopAgent) pickApp(ctx context.Context, intent string, candidates []intents.Candidate) (intents.Candidate, error) {
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	if a.resolver == nil {
		return nil, fdc3.NewError(fdc3.CodeResolverUnavailable, "%d apps handle %q and no resolver is configured", len(candidates), intent)
	}

	apps := make([]fdc3.AppMetadata, 0, len(candidates))
	for _, c := range candidates {
		apps = append(apps, c.Metadata(intent))
	}
	rctx, cancel := a.resolverContext(ctx)
	defer cancel()
	picked, err := a.resolver.PickApp(rctx, apps)
	if err != nil {
		return nil, a.resolverError(err)
	}
	if picked.AppID == "" {
		return nil, fdc3.NewError(fdc3.CodeUserCancelledResolution, "no app was picked")
	}
	target, ok := intents.CandidateFromMetadata(candidates, picked)
	if !ok {
		return nil, fdc3.NewError(fdc3.CodeNoAppsFound, "picked app %q is not a candidate for %q", picked.AppID, intent)
	}
	return target, nil
}

func (a *DesktopAgent) pickIntent(ctx context.Context, names []string) (string, error) {
	if a.resolver == nil {
		return "", fdc3.NewError(fdc3.CodeResolverUnavailable, "%d intents match and no resolver is configured", len(names))
	}
	rctx, cancel := a.resolverContext(ctx)
	defer cancel()
	picked, err := a.resolver.PickIntent(rctx, names)
	if err != nil {
		return "", a.resolverError(err)
	}
	if picked == "" {
		return "", fdc3.NewError(fdc3.CodeUserCancelledResolution, "no intent was picked")
	}
	return picked, nil
}

// raiseTo launches target when it is a directory app, records the
// invocation and delivers it as soon as the target listens for intent.
func (a *DesktopAgent) raiseTo(ctx context.Context, origin fdc3.AppIdentifier, requestID int64, intent string, payload fdc3.Context, target intents.Candidate) (*fdc3.RaiseIntentResponse, error) {
	var instance *instances.Instance
	switch c := target.(type) {
	case intents.RunningApp:
		running, ok := a.instances.TryGet(c.InstanceID)
		if !ok {
			return nil, fdc3.NewError(fdc3.CodeTargetInstanceUnavailable, "instance %s is not running", c.InstanceID)
		}
		instance = running
	case intents.DirectoryApp:
		started, err := a.startApp(ctx, c.App, nil)
		if err != nil {
			return nil, fdc3.NewError(fdc3.CodeTargetInstanceUnavailable, "launching %q: %v", c.App.AppID, err)
		}
		instance = started
	default:
		return nil, fmt.Errorf("unknown intent candidate %T", target)
	}

	messageID := fmt.Sprintf("%d-%s", requestID, uuid.NewString())
	ledger, err := a.instanceLedger(instance.ID)
	if err != nil {
		return nil, fdc3.NewError(fdc3.CodeTargetInstanceUnavailable, "instance %s stopped before %q was delivered", instance.ID, intent)
	}
	ledger.AddInvocation(intents.Invocation{
		MessageID:        messageID,
		Intent:           intent,
		OriginInstanceID: origin.InstanceID,
		OriginAppID:      origin.AppID,
		Context:          payload,
		CreatedAt:        time.Now(),
	})

	wctx, cancel := context.WithTimeout(ctx, a.cfg.ListenerRegistrationTimeout)
	err = ledger.WaitForListener(wctx, intent)
	cancel()
	if err != nil {
		return nil, fdc3.NewError(fdc3.CodeIntentDeliveryFailed, "instance %s did not listen for %q: %v", instance.ID, intent, err)
	}
	if inv, claimed := ledger.ClaimDelivery(messageID, intent); claimed {
		if err := a.deliver(ctx, instance.ID, inv); err != nil {
			return nil, fdc3.NewError(fdc3.CodeIntentDeliveryFailed, "delivering %q to %s: %v", intent, instance.ID, err)
		}
	}

	return &fdc3.RaiseIntentResponse{
		MessageID:   messageID,
		Intent:      intent,
		AppMetadata: instance.App.ToAppMetadata(instance.ID, ""),
	}, nil
}

// instanceLedger returns the intent ledger of a running instance. A ledger
// created for an instance that is not running, or that stopped meanwhile, is
// removed again.
func (a *DesktopAgent) instanceLedger(instanceID string) (*intents.Ledger, error) {
	ledger := a.ledgers.GetOrCreate(instanceID)
	if _, ok := a.instances.TryGet(instanceID); !ok {
		a.ledgers.Remove(instanceID)
		return nil, fdc3.NewError(fdc3.CodeMissingID, "instance %q is not running", instanceID)
	}
	return ledger, nil
}

// deliver publishes an invocation on the handling instance's resolution
// topic.
func (a *DesktopAgent) deliver(ctx context.Context, instanceID string, inv intents.Invocation) error {
	topic := a.topics.RaiseIntentResolution(inv.Intent, instanceID)
	a.logger.Debug("Delivering raised intent", "topic", topic, "messageId", inv.MessageID)
	return messaging.PublishJSON(ctx, a.fabric, topic, inv.Resolution())
}

// startApp launches app with a fresh instance id and waits until the
// launcher reports it started.
func (a *DesktopAgent) startApp(ctx context.Context, app *fdc3.AppDescriptor, params map[string]string) (*instances.Instance, error) {
	instanceID := uuid.NewString()
	launchParams := make(map[string]string, len(params)+1)
	for k, v := range params {
		launchParams[k] = v
	}
	launchParams[fdc3.StartupParamInstanceID] = instanceID

	pending := a.instances.Expect(instanceID)
	if err := a.launcher.Launch(ctx, LaunchRequest{App: app, Params: launchParams}); err != nil {
		a.instances.Abandon(instanceID, err)
		return nil, err
	}

	wctx, cancel := context.WithTimeout(ctx, a.cfg.LaunchTimeout)
	defer cancel()
	instance, err := pending.Wait(wctx)
	if err != nil {
		a.instances.Abandon(instanceID, err)
		return nil, err
	}
	return instance, nil
}

// GetIntentResult waits for the handler of a raised intent to store its
// result.
func (a *DesktopAgent) GetIntentResult(ctx context.Context, req *fdc3.GetIntentResultRequest) (resp *fdc3.GetIntentResultResponse, err error) {
	defer func() { a.metrics.observe("getIntentResult", err) }()
	if req == nil || req.TargetAppIdentifier.InstanceID == "" {
		return nil, fdc3.NewError(fdc3.CodeIntentDeliveryFailed, "getIntentResult requires a target instance")
	}
	ledger, ok := a.ledgers.Get(req.TargetAppIdentifier.InstanceID)
	if !ok {
		return nil, fdc3.NewError(fdc3.CodeIntentDeliveryFailed, "instance %s has no raised intents", req.TargetAppIdentifier.InstanceID)
	}

	wctx, cancel := context.WithTimeout(ctx, a.cfg.IntentResultTimeout)
	defer cancel()
	inv, err := ledger.WaitForResult(wctx, req.MessageID, req.Intent)
	if err != nil {
		if errors.Is(err, intents.ErrMultipleInvocations) {
			return nil, err
		}
		return nil, fdc3.NewError(fdc3.CodeIntentDeliveryFailed, "no result for %s (%s): %v", req.MessageID, req.Intent, err)
	}
	if inv.Result.Error != "" {
		return nil, &fdc3.Error{Code: inv.Result.Error}
	}
	return &fdc3.GetIntentResultResponse{
		Context:     inv.Result.Context,
		ChannelID:   inv.Result.ChannelID,
		ChannelType: inv.Result.ChannelType,
		VoidResult:  inv.Result.VoidResult,
	}, nil
}

// StoreIntentResult records the result the handling instance produced for
// an invocation it received.
func (a *DesktopAgent) StoreIntentResult(ctx context.Context, req *fdc3.StoreIntentResultRequest) (resp *fdc3.StoreIntentResultResponse, err error) {
	defer func() { a.metrics.observe("storeIntentResult", err) }()
	if req == nil {
		return nil, fdc3.NewError(fdc3.CodePayloadNull, "storeIntentResult request is empty")
	}
	ledger, ok := a.ledgers.Get(req.OriginInstanceID)
	if !ok {
		a.logger.Error("Intent result stored for an instance without raised intents", "instanceId", req.OriginInstanceID)
		return nil, fdc3.NewError(fdc3.CodeMissingID, "instance %q has no raised intents", req.OriginInstanceID)
	}
	if err := ledger.Resolve(req.MessageID, req.Intent, req.IntentResult); err != nil {
		a.logger.Error("Failed to store intent result", "instanceId", req.OriginInstanceID, "messageId", req.MessageID, "error", err)
		return nil, fmt.Errorf("%w: %w", fdc3.NewError(fdc3.CodeMissingID, "storing result of %s", req.MessageID), err)
	}

	a.emit(ctx, EventTypeIntentResultStored, map[string]any{
		"messageId":  req.MessageID,
		"intent":     req.Intent,
		"instanceId": req.OriginInstanceID,
		"error":      req.Error,
	})
	return &fdc3.StoreIntentResultResponse{Stored: true}, nil
}

// AddIntentListener subscribes or unsubscribes an instance to an intent.
// Subscribing delivers every invocation raised before the listener existed.
func (a *DesktopAgent) AddIntentListener(ctx context.Context, req *fdc3.IntentListenerRequest) (resp *fdc3.IntentListenerResponse, err error) {
	defer func() { a.metrics.observe("addIntentListener", err) }()
	if req == nil {
		return nil, fdc3.NewError(fdc3.CodePayloadNull, "addIntentListener request is empty")
	}

	switch req.State {
	case fdc3.Subscribe:
		ledger, err := a.instanceLedger(req.InstanceID)
		if err != nil {
			return nil, err
		}
		for _, inv := range ledger.AddListener(req.Intent) {
			if err := a.deliver(ctx, req.InstanceID, inv); err != nil {
				a.logger.Error("Failed to deliver pending intent", "instanceId", req.InstanceID, "messageId", inv.MessageID, "error", err)
			}
		}
		return &fdc3.IntentListenerResponse{Stored: true}, nil
	case fdc3.Unsubscribe:
		ledger, ok := a.ledgers.Get(req.InstanceID)
		if !ok {
			return nil, fdc3.NewError(fdc3.CodeMissingID, "instance %q has no intent listeners", req.InstanceID)
		}
		ledger.RemoveListener(req.Intent)
		return &fdc3.IntentListenerResponse{Stored: true}, nil
	default:
		return nil, fdc3.NewError(fdc3.CodeMissingID, "unknown listener state %q", req.State)
	}
}
