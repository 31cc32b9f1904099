package agent

import (
	"context"
	"errors"
	"time"

	"github.com/GoCodeAlone/desktopagent/fdc3"
	"github.com/google/uuid"
)

type contextListener struct {
	ID          string
	ContextType string
	ChannelID   string
	ChannelType fdc3.ChannelType
}

type openedContext struct {
	Context   fdc3.Context
	Source    fdc3.AppIdentifier
	CreatedAt time.Time
}

// AddContextListener records that an instance listens for a context type.
// An empty context type listens for every context.
func (a *DesktopAgent) AddContextListener(_ context.Context, req *fdc3.AddContextListenerRequest) (resp *fdc3.AddContextListenerResponse, err error) {
	defer func() { a.metrics.observe("addContextListener", err) }()
	if req == nil {
		return nil, fdc3.NewError(fdc3.CodePayloadNull, "addContextListener request is empty")
	}
	if _, ok := a.runningInstance(req.InstanceID); !ok {
		return nil, fdc3.NewError(fdc3.CodeMissingID, "instance %q is not running", req.InstanceID)
	}

	listener := contextListener{
		ID:          uuid.NewString(),
		ContextType: req.ContextType,
		ChannelID:   req.ChannelID,
		ChannelType: req.ChannelType,
	}
	a.listenersMu.Lock()
	a.contextListeners[req.InstanceID] = append(a.contextListeners[req.InstanceID], listener)
	a.notifyListenersLocked()
	a.listenersMu.Unlock()
	return &fdc3.AddContextListenerResponse{ID: listener.ID}, nil
}

// RemoveContextListener drops a listener added by AddContextListener.
func (a *DesktopAgent) RemoveContextListener(_ context.Context, req *fdc3.RemoveContextListenerRequest) (resp *fdc3.RemoveContextListenerResponse, err error) {
	defer func() { a.metrics.observe("removeContextListener", err) }()
	if req == nil {
		return nil, fdc3.NewError(fdc3.CodePayloadNull, "removeContextListener request is empty")
	}
	if _, err := uuid.Parse(req.InstanceID); err != nil {
		return nil, fdc3.NewError(fdc3.CodeMissingID, "instance id %q is not valid", req.InstanceID)
	}
	if _, err := uuid.Parse(req.ListenerID); err != nil {
		return nil, fdc3.NewError(fdc3.CodeMissingID, "listener id %q is not valid", req.ListenerID)
	}

	a.listenersMu.Lock()
	defer a.listenersMu.Unlock()
	listeners, ok := a.contextListeners[req.InstanceID]
	if !ok {
		return nil, fdc3.NewError(fdc3.CodeMissingID, "instance %s has no context listeners", req.InstanceID)
	}
	for i, l := range listeners {
		if l.ID != req.ListenerID || l.ContextType != req.ContextType {
			continue
		}
		listeners = append(listeners[:i:i], listeners[i+1:]...)
		if len(listeners) == 0 {
			delete(a.contextListeners, req.InstanceID)
		} else {
			a.contextListeners[req.InstanceID] = listeners
		}
		a.notifyListenersLocked()
		return &fdc3.RemoveContextListenerResponse{Success: true}, nil
	}
	return nil, fdc3.NewError(fdc3.CodeListenerNotFound, "listener %s for %q not found", req.ListenerID, req.ContextType)
}

func (a *DesktopAgent) notifyListenersLocked() {
	close(a.listenersChanged)
	a.listenersChanged = make(chan struct{})
}

// hasContextListenerLocked reports whether instanceID listens for contextType,
// either directly or through a listener for every context.
func (a *DesktopAgent) hasContextListenerLocked(instanceID, contextType string) bool {
	for _, l := range a.contextListeners[instanceID] {
		if l.ContextType == "" || l.ContextType == contextType {
			return true
		}
	}
	return false
}

func (a *DesktopAgent) waitForContextListener(ctx context.Context, instanceID, contextType string) error {
	for {
		a.listenersMu.Lock()
		if a.hasContextListenerLocked(instanceID, contextType) {
			a.listenersMu.Unlock()
			return nil
		}
		changed := a.listenersChanged
		a.listenersMu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (a *DesktopAgent) dropContextListeners(instanceID string) {
	a.listenersMu.Lock()
	defer a.listenersMu.Unlock()
	if _, ok := a.contextListeners[instanceID]; ok {
		delete(a.contextListeners, instanceID)
		a.notifyListenersLocked()
	}
}

// Open launches an app. A context is handed to the new instance through the
// opened app context id startup parameter, and Open waits until the instance
// listens for that context.
func (a *DesktopAgent) Open(ctx context.Context, req *fdc3.OpenRequest) (resp *fdc3.OpenResponse, err error) {
	defer func() { a.metrics.observe("open", err) }()
	if req == nil {
		return nil, fdc3.NewError(fdc3.CodePayloadNull, "open request is empty")
	}
	source, ok := a.runningInstance(req.InstanceID)
	if !ok {
		return nil, fdc3.NewError(fdc3.CodeMissingID, "source instance %q is not running", req.InstanceID)
	}
	app, err := a.directory.GetApp(ctx, req.AppIdentifier.AppID)
	if err != nil {
		return nil, fdc3.NewError(fdc3.CodeAppNotFound, "app %q: %v", req.AppIdentifier.AppID, err)
	}

	params := make(map[string]string)
	if req.ChannelID != "" {
		params[fdc3.StartupParamChannelID] = req.ChannelID
	}
	var contextID string
	if !req.Context.IsEmpty() {
		contextID = uuid.NewString()
		a.openedMu.Lock()
		a.openedContexts[contextID] = openedContext{
			Context:   req.Context,
			Source:    source.Identifier(),
			CreatedAt: time.Now(),
		}
		a.openedMu.Unlock()
		params[fdc3.StartupParamOpenedAppContextID] = contextID
	}

	instance, err := a.startApp(ctx, app, params)
	if err != nil {
		a.forgetOpenedContext(contextID)
		return nil, fdc3.NewError(fdc3.CodeErrorOnLaunch, "launching %q: %v", app.AppID, err)
	}
	a.emit(ctx, EventTypeAppOpened, map[string]any{
		"appId":      app.AppID,
		"instanceId": instance.ID,
		"source":     source.ID,
	})
	resp = &fdc3.OpenResponse{AppIdentifier: instance.Identifier()}
	if contextID == "" {
		return resp, nil
	}

	wctx, cancel := context.WithTimeout(ctx, a.cfg.ListenerRegistrationTimeout)
	defer cancel()
	if err := a.waitForContextListener(wctx, instance.ID, req.Context.Type()); err != nil {
		a.forgetOpenedContext(contextID)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fdc3.NewError(fdc3.CodeAppTimeout, "instance %s did not listen for %q", instance.ID, req.Context.Type())
		}
		return nil, fdc3.NewError(fdc3.CodeErrorOnLaunch, "waiting for instance %s to listen for %q: %v", instance.ID, req.Context.Type(), err)
	}
	return resp, nil
}

func (a *DesktopAgent) forgetOpenedContext(contextID string) {
	if contextID == "" {
		return
	}
	a.openedMu.Lock()
	delete(a.openedContexts, contextID)
	a.openedMu.Unlock()
}

// GetOpenedAppContext hands the context passed to Open to the opened
// instance. A context can only be read once.
func (a *DesktopAgent) GetOpenedAppContext(_ context.Context, req *fdc3.GetOpenedAppContextRequest) (resp *fdc3.GetOpenedAppContextResponse, err error) {
	defer func() { a.metrics.observe("getOpenedAppContext", err) }()
	if req == nil {
		return nil, fdc3.NewError(fdc3.CodePayloadNull, "getOpenedAppContext request is empty")
	}
	if _, err := uuid.Parse(req.ContextID); err != nil {
		return nil, fdc3.NewError(fdc3.CodeIDNotParsable, "context id %q is not valid", req.ContextID)
	}

	a.openedMu.Lock()
	opened, ok := a.openedContexts[req.ContextID]
	delete(a.openedContexts, req.ContextID)
	a.openedMu.Unlock()
	if !ok {
		return nil, fdc3.NewError(fdc3.CodeOpenedAppContextNotFound, "no context stored under %s", req.ContextID)
	}
	return &fdc3.GetOpenedAppContextResponse{Context: opened.Context}, nil
}

// ExpireOpenedContexts drops opened app contexts older than the configured
// TTL and returns how many were dropped.
func (a *DesktopAgent) ExpireOpenedContexts(now time.Time) int {
	cutoff := now.Add(-a.cfg.OpenedContextTTL)
	a.openedMu.Lock()
	defer a.openedMu.Unlock()
	expired := 0
	for id, opened := range a.openedContexts {
		if opened.CreatedAt.Before(cutoff) {
			delete(a.openedContexts, id)
			expired++
		}
	}
	return expired
}
