package launcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/GoCodeAlone/desktopagent/fdc3"
)

// AppTypeInProcess marks directory records served by registered Go
// functions.
const AppTypeInProcess = "inprocess"

// AppFunc is the body of an in-process app. It runs until ctx is cancelled
// or it returns. params are the FDC3 startup parameters.
type AppFunc func(ctx context.Context, params map[string]string) error

// InProcessRunner runs registered AppFuncs in goroutines.
type InProcessRunner struct {
	mu   sync.RWMutex
	apps map[string]AppFunc
}

// NewInProcessRunner creates an empty runner.
func NewInProcessRunner() *InProcessRunner {
	return &InProcessRunner{apps: make(map[string]AppFunc)}
}

// Register binds fn to appID, replacing an earlier registration.
func (r *InProcessRunner) Register(appID string, fn AppFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apps[appID] = fn
}

func (r *InProcessRunner) lookup(appID string) (AppFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.apps[appID]
	return fn, ok
}

func (r *InProcessRunner) Name() string { return AppTypeInProcess }

// Accepts reports whether a function is registered for the app.
func (r *InProcessRunner) Accepts(app *fdc3.AppDescriptor) bool {
	_, ok := r.lookup(app.AppID)
	return ok
}

func (r *InProcessRunner) Start(ctx context.Context, inst *Instance, exited func(error)) (Handle, error) {
	fn, ok := r.lookup(inst.AppID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAppNotRegistered, inst.AppID)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	go func() {
		err := fn(runCtx, inst.Params)
		if runCtx.Err() != nil {
			err = nil
		}
		exited(err)
	}()
	return &goroutineHandle{cancel: cancel}, nil
}

type goroutineHandle struct {
	cancel context.CancelFunc
}

func (h *goroutineHandle) Stop(_ context.Context) error {
	h.cancel()
	return nil
}
