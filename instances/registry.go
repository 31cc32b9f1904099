// Package instances tracks the running FDC3 app instances reported by the
// launcher and the start requests waiting for them.
package instances

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/GoCodeAlone/desktopagent/fdc3"
)

// Instance is one running process of an app.
type Instance struct {
	ID              string
	App             *fdc3.AppDescriptor
	OpenedContextID string
	ChannelID       string
	StartedAt       time.Time
}

// Metadata returns the app metadata of the instance.
func (i *Instance) Metadata() fdc3.AppMetadata {
	return i.App.ToAppMetadata(i.ID, "")
}

// Identifier returns the app identifier of the instance.
func (i *Instance) Identifier() fdc3.AppIdentifier {
	return fdc3.AppIdentifier{AppID: i.App.AppID, InstanceID: i.ID}
}

// PendingStart resolves when the instance it waits for is registered, or
// fails when the start is abandoned.
type PendingStart struct {
	instanceID string
	done       chan struct{}
	once       sync.Once
	instance   *Instance
	err        error
}

// InstanceID returns the id the start waits for.
func (p *PendingStart) InstanceID() string { return p.instanceID }

func (p *PendingStart) complete(instance *Instance, err error) {
	p.once.Do(func() {
		p.instance = instance
		p.err = err
		close(p.done)
	})
}

// Wait blocks until the instance starts, the start fails or ctx ends.
func (p *PendingStart) Wait(ctx context.Context) (*Instance, error) {
	select {
	case <-p.done:
		return p.instance, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed once the pending start completed.
func (p *PendingStart) Done() <-chan struct{} { return p.done }

// Registry holds the running instances keyed by instance id.
type Registry struct {
	mu        sync.RWMutex
	instances map[string]*Instance
	pending   map[string]*PendingStart
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		instances: make(map[string]*Instance),
		pending:   make(map[string]*PendingStart),
	}
}

// Expect registers a pending start for instanceID. Calling it again for the
// same id returns the existing pending start.
func (r *Registry) Expect(instanceID string) *PendingStart {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pending[instanceID]; ok {
		return p
	}
	p := &PendingStart{instanceID: instanceID, done: make(chan struct{})}
	if instance, ok := r.instances[instanceID]; ok {
		p.complete(instance, nil)
		return p
	}
	r.pending[instanceID] = p
	return p
}

// Abandon fails the pending start of instanceID with err.
func (r *Registry) Abandon(instanceID string, err error) {
	r.mu.Lock()
	p, ok := r.pending[instanceID]
	delete(r.pending, instanceID)
	r.mu.Unlock()
	if ok {
		p.complete(nil, err)
	}
}

// Upsert registers or replaces an instance and resolves its pending start.
func (r *Registry) Upsert(instance *Instance) {
	if instance.StartedAt.IsZero() {
		instance.StartedAt = time.Now()
	}

	r.mu.Lock()
	r.instances[instance.ID] = instance
	p, ok := r.pending[instance.ID]
	delete(r.pending, instance.ID)
	r.mu.Unlock()

	if ok {
		p.complete(instance, nil)
	}
}

// Remove forgets instanceID. A start still pending for it fails with
// TargetInstanceUnavailable.
func (r *Registry) Remove(instanceID string) (*Instance, bool) {
	r.mu.Lock()
	instance, ok := r.instances[instanceID]
	delete(r.instances, instanceID)
	p, pending := r.pending[instanceID]
	delete(r.pending, instanceID)
	r.mu.Unlock()

	if pending {
		p.complete(nil, fdc3.NewError(fdc3.CodeTargetInstanceUnavailable, "instance %s stopped before it started", instanceID))
	}
	return instance, ok
}

// TryGet returns the instance with instanceID.
func (r *Registry) TryGet(instanceID string) (*Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	instance, ok := r.instances[instanceID]
	return instance, ok
}

// List returns every running instance ordered by app id then instance id.
func (r *Registry) List() []*Instance {
	r.mu.RLock()
	all := make([]*Instance, 0, len(r.instances))
	for _, instance := range r.instances {
		all = append(all, instance)
	}
	r.mu.RUnlock()

	slices.SortFunc(all, func(a, b *Instance) int {
		if c := strings.Compare(a.App.AppID, b.App.AppID); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return all
}

// ByApp returns the running instances of appID.
func (r *Registry) ByApp(appID string) []*Instance {
	var result []*Instance
	for _, instance := range r.List() {
		if instance.App.AppID == appID {
			result = append(result, instance)
		}
	}
	return result
}

// Len returns the number of running instances.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instances)
}

// PendingCount returns the number of starts still waiting.
func (r *Registry) PendingCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pending)
}

// Clear drops every instance and fails every pending start with err.
func (r *Registry) Clear(err error) {
	r.mu.Lock()
	pending := r.pending
	r.pending = make(map[string]*PendingStart)
	r.instances = make(map[string]*Instance)
	r.mu.Unlock()

	for _, p := range pending {
		p.complete(nil, err)
	}
}
