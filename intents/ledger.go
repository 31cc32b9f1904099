package intents

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/GoCodeAlone/desktopagent"
	"github.com/GoCodeAlone/desktopagent/fdc3"
)

var (
	// ErrMissingInvocation is returned when a result is stored for a raise the
	// instance never received.
	ErrMissingInvocation = errors.New("missing app from raised intent invocations")
	// ErrMultipleInvocations is returned when more than one invocation of an
	// instance shares a message id and intent.
	ErrMultipleInvocations = errors.New("multiple intents registered to an app instance")
	// ErrLedgerClosed is returned to waiters when the instance went away.
	ErrLedgerClosed = errors.New("raised intent ledger closed")
)

// Invocation is one raised intent routed to an instance.
type Invocation struct {
	MessageID        string
	Intent           string
	OriginInstanceID string
	OriginAppID      string
	Context          fdc3.Context
	CreatedAt        time.Time

	// Delivered is set once the resolution message has been handed out.
	Delivered bool
	Resolved  bool
	Result    fdc3.IntentResult
}

// Resolution returns the message delivered to the handling instance.
func (inv Invocation) Resolution() fdc3.RaiseIntentResolution {
	return fdc3.RaiseIntentResolution{
		MessageID: inv.MessageID,
		Intent:    inv.Intent,
		Context:   inv.Context,
		ContextMetadata: fdc3.ContextMetadata{
			Source: fdc3.AppIdentifier{AppID: inv.OriginAppID, InstanceID: inv.OriginInstanceID},
		},
	}
}

// Ledger is the raised intent state of one instance: the intents it listens
// for and every invocation routed to it. All methods are safe for concurrent
// use; waiters are woken on every change instead of polling.
type Ledger struct {
	instanceID string
	logger     desktopagent.Logger

	mu          sync.Mutex
	listeners   map[string]struct{}
	invocations []*Invocation
	changed     chan struct{}
	closed      bool
}

func newLedger(instanceID string, logger desktopagent.Logger) *Ledger {
	return &Ledger{
		instanceID: instanceID,
		logger:     logger,
		listeners:  make(map[string]struct{}),
		changed:    make(chan struct{}),
	}
}

// InstanceID returns the instance the ledger belongs to.
func (l *Ledger) InstanceID() string { return l.instanceID }

// notify wakes every waiter. Callers hold l.mu.
func (l *Ledger) notify() {
	close(l.changed)
	l.changed = make(chan struct{})
}

// AddListener registers a listener for intent and hands out the invocations
// of that intent that were routed before it and are not delivered yet. A
// second registration of the same intent is logged and kept.
func (l *Ledger) AddListener(intent string) []Invocation {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.listeners[intent]; ok {
		l.logger.Warn("Multiple intent handlers registered", "intent", intent, "instance", l.instanceID)
	}
	l.listeners[intent] = struct{}{}

	var pending []Invocation
	for _, inv := range l.invocations {
		if inv.Intent != intent || inv.Resolved || inv.Delivered {
			continue
		}
		inv.Delivered = true
		pending = append(pending, *inv)
	}
	l.notify()
	return pending
}

// RemoveListener drops the listener of intent.
func (l *Ledger) RemoveListener(intent string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.listeners, intent)
}

// IsListening reports whether a listener for intent is registered.
func (l *Ledger) IsListening(intent string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.listeners[intent]
	return ok
}

// Listeners returns the registered intents in sorted order.
func (l *Ledger) Listeners() []string {
	l.mu.Lock()
	names := make([]string, 0, len(l.listeners))
	for name := range l.listeners {
		names = append(names, name)
	}
	l.mu.Unlock()
	sort.Strings(names)
	return names
}

// AddInvocation records a raise routed to the instance.
func (l *Ledger) AddInvocation(inv Invocation) {
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.invocations = append(l.invocations, &inv)
	l.notify()
}

func (l *Ledger) find(messageID, intent string) []*Invocation {
	var found []*Invocation
	for _, inv := range l.invocations {
		if inv.MessageID == messageID && inv.Intent == intent {
			found = append(found, inv)
		}
	}
	return found
}

// ClaimDelivery marks the invocation delivered when a listener is registered
// and nobody delivered it yet. ok reports whether the caller must deliver it.
func (l *Ledger) ClaimDelivery(messageID, intent string) (Invocation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, listening := l.listeners[intent]; !listening {
		return Invocation{}, false
	}
	for _, inv := range l.find(messageID, intent) {
		if !inv.Delivered {
			inv.Delivered = true
			return *inv, true
		}
	}
	return Invocation{}, false
}

// Resolve stores the result of the invocation matching messageID and intent.
func (l *Ledger) Resolve(messageID, intent string, result fdc3.IntentResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	found := l.find(messageID, intent)
	switch len(found) {
	case 0:
		return fmt.Errorf("%w: message %s, intent %s, instance %s", ErrMissingInvocation, messageID, intent, l.instanceID)
	case 1:
	default:
		return fmt.Errorf("%w: intent %s, instance %s", ErrMultipleInvocations, intent, l.instanceID)
	}

	found[0].Result = result
	found[0].Resolved = true
	l.notify()
	return nil
}

// TryGetResolved returns the invocation matching messageID and intent if it
// has been resolved.
func (l *Ledger) TryGetResolved(messageID, intent string) (Invocation, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resolvedLocked(messageID, intent)
}

func (l *Ledger) resolvedLocked(messageID, intent string) (Invocation, bool, error) {
	var resolved []*Invocation
	for _, inv := range l.find(messageID, intent) {
		if inv.Resolved {
			resolved = append(resolved, inv)
		}
	}
	switch len(resolved) {
	case 0:
		return Invocation{}, false, nil
	case 1:
		return *resolved[0], true, nil
	default:
		return Invocation{}, false, fmt.Errorf("%w: intent %s, instance %s", ErrMultipleInvocations, intent, l.instanceID)
	}
}

// WaitForListener blocks until a listener for intent is registered. It
// returns ctx.Err() when ctx ends first and ErrLedgerClosed when the instance
// goes away.
func (l *Ledger) WaitForListener(ctx context.Context, intent string) error {
	for {
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return ErrLedgerClosed
		}
		if _, ok := l.listeners[intent]; ok {
			l.mu.Unlock()
			return nil
		}
		changed := l.changed
		l.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// WaitForResult blocks until the invocation matching messageID and intent is
// resolved.
func (l *Ledger) WaitForResult(ctx context.Context, messageID, intent string) (Invocation, error) {
	for {
		l.mu.Lock()
		inv, ok, err := l.resolvedLocked(messageID, intent)
		closed := l.closed
		changed := l.changed
		l.mu.Unlock()

		switch {
		case err != nil:
			return Invocation{}, err
		case ok:
			return inv, nil
		case closed:
			return Invocation{}, ErrLedgerClosed
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return Invocation{}, ctx.Err()
		}
	}
}

// Invocations returns a snapshot of every invocation.
func (l *Ledger) Invocations() []Invocation {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Invocation, 0, len(l.invocations))
	for _, inv := range l.invocations {
		out = append(out, *inv)
	}
	return out
}

// Unresolved returns the number of invocations still waiting for a result.
func (l *Ledger) Unresolved() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, inv := range l.invocations {
		if !inv.Resolved {
			n++
		}
	}
	return n
}

func (l *Ledger) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.notify()
}

// Ledgers holds the ledger of every instance that listened for an intent or
// received a raise.
type Ledgers struct {
	logger  desktopagent.Logger
	mu      sync.Mutex
	entries map[string]*Ledger
}

// NewLedgers returns an empty set of ledgers.
func NewLedgers(logger desktopagent.Logger) *Ledgers {
	if logger == nil {
		logger = desktopagent.NopLogger()
	}
	return &Ledgers{logger: logger, entries: make(map[string]*Ledger)}
}

// GetOrCreate returns the ledger of instanceID, creating it on first use.
func (s *Ledgers) GetOrCreate(instanceID string) *Ledger {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.entries[instanceID]; ok {
		return l
	}
	l := newLedger(instanceID, s.logger)
	s.entries[instanceID] = l
	return l
}

// Get returns the ledger of instanceID if it exists.
func (s *Ledgers) Get(instanceID string) (*Ledger, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.entries[instanceID]
	return l, ok
}

// Remove drops the ledger of instanceID and fails its waiters.
func (s *Ledgers) Remove(instanceID string) bool {
	s.mu.Lock()
	l, ok := s.entries[instanceID]
	delete(s.entries, instanceID)
	s.mu.Unlock()
	if ok {
		l.close()
	}
	return ok
}

// Clear drops every ledger.
func (s *Ledgers) Clear() {
	s.mu.Lock()
	entries := s.entries
	s.entries = make(map[string]*Ledger)
	s.mu.Unlock()
	for _, l := range entries {
		l.close()
	}
}

// Len returns the number of ledgers.
func (s *Ledgers) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Unresolved returns the number of unresolved invocations across ledgers.
func (s *Ledgers) Unresolved() int {
	s.mu.Lock()
	entries := make([]*Ledger, 0, len(s.entries))
	for _, l := range s.entries {
		entries = append(entries, l)
	}
	s.mu.Unlock()

	n := 0
	for _, l := range entries {
		n += l.Unresolved()
	}
	return n
}
