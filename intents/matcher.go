package intents

import (
	"context"
	"fmt"
	"sort"

	"github.com/GoCodeAlone/desktopagent/fdc3"
	"github.com/GoCodeAlone/desktopagent/instances"
	"github.com/google/uuid"
)

// Directory is the static app catalog consulted by the matcher.
type Directory interface {
	GetApps(ctx context.Context) ([]*fdc3.AppDescriptor, error)
}

// InstanceSource lists the running instances.
type InstanceSource interface {
	List() []*instances.Instance
	TryGet(instanceID string) (*instances.Instance, bool)
}

// Query selects candidates. Every non-empty field must match.
type Query struct {
	Intent      string
	ContextType string
	ResultType  string
	Target      *fdc3.AppIdentifier
}

func (q Query) targetApp() string {
	if q.Target == nil {
		return ""
	}
	return q.Target.AppID
}

func (q Query) targetInstance() string {
	if q.Target == nil {
		return ""
	}
	return q.Target.InstanceID
}

// Match is the aggregate of every candidate handling one intent.
type Match struct {
	Intent     fdc3.IntentMetadata
	Candidates []Candidate
}

// AppIntent returns the wire form of the match.
func (m *Match) AppIntent() fdc3.AppIntent {
	apps := make([]fdc3.AppMetadata, 0, len(m.Candidates))
	for _, c := range m.Candidates {
		apps = append(apps, c.Metadata(m.Intent.Name))
	}
	return fdc3.AppIntent{Intent: m.Intent, Apps: apps}
}

// Result maps intent names to their matches.
type Result struct {
	byIntent map[string]*Match
}

func newResult() *Result {
	return &Result{byIntent: make(map[string]*Match)}
}

func (r *Result) add(intent string, decl fdc3.IntentDeclaration, c Candidate) {
	m, ok := r.byIntent[intent]
	if !ok {
		m = &Match{Intent: fdc3.IntentMetadata{Name: intent, DisplayName: decl.DisplayName}}
		r.byIntent[intent] = m
	}
	if m.Intent.DisplayName == "" {
		m.Intent.DisplayName = decl.DisplayName
	}
	m.Candidates = append(m.Candidates, c)
}

// Len returns the number of matched intents.
func (r *Result) Len() int { return len(r.byIntent) }

// Intents returns the matched intent names in sorted order.
func (r *Result) Intents() []string {
	names := make([]string, 0, len(r.byIntent))
	for name := range r.byIntent {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the match of intent.
func (r *Result) Get(intent string) (*Match, bool) {
	m, ok := r.byIntent[intent]
	return m, ok
}

// AppIntents returns every match in wire form, ordered by intent name.
func (r *Result) AppIntents() []fdc3.AppIntent {
	out := make([]fdc3.AppIntent, 0, len(r.byIntent))
	for _, name := range r.Intents() {
		out = append(out, r.byIntent[name].AppIntent())
	}
	return out
}

// Matcher finds the candidates of a query in the directory and among the
// running instances.
type Matcher struct {
	directory Directory
	instances InstanceSource
}

// NewMatcher returns a matcher over directory and running.
func NewMatcher(directory Directory, running InstanceSource) *Matcher {
	return &Matcher{directory: directory, instances: running}
}

// Match runs q. Directory apps come first for each intent, followed by the
// running instances; an app and its instances both appear. The directory is
// skipped when q targets an instance.
func (m *Matcher) Match(ctx context.Context, q Query) (*Result, error) {
	result := newResult()

	if q.targetInstance() == "" {
		if err := m.matchDirectory(ctx, q, result); err != nil {
			return nil, err
		}
	}
	if err := m.matchInstances(q, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (m *Matcher) matchDirectory(ctx context.Context, q Query, result *Result) error {
	apps, err := m.directory.GetApps(ctx)
	if err != nil {
		return fmt.Errorf("reading app directory: %w", err)
	}

	if appID := q.targetApp(); appID != "" {
		for _, app := range apps {
			if app.AppID == appID {
				collect(q, app, DirectoryApp{App: app}, result)
				return nil
			}
		}
		return fdc3.NewError(fdc3.CodeTargetAppUnavailable, "app %q is not in the directory", appID)
	}

	for _, app := range apps {
		collect(q, app, DirectoryApp{App: app}, result)
	}
	return nil
}

func (m *Matcher) matchInstances(q Query, result *Result) error {
	if instanceID := q.targetInstance(); instanceID != "" {
		if _, err := uuid.Parse(instanceID); err != nil {
			return fdc3.NewError(fdc3.CodeTargetInstanceUnavailable, "instance id %q is not valid", instanceID)
		}
		instance, ok := m.instances.TryGet(instanceID)
		if !ok {
			return fdc3.NewError(fdc3.CodeTargetInstanceUnavailable, "instance %s is not running", instanceID)
		}
		if appID := q.targetApp(); appID != "" && instance.App.AppID != appID {
			return fdc3.NewError(fdc3.CodeTargetInstanceUnavailable, "instance %s is not an instance of %q", instanceID, appID)
		}
		collect(q, instance.App, RunningApp{App: instance.App, InstanceID: instance.ID}, result)
		return nil
	}

	appID := q.targetApp()
	for _, instance := range m.instances.List() {
		if appID != "" && instance.App.AppID != appID {
			continue
		}
		collect(q, instance.App, RunningApp{App: instance.App, InstanceID: instance.ID}, result)
	}
	return nil
}

func collect(q Query, app *fdc3.AppDescriptor, c Candidate, result *Result) {
	listensFor := app.ListensFor()
	for _, name := range app.IntentNames() {
		decl := listensFor[name]
		if q.Intent != "" && name != q.Intent {
			continue
		}
		if q.ContextType != "" && !decl.AcceptsContext(q.ContextType) {
			continue
		}
		if q.ResultType != "" && !decl.ProducesResult(q.ResultType) {
			continue
		}
		result.add(name, decl, c)
	}
}
