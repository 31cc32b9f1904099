package fdc3

import (
	"slices"
	"sort"
	"strings"
)

// AppDescriptor is an app directory record.
type AppDescriptor struct {
	AppID       string        `json:"appId" yaml:"appId"`
	Name        string        `json:"name,omitempty" yaml:"name,omitempty"`
	Title       string        `json:"title,omitempty" yaml:"title,omitempty"`
	Version     string        `json:"version,omitempty" yaml:"version,omitempty"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Tooltip     string        `json:"tooltip,omitempty" yaml:"tooltip,omitempty"`
	Type        string        `json:"type,omitempty" yaml:"type,omitempty"`
	Details     LaunchDetails `json:"details,omitempty" yaml:"details,omitempty"`
	Icons       []Icon        `json:"icons,omitempty" yaml:"icons,omitempty"`
	Screenshots []Image       `json:"screenshots,omitempty" yaml:"screenshots,omitempty"`
	Interop     *Interop      `json:"interop,omitempty" yaml:"interop,omitempty"`
}

// LaunchDetails carries what a launcher needs to start the app.
type LaunchDetails struct {
	URL       string            `json:"url,omitempty" yaml:"url,omitempty"`
	Path      string            `json:"path,omitempty" yaml:"path,omitempty"`
	Arguments []string          `json:"arguments,omitempty" yaml:"arguments,omitempty"`
	Env       map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// Interop is the interop section of a directory record.
type Interop struct {
	Intents *InteropIntents `json:"intents,omitempty" yaml:"intents,omitempty"`
}

// InteropIntents declares the intents an app handles and the intents it raises.
type InteropIntents struct {
	ListensFor map[string]IntentDeclaration `json:"listensFor,omitempty" yaml:"listensFor,omitempty"`
	Raises     map[string][]string          `json:"raises,omitempty" yaml:"raises,omitempty"`
}

// IntentDeclaration describes one handled intent.
type IntentDeclaration struct {
	DisplayName string   `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	Contexts    []string `json:"contexts,omitempty" yaml:"contexts,omitempty"`
	ResultType  string   `json:"resultType,omitempty" yaml:"resultType,omitempty"`
}

// AcceptsContext reports whether the declaration accepts contextType. The
// "nothing" type is accepted by every declaration.
func (d IntentDeclaration) AcceptsContext(contextType string) bool {
	if contextType == ContextTypeNothing {
		return true
	}
	return slices.Contains(d.Contexts, contextType)
}

// ProducesResult reports whether the declaration satisfies a requested result
// type. "channel" matches every channel result ("channel", "channel<fdc3.x>"),
// and "fdc3.nothing" matches intents that declare no result at all.
func (d IntentDeclaration) ProducesResult(resultType string) bool {
	switch resultType {
	case "channel":
		return strings.HasPrefix(d.ResultType, "channel")
	case ContextTypeNothing:
		return d.ResultType == "" || d.ResultType == ContextTypeNothing
	default:
		return d.ResultType == resultType
	}
}

// ListensFor returns the declared handled intents, or nil.
func (a *AppDescriptor) ListensFor() map[string]IntentDeclaration {
	if a == nil || a.Interop == nil || a.Interop.Intents == nil {
		return nil
	}
	return a.Interop.Intents.ListensFor
}

// IntentNames returns the handled intent names in sorted order.
func (a *AppDescriptor) IntentNames() []string {
	listensFor := a.ListensFor()
	names := make([]string, 0, len(listensFor))
	for name := range listensFor {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ToAppMetadata projects the record into AppMetadata. instanceID and
// resultType may be empty.
func (a *AppDescriptor) ToAppMetadata(instanceID, resultType string) AppMetadata {
	return AppMetadata{
		AppID:       a.AppID,
		InstanceID:  instanceID,
		Name:        a.Name,
		Version:     a.Version,
		Title:       a.Title,
		Tooltip:     a.Tooltip,
		Description: a.Description,
		Icons:       slices.Clone(a.Icons),
		Screenshots: slices.Clone(a.Screenshots),
		ResultType:  resultType,
	}
}

// CanRaiseIntent checks the "raises" section. With an empty intent any
// declared raise accepting contextType counts.
func (a *AppDescriptor) CanRaiseIntent(intent, contextType string) bool {
	if a == nil || a.Interop == nil || a.Interop.Intents == nil || a.Interop.Intents.Raises == nil {
		return false
	}
	if contextType == "" {
		return false
	}

	raises := a.Interop.Intents.Raises
	if intent == "" {
		for _, contexts := range raises {
			if slices.Contains(contexts, contextType) {
				return true
			}
		}
		return false
	}

	contexts, ok := raises[intent]
	if !ok {
		return false
	}
	return contextType == ContextTypeNothing || slices.Contains(contexts, contextType)
}
