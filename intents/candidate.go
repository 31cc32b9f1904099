// Package intents matches raised intents to the apps able to handle them and
// keeps the per-instance record of raised intents and their results.
package intents

import "github.com/GoCodeAlone/desktopagent/fdc3"

// Candidate is an app able to handle an intent. It is either a DirectoryApp,
// which has to be launched first, or a RunningApp.
type Candidate interface {
	// Descriptor returns the directory record of the app.
	Descriptor() *fdc3.AppDescriptor
	// Metadata returns the app metadata announced to callers.
	Metadata(intent string) fdc3.AppMetadata
	isCandidate()
}

// DirectoryApp is an installed app with no instance picked.
type DirectoryApp struct {
	App *fdc3.AppDescriptor
}

func (c DirectoryApp) Descriptor() *fdc3.AppDescriptor { return c.App }

func (c DirectoryApp) Metadata(intent string) fdc3.AppMetadata {
	return c.App.ToAppMetadata("", resultTypeOf(c.App, intent))
}

func (DirectoryApp) isCandidate() {}

// RunningApp is a live instance of an app.
type RunningApp struct {
	App        *fdc3.AppDescriptor
	InstanceID string
}

func (c RunningApp) Descriptor() *fdc3.AppDescriptor { return c.App }

func (c RunningApp) Metadata(intent string) fdc3.AppMetadata {
	return c.App.ToAppMetadata(c.InstanceID, resultTypeOf(c.App, intent))
}

func (RunningApp) isCandidate() {}

func resultTypeOf(app *fdc3.AppDescriptor, intent string) string {
	if intent == "" {
		return ""
	}
	return app.ListensFor()[intent].ResultType
}

// CandidateFromMetadata maps app metadata picked by a resolver back to a
// candidate of the given list. ok is false when nothing in the list matches.
func CandidateFromMetadata(candidates []Candidate, picked fdc3.AppMetadata) (Candidate, bool) {
	for _, c := range candidates {
		switch c := c.(type) {
		case RunningApp:
			if picked.InstanceID != "" && c.InstanceID == picked.InstanceID && c.App.AppID == picked.AppID {
				return c, true
			}
		case DirectoryApp:
			if picked.InstanceID == "" && c.App.AppID == picked.AppID {
				return c, true
			}
		}
	}
	return nil, false
}
