package agent

import (
	"context"

	"github.com/GoCodeAlone/desktopagent/fdc3"
	"github.com/google/uuid"
)

// GetInfo describes the agent to a running instance.
func (a *DesktopAgent) GetInfo(_ context.Context, req *fdc3.GetInfoRequest) (resp *fdc3.ImplementationMetadata, err error) {
	defer func() { a.metrics.observe("getInfo", err) }()
	if req == nil {
		return nil, fdc3.NewError(fdc3.CodePayloadNull, "getInfo request is empty")
	}
	instance, ok := a.runningInstance(req.AppIdentifier.InstanceID)
	if !ok {
		return nil, fdc3.NewError(fdc3.CodeMissingID, "instance %q is not running", req.AppIdentifier.InstanceID)
	}
	return &fdc3.ImplementationMetadata{
		FDC3Version:     fdc3.Version,
		Provider:        a.cfg.Provider,
		ProviderVersion: a.cfg.ProviderVersion,
		OptionalFeatures: fdc3.OptionalFeatures{
			OriginatingAppMetadata:    false,
			UserChannelMembershipAPIs: true,
		},
		AppMetadata: instance.Metadata(),
	}, nil
}

// FindInstances lists the running instances of an app.
func (a *DesktopAgent) FindInstances(ctx context.Context, req *fdc3.FindInstancesRequest) (resp *fdc3.FindInstancesResponse, err error) {
	defer func() { a.metrics.observe("findInstances", err) }()
	if req == nil {
		return nil, fdc3.NewError(fdc3.CodePayloadNull, "findInstances request is empty")
	}
	if _, ok := a.runningInstance(req.InstanceID); !ok {
		return nil, fdc3.NewError(fdc3.CodeMissingID, "source instance %q is not running", req.InstanceID)
	}
	if _, err := a.directory.GetApp(ctx, req.AppIdentifier.AppID); err != nil {
		return nil, fdc3.NewError(fdc3.CodeNoAppsFound, "app %q: %v", req.AppIdentifier.AppID, err)
	}

	running := a.instances.ByApp(req.AppIdentifier.AppID)
	found := make([]fdc3.AppIdentifier, 0, len(running))
	for _, instance := range running {
		found = append(found, instance.Identifier())
	}
	return &fdc3.FindInstancesResponse{Instances: found}, nil
}

// GetAppMetadata describes an app, or one of its instances when the
// identifier carries an instance id.
func (a *DesktopAgent) GetAppMetadata(ctx context.Context, req *fdc3.GetAppMetadataRequest) (resp *fdc3.AppMetadata, err error) {
	defer func() { a.metrics.observe("getAppMetadata", err) }()
	if req == nil {
		return nil, fdc3.NewError(fdc3.CodePayloadNull, "getAppMetadata request is empty")
	}
	if _, ok := a.runningInstance(req.InstanceID); !ok {
		return nil, fdc3.NewError(fdc3.CodeMissingID, "source instance %q is not running", req.InstanceID)
	}

	if target := req.AppIdentifier.InstanceID; target != "" {
		if _, err := uuid.Parse(target); err != nil {
			return nil, fdc3.NewError(fdc3.CodeMissingID, "instance id %q is not valid", target)
		}
		instance, ok := a.instances.TryGet(target)
		if !ok {
			return nil, fdc3.NewError(fdc3.CodeTargetInstanceUnavailable, "instance %s is not running", target)
		}
		metadata := instance.Metadata()
		return &metadata, nil
	}

	app, err := a.directory.GetApp(ctx, req.AppIdentifier.AppID)
	if err != nil {
		return nil, fdc3.NewError(fdc3.CodeTargetAppUnavailable, "app %q: %v", req.AppIdentifier.AppID, err)
	}
	metadata := app.ToAppMetadata("", "")
	return &metadata, nil
}
