package interop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/GoCodeAlone/desktopagent"
	"github.com/GoCodeAlone/desktopagent/agent"
	"github.com/GoCodeAlone/desktopagent/fdc3"
	"github.com/GoCodeAlone/desktopagent/modules/messaging"
)

// Server exposes the desktop agent operations as request/response services
// on the fabric, one topic per operation under the agent's topic root.
// Failures are answered with {"error": "<code>"} instead of failing the
// call, so clients always receive a protocol error code.
type Server struct {
	agent  *agent.DesktopAgent
	fabric messaging.Fabric
	logger desktopagent.Logger
	subs   []messaging.Subscription
}

// NewServer creates a server for a.
func NewServer(a *agent.DesktopAgent, fabric messaging.Fabric, logger desktopagent.Logger) *Server {
	if logger == nil {
		logger = desktopagent.NopLogger()
	}
	return &Server{agent: a, fabric: fabric, logger: logger}
}

// Handlers returns the service handler of every operation keyed by service
// name.
func (s *Server) Handlers() map[string]messaging.ServiceHandler {
	a := s.agent
	return map[string]messaging.ServiceHandler{
		fdc3.ServiceFindChannel:           serve(s, fdc3.ServiceFindChannel, a.FindChannel),
		fdc3.ServiceFindIntent:            serve(s, fdc3.ServiceFindIntent, a.FindIntent),
		fdc3.ServiceFindIntentsByContext:  serve(s, fdc3.ServiceFindIntentsByContext, a.FindIntentsByContext),
		fdc3.ServiceRaiseIntent:           serve(s, fdc3.ServiceRaiseIntent, a.RaiseIntent),
		fdc3.ServiceRaiseIntentForContext: serve(s, fdc3.ServiceRaiseIntentForContext, a.RaiseIntentForContext),
		fdc3.ServiceGetIntentResult:       serve(s, fdc3.ServiceGetIntentResult, a.GetIntentResult),
		fdc3.ServiceSendIntentResult:      serve(s, fdc3.ServiceSendIntentResult, a.StoreIntentResult),
		fdc3.ServiceAddIntentListener:     serve(s, fdc3.ServiceAddIntentListener, a.AddIntentListener),
		fdc3.ServiceCreatePrivateChannel:  serve(s, fdc3.ServiceCreatePrivateChannel, a.CreatePrivateChannel),
		fdc3.ServiceJoinPrivateChannel:    serve(s, fdc3.ServiceJoinPrivateChannel, a.JoinPrivateChannel),
		fdc3.ServiceCreateAppChannel:      serve(s, fdc3.ServiceCreateAppChannel, a.CreateAppChannel),
		fdc3.ServiceGetUserChannels:       serve(s, fdc3.ServiceGetUserChannels, a.GetUserChannels),
		fdc3.ServiceJoinUserChannel:       serve(s, fdc3.ServiceJoinUserChannel, a.JoinUserChannel),
		fdc3.ServiceBroadcast:             serve(s, fdc3.ServiceBroadcast, a.Broadcast),
		fdc3.ServiceGetCurrentContext:     serve(s, fdc3.ServiceGetCurrentContext, a.GetCurrentContext),
		fdc3.ServiceGetInfo:               serve(s, fdc3.ServiceGetInfo, a.GetInfo),
		fdc3.ServiceFindInstances:         serve(s, fdc3.ServiceFindInstances, a.FindInstances),
		fdc3.ServiceGetAppMetadata:        serve(s, fdc3.ServiceGetAppMetadata, a.GetAppMetadata),
		fdc3.ServiceAddContextListener:    serve(s, fdc3.ServiceAddContextListener, a.AddContextListener),
		fdc3.ServiceRemoveContextListener: serve(s, fdc3.ServiceRemoveContextListener, a.RemoveContextListener),
		fdc3.ServiceOpen:                  serve(s, fdc3.ServiceOpen, a.Open),
		fdc3.ServiceGetOpenedAppContext:   serve(s, fdc3.ServiceGetOpenedAppContext, a.GetOpenedAppContext),
	}
}

// Start registers every service. If one registration fails the ones
// already made are cancelled.
func (s *Server) Start(ctx context.Context) error {
	topics := s.agent.Topics()
	for name, handler := range s.Handlers() {
		sub, err := s.fabric.RegisterService(ctx, topics.Service(name), handler)
		if err != nil {
			s.Stop()
			return fmt.Errorf("%w %s: %w", ErrServiceRegistration, name, err)
		}
		s.subs = append(s.subs, sub)
	}
	s.logger.Info("Desktop agent services registered", "count", len(s.subs), "root", topics.Root())
	return nil
}

// Stop cancels every registration.
func (s *Server) Stop() {
	for _, sub := range s.subs {
		if err := sub.Cancel(); err != nil {
			s.logger.Warn("Failed to unregister service", "topic", sub.Topic(), "error", err)
		}
	}
	s.subs = nil
}

// Registered returns the number of registered services.
func (s *Server) Registered() int {
	return len(s.subs)
}

func serve[Req, Resp any](s *Server, name string, fn func(context.Context, *Req) (*Resp, error)) messaging.ServiceHandler {
	handler := messaging.JSONService(fn)
	return func(ctx context.Context, request []byte) ([]byte, error) {
		payload, err := handler(ctx, request)
		if err == nil {
			return payload, nil
		}
		code := fdc3.ErrorCode(err)
		var protocolErr *fdc3.Error
		if !errors.As(err, &protocolErr) {
			s.logger.Error("Desktop agent service failed", "service", name, "error", err)
		}
		return json.Marshal(fdc3.ErrorResponse{Error: code})
	}
}
