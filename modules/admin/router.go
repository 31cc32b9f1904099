package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/GoCodeAlone/desktopagent"
	"github.com/GoCodeAlone/desktopagent/agent"
	"github.com/GoCodeAlone/desktopagent/channels"
	"github.com/GoCodeAlone/desktopagent/fdc3"
	"github.com/GoCodeAlone/desktopagent/instances"
	"github.com/GoCodeAlone/desktopagent/modules/journal"
	"github.com/GoCodeAlone/desktopagent/modules/messaging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBridgeBody = 1 << 20

// AgentView is the part of the desktop agent the admin API reads.
type AgentView interface {
	Instances() []*instances.Instance
	Channels(channelType fdc3.ChannelType) []*channels.Channel
	Snapshot() agent.Snapshot
	Topics() fdc3.Topics
}

// JournalReader queries recorded events.
type JournalReader interface {
	Query(ctx context.Context, f journal.Filter) ([]journal.Entry, error)
}

// Backend is what the router serves. Journal, Gatherer and Validator are
// optional.
type Backend struct {
	Agent         AgentView
	Directory     agent.AppDirectory
	Fabric        messaging.Fabric
	Journal       JournalReader
	Gatherer      prometheus.Gatherer
	Validator     *TokenValidator
	BridgeTimeout time.Duration
	Logger        desktopagent.Logger
	OnAuthFailure func(r *http.Request, err error)
}

type instanceView struct {
	InstanceID string    `json:"instanceId"`
	AppID      string    `json:"appId"`
	ChannelID  string    `json:"channelId,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
}

type channelView struct {
	ID              string                `json:"id"`
	Type            fdc3.ChannelType      `json:"type"`
	DisplayMetadata *fdc3.DisplayMetadata `json:"displayMetadata,omitempty"`
	Members         []string              `json:"members"`
	CurrentContext  json.RawMessage       `json:"currentContext,omitempty"`
}

// NewRouter builds the admin HTTP API:
//
//	GET  /healthz                   liveness, never guarded
//	GET  /metrics                   Prometheus exposition
//	GET  /api/snapshot              agent state counters
//	GET  /api/instances             running app instances
//	GET  /api/channels?type=user    live channels
//	GET  /api/apps                  app directory
//	GET  /api/apps/{appId}          one directory record
//	GET  /api/journal               recorded events
//	POST /api/services/{service}    call a desktop agent service
func NewRouter(b Backend) http.Handler {
	if b.Logger == nil {
		b.Logger = desktopagent.NopLogger()
	}
	if b.BridgeTimeout <= 0 {
		b.BridgeTimeout = 10 * time.Second
	}
	h := &handlers{b: b}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", h.health)
	if b.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(b.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		if b.Validator != nil {
			r.Use(guard(b.Validator, b.OnAuthFailure))
		}
		r.Get("/snapshot", h.snapshot)
		r.Get("/instances", h.instances)
		r.Get("/channels", h.channels)
		r.Get("/apps", h.apps)
		r.Get("/apps/{appId}", h.app)
		r.Get("/journal", h.journal)
		r.Post("/services/{service}", h.bridge)
	})
	return r
}

type handlers struct {
	b Backend
}

func (h *handlers) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.b.Logger.Debug("Admin request", "method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "duration", time.Since(start), "requestId", middleware.GetReqID(r.Context()))
	})
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) snapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.b.Agent.Snapshot())
}

func (h *handlers) instances(w http.ResponseWriter, _ *http.Request) {
	list := h.b.Agent.Instances()
	views := make([]instanceView, 0, len(list))
	for _, inst := range list {
		views = append(views, instanceView{
			InstanceID: inst.ID,
			AppID:      inst.App.AppID,
			ChannelID:  inst.ChannelID,
			StartedAt:  inst.StartedAt,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handlers) channels(w http.ResponseWriter, r *http.Request) {
	channelType := fdc3.ChannelType(r.URL.Query().Get("type"))
	switch channelType {
	case "", fdc3.ChannelTypeUser, fdc3.ChannelTypeApp, fdc3.ChannelTypePrivate:
	default:
		writeError(w, http.StatusBadRequest, errors.New("unknown channel type "+string(channelType)))
		return
	}
	list := h.b.Agent.Channels(channelType)
	views := make([]channelView, 0, len(list))
	for _, ch := range list {
		view := channelView{
			ID:              ch.ID(),
			Type:            ch.Type(),
			DisplayMetadata: ch.DisplayMetadata(),
			Members:         ch.Members(),
		}
		if current := ch.GetCurrentContext(""); !current.IsEmpty() {
			view.CurrentContext = json.RawMessage(current)
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handlers) apps(w http.ResponseWriter, r *http.Request) {
	apps, err := h.b.Directory.GetApps(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, apps)
}

func (h *handlers) app(w http.ResponseWriter, r *http.Request) {
	app, err := h.b.Directory.GetApp(r.Context(), chi.URLParam(r, "appId"))
	if err != nil {
		status := http.StatusServiceUnavailable
		if fdc3.ErrorCode(err) == fdc3.CodeAppNotFound {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *handlers) journal(w http.ResponseWriter, r *http.Request) {
	if h.b.Journal == nil {
		writeError(w, http.StatusNotFound, errors.New("journal is disabled"))
		return
	}
	q := r.URL.Query()
	filter := journal.Filter{
		TypePrefix: q.Get("type"),
		Source:     q.Get("source"),
		InstanceID: q.Get("instanceId"),
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		filter.Limit = limit
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("since must be an RFC 3339 time"))
			return
		}
		filter.Since = since
	}
	entries, err := h.b.Journal.Query(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// bridge forwards the request body to a desktop agent service and relays
// its response. Protocol errors arrive as {"error": code} with status 200,
// as they would over the fabric.
func (h *handlers) bridge(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBridgeBody+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(body) > maxBridgeBody {
		writeError(w, http.StatusRequestEntityTooLarge, errors.New("request body too large"))
		return
	}
	if len(body) == 0 {
		body = []byte("null")
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.b.BridgeTimeout)
	defer cancel()
	topic := h.b.Agent.Topics().Service(chi.URLParam(r, "service"))
	resp, err := h.b.Fabric.Invoke(ctx, topic, body)
	switch {
	case err == nil:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(resp)
	case errors.Is(err, messaging.ErrNoService):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil:
		writeError(w, http.StatusGatewayTimeout, err)
	default:
		h.b.Logger.Warn("Bridged service call failed", "topic", topic, "error", err)
		writeError(w, http.StatusBadGateway, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
