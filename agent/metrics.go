package agent

import (
	"errors"

	"github.com/GoCodeAlone/desktopagent/fdc3"
	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot is the current size of the agent's state.
type Snapshot struct {
	Channels       int `json:"channels"`
	Instances      int `json:"instances"`
	PendingStarts  int `json:"pendingStarts"`
	Ledgers        int `json:"ledgers"`
	Unresolved     int `json:"unresolvedIntents"`
	OpenedContexts int `json:"openedContexts"`
}

// Collector implements prometheus.Collector for the agent:
//
//	fdc3_agent_operations_total{operation="raiseIntent",code="ok"}
//	fdc3_agent_channels
//	fdc3_agent_instances
//	fdc3_agent_pending_starts
//	fdc3_agent_unresolved_intents
//	fdc3_agent_opened_contexts
type Collector struct {
	agent          *DesktopAgent
	operations     *prometheus.CounterVec
	channels       *prometheus.Desc
	instances      *prometheus.Desc
	pendingStarts  *prometheus.Desc
	unresolved     *prometheus.Desc
	openedContexts *prometheus.Desc
}

func newCollector(agent *DesktopAgent) *Collector {
	gauge := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("fdc3_agent_"+name, help, nil, nil)
	}
	return &Collector{
		agent: agent,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fdc3",
			Subsystem: "agent",
			Name:      "operations_total",
			Help:      "Desktop agent operations by outcome code",
		}, []string{"operation", "code"}),
		channels:       gauge("channels", "Live channels"),
		instances:      gauge("instances", "Running app instances"),
		pendingStarts:  gauge("pending_starts", "Launches waiting for their instance to start"),
		unresolved:     gauge("unresolved_intents", "Raised intents without a stored result"),
		openedContexts: gauge("opened_contexts", "Contexts passed to open that were not read yet"),
	}
}

func (c *Collector) observe(operation string, err error) {
	code := "ok"
	if err != nil {
		code = "internal"
		var coded *fdc3.Error
		if errors.As(err, &coded) {
			code = coded.Code
		}
	}
	c.operations.WithLabelValues(operation, code).Inc()
}

// Describe sends metric descriptors.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.operations.Describe(ch)
	ch <- c.channels
	ch <- c.instances
	ch <- c.pendingStarts
	ch <- c.unresolved
	ch <- c.openedContexts
}

// Collect emits the operation counters and the current state sizes.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.operations.Collect(ch)
	s := c.agent.Snapshot()
	ch <- prometheus.MustNewConstMetric(c.channels, prometheus.GaugeValue, float64(s.Channels))
	ch <- prometheus.MustNewConstMetric(c.instances, prometheus.GaugeValue, float64(s.Instances))
	ch <- prometheus.MustNewConstMetric(c.pendingStarts, prometheus.GaugeValue, float64(s.PendingStarts))
	ch <- prometheus.MustNewConstMetric(c.unresolved, prometheus.GaugeValue, float64(s.Unresolved))
	ch <- prometheus.MustNewConstMetric(c.openedContexts, prometheus.GaugeValue, float64(s.OpenedContexts))
}
