package messaging

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gobwas/glob"
)

const topicSeparator = '/'

// isPattern reports whether topic contains wildcard segments.
func isPattern(topic string) bool {
	return strings.ContainsRune(topic, '*')
}

func validateTopic(topic string) error {
	if topic == "" || strings.HasPrefix(topic, "/") || strings.Contains(topic, "//") {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	return nil
}

func validateConcreteTopic(topic string) error {
	if err := validateTopic(topic); err != nil {
		return err
	}
	if isPattern(topic) {
		return fmt.Errorf("%w: pattern not allowed: %q", ErrInvalidTopic, topic)
	}
	return nil
}

// patternCache compiles subscription patterns once.
type patternCache struct {
	mu       sync.RWMutex
	compiled map[string]glob.Glob
}

func newPatternCache() *patternCache {
	return &patternCache{compiled: make(map[string]glob.Glob)}
}

// matches reports whether the concrete topic matches the subscription topic.
func (c *patternCache) matches(topic, subscription string) bool {
	if topic == subscription {
		return true
	}
	if !isPattern(subscription) {
		return false
	}

	c.mu.RLock()
	g, ok := c.compiled[subscription]
	c.mu.RUnlock()
	if !ok {
		var err error
		g, err = glob.Compile(subscription, topicSeparator)
		if err != nil {
			return false
		}
		c.mu.Lock()
		c.compiled[subscription] = g
		c.mu.Unlock()
	}
	return g.Match(topic)
}

// natsSubject maps a slash separated topic to a NATS subject. Dots inside a
// segment are escaped so segment boundaries survive the mapping; "*" keeps
// its meaning and a trailing "**" becomes ">".
func natsSubject(topic string) (string, error) {
	segments := strings.Split(topic, string(topicSeparator))
	for i, segment := range segments {
		switch segment {
		case "*":
			continue
		case "**":
			if i != len(segments)-1 {
				return "", fmt.Errorf("%w: \"**\" must be the last segment: %q", ErrInvalidTopic, topic)
			}
			segments[i] = ">"
			continue
		}
		if strings.ContainsAny(segment, "*> \t") {
			return "", fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
		}
		segments[i] = subjectEscaper.Replace(segment)
	}
	return strings.Join(segments, "."), nil
}

// topicFromSubject reverses natsSubject for concrete subjects.
func topicFromSubject(subject string) string {
	segments := strings.Split(subject, ".")
	for i, segment := range segments {
		segments[i] = subjectUnescaper.Replace(segment)
	}
	return strings.Join(segments, string(topicSeparator))
}

var (
	subjectEscaper   = strings.NewReplacer("%", "%25", ".", "%2E")
	subjectUnescaper = strings.NewReplacer("%2E", ".", "%25", "%")
)

// counters backs Engine.Stats.
type counters struct {
	published   atomic.Uint64
	delivered   atomic.Uint64
	dropped     atomic.Uint64
	invocations atomic.Uint64
	failed      atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Published:   c.published.Load(),
		Delivered:   c.delivered.Load(),
		Dropped:     c.dropped.Load(),
		Invocations: c.invocations.Load(),
		Failed:      c.failed.Load(),
	}
}
