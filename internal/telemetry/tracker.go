// Package telemetry provides sinks for basics usage metrics
package telemetry

import (
	"sort"
	"strings"
	"unicode"

	"github.com/uber-go/tally"
	"go.uber.org/zap"
)

// Tracker records a named metric with string properties
type Tracker interface {
	TrackMetric(name string, properties map[string]string)
}

// LogTracker writes every metric as a structured log entry
type LogTracker struct {
	logger *zap.Logger
}

// NewLogTracker creates a tracker logging at info level
func NewLogTracker(logger *zap.Logger) *LogTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogTracker{logger: logger.Named("metrics")}
}

// TrackMetric implements Tracker
func (t *LogTracker) TrackMetric(name string, properties map[string]string) {
	keys := make([]string, 0, len(properties))
	for k := range properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]zap.Field, 0, len(keys)+1)
	fields = append(fields, zap.String("metric", name))
	for _, k := range keys {
		fields = append(fields, zap.String(k, properties[k]))
	}
	t.logger.Info("metric tracked", fields...)
}

// emptyTagValue replaces empty property values, which metric backends reject
const emptyTagValue = "none"

// ScopeTracker counts metrics in a tally scope, one counter per metric name
// tagged with the metric's properties
type ScopeTracker struct {
	scope tally.Scope
}

// NewScopeTracker creates a tracker reporting into scope
func NewScopeTracker(scope tally.Scope) *ScopeTracker {
	if scope == nil {
		scope = tally.NoopScope
	}
	return &ScopeTracker{scope: scope}
}

// TrackMetric implements Tracker
func (t *ScopeTracker) TrackMetric(name string, properties map[string]string) {
	scope := t.scope
	if len(properties) > 0 {
		tags := make(map[string]string, len(properties))
		for k, v := range properties {
			if v == "" {
				v = emptyTagValue
			}
			tags[k] = v
		}
		scope = scope.Tagged(tags)
	}
	scope.Counter(CounterName(name)).Inc(1)
}

// CounterName turns a display metric name such as "web - viewed basics data"
// into a counter name like "web_viewed_basics_data"
func CounterName(name string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// Multi fans a metric out to several trackers
type Multi []Tracker

// TrackMetric implements Tracker
func (m Multi) TrackMetric(name string, properties map[string]string) {
	for _, t := range m {
		if t != nil {
			t.TrackMetric(name, properties)
		}
	}
}
