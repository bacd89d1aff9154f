package observability

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Prometheus text exposition for the metrics registry
// ---------------------------------------------------------------------------

// Exporter serves the registry in Prometheus text format on /metrics.
type Exporter struct {
	registry *Registry
}

// NewExporter creates an exporter backed by the given registry.
func NewExporter(registry *Registry) *Exporter {
	return &Exporter{registry: registry}
}

// ServeHTTP implements http.Handler.
func (e *Exporter) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	_, _ = w.Write([]byte(e.Format()))
}

// Format renders every metric as
//
//	# HELP <name> <help>
//	# TYPE <name> <type>
//	<name>{labels} <value>
//
// Metrics sharing a name (label variants) are grouped under one header.
func (e *Exporter) Format() string {
	e.registry.mu.RLock()
	defer e.registry.mu.RUnlock()

	var b strings.Builder

	writeGroup(&b, "counter", groupKeys(e.registry.counters), func(key string) (string, string, map[string]string, string) {
		c := e.registry.counters[key]
		return c.name, c.help, c.labels, strconv.FormatInt(c.Value(), 10)
	})
	writeGroup(&b, "gauge", groupKeys(e.registry.gauges), func(key string) (string, string, map[string]string, string) {
		g := e.registry.gauges[key]
		return g.name, g.help, g.labels, strconv.FormatFloat(g.Value(), 'g', -1, 64)
	})

	return b.String()
}

func groupKeys[M any](m map[string]M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeGroup(b *strings.Builder, typ string, keys []string, get func(key string) (name, help string, labels map[string]string, value string)) {
	lastName := ""
	for _, key := range keys {
		name, help, labels, value := get(key)
		if name != lastName {
			fmt.Fprintf(b, "# HELP %s %s\n", name, help)
			fmt.Fprintf(b, "# TYPE %s %s\n", name, typ)
			lastName = name
		}
		fmt.Fprintf(b, "%s%s %s\n", name, formatLabels(labels), value)
	}
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, labels[k]))
	}
	return "{" + strings.Join(parts, ",") + "}"
}
