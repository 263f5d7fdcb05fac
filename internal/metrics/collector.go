// Package metrics keeps Prometheus-compatible counters, gauges and
// histograms for the chat client and renders them in the text exposition
// format.
package metrics

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector aggregates metrics by name and label set.
type Collector struct {
	mu         sync.Mutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
	startTime  time.Time
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
		startTime:  time.Now(),
	}
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name, help, labels string
	value              atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	name, help, labels string
	value              atomic.Int64
}

func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram tracks a value distribution over fixed buckets.
type Histogram struct {
	name, help, labels string
	mu                 sync.Mutex
	count              int64
	sum                float64
	buckets            []bucket
}

type bucket struct {
	le    float64
	count int64
}

// Observe records v.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i := range h.buckets {
		if v <= h.buckets[i].le {
			h.buckets[i].count++
		}
	}
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func key(name, labels string) string { return name + "{" + labels + "}" }

// Counter returns the counter for name and labels, creating it on first use.
func (c *Collector) Counter(name, help, labels string) *Counter {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key(name, labels)
	if ctr, ok := c.counters[k]; ok {
		return ctr
	}
	ctr := &Counter{name: name, help: help, labels: labels}
	c.counters[k] = ctr
	return ctr
}

// Gauge returns the gauge for name and labels, creating it on first use.
func (c *Collector) Gauge(name, help, labels string) *Gauge {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key(name, labels)
	if g, ok := c.gauges[k]; ok {
		return g
	}
	g := &Gauge{name: name, help: help, labels: labels}
	c.gauges[k] = g
	return g
}

// Histogram returns the histogram for name and labels, creating it with
// the given upper bounds on first use.
func (c *Collector) Histogram(name, help, labels string, bounds []float64) *Histogram {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key(name, labels)
	if h, ok := c.histograms[k]; ok {
		return h
	}
	sorted := append([]float64(nil), bounds...)
	sort.Float64s(sorted)
	bs := make([]bucket, len(sorted))
	for i, b := range sorted {
		bs[i] = bucket{le: b}
	}
	h := &Histogram{name: name, help: help, labels: labels, buckets: bs}
	c.histograms[k] = h
	return h
}

// WriteText renders every metric in Prometheus text format, sorted by key
// so output is stable.
func (c *Collector) WriteText(w io.Writer) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# HELP ragchat_uptime_seconds Time since start in seconds\n")
	fmt.Fprintf(&sb, "# TYPE ragchat_uptime_seconds gauge\n")
	fmt.Fprintf(&sb, "ragchat_uptime_seconds %d\n", int64(time.Since(c.startTime).Seconds()))

	c.mu.Lock()
	counters := sortedValues(c.counters)
	gauges := sortedValues(c.gauges)
	histograms := sortedValues(c.histograms)
	c.mu.Unlock()

	written := make(map[string]bool)
	for _, ctr := range counters {
		writeHeader(&sb, written, ctr.name, ctr.help, "counter")
		fmt.Fprintf(&sb, "%s %d\n", series(ctr.name, ctr.labels), ctr.Value())
	}
	for _, g := range gauges {
		writeHeader(&sb, written, g.name, g.help, "gauge")
		fmt.Fprintf(&sb, "%s %d\n", series(g.name, g.labels), g.Value())
	}
	for _, h := range histograms {
		writeHeader(&sb, written, h.name, h.help, "histogram")
		h.mu.Lock()
		for _, b := range h.buckets {
			le := fmt.Sprintf("%g", b.le)
			if math.IsInf(b.le, 1) {
				le = "+Inf"
			}
			labels := `le="` + le + `"`
			if h.labels != "" {
				labels = h.labels + "," + labels
			}
			fmt.Fprintf(&sb, "%s_bucket{%s} %d\n", h.name, labels, b.count)
		}
		fmt.Fprintf(&sb, "%s %d\n", series(h.name+"_count", h.labels), h.count)
		fmt.Fprintf(&sb, "%s %f\n", series(h.name+"_sum", h.labels), h.sum)
		h.mu.Unlock()
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// Handler serves WriteText over HTTP.
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_ = c.WriteText(w)
	}
}

func writeHeader(sb *strings.Builder, written map[string]bool, name, help, typ string) {
	if written[name] {
		return
	}
	written[name] = true
	fmt.Fprintf(sb, "# HELP %s %s\n", name, help)
	fmt.Fprintf(sb, "# TYPE %s %s\n", name, typ)
}

func series(name, labels string) string {
	if labels == "" {
		return name
	}
	return name + "{" + labels + "}"
}

func sortedValues[T any](m map[string]T) []T {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}
