package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus is the default Recorder, backed by prometheus/client_golang.
// Counter and gauge vectors are created lazily, keyed by name and by the
// set of label keys first seen for that name — laminar always calls with
// a fixed label shape per event name, so this never thrashes.
type Prometheus struct {
	reg *prometheus.Registry

	mu       sync.Mutex
	counters map[string]*prometheus.CounterVec
	gauges   map[string]*prometheus.GaugeVec
}

// NewPrometheus builds a Recorder registered against reg. Pass
// prometheus.NewRegistry() for an isolated registry, or
// prometheus.DefaultRegisterer's underlying registry to expose metrics on
// the process-wide /metrics endpoint.
func NewPrometheus(reg *prometheus.Registry) *Prometheus {
	return &Prometheus{
		reg:      reg,
		counters: make(map[string]*prometheus.CounterVec),
		gauges:   make(map[string]*prometheus.GaugeVec),
	}
}

func metricName(name string) string {
	return "laminar_" + strings.ReplaceAll(name, ".", "_")
}

func labelKeys(labels []string) []string {
	keys := make([]string, 0, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		keys = append(keys, labels[i])
	}
	return keys
}

func labelValues(labels []string) []string {
	vals := make([]string, 0, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		vals = append(vals, labels[i+1])
	}
	return vals
}

func (p *Prometheus) counterVec(name string, labels []string) *prometheus.CounterVec {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cv, ok := p.counters[name]; ok {
		return cv
	}
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricName(name),
		Help: "laminar counter: " + name,
	}, labelKeys(labels))
	p.reg.MustRegister(cv)
	p.counters[name] = cv
	return cv
}

func (p *Prometheus) gaugeVec(name string, labels []string) *prometheus.GaugeVec {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gv, ok := p.gauges[name]; ok {
		return gv
	}
	gv := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: metricName(name),
		Help: "laminar gauge: " + name,
	}, labelKeys(labels))
	p.reg.MustRegister(gv)
	p.gauges[name] = gv
	return gv
}

func (p *Prometheus) Inc(name string, n float64, labels ...string) {
	p.counterVec(name, labels).WithLabelValues(labelValues(labels)...).Add(n)
}

func (p *Prometheus) Set(name string, v float64, labels ...string) {
	p.gaugeVec(name, labels).WithLabelValues(labelValues(labels)...).Set(v)
}

var _ Recorder = (*Prometheus)(nil)
