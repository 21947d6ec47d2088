// Package metrics generalizes Atsika-aznet's connection-statistics
// interface into the counter/gauge recorder the rest of laminar emits
// events through. The sampler that scrapes these values is an external
// collaborator; laminar only ever calls Inc/Set.
package metrics

// Recorder is the capability every component that emits telemetry
// depends on. A concrete implementation owns naming/labeling conventions;
// callers pass a dotted event name (e.g. "driver.reconnect") and optional
// key/value label pairs.
type Recorder interface {
	// Inc increments the named counter by n (n=1 for a simple event).
	Inc(name string, n float64, labels ...string)
	// Set assigns the named gauge's current value.
	Set(name string, v float64, labels ...string)
}

// Noop is a Recorder that discards every observation. Useful in tests and
// as a safe zero value.
type Noop struct{}

func (Noop) Inc(string, float64, ...string) {}
func (Noop) Set(string, float64, ...string) {}

var _ Recorder = Noop{}
