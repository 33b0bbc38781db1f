package metrics

import "time"

// Measurement is a scoped timer with guaranteed release. Since Go has no
// destructor hook, every call site immediately defers Discard(), and
// End()/Renew() mark the guard finished so the deferred Discard() becomes a
// no-op on the normal path. If a function returns early (e.g. on an error)
// without calling End(), the deferred Discard() fires and records the same
// histogram under status="early_exit".
//
//	m := metrics.Start(reg, "do_auth.decrypt")
//	defer m.Discard()
//	...
//	m.End()
type Measurement struct {
	metrics  *Metrics
	name     string
	start    time.Time
	finished bool
}

// Start begins a named measurement against the given Metrics instance.
func Start(m *Metrics, name string) *Measurement {
	return &Measurement{metrics: m, name: name, start: time.Now()}
}

// End records the elapsed time under the current name with status="ok" and
// marks the measurement finished.
func (m *Measurement) End() {
	if m.finished {
		return
	}
	m.observe(m.name, "ok")
	m.finished = true
}

// Renew emits the current elapsed time under the current name with
// status="ok", then restarts the timer under newName. Use when one logical
// operation has multiple sequential phases worth separate histograms.
func (m *Measurement) Renew(newName string) {
	m.observe(m.name, "ok")
	m.name = newName
	m.start = time.Now()
}

// Record emits the current elapsed time under newName without resetting the
// timer.
func (m *Measurement) Record(newName string) {
	m.observe(newName, "ok")
}

// Discard is the deferred fallback: if the measurement was never finished
// via End(), it emits the histogram labeled status="early_exit". Safe to
// call after End() (no-op).
func (m *Measurement) Discard() {
	if m.finished {
		return
	}
	m.observe(m.name, "early_exit")
	m.finished = true
}

func (m *Measurement) observe(name, status string) {
	if m.metrics == nil || m.metrics.StepDuration == nil {
		return
	}
	elapsed := time.Since(m.start).Seconds()
	m.metrics.StepDuration.WithLabelValues(name, status).Observe(elapsed)
}
