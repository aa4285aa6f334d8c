// Package observ keeps process-local counters and gauges for one
// rebalance cycle. Deliberately not Prometheus format: the process is
// short-lived, so the snapshot is logged at the end of the run.
package observ

import (
	"sort"
	"strings"
	"sync"
	"time"
)

type registry struct {
	mu       sync.Mutex
	counters map[string]map[string]int64   // name -> labelsKey -> count
	gauges   map[string]map[string]float64 // name -> labelsKey -> value
}

var reg = &registry{
	counters: map[string]map[string]int64{},
	gauges:   map[string]map[string]float64{},
}

// canonicalize label map so key order is stable
func canonLabels(lbl map[string]string) string {
	if len(lbl) == 0 {
		return ""
	}
	keys := make([]string, 0, len(lbl))
	for k := range lbl {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(lbl[k])
	}
	return b.String()
}

func IncCounter(name string, labels map[string]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.counters[name]
	if !ok {
		m = map[string]int64{}
		reg.counters[name] = m
	}
	m[canonLabels(labels)]++
}

func SetGauge(name string, value float64, labels map[string]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.gauges[name]
	if !ok {
		m = map[string]float64{}
		reg.gauges[name] = m
	}
	m[canonLabels(labels)] = value
}

// RecordDuration stores a duration as a millisecond gauge.
func RecordDuration(name string, duration time.Duration, labels map[string]string) {
	SetGauge(name+"_ms", float64(duration.Milliseconds()), labels)
}

// Counters returns a flattened copy of all counters, keyed by
// "name{labels}".
func Counters() map[string]int64 {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	out := map[string]int64{}
	for name, byLabels := range reg.counters {
		for labels, count := range byLabels {
			key := name
			if labels != "" {
				key = name + "{" + labels + "}"
			}
			out[key] = count
		}
	}
	return out
}

// Reset clears all metrics. Intended for tests.
func Reset() {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.counters = map[string]map[string]int64{}
	reg.gauges = map[string]map[string]float64{}
}
