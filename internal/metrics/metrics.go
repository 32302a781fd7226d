// Package metrics is a small in-memory registry for connection and message
// counters, exposed through the status server.
package metrics

import (
	"sync"
	"time"
)

// Metric is a single counter or gauge with its metadata.
type Metric struct {
	Name        string    `json:"name"`
	Value       float64   `json:"value"`
	Description string    `json:"description,omitempty"`
	LastUpdate  time.Time `json:"last_update"`
}

// Registry manages all metrics in memory
type Registry struct {
	mu        sync.RWMutex
	counters  map[string]*Metric
	gauges    map[string]*Metric
	startTime time.Time
}

// NewRegistry creates a new metrics registry
func NewRegistry() *Registry {
	return &Registry{
		counters:  make(map[string]*Metric),
		gauges:    make(map[string]*Metric),
		startTime: time.Now(),
	}
}

// IncrementCounter increments a counter metric by one
func (r *Registry) IncrementCounter(name, description string) {
	r.AddToCounter(name, 1, description)
}

// AddToCounter adds a value to a counter metric
func (r *Registry) AddToCounter(name string, value float64, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if counter, exists := r.counters[name]; exists {
		counter.Value += value
		counter.LastUpdate = time.Now()
		return
	}
	r.counters[name] = &Metric{
		Name:        name,
		Value:       value,
		Description: description,
		LastUpdate:  time.Now(),
	}
}

// SetGauge sets a gauge metric to the given value
func (r *Registry) SetGauge(name string, value float64, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gauges[name] = &Metric{
		Name:        name,
		Value:       value,
		Description: description,
		LastUpdate:  time.Now(),
	}
}

// Snapshot holds a point-in-time copy of all metrics.
type Snapshot struct {
	UptimeSeconds float64           `json:"uptime_seconds"`
	Counters      map[string]Metric `json:"counters"`
	Gauges        map[string]Metric `json:"gauges"`
}

// GetSnapshot returns a copy of all current metrics
func (r *Registry) GetSnapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		UptimeSeconds: time.Since(r.startTime).Seconds(),
		Counters:      make(map[string]Metric, len(r.counters)),
		Gauges:        make(map[string]Metric, len(r.gauges)),
	}
	for name, m := range r.counters {
		snap.Counters[name] = *m
	}
	for name, m := range r.gauges {
		snap.Gauges[name] = *m
	}
	return snap
}
