package metrics

import (
	"sync"
	"time"
)

// Collector is a small in-process metrics sink: counters plus a bounded
// window of recent latency observations per name.
type Collector struct {
	counters  map[string]map[string]int64
	latencies map[string][]time.Duration
	mu        sync.RWMutex
}

func NewCollector() *Collector {
	return &Collector{
		counters:  make(map[string]map[string]int64),
		latencies: make(map[string][]time.Duration),
	}
}

func (c *Collector) IncrementCounter(name string, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	labelKey := "default"
	for k, v := range labels {
		labelKey = k + ":" + v
		break
	}
	if _, exists := c.counters[name]; !exists {
		c.counters[name] = make(map[string]int64)
	}
	c.counters[name][labelKey]++
}

func (c *Collector) AddCounter(name string, delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.counters[name]; !exists {
		c.counters[name] = make(map[string]int64)
	}
	c.counters[name]["default"] += delta
}

func (c *Collector) ObserveLatency(name string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.latencies[name] = append(c.latencies[name], duration)
	if len(c.latencies[name]) > 100 {
		c.latencies[name] = c.latencies[name][len(c.latencies[name])-100:]
	}
}

func (c *Collector) Counters() map[string]map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]map[string]int64, len(c.counters))
	for name, labels := range c.counters {
		out[name] = make(map[string]int64, len(labels))
		for label, value := range labels {
			out[name][label] = value
		}
	}
	return out
}

func (c *Collector) Latencies() map[string]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]float64, len(c.latencies))
	for name, durations := range c.latencies {
		if len(durations) == 0 {
			continue
		}
		var sum time.Duration
		for _, d := range durations {
			sum += d
		}
		out[name+".avg_ms"] = float64(sum) / float64(len(durations)) / float64(time.Millisecond)
	}
	return out
}
