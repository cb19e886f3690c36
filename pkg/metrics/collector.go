package metrics

import (
	"os"
	"time"
)

// Collector samples the fan-out queue depth and the liveness file age
// into their gauges on a fixed interval. Both are also set at their
// call sites (the drain and the healthz probe); the collector keeps
// them fresh while the daemon sleeps between rounds.
type Collector struct {
	queue        interface{ Len() int }
	livenessPath string
	stopCh       chan struct{}
}

// NewCollector creates a collector over the fan-out queue and the
// liveness file. Either may be left unset.
func NewCollector(queue interface{ Len() int }, livenessPath string) *Collector {
	return &Collector{
		queue:        queue,
		livenessPath: livenessPath,
		stopCh:       make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	if c.queue != nil {
		FanoutQueueDepth.Set(float64(c.queue.Len()))
	}
	if c.livenessPath != "" {
		if fi, err := os.Stat(c.livenessPath); err == nil {
			LivenessAge.Set(time.Since(fi.ModTime()).Seconds())
		}
	}
}
