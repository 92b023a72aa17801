package metrics

import (
	"time"

	"github.com/cuemby/nodewatch/pkg/types"
)

// NodeLister is the registry view the collector needs
type NodeLister interface {
	ListNodes() ([]*types.TrackedNode, error)
}

// Collector periodically publishes registry gauges
type Collector struct {
	nodes    NodeLister
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(nodes NodeLister, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		nodes:    nodes,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
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
	nodes, err := c.nodes.ListNodes()
	if err != nil {
		UpdateComponent(ComponentStorage, false, err.Error())
		return
	}
	UpdateComponent(ComponentStorage, true, "")

	counts := map[types.Liveness]int{
		types.LivenessOnline:  0,
		types.LivenessOffline: 0,
		types.LivenessUnknown: 0,
	}
	for _, node := range nodes {
		liveness := node.Liveness
		if !liveness.Valid() {
			liveness = types.LivenessUnknown
		}
		counts[liveness]++
	}

	for liveness, count := range counts {
		TrackedNodes.WithLabelValues(string(liveness)).Set(float64(count))
	}
}
