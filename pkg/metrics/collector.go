package metrics

import (
	"time"

	"github.com/cuemby/dcc/pkg/storage"
)

// LeaderStatusFunc reports whether the calling peer currently holds the
// group leader lease.
type LeaderStatusFunc func() bool

// QueueDepthFunc reports the current BucketQueue depth per project name.
type QueueDepthFunc func() map[string]int

// Collector periodically samples bucket status counts from the store and
// leader/queue state from the running peer, publishing them as gauges.
type Collector struct {
	store       storage.Store
	isLeader    LeaderStatusFunc
	queueDepths QueueDepthFunc
	stopCh      chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(store storage.Store, isLeader LeaderStatusFunc, queueDepths QueueDepthFunc) *Collector {
	return &Collector{
		store:       store,
		isLeader:    isLeader,
		queueDepths: queueDepths,
		stopCh:      make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15s interval.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
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

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectBucketMetrics()
	c.collectLeaderMetrics()
	c.collectQueueMetrics()
}

func (c *Collector) collectBucketMetrics() {
	projects, err := c.store.ListProjects()
	if err != nil {
		return
	}

	counts := make(map[string]int)
	for _, project := range projects {
		builds, err := c.store.ListBuildsByProject(project.ID)
		if err != nil {
			continue
		}
		for _, build := range builds {
			buckets, err := c.store.ListBucketsByBuild(build.ID)
			if err != nil {
				continue
			}
			for _, bucket := range buckets {
				counts[bucket.Status.String()]++
			}
		}
	}

	for status, count := range counts {
		BucketsTotal.WithLabelValues(status).Set(float64(count))
	}
}

func (c *Collector) collectLeaderMetrics() {
	if c.isLeader == nil {
		return
	}
	if c.isLeader() {
		IsLeader.Set(1)
	} else {
		IsLeader.Set(0)
	}
}

func (c *Collector) collectQueueMetrics() {
	if c.queueDepths == nil {
		return
	}
	for project, depth := range c.queueDepths() {
		QueueDepth.WithLabelValues(project).Set(float64(depth))
	}
}
