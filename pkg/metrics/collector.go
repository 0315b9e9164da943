package metrics

import (
	"context"
	"time"

	"github.com/Boticus-OG/Titan/pkg/coordinator"
)

// Collector periodically polls a running Coordinator and updates the
// gauge metrics that can't be updated event-by-event (plate phase counts,
// mover run-state counts) because they reflect a point-in-time snapshot rather than
// a single transition.
type Collector struct {
	coord  *coordinator.Coordinator
	stopCh chan struct{}
}

// NewCollector creates a metrics collector bound to a Coordinator.
func NewCollector(coord *coordinator.Coordinator) *Collector {
	return &Collector{
		coord:  coord,
		stopCh: make(chan struct{}),
	}
}

// Start begins polling on a fixed interval, collecting immediately first.
func (c *Collector) Start() {
	ticker := time.NewTicker(5 * time.Second)
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

// Stop halts polling.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c.collectPlateMetrics(ctx)
	c.collectMoverMetrics(ctx)
}

func (c *Collector) collectPlateMetrics(ctx context.Context) {
	plates, err := c.coord.ListPlates(ctx)
	if err != nil {
		return
	}

	counts := make(map[string]int)
	for _, p := range plates {
		counts[string(p.Phase)]++
	}
	for phase, count := range counts {
		PlatesTotal.WithLabelValues(phase).Set(float64(count))
	}
}

func (c *Collector) collectMoverMetrics(ctx context.Context) {
	movers, err := c.coord.ListMovers(ctx)
	if err != nil {
		return
	}

	counts := make(map[string]int)
	for _, m := range movers {
		counts[string(m.State)]++
	}
	for state, count := range counts {
		MoversTotal.WithLabelValues(state).Set(float64(count))
	}
}
