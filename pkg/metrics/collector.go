package metrics

import (
	"time"

	"github.com/deskhive/deskhive/pkg/storage"
	"github.com/deskhive/deskhive/pkg/types"
)

// Collector samples session state gauges from the store.
type Collector struct {
	store  storage.Store
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(store storage.Store) *Collector {
	return &Collector{
		store:  store,
		stopCh: make(chan struct{}),
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
	sessions, err := c.store.ListSessions()
	if err != nil {
		return
	}

	counts := make(map[types.SessionState]int)
	for _, session := range sessions {
		counts[session.State]++
	}

	// Reset all known states so emptied states drop to zero
	for _, state := range []types.SessionState{
		types.SessionStateProvisioning,
		types.SessionStateCreating,
		types.SessionStateInitializing,
		types.SessionStateReady,
		types.SessionStateResuming,
		types.SessionStateStopping,
		types.SessionStateStopped,
		types.SessionStateStoppedIdle,
		types.SessionStateDeleting,
		types.SessionStateDeleted,
		types.SessionStateError,
	} {
		SessionsTotal.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
}
