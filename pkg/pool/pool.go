package pool

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/deskhive/deskhive/pkg/config"
	"github.com/deskhive/deskhive/pkg/events"
	"github.com/deskhive/deskhive/pkg/log"
	"github.com/deskhive/deskhive/pkg/metrics"
	"github.com/deskhive/deskhive/pkg/queue"
)

// DesiredWorkers computes the worker count for a queue depth:
// ceil(depth / messagesPerWorker) clamped to [min, max].
func DesiredWorkers(depth, messagesPerWorker, min, max int) int {
	if messagesPerWorker < 1 {
		messagesPerWorker = 1
	}
	n := (depth + messagesPerWorker - 1) / messagesPerWorker
	if n < min {
		n = min
	}
	if n > max {
		n = max
	}
	return n
}

// Controller owns the worker pool consuming the event queue. It resizes
// the pool against queue depth on a fixed interval and drains workers
// gracefully on Stop.
type Controller struct {
	queue      queue.Queue
	dispatcher *events.Dispatcher
	poolCfg    config.PoolConfig
	queueCfg   config.QueueConfig
	logger     zerolog.Logger

	mu      sync.Mutex
	workers []*worker
	nextID  int

	stopCh chan struct{}
	doneCh chan struct{}
}

type worker struct {
	id     int
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewController creates a stopped pool controller.
func NewController(q queue.Queue, dispatcher *events.Dispatcher, poolCfg config.PoolConfig, queueCfg config.QueueConfig) *Controller {
	return &Controller{
		queue:      q,
		dispatcher: dispatcher,
		poolCfg:    poolCfg,
		queueCfg:   queueCfg,
		logger:     log.WithComponent("pool"),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start brings the pool to its minimum size and begins the sizing loop.
func (c *Controller) Start() {
	c.resize()
	go c.sizingLoop()
	c.logger.Info().
		Int("min_workers", c.poolCfg.MinWorkers).
		Int("max_workers", c.poolCfg.MaxWorkers).
		Msg("Worker pool started")
}

// Stop halts the sizing loop and waits for every worker to finish its
// current message. In-flight messages that were not deleted return to
// the queue after their visibility timeout.
func (c *Controller) Stop() {
	close(c.stopCh)
	<-c.doneCh

	c.mu.Lock()
	workers := c.workers
	c.workers = nil
	c.mu.Unlock()

	for _, w := range workers {
		close(w.stopCh)
	}
	for _, w := range workers {
		<-w.doneCh
	}
	metrics.WorkersActive.Set(0)
	c.logger.Info().Msg("Worker pool stopped")
}

// WorkerCount returns the current pool size.
func (c *Controller) WorkerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.workers)
}

func (c *Controller) sizingLoop() {
	defer close(c.doneCh)
	ticker := time.NewTicker(c.poolCfg.SizingInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.resize()
		case <-c.stopCh:
			return
		}
	}
}

// resize adjusts the pool toward the desired size for the current queue
// depth. A depth probe failure keeps the current size.
func (c *Controller) resize() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	depth, err := c.queue.Depth(ctx)
	cancel()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to probe queue depth, keeping pool size")
		return
	}
	metrics.QueueDepth.Set(float64(depth))

	desired := DesiredWorkers(depth, c.poolCfg.MessagesPerWorker, c.poolCfg.MinWorkers, c.poolCfg.MaxWorkers)

	c.mu.Lock()
	current := len(c.workers)
	if desired == current {
		c.mu.Unlock()
		return
	}

	if desired > current {
		for i := current; i < desired; i++ {
			w := &worker{
				id:     c.nextID,
				stopCh: make(chan struct{}),
				doneCh: make(chan struct{}),
			}
			c.nextID++
			c.workers = append(c.workers, w)
			go c.runWorker(w)
		}
	} else {
		excess := c.workers[desired:]
		c.workers = c.workers[:desired]
		for _, w := range excess {
			close(w.stopCh)
		}
	}
	c.mu.Unlock()

	metrics.WorkersActive.Set(float64(desired))
	metrics.PoolResizes.Inc()
	c.logger.Info().Int("depth", depth).
		Int("previous", current).Int("workers", desired).
		Msg("Resized worker pool")
}

func (c *Controller) runWorker(w *worker) {
	defer close(w.doneCh)
	logger := c.logger.With().Int("worker", w.id).Logger()
	logger.Debug().Msg("Worker started")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-w.stopCh
		cancel()
	}()

	for {
		select {
		case <-w.stopCh:
			logger.Debug().Msg("Worker stopped")
			return
		default:
		}

		msgs, err := c.queue.Receive(ctx, c.queueCfg.MaxMessagesPerReceive, c.queueCfg.WaitTime)
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug().Msg("Worker stopped")
				return
			}
			logger.Error().Err(err).Msg("Failed to receive messages")
			continue
		}
		if len(msgs) > 0 {
			c.processBatch(ctx, logger, msgs)
		}
	}
}

// processBatch handles one received batch in order. When a message of
// some group ends in Retry, the remaining messages of that group in the
// batch are left untouched so they redeliver behind it, preserving
// per-group ordering.
func (c *Controller) processBatch(ctx context.Context, logger zerolog.Logger, msgs []*queue.Message) {
	doNotProcess := make(map[string]bool)

	for _, msg := range msgs {
		if doNotProcess[msg.GroupID] {
			logger.Debug().Str("msg_id", msg.MessageID).Str("group_id", msg.GroupID).
				Msg("Skipping message behind a retrying group member")
			continue
		}

		if !msg.ValidChecksum() {
			metrics.ChecksumFailures.Inc()
			logger.Error().Str("msg_id", msg.MessageID).
				Msg("Message body failed checksum validation, dropping")
			c.deleteMessage(ctx, logger, msg)
			continue
		}

		event, err := events.Unmarshal(msg.Body)
		if err != nil {
			logger.Error().Err(err).Str("msg_id", msg.MessageID).
				Msg("Undecodable message body, dropping")
			c.deleteMessage(ctx, logger, msg)
			continue
		}

		start := time.Now()
		outcome := c.dispatcher.Dispatch(ctx, events.Delivery{
			MessageID: msg.MessageID,
			SenderID:  msg.SenderID,
			Event:     event,
		})
		metrics.EventHandlingDuration.WithLabelValues(string(event.Type)).
			Observe(time.Since(start).Seconds())
		metrics.EventsProcessed.WithLabelValues(string(event.Type), outcome.Kind.String()).Inc()

		switch outcome.Kind {
		case events.OutcomeSuccess:
			c.deleteMessage(ctx, logger, msg)
		case events.OutcomeFatal:
			logger.Error().Str("msg_id", msg.MessageID).
				Str("event_type", string(event.Type)).
				Str("reason", outcome.Reason).
				Msg("Message failed fatally, dropping")
			c.deleteMessage(ctx, logger, msg)
		case events.OutcomeRetry:
			logger.Info().Str("msg_id", msg.MessageID).
				Str("event_type", string(event.Type)).
				Str("reason", outcome.Reason).
				Int("receive_count", msg.ReceiveCount).
				Msg("Message left for redelivery")
			doNotProcess[msg.GroupID] = true
		}
	}
}

func (c *Controller) deleteMessage(ctx context.Context, logger zerolog.Logger, msg *queue.Message) {
	if err := c.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		logger.Error().Err(err).Str("msg_id", msg.MessageID).
			Msg("Failed to delete message")
	}
}
