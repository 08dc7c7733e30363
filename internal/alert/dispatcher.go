package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sender delivers one task over a single fixed transport. Implementations
// must respect the context deadline; the dispatcher never retries.
type Sender interface {
	Channel() Channel
	Send(ctx context.Context, task *Task) error
}

// OutcomeRecorder persists delivery outcomes. A nil recorder disables
// write-back.
type OutcomeRecorder interface {
	RecordDeliveryOutcome(ctx context.Context, outcome DeliveryOutcome) error
}

// Status is a read-only snapshot of the dispatcher.
type Status struct {
	QueueDepth    int    `json:"queue_depth"`
	WorkerRunning bool   `json:"worker_running"`
	Delivered     uint64 `json:"delivered"`
	Failed        uint64 `json:"failed"`
	Dropped       uint64 `json:"dropped"`
}

// Dispatcher owns the alert queue and its single delivery worker. Submit
// appends to the queue and returns immediately; the worker drains it in
// strict FIFO order, one delivery attempt per channel with a bounded
// timeout. Pending tasks are discarded at stop time.
type Dispatcher struct {
	logger         *zap.Logger
	senders        map[Channel]Sender
	recorder       OutcomeRecorder
	attemptTimeout time.Duration

	mu        sync.Mutex
	cond      *sync.Cond
	queue     []*Task
	running   bool
	stopping  bool
	wg        sync.WaitGroup
	delivered uint64
	failed    uint64
	dropped   uint64
}

func NewDispatcher(logger *zap.Logger, attemptTimeout time.Duration, recorder OutcomeRecorder, senders ...Sender) *Dispatcher {
	if attemptTimeout <= 0 {
		attemptTimeout = 30 * time.Second
	}

	d := &Dispatcher{
		logger:         logger,
		senders:        make(map[Channel]Sender, len(senders)),
		recorder:       recorder,
		attemptTimeout: attemptTimeout,
	}
	d.cond = sync.NewCond(&d.mu)
	for _, s := range senders {
		d.senders[s.Channel()] = s
	}
	return d
}

// Start launches the worker. Starting a running dispatcher is a no-op.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return nil
	}

	d.running = true
	d.stopping = false
	d.wg.Add(1)

	go d.workerLoop()

	d.logger.Info("Alert dispatcher started",
		zap.Int("channels", len(d.senders)),
		zap.Duration("attempt_timeout", d.attemptTimeout))

	return nil
}

// Stop signals the worker and waits for it to exit. An in-flight delivery
// completes or times out first; tasks still queued are counted and dropped.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running || d.stopping {
		d.mu.Unlock()
		return
	}
	d.stopping = true
	d.mu.Unlock()

	d.cond.Broadcast()
	d.wg.Wait()

	d.mu.Lock()
	d.running = false
	d.stopping = false
	d.mu.Unlock()

	d.logger.Info("Alert dispatcher stopped")
}

// Submit enqueues a task and returns immediately. It never performs network
// I/O; delivery happens on the worker.
func (d *Dispatcher) Submit(task *Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running || d.stopping {
		return fmt.Errorf("alert dispatcher not running")
	}

	d.queue = append(d.queue, task)
	d.cond.Signal()

	return nil
}

// IsRunning reports whether the worker is active.
func (d *Dispatcher) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Status returns a point-in-time snapshot for introspection.
func (d *Dispatcher) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Status{
		QueueDepth:    len(d.queue),
		WorkerRunning: d.running && !d.stopping,
		Delivered:     d.delivered,
		Failed:        d.failed,
		Dropped:       d.dropped,
	}
}

func (d *Dispatcher) workerLoop() {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.stopping {
			d.cond.Wait()
		}
		if d.stopping {
			dropped := len(d.queue)
			d.queue = nil
			d.dropped += uint64(dropped)
			d.mu.Unlock()
			if dropped > 0 {
				d.logger.Warn("Discarding queued alert tasks on shutdown", zap.Int("count", dropped))
			}
			return
		}
		task := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.deliver(task)
	}
}

// deliver runs one attempt per configured channel. Failures are logged and
// recorded; the task is dropped either way.
func (d *Dispatcher) deliver(task *Task) {
	for _, channel := range task.Channels {
		sender, ok := d.senders[channel]
		if !ok {
			d.logger.Warn("No sender configured for channel",
				zap.String("channel", string(channel)),
				zap.String("code", task.Code))
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), d.attemptTimeout)
		err := sender.Send(ctx, task)
		cancel()

		outcome := DeliveryOutcome{
			TaskID:      task.ID,
			CodeID:      task.CodeID,
			Channel:     channel,
			Recipients:  task.recipientCount(channel),
			Delivered:   err == nil,
			AttemptedAt: time.Now(),
		}

		d.mu.Lock()
		if err != nil {
			d.failed++
		} else {
			d.delivered++
		}
		d.mu.Unlock()

		if err != nil {
			outcome.Detail = err.Error()
			d.logger.Error("Alert delivery failed",
				zap.String("channel", string(channel)),
				zap.String("code", task.Code),
				zap.Error(err))
		} else {
			d.logger.Info("Alert delivered",
				zap.String("channel", string(channel)),
				zap.String("code", task.Code),
				zap.Int("recipients", outcome.Recipients))
		}

		d.recordOutcome(outcome)
	}
}

func (d *Dispatcher) recordOutcome(outcome DeliveryOutcome) {
	if d.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.attemptTimeout)
	defer cancel()
	if err := d.recorder.RecordDeliveryOutcome(ctx, outcome); err != nil {
		d.logger.Error("Failed to record delivery outcome",
			zap.String("code", outcome.CodeID.String()),
			zap.Error(err))
	}
}

func (t *Task) recipientCount(channel Channel) int {
	switch channel {
	case ChannelEmail:
		return len(t.EmailTo)
	case ChannelSMS:
		return len(t.SMSTo)
	}
	return 0
}
