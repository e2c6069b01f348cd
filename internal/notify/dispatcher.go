package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultWorkers   = 2
	defaultQueueSize = 256
)

// DispatcherConfig configures the delivery worker pool.
type DispatcherConfig struct {
	Sender    Sender
	Workers   int
	QueueSize int
	// Timeout bounds a single delivery.
	Timeout time.Duration
	Logger  *zap.Logger
}

// Dispatcher delivers messages on a bounded pool of workers. Delivery is best
// effort: a full queue or a failed send is logged and dropped.
type Dispatcher struct {
	sender  Sender
	timeout time.Duration
	logger  *zap.Logger

	queue  chan Message
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sender := cfg.Sender
	if sender == nil {
		sender = LogSender{Logger: logger}
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}

	dispatcher := &Dispatcher{
		sender:  sender,
		timeout: timeout,
		logger:  logger,
		queue:   make(chan Message, queueSize),
	}
	for i := 0; i < workers; i++ {
		dispatcher.wg.Add(1)
		go dispatcher.work()
	}
	return dispatcher
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for message := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.sender.Send(ctx, message); err != nil {
			d.logger.Warn("email delivery failed",
				zap.String("to", message.To),
				zap.String("subject", message.Subject),
				zap.Error(err),
			)
		}
		cancel()
	}
}

// Dispatch queues message without blocking. The request context is not carried
// into delivery so a finished request does not cancel the send.
func (d *Dispatcher) Dispatch(_ context.Context, message Message) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("email dropped during shutdown", zap.String("to", message.To))
		return
	}
	select {
	case d.queue <- message:
	default:
		d.logger.Warn("email queue full, dropping message", zap.String("to", message.To))
	}
}

// Shutdown stops accepting messages and waits for queued deliveries.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
