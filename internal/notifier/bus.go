package notifier

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/dspcore/internal/errors"
	"github.com/tphakala/dspcore/internal/logger"
)

// Record is a detached copy of a data-plane event, safe to hand to another
// goroutine after the emitting object is gone.
type Record struct {
	ID     EventID
	Source string
	Amount uint32
	Offset uint32
	Value  int64
	Time   time.Time
}

// Recordable payloads can be forwarded to a Bus.
type Recordable interface {
	Record(id EventID) Record
}

// Consumer processes records on a Bus worker.
type Consumer interface {
	Name() string
	ProcessRecord(r Record) error
}

// BusConfig holds bus configuration.
type BusConfig struct {
	BufferSize int
	Workers    int
}

// DefaultBusConfig returns the default bus configuration.
func DefaultBusConfig() *BusConfig {
	return &BusConfig{
		BufferSize: 4096,
		Workers:    1,
	}
}

// BusStats contains runtime statistics for monitoring.
type BusStats struct {
	RecordsReceived  uint64
	RecordsProcessed uint64
	RecordsDropped   uint64
	ConsumerErrors   uint64
}

// Bus fans records out to consumers asynchronously. TryPublish never
// blocks: when the queue is full the record is dropped and counted.
type Bus struct {
	recordChan chan Record
	workers    int

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
	mu      sync.Mutex

	consumers []Consumer

	received  atomic.Uint64
	processed atomic.Uint64
	dropped   atomic.Uint64
	errs      atomic.Uint64

	log logger.Logger
}

// NewBus creates a bus. Workers start with the first consumer.
func NewBus(cfg *BusConfig, log logger.Logger) *Bus {
	if cfg == nil {
		cfg = DefaultBusConfig()
	}
	if log == nil {
		log = logger.Global().Module(ComponentNotifier)
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		recordChan: make(chan Record, max(cfg.BufferSize, 1)),
		workers:    max(cfg.Workers, 1),
		ctx:        ctx,
		cancel:     cancel,
		log:        log.Module("bus"),
	}
	b.log.Debug("bus created",
		logger.Int("buffer_size", cap(b.recordChan)),
		logger.Int("workers", b.workers))
	return b
}

// RegisterConsumer adds a consumer. Names must be unique.
func (b *Bus) RegisterConsumer(c Consumer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.consumers {
		if existing.Name() == c.Name() {
			return errors.Newf("consumer %s already registered", c.Name()).
				Component(ComponentNotifier).
				Category(errors.CategoryConflict).
				Build()
		}
	}

	b.consumers = append(b.consumers, c)
	b.log.Info("registered consumer", logger.String("consumer", c.Name()))

	if len(b.consumers) == 1 && b.ctx.Err() == nil {
		b.start()
	}
	return nil
}

// TryPublish queues r without blocking. It reports whether r was accepted.
func (b *Bus) TryPublish(r Record) bool {
	if b == nil || !b.running.Load() {
		return false
	}

	select {
	case b.recordChan <- r:
		b.received.Add(1)
		return true
	default:
		b.dropped.Add(1)
		b.log.Trace("record dropped due to full queue", logger.String("event", r.ID.String()))
		return false
	}
}

// Forward registers a wildcard listener on n that publishes every
// Recordable payload of the given events to the bus.
func (b *Bus) Forward(n *Notifier, ids ...EventID) error {
	for _, id := range ids {
		err := n.Register(b, nil, id, func(id EventID, data any) {
			if rec, ok := data.(Recordable); ok {
				b.TryPublish(rec.Record(id))
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *Bus) start() {
	if b.running.Swap(true) {
		return
	}
	for i := range b.workers {
		b.wg.Add(1)
		go b.worker(i)
	}
}

func (b *Bus) worker(id int) {
	defer b.wg.Done()

	log := b.log.With(logger.Int("worker_id", id))
	for {
		select {
		case <-b.ctx.Done():
			b.drain(log)
			return
		case r := <-b.recordChan:
			b.process(r, log)
		}
	}
}

// drain processes whatever is already queued so Shutdown loses nothing
// that TryPublish accepted.
func (b *Bus) drain(log logger.Logger) {
	for {
		select {
		case r := <-b.recordChan:
			b.process(r, log)
		default:
			return
		}
	}
}

func (b *Bus) process(r Record, log logger.Logger) {
	b.mu.Lock()
	consumers := make([]Consumer, len(b.consumers))
	copy(consumers, b.consumers)
	b.mu.Unlock()

	for _, c := range consumers {
		func() {
			defer func() {
				if p := recover(); p != nil {
					b.errs.Add(1)
					log.Error("consumer panicked",
						logger.String("consumer", c.Name()),
						logger.Any("panic", p))
				}
			}()

			if err := c.ProcessRecord(r); err != nil {
				b.errs.Add(1)
				log.Error("consumer error",
					logger.String("consumer", c.Name()),
					logger.Error(err))
				return
			}
			b.processed.Add(1)
		}()
	}
}

// Shutdown stops accepting records, drains the queue and waits for the
// workers up to timeout.
func (b *Bus) Shutdown(timeout time.Duration) error {
	if b == nil {
		return nil
	}

	b.running.Store(false)
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.log.Debug("bus shutdown complete")
		return nil
	case <-time.After(timeout):
		return errors.Newf("bus shutdown timeout exceeded").
			Component(ComponentNotifier).
			Category(errors.CategoryTimeout).
			Context("timeout", timeout).
			Build()
	}
}

// Stats returns current counters.
func (b *Bus) Stats() BusStats {
	if b == nil {
		return BusStats{}
	}
	return BusStats{
		RecordsReceived:  b.received.Load(),
		RecordsProcessed: b.processed.Load(),
		RecordsDropped:   b.dropped.Load(),
		ConsumerErrors:   b.errs.Load(),
	}
}
