package api

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/LucasAro/JuscashCase/domain"
)

// EventSink receives committed status changes, e.g. the history table or
// the event queue.
type EventSink interface {
	Record(ctx context.Context, ch domain.StatusChange) error
}

// DispatcherConfig sizes the worker pool.
type DispatcherConfig struct {
	Workers int
	Buffer  int
	// Timeout bounds the delivery of one change to one sink.
	Timeout time.Duration
	// Handoff is how long Publish waits for buffer space once it is full.
	Handoff time.Duration
}

// EventDispatcher delivers status changes to its sinks from a bounded pool
// of workers so request handlers never wait on them.
type EventDispatcher struct {
	jobs    chan domain.StatusChange
	sinks   []EventSink
	log     *log.Logger
	timeout time.Duration
	handoff time.Duration

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewEventDispatcher starts the workers.
func NewEventDispatcher(cfg DispatcherConfig, logger *log.Logger, sinks ...EventSink) *EventDispatcher {
	if logger == nil {
		panic("Logger is not initialized")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Buffer < 0 {
		cfg.Buffer = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	d := &EventDispatcher{
		jobs:    make(chan domain.StatusChange, cfg.Buffer),
		sinks:   sinks,
		log:     logger,
		timeout: cfg.Timeout,
		handoff: cfg.Handoff,
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	logger.Infof("event dispatcher started, workers: %d, buffer: %d, sinks: %d, timeout: %v, handoff: %v",
		cfg.Workers, cfg.Buffer, len(sinks), cfg.Timeout, cfg.Handoff)
	return d
}

func (d *EventDispatcher) worker(id int) {
	defer d.wg.Done()
	for ch := range d.jobs {
		for _, sink := range d.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			err := sink.Record(ctx, ch)
			cancel()
			if err != nil {
				d.log.WithFields(log.Fields{
					"event_id":       ch.ID,
					"publication_id": ch.PublicationID,
					"worker":         id,
				}).Errorf("status change delivery failed: %v", err)
			}
		}
	}
}

// Publish queues a change. It returns false when the change was dropped
// because the buffer stayed full for the handoff period or the dispatcher
// is closed.
func (d *EventDispatcher) Publish(ch domain.StatusChange) bool {
	if d == nil || len(d.sinks) == 0 {
		return true
	}

	if ok, closed := trySendNonBlocking(d.jobs, ch); closed {
		return false
	} else if ok {
		return true
	}

	if d.handoff <= 0 {
		return false
	}

	timer := time.NewTimer(d.handoff)
	defer timer.Stop()

	ok, closed := sendWithTimer(d.jobs, ch, timer.C)
	if closed {
		return false
	}
	return ok
}

// Close stops accepting changes and waits for queued ones to be delivered.
func (d *EventDispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.jobs)
	})
	d.wg.Wait()
}

func trySendNonBlocking(ch chan domain.StatusChange, v domain.StatusChange) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- v:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan domain.StatusChange, v domain.StatusChange, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- v:
		return true, false
	case <-timer:
		return false, false
	}
}
