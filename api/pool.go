package api

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"prism-todo/domain"
)

type poolConfig struct {
	workers        int
	buffer         int
	publishTimeout time.Duration
	handoffTimeout time.Duration
}

func poolConfigFromEnv() poolConfig {
	return poolConfig{
		workers:        envInt("EVENT_WORKERS", 4),
		buffer:         envInt("EVENT_BUFFER", 256),
		publishTimeout: envDur("EVENT_TIMEOUT", 10*time.Second),
		handoffTimeout: envDur("EVENT_HANDOFF_TIMEOUT", 15*time.Millisecond),
	}
}

// eventPool publishes change events off the request path. A nil pool
// drops events.
type eventPool struct {
	publisher EventPublisher
	logger    *log.Logger
	cfg       poolConfig
	jobs      chan domain.TodoEvent
	workerWG  sync.WaitGroup
	closeOnce sync.Once
}

func newEventPool(publisher EventPublisher, cfg poolConfig, logger *log.Logger) *eventPool {
	if publisher == nil {
		return nil
	}
	if logger == nil {
		panic("Logger is not initialized")
	}
	if cfg.workers <= 0 {
		cfg.workers = 1
	}
	if cfg.buffer < 0 {
		cfg.buffer = 0
	}
	p := &eventPool{
		publisher: publisher,
		logger:    logger,
		cfg:       cfg,
		jobs:      make(chan domain.TodoEvent, cfg.buffer),
	}
	for i := 0; i < cfg.workers; i++ {
		p.workerWG.Add(1)
		go p.worker(i)
	}
	logger.Infof("event publisher started, workers: %d, buffer: %d, timeout: %v, handoff: %v", cfg.workers, cfg.buffer, cfg.publishTimeout, cfg.handoffTimeout)
	return p
}

func (p *eventPool) worker(id int) {
	defer p.workerWG.Done()
	for ev := range p.jobs {
		if err := p.publishNow(ev); err != nil {
			p.logger.Errorf("event publish failed, err: %v, type: %s, todo: %s, worker: %d", err, ev.Type, ev.Todo.ID, id)
		}
	}
}

func (p *eventPool) publishNow(ev domain.TodoEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.publishTimeout)
	defer cancel()
	return p.publisher.PublishEvents(ctx, []domain.TodoEvent{ev})
}

// Publish hands the event to a worker, or publishes inline when the
// buffer stays full past the hand-off timeout.
func (p *eventPool) Publish(ev domain.TodoEvent) {
	if p == nil {
		return
	}
	if p.tryEnqueue(ev) {
		return
	}

	p.logger.Warn("event buffer saturated; publishing inline")
	if err := p.publishNow(ev); err != nil {
		p.logger.Errorf("inline event publish failed, err: %v, type: %s, todo: %s", err, ev.Type, ev.Todo.ID)
	}
}

func (p *eventPool) tryEnqueue(ev domain.TodoEvent) bool {
	if ok, closed := trySendNonBlocking(p.jobs, ev); closed {
		return false
	} else if ok {
		return true
	}

	if p.cfg.handoffTimeout <= 0 {
		return false
	}

	timer := time.NewTimer(p.cfg.handoffTimeout)
	defer timer.Stop()

	ok, closed := sendWithTimer(p.jobs, ev, timer.C)
	if closed {
		return false
	}
	return ok
}

// Close stops accepting work and waits for queued events to drain.
func (p *eventPool) Close(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.closeOnce.Do(func() { close(p.jobs) })

	done := make(chan struct{})
	go func() {
		p.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func trySendNonBlocking(ch chan domain.TodoEvent, ev domain.TodoEvent) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- ev:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan domain.TodoEvent, ev domain.TodoEvent, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- ev:
		return true, false
	case <-timer:
		return false, false
	}
}
