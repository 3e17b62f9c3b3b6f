package bot

import (
	"context"
	"sync"
	"time"

	"finbot/internal/log"
)

// Handler processes one event.
type Handler interface {
	Handle(ctx context.Context, ev Event) error
}

type chatQueue struct {
	events  chan Event
	pending int
}

// Dispatcher feeds events to a Handler with one worker per active chat:
// a chat's events are handled in arrival order while different chats
// proceed concurrently. Workers exit after being idle for a while.
type Dispatcher struct {
	base    context.Context
	handler Handler
	logger  *log.Logger
	idle    time.Duration

	mu     sync.Mutex
	queues map[int64]*chatQueue
	wg     sync.WaitGroup
}

// NewDispatcher returns a dispatcher whose workers run until ctx is done.
func NewDispatcher(ctx context.Context, h Handler, logger *log.Logger) *Dispatcher {
	return &Dispatcher{
		base:    ctx,
		handler: h,
		logger:  logger.WithComponent(log.ComponentBot),
		idle:    5 * time.Minute,
		queues:  map[int64]*chatQueue{},
	}
}

// Dispatch queues ev for its chat. It blocks only while the chat's queue is
// full and returns ctx.Err() if ctx ends first. ctx does not reach the
// handler.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	d.mu.Lock()
	q, ok := d.queues[ev.ChatID]
	if !ok {
		q = &chatQueue{events: make(chan Event, 16)}
		d.queues[ev.ChatID] = q
		d.wg.Add(1)
		go d.work(d.base, ev.ChatID, q)
	}
	q.pending++
	d.mu.Unlock()

	select {
	case q.events <- ev:
		return nil
	case <-ctx.Done():
		d.mu.Lock()
		q.pending--
		d.mu.Unlock()
		return ctx.Err()
	}
}

func (d *Dispatcher) work(ctx context.Context, chatID int64, q *chatQueue) {
	defer d.wg.Done()
	timer := time.NewTimer(d.idle)
	defer timer.Stop()

	for {
		select {
		case ev := <-q.events:
			if err := d.handler.Handle(ctx, ev); err != nil {
				d.logger.WarnContext(ctx, "Event failed", log.FieldChatID, chatID, log.FieldError, err)
			}
			d.mu.Lock()
			q.pending--
			d.mu.Unlock()
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(d.idle)
		case <-timer.C:
			d.mu.Lock()
			if q.pending == 0 {
				delete(d.queues, chatID)
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
			timer.Reset(d.idle)
		case <-ctx.Done():
			d.mu.Lock()
			delete(d.queues, chatID)
			d.mu.Unlock()
			return
		}
	}
}

// Wait blocks until every worker has exited.
func (d *Dispatcher) Wait() { d.wg.Wait() }
