package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ignite/ses-guard/internal/pkg/logger"
)

type subscription struct {
	name     string
	listener Listener
	only     map[string]bool
}

func (s subscription) wants(e Event) bool {
	return len(s.only) == 0 || s.only[e.Name()]
}

// Dispatcher fans events out to listeners, each on its own goroutine.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners []subscription
	timeout   time.Duration
	wg        sync.WaitGroup
	onError   func(listener string, err error)
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout bounds each listener invocation.
func WithTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) { disp.timeout = d }
}

// WithErrorHook is called after a listener fails or panics.
func WithErrorHook(fn func(listener string, err error)) Option {
	return func(disp *Dispatcher) { disp.onError = fn }
}

// NewDispatcher creates a dispatcher with a 30s listener timeout.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Subscribe registers l under name, which labels its failures. l receives
// the events named in eventNames, or every event when none are given.
func (d *Dispatcher) Subscribe(name string, l Listener, eventNames ...string) {
	sub := subscription{name: name, listener: l}
	if len(eventNames) > 0 {
		sub.only = make(map[string]bool, len(eventNames))
		for _, n := range eventNames {
			sub.only[n] = true
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, sub)
}

// Publish hands e to every listener and returns immediately. Listeners run
// detached from ctx cancellation so they outlive the HTTP request.
func (d *Dispatcher) Publish(ctx context.Context, e Event) {
	if e == nil {
		return
	}
	d.mu.RLock()
	subs := make([]subscription, len(d.listeners))
	copy(subs, d.listeners)
	d.mu.RUnlock()

	base := context.WithoutCancel(ctx)
	for _, s := range subs {
		if !s.wants(e) {
			continue
		}
		d.wg.Add(1)
		go d.run(base, s, e)
	}
}

func (d *Dispatcher) run(ctx context.Context, s subscription, e Event) {
	defer d.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			d.fail(s.name, e, fmt.Errorf("listener panic: %v", r))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := s.listener.Handle(ctx, e); err != nil {
		d.fail(s.name, e, err)
	}
}

func (d *Dispatcher) fail(name string, e Event, err error) {
	logger.Error("[events] listener failed",
		"listener", name, "event", e.Name(), "email", e.Notification().Email, "error", err)
	if d.onError != nil {
		d.onError(name, err)
	}
}

// Wait blocks until every published event has been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// LogListener records every event at INFO.
func LogListener() Listener {
	return ListenerFunc(func(ctx context.Context, e Event) error {
		n := e.Notification()
		logger.Info("[events] notification received",
			"event", e.Name(), "email", n.Email, "sub_type", n.SubType, "message_id", n.MessageID)
		return nil
	})
}
