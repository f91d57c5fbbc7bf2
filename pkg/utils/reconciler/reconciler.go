/*
Copyright 2025 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package reconciler runs a handler on file changes and on a resync timer,
// retrying failed events with exponential backoff.
package reconciler

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
)

// EventType represents the type of reconciliation event
type EventType string

const (
	FileEvent  EventType = "file"
	TimerEvent EventType = "timer"

	// SyncKey is the key of timer events.
	SyncKey = "sync"
)

// Event represents a reconciliation event
type Event struct {
	Type EventType
	Key  string
	Data any
}

// Equal checks if two events are equivalent and can be merged
func (e Event) Equal(other Event) bool {
	return e.Type == other.Type && e.Key == other.Key
}

// EventSender defines the interface for sending events
type EventSender interface {
	SendEvent(event Event)
}

// Handler defines the interface for reconciliation logic
type Handler interface {
	Reconcile(ctx context.Context, sender EventSender, event Event) error
}

// HandlerFunc is a function adapter for Handler
type HandlerFunc func(ctx context.Context, sender EventSender, event Event) error

// Reconcile calls the HandlerFunc with the given parameters
func (f HandlerFunc) Reconcile(ctx context.Context, sender EventSender, event Event) error {
	return f(ctx, sender, event)
}

type pendingEvent struct {
	event     Event
	attempts  int
	nextRetry time.Time
}

// Config holds configuration for the reconciler
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// WatchFile is watched through its directory, editors replace files
	// instead of writing them in place. Empty disables file events.
	WatchFile string
	// SyncDelay is the resync period, zero disables timer events.
	SyncDelay time.Duration

	Logger logr.Logger
}

// DefaultConfig returns a default reconciler configuration
func DefaultConfig(logger logr.Logger) Config {
	return Config{
		MaxRetries: 5,
		BaseDelay:  2 * time.Second,
		MaxDelay:   30 * time.Second,
		SyncDelay:  time.Minute,
		Logger:     logger,
	}
}

// Reconciler manages the reconciliation process
//
//nolint:containedctx
type Reconciler struct {
	config  Config
	handler Handler
	logger  logr.Logger

	queue chan pendingEvent

	watcher *fsnotify.Watcher
	ticker  *time.Ticker

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped atomic.Bool
}

// NewReconciler creates a new reconciler, events are delivered after Start.
func NewReconciler(ctx context.Context, config Config, handler Handler) (*Reconciler, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Reconciler{
		config:  config,
		handler: handler,
		logger:  config.Logger,
		queue:   make(chan pendingEvent, 100),
		watcher: watcher,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start begins watching and sends the first sync event
func (rf *Reconciler) Start() error {
	if rf.config.WatchFile != "" {
		dir := filepath.Dir(rf.config.WatchFile)
		if err := rf.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", dir, err)
		}

		rf.wg.Add(1)
		go rf.watchFiles()
	}

	if rf.config.SyncDelay > 0 {
		rf.ticker = time.NewTicker(rf.config.SyncDelay)

		rf.wg.Add(1)
		go rf.watchTimer()
	}

	rf.wg.Add(1)
	go rf.processEvents()

	rf.SendEvent(Event{
		Type: TimerEvent,
		Key:  SyncKey,
		Data: time.Now(),
	})

	return nil
}

// Stop gracefully stops the reconciler and waits for running handlers
func (rf *Reconciler) Stop() {
	if rf.stopped.Swap(true) {
		return
	}

	rf.cancel()

	rf.watcher.Close() //nolint:errcheck
	if rf.ticker != nil {
		rf.ticker.Stop()
	}

	rf.wg.Wait()
}

// SendEvent adds an event to the reconciliation queue
func (rf *Reconciler) SendEvent(event Event) {
	if rf.stopped.Load() {
		return
	}

	select {
	case rf.queue <- pendingEvent{event: event}:
	case <-rf.ctx.Done():
	}
}

// watchFiles forwards changes of the watched file
func (rf *Reconciler) watchFiles() {
	defer rf.wg.Done()

	rf.logger.V(1).Info("Starting file watcher", "file", rf.config.WatchFile)

	target := filepath.Clean(rf.config.WatchFile)
	relevantOps := fsnotify.Create | fsnotify.Write | fsnotify.Rename | fsnotify.Remove

	for {
		select {
		case event, ok := <-rf.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != target || event.Op&relevantOps == 0 {
				continue
			}

			rf.logger.V(3).Info("File system event received", "name", event.Name, "op", event.Op)

			rf.SendEvent(Event{
				Type: FileEvent,
				Key:  target,
				Data: event,
			})

		case err, ok := <-rf.watcher.Errors:
			if !ok {
				return
			}

			rf.logger.Error(err, "File watcher error")

		case <-rf.ctx.Done():
			rf.logger.V(1).Info("File watcher shutting down")

			return
		}
	}
}

// watchTimer sends periodic sync events
func (rf *Reconciler) watchTimer() {
	defer rf.wg.Done()

	rf.logger.V(1).Info("Starting timer watcher", "period", rf.config.SyncDelay)

	for {
		select {
		case <-rf.ticker.C:
			rf.logger.V(3).Info("Timer event triggered")
			rf.SendEvent(Event{
				Type: TimerEvent,
				Key:  SyncKey,
				Data: time.Now(),
			})

		case <-rf.ctx.Done():
			rf.logger.V(1).Info("Timer watcher shutting down")

			return
		}
	}
}

// processEvents runs the handler, merging duplicate events and delaying retries
func (rf *Reconciler) processEvents() {
	defer rf.wg.Done()

	rf.logger.V(1).Info("Starting event processor")

	retryTicker := time.NewTicker(time.Second)
	defer retryTicker.Stop()

	pending := make([]pendingEvent, 0)

	for {
		select {
		case ev := <-rf.queue:
			// a new event replaces a pending retry of the same key
			idx := -1

			for i, existing := range pending {
				if existing.event.Equal(ev.event) {
					idx = i

					break
				}
			}

			if idx >= 0 {
				pending = append(pending[:idx], pending[idx+1:]...)
			}

			if retry := rf.handle(ev); retry != nil {
				pending = append(pending, *retry)
			}

		case <-retryTicker.C:
			now := time.Now()
			remaining := pending[:0]

			for _, ev := range pending {
				if now.Before(ev.nextRetry) {
					remaining = append(remaining, ev)

					continue
				}

				if retry := rf.handle(ev); retry != nil {
					remaining = append(remaining, *retry)
				}
			}

			pending = remaining

		case <-rf.ctx.Done():
			return
		}
	}
}

// handle runs the handler once and returns the event to retry, if any
func (rf *Reconciler) handle(ev pendingEvent) *pendingEvent {
	rf.logger.V(1).Info("Processing event", "type", ev.event.Type, "key", ev.event.Key, "attempts", ev.attempts)

	err := rf.handler.Reconcile(rf.ctx, rf, ev.event)

	switch {
	case err != nil && ev.attempts < rf.config.MaxRetries:
		delay := time.Duration(float64(rf.config.BaseDelay) * math.Pow(2, float64(ev.attempts)))
		delay = min(delay, rf.config.MaxDelay)

		rf.logger.Error(err, "Reconciliation failed, scheduling retry",
			"attempt", ev.attempts+1,
			"maxRetries", rf.config.MaxRetries,
			"retryIn", delay)

		return &pendingEvent{
			event:     ev.event,
			attempts:  ev.attempts + 1,
			nextRetry: time.Now().Add(delay),
		}
	case err != nil:
		rf.logger.Error(err, "Reconciliation permanently failed", "attempts", ev.attempts)
	default:
		rf.logger.V(1).Info("Reconciliation succeeded", "type", ev.event.Type, "key", ev.event.Key)
	}

	return nil
}
