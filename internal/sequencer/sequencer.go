// Package sequencer drains a ready list of download identifiers one at a
// time. Browsers throttle simultaneous downloads from one origin, so the
// queue enforces a single in-flight trigger with inter-download delays.
package sequencer

import (
	"context"
	"sync"
	"time"

	"github.com/italolelis/mediafetch/internal/logctx"
	"golang.org/x/sync/semaphore"
)

// Trigger fires one download for the identifier. Implementations fetch the
// streaming endpoint; the sequencer does not care how.
type Trigger interface {
	Fire(ctx context.Context, downloadID, sessionID string) error
}

// TriggerFunc adapts a function to the Trigger interface.
type TriggerFunc func(ctx context.Context, downloadID, sessionID string) error

func (f TriggerFunc) Fire(ctx context.Context, downloadID, sessionID string) error {
	return f(ctx, downloadID, sessionID)
}

type item struct {
	downloadID string
	sessionID  string
}

// Sequencer is a single-slot cooperative scheduler over one download queue.
// The concurrency bound of one is held by a weighted semaphore rather than
// emerging from timer callbacks.
type Sequencer struct {
	trigger     Trigger
	slot        *semaphore.Weighted
	settleDelay time.Duration
	interDelay  time.Duration

	mu    sync.Mutex
	queue []item
	done  chan struct{}
}

// New creates a sequencer. settleDelay is the pause after firing a trigger
// before the slot frees; interDelay is the gap between consecutive
// downloads.
func New(trigger Trigger, settleDelay, interDelay time.Duration) *Sequencer {
	return &Sequencer{
		trigger:     trigger,
		slot:        semaphore.NewWeighted(1),
		settleDelay: settleDelay,
		interDelay:  interDelay,
	}
}

// Enqueue appends the ready list to the queue and starts draining.
func (s *Sequencer) Enqueue(ctx context.Context, downloadIDs []string, sessionID string) {
	s.mu.Lock()

	for _, id := range downloadIDs {
		s.queue = append(s.queue, item{downloadID: id, sessionID: sessionID})
	}

	if s.done == nil {
		s.done = make(chan struct{})
		go s.drain(ctx)
	}

	s.mu.Unlock()
}

// Cancel clears the queue. A trigger already fired is not stopped; killing
// its transfer is the server's disconnect path.
func (s *Sequencer) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue = nil
}

// Pending returns the number of queued downloads.
func (s *Sequencer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.queue)
}

// Wait blocks until the current drain finishes or the context ends.
func (s *Sequencer) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sequencer) drain(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)

	defer func() {
		s.mu.Lock()
		close(s.done)
		s.done = nil
		s.mu.Unlock()
	}()

	for {
		next, ok := s.pop()
		if !ok {
			return
		}

		if err := s.slot.Acquire(ctx, 1); err != nil {
			return
		}

		if err := s.trigger.Fire(ctx, next.downloadID, next.sessionID); err != nil {
			logger.Error("failed to trigger download", "download_id", next.downloadID, "err", err)
		}

		if !sleep(ctx, s.settleDelay) {
			s.slot.Release(1)

			return
		}

		s.slot.Release(1)

		if s.Pending() > 0 && !sleep(ctx, s.interDelay) {
			return
		}
	}
}

func (s *Sequencer) pop() (item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return item{}, false
	}

	next := s.queue[0]
	s.queue = s.queue[1:]

	return next, true
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
