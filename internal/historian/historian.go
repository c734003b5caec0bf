// internal/historian/historian.go is an asynchronous historian that pops room
// events from the queue and persists them, and sweeps expired rooms.
package historian

import (
	"context"
	"sync"
	"time"

	"github.com/jason-s-yu/sudokuduel/internal/models"
	"github.com/sirupsen/logrus"
)

// Queue yields published room events. Pop returns nil, nil on timeout.
type Queue interface {
	Pop(ctx context.Context, timeout time.Duration) (*models.RoomEvent, error)
}

// Sink persists a batch of events atomically.
type Sink interface {
	InsertEvents(ctx context.Context, events []models.RoomEvent) error
}

// Purger deletes rooms past their expiry.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// Service drains the event queue into the sink in batches and periodically
// purges expired rooms.
type Service struct {
	queue  Queue
	sink   Sink
	purger Purger
	logger *logrus.Logger

	BatchSize     int
	FlushInterval time.Duration
	SweepInterval time.Duration
	PopTimeout    time.Duration
	// MaxPending caps how many unflushed events survive failed flushes.
	MaxPending int
	Now        func() time.Time

	batchMu sync.Mutex
	batch   []models.RoomEvent
}

// New returns a service with the given loop settings.
func New(queue Queue, sink Sink, purger Purger, logger *logrus.Logger) *Service {
	return &Service{
		queue:         queue,
		sink:          sink,
		purger:        purger,
		logger:        logger,
		BatchSize:     20,
		FlushInterval: 500 * time.Millisecond,
		SweepInterval: time.Minute,
		PopTimeout:    3 * time.Second,
		MaxPending:    1000,
		Now:           time.Now,
	}
}

// Run starts the drain and sweep loops and blocks until ctx is cancelled,
// then flushes whatever is still batched.
func (s *Service) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); s.readLoop(ctx) }()
	go func() { defer wg.Done(); s.flushLoop(ctx) }()
	go func() { defer wg.Done(); s.sweepLoop(ctx) }()

	s.logger.Info("historian started")
	<-ctx.Done()
	wg.Wait()

	// the run context is gone; give the final flush its own deadline
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Flush(flushCtx)
	s.logger.Info("historian shutting down")
}

// readLoop pops events one at a time and flushes when the batch is full.
func (s *Service) readLoop(ctx context.Context) {
	for ctx.Err() == nil {
		ev, err := s.queue.Pop(ctx, s.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.WithError(err).Error("pop room event")
			continue
		}
		if ev == nil {
			continue
		}
		if s.append(*ev) {
			s.Flush(ctx)
		}
	}
}

func (s *Service) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(s.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Flush(ctx)
		}
	}
}

func (s *Service) sweepLoop(ctx context.Context) {
	if s.purger == nil {
		return
	}
	ticker := time.NewTicker(s.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// append adds ev and reports whether the batch reached BatchSize.
func (s *Service) append(ev models.RoomEvent) bool {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	s.batch = append(s.batch, ev)
	return len(s.batch) >= s.BatchSize
}

// Flush writes the pending batch in one transaction. On failure the events
// stay pending for the next flush, oldest dropped beyond MaxPending.
func (s *Service) Flush(ctx context.Context) int {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return 0
	}
	pending := s.batch
	s.batch = nil
	s.batchMu.Unlock()

	if err := s.sink.InsertEvents(ctx, pending); err != nil {
		s.logger.WithError(err).WithField("events", len(pending)).Error("flush room events")
		s.requeue(pending)
		return 0
	}
	s.logger.WithField("events", len(pending)).Debug("flushed room events")
	return len(pending)
}

func (s *Service) requeue(pending []models.RoomEvent) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	s.batch = append(pending, s.batch...)
	if over := len(s.batch) - s.MaxPending; s.MaxPending > 0 && over > 0 {
		s.logger.WithField("dropped", over).Warn("historian backlog full, dropping oldest events")
		s.batch = append([]models.RoomEvent(nil), s.batch[over:]...)
	}
}

// Pending returns how many events are waiting to be flushed.
func (s *Service) Pending() int {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return len(s.batch)
}

// Sweep purges rooms whose expiry has passed.
func (s *Service) Sweep(ctx context.Context) int {
	n, err := s.purger.PurgeExpired(ctx, s.Now())
	if err != nil {
		s.logger.WithError(err).Error("purge expired rooms")
		return 0
	}
	if n > 0 {
		s.logger.WithField("rooms", n).Info("purged expired rooms")
	}
	return n
}
