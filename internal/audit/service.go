// Package audit records every safety evaluation to a pluggable sink without
// blocking the request path.
package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Sink persists audit events.
type Sink interface {
	Write(ctx context.Context, event Event) error
}

// Service queues events and writes them to the sink on a background worker.
// A full queue drops the event with a warning; audit must never slow down or
// fail an evaluation.
type Service struct {
	sink   Sink
	clock  Clock
	idgen  IDGenerator
	log    zerolog.Logger
	queue  chan Event
	stopCh chan struct{}
	done   sync.WaitGroup
	closed int32
}

// NewService creates an audit service and starts its worker.
func NewService(sink Sink, log zerolog.Logger, clock Clock, idgen IDGenerator, queueSize int) *Service {
	if clock == nil {
		clock = SystemClock{}
	}
	if idgen == nil {
		idgen = UUIDGenerator{}
	}
	if queueSize <= 0 {
		queueSize = 1024
	}

	s := &Service{
		sink:   sink,
		clock:  clock,
		idgen:  idgen,
		log:    log.With().Str("component", "audit").Logger(),
		queue:  make(chan Event, queueSize),
		stopCh: make(chan struct{}),
	}

	s.done.Add(1)
	go s.worker()

	return s
}

func (s *Service) worker() {
	defer s.done.Done()
	for {
		select {
		case event := <-s.queue:
			s.write(event)
		case <-s.stopCh:
			for {
				select {
				case event := <-s.queue:
					s.write(event)
				default:
					return
				}
			}
		}
	}
}

func (s *Service) write(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.sink.Write(ctx, event); err != nil {
		s.log.Error().Err(err).Str("event_id", event.ID).Str("slug", event.Slug).Msg("failed to write audit event")
	}
}

// Log stamps the event with an ID and time and queues it.
func (s *Service) Log(event Event) {
	if atomic.LoadInt32(&s.closed) == 1 {
		return
	}
	if event.ID == "" {
		event.ID = s.idgen.Generate()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.clock.Now()
	}

	select {
	case s.queue <- event:
	default:
		s.log.Warn().Str("slug", event.Slug).Str("outcome", string(event.Outcome)).Msg("audit queue full, dropping event")
	}
}

// Close stops accepting events, drains the queue and waits for the worker.
// It is safe to call more than once.
func (s *Service) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	close(s.stopCh)
	s.done.Wait()
	return nil
}
