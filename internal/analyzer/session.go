package analyzer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	apperrors "go-qr-scanner/internal/errors"
	"go-qr-scanner/internal/frame"
	"go-qr-scanner/internal/logger"
	"go-qr-scanner/internal/observer"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrSessionStopped is returned for any operation on a released session.
	ErrSessionStopped = apperrors.NewSessionError("scan session stopped", nil)
	// ErrSessionStarted is returned when Start is called twice.
	ErrSessionStarted = apperrors.NewSessionError("scan session already started", nil)
	// ErrSessionNotStarted is returned when Reset precedes Start.
	ErrSessionNotStarted = apperrors.NewSessionError("scan session not started", nil)
)

// pendingFrame is a converted frame waiting for the worker.
type pendingFrame struct {
	lum        *frame.Luminance
	generation uint64
}

// StreamScanSession picks exactly one result out of a continuous frame
// stream. Frames are offered by the capture pipeline, analyzed one at a time
// on a dedicated worker goroutine, and the first decoded payload is handed to
// the result handler exactly once per session lifetime (Start or Reset up to
// the next Reset).
type StreamScanSession struct {
	id         string
	decoder    QRDecoder
	handler    ResultHandler
	dispatcher Dispatcher
	events     observer.Subject

	// mu guards state transitions, the pending slot and the generation.
	mu         sync.Mutex
	state      atomic.Int32
	generation uint64
	pending    *pendingFrame
	result     ScanOutcome
	wake       chan struct{}

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	offered  atomic.Uint64
	rejected atomic.Uint64
	dropped  atomic.Uint64
	analyzed atomic.Uint64
	decoded  atomic.Uint64
}

// SessionOption customizes a StreamScanSession
type SessionOption func(*StreamScanSession)

// WithDispatcher delivers the result through d instead of on the worker.
func WithDispatcher(d Dispatcher) SessionOption {
	return func(s *StreamScanSession) {
		if d != nil {
			s.dispatcher = d
		}
	}
}

// WithEvents publishes session events to subject.
func WithEvents(subject observer.Subject) SessionOption {
	return func(s *StreamScanSession) {
		s.events = subject
	}
}

// WithSessionID overrides the generated session id.
func WithSessionID(id string) SessionOption {
	return func(s *StreamScanSession) {
		if id != "" {
			s.id = id
		}
	}
}

// NewStreamScanSession creates an idle session.
func NewStreamScanSession(decoder QRDecoder, handler ResultHandler, opts ...SessionOption) *StreamScanSession {
	s := &StreamScanSession{
		id:         uuid.NewString(),
		decoder:    decoder,
		handler:    handler,
		dispatcher: InlineDispatcher{},
		wake:       make(chan struct{}, SessionConfig.MaxConcurrentAnalyses),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session id
func (s *StreamScanSession) ID() string { return s.id }

// State returns the current lifecycle state
func (s *StreamScanSession) State() SessionState {
	return SessionState(s.state.Load())
}

// Result returns the outcome that completed the current lifetime, if any.
func (s *StreamScanSession) Result() (ScanOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != StateCompleted {
		return ScanOutcome{}, false
	}
	return s.result, true
}

// Stats returns a snapshot of the frame counters
func (s *StreamScanSession) Stats() SessionStats {
	return SessionStats{
		Offered:  s.offered.Load(),
		Rejected: s.rejected.Load(),
		Dropped:  s.dropped.Load(),
		Analyzed: s.analyzed.Load(),
		Decoded:  s.decoded.Load(),
	}
}

// setState must be called with mu held.
func (s *StreamScanSession) setState(state SessionState) {
	s.state.Store(int32(state))
}

// Start moves an idle session to Analyzing and launches its worker. The
// worker lives until Stop is called or ctx ends.
func (s *StreamScanSession) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.State() {
	case StateStopped:
		s.mu.Unlock()
		return ErrSessionStopped
	case StateIdle:
	default:
		s.mu.Unlock()
		return ErrSessionStarted
	}

	workerCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.setState(StateAnalyzing)
	s.mu.Unlock()

	go s.run(workerCtx)

	s.publish(observer.ScanEvent{EventType: observer.SessionStarted})
	return nil
}

// Offer hands a captured frame to the session. The buffer is copied before
// Offer returns, so the producer may recycle it immediately. A frame that is
// still pending when a newer one arrives is dropped. Offer reports whether
// the frame was accepted.
func (s *StreamScanSession) Offer(buf frame.Buffer) bool {
	s.offered.Add(1)
	if s.State() != StateAnalyzing {
		s.rejected.Add(1)
		return false
	}

	lum, err := frame.Adapt(buf)
	if err != nil {
		s.rejected.Add(1)
		logger.WithError(err).WithFields(logrus.Fields{
			"session_id": s.id,
			"width":      buf.Width,
			"height":     buf.Height,
			"format":     buf.Format.String(),
		}).Debug("Skipping frame that cannot be converted")
		s.publish(observer.ScanEvent{EventType: observer.FrameRejected, ErrorMessage: err.Error()})
		return false
	}

	s.mu.Lock()
	if s.State() != StateAnalyzing {
		s.mu.Unlock()
		s.rejected.Add(1)
		return false
	}
	displaced := s.pending != nil
	s.pending = &pendingFrame{lum: lum, generation: s.generation}
	s.mu.Unlock()

	if displaced {
		s.dropped.Add(1)
		s.publish(observer.ScanEvent{EventType: observer.FrameDropped})
	}

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// Reset rebinds the stream after a result was shown: the pending frame is
// discarded, frames analyzed under the previous lifetime can no longer
// complete, and the session returns to Analyzing.
func (s *StreamScanSession) Reset() error {
	s.mu.Lock()
	switch s.State() {
	case StateStopped:
		s.mu.Unlock()
		return ErrSessionStopped
	case StateIdle:
		s.mu.Unlock()
		return ErrSessionNotStarted
	}
	s.generation++
	s.pending = nil
	s.result = ScanOutcome{}
	s.setState(StateAnalyzing)
	s.mu.Unlock()

	s.publish(observer.ScanEvent{EventType: observer.SessionReset})
	return nil
}

// Stop releases the worker and returns once it has exited. No frame is
// analyzed after Stop returns. Stop is idempotent. Result handlers must not
// call Stop synchronously from the worker (InlineDispatcher).
func (s *StreamScanSession) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.setState(StateStopped)
		s.pending = nil
		cancel, done := s.cancel, s.done
		s.mu.Unlock()

		if cancel != nil {
			cancel()
			<-done
		}

		stats := s.Stats()
		s.publish(observer.ScanEvent{
			EventType: observer.SessionStopped,
			Metadata: map[string]interface{}{
				"frames_offered":  stats.Offered,
				"frames_dropped":  stats.Dropped,
				"frames_analyzed": stats.Analyzed,
			},
		})
	})
}

// Done is closed once the worker has exited. It is nil before Start.
func (s *StreamScanSession) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *StreamScanSession) run(ctx context.Context) {
	defer close(s.done)
	defer func() {
		// the parent context ended without Stop
		s.mu.Lock()
		s.setState(StateStopped)
		s.pending = nil
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}

		for {
			if ctx.Err() != nil {
				return
			}
			p := s.take()
			if p == nil {
				break
			}
			s.analyze(ctx, p)
		}
	}
}

// take empties the pending slot. It yields nothing unless the session is Analyzing.
func (s *StreamScanSession) take() *pendingFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != StateAnalyzing {
		s.pending = nil
		return nil
	}
	p := s.pending
	s.pending = nil
	return p
}

func (s *StreamScanSession) analyze(ctx context.Context, p *pendingFrame) {
	start := time.Now()

	orientation, err := frame.OrientationFromDegrees(p.lum.RotationHint())
	if err != nil {
		logger.WithError(err).WithField("session_id", s.id).
			Debug("Unsupported rotation hint, decoding frame unrotated")
	}
	outcome := s.decoder.Decode(frame.Normalize(p.lum, orientation))
	s.analyzed.Add(1)

	event := observer.ScanEvent{
		EventType:      observer.FrameAnalyzed,
		ProcessingTime: time.Since(start),
		Success:        outcome.IsDecoded(),
		Outcome:        outcome.Kind.String(),
	}
	if outcome.Err != nil {
		event.ErrorMessage = outcome.Err.Error()
	}
	s.publish(event)

	if !outcome.IsDecoded() {
		if outcome.Kind == OutcomeError {
			logger.WithError(outcome.Err).WithField("session_id", s.id).
				Debug("Frame contained an unreadable symbol")
		}
		return
	}

	if !s.complete(p.generation, outcome) {
		logger.WithField("session_id", s.id).Debug("Discarding result from a previous scan lifetime")
		return
	}
	s.decoded.Add(1)
	s.deliver(ctx, outcome, time.Since(start))
}

// complete performs the Analyzing -> Completed transition for a frame of
// the current generation. Only one caller per lifetime can win.
func (s *StreamScanSession) complete(generation uint64, outcome ScanOutcome) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != StateAnalyzing || generation != s.generation {
		return false
	}
	s.setState(StateCompleted)
	s.result = outcome
	s.pending = nil
	return true
}

func (s *StreamScanSession) deliver(ctx context.Context, outcome ScanOutcome, elapsed time.Duration) {
	s.publish(observer.ScanEvent{
		EventType:      observer.ScanCompleted,
		ProcessingTime: elapsed,
		Success:        true,
		Outcome:        outcome.Kind.String(),
	})

	if s.handler == nil {
		return
	}
	if err := s.dispatcher.Dispatch(ctx, func() { s.handler(ctx, outcome) }); err != nil {
		logger.WithError(err).WithField("session_id", s.id).Warn("Result delivery did not complete")
	}
}

func (s *StreamScanSession) publish(event observer.ScanEvent) {
	if s.events == nil {
		return
	}
	event.SessionID = s.id
	event.Source = "stream"
	event.Timestamp = time.Now()
	s.events.NotifyObservers(context.Background(), event)
}
