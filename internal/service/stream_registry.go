package service

import (
	"context"
	"sync"
	"time"

	"go-qr-scanner/internal/analyzer"
	apperrors "go-qr-scanner/internal/errors"
	"go-qr-scanner/internal/frame"
	"go-qr-scanner/internal/logger"
	"go-qr-scanner/internal/observer"
	"go-qr-scanner/pkg/models"
)

// ErrStreamLimit is returned when MaxStreams sessions are already open.
var ErrStreamLimit = apperrors.NewSessionError("stream limit reached", nil)

// streamEntry pairs a session with the result slot its handler fills
type streamEntry struct {
	session   *analyzer.StreamScanSession
	createdAt time.Time

	mu     sync.Mutex
	result *models.StreamResult
}

// deliver stores outcome unless the session was reset after it completed
func (e *streamEntry) deliver(outcome analyzer.ScanOutcome) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if current, ok := e.session.Result(); !ok || current.Text != outcome.Text {
		return
	}
	e.result = &models.StreamResult{Text: outcome.Text, DecodedAt: time.Now().UTC()}
}

func (e *streamEntry) reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.session.Reset(); err != nil {
		return err
	}
	e.result = nil
	return nil
}

func (e *streamEntry) status() *models.StreamStatus {
	e.mu.Lock()
	result := e.result
	e.mu.Unlock()

	stats := e.session.Stats()
	return &models.StreamStatus{
		ID:        e.session.ID(),
		State:     e.session.State().String(),
		CreatedAt: e.createdAt,
		Result:    result,
		Stats: models.StreamStats{
			Offered:  stats.Offered,
			Rejected: stats.Rejected,
			Dropped:  stats.Dropped,
			Analyzed: stats.Analyzed,
			Decoded:  stats.Decoded,
		},
	}
}

// StreamRegistry owns the live stream sessions. Results are delivered on a
// single dispatcher goroutine shared by all sessions.
type StreamRegistry struct {
	decoder    analyzer.QRDecoder
	events     observer.Subject
	dispatcher *analyzer.LoopDispatcher
	maxStreams int

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	streams map[string]*streamEntry
	closed  bool
}

// NewStreamRegistry creates a registry allowing up to maxStreams sessions
func NewStreamRegistry(decoder analyzer.QRDecoder, events observer.Subject, maxStreams int) *StreamRegistry {
	ctx, cancel := context.WithCancel(context.Background())
	return &StreamRegistry{
		decoder:    decoder,
		events:     events,
		dispatcher: analyzer.NewLoopDispatcher(),
		maxStreams: maxStreams,
		ctx:        ctx,
		cancel:     cancel,
		streams:    make(map[string]*streamEntry),
	}
}

// Create registers and starts a new session
func (r *StreamRegistry) Create() (*models.StreamStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, analyzer.ErrSessionStopped
	}
	if len(r.streams) >= r.maxStreams {
		return nil, ErrStreamLimit
	}

	entry := &streamEntry{createdAt: time.Now().UTC()}
	handler := func(ctx context.Context, outcome analyzer.ScanOutcome) {
		entry.deliver(outcome)
	}
	entry.session = analyzer.NewStreamScanSession(r.decoder, handler,
		analyzer.WithDispatcher(r.dispatcher),
		analyzer.WithEvents(r.events),
	)
	if err := entry.session.Start(r.ctx); err != nil {
		return nil, err
	}

	r.streams[entry.session.ID()] = entry
	return entry.status(), nil
}

// Offer hands a frame to the stream. It reports whether the frame was accepted.
func (r *StreamRegistry) Offer(id string, buf frame.Buffer) (*models.FrameResponse, error) {
	entry, err := r.get(id)
	if err != nil {
		return nil, err
	}
	accepted := entry.session.Offer(buf)
	return &models.FrameResponse{Accepted: accepted, State: entry.session.State().String()}, nil
}

// Status returns the stream state, counters and result
func (r *StreamRegistry) Status(id string) (*models.StreamStatus, error) {
	entry, err := r.get(id)
	if err != nil {
		return nil, err
	}
	return entry.status(), nil
}

// Reset clears the result and resumes analysis
func (r *StreamRegistry) Reset(id string) (*models.StreamStatus, error) {
	entry, err := r.get(id)
	if err != nil {
		return nil, err
	}
	if err := entry.reset(); err != nil {
		return nil, err
	}
	return entry.status(), nil
}

// Delete stops the session and forgets it
func (r *StreamRegistry) Delete(id string) error {
	r.mu.Lock()
	entry, ok := r.streams[id]
	delete(r.streams, id)
	r.mu.Unlock()

	if !ok {
		return apperrors.NewNotFoundError("stream not found", nil)
	}
	entry.session.Stop()
	return nil
}

// Count returns the number of open streams
func (r *StreamRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}

// Close stops every session and the result dispatcher
func (r *StreamRegistry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	entries := make([]*streamEntry, 0, len(r.streams))
	for id, entry := range r.streams {
		entries = append(entries, entry)
		delete(r.streams, id)
	}
	r.mu.Unlock()

	for _, entry := range entries {
		entry.session.Stop()
	}
	r.cancel()
	r.dispatcher.Close()

	logger.WithField("streams", len(entries)).Info("Stream registry closed")
}

func (r *StreamRegistry) get(id string) (*streamEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.streams[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("stream not found", nil)
	}
	return entry, nil
}
