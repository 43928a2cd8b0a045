package observer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// ScanEvent represents a scan pipeline event
type ScanEvent struct {
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	SessionID      string                 `json:"session_id,omitempty"`
	Source         string                 `json:"source,omitempty"`
	ProcessingTime time.Duration          `json:"processing_time"`
	Success        bool                   `json:"success"`
	Outcome        string                 `json:"outcome,omitempty"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of scan event
type EventType string

const (
	// SessionStarted when a stream session begins analyzing
	SessionStarted EventType = "session_started"
	// FrameAnalyzed after every decode attempt on the stream path
	FrameAnalyzed EventType = "frame_analyzed"
	// FrameDropped when a pending frame is overwritten by a newer one
	FrameDropped EventType = "frame_dropped"
	// FrameRejected when a frame arrives outside the Analyzing state or fails conversion
	FrameRejected EventType = "frame_rejected"
	// ScanCompleted when a stream session reports its result
	ScanCompleted EventType = "scan_completed"
	// SessionReset when the stream is rebound after a result
	SessionReset EventType = "session_reset"
	// SessionStopped when the session worker is released
	SessionStopped EventType = "session_stopped"
	// StillScanCompleted when a still image decodes
	StillScanCompleted EventType = "still_scan_completed"
	// StillScanFailed when a still image yields no result
	StillScanFailed EventType = "still_scan_failed"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event ScanEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event ScanEvent)
}

// LoggingObserver logs scan events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles scan events by logging them. Frame level events stay at
// debug so an empty viewfinder never shows up as an error.
func (o *LoggingObserver) OnEvent(ctx context.Context, event ScanEvent) {
	fields := logrus.Fields{
		"event_type":      event.EventType,
		"processing_time": event.ProcessingTime,
		"success":         event.Success,
	}
	if event.SessionID != "" {
		fields["session_id"] = event.SessionID
	}
	if event.Source != "" {
		fields["source"] = event.Source
	}
	if event.Outcome != "" {
		fields["outcome"] = event.Outcome
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case FrameAnalyzed, FrameDropped, FrameRejected:
		entry.Debug("Stream frame event")
	case SessionStarted:
		entry.Info("Stream scan session started")
	case ScanCompleted:
		entry.Info("Stream scan completed")
	case SessionReset:
		entry.Info("Stream scan session reset")
	case SessionStopped:
		entry.Info("Stream scan session stopped")
	case StillScanCompleted:
		entry.Info("Still image scan completed")
	case StillScanFailed:
		entry.Warn("Still image scan failed")
	default:
		entry.Info("Scan event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver collects counters from scan events
type MetricsObserver struct {
	mu                  sync.RWMutex
	sessionsStarted     int64
	framesAnalyzed      int64
	framesDropped       int64
	framesRejected      int64
	streamScans         int64
	stillScans          int64
	stillFailures       int64
	totalProcessingTime time.Duration
	decodes             int64

	// recent decode times in milliseconds, a ring of latencyWindow entries
	latencies []float64
	next      int
}

// latencyWindow bounds the samples kept for the latency distribution
const latencyWindow = 1024

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{latencies: make([]float64, 0, latencyWindow)}
}

// record must be called with mu held.
func (o *MetricsObserver) record(d time.Duration) {
	o.decodes++
	o.totalProcessingTime += d

	ms := float64(d) / float64(time.Millisecond)
	if len(o.latencies) < latencyWindow {
		o.latencies = append(o.latencies, ms)
		return
	}
	o.latencies[o.next] = ms
	o.next = (o.next + 1) % latencyWindow
}

// OnEvent handles scan events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event ScanEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case SessionStarted:
		o.sessionsStarted++
	case FrameAnalyzed:
		o.framesAnalyzed++
		o.record(event.ProcessingTime)
	case FrameDropped:
		o.framesDropped++
	case FrameRejected:
		o.framesRejected++
	case ScanCompleted:
		o.streamScans++
	case StillScanCompleted:
		o.stillScans++
		o.record(event.ProcessingTime)
	case StillScanFailed:
		o.stillFailures++
		o.record(event.ProcessingTime)
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avgDecodeTime := time.Duration(0)
	if o.decodes > 0 {
		avgDecodeTime = o.totalProcessingTime / time.Duration(o.decodes)
	}

	metrics := map[string]interface{}{
		"sessions_started":     o.sessionsStarted,
		"frames_analyzed":      o.framesAnalyzed,
		"frames_dropped":       o.framesDropped,
		"frames_rejected":      o.framesRejected,
		"stream_scans":         o.streamScans,
		"still_scans":          o.stillScans,
		"still_scan_failures":  o.stillFailures,
		"avg_decode_time_ms":   avgDecodeTime.Milliseconds(),
		"total_decode_time_ms": o.totalProcessingTime.Milliseconds(),
	}
	if len(o.latencies) > 0 {
		metrics["decode_latency_ms"] = latencySummary(o.latencies)
	}
	return metrics
}

// latencySummary describes the spread of recent decode times
func latencySummary(samples []float64) map[string]float64 {
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	mean, std := stat.MeanStdDev(sorted, nil)
	if len(sorted) < 2 {
		std = 0
	}
	return map[string]float64{
		"mean":   mean,
		"stddev": std,
		"p50":    stat.Quantile(0.5, stat.Empirical, sorted, nil),
		"p95":    stat.Quantile(0.95, stat.Empirical, sorted, nil),
		"max":    sorted[len(sorted)-1],
	}
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() Subject {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers notifies all observers of an event. Observers run on their
// own goroutines so a slow observer never stalls the frame worker.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event ScanEvent) {
	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	for _, observer := range observers {
		go func(obs Observer) {
			defer func() {
				if r := recover(); r != nil {
					logrus.WithField("observer", obs.GetObserverName()).
						WithField("panic", r).
						Error("Observer panicked while handling event")
				}
			}()
			obs.OnEvent(ctx, event)
		}(observer)
	}
}
