package observer

import (
	"bytes"
	"context"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type recordingObserver struct {
	name   string
	mu     sync.Mutex
	events []ScanEvent
	wg     *sync.WaitGroup
}

func (r *recordingObserver) OnEvent(ctx context.Context, event ScanEvent) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	if r.wg != nil {
		r.wg.Done()
	}
}

func (r *recordingObserver) GetObserverName() string { return r.name }

type panickingObserver struct{ wg *sync.WaitGroup }

func (p *panickingObserver) OnEvent(ctx context.Context, event ScanEvent) {
	defer p.wg.Done()
	panic("boom")
}

func (p *panickingObserver) GetObserverName() string { return "panicking" }

func TestMetricsObserver_Counters(t *testing.T) {
	m := NewMetricsObserver()
	ctx := context.Background()

	m.OnEvent(ctx, ScanEvent{EventType: SessionStarted})
	m.OnEvent(ctx, ScanEvent{EventType: FrameAnalyzed, ProcessingTime: 10 * time.Millisecond})
	m.OnEvent(ctx, ScanEvent{EventType: FrameAnalyzed, ProcessingTime: 30 * time.Millisecond})
	m.OnEvent(ctx, ScanEvent{EventType: FrameDropped})
	m.OnEvent(ctx, ScanEvent{EventType: FrameRejected})
	m.OnEvent(ctx, ScanEvent{EventType: ScanCompleted})
	m.OnEvent(ctx, ScanEvent{EventType: StillScanFailed, ProcessingTime: 20 * time.Millisecond})

	metrics := m.GetMetrics()
	expect := map[string]int64{
		"sessions_started":    1,
		"frames_analyzed":     2,
		"frames_dropped":      1,
		"frames_rejected":     1,
		"stream_scans":        1,
		"still_scans":         0,
		"still_scan_failures": 1,
		"avg_decode_time_ms":  20,
	}
	for key, want := range expect {
		if got := metrics[key]; got != want {
			t.Errorf("Expected %s=%d, got %v", key, want, got)
		}
	}
}

func TestMetricsObserver_LatencySummary(t *testing.T) {
	m := NewMetricsObserver()
	if _, ok := m.GetMetrics()["decode_latency_ms"]; ok {
		t.Fatal("Expected no latency summary before any decode")
	}

	for _, ms := range []int{10, 20, 30, 40} {
		m.OnEvent(context.Background(), ScanEvent{EventType: FrameAnalyzed, ProcessingTime: time.Duration(ms) * time.Millisecond})
	}

	summary, ok := m.GetMetrics()["decode_latency_ms"].(map[string]float64)
	if !ok {
		t.Fatalf("Expected a latency summary, got %T", m.GetMetrics()["decode_latency_ms"])
	}
	expect := map[string]float64{"mean": 25, "p50": 20, "p95": 40, "max": 40}
	for key, want := range expect {
		if got := summary[key]; math.Abs(got-want) > 1e-9 {
			t.Errorf("Expected %s=%v, got %v", key, want, got)
		}
	}
	if summary["stddev"] <= 0 {
		t.Errorf("Expected a positive stddev, got %v", summary["stddev"])
	}
}

func TestMetricsObserver_LatencyWindowIsBounded(t *testing.T) {
	m := NewMetricsObserver()
	for i := 0; i < latencyWindow+10; i++ {
		m.OnEvent(context.Background(), ScanEvent{EventType: StillScanCompleted, ProcessingTime: time.Millisecond})
	}
	if len(m.latencies) != latencyWindow {
		t.Errorf("Expected %d samples, got %d", latencyWindow, len(m.latencies))
	}
}

func TestEventPublisher_NotifiesSubscribers(t *testing.T) {
	p := NewEventPublisher()
	var wg sync.WaitGroup
	a := &recordingObserver{name: "a", wg: &wg}
	b := &recordingObserver{name: "b", wg: &wg}
	p.Subscribe(a)
	p.Subscribe(b)

	wg.Add(2)
	p.NotifyObservers(context.Background(), ScanEvent{EventType: ScanCompleted, SessionID: "s1"})
	wg.Wait()

	for _, obs := range []*recordingObserver{a, b} {
		obs.mu.Lock()
		if len(obs.events) != 1 || obs.events[0].SessionID != "s1" {
			t.Errorf("Observer %s expected one event for s1, got %+v", obs.name, obs.events)
		}
		if obs.events[0].Timestamp.IsZero() {
			t.Errorf("Observer %s expected a timestamp to be filled in", obs.name)
		}
		obs.mu.Unlock()
	}
}

func TestEventPublisher_Unsubscribe(t *testing.T) {
	p := NewEventPublisher()
	var wg sync.WaitGroup
	a := &recordingObserver{name: "a", wg: &wg}
	b := &recordingObserver{name: "b", wg: &wg}
	p.Subscribe(a)
	p.Subscribe(b)
	p.Unsubscribe(a)

	wg.Add(1)
	p.NotifyObservers(context.Background(), ScanEvent{EventType: SessionReset})
	wg.Wait()

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.events) != 0 {
		t.Errorf("Expected unsubscribed observer to receive nothing, got %d events", len(a.events))
	}
}

func TestEventPublisher_RecoversFromPanic(t *testing.T) {
	p := NewEventPublisher()
	var wg sync.WaitGroup
	p.Subscribe(&panickingObserver{wg: &wg})

	wg.Add(1)
	p.NotifyObservers(context.Background(), ScanEvent{EventType: FrameAnalyzed})
	wg.Wait()
}

func TestLoggingObserver_FrameEventsAtDebug(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetLevel(logrus.InfoLevel)

	obs := NewLoggingObserver(l)
	obs.OnEvent(context.Background(), ScanEvent{EventType: FrameAnalyzed, Outcome: "not_found"})
	if buf.Len() != 0 {
		t.Errorf("Expected frame events to be suppressed at info level, got %q", buf.String())
	}

	obs.OnEvent(context.Background(), ScanEvent{EventType: ScanCompleted, SessionID: "abc"})
	if !strings.Contains(buf.String(), "abc") {
		t.Errorf("Expected completion to be logged with session id, got %q", buf.String())
	}
}
