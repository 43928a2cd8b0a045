package analyzer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go-qr-scanner/internal/frame"
	"go-qr-scanner/internal/observer"
)

// resultRecorder collects handler invocations.
type resultRecorder struct {
	mu       sync.Mutex
	outcomes []ScanOutcome
	notify   chan struct{}
}

func newResultRecorder() *resultRecorder {
	return &resultRecorder{notify: make(chan struct{}, 16)}
}

func (r *resultRecorder) handle(ctx context.Context, outcome ScanOutcome) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, outcome)
	r.mu.Unlock()
	r.notify <- struct{}{}
}

func (r *resultRecorder) all() []ScanOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ScanOutcome(nil), r.outcomes...)
}

func (r *resultRecorder) wait(t *testing.T) ScanOutcome {
	t.Helper()
	select {
	case <-r.notify:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a result")
	}
	all := r.all()
	return all[len(all)-1]
}

// blockingDecoder blocks on its first call until released and records the
// marker sample of every frame it sees.
type blockingDecoder struct {
	started chan struct{}
	release chan struct{}
	first   ScanOutcome
	rest    ScanOutcome

	mu    sync.Mutex
	marks []byte
	calls int
}

func newBlockingDecoder(first, rest ScanOutcome) *blockingDecoder {
	return &blockingDecoder{
		started: make(chan struct{}),
		release: make(chan struct{}),
		first:   first,
		rest:    rest,
	}
}

func (d *blockingDecoder) Decode(f *frame.Luminance) ScanOutcome {
	d.mu.Lock()
	d.calls++
	call := d.calls
	d.marks = append(d.marks, f.At(0, 0))
	d.mu.Unlock()

	if call == 1 {
		close(d.started)
		<-d.release
		return d.first
	}
	return d.rest
}

func (d *blockingDecoder) seen() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.marks...)
}

func waitStarted(t *testing.T, d *blockingDecoder) {
	t.Helper()
	select {
	case <-d.started:
	case <-time.After(5 * time.Second):
		t.Fatal("decoder never started")
	}
}

func TestStreamScanSession_DeliversOnceUnderConcurrentOffers(t *testing.T) {
	rec := newResultRecorder()
	session := NewStreamScanSession(NewQRDecoder(StreamOptions()), rec.handle)
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer session.Stop()

	buf := qrBuffer(t, "HELLO", 240, 0)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				session.Offer(buf)
			}
		}()
	}

	outcome := rec.wait(t)
	wg.Wait()
	time.Sleep(50 * time.Millisecond)

	if outcome.Text != "HELLO" {
		t.Errorf("Expected HELLO, got %q", outcome.Text)
	}
	if n := len(rec.all()); n != 1 {
		t.Errorf("Expected exactly one result, got %d", n)
	}
	if session.State() != StateCompleted {
		t.Errorf("Expected completed state, got %s", session.State())
	}
	if session.Offer(buf) {
		t.Error("Expected a completed session to refuse frames")
	}
	if got, ok := session.Result(); !ok || got.Text != "HELLO" {
		t.Errorf("Expected stored result HELLO, got %q (%v)", got.Text, ok)
	}
	if stats := session.Stats(); stats.Decoded != 1 {
		t.Errorf("Expected one decoded frame, got %d", stats.Decoded)
	}
}

func TestStreamScanSession_KeepsOnlyLatestFrame(t *testing.T) {
	decoder := newBlockingDecoder(NotFound(), NotFound())
	session := NewStreamScanSession(decoder, nil)
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer session.Stop()

	if !session.Offer(markedBuffer(1)) {
		t.Fatal("Expected frame 1 to be accepted")
	}
	waitStarted(t, decoder)

	for mark := byte(2); mark <= 4; mark++ {
		if !session.Offer(markedBuffer(mark)) {
			t.Fatalf("Expected frame %d to be accepted", mark)
		}
	}
	close(decoder.release)

	waitFor(t, "second analysis", func() bool { return session.Stats().Analyzed == 2 })
	time.Sleep(20 * time.Millisecond)

	seen := decoder.seen()
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 4 {
		t.Errorf("Expected frames [1 4] to be analyzed, got %v", seen)
	}
	if stats := session.Stats(); stats.Dropped != 2 {
		t.Errorf("Expected 2 dropped frames, got %d", stats.Dropped)
	}
}

func TestStreamScanSession_ResetDiscardsStaleResult(t *testing.T) {
	decoder := newBlockingDecoder(Decoded("stale"), Decoded("fresh"))
	rec := newResultRecorder()
	session := NewStreamScanSession(decoder, rec.handle)
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer session.Stop()

	session.Offer(markedBuffer(1))
	waitStarted(t, decoder)

	if err := session.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	close(decoder.release)

	waitFor(t, "stale analysis", func() bool { return session.Stats().Analyzed == 1 })
	if session.State() != StateAnalyzing {
		t.Fatalf("Expected stale result to leave the session analyzing, got %s", session.State())
	}

	session.Offer(markedBuffer(2))
	outcome := rec.wait(t)
	if outcome.Text != "fresh" {
		t.Errorf("Expected fresh result, got %q", outcome.Text)
	}
	if n := len(rec.all()); n != 1 {
		t.Errorf("Expected one delivered result, got %d", n)
	}
}

func TestStreamScanSession_ResetAfterCompletion(t *testing.T) {
	rec := newResultRecorder()
	session := NewStreamScanSession(QRDecoderFunc(func(*frame.Luminance) ScanOutcome {
		return Decoded("again")
	}), rec.handle)
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer session.Stop()

	session.Offer(markedBuffer(1))
	rec.wait(t)

	if err := session.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, ok := session.Result(); ok {
		t.Error("Expected Reset to clear the stored result")
	}
	if !session.Offer(markedBuffer(2)) {
		t.Fatal("Expected a reset session to accept frames")
	}
	rec.wait(t)

	if n := len(rec.all()); n != 2 {
		t.Errorf("Expected one result per lifetime, got %d", n)
	}
}

func TestStreamScanSession_StopWaitsForWorker(t *testing.T) {
	decoder := newBlockingDecoder(Decoded("late"), NotFound())
	rec := newResultRecorder()
	session := NewStreamScanSession(decoder, rec.handle)
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	session.Offer(markedBuffer(1))
	waitStarted(t, decoder)

	stopped := make(chan struct{})
	go func() {
		session.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a frame was still being analyzed")
	case <-time.After(50 * time.Millisecond):
	}

	close(decoder.release)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}

	if n := len(rec.all()); n != 0 {
		t.Errorf("Expected no result after Stop, got %d", n)
	}
	if session.Offer(markedBuffer(2)) {
		t.Error("Expected a stopped session to refuse frames")
	}
	if calls := len(decoder.seen()); calls != 1 {
		t.Errorf("Expected no analysis after Stop, got %d calls", calls)
	}
}

func TestStreamScanSession_Lifecycle(t *testing.T) {
	var calls atomic.Int32
	session := NewStreamScanSession(QRDecoderFunc(func(*frame.Luminance) ScanOutcome {
		calls.Add(1)
		return NotFound()
	}), nil, WithSessionID("cam-1"))

	if session.ID() != "cam-1" {
		t.Errorf("Expected id cam-1, got %s", session.ID())
	}
	if session.State() != StateIdle {
		t.Errorf("Expected idle, got %s", session.State())
	}
	if session.Offer(markedBuffer(1)) {
		t.Error("Expected an idle session to refuse frames")
	}
	if err := session.Reset(); !errors.Is(err, ErrSessionNotStarted) {
		t.Errorf("Expected ErrSessionNotStarted, got %v", err)
	}

	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := session.Start(context.Background()); !errors.Is(err, ErrSessionStarted) {
		t.Errorf("Expected ErrSessionStarted, got %v", err)
	}

	session.Stop()
	session.Stop()

	if session.State() != StateStopped {
		t.Errorf("Expected stopped, got %s", session.State())
	}
	if err := session.Start(context.Background()); !errors.Is(err, ErrSessionStopped) {
		t.Errorf("Expected ErrSessionStopped, got %v", err)
	}
	if err := session.Reset(); !errors.Is(err, ErrSessionStopped) {
		t.Errorf("Expected ErrSessionStopped from Reset, got %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("Expected no analysis, got %d", calls.Load())
	}
	if stats := session.Stats(); stats.Rejected != 1 || stats.Offered != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestStreamScanSession_StopBeforeStart(t *testing.T) {
	session := NewStreamScanSession(NewQRDecoder(StreamOptions()), nil)
	session.Stop()
	if session.State() != StateStopped {
		t.Errorf("Expected stopped, got %s", session.State())
	}
	if session.Done() != nil {
		t.Error("Expected no worker for a session that never started")
	}
}

func TestStreamScanSession_ContextCancelStopsWorker(t *testing.T) {
	session := NewStreamScanSession(NewQRDecoder(StreamOptions()), nil)
	ctx, cancel := context.WithCancel(context.Background())
	if err := session.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()

	select {
	case <-session.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit")
	}
	if session.State() != StateStopped {
		t.Errorf("Expected stopped, got %s", session.State())
	}
	session.Stop()
}

func TestStreamScanSession_RotationHints(t *testing.T) {
	tests := []struct {
		name     string
		rotation int
	}{
		{"none", 0},
		{"quarter turn", 90},
		{"half turn", 180},
		{"negative", -90},
		{"unsupported falls back to unrotated", 45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newResultRecorder()
			session := NewStreamScanSession(NewQRDecoder(StreamOptions()), rec.handle)
			if err := session.Start(context.Background()); err != nil {
				t.Fatalf("Start: %v", err)
			}
			defer session.Stop()

			if !session.Offer(qrBuffer(t, "HELLO", 240, tt.rotation)) {
				t.Fatal("Expected frame to be accepted")
			}
			if outcome := rec.wait(t); outcome.Text != "HELLO" {
				t.Errorf("Expected HELLO, got %q", outcome.Text)
			}
		})
	}
}

func TestStreamScanSession_RejectsUnconvertibleFrame(t *testing.T) {
	events := observer.NewEventPublisher()
	metrics := observer.NewMetricsObserver()
	events.Subscribe(metrics)

	session := NewStreamScanSession(NewQRDecoder(StreamOptions()), nil, WithEvents(events))
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer session.Stop()

	bad := frame.Buffer{Width: 4, Height: 4, Stride: 4, Format: frame.FormatRGB24, Data: make([]byte, 8)}
	if session.Offer(bad) {
		t.Error("Expected a short buffer to be rejected")
	}
	huge := frame.Buffer{Width: 1 << 62, Height: 4, Format: frame.FormatY8}
	if session.Offer(huge) {
		t.Error("Expected an oversized frame to be rejected")
	}
	if stats := session.Stats(); stats.Rejected != 2 {
		t.Errorf("Expected two rejected frames, got %d", stats.Rejected)
	}
	waitFor(t, "rejection events", func() bool {
		return metrics.GetMetrics()["frames_rejected"].(int64) == 2
	})
}

func TestStreamScanSession_LoopDispatcher(t *testing.T) {
	dispatcher := NewLoopDispatcher()
	defer dispatcher.Close()

	rec := newResultRecorder()
	events := observer.NewEventPublisher()
	metrics := observer.NewMetricsObserver()
	events.Subscribe(metrics)

	session := NewStreamScanSession(NewQRDecoder(StreamOptions()), rec.handle,
		WithDispatcher(dispatcher), WithEvents(events))
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer session.Stop()

	session.Offer(qrBuffer(t, "HELLO", 240, 0))
	if outcome := rec.wait(t); outcome.Text != "HELLO" {
		t.Errorf("Expected HELLO, got %q", outcome.Text)
	}
	waitFor(t, "completion event", func() bool {
		m := metrics.GetMetrics()
		return m["stream_scans"].(int64) == 1 && m["sessions_started"].(int64) == 1
	})
}

func TestLoopDispatcher(t *testing.T) {
	t.Run("waits for callback", func(t *testing.T) {
		d := NewLoopDispatcher()
		defer d.Close()

		var ran bool
		if err := d.Dispatch(context.Background(), func() { ran = true }); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
		if !ran {
			t.Error("Expected callback to have run when Dispatch returned")
		}
	})

	t.Run("recovers panics", func(t *testing.T) {
		d := NewLoopDispatcher()
		defer d.Close()

		if err := d.Dispatch(context.Background(), func() { panic("boom") }); err == nil {
			t.Error("Expected an error from a panicking callback")
		}
		if err := d.Dispatch(context.Background(), func() {}); err != nil {
			t.Errorf("Expected loop to survive a panic, got %v", err)
		}
	})

	t.Run("closed", func(t *testing.T) {
		d := NewLoopDispatcher()
		d.Close()
		d.Close()

		if err := d.Dispatch(context.Background(), func() {}); !errors.Is(err, ErrDispatcherClosed) {
			t.Errorf("Expected ErrDispatcherClosed, got %v", err)
		}
	})
}
