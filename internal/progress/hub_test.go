package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/filmmeta/internal/crawler"
)

// TestHubBatchBySize verifies the hub flushes once the batch size limit is reached.
func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     8,
		MaxBatchEvents: 2,
		MaxBatchWait:   time.Minute,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageItemDone, 1))
	hub.Emit(sampleEvent(StageItemDone, 2))
	require.Eventually(t, func() bool {
		b := sink.Batches()
		return len(b) == 1 && len(b[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

// TestHubBatchByTimer verifies partial batches are flushed on the interval.
func TestHubBatchByTimer(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 10,
		MaxBatchWait:   25 * time.Millisecond,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageBatchStart, 0))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

// TestHubEmitNonBlocking asserts Emit drops instead of blocking when the buffer is full.
func TestHubEmitNonBlocking(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		events: make(chan Event),
		logger: zap.NewNop(),
	}
	start := time.Now()
	hub.Emit(sampleEvent(StageBatchStart, 0))
	require.Less(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, int64(1), hub.Dropped())
}

func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 100,
		MaxBatchWait:   time.Minute,
	}, sink)

	hub.Emit(sampleEvent(StageItemDegraded, 1))

	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	require.Len(t, sink.Batches()[0], 1)
	assert.True(t, sink.Closed())

	// Emit after close is ignored, second Close only waits.
	hub.Emit(sampleEvent(StageItemDone, 1))
	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{MaxBatchEvents: 1}, sink)

	hub.Emit(Event{Stage: StageItemDone})
	bad := sampleEvent(StageItemDone, 5)
	bad.Total = 2
	hub.Emit(bad)

	require.NoError(t, hub.Close(context.Background()))
	assert.Empty(t, sink.Batches())
}

func TestHubSinkErrorDoesNotStopOthers(t *testing.T) {
	t.Parallel()

	failing := SinkFunc(func(context.Context, []Event) error { return errors.New("boom") })
	sink := newStubSink()
	hub := NewHub(Config{MaxBatchEvents: 1}, failing, sink)

	hub.Emit(sampleEvent(StageBatchDone, 0))
	require.NoError(t, hub.Close(context.Background()))
	assert.Len(t, sink.Batches(), 1)
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, sampleEvent(StageItemDone, 3).Validate())

	evt := sampleEvent(StageItemDone, 0)
	require.Error(t, evt.Validate())

	evt = sampleEvent("NOPE", 1)
	require.Error(t, evt.Validate())

	evt = sampleEvent(StageBatchDone, 0)
	evt.Dur = -time.Second
	require.Error(t, evt.Validate())

	evt = sampleEvent(StageBatchDone, 0)
	evt.TS = time.Time{}
	require.Error(t, evt.Validate())
}

func TestRunIDConversions(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	evt := Event{RunID: ParseRunID(id.String())}
	assert.Equal(t, id, evt.RunUUID())
	assert.Equal(t, [16]byte{}, ParseRunID("not-a-uuid"))
}

func TestItemObserverEmitsStages(t *testing.T) {
	t.Parallel()

	rec := &recordingEmitter{}
	runID := UUIDToBytes(uuid.New())
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	observe := ItemObserver(rec, runID, func() time.Time { return ts })

	target := crawler.ScrapeTarget{SourceURL: "https://letterboxd.com/film/heat/", HintTitle: "Heat"}
	full := crawler.Degraded(target)
	full.Genres = []string{"Crime"}

	observe(1, 2, target, full)
	observe(2, 2, target, crawler.Degraded(target))

	require.Len(t, rec.events, 2)
	assert.Equal(t, StageItemDone, rec.events[0].Stage)
	assert.Equal(t, StageItemDegraded, rec.events[1].Stage)
	assert.Equal(t, 2, rec.events[1].Step)
	assert.Equal(t, "Heat", rec.events[1].Title)
	assert.Equal(t, ts, rec.events[0].TS)
	assert.Equal(t, runID, rec.events[0].RunID)
}

func TestItemObserverNilEmitter(t *testing.T) {
	t.Parallel()

	observe := ItemObserver(nil, [16]byte{1}, nil)
	assert.NotPanics(t, func() {
		observe(1, 1, crawler.ScrapeTarget{}, crawler.MediaRecord{})
	})
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingEmitter) Emit(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func newStubSink() *stubSink {
	return &stubSink{batches: [][]Event{}}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Event, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]Event(nil), b...)
	}
	return out
}

func sampleEvent(stage Stage, step int) Event {
	return Event{
		RunID: UUIDToBytes(uuid.New()),
		TS:    time.Now(),
		Stage: stage,
		Step:  step,
		Total: 3,
		URL:   "https://letterboxd.com/film/heat/",
		Title: "Heat",
	}
}
