package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ghalamif/CaptureFlow/internal/adapters/queue"
	"github.com/ghalamif/CaptureFlow/internal/domain"
	"github.com/ghalamif/CaptureFlow/internal/ports"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingSink struct {
	mu      sync.Mutex
	records []*domain.CaptureSample
	delay   func() time.Duration
	fail    error
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) Write(s *domain.CaptureSample) error {
	if r.delay != nil {
		if d := r.delay(); d > 0 {
			time.Sleep(d)
		}
	}
	if r.fail != nil {
		return r.fail
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, s)
	return nil
}

func (r *recordingSink) Flush() error { return nil }
func (r *recordingSink) Close() error { return nil }

func (r *recordingSink) snapshot() []*domain.CaptureSample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.CaptureSample(nil), r.records...)
}

// maxLenQueue records the highest occupancy the queue reached.
type maxLenQueue struct {
	ports.SampleQueue
	max atomic.Int64
}

func (q *maxLenQueue) Enqueue(s *domain.CaptureSample) bool {
	ok := q.SampleQueue.Enqueue(s)
	if n := int64(q.SampleQueue.Len()); n > q.max.Load() {
		q.max.Store(n)
	}
	return ok
}

func runAsync(s Strategy, tok *domain.CancelToken) <-chan error {
	done := make(chan error, 1)
	go func() { done <- s.Run(tok) }()
	return done
}

func TestInterpolateChunkSpan(t *testing.T) {
	const rate = 48000.0
	arrival := time.Now()
	for _, n := range []int{1, 2, 1024, 4097} {
		stamps := InterpolateChunk(arrival, n, rate)
		require.Len(t, stamps, n)
		require.True(t, stamps[0].Equal(arrival))
		require.Equal(t, sampleOffset(n-1, rate), stamps[n-1].Sub(arrival))
		for i := 1; i < n; i++ {
			require.False(t, stamps[i].Before(stamps[i-1]), "chunk %d: sample %d went backwards", n, i)
		}
	}
	require.Nil(t, InterpolateChunk(arrival, 0, rate))
}

func TestSessionClockRelativeToFirstSample(t *testing.T) {
	c := NewSessionClock("tc", domain.KindThermocouple)
	start := time.Now()
	a := c.Stamp(start, Payload{Values: []float64{1}})
	b := c.Stamp(start.Add(285*time.Millisecond), Payload{})

	require.Equal(t, uint64(1), a.Seq)
	require.Zero(t, a.Relative)
	require.Equal(t, uint64(2), b.Seq)
	require.Equal(t, 285*time.Millisecond, b.Relative)
	require.Equal(t, uint64(2), c.Count())
}

func TestPollStopsPromptlyAndKeepsEverything(t *testing.T) {
	tok := domain.NewCancelToken(context.Background())
	sink := &recordingSink{}
	var reads atomic.Int64
	p := &Poll{
		Sensor: "tc",
		Kind:   domain.KindThermocouple,
		Period: 20 * time.Millisecond,
		Read: func(context.Context) (Payload, error) {
			reads.Add(1)
			return Payload{Values: []float64{21.5, 22.0}}, nil
		},
		Sink: sink,
	}

	done := runAsync(p, tok)
	time.Sleep(150 * time.Millisecond)
	setAt := time.Now()
	tok.Set(domain.ErrOperatorStop)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("poll loop did not observe the token")
	}
	require.Less(t, time.Since(setAt), 2*p.Period+20*time.Millisecond)

	records := sink.snapshot()
	require.NotEmpty(t, records)
	require.Equal(t, int(reads.Load()), len(records))
	require.Equal(t, uint64(len(records)), p.Counters.Snapshot().Samples)
	for i, r := range records {
		require.Equal(t, uint64(i+1), r.Seq)
	}
}

func TestPollSustainedFailuresStopSensorOnly(t *testing.T) {
	tok := domain.NewCancelToken(context.Background())
	p := &Poll{
		Sensor:      "tc",
		Kind:        domain.KindThermocouple,
		Period:      time.Millisecond,
		MaxFailures: 3,
		Read: func(context.Context) (Payload, error) {
			return Payload{}, errors.New("daq timeout")
		},
		Sink: &recordingSink{},
	}

	err := p.Run(tok)
	require.ErrorIs(t, err, domain.ErrStreaming)
	require.False(t, tok.IsSet())
}

func TestPollTransientFailuresAreTolerated(t *testing.T) {
	tok := domain.NewCancelToken(context.Background())
	var n atomic.Int64
	sink := &recordingSink{}
	p := &Poll{
		Sensor:      "tc",
		Kind:        domain.KindThermocouple,
		Period:      time.Millisecond,
		MaxFailures: 2,
		Read: func(context.Context) (Payload, error) {
			if n.Add(1)%2 == 0 {
				return Payload{}, errors.New("glitch")
			}
			return Payload{Values: []float64{1}}, nil
		},
		Sink: sink,
	}

	done := runAsync(p, tok)
	time.Sleep(50 * time.Millisecond)
	tok.Set(domain.ErrOperatorStop)
	require.NoError(t, <-done)
	require.NotEmpty(t, sink.snapshot())
}

func TestPollFatalErrorEscalates(t *testing.T) {
	tok := domain.NewCancelToken(context.Background())
	transport := errors.New("socket closed")
	p := &Poll{
		Sensor:   "robot",
		Kind:     domain.KindRobot,
		Escalate: true,
		Read: func(context.Context) (Payload, error) {
			return Payload{}, Fatal(transport)
		},
		Sink: &recordingSink{},
	}

	err := p.Run(tok)
	require.ErrorIs(t, err, domain.ErrStreaming)
	require.ErrorIs(t, err, transport)
	require.True(t, tok.IsSet())
	require.ErrorIs(t, tok.Cause(), transport)
}

func TestPollSelfPacedNoSample(t *testing.T) {
	tok := domain.NewCancelToken(context.Background())
	var calls atomic.Int64
	sink := &recordingSink{}
	p := &Poll{
		Sensor:      "robot",
		Kind:        domain.KindRobot,
		MaxFailures: 1,
		Read: func(context.Context) (Payload, error) {
			time.Sleep(time.Millisecond)
			if calls.Add(1)%3 == 0 {
				return Payload{Values: []float64{1}}, nil
			}
			return Payload{}, ErrNoSample
		},
		Sink: sink,
	}

	done := runAsync(p, tok)
	time.Sleep(60 * time.Millisecond)
	tok.Set(domain.ErrOperatorStop)
	require.NoError(t, <-done)
	require.NotEmpty(t, sink.snapshot())
}

func framePayload() Payload {
	return Payload{Frame: &domain.Frame{Width: 4, Height: 3, Data: make([]byte, 12)}}
}

func TestProducerConsumerPersistsAllInOrder(t *testing.T) {
	const n = 500
	tok := domain.NewCancelToken(context.Background())
	sink := &recordingSink{}
	var produced atomic.Int64
	pc := &ProducerConsumer{
		Sensor: "cam",
		Kind:   domain.KindThermalCamera,
		Capture: func(context.Context) (Payload, error) {
			if produced.Add(1) == n {
				tok.Set(domain.ErrOperatorStop)
			}
			return framePayload(), nil
		},
		Queue:  queue.NewMemQueue(30),
		Policy: ports.QueuePolicy{MaxBatchSize: 8, IdleSleep: time.Millisecond, OnQueueFull: "block"},
		Sink:   sink,
	}

	require.NoError(t, pc.Run(tok))

	records := sink.snapshot()
	require.Len(t, records, n)
	for i, r := range records {
		require.Equal(t, uint64(i+1), r.Seq)
	}
	require.Zero(t, pc.Queue.Len())
	require.Equal(t, uint64(n), pc.Counters.Snapshot().Samples)
	require.Zero(t, pc.Counters.Snapshot().Dropped)
	require.Equal(t, uint64(n), pc.Latest().Seq)
}

func TestProducerConsumerTransientOverloadLosesNothing(t *testing.T) {
	tok := domain.NewCancelToken(context.Background())
	overloadUntil := time.Now().Add(300 * time.Millisecond)
	sink := &recordingSink{delay: func() time.Duration {
		if time.Now().Before(overloadUntil) {
			return 5 * time.Millisecond
		}
		return 0
	}}
	q := &maxLenQueue{SampleQueue: queue.NewMemQueue(30)}

	var produced atomic.Int64
	pc := &ProducerConsumer{
		Sensor: "cam",
		Kind:   domain.KindThermalCamera,
		Capture: func(context.Context) (Payload, error) {
			time.Sleep(time.Millisecond)
			produced.Add(1)
			return framePayload(), nil
		},
		Queue:  q,
		Policy: ports.QueuePolicy{MaxBatchSize: 1, IdleSleep: time.Millisecond, OnQueueFull: "block"},
		Sink:   sink,
	}

	done := runAsync(pc, tok)
	time.Sleep(500 * time.Millisecond)
	tok.Set(domain.ErrOperatorStop)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("producer/consumer deadlocked")
	}

	require.EqualValues(t, 30, q.max.Load())
	records := sink.snapshot()
	require.EqualValues(t, produced.Load(), len(records))
	for i, r := range records {
		require.Equal(t, uint64(i+1), r.Seq)
	}
	require.Zero(t, pc.Counters.Snapshot().Dropped)
}

func TestProducerConsumerDropPolicyCounts(t *testing.T) {
	q := queue.NewMemQueue(1)
	require.True(t, q.Enqueue(&domain.CaptureSample{Seq: 1}))
	ok := enqueueWithPolicy(q, &domain.CaptureSample{Seq: 2}, ports.QueuePolicy{OnQueueFull: "drop"}, testLogger())
	require.False(t, ok)
}

func TestProducerConsumerFatalCaptureEscalates(t *testing.T) {
	tok := domain.NewCancelToken(context.Background())
	sink := &recordingSink{}
	var calls atomic.Int64
	pc := &ProducerConsumer{
		Sensor:   "cam",
		Kind:     domain.KindThermalCamera,
		Escalate: true,
		Capture: func(context.Context) (Payload, error) {
			if calls.Add(1) > 3 {
				return Payload{}, Fatal(errors.New("camera unplugged"))
			}
			return framePayload(), nil
		},
		Queue:  queue.NewMemQueue(30),
		Policy: ports.QueuePolicy{IdleSleep: time.Millisecond},
		Sink:   sink,
	}

	err := pc.Run(tok)
	require.ErrorIs(t, err, domain.ErrStreaming)
	require.True(t, tok.IsSet())
	require.Len(t, sink.snapshot(), 3)
}

// fakeStream delivers fixed-size chunks from its own goroutine every interval.
type fakeStream struct {
	chunk    int
	interval time.Duration
	limit    int

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func (f *fakeStream) start(onChunk func([]float64)) (func() error, error) {
	f.stopCh = make(chan struct{})
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		buf := make([]float64, f.chunk)
		for i := range buf {
			buf[i] = float64(i)
		}
		for sent := 0; f.limit == 0 || sent < f.limit; sent++ {
			select {
			case <-f.stopCh:
				return
			default:
			}
			onChunk(buf)
			time.Sleep(f.interval)
		}
		<-f.stopCh
	}()
	return func() error {
		f.stopOnce.Do(func() { close(f.stopCh) })
		f.wg.Wait()
		return nil
	}, nil
}

func TestAccumulatorReconstructsChunkTimestamps(t *testing.T) {
	tok := domain.NewCancelToken(context.Background())
	sink := &recordingSink{}
	stream := &fakeStream{chunk: 100, interval: 5 * time.Millisecond, limit: 4}
	a := &Accumulator{
		Sensor: "mic",
		Kind:   domain.KindMicrophone,
		Rate:   1000,
		Tick:   10 * time.Millisecond,
		Start:  stream.start,
		Sink:   sink,
	}

	done := runAsync(a, tok)
	time.Sleep(100 * time.Millisecond)
	tok.Set(domain.ErrOperatorStop)
	require.NoError(t, <-done)

	records := sink.snapshot()
	require.Len(t, records, 400)
	for i := 0; i < 400; i += 100 {
		first, last := records[i], records[i+99]
		require.Equal(t, 99*time.Millisecond, last.Captured.Sub(first.Captured))
		for j := i + 1; j < i+100; j++ {
			require.False(t, records[j].Captured.Before(records[j-1].Captured))
		}
	}
	require.Equal(t, uint64(400), a.Counters.Snapshot().Samples)
	require.Zero(t, a.Counters.Snapshot().Dropped)
}

func TestAccumulatorBoundsRunawayCallback(t *testing.T) {
	const rate = 10000.0
	tok := domain.NewCancelToken(context.Background())
	sink := &recordingSink{}
	stream := &fakeStream{chunk: 1024, interval: time.Millisecond}
	a := &Accumulator{
		Sensor: "mic",
		Kind:   domain.KindMicrophone,
		Rate:   rate,
		Tick:   10 * time.Millisecond,
		Start:  stream.start,
		Sink:   sink,
	}

	started := time.Now()
	done := runAsync(a, tok)
	time.Sleep(300 * time.Millisecond)
	tok.Set(domain.ErrOperatorStop)
	require.NoError(t, <-done)
	elapsed := time.Since(started)

	stats := a.Counters.Snapshot()
	require.NotZero(t, stats.Dropped)
	require.LessOrEqual(t, float64(len(sink.snapshot())), (elapsed.Seconds()+1)*rate)
	require.Equal(t, uint64(len(sink.snapshot())), stats.Samples)
}

func TestAccumulatorStartFailure(t *testing.T) {
	tok := domain.NewCancelToken(context.Background())
	a := &Accumulator{
		Sensor: "mic",
		Kind:   domain.KindMicrophone,
		Rate:   48000,
		Start: func(func([]float64)) (func() error, error) {
			return nil, errors.New("device busy")
		},
		Sink: &recordingSink{},
	}
	require.ErrorIs(t, a.Run(tok), domain.ErrStreaming)
}
