package progress

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func TestTrackerThrottlesWithinSameBucket(t *testing.T) {
	var reportCount int32
	mock, counter, cleanup := setup(func(float64) { atomic.AddInt32(&reportCount, 1) })
	defer cleanup()

	counter.Add(1)
	forward(mock, 1*time.Second)

	counter.Add(1)
	forward(mock, 1*time.Second)

	require.EqualValues(t, 1, atomic.LoadInt32(&reportCount))
}

func TestTrackerReportsAgainAfterMinInterval(t *testing.T) {
	var reportCount int32
	mock, counter, cleanup := setup(func(float64) { atomic.AddInt32(&reportCount, 1) })
	defer cleanup()

	counter.Add(1)
	forward(mock, 1*time.Second)

	counter.Add(1)
	forward(mock, 10*time.Second)

	require.EqualValues(t, 2, atomic.LoadInt32(&reportCount))
}

func TestTrackerReportsOnBucketChange(t *testing.T) {
	var reportCount int32
	mock, counter, cleanup := setup(func(float64) { atomic.AddInt32(&reportCount, 1) })
	defer cleanup()

	counter.Add(1)
	forward(mock, 1*time.Second)

	counter.Add(25)
	forward(mock, 1*time.Second)

	require.EqualValues(t, 2, atomic.LoadInt32(&reportCount))
}

func TestTrackerSuppressesFastBucketChange(t *testing.T) {
	var reportCount int32
	mock, counter, cleanup := setup(func(float64) { atomic.AddInt32(&reportCount, 1) })
	defer cleanup()

	counter.Add(1)
	forward(mock, 1*time.Second)

	counter.Add(25)
	forward(mock, 500*time.Millisecond)

	require.EqualValues(t, 1, atomic.LoadInt32(&reportCount))
}

// byteCounter is a minimal stand-in for progress.ReadCounter so tests can
// drive the tracked value directly without an actual io.Reader.
type byteCounter struct{ n uint64 }

func (c *byteCounter) Add(n uint64) { atomic.AddUint64(&c.n, n) }
func (c *byteCounter) Get() uint64  { return atomic.LoadUint64(&c.n) }

func setup(onReport func(float64)) (*clock.Mock, *byteCounter, func()) {
	realClock := Clock
	mock := clock.NewMock()
	Clock = mock

	counter := &byteCounter{}
	tracker := NewTracker(context.Background(), onReport)
	tracker.Track(counter.Get, 100)

	return mock, counter, func() {
		tracker.Stop()
		Clock = realClock
	}
}

func forward(mock *clock.Mock, d time.Duration) {
	time.Sleep(1 * time.Millisecond)
	mock.Add(d)
}
