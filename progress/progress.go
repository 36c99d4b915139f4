// Package progress drives the fractional progress value surfaced by
// GET /task/{id} while a job is in its ACQUIRE+TRANSCRIBE phase (spec §4.1
// task-status endpoint, §9 "streamed pipeline" - the only point in a job
// where meaningful partial progress exists).
//
// Adapted from the teacher's ProgressReporter (periodic, monotonic,
// bucketed progress reporting against a callback client): re-targeted from
// an HTTP callback posting a transcode percentage to a local callback
// invoked as bytes are read off the PCM pipe, scaled against the expected
// total derived from VideoInfo's duration and the known PCM byte rate.
package progress

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Clock is swapped for a mock in tests, the same testable-ticker pattern the
// teacher uses its own benbjohnson/clock dependency for.
var Clock = clock.New()

var reportBuckets = []float64{0, 0.25, 0.5, 0.75, 1}

const minReportInterval = 10 * time.Second
const checkInterval = 1 * time.Second

// Tracker periodically computes a 0..1 progress value from a polled byte
// count and invokes onReport when the value has moved into a new bucket or
// minReportInterval has elapsed, whichever comes first - throttling so a
// fast PCM stream doesn't thrash the job-status table.
type Tracker struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	getBytesRead func() uint64
	totalBytes   uint64
	onReport     func(progress float64)

	lastReport   time.Time
	lastProgress float64
}

// NewTracker starts a Tracker immediately; call Stop when the phase that
// owns it exits (success, fallback, or error) so its goroutine does not leak.
func NewTracker(ctx context.Context, onReport func(progress float64)) *Tracker {
	ctx, cancel := context.WithCancel(ctx)
	t := &Tracker{ctx: ctx, cancel: cancel, onReport: onReport}
	go t.loop()
	return t
}

// Stop ends the tracker's reporting loop.
func (t *Tracker) Stop() {
	t.cancel()
}

// Track sets the byte counter and expected total (spec: duration x byte
// rate from VideoInfo) the tracker polls on each tick.
func (t *Tracker) Track(getBytesRead func() uint64, totalBytes uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.getBytesRead, t.totalBytes = getBytesRead, totalBytes
}

func (t *Tracker) loop() {
	ticker := Clock.Ticker(checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.reportOnce()
		}
	}
}

func (t *Tracker) reportOnce() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.getBytesRead == nil || t.totalBytes == 0 {
		return
	}

	progress := t.calcProgress()
	if progress <= t.lastProgress {
		return
	}
	if !shouldReport(progress, t.lastProgress, t.lastReport) {
		return
	}

	t.lastReport, t.lastProgress = Clock.Now(), progress
	if t.onReport != nil {
		t.onReport(progress)
	}
}

func shouldReport(current, previous float64, lastReportedAt time.Time) bool {
	return bucketOf(current) != bucketOf(previous) || Clock.Since(lastReportedAt) >= minReportInterval
}

func (t *Tracker) calcProgress() float64 {
	val := float64(t.getBytesRead()) / float64(t.totalBytes)
	val = math.Max(val, 0)
	val = math.Min(val, 0.99) // never report 100% off the byte count alone; the terminal job status carries no progress value
	return math.Round(val*1000) / 1000
}

func bucketOf(progress float64) int {
	return sort.SearchFloat64s(reportBuckets, progress)
}
