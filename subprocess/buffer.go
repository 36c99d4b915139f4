package subprocess

import (
	"bytes"
	"sync"
)

// SyncBuffer is a concurrency-safe byte buffer used to capture a child
// process's stderr while it is still being drained by a logging goroutine.
type SyncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *SyncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *SyncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
