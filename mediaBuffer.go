package d3xx

import (
	"bytes"
	"sync"
	"time"
)

// mediaBuffer collects bytes delivered by the reader goroutine for
// synchronous receive calls. Appends close the current wait channel so that
// blocked searches wake up and re-examine the buffer.
type mediaBuffer struct {
	mu   sync.Mutex
	data []byte
	more chan struct{}
}

func newMediaBuffer() *mediaBuffer {
	return &mediaBuffer{more: make(chan struct{})}
}

func (b *mediaBuffer) append(p []byte) {
	if len(p) == 0 {
		return
	}
	b.mu.Lock()
	b.data = append(b.data, p...)
	woken := b.more
	b.more = make(chan struct{})
	b.mu.Unlock()
	close(woken)
}

// take removes and returns the first count bytes. A count of -1 drains the
// whole buffer.
func (b *mediaBuffer) take(count int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if count < 0 || count >= len(b.data) {
		ret := b.data
		b.data = nil
		return ret
	}
	ret := make([]byte, count)
	copy(ret, b.data[:count])
	b.data = b.data[count:]
	return ret
}

func (b *mediaBuffer) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

func (b *mediaBuffer) reset() {
	b.mu.Lock()
	b.data = nil
	b.mu.Unlock()
}

// waitMore blocks until more data arrives (ch closes) or the deadline
// passes. Returns false when the caller should give up.
func waitMore(ch <-chan struct{}, deadline time.Time) bool {
	rem := time.Until(deadline)
	if rem <= 0 {
		return false
	}
	timer := time.NewTimer(rem)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	}
}

// search blocks until the buffer holds at least minLen bytes and, when a
// terminator is given, until the terminator is found past that point. It
// returns the number of bytes up to and including the terminator (or minLen
// when no terminator is given), or -1 when maxWait elapsed first. A maxWait
// of zero or less means no waiting: the buffer is examined once.
func (b *mediaBuffer) search(terminator []byte, minLen int, maxWait time.Duration) int {
	if minLen < 0 {
		minLen = 0
	}
	deadline := time.Now().Add(maxWait)
	// Scanning restarts at most len(terminator)-1 bytes before the already
	// searched region, in case the terminator straddles two appends.
	scanned := 0
	for {
		b.mu.Lock()
		ch := b.more
		// The buffer may shrink between examinations (reset, or a competing
		// take). Earlier scan positions no longer map to the data then, so
		// the scan restarts from the front instead of indexing past the end.
		if scanned > len(b.data) {
			scanned = 0
		}
		if len(b.data) >= minLen {
			if len(terminator) == 0 {
				b.mu.Unlock()
				return minLen
			}
			start := scanned - (len(terminator) - 1)
			if start < 0 {
				start = 0
			}
			if i := bytes.Index(b.data[start:], terminator); i >= 0 {
				b.mu.Unlock()
				return start + i + len(terminator)
			}
			scanned = len(b.data)
		}
		b.mu.Unlock()
		if maxWait <= 0 || !waitMore(ch, deadline) {
			return -1
		}
	}
}
