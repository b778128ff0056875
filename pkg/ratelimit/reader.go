// Package ratelimit caps transfer bandwidth with a token bucket shared by
// every reader wrapped with the same Limiter.
package ratelimit

import (
	"context"
	"io"
	"sync"
	"time"
)

// minBucket keeps small limits from degrading into byte-sized reads
const minBucket = 64 * 1024

// Limiter controls the rate of data transfer across multiple readers
type Limiter struct {
	bytesPerSecond int64
	bucketSize     int64

	mu         sync.Mutex
	tokens     int64
	lastUpdate time.Time
	now        func() time.Time
}

// NewLimiter creates a limiter allowing bytesPerSecond with a burst of one
// second's worth of data. It returns nil, meaning unlimited, for
// non-positive rates.
func NewLimiter(bytesPerSecond int64) *Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}

	bucketSize := bytesPerSecond
	if bucketSize < minBucket {
		bucketSize = minBucket
	}

	return &Limiter{
		bytesPerSecond: bytesPerSecond,
		bucketSize:     bucketSize,
		tokens:         bucketSize,
		lastUpdate:     time.Now(),
		now:            time.Now,
	}
}

// Rate returns the configured bytes per second (0 for a nil limiter)
func (l *Limiter) Rate() int64 {
	if l == nil {
		return 0
	}
	return l.bytesPerSecond
}

// wait blocks until n tokens are available and takes them
func (l *Limiter) wait(ctx context.Context, n int64) error {
	for {
		l.mu.Lock()
		l.refill()
		if l.tokens >= n {
			l.tokens -= n
			l.mu.Unlock()
			return nil
		}
		deficit := n - l.tokens
		l.mu.Unlock()

		delay := time.Duration(float64(deficit) / float64(l.bytesPerSecond) * float64(time.Second))
		if delay < time.Millisecond {
			delay = time.Millisecond
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// refill adds tokens for the elapsed time; l.mu must be held
func (l *Limiter) refill() {
	now := l.now()
	add := int64(now.Sub(l.lastUpdate).Seconds() * float64(l.bytesPerSecond))
	if add <= 0 {
		return
	}
	l.tokens += add
	if l.tokens > l.bucketSize {
		l.tokens = l.bucketSize
	}
	l.lastUpdate = now
}

// giveBack returns tokens reserved for a read that came up short
func (l *Limiter) giveBack(n int64) {
	if n <= 0 {
		return
	}
	l.mu.Lock()
	l.tokens += n
	if l.tokens > l.bucketSize {
		l.tokens = l.bucketSize
	}
	l.mu.Unlock()
}

// Reader wraps an io.Reader with bandwidth limiting
type Reader struct {
	reader  io.Reader
	limiter *Limiter
	ctx     context.Context
}

// NewReader wraps r so reads draw from limiter. A nil limiter returns r unchanged.
func NewReader(ctx context.Context, r io.Reader, limiter *Limiter) io.Reader {
	if limiter == nil {
		return r
	}
	return &Reader{reader: r, limiter: limiter, ctx: ctx}
}

// Read implements io.Reader. Reads are capped at the bucket size so a large
// buffer cannot exceed the burst.
func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return r.reader.Read(p)
	}
	if int64(len(p)) > r.limiter.bucketSize {
		p = p[:r.limiter.bucketSize]
	}

	if err := r.limiter.wait(r.ctx, int64(len(p))); err != nil {
		return 0, err
	}

	n, err := r.reader.Read(p)
	r.limiter.giveBack(int64(len(p) - n))
	return n, err
}
