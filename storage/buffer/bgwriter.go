/*
Dirty pages have to be written out to disk before their buffer is reused.
If that write happens inside ReadBuffer(), the caller waiting for a page
pays for somebody else's write. So background writing is introduced:
the background writer periodically walks the pool and writes dirty unpinned
pages out ahead of time. The page stays in the pool, only its dirty bit is
turned off, so a later fetch still hits.

postgres ships the same idea as the bgwriter process. for its parameters,
see 20.4.5 in
https://www.postgresql.org/docs/current/runtime-config-resource.html#RUNTIME-CONFIG-RESOURCE-BACKGROUND-WRITER
*/
package buffer

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
)

// BackgroundWriterConfig configures the background writer
type BackgroundWriterConfig struct {
	// Interval is the delay between two rounds
	Interval time.Duration
	// MaxPagesPerRound caps how many pages one round writes out
	MaxPagesPerRound int
}

// DefaultBackgroundWriterConfig returns the defaults, which follow the
// postgres bgwriter defaults: 200ms between rounds, 100 pages per round
func DefaultBackgroundWriterConfig() BackgroundWriterConfig {
	return BackgroundWriterConfig{
		Interval:         200 * time.Millisecond,
		MaxPagesPerRound: 100,
	}
}

// BackgroundWriter writes dirty pages out to disk on a timer so that
// evictions find clean buffers
type BackgroundWriter struct {
	m      *Manager
	conf   BackgroundWriterConfig
	logger *slog.Logger
}

// NewBackgroundWriter initializes a background writer for the pool
func NewBackgroundWriter(m *Manager, conf BackgroundWriterConfig) *BackgroundWriter {
	return &BackgroundWriter{
		m:      m,
		conf:   conf,
		logger: m.logger,
	}
}

// Run writes dirty pages in rounds until ctx is done or the pool is closed.
// both of those are normal shutdowns and return nil.
func (bw *BackgroundWriter) Run(ctx context.Context) error {
	ticker := time.NewTicker(bw.conf.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			written, err := bw.runOnce()
			if err != nil {
				if errors.Is(err, ErrClosed) {
					return nil
				}
				bw.logger.Error("background writer round failed", "error", err)
				return err
			}
			if written > 0 {
				bw.logger.Debug("background writer round", "written", written)
			}
		}
	}
}

// runOnce walks the pool once and writes back up to MaxPagesPerRound dirty
// unpinned pages. the walk starts right after the clock hand so the buffers
// clock sweep will inspect next get cleaned first.
func (bw *BackgroundWriter) runOnce() (int, error) {
	m := bw.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}

	bufID := m.nextVictimBuffer
	written := 0
	for i := 0; i < len(m.descriptors); i++ {
		bufID = (bufID + 1) % BufferID(len(m.descriptors))
		desc := &m.descriptors[bufID]
		if !desc.valid || !desc.dirty || desc.pinCount > 0 {
			continue
		}
		if err := m.flushBuffer(bufID); err != nil {
			return written, errors.Wrap(err, "m.flushBuffer failed")
		}
		desc.dirty = false
		written++
		if written >= bw.conf.MaxPagesPerRound {
			break
		}
	}
	return written, nil
}
