// internal/perception/stability.go
package perception

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/xkilldash9x/seeclaw/internal/config"
	"go.uber.org/zap"
)

// StabilityDetector counts consecutive identical frames, comparing sampled hashes.
type StabilityDetector struct {
	minStableFrames int
	lastHash        uint64
	hasLast         bool
	stableCount     int
}

func NewStabilityDetector(minStableFrames int) *StabilityDetector {
	if minStableFrames <= 0 {
		minStableFrames = 3
	}
	return &StabilityDetector{minStableFrames: minStableFrames}
}

func (s *StabilityDetector) Reset() {
	s.hasLast = false
	s.stableCount = 0
}

// IsStable feeds one frame and reports whether enough identical frames have
// been seen in a row.
func (s *StabilityDetector) IsStable(frame []byte) bool {
	h := FrameHash(frame)
	if s.hasLast {
		if h == s.lastHash {
			s.stableCount++
		} else {
			s.stableCount = 0
		}
	}
	s.lastHash, s.hasLast = h, true
	return s.stableCount >= s.minStableFrames
}

func sampleStep(n int) int {
	return max(n/1000, 1)
}

// FrameHash hashes roughly a thousand evenly spaced bytes of frame.
func FrameHash(frame []byte) uint64 {
	h := fnv.New64a()
	step := sampleStep(len(frame))
	buf := make([]byte, 0, len(frame)/step+1)
	for i := 0; i < len(frame); i += step {
		buf = append(buf, frame[i])
	}
	_, _ = h.Write(buf)
	return h.Sum64()
}

// FrameDifference is the share of sampled bytes that differ by more than 10.
// An empty frame counts as completely different.
func FrameDifference(a, b []byte) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 1
	}
	n := min(len(a), len(b))
	step := sampleStep(n)
	diff, total := 0, 0
	for i := 0; i < n; i += step {
		d := int(a[i]) - int(b[i])
		if d > 10 || d < -10 {
			diff++
		}
		total++
	}
	return float64(diff) / float64(total)
}

// FrameSource returns the raw bytes of a fresh capture.
type FrameSource func(ctx context.Context) ([]byte, error)

// WaitForStability polls frames until the screen stops changing or MaxWait
// elapses. It reports false on timeout and returns ctx's error when cancelled.
func WaitForStability(ctx context.Context, frames FrameSource, cfg config.StabilityConfig, logger *zap.Logger) (bool, error) {
	maxWait, interval := cfg.MaxWait, cfg.Interval
	if maxWait <= 0 {
		maxWait = 5 * time.Second
	}
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}

	detector := NewStabilityDetector(cfg.MinStableFrames)
	start := time.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for time.Since(start) < maxWait {
		frame, err := frames(ctx)
		if err != nil {
			return false, err
		}
		if detector.IsStable(frame) {
			logger.Debug("Screen stable.", zap.Duration("after", time.Since(start)))
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
	logger.Warn("Timed out waiting for a stable screen.", zap.Duration("waited", time.Since(start)))
	return false, nil
}
