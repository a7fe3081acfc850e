package spool

// sweeper.go removes uploads that were spooled but never imported.
//
// The sweep runs once at start and then every interval until the context is
// cancelled. Failures are logged and retried on the next tick.

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// SweepConfig holds settings for the stale upload sweeper.
type SweepConfig struct {
	MaxAge   time.Duration // Uploads older than this are removed (default: 24h)
	Interval time.Duration // How often to sweep (default: 1h)
}

func (c SweepConfig) withDefaults() SweepConfig {
	if c.MaxAge <= 0 {
		c.MaxAge = 24 * time.Hour
	}
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	return c
}

// Sweep removes spooled uploads last modified before now-maxAge and returns
// how many were removed. Files not created by Save are left alone.
func (s *Store) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !idRe.MatchString(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// StartSweeper blocks, sweeping stale uploads until ctx is cancelled.
func (s *Store) StartSweeper(ctx context.Context, cfg SweepConfig, logger *slog.Logger) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("spool sweeper started", "dir", s.dir, "max_age", cfg.MaxAge, "interval", cfg.Interval)

	s.sweepOnce(cfg, logger)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("spool sweeper stopped")
			return
		case <-ticker.C:
			s.sweepOnce(cfg, logger)
		}
	}
}

func (s *Store) sweepOnce(cfg SweepConfig, logger *slog.Logger) {
	start := time.Now()
	n, err := s.Sweep(cfg.MaxAge)
	if err != nil {
		logger.Error("spool sweep failed", "error", err, "removed", n)
		return
	}
	if n > 0 {
		logger.Info("removed stale uploads", "count", n, "duration_ms", time.Since(start).Milliseconds())
	}
}
