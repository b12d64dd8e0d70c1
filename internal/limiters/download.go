package limiters

import (
	"context"
	"strconv"
	"time"

	"github.com/MrEthical07/famguard/internal/rate"
)

const (
	DefaultDownloadWindow    = 5 * time.Minute
	DefaultDownloadThreshold = 20
)

// DownloadConfig holds the mass-download policy. Zero values take the
// defaults.
type DownloadConfig struct {
	Window    time.Duration
	Threshold int
}

// DownloadMonitor counts record downloads per user.
type DownloadMonitor struct {
	counter rate.Counter
	config  DownloadConfig
}

// NewDownloadMonitor creates a DownloadMonitor over counter.
func NewDownloadMonitor(counter rate.Counter, cfg DownloadConfig) *DownloadMonitor {
	if cfg.Window <= 0 {
		cfg.Window = DefaultDownloadWindow
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultDownloadThreshold
	}
	return &DownloadMonitor{counter: counter, config: cfg}
}

// Record counts one download. flagged is true once the count in the window
// exceeds the threshold; the caller alerts and lets the download proceed.
func (m *DownloadMonitor) Record(ctx context.Context, userID int64) (flagged bool, count int, err error) {
	if m == nil {
		return false, 0, nil
	}
	count, err = m.counter.Add(ctx, "throttle:download:"+strconv.FormatInt(userID, 10), m.config.Window)
	if err != nil {
		return false, 0, err
	}
	return count > m.config.Threshold, count, nil
}
