package limiters

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/famguard/internal/rate"
)

func TestDownloadMonitorFlagsAboveThreshold(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	m := NewDownloadMonitor(rate.NewMemoryCounter(func() time.Time { return now }), DownloadConfig{})
	ctx := context.Background()

	for i := 1; i <= DefaultDownloadThreshold; i++ {
		flagged, count, err := m.Record(ctx, 7)
		if err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		if flagged {
			t.Fatalf("download %d flagged too early", i)
		}
		if count != i {
			t.Fatalf("expected count %d, got %d", i, count)
		}
	}

	flagged, _, err := m.Record(ctx, 7)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if !flagged {
		t.Fatal("expected download over threshold to be flagged")
	}

	if flagged, _, _ := m.Record(ctx, 8); flagged {
		t.Fatal("other user must not be flagged")
	}

	now = now.Add(DefaultDownloadWindow)
	if flagged, count, _ := m.Record(ctx, 7); flagged || count != 1 {
		t.Fatalf("expected fresh window, flagged=%v count=%d", flagged, count)
	}
}
