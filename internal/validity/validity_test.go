package validity

import (
	"testing"
	"time"
)

func TestEffective(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Hour)

	tests := []struct {
		name  string
		flag  bool
		until *time.Time
		want  bool
	}{
		{name: "flag off", flag: false, until: &future, want: false},
		{name: "open ended", flag: true, until: nil, want: true},
		{name: "not yet lapsed", flag: true, until: &future, want: true},
		{name: "lapsed", flag: true, until: &past, want: false},
		{name: "boundary is exclusive", flag: true, until: &now, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Effective(tt.flag, tt.until, now); got != tt.want {
				t.Fatalf("Effective() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRemaining(t *testing.T) {
	now := time.Now()
	if got := Remaining(now.Add(-time.Minute), now); got != 0 {
		t.Fatalf("expected zero remaining for lapsed bound, got %v", got)
	}
	if got := Remaining(now.Add(300*time.Second), now); got != 300*time.Second {
		t.Fatalf("expected 300s remaining, got %v", got)
	}
}
