package workflow

import (
	"testing"
	"time"
)

func TestNextOccurrence(t *testing.T) {
	base := time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before today", base.Add(-time.Hour), base},
		{"exactly now rolls over", base, base.AddDate(0, 0, 1)},
		{"after today", base.Add(time.Minute), base.AddDate(0, 0, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextOccurrence(tt.now, 6, 0); !got.Equal(tt.want) {
				t.Fatalf("nextOccurrence(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}
