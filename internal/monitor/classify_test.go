package monitor

import "testing"

func TestClassify_Boundaries(t *testing.T) {
	tests := []struct {
		score float64
		want  Tier
	}{
		{0, TierLow},
		{32, TierLow},
		{32.9, TierLow},
		{33, TierMedium},
		{50, TierMedium},
		{65, TierMedium},
		{65.9, TierMedium},
		{66, TierHigh},
		{80, TierHigh},
		{100, TierHigh},
	}

	for _, tt := range tests {
		if got := Classify(tt.score); got != tt.want {
			t.Errorf("Classify(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestDeriveState(t *testing.T) {
	if got := DeriveState(true); got != "Suspicious" {
		t.Errorf("DeriveState(true) = %q, want Suspicious", got)
	}
	if got := DeriveState(false); got != "Normal" {
		t.Errorf("DeriveState(false) = %q, want Normal", got)
	}
}
