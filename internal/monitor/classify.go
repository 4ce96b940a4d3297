package monitor

// Tier is the discrete risk bucket derived from a numeric risk score.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// Classify maps a risk score to its tier. Scores arrive already clamped to
// [0,100] by the backend.
//
//	score < 33        -> low
//	33 <= score < 66  -> medium
//	score >= 66       -> high
func Classify(score float64) Tier {
	switch {
	case score < 33:
		return TierLow
	case score < 66:
		return TierMedium
	default:
		return TierHigh
	}
}

// DeriveState converts the backend's anomaly flag into the display state.
func DeriveState(anomaly bool) string {
	if anomaly {
		return "Suspicious"
	}
	return "Normal"
}
