package detect

// Event is one polled meter reading together with the backend's anomaly
// verdict. Events are immutable once created.
type Event struct {
	ID          string  `json:"id"`
	Timestamp   string  `json:"timestamp"`
	Consumption float64 `json:"consumption"`
	RiskScore   float64 `json:"risk_score"`
	Anomaly     bool    `json:"anomaly"`
	Reason      string  `json:"reason"`
}

// wireDetection mirrors the backend's /detect response. Pointer fields make
// missing keys detectable so defaults are substituted explicitly instead of
// relying on zero-value decoding.
type wireDetection struct {
	Consumption *float64 `json:"consumption"`
	RiskScore   *float64 `json:"risk_score"`
	Anomaly     *int     `json:"anomaly"`
	Reason      *string  `json:"reason"`
}

// toEvent applies the default-substitution rules: absent consumption or
// risk_score become 0, absent anomaly becomes 0 (false), absent reason
// becomes the empty string. The backend encodes anomaly as 0/1.
func (w wireDetection) toEvent() Event {
	var e Event
	if w.Consumption != nil {
		e.Consumption = *w.Consumption
	}
	if w.RiskScore != nil {
		e.RiskScore = *w.RiskScore
	}
	if w.Anomaly != nil {
		e.Anomaly = *w.Anomaly != 0
	}
	if w.Reason != nil {
		e.Reason = *w.Reason
	}
	return e
}
