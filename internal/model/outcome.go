package model

// OutcomeCounts aggregates the per-row win/loss classification of a pipeline
// run. Total = Winning + Losing; rows that classify as neither are not
// counted.
type OutcomeCounts struct {
	Winning     int     `json:"winning"`
	Losing      int     `json:"losing"`
	Total       int     `json:"total"`
	AccuracyPct float64 `json:"accuracy_pct"`
}
