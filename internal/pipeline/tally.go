package pipeline

import (
	"signal-systemv1/internal/frame"
	"signal-systemv1/internal/model"
	"signal-systemv1/internal/strategy"
)

// tally classifies every frame row against the rule's target columns:
//
//	winning: (Long_Entry and close ≥ long target) or (Short_Entry and close ≤ short target)
//	losing:  (Long_Entry and close < long target) or (Short_Entry and close > short target)
//
// The classification is per-row, not a trade ledger: the entry booleans and
// the target comparison read the same row, so a long entry (close under the
// lower band) is immediately measured against the upper band and counts as
// losing on the spot. Winning takes precedence when both predicates hold.
// Rows with an undefined target compare false on both sides and count as
// neither. AccuracyPct is 100·Winning/Total, 0 when no row classified.
func tally(f *frame.Frame, targets strategy.Targets) model.OutcomeCounts {
	longEntry, _ := f.Bool(strategy.ColLongEntry)
	shortEntry, _ := f.Bool(strategy.ColShortEntry)
	longTarget, _ := f.Column(targets.Long)
	shortTarget, _ := f.Column(targets.Short)

	var counts model.OutcomeCounts
	bars := f.Bars()
	for i := range bars {
		close := bars[i].Close

		var wins, loses bool
		if longEntry != nil && longEntry[i] && longTarget != nil {
			wins = wins || close >= longTarget[i]
			loses = loses || close < longTarget[i]
		}
		if shortEntry != nil && shortEntry[i] && shortTarget != nil {
			wins = wins || close <= shortTarget[i]
			loses = loses || close > shortTarget[i]
		}

		switch {
		case wins:
			counts.Winning++
		case loses:
			counts.Losing++
		}
	}
	counts.Total = counts.Winning + counts.Losing
	if counts.Total > 0 {
		counts.AccuracyPct = 100 * float64(counts.Winning) / float64(counts.Total)
	}
	return counts
}
