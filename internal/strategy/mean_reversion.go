package strategy

import "signal-systemv1/internal/indicator"

// MeanReversion trades Bollinger band breaches filtered by RSI, reading the
// bollinger_rsi set:
//
//	Long_Entry:  RSI ≤ oversold  and close < Lower_BB
//	Short_Entry: RSI > overbought and close > Upper_BB
//	Long_Exit:   close ≥ Upper_BB
//	Short_Exit:  close ≤ Lower_BB
//
// Outcome targets are the opposite bands: a long entry counts as winning
// when the close has already reached the upper band, a short entry when it
// has reached the lower band.
type MeanReversion struct {
	oversold   float64
	overbought float64
}

// NewMeanReversion creates the rule with the given thresholds.
func NewMeanReversion(p Params) *MeanReversion {
	p = p.withDefaults()
	return &MeanReversion{oversold: p.Oversold, overbought: p.Overbought}
}

func (r *MeanReversion) Name() string { return RuleMeanReversion }

func (r *MeanReversion) Set() string { return indicator.SetBollingerRSI }

func (r *MeanReversion) Evaluate(v View) Decision {
	close := v.Close()
	rsi := v.Value(indicator.ColRSI)
	upper := v.Value(indicator.ColUpperBB)
	lower := v.Value(indicator.ColLowerBB)

	return Decision{
		LongEntry:  rsi <= r.oversold && close < lower,
		ShortEntry: rsi > r.overbought && close > upper,
		LongExit:   close >= upper,
		ShortExit:  close <= lower,
	}
}

func (r *MeanReversion) Targets() Targets {
	return Targets{Long: indicator.ColUpperBB, Short: indicator.ColLowerBB}
}
