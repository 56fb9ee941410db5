package strategy

import "signal-systemv1/internal/indicator"

// TrendMomentum trades MACD crossovers confirmed by RSI and rate of change,
// reading the macd_trend set:
//
//	Long_Entry:  MACD > Signal_Line and RSI ≤ oversold  and ROC > 0
//	Short_Entry: MACD < Signal_Line and RSI ≥ overbought and ROC < 0
//	Long_Exit:   MACD < Signal_Line or close ≥ SMA
//	Short_Exit:  MACD > Signal_Line or close ≤ SMA
//
// Outcome target is the SMA on both sides.
type TrendMomentum struct {
	oversold   float64
	overbought float64
}

// NewTrendMomentum creates the rule with the given thresholds.
func NewTrendMomentum(p Params) *TrendMomentum {
	p = p.withDefaults()
	return &TrendMomentum{oversold: p.Oversold, overbought: p.Overbought}
}

func (r *TrendMomentum) Name() string { return RuleTrendMomentum }

func (r *TrendMomentum) Set() string { return indicator.SetMACDTrend }

func (r *TrendMomentum) Evaluate(v View) Decision {
	close := v.Close()
	sma := v.Value(indicator.ColSMA)
	macd := v.Value(indicator.ColMACD)
	sig := v.Value(indicator.ColSignalLine)
	rsi := v.Value(indicator.ColRSI)
	roc := v.Value(indicator.ColROC)

	return Decision{
		LongEntry:  macd > sig && rsi <= r.oversold && roc > 0,
		ShortEntry: macd < sig && rsi >= r.overbought && roc < 0,
		LongExit:   macd < sig || close >= sma,
		ShortExit:  macd > sig || close <= sma,
	}
}

func (r *TrendMomentum) Targets() Targets {
	return Targets{Long: indicator.ColSMA, Short: indicator.ColSMA}
}
