package strategy

import (
	"github.com/google/uuid"

	"signal-systemv1/internal/model"
)

// Evaluator applies one rule to streaming indicator values and emits signal
// events for the live path. Decisions are pointwise, matching the batch
// pipeline: a condition that stays true across consecutive bars fires on
// every one of them, and downstream consumers dedupe.
type Evaluator struct {
	rule Rule
}

// NewEvaluator creates an evaluator for the rule.
func NewEvaluator(rule Rule) *Evaluator {
	return &Evaluator{rule: rule}
}

// Rule returns the evaluated rule.
func (e *Evaluator) Rule() Rule { return e.rule }

// OnBar evaluates the rule against a closed kline's indicator values and
// returns the fired signal events. names and values are the set's columns in
// order, as produced by Set.Columns and Set.Values.
func (e *Evaluator) OnBar(k model.Kline, names []string, values []float64) []model.SignalEvent {
	d := e.rule.Evaluate(NewPoint(k.Close, names, values))
	if !d.Any() {
		return nil
	}

	var events []model.SignalEvent
	emit := func(side model.Side, kind model.SignalKind) {
		events = append(events, model.SignalEvent{
			ID:       uuid.NewString(),
			Symbol:   k.Symbol,
			Interval: k.Interval,
			Time:     k.Time,
			Rule:     e.rule.Name(),
			Side:     side,
			Kind:     kind,
			Close:    k.Close,
			Reason:   Describe(e.rule.Name(), side, kind),
		})
	}
	if d.LongEntry {
		emit(model.SideLong, model.SignalEntry)
	}
	if d.ShortEntry {
		emit(model.SideShort, model.SignalEntry)
	}
	if d.LongExit {
		emit(model.SideLong, model.SignalExit)
	}
	if d.ShortExit {
		emit(model.SideShort, model.SignalExit)
	}
	return events
}

// Describe returns the human-readable reason attached to an event.
func Describe(rule string, side model.Side, kind model.SignalKind) string {
	switch rule {
	case RuleMeanReversion:
		switch {
		case side == model.SideLong && kind == model.SignalEntry:
			return "RSI oversold, close under lower band"
		case side == model.SideShort && kind == model.SignalEntry:
			return "RSI overbought, close over upper band"
		case side == model.SideLong && kind == model.SignalExit:
			return "close reached upper band"
		case side == model.SideShort && kind == model.SignalExit:
			return "close reached lower band"
		}
	case RuleTrendMomentum:
		switch {
		case side == model.SideLong && kind == model.SignalEntry:
			return "MACD above signal, RSI oversold, momentum up"
		case side == model.SideShort && kind == model.SignalEntry:
			return "MACD below signal, RSI overbought, momentum down"
		case side == model.SideLong && kind == model.SignalExit:
			return "MACD below signal or close above SMA"
		case side == model.SideShort && kind == model.SignalExit:
			return "MACD above signal or close below SMA"
		}
	}
	return string(side) + " " + string(kind)
}
