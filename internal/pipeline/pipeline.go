// Package pipeline runs the batch signal pipeline: source rows are
// normalized into a series, an indicator set materializes the frame columns,
// a rule adds the signal columns and the tally classifies the outcomes.
// Identical input and config produce an identical frame; nothing here keeps
// state between runs.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"signal-systemv1/internal/frame"
	"signal-systemv1/internal/indicator"
	"signal-systemv1/internal/model"
	"signal-systemv1/internal/normalize"
	"signal-systemv1/internal/strategy"
)

// frame rows feed rule evaluation directly
var _ strategy.View = frame.Row{}

// Sink receives a finished run.
type Sink interface {
	// Name identifies the sink in logs.
	Name() string

	// Write persists or exports the run.
	Write(res *Result) error
}

// Config selects the source, the rule and the windows for one run.
type Config struct {
	Source   model.SeriesSource
	Symbol   string
	Interval model.Interval
	Start    time.Time // zero = source default
	End      time.Time // zero = open-ended

	Rule       string
	RuleParams strategy.Params

	// Set overrides the rule's indicator set; empty selects it from the
	// rule. A non-empty mismatch is a config error.
	Set             string
	IndicatorParams indicator.Params

	// Strict rejects series shorter than the set's warm-up window instead
	// of producing the all-undefined output.
	Strict bool

	Sinks []Sink
}

// Result is one finished run.
type Result struct {
	RunID    string
	Symbol   string
	Interval model.Interval
	Rule     string
	Set      string

	// Frame holds the forward-filled indicator columns and the signal
	// columns over the normalized series.
	Frame  *frame.Frame
	Counts model.OutcomeCounts

	CreatedAt time.Time
	Elapsed   time.Duration
}

// Run executes the pipeline once. Any error aborts before sinks are written.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	started := time.Now()

	rule, set, err := cfg.build()
	if err != nil {
		return nil, err
	}

	rows, err := cfg.Source.Fetch(ctx, cfg.Symbol, cfg.Interval, cfg.Start, cfg.End)
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s: %w", cfg.Symbol, cfg.Interval, err)
	}

	series, err := normalize.Series(rows)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}

	if cfg.Strict && len(series) < set.Warmup() {
		return nil, &InsufficientDataError{Rows: len(series), Window: set.Warmup()}
	}

	f, err := materialize(set, series)
	if err != nil {
		return nil, err
	}
	f = f.ForwardFill()

	if err := evaluate(f, rule); err != nil {
		return nil, err
	}

	res := &Result{
		RunID:     uuid.NewString(),
		Symbol:    cfg.Symbol,
		Interval:  cfg.Interval,
		Rule:      rule.Name(),
		Set:       set.Name(),
		Frame:     f,
		Counts:    tally(f, rule.Targets()),
		CreatedAt: started.UTC(),
		Elapsed:   time.Since(started),
	}

	log.Printf("[pipeline] run %s: %s %s rule=%s rows=%d won=%d lost=%d accuracy=%.2f%%",
		res.RunID, res.Symbol, res.Interval, res.Rule, f.Rows(),
		res.Counts.Winning, res.Counts.Losing, res.Counts.AccuracyPct)

	for _, sink := range cfg.Sinks {
		if err := sink.Write(res); err != nil {
			return nil, fmt.Errorf("sink %s: %w", sink.Name(), err)
		}
	}
	return res, nil
}

// build resolves the rule and a fresh indicator set from the config.
func (cfg Config) build() (strategy.Rule, indicator.Set, error) {
	if cfg.Source == nil {
		return nil, nil, fmt.Errorf("pipeline: no series source configured")
	}
	rule, err := strategy.New(cfg.Rule, cfg.RuleParams)
	if err != nil {
		return nil, nil, err
	}
	setName := cfg.Set
	if setName == "" {
		setName = rule.Set()
	} else if setName != rule.Set() {
		return nil, nil, fmt.Errorf("rule %s reads set %s, not %s", rule.Name(), rule.Set(), setName)
	}
	set, err := indicator.NewSet(setName, cfg.IndicatorParams)
	if err != nil {
		return nil, nil, err
	}
	return rule, set, nil
}

// materialize drives the set over the series and collects each column.
func materialize(set indicator.Set, series []model.Bar) (*frame.Frame, error) {
	cols := set.Columns()
	values := make([][]float64, len(cols))
	for j := range values {
		values[j] = make([]float64, 0, len(series))
	}
	for _, b := range series {
		set.Update(b)
		for j, v := range set.Values() {
			values[j] = append(values[j], v)
		}
	}

	f := frame.New(series)
	for j, c := range cols {
		if err := f.AddColumn(c.Name, c.Fill, values[j]); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// evaluate adds the four signal columns from pointwise rule decisions.
func evaluate(f *frame.Frame, rule strategy.Rule) error {
	n := f.Rows()
	longEntry := make([]bool, n)
	shortEntry := make([]bool, n)
	longExit := make([]bool, n)
	shortExit := make([]bool, n)

	for i := 0; i < n; i++ {
		d := rule.Evaluate(f.Row(i))
		longEntry[i] = d.LongEntry
		shortEntry[i] = d.ShortEntry
		longExit[i] = d.LongExit
		shortExit[i] = d.ShortExit
	}

	for _, col := range []struct {
		name   string
		values []bool
	}{
		{strategy.ColLongEntry, longEntry},
		{strategy.ColShortEntry, shortEntry},
		{strategy.ColLongExit, longExit},
		{strategy.ColShortExit, shortExit},
	} {
		if err := f.AddBool(col.name, col.values); err != nil {
			return err
		}
	}
	return nil
}
