package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"signal-systemv1/internal/indicator"
	"signal-systemv1/internal/logger"
	"signal-systemv1/internal/model"
	"signal-systemv1/internal/resample"
	"signal-systemv1/internal/strategy"
)

// reloadRequest carries the hot-reloadable knobs. Zero numeric fields keep
// their defaults and an absent rule keeps the current rule. A nil
// resample_intervals keeps the current targets; an empty list disables
// resampling.
type reloadRequest struct {
	Rule       string  `json:"rule,omitempty"`
	Oversold   float64 `json:"oversold,omitempty"`
	Overbought float64 `json:"overbought,omitempty"`

	Window     int     `json:"window,omitempty"`
	BandK      float64 `json:"band_k,omitempty"`
	RSIPeriod  int     `json:"rsi_period,omitempty"`
	MACDFast   int     `json:"macd_fast,omitempty"`
	MACDSlow   int     `json:"macd_slow,omitempty"`
	MACDSignal int     `json:"macd_signal,omitempty"`

	ResampleIntervals *[]string `json:"resample_intervals,omitempty"`
}

type reloadResponse struct {
	Status    string   `json:"status"`
	Rule      string   `json:"rule"`
	Set       string   `json:"set"`
	Restored  int      `json:"restored"`
	Cold      int      `json:"cold"`
	Intervals []string `json:"intervals"`
}

// handleReload handles POST /reload for rule and window hot reload. State
// for indicators whose configuration did not change carries over; the rest
// cold-start and warm up from live bars.
func (svc *Service) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var req reloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	resp, err := svc.applyReload(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// applyReload swaps the rule, engine windows and resample targets under
// the service lock.
func (svc *Service) applyReload(ctx context.Context, req reloadRequest) (reloadResponse, error) {
	tctx := logger.WithTraceID(ctx, logger.GenerateTraceID("reload", time.Now()))

	ruleName := req.Rule
	if ruleName == "" {
		ruleName = svc.evaluator.Rule().Name()
	}
	rule, err := strategy.New(ruleName, strategy.Params{
		Oversold:   req.Oversold,
		Overbought: req.Overbought,
	})
	if err != nil {
		return reloadResponse{}, err
	}
	params := indicator.Params{
		Window:     req.Window,
		BandK:      req.BandK,
		RSIPeriod:  req.RSIPeriod,
		MACDFast:   req.MACDFast,
		MACDSlow:   req.MACDSlow,
		MACDSignal: req.MACDSignal,
	}

	var derived []model.Interval
	if req.ResampleIntervals != nil {
		for _, s := range *req.ResampleIntervals {
			iv, err := model.ParseInterval(s)
			if err != nil {
				return reloadResponse{}, err
			}
			derived = append(derived, iv)
		}
	}

	svc.mu.Lock()
	restored, cold, err := svc.engine.Reconfigure(rule.Set(), params)
	if err != nil {
		svc.mu.Unlock()
		return reloadResponse{}, err
	}
	svc.evaluator = strategy.NewEvaluator(rule)
	svc.params = svc.engine.Params()
	if req.ResampleIntervals != nil {
		if err := svc.swapResampleTargets(derived); err != nil {
			svc.mu.Unlock()
			return reloadResponse{}, err
		}
	}
	svc.mu.Unlock()

	if svc.health != nil {
		svc.health.SetScope(rule.Name(), svc.symbols, intervalStrings(svc.allIntervals()))
	}
	slog.Info("configuration reloaded", append([]any{
		"rule", rule.Name(), "set", rule.Set(), "restored", restored, "cold", cold,
	}, logger.LogWithTrace(tctx)...)...)

	return reloadResponse{
		Status:    "ok",
		Rule:      rule.Name(),
		Set:       rule.Set(),
		Restored:  restored,
		Cold:      cold,
		Intervals: intervalStrings(svc.allIntervals()),
	}, nil
}

// swapResampleTargets applies a new derived-interval list. Callers hold
// svc.mu.
func (svc *Service) swapResampleTargets(derived []model.Interval) error {
	if svc.resampler == nil {
		if len(derived) == 0 {
			return nil
		}
		r, err := resample.New(derived)
		if err != nil {
			return err
		}
		svc.wireResampler(r)
		svc.resampler = r
		svc.derived = r.Intervals()
		return nil
	}
	if err := svc.resampler.UpdateIntervals(derived, svc.busIn); err != nil {
		return err
	}
	svc.derived = svc.resampler.Intervals()
	return nil
}
