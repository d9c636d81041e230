package backtest

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/amirphl/signal-trader/internal/candle"
	"github.com/amirphl/signal-trader/internal/strategy"
	"github.com/amirphl/signal-trader/internal/utils"
)

// Weights blend run statistics into one ranking score.
type Weights struct {
	Return       float64 `yaml:"return"`
	WinRate      float64 `yaml:"win_rate"`
	ProfitFactor float64 `yaml:"profit_factor"`
	Drawdown     float64 `yaml:"drawdown"`
	Sharpe       float64 `yaml:"sharpe"`
}

func DefaultWeights() Weights {
	return Weights{Return: 0.3, WinRate: 0.2, ProfitFactor: 0.2, Drawdown: 0.15, Sharpe: 0.15}
}

// profitFactorCap keeps a loss-free run from dominating the score.
const profitFactorCap = 99

// Score rates a run: higher is better. Profit factor is capped and scaled to
// the percent range; drawdown contributes as 100 + MaxDrawdownPct.
func (w Weights) Score(s *Stats) float64 {
	pf := math.Min(float64(s.ProfitFactor), profitFactorCap)
	return s.TotalReturnPct*w.Return +
		s.WinRate*w.WinRate +
		pf*10*w.ProfitFactor +
		(100+s.MaxDrawdownPct)*w.Drawdown +
		s.SharpeRatio*w.Sharpe
}

type Ranking struct {
	Rank     int     `json:"rank"`
	Strategy string  `json:"strategy"`
	Score    float64 `json:"score"`
	NoTrades bool    `json:"no_trades"`
	Result   *Result `json:"-"`
}

// Comparator runs every strategy over the same bars with a fresh Engine each
// and ranks the outcomes.
type Comparator struct {
	Config     Config
	Strategies []strategy.Strategy
	Weights    Weights
	// Parallelism bounds concurrent runs; zero uses GOMAXPROCS.
	Parallelism int
	// Progress, when set, is called after each run completes.
	Progress func(done, total int)
}

func (c *Comparator) Run(ctx context.Context, bars []candle.Candle) ([]Ranking, error) {
	if len(c.Strategies) == 0 {
		return nil, fmt.Errorf("%w: no strategies to compare", ErrInvalidConfig)
	}
	if err := candle.ValidateSeries(bars); err != nil {
		return nil, err
	}
	weights := c.Weights
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	limit := c.Parallelism
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	results := make([]*Result, len(c.Strategies))
	var (
		mu   sync.Mutex
		done int
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, strat := range c.Strategies {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			engine, err := NewEngine(c.Config, strat)
			if err != nil {
				return fmt.Errorf("%s: %w", strat.Name(), err)
			}
			res, err := engine.Run(bars)
			if err != nil {
				return fmt.Errorf("%s: %w", strat.Name(), err)
			}
			results[i] = res

			if c.Progress != nil {
				mu.Lock()
				done++
				c.Progress(done, len(c.Strategies))
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rankings := make([]Ranking, len(results))
	for i, res := range results {
		r := Ranking{Strategy: res.Strategy, Result: res, NoTrades: res.Stats == nil}
		if res.Stats != nil {
			r.Score = weights.Score(res.Stats)
		}
		rankings[i] = r
	}
	sort.SliceStable(rankings, func(i, j int) bool {
		a, b := rankings[i], rankings[j]
		if a.NoTrades != b.NoTrades {
			return !a.NoTrades
		}
		if !a.NoTrades && a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Strategy < b.Strategy
	})
	for i := range rankings {
		rankings[i].Rank = i + 1
	}

	if len(rankings) > 0 {
		utils.GetLogger().Infof("Comparator.Run | ranked %d strategies, best %s (score %.2f)",
			len(rankings), rankings[0].Strategy, rankings[0].Score)
	}
	return rankings, nil
}
