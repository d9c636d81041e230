package strategy

import (
	"fmt"
	"math"

	"github.com/amirphl/signal-trader/internal/indicator"
)

// Composite blends trend, mean-reversion, structure and volume sub-scores
// with weights chosen by market regime.
type Composite struct {
	params CompositeParams
}

func NewComposite(p CompositeParams) (*Composite, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Composite{params: p}, nil
}

func (s *Composite) Name() string { return NameComposite }

func (s *Composite) Analyze(raw indicator.Snapshot, timeframe string) *Signal {
	if !validPrice(raw.Price) {
		return nil
	}
	snap := raw.WithDefaults()
	p := s.params
	if !p.inBand(snap) {
		return nil
	}

	regime := compositeRegime(snap)
	trend := trendScore(snap)
	reversion := meanRevScore(snap)
	structure := structureScore(snap)
	volume := volumeScore(snap)

	var score float64
	switch regime {
	case RegimeTrending:
		score = trend.score*0.5 + structure.score*0.25 + volume.score*0.25
	case RegimeRanging:
		score = reversion.score*0.5 + structure.score*0.25 + volume.score*0.25
	default:
		score = (trend.score+reversion.score)*0.35 + structure.score*0.15 + volume.score*0.15
	}

	// Counter-trend trades against a clear MA50/MA200 trend are skipped.
	if p.TrendFilter && raw.MA200 > 0 && !math.IsInf(raw.MA200, 0) {
		if snap.MA50 > snap.MA200*1.02 && score < -20 {
			return nil
		}
		if snap.MA50 < snap.MA200*0.98 && score > 20 {
			return nil
		}
	}

	all := tally{reasons: []string{fmt.Sprintf("regime %s (ADX %.1f)", regime, snap.ADX)}}
	switch regime {
	case RegimeTrending:
		all.merge(trend)
	case RegimeRanging:
		all.merge(reversion)
	default:
		all.merge(trend)
		all.merge(reversion)
	}
	all.merge(structure)
	all.merge(volume)

	return finish(NameComposite, p.Common, snap, timeframe, score, all.reasons, p.StopATR, p.TargetATR)
}
