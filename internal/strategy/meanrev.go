package strategy

import (
	"github.com/amirphl/signal-trader/internal/indicator"
)

// MeanRev fades stretched moves near support and resistance. It is tuned
// for holding overnight with structure-based levels.
type MeanRev struct {
	params MeanRevParams
}

func NewMeanRev(p MeanRevParams) (*MeanRev, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &MeanRev{params: p}, nil
}

func (s *MeanRev) Name() string { return NameMeanRev }

func (s *MeanRev) Analyze(raw indicator.Snapshot, timeframe string) *Signal {
	if !validPrice(raw.Price) {
		return nil
	}
	snap := raw.WithDefaults()
	p := s.params
	if !p.inBand(snap) {
		return nil
	}

	reversion := reversionScore(snap)
	structure := supportScore(snap)
	momentum := momentumScore(snap)
	score := reversion.score*0.5 + structure.score*0.3 + momentum.score*0.2

	var all tally
	all.merge(reversion)
	all.merge(structure)
	all.merge(momentum)
	return finish(NameMeanRev, p.Common, snap, timeframe, score, all.reasons, p.StopATR, p.TargetATR)
}
