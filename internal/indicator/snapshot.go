package indicator

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/amirphl/signal-trader/internal/candle"
)

// ErrInsufficientData is returned when the history is too short to produce a
// snapshot.
var ErrInsufficientData = errors.New("insufficient data for indicator snapshot")

// Config holds indicator periods. Moving-average periods are fixed by the
// Snapshot field names.
type Config struct {
	RSIPeriod      int     `yaml:"rsi_period"`
	MACDFast       int     `yaml:"macd_fast"`
	MACDSlow       int     `yaml:"macd_slow"`
	MACDSignal     int     `yaml:"macd_signal"`
	ADXPeriod      int     `yaml:"adx_period"`
	ATRPeriod      int     `yaml:"atr_period"`
	BBPeriod       int     `yaml:"bb_period"`
	BBStdDev       float64 `yaml:"bb_std"`
	StochK         int     `yaml:"stoch_k"`
	StochSmooth    int     `yaml:"stoch_smooth"`
	StochD         int     `yaml:"stoch_d"`
	CCIPeriod      int     `yaml:"cci_period"`
	WilliamsPeriod int     `yaml:"williams_period"`
	KeltnerPeriod  int     `yaml:"keltner_period"`
	VolumePeriod   int     `yaml:"volume_period"`
	VWAPPeriod     int     `yaml:"vwap_period"`
	RangeWindow    int     `yaml:"range_window"`
	FibWindow      int     `yaml:"fib_window"`
	MinBars        int     `yaml:"min_bars"`
}

func DefaultConfig() Config {
	return Config{
		RSIPeriod:      14,
		MACDFast:       12,
		MACDSlow:       26,
		MACDSignal:     9,
		ADXPeriod:      14,
		ATRPeriod:      14,
		BBPeriod:       20,
		BBStdDev:       2,
		StochK:         14,
		StochSmooth:    1,
		StochD:         3,
		CCIPeriod:      20,
		WilliamsPeriod: 14,
		KeltnerPeriod:  20,
		VolumePeriod:   20,
		VWAPPeriod:     14,
		RangeWindow:    20,
		FibWindow:      50,
		MinBars:        50,
	}
}

func (c Config) Validate() error {
	periods := map[string]int{
		"rsi_period": c.RSIPeriod, "macd_fast": c.MACDFast, "macd_slow": c.MACDSlow,
		"macd_signal": c.MACDSignal, "adx_period": c.ADXPeriod, "atr_period": c.ATRPeriod,
		"bb_period": c.BBPeriod, "stoch_k": c.StochK, "stoch_smooth": c.StochSmooth,
		"stoch_d": c.StochD, "cci_period": c.CCIPeriod, "williams_period": c.WilliamsPeriod,
		"keltner_period": c.KeltnerPeriod, "volume_period": c.VolumePeriod,
		"vwap_period": c.VWAPPeriod, "range_window": c.RangeWindow, "fib_window": c.FibWindow,
	}
	for name, p := range periods {
		if p <= 0 {
			return fmt.Errorf("indicator %s must be positive, got %d", name, p)
		}
	}
	if c.MACDFast >= c.MACDSlow {
		return fmt.Errorf("indicator macd_fast (%d) must be below macd_slow (%d)", c.MACDFast, c.MACDSlow)
	}
	if c.BBStdDev <= 0 {
		return fmt.Errorf("indicator bb_std must be positive, got %v", c.BBStdDev)
	}
	if c.MinBars < 2 {
		return fmt.Errorf("indicator min_bars must be at least 2, got %d", c.MinBars)
	}
	return nil
}

// Snapshot is the indicator state at one bar, computed from that bar and the
// bars before it. A NaN field means the value is not available yet; call
// WithDefaults before reading it.
type Snapshot struct {
	Time   time.Time `json:"time"`
	Ready  bool      `json:"ready"`
	Price  float64   `json:"price"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Volume float64   `json:"volume"`

	MA20  float64 `json:"ma_20"`
	MA50  float64 `json:"ma_50"`
	MA200 float64 `json:"ma_200"`
	EMA9  float64 `json:"ema_9"`
	EMA21 float64 `json:"ema_21"`
	EMA50 float64 `json:"ema_50"`

	MACD         float64 `json:"macd"`
	MACDSignal   float64 `json:"macd_signal"`
	MACDHist     float64 `json:"macd_hist"`
	MACDHistPrev float64 `json:"macd_hist_prev"`

	ADX     float64 `json:"adx"`
	DIPlus  float64 `json:"di_plus"`
	DIMinus float64 `json:"di_minus"`

	RSI       float64 `json:"rsi"`
	RSIPrev   float64 `json:"rsi_prev"`
	StochK    float64 `json:"stoch_k"`
	StochD    float64 `json:"stoch_d"`
	CCI       float64 `json:"cci"`
	WilliamsR float64 `json:"williams_r"`

	BBUpper    float64 `json:"bb_upper"`
	BBMiddle   float64 `json:"bb_middle"`
	BBLower    float64 `json:"bb_lower"`
	BBWidth    float64 `json:"bb_width"`
	BBPercentB float64 `json:"bb_pband"`

	ATR      float64 `json:"atr"`
	KCUpper  float64 `json:"kc_upper"`
	KCMiddle float64 `json:"kc_middle"`
	KCLower  float64 `json:"kc_lower"`

	OBV         float64 `json:"obv"`
	OBVChange   float64 `json:"obv_change"`
	VolumeMA    float64 `json:"volume_ma"`
	VolumeRatio float64 `json:"volume_ratio"`
	VWAP        float64 `json:"vwap"`

	Pivot float64 `json:"pivot"`
	R1    float64 `json:"r1"`
	R2    float64 `json:"r2"`
	R3    float64 `json:"r3"`
	S1    float64 `json:"s1"`
	S2    float64 `json:"s2"`
	S3    float64 `json:"s3"`

	Fib236 float64 `json:"fib_236"`
	Fib382 float64 `json:"fib_382"`
	Fib500 float64 `json:"fib_500"`
	Fib618 float64 `json:"fib_618"`
	Fib786 float64 `json:"fib_786"`
	High20 float64 `json:"high_20"`
	Low20  float64 `json:"low_20"`
}

// Blank returns a snapshot at price with every other value missing.
func Blank(t time.Time, price float64) Snapshot {
	s := Snapshot{Time: t, Ready: true}
	v := reflect.ValueOf(&s).Elem()
	for i := range v.NumField() {
		if f := v.Field(i); f.Kind() == reflect.Float64 {
			f.SetFloat(math.NaN())
		}
	}
	s.Price = price
	return s
}

// WithDefaults returns a copy with every missing (NaN) field replaced by its
// neutral value:
//
//	open/high/low, averages, VWAP, channel middles, High20/Low20 -> price
//	Bollinger and Keltner upper/lower -> price +/- 2%, BBWidth -> 0.04
//	RSI, stochastic -> 50; Williams %R -> -50; BBPercentB -> 0.5
//	ADX -> 20; DI, MACD, CCI, OBV terms -> 0
//	ATR -> 1% of price; VolumeRatio -> 1; VolumeMA -> volume
//	pivot, support/resistance and Fibonacci levels -> 0 (level unavailable)
//
// Price itself has no default.
func (s Snapshot) WithDefaults() Snapshot {
	p := s.Price
	fill := func(v *float64, def float64) {
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			*v = def
		}
	}
	fill(&s.Volume, 0)
	for _, v := range []*float64{&s.Open, &s.High, &s.Low, &s.MA20, &s.MA50, &s.MA200,
		&s.EMA9, &s.EMA21, &s.EMA50, &s.BBMiddle, &s.KCMiddle, &s.VWAP, &s.High20, &s.Low20} {
		fill(v, p)
	}
	fill(&s.BBUpper, p*1.02)
	fill(&s.BBLower, p*0.98)
	fill(&s.KCUpper, p*1.02)
	fill(&s.KCLower, p*0.98)
	fill(&s.BBWidth, 0.04)
	fill(&s.BBPercentB, 0.5)
	for _, v := range []*float64{&s.RSI, &s.RSIPrev, &s.StochK, &s.StochD} {
		fill(v, 50)
	}
	fill(&s.WilliamsR, -50)
	fill(&s.ADX, 20)
	for _, v := range []*float64{&s.DIPlus, &s.DIMinus, &s.MACD, &s.MACDSignal, &s.MACDHist,
		&s.MACDHistPrev, &s.CCI, &s.OBV, &s.OBVChange} {
		fill(v, 0)
	}
	fill(&s.ATR, p*0.01)
	fill(&s.VolumeMA, s.Volume)
	fill(&s.VolumeRatio, 1)
	for _, v := range []*float64{&s.Pivot, &s.R1, &s.R2, &s.R3, &s.S1, &s.S2, &s.S3,
		&s.Fib236, &s.Fib382, &s.Fib500, &s.Fib618, &s.Fib786} {
		fill(v, 0)
	}
	return s
}

// ATRPercent returns ATR as a percentage of price.
func (s Snapshot) ATRPercent() float64 {
	if s.Price <= 0 {
		return 0
	}
	return s.ATR / s.Price * 100
}

// Producer computes snapshots over a bar history.
type Producer struct {
	cfg Config
}

func NewProducer(cfg Config) (*Producer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Producer{cfg: cfg}, nil
}

// MinBars is the history length needed for a ready snapshot.
func (p *Producer) MinBars() int {
	return p.cfg.MinBars
}

// Latest returns the snapshot of the last candle.
func (p *Producer) Latest(candles []candle.Candle) (Snapshot, error) {
	if len(candles) < p.cfg.MinBars {
		return Snapshot{}, fmt.Errorf("%w: have %d bars, need %d", ErrInsufficientData, len(candles), p.cfg.MinBars)
	}
	snaps := p.Compute(candles)
	return snaps[len(snaps)-1], nil
}

// Compute returns one snapshot per candle in a single causal pass. Snapshots
// before MinBars are returned with Ready unset.
func (p *Producer) Compute(candles []candle.Candle) []Snapshot {
	n := len(candles)
	if n == 0 {
		return nil
	}
	cfg := p.cfg
	_, _, closes := hlc(candles)
	volumes := make([]float64, n)
	for i, c := range candles {
		volumes[i] = c.Volume
	}

	ma20, ma50, ma200 := SMA(closes, 20), SMA(closes, 50), SMA(closes, 200)
	ema9, ema21, ema50 := EMA(closes, 9), EMA(closes, 21), EMA(closes, 50)
	macd := MACD(closes, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal)
	dir := ADX(candles, cfg.ADXPeriod)
	rsi := RSI(closes, cfg.RSIPeriod)
	cci := CCI(candles, cfg.CCIPeriod)
	wr := WilliamsR(candles, cfg.WilliamsPeriod)
	bb := Bollinger(closes, cfg.BBPeriod, cfg.BBStdDev)
	atr := ATR(candles, cfg.ATRPeriod)
	kc := Keltner(candles, cfg.KeltnerPeriod)
	obv := OBV(candles)
	volRatio, volMA := VolumeRatio(volumes, cfg.VolumePeriod)
	vwap := VWAP(candles, cfg.VWAPPeriod)
	highs, lows, _ := hlc(candles)
	high20 := RollingMax(highs, cfg.RangeWindow)
	low20 := RollingMin(lows, cfg.RangeWindow)

	stochK, stochD := nanSlice(n), nanSlice(n)
	if st, err := CalculateStochastic(candles, cfg.StochK, cfg.StochSmooth, cfg.StochD); err == nil {
		stochK, stochD = st.K, st.D
	}

	prev := func(series []float64, i int) float64 {
		if i == 0 {
			return math.NaN()
		}
		return series[i-1]
	}

	out := make([]Snapshot, n)
	for i, c := range candles {
		piv := ClassicPivots(c)
		fib := FibonacciLevels(candles, i, cfg.FibWindow)
		obvChange := 0.0
		if i > 0 {
			obvChange = obv[i] - obv[i-1]
		}
		out[i] = Snapshot{
			Time:   c.Timestamp,
			Ready:  i+1 >= cfg.MinBars,
			Price:  c.Close,
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Volume: c.Volume,

			MA20: ma20[i], MA50: ma50[i], MA200: ma200[i],
			EMA9: ema9[i], EMA21: ema21[i], EMA50: ema50[i],

			MACD: macd.MACD[i], MACDSignal: macd.Signal[i],
			MACDHist: macd.Histogram[i], MACDHistPrev: prev(macd.Histogram, i),

			ADX: dir.ADX[i], DIPlus: dir.DIPlus[i], DIMinus: dir.DIMinus[i],

			RSI: rsi[i], RSIPrev: prev(rsi, i),
			StochK: stochK[i], StochD: stochD[i],
			CCI: cci[i], WilliamsR: wr[i],

			BBUpper: bb.Upper[i], BBMiddle: bb.Middle[i], BBLower: bb.Lower[i],
			BBWidth: bb.Width[i], BBPercentB: bb.PercentB[i],

			ATR:     atr[i],
			KCUpper: kc.Upper[i], KCMiddle: kc.Middle[i], KCLower: kc.Lower[i],

			OBV: obv[i], OBVChange: obvChange,
			VolumeMA: volMA[i], VolumeRatio: volRatio[i],
			VWAP: vwap[i],

			Pivot: piv.Pivot, R1: piv.R1, R2: piv.R2, R3: piv.R3,
			S1: piv.S1, S2: piv.S2, S3: piv.S3,

			Fib236: fib.L236, Fib382: fib.L382, Fib500: fib.L500,
			Fib618: fib.L618, Fib786: fib.L786,
			High20: high20[i], Low20: low20[i],
		}
	}
	return out
}
