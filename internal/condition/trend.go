package condition

import opensimplex "github.com/ojrac/opensimplex-go"

// Trend is the slow-moving monthly price curve for the used-equipment market.
// Sampled from smooth gradient noise so consecutive periods drift rather than
// jump, and the same seed replays the same market history.
type Trend struct {
	noise opensimplex.Noise
}

// Trend shape: ±10% around par, one noise step per period.
const (
	trendAmplitude = 0.10
	trendFrequency = 0.35
)

// NewTrend creates a trend curve from a seed.
func NewTrend(seed int64) *Trend {
	return &Trend{noise: opensimplex.New(seed)}
}

// Multiplier returns the price multiplier for a period, in [0.9, 1.1].
func (t *Trend) Multiplier(period uint64) float64 {
	v := t.noise.Eval2(float64(period)*trendFrequency, 0.5) // [-1, 1]
	return 1 + v*trendAmplitude
}
