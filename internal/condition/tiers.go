// Package condition generates internally-consistent used-item records: age,
// wear, damage, operating hours, price, and the hidden quality scalar that
// drives seller behavior downstream.
package condition

import "github.com/halvard/usedmarket/internal/market"

// qualityBand holds the damage/wear draw ranges and price multiplier for one
// requested quality tier.
type qualityBand struct {
	damageMin, damageMax float64
	wearMin, wearMax     float64
	priceMult            float64
}

var qualityBands = map[market.QualityTier]qualityBand{
	market.QualityAny:       {0.05, 0.80, 0.05, 0.85, 0.55},
	market.QualityFair:      {0.30, 0.60, 0.35, 0.70, 0.62},
	market.QualityGood:      {0.15, 0.40, 0.20, 0.45, 0.72},
	market.QualityVeryGood:  {0.08, 0.22, 0.10, 0.28, 0.82},
	market.QualityExcellent: {0.02, 0.10, 0.03, 0.12, 0.92},
}

// agentBand holds the per-agent-tier condition scaling and generation-class
// weights. Local listings run rougher; National agents source newer stock.
type agentBand struct {
	conditionScale float64    // Multiplies damage and wear
	genWeights     [3]float64 // Recent, Mid-age, Old
}

var agentBands = map[market.AgentTier]agentBand{
	market.TierLocal:    {1.30, [3]float64{0.15, 0.35, 0.50}},
	market.TierRegional: {1.00, [3]float64{0.30, 0.40, 0.30}},
	market.TierNational: {0.70, [3]float64{0.55, 0.30, 0.15}},
}

// generationAges maps a generation class to its age range in years.
var generationAges = [3][2]float64{
	market.GenRecent: {0, 4},
	market.GenMidAge: {4, 12},
	market.GenOld:    {12, 25},
}

// Condition bounds after tier scaling.
const (
	conditionFloor = 0.01
	conditionCeil  = 0.95
)

// Price shaping constants.
const (
	ageDepreciationPerYear = 0.03
	ageDepreciationCap     = 0.25
	priceFloorFraction     = 0.05
)
