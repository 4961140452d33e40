package condition

import (
	"log/slog"

	"github.com/halvard/usedmarket/internal/catalog"
	"github.com/halvard/usedmarket/internal/entropy"
	"github.com/halvard/usedmarket/internal/market"
)

// Generator produces synthetic used-item records. Deterministic given a
// seeded entropy source.
type Generator struct {
	catalog *catalog.Catalog
	rng     entropy.Source
	trend   *Trend // Optional period price trend; nil means flat market
}

// NewGenerator creates a generator over a catalog.
func NewGenerator(cat *catalog.Catalog, rng entropy.Source, trend *Trend) *Generator {
	return &Generator{catalog: cat, rng: rng, trend: trend}
}

// Params selects what kind of record to generate.
type Params struct {
	CategoryID      string
	Quality         market.QualityTier
	Agent           market.AgentTier
	ForceGeneration *market.Generation // Overrides the weighted draw when set
	Period          uint64             // Current market period, feeds the trend curve
}

// Generate produces one listing record in status found. Out-of-range tier
// indices fall back to tier 2 rather than erroring — a malformed tier must
// never hard-fail a search.
func (g *Generator) Generate(p Params) (*market.ListingRecord, error) {
	cat, ok := g.catalog.Get(p.CategoryID)
	if !ok {
		return nil, market.Validationf("unknown category %q", p.CategoryID)
	}

	quality := p.Quality
	if !quality.Valid() {
		slog.Warn("quality tier out of range, falling back", "requested", quality, "fallback", market.QualityFair)
		quality = market.QualityFair
	}
	agent := p.Agent
	if !agent.Valid() {
		slog.Warn("agent tier out of range, falling back", "requested", agent, "fallback", market.TierRegional)
		agent = market.TierRegional
	}

	qb := qualityBands[quality]
	ab := agentBands[agent]

	gen := g.drawGeneration(ab, p.ForceGeneration)
	ages := generationAges[gen]
	age := entropy.Range(g.rng, ages[0], ages[1])

	damage := clampCondition(entropy.Range(g.rng, qb.damageMin, qb.damageMax) * ab.conditionScale)
	wear := clampCondition(entropy.Range(g.rng, qb.wearMin, qb.wearMax) * ab.conditionScale)

	// Operating hours track age with per-machine usage variance, capped at
	// the category's service life.
	opHours := age * cat.AnnualHours * entropy.Range(g.rng, 0.7, 1.3)
	if opHours > cat.LifetimeHours {
		opHours = cat.LifetimeHours
	}

	price := g.price(cat.BasePrice, qb.priceMult, age, p.Period)

	// Hidden quality: biased toward the inverse of damage, with variance.
	dna := 1 - damage + entropy.Range(g.rng, -0.15, 0.15)
	if dna < 0 {
		dna = 0
	}
	if dna > 1 {
		dna = 1
	}

	l := &market.ListingRecord{
		ID:             market.NewListingID(),
		CategoryID:     cat.ID,
		Status:         market.StatusFound,
		Generation:     gen,
		AgeYears:       age,
		Damage:         damage,
		Wear:           wear,
		OperatingHours: opHours,
		BasePrice:      cat.BasePrice,
		AskingPrice:    price,
		DNA:            dna,
		Negotiation:    market.NewNegotiationRecord(dna),
	}
	return l, nil
}

// drawGeneration picks a generation class by the agent tier's weights.
func (g *Generator) drawGeneration(ab agentBand, forced *market.Generation) market.Generation {
	if forced != nil {
		return *forced
	}
	roll := g.rng.Float()
	acc := 0.0
	for i, w := range ab.genWeights {
		acc += w
		if roll < acc {
			return market.Generation(i)
		}
	}
	return market.GenOld
}

// price applies the quality multiplier, age depreciation, the period market
// trend, then the hard floor at 5% of base price.
func (g *Generator) price(base, qualityMult, age float64, period uint64) float64 {
	dep := age * ageDepreciationPerYear
	if dep > ageDepreciationCap {
		dep = ageDepreciationCap
	}
	price := base * qualityMult * (1 - dep)
	if g.trend != nil {
		price *= g.trend.Multiplier(period)
	}
	if floor := base * priceFloorFraction; price < floor {
		price = floor
	}
	return price
}

func clampCondition(v float64) float64 {
	if v < conditionFloor {
		return conditionFloor
	}
	if v > conditionCeil {
		return conditionCeil
	}
	return v
}
