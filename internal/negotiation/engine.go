// Package negotiation decides how a procedural seller answers a price offer.
// The engine is stateless between calls: it acts on a negotiation record
// passed in and returns the outcome as a value; listing status transitions
// belong to the owning queue.
package negotiation

import (
	"github.com/halvard/usedmarket/internal/entropy"
	"github.com/halvard/usedmarket/internal/market"
	"github.com/halvard/usedmarket/internal/weather"
)

// OutcomeKind is the seller's response to one submitted offer.
type OutcomeKind uint8

const (
	OutcomeAccepted OutcomeKind = iota
	OutcomeCountered
	OutcomeRejected
	OutcomeWalkedAway
)

// Name returns a human-readable outcome name.
func (k OutcomeKind) Name() string {
	switch k {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeCountered:
		return "countered"
	case OutcomeRejected:
		return "rejected"
	case OutcomeWalkedAway:
		return "walked away"
	default:
		return "unknown"
	}
}

// Outcome is the result of evaluating one offer.
type Outcome struct {
	Kind         OutcomeKind `json:"kind"`
	CounterPrice float64     `json:"counter_price,omitempty"` // Set when countered
	Gap          float64     `json:"gap"`                     // threshold − offer/asking
	Round        int         `json:"round"`
}

// Band boundaries for the graduated-risk response, as gap fractions below the
// seller's effective threshold.
const (
	bandCounter   = 0.05
	bandRiskLow   = 0.10
	bandCoinflip  = 0.15
	bandInsulting = 0.20

	riskBandMaxChance = 0.30 // Peak reject (or counter) chance inside the sloped bands

	// Immovable sellers hold out for near-asking money even when the offer
	// clears their threshold.
	immovableAskingFloor = 0.98

	// A counter concedes this share of the distance to the buyer's offer.
	counterConcession = 0.40
)

// Engine evaluates offers against seller personality and conditions.
type Engine struct {
	rng entropy.Source
}

// NewEngine creates a negotiation engine drawing from the given source.
func NewEngine(rng entropy.Source) *Engine {
	return &Engine{rng: rng}
}

// Evaluate runs one offer through the seller's response machine. It mutates
// only the passed-in negotiation record (round counter, last offer, weather
// snapshot); the caller applies the returned outcome to the listing.
func (e *Engine) Evaluate(rec *market.NegotiationRecord, asking, offer float64, cond weather.Condition) (Outcome, error) {
	if rec == nil {
		return Outcome{}, market.Validationf("listing has no negotiation state")
	}
	if offer <= 0 {
		return Outcome{}, market.Validationf("offer must be positive, got %.2f", offer)
	}
	if asking <= 0 {
		return Outcome{}, market.Validationf("asking price must be positive, got %.2f", asking)
	}

	weatherMod := cond.NegotiationModifier()
	rec.WeatherMod = weatherMod
	rec.Round++
	rec.LastOffer = offer

	threshold := rec.EffectiveThreshold(weatherMod)
	offerFraction := offer / asking
	gap := threshold - offerFraction

	out := Outcome{Gap: gap, Round: rec.Round}

	switch {
	case gap <= 0:
		// Offer clears the threshold. Immovable sellers still hold out for
		// near-asking money.
		if rec.Personality == market.PersonalityImmovable && offer < asking*immovableAskingFloor {
			out.Kind = OutcomeCountered
			out.CounterPrice = counterPrice(asking, offer, threshold)
		} else {
			out.Kind = OutcomeAccepted
		}

	case gap <= bandCounter:
		out.Kind = OutcomeCountered
		out.CounterPrice = counterPrice(asking, offer, threshold)

	case gap <= bandRiskLow:
		// Counter-biased: reject chance climbs linearly to 30% across the band.
		rejectChance := (gap - bandCounter) / (bandRiskLow - bandCounter) * riskBandMaxChance
		if e.rng.Float() < rejectChance {
			out.Kind = OutcomeRejected
		} else {
			out.Kind = OutcomeCountered
			out.CounterPrice = counterPrice(asking, offer, threshold)
		}

	case gap <= bandCoinflip:
		if e.rng.Float() < 0.5 {
			out.Kind = OutcomeRejected
		} else {
			out.Kind = OutcomeCountered
			out.CounterPrice = counterPrice(asking, offer, threshold)
		}

	case gap < bandInsulting:
		// Reject-biased: counter chance falls linearly from 30% to 0 at the
		// band's upper edge. Immovable sellers never counter on a reject.
		if rec.Personality != market.PersonalityImmovable {
			counterChance := (bandInsulting - gap) / (bandInsulting - bandCoinflip) * riskBandMaxChance
			if e.rng.Float() < counterChance {
				out.Kind = OutcomeCountered
				out.CounterPrice = counterPrice(asking, offer, threshold)
				break
			}
		}
		out.Kind = OutcomeRejected

	default:
		// Insulting offer (gap of 20% or more, boundary inclusive). Always
		// rejected, and the seller may withdraw the listing for good.
		out.Kind = OutcomeRejected
		if e.rng.Float() < rec.Personality.WalkAwayChance() {
			out.Kind = OutcomeWalkedAway
		}
	}

	return out, nil
}

// counterPrice proposes a new asking price partway between the current asking
// and the buyer's offer, never below the seller's acceptance threshold.
func counterPrice(asking, offer, threshold float64) float64 {
	p := asking - (asking-offer)*counterConcession
	if floor := asking * threshold; p < floor {
		p = floor
	}
	return p
}
