package market

// Personality is a seller's negotiating disposition, derived once from the
// hidden quality scalar at listing creation and never re-rolled.
type Personality uint8

const (
	PersonalityDesperate Personality = iota
	PersonalityMotivated
	PersonalityReasonable
	PersonalityFirm
	PersonalityImmovable
)

// PersonalityName returns a human-readable personality name.
func PersonalityName(p Personality) string {
	switch p {
	case PersonalityDesperate:
		return "desperate"
	case PersonalityMotivated:
		return "motivated"
	case PersonalityReasonable:
		return "reasonable"
	case PersonalityFirm:
		return "firm"
	case PersonalityImmovable:
		return "immovable"
	default:
		return "unknown"
	}
}

// PersonalityFor classifies a hidden quality scalar into a personality band.
// Pure function: the same scalar always yields the same band. Sellers of
// genuinely good machines know what they have.
func PersonalityFor(dna float64) Personality {
	switch {
	case dna < 0.20:
		return PersonalityDesperate
	case dna < 0.40:
		return PersonalityMotivated
	case dna < 0.60:
		return PersonalityReasonable
	case dna < 0.80:
		return PersonalityFirm
	default:
		return PersonalityImmovable
	}
}

// Tolerance returns the personality's adjustment to the acceptance threshold.
// Positive values lower the bar (eager sellers), negative raise it.
func (p Personality) Tolerance() float64 {
	switch p {
	case PersonalityDesperate:
		return 0.15
	case PersonalityMotivated:
		return 0.08
	case PersonalityReasonable:
		return 0.02
	case PersonalityFirm:
		return -0.05
	case PersonalityImmovable:
		return -0.08
	default:
		return 0
	}
}

// WalkAwayChance returns the probability the seller permanently withdraws the
// listing after an insulting offer (gap of 20% or more below threshold).
func (p Personality) WalkAwayChance() float64 {
	switch p {
	case PersonalityDesperate:
		return 0.05
	case PersonalityMotivated:
		return 0.15
	case PersonalityReasonable:
		return 0.35
	case PersonalityFirm:
		return 0.60
	case PersonalityImmovable:
		return 0.90
	default:
		return 0.35
	}
}

// BaseAcceptThreshold is the fraction of asking price a neutral seller accepts
// before personality tolerance and weather adjustments.
const BaseAcceptThreshold = 0.92

// NegotiationRecord is the transient bargaining state attached to a listing
// while offers are being exchanged.
type NegotiationRecord struct {
	Personality     Personality `json:"personality"`
	AcceptThreshold float64     `json:"accept_threshold"` // Fraction of asking price
	Tolerance       float64     `json:"tolerance"`
	LastOffer       float64     `json:"last_offer"`
	Round           int         `json:"round"`
	WeatherMod      float64     `json:"weather_mod"` // Snapshot at last offer
}

// NewNegotiationRecord derives bargaining state from a hidden quality scalar.
func NewNegotiationRecord(dna float64) *NegotiationRecord {
	p := PersonalityFor(dna)
	return &NegotiationRecord{
		Personality:     p,
		AcceptThreshold: BaseAcceptThreshold,
		Tolerance:       p.Tolerance(),
	}
}

// EffectiveThreshold is the offer fraction at which the seller accepts,
// after personality tolerance and the current weather modifier.
func (n *NegotiationRecord) EffectiveThreshold(weatherMod float64) float64 {
	return n.AcceptThreshold - n.Tolerance - weatherMod
}

// Offer is one entry in a sale request's offer history.
type Offer struct {
	Amount   float64 `json:"amount"`
	Hour     uint64  `json:"hour"`
	Accepted bool    `json:"accepted"`
}
