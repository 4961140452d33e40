// Package market provides the core marketplace data model: listing records,
// negotiation state, tier enums, and the shared error taxonomy.
package market

import (
	"github.com/google/uuid"
)

// ListingID uniquely identifies a listing record.
type ListingID string

// NewListingID returns a fresh random listing identifier.
func NewListingID() ListingID {
	return ListingID(uuid.NewString())
}

// Status is the lifecycle state of a listing.
type Status uint8

const (
	StatusSearching Status = iota
	StatusFound
	StatusNegotiating
	StatusSold
	StatusExpired
	StatusWithdrawn
)

// StatusName returns a human-readable status name.
func StatusName(s Status) string {
	switch s {
	case StatusSearching:
		return "searching"
	case StatusFound:
		return "found"
	case StatusNegotiating:
		return "negotiating"
	case StatusSold:
		return "sold"
	case StatusExpired:
		return "expired"
	case StatusWithdrawn:
		return "withdrawn"
	default:
		return "unknown"
	}
}

// Terminal reports whether a listing in this status can never change again.
func (s Status) Terminal() bool {
	return s == StatusSold || s == StatusExpired || s == StatusWithdrawn
}

// AgentTier is the search/sale speed-cost-success tradeoff tier.
type AgentTier uint8

const (
	TierLocal    AgentTier = 1
	TierRegional AgentTier = 2
	TierNational AgentTier = 3
)

// Valid reports whether the tier index is in range.
func (t AgentTier) Valid() bool {
	return t >= TierLocal && t <= TierNational
}

// Name returns a human-readable tier name.
func (t AgentTier) Name() string {
	switch t {
	case TierLocal:
		return "Local"
	case TierRegional:
		return "Regional"
	case TierNational:
		return "National"
	default:
		return "Unknown"
	}
}

// QualityTier is the requested condition band for a search, 1 (Any) to 5 (Excellent).
type QualityTier uint8

const (
	QualityAny       QualityTier = 1
	QualityFair      QualityTier = 2
	QualityGood      QualityTier = 3
	QualityVeryGood  QualityTier = 4
	QualityExcellent QualityTier = 5
)

// Valid reports whether the tier index is in range.
func (q QualityTier) Valid() bool {
	return q >= QualityAny && q <= QualityExcellent
}

// Name returns a human-readable quality tier name.
func (q QualityTier) Name() string {
	switch q {
	case QualityAny:
		return "Any"
	case QualityFair:
		return "Fair"
	case QualityGood:
		return "Good"
	case QualityVeryGood:
		return "Very Good"
	case QualityExcellent:
		return "Excellent"
	default:
		return "Unknown"
	}
}

// Generation is the production-era class of a used item.
type Generation uint8

const (
	GenRecent Generation = iota
	GenMidAge
	GenOld
)

// GenerationName returns a human-readable generation class name.
func GenerationName(g Generation) string {
	switch g {
	case GenRecent:
		return "Recent"
	case GenMidAge:
		return "Mid-age"
	case GenOld:
		return "Old"
	default:
		return "Unknown"
	}
}

// ListingRecord is one unit of used goods, owned by exactly one requester at a time.
// The condition fields below Revealed are hidden until an inspection reveals them;
// external consumers go through View, engine internals use the fields directly.
type ListingRecord struct {
	ID         ListingID `json:"id"`
	CategoryID string    `json:"category_id"`
	OwnerID    string    `json:"owner_id"`
	Status     Status    `json:"status"`

	CreatedHour uint64 `json:"created_hour"` // Sim-hours
	TTLHours    int    `json:"ttl_hours"`    // Remaining offer window
	OnHold      bool   `json:"on_hold"`      // Suspends TTL decrement (inspection)
	Viewed      bool   `json:"viewed"`       // TTL accrues only after first view

	// Condition — generated once, visibility gated by Revealed.
	DNA            float64    `json:"-"` // Hidden quality scalar in [0,1]
	Generation     Generation `json:"generation"`
	AgeYears       float64    `json:"age_years"`
	Damage         float64    `json:"damage"` // 0.01–0.95
	Wear           float64    `json:"wear"`   // 0.01–0.95
	OperatingHours float64    `json:"operating_hours"`

	BasePrice   float64 `json:"base_price"`
	AskingPrice float64 `json:"asking_price"`
	Commission  float64 `json:"commission"`

	Revealed    RevealedSet        `json:"revealed"`
	Negotiation *NegotiationRecord `json:"negotiation,omitempty"`
}

// TickTTL decrements the listing's offer window by one hour unless held or
// not yet viewed. Returns true when the window has just run out.
func (l *ListingRecord) TickTTL() bool {
	if l.OnHold || !l.Viewed || l.Status.Terminal() {
		return false
	}
	if l.TTLHours > 0 {
		l.TTLHours--
	}
	return l.TTLHours == 0
}
