package market

// Field enumerates the condition fields whose visibility is inspection-gated.
type Field uint8

const (
	FieldRating Field = iota // Overall condition rating (derived)
	FieldAge
	FieldOperatingHours
	FieldDamage
	FieldWear
	FieldDNAHint // Coarse hidden-quality band, comprehensive inspections only
	NumFields
)

// FieldName returns a stable name for a field, used in save records.
func FieldName(f Field) string {
	switch f {
	case FieldRating:
		return "rating"
	case FieldAge:
		return "age"
	case FieldOperatingHours:
		return "operating_hours"
	case FieldDamage:
		return "damage"
	case FieldWear:
		return "wear"
	case FieldDNAHint:
		return "dna_hint"
	default:
		return "unknown"
	}
}

// RevealedSet tracks which condition fields an owner may see.
// Fixed-size array, zero heap allocation, bitmask-serializable.
type RevealedSet [NumFields]bool

// Reveal marks a field visible.
func (r *RevealedSet) Reveal(f Field) {
	if f < NumFields {
		r[f] = true
	}
}

// Has reports whether a field is visible.
func (r RevealedSet) Has(f Field) bool {
	return f < NumFields && r[f]
}

// Mask packs the set into a bitmask for persistence.
func (r RevealedSet) Mask() uint32 {
	var m uint32
	for i := Field(0); i < NumFields; i++ {
		if r[i] {
			m |= 1 << i
		}
	}
	return m
}

// RevealedFromMask unpacks a persisted bitmask. Unknown high bits are ignored
// so saves written by newer schemas still load.
func RevealedFromMask(m uint32) RevealedSet {
	var r RevealedSet
	for i := Field(0); i < NumFields; i++ {
		if m&(1<<i) != 0 {
			r[i] = true
		}
	}
	return r
}

// ListingView is the externally-visible projection of a listing: always-public
// fields plus whichever condition fields have been revealed.
type ListingView struct {
	ID          ListingID `json:"id"`
	CategoryID  string    `json:"category_id"`
	Status      string    `json:"status"`
	AskingPrice float64   `json:"asking_price"`
	TTLHours    int       `json:"ttl_hours"`
	OnHold      bool      `json:"on_hold"`

	Rating         *float64 `json:"rating,omitempty"`
	AgeYears       *float64 `json:"age_years,omitempty"`
	OperatingHours *float64 `json:"operating_hours,omitempty"`
	Damage         *float64 `json:"damage,omitempty"`
	Wear           *float64 `json:"wear,omitempty"`
	DNAHint        *string  `json:"quality_hint,omitempty"`
}

// View projects a listing through its revealed-field set.
func (l *ListingRecord) View() ListingView {
	v := ListingView{
		ID:          l.ID,
		CategoryID:  l.CategoryID,
		Status:      StatusName(l.Status),
		AskingPrice: l.AskingPrice,
		TTLHours:    l.TTLHours,
		OnHold:      l.OnHold,
	}
	if l.Revealed.Has(FieldRating) {
		r := l.Rating()
		v.Rating = &r
	}
	if l.Revealed.Has(FieldAge) {
		age := l.AgeYears
		v.AgeYears = &age
	}
	if l.Revealed.Has(FieldOperatingHours) {
		oh := l.OperatingHours
		v.OperatingHours = &oh
	}
	if l.Revealed.Has(FieldDamage) {
		d := l.Damage
		v.Damage = &d
	}
	if l.Revealed.Has(FieldWear) {
		w := l.Wear
		v.Wear = &w
	}
	if l.Revealed.Has(FieldDNAHint) {
		h := l.DNAHintBand()
		v.DNAHint = &h
	}
	return v
}

// Rating derives an overall 0–1 condition rating from visible wear and damage.
func (l *ListingRecord) Rating() float64 {
	rating := 1.0 - (l.Damage*0.6 + l.Wear*0.4)
	if rating < 0 {
		rating = 0
	}
	return rating
}

// DNAHintBand returns a coarse description of the hidden quality scalar.
// Comprehensive inspections reveal the band, never the raw value.
func (l *ListingRecord) DNAHintBand() string {
	switch {
	case l.DNA >= 0.75:
		return "excellent long-term prospects"
	case l.DNA >= 0.50:
		return "solid long-term prospects"
	case l.DNA >= 0.25:
		return "uncertain long-term prospects"
	default:
		return "poor long-term prospects"
	}
}
