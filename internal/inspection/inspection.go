// Package inspection provides the tiered, time-delayed reveal of a listing's
// hidden condition. An active inspection places a hold that suspends the
// listing's offer window until the report comes back.
package inspection

import (
	"fmt"
	"log/slog"

	"github.com/halvard/usedmarket/internal/host"
	"github.com/halvard/usedmarket/internal/market"
)

// Tier selects inspection depth, cost, and turnaround.
type Tier uint8

const (
	TierQuick Tier = iota
	TierStandard
	TierComprehensive
)

// Name returns a human-readable tier name.
func (t Tier) Name() string {
	switch t {
	case TierQuick:
		return "Quick"
	case TierStandard:
		return "Standard"
	case TierComprehensive:
		return "Comprehensive"
	default:
		return "Unknown"
	}
}

// Valid reports whether the tier index is in range.
func (t Tier) Valid() bool {
	return t <= TierComprehensive
}

// tierSpec holds one tier's fee structure, turnaround, and reveal depth.
type tierSpec struct {
	flatFee       float64
	pctFee        float64 // Of asking price
	pctFeeCap     float64
	durationHours uint64
	reveals       []market.Field
}

var tierSpecs = map[Tier]tierSpec{
	TierQuick: {150, 0.002, 300, 2,
		[]market.Field{market.FieldRating}},
	TierStandard: {400, 0.005, 1200, 6,
		[]market.Field{market.FieldRating, market.FieldAge, market.FieldOperatingHours, market.FieldWear}},
	TierComprehensive: {900, 0.010, 3000, 24,
		[]market.Field{market.FieldRating, market.FieldAge, market.FieldOperatingHours, market.FieldWear, market.FieldDamage, market.FieldDNAHint}},
}

// Fee returns the total charge for inspecting a listing at the given price.
func Fee(t Tier, askingPrice float64) float64 {
	spec := tierSpecs[t]
	pct := askingPrice * spec.pctFee
	if pct > spec.pctFeeCap {
		pct = spec.pctFeeCap
	}
	return spec.flatFee + pct
}

// Duration returns the tier's turnaround in sim-hours.
func Duration(t Tier) uint64 {
	return tierSpecs[t].durationHours
}

// Inspection is one in-flight inspection job.
type Inspection struct {
	ListingID       market.ListingID `json:"listing_id"`
	OwnerID         string           `json:"owner_id"`
	Tier            Tier             `json:"tier"`
	RequestedAtHour uint64           `json:"requested_at_hour"`
	CompletesAtHour uint64           `json:"completes_at_hour"`
}

// Book tracks active inspections, at most one per listing.
type Book struct {
	active map[market.ListingID]*Inspection

	ledger   host.Ledger
	notifier host.Notifier
}

// NewBook creates an empty inspection book.
func NewBook(ledger host.Ledger, notifier host.Notifier) *Book {
	return &Book{
		active:   make(map[market.ListingID]*Inspection),
		ledger:   ledger,
		notifier: notifier,
	}
}

// Request opens an inspection on a listing. The fee is debited up front; a
// failed debit leaves no state behind. A second request while one is in
// progress is rejected, as is any request on a terminal listing.
func (b *Book) Request(l *market.ListingRecord, tier Tier, hour uint64) error {
	if l == nil {
		return market.Validationf("missing listing")
	}
	if !tier.Valid() {
		return market.Validationf("inspection tier %d out of range", tier)
	}
	if l.Status.Terminal() {
		return &market.RaceError{Reason: fmt.Sprintf("listing %s already resolved", l.ID)}
	}
	if _, busy := b.active[l.ID]; busy {
		return market.Validationf("inspection already in progress for listing %s", l.ID)
	}

	fee := Fee(tier, l.AskingPrice)
	if err := b.ledger.Debit(l.OwnerID, fee); err != nil {
		return &market.FundsError{OwnerID: l.OwnerID, Amount: fee, Err: err}
	}

	ins := &Inspection{
		ListingID:       l.ID,
		OwnerID:         l.OwnerID,
		Tier:            tier,
		RequestedAtHour: hour,
		CompletesAtHour: hour + tierSpecs[tier].durationHours,
	}
	b.active[l.ID] = ins
	l.OnHold = true

	slog.Info("inspection requested",
		"listing", l.ID,
		"tier", tier.Name(),
		"fee", fee,
		"completes_at", ins.CompletesAtHour,
	)
	return nil
}

// Resolver finds the listing for an inspection so the book stays decoupled
// from the queues that own the records.
type Resolver func(market.ListingID) (*market.ListingRecord, bool)

// Tick completes every inspection whose time has come: reveal the tier's
// fields, clear the hold, and report to the requester.
func (b *Book) Tick(hour uint64, resolve Resolver) []market.Event {
	var events []market.Event
	for id, ins := range b.active {
		if hour < ins.CompletesAtHour {
			continue
		}
		delete(b.active, id)

		l, ok := resolve(id)
		if !ok {
			// The listing resolved out from under the inspection (sold or
			// withdrawn); nothing left to reveal.
			continue
		}
		for _, f := range tierSpecs[ins.Tier].reveals {
			l.Revealed.Reveal(f)
		}
		l.OnHold = false

		b.notifier.Notify(ins.OwnerID,
			fmt.Sprintf("%s inspection of the %s is complete. The report is in.", ins.Tier.Name(), l.CategoryID),
			host.SeverityInfo)
		events = append(events, market.Event{
			Hour:        hour,
			Description: fmt.Sprintf("%s inspection completed for %s", ins.Tier.Name(), id),
			Category:    "inspection",
		})
	}
	return events
}

// Active returns the in-flight inspection for a listing, if any.
func (b *Book) Active(id market.ListingID) (*Inspection, bool) {
	ins, ok := b.active[id]
	return ins, ok
}

// Release drops an inspection without revealing anything; used when its
// listing leaves the market mid-inspection.
func (b *Book) Release(id market.ListingID) {
	delete(b.active, id)
}

// All iterates every active inspection; used by persistence.
func (b *Book) All() []*Inspection {
	var out []*Inspection
	for _, ins := range b.active {
		out = append(out, ins)
	}
	return out
}

// Restore reinstates loaded inspections. Used by persistence only.
func (b *Book) Restore(list []*Inspection) {
	for _, ins := range list {
		b.active[ins.ListingID] = ins
	}
}
