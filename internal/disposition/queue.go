// Package disposition manages owner-initiated sales through tiered agents:
// the agent hunts for buyers over time, surfaces their offers, and the owner
// accepts or declines. Mirrors the acquisition queue on the selling side.
package disposition

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/halvard/usedmarket/internal/entropy"
	"github.com/halvard/usedmarket/internal/host"
	"github.com/halvard/usedmarket/internal/market"
)

// SaleID uniquely identifies a sale request.
type SaleID string

// ItemSpec is the host's description of an owned item being listed for sale.
type ItemSpec struct {
	CategoryID     string  `json:"category_id"`
	AgeYears       float64 `json:"age_years"`
	Damage         float64 `json:"damage"`
	Wear           float64 `json:"wear"`
	OperatingHours float64 `json:"operating_hours"`
	Value          float64 `json:"value"` // Current vanilla value in credits
}

// SaleRequest is one in-flight disposition job.
type SaleRequest struct {
	ID          SaleID           `json:"id"`
	OwnerID     string           `json:"owner_id"`
	ListingID   market.ListingID `json:"listing_id"`
	Agent       market.AgentTier `json:"agent_tier"`
	Fee         float64          `json:"fee"`
	CreatedHour uint64           `json:"created_hour"`
	Remaining   int              `json:"remaining_hours"` // Until the next buyer roll
	History     []market.Offer   `json:"offer_history,omitempty"`
	Pending     *market.Offer    `json:"pending_offer,omitempty"`
}

// saleBand holds the per-agent-tier sale economics: how often buyers appear,
// how likely each roll is to land one, and what fraction of value they offer.
type saleBand struct {
	fee         float64
	intervalMin int // Hours between buyer rolls
	intervalMax int
	successProb float64
	returnMin   float64 // Fraction of item value
	returnMax   float64
}

var saleBands = map[market.AgentTier]saleBand{
	market.TierLocal:    {50, 12, 36, 0.50, 0.60, 0.75},
	market.TierRegional: {150, 24, 48, 0.60, 0.70, 0.85},
	market.TierNational: {400, 36, 72, 0.70, 0.80, 0.95},
}

// OfferWindowHours is how long a buyer offer stays open before it lapses and
// the agent resumes searching.
const OfferWindowHours = 24

// Queue owns all sale requests and the listings they wrap.
type Queue struct {
	sales    map[SaleID]*SaleRequest
	byLst    map[market.ListingID]SaleID
	listings map[market.ListingID]*market.ListingRecord

	rng      entropy.Source
	ledger   host.Ledger
	notifier host.Notifier
}

// NewQueue creates an empty disposition queue.
func NewQueue(rng entropy.Source, ledger host.Ledger, notifier host.Notifier) *Queue {
	return &Queue{
		sales:    make(map[SaleID]*SaleRequest),
		byLst:    make(map[market.ListingID]SaleID),
		listings: make(map[market.ListingID]*market.ListingRecord),
		rng:      rng,
		ledger:   ledger,
		notifier: notifier,
	}
}

// SaleFee returns the non-refundable listing fee for an agent tier.
func SaleFee(agent market.AgentTier) float64 {
	if !agent.Valid() {
		agent = market.TierRegional
	}
	return saleBands[agent].fee
}

// ListForSale opens a sale for an owned item. The agent fee is charged
// immediately and never refunded. A failed debit leaves no state behind.
func (q *Queue) ListForSale(ownerID string, item ItemSpec, agent market.AgentTier, hour uint64) (*SaleRequest, error) {
	if ownerID == "" {
		return nil, market.Validationf("missing owner id")
	}
	if item.Value <= 0 {
		return nil, market.Validationf("item value must be positive, got %.2f", item.Value)
	}
	if !agent.Valid() {
		slog.Warn("sale agent tier out of range, falling back", "requested", agent)
		agent = market.TierRegional
	}
	band := saleBands[agent]

	if err := q.ledger.Debit(ownerID, band.fee); err != nil {
		return nil, &market.FundsError{OwnerID: ownerID, Amount: band.fee, Err: err}
	}

	// Hidden quality for an owned machine leans on its visible damage, same
	// bias the generator uses for procedural stock.
	dna := 1 - item.Damage + entropy.Range(q.rng, -0.15, 0.15)
	if dna < 0 {
		dna = 0
	}
	if dna > 1 {
		dna = 1
	}

	l := &market.ListingRecord{
		ID:             market.NewListingID(),
		CategoryID:     item.CategoryID,
		OwnerID:        ownerID,
		Status:         market.StatusSearching,
		CreatedHour:    hour,
		AgeYears:       item.AgeYears,
		Damage:         item.Damage,
		Wear:           item.Wear,
		OperatingHours: item.OperatingHours,
		BasePrice:      item.Value,
		AskingPrice:    item.Value,
		Commission:     band.fee,
		DNA:            dna,
		Viewed:         true, // The owner knows their own machine is listed
	}
	// The owner sees their own machine's condition.
	l.Revealed.Reveal(market.FieldRating)
	l.Revealed.Reveal(market.FieldAge)
	l.Revealed.Reveal(market.FieldOperatingHours)
	l.Revealed.Reveal(market.FieldDamage)
	l.Revealed.Reveal(market.FieldWear)

	req := &SaleRequest{
		ID:          SaleID(uuid.NewString()),
		OwnerID:     ownerID,
		ListingID:   l.ID,
		Agent:       agent,
		Fee:         band.fee,
		CreatedHour: hour,
		Remaining:   band.intervalMin + entropy.IntN(q.rng, band.intervalMax-band.intervalMin+1),
	}
	q.sales[req.ID] = req
	q.byLst[l.ID] = req.ID
	q.listings[l.ID] = l

	slog.Info("sale listed",
		"sale", req.ID,
		"owner", ownerID,
		"category", item.CategoryID,
		"agent", agent.Name(),
		"value", item.Value,
	)
	return req, nil
}

// Tick advances every sale: pending offers age toward lapse, searching sales
// count down to their next buyer roll.
func (q *Queue) Tick(hour uint64) []market.Event {
	var events []market.Event

	for _, req := range q.sales {
		l := q.listings[req.ListingID]
		if l == nil {
			continue
		}

		if req.Pending != nil {
			if hour-req.Pending.Hour >= OfferWindowHours {
				// Buyer lost patience; record the miss and resume searching.
				req.History = append(req.History, *req.Pending)
				req.Pending = nil
				l.Status = market.StatusSearching
				q.resetTimer(req)
				q.notifier.Notify(req.OwnerID,
					fmt.Sprintf("The buyer for your %s withdrew their offer. The agent resumes the search.", l.CategoryID),
					host.SeverityWarning)
				events = append(events, market.Event{
					Hour:        hour,
					Description: fmt.Sprintf("offer on %s lapsed unanswered", req.ListingID),
					Category:    "sale",
				})
			}
			continue
		}

		req.Remaining--
		if req.Remaining > 0 {
			continue
		}

		band := saleBands[req.Agent]
		if q.rng.Float() >= band.successProb {
			q.resetTimer(req)
			continue
		}

		amount := l.BasePrice * entropy.Range(q.rng, band.returnMin, band.returnMax)
		req.Pending = &market.Offer{Amount: amount, Hour: hour}
		l.Status = market.StatusNegotiating
		q.notifier.Notify(req.OwnerID,
			fmt.Sprintf("A buyer offers %s for your %s. The offer stands for %d hours.",
				humanize.CommafWithDigits(amount, 0), l.CategoryID, OfferWindowHours),
			host.SeverityInfo)
		events = append(events, market.Event{
			Hour:        hour,
			Description: fmt.Sprintf("buyer offered %s for %s", humanize.CommafWithDigits(amount, 0), l.CategoryID),
			Category:    "sale",
		})
	}

	return events
}

func (q *Queue) resetTimer(req *SaleRequest) {
	band := saleBands[req.Agent]
	req.Remaining = band.intervalMin + entropy.IntN(q.rng, band.intervalMax-band.intervalMin+1)
}

// AcceptOffer completes a sale at the pending offer's amount. The proceeds
// are credited to the owner; the listing becomes sold and leaves the queue.
func (q *Queue) AcceptOffer(listingID market.ListingID, hour uint64) (*market.Offer, error) {
	req, l, err := q.pendingFor(listingID)
	if err != nil {
		return nil, err
	}
	offer := *req.Pending
	offer.Accepted = true
	req.History = append(req.History, offer)

	q.ledger.Credit(req.OwnerID, offer.Amount)
	l.Status = market.StatusSold
	q.remove(req)

	q.notifier.Notify(req.OwnerID,
		fmt.Sprintf("Sold your %s for %s.", l.CategoryID, humanize.CommafWithDigits(offer.Amount, 0)),
		host.SeverityInfo)
	slog.Info("sale completed", "sale", req.ID, "listing", listingID, "amount", offer.Amount, "hour", hour)
	return &offer, nil
}

// DeclineOffer turns a pending offer down and resumes the buyer search.
func (q *Queue) DeclineOffer(listingID market.ListingID) error {
	req, l, err := q.pendingFor(listingID)
	if err != nil {
		return err
	}
	req.History = append(req.History, *req.Pending)
	req.Pending = nil
	l.Status = market.StatusSearching
	q.resetTimer(req)
	return nil
}

// CancelSale withdraws an item from sale before any offer is pending. The
// agent fee is forfeited; the item returns to the owner's free inventory.
func (q *Queue) CancelSale(id SaleID) error {
	req, ok := q.sales[id]
	if !ok {
		return market.Validationf("no such sale %s", id)
	}
	if req.Pending != nil {
		return market.Validationf("sale %s has a pending offer; accept or decline it first", id)
	}
	q.remove(req)
	q.notifier.Notify(req.OwnerID,
		"Sale cancelled. The item is back in your yard; the agent fee is not refunded.",
		host.SeverityInfo)
	return nil
}

func (q *Queue) pendingFor(listingID market.ListingID) (*SaleRequest, *market.ListingRecord, error) {
	sid, ok := q.byLst[listingID]
	if !ok {
		return nil, nil, market.Validationf("no sale for listing %s", listingID)
	}
	req := q.sales[sid]
	l := q.listings[listingID]
	if req == nil || l == nil {
		return nil, nil, market.Validationf("no sale for listing %s", listingID)
	}
	if req.Pending == nil {
		return nil, nil, &market.RaceError{Reason: fmt.Sprintf("no pending offer on listing %s", listingID)}
	}
	return req, l, nil
}

func (q *Queue) remove(req *SaleRequest) {
	delete(q.sales, req.ID)
	delete(q.byLst, req.ListingID)
	delete(q.listings, req.ListingID)
}

// Sale returns a sale request by ID.
func (q *Queue) Sale(id SaleID) (*SaleRequest, bool) {
	req, ok := q.sales[id]
	return req, ok
}

// Listing returns a for-sale listing by ID.
func (q *Queue) Listing(id market.ListingID) (*market.ListingRecord, bool) {
	l, ok := q.listings[id]
	return l, ok
}

// ActiveSales returns an owner's live sale requests, oldest first.
func (q *Queue) ActiveSales(ownerID string) []*SaleRequest {
	var out []*SaleRequest
	for _, req := range q.sales {
		if req.OwnerID == ownerID {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedHour < out[j].CreatedHour })
	return out
}

// All iterates every live sale and listing; used by persistence.
func (q *Queue) All() ([]*SaleRequest, []*market.ListingRecord) {
	var reqs []*SaleRequest
	for _, r := range q.sales {
		reqs = append(reqs, r)
	}
	var ls []*market.ListingRecord
	for _, l := range q.listings {
		ls = append(ls, l)
	}
	return reqs, ls
}

// Restore reinstates loaded records. Used by persistence only.
func (q *Queue) Restore(reqs []*SaleRequest, ls []*market.ListingRecord) {
	for _, l := range ls {
		q.listings[l.ID] = l
	}
	for _, r := range reqs {
		q.sales[r.ID] = r
		q.byLst[r.ListingID] = r.ID
	}
}
