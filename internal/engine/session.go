// Session ties the queues, negotiation engine, and host interfaces together
// and exposes every player-facing operation.
package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/halvard/usedmarket/internal/acquisition"
	"github.com/halvard/usedmarket/internal/catalog"
	"github.com/halvard/usedmarket/internal/condition"
	"github.com/halvard/usedmarket/internal/disposition"
	"github.com/halvard/usedmarket/internal/entropy"
	"github.com/halvard/usedmarket/internal/host"
	"github.com/halvard/usedmarket/internal/inspection"
	"github.com/halvard/usedmarket/internal/market"
	"github.com/halvard/usedmarket/internal/negotiation"
	"github.com/halvard/usedmarket/internal/weather"
)

// Session is the authoritative marketplace state for one save. It is owned by
// the host application's lifecycle, never a process-wide static. All mutation
// runs through its methods in arrival order: the first operation on a listing
// in a tick wins, later ones re-validate and get a race rejection.
type Session struct {
	mu sync.Mutex

	Catalog     *catalog.Catalog
	Acquisition *acquisition.Queue
	Disposition *disposition.Queue
	Inspections *inspection.Book
	Negotiator  *negotiation.Engine
	Trend       *condition.Trend

	Weather  weather.Source
	Ledger   host.Ledger
	Notifier host.Notifier

	Hour    uint64
	Events  []market.Event // Ring buffer, newest last
	pending []market.Event // Not yet handed to persistence

	Stats Stats
}

// Stats tracks aggregate marketplace counters since session start.
type Stats struct {
	Sold      int `json:"sold"`
	Expired   int `json:"expired"`
	Withdrawn int `json:"withdrawn"`
}

// Config wires a session from its collaborators.
type Config struct {
	Catalog  *catalog.Catalog
	Rng      entropy.Source
	Weather  weather.Source
	Ledger   host.Ledger
	Notifier host.Notifier
	Seed     int64 // Drives the period market trend
}

// NewSession builds a session and its queues.
func NewSession(cfg Config) *Session {
	trend := condition.NewTrend(cfg.Seed)
	gen := condition.NewGenerator(cfg.Catalog, cfg.Rng, trend)
	return &Session{
		Catalog:     cfg.Catalog,
		Acquisition: acquisition.NewQueue(gen, cfg.Rng, cfg.Ledger, cfg.Notifier),
		Disposition: disposition.NewQueue(cfg.Rng, cfg.Ledger, cfg.Notifier),
		Inspections: inspection.NewBook(cfg.Ledger, cfg.Notifier),
		Negotiator:  negotiation.NewEngine(cfg.Rng),
		Trend:       trend,
		Weather:     cfg.Weather,
		Ledger:      cfg.Ledger,
		Notifier:    cfg.Notifier,
	}
}

// maxEvents bounds the in-memory event ring.
const maxEvents = 1000

// ── Tick handlers ────────────────────────────────────────────────────────

// OnHourTick advances every queue by one simulated hour.
func (s *Session) OnHourTick(hour uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Hour = hour

	period := Period(hour)
	var events []market.Event
	events = append(events, s.Acquisition.Tick(hour, period)...)
	events = append(events, s.Disposition.Tick(hour)...)
	events = append(events, s.Inspections.Tick(hour, s.findListing)...)

	for _, e := range events {
		if e.Category == "expiry" {
			s.Stats.Expired++
		}
	}
	s.appendEvents(events)
}

// OnPeriodTick logs the monthly market digest.
func (s *Session) OnPeriodTick(hour uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	period := Period(hour)
	searches, foundListings := s.Acquisition.All()
	sales, _ := s.Disposition.All()

	slog.Info("market period digest",
		"hour", hour,
		"time", SimTime(hour),
		"trend", fmt.Sprintf("%.3f", s.Trend.Multiplier(period)),
		"active_searches", len(searches),
		"found_listings", len(foundListings),
		"active_sales", len(sales),
		"sold", s.Stats.Sold,
		"expired", s.Stats.Expired,
		"withdrawn", s.Stats.Withdrawn,
	)
}

// ── Player operations ────────────────────────────────────────────────────

// RequestSearch commissions an agent to find used equipment.
func (s *Session) RequestSearch(requesterID, categoryID string, quality market.QualityTier, agent market.AgentTier) (*acquisition.SearchRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.Catalog.Get(categoryID); !ok {
		return nil, market.Validationf("unknown category %q", categoryID)
	}
	req, err := s.Acquisition.RequestSearch(requesterID, categoryID, quality, agent, s.Hour)
	if err != nil {
		return nil, s.surface(requesterID, err)
	}
	return req, nil
}

// ListForSale puts an owned item on the market through a tiered agent.
func (s *Session) ListForSale(ownerID string, item disposition.ItemSpec, agent market.AgentTier) (*disposition.SaleRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.Catalog.Get(item.CategoryID); !ok {
		return nil, market.Validationf("unknown category %q", item.CategoryID)
	}
	req, err := s.Disposition.ListForSale(ownerID, item, agent, s.Hour)
	if err != nil {
		return nil, s.surface(ownerID, err)
	}
	return req, nil
}

// SubmitOffer runs one negotiation round against a found listing's seller.
// An accepted offer completes the purchase on the spot.
func (s *Session) SubmitOffer(listingID market.ListingID, offererID string, amount float64) (negotiation.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.Acquisition.Listing(listingID)
	if !ok {
		return negotiation.Outcome{}, s.surface(offererID, &market.RaceError{
			Reason: fmt.Sprintf("listing %s is no longer on the market", listingID)})
	}
	if l.Status.Terminal() {
		return negotiation.Outcome{}, s.surface(offererID, &market.RaceError{
			Reason: fmt.Sprintf("listing %s already %s", listingID, market.StatusName(l.Status))})
	}

	// An offer counts as interacting with the listing: the offer window
	// starts running if it hasn't already.
	l.Viewed = true

	// The evaluation mutates negotiation state; keep a copy so a failed
	// purchase debit rolls the whole operation back.
	saved := *l.Negotiation

	cond := s.Weather.Current()
	out, err := s.Negotiator.Evaluate(l.Negotiation, l.AskingPrice, amount, cond)
	if err != nil {
		return negotiation.Outcome{}, s.surface(offererID, err)
	}

	switch out.Kind {
	case negotiation.OutcomeAccepted:
		if err := s.Ledger.Debit(offererID, amount); err != nil {
			*l.Negotiation = saved
			return negotiation.Outcome{}, s.surface(offererID, &market.FundsError{
				OwnerID: offererID, Amount: amount, Err: err})
		}
		l.Status = market.StatusSold
		s.Acquisition.Remove(listingID)
		s.Inspections.Release(listingID)
		s.Stats.Sold++
		s.Notifier.Notify(offererID,
			fmt.Sprintf("Deal. The %s is yours for %s.", l.CategoryID, humanize.CommafWithDigits(amount, 0)),
			host.SeverityInfo)
		s.appendEvents([]market.Event{{
			Hour:        s.Hour,
			Description: fmt.Sprintf("%s bought for %s", l.CategoryID, humanize.CommafWithDigits(amount, 0)),
			Category:    "negotiation",
		}})

	case negotiation.OutcomeCountered:
		l.AskingPrice = out.CounterPrice
		l.Status = market.StatusNegotiating
		s.Notifier.Notify(offererID,
			fmt.Sprintf("The seller counters at %s.", humanize.CommafWithDigits(out.CounterPrice, 0)),
			host.SeverityInfo)

	case negotiation.OutcomeRejected:
		l.Status = market.StatusNegotiating
		s.Notifier.Notify(offererID, "The seller turns the offer down.", host.SeverityInfo)

	case negotiation.OutcomeWalkedAway:
		// Permanent withdrawal: the record is deleted outright, not flagged,
		// so no future query or offer can ever see it again.
		l.Status = market.StatusWithdrawn
		s.Acquisition.Remove(listingID)
		s.Inspections.Release(listingID)
		s.Stats.Withdrawn++
		s.Notifier.Notify(offererID,
			fmt.Sprintf("The seller is insulted and pulls the %s off the market for good.", l.CategoryID),
			host.SeverityWarning)
		s.appendEvents([]market.Event{{
			Hour:        s.Hour,
			Description: fmt.Sprintf("seller walked away from %s", l.CategoryID),
			Category:    "negotiation",
		}})
	}

	return out, nil
}

// Purchase buys a found listing outright at its current asking price.
func (s *Session) Purchase(listingID market.ListingID, buyerID string) (negotiation.Outcome, error) {
	s.mu.Lock()
	asking := 0.0
	if l, ok := s.Acquisition.Listing(listingID); ok {
		asking = l.AskingPrice
	}
	s.mu.Unlock()
	if asking <= 0 {
		return negotiation.Outcome{}, market.Validationf("no such listing %s", listingID)
	}
	return s.SubmitOffer(listingID, buyerID, asking)
}

// RequestInspection opens a tiered inspection on a listing. The result is
// delivered asynchronously through the notification sink.
func (s *Session) RequestInspection(listingID market.ListingID, tier inspection.Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.findListing(listingID)
	if !ok {
		return market.Validationf("no such listing %s", listingID)
	}
	if err := s.Inspections.Request(l, tier, s.Hour); err != nil {
		return s.surface(l.OwnerID, err)
	}
	return nil
}

// MarkViewed starts a found listing's offer window.
func (s *Session) MarkViewed(listingID market.ListingID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Acquisition.MarkViewed(listingID)
}

// CancelSearch abandons a search; the agent fee is forfeited.
func (s *Session) CancelSearch(id acquisition.SearchID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Acquisition.CancelSearch(id)
}

// CancelSale withdraws an item from sale before an offer is pending.
func (s *Session) CancelSale(id disposition.SaleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Disposition.CancelSale(id)
}

// AcceptOffer completes a sale at the pending buyer offer.
func (s *Session) AcceptOffer(listingID market.ListingID) (*market.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	offer, err := s.Disposition.AcceptOffer(listingID, s.Hour)
	if err != nil {
		return nil, err
	}
	s.Inspections.Release(listingID)
	s.Stats.Sold++
	s.appendEvents([]market.Event{{
		Hour:        s.Hour,
		Description: fmt.Sprintf("sale completed at %s", humanize.CommafWithDigits(offer.Amount, 0)),
		Category:    "sale",
	}})
	return offer, nil
}

// DeclineOffer turns down the pending buyer offer and resumes the search.
func (s *Session) DeclineOffer(listingID market.ListingID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Disposition.DeclineOffer(listingID)
}

// ── Queries ──────────────────────────────────────────────────────────────

// ActiveSearches returns a requester's live searches.
func (s *Session) ActiveSearches(requesterID string) []*acquisition.SearchRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Acquisition.ActiveSearches(requesterID)
}

// ActiveListings returns visibility-filtered views of everything a requester
// has on the market: found listings and items up for sale.
func (s *Session) ActiveListings(requesterID string) []market.ListingView {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []market.ListingView
	for _, l := range s.Acquisition.Listings(requesterID) {
		out = append(out, l.View())
	}
	_, saleListings := s.Disposition.All()
	for _, l := range saleListings {
		if l.OwnerID == requesterID {
			out = append(out, l.View())
		}
	}
	return out
}

// ActiveSales returns an owner's live sale requests.
func (s *Session) ActiveSales(ownerID string) []*disposition.SaleRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Disposition.ActiveSales(ownerID)
}

// HoursRemaining reports a listing's live countdown: the offer window for a
// found listing, or the pending buyer offer's lapse window for a sale.
func (s *Session) HoursRemaining(listingID market.ListingID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.Acquisition.Listing(listingID); ok {
		return l.TTLHours, nil
	}
	if l, ok := s.Disposition.Listing(listingID); ok {
		if l.Status == market.StatusNegotiating {
			sales, _ := s.Disposition.All()
			for _, req := range sales {
				if req.ListingID == listingID && req.Pending != nil {
					elapsed := int(s.Hour - req.Pending.Hour)
					remaining := disposition.OfferWindowHours - elapsed
					if remaining < 0 {
						remaining = 0
					}
					return remaining, nil
				}
			}
		}
		return 0, nil
	}
	return 0, market.Validationf("no such listing %s", listingID)
}

// RecentEvents returns up to limit recent events, newest last.
func (s *Session) RecentEvents(limit int) []market.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.Events) {
		limit = len(s.Events)
	}
	out := make([]market.Event, limit)
	copy(out, s.Events[len(s.Events)-limit:])
	return out
}

// Snapshot is a point-in-time summary of marketplace activity.
type Snapshot struct {
	Hour           uint64 `json:"hour"`
	Time           string `json:"time"`
	ActiveSearches int    `json:"active_searches"`
	FoundListings  int    `json:"found_listings"`
	ActiveSales    int    `json:"active_sales"`
	Stats          Stats  `json:"stats"`
}

// Summary returns current activity counts.
func (s *Session) Summary() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	searches, foundListings := s.Acquisition.All()
	sales, _ := s.Disposition.All()
	return Snapshot{
		Hour:           s.Hour,
		Time:           SimTime(s.Hour),
		ActiveSearches: len(searches),
		FoundListings:  len(foundListings),
		ActiveSales:    len(sales),
		Stats:          s.Stats,
	}
}

// Locked runs fn while holding the session lock. Persistence uses it to read
// a consistent snapshot of the queues while ticks are running.
func (s *Session) Locked(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// ── Internals ────────────────────────────────────────────────────────────

// findListing resolves a listing across both queues.
func (s *Session) findListing(id market.ListingID) (*market.ListingRecord, bool) {
	if l, ok := s.Acquisition.Listing(id); ok {
		return l, true
	}
	if l, ok := s.Disposition.Listing(id); ok {
		return l, true
	}
	return nil, false
}

// surface notifies the owner about an operation failure and passes the error
// through. Nothing in the taxonomy is fatal; the engine stays consistent.
func (s *Session) surface(ownerID string, err error) error {
	switch {
	case market.IsFunds(err):
		s.Notifier.Notify(ownerID, "Not enough money for that.", host.SeverityError)
	case market.IsRace(err):
		s.Notifier.Notify(ownerID, "That was already handled.", host.SeverityWarning)
	case market.IsValidation(err):
		s.Notifier.Notify(ownerID, err.Error(), host.SeverityWarning)
	}
	return err
}

func (s *Session) appendEvents(events []market.Event) {
	s.Events = append(s.Events, events...)
	s.pending = append(s.pending, events...)
	if len(s.Events) > maxEvents {
		s.Events = s.Events[len(s.Events)-maxEvents:]
	}
}

// DrainEvents returns events recorded since the last drain. The simulator
// appends them to the database event log.
func (s *Session) DrainEvents() []market.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.pending
	s.pending = nil
	return out
}
