// Package acquisition manages commissioned searches for used equipment and
// the found listings they produce. The queue is the only writer of its
// records; everything advances inside the hourly tick or a player operation.
package acquisition

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/halvard/usedmarket/internal/condition"
	"github.com/halvard/usedmarket/internal/entropy"
	"github.com/halvard/usedmarket/internal/host"
	"github.com/halvard/usedmarket/internal/market"
)

// SearchID uniquely identifies a search request.
type SearchID string

// SearchRequest is one in-flight acquisition job.
type SearchRequest struct {
	ID          SearchID           `json:"id"`
	RequesterID string             `json:"requester_id"`
	CategoryID  string             `json:"category_id"`
	Quality     market.QualityTier `json:"quality_tier"`
	Agent       market.AgentTier   `json:"agent_tier"`
	Fee         float64            `json:"fee"`
	CreatedHour uint64             `json:"created_hour"`
	Remaining   int                `json:"remaining_hours"`
	Resolved    bool               `json:"resolved"`
	Results     []market.ListingID `json:"results,omitempty"`
}

// searchBand holds the per-agent-tier search economics.
type searchBand struct {
	fee          float64
	durationMin  int // Hours
	durationMax  int
	successProb  float64
	findMin      int
	findMax      int
}

var searchBands = map[market.AgentTier]searchBand{
	market.TierLocal:    {250, 8, 24, 0.55, 1, 2},
	market.TierRegional: {500, 24, 72, 0.70, 1, 3},
	market.TierNational: {1000, 48, 120, 0.85, 2, 4},
}

// FoundListingTTL is the offer window, in sim-hours, a found listing stays
// purchasable once the requester has viewed it.
const FoundListingTTL = 96

// Queue owns all search requests and the found listings they resolve into.
type Queue struct {
	searches map[SearchID]*SearchRequest
	listings map[market.ListingID]*market.ListingRecord

	gen      *condition.Generator
	rng      entropy.Source
	ledger   host.Ledger
	notifier host.Notifier
}

// NewQueue creates an empty acquisition queue.
func NewQueue(gen *condition.Generator, rng entropy.Source, ledger host.Ledger, notifier host.Notifier) *Queue {
	return &Queue{
		searches: make(map[SearchID]*SearchRequest),
		listings: make(map[market.ListingID]*market.ListingRecord),
		gen:      gen,
		rng:      rng,
		ledger:   ledger,
		notifier: notifier,
	}
}

// SearchFee returns the commission fee for an agent tier, falling back to
// Regional for out-of-range indices.
func SearchFee(agent market.AgentTier) float64 {
	if !agent.Valid() {
		agent = market.TierRegional
	}
	return searchBands[agent].fee
}

// RequestSearch opens a new search. The fee is debited up front; a failed
// debit leaves no state behind. Malformed tier indices fall back to Regional
// rather than erroring.
func (q *Queue) RequestSearch(requesterID, categoryID string, quality market.QualityTier, agent market.AgentTier, hour uint64) (*SearchRequest, error) {
	if requesterID == "" {
		return nil, market.Validationf("missing requester id")
	}
	if !agent.Valid() {
		slog.Warn("search agent tier out of range, falling back", "requested", agent)
		agent = market.TierRegional
	}
	band := searchBands[agent]

	if err := q.ledger.Debit(requesterID, band.fee); err != nil {
		return nil, &market.FundsError{OwnerID: requesterID, Amount: band.fee, Err: err}
	}

	duration := band.durationMin + entropy.IntN(q.rng, band.durationMax-band.durationMin+1)
	req := &SearchRequest{
		ID:          SearchID(uuid.NewString()),
		RequesterID: requesterID,
		CategoryID:  categoryID,
		Quality:     quality,
		Agent:       agent,
		Fee:         band.fee,
		CreatedHour: hour,
		Remaining:   duration,
	}
	q.searches[req.ID] = req

	slog.Info("search opened",
		"search", req.ID,
		"requester", requesterID,
		"category", categoryID,
		"agent", agent.Name(),
		"duration_hours", duration,
	)
	return req, nil
}

// CancelSearch abandons an unresolved search. The agent fee is forfeited.
func (q *Queue) CancelSearch(id SearchID) error {
	req, ok := q.searches[id]
	if !ok {
		return market.Validationf("no such search %s", id)
	}
	if req.Resolved {
		return &market.RaceError{Reason: fmt.Sprintf("search %s already resolved", id)}
	}
	delete(q.searches, id)
	q.notifier.Notify(req.RequesterID, "Search cancelled. The agent fee is not refunded.", host.SeverityInfo)
	return nil
}

// Tick advances every active search by one hour and resolves those that
// complete. Found-listing offer windows tick down independently.
func (q *Queue) Tick(hour, period uint64) []market.Event {
	var events []market.Event

	for _, req := range q.searches {
		if req.Resolved {
			continue
		}
		req.Remaining--
		if req.Remaining > 0 {
			continue
		}
		events = append(events, q.resolve(req, hour, period)...)
	}

	// Offer windows: TTL runs only for viewed, un-held listings.
	for id, l := range q.listings {
		if l.TickTTL() {
			l.Status = market.StatusExpired
			delete(q.listings, id)
			q.detachResult(l.ID)
			q.notifier.Notify(l.OwnerID,
				fmt.Sprintf("The seller of the %s has found another buyer. The listing is gone.", l.CategoryID),
				host.SeverityWarning)
			events = append(events, market.Event{
				Hour:        hour,
				Description: fmt.Sprintf("listing %s expired unsold", l.ID),
				Category:    "expiry",
			})
		}
	}

	// Drop fully-consumed resolved searches from the live set.
	for id, req := range q.searches {
		if req.Resolved && len(req.Results) == 0 {
			delete(q.searches, id)
		}
	}

	return events
}

// resolve rolls a completed search for success and generates its result set.
func (q *Queue) resolve(req *SearchRequest, hour, period uint64) []market.Event {
	req.Resolved = true
	band := searchBands[req.Agent]

	if q.rng.Float() >= band.successProb {
		q.notifier.Notify(req.RequesterID,
			fmt.Sprintf("Your %s agent found no %s matching the request.", req.Agent.Name(), req.CategoryID),
			host.SeverityInfo)
		return []market.Event{{
			Hour:        hour,
			Description: fmt.Sprintf("search %s resolved with no results", req.ID),
			Category:    "search",
		}}
	}

	finds := band.findMin + entropy.IntN(q.rng, band.findMax-band.findMin+1)
	var events []market.Event
	for i := 0; i < finds; i++ {
		l, err := q.gen.Generate(condition.Params{
			CategoryID: req.CategoryID,
			Quality:    req.Quality,
			Agent:      req.Agent,
			Period:     period,
		})
		if err != nil {
			// Bad category; the search resolves empty rather than failing.
			slog.Warn("listing generation failed", "search", req.ID, "error", err)
			break
		}
		l.OwnerID = req.RequesterID
		l.CreatedHour = hour
		l.TTLHours = FoundListingTTL
		q.listings[l.ID] = l
		req.Results = append(req.Results, l.ID)
		events = append(events, market.Event{
			Hour:        hour,
			Description: fmt.Sprintf("found %s at %s asking", l.CategoryID, humanize.CommafWithDigits(l.AskingPrice, 0)),
			Category:    "search",
		})
	}

	q.notifier.Notify(req.RequesterID,
		fmt.Sprintf("Your %s agent found %d listing(s) for %s.", req.Agent.Name(), len(req.Results), req.CategoryID),
		host.SeverityInfo)
	return events
}

// MarkViewed starts a found listing's offer window. Idempotent.
func (q *Queue) MarkViewed(id market.ListingID) error {
	l, ok := q.listings[id]
	if !ok {
		return market.Validationf("no such listing %s", id)
	}
	l.Viewed = true
	return nil
}

// Listing returns a found listing by ID. Withdrawn and expired listings are
// deleted outright, so they can never be returned here.
func (q *Queue) Listing(id market.ListingID) (*market.ListingRecord, bool) {
	l, ok := q.listings[id]
	return l, ok
}

// Remove deletes a listing from the queue (sale completed or withdrawn).
func (q *Queue) Remove(id market.ListingID) {
	delete(q.listings, id)
	q.detachResult(id)
}

// detachResult drops a listing from its originating search's result set.
func (q *Queue) detachResult(id market.ListingID) {
	for _, req := range q.searches {
		for i, rid := range req.Results {
			if rid == id {
				req.Results = append(req.Results[:i], req.Results[i+1:]...)
				return
			}
		}
	}
}

// ActiveSearches returns a requester's live searches, oldest first.
func (q *Queue) ActiveSearches(requesterID string) []*SearchRequest {
	var out []*SearchRequest
	for _, req := range q.searches {
		if req.RequesterID == requesterID {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedHour < out[j].CreatedHour })
	return out
}

// Listings returns a requester's found listings, oldest first.
func (q *Queue) Listings(requesterID string) []*market.ListingRecord {
	var out []*market.ListingRecord
	for _, l := range q.listings {
		if l.OwnerID == requesterID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedHour < out[j].CreatedHour })
	return out
}

// All iterates every live search and listing; used by persistence.
func (q *Queue) All() ([]*SearchRequest, []*market.ListingRecord) {
	var reqs []*SearchRequest
	for _, r := range q.searches {
		reqs = append(reqs, r)
	}
	var ls []*market.ListingRecord
	for _, l := range q.listings {
		ls = append(ls, l)
	}
	return reqs, ls
}

// Restore reinstates loaded records. Used by persistence only.
func (q *Queue) Restore(reqs []*SearchRequest, ls []*market.ListingRecord) {
	for _, r := range reqs {
		q.searches[r.ID] = r
	}
	for _, l := range ls {
		q.listings[l.ID] = l
	}
}
