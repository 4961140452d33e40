package engine

import (
	"testing"

	"github.com/halvard/usedmarket/internal/catalog"
	"github.com/halvard/usedmarket/internal/disposition"
	"github.com/halvard/usedmarket/internal/entropy"
	"github.com/halvard/usedmarket/internal/host"
	"github.com/halvard/usedmarket/internal/market"
	"github.com/halvard/usedmarket/internal/negotiation"
	"github.com/halvard/usedmarket/internal/weather"
)

func testSession(rng entropy.Source, balance float64) (*Session, *host.MemoryLedger) {
	ledger := host.NewMemoryLedger(map[string]float64{"buyer": balance})
	sess := NewSession(Config{
		Catalog:  catalog.Default(),
		Rng:      rng,
		Weather:  weather.Static(weather.Clear),
		Ledger:   ledger,
		Notifier: host.LogNotifier{},
		Seed:     1,
	})
	return sess, ledger
}

// plantListing puts a found listing with known negotiation state directly
// into the acquisition queue.
func plantListing(sess *Session, dna, asking float64) *market.ListingRecord {
	l := &market.ListingRecord{
		ID:          market.NewListingID(),
		CategoryID:  "tractor_utility",
		OwnerID:     "buyer",
		Status:      market.StatusFound,
		TTLHours:    96,
		DNA:         dna,
		AskingPrice: asking,
		BasePrice:   asking,
		Negotiation: market.NewNegotiationRecord(dna),
	}
	sess.Acquisition.Restore(nil, []*market.ListingRecord{l})
	return l
}

func TestRequestSearchValidatesCategory(t *testing.T) {
	sess, ledger := testSession(entropy.NewSeeded(1), 10000)

	_, err := sess.RequestSearch("buyer", "submarine", market.QualityGood, market.TierLocal)
	if err == nil || !market.IsValidation(err) {
		t.Fatalf("unknown category = %v, want validation error", err)
	}
	if got := ledger.Balance("buyer"); got != 10000 {
		t.Errorf("balance = %.0f, rejected request must not charge", got)
	}

	if _, err := sess.RequestSearch("buyer", "tractor_compact", market.QualityGood, market.TierLocal); err != nil {
		t.Fatalf("valid request: %v", err)
	}
	if got := len(sess.ActiveSearches("buyer")); got != 1 {
		t.Errorf("active searches = %d, want 1", got)
	}
}

func TestSubmitOfferPurchaseCompletes(t *testing.T) {
	// Reasonable seller, threshold 0.90: an offer at 90% of asking closes.
	sess, ledger := testSession(entropy.Fixed(0.99), 200000)
	l := plantListing(sess, 0.5, 100000)

	out, err := sess.SubmitOffer(l.ID, "buyer", 90000)
	if err != nil {
		t.Fatalf("SubmitOffer: %v", err)
	}
	if out.Kind != negotiation.OutcomeAccepted {
		t.Fatalf("outcome = %s, want accepted", out.Kind.Name())
	}
	if got := ledger.Balance("buyer"); got != 110000 {
		t.Errorf("balance = %.0f, want 110000", got)
	}
	if sess.Stats.Sold != 1 {
		t.Errorf("sold counter = %d, want 1", sess.Stats.Sold)
	}
	// The listing is gone; a second offer is a race, not a double purchase.
	if _, err := sess.SubmitOffer(l.ID, "buyer", 90000); err == nil || !market.IsRace(err) {
		t.Errorf("offer on sold listing = %v, want race error", err)
	}
	if events := sess.RecentEvents(10); len(events) == 0 {
		t.Error("purchase produced no event")
	}
}

func TestSubmitOfferFundsRollback(t *testing.T) {
	// The seller would accept, but the buyer cannot pay. Everything rolls
	// back: negotiation round, listing presence, seller state.
	sess, ledger := testSession(entropy.Fixed(0.99), 500)
	l := plantListing(sess, 0.5, 100000)
	before := *l.Negotiation

	_, err := sess.SubmitOffer(l.ID, "buyer", 90000)
	if err == nil || !market.IsFunds(err) {
		t.Fatalf("got %v, want funds error", err)
	}
	if got := ledger.Balance("buyer"); got != 500 {
		t.Errorf("balance = %.0f, want 500 untouched", got)
	}
	if *l.Negotiation != before {
		t.Errorf("negotiation state not rolled back: %+v -> %+v", before, *l.Negotiation)
	}
	if _, ok := sess.Acquisition.Listing(l.ID); !ok {
		t.Error("listing vanished on a failed purchase")
	}
	if l.Status.Terminal() {
		t.Errorf("status = %s after failed purchase", market.StatusName(l.Status))
	}
	if sess.Stats.Sold != 0 {
		t.Errorf("sold counter = %d, want 0", sess.Stats.Sold)
	}
}

func TestSubmitOfferCounterMovesAsking(t *testing.T) {
	// 87% of asking lands in the counter band for a reasonable seller.
	sess, _ := testSession(entropy.Fixed(0.99), 200000)
	l := plantListing(sess, 0.5, 100000)

	out, err := sess.SubmitOffer(l.ID, "buyer", 87000)
	if err != nil {
		t.Fatalf("SubmitOffer: %v", err)
	}
	if out.Kind != negotiation.OutcomeCountered {
		t.Fatalf("outcome = %s, want countered", out.Kind.Name())
	}
	if l.AskingPrice != out.CounterPrice {
		t.Errorf("asking = %.0f, want moved to counter %.0f", l.AskingPrice, out.CounterPrice)
	}
	if l.Status != market.StatusNegotiating {
		t.Errorf("status = %s, want negotiating", market.StatusName(l.Status))
	}
	// The next round negotiates against the new asking price.
	if l.Negotiation.Round != 1 {
		t.Errorf("round = %d, want 1", l.Negotiation.Round)
	}
}

func TestSubmitOfferWalkAwayIsPermanent(t *testing.T) {
	// An insulting offer with a roll under the walk-away chance withdraws
	// the listing for good.
	sess, ledger := testSession(entropy.Fixed(0.0), 200000)
	l := plantListing(sess, 0.5, 100000)

	out, err := sess.SubmitOffer(l.ID, "buyer", 40000)
	if err != nil {
		t.Fatalf("SubmitOffer: %v", err)
	}
	if out.Kind != negotiation.OutcomeWalkedAway {
		t.Fatalf("outcome = %s, want walked away", out.Kind.Name())
	}
	if got := ledger.Balance("buyer"); got != 200000 {
		t.Errorf("balance = %.0f, nothing should be charged", got)
	}
	if sess.Stats.Withdrawn != 1 {
		t.Errorf("withdrawn counter = %d, want 1", sess.Stats.Withdrawn)
	}
	// Gone for good: any further action is a race, even a generous one.
	if _, err := sess.SubmitOffer(l.ID, "buyer", 150000); err == nil || !market.IsRace(err) {
		t.Errorf("offer on withdrawn listing = %v, want race error", err)
	}
	if views := sess.ActiveListings("buyer"); len(views) != 0 {
		t.Errorf("withdrawn listing still visible: %+v", views)
	}
}

func TestPurchaseBuysAtAsking(t *testing.T) {
	sess, ledger := testSession(entropy.Fixed(0.99), 200000)
	l := plantListing(sess, 0.5, 100000)

	out, err := sess.Purchase(l.ID, "buyer")
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if out.Kind != negotiation.OutcomeAccepted {
		t.Fatalf("outcome = %s, want accepted", out.Kind.Name())
	}
	if got := ledger.Balance("buyer"); got != 100000 {
		t.Errorf("balance = %.0f, want 100000", got)
	}

	if _, err := sess.Purchase(l.ID, "buyer"); err == nil || !market.IsValidation(err) {
		t.Errorf("purchase of gone listing = %v, want validation error", err)
	}
}

func TestPurchaseImmovableSeller(t *testing.T) {
	// Asking price always clears an immovable seller's near-asking floor.
	sess, _ := testSession(entropy.Fixed(0.99), 500000)
	l := plantListing(sess, 0.9, 300000)

	out, err := sess.Purchase(l.ID, "buyer")
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if out.Kind != negotiation.OutcomeAccepted {
		t.Errorf("outcome = %s, want accepted at full asking", out.Kind.Name())
	}
}

func TestOnHourTickExpiresListings(t *testing.T) {
	sess, _ := testSession(entropy.Fixed(0.99), 10000)
	l := plantListing(sess, 0.5, 50000)
	l.Viewed = true
	l.TTLHours = 1

	sess.OnHourTick(1)

	if sess.Hour != 1 {
		t.Errorf("hour = %d, want 1", sess.Hour)
	}
	if sess.Stats.Expired != 1 {
		t.Errorf("expired counter = %d, want 1", sess.Stats.Expired)
	}
	if _, ok := sess.Acquisition.Listing(l.ID); ok {
		t.Error("expired listing still live")
	}

	found := false
	for _, e := range sess.RecentEvents(10) {
		if e.Category == "expiry" {
			found = true
		}
	}
	if !found {
		t.Error("no expiry event recorded")
	}
}

func TestRequestInspectionFindsBothQueues(t *testing.T) {
	sess, _ := testSession(entropy.Fixed(0.0), 50000)

	// Acquisition side.
	l := plantListing(sess, 0.5, 50000)
	if err := sess.RequestInspection(l.ID, 0); err != nil {
		t.Fatalf("inspect found listing: %v", err)
	}
	if !l.OnHold {
		t.Error("found listing not held")
	}

	// Disposition side.
	req, err := sess.ListForSale("buyer", disposition.ItemSpec{
		CategoryID: "baler", AgeYears: 5, Damage: 0.2, Wear: 0.2, OperatingHours: 900, Value: 30000,
	}, market.TierLocal)
	if err != nil {
		t.Fatalf("ListForSale: %v", err)
	}
	if err := sess.RequestInspection(req.ListingID, 2); err != nil {
		t.Fatalf("inspect sale listing: %v", err)
	}

	if err := sess.RequestInspection("nope", 0); err == nil || !market.IsValidation(err) {
		t.Errorf("inspect missing listing = %v, want validation error", err)
	}
}

func TestHoursRemaining(t *testing.T) {
	sess, _ := testSession(entropy.Fixed(0.0), 50000)
	l := plantListing(sess, 0.5, 50000)
	l.TTLHours = 42

	got, err := sess.HoursRemaining(l.ID)
	if err != nil {
		t.Fatalf("HoursRemaining: %v", err)
	}
	if got != 42 {
		t.Errorf("hours = %d, want 42", got)
	}

	if _, err := sess.HoursRemaining("nope"); err == nil || !market.IsValidation(err) {
		t.Errorf("missing listing = %v, want validation error", err)
	}
}

func TestDrainEvents(t *testing.T) {
	sess, _ := testSession(entropy.Fixed(0.99), 200000)
	l := plantListing(sess, 0.5, 100000)
	if _, err := sess.SubmitOffer(l.ID, "buyer", 100000); err != nil {
		t.Fatalf("SubmitOffer: %v", err)
	}

	first := sess.DrainEvents()
	if len(first) == 0 {
		t.Fatal("no events drained after a purchase")
	}
	if second := sess.DrainEvents(); len(second) != 0 {
		t.Errorf("second drain returned %d events, want 0", len(second))
	}
	// The ring keeps them for queries regardless.
	if events := sess.RecentEvents(10); len(events) == 0 {
		t.Error("ring buffer emptied by drain")
	}
}

func TestSummaryCounts(t *testing.T) {
	sess, _ := testSession(entropy.Fixed(0.0), 50000)
	plantListing(sess, 0.5, 50000)
	if _, err := sess.RequestSearch("buyer", "plow", market.QualityAny, market.TierLocal); err != nil {
		t.Fatalf("RequestSearch: %v", err)
	}

	snap := sess.Summary()
	if snap.ActiveSearches != 1 {
		t.Errorf("active searches = %d, want 1", snap.ActiveSearches)
	}
	if snap.FoundListings != 1 {
		t.Errorf("found listings = %d, want 1", snap.FoundListings)
	}
}
