package main

import (
	"fmt"

	"github.com/halvard/usedmarket/internal/disposition"
	"github.com/halvard/usedmarket/internal/engine"
	"github.com/halvard/usedmarket/internal/entropy"
	"github.com/halvard/usedmarket/internal/market"
)

// ambientDriver keeps the market alive when the player is idle. A handful of
// scripted farm operations occasionally commission searches, list their own
// machines, and haggle over what their agents find.
type ambientDriver struct {
	sess *engine.Session
	rng  *entropy.Seeded
	npcs []string
}

// Chance per NPC per simulated hour of doing anything at all.
const ambientActionChance = 1.0 / 36.0

func newAmbientDriver(sess *engine.Session, seed int64) *ambientDriver {
	npcs := make([]string, 0, 4)
	for i := 1; i <= 4; i++ {
		npcs = append(npcs, fmt.Sprintf("farm-%d", i))
	}
	return &ambientDriver{
		sess: sess,
		rng:  entropy.NewSeeded(seed + 400),
		npcs: npcs,
	}
}

// Balances returns the starting ledger entries for the ambient operations.
func (d *ambientDriver) Balances() map[string]float64 {
	out := make(map[string]float64, len(d.npcs))
	for _, id := range d.npcs {
		out[id] = 120000
	}
	return out
}

// Tick gives each ambient operation a small chance to act this hour.
func (d *ambientDriver) Tick() {
	for _, npc := range d.npcs {
		if d.rng.Float() >= ambientActionChance {
			continue
		}
		switch entropy.IntN(d.rng, 3) {
		case 0:
			d.commission(npc)
		case 1:
			d.sellSomething(npc)
		default:
			d.haggle(npc)
		}
	}
}

func (d *ambientDriver) commission(npc string) {
	ids := d.sess.Catalog.IDs()
	if len(ids) == 0 {
		return
	}
	category := ids[entropy.IntN(d.rng, len(ids))]
	quality := market.QualityTier(1 + entropy.IntN(d.rng, 5))
	agent := market.AgentTier(1 + entropy.IntN(d.rng, 3))
	// Funds errors just mean this farm sits the month out.
	d.sess.RequestSearch(npc, category, quality, agent)
}

func (d *ambientDriver) sellSomething(npc string) {
	ids := d.sess.Catalog.IDs()
	if len(ids) == 0 {
		return
	}
	cat, ok := d.sess.Catalog.Get(ids[entropy.IntN(d.rng, len(ids))])
	if !ok {
		return
	}
	age := float64(3 + entropy.IntN(d.rng, 12))
	item := disposition.ItemSpec{
		CategoryID:     cat.ID,
		AgeYears:       age,
		Damage:         entropy.Range(d.rng, 0.10, 0.55),
		Wear:           entropy.Range(d.rng, 0.15, 0.60),
		OperatingHours: age * cat.AnnualHours * entropy.Range(d.rng, 0.6, 1.1),
		Value:          cat.BasePrice * entropy.Range(d.rng, 0.30, 0.65),
	}
	d.sess.ListForSale(npc, item, market.AgentTier(1+entropy.IntN(d.rng, 3)))
}

// haggle picks one of the farm's found listings and works an offer. Viewing
// first starts the offer window, so ambient finds expire instead of piling up.
func (d *ambientDriver) haggle(npc string) {
	views := d.sess.ActiveListings(npc)
	if len(views) == 0 {
		return
	}
	v := views[entropy.IntN(d.rng, len(views))]
	if v.AskingPrice <= 0 {
		return
	}
	d.sess.MarkViewed(v.ID)
	offer := v.AskingPrice * entropy.Range(d.rng, 0.80, 1.0)
	d.sess.SubmitOffer(v.ID, npc, offer)
}
