// Package catalog provides the equipment categories the marketplace trades in.
// Base prices anchor the condition generator's pricing.
package catalog

import "sort"

// Category describes one class of tradeable equipment.
type Category struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	BasePrice     float64 `json:"base_price"`     // New-equipment price in credits
	AnnualHours   float64 `json:"annual_hours"`   // Typical operating hours per year
	LifetimeHours float64 `json:"lifetime_hours"` // Expected service life
}

// Catalog is a lookup of categories by ID.
type Catalog struct {
	byID map[string]*Category
	ids  []string
}

// New builds a catalog from a category list.
func New(categories []Category) *Catalog {
	c := &Catalog{byID: make(map[string]*Category, len(categories))}
	for i := range categories {
		cat := categories[i]
		c.byID[cat.ID] = &cat
		c.ids = append(c.ids, cat.ID)
	}
	sort.Strings(c.ids)
	return c
}

// Get returns a category by ID.
func (c *Catalog) Get(id string) (*Category, bool) {
	cat, ok := c.byID[id]
	return cat, ok
}

// IDs returns all category IDs in stable order.
func (c *Catalog) IDs() []string {
	return c.ids
}

// Len returns the number of categories.
func (c *Catalog) Len() int {
	return len(c.ids)
}

// Default returns the stock equipment catalog used by the simulator.
func Default() *Catalog {
	return New([]Category{
		{ID: "tractor_compact", Name: "Compact Tractor", BasePrice: 38000, AnnualHours: 350, LifetimeHours: 8000},
		{ID: "tractor_utility", Name: "Utility Tractor", BasePrice: 92000, AnnualHours: 500, LifetimeHours: 10000},
		{ID: "tractor_rowcrop", Name: "Row-Crop Tractor", BasePrice: 215000, AnnualHours: 600, LifetimeHours: 12000},
		{ID: "harvester", Name: "Combine Harvester", BasePrice: 420000, AnnualHours: 300, LifetimeHours: 6000},
		{ID: "forage_harvester", Name: "Forage Harvester", BasePrice: 510000, AnnualHours: 350, LifetimeHours: 6000},
		{ID: "plow", Name: "Reversible Plow", BasePrice: 24000, AnnualHours: 150, LifetimeHours: 4000},
		{ID: "seeder", Name: "Seed Drill", BasePrice: 56000, AnnualHours: 120, LifetimeHours: 3500},
		{ID: "sprayer", Name: "Field Sprayer", BasePrice: 88000, AnnualHours: 200, LifetimeHours: 5000},
		{ID: "baler", Name: "Round Baler", BasePrice: 64000, AnnualHours: 180, LifetimeHours: 4500},
		{ID: "telehandler", Name: "Telehandler", BasePrice: 120000, AnnualHours: 700, LifetimeHours: 9000},
		{ID: "trailer", Name: "Grain Trailer", BasePrice: 41000, AnnualHours: 250, LifetimeHours: 12000},
		{ID: "mower", Name: "Disc Mower", BasePrice: 29000, AnnualHours: 140, LifetimeHours: 4000},
	})
}
