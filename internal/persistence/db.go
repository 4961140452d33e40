// Package persistence stores marketplace state in SQLite. Saves are
// full-replace transactions; loads are tolerant — missing optional fields get
// defaults and corrupt rows are logged and skipped, never fatal.
package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/halvard/usedmarket/internal/acquisition"
	"github.com/halvard/usedmarket/internal/disposition"
	"github.com/halvard/usedmarket/internal/engine"
	"github.com/halvard/usedmarket/internal/inspection"
	"github.com/halvard/usedmarket/internal/market"
)

// DB wraps a SQLite connection for marketplace persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS listings (
		id TEXT PRIMARY KEY,
		queue TEXT NOT NULL,
		category_id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		status INTEGER NOT NULL,
		created_hour INTEGER NOT NULL,
		ttl_hours INTEGER NOT NULL,
		on_hold INTEGER NOT NULL,
		viewed INTEGER NOT NULL,
		dna REAL NOT NULL,
		generation INTEGER NOT NULL,
		age_years REAL NOT NULL,
		damage REAL NOT NULL,
		wear REAL NOT NULL,
		operating_hours REAL NOT NULL,
		base_price REAL NOT NULL,
		asking_price REAL NOT NULL,
		commission REAL NOT NULL,
		revealed_mask INTEGER NOT NULL,
		negotiation_json TEXT
	);

	CREATE TABLE IF NOT EXISTS searches (
		id TEXT PRIMARY KEY,
		requester_id TEXT NOT NULL,
		category_id TEXT NOT NULL,
		quality INTEGER NOT NULL,
		agent INTEGER NOT NULL,
		fee REAL NOT NULL,
		created_hour INTEGER NOT NULL,
		remaining INTEGER NOT NULL,
		resolved INTEGER NOT NULL,
		results_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sales (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		listing_id TEXT NOT NULL,
		agent INTEGER NOT NULL,
		fee REAL NOT NULL,
		created_hour INTEGER NOT NULL,
		remaining INTEGER NOT NULL,
		history_json TEXT NOT NULL,
		pending_json TEXT
	);

	CREATE TABLE IF NOT EXISTS inspections (
		listing_id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		tier INTEGER NOT NULL,
		requested_at_hour INTEGER NOT NULL,
		completes_at_hour INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		hour INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS session_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_hour ON events(hour);
	CREATE INDEX IF NOT EXISTS idx_listings_owner ON listings(owner_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// listingRow is the flat persisted shape of a listing record.
type listingRow struct {
	ID              string          `db:"id"`
	Queue           string          `db:"queue"`
	CategoryID      string          `db:"category_id"`
	OwnerID         string          `db:"owner_id"`
	Status          uint8           `db:"status"`
	CreatedHour     uint64          `db:"created_hour"`
	TTLHours        int             `db:"ttl_hours"`
	OnHold          bool            `db:"on_hold"`
	Viewed          bool            `db:"viewed"`
	DNA             float64         `db:"dna"`
	Generation      uint8           `db:"generation"`
	AgeYears        float64         `db:"age_years"`
	Damage          float64         `db:"damage"`
	Wear            float64         `db:"wear"`
	OperatingHours  float64         `db:"operating_hours"`
	BasePrice       float64         `db:"base_price"`
	AskingPrice     float64         `db:"asking_price"`
	Commission      float64         `db:"commission"`
	RevealedMask    uint32          `db:"revealed_mask"`
	NegotiationJSON sql.NullString  `db:"negotiation_json"`
}

func toListingRow(l *market.ListingRecord, queue string) (listingRow, error) {
	row := listingRow{
		ID:             string(l.ID),
		Queue:          queue,
		CategoryID:     l.CategoryID,
		OwnerID:        l.OwnerID,
		Status:         uint8(l.Status),
		CreatedHour:    l.CreatedHour,
		TTLHours:       l.TTLHours,
		OnHold:         l.OnHold,
		Viewed:         l.Viewed,
		DNA:            l.DNA,
		Generation:     uint8(l.Generation),
		AgeYears:       l.AgeYears,
		Damage:         l.Damage,
		Wear:           l.Wear,
		OperatingHours: l.OperatingHours,
		BasePrice:      l.BasePrice,
		AskingPrice:    l.AskingPrice,
		Commission:     l.Commission,
		RevealedMask:   l.Revealed.Mask(),
	}
	if l.Negotiation != nil {
		b, err := json.Marshal(l.Negotiation)
		if err != nil {
			return row, fmt.Errorf("marshal negotiation: %w", err)
		}
		row.NegotiationJSON = sql.NullString{String: string(b), Valid: true}
	}
	return row, nil
}

func fromListingRow(row listingRow) (*market.ListingRecord, error) {
	if row.ID == "" {
		return nil, fmt.Errorf("empty listing id")
	}
	if row.Status > uint8(market.StatusWithdrawn) {
		return nil, fmt.Errorf("status %d out of range", row.Status)
	}
	if row.DNA < 0 || row.DNA > 1 {
		return nil, fmt.Errorf("dna %f out of range", row.DNA)
	}

	l := &market.ListingRecord{
		ID:             market.ListingID(row.ID),
		CategoryID:     row.CategoryID,
		OwnerID:        row.OwnerID,
		Status:         market.Status(row.Status),
		CreatedHour:    row.CreatedHour,
		TTLHours:       row.TTLHours,
		OnHold:         row.OnHold,
		Viewed:         row.Viewed,
		DNA:            row.DNA,
		Generation:     market.Generation(row.Generation),
		AgeYears:       row.AgeYears,
		Damage:         row.Damage,
		Wear:           row.Wear,
		OperatingHours: row.OperatingHours,
		BasePrice:      row.BasePrice,
		AskingPrice:    row.AskingPrice,
		Commission:     row.Commission,
		Revealed:       market.RevealedFromMask(row.RevealedMask),
	}

	if row.NegotiationJSON.Valid && row.NegotiationJSON.String != "" {
		var rec market.NegotiationRecord
		if err := json.Unmarshal([]byte(row.NegotiationJSON.String), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal negotiation: %w", err)
		}
		l.Negotiation = &rec
	} else {
		// Older saves lack negotiation state; it derives from the hidden
		// quality scalar, so rebuild it.
		l.Negotiation = market.NewNegotiationRecord(l.DNA)
	}
	return l, nil
}

// SaveState writes the full session state (full replace).
func (db *DB) SaveState(sess *engine.Session) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"listings", "searches", "sales", "inspections"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return err
		}
	}

	searches, acqListings := sess.Acquisition.All()
	sales, saleListings := sess.Disposition.All()

	if err := insertListings(tx, acqListings, "acq"); err != nil {
		return err
	}
	if err := insertListings(tx, saleListings, "disp"); err != nil {
		return err
	}

	for _, req := range searches {
		results, _ := json.Marshal(req.Results)
		_, err := tx.Exec(`INSERT INTO searches
			(id, requester_id, category_id, quality, agent, fee, created_hour, remaining, resolved, results_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(req.ID), req.RequesterID, req.CategoryID, uint8(req.Quality), uint8(req.Agent),
			req.Fee, req.CreatedHour, req.Remaining, req.Resolved, string(results),
		)
		if err != nil {
			return fmt.Errorf("insert search %s: %w", req.ID, err)
		}
	}

	for _, req := range sales {
		history, _ := json.Marshal(req.History)
		var pending any
		if req.Pending != nil {
			b, _ := json.Marshal(req.Pending)
			pending = string(b)
		}
		_, err := tx.Exec(`INSERT INTO sales
			(id, owner_id, listing_id, agent, fee, created_hour, remaining, history_json, pending_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(req.ID), req.OwnerID, string(req.ListingID), uint8(req.Agent),
			req.Fee, req.CreatedHour, req.Remaining, string(history), pending,
		)
		if err != nil {
			return fmt.Errorf("insert sale %s: %w", req.ID, err)
		}
	}

	for _, ins := range sess.Inspections.All() {
		_, err := tx.Exec(`INSERT INTO inspections
			(listing_id, owner_id, tier, requested_at_hour, completes_at_hour)
			VALUES (?, ?, ?, ?, ?)`,
			string(ins.ListingID), ins.OwnerID, uint8(ins.Tier), ins.RequestedAtHour, ins.CompletesAtHour,
		)
		if err != nil {
			return fmt.Errorf("insert inspection %s: %w", ins.ListingID, err)
		}
	}

	if err := saveMetaTx(tx, "hour", strconv.FormatUint(sess.Hour, 10)); err != nil {
		return err
	}
	statsJSON, _ := json.Marshal(sess.Stats)
	if err := saveMetaTx(tx, "stats", string(statsJSON)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	slog.Info("session saved",
		"hour", sess.Hour,
		"listings", len(acqListings)+len(saleListings),
		"searches", len(searches),
		"sales", len(sales),
	)
	return nil
}

func insertListings(tx *sqlx.Tx, listings []*market.ListingRecord, queue string) error {
	for _, l := range listings {
		row, err := toListingRow(l, queue)
		if err != nil {
			return err
		}
		_, err = tx.NamedExec(`INSERT INTO listings
			(id, queue, category_id, owner_id, status, created_hour, ttl_hours, on_hold, viewed,
			 dna, generation, age_years, damage, wear, operating_hours,
			 base_price, asking_price, commission, revealed_mask, negotiation_json)
			VALUES (:id, :queue, :category_id, :owner_id, :status, :created_hour, :ttl_hours, :on_hold, :viewed,
			 :dna, :generation, :age_years, :damage, :wear, :operating_hours,
			 :base_price, :asking_price, :commission, :revealed_mask, :negotiation_json)`, row)
		if err != nil {
			return fmt.Errorf("insert listing %s: %w", l.ID, err)
		}
	}
	return nil
}

// LoadState restores a saved session into freshly-built queues. Corrupt rows
// are logged and skipped; a single bad record never prevents a load.
func (db *DB) LoadState(sess *engine.Session) error {
	acqListings, dispListings, err := db.loadListings()
	if err != nil {
		return err
	}

	searches := db.loadSearches(acqListings)
	sales := db.loadSales(dispListings)
	inspections := db.loadInspections()

	var acqL, dispL []*market.ListingRecord
	for _, l := range acqListings {
		acqL = append(acqL, l)
	}
	for _, l := range dispListings {
		dispL = append(dispL, l)
	}
	sess.Acquisition.Restore(searches, acqL)
	sess.Disposition.Restore(sales, dispL)
	sess.Inspections.Restore(inspections)

	if v, err := db.GetMeta("hour"); err == nil {
		if h, err := strconv.ParseUint(v, 10, 64); err == nil {
			sess.Hour = h
		}
	}
	if v, err := db.GetMeta("stats"); err == nil {
		var stats engine.Stats
		if err := json.Unmarshal([]byte(v), &stats); err == nil {
			sess.Stats = stats
		}
	}

	slog.Info("session restored",
		"hour", sess.Hour,
		"listings", len(acqL)+len(dispL),
		"searches", len(searches),
		"sales", len(sales),
		"inspections", len(inspections),
	)
	return nil
}

func (db *DB) loadListings() (map[market.ListingID]*market.ListingRecord, map[market.ListingID]*market.ListingRecord, error) {
	rows, err := db.conn.Queryx("SELECT * FROM listings")
	if err != nil {
		return nil, nil, fmt.Errorf("query listings: %w", err)
	}
	defer rows.Close()

	acq := make(map[market.ListingID]*market.ListingRecord)
	disp := make(map[market.ListingID]*market.ListingRecord)
	for rows.Next() {
		var row listingRow
		if err := rows.StructScan(&row); err != nil {
			slog.Warn("skipping corrupt listing row", "error", &market.CorruptRecordError{Record: "listing", Err: err})
			continue
		}
		l, err := fromListingRow(row)
		if err != nil {
			slog.Warn("skipping corrupt listing", "error", &market.CorruptRecordError{Record: row.ID, Err: err})
			continue
		}
		if row.Queue == "disp" {
			disp[l.ID] = l
		} else {
			acq[l.ID] = l
		}
	}
	return acq, disp, rows.Err()
}

func (db *DB) loadSearches(listings map[market.ListingID]*market.ListingRecord) []*acquisition.SearchRequest {
	type searchRow struct {
		ID          string  `db:"id"`
		RequesterID string  `db:"requester_id"`
		CategoryID  string  `db:"category_id"`
		Quality     uint8   `db:"quality"`
		Agent       uint8   `db:"agent"`
		Fee         float64 `db:"fee"`
		CreatedHour uint64  `db:"created_hour"`
		Remaining   int     `db:"remaining"`
		Resolved    bool    `db:"resolved"`
		ResultsJSON string  `db:"results_json"`
	}

	rows, err := db.conn.Queryx("SELECT * FROM searches")
	if err != nil {
		slog.Warn("query searches failed", "error", err)
		return nil
	}
	defer rows.Close()

	var out []*acquisition.SearchRequest
	for rows.Next() {
		var row searchRow
		if err := rows.StructScan(&row); err != nil {
			slog.Warn("skipping corrupt search row", "error", &market.CorruptRecordError{Record: "search", Err: err})
			continue
		}
		var results []market.ListingID
		if err := json.Unmarshal([]byte(row.ResultsJSON), &results); err != nil {
			slog.Warn("skipping corrupt search", "error", &market.CorruptRecordError{Record: row.ID, Err: err})
			continue
		}
		// Results referencing listings that failed to load are dropped.
		var live []market.ListingID
		for _, id := range results {
			if _, ok := listings[id]; ok {
				live = append(live, id)
			}
		}
		out = append(out, &acquisition.SearchRequest{
			ID:          acquisition.SearchID(row.ID),
			RequesterID: row.RequesterID,
			CategoryID:  row.CategoryID,
			Quality:     market.QualityTier(row.Quality),
			Agent:       market.AgentTier(row.Agent),
			Fee:         row.Fee,
			CreatedHour: row.CreatedHour,
			Remaining:   row.Remaining,
			Resolved:    row.Resolved,
			Results:     live,
		})
	}
	return out
}

func (db *DB) loadSales(listings map[market.ListingID]*market.ListingRecord) []*disposition.SaleRequest {
	type saleRow struct {
		ID          string         `db:"id"`
		OwnerID     string         `db:"owner_id"`
		ListingID   string         `db:"listing_id"`
		Agent       uint8          `db:"agent"`
		Fee         float64        `db:"fee"`
		CreatedHour uint64         `db:"created_hour"`
		Remaining   int            `db:"remaining"`
		HistoryJSON string         `db:"history_json"`
		PendingJSON sql.NullString `db:"pending_json"`
	}

	rows, err := db.conn.Queryx("SELECT * FROM sales")
	if err != nil {
		slog.Warn("query sales failed", "error", err)
		return nil
	}
	defer rows.Close()

	var out []*disposition.SaleRequest
	for rows.Next() {
		var row saleRow
		if err := rows.StructScan(&row); err != nil {
			slog.Warn("skipping corrupt sale row", "error", &market.CorruptRecordError{Record: "sale", Err: err})
			continue
		}
		if _, ok := listings[market.ListingID(row.ListingID)]; !ok {
			slog.Warn("skipping sale with missing listing", "sale", row.ID, "listing", row.ListingID)
			continue
		}
		var history []market.Offer
		if err := json.Unmarshal([]byte(row.HistoryJSON), &history); err != nil {
			slog.Warn("skipping corrupt sale", "error", &market.CorruptRecordError{Record: row.ID, Err: err})
			continue
		}
		var pending *market.Offer
		if row.PendingJSON.Valid && row.PendingJSON.String != "" {
			var p market.Offer
			if err := json.Unmarshal([]byte(row.PendingJSON.String), &p); err != nil {
				slog.Warn("dropping corrupt pending offer", "sale", row.ID, "error", err)
			} else {
				pending = &p
			}
		}
		out = append(out, &disposition.SaleRequest{
			ID:          disposition.SaleID(row.ID),
			OwnerID:     row.OwnerID,
			ListingID:   market.ListingID(row.ListingID),
			Agent:       market.AgentTier(row.Agent),
			Fee:         row.Fee,
			CreatedHour: row.CreatedHour,
			Remaining:   row.Remaining,
			History:     history,
			Pending:     pending,
		})
	}
	return out
}

func (db *DB) loadInspections() []*inspection.Inspection {
	type insRow struct {
		ListingID       string `db:"listing_id"`
		OwnerID         string `db:"owner_id"`
		Tier            uint8  `db:"tier"`
		RequestedAtHour uint64 `db:"requested_at_hour"`
		CompletesAtHour uint64 `db:"completes_at_hour"`
	}

	rows, err := db.conn.Queryx("SELECT * FROM inspections")
	if err != nil {
		slog.Warn("query inspections failed", "error", err)
		return nil
	}
	defer rows.Close()

	var out []*inspection.Inspection
	for rows.Next() {
		var row insRow
		if err := rows.StructScan(&row); err != nil {
			slog.Warn("skipping corrupt inspection row", "error", &market.CorruptRecordError{Record: "inspection", Err: err})
			continue
		}
		out = append(out, &inspection.Inspection{
			ListingID:       market.ListingID(row.ListingID),
			OwnerID:         row.OwnerID,
			Tier:            inspection.Tier(row.Tier),
			RequestedAtHour: row.RequestedAtHour,
			CompletesAtHour: row.CompletesAtHour,
		})
	}
	return out
}

// HasState reports whether a previous save exists.
func (db *DB) HasState() bool {
	var count int
	if err := db.conn.Get(&count, "SELECT COUNT(*) FROM session_meta WHERE key = 'hour'"); err != nil {
		return false
	}
	return count > 0
}

// AppendEvents writes events to the persistent log with sortable ULID keys.
func (db *DB) AppendEvents(events []market.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range events {
		_, err := tx.Exec(
			"INSERT INTO events (id, hour, description, category) VALUES (?, ?, ?, ?)",
			ulid.Make().String(), e.Hour, e.Description, e.Category,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RecentEvents returns the most recent N events.
func (db *DB) RecentEvents(limit int) ([]market.Event, error) {
	var events []market.Event
	err := db.conn.Select(&events,
		"SELECT hour, description, category FROM events ORDER BY id DESC LIMIT ?", limit)
	return events, err
}

// SaveMeta stores a key-value pair in session metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO session_meta (key, value) VALUES (?, ?)", key, value)
	return err
}

func saveMetaTx(tx *sqlx.Tx, key, value string) error {
	_, err := tx.Exec(
		"INSERT OR REPLACE INTO session_meta (key, value) VALUES (?, ?)", key, value)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM session_meta WHERE key = ?", key)
	return value, err
}
